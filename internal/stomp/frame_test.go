package stomp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrame_MarshalParse(t *testing.T) {
	f := NewFrame(CmdSend, HdrDestination, "/app/chat.send", HdrContentType, "application/json")
	f.Body = []byte(`{"chatUserId":"c1","message":"hi"}`)

	got, err := Parse(f.Marshal())
	require.NoError(t, err)

	assert.Equal(t, CmdSend, got.Command)
	assert.Equal(t, "/app/chat.send", got.Header(HdrDestination))
	assert.Equal(t, "34", got.Header(HdrContentLength))
	assert.Equal(t, string(f.Body), string(got.Body))
}

func TestFrame_MarshalIsSorted(t *testing.T) {
	f := NewFrame(CmdSubscribe, HdrID, "sub-1", HdrDestination, "/topic/user/c1")
	assert.Equal(t, "SUBSCRIBE\ndestination:/topic/user/c1\nid:sub-1\n\n\x00", string(f.Marshal()))
}

func TestFrame_HeaderEscaping(t *testing.T) {
	f := NewFrame(CmdMessage, "note", "a:b\nc\\d")

	raw := f.Marshal()
	assert.Contains(t, string(raw), `note:a\cb\nc\\d`)

	got, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "a:b\nc\\d", got.Header("note"))
}

func TestFrame_ConnectNotEscaped(t *testing.T) {
	f := NewFrame(CmdConnect, HdrAuthorization, "Bearer a:b")
	assert.Contains(t, string(f.Marshal()), "Authorization:Bearer a:b\n")

	got, err := Parse(f.Marshal())
	require.NoError(t, err)
	assert.Equal(t, "Bearer a:b", got.Header(HdrAuthorization))
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		command string
		body    string
		wantErr bool
	}{
		{"no content-length", "MESSAGE\ndestination:/topic/x\n\nhello\x00", CmdMessage, "hello", false},
		{"leading heart-beats", "\n\r\nCONNECTED\nversion:1.2\n\n\x00", CmdConnected, "", false},
		{"crlf lines", "RECEIPT\r\nreceipt-id:7\r\n\r\n\x00", CmdReceipt, "", false},
		{"content-length with NUL in body", "MESSAGE\ncontent-length:3\n\na\x00b\x00", CmdMessage, "a\x00b", false},
		{"bad content-length", "MESSAGE\ncontent-length:99\n\nab\x00", "", "", true},
		{"missing NUL", "MESSAGE\n\nbody", "", "", true},
		{"malformed header", "MESSAGE\nnocolon\n\n\x00", "", "", true},
		{"bad escape", "MESSAGE\nk:\\t\n\n\x00", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Parse([]byte(tt.input))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.command, f.Command)
			assert.Equal(t, tt.body, string(f.Body))
		})
	}
}

func TestParse_Heartbeat(t *testing.T) {
	_, err := Parse([]byte("\n"))
	assert.ErrorIs(t, err, ErrHeartbeat)
}

func TestParse_RepeatedHeaderFirstWins(t *testing.T) {
	f, err := Parse([]byte("MESSAGE\nfoo:1\nfoo:2\n\n\x00"))
	require.NoError(t, err)
	assert.Equal(t, "1", f.Header("foo"))
}

func TestFrameError(t *testing.T) {
	f := NewFrame(CmdError, HdrMessage, "Unauthorized")
	f.Body = []byte("invalid token\n")

	err := frameError(f)
	assert.Equal(t, "broker error: Unauthorized: invalid token", err.Error())
	assert.Equal(t, "broker error: x", (&FrameError{Message: "x"}).Error())
}
