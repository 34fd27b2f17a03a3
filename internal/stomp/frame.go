// Package stomp implements the subset of STOMP 1.2 spoken by the federation
// chat broker, carried over websocket text messages.
package stomp

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Frame commands.
const (
	CmdConnect     = "CONNECT"
	CmdStomp       = "STOMP"
	CmdConnected   = "CONNECTED"
	CmdSend        = "SEND"
	CmdSubscribe   = "SUBSCRIBE"
	CmdUnsubscribe = "UNSUBSCRIBE"
	CmdMessage     = "MESSAGE"
	CmdReceipt     = "RECEIPT"
	CmdError       = "ERROR"
	CmdDisconnect  = "DISCONNECT"
)

// Common headers.
const (
	HdrAcceptVersion = "accept-version"
	HdrVersion       = "version"
	HdrHost          = "host"
	HdrHeartBeat     = "heart-beat"
	HdrDestination   = "destination"
	HdrID            = "id"
	HdrSubscription  = "subscription"
	HdrMessageID     = "message-id"
	HdrContentType   = "content-type"
	HdrContentLength = "content-length"
	HdrReceipt       = "receipt"
	HdrReceiptID     = "receipt-id"
	HdrMessage       = "message"
	HdrAuthorization = "Authorization"
)

// ErrHeartbeat is returned by Parse for a message holding only EOLs.
var ErrHeartbeat = errors.New("heart-beat")

// Frame is one STOMP frame.
type Frame struct {
	Command string
	Headers map[string]string
	Body    []byte
}

// NewFrame builds a frame from alternating header key/value pairs.
func NewFrame(command string, kv ...string) Frame {
	f := Frame{Command: command, Headers: make(map[string]string, len(kv)/2)}
	for i := 0; i+1 < len(kv); i += 2 {
		f.Headers[kv[i]] = kv[i+1]
	}
	return f
}

// Header returns a header value or "".
func (f Frame) Header(key string) string {
	return f.Headers[key]
}

// escaped reports whether header values of this command are escaped.
// CONNECT and CONNECTED frames carry them verbatim.
func escaped(command string) bool {
	return command != CmdConnect && command != CmdConnected && command != CmdStomp
}

var headerEscaper = strings.NewReplacer(`\`, `\\`, "\r", `\r`, "\n", `\n`, ":", `\c`)

func unescapeHeader(s string) (string, error) {
	if !strings.Contains(s, `\`) {
		return s, nil
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' {
			b.WriteByte(s[i])
			continue
		}
		if i+1 >= len(s) {
			return "", fmt.Errorf("dangling escape in %q", s)
		}
		i++
		switch s[i] {
		case '\\':
			b.WriteByte('\\')
		case 'r':
			b.WriteByte('\r')
		case 'n':
			b.WriteByte('\n')
		case 'c':
			b.WriteByte(':')
		default:
			return "", fmt.Errorf("undefined escape \\%c", s[i])
		}
	}
	return b.String(), nil
}

// Marshal encodes the frame, NUL terminated. Headers are written in sorted
// order so encoding is deterministic.
func (f Frame) Marshal() []byte {
	var b bytes.Buffer
	b.WriteString(f.Command)
	b.WriteByte('\n')

	keys := make([]string, 0, len(f.Headers))
	for k := range f.Headers {
		if k == HdrContentLength {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	esc := escaped(f.Command)
	for _, k := range keys {
		v := f.Headers[k]
		if esc {
			k, v = headerEscaper.Replace(k), headerEscaper.Replace(v)
		}
		b.WriteString(k)
		b.WriteByte(':')
		b.WriteString(v)
		b.WriteByte('\n')
	}
	if len(f.Body) > 0 {
		b.WriteString(HdrContentLength)
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(len(f.Body)))
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	b.Write(f.Body)
	b.WriteByte(0)
	return b.Bytes()
}

// Parse decodes one frame. Leading EOLs (heart-beats) are skipped; a message
// with nothing else yields ErrHeartbeat.
func Parse(data []byte) (Frame, error) {
	data = bytes.TrimLeft(data, "\r\n")
	if len(data) == 0 {
		return Frame{}, ErrHeartbeat
	}

	end := bytes.IndexByte(data, '\n')
	if end < 0 {
		return Frame{}, errors.New("frame without command line")
	}
	f := Frame{
		Command: strings.TrimSuffix(string(data[:end]), "\r"),
		Headers: map[string]string{},
	}
	rest := data[end+1:]
	esc := escaped(f.Command)

	for {
		end = bytes.IndexByte(rest, '\n')
		if end < 0 {
			return Frame{}, fmt.Errorf("%s frame: unterminated headers", f.Command)
		}
		line := strings.TrimSuffix(string(rest[:end]), "\r")
		rest = rest[end+1:]
		if line == "" {
			break
		}
		k, v, ok := strings.Cut(line, ":")
		if !ok {
			return Frame{}, fmt.Errorf("%s frame: malformed header %q", f.Command, line)
		}
		if esc {
			var err error
			if k, err = unescapeHeader(k); err != nil {
				return Frame{}, err
			}
			if v, err = unescapeHeader(v); err != nil {
				return Frame{}, err
			}
		}
		// Repeated headers: the first occurrence wins.
		if _, dup := f.Headers[k]; !dup {
			f.Headers[k] = v
		}
	}

	if cl := f.Headers[HdrContentLength]; cl != "" {
		n, err := strconv.Atoi(cl)
		if err != nil || n < 0 || n > len(rest) {
			return Frame{}, fmt.Errorf("%s frame: bad content-length %q", f.Command, cl)
		}
		f.Body = rest[:n]
		return f, nil
	}

	nul := bytes.IndexByte(rest, 0)
	if nul < 0 {
		return Frame{}, fmt.Errorf("%s frame: missing NUL terminator", f.Command)
	}
	f.Body = rest[:nul]
	return f, nil
}

// FrameError is a broker ERROR frame surfaced as an error.
type FrameError struct {
	Message string
	Body    string
}

func (e *FrameError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("broker error: %s: %s", e.Message, e.Body)
	}
	return "broker error: " + e.Message
}

func frameError(f Frame) *FrameError {
	return &FrameError{Message: f.Header(HdrMessage), Body: strings.TrimSpace(string(f.Body))}
}
