package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- User union ---

func TestUnmarshalUser_SelectsVariantByRole(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		check   func(t *testing.T, u User)
	}{
		{
			name:    "federation manager",
			payload: `{"id":"a1","firstName":"Ada","lastName":"Rossi","email":"ada@fed.it","role":"FEDERATION_MANAGER"}`,
			check: func(t *testing.T, u User) {
				fm, ok := u.(FederationManager)
				require.True(t, ok)
				assert.Equal(t, "Ada Rossi", fm.FullName())
			},
		},
		{
			name:    "club manager",
			payload: `{"id":"c1","firstName":"Carlo","lastName":"Bianchi","email":"c@club.it","role":"CLUB_MANAGER","clubId":"club-9"}`,
			check: func(t *testing.T, u User) {
				cm, ok := u.(ClubManager)
				require.True(t, ok)
				assert.Equal(t, "club-9", cm.ClubID)
				assert.Equal(t, RoleClubManager, cm.Base().Role)
			},
		},
		{
			name: "athlete",
			payload: `{"id":"t1","firstName":"Lia","lastName":"Verdi","email":"l@a.it","role":"ATHLETE",
				"clubId":"club-9","birthDate":"2001-04-12","weight":61.5,"height":170,"gender":"FEMALE",
				"affiliationStatus":"ACCEPTED","affiliationDate":"2024-01-10","firstAffiliationDate":"2020-01-10",
				"medicalCertificateNumber":"MC-1","medicalCertificateExpireDate":"2030-12-31"}`,
			check: func(t *testing.T, u User) {
				a, ok := u.(Athlete)
				require.True(t, ok)
				assert.Equal(t, 61.5, a.Weight)
				assert.Equal(t, "2001-04-12", a.BirthDate.String())
				assert.True(t, a.Affiliated())
				assert.True(t, a.MedicalCertificateValid(time.Date(2025, 1, 1, 0, 0, 0, 0, time.Local)))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := UnmarshalUser([]byte(tt.payload))
			require.NoError(t, err)
			tt.check(t, u)
		})
	}
}

func TestUnmarshalUser_UnknownRole(t *testing.T) {
	_, err := UnmarshalUser([]byte(`{"id":"x","role":"COACH"}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownRole)
}

func TestMarshalUser_ForcesDiscriminant(t *testing.T) {
	data, err := MarshalUser(ClubManager{UserBase: UserBase{ID: "c1"}, ClubID: "k"})
	require.NoError(t, err)

	var probe map[string]any
	require.NoError(t, json.Unmarshal(data, &probe))
	assert.Equal(t, "CLUB_MANAGER", probe["role"])
	assert.Equal(t, "k", probe["clubId"])
}

func TestUnmarshalUsers_Mixed(t *testing.T) {
	users, err := UnmarshalUsers([]byte(`[{"id":"1","role":"ATHLETE"},{"id":"2","role":"CLUB_MANAGER"}]`))
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.IsType(t, Athlete{}, users[0])
	assert.IsType(t, ClubManager{}, users[1])
}

func TestMedicalCertificateValid(t *testing.T) {
	now := time.Date(2025, 6, 15, 18, 0, 0, 0, time.Local)
	tests := []struct {
		name   string
		expiry Date
		want   bool
	}{
		{"missing", Date{}, false},
		{"expired", MustDate("2025-06-14"), false},
		{"expires today", MustDate("2025-06-15"), true},
		{"future", MustDate("2026-01-01"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := Athlete{MedicalCertificateExpireDate: tt.expiry}
			assert.Equal(t, tt.want, a.MedicalCertificateValid(now))
		})
	}
}

func TestCreateUserValidate(t *testing.T) {
	birth := MustDate("2000-01-01")
	tests := []struct {
		name    string
		in      CreateUser
		wantErr bool
	}{
		{"manager ok", CreateUser{Email: "a@b.c", Password: "x", Role: RoleClubManager}, false},
		{"bad role", CreateUser{Email: "a@b.c", Password: "x", Role: "COACH"}, true},
		{"missing password", CreateUser{Email: "a@b.c", Role: RoleFederationManager}, true},
		{"athlete without club", CreateUser{Email: "a@b.c", Password: "x", Role: RoleAthlete}, true},
		{"athlete ok", CreateUser{Email: "a@b.c", Password: "x", Role: RoleAthlete, ClubID: "k",
			BirthDate: &birth, MedicalCertificateExpireDate: &birth, Gender: GenderMale}, false},
		{"negative weight", CreateUser{Email: "a@b.c", Password: "x", Role: RoleAthlete, ClubID: "k",
			BirthDate: &birth, MedicalCertificateExpireDate: &birth, Weight: -1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.in.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// --- Enums ---

func TestEnumLabels(t *testing.T) {
	assert.Equal(t, "Mixed martial arts", CompetitionMMA.Label())
	assert.Equal(t, "Registration open", EventRegistrationOpen.Label())
	assert.Equal(t, "Sent", EnrollmentSubmitted.Label())
	assert.Equal(t, "Request sent", AffiliationSubmitted.Label())
	assert.Equal(t, "User", Role("X").Label())
	assert.Equal(t, "Unknown", CompetitionType("X").Label())
}

func TestEnumValid(t *testing.T) {
	assert.True(t, RoleAthlete.Valid())
	assert.False(t, Role("").Valid())
	assert.True(t, EventCancelled.Valid())
	assert.False(t, EnrollmentStatus("PENDING").Valid())
	assert.True(t, CompetitionK1.Valid())
}

// --- Time ---

func TestLocalTime_Unmarshal(t *testing.T) {
	tests := []struct {
		name  string
		input string
		zero  bool
		year  int
		sec   int
	}{
		{"zone-less", `"2024-03-01T10:20:30"`, false, 2024, 30},
		{"fractional", `"2024-03-01T10:20:30.123456"`, false, 2024, 30},
		{"rfc3339", `"2024-03-01T10:20:30Z"`, false, 2024, 30},
		{"array", `[2024,3,1,10,20,30]`, false, 2024, 30},
		{"null", `null`, true, 0, 0},
		{"empty", `""`, true, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var lt LocalTime
			require.NoError(t, json.Unmarshal([]byte(tt.input), &lt))
			if tt.zero {
				assert.True(t, lt.IsZero())
				return
			}
			assert.Equal(t, tt.year, lt.Year())
			assert.Equal(t, tt.sec, lt.Second())
		})
	}
}

func TestLocalTime_RejectsGarbage(t *testing.T) {
	var lt LocalTime
	assert.Error(t, json.Unmarshal([]byte(`"yesterday"`), &lt))
}

func TestDate_RoundTrip(t *testing.T) {
	var d Date
	require.NoError(t, json.Unmarshal([]byte(`"2024-02-29"`), &d))
	out, err := json.Marshal(d)
	require.NoError(t, err)
	assert.Equal(t, `"2024-02-29"`, string(out))

	require.NoError(t, json.Unmarshal([]byte(`"2024-02-29T13:00:00"`), &d))
	assert.Equal(t, "2024-02-29", d.String())
}

// --- Chat ---

func TestSortSummaries(t *testing.T) {
	at := func(h int) LocalTime { return LocalTime{time.Date(2024, 1, 1, h, 0, 0, 0, time.Local)} }
	s := []ChatSummary{
		{ConversationID: "old", LastMessageTime: at(8)},
		{ConversationID: "never"},
		{ConversationID: "waiting", WaitingForReply: true, LastMessageTime: at(7)},
		{ConversationID: "new", LastMessageTime: at(9)},
	}
	SortSummaries(s)

	var ids []string
	for _, x := range s {
		ids = append(ids, x.ConversationID)
	}
	assert.Equal(t, []string{"waiting", "new", "old", "never"}, ids)
}

func TestChatSummary_DecodesBackendShape(t *testing.T) {
	var s ChatSummary
	payload := `{"chatUserId":"c1","clubManagerName":"Carlo B","lastMessageTime":"2024-05-05T12:00:00",
		"status":"ASSIGNED","assignedAdminId":"A1","waitingForReply":false}`
	require.NoError(t, json.Unmarshal([]byte(payload), &s))
	assert.Equal(t, "c1", s.ConversationID)
	assert.Equal(t, StatusAssigned, s.Status)
	assert.Equal(t, "A1", s.AssignedTo())

	require.NoError(t, json.Unmarshal([]byte(`{"chatUserId":"c2","status":"FREE","assignedAdminId":null}`), &s))
	assert.Equal(t, "", s.AssignedTo())
}
