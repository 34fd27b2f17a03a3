package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Layouts used by the federation backend. LocalDateTime values carry no zone
// and are interpreted in the local time zone.
const (
	DateLayout      = "2006-01-02"
	LocalTimeLayout = "2006-01-02T15:04:05"
)

var localTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	LocalTimeLayout,
	"2006-01-02T15:04",
}

// LocalTime is a timestamp that tolerates zone-less backend values.
// The zero value marshals as null.
type LocalTime struct {
	time.Time
}

// ParseLocalTime parses any of the accepted timestamp layouts.
func ParseLocalTime(s string) (LocalTime, error) {
	s = strings.TrimSpace(s)
	for _, layout := range localTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return LocalTime{t}, nil
		}
	}
	return LocalTime{}, fmt.Errorf("parse timestamp %q: unsupported layout", s)
}

func (t LocalTime) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Format("2006-01-02T15:04:05.000"))
}

func (t *LocalTime) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*t = LocalTime{}
		return nil
	}
	// Jackson without JavaTimeModule configured emits [y,m,d,h,mi,s,ns].
	if len(data) > 0 && data[0] == '[' {
		var parts []int
		if err := json.Unmarshal(data, &parts); err != nil {
			return fmt.Errorf("decode timestamp array: %w", err)
		}
		for len(parts) < 7 {
			parts = append(parts, 0)
		}
		*t = LocalTime{time.Date(parts[0], time.Month(parts[1]), parts[2], parts[3], parts[4], parts[5], parts[6], time.Local)}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("decode timestamp: %w", err)
	}
	if s == "" {
		*t = LocalTime{}
		return nil
	}
	parsed, err := ParseLocalTime(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Date is a calendar day without time of day (backend LocalDate).
type Date struct {
	time.Time
}

// ParseDate parses a yyyy-mm-dd value.
func ParseDate(s string) (Date, error) {
	t, err := time.ParseInLocation(DateLayout, strings.TrimSpace(s), time.Local)
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return Date{t}, nil
}

// MustDate is ParseDate for literals; it panics on malformed input.
func MustDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.Format(DateLayout))
}

func (d *Date) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*d = Date{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("decode date: %w", err)
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	// Some endpoints serialize LocalDate fields as full timestamps.
	if len(s) > len(DateLayout) {
		lt, err := ParseLocalTime(s)
		if err != nil {
			return err
		}
		y, m, day := lt.Date()
		*d = Date{time.Date(y, m, day, 0, 0, 0, 0, time.Local)}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// OnOrAfter reports whether d is the same day as other or later.
func (d Date) OnOrAfter(other time.Time) bool {
	y, m, day := other.Date()
	start := time.Date(y, m, day, 0, 0, 0, 0, d.Location())
	return !d.Before(start)
}
