package strings

import (
	"testing"
)

func TestWordWrap(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		width    int
		expected string
	}{
		{"short line no wrap", "hello world", 80, "hello world"},
		{"wrap at width", "hello world test", 10, "hello\nworld test"},
		{"preserves newlines", "line1\nline2", 80, "line1\nline2"},
		{"empty string", "", 80, ""},
		{"width zero returns input", "test", 0, "test"},
		{"long word stands alone", "superlongword short", 5, "superlongword\nshort"},
		{"accented text counts runes", "perché così", 11, "perché così"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := WordWrap(tt.input, tt.width)
			if result != tt.expected {
				t.Errorf("WordWrap(%q, %d) = %q, want %q", tt.input, tt.width, result, tt.expected)
			}
		})
	}
}

func TestVisibleLength(t *testing.T) {
	tests := []struct {
		input    string
		expected int
	}{
		{"hello", 5},
		{"\x1b[31mred\x1b[0m", 3},
		{"", 0},
		{"\x1b[31m\x1b[0m", 0},
		{"città", 5},
	}

	for _, tt := range tests {
		if got := visibleLength(tt.input); got != tt.expected {
			t.Errorf("visibleLength(%q) = %d, want %d", tt.input, got, tt.expected)
		}
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		n        int
		expected string
	}{
		{"no truncation needed", "hello", 10, "hello"},
		{"truncation with ellipsis", "hello world", 8, "hello..."},
		{"min length enforced", "hello", 2, "h..."},
		{"multibyte runes stay whole", "àèìòùàèìòù", 6, "àèì..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Truncate(tt.input, tt.n)
			if result != tt.expected {
				t.Errorf("Truncate(%q, %d) = %q, want %q", tt.input, tt.n, result, tt.expected)
			}
		})
	}
}

func TestPad(t *testing.T) {
	if got := Pad("ab", 4); got != "ab  " {
		t.Errorf("Pad = %q", got)
	}
	if got := Pad("abcdefgh", 6); got != "abc..." {
		t.Errorf("Pad = %q", got)
	}
}

func TestShortIDAndInitials(t *testing.T) {
	if got := ShortID("0f8fad5b-d9cb-469f-a165-70867728950e"); got != "0f8fad5b" {
		t.Errorf("ShortID = %q", got)
	}
	if got := ShortID("c1"); got != "c1" {
		t.Errorf("ShortID = %q", got)
	}
	if got := Initials("luca rossi bianchi"); got != "LR" {
		t.Errorf("Initials = %q", got)
	}
	if got := Initials("  "); got != "?" {
		t.Errorf("Initials = %q", got)
	}
}
