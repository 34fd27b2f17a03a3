// Package strings holds the text helpers shared by the table renderer and
// the TUI. Widths are counted in runes with ANSI escapes excluded.
package strings

import (
	"strings"
	"unicode/utf8"
)

// Truncate shortens s to n visible runes, ending with "..." when cut.
// n below 4 is raised to 4.
func Truncate(s string, n int) string {
	if n < 4 {
		n = 4
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n-3]) + "..."
}

// Pad right-pads s with spaces to width visible runes, truncating when longer.
func Pad(s string, width int) string {
	l := visibleLength(s)
	if l > width {
		return Truncate(s, width)
	}
	return s + strings.Repeat(" ", width-l)
}

// ShortID returns the first 8 characters of an id, enough to tell uuids apart
// on screen.
func ShortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

// Initials returns the upper-case initials of up to two words of name.
func Initials(name string) string {
	var b strings.Builder
	for _, w := range strings.Fields(name) {
		r, _ := utf8.DecodeRuneInString(w)
		b.WriteString(strings.ToUpper(string(r)))
		if b.Len() >= 2 {
			break
		}
	}
	if b.Len() == 0 {
		return "?"
	}
	return b.String()
}

// WordWrap wraps text to width visible runes, breaking on spaces.
// Existing newlines are kept; words longer than width stand on their own line.
func WordWrap(s string, width int) string {
	if width <= 0 {
		return s
	}
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if visibleLength(line) > width {
			lines[i] = wrapLine(line, width)
		}
	}
	return strings.Join(lines, "\n")
}

func wrapLine(line string, width int) string {
	var out []string
	var cur strings.Builder
	curLen := 0
	for _, word := range strings.Fields(line) {
		wl := visibleLength(word)
		if curLen > 0 && curLen+1+wl > width {
			out = append(out, cur.String())
			cur.Reset()
			curLen = 0
		}
		if curLen > 0 {
			cur.WriteByte(' ')
			curLen++
		}
		cur.WriteString(word)
		curLen += wl
	}
	if curLen > 0 {
		out = append(out, cur.String())
	}
	return strings.Join(out, "\n")
}

// visibleLength counts runes outside ANSI escape sequences.
func visibleLength(s string) int {
	inEscape := false
	count := 0
	for _, r := range s {
		switch {
		case r == '\x1b':
			inEscape = true
		case inEscape:
			if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
				inEscape = false
			}
		default:
			count++
		}
	}
	return count
}
