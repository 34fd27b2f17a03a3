// Package render formats command output for the terminal, or as JSON when
// a script consumes it.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
)

// Writer wraps an io.Writer with line helpers.
type Writer struct {
	out io.Writer
}

// NewWriter creates a Writer that writes to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{out: w}
}

// Stdout returns a Writer on os.Stdout.
func Stdout() *Writer {
	return NewWriter(os.Stdout)
}

// Stderr returns a Writer on os.Stderr.
func Stderr() *Writer {
	return NewWriter(os.Stderr)
}

// Println writes formatted text with newline.
func (w *Writer) Println(format string, args ...any) {
	fmt.Fprintf(w.out, format+"\n", args...)
}

// Line writes a blank line.
func (w *Writer) Line() {
	fmt.Fprintln(w.out)
}

// Header writes an upper-case title followed by a blank line.
func (w *Writer) Header(title string, args ...any) {
	if len(args) > 0 {
		title = fmt.Sprintf(title, args...)
	}
	fmt.Fprintln(w.out, strings.ToUpper(title))
	fmt.Fprintln(w.out)
}

// Section writes a section header.
func (w *Writer) Section(title string) {
	fmt.Fprintln(w.out)
	fmt.Fprintln(w.out, strings.ToUpper(title)+":")
}

// Item writes an indented line.
func (w *Writer) Item(format string, args ...any) {
	fmt.Fprintf(w.out, "  "+format+"\n", args...)
}

// Nested writes an indented line with a tree connector.
func (w *Writer) Nested(format string, args ...any) {
	fmt.Fprintf(w.out, "    └─ "+format+"\n", args...)
}

// Empty writes an empty state message.
func (w *Writer) Empty(msg string) {
	fmt.Fprintln(w.out, msg)
}

// JSON writes v as indented JSON.
func (w *Writer) JSON(v any) error {
	enc := json.NewEncoder(w.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// StatusIcon returns the icon of an audit status.
func StatusIcon(status string) string {
	switch status {
	case "success":
		return "✓"
	case "error":
		return "✗"
	case "warning":
		return "!"
	default:
		return "•"
	}
}

// BoolIcon returns ✓ or ✗.
func BoolIcon(b bool) string {
	if b {
		return "✓"
	}
	return "✗"
}
