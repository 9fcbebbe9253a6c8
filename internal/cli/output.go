package cli

import (
	"fmt"
	"io"
)

// Writef writes formatted output to the writer, ignoring write errors.
//
// Example:
//
//	cli.Writef(stdout, "Bundled %d modules\n", count)
func Writef(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}

// Writeln writes a line to the writer, ignoring write errors.
func Writeln(w io.Writer, args ...any) {
	_, _ = fmt.Fprintln(w, args...)
}

// Write writes a string to the writer, ignoring write errors.
func Write(w io.Writer, s string) {
	_, _ = io.WriteString(w, s)
}

// WriteBytes writes bytes to the writer, ignoring write errors.
func WriteBytes(w io.Writer, b []byte) {
	_, _ = w.Write(b)
}

// FormatBytes renders a size for humans, e.g. "12.5 KiB".
func FormatBytes(n int) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
