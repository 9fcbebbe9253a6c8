package cli

import (
	"errors"
	"io"
	"os"
	"strconv"

	"golang.org/x/term"

	"github.com/albertocavalcante/amdpack/internal/amd/amderr"
)

// EnvNoColor disables colors when set to any value.
const EnvNoColor = "NO_COLOR"

// ExitCodeError carries a specific exit code out of a command.
type ExitCodeError struct {
	Code int
	Err  error
}

func (e *ExitCodeError) Error() string {
	if e.Err == nil {
		return "exit status " + strconv.Itoa(e.Code)
	}
	return e.Err.Error()
}

func (e *ExitCodeError) Unwrap() error { return e.Err }

// ExitCode maps err to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var ec *ExitCodeError
	if errors.As(err, &ec) {
		return ec.Code
	}
	return ExitError
}

// ColorEnabled reports whether w is a terminal that should get colors.
func ColorEnabled(w io.Writer) bool {
	if _, ok := os.LookupEnv(EnvNoColor); ok {
		return false
	}
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Style wraps text in ANSI escapes when enabled.
type Style struct {
	Enabled bool
}

func (s Style) wrap(code, text string) string {
	if !s.Enabled {
		return text
	}
	return "\x1b[" + code + "m" + text + "\x1b[0m"
}

// Bold renders text in bold.
func (s Style) Bold(text string) string { return s.wrap("1", text) }

// Red renders text in red.
func (s Style) Red(text string) string { return s.wrap("31", text) }

// Yellow renders text in yellow.
func (s Style) Yellow(text string) string { return s.wrap("33", text) }

// Green renders text in green.
func (s Style) Green(text string) string { return s.wrap("32", text) }

// PrintError reports err on w. User errors print their message only; any
// other error prints its full chain.
func PrintError(w io.Writer, prog string, err error, style Style) {
	var ec *ExitCodeError
	if errors.As(err, &ec) && ec.Err == nil {
		return
	}
	if u, ok := amderr.As(err); ok {
		Writef(w, "%s %s\n", style.Red("error:"), u.Msg)
		return
	}
	Writef(w, "%s %s: %v\n", style.Red("error:"), prog, err)
}
