// Package cli provides output and exit code helpers for the amdpack command.
package cli

// Exit codes of the amdpack command.
//
// These follow Unix conventions:
//   - 0: Success
//   - 1: General error (bad input, unreadable store, a theme that failed)
//   - 2: Completed with warnings in --strict mode
const (
	// ExitOK indicates successful execution with no issues.
	ExitOK = 0

	// ExitError indicates a fatal error occurred.
	ExitError = 1

	// ExitWarning indicates the build completed but traced modules could
	// not be read, and --strict asked for that to be reported.
	ExitWarning = 2
)
