// Package logging builds the zerolog logger of the amdpack command.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// EnvLevel overrides the default console level.
const EnvLevel = "AMDPACK_LOG_LEVEL"

// DefaultLevel is the console level when none is given.
const DefaultLevel = zerolog.WarnLevel

// Options configures New.
type Options struct {
	// Level is the console level name; empty uses EnvLevel, then DefaultLevel.
	Level string
	// Console receives human-readable output, usually os.Stderr.
	Console io.Writer
	// Color enables ANSI colors on the console.
	Color bool
	// TraceDir, when set, also receives every event at trace level as JSON
	// in amdpack-trace-<unix>.log.
	TraceDir string
	// Now is the clock used for the trace file name.
	Now func() time.Time
}

// Logger is a configured logger and the resources behind it.
type Logger struct {
	zerolog.Logger
	// TracePath is the trace file, if one was opened.
	TracePath string
	trace     *os.File
}

// Close flushes and closes the trace file.
func (l *Logger) Close() error {
	if l.trace == nil {
		return nil
	}
	return l.trace.Close()
}

// ParseLevel parses a level name, case-insensitively.
func ParseLevel(s string) (zerolog.Level, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.NoLevel, fmt.Errorf("invalid log level %q (valid: trace, debug, info, warn, error, disabled)", s)
	}
	return lvl, nil
}

// New creates the logger described by opts.
func New(opts Options) (*Logger, error) {
	name := opts.Level
	if name == "" {
		name = os.Getenv(EnvLevel)
	}
	level := DefaultLevel
	if name != "" {
		var err error
		if level, err = ParseLevel(name); err != nil {
			return nil, err
		}
	}

	console := opts.Console
	if console == nil {
		console = io.Discard
	}
	var writers []io.Writer
	writers = append(writers, &levelWriter{
		min: level,
		w: zerolog.ConsoleWriter{
			Out:        console,
			NoColor:    !opts.Color,
			TimeFormat: time.Kitchen,
		},
	})

	out := &Logger{}
	loggerLevel := level
	if opts.TraceDir != "" {
		now := time.Now
		if opts.Now != nil {
			now = opts.Now
		}
		out.TracePath = filepath.Join(opts.TraceDir, fmt.Sprintf("amdpack-trace-%d.log", now().Unix()))
		f, err := os.Create(out.TracePath)
		if err != nil {
			return nil, fmt.Errorf("creating trace file: %w", err)
		}
		out.trace = f
		writers = append(writers, f)
		loggerLevel = zerolog.TraceLevel
	}

	out.Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(loggerLevel).
		With().Timestamp().Logger()
	return out, nil
}

// levelWriter drops events below min, so the console can stay quieter than
// the trace file.
type levelWriter struct {
	min zerolog.Level
	w   io.Writer
}

func (lw *levelWriter) Write(p []byte) (int, error) {
	return lw.w.Write(p)
}

func (lw *levelWriter) WriteLevel(l zerolog.Level, p []byte) (int, error) {
	if l < lw.min {
		return len(p), nil
	}
	return lw.w.Write(p)
}
