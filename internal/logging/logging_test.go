package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zerolog.Level
		wantErr bool
	}{
		{in: "trace", want: zerolog.TraceLevel},
		{in: "WARN", want: zerolog.WarnLevel},
		{in: " info ", want: zerolog.InfoLevel},
		{in: "disabled", want: zerolog.Disabled},
		{in: "loud", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if err == nil && got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNewConsoleLevel(t *testing.T) {
	t.Setenv(EnvLevel, "")
	var buf bytes.Buffer
	l, err := New(Options{Level: "info", Console: &buf})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer l.Close()

	l.Debug().Msg("hidden")
	l.Info().Str("theme", "Magento/luma").Msg("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("console got a debug event:\n%s", out)
	}
	if !strings.Contains(out, "shown") || !strings.Contains(out, "Magento/luma") {
		t.Errorf("console missing info event:\n%s", out)
	}
	if strings.Contains(out, "\x1b[") {
		t.Errorf("console output is colored:\n%s", out)
	}
}

func TestNewEnvLevel(t *testing.T) {
	t.Setenv(EnvLevel, "error")
	var buf bytes.Buffer
	l, err := New(Options{Console: &buf})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	l.Warn().Msg("quiet")
	if buf.Len() != 0 {
		t.Errorf("console got a warning at error level:\n%s", buf.String())
	}

	t.Setenv(EnvLevel, "nope")
	if _, err := New(Options{}); err == nil {
		t.Error("New() with an invalid env level succeeded")
	}
}

func TestNewTraceFile(t *testing.T) {
	t.Setenv(EnvLevel, "")
	dir := t.TempDir()
	var buf bytes.Buffer
	l, err := New(Options{
		Console:  &buf,
		TraceDir: dir,
		Now:      func() time.Time { return time.Unix(1700000000, 0) },
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	l.Trace().Str("module", "main").Msg("analyzing module")
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}

	if want := filepath.Join(dir, "amdpack-trace-1700000000.log"); l.TracePath != want {
		t.Errorf("TracePath = %q, want %q", l.TracePath, want)
	}
	data, err := os.ReadFile(l.TracePath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"module":"main"`) || !strings.Contains(string(data), `"level":"trace"`) {
		t.Errorf("trace file = %s", data)
	}
	if buf.Len() != 0 {
		t.Errorf("console got a trace event:\n%s", buf.String())
	}
}
