package log

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestLevelsAndFormatting(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel(LevelInfo)
	t.Cleanup(func() { _ = Configure(Options{Level: LevelInfo}) })

	Debug("hidden", "k", "v")
	Info("captured text", "source", "https://example.edu/syllabus", "count", 2)
	Error("scan failed", errors.New("boom"), "title", "Quiz 3 due")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug line should be filtered at INFO: %s", out)
	}
	if !strings.Contains(out, "[INFO] captured text source=https://example.edu/syllabus count=2") {
		t.Errorf("info line missing or malformed: %s", out)
	}
	if !strings.Contains(out, `[ERROR] scan failed err=boom title="Quiz 3 due"`) {
		t.Errorf("error line missing or malformed: %s", out)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"debug": LevelDebug,
		"INFO":  LevelInfo,
		"Error": LevelError,
		"":      LevelInfo,
		"loud":  LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %q, want %q", in, got, want)
		}
	}
}
