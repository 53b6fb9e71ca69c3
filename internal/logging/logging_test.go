package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(&buf, "warn")
	if err != nil {
		t.Fatalf("new failed: %v", err)
	}
	l.Info("hidden")
	l.Warn("segment missing", "name", "intro.sgt")
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info should be filtered at warn level: %q", out)
	}
	if !strings.Contains(out, "segment missing") || !strings.Contains(out, "intro.sgt") {
		t.Fatalf("warn record missing: %q", out)
	}
}

func TestDefaultsAndErrors(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(&buf, "")
	if err != nil {
		t.Fatalf("empty level should default to info: %v", err)
	}
	l.Debug("quiet")
	if buf.Len() != 0 {
		t.Fatalf("debug should be filtered at info level")
	}
	if _, err := New(&buf, "loud"); err == nil {
		t.Fatalf("expected an error for an unknown level")
	}
	Discard().Error("dropped")
}
