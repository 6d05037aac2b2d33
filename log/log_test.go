package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

// newTestLogger returns a Logger that writes JSON into buf.
func newTestLogger(buf *bytes.Buffer, level slog.Level) *Logger {
	h := slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: level})
	return NewWithHandler(h)
}

func TestLogger_Module(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(&buf, slog.LevelDebug)
	child := l.Module("pipeline")

	child.Info("hello")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal: %v (raw: %s)", err, buf.String())
	}

	if entry["module"] != "pipeline" {
		t.Fatalf("module = %v, want %q", entry["module"], "pipeline")
	}
	if entry["msg"] != "hello" {
		t.Fatalf("msg = %v, want %q", entry["msg"], "hello")
	}
}

func TestLogger_ModuleChain(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(&buf, slog.LevelDebug)
	child := l.Module("chain").With("token", "EMN")

	child.Info("fetched")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal: %v (raw: %s)", err, buf.String())
	}

	if entry["module"] != "chain" {
		t.Fatalf("module = %v, want %q", entry["module"], "chain")
	}
	if entry["token"] != "EMN" {
		t.Fatalf("token = %v, want %q", entry["token"], "EMN")
	}
}

func TestLogger_Levels(t *testing.T) {
	tests := []struct {
		name   string
		level  slog.Level
		logFn  func(l *Logger)
		expect bool
	}{
		{"debug suppressed at info", slog.LevelInfo, func(l *Logger) { l.Debug("m") }, false},
		{"info emitted at info", slog.LevelInfo, func(l *Logger) { l.Info("m") }, true},
		{"warn suppressed at error", slog.LevelError, func(l *Logger) { l.Warn("m") }, false},
		{"error always emitted", slog.LevelError, func(l *Logger) { l.Error("m") }, true},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		l := newTestLogger(&buf, tt.level)
		tt.logFn(l)
		if got := buf.Len() > 0; got != tt.expect {
			t.Errorf("%s: emitted = %v, want %v", tt.name, got, tt.expect)
		}
	}
}

func TestVerbosityLevel(t *testing.T) {
	tests := []struct {
		v    int
		want slog.Level
	}{
		{0, slog.LevelError},
		{1, slog.LevelWarn},
		{2, slog.LevelInfo},
		{3, slog.LevelInfo},
		{4, slog.LevelDebug},
		{9, slog.LevelDebug},
	}
	for _, tt := range tests {
		if got := VerbosityLevel(tt.v); got != tt.want {
			t.Errorf("VerbosityLevel(%d) = %v, want %v", tt.v, got, tt.want)
		}
	}
}

func TestSetDefault(t *testing.T) {
	orig := Default()
	defer SetDefault(orig)

	var buf bytes.Buffer
	SetDefault(newTestLogger(&buf, slog.LevelDebug))
	Info("via default")

	if buf.Len() == 0 {
		t.Fatal("default logger did not receive message")
	}
	// SetDefault(nil) must keep the current logger.
	SetDefault(nil)
	if Default() == nil {
		t.Fatal("SetDefault(nil) cleared the default logger")
	}
}
