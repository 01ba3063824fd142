package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"info", slog.LevelInfo},
		{"debug", slog.LevelDebug},
		{"trace", LevelTrace},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"TRACE", LevelTrace},
		{"Debug", slog.LevelDebug},
		{"unknown", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestValidLevel(t *testing.T) {
	for _, s := range []string{"", "info", "DEBUG", "trace", "warn", "error"} {
		if !ValidLevel(s) {
			t.Errorf("ValidLevel(%q) = false, want true", s)
		}
	}
	for _, s := range []string{"verbose", "fatal"} {
		if ValidLevel(s) {
			t.Errorf("ValidLevel(%q) = true, want false", s)
		}
	}
}

func TestNewLogger_LevelFiltering(t *testing.T) {
	tests := []struct {
		level      string
		logAtDebug bool
		logAtInfo  bool
	}{
		{"info", false, true},
		{"debug", true, true},
		{"trace", true, true},
		{"warn", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewLogger(tt.level, &buf)

			logger.Debug("debug message")
			if got := strings.Contains(buf.String(), "debug message"); got != tt.logAtDebug {
				t.Errorf("debug logged = %v, want %v", got, tt.logAtDebug)
			}

			logger.Info("info message")
			if got := strings.Contains(buf.String(), "info message"); got != tt.logAtInfo {
				t.Errorf("info logged = %v, want %v", got, tt.logAtInfo)
			}
		})
	}
}

func TestNewLogger_TraceLabel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("trace", &buf)

	logger.Log(context.Background(), LevelTrace, "snapshot", "session_id", "s-1")
	out := buf.String()
	if !strings.Contains(out, "level=TRACE") {
		t.Errorf("output %q should label the trace level", out)
	}
	if !strings.Contains(out, "session_id=s-1") {
		t.Errorf("output %q should carry attributes", out)
	}
}

func TestNewJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewJSONLogger("info", &buf)

	logger.Warn("remote sync failed", "session_id", "s-1")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if entry["level"] != "WARN" || entry["msg"] != "remote sync failed" || entry["session_id"] != "s-1" {
		t.Errorf("entry = %v", entry)
	}
}

func TestNew_SelectsFormat(t *testing.T) {
	var text, jsonOut bytes.Buffer
	New("text", "info", &text).Info("state resolved", "source", "remote")
	New("json", "info", &jsonOut).Info("state resolved", "source", "remote")

	if !strings.Contains(text.String(), "source=remote") {
		t.Errorf("text output = %q", text.String())
	}
	var entry map[string]any
	if err := json.Unmarshal(jsonOut.Bytes(), &entry); err != nil {
		t.Fatalf("json output is not JSON: %v (%q)", err, jsonOut.String())
	}
	if entry["source"] != "remote" {
		t.Errorf("entry = %v", entry)
	}
}

func TestValidFormat(t *testing.T) {
	for _, f := range []string{"", "text", "json"} {
		if !ValidFormat(f) {
			t.Errorf("ValidFormat(%q) = false", f)
		}
	}
	if ValidFormat("logfmt") {
		t.Error("ValidFormat(logfmt) = true")
	}
}
