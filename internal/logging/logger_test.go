package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{" warn ", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"verbose", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNew_JSONFormatAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "warn", "json")

	logger.Info("hidden")
	logger.Warn("job failed", "job_id", "abc")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %q", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry["msg"] != "job failed" || entry["job_id"] != "abc" {
		t.Errorf("got %v, want msg and job_id", entry)
	}
}

func TestNew_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, "info", "text").Info("hello", "rows", 3)
	if !strings.Contains(buf.String(), "msg=hello") || !strings.Contains(buf.String(), "rows=3") {
		t.Errorf("got %q, want text key=value output", buf.String())
	}
}

func TestWithRequest_AddsRequestID(t *testing.T) {
	var buf bytes.Buffer
	base := New(&buf, "info", "text")
	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-42")

	WithRequest(ctx, base).Info("tagged")
	WithRequest(context.Background(), base).Info("plain")

	out := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(out) != 2 {
		t.Fatalf("got %d lines, want 2", len(out))
	}
	if !strings.Contains(out[0], "request_id=req-42") {
		t.Errorf("got %q, want request_id", out[0])
	}
	if strings.Contains(out[1], "request_id") {
		t.Errorf("got %q, want no request_id", out[1])
	}
}

func TestSetup_InstallsDefault(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	Setup(&buf, "debug", "text")
	ForJob(context.Background(), "job-1", "inventario.csv").Debug("started")

	if !strings.Contains(buf.String(), "job_id=job-1") || !strings.Contains(buf.String(), "file=inventario.csv") {
		t.Errorf("got %q, want job fields on the default logger", buf.String())
	}
}
