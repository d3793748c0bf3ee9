package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/sensei-edu/sensei-api/internal/config"
)

func TestParseLogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for raw, want := range cases {
		if got := ParseLogLevel(raw); got != want {
			t.Fatalf("ParseLogLevel(%q)=%v want %v", raw, got, want)
		}
	}
}

func TestNewLoggerWritesJSONWithService(t *testing.T) {
	var buf bytes.Buffer
	logger, lp, err := NewLogger(context.Background(), &config.Config{LogLevel: "info", OTELServiceName: "sensei-api"}, &buf)
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	if lp != nil {
		t.Fatal("expected no logger provider when otel logs are disabled")
	}
	logger.Debug("hidden")
	Audit(context.Background(), logger, AuditEvent{Action: "update", Module: "teacher-session", Actor: "anonymous", Outcome: "error"})

	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("expected exactly one json line, got %q: %v", buf.String(), err)
	}
	if line["msg"] != "audit" || line["service"] != "sensei-api" || line["actor"] != "anonymous" {
		t.Fatalf("unexpected audit line: %v", line)
	}
}

func TestFanoutHandlerDeliversToEveryHandler(t *testing.T) {
	var a, b bytes.Buffer
	h := fanoutHandler{handlers: []slog.Handler{
		slog.NewJSONHandler(&a, nil),
		slog.NewTextHandler(&b, nil),
	}}
	slog.New(h).With("k", "v").Info("hello")
	if a.Len() == 0 || b.Len() == 0 {
		t.Fatalf("expected both handlers to receive the record: json=%q text=%q", a.String(), b.String())
	}
}
