package log

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newBufferLogger(buf *bytes.Buffer) *Logger {
	return New(Config{Level: slog.LevelDebug, Component: ComponentDrive, Output: buf})
}

func TestLoggerTagsComponent(t *testing.T) {
	var buf bytes.Buffer
	l := newBufferLogger(&buf)

	l.Info("pushed", FieldReason, "budget_updated")
	out := buf.String()
	if !strings.Contains(out, "component=drive") || !strings.Contains(out, "reason=budget_updated") {
		t.Errorf("log line = %q", out)
	}

	buf.Reset()
	l.WithComponent(ComponentAuth).Warn("denied")
	if out := buf.String(); !strings.Contains(out, "component=auth") || strings.Contains(out, "component=drive") {
		t.Errorf("log line = %q", out)
	}
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	l := newBufferLogger(&buf)

	var got *Logger
	h := Middleware(l)(ComponentMiddleware(ComponentHTTP)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = FromContext(r.Context())
	})))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if got == nil || got.Component() != ComponentHTTP {
		t.Fatalf("FromContext component = %v", got)
	}

	if FromContext(context.Background()).Component() != "unknown" {
		t.Error("fallback logger should be tagged unknown")
	}
}

func TestLogHTTPEndLevel(t *testing.T) {
	tests := []struct {
		status int
		level  string
	}{
		{200, "level=INFO"},
		{404, "level=WARN"},
		{502, "level=ERROR"},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		sl := NewStructuredLogger(newBufferLogger(&buf))
		sl.LogHTTPEnd(context.Background(), httptest.NewRequest(http.MethodGet, "/api/state", nil), tt.status, 3, "127.0.0.1")
		if out := buf.String(); !strings.Contains(out, tt.level) || !strings.Contains(out, "component=http") {
			t.Errorf("status %d: log line = %q", tt.status, out)
		}
	}
}

func TestLogError(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(newBufferLogger(&buf))
	sl.LogError(context.Background(), "push failed", errors.New("quota"), ComponentDrive, OpPush, nil)
	out := buf.String()
	if !strings.Contains(out, "error=quota") || !strings.Contains(out, "operation=push") {
		t.Errorf("log line = %q", out)
	}
}
