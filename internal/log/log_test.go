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

func TestLoggerAddsComponent(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: slog.LevelDebug, Component: ComponentWorker, Output: &buf})
	l.Info("hello", "k", "v")
	l.WithComponent(ComponentMirror).Debug("second")

	out := buf.String()
	if !strings.Contains(out, "component=worker") || !strings.Contains(out, "k=v") {
		t.Fatalf("missing fields in %q", out)
	}
	if !strings.Contains(out, "component=mirror") {
		t.Fatalf("expected overridden component in %q", out)
	}
}

func TestMiddlewareAndRequestID(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: slog.LevelInfo, Component: ComponentHTTP, Output: &buf})

	type key struct{}
	h := Middleware(l)(RequestIDMiddleware(func(ctx context.Context) string {
		id, _ := ctx.Value(key{}).(string)
		return id
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		FromContext(r.Context()).InfoContext(r.Context(), "inside")
	})))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(context.WithValue(req.Context(), key{}, "abc-123"))
	h.ServeHTTP(httptest.NewRecorder(), req)

	if !strings.Contains(buf.String(), "request_id=abc-123") {
		t.Fatalf("request id not propagated: %q", buf.String())
	}
}

func TestFromContextFallback(t *testing.T) {
	if FromContext(context.Background()).Component() != "unknown" {
		t.Fatal("expected fallback logger")
	}
}

func TestStructuredLogger(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(New(Config{Level: slog.LevelInfo, Output: &buf}))
	sl.LogTransactionSaved(context.Background(), OpCreate, 1, 7, 1, "-25.90", 2)
	sl.LogError(context.Background(), "boom", errors.New("disk full"), ComponentStorage, OpUpdate, nil)

	out := buf.String()
	for _, want := range []string{"transaction_id=7", "total_amount=-25.90", "component=transaction", "error=\"disk full\"", "component=storage"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in %q", want, out)
		}
	}
}
