package trace

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	chimw "github.com/go-chi/chi/v5/middleware"

	applog "donations/internal/log"
)

func TestGenerateRequestID(t *testing.T) {
	a, b := GenerateRequestID(), GenerateRequestID()
	if !strings.HasPrefix(a, "req_") || len(a) != len("req_")+16 {
		t.Errorf("unexpected request ID format %q", a)
	}
	if a == b {
		t.Error("request IDs should be unique")
	}
}

func TestMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := applog.New(applog.Config{
		Handler:   slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}),
		Component: applog.ComponentHTTP,
	})
	m := NewMiddleware(logger, func(r *http.Request) string { return "203.0.113.7" })

	var seenID string
	var seenLogger *applog.Logger
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenID = GetRequestID(r.Context())
		seenLogger = applog.FromContext(r.Context(), nil)
		w.WriteHeader(http.StatusNotFound)
		w.WriteHeader(http.StatusOK) // ignored by the status capture
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/progress", nil))

	if seenID == "" || rec.Header().Get(RequestIDHeader) != seenID {
		t.Errorf("request ID %q not echoed, header %q", seenID, rec.Header().Get(RequestIDHeader))
	}
	if seenLogger == nil {
		t.Fatal("no logger stored in request context")
	}

	out := buf.String()
	for _, want := range []string{"HTTP request completed", "status_code=404", "client_ip=203.0.113.7", "request_id=" + seenID} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
	if got := m.GetMetrics().TotalRequests; got != 1 {
		t.Errorf("TotalRequests = %d, want 1", got)
	}
}

func TestMiddlewareReusesChiRequestID(t *testing.T) {
	m := NewMiddleware(applog.Discard(), nil)

	var seenID string
	h := chimw.RequestID(m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenID = GetRequestID(r.Context())
	})))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-Id", "upstream-42")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if seenID != "upstream-42" {
		t.Errorf("request ID = %q, want the upstream one", seenID)
	}
}
