package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/inaiurai/gateway/internal/auth"
	"github.com/inaiurai/gateway/internal/models"
)

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

type stubValidator struct {
	id  auth.Identity
	err error
	got string
}

func (s *stubValidator) ValidateToken(_ context.Context, token string) (auth.Identity, error) {
	s.got = token
	return s.id, s.err
}

// okHandler writes 200 and the caller email (for assertions).
var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	if id, ok := IdentityFromCtx(r.Context()); ok {
		w.Write([]byte(id.Email))
	}
})

// ---------------------------------------------------------------------------
// Authenticate / RequireAdmin
// ---------------------------------------------------------------------------

func TestAuthenticate_ValidToken(t *testing.T) {
	v := &stubValidator{id: auth.Identity{UserID: uuid.New(), Email: "test@example.com", Role: models.RoleUser}}
	mw := Authenticate(v)(okHandler)

	req := httptest.NewRequest(http.MethodPost, "/chat", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if v.got != "good-token" {
		t.Errorf("validator saw %q", v.got)
	}
	if body := rec.Body.String(); body != "test@example.com" {
		t.Errorf("expected identity email in body, got %q", body)
	}
}

func TestAuthenticate_MissingHeader(t *testing.T) {
	mw := Authenticate(&stubValidator{})(okHandler)
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/chat", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestAuthenticate_InvalidToken(t *testing.T) {
	mw := Authenticate(&stubValidator{err: auth.ErrInvalidToken})(okHandler)
	req := httptest.NewRequest(http.MethodPost, "/chat", nil)
	req.Header.Set("Authorization", "Bearer nope")
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body["error"] != "Unauthorized" {
		t.Errorf("unexpected body %q", rec.Body.String())
	}
}

func TestRequireAdmin(t *testing.T) {
	tests := []struct {
		name string
		ctx  func(context.Context) context.Context
		want int
	}{
		{"no identity", func(c context.Context) context.Context { return c }, http.StatusUnauthorized},
		{"user", func(c context.Context) context.Context {
			return WithIdentity(c, auth.Identity{UserID: uuid.New(), Role: models.RoleUser})
		}, http.StatusForbidden},
		{"admin", func(c context.Context) context.Context {
			return WithIdentity(c, auth.Identity{UserID: uuid.New(), Role: models.RoleAdmin})
		}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/providers", nil)
			req = req.WithContext(tt.ctx(req.Context()))
			rec := httptest.NewRecorder()
			RequireAdmin(okHandler).ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, rec.Code)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Request id / request log / body limit
// ---------------------------------------------------------------------------

func TestWithRequestID(t *testing.T) {
	var seen string
	h := WithRequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromCtx(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-Id", "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if seen != "abc-123" || rec.Header().Get("X-Request-Id") != "abc-123" {
		t.Errorf("expected propagated id, got ctx=%q header=%q", seen, rec.Header().Get("X-Request-Id"))
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if _, err := uuid.Parse(seen); err != nil {
		t.Errorf("expected generated uuid, got %q", seen)
	}
}

func TestWithRequestLog(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))
	h := WithRequestID(WithRequestLog(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})))

	req := httptest.NewRequest(http.MethodPost, "/chat", nil)
	req.Header.Set("X-Request-Id", "rid-1")
	h.ServeHTTP(httptest.NewRecorder(), req)

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("log line is not json: %q", buf.String())
	}
	if line["msg"] != "http_request" || line["path"] != "/chat" || line["request_id"] != "rid-1" {
		t.Errorf("unexpected log line: %v", line)
	}
	if status, _ := line["status"].(float64); status != http.StatusTeapot {
		t.Errorf("status: got %v", line["status"])
	}
}

func TestLimitBody(t *testing.T) {
	var readErr error
	h := LimitBody(8)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, readErr = io.ReadAll(r.Body)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(strings.Repeat("x", 64))))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("declared length: expected 413, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/chat", io.NopCloser(strings.NewReader(strings.Repeat("x", 64))))
	req.ContentLength = -1
	h.ServeHTTP(httptest.NewRecorder(), req)
	var maxErr *http.MaxBytesError
	if !errors.As(readErr, &maxErr) {
		t.Fatalf("streamed body: expected MaxBytesError, got %v", readErr)
	}
}
