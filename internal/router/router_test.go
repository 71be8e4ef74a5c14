package router

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/inaiurai/gateway/internal/auth"
	"github.com/inaiurai/gateway/internal/dashboard"
	"github.com/inaiurai/gateway/internal/gateway"
	"github.com/inaiurai/gateway/internal/handlers"
	"github.com/inaiurai/gateway/internal/models"
	"github.com/inaiurai/gateway/internal/registry"
)

type tokenTable map[string]auth.Identity

func (t tokenTable) ValidateToken(_ context.Context, token string) (auth.Identity, error) {
	id, ok := t[token]
	if !ok {
		return auth.Identity{}, auth.ErrInvalidToken
	}
	return id, nil
}

type echoGateway struct{ calls int }

func (g *echoGateway) Chat(_ context.Context, _ uuid.UUID, _ []byte) (*gateway.Result, error) {
	g.calls++
	return &gateway.Result{Response: "ok", RemainingCredits: 1}, nil
}

func newTestRouter(t *testing.T) (http.Handler, *echoGateway) {
	t.Helper()
	discard := slog.New(slog.NewTextHandler(io.Discard, nil))
	providers, err := registry.NewHandler(nil, discard)
	if err != nil {
		t.Fatalf("registry handler: %v", err)
	}
	gw := &echoGateway{}
	return New(Handlers{
		Chat:      &handlers.ChatHandler{Gateway: gw, Logger: discard},
		Dashboard: dashboard.NewHandler(nil, nil, nil, nil, discard),
		Providers: providers,
		Tokens: tokenTable{
			"user-token":  {UserID: uuid.New(), Role: models.RoleUser},
			"admin-token": {UserID: uuid.New(), Role: models.RoleAdmin},
		},
	}), gw
}

func TestRoutes(t *testing.T) {
	h, gw := newTestRouter(t)

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		want   int
	}{
		{"health", http.MethodGet, "/healthz", "", http.StatusOK},
		{"chat needs token", http.MethodPost, "/chat", "", http.StatusUnauthorized},
		{"chat bad token", http.MethodPost, "/chat", "forged", http.StatusUnauthorized},
		{"chat", http.MethodPost, "/chat", "user-token", http.StatusOK},
		{"chat wrong method", http.MethodGet, "/chat", "user-token", http.StatusMethodNotAllowed},
		{"admin as user", http.MethodGet, "/api/v1/admin/providers", "user-token", http.StatusForbidden},
		{"admin stats as user", http.MethodGet, "/api/v1/admin/ai-stats", "user-token", http.StatusForbidden},
		{"admin credits without token", http.MethodPatch, "/api/v1/admin/users/" + uuid.NewString() + "/credits", "", http.StatusUnauthorized},
		{"admin bad provider id", http.MethodPost, "/api/v1/admin/providers/nope/activate", "admin-token", http.StatusBadRequest},
		{"unknown", http.MethodGet, "/nope", "user-token", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(`{}`))
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("%s %s: expected %d, got %d: %s", tt.method, tt.path, tt.want, rec.Code, rec.Body.String())
			}
		})
	}
	if gw.calls != 1 {
		t.Errorf("gateway calls: got %d, want 1", gw.calls)
	}
}
