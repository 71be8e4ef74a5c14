package router

import (
	"net/http"

	"github.com/inaiurai/gateway/internal/dashboard"
	"github.com/inaiurai/gateway/internal/handlers"
	"github.com/inaiurai/gateway/internal/middleware"
	"github.com/inaiurai/gateway/internal/registry"
)

// DefaultMaxBodyBytes bounds /chat bodies: 50 history items of 10k
// characters plus the message and system prompt, with room for escaping.
const DefaultMaxBodyBytes = 4 << 20

type Handlers struct {
	Chat         *handlers.ChatHandler
	Dashboard    *dashboard.Handler
	Providers    *registry.Handler
	Tokens       middleware.TokenValidator
	MaxBodyBytes int64
}

// New returns the API handler. Every route except /healthz requires a
// bearer token; /api/v1/admin routes also require the admin role.
func New(h Handlers) http.Handler {
	maxBody := h.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}
	authed := middleware.Authenticate(h.Tokens)
	admin := func(fn http.HandlerFunc) http.Handler {
		return authed(middleware.RequireAdmin(fn))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	mux.Handle("POST /chat", authed(middleware.LimitBody(maxBody)(http.HandlerFunc(h.Chat.Chat))))

	base := "/api/v1"
	mux.Handle("GET "+base+"/account/me", authed(http.HandlerFunc(h.Dashboard.GetMe)))
	mux.Handle("POST "+base+"/credits/initialize", authed(http.HandlerFunc(h.Dashboard.InitializeCredits)))

	mux.Handle("PATCH "+base+"/admin/users/{id}/credits", admin(h.Dashboard.AdjustCredits))
	mux.Handle("GET "+base+"/admin/users/{id}/credit-ledger", admin(h.Dashboard.ListCreditLedger))
	mux.Handle("PATCH "+base+"/admin/users/{id}/status", admin(h.Dashboard.SetStatus))
	mux.Handle("GET "+base+"/admin/ai-stats", admin(h.Dashboard.UsageStats))

	mux.Handle("GET "+base+"/admin/providers", admin(h.Providers.List))
	mux.Handle("POST "+base+"/admin/providers", admin(h.Providers.Create))
	mux.Handle("PATCH "+base+"/admin/providers/{id}", admin(h.Providers.Update))
	mux.Handle("POST "+base+"/admin/providers/{id}/activate", admin(h.Providers.Activate))
	mux.Handle("DELETE "+base+"/admin/providers/{id}", admin(h.Providers.Delete))

	return mux
}
