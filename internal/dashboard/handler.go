package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/inaiurai/gateway/internal/ledger"
	"github.com/inaiurai/gateway/internal/middleware"
	"github.com/inaiurai/gateway/internal/models"
	"github.com/inaiurai/gateway/internal/repository"
)

const (
	defaultLedgerLimit = 50
	maxLedgerLimit     = 200
	recentUsageLogs    = 50
)

// AccountLedger is the ledger surface used by account and admin endpoints.
type AccountLedger interface {
	Account(ctx context.Context, userID uuid.UUID) (*models.Account, error)
	Adjust(ctx context.Context, userID uuid.UUID, amount int, mode string, adminID *uuid.UUID) (int, error)
	Initialize(ctx context.Context, userID uuid.UUID, email, role string) (*models.Account, bool, error)
}

type AccountStatusSetter interface {
	SetStatus(ctx context.Context, id uuid.UUID, status string) (*models.Account, error)
}

type CreditHistory interface {
	ListByUserID(ctx context.Context, userID uuid.UUID, limit int) ([]*models.CreditLedgerEntry, error)
}

type UsageStatsReader interface {
	Stats(ctx context.Context, recent int) (*models.UsageStats, error)
}

type Handler struct {
	ledger   AccountLedger
	accounts AccountStatusSetter
	credits  CreditHistory
	usage    UsageStatsReader
	log      *slog.Logger
}

func NewHandler(
	ledger AccountLedger,
	accounts AccountStatusSetter,
	credits CreditHistory,
	usage UsageStatsReader,
	log *slog.Logger,
) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		ledger:   ledger,
		accounts: accounts,
		credits:  credits,
		usage:    usage,
		log:      log,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func pathUserID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user ID")
		return uuid.Nil, false
	}
	return id, true
}

// GET /api/v1/account/me
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFromCtx(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	acc, err := h.ledger.Account(r.Context(), id.UserID)
	if errors.Is(err, ledger.ErrAccountNotFound) {
		writeError(w, http.StatusNotFound, "account not found")
		return
	}
	if err != nil {
		h.log.Error("get account failed", "user_id", id.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, acc)
}

// POST /api/v1/credits/initialize
func (h *Handler) InitializeCredits(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFromCtx(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	acc, created, err := h.ledger.Initialize(r.Context(), id.UserID, id.Email, id.Role)
	if err != nil {
		h.log.Error("initialize credits failed", "user_id", id.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to initialize credits")
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
		h.log.Info("account initialized", "user_id", acc.ID, "credits", acc.Credits)
	}
	writeJSON(w, status, map[string]any{
		"credits": acc.Credits,
		"status":  acc.Status,
		"created": created,
	})
}

// PATCH /api/v1/admin/users/{id}/credits
func (h *Handler) AdjustCredits(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUserID(w, r)
	if !ok {
		return
	}
	var body struct {
		Amount    *int   `json:"amount"`
		Operation string `json:"operation"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Amount == nil {
		writeError(w, http.StatusBadRequest, "amount and operation are required")
		return
	}
	var adminID *uuid.UUID
	if admin, ok := middleware.IdentityFromCtx(r.Context()); ok {
		adminID = &admin.UserID
	}

	balance, err := h.ledger.Adjust(r.Context(), userID, *body.Amount, body.Operation, adminID)
	switch {
	case errors.Is(err, ledger.ErrInvalidAdjustment):
		writeError(w, http.StatusBadRequest, `operation must be "set" or "add"`)
		return
	case errors.Is(err, ledger.ErrAccountNotFound):
		writeError(w, http.StatusNotFound, "account not found")
		return
	case err != nil:
		h.log.Error("adjust credits failed", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "update failed")
		return
	}
	h.log.Info("credits adjusted", "user_id", userID, "admin_id", adminID, "operation", body.Operation, "credits", balance)
	writeJSON(w, http.StatusOK, map[string]any{"userId": userID, "credits": balance})
}

// GET /api/v1/admin/users/{id}/credit-ledger
func (h *Handler) ListCreditLedger(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUserID(w, r)
	if !ok {
		return
	}
	limit := defaultLedgerLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(n, maxLedgerLimit)
	}
	entries, err := h.credits.ListByUserID(r.Context(), userID, limit)
	if err != nil {
		h.log.Error("list credit ledger failed", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if entries == nil {
		entries = []*models.CreditLedgerEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// PATCH /api/v1/admin/users/{id}/status
func (h *Handler) SetStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUserID(w, r)
	if !ok {
		return
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || !models.ValidAccountStatus(body.Status) {
		writeError(w, http.StatusBadRequest, "status must be one of active, suspended, banned")
		return
	}
	acc, err := h.accounts.SetStatus(r.Context(), userID, body.Status)
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, "account not found")
		return
	}
	if err != nil {
		h.log.Error("set account status failed", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "update failed")
		return
	}
	writeJSON(w, http.StatusOK, acc)
}

// GET /api/v1/admin/ai-stats
func (h *Handler) UsageStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.usage.Stats(r.Context(), recentUsageLogs)
	if err != nil {
		h.log.Error("usage stats failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
