package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/inaiurai/gateway/internal/gateway"
	"github.com/inaiurai/gateway/internal/middleware"
)

// ChatGateway runs one chat turn.
type ChatGateway interface {
	Chat(ctx context.Context, userID uuid.UUID, body []byte) (*gateway.Result, error)
}

// ChatHandler serves POST /chat.
type ChatHandler struct {
	Gateway ChatGateway
	Logger  *slog.Logger
}

type chatResponse struct {
	Response         string `json:"response"`
	RemainingCredits int    `json:"remainingCredits"`
	Success          bool   `json:"success"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// Chat handles POST /chat. The caller identity comes from Authenticate; the
// body is validated by the gateway.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var userID uuid.UUID
	if id, ok := middleware.IdentityFromCtx(r.Context()); ok {
		userID = id.UserID
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "Request body too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid request body"})
		return
	}

	res, err := h.Gateway.Chat(r.Context(), userID, body)
	if err != nil {
		h.writeChatError(w, r, userID, err)
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{
		Response:         res.Response,
		RemainingCredits: res.RemainingCredits,
		Success:          true,
	})
}

func (h *ChatHandler) writeChatError(w http.ResponseWriter, r *http.Request, userID uuid.UUID, err error) {
	var gerr *gateway.Error
	if !errors.As(err, &gerr) {
		gerr = &gateway.Error{Kind: gateway.KindInternal, Message: "Internal server error", Err: err}
	}
	status := chatStatus(gerr.Kind)
	resp := errorResponse{Error: gerr.Message}
	if gerr.Kind == gateway.KindInsufficientCredits {
		resp.Code = "INSUFFICIENT_CREDITS"
	}

	level := slog.LevelInfo
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	h.logger().Log(r.Context(), level, "chat turn failed",
		"user_id", userID,
		"kind", gerr.Kind.String(),
		"state", string(gerr.State),
		"request_id", middleware.RequestIDFromCtx(r.Context()),
		"error", err,
	)
	writeJSON(w, status, resp)
}

func chatStatus(k gateway.Kind) int {
	switch k {
	case gateway.KindInvalidInput:
		return http.StatusBadRequest
	case gateway.KindUnauthenticated:
		return http.StatusUnauthorized
	case gateway.KindAccountNotActive, gateway.KindInsufficientCredits:
		return http.StatusForbidden
	case gateway.KindRateLimited:
		return http.StatusTooManyRequests
	case gateway.KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *ChatHandler) logger() *slog.Logger {
	if h.Logger == nil {
		return slog.Default()
	}
	return h.Logger
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
