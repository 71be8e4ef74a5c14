package registry

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/inaiurai/gateway/internal/models"
)

//go:embed schemas/*.json
var schemaFS embed.FS

const maxBodyBytes = 64 << 10

// Request/response structs use snake_case JSON.

type providerRequest struct {
	Provider           *string `json:"provider"`
	APIKey             *string `json:"api_key"`
	ModelName          *string `json:"model_name"`
	IsActive           *bool   `json:"is_active"`
	IsFallback         *bool   `json:"is_fallback"`
	RateLimitPerMinute *int    `json:"rate_limit_per_minute"`
}

type ProviderResponse struct {
	ID                 string    `json:"id"`
	Provider           string    `json:"provider"`
	APIKey             string    `json:"api_key"`
	ModelName          string    `json:"model_name"`
	IsActive           bool      `json:"is_active"`
	IsFallback         bool      `json:"is_fallback"`
	RateLimitPerMinute int       `json:"rate_limit_per_minute"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Handler serves the admin provider configuration endpoints. Callers must
// already be authorized as administrators.
type Handler struct {
	svc          Service
	createSchema *jsonschema.Schema
	updateSchema *jsonschema.Schema
	log          *slog.Logger
}

func NewHandler(svc Service, log *slog.Logger) (*Handler, error) {
	if log == nil {
		log = slog.Default()
	}
	createSchema, err := compileSchema("create_provider.json")
	if err != nil {
		return nil, err
	}
	updateSchema, err := compileSchema("update_provider.json")
	if err != nil {
		return nil, err
	}
	return &Handler{svc: svc, createSchema: createSchema, updateSchema: updateSchema, log: log}, nil
}

func compileSchema(name string) (*jsonschema.Schema, error) {
	data, err := schemaFS.ReadFile("schemas/" + name)
	if err != nil {
		return nil, fmt.Errorf("read schema %q: %w", name, err)
	}
	s, err := jsonschema.CompileString("https://inaiurai.dev/schemas/"+name, string(data))
	if err != nil {
		return nil, fmt.Errorf("compile schema %q: %w", name, err)
	}
	return s, nil
}

// GET /api/v1/admin/providers
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.List(r.Context())
	if err != nil {
		h.log.Error("list provider configurations failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list configurations")
		return
	}
	resp := make([]ProviderResponse, 0, len(list))
	for _, c := range list {
		resp = append(resp, toResponse(c))
	}
	writeJSON(w, http.StatusOK, resp)
}

// POST /api/v1/admin/providers
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r, h.createSchema)
	if !ok {
		return
	}
	p := CreateParams{
		Provider:  deref(req.Provider),
		APIKey:    deref(req.APIKey),
		ModelName: deref(req.ModelName),
	}
	if req.IsActive != nil {
		p.IsActive = *req.IsActive
	}
	if req.IsFallback != nil {
		p.IsFallback = *req.IsFallback
	}
	if req.RateLimitPerMinute != nil {
		p.RateLimitPerMinute = *req.RateLimitPerMinute
	}
	c, err := h.svc.Create(r.Context(), p)
	if err != nil {
		h.writeServiceError(w, "create", err)
		return
	}
	writeJSON(w, http.StatusCreated, toResponse(c))
}

// PATCH /api/v1/admin/providers/{id}
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	req, ok := h.decode(w, r, h.updateSchema)
	if !ok {
		return
	}
	c, err := h.svc.Update(r.Context(), id, UpdateParams{
		Provider:           req.Provider,
		APIKey:             req.APIKey,
		ModelName:          req.ModelName,
		IsActive:           req.IsActive,
		IsFallback:         req.IsFallback,
		RateLimitPerMinute: req.RateLimitPerMinute,
	})
	if err != nil {
		h.writeServiceError(w, "update", err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(c))
}

// POST /api/v1/admin/providers/{id}/activate
func (h *Handler) Activate(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	c, err := h.svc.Activate(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, "activate", err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(c))
}

// DELETE /api/v1/admin/providers/{id}
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	if err := h.svc.Delete(r.Context(), id); err != nil {
		h.writeServiceError(w, "delete", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, schema *jsonschema.Schema) (*providerRequest, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return nil, false
	}
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return nil, false
	}
	if err := schema.Validate(doc); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	var req providerRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return nil, false
	}
	return &req, true
}

func (h *Handler) writeServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, "configuration not found")
	case errors.Is(err, ErrInvalidConfig):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.log.Error(op+" provider configuration failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to "+op+" configuration")
	}
}

func toResponse(c *models.ProviderConfiguration) ProviderResponse {
	return ProviderResponse{
		ID:                 c.ID.String(),
		Provider:           c.Provider,
		APIKey:             MaskKey(c.APIKey),
		ModelName:          c.ModelName,
		IsActive:           c.IsActive,
		IsFallback:         c.IsFallback,
		RateLimitPerMinute: c.RateLimitPerMinute,
		CreatedAt:          c.CreatedAt,
		UpdatedAt:          c.UpdatedAt,
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
