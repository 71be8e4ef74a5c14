package models

import (
	"time"

	"github.com/google/uuid"
)

// Supported upstream vendors.
const (
	ProviderGemini     = "gemini"
	ProviderOpenAI     = "openai"
	ProviderOpenRouter = "openrouter"
)

// ValidProvider reports whether p is a supported vendor.
func ValidProvider(p string) bool {
	switch p {
	case ProviderGemini, ProviderOpenAI, ProviderOpenRouter:
		return true
	}
	return false
}

// ProviderConfiguration is one administrator-managed upstream setting.
// At most one row has IsActive set.
type ProviderConfiguration struct {
	ID                 uuid.UUID `json:"id"`
	Provider           string    `json:"provider"`
	APIKey             string    `json:"-"`
	ModelName          string    `json:"model_name"`
	IsActive           bool      `json:"is_active"`
	IsFallback         bool      `json:"is_fallback"`
	RateLimitPerMinute int       `json:"rate_limit_per_minute"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// ProviderChoice is the resolved provider, key and model used for one turn.
type ProviderChoice struct {
	Provider  string
	APIKey    string
	ModelName string
	// Source is "database" or "environment".
	Source string
}
