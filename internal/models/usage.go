package models

import (
	"time"

	"github.com/google/uuid"
)

// UsageRecord is an append-only record of one answered chat turn.
type UsageRecord struct {
	ID               uuid.UUID `json:"id"`
	UserID           uuid.UUID `json:"user_id"`
	AgentID          string    `json:"agent_id"`
	Model            string    `json:"model"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	CreditsUsed      int       `json:"credits_used"`
	CreatedAt        time.Time `json:"created_at"`
}

// UsageStats aggregates usage records for the admin view.
type UsageStats struct {
	TotalRequests int64          `json:"totalRequests"`
	TotalTokens   int64          `json:"totalTokens"`
	TotalCredits  int64          `json:"totalCredits"`
	Logs          []*UsageRecord `json:"logs"`
}
