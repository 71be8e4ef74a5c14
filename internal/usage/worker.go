// Package usage records per-turn token usage through the River job queue so
// that a recording failure never touches the request path.
package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"

	"github.com/inaiurai/gateway/internal/models"
)

type RecordUsageArgs struct {
	ID               uuid.UUID `json:"id"`
	UserID           uuid.UUID `json:"user_id"`
	AgentID          string    `json:"agent_id"`
	Model            string    `json:"model"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	CreditsUsed      int       `json:"credits_used"`
	CreatedAt        time.Time `json:"created_at"`
}

func (RecordUsageArgs) Kind() string { return "record_usage" }

func argsFromRecord(u models.UsageRecord) RecordUsageArgs {
	return RecordUsageArgs{
		ID:               u.ID,
		UserID:           u.UserID,
		AgentID:          u.AgentID,
		Model:            u.Model,
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		CreditsUsed:      u.CreditsUsed,
		CreatedAt:        u.CreatedAt,
	}
}

func (a RecordUsageArgs) record() *models.UsageRecord {
	return &models.UsageRecord{
		ID:               a.ID,
		UserID:           a.UserID,
		AgentID:          a.AgentID,
		Model:            a.Model,
		PromptTokens:     a.PromptTokens,
		CompletionTokens: a.CompletionTokens,
		CreditsUsed:      a.CreditsUsed,
		CreatedAt:        a.CreatedAt,
	}
}

// Store is the append-only usage sink.
type Store interface {
	Create(ctx context.Context, u *models.UsageRecord) error
}

// RecordUsageWorker writes queued usage records. Failed writes are returned
// so River retries them; the record id makes retries idempotent.
type RecordUsageWorker struct {
	river.WorkerDefaults[RecordUsageArgs]
	store Store
}

func NewRecordUsageWorker(store Store) *RecordUsageWorker {
	return &RecordUsageWorker{store: store}
}

func (w *RecordUsageWorker) Work(ctx context.Context, job *river.Job[RecordUsageArgs]) error {
	if err := w.store.Create(ctx, job.Args.record()); err != nil {
		return fmt.Errorf("store usage record %s: %w", job.Args.ID, err)
	}
	return nil
}
