package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/inaiurai/gateway/internal/models"
)

type UsageRepo struct {
	pool *pgxpool.Pool
}

func NewUsageRepo(pool *pgxpool.Pool) *UsageRepo {
	return &UsageRepo{pool: pool}
}

// Create appends a usage record. Inserting the same id twice is a no-op so
// retried queue jobs do not double count.
func (r *UsageRepo) Create(ctx context.Context, u *models.UsageRecord) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO ai_usage_logs (id, user_id, agent_id, model, prompt_tokens, completion_tokens, credits_used, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
	`, u.ID, u.UserID, u.AgentID, u.Model, u.PromptTokens, u.CompletionTokens, u.CreditsUsed, u.CreatedAt)
	return err
}

// Stats aggregates all usage and returns the most recent records.
func (r *UsageRepo) Stats(ctx context.Context, recent int) (*models.UsageStats, error) {
	stats := &models.UsageStats{Logs: []*models.UsageRecord{}}
	err := r.pool.QueryRow(ctx, `
		SELECT count(*),
		       COALESCE(sum(prompt_tokens + completion_tokens), 0),
		       COALESCE(sum(credits_used), 0)
		FROM ai_usage_logs
	`).Scan(&stats.TotalRequests, &stats.TotalTokens, &stats.TotalCredits)
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, agent_id, model, prompt_tokens, completion_tokens, credits_used, created_at
		FROM ai_usage_logs ORDER BY created_at DESC LIMIT $1
	`, recent)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var u models.UsageRecord
		if err := rows.Scan(&u.ID, &u.UserID, &u.AgentID, &u.Model, &u.PromptTokens, &u.CompletionTokens, &u.CreditsUsed, &u.CreatedAt); err != nil {
			return nil, err
		}
		stats.Logs = append(stats.Logs, &u)
	}
	return stats, rows.Err()
}
