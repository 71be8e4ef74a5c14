package registry

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/inaiurai/gateway/internal/models"
)

// exclusion_violation: a concurrent activation committed first.
const pgExclusionViolation = "23P01"

const maxActivateAttempts = 3

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ Store = (*Repository)(nil)

const configColumns = `id, provider, api_key, model_name, is_active, is_fallback, rate_limit_per_minute, created_at, updated_at`

func scanConfig(row pgx.Row) (*models.ProviderConfiguration, error) {
	var c models.ProviderConfiguration
	err := row.Scan(&c.ID, &c.Provider, &c.APIKey, &c.ModelName, &c.IsActive, &c.IsFallback, &c.RateLimitPerMinute, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *Repository) GetActive(ctx context.Context) (*models.ProviderConfiguration, error) {
	return scanConfig(r.pool.QueryRow(ctx, `SELECT `+configColumns+` FROM provider_configurations WHERE is_active LIMIT 1`))
}

func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*models.ProviderConfiguration, error) {
	return scanConfig(r.pool.QueryRow(ctx, `SELECT `+configColumns+` FROM provider_configurations WHERE id = $1`, id))
}

func (r *Repository) List(ctx context.Context) ([]*models.ProviderConfiguration, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+configColumns+` FROM provider_configurations ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.ProviderConfiguration
	for rows.Next() {
		c, err := scanConfig(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, c)
	}
	return list, rows.Err()
}

// Create inserts c. When c.IsActive is set, the previously active row is
// cleared in the same statement.
func (r *Repository) Create(ctx context.Context, c *models.ProviderConfiguration) error {
	return r.withActivationRetry(ctx, func() error {
		return r.pool.QueryRow(ctx, `
			WITH cleared AS (
				UPDATE provider_configurations SET is_active = FALSE, updated_at = now()
				WHERE is_active AND $5::boolean
			)
			INSERT INTO provider_configurations (id, provider, api_key, model_name, is_active, is_fallback, rate_limit_per_minute)
			VALUES ($1, $2, $3, $4, $5::boolean, $6, $7)
			RETURNING created_at, updated_at
		`, c.ID, c.Provider, c.APIKey, c.ModelName, c.IsActive, c.IsFallback, c.RateLimitPerMinute).Scan(&c.CreatedAt, &c.UpdatedAt)
	})
}

// Update changes the non-nil fields. Activation goes through the same single
// statement as Activate, inside one transaction with the field update.
func (r *Repository) Update(ctx context.Context, id uuid.UUID, p UpdateParams) (*models.ProviderConfiguration, error) {
	var out *models.ProviderConfiguration
	err := r.withActivationRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return err
		}
		defer tx.Rollback(ctx)

		c, err := scanConfig(tx.QueryRow(ctx, `
			UPDATE provider_configurations SET
				provider = COALESCE($2, provider),
				api_key = COALESCE($3, api_key),
				model_name = COALESCE($4, model_name),
				is_fallback = COALESCE($5, is_fallback),
				rate_limit_per_minute = COALESCE($6, rate_limit_per_minute),
				updated_at = now()
			WHERE id = $1
			RETURNING `+configColumns,
			id, p.Provider, p.APIKey, p.ModelName, p.IsFallback, p.RateLimitPerMinute))
		if err != nil {
			return err
		}
		if p.IsActive != nil {
			if *p.IsActive {
				c, err = activate(ctx, tx, id)
			} else {
				c, err = scanConfig(tx.QueryRow(ctx, `
					UPDATE provider_configurations SET is_active = FALSE, updated_at = now()
					WHERE id = $1
					RETURNING `+configColumns, id))
			}
			if err != nil {
				return err
			}
		}
		if err := tx.Commit(ctx); err != nil {
			return err
		}
		out = c
		return nil
	})
	return out, err
}

// Activate makes id the only active configuration with one statement.
func (r *Repository) Activate(ctx context.Context, id uuid.UUID) (*models.ProviderConfiguration, error) {
	var out *models.ProviderConfiguration
	err := r.withActivationRetry(ctx, func() error {
		c, err := activate(ctx, r.pool, id)
		out = c
		return err
	})
	return out, err
}

func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM provider_configurations WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// activate flips is_active to (id = target) on the target and the currently
// active row. The EXISTS guard keeps the active row untouched when the
// target does not exist.
func activate(ctx context.Context, q querier, id uuid.UUID) (*models.ProviderConfiguration, error) {
	rows, err := q.Query(ctx, `
		UPDATE provider_configurations
		SET is_active = (id = $1), updated_at = now()
		WHERE (is_active OR id = $1)
		  AND EXISTS (SELECT 1 FROM provider_configurations WHERE id = $1)
		RETURNING `+configColumns, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var target *models.ProviderConfiguration
	for rows.Next() {
		c, err := scanConfig(rows)
		if err != nil {
			return nil, err
		}
		if c.ID == id {
			target = c
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if target == nil {
		return nil, ErrNotFound
	}
	return target, nil
}

func (r *Repository) withActivationRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt < maxActivateAttempts; attempt++ {
		err = fn()
		var pgErr *pgconn.PgError
		if !errors.As(err, &pgErr) || pgErr.Code != pgExclusionViolation {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return err
}
