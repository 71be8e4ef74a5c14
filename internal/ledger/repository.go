package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/inaiurai/gateway/internal/models"
)

// errNoMatch means a conditional update matched no row.
var errNoMatch = errors.New("conditional update matched no row")

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ Store = (*Repository)(nil)

func (r *Repository) GetAccount(ctx context.Context, userID uuid.UUID) (*models.Account, error) {
	var a models.Account
	err := r.pool.QueryRow(ctx, `
		SELECT id, email, role, credits, status, created_at, updated_at
		FROM accounts WHERE id = $1
	`, userID).Scan(&a.ID, &a.Email, &a.Role, &a.Credits, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ApplyDebit decrements credits by amount, clamped at zero, only if the
// account is active and has a positive balance. The check and the write are
// one statement; the ledger entry is written in the same transaction.
func (r *Repository) ApplyDebit(ctx context.Context, userID uuid.UUID, amount int, reason string) (*models.CreditLedgerEntry, error) {
	return r.applyChange(ctx, userID, reason, nil, `
		WITH prev AS (
			SELECT id, credits FROM accounts
			WHERE id = $1 AND status = 'active' AND credits > 0
			FOR UPDATE
		)
		UPDATE accounts a
		SET credits = GREATEST(a.credits - $2::int, 0), updated_at = now()
		FROM prev
		WHERE a.id = prev.id
		RETURNING prev.credits, a.credits
	`, userID, amount)
}

// ApplyCredit adds amount to the balance regardless of status. Used to
// return a reservation after a failed upstream call.
func (r *Repository) ApplyCredit(ctx context.Context, userID uuid.UUID, amount int, reason string) (*models.CreditLedgerEntry, error) {
	return r.applyChange(ctx, userID, reason, nil, `
		WITH prev AS (
			SELECT id, credits FROM accounts WHERE id = $1 FOR UPDATE
		)
		UPDATE accounts a
		SET credits = a.credits + $2::int, updated_at = now()
		FROM prev
		WHERE a.id = prev.id
		RETURNING prev.credits, a.credits
	`, userID, amount)
}

// ApplyAdjust sets or adds credits, clamped at zero.
func (r *Repository) ApplyAdjust(ctx context.Context, userID uuid.UUID, amount int, mode, reason string, adminID *uuid.UUID) (*models.CreditLedgerEntry, error) {
	return r.applyChange(ctx, userID, reason, adminID, `
		WITH prev AS (
			SELECT id, credits FROM accounts WHERE id = $1 FOR UPDATE
		)
		UPDATE accounts a
		SET credits = GREATEST(CASE WHEN $3::text = 'set' THEN $2::int ELSE a.credits + $2::int END, 0),
		    updated_at = now()
		FROM prev
		WHERE a.id = prev.id
		RETURNING prev.credits, a.credits
	`, userID, amount, mode)
}

// OpenAccount inserts the account if it does not exist. A new account with a
// positive balance gets an initial grant entry.
func (r *Repository) OpenAccount(ctx context.Context, acc *models.Account) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		INSERT INTO accounts (id, email, role, credits, status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
		RETURNING created_at, updated_at
	`, acc.ID, acc.Email, acc.Role, acc.Credits, acc.Status).Scan(&acc.CreatedAt, &acc.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if acc.Credits > 0 {
		entry := &models.CreditLedgerEntry{
			ID:           uuid.New(),
			UserID:       acc.ID,
			AmountDelta:  acc.Credits,
			BalanceAfter: acc.Credits,
			Reason:       models.CreditReasonInitialGrant,
		}
		if err := insertEntry(ctx, tx, entry); err != nil {
			return false, err
		}
	}
	return true, tx.Commit(ctx)
}

func (r *Repository) applyChange(ctx context.Context, userID uuid.UUID, reason string, adminID *uuid.UUID, query string, args ...any) (*models.CreditLedgerEntry, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var before, after int
	if err := tx.QueryRow(ctx, query, args...).Scan(&before, &after); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errNoMatch
		}
		return nil, err
	}
	entry := &models.CreditLedgerEntry{
		ID:           uuid.New(),
		UserID:       userID,
		AmountDelta:  after - before,
		BalanceAfter: after,
		Reason:       reason,
		AdminID:      adminID,
	}
	if err := insertEntry(ctx, tx, entry); err != nil {
		return nil, fmt.Errorf("insert ledger entry: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return entry, nil
}

func insertEntry(ctx context.Context, tx pgx.Tx, e *models.CreditLedgerEntry) error {
	return tx.QueryRow(ctx, `
		INSERT INTO credit_logs (id, user_id, amount, balance_after, reason, admin_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, e.ID, e.UserID, e.AmountDelta, e.BalanceAfter, e.Reason, e.AdminID).Scan(&e.CreatedAt)
}
