package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/inaiurai/gateway/internal/models"
)

var (
	// ErrAccountNotFound is returned when no account exists for the user.
	ErrAccountNotFound = errors.New("account not found")
	// ErrAccountNotActive is returned when the account is suspended or banned.
	ErrAccountNotActive = errors.New("account is not active")
	// ErrInsufficientCredits is returned when the balance is zero.
	ErrInsufficientCredits = errors.New("insufficient credits")
	// ErrPersistence wraps storage failures on balance writes.
	ErrPersistence = errors.New("ledger persistence failure")
	// ErrInvalidAdjustment is returned for unknown modes or non-positive amounts.
	ErrInvalidAdjustment = errors.New("invalid credit adjustment")
)

// Store is the persistence contract for balance changes. Every Apply* call
// writes the balance and its ledger entry atomically.
type Store interface {
	GetAccount(ctx context.Context, userID uuid.UUID) (*models.Account, error)
	ApplyDebit(ctx context.Context, userID uuid.UUID, amount int, reason string) (*models.CreditLedgerEntry, error)
	ApplyCredit(ctx context.Context, userID uuid.UUID, amount int, reason string) (*models.CreditLedgerEntry, error)
	ApplyAdjust(ctx context.Context, userID uuid.UUID, amount int, mode, reason string, adminID *uuid.UUID) (*models.CreditLedgerEntry, error)
	OpenAccount(ctx context.Context, acc *models.Account) (bool, error)
}

// Eligibility is the outcome of CheckEligible. Reason is nil when eligible.
type Eligibility struct {
	Eligible bool
	Reason   error
}

type Service interface {
	Account(ctx context.Context, userID uuid.UUID) (*models.Account, error)
	CheckEligible(acc *models.Account) Eligibility
	Debit(ctx context.Context, userID uuid.UUID, amount int) (int, error)
	Refund(ctx context.Context, userID uuid.UUID, amount int) (int, error)
	Adjust(ctx context.Context, userID uuid.UUID, amount int, mode string, adminID *uuid.UUID) (int, error)
	Initialize(ctx context.Context, userID uuid.UUID, email, role string) (*models.Account, bool, error)
}

type service struct {
	store          Store
	initialCredits int
}

// NewService returns a ledger service. initialCredits is granted to accounts
// created through Initialize.
func NewService(store Store, initialCredits int) Service {
	return &service{store: store, initialCredits: initialCredits}
}

var _ Service = (*service)(nil)

// CheckEligible reports whether acc may start a paid turn.
func CheckEligible(acc *models.Account) Eligibility {
	switch {
	case acc == nil:
		return Eligibility{Reason: ErrAccountNotFound}
	case !acc.IsActive():
		return Eligibility{Reason: ErrAccountNotActive}
	case acc.Credits <= 0:
		return Eligibility{Reason: ErrInsufficientCredits}
	}
	return Eligibility{Eligible: true}
}

func (s *service) CheckEligible(acc *models.Account) Eligibility {
	return CheckEligible(acc)
}

func (s *service) Account(ctx context.Context, userID uuid.UUID) (*models.Account, error) {
	acc, err := s.store.GetAccount(ctx, userID)
	if err != nil && !errors.Is(err, ErrAccountNotFound) {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return acc, err
}

// Debit takes amount from an eligible account, clamping at zero, and returns
// the new balance. When the conditional write matches nothing, the current
// account state decides which eligibility error is returned.
func (s *service) Debit(ctx context.Context, userID uuid.UUID, amount int) (int, error) {
	if amount <= 0 {
		return 0, ErrInvalidAdjustment
	}
	entry, err := s.store.ApplyDebit(ctx, userID, amount, models.CreditReasonChatTurn)
	if err == nil {
		return entry.BalanceAfter, nil
	}
	if !errors.Is(err, errNoMatch) {
		return 0, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	acc, err := s.Account(ctx, userID)
	if err != nil {
		return 0, err
	}
	if e := CheckEligible(acc); !e.Eligible {
		return acc.Credits, e.Reason
	}
	// Balance was refilled between the write and the read; report the
	// state the write observed.
	return 0, ErrInsufficientCredits
}

// Refund returns amount to the account.
func (s *service) Refund(ctx context.Context, userID uuid.UUID, amount int) (int, error) {
	if amount <= 0 {
		return 0, ErrInvalidAdjustment
	}
	entry, err := s.store.ApplyCredit(ctx, userID, amount, models.CreditReasonRefund)
	if errors.Is(err, errNoMatch) {
		return 0, ErrAccountNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return entry.BalanceAfter, nil
}

// Adjust applies an administrative change. mode "set" assigns max(0, amount);
// mode "add" assigns max(0, current+amount).
func (s *service) Adjust(ctx context.Context, userID uuid.UUID, amount int, mode string, adminID *uuid.UUID) (int, error) {
	mode = strings.ToLower(strings.TrimSpace(mode))
	if mode != models.AdjustSet && mode != models.AdjustAdd {
		return 0, ErrInvalidAdjustment
	}
	reason := fmt.Sprintf("Admin adjustment (%s)", mode)
	entry, err := s.store.ApplyAdjust(ctx, userID, amount, mode, reason, adminID)
	if errors.Is(err, errNoMatch) {
		return 0, ErrAccountNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return entry.BalanceAfter, nil
}

// Initialize creates the caller's account with the initial grant if it does
// not exist yet. The bool reports whether it was created by this call.
func (s *service) Initialize(ctx context.Context, userID uuid.UUID, email, role string) (*models.Account, bool, error) {
	if role == "" {
		role = models.RoleUser
	}
	acc := &models.Account{
		ID:      userID,
		Email:   email,
		Role:    role,
		Credits: s.initialCredits,
		Status:  models.AccountStatusActive,
	}
	created, err := s.store.OpenAccount(ctx, acc)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	if created {
		return acc, true, nil
	}
	existing, err := s.Account(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}
