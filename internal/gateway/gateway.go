// Package gateway runs one paid chat turn end to end: validation, credit
// reservation, provider resolution, the upstream call and usage recording.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/inaiurai/gateway/internal/alerts"
	"github.com/inaiurai/gateway/internal/ledger"
	"github.com/inaiurai/gateway/internal/models"
	"github.com/inaiurai/gateway/internal/providers"
	"github.com/inaiurai/gateway/internal/registry"
	"github.com/inaiurai/gateway/internal/retry"
)

// CreditsPerTurn is charged for every answered turn regardless of tokens.
const CreditsPerTurn = 1

// State is a step of a chat turn.
type State string

const (
	StateValidating          State = "validating"
	StateCheckingEligibility State = "checking_eligibility"
	StateResolvingProvider   State = "resolving_provider"
	StateDebiting            State = "debiting"
	StateCallingUpstream     State = "calling_upstream"
	StateRefunding           State = "refunding"
	StateRecording           State = "recording"
	StateResponding          State = "responding"
)

// Ledger is the subset of the credit ledger used per turn.
type Ledger interface {
	Account(ctx context.Context, userID uuid.UUID) (*models.Account, error)
	CheckEligible(acc *models.Account) ledger.Eligibility
	Debit(ctx context.Context, userID uuid.UUID, amount int) (int, error)
	Refund(ctx context.Context, userID uuid.UUID, amount int) (int, error)
}

// ProviderResolver picks the upstream for a turn.
type ProviderResolver interface {
	ResolveActive(ctx context.Context) (models.ProviderChoice, error)
}

// UsageRecorder appends usage records. Failures are reported, never surfaced.
type UsageRecorder interface {
	Record(ctx context.Context, u models.UsageRecord) error
}

// Alerter raises operational alerts.
type Alerter interface {
	Observe(ctx context.Context, event string, attrs ...any) alerts.Result
}

// Deps wires a Gateway. Alerts and Logger are optional.
type Deps struct {
	Ledger          Ledger
	Resolver        ProviderResolver
	Adapters        providers.Set
	Usage           UsageRecorder
	Alerts          Alerter
	Retry           retry.Policy
	UpstreamTimeout time.Duration
	Logger          *slog.Logger
}

type Gateway struct {
	ledger   Ledger
	resolver ProviderResolver
	adapters providers.Set
	usage    UsageRecorder
	alerts   Alerter
	policy   retry.Policy
	timeout  time.Duration
	log      *slog.Logger
}

// Result is a successful turn.
type Result struct {
	Response         string
	RemainingCredits int
	Provider         string
	Model            string
	Attempts         int
}

func New(d Deps) *Gateway {
	log := d.Logger
	if log == nil {
		log = slog.Default()
	}
	al := d.Alerts
	if al == nil {
		al = alerts.NewAlerter(nil, "", log)
	}
	policy := d.Retry
	if policy.Retryable == nil {
		policy = retry.NewPolicy(policy.Delay, providers.IsRateLimited)
	}
	return &Gateway{
		ledger:   d.Ledger,
		resolver: d.Resolver,
		adapters: d.Adapters,
		usage:    d.Usage,
		alerts:   al,
		policy:   policy,
		timeout:  d.UpstreamTimeout,
		log:      log,
	}
}

// Chat validates body and answers it for userID. A uuid.Nil userID is
// unauthenticated. Errors are always *Error.
func (g *Gateway) Chat(ctx context.Context, userID uuid.UUID, body []byte) (*Result, error) {
	turn, agentID, err := ValidateChatRequest(body)
	if err != nil {
		var verr *ValidationError
		errors.As(err, &verr)
		return nil, &Error{Kind: KindInvalidInput, State: StateValidating, Message: verr.Message, Err: err}
	}

	if userID == uuid.Nil {
		return nil, g.fail(StateCheckingEligibility, KindUnauthenticated, ErrUnauthenticated)
	}
	acc, err := g.ledger.Account(ctx, userID)
	if errors.Is(err, ledger.ErrAccountNotFound) {
		return nil, &Error{Kind: KindInternal, State: StateCheckingEligibility, Message: "Failed to fetch user profile", Err: err}
	}
	if err != nil {
		return nil, g.fail(StateCheckingEligibility, KindPersistence, err)
	}
	if e := g.ledger.CheckEligible(acc); !e.Eligible {
		return nil, g.fail(StateCheckingEligibility, ledgerKind(e.Reason), e.Reason)
	}

	choice, err := g.resolver.ResolveActive(ctx)
	if errors.Is(err, registry.ErrNotConfigured) {
		return nil, g.fail(StateResolvingProvider, KindNotConfigured, err)
	}
	if err != nil {
		return nil, g.fail(StateResolvingProvider, KindPersistence, err)
	}
	adapter, err := g.adapters.For(choice.Provider)
	if err != nil {
		return nil, g.fail(StateResolvingProvider, KindNotConfigured, err)
	}

	remaining, reserved, err := g.reserve(ctx, acc)
	if err != nil {
		return nil, err
	}

	completion, attempts, err := g.callUpstream(ctx, adapter, providers.Request{
		SystemPrompt: turn.SystemPrompt,
		History:      turn.History,
		Message:      turn.Message,
		Model:        choice.ModelName,
		APIKey:       choice.APIKey,
	})
	if err != nil {
		if reserved {
			g.refund(ctx, userID)
		}
		kind := KindUpstream
		if providers.IsRateLimited(err) {
			kind = KindRateLimited
		}
		g.log.Warn("upstream call failed",
			"user_id", userID, "provider", choice.Provider, "attempts", attempts, "error", err)
		return nil, g.fail(StateCallingUpstream, kind, err)
	}

	g.record(ctx, models.UsageRecord{
		UserID:           userID,
		AgentID:          agentID,
		Model:            choice.ModelName,
		PromptTokens:     completion.PromptTokens,
		CompletionTokens: completion.CompletionTokens,
		CreditsUsed:      CreditsPerTurn,
	})

	return &Result{
		Response:         completion.Text,
		RemainingCredits: remaining,
		Provider:         choice.Provider,
		Model:            choice.ModelName,
		Attempts:         attempts,
	}, nil
}

// reserve debits the turn before the upstream call. A lost race is terminal.
// A storage failure is alerted and the turn continues unbilled.
func (g *Gateway) reserve(ctx context.Context, acc *models.Account) (int, bool, error) {
	remaining, err := g.ledger.Debit(ctx, acc.ID, CreditsPerTurn)
	switch {
	case err == nil:
		return remaining, true, nil
	case errors.Is(err, ledger.ErrInsufficientCredits), errors.Is(err, ledger.ErrAccountNotActive):
		return 0, false, g.fail(StateDebiting, ledgerKind(err), err)
	case errors.Is(err, ledger.ErrAccountNotFound):
		return 0, false, &Error{Kind: KindInternal, State: StateDebiting, Message: "Failed to fetch user profile", Err: err}
	}
	g.alerts.Observe(ctx, alerts.EventDebitFailed, "user_id", acc.ID, "error", err)
	return max(0, acc.Credits-CreditsPerTurn), false, nil
}

func (g *Gateway) callUpstream(ctx context.Context, adapter providers.Adapter, req providers.Request) (*providers.Completion, int, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	return retry.Call(ctx, g.policy, func(ctx context.Context) (*providers.Completion, error) {
		return adapter.Complete(ctx, req)
	})
}

func (g *Gateway) refund(ctx context.Context, userID uuid.UUID) {
	ctx = context.WithoutCancel(ctx)
	if _, err := g.ledger.Refund(ctx, userID, CreditsPerTurn); err != nil {
		g.alerts.Observe(ctx, alerts.EventRefundFailed, "user_id", userID, "error", err)
	}
}

func (g *Gateway) record(ctx context.Context, u models.UsageRecord) {
	if g.usage == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	if err := g.usage.Record(ctx, u); err != nil {
		g.alerts.Observe(ctx, alerts.EventUsageRecordFailed,
			"user_id", u.UserID, "agent_id", u.AgentID, "model", u.Model, "error", err)
	}
}

func (g *Gateway) fail(state State, kind Kind, err error) *Error {
	return &Error{Kind: kind, State: state, Message: kind.userMessage(), Err: err}
}

func ledgerKind(err error) Kind {
	switch {
	case errors.Is(err, ledger.ErrInsufficientCredits):
		return KindInsufficientCredits
	case errors.Is(err, ledger.ErrAccountNotActive):
		return KindAccountNotActive
	case errors.Is(err, ledger.ErrPersistence):
		return KindPersistence
	}
	return KindInternal
}
