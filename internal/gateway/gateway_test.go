package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/inaiurai/gateway/internal/alerts"
	"github.com/inaiurai/gateway/internal/ledger"
	"github.com/inaiurai/gateway/internal/models"
	"github.com/inaiurai/gateway/internal/providers"
	"github.com/inaiurai/gateway/internal/registry"
	"github.com/inaiurai/gateway/internal/retry"
)

// --- mocks ---

type memLedger struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]*models.Account
	reads    int
	debits   int
	refunds  int
	debitErr error
}

func newMemLedger(accs ...*models.Account) *memLedger {
	l := &memLedger{accounts: make(map[uuid.UUID]*models.Account)}
	for _, a := range accs {
		l.accounts[a.ID] = a
	}
	return l
}

func (l *memLedger) Account(_ context.Context, userID uuid.UUID) (*models.Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reads++
	a, ok := l.accounts[userID]
	if !ok {
		return nil, ledger.ErrAccountNotFound
	}
	cp := *a
	return &cp, nil
}

func (l *memLedger) CheckEligible(acc *models.Account) ledger.Eligibility {
	return ledger.CheckEligible(acc)
}

func (l *memLedger) Debit(_ context.Context, userID uuid.UUID, amount int) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.debits++
	if l.debitErr != nil {
		return 0, l.debitErr
	}
	a, ok := l.accounts[userID]
	if !ok {
		return 0, ledger.ErrAccountNotFound
	}
	if e := ledger.CheckEligible(a); !e.Eligible {
		return a.Credits, e.Reason
	}
	a.Credits = max(0, a.Credits-amount)
	return a.Credits, nil
}

func (l *memLedger) Refund(_ context.Context, userID uuid.UUID, amount int) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refunds++
	a := l.accounts[userID]
	a.Credits += amount
	return a.Credits, nil
}

func (l *memLedger) credits(userID uuid.UUID) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.accounts[userID].Credits
}

type staticResolver struct {
	choice models.ProviderChoice
	err    error
}

func (r staticResolver) ResolveActive(context.Context) (models.ProviderChoice, error) {
	return r.choice, r.err
}

// scriptAdapter returns errs in order, then succeeds.
type scriptAdapter struct {
	calls atomic.Int32
	errs  []error
	block bool
	out   providers.Completion
}

func (a *scriptAdapter) Complete(ctx context.Context, req providers.Request) (*providers.Completion, error) {
	n := int(a.calls.Add(1))
	if a.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if n <= len(a.errs) {
		return nil, a.errs[n-1]
	}
	out := a.out
	return &out, nil
}

type memUsage struct {
	mu      sync.Mutex
	records []models.UsageRecord
	err     error
}

func (u *memUsage) Record(_ context.Context, r models.UsageRecord) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.err != nil {
		return u.err
	}
	u.records = append(u.records, r)
	return nil
}

type memAlerts struct {
	mu     sync.Mutex
	events []string
}

func (m *memAlerts) Observe(_ context.Context, event string, _ ...any) alerts.Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return alerts.Result{Triggered: true, Count: 1, Threshold: 1}
}

func (m *memAlerts) seen(event string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.events {
		if e == event {
			return true
		}
	}
	return false
}

var rateLimited = &providers.StatusError{Provider: "gemini", StatusCode: http.StatusTooManyRequests}

type fixture struct {
	gw      *Gateway
	ledger  *memLedger
	adapter *scriptAdapter
	usage   *memUsage
	alerts  *memAlerts
	userID  uuid.UUID
}

func newFixture(t *testing.T, credits int, status string) *fixture {
	t.Helper()
	userID := uuid.New()
	f := &fixture{
		ledger: newMemLedger(&models.Account{ID: userID, Credits: credits, Status: status}),
		adapter: &scriptAdapter{out: providers.Completion{
			Text: "hello there", PromptTokens: 5000, CompletionTokens: 3000,
		}},
		usage:  &memUsage{},
		alerts: &memAlerts{},
		userID: userID,
	}
	f.gw = New(Deps{
		Ledger:   f.ledger,
		Resolver: staticResolver{choice: models.ProviderChoice{Provider: models.ProviderGemini, APIKey: "k", ModelName: "gemini-2.5-flash"}},
		Adapters: providers.Set{models.ProviderGemini: f.adapter},
		Usage:    f.usage,
		Alerts:   f.alerts,
		Retry:    retry.NewPolicy(time.Millisecond, providers.IsRateLimited),
	})
	return f
}

func chatBody(t *testing.T, history int) []byte {
	t.Helper()
	h := make([]models.ChatMessage, history)
	for i := range h {
		h[i] = models.ChatMessage{Role: models.RoleChatUser, Content: "earlier"}
	}
	b, err := json.Marshal(map[string]any{
		"message":             "Draft a cover letter",
		"agentId":             "upwork",
		"systemPrompt":        "You write proposals.",
		"conversationHistory": h,
	})
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func requireKind(t *testing.T, err error, want Kind) *Error {
	t.Helper()
	var gerr *Error
	if !errors.As(err, &gerr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if gerr.Kind != want {
		t.Fatalf("kind: got %s, want %s (err=%v)", gerr.Kind, want, err)
	}
	return gerr
}

// --- tests ---

func TestChatChargesOneCreditRegardlessOfTokens(t *testing.T) {
	f := newFixture(t, 10, models.AccountStatusActive)
	res, err := f.gw.Chat(context.Background(), f.userID, chatBody(t, 2))
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if res.Response != "hello there" || res.RemainingCredits != 9 || res.Attempts != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if got := f.ledger.credits(f.userID); got != 9 {
		t.Fatalf("balance: got %d, want 9", got)
	}
	if len(f.usage.records) != 1 {
		t.Fatalf("usage records: got %d, want 1", len(f.usage.records))
	}
	rec := f.usage.records[0]
	if rec.AgentID != "upwork" || rec.Model != "gemini-2.5-flash" || rec.PromptTokens != 5000 ||
		rec.CompletionTokens != 3000 || rec.CreditsUsed != 1 {
		t.Errorf("usage record mismatch: %+v", rec)
	}
}

func TestChatRejectsInvalidInputBeforeCreditCheck(t *testing.T) {
	f := newFixture(t, 10, models.AccountStatusActive)
	_, err := f.gw.Chat(context.Background(), f.userID, chatBody(t, MaxHistoryItems+1))
	gerr := requireKind(t, err, KindInvalidInput)
	if gerr.Message != "Too many messages. Max 50" {
		t.Errorf("message: got %q", gerr.Message)
	}
	if !errors.Is(err, ErrInvalidInput) {
		t.Error("expected errors.Is(err, ErrInvalidInput)")
	}
	if f.ledger.reads != 0 || f.ledger.debits != 0 || f.adapter.calls.Load() != 0 {
		t.Errorf("no ledger or upstream access expected: reads=%d debits=%d calls=%d",
			f.ledger.reads, f.ledger.debits, f.adapter.calls.Load())
	}
}

func TestChatUnauthenticated(t *testing.T) {
	f := newFixture(t, 10, models.AccountStatusActive)
	_, err := f.gw.Chat(context.Background(), uuid.Nil, chatBody(t, 0))
	requireKind(t, err, KindUnauthenticated)
	if f.ledger.reads != 0 {
		t.Error("ledger should not be read without a caller")
	}
}

func TestChatMissingAccount(t *testing.T) {
	f := newFixture(t, 10, models.AccountStatusActive)
	_, err := f.gw.Chat(context.Background(), uuid.New(), chatBody(t, 0))
	gerr := requireKind(t, err, KindInternal)
	if gerr.Message != "Failed to fetch user profile" {
		t.Errorf("message: got %q", gerr.Message)
	}
}

func TestChatEligibilityFailures(t *testing.T) {
	tests := []struct {
		name    string
		credits int
		status  string
		want    Kind
	}{
		{"zero credits", 0, models.AccountStatusActive, KindInsufficientCredits},
		{"suspended", 10, models.AccountStatusSuspended, KindAccountNotActive},
		{"banned with zero credits", 0, models.AccountStatusBanned, KindAccountNotActive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.credits, tt.status)
			_, err := f.gw.Chat(context.Background(), f.userID, chatBody(t, 0))
			gerr := requireKind(t, err, tt.want)
			if gerr.State != StateCheckingEligibility {
				t.Errorf("state: got %s", gerr.State)
			}
			if f.adapter.calls.Load() != 0 || f.ledger.debits != 0 {
				t.Error("no debit or upstream call expected")
			}
		})
	}
}

func TestChatNotConfiguredMakesNoCalls(t *testing.T) {
	f := newFixture(t, 10, models.AccountStatusActive)
	f.gw.resolver = staticResolver{err: registry.ErrNotConfigured}
	_, err := f.gw.Chat(context.Background(), f.userID, chatBody(t, 0))
	gerr := requireKind(t, err, KindNotConfigured)
	if gerr.Message != "AI service not configured" {
		t.Errorf("message: got %q", gerr.Message)
	}
	if f.adapter.calls.Load() != 0 || f.ledger.debits != 0 {
		t.Error("no debit or upstream call expected")
	}
	if got := f.ledger.credits(f.userID); got != 10 {
		t.Errorf("balance: got %d, want 10", got)
	}
}

func TestChatResolverStorageFailureIsNotNotConfigured(t *testing.T) {
	f := newFixture(t, 10, models.AccountStatusActive)
	f.gw.resolver = staticResolver{err: errors.New("connection reset")}
	_, err := f.gw.Chat(context.Background(), f.userID, chatBody(t, 0))
	requireKind(t, err, KindPersistence)
}

func TestChatRetriesRateLimitOnce(t *testing.T) {
	f := newFixture(t, 10, models.AccountStatusActive)
	f.adapter.errs = []error{rateLimited}
	res, err := f.gw.Chat(context.Background(), f.userID, chatBody(t, 0))
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if got := f.adapter.calls.Load(); got != 2 || res.Attempts != 2 {
		t.Fatalf("calls: got %d attempts=%d, want 2", got, res.Attempts)
	}
	if got := f.ledger.credits(f.userID); got != 9 {
		t.Errorf("balance: got %d, want 9", got)
	}
}

func TestChatRateLimitedTwiceIsTerminalAndRefunded(t *testing.T) {
	f := newFixture(t, 10, models.AccountStatusActive)
	f.adapter.errs = []error{rateLimited, rateLimited, rateLimited}
	_, err := f.gw.Chat(context.Background(), f.userID, chatBody(t, 0))
	requireKind(t, err, KindRateLimited)
	if got := f.adapter.calls.Load(); got != 2 {
		t.Fatalf("calls: got %d, want 2", got)
	}
	if got := f.ledger.credits(f.userID); got != 10 {
		t.Errorf("balance after refund: got %d, want 10", got)
	}
	if f.ledger.refunds != 1 {
		t.Errorf("refunds: got %d, want 1", f.ledger.refunds)
	}
	if len(f.usage.records) != 0 {
		t.Error("failed turns must not record usage")
	}
}

func TestChatUpstreamErrorIsNotRetried(t *testing.T) {
	f := newFixture(t, 3, models.AccountStatusActive)
	f.adapter.errs = []error{&providers.StatusError{Provider: "gemini", StatusCode: http.StatusInternalServerError, Message: "boom"}}
	_, err := f.gw.Chat(context.Background(), f.userID, chatBody(t, 0))
	gerr := requireKind(t, err, KindUpstream)
	if gerr.Message != "Failed to get AI response" || strings.Contains(gerr.Message, "boom") {
		t.Errorf("message leaked upstream detail: %q", gerr.Message)
	}
	if got := f.adapter.calls.Load(); got != 1 {
		t.Fatalf("calls: got %d, want 1", got)
	}
	if got := f.ledger.credits(f.userID); got != 3 {
		t.Errorf("balance: got %d, want 3", got)
	}
}

func TestChatUpstreamTimeout(t *testing.T) {
	f := newFixture(t, 3, models.AccountStatusActive)
	f.adapter.block = true
	f.gw.timeout = 20 * time.Millisecond
	_, err := f.gw.Chat(context.Background(), f.userID, chatBody(t, 0))
	requireKind(t, err, KindUpstream)
	if got := f.ledger.credits(f.userID); got != 3 {
		t.Errorf("balance: got %d, want 3", got)
	}
}

func TestChatDebitFailureStillAnswersAndAlerts(t *testing.T) {
	f := newFixture(t, 4, models.AccountStatusActive)
	f.ledger.debitErr = errors.Join(ledger.ErrPersistence, errors.New("disk full"))
	res, err := f.gw.Chat(context.Background(), f.userID, chatBody(t, 0))
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if res.RemainingCredits != 3 {
		t.Errorf("remaining: got %d, want 3", res.RemainingCredits)
	}
	if !f.alerts.seen(alerts.EventDebitFailed) {
		t.Error("expected debit failure alert")
	}
}

func TestChatUsageFailureIsSwallowed(t *testing.T) {
	f := newFixture(t, 4, models.AccountStatusActive)
	f.usage.err = errors.New("queue unavailable")
	res, err := f.gw.Chat(context.Background(), f.userID, chatBody(t, 0))
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if res.RemainingCredits != 3 {
		t.Errorf("remaining: got %d, want 3", res.RemainingCredits)
	}
	if !f.alerts.seen(alerts.EventUsageRecordFailed) {
		t.Error("expected usage failure alert")
	}
}

func TestChatConcurrentTurnsNeverOverspend(t *testing.T) {
	const start, n = 7, 20
	f := newFixture(t, start, models.AccountStatusActive)
	b := chatBody(t, 0)

	var wg sync.WaitGroup
	var ok, insufficient atomic.Int32
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.gw.Chat(context.Background(), f.userID, b)
			switch {
			case err == nil:
				ok.Add(1)
			case KindOf(err) == KindInsufficientCredits:
				insufficient.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := f.ledger.credits(f.userID); got != max(0, start-n) {
		t.Fatalf("final balance: got %d, want %d", got, max(0, start-n))
	}
	if ok.Load() != start || insufficient.Load() != n-start {
		t.Errorf("outcomes: ok=%d insufficient=%d", ok.Load(), insufficient.Load())
	}
	if got := f.adapter.calls.Load(); got != start {
		t.Errorf("upstream calls: got %d, want %d", got, start)
	}
}

func TestChatLastCreditRace(t *testing.T) {
	f := newFixture(t, 1, models.AccountStatusActive)
	b := chatBody(t, 0)

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.gw.Chat(context.Background(), f.userID, b)
		}(i)
	}
	wg.Wait()

	var succeeded int
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		requireKind(t, err, KindInsufficientCredits)
	}
	if succeeded != 1 {
		t.Fatalf("exactly one turn should succeed, got %d", succeeded)
	}
	if got := f.ledger.credits(f.userID); got != 0 {
		t.Errorf("balance: got %d, want 0", got)
	}
	if got := f.adapter.calls.Load(); got != 1 {
		t.Errorf("upstream calls: got %d, want 1", got)
	}
}
