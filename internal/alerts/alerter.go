// Package alerts counts operational failures that break billing or audit
// guarantees and reports when a threshold is reached.
package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Events raised by the gateway.
const (
	EventDebitFailed       = "ledger.debit_failed"
	EventRefundFailed      = "ledger.refund_failed"
	EventUsageRecordFailed = "usage.record_failed"
)

var alertCounterScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

// Result contains alert evaluation output.
type Result struct {
	Triggered bool
	Count     int64
	Threshold int64
	Window    time.Duration
}

// Alerter logs every observed event and aggregates them in Redis windows.
// A nil Redis client degrades to logging with every event triggered.
type Alerter struct {
	redisClient redis.UniversalClient
	prefix      string
	log         *slog.Logger
	now         func() time.Time
}

// NewAlerter returns an alerter. client may be nil.
func NewAlerter(client redis.UniversalClient, prefix string, log *slog.Logger) *Alerter {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "gateway:alerts"
	}
	if log == nil {
		log = slog.Default()
	}
	return &Alerter{redisClient: client, prefix: prefix, log: log, now: time.Now}
}

// Observe records one occurrence of event. attrs are added to the log line.
func (a *Alerter) Observe(ctx context.Context, event string, attrs ...any) Result {
	threshold, window := alertRule(event)
	result := Result{Threshold: threshold, Window: window, Count: 1, Triggered: true}

	if a.redisClient != nil {
		windowMs := window.Milliseconds()
		slot := a.now().UTC().UnixMilli() / windowMs
		key := fmt.Sprintf("%s:%s:%d", a.prefix, sanitizeSegment(event), slot)

		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		count, err := alertCounterScript.Run(rctx, a.redisClient, []string{key}, windowMs).Int64()
		cancel()
		if err != nil {
			a.log.Warn("alert counter unavailable", "event", event, "error", err)
		} else {
			result.Count = count
			result.Triggered = count >= threshold
		}
	}

	args := append([]any{"alert", event, "count", result.Count, "threshold", result.Threshold, "triggered", result.Triggered}, attrs...)
	a.log.ErrorContext(ctx, "operational alert", args...)
	return result
}

// alertRule returns how many events within window trigger an alert. Billing
// invariant breaks trigger on the first occurrence.
func alertRule(event string) (threshold int64, window time.Duration) {
	switch strings.TrimSpace(event) {
	case EventDebitFailed, EventRefundFailed:
		return 1, time.Hour
	case EventUsageRecordFailed:
		return 5, 5 * time.Minute
	default:
		return 10, 5 * time.Minute
	}
}

func sanitizeSegment(in string) string {
	in = strings.TrimSpace(in)
	if in == "" {
		return "unknown"
	}
	replacer := strings.NewReplacer(":", "_", "|", "_", " ", "_")
	return replacer.Replace(in)
}
