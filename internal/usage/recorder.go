package usage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/inaiurai/gateway/internal/models"
)

// InsertFunc enqueues a usage job. main wires it to the River client after
// the client is created.
type InsertFunc func(ctx context.Context, args RecordUsageArgs) error

// QueueRecorder hands usage records to the job queue.
type QueueRecorder struct {
	insert InsertFunc
	now    func() time.Time
}

func NewQueueRecorder(insert InsertFunc) *QueueRecorder {
	return &QueueRecorder{insert: insert, now: time.Now}
}

// Record enqueues u, assigning an id and timestamp when missing.
func (r *QueueRecorder) Record(ctx context.Context, u models.UsageRecord) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = r.now().UTC()
	}
	return r.insert(ctx, argsFromRecord(u))
}
