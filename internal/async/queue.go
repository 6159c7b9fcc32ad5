// Package async runs order processing on a bounded worker pool.
package async

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Job is the smallest useful unit. Extend as needed later (priority, trace, retry, etc).
type Job struct {
	OrderID     uuid.UUID
	SubmittedAt time.Time
	TraceID     string
}

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Shutdown(ctx context.Context)
}

// OrderProcessor is what workers invoke per job. Satisfied by
// pipeline.Processor.
type OrderProcessor interface {
	ProcessOrder(ctx context.Context, orderID uuid.UUID) error
}
