package async

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingProcessor struct {
	mu   sync.Mutex
	seen []uuid.UUID
}

func (p *countingProcessor) ProcessOrder(_ context.Context, id uuid.UUID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seen = append(p.seen, id)
	return nil
}

func (p *countingProcessor) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.seen)
}

func TestQueueProcessesAllJobs(t *testing.T) {
	proc := &countingProcessor{}
	q := NewProcessorQueue(proc, nil, WithWorkers(3), WithQueueSize(16))

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		require.NoError(t, q.Enqueue(ctx, Job{OrderID: uuid.New(), SubmittedAt: time.Now()}))
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	q.Shutdown(shutdownCtx)

	assert.Equal(t, 10, proc.count())
}

func TestEnqueueAfterShutdownIsDropped(t *testing.T) {
	proc := &countingProcessor{}
	q := NewProcessorQueue(proc, nil, WithWorkers(1))

	ctx := context.Background()
	q.Shutdown(ctx)
	require.NoError(t, q.Enqueue(ctx, Job{OrderID: uuid.New()}))
	assert.Zero(t, proc.count())
}

func TestShutdownIsIdempotent(t *testing.T) {
	q := NewProcessorQueue(&countingProcessor{}, nil, WithWorkers(1))
	ctx := context.Background()
	q.Shutdown(ctx)
	q.Shutdown(ctx) // must not panic on double close
}
