package async

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/invoice-intake/internal/common"
)

func TestProcessorQueue_ProcessesEveryJob(t *testing.T) {
	var (
		mu   sync.Mutex
		seen = map[string]bool{}
	)
	h := HandlerFunc(func(ctx context.Context, job Job) error {
		mu.Lock()
		defer mu.Unlock()
		seen[job.Path] = true
		if job.Path == "bad.pdf" {
			return errors.New("boom")
		}
		return nil
	})

	q := NewProcessorQueue(h, nil, WithWorkers(3), WithQueueSize(2))
	for i := 0; i < 10; i++ {
		require.NoError(t, q.Enqueue(context.Background(), Job{Path: fmt.Sprintf("f%d.pdf", i)}))
	}
	require.NoError(t, q.Enqueue(context.Background(), Job{Path: "bad.pdf"}))
	q.Shutdown(context.Background())

	assert.Len(t, seen, 11)
	assert.Equal(t, Stats{Succeeded: 10, Failed: 1}, q.Stats())
}

func TestProcessorQueue_EnqueueAfterShutdown(t *testing.T) {
	q := NewProcessorQueue(HandlerFunc(func(context.Context, Job) error { return nil }), nil)
	q.Shutdown(context.Background())
	q.Shutdown(context.Background())
	assert.ErrorIs(t, q.Enqueue(context.Background(), Job{Path: "x"}), ErrQueueClosed)
}

func TestProcessorQueue_TimeoutAndTrace(t *testing.T) {
	var gotTrace string
	h := HandlerFunc(func(ctx context.Context, job Job) error {
		gotTrace = common.RequestIDFromContext(ctx)
		<-ctx.Done()
		return ctx.Err()
	})
	q := NewProcessorQueue(h, nil, WithWorkers(1), WithProcessTimeout(10*time.Millisecond))
	require.NoError(t, q.Enqueue(context.Background(), Job{Path: "slow.pdf", TraceID: "trace-1"}))
	q.Shutdown(context.Background())

	assert.Equal(t, "trace-1", gotTrace)
	assert.Equal(t, int64(1), q.Stats().Failed)
}

func TestProcessorQueue_RecoversPanics(t *testing.T) {
	q := NewProcessorQueue(HandlerFunc(func(context.Context, Job) error { panic("bad input") }), nil, WithWorkers(1))
	require.NoError(t, q.Enqueue(context.Background(), Job{Path: "a"}))
	require.NoError(t, q.Enqueue(context.Background(), Job{Path: "b"}))
	q.Shutdown(context.Background())
	assert.Equal(t, int64(2), q.Stats().Failed)
}
