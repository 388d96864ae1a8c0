package batch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ognpipe/ognpipe/internal/metrics"
	"github.com/ognpipe/ognpipe/pkg/logger"
)

type flushRecorder struct {
	mu      sync.Mutex
	batches [][]int
	fail    bool
}

func (r *flushRecorder) flush(_ context.Context, items []int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return 0, errors.New("write failed")
	}
	cp := make([]int, len(items))
	copy(cp, items)
	r.batches = append(r.batches, cp)
	return len(items), nil
}

func (r *flushRecorder) batchSizes() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	sizes := make([]int, len(r.batches))
	for i, b := range r.batches {
		sizes[i] = len(b)
	}
	return sizes
}

func newTestWriter(rec *flushRecorder, batchSize int, timeout time.Duration) *Writer[int] {
	return NewWriter("test", 100, batchSize, timeout, rec.flush, logger.NewNop(), metrics.NewForTest())
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never met")
}

func TestFlushOnBatchSize(t *testing.T) {
	rec := &flushRecorder{}
	w := newTestWriter(rec, 3, time.Hour)
	go w.Run(context.Background())

	for i := 0; i < 3; i++ {
		require.True(t, w.Enqueue(i))
	}

	waitFor(t, func() bool { return len(rec.batchSizes()) == 1 })
	assert.Equal(t, []int{0, 1, 2}, rec.batches[0])

	// Two more items stay below the threshold: no second flush yet.
	w.Enqueue(3)
	w.Enqueue(4)
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, rec.batchSizes(), 1)

	w.Close()
	w.Wait()
}

func TestFlushOnIdleTimeout(t *testing.T) {
	rec := &flushRecorder{}
	w := newTestWriter(rec, 100, 30*time.Millisecond)
	go w.Run(context.Background())

	w.Enqueue(42)
	waitFor(t, func() bool { return len(rec.batchSizes()) == 1 })
	assert.Equal(t, []int{42}, rec.batches[0])

	w.Close()
	w.Wait()
}

func TestFlushRemainderOnClose(t *testing.T) {
	rec := &flushRecorder{}
	w := newTestWriter(rec, 100, time.Hour)
	go w.Run(context.Background())

	w.Enqueue(1)
	w.Enqueue(2)
	w.Close()
	w.Wait()

	require.Equal(t, []int{2}, rec.batchSizes())
	assert.Equal(t, []int{1, 2}, rec.batches[0])
}

func TestFailedFlushDiscardsBatch(t *testing.T) {
	rec := &flushRecorder{fail: true}
	w := newTestWriter(rec, 2, time.Hour)
	go w.Run(context.Background())

	w.Enqueue(1)
	w.Enqueue(2)

	// Give the failed flush time to happen, then let the next batch succeed.
	time.Sleep(50 * time.Millisecond)
	rec.mu.Lock()
	rec.fail = false
	rec.mu.Unlock()

	w.Enqueue(3)
	w.Enqueue(4)
	waitFor(t, func() bool { return len(rec.batchSizes()) == 1 })

	// The failed items were discarded, not retried.
	assert.Equal(t, []int{3, 4}, rec.batches[0])

	w.Close()
	w.Wait()
}

func TestDepthWarningsFireOnEnqueue(t *testing.T) {
	rec := &flushRecorder{}
	w := NewWriter("small", 20, 100, time.Hour, rec.flush, logger.NewNop(), metrics.NewForTest())
	// Run is intentionally not started: the warnings must fire anyway,
	// from the producer side, as the queue fills.

	for i := 0; i < 15; i++ {
		require.True(t, w.Enqueue(i))
	}
	assert.False(t, w.warned80.Load())

	require.True(t, w.Enqueue(15))
	assert.True(t, w.warned80.Load())
	assert.False(t, w.warned95.Load())

	for i := 16; i < 19; i++ {
		require.True(t, w.Enqueue(i))
	}
	assert.True(t, w.warned95.Load())
}

func TestEnqueueReportsFullQueue(t *testing.T) {
	rec := &flushRecorder{}
	w := NewWriter("tiny", 2, 100, time.Hour, rec.flush, logger.NewNop(), metrics.NewForTest())
	// Run is intentionally not started: the queue fills up.

	assert.True(t, w.Enqueue(1))
	assert.True(t, w.Enqueue(2))
	assert.False(t, w.Enqueue(3))
	assert.Equal(t, 2, w.Depth())
}
