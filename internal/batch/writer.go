// Package batch implements the accumulate-and-flush pattern used for
// high-volume, non-critical enrichment writes. One batched write replaces
// a hundred individual ones; a failed flush is logged and the batch is
// discarded, never retried.
package batch

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/ognpipe/ognpipe/internal/metrics"
	"github.com/ognpipe/ognpipe/pkg/logger"
)

const (
	DefaultBatchSize    = 100
	DefaultFlushTimeout = 5 * time.Second
	DefaultQueueSize    = 10000
)

// FlushFunc writes one accumulated batch; it returns the number of rows
// actually written.
type FlushFunc[T any] func(ctx context.Context, items []T) (int, error)

// Writer accumulates items from a bounded queue and flushes them when the
// batch fills, the idle timeout elapses, or the queue is closed.
type Writer[T any] struct {
	name         string
	queue        chan T
	flush        FlushFunc[T]
	batchSize    int
	flushTimeout time.Duration
	log          *logger.Logger
	metrics      *metrics.Metrics
	done         chan struct{}

	warn80, warn95     int
	warned80, warned95 atomic.Bool
}

// NewWriter builds a writer with the given queue capacity. Run must be
// started for items to drain.
func NewWriter[T any](name string, queueSize, batchSize int, flushTimeout time.Duration,
	flush FlushFunc[T], log *logger.Logger, m *metrics.Metrics) *Writer[T] {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if flushTimeout <= 0 {
		flushTimeout = DefaultFlushTimeout
	}
	return &Writer[T]{
		name:         name,
		queue:        make(chan T, queueSize),
		flush:        flush,
		batchSize:    batchSize,
		flushTimeout: flushTimeout,
		log:          log.Named("batch-" + name),
		metrics:      m,
		done:         make(chan struct{}),
		warn80:       queueSize * 80 / 100,
		warn95:       queueSize * 95 / 100,
	}
}

// Enqueue offers one item without blocking. False means the queue is full
// and the item was dropped; enrichment data is not worth backpressure.
// Depth is observed here, on the producer side, so a queue that fills while
// the writer is mid-flush still raises its warning.
func (w *Writer[T]) Enqueue(item T) bool {
	select {
	case w.queue <- item:
		w.observeDepth()
		return true
	default:
		return false
	}
}

// observeDepth fires one-time warnings when the queue crosses 80% and 95%
// of capacity and rearms them once it drains back under 80%, surfacing
// sustained backlog without log spam.
func (w *Writer[T]) observeDepth() {
	depth := len(w.queue)
	switch {
	case depth >= w.warn95:
		if w.warned95.CompareAndSwap(false, true) {
			w.warned80.Store(true)
			w.log.Warn("Batch queue 95% full, writer is falling behind",
				logger.Int("depth", depth),
				logger.Int("capacity", cap(w.queue)))
		}
	case depth >= w.warn80:
		if w.warned80.CompareAndSwap(false, true) {
			w.log.Warn("Batch queue 80% full, writer may be falling behind",
				logger.Int("depth", depth),
				logger.Int("capacity", cap(w.queue)))
		}
	default:
		w.warned80.Store(false)
		w.warned95.Store(false)
	}
}

// Depth returns the current queue depth.
func (w *Writer[T]) Depth() int {
	return len(w.queue)
}

// Close stops intake and lets Run flush the remainder and exit.
func (w *Writer[T]) Close() {
	close(w.queue)
}

// Wait blocks until Run has flushed the final batch and returned.
func (w *Writer[T]) Wait() {
	<-w.done
}

// Run consumes the queue until it is closed.
func (w *Writer[T]) Run(ctx context.Context) {
	defer close(w.done)

	w.log.Info("Starting batch writer",
		logger.Int("batch_size", w.batchSize),
		logger.Duration("flush_timeout", w.flushTimeout))

	batch := make([]T, 0, w.batchSize)
	timer := time.NewTimer(w.flushTimeout)
	defer timer.Stop()

	for {
		select {
		case item, ok := <-w.queue:
			if !ok {
				if len(batch) > 0 {
					w.log.Info("Queue closed, flushing final batch",
						logger.Int("items", len(batch)))
					w.flushBatch(ctx, &batch)
				}
				w.log.Info("Batch writer stopped")
				return
			}
			batch = append(batch, item)

			if len(batch) >= w.batchSize {
				w.flushBatch(ctx, &batch)
				resetTimer(timer, w.flushTimeout)
			}

		case <-timer.C:
			if len(batch) > 0 {
				w.flushBatch(ctx, &batch)
			}
			timer.Reset(w.flushTimeout)
		}
	}
}

// flushBatch issues exactly one batched write and clears the batch
// regardless of outcome.
func (w *Writer[T]) flushBatch(ctx context.Context, batch *[]T) {
	size := len(*batch)
	start := time.Now()

	written, err := w.flush(ctx, *batch)
	*batch = (*batch)[:0]

	if err != nil {
		w.metrics.BatchErrors.Inc()
		w.log.Warn("Batch flush failed, batch discarded",
			logger.Int("items", size),
			logger.Error(err))
		return
	}

	w.metrics.BatchUpdates.Add(float64(written))
	w.metrics.BatchSize.Observe(float64(size))
	w.metrics.BatchDuration.Observe(time.Since(start).Seconds())
	w.log.Debug("Flushed batch",
		logger.Int("items", size),
		logger.Int("written", written),
		logger.Duration("took", time.Since(start)))
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
