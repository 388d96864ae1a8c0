// Package shutdown coordinates graceful drain. On shutdown the transport
// stops accepting new envelopes while the worker pools keep consuming;
// the coordinator polls the registered queues until everything queued has
// been processed or a hard ceiling passes.
package shutdown

import (
	"context"
	"time"

	"github.com/ognpipe/ognpipe/pkg/logger"
)

const (
	pollInterval = time.Second
	maxDrainWait = 600 * time.Second
)

// DepthFunc reports outstanding work per queue name.
type DepthFunc func() map[string]int

// Coordinator waits for registered queues to drain.
type Coordinator struct {
	sources []DepthFunc
	log     *logger.Logger
}

// NewCoordinator creates an empty coordinator.
func NewCoordinator(log *logger.Logger) *Coordinator {
	return &Coordinator{log: log.Named("shutdown")}
}

// Register adds a queue-depth source. Not safe to call once Wait started.
func (c *Coordinator) Register(source DepthFunc) {
	c.sources = append(c.sources, source)
}

// Wait blocks until every registered queue is empty, the drain ceiling
// passes, or ctx is cancelled. It returns true when the drain completed.
func (c *Coordinator) Wait(ctx context.Context) bool {
	deadline := time.Now().Add(maxDrainWait)

	for second := 1; ; second++ {
		total, depths := c.snapshot()
		if total == 0 {
			c.log.Info("All queues drained")
			return true
		}
		if time.Now().After(deadline) {
			c.log.Warn("Drain ceiling reached, shutting down with queued work",
				logger.Int("remaining", total))
			return false
		}

		fields := []logger.Field{logger.Int("elapsed_s", second)}
		for name, depth := range depths {
			if depth > 0 {
				fields = append(fields, logger.Int(name, depth))
			}
		}
		c.log.Info("Waiting for queues to drain", fields...)

		select {
		case <-ctx.Done():
			return false
		case <-time.After(pollInterval):
		}
	}
}

func (c *Coordinator) snapshot() (int, map[string]int) {
	total := 0
	merged := make(map[string]int)
	for _, source := range c.sources {
		for name, depth := range source() {
			merged[name] += depth
			total += depth
		}
	}
	return total, merged
}
