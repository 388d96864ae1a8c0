package publisher

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/ognpipe/ognpipe/internal/metrics"
	"github.com/ognpipe/ognpipe/pkg/logger"
)

// NATSPublisher publishes over core NATS. Delivery is best effort, which
// fits the live-fix fan-out where a lost update is superseded seconds later.
type NATSPublisher struct {
	conn    *nats.Conn
	log     *logger.Logger
	metrics *metrics.Metrics
}

// NewNATSPublisher wraps an established connection.
func NewNATSPublisher(conn *nats.Conn, log *logger.Logger, m *metrics.Metrics) *NATSPublisher {
	return &NATSPublisher{conn: conn, log: log.Named("nats"), metrics: m}
}

func (p *NATSPublisher) PublishFireAndForget(subject string, payload []byte) {
	if err := p.conn.Publish(subject, payload); err != nil {
		p.metrics.PublishFailures.WithLabelValues("nats").Inc()
		p.log.Debug("Publish failed", logger.String("subject", subject), logger.Error(err))
		return
	}
	p.metrics.FixesPublished.WithLabelValues("nats").Inc()
}

func (p *NATSPublisher) PublishWithRetry(subject string, payload []byte, maxRetries int) error {
	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(retryDelay)
		}
		if err = p.conn.Publish(subject, payload); err == nil {
			p.metrics.FixesPublished.WithLabelValues("nats").Inc()
			return nil
		}
	}
	p.metrics.PublishFailures.WithLabelValues("nats").Inc()
	return fmt.Errorf("publish to %s failed after %d attempts: %w", subject, maxRetries+1, err)
}

func (p *NATSPublisher) Close() {
	p.conn.Close()
}

// JetStreamPublisher publishes with acknowledgment through JetStream, for
// consumers that must not lose messages across restarts.
type JetStreamPublisher struct {
	js      nats.JetStreamContext
	conn    *nats.Conn
	log     *logger.Logger
	metrics *metrics.Metrics
}

// NewJetStreamPublisher builds the JetStream context over an established
// connection and ensures the live-fixes stream exists.
func NewJetStreamPublisher(conn *nats.Conn, streamName string, log *logger.Logger, m *metrics.Metrics) (*JetStreamPublisher, error) {
	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	_, err = js.StreamInfo(streamName)
	if err != nil {
		_, err = js.AddStream(&nats.StreamConfig{
			Name:     streamName,
			Subjects: []string{SubjectLiveFixes},
			MaxAge:   24 * time.Hour,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create stream %s: %w", streamName, err)
		}
	}

	return &JetStreamPublisher{
		js:      js,
		conn:    conn,
		log:     log.Named("jetstream"),
		metrics: m,
	}, nil
}

func (p *JetStreamPublisher) PublishFireAndForget(subject string, payload []byte) {
	// Async publish; the ack is checked on a best-effort basis.
	if _, err := p.js.PublishAsync(subject, payload); err != nil {
		p.metrics.PublishFailures.WithLabelValues("jetstream").Inc()
		p.log.Debug("Publish failed", logger.String("subject", subject), logger.Error(err))
		return
	}
	p.metrics.FixesPublished.WithLabelValues("jetstream").Inc()
}

func (p *JetStreamPublisher) PublishWithRetry(subject string, payload []byte, maxRetries int) error {
	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(retryDelay)
		}
		if _, err = p.js.Publish(subject, payload); err == nil {
			p.metrics.FixesPublished.WithLabelValues("jetstream").Inc()
			return nil
		}
	}
	p.metrics.PublishFailures.WithLabelValues("jetstream").Inc()
	return fmt.Errorf("publish to %s failed after %d attempts: %w", subject, maxRetries+1, err)
}

func (p *JetStreamPublisher) Close() {
	p.conn.Close()
}
