// Package publisher fans processed fixes out to NATS for live consumers.
// Two backends exist: plain core NATS for fire-and-forget fan-out and
// JetStream when downstream consumers need durable delivery.
package publisher

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/ognpipe/ognpipe/pkg/logger"
)

// SubjectLiveFixes is the subject processed fixes are published on.
const SubjectLiveFixes = "fixes.live"

const (
	connectTimeout = 5 * time.Second
	retryDelay     = 100 * time.Millisecond
)

// Publisher sends payloads to a messaging backend.
type Publisher interface {
	// PublishFireAndForget sends without delivery guarantees; failures are
	// logged and counted, never returned.
	PublishFireAndForget(subject string, payload []byte)
	// PublishWithRetry sends with up to maxRetries additional attempts and
	// returns the last error when all fail.
	PublishWithRetry(subject string, payload []byte, maxRetries int) error
	Close()
}

// Connect dials the NATS server with reconnect-forever semantics.
func Connect(url string, log *logger.Logger) (*nats.Conn, error) {
	conn, err := nats.Connect(url,
		nats.Timeout(connectTimeout),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("NATS disconnected", logger.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected", logger.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	return conn, nil
}
