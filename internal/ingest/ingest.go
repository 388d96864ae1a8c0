// Package ingest holds the upstream feed clients. Each client reads one
// protocol (APRS-IS, Beast, SBS) over TCP and forwards the payloads to the
// router process through the envelope transport. Upstream connections
// reconnect forever with the same doubling backoff as the socket side.
package ingest

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/ognpipe/ognpipe/internal/transport"
	"github.com/ognpipe/ognpipe/pkg/logger"
)

const (
	initialRetryDelay = time.Second
	maxRetryDelay     = 60 * time.Second
	dialTimeout       = 10 * time.Second
)

// Forwarder is the downstream side of a feed client, satisfied by
// *transport.Client.
type Forwarder interface {
	Send(data []byte) error
	Reconnect()
}

// runFeed dials and runs a feed until ctx is cancelled. run returns when
// the connection dies; runFeed redials with doubling backoff, resetting the
// delay after every successful session.
func runFeed(ctx context.Context, name, addr string, log *logger.Logger,
	run func(ctx context.Context, conn net.Conn) error) {
	delay := initialRetryDelay
	for {
		if ctx.Err() != nil {
			return
		}

		dialer := net.Dialer{Timeout: dialTimeout}
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			log.Warn("Feed connect failed, retrying",
				logger.String("feed", name),
				logger.String("addr", addr),
				logger.Duration("retry_in", delay),
				logger.Error(err))
			if !sleepCtx(ctx, delay) {
				return
			}
			delay = nextDelay(delay)
			continue
		}

		log.Info("Feed connected",
			logger.String("feed", name),
			logger.String("addr", addr))
		delay = initialRetryDelay

		err = run(ctx, conn)
		conn.Close()
		if ctx.Err() != nil {
			return
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Warn("Feed session ended",
				logger.String("feed", name),
				logger.Error(err))
		}
		if !sleepCtx(ctx, delay) {
			return
		}
		delay = nextDelay(delay)
	}
}

// forward pushes one payload downstream, blocking on socket reconnect when
// the router is away. Losing upstream data while the router restarts is
// acceptable; wedging the feed client is not, so reconnect bounds the stall.
func forward(fwd Forwarder, data []byte, log *logger.Logger) {
	if err := fwd.Send(data); err != nil {
		log.Warn("Forward failed, reconnecting socket", logger.Error(err))
		fwd.Reconnect()
		if err := fwd.Send(data); err != nil {
			log.Warn("Forward failed after reconnect, dropping", logger.Error(err))
		}
	}
}

func nextDelay(current time.Duration) time.Duration {
	next := current * 2
	if next > maxRetryDelay {
		return maxRetryDelay
	}
	return next
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

var _ Forwarder = (*transport.Client)(nil)
