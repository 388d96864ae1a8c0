// Package transport carries envelopes between the ingest processes and the
// router over a Unix domain socket. Each message on the wire is a 4-byte
// little-endian length prefix followed by a serialized envelope.
package transport

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/ognpipe/ognpipe/internal/envelope"
	"github.com/ognpipe/ognpipe/internal/metrics"
	"github.com/ognpipe/ognpipe/pkg/logger"
)

const (
	initialReconnectDelay = 1 * time.Second
	maxReconnectDelay     = 60 * time.Second
	slowSendThreshold     = 100 * time.Millisecond
)

// Client writes envelopes of a single source type to the router socket.
// It starts disconnected; callers use Connect or Reconnect before Send.
type Client struct {
	socketPath string
	source     envelope.Source
	log        *logger.Logger
	metrics    *metrics.Metrics

	mu     sync.Mutex
	conn   net.Conn
	writer *bufio.Writer
}

// NewClient returns a disconnected client for the given socket and source.
func NewClient(socketPath string, source envelope.Source, log *logger.Logger, m *metrics.Metrics) *Client {
	return &Client{
		socketPath: socketPath,
		source:     source,
		log:        log.Named("socket-client"),
		metrics:    m,
	}
}

// Connect dials the socket once, without retrying.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	conn, err := net.Dial("unix", c.socketPath)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", c.socketPath, err)
	}
	c.conn = conn
	c.writer = bufio.NewWriter(conn)
	c.metrics.ClientConnected.Set(1)
	return nil
}

// IsConnected reports whether the client currently holds a connection.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Send wraps data in a freshly timestamped envelope and writes it to the
// socket. The caller is expected to Reconnect on error.
func (c *Client) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("not connected to %s", c.socketPath)
	}

	env := envelope.New(c.source, data)
	payload := env.Marshal()

	start := time.Now()

	var prefix [4]byte
	binary.LittleEndian.PutUint32(prefix[:], uint32(len(payload)))
	if _, err := c.writer.Write(prefix[:]); err != nil {
		c.dropConnLocked()
		return fmt.Errorf("writing length prefix: %w", err)
	}
	if _, err := c.writer.Write(payload); err != nil {
		c.dropConnLocked()
		return fmt.Errorf("writing payload: %w", err)
	}
	if err := c.writer.Flush(); err != nil {
		c.dropConnLocked()
		return fmt.Errorf("flushing socket: %w", err)
	}

	elapsed := time.Since(start)
	c.metrics.MessagesSent.Inc()
	c.metrics.SendDuration.Observe(elapsed.Seconds())
	if elapsed > slowSendThreshold {
		c.metrics.SlowSends.Inc()
		c.log.Warn("Slow socket send",
			logger.Duration("elapsed", elapsed),
			logger.Int("bytes", len(payload)))
	}
	return nil
}

// Reconnect drops the current connection and redials until it succeeds,
// doubling the delay between attempts from 1s up to a 60s ceiling. It only
// returns once connected.
func (c *Client) Reconnect() {
	c.mu.Lock()
	c.dropConnLocked()
	c.mu.Unlock()

	delay := initialReconnectDelay
	for attempt := 1; ; attempt++ {
		err := c.Connect()
		if err == nil {
			c.metrics.Reconnects.Inc()
			c.log.Info("Reconnected to router socket",
				logger.String("path", c.socketPath),
				logger.Int("attempts", attempt))
			return
		}
		c.metrics.ReconnectFailures.Inc()
		c.log.Warn("Reconnect failed, retrying",
			logger.String("path", c.socketPath),
			logger.Duration("retry_in", delay),
			logger.Error(err))
		time.Sleep(delay)
		delay = nextReconnectDelay(delay)
	}
}

// Close shuts the connection down.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.writer = nil
	c.metrics.ClientConnected.Set(0)
	return err
}

func (c *Client) dropConnLocked() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
		c.writer = nil
	}
	c.metrics.ClientConnected.Set(0)
}

func nextReconnectDelay(current time.Duration) time.Duration {
	next := current * 2
	if next > maxReconnectDelay {
		return maxReconnectDelay
	}
	return next
}
