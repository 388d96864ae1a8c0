package ingest

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/ognpipe/ognpipe/pkg/logger"
)

// APRSConfig configures the APRS-IS feed.
type APRSConfig struct {
	Server   string
	Port     int
	Callsign string
	// Password is optional; empty means read-only access (pass -1).
	Password string
	// Filter is an optional APRS-IS server-side filter expression.
	Filter string
}

// APRSClient reads the APRS-IS firehose and forwards every line, server
// keepalives included, so the router sees heartbeats and can track lag.
type APRSClient struct {
	config  APRSConfig
	forward Forwarder
	log     *logger.Logger
}

// NewAPRSClient builds the APRS-IS feed client.
func NewAPRSClient(config APRSConfig, forward Forwarder, log *logger.Logger) *APRSClient {
	return &APRSClient{
		config:  config,
		forward: forward,
		log:     log.Named("aprs"),
	}
}

// Run connects and forwards until ctx is cancelled.
func (c *APRSClient) Run(ctx context.Context) {
	addr := fmt.Sprintf("%s:%d", c.config.Server, c.config.Port)
	runFeed(ctx, "aprs", addr, c.log, c.session)
}

func (c *APRSClient) session(ctx context.Context, conn net.Conn) error {
	if _, err := conn.Write([]byte(c.loginLine())); err != nil {
		return fmt.Errorf("sending login: %w", err)
	}

	go closeOnCancel(ctx, conn)

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), 64*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		forward(c.forward, []byte(line), c.log)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading aprs stream: %w", err)
	}
	return nil
}

// loginLine builds the APRS-IS authentication line. Passwordless logins use
// pass -1, which the network accepts for receive-only clients.
func (c *APRSClient) loginLine() string {
	var b strings.Builder
	b.WriteString("user ")
	b.WriteString(c.config.Callsign)
	b.WriteString(" pass ")
	if c.config.Password != "" {
		b.WriteString(c.config.Password)
	} else {
		b.WriteString("-1")
	}
	b.WriteString(" vers ognpipe 1.0")
	if c.config.Filter != "" {
		b.WriteString(" filter ")
		b.WriteString(c.config.Filter)
	}
	b.WriteString("\r\n")
	return b.String()
}

func closeOnCancel(ctx context.Context, conn net.Conn) {
	<-ctx.Done()
	conn.Close()
}
