package ingest

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/ognpipe/ognpipe/pkg/logger"
)

// SBSConfig configures the SBS BaseStation feed (dump1090 port 30003 style).
type SBSConfig struct {
	Host string
	Port int
}

// SBSClient reads CSV BaseStation lines and forwards them one per envelope.
type SBSClient struct {
	config  SBSConfig
	forward Forwarder
	log     *logger.Logger
}

// NewSBSClient builds the SBS feed client.
func NewSBSClient(config SBSConfig, forward Forwarder, log *logger.Logger) *SBSClient {
	return &SBSClient{
		config:  config,
		forward: forward,
		log:     log.Named("sbs"),
	}
}

// Run connects and forwards until ctx is cancelled.
func (c *SBSClient) Run(ctx context.Context) {
	addr := fmt.Sprintf("%s:%d", c.config.Host, c.config.Port)
	runFeed(ctx, "sbs", addr, c.log, c.session)
}

func (c *SBSClient) session(ctx context.Context, conn net.Conn) error {
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
		return fmt.Errorf("reading sbs stream: %w", err)
	}
	return nil
}
