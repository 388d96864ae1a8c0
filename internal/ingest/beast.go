package ingest

import (
	"context"
	"fmt"
	"io"
	"net"

	"github.com/ognpipe/ognpipe/internal/decoder"
	"github.com/ognpipe/ognpipe/pkg/logger"
)

// BeastConfig configures the Beast binary feed (dump1090 port 30005 style).
type BeastConfig struct {
	Host string
	Port int
}

// BeastClient reads the escaped Beast byte stream, reassembles frames and
// forwards each complete frame as one envelope.
type BeastClient struct {
	config  BeastConfig
	forward Forwarder
	log     *logger.Logger
}

// NewBeastClient builds the Beast feed client.
func NewBeastClient(config BeastConfig, forward Forwarder, log *logger.Logger) *BeastClient {
	return &BeastClient{
		config:  config,
		forward: forward,
		log:     log.Named("beast"),
	}
}

// Run connects and forwards until ctx is cancelled.
func (c *BeastClient) Run(ctx context.Context) {
	addr := fmt.Sprintf("%s:%d", c.config.Host, c.config.Port)
	runFeed(ctx, "beast", addr, c.log, c.session)
}

func (c *BeastClient) session(ctx context.Context, conn net.Conn) error {
	go closeOnCancel(ctx, conn)

	scanner := decoder.NewBeastScanner()
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			for _, frame := range scanner.Feed(buf[:n]) {
				forward(c.forward, frame, c.log)
			}
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("reading beast stream: %w", err)
		}
	}
}
