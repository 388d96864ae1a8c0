// Package websocket streams processed fixes to browser clients. Payloads
// arrive pre-encoded from the publisher fan-out; the hub only tracks
// connections and pushes, clients never send anything meaningful back.
package websocket

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ognpipe/ognpipe/internal/metrics"
	"github.com/ognpipe/ognpipe/pkg/logger"
)

const (
	clientSendBuffer = 256
	writeTimeout     = 10 * time.Second
)

// Client is one connected websocket consumer.
type Client struct {
	conn   *websocket.Conn
	send   chan []byte
	server *Server
	mu     sync.Mutex
	closed bool
}

// Server is the broadcast hub.
type Server struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	upgrader   websocket.Upgrader
	logger     *logger.Logger
	metrics    *metrics.Metrics
	mu         sync.RWMutex
}

// NewServer creates the hub. Run must be started before connections are
// accepted.
func NewServer(log *logger.Logger, m *metrics.Metrics) *Server {
	return &Server{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, clientSendBuffer),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger:  log.Named("websocket"),
		metrics: m,
	}
}

// Run drives the hub loop. Started once from main and runs for the
// process lifetime.
func (s *Server) Run() {
	s.logger.Info("Starting websocket hub")

	for {
		select {
		case client := <-s.register:
			s.mu.Lock()
			s.clients[client] = true
			count := len(s.clients)
			s.mu.Unlock()
			s.metrics.WebsocketClients.Set(float64(count))
			s.logger.Debug("Client registered", logger.Int("client_count", count))

		case client := <-s.unregister:
			s.mu.Lock()
			s.dropClientLocked(client)
			count := len(s.clients)
			s.mu.Unlock()
			s.metrics.WebsocketClients.Set(float64(count))
			s.logger.Debug("Client unregistered", logger.Int("client_count", count))

		case payload := <-s.broadcast:
			s.fanOut(payload)
		}
	}
}

// fanOut pushes one payload to every client; clients with a full send
// buffer are dropped rather than allowed to slow the hub down.
func (s *Server) fanOut(payload []byte) {
	var stalled []*Client

	s.mu.RLock()
	for client := range s.clients {
		select {
		case client.send <- payload:
		default:
			stalled = append(stalled, client)
		}
	}
	s.mu.RUnlock()

	if len(stalled) == 0 {
		return
	}
	s.mu.Lock()
	for _, client := range stalled {
		s.dropClientLocked(client)
	}
	count := len(s.clients)
	s.mu.Unlock()
	s.metrics.WebsocketClients.Set(float64(count))
	s.logger.Debug("Dropped stalled clients", logger.Int("count", len(stalled)))
}

func (s *Server) dropClientLocked(client *Client) {
	if _, ok := s.clients[client]; !ok {
		return
	}
	delete(s.clients, client)
	client.mu.Lock()
	if !client.closed {
		client.closed = true
		close(client.send)
	}
	client.mu.Unlock()
}

// Broadcast queues a payload for all connected clients. Never blocks; when
// the hub is saturated the payload is dropped, the next fix supersedes it.
func (s *Server) Broadcast(payload []byte) {
	select {
	case s.broadcast <- payload:
	default:
	}
}

// HandleConnection upgrades an HTTP request and attaches the client to the
// hub. Mounted on the metrics mux at /ws.
func (s *Server) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection",
			logger.Error(err),
			logger.String("remote_addr", r.RemoteAddr))
		return
	}

	client := &Client{
		conn:   conn,
		send:   make(chan []byte, clientSendBuffer),
		server: s,
	}
	s.register <- client

	go client.readPump()
	go client.writePump()
}

// readPump discards client messages and detects disconnects.
func (c *Client) readPump() {
	defer func() {
		c.server.unregister <- c
		c.conn.Close()
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.server.logger.Debug("Websocket read error", logger.Error(err))
			}
			return
		}
	}
}

// writePump pushes queued payloads to the connection.
func (c *Client) writePump() {
	defer c.conn.Close()

	for payload := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
