package connection

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	handshakeTimeout = 10 * time.Second
	controlTimeout   = time.Second
)

// Client is a single WebSocket connection to the backend.
type Client interface {
	// Connect dials the backend and starts the read and keepalive loops.
	Connect(ctx context.Context) error

	// Close sends a normal close frame and releases the socket.
	Close() error

	// Send writes one text frame.
	Send(data []byte) error

	// Messages delivers inbound text frames stamped with their receipt time.
	Messages() <-chan TimestampedMessage

	// Errors delivers at most one terminal error per connection.
	Errors() <-chan error

	IsConnected() bool
}

type wsClient struct {
	cfg    ClientConfig
	logger *slog.Logger

	conn    *websocket.Conn
	writeMu sync.Mutex // gorilla allows one concurrent writer

	messages chan TimestampedMessage
	errors   chan error
	done     chan struct{}

	connected atomic.Bool
	shut      atomic.Bool
	closeOnce sync.Once
	lastSeen  atomic.Int64 // UnixNano of the last ping or pong from the peer
}

// NewClient creates an unconnected WebSocket client.
func NewClient(cfg ClientConfig, logger *slog.Logger) Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultClientConfig().BufferSize
	}

	return &wsClient{
		cfg:      cfg,
		logger:   logger,
		messages: make(chan TimestampedMessage, cfg.BufferSize),
		errors:   make(chan error, 1),
		done:     make(chan struct{}),
	}
}

func (c *wsClient) Connect(ctx context.Context) error {
	if c.shut.Load() {
		return ErrAlreadyClosed
	}

	header := c.cfg.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	header.Set("Accept", "application/json")

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		return err
	}

	c.conn = conn
	c.seen()
	conn.SetPingHandler(c.onPing)
	conn.SetPongHandler(func(string) error {
		c.seen()
		return nil
	})
	c.connected.Store(true)

	go c.readLoop()
	if c.cfg.PingInterval > 0 {
		go c.keepalive()
	}

	c.logger.Debug("websocket connected", "url", c.cfg.URL)
	return nil
}

// onPing answers a server ping and counts it as liveness.
func (c *wsClient) onPing(data string) error {
	c.seen()
	return c.control(websocket.PongMessage, []byte(data), controlTimeout)
}

func (c *wsClient) seen() {
	c.lastSeen.Store(time.Now().UnixNano())
}

func (c *wsClient) silentFor() time.Duration {
	return time.Since(time.Unix(0, c.lastSeen.Load()))
}

func (c *wsClient) control(kind int, data []byte, timeout time.Duration) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteControl(kind, data, time.Now().Add(timeout))
}

func (c *wsClient) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.shut.Store(true)
		c.connected.Store(false)
		close(c.done)

		if c.conn == nil {
			return
		}
		_ = c.control(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), controlTimeout)
		err = c.conn.Close()
	})
	return err
}

func (c *wsClient) Send(data []byte) error {
	if !c.connected.Load() {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsClient) Messages() <-chan TimestampedMessage { return c.messages }

func (c *wsClient) Errors() <-chan error { return c.errors }

func (c *wsClient) IsConnected() bool { return c.connected.Load() }

// fail marks the connection down and reports err unless one is pending.
func (c *wsClient) fail(err error) {
	c.connected.Store(false)
	select {
	case c.errors <- err:
	default:
	}
}

// readLoop forwards text frames in order. It blocks on a full channel
// instead of dropping.
func (c *wsClient) readLoop() {
	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			if !c.shut.Load() {
				c.fail(err)
			}
			return
		}
		if kind != websocket.TextMessage {
			c.logger.Debug("ignoring non-text frame", "type", kind)
			continue
		}

		select {
		case c.messages <- TimestampedMessage{Data: data, ReceivedAt: time.Now()}:
		case <-c.done:
			return
		}
	}
}

// keepalive pings on every tick and fails the connection once the peer has
// been silent for longer than PingTimeout.
func (c *wsClient) keepalive() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
		}

		if err := c.control(websocket.PingMessage, []byte("keepalive"), c.cfg.WriteTimeout); err != nil {
			c.logger.Debug("failed to send ping", "error", err)
		}

		if c.cfg.PingTimeout <= 0 {
			continue
		}
		if silent := c.silentFor(); silent > c.cfg.PingTimeout {
			c.logger.Warn("peer silent, dropping connection",
				"silent_for", silent,
				"timeout", c.cfg.PingTimeout,
			)
			c.fail(ErrStaleConnection)
			_ = c.conn.Close() // unblocks readLoop
			return
		}
	}
}
