package connection

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rickgao/market-sync/internal/model"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale (no ping)")
	ErrAlreadyClosed   = errors.New("already closed")
	ErrAlreadyStarted  = errors.New("manager already started")
	ErrOutboxFull      = errors.New("outbox full")
)

// TimestampedMessage wraps raw message data with receive timestamp.
type TimestampedMessage struct {
	Data       []byte    // Raw message bytes from WebSocket
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// State is the lifecycle state of the managed connection.
type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateOpen       State = "open"
	StateClosing    State = "closing"
	StateClosed     State = "closed"
	StateError      State = "error"
)

// Status is a point-in-time copy of the connection state.
type Status struct {
	State             State           `json:"state"`
	LastError         string          `json:"lastError,omitempty"`
	ReconnectAttempts int             `json:"reconnectAttempts"`
	LastMessage       *model.Envelope `json:"lastMessage,omitempty"`
}

// Sink receives decoded inbound Envelopes. Handle is called from a single
// goroutine in receipt order and must not block for long.
type Sink interface {
	Handle(env model.Envelope)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(env model.Envelope)

// Handle calls f(env).
func (f SinkFunc) Handle(env model.Envelope) { f(env) }

// OpenHook runs after every successful open, before the outbox is flushed.
// The returned frames are written first.
type OpenHook func() []model.Envelope

// TokenSource supplies the bearer token sent on dial.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// BackoffStrategy selects how the reconnect delay grows.
type BackoffStrategy string

const (
	BackoffFixed       BackoffStrategy = "fixed"
	BackoffExponential BackoffStrategy = "exponential"
)

// ClientConfig configures a WebSocket client.
type ClientConfig struct {
	URL          string        // WebSocket URL (e.g., wss://arena.example.com/ws)
	Header       http.Header   // Extra handshake headers (auth)
	PingInterval time.Duration // How often the client pings
	PingTimeout  time.Duration // Max time without ping/pong before considering connection stale
	WriteTimeout time.Duration // Write deadline for sends
	BufferSize   int           // Message channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		PingInterval: 30 * time.Second,
		PingTimeout:  90 * time.Second,
		WriteTimeout: 5 * time.Second,
		BufferSize:   1000,
	}
}

// ManagerConfig configures the Connection Manager.
type ManagerConfig struct {
	URL                  string          // WebSocket URL
	Enabled              bool            // When false the manager never dials
	ReconnectMaxAttempts int             // 0 disables reconnect
	ReconnectInterval    time.Duration   // Delay before each reconnect
	ReconnectMaxInterval time.Duration   // Cap for exponential backoff
	Backoff              BackoffStrategy // fixed (default) or exponential
	PingInterval         time.Duration
	PingTimeout          time.Duration
	WriteTimeout         time.Duration
	OutboxSize           int         // Max frames queued while not open
	ReadBufferSize       int         // Client message channel size
	Tokens               TokenSource // Optional bearer token source
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		Enabled:              true,
		ReconnectMaxAttempts: 5,
		ReconnectInterval:    3 * time.Second,
		ReconnectMaxInterval: 60 * time.Second,
		Backoff:              BackoffFixed,
		PingInterval:         30 * time.Second,
		PingTimeout:          90 * time.Second,
		WriteTimeout:         5 * time.Second,
		OutboxSize:           256,
		ReadBufferSize:       1000,
	}
}

// ManagerStats provides counters about the managed connection.
type ManagerStats struct {
	FramesReceived int64 // Decoded and forwarded
	FramesDropped  int64 // Malformed, not forwarded
	FramesSent     int64
	Dials          int64 // Connection attempts, including the first
	Opens          int64 // Successful opens
	Queued         int   // Frames currently in the outbox
}
