package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/market-sync/internal/model"
)

// Manager owns the single backend connection. Status is written only here.
type Manager struct {
	cfg    ManagerConfig
	sink   Sink
	logger *slog.Logger

	newClient func(ClientConfig, *slog.Logger) Client

	mu        sync.Mutex
	status    Status
	client    Client // Non-nil only while open
	flushing  bool   // Open hooks or outbox flush in progress
	outbox    *outbox
	hooks     []OpenHook
	listeners []func(Status)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	framesReceived atomic.Int64
	framesDropped  atomic.Int64
	framesSent     atomic.Int64
	dials          atomic.Int64
	opens          atomic.Int64
}

// NewManager creates a Connection Manager that forwards Envelopes to sink.
func NewManager(cfg ManagerConfig, sink Sink, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if sink == nil {
		sink = SinkFunc(func(model.Envelope) {})
	}
	if cfg.Backoff == "" {
		cfg.Backoff = BackoffFixed
	}
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = DefaultManagerConfig().ReconnectInterval
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultManagerConfig().WriteTimeout
	}

	return &Manager{
		cfg:       cfg,
		sink:      sink,
		logger:    logger,
		newClient: NewClient,
		status:    Status{State: StateIdle},
		outbox:    newOutbox(cfg.OutboxSize),
	}
}

// OnOpen registers a hook run after every successful open. Register hooks
// before Start.
func (m *Manager) OnOpen(hook OpenHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, hook)
}

// OnStateChange registers a listener called with a Status copy after every
// state transition. Listeners must not block.
func (m *Manager) OnStateChange(fn func(Status)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Start opens the connection in the background. When the manager is
// disabled it stays idle and never dials.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.cancel != nil {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	if !m.cfg.Enabled {
		m.mu.Unlock()
		m.logger.Info("connection disabled, staying idle")
		return nil
	}
	m.ctx, m.cancel = context.WithCancel(ctx)
	runCtx := m.ctx
	m.mu.Unlock()

	m.wg.Add(1)
	go m.run(runCtx)

	m.logger.Info("connection manager started",
		"url", m.cfg.URL,
		"max_attempts", m.cfg.ReconnectMaxAttempts,
		"backoff", m.cfg.Backoff,
	)
	return nil
}

// Stop closes the connection intentionally. No reconnect follows.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	if m.cancel == nil {
		m.mu.Unlock()
		return nil
	}
	m.logger.Info("stopping connection manager")

	cancel := m.cancel
	client := m.client
	m.client = nil
	m.cancel = nil
	m.status.State = StateClosing
	m.mu.Unlock()
	m.emit()

	cancel()
	if client != nil {
		_ = client.Close()
	}

	// Wait for goroutines with timeout
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		m.logger.Warn("shutdown timeout, forcing close")
	}

	m.setState(StateClosed, "")
	m.logger.Info("connection manager stopped")
	return nil
}

// Restart stops the manager, resets the attempt counter and starts again.
// It is the only way out of an exhausted reconnect sequence.
func (m *Manager) Restart(ctx context.Context) error {
	if err := m.Stop(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	m.status.ReconnectAttempts = 0
	m.status.LastError = ""
	m.mu.Unlock()

	return m.Start(ctx)
}

// Send writes env while open. Otherwise env is queued and written after the
// next open, following the outbox coalescing rules. Transport failures are
// never returned; they surface through Status.
func (m *Manager) Send(env model.Envelope) error {
	data, err := env.Encode()
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}

	m.mu.Lock()
	if m.status.State != StateOpen || m.flushing || m.client == nil {
		live := m.client != nil
		queued, err := m.outbox.push(env, live)
		m.mu.Unlock()
		if err != nil {
			m.logger.Warn("outbox full, dropping frame", "type", env.Type)
			return err
		}
		if queued {
			m.logger.Debug("frame queued", "type", env.Type)
		}
		return nil
	}
	client := m.client
	m.mu.Unlock()

	if err := client.Send(data); err != nil {
		m.logger.Debug("send failed, queueing frame", "type", env.Type, "error", err)
		m.mu.Lock()
		_, _ = m.outbox.push(env, false)
		m.mu.Unlock()
		return nil
	}
	m.framesSent.Add(1)
	return nil
}

// Status returns a copy of the current connection status.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Stats returns connection counters.
func (m *Manager) Stats() ManagerStats {
	m.mu.Lock()
	queued := m.outbox.len()
	m.mu.Unlock()

	return ManagerStats{
		FramesReceived: m.framesReceived.Load(),
		FramesDropped:  m.framesDropped.Load(),
		FramesSent:     m.framesSent.Load(),
		Dials:          m.dials.Load(),
		Opens:          m.opens.Load(),
		Queued:         queued,
	}
}

// run is the connection lifecycle loop: dial, consume, then decide whether
// to reconnect.
func (m *Manager) run(ctx context.Context) {
	defer m.wg.Done()

	for {
		m.setState(StateConnecting, "")

		client, err := m.dial(ctx)
		if err == nil {
			m.handleOpen(client)
			err = m.consume(ctx, client)
			m.detach(client)
			_ = client.Close()
		}

		if ctx.Err() != nil {
			return
		}

		m.handleClose(err)

		if !m.awaitReconnect(ctx) {
			return
		}
	}
}

// dial creates a client and connects it.
func (m *Manager) dial(ctx context.Context) (Client, error) {
	m.dials.Add(1)

	header := http.Header{}
	if m.cfg.Tokens != nil {
		token, err := m.cfg.Tokens.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("auth token: %w", err)
		}
		if token != "" {
			header.Set("Authorization", "Bearer "+token)
		}
	}

	client := m.newClient(ClientConfig{
		URL:          m.cfg.URL,
		Header:       header,
		PingInterval: m.cfg.PingInterval,
		PingTimeout:  m.cfg.PingTimeout,
		WriteTimeout: m.cfg.WriteTimeout,
		BufferSize:   m.cfg.ReadBufferSize,
	}, m.logger)

	if err := client.Connect(ctx); err != nil {
		return nil, err
	}
	return client, nil
}

// handleOpen marks the connection open, runs the open hooks and flushes the
// outbox. Frames queued during the flush are picked up before the flushing
// flag is cleared.
func (m *Manager) handleOpen(client Client) {
	m.mu.Lock()
	m.client = client
	m.flushing = true
	m.status.State = StateOpen
	m.status.ReconnectAttempts = 0
	m.status.LastError = ""
	hooks := append([]OpenHook(nil), m.hooks...)
	m.mu.Unlock()

	m.opens.Add(1)
	m.logger.Info("connection open")
	m.emit()

	sent := make(map[frameKey]struct{})
	for _, hook := range hooks {
		for _, env := range hook() {
			if err := m.write(client, env); err != nil {
				m.logger.Warn("open hook frame failed", "type", env.Type, "error", err)
				continue
			}
			sent[keyOf(env)] = struct{}{}
		}
	}

	for {
		m.mu.Lock()
		pending := m.outbox.drain()
		if len(pending) == 0 {
			m.flushing = false
			m.mu.Unlock()
			return
		}
		m.mu.Unlock()

		for i, env := range pending {
			if _, dup := sent[keyOf(env)]; dup {
				continue
			}
			if err := m.write(client, env); err != nil {
				m.logger.Warn("outbox flush failed", "error", err, "remaining", len(pending)-i)
				m.mu.Lock()
				m.outbox.requeue(pending[i:])
				m.flushing = false
				m.mu.Unlock()
				return
			}
			sent[keyOf(env)] = struct{}{}
		}
	}
}

func (m *Manager) write(client Client, env model.Envelope) error {
	data, err := env.Encode()
	if err != nil {
		return err
	}
	if err := client.Send(data); err != nil {
		return err
	}
	m.framesSent.Add(1)
	return nil
}

// consume forwards frames until the client fails or ctx is cancelled.
func (m *Manager) consume(ctx context.Context, client Client) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-client.Errors():
			// Frames read before the failure are still delivered in order
			for {
				select {
				case msg := <-client.Messages():
					m.handleFrame(msg)
				default:
					return err
				}
			}

		case msg := <-client.Messages():
			m.handleFrame(msg)
		}
	}
}

// handleFrame decodes one inbound frame. Malformed frames are dropped
// without touching the connection state.
func (m *Manager) handleFrame(msg TimestampedMessage) {
	env, err := model.DecodeEnvelope(msg.Data)
	if err != nil {
		m.framesDropped.Add(1)
		m.logger.Debug("dropping malformed frame", "error", err, "bytes", len(msg.Data))
		return
	}

	m.framesReceived.Add(1)

	m.mu.Lock()
	last := env
	m.status.LastMessage = &last
	m.mu.Unlock()

	m.sink.Handle(env)
}

// detach forgets client so that Send queues again.
func (m *Manager) detach(client Client) {
	m.mu.Lock()
	if m.client == client {
		m.client = nil
	}
	m.mu.Unlock()
}

// handleClose records why the connection ended. A normal close frame leads
// to closed, anything else to error.
func (m *Manager) handleClose(err error) {
	state := StateError
	if IsNormalClose(err) {
		state = StateClosed
	}

	msg := "connection closed"
	if err != nil {
		msg = err.Error()
	}

	m.logger.Warn("connection lost", "state", state, "error", msg)
	m.setState(state, msg)
}

// awaitReconnect waits out the backoff delay and counts the attempt.
// Returns false once attempts are exhausted or ctx is done.
func (m *Manager) awaitReconnect(ctx context.Context) bool {
	m.mu.Lock()
	attempt := m.status.ReconnectAttempts + 1
	m.mu.Unlock()

	if attempt > m.cfg.ReconnectMaxAttempts {
		m.logger.Error("reconnect attempts exhausted, waiting for restart",
			"max_attempts", m.cfg.ReconnectMaxAttempts,
		)
		return false
	}

	delay := reconnectDelay(m.cfg.Backoff, m.cfg.ReconnectInterval, m.cfg.ReconnectMaxInterval, attempt)
	m.logger.Info("reconnecting", "attempt", attempt, "delay", delay)

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
	}

	m.mu.Lock()
	m.status.ReconnectAttempts = attempt
	m.mu.Unlock()
	return true
}

// setState transitions state. lastErr replaces LastError when non-empty.
func (m *Manager) setState(state State, lastErr string) {
	m.mu.Lock()
	m.status.State = state
	if lastErr != "" {
		m.status.LastError = lastErr
	}
	m.mu.Unlock()
	m.emit()
}

func (m *Manager) emit() {
	m.mu.Lock()
	status := m.status
	listeners := append(([]func(Status))(nil), m.listeners...)
	m.mu.Unlock()

	for _, fn := range listeners {
		fn(status)
	}
}

// IsNormalClose reports whether err is a clean close from the peer.
func IsNormalClose(err error) bool {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code == websocket.CloseNormalClosure || ce.Code == websocket.CloseGoingAway
	}
	return false
}
