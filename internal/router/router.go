package router

import (
	"context"
	"log/slog"
	"sync"

	"github.com/rickgao/market-sync/internal/cache"
	"github.com/rickgao/market-sync/internal/model"
)

// RouterStats contains runtime statistics.
type RouterStats struct {
	MessagesReceived int64
	MessagesRouted   int64
	ParseErrors      int64 // Payload malformed or missing a required field
	Rejected         int64 // Parsed but refused by the cache (stale delta, bad number)
	UnknownMessages  int64
	ControlMessages  int64
	InputQueue       QueueStats
	TradeQueue       QueueStats
}

// Router folds inbound Envelopes into the cache. Envelopes are applied on a
// single goroutine in the order Handle received them.
type Router struct {
	cfg    RouterConfig
	store  *cache.Store
	logger *slog.Logger

	// Input from Connection Manager
	input *Queue[model.Envelope]

	// Output to the trade journal
	tradeBuf *Queue[cache.RecentTrade]

	// Lifecycle
	wg sync.WaitGroup

	mu              sync.RWMutex
	received        int64
	routed          int64
	parseErrors     int64
	rejected        int64
	unknownMessages int64
	controlMessages int64
}

// NewRouter creates a new Event Router writing into store.
func NewRouter(cfg RouterConfig, store *cache.Store, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}

	return &Router{
		cfg:      cfg,
		store:    store,
		logger:   logger,
		input:    NewQueue[model.Envelope](cfg.InputBufferSize, 0),
		tradeBuf: NewQueue[cache.RecentTrade](cfg.TradeBufferSize, cfg.TradeBufferMax),
	}
}

// Handle queues an Envelope for routing. It implements connection.Sink and
// never blocks on the cache.
func (r *Router) Handle(env model.Envelope) {
	if !r.input.Push(env) {
		r.logger.Debug("router stopped, dropping envelope", "type", env.Type)
	}
}

// Start begins routing queued Envelopes.
func (r *Router) Start(ctx context.Context) error {
	r.wg.Add(1)
	go r.routeLoop()

	r.logger.Info("event router started",
		"input_buffer", r.cfg.InputBufferSize,
		"forward_trades", r.cfg.ForwardTrades,
	)

	return nil
}

// Stop stops accepting Envelopes, applies those already queued and closes
// the trade buffer.
func (r *Router) Stop(ctx context.Context) error {
	r.logger.Info("stopping event router")

	r.input.Close()

	// Wait for goroutine to finish
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("event router stopped")
	case <-ctx.Done():
		r.logger.Warn("event router stop timed out")
	}

	r.tradeBuf.Close()

	return nil
}

// Trades returns the buffer of executed trades for the journal.
func (r *Router) Trades() *Queue[cache.RecentTrade] {
	return r.tradeBuf
}

// Stats returns current statistics.
func (r *Router) Stats() RouterStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return RouterStats{
		MessagesReceived: r.received,
		MessagesRouted:   r.routed,
		ParseErrors:      r.parseErrors,
		Rejected:         r.rejected,
		UnknownMessages:  r.unknownMessages,
		ControlMessages:  r.controlMessages,
		InputQueue:       r.input.Stats(),
		TradeQueue:       r.tradeBuf.Stats(),
	}
}

// routeLoop is the main routing goroutine.
func (r *Router) routeLoop() {
	defer r.wg.Done()

	for {
		env, ok := r.input.Pop()
		if !ok {
			r.logger.Debug("input buffer closed")
			return
		}
		r.Route(env)
	}
}

// Route parses and applies a single Envelope synchronously. Malformed and
// unknown Envelopes leave every cache slice untouched.
func (r *Router) Route(env model.Envelope) {
	r.count(&r.received)

	ev, err := Parse(env)
	if err != nil {
		r.logger.Warn("dropping event", "type", env.Type, "error", err)
		r.count(&r.parseErrors)
		return
	}

	switch ev := ev.(type) {
	case UnknownEvent:
		r.logger.Debug("ignoring unknown event", "type", ev.Type)
		r.count(&r.unknownMessages)
		return
	case ControlEvent:
		r.handleControl(ev)
		r.count(&r.controlMessages)
		return
	}

	if err := r.apply(ev); err != nil {
		r.logger.Warn("event rejected by cache", "type", env.Type, "error", err)
		r.count(&r.rejected)
		return
	}
	r.count(&r.routed)
}

// apply folds one Event into the cache.
func (r *Router) apply(ev Event) error {
	switch ev := ev.(type) {
	case MarketEvent:
		for _, m := range ev.Markets {
			if err := r.store.UpsertMarket(m); err != nil {
				return err
			}
		}

	case TradeEvent:
		item, err := r.store.RecordTrade(ev.Trade)
		if err != nil {
			return err
		}
		if r.cfg.ForwardTrades {
			r.tradeBuf.Push(item)
		}

	case AgentEvent:
		if ev.Balance != nil {
			if err := r.store.ApplyLiveBalance(ev.AgentID, *ev.Balance); err != nil {
				return err
			}
		}
		for _, marketID := range ev.EnqueuedMarketIDs {
			if marketID == "" {
				continue
			}
			if err := r.store.AddMarketAgent(marketID, ev.AgentID); err != nil {
				return err
			}
		}

	case PositionEvent:
		r.store.BumpRefetchTrigger()

	case BookSnapshotEvent:
		return r.store.ApplyBookSnapshot(ev.Book)

	case BookDeltaEvent:
		return r.store.ApplyBookDelta(ev.Delta, ev.ReceivedAt)
	}
	return nil
}

func (r *Router) handleControl(ev ControlEvent) {
	switch ev.Type {
	case model.ControlError:
		r.logger.Warn("backend control error",
			"topic", ev.Topic,
			"code", ev.Code,
			"message", ev.Message,
		)
	default:
		r.logger.Debug("control ack", "type", ev.Type, "topic", ev.Topic)
	}
}

func (r *Router) count(field *int64) {
	r.mu.Lock()
	*field++
	r.mu.Unlock()
}
