package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/market-sync/internal/api"
	"github.com/rickgao/market-sync/internal/cache"
	"github.com/rickgao/market-sync/internal/model"
)

// Source is the subset of the REST client the poller reads from.
type Source interface {
	ListAllMarkets(ctx context.Context, status string, pageSize int) (*api.MarketsResponse, error)
	ListAllAgents(ctx context.Context, pageSize int) (*api.AgentsResponse, error)
	ListPositions(ctx context.Context, agentID string, page api.Page) (*api.PositionsResponse, error)
}

// Config holds poller configuration.
type Config struct {
	Interval     time.Duration // Reconcile interval (default: 5m)
	Concurrency  int           // Max concurrent position requests (default: 4)
	Timeout      time.Duration // Per-request timeout (default: 10s)
	PageSize     int           // List page size (default: 100)
	MarketStatus string        // Market status filter (default: open)
	AgentIDs     []string      // Agents whose positions are tracked; empty means all loaded agents
	TriggerCheck time.Duration // How often the refetch trigger is read (default: 250ms)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:     5 * time.Minute,
		Concurrency:  4,
		Timeout:      10 * time.Second,
		PageSize:     api.MaxPageLimit,
		MarketStatus: "open",
		TriggerCheck: 250 * time.Millisecond,
	}
}

// Stats contains poller counters.
type Stats struct {
	Syncs           int64
	SyncErrors      int64
	PositionFetches int64
	PositionErrors  int64
	LastSyncAt      time.Time
}

// Poller periodically hydrates the cache from the REST API.
type Poller struct {
	cfg    Config
	src    Source
	store  *cache.Store
	logger *slog.Logger

	// Agents from the last successful agent load
	agentsMu sync.Mutex
	agents   []string

	syncs           atomic.Int64
	syncErrors      atomic.Int64
	positionFetches atomic.Int64
	positionErrors  atomic.Int64
	lastSyncAt      atomic.Int64 // unix ms

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Poller.
func New(cfg Config, src Source, store *cache.Store, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.TriggerCheck <= 0 {
		cfg.TriggerCheck = def.TriggerCheck
	}
	if cfg.PageSize <= 0 || cfg.PageSize > api.MaxPageLimit {
		cfg.PageSize = def.PageSize
	}
	return &Poller{
		cfg:    cfg,
		src:    src,
		store:  store,
		logger: logger,
	}
}

// Start runs the initial load in the background and begins reconciling.
func (p *Poller) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(2)
	go p.run()
	go p.watchTrigger()

	p.logger.Info("snapshot poller started",
		"interval", p.cfg.Interval,
		"concurrency", p.cfg.Concurrency,
	)

	return nil
}

// Stop cancels in-flight requests and waits for the loops to exit.
func (p *Poller) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("snapshot poller stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns current counters.
func (p *Poller) Stats() Stats {
	s := Stats{
		Syncs:           p.syncs.Load(),
		SyncErrors:      p.syncErrors.Load(),
		PositionFetches: p.positionFetches.Load(),
		PositionErrors:  p.positionErrors.Load(),
	}
	if ms := p.lastSyncAt.Load(); ms > 0 {
		s.LastSyncAt = time.UnixMilli(ms)
	}
	return s
}

// run is the main reconcile loop.
func (p *Poller) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	// Load immediately on start.
	p.syncAll(p.ctx)

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.syncAll(p.ctx)
		}
	}
}

// watchTrigger refetches positions each time the refetch trigger advances.
func (p *Poller) watchTrigger() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.TriggerCheck)
	defer ticker.Stop()

	last := p.store.RefetchTrigger()
	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			current := p.store.RefetchTrigger()
			if current == last {
				continue
			}
			last = current
			p.logger.Debug("refetch trigger advanced", "value", current)
			p.RefreshPositions(p.ctx)
		}
	}
}

// syncAll reloads markets, agents and positions. Failures are logged and
// left in the slice status; the next cycle retries.
func (p *Poller) syncAll(ctx context.Context) {
	start := time.Now()

	marketErr := p.SyncMarkets(ctx)
	agentErr := p.SyncAgents(ctx)
	if ctx.Err() != nil {
		return
	}
	p.RefreshPositions(ctx)

	p.syncs.Add(1)
	if err := errors.Join(marketErr, agentErr); err != nil {
		p.syncErrors.Add(1)
		p.logger.Warn("sync cycle incomplete", "error", err)
	}
	p.lastSyncAt.Store(time.Now().UnixMilli())

	p.logger.Info("sync cycle complete",
		"markets", len(p.store.Markets()),
		"duration", time.Since(start),
	)
}

// SyncMarkets replaces the market slice with the REST listing.
func (p *Poller) SyncMarkets(ctx context.Context) error {
	p.store.SetMarketsStatus(cache.SliceStatus{Loading: true})

	reqCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout*4)
	defer cancel()

	resp, err := p.src.ListAllMarkets(reqCtx, p.cfg.MarketStatus, p.cfg.PageSize)
	if ctx.Err() != nil {
		// Stopped while the request was in flight
		return ctx.Err()
	}
	if err != nil {
		p.store.SetMarketsStatus(cache.SliceStatus{Error: err.Error()})
		return fmt.Errorf("sync markets: %w", err)
	}

	p.store.LoadMarkets(resp.Markets)
	return nil
}

// SyncAgents applies REST balances and rebuilds market to agent
// associations.
func (p *Poller) SyncAgents(ctx context.Context) error {
	reqCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout*4)
	defer cancel()

	resp, err := p.src.ListAllAgents(reqCtx, p.cfg.PageSize)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		return fmt.Errorf("sync agents: %w", err)
	}

	ids := make([]string, 0, len(resp.Agents))
	for _, a := range resp.Agents {
		if a.ID == "" {
			continue
		}
		ids = append(ids, a.ID)
		if a.Balance == "" {
			continue
		}
		if _, err := p.store.ApplyRESTBalance(a.ID, a.Balance); err != nil {
			p.logger.Warn("invalid REST balance", "agent", a.ID, "error", err)
		}
	}
	p.store.SetByMarketFromAgents(resp.Agents)

	p.agentsMu.Lock()
	p.agents = ids
	p.agentsMu.Unlock()

	return nil
}

// trackedAgents returns the agents whose positions are refetched.
func (p *Poller) trackedAgents() []string {
	if len(p.cfg.AgentIDs) > 0 {
		return p.cfg.AgentIDs
	}
	p.agentsMu.Lock()
	defer p.agentsMu.Unlock()
	return append([]string(nil), p.agents...)
}

// RefreshPositions refetches positions for every tracked agent with bounded
// concurrency.
func (p *Poller) RefreshPositions(ctx context.Context) {
	agents := p.trackedAgents()
	if len(agents) == 0 {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)

	for _, agentID := range agents {
		g.Go(func() error {
			if err := p.fetchPositions(gctx, agentID); err != nil {
				p.positionErrors.Add(1)
				p.logger.Warn("failed to fetch positions", "agent", agentID, "error", err)
				return nil
			}
			p.positionFetches.Add(1)
			return nil
		})
	}

	g.Wait()
}

// fetchPositions loads every page of one agent's positions.
func (p *Poller) fetchPositions(ctx context.Context, agentID string) error {
	p.store.SetPositionsStatus(agentID, cache.SliceStatus{Loading: true})

	var positions []model.Position
	page := api.Page{Limit: p.cfg.PageSize}
	for {
		reqCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
		resp, err := p.src.ListPositions(reqCtx, agentID, page)
		cancel()

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			p.store.SetPositionsStatus(agentID, cache.SliceStatus{Error: err.Error()})
			return err
		}

		positions = append(positions, resp.Positions...)
		next, more := page.Next(len(resp.Positions), resp.Total)
		if !more {
			break
		}
		page = next
	}

	return p.store.SetPositions(agentID, positions)
}
