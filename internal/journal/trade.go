package journal

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/rickgao/market-sync/internal/cache"
	"github.com/rickgao/market-sync/internal/router"
)

const insertTradeSQL = `
	INSERT INTO trades (trade_id, market_id, agent_id, side, action, shares, price, cost, executed_at, received_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	ON CONFLICT (trade_id) DO NOTHING
`

// TradeWriter consumes trades from the router buffer and writes them to the
// trades table.
type TradeWriter struct {
	cfg    Config
	logger *slog.Logger

	// Input from the Event Router
	input *router.Queue[cache.RecentTrade]

	// Database
	db BatchSender

	// Batching
	batch   []tradeRow
	batchMu sync.Mutex

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	metrics Metrics
	now     func() time.Time
}

// NewTradeWriter creates a new TradeWriter.
func NewTradeWriter(
	cfg Config,
	input *router.Queue[cache.RecentTrade],
	db BatchSender,
	logger *slog.Logger,
) *TradeWriter {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultConfig().FlushInterval
	}
	return &TradeWriter{
		cfg:    cfg,
		input:  input,
		db:     db,
		logger: logger,
		batch:  make([]tradeRow, 0, cfg.BatchSize),
		now:    time.Now,
	}
}

// Start begins consuming trades and writing to the database.
func (w *TradeWriter) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(2)
	go w.consumeLoop()
	go w.flushLoop()

	w.logger.Info("trade journal started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop shuts down the writer. Trades still queued in the input buffer are
// written in a final flush bounded by ctx.
func (w *TradeWriter) Stop(ctx context.Context) error {
	w.logger.Info("stopping trade journal")

	if w.cancel != nil {
		w.cancel()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		w.logger.Warn("trade journal stop timed out")
	}

	for _, item := range w.input.PopN(0) {
		w.add(item)
	}
	w.flush(ctx)

	w.logger.Info("trade journal stopped")
	return nil
}

// Stats returns current metrics.
func (w *TradeWriter) Stats() Metrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

// consumeLoop reads from the input buffer and accumulates batches.
func (w *TradeWriter) consumeLoop() {
	defer w.wg.Done()

	for {
		item, ok := w.input.TryPop()
		if !ok {
			// Buffer empty, wait a bit before trying again
			select {
			case <-w.ctx.Done():
				return
			case <-time.After(10 * time.Millisecond):
				continue
			}
		}

		if w.add(item) {
			w.flush(w.ctx)
		}
	}
}

// flushLoop periodically flushes the batch.
func (w *TradeWriter) flushLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.flush(w.ctx)
		}
	}
}

// add appends a trade to the batch and reports whether it is full.
func (w *TradeWriter) add(item cache.RecentTrade) bool {
	row := w.transform(item)

	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	w.batch = append(w.batch, row)
	return len(w.batch) >= w.cfg.BatchSize
}

// transform converts a RecentTrade to a tradeRow.
func (w *TradeWriter) transform(item cache.RecentTrade) tradeRow {
	return tradeRow{
		TradeID:    item.ID,
		MarketID:   item.MarketID,
		AgentID:    item.AgentID,
		Side:       item.Side,
		Action:     item.Action,
		Shares:     numeric(item.Shares),
		Price:      numeric(item.Price),
		Cost:       numeric(item.Cost),
		ExecutedAt: item.ExecutedAt,
		ReceivedAt: w.now().UnixMilli(),
	}
}

// numeric normalizes a decimal string for a NUMERIC column.
func numeric(s string) *string {
	if s == "" {
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil
	}
	v := d.String()
	return &v
}

// flush writes the current batch to the database.
func (w *TradeWriter) flush(ctx context.Context) {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	batch := w.batch
	w.batch = make([]tradeRow, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()

	conflicts, err := w.batchInsert(ctx, batch)
	if err != nil {
		w.logger.Error("batch insert failed", "error", err, "count", len(batch))
		w.batchMu.Lock()
		w.metrics.Errors++
		w.batchMu.Unlock()
		return
	}

	w.batchMu.Lock()
	w.metrics.Inserts += int64(len(batch) - conflicts)
	w.metrics.Conflicts += int64(conflicts)
	w.metrics.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("flushed trades",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (w *TradeWriter) batchInsert(ctx context.Context, rows []tradeRow) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(insertTradeSQL,
			r.TradeID, r.MarketID, r.AgentID, r.Side, r.Action,
			r.Shares, r.Price, r.Cost, r.ExecutedAt, r.ReceivedAt)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	return conflicts, nil
}
