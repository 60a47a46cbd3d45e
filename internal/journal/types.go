package journal

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
)

// Config holds batching settings.
type Config struct {
	BatchSize     int
	FlushInterval time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:     500,
		FlushInterval: time.Second,
	}
}

// Metrics contains write counters.
type Metrics struct {
	Inserts   int64
	Conflicts int64
	Errors    int64
	Flushes   int64
}

// BatchSender sends a queued batch. *pgxpool.Pool satisfies it.
type BatchSender interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// tradeRow maps to the trades table. Numeric columns are nil when the
// source value is missing or not a valid decimal.
type tradeRow struct {
	TradeID    string
	MarketID   string
	AgentID    string
	Side       string
	Action     string
	Shares     *string
	Price      *string
	Cost       *string
	ExecutedAt int64 // ms since epoch
	ReceivedAt int64 // ms since epoch
}
