package cache

import (
	"errors"
	"sync"
)

// Errors
var (
	ErrMissingKey   = errors.New("missing entity key")
	ErrInvalidValue = errors.New("invalid numeric value")
	ErrStaleDelta   = errors.New("stale order book delta")
	ErrUnknownBook  = errors.New("order book not loaded")
)

// SliceKind names a cache slice in change notifications.
type SliceKind string

const (
	SliceMarkets      SliceKind = "markets"
	SliceRecentTrades SliceKind = "recent_trades"
	SliceBalances     SliceKind = "balances"
	SlicePositions    SliceKind = "positions"
	SliceMarketAgents SliceKind = "market_agents"
	SliceDiscarded    SliceKind = "discarded"
	SliceOrderBooks   SliceKind = "order_books"
)

// Change is emitted after a slice mutation. Key is the entity id when the
// change is scoped to one entity, empty for bulk changes.
type Change struct {
	Slice SliceKind
	Key   string
}

// Config holds Store configuration.
type Config struct {
	RecentTradesCap  int // Default: 50
	ChangeBufferSize int // Default: 1000
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		RecentTradesCap:  50,
		ChangeBufferSize: 1000,
	}
}

// Store is the owned container for every cache slice.
type Store struct {
	mu sync.RWMutex

	markets      *marketSlice
	trades       *tradeRing
	balances     *balanceSlice
	positions    *positionSlice
	marketAgents *marketAgentSlice
	discarded    *discardedSlice
	books        *bookSlice

	changeBuffer int
	subscribers  map[uint64]chan Change
	nextSub      uint64
}

// NewStore creates an empty Store.
func NewStore(cfg Config) *Store {
	if cfg.RecentTradesCap < 1 {
		cfg.RecentTradesCap = DefaultConfig().RecentTradesCap
	}
	if cfg.ChangeBufferSize < 1 {
		cfg.ChangeBufferSize = DefaultConfig().ChangeBufferSize
	}

	return &Store{
		markets:      newMarketSlice(),
		trades:       newTradeRing(cfg.RecentTradesCap),
		balances:     newBalanceSlice(),
		positions:    newPositionSlice(),
		marketAgents: newMarketAgentSlice(),
		discarded:    newDiscardedSlice(),
		books:        newBookSlice(),
		changeBuffer: cfg.ChangeBufferSize,
		subscribers:  make(map[uint64]chan Change),
	}
}

// Subscribe registers a consumer of slice changes. Each subscriber gets its
// own buffered channel and sees every change made after it subscribed.
// Delivery is best-effort: when a subscriber falls behind its oldest pending
// change is dropped. The returned func unsubscribes and closes the channel;
// calling it more than once is safe.
func (s *Store) Subscribe() (<-chan Change, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	ch := make(chan Change, s.changeBuffer)
	s.subscribers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subscribers, id)
			close(ch)
		})
	}
}

// notify fans a change out to every subscriber without blocking. Caller holds
// the write lock.
func (s *Store) notify(c Change) {
	for _, ch := range s.subscribers {
		select {
		case ch <- c:
		default:
			// Full, drop oldest by consuming one and retrying.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- c:
			default:
			}
		}
	}
}

// Stats holds slice sizes for status reporting.
type Stats struct {
	Markets        int    `json:"markets"`
	RecentTrades   int    `json:"recentTrades"`
	Balances       int    `json:"balances"`
	PositionAgents int    `json:"positionAgents"`
	MarketAgents   int    `json:"marketAgents"`
	OrderBooks     int    `json:"orderBooks"`
	RefetchTrigger uint64 `json:"refetchTrigger"`
}

// Stats returns current slice sizes.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Stats{
		Markets:        len(s.markets.byID),
		RecentTrades:   s.trades.size,
		Balances:       len(s.balances.byAgent),
		PositionAgents: len(s.positions.byAgent),
		MarketAgents:   len(s.marketAgents.byMarket),
		OrderBooks:     len(s.books.byMarket),
		RefetchTrigger: s.positions.refetchTrigger,
	}
}
