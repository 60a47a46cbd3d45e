package cache

import (
	"fmt"

	"github.com/rickgao/market-sync/internal/model"
)

// RecentTrade is a Trade with a locally unique id.
type RecentTrade struct {
	model.Trade
	ID string `json:"id"`
}

// tradeRing is a fixed-capacity circular buffer. When full, the oldest
// trade is overwritten.
type tradeRing struct {
	buf      []RecentTrade
	capacity int
	next     int // Next write position
	size     int
	seq      uint64 // Disambiguates same-millisecond trades
}

func newTradeRing(capacity int) *tradeRing {
	return &tradeRing{
		buf:      make([]RecentTrade, capacity),
		capacity: capacity,
	}
}

func (r *tradeRing) push(t model.Trade) RecentTrade {
	r.seq++
	item := RecentTrade{
		Trade: t,
		ID:    fmt.Sprintf("%s:%d:%d", t.MarketID, t.ExecutedAt, r.seq),
	}

	r.buf[r.next] = item
	r.next = (r.next + 1) % r.capacity
	if r.size < r.capacity {
		r.size++
	}
	return item
}

// newestFirst copies up to n items, latest first. n <= 0 means all.
func (r *tradeRing) newestFirst(n int) []RecentTrade {
	if n <= 0 || n > r.size {
		n = r.size
	}
	result := make([]RecentTrade, n)
	for i := 0; i < n; i++ {
		idx := (r.next - 1 - i + r.capacity) % r.capacity
		result[i] = r.buf[idx]
	}
	return result
}

// RecordTrade appends an executed trade to the recent-trades ring and
// refreshes the derived stats of its market if the market is cached.
func (s *Store) RecordTrade(t model.Trade) (RecentTrade, error) {
	if t.MarketID == "" {
		return RecentTrade{}, ErrMissingKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	item := s.trades.push(t)
	s.notify(Change{Slice: SliceRecentTrades, Key: item.ID})

	if s.markets.applyTrade(t) {
		s.notify(Change{Slice: SliceMarkets, Key: t.MarketID})
	}
	return item, nil
}

// RecentTrades returns up to n trades, newest first. n <= 0 returns all.
func (s *Store) RecentTrades(n int) []RecentTrade {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.trades.newestFirst(n)
}

// RecentTradesForMarket returns the cached trades of one market, newest first.
func (s *Store) RecentTradesForMarket(marketID string) []RecentTrade {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.trades.newestFirst(0)
	result := make([]RecentTrade, 0, len(all))
	for _, t := range all {
		if t.MarketID == marketID {
			result = append(result, t)
		}
	}
	return result
}
