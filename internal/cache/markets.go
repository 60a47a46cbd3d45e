package cache

import (
	"github.com/shopspring/decimal"

	"github.com/rickgao/market-sync/internal/model"
)

// SliceStatus is the loading bookkeeping attached to a REST-backed slice.
type SliceStatus struct {
	Loading bool
	Error   string
}

type marketSlice struct {
	byID   map[string]*model.Market
	order  []string
	status SliceStatus
}

func newMarketSlice() *marketSlice {
	return &marketSlice{
		byID: make(map[string]*model.Market),
	}
}

// upsert replaces in place, keeping the first-seen position.
func (s *marketSlice) upsert(m model.Market) {
	mCopy := m
	if _, ok := s.byID[m.ID]; !ok {
		s.order = append(s.order, m.ID)
	}
	s.byID[m.ID] = &mCopy
}

// replace rebuilds the slice from a snapshot. Entries without an id are skipped.
func (s *marketSlice) replace(markets []model.Market) {
	next := make(map[string]*model.Market, len(markets))
	for _, m := range markets {
		if m.ID == "" {
			continue
		}
		mCopy := m
		next[m.ID] = &mCopy
	}

	order := make([]string, 0, len(next))
	placed := make(map[string]struct{}, len(next))
	for _, id := range s.order {
		if _, ok := next[id]; ok {
			order = append(order, id)
			placed[id] = struct{}{}
		}
	}
	for _, m := range markets {
		if _, ok := next[m.ID]; !ok {
			continue
		}
		if _, ok := placed[m.ID]; ok {
			continue
		}
		order = append(order, m.ID)
		placed[m.ID] = struct{}{}
	}

	s.byID = next
	s.order = order
}

// applyTrade refreshes last price and volume from an executed trade.
func (s *marketSlice) applyTrade(t model.Trade) bool {
	m, ok := s.byID[t.MarketID]
	if !ok {
		return false
	}

	if t.Price != "" {
		m.LastPrice = t.Price
	}

	notional, ok := tradeNotional(t)
	if ok {
		vol, err := decimal.NewFromString(m.Volume)
		if err != nil {
			vol = decimal.Zero
		}
		m.Volume = vol.Add(notional).String()
	}
	if t.ExecutedAt > m.UpdatedAt {
		m.UpdatedAt = t.ExecutedAt
	}
	return true
}

// tradeNotional prefers the reported cost, falling back to shares * price.
func tradeNotional(t model.Trade) (decimal.Decimal, bool) {
	if cost, err := decimal.NewFromString(t.Cost); err == nil {
		return cost.Abs(), true
	}
	shares, err := decimal.NewFromString(t.Shares)
	if err != nil {
		return decimal.Zero, false
	}
	price, err := decimal.NewFromString(t.Price)
	if err != nil {
		return decimal.Zero, false
	}
	return shares.Mul(price).Abs(), true
}

// UpsertMarket adds or replaces a market by id.
func (s *Store) UpsertMarket(m model.Market) error {
	if m.ID == "" {
		return ErrMissingKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.markets.upsert(m)
	s.notify(Change{Slice: SliceMarkets, Key: m.ID})
	return nil
}

// LoadMarkets replaces the markets slice with a REST snapshot and clears the
// loading state. Markets absent from the snapshot are removed; survivors keep
// their first-seen position and new ids follow in snapshot order.
func (s *Store) LoadMarkets(markets []model.Market) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.markets.replace(markets)
	s.markets.status = SliceStatus{}
	s.notify(Change{Slice: SliceMarkets})
}

// SetMarketsStatus records loading/error bookkeeping for the markets slice.
func (s *Store) SetMarketsStatus(status SliceStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.markets.status = status
	s.notify(Change{Slice: SliceMarkets})
}

// MarketsStatus returns the markets slice bookkeeping.
func (s *Store) MarketsStatus() SliceStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.markets.status
}

// Market returns a market by id.
func (s *Store) Market(id string) (model.Market, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.markets.byID[id]
	if !ok {
		return model.Market{}, false
	}
	return *m, true
}

// Markets returns all markets in first-seen order.
func (s *Store) Markets() []model.Market {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]model.Market, 0, len(s.markets.order))
	for _, id := range s.markets.order {
		result = append(result, *s.markets.byID[id])
	}
	return result
}
