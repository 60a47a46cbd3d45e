package cache

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/rickgao/market-sync/internal/model"
)

type bookSlice struct {
	byMarket map[string]*model.OrderBook
}

func newBookSlice() *bookSlice {
	return &bookSlice{byMarket: make(map[string]*model.OrderBook)}
}

// ApplyBookSnapshot replaces the order book of a market.
func (s *Store) ApplyBookSnapshot(book model.OrderBook) error {
	if book.MarketID == "" {
		return ErrMissingKey
	}

	bids, err := normalizeLevels(book.Bids, true)
	if err != nil {
		return err
	}
	asks, err := normalizeLevels(book.Asks, false)
	if err != nil {
		return err
	}
	book.Bids = bids
	book.Asks = asks

	s.mu.Lock()
	defer s.mu.Unlock()

	s.books.byMarket[book.MarketID] = &book
	s.notify(Change{Slice: SliceOrderBooks, Key: book.MarketID})
	return nil
}

// ApplyBookDelta adjusts one level of a loaded book. A delta whose sequence
// is not newer than the book's is rejected with ErrStaleDelta. Levels whose
// size drops to zero or below are removed.
func (s *Store) ApplyBookDelta(d model.OrderBookDelta, receivedAt int64) error {
	if d.MarketID == "" {
		return ErrMissingKey
	}
	if d.Side != model.SideBid && d.Side != model.SideAsk {
		return fmt.Errorf("%w: side %q", ErrInvalidValue, d.Side)
	}
	price, err := decimal.NewFromString(d.Price)
	if err != nil {
		return fmt.Errorf("%w: price %q", ErrInvalidValue, d.Price)
	}
	delta, err := decimal.NewFromString(d.Delta)
	if err != nil {
		return fmt.Errorf("%w: delta %q", ErrInvalidValue, d.Delta)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	book, ok := s.books.byMarket[d.MarketID]
	if !ok {
		return ErrUnknownBook
	}
	if d.Seq != 0 && d.Seq <= book.Seq {
		return ErrStaleDelta
	}

	if d.Side == model.SideBid {
		book.Bids = applyLevelDelta(book.Bids, price, delta, true)
	} else {
		book.Asks = applyLevelDelta(book.Asks, price, delta, false)
	}
	if d.Seq != 0 {
		book.Seq = d.Seq
	}
	book.UpdatedAt = receivedAt

	s.notify(Change{Slice: SliceOrderBooks, Key: d.MarketID})
	return nil
}

// OrderBook returns a copy of a market's book.
func (s *Store) OrderBook(marketID string) (model.OrderBook, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	book, ok := s.books.byMarket[marketID]
	if !ok {
		return model.OrderBook{}, false
	}
	result := *book
	result.Bids = append([]model.PriceLevel(nil), book.Bids...)
	result.Asks = append([]model.PriceLevel(nil), book.Asks...)
	return result, true
}

// normalizeLevels validates, merges duplicate prices, drops empty levels and
// sorts bids descending / asks ascending.
func normalizeLevels(levels []model.PriceLevel, desc bool) ([]model.PriceLevel, error) {
	sizes := make(map[string]decimal.Decimal, len(levels))
	prices := make(map[string]decimal.Decimal, len(levels))
	for _, l := range levels {
		p, err := decimal.NewFromString(l.Price)
		if err != nil {
			return nil, fmt.Errorf("%w: price %q", ErrInvalidValue, l.Price)
		}
		sz, err := decimal.NewFromString(l.Size)
		if err != nil {
			return nil, fmt.Errorf("%w: size %q", ErrInvalidValue, l.Size)
		}
		key := p.String()
		prices[key] = p
		sizes[key] = sizes[key].Add(sz)
	}

	result := make([]model.PriceLevel, 0, len(sizes))
	for key, sz := range sizes {
		if !sz.IsPositive() {
			continue
		}
		result = append(result, model.PriceLevel{Price: key, Size: sz.String()})
	}
	sortLevels(result, prices, desc)
	return result, nil
}

func applyLevelDelta(levels []model.PriceLevel, price, delta decimal.Decimal, desc bool) []model.PriceLevel {
	for i, l := range levels {
		p, err := decimal.NewFromString(l.Price)
		if err != nil || !p.Equal(price) {
			continue
		}
		cur, _ := decimal.NewFromString(l.Size)
		next := cur.Add(delta)
		if !next.IsPositive() {
			return append(levels[:i:i], levels[i+1:]...)
		}
		levels[i].Size = next.String()
		return levels
	}

	if !delta.IsPositive() {
		return levels
	}
	levels = append(levels, model.PriceLevel{Price: price.String(), Size: delta.String()})
	sortLevels(levels, nil, desc)
	return levels
}

func sortLevels(levels []model.PriceLevel, parsed map[string]decimal.Decimal, desc bool) {
	priceOf := func(l model.PriceLevel) decimal.Decimal {
		if p, ok := parsed[l.Price]; ok {
			return p
		}
		p, _ := decimal.NewFromString(l.Price)
		return p
	}
	sort.Slice(levels, func(i, j int) bool {
		if desc {
			return priceOf(levels[i]).GreaterThan(priceOf(levels[j]))
		}
		return priceOf(levels[i]).LessThan(priceOf(levels[j]))
	})
}
