package cache

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/market-sync/internal/model"
)

func TestNewStore_DefaultsInvalidConfig(t *testing.T) {
	s := NewStore(Config{})

	for i := 0; i < 80; i++ {
		_, err := s.RecordTrade(model.Trade{MarketID: "m1", ExecutedAt: int64(i)})
		require.NoError(t, err)
	}
	assert.Len(t, s.RecentTrades(0), DefaultConfig().RecentTradesCap)
}

func TestStore_NotifyDropsOldest(t *testing.T) {
	s := NewStore(Config{RecentTradesCap: 5, ChangeBufferSize: 2})
	ch, unsubscribe := s.Subscribe()
	defer unsubscribe()

	require.NoError(t, s.UpsertMarket(model.Market{ID: "m1"}))
	require.NoError(t, s.UpsertMarket(model.Market{ID: "m2"}))
	require.NoError(t, s.UpsertMarket(model.Market{ID: "m3"}))

	first := <-ch
	second := <-ch
	assert.Equal(t, Change{Slice: SliceMarkets, Key: "m2"}, first)
	assert.Equal(t, Change{Slice: SliceMarkets, Key: "m3"}, second)
}

func TestStore_EverySubscriberSeesEveryChange(t *testing.T) {
	s := NewStore(DefaultConfig())
	a, unsubA := s.Subscribe()
	defer unsubA()
	b, unsubB := s.Subscribe()
	defer unsubB()

	require.NoError(t, s.UpsertMarket(model.Market{ID: "m1"}))
	require.NoError(t, s.ApplyLiveBalance("ag1", "10"))

	for name, ch := range map[string]<-chan Change{"a": a, "b": b} {
		require.Len(t, ch, 2, "subscriber %s", name)
		assert.Equal(t, Change{Slice: SliceMarkets, Key: "m1"}, <-ch, "subscriber %s", name)
		assert.Equal(t, SliceBalances, (<-ch).Slice, "subscriber %s", name)
	}
}

func TestStore_SlowSubscriberDoesNotStarveOthers(t *testing.T) {
	s := NewStore(Config{ChangeBufferSize: 1})
	slow, unsubSlow := s.Subscribe()
	defer unsubSlow()
	fast, unsubFast := s.Subscribe()
	defer unsubFast()

	var got []string
	for i := 1; i <= 3; i++ {
		require.NoError(t, s.UpsertMarket(model.Market{ID: fmt.Sprintf("m%d", i)}))
		got = append(got, (<-fast).Key)
	}

	assert.Equal(t, []string{"m1", "m2", "m3"}, got)
	assert.Equal(t, "m3", (<-slow).Key, "slow subscriber keeps only the newest")
}

func TestStore_Unsubscribe(t *testing.T) {
	s := NewStore(DefaultConfig())
	ch, unsubscribe := s.Subscribe()
	other, unsubOther := s.Subscribe()
	defer unsubOther()

	unsubscribe()
	unsubscribe()

	require.NoError(t, s.UpsertMarket(model.Market{ID: "m1"}))

	_, open := <-ch
	assert.False(t, open, "channel closed after unsubscribe")
	assert.Len(t, other, 1)
}

func TestStore_Stats(t *testing.T) {
	s := NewStore(DefaultConfig())

	require.NoError(t, s.UpsertMarket(model.Market{ID: "m1"}))
	_, err := s.RecordTrade(model.Trade{MarketID: "m1", Price: "0.5", Shares: "2"})
	require.NoError(t, err)
	require.NoError(t, s.ApplyLiveBalance("ag1", "10"))
	s.BumpRefetchTrigger()

	st := s.Stats()
	assert.Equal(t, 1, st.Markets)
	assert.Equal(t, 1, st.RecentTrades)
	assert.Equal(t, 1, st.Balances)
	assert.Equal(t, uint64(1), st.RefetchTrigger)
}

func TestMarkets_UpsertPreservesOrder(t *testing.T) {
	s := NewStore(DefaultConfig())

	require.NoError(t, s.UpsertMarket(model.Market{ID: "m1", YesPrice: "0.40"}))
	require.NoError(t, s.UpsertMarket(model.Market{ID: "m2", YesPrice: "0.10"}))
	require.NoError(t, s.UpsertMarket(model.Market{ID: "m1", YesPrice: "0.55"}))

	markets := s.Markets()
	require.Len(t, markets, 2)
	assert.Equal(t, "m1", markets[0].ID)
	assert.Equal(t, "0.55", markets[0].YesPrice)
	assert.Equal(t, "m2", markets[1].ID)
}

func TestMarkets_MissingID(t *testing.T) {
	s := NewStore(DefaultConfig())

	assert.ErrorIs(t, s.UpsertMarket(model.Market{Title: "no id"}), ErrMissingKey)
	assert.Empty(t, s.Markets())
}

func TestMarkets_LoadClearsStatus(t *testing.T) {
	s := NewStore(DefaultConfig())

	s.SetMarketsStatus(SliceStatus{Loading: true})
	assert.True(t, s.MarketsStatus().Loading)

	s.LoadMarkets([]model.Market{{ID: "m1"}, {ID: ""}, {ID: "m2"}})
	assert.Equal(t, SliceStatus{}, s.MarketsStatus())
	assert.Len(t, s.Markets(), 2)
}

func TestMarkets_LoadReplacesSlice(t *testing.T) {
	s := NewStore(DefaultConfig())

	s.LoadMarkets([]model.Market{{ID: "m1"}, {ID: "m2"}, {ID: "m3", YesPrice: "0.1"}})
	s.LoadMarkets([]model.Market{{ID: "m4"}, {ID: "m3", YesPrice: "0.2"}, {ID: "m2"}, {ID: "m4"}})

	markets := s.Markets()
	ids := make([]string, 0, len(markets))
	for _, m := range markets {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []string{"m2", "m3", "m4"}, ids, "survivors keep first-seen order")

	_, ok := s.Market("m1")
	assert.False(t, ok, "market missing from the snapshot is removed")
	m3, _ := s.Market("m3")
	assert.Equal(t, "0.2", m3.YesPrice)
	assert.Equal(t, 3, s.Stats().Markets)

	s.LoadMarkets(nil)
	assert.Empty(t, s.Markets())
}

func TestTrades_RingEvictsOldestFirst(t *testing.T) {
	s := NewStore(DefaultConfig())

	for i := 1; i <= 60; i++ {
		_, err := s.RecordTrade(model.Trade{MarketID: "m1", ExecutedAt: int64(1000 + i), Price: "0.5"})
		require.NoError(t, err)
	}

	trades := s.RecentTrades(0)
	require.Len(t, trades, 50)
	assert.Equal(t, int64(1060), trades[0].ExecutedAt, "newest first")
	assert.Equal(t, int64(1011), trades[49].ExecutedAt, "ten oldest evicted")

	ids := make(map[string]struct{}, len(trades))
	for _, tr := range trades {
		ids[tr.ID] = struct{}{}
	}
	assert.Len(t, ids, 50)
}

func TestTrades_SameMillisecondIDsDiffer(t *testing.T) {
	s := NewStore(DefaultConfig())

	a, err := s.RecordTrade(model.Trade{MarketID: "m1", ExecutedAt: 5})
	require.NoError(t, err)
	b, err := s.RecordTrade(model.Trade{MarketID: "m1", ExecutedAt: 5})
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, "m1:5:1", a.ID)
}

func TestTrades_RefreshMarketStats(t *testing.T) {
	s := NewStore(DefaultConfig())
	require.NoError(t, s.UpsertMarket(model.Market{ID: "m1", Volume: "10"}))

	_, err := s.RecordTrade(model.Trade{MarketID: "m1", Shares: "4", Price: "0.25", ExecutedAt: 9})
	require.NoError(t, err)
	_, err = s.RecordTrade(model.Trade{MarketID: "m1", Cost: "2.5", Price: "0.30", ExecutedAt: 10})
	require.NoError(t, err)

	m, ok := s.Market("m1")
	require.True(t, ok)
	assert.Equal(t, "0.30", m.LastPrice)
	assert.Equal(t, "13.5", m.Volume)
	assert.Equal(t, int64(10), m.UpdatedAt)
}

func TestTrades_UncachedMarketOnlyRing(t *testing.T) {
	s := NewStore(DefaultConfig())

	_, err := s.RecordTrade(model.Trade{MarketID: "ghost", Price: "0.1"})
	require.NoError(t, err)

	_, ok := s.Market("ghost")
	assert.False(t, ok)
	assert.Len(t, s.RecentTradesForMarket("ghost"), 1)
	assert.Empty(t, s.RecentTradesForMarket("other"))
}

func TestTrades_Limit(t *testing.T) {
	s := NewStore(DefaultConfig())
	for i := 0; i < 5; i++ {
		_, err := s.RecordTrade(model.Trade{MarketID: fmt.Sprintf("m%d", i)})
		require.NoError(t, err)
	}

	got := s.RecentTrades(2)
	require.Len(t, got, 2)
	assert.Equal(t, "m4", got[0].MarketID)
	assert.Equal(t, "m3", got[1].MarketID)
}

func TestBalances_LiveWinsOverREST(t *testing.T) {
	s := NewStore(DefaultConfig())

	applied, err := s.ApplyRESTBalance("ag1", "10.00")
	require.NoError(t, err)
	assert.True(t, applied)

	require.NoError(t, s.ApplyLiveBalance("ag1", "42.50"))

	applied, err = s.ApplyRESTBalance("ag1", "10.00")
	require.NoError(t, err)
	assert.False(t, applied, "stale REST payload must not override live value")

	v, ok := s.Balance("ag1")
	require.True(t, ok)
	assert.Equal(t, "42.50", v)
}

func TestBalances_LiveLastWriteWins(t *testing.T) {
	s := NewStore(DefaultConfig())

	require.NoError(t, s.ApplyLiveBalance("ag1", "1"))
	require.NoError(t, s.ApplyLiveBalance("ag1", "2"))

	v, _ := s.Balance("ag1")
	assert.Equal(t, "2", v)
}

func TestBalances_RejectsInvalid(t *testing.T) {
	s := NewStore(DefaultConfig())

	assert.ErrorIs(t, s.ApplyLiveBalance("ag1", "lots"), ErrInvalidValue)
	assert.ErrorIs(t, s.ApplyLiveBalance("", "1"), ErrMissingKey)
	_, err := s.ApplyRESTBalance("ag1", "")
	assert.ErrorIs(t, err, ErrInvalidValue)

	_, ok := s.Balance("ag1")
	assert.False(t, ok)
}

func TestBalances_SortedListing(t *testing.T) {
	s := NewStore(DefaultConfig())
	require.NoError(t, s.ApplyLiveBalance("b", "1"))
	_, err := s.ApplyRESTBalance("a", "2")
	require.NoError(t, err)

	got := s.Balances()
	require.Len(t, got, 2)
	assert.Equal(t, Balance{AgentID: "a", Value: "2", Source: BalanceFromREST}, got[0])
	assert.Equal(t, Balance{AgentID: "b", Value: "1", Source: BalanceFromLive}, got[1])
}

func TestPositions_SetAndRefetchTrigger(t *testing.T) {
	s := NewStore(DefaultConfig())

	assert.NotNil(t, s.Positions("ag1"))
	assert.Empty(t, s.Positions("ag1"))

	require.NoError(t, s.SetPositions("ag1", []model.Position{
		{ID: "p1", MarketID: "m1"},
		{ID: "p1", MarketID: "dup"},
		{ID: "", MarketID: "skip"},
		{ID: "p2", MarketID: "m2"},
	}))
	got := s.Positions("ag1")
	require.Len(t, got, 2)
	assert.Equal(t, "m1", got[0].MarketID)

	assert.Equal(t, uint64(0), s.RefetchTrigger())
	assert.Equal(t, uint64(1), s.BumpRefetchTrigger())
	assert.Equal(t, uint64(2), s.BumpRefetchTrigger())
	assert.Equal(t, uint64(2), s.RefetchTrigger())
}

func TestPositions_Status(t *testing.T) {
	s := NewStore(DefaultConfig())

	s.SetPositionsStatus("ag1", SliceStatus{Error: "boom"})
	assert.Equal(t, "boom", s.PositionsStatus("ag1").Error)

	require.NoError(t, s.SetPositions("ag1", nil))
	assert.Equal(t, SliceStatus{}, s.PositionsStatus("ag1"))
}

func TestAssociations_SetByMarketFromAgents(t *testing.T) {
	s := NewStore(DefaultConfig())

	s.SetByMarketFromAgents([]model.Agent{
		{ID: "a1", EnqueuedMarketIDs: []string{"m1", "m2"}},
		{ID: "a2", EnqueuedMarketIDs: []string{"m1"}},
	})
	assert.Equal(t, map[string][]string{
		"m1": {"a1", "a2"},
		"m2": {"a1"},
	}, s.ByMarket())

	s.SetByMarketFromAgents([]model.Agent{
		{ID: "a2", EnqueuedMarketIDs: []string{"m3"}},
	})
	assert.Equal(t, map[string][]string{"m3": {"a2"}}, s.ByMarket())
	assert.NotNil(t, s.AgentsForMarket("m1"))
	assert.Empty(t, s.AgentsForMarket("m1"))
}

func TestAssociations_AddIsIdempotent(t *testing.T) {
	s := NewStore(DefaultConfig())

	require.NoError(t, s.AddMarketAgent("m1", "a1"))
	require.NoError(t, s.AddMarketAgent("m1", "a1"))
	require.NoError(t, s.AddMarketAgent("m1", "a2"))

	assert.Equal(t, []string{"a1", "a2"}, s.AgentsForMarket("m1"))
	assert.ErrorIs(t, s.AddMarketAgent("", "a1"), ErrMissingKey)
}

func TestDiscarded_AddRemoveClear(t *testing.T) {
	s := NewStore(DefaultConfig())

	assert.NotNil(t, s.Discarded("ag1"))
	assert.Empty(t, s.Discarded("ag1"))

	require.NoError(t, s.AddDiscarded("ag1", "m2"))
	require.NoError(t, s.AddDiscarded("ag1", "m1"))
	require.NoError(t, s.AddDiscarded("ag1", "m1"))
	assert.Equal(t, []string{"m1", "m2"}, s.Discarded("ag1"))
	assert.True(t, s.IsDiscarded("ag1", "m1"))

	s.RemoveDiscarded("ag1", "m1")
	s.RemoveDiscarded("ag1", "m1")
	s.RemoveDiscarded("nobody", "m1")
	assert.Equal(t, []string{"m2"}, s.Discarded("ag1"))
	assert.False(t, s.IsDiscarded("ag1", "m1"))

	require.NoError(t, s.AddDiscarded("ag2", "m9"))
	s.ClearDiscarded("ag1")
	assert.Empty(t, s.Discarded("ag1"))
	assert.Equal(t, []string{"m9"}, s.Discarded("ag2"))
}

func TestOrderBook_SnapshotNormalizes(t *testing.T) {
	s := NewStore(DefaultConfig())

	require.NoError(t, s.ApplyBookSnapshot(model.OrderBook{
		MarketID: "m1",
		Bids: []model.PriceLevel{
			{Price: "0.40", Size: "5"},
			{Price: "0.45", Size: "1"},
			{Price: "0.40", Size: "2"},
			{Price: "0.30", Size: "0"},
		},
		Asks: []model.PriceLevel{
			{Price: "0.60", Size: "3"},
			{Price: "0.55", Size: "4"},
		},
		Seq: 7,
	}))

	book, ok := s.OrderBook("m1")
	require.True(t, ok)
	assert.Equal(t, []model.PriceLevel{{Price: "0.45", Size: "1"}, {Price: "0.4", Size: "7"}}, book.Bids)
	assert.Equal(t, []model.PriceLevel{{Price: "0.55", Size: "4"}, {Price: "0.6", Size: "3"}}, book.Asks)
	assert.Equal(t, int64(7), book.Seq)
}

func TestOrderBook_Delta(t *testing.T) {
	s := NewStore(DefaultConfig())
	require.NoError(t, s.ApplyBookSnapshot(model.OrderBook{
		MarketID: "m1",
		Bids:     []model.PriceLevel{{Price: "0.40", Size: "5"}},
		Seq:      1,
	}))

	tests := []struct {
		name    string
		delta   model.OrderBookDelta
		wantErr error
		bids    []model.PriceLevel
	}{
		{
			name:  "add new level",
			delta: model.OrderBookDelta{MarketID: "m1", Side: model.SideBid, Price: "0.42", Delta: "3", Seq: 2},
			bids:  []model.PriceLevel{{Price: "0.42", Size: "3"}, {Price: "0.40", Size: "5"}},
		},
		{
			name:  "shrink existing level",
			delta: model.OrderBookDelta{MarketID: "m1", Side: model.SideBid, Price: "0.4", Delta: "-2", Seq: 3},
			bids:  []model.PriceLevel{{Price: "0.42", Size: "3"}, {Price: "0.40", Size: "3"}},
		},
		{
			name:  "remove level at zero",
			delta: model.OrderBookDelta{MarketID: "m1", Side: model.SideBid, Price: "0.42", Delta: "-3", Seq: 4},
			bids:  []model.PriceLevel{{Price: "0.40", Size: "3"}},
		},
		{
			name:    "stale sequence",
			delta:   model.OrderBookDelta{MarketID: "m1", Side: model.SideBid, Price: "0.40", Delta: "1", Seq: 4},
			wantErr: ErrStaleDelta,
			bids:    []model.PriceLevel{{Price: "0.40", Size: "3"}},
		},
		{
			name:    "unknown book",
			delta:   model.OrderBookDelta{MarketID: "m2", Side: model.SideAsk, Price: "0.40", Delta: "1"},
			wantErr: ErrUnknownBook,
			bids:    []model.PriceLevel{{Price: "0.40", Size: "3"}},
		},
		{
			name:    "bad side",
			delta:   model.OrderBookDelta{MarketID: "m1", Side: "mid", Price: "0.40", Delta: "1"},
			wantErr: ErrInvalidValue,
			bids:    []model.PriceLevel{{Price: "0.40", Size: "3"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.ApplyBookDelta(tt.delta, 99)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}

			book, ok := s.OrderBook("m1")
			require.True(t, ok)
			require.Len(t, book.Bids, len(tt.bids))
			for i := range tt.bids {
				assert.Equal(t, tt.bids[i].Size, book.Bids[i].Size)
			}
		})
	}
}
