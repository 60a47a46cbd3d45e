package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rickgao/market-sync/internal/cache"
	"github.com/rickgao/market-sync/internal/model"
)

func envelope(t model.EventType, payload string) model.Envelope {
	env := model.Envelope{Type: t, Timestamp: time.Now().UnixMilli()}
	if payload != "" {
		env.Payload = json.RawMessage(payload)
	}
	return env
}

func newTestRouter(cfg RouterConfig) (*Router, *cache.Store) {
	store := cache.NewStore(cache.DefaultConfig())
	return NewRouter(cfg, store, nil), store
}

func TestDefaultRouterConfig(t *testing.T) {
	cfg := DefaultRouterConfig()

	if cfg.InputBufferSize != 1000 {
		t.Errorf("InputBufferSize = %d, want 1000", cfg.InputBufferSize)
	}
	if cfg.TradeBufferMax != 100000 {
		t.Errorf("TradeBufferMax = %d, want 100000", cfg.TradeBufferMax)
	}
	if cfg.ForwardTrades {
		t.Error("ForwardTrades should default to false")
	}
}

func TestRouter_StartStopDrainsQueue(t *testing.T) {
	r, store := newTestRouter(DefaultRouterConfig())

	ctx := context.Background()
	if err := r.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	for i := 0; i < 20; i++ {
		r.Handle(envelope(model.EventMarketUpdated, fmt.Sprintf(`{"id":"m%d"}`, i)))
	}

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	if err := r.Stop(stopCtx); err != nil {
		t.Errorf("Stop failed: %v", err)
	}

	if got := len(store.Markets()); got != 20 {
		t.Errorf("markets = %d, want 20", got)
	}

	// Handle after Stop is a no-op
	r.Handle(envelope(model.EventMarketUpdated, `{"id":"late"}`))
	if _, ok := store.Market("late"); ok {
		t.Error("envelope handled after Stop should be dropped")
	}
}

func TestRouter_ReceiptOrderLastWriteWins(t *testing.T) {
	r, store := newTestRouter(DefaultRouterConfig())
	r.Start(context.Background())

	for _, price := range []string{"0.10", "0.20", "0.30"} {
		r.Handle(envelope(model.EventMarketUpdated, `{"id":"m1","yesPrice":"`+price+`"}`))
	}
	r.Stop(context.Background())

	m, ok := store.Market("m1")
	if !ok {
		t.Fatal("market m1 not cached")
	}
	if m.YesPrice != "0.30" {
		t.Errorf("YesPrice = %q, want %q", m.YesPrice, "0.30")
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		env     model.Envelope
		want    model.EventType
		wantErr error
	}{
		{"market update", envelope(model.EventMarketUpdated, `{"id":"m1"}`), model.EventMarketUpdated, nil},
		{"market snapshot list", envelope(model.EventMarketSnapshot, `{"markets":[{"id":"a"},{"id":"b"}]}`), model.EventMarketSnapshot, nil},
		{"market snapshot array", envelope(model.EventMarketSnapshot, `[{"id":"a"}]`), model.EventMarketSnapshot, nil},
		{"market category named markets", envelope(model.EventMarketUpdated, `{"id":"m9","category":"markets"}`), model.EventMarketUpdated, nil},
		{"market list not an array", envelope(model.EventMarketSnapshot, `{"markets":"open"}`), "", ErrBadPayload},
		{"market payload not an object", envelope(model.EventMarketUpdated, `"m1"`), "", ErrBadPayload},
		{"market missing id", envelope(model.EventMarketUpdated, `{"title":"?"}`), "", ErrMissingField},
		{"market bad json", envelope(model.EventMarketUpdated, `{"id":`), "", ErrBadPayload},
		{"market empty payload", envelope(model.EventMarketUpdated, ``), "", ErrBadPayload},
		{"trade", envelope(model.EventTradeExecuted, `{"marketId":"m1","price":0.5,"executedAt":1}`), model.EventTradeExecuted, nil},
		{"trade missing market", envelope(model.EventTradeExecuted, `{"executedAt":1}`), "", ErrMissingField},
		{"trade missing executedAt", envelope(model.EventTradeExecuted, `{"marketId":"m1"}`), "", ErrMissingField},
		{"agent by agentId", envelope(model.EventAgentUpdated, `{"agentId":"ag1","balance":"1"}`), model.EventAgentUpdated, nil},
		{"agent missing id", envelope(model.EventAgentUpdated, `{"balance":"1"}`), "", ErrMissingField},
		{"agent balance wrong type", envelope(model.EventAgentUpdated, `{"id":"ag1","balance":true}`), "", ErrBadPayload},
		{"position without payload", envelope(model.EventPositionUpdated, ``), model.EventPositionUpdated, nil},
		{"book snapshot", envelope(model.EventOrderbookSnapshot, `{"marketId":"m1","bids":[["0.4",5]]}`), model.EventOrderbookSnapshot, nil},
		{"book snapshot bad level", envelope(model.EventOrderbookSnapshot, `{"marketId":"m1","bids":[["0.4"]]}`), "", ErrBadPayload},
		{"book delta", envelope(model.EventOrderbookDelta, `{"marketId":"m1","side":"bid","price":"0.4","delta":-1}`), model.EventOrderbookDelta, nil},
		{"book delta missing market", envelope(model.EventOrderbookDelta, `{"side":"bid"}`), "", ErrMissingField},
		{"subscribed ack", envelope(model.ControlSubscribed, `{"topic":"market:m1"}`), model.ControlSubscribed, nil},
		{"control error", envelope(model.ControlError, `{"code":"bad_topic","message":"nope"}`), model.ControlError, nil},
		{"unknown type", envelope("leaderboard.changed", `{}`), "leaderboard.changed", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := Parse(tt.env)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Parse() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse() unexpected error: %v", err)
			}
			if ev.eventType() != tt.want {
				t.Errorf("event type = %q, want %q", ev.eventType(), tt.want)
			}
		})
	}
}

func TestParse_MarketShapes(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantIDs []string
	}{
		{"single", `{"id":"m1"}`, []string{"m1"}},
		{"value mentions markets", `{"id":"m9","title":"Who wins?","category":"markets","yesPrice":"0.4"}`, []string{"m9"}},
		{"id alongside markets key", `{"id":"m3","markets":[{"id":"x"}]}`, []string{"m3"}},
		{"wrapped list", `{"markets":[{"id":"a"},{"id":"b"}]}`, []string{"a", "b"}},
		{"bare array", `[{"id":"a"},{"id":"b"}]`, []string{"a", "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := Parse(envelope(model.EventMarketSnapshot, tt.payload))
			if err != nil {
				t.Fatalf("Parse() unexpected error: %v", err)
			}
			me, ok := ev.(MarketEvent)
			if !ok {
				t.Fatalf("event = %T, want MarketEvent", ev)
			}
			if len(me.Markets) != len(tt.wantIDs) {
				t.Fatalf("markets = %d, want %d", len(me.Markets), len(tt.wantIDs))
			}
			for i, id := range tt.wantIDs {
				if me.Markets[i].ID != id {
					t.Errorf("markets[%d].ID = %q, want %q", i, me.Markets[i].ID, id)
				}
			}
		})
	}
}

func TestRouter_MarketWithMarketsCategoryIsCached(t *testing.T) {
	r, store := newTestRouter(DefaultRouterConfig())

	r.Route(envelope(model.EventMarketUpdated, `{"id":"m9","title":"Who wins?","category":"markets","yesPrice":"0.4"}`))

	m, ok := store.Market("m9")
	if !ok {
		t.Fatal("market m9 not cached")
	}
	if m.Category != "markets" {
		t.Errorf("Category = %q, want %q", m.Category, "markets")
	}
	if m.YesPrice != "0.4" {
		t.Errorf("YesPrice = %q, want %q", m.YesPrice, "0.4")
	}
	stats := r.Stats()
	if stats.MessagesRouted != 1 || stats.ParseErrors != 0 {
		t.Errorf("routed = %d, parseErrors = %d, want 1 and 0", stats.MessagesRouted, stats.ParseErrors)
	}
}

func TestParse_UnknownIsUnknownEvent(t *testing.T) {
	ev, err := Parse(envelope("season.started", `not even json`))
	if err != nil {
		t.Fatalf("Parse() unexpected error: %v", err)
	}
	if _, ok := ev.(UnknownEvent); !ok {
		t.Errorf("event = %T, want UnknownEvent", ev)
	}
}

func TestRouter_MalformedAndUnknownAreNoOps(t *testing.T) {
	r, store := newTestRouter(DefaultRouterConfig())
	store.UpsertMarket(model.Market{ID: "m1", YesPrice: "0.5"})
	before := store.Stats()

	envs := []model.Envelope{
		envelope(model.EventMarketUpdated, `{"title":"no id"}`),
		envelope(model.EventMarketUpdated, `[1,2`),
		envelope(model.EventTradeExecuted, `{"price":"0.5"}`),
		envelope(model.EventAgentUpdated, `{"balance":"5"}`),
		envelope(model.EventAgentUpdated, `{"id":"ag1","balance":"lots"}`),
		envelope(model.EventOrderbookDelta, `{"marketId":"m1","side":"bid","price":"0.4","delta":"1"}`),
		envelope("leaderboard.changed", `{"id":"m1"}`),
		envelope(model.ControlUnsubscribed, `{"topic":"market:m1"}`),
	}
	for _, env := range envs {
		r.Route(env)
	}

	after := store.Stats()
	if before != after {
		t.Errorf("cache stats changed: before %+v, after %+v", before, after)
	}
	if m, _ := store.Market("m1"); m.YesPrice != "0.5" {
		t.Errorf("YesPrice = %q, want unchanged 0.5", m.YesPrice)
	}

	stats := r.Stats()
	if stats.ParseErrors != 4 {
		t.Errorf("ParseErrors = %d, want 4", stats.ParseErrors)
	}
	if stats.Rejected != 2 {
		t.Errorf("Rejected = %d, want 2", stats.Rejected)
	}
	if stats.UnknownMessages != 1 {
		t.Errorf("UnknownMessages = %d, want 1", stats.UnknownMessages)
	}
	if stats.ControlMessages != 1 {
		t.Errorf("ControlMessages = %d, want 1", stats.ControlMessages)
	}
	if stats.MessagesRouted != 0 {
		t.Errorf("MessagesRouted = %d, want 0", stats.MessagesRouted)
	}
}

func TestRouter_SixtyTradesKeepFifty(t *testing.T) {
	r, store := newTestRouter(DefaultRouterConfig())

	for i := 1; i <= 60; i++ {
		r.Route(envelope(model.EventTradeExecuted,
			fmt.Sprintf(`{"marketId":"m1","price":"0.5","shares":"1","executedAt":%d}`, 1000+i)))
	}

	trades := store.RecentTrades(0)
	if len(trades) != 50 {
		t.Fatalf("len(trades) = %d, want 50", len(trades))
	}
	if trades[0].ExecutedAt != 1060 {
		t.Errorf("newest ExecutedAt = %d, want 1060", trades[0].ExecutedAt)
	}
	if trades[49].ExecutedAt != 1011 {
		t.Errorf("oldest kept ExecutedAt = %d, want 1011", trades[49].ExecutedAt)
	}
}

func TestRouter_TradeUpdatesMarketAndForwards(t *testing.T) {
	cfg := DefaultRouterConfig()
	cfg.ForwardTrades = true
	r, store := newTestRouter(cfg)
	store.UpsertMarket(model.Market{ID: "m1", Volume: "0"})

	r.Route(envelope(model.EventTradeExecuted, `{"marketId":"m1","agentId":"ag1","shares":10,"price":"0.62","executedAt":5}`))

	m, _ := store.Market("m1")
	if m.LastPrice != "0.62" {
		t.Errorf("LastPrice = %q, want 0.62", m.LastPrice)
	}
	if m.Volume != "6.2" {
		t.Errorf("Volume = %q, want 6.2", m.Volume)
	}

	item, ok := r.Trades().TryPop()
	if !ok {
		t.Fatal("trade not forwarded")
	}
	if item.AgentID != "ag1" || item.Shares != "10" {
		t.Errorf("forwarded trade = %+v", item)
	}
}

func TestRouter_TradesNotForwardedByDefault(t *testing.T) {
	r, _ := newTestRouter(DefaultRouterConfig())

	r.Route(envelope(model.EventTradeExecuted, `{"marketId":"m1","executedAt":5}`))

	if r.Trades().Len() != 0 {
		t.Errorf("trade buffer len = %d, want 0", r.Trades().Len())
	}
}

func TestRouter_LiveBalanceBeatsREST(t *testing.T) {
	r, store := newTestRouter(DefaultRouterConfig())

	store.ApplyRESTBalance("ag1", "10.00")
	r.Route(envelope(model.EventAgentUpdated, `{"id":"ag1","balance":"42.50","enqueuedMarketIds":["m1","m2"]}`))

	// A stale REST payload for the same agent arrives afterwards
	if applied, _ := store.ApplyRESTBalance("ag1", "10.00"); applied {
		t.Error("REST balance applied over live value")
	}

	if got, _ := store.Balance("ag1"); got != "42.50" {
		t.Errorf("balance = %q, want %q", got, "42.50")
	}
	if got := store.AgentsForMarket("m2"); len(got) != 1 || got[0] != "ag1" {
		t.Errorf("AgentsForMarket(m2) = %v, want [ag1]", got)
	}
}

func TestRouter_NumericBalanceKeepsLiteral(t *testing.T) {
	r, store := newTestRouter(DefaultRouterConfig())

	r.Route(envelope(model.EventAgentUpdated, `{"agentId":"ag2","balance":42.50}`))

	if got, _ := store.Balance("ag2"); got != "42.50" {
		t.Errorf("balance = %q, want %q", got, "42.50")
	}
}

func TestRouter_AgentWithoutBalance(t *testing.T) {
	r, store := newTestRouter(DefaultRouterConfig())

	r.Route(envelope(model.EventAgentUpdated, `{"id":"ag1","enqueuedMarketIds":["m1"]}`))

	if _, ok := store.Balance("ag1"); ok {
		t.Error("balance should not be set")
	}
	if got := store.AgentsForMarket("m1"); len(got) != 1 {
		t.Errorf("AgentsForMarket(m1) = %v, want [ag1]", got)
	}
}

func TestRouter_PositionUpdateBumpsTrigger(t *testing.T) {
	r, store := newTestRouter(DefaultRouterConfig())

	r.Route(envelope(model.EventPositionUpdated, `{"positions":"ignored"}`))
	r.Route(envelope(model.EventPositionUpdated, ``))

	if got := store.RefetchTrigger(); got != 2 {
		t.Errorf("RefetchTrigger = %d, want 2", got)
	}
}

func TestRouter_OrderBook(t *testing.T) {
	r, store := newTestRouter(DefaultRouterConfig())

	r.Route(envelope(model.EventOrderbookSnapshot,
		`{"marketId":"m1","bids":[["0.40",5],{"price":"0.45","size":"2"}],"asks":[["0.60","3"]],"seq":1}`))
	r.Route(envelope(model.EventOrderbookDelta,
		`{"marketId":"m1","side":"ask","price":"0.60","delta":"-3","seq":2}`))
	r.Route(envelope(model.EventOrderbookDelta,
		`{"marketId":"m1","side":"bid","price":"0.40","delta":"1","seq":2}`))

	book, ok := store.OrderBook("m1")
	if !ok {
		t.Fatal("book m1 not cached")
	}
	if len(book.Asks) != 0 {
		t.Errorf("asks = %v, want empty", book.Asks)
	}
	if len(book.Bids) != 2 || book.Bids[0].Price != "0.45" || book.Bids[1].Size != "5" {
		t.Errorf("bids = %v", book.Bids)
	}
	if r.Stats().Rejected != 1 {
		t.Errorf("Rejected = %d, want 1 (stale delta)", r.Stats().Rejected)
	}
}
