package router

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/rickgao/market-sync/internal/model"
)

// RouterConfig holds configuration for the Event Router.
type RouterConfig struct {
	InputBufferSize int  // Initial inbound buffer size. Default: 1000
	TradeBufferSize int  // Initial trade output buffer size. Default: 1000
	TradeBufferMax  int  // Trade buffer cap, oldest evicted beyond. Default: 100000
	ForwardTrades   bool // Copy executed trades to the trade buffer (journal)
}

// DefaultRouterConfig returns default configuration.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		InputBufferSize: 1000,
		TradeBufferSize: 1000,
		TradeBufferMax:  100000,
	}
}

// -----------------------------------------------------------------------------
// Events
// -----------------------------------------------------------------------------

// Event is a decoded inbound Envelope. The set of implementations is closed;
// UnknownEvent covers types this build does not handle.
type Event interface {
	eventType() model.EventType
}

// MarketEvent upserts one or more markets.
type MarketEvent struct {
	Type    model.EventType // market.snapshot or market.updated
	Markets []model.Market
}

// TradeEvent records an executed trade.
type TradeEvent struct {
	Trade model.Trade
}

// AgentEvent carries a live agent update. Balance is nil when the payload
// did not include one.
type AgentEvent struct {
	AgentID           string
	Balance           *string
	EnqueuedMarketIDs []string
}

// PositionEvent signals that position lists should be refetched.
type PositionEvent struct{}

// BookSnapshotEvent replaces a market's order book.
type BookSnapshotEvent struct {
	Book model.OrderBook
}

// BookDeltaEvent adjusts one level of a market's order book.
type BookDeltaEvent struct {
	Delta      model.OrderBookDelta
	ReceivedAt int64
}

// ControlEvent is a subscription acknowledgement or error from the backend.
type ControlEvent struct {
	Type    model.EventType
	Topic   model.Topic
	Code    string
	Message string
}

// UnknownEvent is an Envelope of a type this router does not handle.
type UnknownEvent struct {
	Type model.EventType
}

func (e MarketEvent) eventType() model.EventType { return e.Type }
func (TradeEvent) eventType() model.EventType { return model.EventTradeExecuted }
func (AgentEvent) eventType() model.EventType { return model.EventAgentUpdated }
func (PositionEvent) eventType() model.EventType { return model.EventPositionUpdated }
func (BookSnapshotEvent) eventType() model.EventType { return model.EventOrderbookSnapshot }
func (BookDeltaEvent) eventType() model.EventType { return model.EventOrderbookDelta }
func (e ControlEvent) eventType() model.EventType { return e.Type }
func (e UnknownEvent) eventType() model.EventType { return e.Type }

// -----------------------------------------------------------------------------
// Wire types for JSON parsing
// -----------------------------------------------------------------------------

// flexString accepts a JSON string or number and keeps its literal text.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", data)
	}
	*f = flexString(n.String())
	return nil
}

// marketWire is the wire format of a market in market.* payloads.
type marketWire struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Category  string     `json:"category"`
	Status    string     `json:"status"`
	YesPrice  flexString `json:"yesPrice"`
	NoPrice   flexString `json:"noPrice"`
	LastPrice flexString `json:"lastPrice"`
	Volume    flexString `json:"volume"`
	Outcome   string     `json:"outcome"`
	CloseTime int64      `json:"closeTime"`
	UpdatedAt int64      `json:"updatedAt"`
}

// tradeWire is the wire format of trade.executed payloads.
type tradeWire struct {
	MarketID   string     `json:"marketId"`
	AgentID    string     `json:"agentId"`
	Side       string     `json:"side"`
	Action     string     `json:"action"`
	Shares     flexString `json:"shares"`
	Price      flexString `json:"price"`
	Cost       flexString `json:"cost"`
	ExecutedAt int64      `json:"executedAt"`
}

// agentWire is the wire format of agent.updated payloads. Either id or
// agentId identifies the agent.
type agentWire struct {
	ID                string      `json:"id"`
	AgentID           string      `json:"agentId"`
	Balance           *flexString `json:"balance"`
	EnqueuedMarketIDs []string    `json:"enqueuedMarketIds"`
}

// bookWire is the wire format of orderbook.snapshot payloads. Levels are
// either {"price","size"} objects or ["price", size] pairs.
type bookWire struct {
	MarketID  string            `json:"marketId"`
	Bids      []json.RawMessage `json:"bids"`
	Asks      []json.RawMessage `json:"asks"`
	Seq       int64             `json:"seq"`
	UpdatedAt int64             `json:"updatedAt"`
}

// levelWire is the object form of a price level.
type levelWire struct {
	Price flexString `json:"price"`
	Size  flexString `json:"size"`
}

// deltaWire is the wire format of orderbook.delta payloads.
type deltaWire struct {
	MarketID string     `json:"marketId"`
	Side     string     `json:"side"`
	Price    flexString `json:"price"`
	Delta    flexString `json:"delta"`
	Seq      int64      `json:"seq"`
}

// controlWire is the payload of subscribed, unsubscribed and error frames.
type controlWire struct {
	Topic   string `json:"topic"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
