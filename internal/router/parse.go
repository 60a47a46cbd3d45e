package router

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rickgao/market-sync/internal/model"
)

// Errors
var (
	ErrMissingField = errors.New("missing required field")
	ErrBadPayload   = errors.New("malformed payload")
)

// Parse decodes an Envelope into its Event. Unknown types yield an
// UnknownEvent and no error. Parse never panics.
func Parse(env model.Envelope) (Event, error) {
	switch env.Type {
	case model.EventMarketSnapshot, model.EventMarketUpdated:
		markets, err := parseMarkets(env.Payload)
		if err != nil {
			return nil, err
		}
		return MarketEvent{Type: env.Type, Markets: markets}, nil

	case model.EventTradeExecuted:
		return parseTrade(env.Payload)

	case model.EventAgentUpdated:
		return parseAgent(env.Payload)

	case model.EventPositionUpdated:
		// Signal only, payload is not consumed
		return PositionEvent{}, nil

	case model.EventOrderbookSnapshot:
		return parseBookSnapshot(env.Payload)

	case model.EventOrderbookDelta:
		ev, err := parseBookDelta(env.Payload)
		if err != nil {
			return nil, err
		}
		ev.ReceivedAt = env.Timestamp
		return ev, nil

	case model.ControlSubscribed, model.ControlUnsubscribed, model.ControlError:
		var wire controlWire
		if len(env.Payload) > 0 {
			if err := json.Unmarshal(env.Payload, &wire); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
			}
		}
		return ControlEvent{
			Type:    env.Type,
			Topic:   model.Topic(wire.Topic),
			Code:    wire.Code,
			Message: wire.Message,
		}, nil

	default:
		return UnknownEvent{Type: env.Type}, nil
	}
}

func unmarshalPayload(payload json.RawMessage, v any) error {
	if len(bytes.TrimSpace(payload)) == 0 {
		return fmt.Errorf("%w: empty payload", ErrBadPayload)
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	return nil
}

// parseMarkets accepts a single market, an array of markets, or an object
// whose only market data is a top-level "markets" array. An object with an
// id is always a single market. Every market must carry an id.
func parseMarkets(payload json.RawMessage) ([]model.Market, error) {
	trimmed := bytes.TrimSpace(payload)

	var wires []marketWire
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := unmarshalPayload(trimmed, &wires); err != nil {
			return nil, err
		}
	} else {
		var fields map[string]json.RawMessage
		if err := unmarshalPayload(trimmed, &fields); err != nil {
			return nil, err
		}
		_, hasID := fields["id"]
		list, hasList := fields["markets"]
		if hasList && !hasID {
			if err := unmarshalPayload(list, &wires); err != nil {
				return nil, err
			}
		} else {
			var one marketWire
			if err := unmarshalPayload(trimmed, &one); err != nil {
				return nil, err
			}
			wires = []marketWire{one}
		}
	}

	markets := make([]model.Market, 0, len(wires))
	for _, w := range wires {
		if w.ID == "" {
			return nil, fmt.Errorf("%w: market id", ErrMissingField)
		}
		markets = append(markets, model.Market{
			ID:        w.ID,
			Title:     w.Title,
			Category:  w.Category,
			Status:    w.Status,
			YesPrice:  string(w.YesPrice),
			NoPrice:   string(w.NoPrice),
			LastPrice: string(w.LastPrice),
			Volume:    string(w.Volume),
			Outcome:   w.Outcome,
			CloseTime: w.CloseTime,
			UpdatedAt: w.UpdatedAt,
		})
	}
	return markets, nil
}

func parseTrade(payload json.RawMessage) (TradeEvent, error) {
	var w tradeWire
	if err := unmarshalPayload(payload, &w); err != nil {
		return TradeEvent{}, err
	}
	if w.MarketID == "" {
		return TradeEvent{}, fmt.Errorf("%w: trade marketId", ErrMissingField)
	}
	if w.ExecutedAt == 0 {
		return TradeEvent{}, fmt.Errorf("%w: trade executedAt", ErrMissingField)
	}

	return TradeEvent{Trade: model.Trade{
		MarketID:   w.MarketID,
		AgentID:    w.AgentID,
		Side:       w.Side,
		Action:     w.Action,
		Shares:     string(w.Shares),
		Price:      string(w.Price),
		Cost:       string(w.Cost),
		ExecutedAt: w.ExecutedAt,
	}}, nil
}

func parseAgent(payload json.RawMessage) (AgentEvent, error) {
	var w agentWire
	if err := unmarshalPayload(payload, &w); err != nil {
		return AgentEvent{}, err
	}

	id := w.AgentID
	if id == "" {
		id = w.ID
	}
	if id == "" {
		return AgentEvent{}, fmt.Errorf("%w: agentId", ErrMissingField)
	}

	ev := AgentEvent{AgentID: id, EnqueuedMarketIDs: w.EnqueuedMarketIDs}
	if w.Balance != nil && *w.Balance != "" {
		balance := string(*w.Balance)
		ev.Balance = &balance
	}
	return ev, nil
}

func parseBookSnapshot(payload json.RawMessage) (BookSnapshotEvent, error) {
	var w bookWire
	if err := unmarshalPayload(payload, &w); err != nil {
		return BookSnapshotEvent{}, err
	}
	if w.MarketID == "" {
		return BookSnapshotEvent{}, fmt.Errorf("%w: book marketId", ErrMissingField)
	}

	bids, err := parseLevels(w.Bids)
	if err != nil {
		return BookSnapshotEvent{}, err
	}
	asks, err := parseLevels(w.Asks)
	if err != nil {
		return BookSnapshotEvent{}, err
	}

	return BookSnapshotEvent{Book: model.OrderBook{
		MarketID:  w.MarketID,
		Bids:      bids,
		Asks:      asks,
		Seq:       w.Seq,
		UpdatedAt: w.UpdatedAt,
	}}, nil
}

// parseLevels reads price levels as objects or [price, size] pairs.
func parseLevels(raw []json.RawMessage) ([]model.PriceLevel, error) {
	levels := make([]model.PriceLevel, 0, len(raw))
	for _, r := range raw {
		trimmed := bytes.TrimSpace(r)
		if len(trimmed) > 0 && trimmed[0] == '[' {
			var pair []flexString
			if err := json.Unmarshal(trimmed, &pair); err != nil || len(pair) != 2 {
				return nil, fmt.Errorf("%w: level %s", ErrBadPayload, trimmed)
			}
			levels = append(levels, model.PriceLevel{Price: string(pair[0]), Size: string(pair[1])})
			continue
		}

		var lw levelWire
		if err := json.Unmarshal(trimmed, &lw); err != nil {
			return nil, fmt.Errorf("%w: level %s", ErrBadPayload, trimmed)
		}
		levels = append(levels, model.PriceLevel{Price: string(lw.Price), Size: string(lw.Size)})
	}
	return levels, nil
}

func parseBookDelta(payload json.RawMessage) (BookDeltaEvent, error) {
	var w deltaWire
	if err := unmarshalPayload(payload, &w); err != nil {
		return BookDeltaEvent{}, err
	}
	if w.MarketID == "" {
		return BookDeltaEvent{}, fmt.Errorf("%w: delta marketId", ErrMissingField)
	}

	return BookDeltaEvent{Delta: model.OrderBookDelta{
		MarketID: w.MarketID,
		Side:     w.Side,
		Price:    string(w.Price),
		Delta:    string(w.Delta),
		Seq:      w.Seq,
	}}, nil
}
