package model

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// ErrMissingType is returned when a frame decodes but carries no type.
var ErrMissingType = errors.New("envelope missing type")

// EventType identifies the kind of an Envelope.
type EventType string

// Inbound event types.
const (
	EventMarketSnapshot    EventType = "market.snapshot"
	EventMarketUpdated     EventType = "market.updated"
	EventTradeExecuted     EventType = "trade.executed"
	EventAgentUpdated      EventType = "agent.updated"
	EventPositionUpdated   EventType = "position.updated"
	EventOrderbookSnapshot EventType = "orderbook.snapshot"
	EventOrderbookDelta    EventType = "orderbook.delta"
)

// Control frame types. Subscribe and unsubscribe are sent by the client; the
// rest are acknowledgements from the backend.
const (
	ControlSubscribe    EventType = "subscribe"
	ControlUnsubscribe  EventType = "unsubscribe"
	ControlSubscribed   EventType = "subscribed"
	ControlUnsubscribed EventType = "unsubscribed"
	ControlError        EventType = "error"
)

// Envelope is the transport unit in both directions.
type Envelope struct {
	Type      EventType       `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"` // ms since epoch
}

// DecodeEnvelope parses a text frame. Frames without a type are rejected.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, err
	}
	if env.Type == "" {
		return Envelope{}, ErrMissingType
	}
	return env, nil
}

// Encode serializes the envelope for the wire.
func (e Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// -----------------------------------------------------------------------------
// Topics
// -----------------------------------------------------------------------------

// Topic identifies a subscribable stream on the real-time channel.
type Topic string

// Collection-level topics.
const (
	TopicOpenMarkets Topic = "markets:open"
	TopicAllTrades   Topic = "trades:all"
)

// MarketTopic returns the topic for a single market.
func MarketTopic(marketID string) Topic {
	return Topic("market:" + marketID)
}

// AgentTopic returns the topic for a single agent.
func AgentTopic(agentID string) Topic {
	return Topic("agent:" + agentID)
}

// MarketID returns the market id if t is a market topic.
func (t Topic) MarketID() (string, bool) {
	return strings.CutPrefix(string(t), "market:")
}

// TopicPayload is the payload of subscribe and unsubscribe frames.
type TopicPayload struct {
	Topic Topic `json:"topic"`
}

// SubscribeFrame builds a subscribe control frame for topic.
func SubscribeFrame(topic Topic) Envelope {
	return controlFrame(ControlSubscribe, topic)
}

// UnsubscribeFrame builds an unsubscribe control frame for topic.
func UnsubscribeFrame(topic Topic) Envelope {
	return controlFrame(ControlUnsubscribe, topic)
}

func controlFrame(t EventType, topic Topic) Envelope {
	payload, _ := json.Marshal(TopicPayload{Topic: topic})
	return Envelope{
		Type:      t,
		Payload:   payload,
		Timestamp: time.Now().UnixMilli(),
	}
}

// ControlTopic extracts the topic of a subscribe/unsubscribe frame.
func (e Envelope) ControlTopic() (Topic, bool) {
	if e.Type != ControlSubscribe && e.Type != ControlUnsubscribe {
		return "", false
	}
	var p TopicPayload
	if err := json.Unmarshal(e.Payload, &p); err != nil || p.Topic == "" {
		return "", false
	}
	return p.Topic, true
}
