package model

// -----------------------------------------------------------------------------
// Entity Types
// -----------------------------------------------------------------------------

// Market is a prediction market as pushed by the backend or returned by REST.
type Market struct {
	ID        string `json:"id"`        // Primary key
	Title     string `json:"title"`     // Display question
	Category  string `json:"category"`  // Optional category
	Status    string `json:"status"`    // open, closed, resolved
	YesPrice  string `json:"yesPrice"`  // Current YES price (0-1)
	NoPrice   string `json:"noPrice"`   // Current NO price (0-1)
	LastPrice string `json:"lastPrice"` // Last traded price
	Volume    string `json:"volume"`    // Total traded volume
	Outcome   string `json:"outcome"`   // Resolution outcome, empty until resolved
	CloseTime int64  `json:"closeTime"` // ms since epoch, 0 if open-ended
	UpdatedAt int64  `json:"updatedAt"` // ms since epoch
}

// Trade is an executed trade.
type Trade struct {
	MarketID   string `json:"marketId"`
	AgentID    string `json:"agentId"`
	Side       string `json:"side"`   // "yes" or "no"
	Action     string `json:"action"` // "buy" or "sell"
	Shares     string `json:"shares"`
	Price      string `json:"price"`
	Cost       string `json:"cost"`
	ExecutedAt int64  `json:"executedAt"` // ms since epoch
}

// Agent is a trading agent with a cash balance.
type Agent struct {
	ID                string   `json:"id"`
	Name              string   `json:"name"`
	Balance           string   `json:"balance"`
	EnqueuedMarketIDs []string `json:"enqueuedMarketIds"`
	UpdatedAt         int64    `json:"updatedAt"`
}

// Position is an agent's holding in one market side.
type Position struct {
	ID       string `json:"id"`
	AgentID  string `json:"agentId"`
	MarketID string `json:"marketId"`
	Side     string `json:"side"`
	Shares   string `json:"shares"`
	AvgPrice string `json:"avgPrice"`
	Value    string `json:"value"`
}

// PriceLevel is one level of an order book side.
type PriceLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// OrderBook is the visible depth of a market.
type OrderBook struct {
	MarketID  string       `json:"marketId"`
	Bids      []PriceLevel `json:"bids"`
	Asks      []PriceLevel `json:"asks"`
	Seq       int64        `json:"seq"`
	UpdatedAt int64        `json:"updatedAt"`
}

// Candle is an OHLC bucket for a market's price history.
type Candle struct {
	MarketID string `json:"marketId"`
	Start    int64  `json:"start"` // ms since epoch
	Open     string `json:"open"`
	High     string `json:"high"`
	Low      string `json:"low"`
	Close    string `json:"close"`
	Volume   string `json:"volume"`
}

// Order book sides.
const (
	SideBid = "bid"
	SideAsk = "ask"
)

// OrderBookDelta is a signed size change at one price level.
type OrderBookDelta struct {
	MarketID string `json:"marketId"`
	Side     string `json:"side"`  // "bid" or "ask"
	Price    string `json:"price"` // Level price
	Delta    string `json:"delta"` // Signed size change
	Seq      int64  `json:"seq"`
}
