package api

import (
	"net/url"
	"strconv"

	"github.com/rickgao/market-sync/internal/model"
)

// Pagination limits.
const (
	DefaultPageLimit   = 20
	MaxPageLimit       = 100
	DefaultCandleLimit = 100
	MaxCandleLimit     = 500
)

// Page selects a window of a list endpoint.
type Page struct {
	Limit  int
	Offset int
}

// normalize clamps the page to [1, max] with def for unset limits.
func (p Page) normalize(def, max int) Page {
	if p.Limit <= 0 {
		p.Limit = def
	}
	if p.Limit > max {
		p.Limit = max
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

func (p Page) values() url.Values {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(p.Limit))
	if p.Offset > 0 {
		query.Set("offset", strconv.Itoa(p.Offset))
	}
	return query
}

// Next returns the page after p given the number of items received and the
// reported total. A total of zero means unknown; paging then stops on a
// short page.
func (p Page) Next(got, total int) (Page, bool) {
	if got == 0 {
		return p, false
	}
	next := Page{Limit: p.Limit, Offset: p.Offset + got}
	if total > 0 {
		return next, next.Offset < total
	}
	return next, got >= p.Limit
}

// MarketsResponse from GET /markets
type MarketsResponse struct {
	Markets []model.Market `json:"markets"`
	Total   int            `json:"total"`
}

// SingleMarketResponse from GET /markets/{id}
type SingleMarketResponse struct {
	Market model.Market `json:"market"`
}

// AgentsResponse from GET /agents
type AgentsResponse struct {
	Agents []model.Agent `json:"agents"`
	Total  int           `json:"total"`
}

// SingleAgentResponse from GET /agents/{id}
type SingleAgentResponse struct {
	Agent model.Agent `json:"agent"`
}

// PositionsResponse from GET /agents/{id}/positions
type PositionsResponse struct {
	Positions []model.Position `json:"positions"`
	Total     int              `json:"total"`
}

// TradesResponse from GET /trades and GET /markets/{id}/trades
type TradesResponse struct {
	Trades []model.Trade `json:"trades"`
	Total  int           `json:"total"`
}

// OrderbookResponse from GET /markets/{id}/orderbook
type OrderbookResponse struct {
	Orderbook model.OrderBook `json:"orderbook"`
}

// CandlesResponse from GET /markets/{id}/candles
type CandlesResponse struct {
	Candles []model.Candle `json:"candles"`
	Total   int            `json:"total"`
}
