package api

import (
	"context"
	"fmt"
	"net/url"
	"time"
)

// allPagesTimeout bounds ListAllMarkets when the caller set no deadline.
const allPagesTimeout = 2 * time.Minute

// ListMarkets fetches a page of markets. An empty status lists all markets.
func (c *Client) ListMarkets(ctx context.Context, status string, page Page) (*MarketsResponse, error) {
	page = page.normalize(DefaultPageLimit, MaxPageLimit)
	query := page.values()
	if status != "" {
		query.Set("status", status)
	}

	var resp MarketsResponse
	if err := c.get(ctx, "/markets", query, &resp); err != nil {
		return nil, fmt.Errorf("list markets: %w", err)
	}

	return &resp, nil
}

// ListAllMarkets fetches every market with the given status by paging
// through results.
func (c *Client) ListAllMarkets(ctx context.Context, status string, pageSize int) (*MarketsResponse, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, allPagesTimeout)
		defer cancel()
	}

	page := Page{Limit: pageSize}.normalize(DefaultPageLimit, MaxPageLimit)
	all := &MarketsResponse{}

	for {
		resp, err := c.ListMarkets(ctx, status, page)
		if err != nil {
			return nil, err
		}

		all.Markets = append(all.Markets, resp.Markets...)
		all.Total = resp.Total

		next, more := page.Next(len(resp.Markets), resp.Total)
		if !more {
			break
		}
		page = next
	}

	return all, nil
}

// GetMarket fetches a single market by id.
func (c *Client) GetMarket(ctx context.Context, id string) (*SingleMarketResponse, error) {
	var resp SingleMarketResponse
	if err := c.get(ctx, "/markets/"+url.PathEscape(id), nil, &resp); err != nil {
		return nil, fmt.Errorf("get market %s: %w", id, err)
	}
	return &resp, nil
}

// GetOrderBook fetches the order book for a market.
func (c *Client) GetOrderBook(ctx context.Context, marketID string) (*OrderbookResponse, error) {
	var resp OrderbookResponse
	if err := c.get(ctx, "/markets/"+url.PathEscape(marketID)+"/orderbook", nil, &resp); err != nil {
		return nil, fmt.Errorf("get orderbook %s: %w", marketID, err)
	}
	if resp.Orderbook.MarketID == "" {
		resp.Orderbook.MarketID = marketID
	}
	return &resp, nil
}

// ListTrades fetches a page of trades, newest first. An empty marketID
// lists trades across all markets.
func (c *Client) ListTrades(ctx context.Context, marketID string, page Page) (*TradesResponse, error) {
	page = page.normalize(DefaultPageLimit, MaxPageLimit)

	path := "/trades"
	if marketID != "" {
		path = "/markets/" + url.PathEscape(marketID) + "/trades"
	}

	var resp TradesResponse
	if err := c.get(ctx, path, page.values(), &resp); err != nil {
		return nil, fmt.Errorf("list trades: %w", err)
	}
	return &resp, nil
}

// ListCandles fetches price history for a market. interval is passed
// through as-is (e.g. "1m", "1h").
func (c *Client) ListCandles(ctx context.Context, marketID, interval string, page Page) (*CandlesResponse, error) {
	page = page.normalize(DefaultCandleLimit, MaxCandleLimit)
	query := page.values()
	if interval != "" {
		query.Set("interval", interval)
	}

	var resp CandlesResponse
	if err := c.get(ctx, "/markets/"+url.PathEscape(marketID)+"/candles", query, &resp); err != nil {
		return nil, fmt.Errorf("list candles %s: %w", marketID, err)
	}
	return &resp, nil
}
