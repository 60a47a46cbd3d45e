package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/rickgao/market-sync/internal/model"
)

func TestListMarkets(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/markets" {
			t.Errorf("path = %q, want /markets", r.URL.Path)
		}
		if got := r.URL.Query().Get("limit"); got != "20" {
			t.Errorf("limit = %q, want 20", got)
		}
		if got := r.URL.Query().Get("status"); got != "open" {
			t.Errorf("status = %q, want open", got)
		}
		if r.URL.Query().Has("offset") {
			t.Error("offset should be omitted for the first page")
		}
		w.Write([]byte(`{"markets":[{"id":"m1","title":"Will it rain?","yesPrice":"0.52"}],"total":1}`))
	}))
	defer server.Close()

	c := NewClient(server.URL, nil)
	resp, err := c.ListMarkets(context.Background(), "open", Page{})
	if err != nil {
		t.Fatalf("ListMarkets failed: %v", err)
	}
	if len(resp.Markets) != 1 || resp.Markets[0].YesPrice != "0.52" {
		t.Errorf("Markets = %+v", resp.Markets)
	}
}

func TestListAllMarkets(t *testing.T) {
	const total = 7
	var calls int

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

		resp := MarketsResponse{Total: total}
		for i := offset; i < total && i < offset+limit; i++ {
			resp.Markets = append(resp.Markets, model.Market{ID: "m" + strconv.Itoa(i)})
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	c := NewClient(server.URL, nil)
	resp, err := c.ListAllMarkets(context.Background(), "open", 3)
	if err != nil {
		t.Fatalf("ListAllMarkets failed: %v", err)
	}
	if len(resp.Markets) != total {
		t.Errorf("len(Markets) = %d, want %d", len(resp.Markets), total)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if resp.Markets[6].ID != "m6" {
		t.Errorf("last market = %q, want m6", resp.Markets[6].ID)
	}
}

func TestGetMarket(t *testing.T) {
	t.Run("successful fetch", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/markets/m1" {
				t.Errorf("path = %q, want /markets/m1", r.URL.Path)
			}
			w.Write([]byte(`{"market":{"id":"m1","status":"open"}}`))
		}))
		defer server.Close()

		resp, err := NewClient(server.URL, nil).GetMarket(context.Background(), "m1")
		if err != nil {
			t.Fatalf("GetMarket failed: %v", err)
		}
		if resp.Market.Status != "open" {
			t.Errorf("Status = %q, want open", resp.Market.Status)
		}
	})

	t.Run("not found", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		_, err := NewClient(server.URL, nil).GetMarket(context.Background(), "missing")
		if !IsNotFound(err) {
			t.Errorf("err = %v, want not found", err)
		}
	})
}

func TestGetOrderBook(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/markets/m1/orderbook" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Write([]byte(`{"orderbook":{"bids":[{"price":"0.4","size":"5"}],"asks":[],"seq":3}}`))
	}))
	defer server.Close()

	resp, err := NewClient(server.URL, nil).GetOrderBook(context.Background(), "m1")
	if err != nil {
		t.Fatalf("GetOrderBook failed: %v", err)
	}
	if resp.Orderbook.MarketID != "m1" {
		t.Errorf("MarketID = %q, want m1", resp.Orderbook.MarketID)
	}
	if resp.Orderbook.Seq != 3 || len(resp.Orderbook.Bids) != 1 {
		t.Errorf("Orderbook = %+v", resp.Orderbook)
	}
}

func TestListTrades(t *testing.T) {
	tests := []struct {
		name     string
		marketID string
		wantPath string
	}{
		{"all markets", "", "/trades"},
		{"one market", "m1", "/markets/m1/trades"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != tt.wantPath {
					t.Errorf("path = %q, want %q", r.URL.Path, tt.wantPath)
				}
				if got := r.URL.Query().Get("limit"); got != "100" {
					t.Errorf("limit = %q, want capped 100", got)
				}
				w.Write([]byte(`{"trades":[{"marketId":"m1","price":"0.5","executedAt":1}]}`))
			}))
			defer server.Close()

			resp, err := NewClient(server.URL, nil).ListTrades(context.Background(), tt.marketID, Page{Limit: 250})
			if err != nil {
				t.Fatalf("ListTrades failed: %v", err)
			}
			if len(resp.Trades) != 1 {
				t.Errorf("len(Trades) = %d, want 1", len(resp.Trades))
			}
		})
	}
}

func TestListCandles(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("limit") != "100" {
			t.Errorf("limit = %q, want default 100", q.Get("limit"))
		}
		if q.Get("interval") != "1h" {
			t.Errorf("interval = %q, want 1h", q.Get("interval"))
		}
		w.Write([]byte(`{"candles":[{"marketId":"m1","start":0,"open":"0.4","close":"0.5"}]}`))
	}))
	defer server.Close()

	resp, err := NewClient(server.URL, nil).ListCandles(context.Background(), "m1", "1h", Page{})
	if err != nil {
		t.Fatalf("ListCandles failed: %v", err)
	}
	if len(resp.Candles) != 1 || resp.Candles[0].Close != "0.5" {
		t.Errorf("Candles = %+v", resp.Candles)
	}
}

func TestAgentsEndpoints(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/agents", func(w http.ResponseWriter, r *http.Request) {
		offset := r.URL.Query().Get("offset")
		if offset == "" {
			w.Write([]byte(`{"agents":[{"id":"ag1","balance":"10.00","enqueuedMarketIds":["m1"]},{"id":"ag2"}],"total":3}`))
			return
		}
		w.Write([]byte(`{"agents":[{"id":"ag3"}],"total":3}`))
	})
	mux.HandleFunc("/agents/ag1", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"agent":{"id":"ag1","name":"Alpha"}}`))
	})
	mux.HandleFunc("/agents/ag1/positions", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"positions":[{"id":"p1","agentId":"ag1","marketId":"m1","shares":"3"}]}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	c := NewClient(server.URL, nil)
	ctx := context.Background()

	all, err := c.ListAllAgents(ctx, 2)
	if err != nil {
		t.Fatalf("ListAllAgents failed: %v", err)
	}
	if len(all.Agents) != 3 {
		t.Errorf("len(Agents) = %d, want 3", len(all.Agents))
	}
	if all.Agents[0].EnqueuedMarketIDs[0] != "m1" {
		t.Errorf("EnqueuedMarketIDs = %v", all.Agents[0].EnqueuedMarketIDs)
	}

	agent, err := c.GetAgent(ctx, "ag1")
	if err != nil {
		t.Fatalf("GetAgent failed: %v", err)
	}
	if agent.Agent.Name != "Alpha" {
		t.Errorf("Name = %q, want Alpha", agent.Agent.Name)
	}

	positions, err := c.ListPositions(ctx, "ag1", Page{})
	if err != nil {
		t.Fatalf("ListPositions failed: %v", err)
	}
	if len(positions.Positions) != 1 || positions.Positions[0].Shares != "3" {
		t.Errorf("Positions = %+v", positions.Positions)
	}
}

func TestJSONUnmarshalErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"markets": [`))
	}))
	defer server.Close()

	_, err := NewClient(server.URL, nil).ListMarkets(context.Background(), "", Page{})
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}
