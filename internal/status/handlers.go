package status

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/rickgao/market-sync/internal/connection"
	"github.com/rickgao/market-sync/internal/model"
	"github.com/rickgao/market-sync/internal/version"
)

const defaultTradesLimit = 50

type errorResponse struct {
	Error string `json:"error"`
}

type interestRequest struct {
	Topics []model.Topic `json:"topics" binding:"required"`
}

type interestResponse struct {
	ID     string        `json:"id"`
	Topics []model.Topic `json:"topics"`
}

type topicCount struct {
	Topic model.Topic `json:"topic"`
	Count int         `json:"count"`
}

func (s *Server) getHealth(c *gin.Context) {
	code := http.StatusOK
	health := "ok"

	var conn *connection.Status
	if s.deps.Connection != nil {
		st := s.deps.Connection.Status()
		conn = &st
		switch st.State {
		case connection.StateOpen:
		case connection.StateError:
			code = http.StatusServiceUnavailable
			health = "down"
		default:
			health = "degraded"
		}
	}

	c.JSON(code, gin.H{
		"status":     health,
		"connection": conn,
		"version":    version.Get(),
	})
}

func (s *Server) getMarkets(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"markets": s.deps.Store.Markets(),
		"status":  s.deps.Store.MarketsStatus(),
	})
}

func (s *Server) getMarket(c *gin.Context) {
	id := c.Param("id")
	market, ok := s.deps.Store.Market(id)
	if !ok {
		c.JSON(http.StatusNotFound, errorResponse{Error: "market not found"})
		return
	}

	resp := gin.H{
		"market": market,
		"agents": s.deps.Store.AgentsForMarket(id),
		"trades": s.deps.Store.RecentTradesForMarket(id),
	}
	if book, ok := s.deps.Store.OrderBook(id); ok {
		resp["orderbook"] = book
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) getTrades(c *gin.Context) {
	limit := defaultTradesLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, errorResponse{Error: "limit must be a non-negative integer"})
			return
		}
		limit = n
	}

	if market := c.Query("market"); market != "" {
		trades := s.deps.Store.RecentTradesForMarket(market)
		if limit > 0 && len(trades) > limit {
			trades = trades[:limit]
		}
		c.JSON(http.StatusOK, gin.H{"trades": trades})
		return
	}

	c.JSON(http.StatusOK, gin.H{"trades": s.deps.Store.RecentTrades(limit)})
}

func (s *Server) getTopics(c *gin.Context) {
	topics := s.deps.Registry.Topics()
	counts := make([]topicCount, 0, len(topics))
	for _, t := range topics {
		counts = append(counts, topicCount{Topic: t, Count: s.deps.Registry.Count(t)})
	}
	c.JSON(http.StatusOK, gin.H{
		"topics": counts,
		"stats":  s.deps.Registry.Stats(),
	})
}

func (s *Server) getBalances(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"balances": s.deps.Store.Balances()})
}

func (s *Server) getAgent(c *gin.Context) {
	id := c.Param("id")
	resp := gin.H{
		"id":              id,
		"positions":       s.deps.Store.Positions(id),
		"positionsStatus": s.deps.Store.PositionsStatus(id),
		"discarded":       s.deps.Store.Discarded(id),
	}
	if balance, ok := s.deps.Store.Balance(id); ok {
		resp["balance"] = balance
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) postInterest(c *gin.Context) {
	var req interestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	topics := req.Topics[:0]
	for _, t := range req.Topics {
		if t != "" {
			topics = append(topics, t)
		}
	}
	if len(topics) == 0 {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "at least one topic is required"})
		return
	}

	in := s.deps.Registry.Acquire(topics...)
	s.logger.Info("interest acquired", "id", in.ID(), "topics", in.Topics())
	c.JSON(http.StatusCreated, interestResponse{ID: in.ID(), Topics: in.Topics()})
}

func (s *Server) deleteInterest(c *gin.Context) {
	id := c.Param("id")
	if !s.deps.Registry.Release(id) {
		c.JSON(http.StatusNotFound, errorResponse{Error: "interest not found"})
		return
	}
	s.logger.Info("interest released", "id", id)
	c.Status(http.StatusNoContent)
}

func (s *Server) putDiscarded(c *gin.Context) {
	if err := s.deps.Store.AddDiscarded(c.Param("id"), c.Param("marketId")); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) deleteDiscarded(c *gin.Context) {
	s.deps.Store.RemoveDiscarded(c.Param("id"), c.Param("marketId"))
	c.Status(http.StatusNoContent)
}

func (s *Server) clearDiscarded(c *gin.Context) {
	s.deps.Store.ClearDiscarded(c.Param("id"))
	c.Status(http.StatusNoContent)
}

func (s *Server) postRestart(c *gin.Context) {
	if s.deps.Connection == nil {
		c.JSON(http.StatusServiceUnavailable, errorResponse{Error: "connection disabled"})
		return
	}
	// The restarted connection must outlive this request
	if err := s.deps.Connection.Restart(context.WithoutCancel(c.Request.Context())); err != nil {
		c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, s.deps.Connection.Status())
}
