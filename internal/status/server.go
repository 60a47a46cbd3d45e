package status

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"

	"github.com/rickgao/market-sync/internal/cache"
	"github.com/rickgao/market-sync/internal/connection"
	"github.com/rickgao/market-sync/internal/subscription"
)

// Connection is the part of the Connection Manager the server controls.
type Connection interface {
	Status() connection.Status
	Restart(ctx context.Context) error
}

// Config holds server settings.
type Config struct {
	Port        int
	MetricsPath string
	Debug       bool     // gin debug mode
	CORSOrigins []string // Browser origins allowed to call the API; empty disables CORS
}

// Deps are the components the server reads and drives.
type Deps struct {
	Connection Connection
	Registry   *subscription.Registry
	Store      *cache.Store
	Metrics    http.Handler // Optional
}

// Server is the status HTTP server.
type Server struct {
	cfg     Config
	deps    Deps
	logger  *slog.Logger
	engine  *gin.Engine
	handler http.Handler

	mu   sync.Mutex
	srv  *http.Server
	addr net.Addr
}

// NewServer creates a Server and registers its routes.
func NewServer(cfg Config, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: logger,
		engine: gin.New(),
	}
	s.engine.Use(gin.Recovery(), s.requestLogger())
	s.setupRoutes()

	s.handler = s.engine
	if len(cfg.CORSOrigins) > 0 {
		s.handler = cors.New(cors.Options{
			AllowedOrigins: cfg.CORSOrigins,
			AllowedMethods: []string{
				http.MethodGet,
				http.MethodPost,
				http.MethodPut,
				http.MethodDelete,
				http.MethodOptions,
			},
			AllowedHeaders: []string{"*"},
		}).Handler(s.engine)
	}
	return s
}

func (s *Server) setupRoutes() {
	s.engine.GET("/health", s.getHealth)

	debug := s.engine.Group("/debug")
	debug.GET("/markets", s.getMarkets)
	debug.GET("/markets/:id", s.getMarket)
	debug.GET("/trades", s.getTrades)
	debug.GET("/topics", s.getTopics)
	debug.GET("/balances", s.getBalances)
	debug.GET("/agents/:id", s.getAgent)

	s.engine.POST("/interests", s.postInterest)
	s.engine.DELETE("/interests/:id", s.deleteInterest)

	s.engine.PUT("/agents/:id/discarded/:marketId", s.putDiscarded)
	s.engine.DELETE("/agents/:id/discarded/:marketId", s.deleteDiscarded)
	s.engine.DELETE("/agents/:id/discarded", s.clearDiscarded)

	s.engine.POST("/connection/restart", s.postRestart)

	if s.deps.Metrics != nil && s.cfg.MetricsPath != "" {
		s.engine.GET(s.cfg.MetricsPath, gin.WrapH(s.deps.Metrics))
	}
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens on the configured port and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.Port))
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	s.mu.Lock()
	s.srv = srv
	s.addr = ln.Addr()
	s.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("status server failed", "error", err)
		}
	}()

	s.logger.Info("status server started", "addr", ln.Addr().String())
	return nil
}

// Addr returns the listening address once started.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown status server: %w", err)
	}
	s.logger.Info("status server stopped")
	return nil
}

// requestLogger logs each request at debug level.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
