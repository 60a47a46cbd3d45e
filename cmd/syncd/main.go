package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http/cookiejar"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/market-sync/internal/api"
	"github.com/rickgao/market-sync/internal/auth"
	"github.com/rickgao/market-sync/internal/cache"
	"github.com/rickgao/market-sync/internal/config"
	"github.com/rickgao/market-sync/internal/connection"
	"github.com/rickgao/market-sync/internal/database"
	"github.com/rickgao/market-sync/internal/journal"
	"github.com/rickgao/market-sync/internal/metrics"
	"github.com/rickgao/market-sync/internal/model"
	"github.com/rickgao/market-sync/internal/poller"
	"github.com/rickgao/market-sync/internal/router"
	"github.com/rickgao/market-sync/internal/status"
	"github.com/rickgao/market-sync/internal/subscription"
	"github.com/rickgao/market-sync/internal/version"
)

const shutdownTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", "configs/syncd.local.yaml", "path to config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Set up structured logging
	logger, err := newLogger(cfg.Log, os.Stdout)
	if err != nil {
		slog.Error("failed to configure logging", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	logger.Info("starting syncd",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
		"instance_id", cfg.Instance.ID,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("syncd failed", "error", err)
		os.Exit(1)
	}

	logger.Info("syncd stopped")
}

// run wires the components, starts them and blocks until ctx is cancelled.
func run(ctx context.Context, cfg *config.SyncConfig, logger *slog.Logger) error {
	store := cache.NewStore(cache.Config{
		RecentTradesCap:  cfg.Cache.RecentTradesCap,
		ChangeBufferSize: cfg.Cache.ChangeBufferSize,
	})

	// Auth: explicit token first, then the session cookie
	jar, err := cookiejar.New(nil)
	if err != nil {
		return fmt.Errorf("cookie jar: %w", err)
	}
	cookieToken, err := auth.NewCookieToken(jar, cfg.API.RestURL, cfg.API.CookieName)
	if err != nil {
		return fmt.Errorf("cookie token: %w", err)
	}
	tokens := auth.Chain{auth.StaticToken(cfg.API.AuthToken), cookieToken}

	apiClient := api.NewClient(
		cfg.API.RestURL,
		tokens,
		api.WithLogger(logger.With("component", "api")),
		api.WithTimeout(cfg.API.Timeout),
		api.WithRetries(cfg.API.MaxRetries, time.Second),
		api.WithRateLimit(cfg.API.RateLimit, cfg.API.RateBurst),
		api.WithCookieJar(jar),
	)

	// Event Router
	routerCfg := router.DefaultRouterConfig()
	routerCfg.InputBufferSize = cfg.Connection.InboundBufferSize
	routerCfg.ForwardTrades = cfg.Journal.Enabled
	rtr := router.NewRouter(routerCfg, store, logger.With("component", "router"))

	// Connection Manager
	mgr := connection.NewManager(connection.ManagerConfig{
		URL:                  cfg.API.WSURL,
		Enabled:              cfg.Connection.IsEnabled(),
		ReconnectMaxAttempts: cfg.Connection.MaxAttempts(),
		ReconnectInterval:    cfg.Connection.ReconnectInterval,
		ReconnectMaxInterval: cfg.Connection.ReconnectMaxInterval,
		Backoff:              connection.BackoffStrategy(cfg.Connection.Backoff),
		PingInterval:         cfg.Connection.PingInterval,
		PingTimeout:          cfg.Connection.PingTimeout,
		WriteTimeout:         cfg.Connection.WriteTimeout,
		OutboxSize:           cfg.Connection.OutboxSize,
		ReadBufferSize:       cfg.Connection.InboundBufferSize,
		Tokens:               auth.Optional(tokens),
	}, rtr, logger.With("component", "connection"))

	// Subscription Registry; every open resubscribes the held topics
	reg := subscription.NewRegistry(mgr, logger.With("component", "subscription"))
	mgr.OnOpen(reg.OpenFrames)
	mgr.OnStateChange(func(st connection.Status) {
		logger.Info("connection state changed",
			"state", st.State,
			"attempts", st.ReconnectAttempts,
			"last_error", st.LastError,
		)
	})

	sources := metrics.Sources{
		Connection: mgr,
		Router:     rtr,
		Registry:   reg,
		Cache:      store,
	}

	// Trade journal (optional)
	var (
		pool        *pgxpool.Pool
		tradeWriter *journal.TradeWriter
	)
	if cfg.Journal.Enabled {
		db := cfg.Journal.Database
		logger.Info("connecting to journal database",
			"host", db.Host,
			"port", db.Port,
			"database", db.Name,
		)

		pool, err = database.Connect(ctx, db, cfg.Instance.ID)
		if err != nil {
			return fmt.Errorf("connect journal database: %w", err)
		}
		defer pool.Close()

		if err := database.EnsureSchema(ctx, pool); err != nil {
			return err
		}

		tradeWriter = journal.NewTradeWriter(journal.Config{
			BatchSize:     cfg.Journal.BatchSize,
			FlushInterval: cfg.Journal.FlushInterval,
		}, rtr.Trades(), pool, logger.With("component", "journal"))
		sources.Journal = tradeWriter
	}

	// Snapshot poller (optional)
	var snapshotPoller *poller.Poller
	if cfg.Poller.Enabled {
		snapshotPoller = poller.New(poller.Config{
			Interval:     cfg.Poller.Interval,
			Concurrency:  cfg.Poller.Concurrency,
			Timeout:      cfg.Poller.Timeout,
			PageSize:     cfg.Poller.PageSize,
			MarketStatus: "open",
			AgentIDs:     cfg.Poller.AgentIDs,
		}, apiClient, store, logger.With("component", "poller"))
		sources.Poller = snapshotPoller
	}

	// Status server (optional)
	var statusServer *status.Server
	if cfg.Status.Enabled {
		statusServer = status.NewServer(status.Config{
			Port:        cfg.Status.Port,
			MetricsPath: cfg.Status.MetricsPath,
			Debug:       cfg.Log.Level == "debug",
			CORSOrigins: cfg.Status.CORSOrigins,
		}, status.Deps{
			Connection: mgr,
			Registry:   reg,
			Store:      store,
			Metrics:    metrics.Handler(metrics.NewRegistry(sources)),
		}, logger.With("component", "status"))
	}

	// Start consumers before producers
	if err := rtr.Start(ctx); err != nil {
		return fmt.Errorf("start router: %w", err)
	}
	if tradeWriter != nil {
		if err := tradeWriter.Start(ctx); err != nil {
			return fmt.Errorf("start journal: %w", err)
		}
	}

	held := reg.Acquire(topicsFrom(cfg.Subscriptions.Topics)...)
	logger.Info("holding configured topics", "topics", held.Topics())

	if err := mgr.Start(ctx); err != nil {
		return fmt.Errorf("start connection: %w", err)
	}
	if snapshotPoller != nil {
		if err := snapshotPoller.Start(ctx); err != nil {
			return fmt.Errorf("start poller: %w", err)
		}
	}
	if statusServer != nil {
		if err := statusServer.Start(ctx); err != nil {
			return fmt.Errorf("start status server: %w", err)
		}
	}

	logger.Info("syncd running",
		"ws_url", cfg.API.WSURL,
		"rest_url", cfg.API.RestURL,
		"status_port", cfg.Status.Port,
	)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if statusServer != nil {
		statusServer.Stop(shutdownCtx)
	}
	if snapshotPoller != nil {
		snapshotPoller.Stop(shutdownCtx)
	}
	held.Release()
	mgr.Stop(shutdownCtx)
	rtr.Stop(shutdownCtx)
	if tradeWriter != nil {
		tradeWriter.Stop(shutdownCtx)
	}

	return nil
}

// newLogger builds the root logger from the log section.
func newLogger(cfg config.LogConfig, w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

func topicsFrom(raw []string) []model.Topic {
	topics := make([]model.Topic, 0, len(raw))
	for _, t := range raw {
		topics = append(topics, model.Topic(t))
	}
	return topics
}
