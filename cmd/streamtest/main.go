// streamtest connects to the realtime channel and prints the cache as tables.
// Usage: go run ./cmd/streamtest --config configs/syncd.local.yaml --topics markets:open
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/rickgao/market-sync/internal/auth"
	"github.com/rickgao/market-sync/internal/cache"
	"github.com/rickgao/market-sync/internal/config"
	"github.com/rickgao/market-sync/internal/connection"
	"github.com/rickgao/market-sync/internal/model"
	"github.com/rickgao/market-sync/internal/router"
	"github.com/rickgao/market-sync/internal/subscription"
)

func main() {
	configPath := flag.String("config", "configs/syncd.example.yaml", "path to config file")
	topics := flag.String("topics", "", "comma-separated topics, overrides the config")
	interval := flag.Duration("interval", time.Second, "minimum time between redraws")
	rows := flag.Int("rows", 15, "max rows per table")
	flag.Parse()

	// Setup logger
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	// Load config
	cfg, err := config.LoadWithDefaults(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	store := cache.NewStore(cache.Config{
		RecentTradesCap:  cfg.Cache.RecentTradesCap,
		ChangeBufferSize: cfg.Cache.ChangeBufferSize,
	})
	rtr := router.NewRouter(router.DefaultRouterConfig(), store, logger)

	connCfg := connection.DefaultManagerConfig()
	connCfg.URL = cfg.API.WSURL
	connCfg.Tokens = auth.Optional(auth.StaticToken(cfg.API.AuthToken))
	connMgr := connection.NewManager(connCfg, rtr, logger)

	registry := subscription.NewRegistry(connMgr, logger)
	connMgr.OnOpen(registry.OpenFrames)

	held := cfg.Subscriptions.Topics
	if *topics != "" {
		held = strings.Split(*topics, ",")
	}
	interest := registry.Acquire(toTopics(held)...)

	logger.Info("starting router")
	if err := rtr.Start(ctx); err != nil {
		logger.Error("failed to start router", "error", err)
		os.Exit(1)
	}

	logger.Info("starting connection manager", "url", connCfg.URL, "topics", interest.Topics())
	if err := connMgr.Start(ctx); err != nil {
		logger.Error("failed to start connection manager", "error", err)
		os.Exit(1)
	}

	logger.Info("streaming started - press Ctrl+C to stop")

	changes, unsubscribe := store.Subscribe()
	defer unsubscribe()

	redrawOnChange(ctx, changes, *interval, func() {
		st := connMgr.Status()
		fmt.Printf("\n== %s  state=%s attempts=%d\n",
			time.Now().Format(time.TimeOnly), st.State, st.ReconnectAttempts)
		printMarkets(os.Stdout, store.Markets(), *rows)
		printTrades(os.Stdout, store.RecentTrades(*rows))
		printStats(os.Stdout, rtr.Stats(), connMgr.Stats())
	})

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	logger.Info("shutting down...")
	interest.Release()
	connMgr.Stop(shutdownCtx)
	rtr.Stop(shutdownCtx)

	logger.Info("shutdown complete")
}

// redrawOnChange calls draw after cache changes, at most once per interval,
// until ctx is done or the change feed closes.
func redrawOnChange(ctx context.Context, changes <-chan cache.Change, every time.Duration, draw func()) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	dirty := false
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-changes:
			if !ok {
				return
			}
			dirty = true
		case <-ticker.C:
			if dirty {
				draw()
				dirty = false
			}
		}
	}
}

func toTopics(raw []string) []model.Topic {
	out := make([]model.Topic, 0, len(raw))
	for _, t := range raw {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, model.Topic(t))
		}
	}
	return out
}

func printMarkets(w io.Writer, markets []model.Market, limit int) {
	if len(markets) > limit {
		markets = markets[:limit]
	}
	table := tablewriter.NewWriter(w)
	table.Header("Market", "Status", "Yes", "No", "Last", "Volume")
	for _, m := range markets {
		table.Append(m.ID, m.Status, m.YesPrice, m.NoPrice, m.LastPrice, m.Volume)
	}
	table.Render()
}

func printTrades(w io.Writer, trades []cache.RecentTrade) {
	table := tablewriter.NewWriter(w)
	table.Header("Time", "Market", "Agent", "Side", "Action", "Shares", "Price")
	for _, t := range trades {
		table.Append(
			time.UnixMilli(t.ExecutedAt).Format(time.TimeOnly),
			t.MarketID,
			t.AgentID,
			t.Side,
			t.Action,
			t.Shares,
			t.Price,
		)
	}
	table.Render()
}

func printStats(w io.Writer, rs router.RouterStats, cs connection.ManagerStats) {
	table := tablewriter.NewWriter(w)
	table.Header("Received", "Routed", "Parse errors", "Rejected", "Unknown", "Dials", "Opens")
	table.Append(
		fmt.Sprint(rs.MessagesReceived),
		fmt.Sprint(rs.MessagesRouted),
		fmt.Sprint(rs.ParseErrors),
		fmt.Sprint(rs.Rejected),
		fmt.Sprint(rs.UnknownMessages),
		fmt.Sprint(cs.Dials),
		fmt.Sprint(cs.Opens),
	)
	table.Render()
}
