package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rickgao/market-sync/internal/cache"
	"github.com/rickgao/market-sync/internal/connection"
	"github.com/rickgao/market-sync/internal/journal"
	"github.com/rickgao/market-sync/internal/poller"
	"github.com/rickgao/market-sync/internal/router"
	"github.com/rickgao/market-sync/internal/subscription"
)

const namespace = "market_sync"

// Sources holds the components to observe. Nil fields are skipped.
type Sources struct {
	Connection interface {
		Status() connection.Status
		Stats() connection.ManagerStats
	}
	Router   interface{ Stats() router.RouterStats }
	Registry interface{ Stats() subscription.Stats }
	Cache    interface{ Stats() cache.Stats }
	Poller   interface{ Stats() poller.Stats }
	Journal  interface{ Stats() journal.Metrics }
}

var connectionStates = []connection.State{
	connection.StateIdle,
	connection.StateConnecting,
	connection.StateOpen,
	connection.StateClosing,
	connection.StateClosed,
	connection.StateError,
}

// NewRegistry builds a Prometheus registry with process and Go collectors
// plus one collector per stat of each source.
func NewRegistry(src Sources) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	reg.MustRegister(collectorsFor(src)...)
	return reg
}

// Handler serves reg in the Prometheus text format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

func collectorsFor(src Sources) []prometheus.Collector {
	var cs []prometheus.Collector

	if c := src.Connection; c != nil {
		for _, state := range connectionStates {
			cs = append(cs, prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace:   namespace,
				Subsystem:   "connection",
				Name:        "state",
				Help:        "1 for the current connection state, 0 otherwise.",
				ConstLabels: prometheus.Labels{"state": string(state)},
			}, func() float64 {
				if c.Status().State == state {
					return 1
				}
				return 0
			}))
		}
		cs = append(cs,
			gauge("connection", "reconnect_attempts", "Consecutive failed reconnect attempts.",
				func() float64 { return float64(c.Status().ReconnectAttempts) }),
			counter("connection", "dials_total", "Connection attempts.",
				func() float64 { return float64(c.Stats().Dials) }),
			counter("connection", "opens_total", "Successful opens.",
				func() float64 { return float64(c.Stats().Opens) }),
			counter("connection", "frames_received_total", "Decoded frames forwarded to the router.",
				func() float64 { return float64(c.Stats().FramesReceived) }),
			counter("connection", "frames_dropped_total", "Malformed frames dropped.",
				func() float64 { return float64(c.Stats().FramesDropped) }),
			counter("connection", "frames_sent_total", "Frames written to the socket.",
				func() float64 { return float64(c.Stats().FramesSent) }),
			gauge("connection", "outbox_frames", "Frames waiting for the next open.",
				func() float64 { return float64(c.Stats().Queued) }),
		)
	}

	if r := src.Router; r != nil {
		cs = append(cs,
			counter("router", "messages_received_total", "Envelopes received.",
				func() float64 { return float64(r.Stats().MessagesReceived) }),
			counter("router", "messages_routed_total", "Envelopes applied to the cache.",
				func() float64 { return float64(r.Stats().MessagesRouted) }),
			counter("router", "parse_errors_total", "Envelopes with malformed payloads.",
				func() float64 { return float64(r.Stats().ParseErrors) }),
			counter("router", "rejected_total", "Envelopes refused by the cache.",
				func() float64 { return float64(r.Stats().Rejected) }),
			counter("router", "unknown_messages_total", "Envelopes of unknown type.",
				func() float64 { return float64(r.Stats().UnknownMessages) }),
			gauge("router", "input_buffer_items", "Envelopes queued for routing.",
				func() float64 { return float64(r.Stats().InputQueue.Len) }),
			counter("router", "trade_buffer_dropped_total", "Trades evicted before the journal read them.",
				func() float64 { return float64(r.Stats().TradeQueue.Evicted) }),
		)
	}

	if reg := src.Registry; reg != nil {
		cs = append(cs,
			gauge("subscription", "topics", "Topics currently held.",
				func() float64 { return float64(reg.Stats().Topics) }),
			gauge("subscription", "interests", "Live interests.",
				func() float64 { return float64(reg.Stats().Interests) }),
		)
	}

	if c := src.Cache; c != nil {
		cs = append(cs,
			gauge("cache", "markets", "Markets cached.",
				func() float64 { return float64(c.Stats().Markets) }),
			gauge("cache", "recent_trades", "Trades in the recent-trades ring.",
				func() float64 { return float64(c.Stats().RecentTrades) }),
			gauge("cache", "balances", "Agents with a known balance.",
				func() float64 { return float64(c.Stats().Balances) }),
			gauge("cache", "order_books", "Order books cached.",
				func() float64 { return float64(c.Stats().OrderBooks) }),
			counter("cache", "refetch_triggers_total", "Position refetch signals.",
				func() float64 { return float64(c.Stats().RefetchTrigger) }),
		)
	}

	if p := src.Poller; p != nil {
		cs = append(cs,
			counter("poller", "syncs_total", "Completed sync cycles.",
				func() float64 { return float64(p.Stats().Syncs) }),
			counter("poller", "sync_errors_total", "Sync cycles with at least one failure.",
				func() float64 { return float64(p.Stats().SyncErrors) }),
			counter("poller", "position_errors_total", "Failed position fetches.",
				func() float64 { return float64(p.Stats().PositionErrors) }),
		)
	}

	if j := src.Journal; j != nil {
		cs = append(cs,
			counter("journal", "inserts_total", "Trades written.",
				func() float64 { return float64(j.Stats().Inserts) }),
			counter("journal", "conflicts_total", "Trades already journaled.",
				func() float64 { return float64(j.Stats().Conflicts) }),
			counter("journal", "errors_total", "Failed batch inserts.",
				func() float64 { return float64(j.Stats().Errors) }),
		)
	}

	return cs
}

func gauge(subsystem, name, help string, fn func() float64) prometheus.Collector {
	return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, fn)
}

func counter(subsystem, name, help string, fn func() float64) prometheus.Collector {
	return prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, fn)
}
