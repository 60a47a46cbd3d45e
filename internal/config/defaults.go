package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultInstanceID           = "market-sync"
	DefaultRestURL              = "http://localhost:3000/api"
	DefaultWSURL                = "ws://localhost:8000/ws"
	DefaultCookieName           = "auth_token"
	DefaultAPITimeout           = 30 * time.Second
	DefaultMaxRetries           = 3
	DefaultRateLimit            = 10.0
	DefaultRateBurst            = 20
	DefaultReconnectMaxAttempts = 5
	DefaultReconnectInterval    = 3 * time.Second
	DefaultReconnectMaxInterval = 60 * time.Second
	DefaultBackoff              = BackoffFixed
	DefaultPingInterval         = 30 * time.Second
	DefaultPingTimeout          = 90 * time.Second
	DefaultWriteTimeout         = 5 * time.Second
	DefaultOutboxSize           = 256
	DefaultInboundBufferSize    = 1000
	DefaultRecentTradesCap      = 50
	DefaultChangeBufferSize     = 1000
	DefaultPollInterval         = 5 * time.Minute
	DefaultPollConcurrency      = 4
	DefaultPollTimeout          = 10 * time.Second
	DefaultPageSize             = 100
	DefaultDBPort               = 5432
	DefaultDBSSLMode            = "prefer"
	DefaultMaxConns             = 10
	DefaultMinConns             = 2
	DefaultBatchSize            = 500
	DefaultFlushInterval        = 1 * time.Second
	DefaultStatusPort           = 8080
	DefaultMetricsPath          = "/metrics"
	DefaultLogLevel             = "info"
	DefaultLogFormat            = "text"
)

// Backoff strategies.
const (
	BackoffFixed       = "fixed"
	BackoffExponential = "exponential"
)

func (c *SyncConfig) applyDefaults() {
	if c.Instance.ID == "" {
		c.Instance.ID = DefaultInstanceID
	}

	// API defaults
	if c.API.RestURL == "" {
		c.API.RestURL = DefaultRestURL
	}
	if c.API.WSURL == "" {
		c.API.WSURL = DefaultWSURL
	}
	if c.API.CookieName == "" {
		c.API.CookieName = DefaultCookieName
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultAPITimeout
	}
	if c.API.MaxRetries == 0 {
		c.API.MaxRetries = DefaultMaxRetries
	}
	if c.API.RateLimit == 0 {
		c.API.RateLimit = DefaultRateLimit
	}
	if c.API.RateBurst == 0 {
		c.API.RateBurst = DefaultRateBurst
	}

	// Connection defaults
	if c.Connection.ReconnectMaxAttempts == nil {
		n := DefaultReconnectMaxAttempts
		c.Connection.ReconnectMaxAttempts = &n
	}
	if c.Connection.ReconnectInterval == 0 {
		c.Connection.ReconnectInterval = DefaultReconnectInterval
	}
	if c.Connection.ReconnectMaxInterval == 0 {
		c.Connection.ReconnectMaxInterval = DefaultReconnectMaxInterval
	}
	if c.Connection.Backoff == "" {
		c.Connection.Backoff = DefaultBackoff
	}
	if c.Connection.PingInterval == 0 {
		c.Connection.PingInterval = DefaultPingInterval
	}
	if c.Connection.PingTimeout == 0 {
		c.Connection.PingTimeout = DefaultPingTimeout
	}
	if c.Connection.WriteTimeout == 0 {
		c.Connection.WriteTimeout = DefaultWriteTimeout
	}
	if c.Connection.OutboxSize == 0 {
		c.Connection.OutboxSize = DefaultOutboxSize
	}
	if c.Connection.InboundBufferSize == 0 {
		c.Connection.InboundBufferSize = DefaultInboundBufferSize
	}

	// Cache defaults
	if c.Cache.RecentTradesCap == 0 {
		c.Cache.RecentTradesCap = DefaultRecentTradesCap
	}
	if c.Cache.ChangeBufferSize == 0 {
		c.Cache.ChangeBufferSize = DefaultChangeBufferSize
	}

	// Poller defaults
	if c.Poller.Interval == 0 {
		c.Poller.Interval = DefaultPollInterval
	}
	if c.Poller.Concurrency == 0 {
		c.Poller.Concurrency = DefaultPollConcurrency
	}
	if c.Poller.Timeout == 0 {
		c.Poller.Timeout = DefaultPollTimeout
	}
	if c.Poller.PageSize == 0 {
		c.Poller.PageSize = DefaultPageSize
	}

	// Journal defaults
	applyDBDefaults(&c.Journal.Database)
	if c.Journal.BatchSize == 0 {
		c.Journal.BatchSize = DefaultBatchSize
	}
	if c.Journal.FlushInterval == 0 {
		c.Journal.FlushInterval = DefaultFlushInterval
	}

	// Status defaults
	if c.Status.Port == 0 {
		c.Status.Port = DefaultStatusPort
	}
	if c.Status.MetricsPath == "" {
		c.Status.MetricsPath = DefaultMetricsPath
	}

	// Log defaults
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
