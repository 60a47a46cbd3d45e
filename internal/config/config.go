package config

import "time"

// SyncConfig is the root configuration for a sync daemon instance.
type SyncConfig struct {
	Instance      InstanceConfig      `yaml:"instance"`
	API           APIConfig           `yaml:"api"`
	Connection    ConnectionConfig    `yaml:"connection"`
	Subscriptions SubscriptionsConfig `yaml:"subscriptions"`
	Cache         CacheConfig         `yaml:"cache"`
	Poller        PollerConfig        `yaml:"poller"`
	Journal       JournalConfig       `yaml:"journal"`
	Status        StatusConfig        `yaml:"status"`
	Log           LogConfig           `yaml:"log"`
}

// InstanceConfig identifies this daemon.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// APIConfig holds backend REST and WebSocket settings.
type APIConfig struct {
	RestURL    string        `yaml:"rest_url"`
	WSURL      string        `yaml:"ws_url"`
	AuthToken  string        `yaml:"auth_token"`  // Bearer token; takes precedence over the cookie
	CookieName string        `yaml:"cookie_name"` // Cookie holding the bearer token
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
	RateLimit  float64       `yaml:"rate_limit"` // Requests per second
	RateBurst  int           `yaml:"rate_burst"`
}

// ConnectionConfig holds Connection Manager settings.
type ConnectionConfig struct {
	Enabled              *bool         `yaml:"enabled"`                // Default: true
	ReconnectMaxAttempts *int          `yaml:"reconnect_max_attempts"` // Default: 5; 0 disables reconnect
	ReconnectInterval    time.Duration `yaml:"reconnect_interval"`
	ReconnectMaxInterval time.Duration `yaml:"reconnect_max_interval"`
	Backoff              string        `yaml:"backoff"` // "fixed" or "exponential"
	PingInterval         time.Duration `yaml:"ping_interval"`
	PingTimeout          time.Duration `yaml:"ping_timeout"`
	WriteTimeout         time.Duration `yaml:"write_timeout"`
	OutboxSize           int           `yaml:"outbox_size"`
	InboundBufferSize    int           `yaml:"inbound_buffer_size"`
}

// IsEnabled reports whether the connection should be opened.
func (c ConnectionConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// MaxAttempts returns the reconnect attempt limit.
func (c ConnectionConfig) MaxAttempts() int {
	if c.ReconnectMaxAttempts == nil {
		return DefaultReconnectMaxAttempts
	}
	return *c.ReconnectMaxAttempts
}

// SubscriptionsConfig lists topics held for the lifetime of the daemon.
type SubscriptionsConfig struct {
	Topics []string `yaml:"topics"`
}

// CacheConfig holds cache slice settings.
type CacheConfig struct {
	RecentTradesCap  int `yaml:"recent_trades_cap"`
	ChangeBufferSize int `yaml:"change_buffer_size"`
}

// PollerConfig holds REST snapshot poller settings.
type PollerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Interval    time.Duration `yaml:"interval"`
	Concurrency int           `yaml:"concurrency"`
	Timeout     time.Duration `yaml:"timeout"`
	PageSize    int           `yaml:"page_size"`
	AgentIDs    []string      `yaml:"agent_ids"` // Agents whose positions are refetched
}

// JournalConfig holds trade journal settings.
type JournalConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Database      DBConfig      `yaml:"database"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// StatusConfig holds the status/debug HTTP server settings.
type StatusConfig struct {
	Enabled     bool     `yaml:"enabled"`
	Port        int      `yaml:"port"`
	MetricsPath string   `yaml:"metrics_path"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// LogConfig controls log level and format.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}
