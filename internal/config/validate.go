package config

import (
	"errors"
	"fmt"
	"net/url"
)

// Validate checks that all required fields are set and values are valid.
func (c *SyncConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if c.API.RestURL == "" {
		return errors.New("api.rest_url is required")
	}
	if c.Connection.IsEnabled() {
		if err := validateWSURL(c.API.WSURL); err != nil {
			return err
		}
	}
	if c.API.MaxRetries < 0 {
		return errors.New("api.max_retries must be >= 0")
	}
	if c.API.RateLimit < 0 {
		return errors.New("api.rate_limit must be >= 0")
	}

	if c.Connection.MaxAttempts() < 0 {
		return errors.New("connection.reconnect_max_attempts must be >= 0")
	}
	if c.Connection.ReconnectInterval <= 0 {
		return errors.New("connection.reconnect_interval must be > 0")
	}
	switch c.Connection.Backoff {
	case BackoffFixed, BackoffExponential:
	default:
		return fmt.Errorf("connection.backoff must be %q or %q, got %q", BackoffFixed, BackoffExponential, c.Connection.Backoff)
	}
	if c.Connection.ReconnectMaxInterval < c.Connection.ReconnectInterval {
		return fmt.Errorf("connection.reconnect_max_interval (%s) cannot be less than reconnect_interval (%s)",
			c.Connection.ReconnectMaxInterval, c.Connection.ReconnectInterval)
	}
	if c.Connection.OutboxSize < 1 {
		return errors.New("connection.outbox_size must be >= 1")
	}

	if c.Cache.RecentTradesCap < 1 {
		return errors.New("cache.recent_trades_cap must be >= 1")
	}

	if c.Poller.Enabled && c.Poller.Concurrency < 1 {
		return errors.New("poller.concurrency must be >= 1")
	}

	if c.Journal.Enabled {
		if err := c.Journal.Database.validate("journal.database"); err != nil {
			return err
		}
		if c.Journal.BatchSize < 1 {
			return errors.New("journal.batch_size must be >= 1")
		}
	}

	if c.Status.Port < 1 || c.Status.Port > 65535 {
		return fmt.Errorf("status.port must be between 1 and 65535, got %d", c.Status.Port)
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error, got %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}

	return nil
}

func validateWSURL(raw string) error {
	if raw == "" {
		return errors.New("api.ws_url is required when connection is enabled")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("api.ws_url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("api.ws_url scheme must be ws or wss, got %q", u.Scheme)
	}
	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
