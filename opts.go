package masedb

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Opt is an option for configuring a client
type Opt func(c *Client)

// WithLogger sets the client's logger. The default discards all logs.
func WithLogger(logger Logger) Opt {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithSendTimeout bounds each send made while committing a transaction
func WithSendTimeout(timeout time.Duration) Opt {
	return func(c *Client) {
		c.sendTimeout = timeout
	}
}

// WithMetrics registers the client's prometheus collectors on the registerer
func WithMetrics(registerer prometheus.Registerer) Opt {
	return func(c *Client) {
		c.registerer = registerer
	}
}

// WithClock sets the clock used for transaction timestamps and $currentDate
func WithClock(now func() time.Time) Opt {
	return func(c *Client) {
		c.now = now
	}
}

// WithConfig applies a decoded Config
func WithConfig(cfg Config) Opt {
	return func(c *Client) {
		c.config = &cfg
	}
}
