package rest

import (
	"time"

	"github.com/autom8ter/masedb/errors"
	"github.com/autom8ter/masedb/util"
)

// DefaultBaseURL is the hosted MaseDB api
const DefaultBaseURL = "https://masedb.maseai.online"

// Config configures a Sender
type Config struct {
	// BaseURL is the api server's base url
	BaseURL string `json:"base_url" validate:"required,url"`
	// APIKey is sent in the X-API-Key header
	APIKey string `json:"api_key" validate:"required"`
	// Timeout bounds a single http request
	Timeout time.Duration `json:"timeout" validate:"gte=0"`
	// MaxRetries is the number of retries of an idempotent request after a 500, 502, 503 or 504
	MaxRetries int `json:"max_retries" validate:"gte=0"`
	// RetryBackoff is the delay before the first retry. It doubles for each following retry.
	RetryBackoff time.Duration `json:"retry_backoff" validate:"gte=0"`
	// RateLimit caps requests per second. Zero disables rate limiting.
	RateLimit float64 `json:"rate_limit" validate:"gte=0"`
}

// DefaultConfig returns the config used by the hosted api client
func DefaultConfig(apiKey string) Config {
	return Config{
		BaseURL:      DefaultBaseURL,
		APIKey:       apiKey,
		Timeout:      30 * time.Second,
		MaxRetries:   3,
		RetryBackoff: 500 * time.Millisecond,
	}
}

// Validate validates the config
func (c Config) Validate() error {
	return util.ValidateStruct(c)
}

// NewConfig decodes a config from a map over the defaults. Durations may be strings like "30s".
func NewConfig(values map[string]any) (Config, error) {
	c := DefaultConfig("")
	if err := util.Decode(values, &c); err != nil {
		return c, errors.Wrap(err, errors.Validation, "failed to decode rest config")
	}
	return c, c.Validate()
}
