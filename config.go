package masedb

import (
	"os"
	"time"

	"github.com/autom8ter/masedb/errors"
	"github.com/autom8ter/masedb/util"
)

// Config configures a client
type Config struct {
	// LogLevel is the level of the default logger (error, warn, info, debug). Empty disables logging.
	LogLevel string `json:"log_level" validate:"omitempty,oneof=error warn warning info debug"`
	// SendTimeout bounds each operation sent during a commit. A timed out send fails the transaction. Zero disables the timeout.
	SendTimeout time.Duration `json:"send_timeout" validate:"gte=0"`
}

// Validate validates the config
func (c Config) Validate() error {
	return util.ValidateStruct(c)
}

// NewConfig decodes and validates a config from a map (durations may be strings like "5s")
func NewConfig(values map[string]any) (Config, error) {
	var c Config
	if err := util.Decode(values, &c); err != nil {
		return c, errors.Wrap(err, errors.Validation, "failed to decode config")
	}
	return c, c.Validate()
}

// LoadConfig reads a yaml or json config file
func LoadConfig(path string) (Config, error) {
	var c Config
	bits, err := os.ReadFile(path)
	if err != nil {
		return c, errors.Wrap(err, errors.Validation, "failed to read config %s", path)
	}
	if err := util.DecodeYAML(bits, &c); err != nil {
		return c, errors.Wrap(err, errors.Validation, "failed to decode config %s", path)
	}
	return c, c.Validate()
}

func (c Config) opts() ([]Opt, error) {
	var opts []Opt
	if c.LogLevel != "" {
		logger, err := NewLogger(c.LogLevel, map[string]any{"component": "masedb"})
		if err != nil {
			return nil, errors.Wrap(err, errors.Validation, "failed to create logger")
		}
		opts = append(opts, WithLogger(logger))
	}
	if c.SendTimeout > 0 {
		opts = append(opts, WithSendTimeout(c.SendTimeout))
	}
	return opts, nil
}
