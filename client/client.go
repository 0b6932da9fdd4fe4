// Package client builds the outbound HTTP client collaborator: a
// retrying client wired into the shared logger.
package client

import (
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/soyeahso/scaffold/logging"
)

// Config controls the outbound client. Zero values fall back to the
// defaults below.
type Config struct {
	TimeoutSeconds int // per-attempt timeout, default 30
	RetryMax       int // default 3
	RetryWaitMinMs int // default 500
	RetryWaitMaxMs int // default 5000
}

// New builds a retrying HTTP client from config, logging through the
// shared logger at debug level.
func New(cfg Config, log *logging.Logger) *retryablehttp.Client {
	c := retryablehttp.NewClient()

	c.RetryMax = 3
	if cfg.RetryMax > 0 {
		c.RetryMax = cfg.RetryMax
	}
	c.RetryWaitMin = 500 * time.Millisecond
	if cfg.RetryWaitMinMs > 0 {
		c.RetryWaitMin = time.Duration(cfg.RetryWaitMinMs) * time.Millisecond
	}
	c.RetryWaitMax = 5 * time.Second
	if cfg.RetryWaitMaxMs > 0 {
		c.RetryWaitMax = time.Duration(cfg.RetryWaitMaxMs) * time.Millisecond
	}
	timeout := 30 * time.Second
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	c.HTTPClient.Timeout = timeout

	c.Logger = leveledLogger{log: log.Sub("client")}
	return c
}

// leveledLogger adapts the shared logger to retryablehttp's
// LeveledLogger interface.
type leveledLogger struct {
	log *logging.Logger
}

func (l leveledLogger) Error(msg string, keysAndValues ...any) {
	l.log.Error().Fields(keysAndValues).Msg(msg)
}

func (l leveledLogger) Warn(msg string, keysAndValues ...any) {
	l.log.Warn().Fields(keysAndValues).Msg(msg)
}

func (l leveledLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l leveledLogger) Debug(msg string, keysAndValues ...any) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}
