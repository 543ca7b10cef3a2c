package live

import (
	"errors"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/rickgao/dbn-live/internal/gateway"
	"github.com/rickgao/dbn-live/internal/health"
	"github.com/rickgao/dbn-live/internal/metrics"
	"github.com/rickgao/dbn-live/internal/queue"
)

// Config configures a Client.
type Config struct {
	APIKey            string
	Dataset           string
	SendTsOut         bool
	UpgradePolicy     gateway.UpgradePolicy
	HeartbeatInterval time.Duration // Gateway heartbeat; 0 keeps the gateway default

	StopTimeout  time.Duration // Bound for the transport stop-and-wait
	DrainTimeout time.Duration // Bound for in-flight callbacks on Stop and Close

	// QueueCapacity bounds the record queue. 0 means unbounded.
	QueueCapacity int
	QueueFullMode queue.FullMode

	Health health.Config
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		UpgradePolicy: gateway.UpgradeToV3,
		StopTimeout:   gateway.DefaultStopTimeout,
		DrainTimeout:  5 * time.Second,
		Health:        health.DefaultConfig(),
	}
}

// Validate checks required fields.
func (c Config) Validate() error {
	if c.APIKey == "" {
		return errors.New("api key is required")
	}
	if c.Dataset == "" {
		return errors.New("dataset is required")
	}
	if c.QueueCapacity < 0 {
		return errors.New("queue capacity must not be negative")
	}
	return nil
}

func (c Config) gateway() gateway.Config {
	return gateway.Config{
		APIKey:            c.APIKey,
		Dataset:           c.Dataset,
		SendTsOut:         c.SendTsOut,
		UpgradePolicy:     c.UpgradePolicy,
		HeartbeatInterval: c.HeartbeatInterval,
	}
}

// ErrorAction is an ErrorHandler's decision.
type ErrorAction int

const (
	// Continue keeps the stream running.
	Continue ErrorAction = iota
	// Stop stops the stream asynchronously.
	Stop
)

// ErrorHandler is offered every error raised on the stream. It runs on the
// transport's goroutine and must not block.
type ErrorHandler func(err error) ErrorAction

// Option customizes a Client.
type Option func(*options)

type options struct {
	logger     *slog.Logger
	metrics    *metrics.Live
	errHandler ErrorHandler
	clock      clock.Clock
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics sets the metrics. The default is an unregistered set.
func WithMetrics(m *metrics.Live) Option {
	return func(o *options) { o.metrics = m }
}

// WithErrorHandler installs an error handler.
func WithErrorHandler(h ErrorHandler) Option {
	return func(o *options) { o.errHandler = h }
}

// WithClock sets the clock used by the health monitor.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}
