package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultUpgradePolicy    = "upgrade"
	DefaultStopTimeout      = 10 * time.Second
	DefaultDrainTimeout     = 5 * time.Second
	DefaultQueueFullMode    = "drop_oldest"
	DefaultDialRetries      = 3
	DefaultCommandTimeout   = 10 * time.Second
	DefaultPingInterval     = 30 * time.Second
	DefaultMaxRetries       = 5
	DefaultHeartbeatTimeout = 30 * time.Second
	DefaultCheckInterval    = 5 * time.Second
	DefaultInitialDelay     = 1 * time.Second
	DefaultMaxDelay         = 60 * time.Second
	DefaultMultiplier       = 2.0
	DefaultSTypeIn          = "raw_symbol"
	DefaultDBPort           = 5432
	DefaultDBSSLMode        = "prefer"
	DefaultMaxConns         = 10
	DefaultMinConns         = 2
	DefaultRedisPrefix      = "dbn"
	DefaultRedisTTL         = 24 * time.Hour
	DefaultRedisBatchSize   = 256
	DefaultTradeBufferSize  = 4096
	DefaultQuoteBufferSize  = 8192
	DefaultBookBufferSize   = 2048
	DefaultBarBufferSize    = 1024
	DefaultDefinitionBuffer = 1024
	DefaultStatusBufferSize = 256
	DefaultLatestBufferSize = 4096
	DefaultBatchSize        = 1000
	DefaultFlushInterval    = 1 * time.Second
	DefaultFlushTimeout     = 10 * time.Second
	DefaultMetricsPort      = 9090
	DefaultMetricsPath      = "/metrics"
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "text"
)

func (c *RecorderConfig) applyDefaults() {
	// Live defaults
	if c.Live.UpgradePolicy == "" {
		c.Live.UpgradePolicy = DefaultUpgradePolicy
	}
	if c.Live.StopTimeout == 0 {
		c.Live.StopTimeout = DefaultStopTimeout
	}
	if c.Live.DrainTimeout == 0 {
		c.Live.DrainTimeout = DefaultDrainTimeout
	}
	if c.Live.QueueFullMode == "" {
		c.Live.QueueFullMode = DefaultQueueFullMode
	}
	if c.Live.DialRetries == 0 {
		c.Live.DialRetries = DefaultDialRetries
	}
	if c.Live.CommandTimeout == 0 {
		c.Live.CommandTimeout = DefaultCommandTimeout
	}
	if c.Live.PingInterval == 0 {
		c.Live.PingInterval = DefaultPingInterval
	}

	// Health defaults
	if c.Health.AutoReconnect == nil {
		c.Health.AutoReconnect = boolPtr(true)
	}
	if c.Health.MaxRetries == 0 {
		c.Health.MaxRetries = DefaultMaxRetries
	}
	if c.Health.HeartbeatTimeout == 0 {
		c.Health.HeartbeatTimeout = DefaultHeartbeatTimeout
	}
	if c.Health.CheckInterval == 0 {
		c.Health.CheckInterval = DefaultCheckInterval
	}
	if c.Health.InitialDelay == 0 {
		c.Health.InitialDelay = DefaultInitialDelay
	}
	if c.Health.MaxDelay == 0 {
		c.Health.MaxDelay = DefaultMaxDelay
	}
	if c.Health.Multiplier == 0 {
		c.Health.Multiplier = DefaultMultiplier
	}
	if c.Health.Jitter == nil {
		c.Health.Jitter = boolPtr(true)
	}

	// Subscription defaults
	for i := range c.Subscriptions {
		if c.Subscriptions[i].STypeIn == "" {
			c.Subscriptions[i].STypeIn = DefaultSTypeIn
		}
	}

	// Database defaults
	applyDBDefaults(&c.Database.Timescale)

	// Redis defaults
	if c.Redis.Prefix == "" {
		c.Redis.Prefix = DefaultRedisPrefix
	}
	if c.Redis.TTL == 0 {
		c.Redis.TTL = DefaultRedisTTL
	}
	if c.Redis.BatchSize == 0 {
		c.Redis.BatchSize = DefaultRedisBatchSize
	}

	// Router defaults
	setInt(&c.Router.TradeBufferSize, DefaultTradeBufferSize)
	setInt(&c.Router.QuoteBufferSize, DefaultQuoteBufferSize)
	setInt(&c.Router.BookBufferSize, DefaultBookBufferSize)
	setInt(&c.Router.BarBufferSize, DefaultBarBufferSize)
	setInt(&c.Router.DefinitionBufferSize, DefaultDefinitionBuffer)
	setInt(&c.Router.StatusBufferSize, DefaultStatusBufferSize)
	setInt(&c.Router.LatestBufferSize, DefaultLatestBufferSize)

	// Writers defaults
	if c.Writers.BatchSize == 0 {
		c.Writers.BatchSize = DefaultBatchSize
	}
	if c.Writers.FlushInterval == 0 {
		c.Writers.FlushInterval = DefaultFlushInterval
	}
	if c.Writers.FlushTimeout == 0 {
		c.Writers.FlushTimeout = DefaultFlushTimeout
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}

	// Logging defaults
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
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

func setInt(v *int, def int) {
	if *v == 0 {
		*v = def
	}
}

func boolPtr(b bool) *bool { return &b }
