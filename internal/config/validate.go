package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rickgao/dbn-live/internal/dbn"
	"github.com/rickgao/dbn-live/internal/gateway"
	"github.com/rickgao/dbn-live/internal/queue"
)

// Validate checks that all required fields are set and values are valid.
func (c *RecorderConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if c.Live.GatewayURL == "" {
		return errors.New("live.gateway_url is required")
	}
	if c.Live.APIKey == "" {
		return errors.New("live.api_key is required")
	}
	if c.Live.Dataset == "" {
		return errors.New("live.dataset is required")
	}
	if _, err := c.Live.Upgrade(); err != nil {
		return err
	}
	if _, err := c.Live.FullMode(); err != nil {
		return err
	}
	if c.Live.QueueCapacity < 0 {
		return errors.New("live.queue_capacity must be >= 0")
	}

	if c.Health.CheckInterval < 0 || c.Health.HeartbeatTimeout < 0 {
		return errors.New("health intervals must not be negative")
	}
	if c.Health.Multiplier != 0 && c.Health.Multiplier < 1 {
		return fmt.Errorf("health.multiplier must be >= 1, got %g", c.Health.Multiplier)
	}

	if len(c.Subscriptions) == 0 {
		return errors.New("subscriptions: at least one is required")
	}
	for i, sub := range c.Subscriptions {
		if err := sub.validate(fmt.Sprintf("subscriptions[%d]", i)); err != nil {
			return err
		}
	}

	if err := c.Database.Timescale.validate("database.timescale"); err != nil {
		return err
	}

	if c.Redis.Enabled && c.Redis.URL == "" {
		return errors.New("redis.url is required")
	}

	if c.Writers.BatchSize < 1 {
		return errors.New("writers.batch_size must be >= 1")
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	if _, err := c.Logging.SlogLevel(); err != nil {
		return err
	}
	if f := c.Logging.Format; f != "" && f != "text" && f != "json" {
		return fmt.Errorf("logging.format must be text or json, got %q", f)
	}

	return nil
}

func (s SubscriptionConfig) validate(prefix string) error {
	if s.Schema == "" {
		return fmt.Errorf("%s.schema is required", prefix)
	}
	if _, err := dbn.ParseSchema(s.Schema); err != nil {
		return fmt.Errorf("%s.schema: %w", prefix, err)
	}
	if _, err := dbn.ParseSType(s.STypeIn); err != nil {
		return fmt.Errorf("%s.stype_in: %w", prefix, err)
	}
	if len(s.Symbols) == 0 {
		return fmt.Errorf("%s.symbols is required", prefix)
	}
	if s.Snapshot && !s.Start.IsZero() {
		return fmt.Errorf("%s: snapshot and start are mutually exclusive", prefix)
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

// Upgrade parses live.upgrade_policy.
func (l LiveConfig) Upgrade() (gateway.UpgradePolicy, error) {
	switch strings.ToLower(l.UpgradePolicy) {
	case "", "upgrade":
		return gateway.UpgradeToV3, nil
	case "as_is", "as-is":
		return gateway.UpgradeAsIs, nil
	}
	return 0, fmt.Errorf("live.upgrade_policy must be upgrade or as_is, got %q", l.UpgradePolicy)
}

// FullMode parses live.queue_full_mode.
func (l LiveConfig) FullMode() (queue.FullMode, error) {
	switch strings.ToLower(l.QueueFullMode) {
	case "", "drop_oldest":
		return queue.DropOldest, nil
	case "drop_newest":
		return queue.DropNewest, nil
	case "block":
		return queue.Block, nil
	}
	return 0, fmt.Errorf("live.queue_full_mode must be drop_oldest, drop_newest or block, got %q", l.QueueFullMode)
}

// SlogLevel parses logging.level.
func (l LoggingConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if l.Level == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("logging.level: %w", err)
	}
	return level, nil
}
