// recorder subscribes to a DBN live gateway and records every routed stream
// into TimescaleDB, optionally publishing the latest quotes to Redis.
//
// Usage: go run ./cmd/recorder --config configs/recorder.example.yaml
//
// Environment variables referenced by the config (e.g. DBN_API_KEY) are
// loaded from the process environment and, if present, the --env file.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/dbn-live/internal/cache"
	"github.com/rickgao/dbn-live/internal/config"
	"github.com/rickgao/dbn-live/internal/database"
	"github.com/rickgao/dbn-live/internal/dbn"
	"github.com/rickgao/dbn-live/internal/gateway"
	"github.com/rickgao/dbn-live/internal/health"
	"github.com/rickgao/dbn-live/internal/live"
	"github.com/rickgao/dbn-live/internal/metrics"
	"github.com/rickgao/dbn-live/internal/resilience"
	"github.com/rickgao/dbn-live/internal/router"
	"github.com/rickgao/dbn-live/internal/version"
	"github.com/rickgao/dbn-live/internal/writer"
)

const shutdownTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", "configs/recorder.local.yaml", "path to config file")
	envFile := flag.String("env", ".env", "optional dotenv file")
	flag.Parse()

	if err := config.LoadEnv(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	logger.Info("starting recorder",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
		"instance_id", cfg.Instance.ID,
		"dataset", cfg.Live.Dataset,
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("recorder failed", "error", err)
		os.Exit(1)
	}
	logger.Info("recorder stopped")
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	level, _ := cfg.SlogLevel()
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

// recorder holds the running components.
type recorder struct {
	cfg     *config.RecorderConfig
	logger  *slog.Logger
	pools   *database.Pools
	client  *live.Client
	router  router.Router
	writers []writer.Writer
	cache   *cache.QuoteCache
	redis   *redis.Client
}

func run(cfg *config.RecorderConfig, logger *slog.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	rec := &recorder{cfg: cfg, logger: logger}
	defer rec.close()

	// Connect to database
	logger.Info("connecting to database",
		"host", cfg.Database.Timescale.Host,
		"port", cfg.Database.Timescale.Port,
		"database", cfg.Database.Timescale.Name,
	)
	pools, err := database.NewPools(ctx, cfg.Database)
	if err != nil {
		return err
	}
	rec.pools = pools
	if cfg.Database.Migrate {
		if err := database.Migrate(ctx, pools.Timescale); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		logger.Info("schema migrated")
	}

	if cfg.Redis.Enabled {
		if err := rec.connectRedis(ctx); err != nil {
			return err
		}
	}

	if err := rec.startClient(ctx, metrics.NewLive(reg)); err != nil {
		return err
	}

	rec.router = router.New(routerConfig(cfg.Router), rec.client, metrics.NewRouter(reg), logger)
	rec.client.OnMetadata(rec.router.ApplyMetadata)

	// The pipeline outlives the signal context so shutdown can drain it.
	pipeCtx, stopPipe := context.WithCancel(context.Background())
	defer stopPipe()

	rec.buildSinks(metrics.NewWriter(reg), metrics.NewCache(reg))
	for _, w := range rec.writers {
		if err := w.Start(pipeCtx); err != nil {
			return fmt.Errorf("start %s writer: %w", w.Name(), err)
		}
	}
	if rec.cache != nil {
		if err := rec.cache.Start(pipeCtx); err != nil {
			return fmt.Errorf("start cache: %w", err)
		}
	}
	if err := rec.router.Start(pipeCtx); err != nil {
		return fmt.Errorf("start router: %w", err)
	}

	md, err := rec.client.Start(ctx)
	if err != nil {
		return fmt.Errorf("start stream: %w", err)
	}
	rec.router.ApplyMetadata(md)
	logger.Info("streaming",
		"session_id", rec.client.SessionID(),
		"dataset", md.Dataset,
		"symbols", len(md.Symbols),
		"not_found", len(md.NotFound),
	)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler:           rec.handler(reg),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting metrics server", "port", cfg.Metrics.Port, "path", cfg.Metrics.Path)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-rec.router.Done():
			logger.Warn("record stream ended")
		}
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		rec.shutdown(shutdownCtx)
		return server.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		rec.logStats(gctx, time.Minute)
		return nil
	})

	return g.Wait()
}

func (r *recorder) connectRedis(ctx context.Context) error {
	opts, err := redis.ParseURL(r.cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return fmt.Errorf("ping redis: %w", err)
	}
	r.redis = client
	r.logger.Info("redis connected", "addr", opts.Addr)
	return nil
}

func (r *recorder) startClient(ctx context.Context, m *metrics.Live) error {
	lc := r.cfg.Live
	upgrade, _ := lc.Upgrade()
	fullMode, _ := lc.FullMode()

	dialer := gateway.NewWSDialer(lc.GatewayURL, r.logger)
	dialer.DialRetries = uint64(lc.DialRetries)
	if lc.CommandTimeout > 0 {
		dialer.CommandTimeout = lc.CommandTimeout
	}
	if lc.PingInterval > 0 {
		dialer.PingInterval = lc.PingInterval
		dialer.PingTimeout = 2 * lc.PingInterval
	}

	client, err := live.New(ctx, live.Config{
		APIKey:            lc.APIKey,
		Dataset:           lc.Dataset,
		SendTsOut:         lc.SendTsOut,
		UpgradePolicy:     upgrade,
		HeartbeatInterval: lc.HeartbeatInterval,
		StopTimeout:       lc.StopTimeout,
		DrainTimeout:      lc.DrainTimeout,
		QueueCapacity:     lc.QueueCapacity,
		QueueFullMode:     fullMode,
		Health:            healthConfig(r.cfg.Health, r.logger),
	}, dialer, live.WithLogger(r.logger), live.WithMetrics(m))
	if err != nil {
		return fmt.Errorf("create live client: %w", err)
	}
	r.client = client

	client.OnError(func(err error) {
		r.logger.Warn("stream error", "error", err)
	})

	for i, sub := range r.cfg.Subscriptions {
		schema, _ := dbn.ParseSchema(sub.Schema)
		stype, _ := dbn.ParseSType(sub.STypeIn)
		switch {
		case sub.Snapshot:
			err = client.SubscribeWithSnapshot(ctx, lc.Dataset, schema, stype, sub.Symbols)
		case !sub.Start.IsZero():
			err = client.Subscribe(ctx, lc.Dataset, schema, stype, sub.Symbols, sub.Start)
		default:
			err = client.Subscribe(ctx, lc.Dataset, schema, stype, sub.Symbols)
		}
		if err != nil {
			return fmt.Errorf("subscription %d (%s): %w", i, sub.Schema, err)
		}
		r.logger.Info("subscribed",
			"schema", schema,
			"stype_in", stype,
			"symbols", len(sub.Symbols),
			"snapshot", sub.Snapshot,
		)
	}
	return nil
}

func healthConfig(h config.HealthConfig, logger *slog.Logger) health.Config {
	return health.Config{
		AutoReconnect:     *h.AutoReconnect,
		MaxRetries:        h.MaxRetries,
		HeartbeatTimeout:  h.HeartbeatTimeout,
		CheckInterval:     h.CheckInterval,
		ReconnectDeadline: h.ReconnectDeadline,
		Policy: resilience.Policy{
			InitialDelay: h.InitialDelay,
			MaxDelay:     h.MaxDelay,
			Multiplier:   h.Multiplier,
			Jitter:       *h.Jitter,
		},
		OnReconnected: func(attempts int) {
			logger.Info("stream reconnected", "attempts", attempts)
		},
		OnReconnectFailed: func(err error) {
			logger.Error("stream reconnect failed", "error", err)
		},
		OnStateChange: func(from, to health.State) {
			logger.Info("health state changed", "from", from, "to", to)
		},
	}
}

func routerConfig(c config.RouterConfig) router.Config {
	return router.Config{
		TradeBufferSize:      c.TradeBufferSize,
		QuoteBufferSize:      c.QuoteBufferSize,
		BookBufferSize:       c.BookBufferSize,
		BarBufferSize:        c.BarBufferSize,
		DefinitionBufferSize: c.DefinitionBufferSize,
		StatusBufferSize:     c.StatusBufferSize,
		LatestBufferSize:     c.LatestBufferSize,
	}
}

func (r *recorder) buildSinks(wm *metrics.Writer, cm *metrics.Cache) {
	wc := writer.WriterConfig{
		BatchSize:     r.cfg.Writers.BatchSize,
		FlushInterval: r.cfg.Writers.FlushInterval,
		FlushTimeout:  r.cfg.Writers.FlushTimeout,
	}
	db := r.pools.Timescale
	q := r.router.Queues()

	r.writers = []writer.Writer{
		writer.NewTradeWriter(wc, q.Trades, db, wm, r.logger),
		writer.NewQuoteWriter(wc, q.Quotes, db, wm, r.logger),
		writer.NewBookWriter(wc, q.Books, db, wm, r.logger),
		writer.NewBarWriter(wc, q.Bars, db, wm, r.logger),
		writer.NewStatusWriter(wc, q.Statuses, db, wm, r.logger),
		writer.NewDefinitionWriter(wc, q.Definitions, db, wm, r.logger),
	}

	if r.redis != nil {
		r.cache = cache.New(cache.Config{
			Prefix:    r.cfg.Redis.Prefix,
			Dataset:   r.cfg.Live.Dataset,
			TTL:       r.cfg.Redis.TTL,
			BatchSize: r.cfg.Redis.BatchSize,
		}, r.redis, q.Latest, cm, r.logger)
	}
}

// shutdown stops the stream first so the router and sinks drain what was
// already received.
func (r *recorder) shutdown(ctx context.Context) {
	r.logger.Info("shutting down...")

	if err := r.client.Stop(ctx); err != nil {
		r.logger.Warn("stop stream", "error", err)
	}

	select {
	case <-r.router.Done():
	case <-ctx.Done():
	}
	if err := r.router.Stop(ctx); err != nil {
		r.logger.Warn("stop router", "error", err)
	}

	for _, w := range r.writers {
		if err := w.Stop(ctx); err != nil {
			r.logger.Warn("stop writer", "writer", w.Name(), "error", err)
		}
		stats := w.Stats()
		r.logger.Info("writer stopped",
			"writer", w.Name(),
			"inserts", stats.Inserts,
			"conflicts", stats.Conflicts,
			"errors", stats.Errors,
		)
	}
	if r.cache != nil {
		if err := r.cache.Stop(ctx); err != nil {
			r.logger.Warn("stop cache", "error", err)
		}
	}
}

func (r *recorder) close() {
	if r.client != nil {
		r.client.Close()
	}
	if r.redis != nil {
		r.redis.Close()
	}
	if r.pools != nil {
		r.pools.Close()
	}
}

func (r *recorder) logStats(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rs := r.router.Stats()
			qs := r.client.QueueStats()
			r.logger.Info("stats",
				"state", r.client.State(),
				"health", r.client.Health().StateName,
				"queue_depth", qs.Count,
				"queue_dropped", qs.Dropped,
				"received", rs.Received,
				"routed", rs.Routed,
				"dropped", rs.Dropped,
				"unknown", rs.Unknown,
				"gateway_errors", rs.GatewayErrors,
			)
		}
	}
}
