// Package cache keeps the latest top of book per instrument in Redis.
//
// Each symbol is one hash at {prefix}:{dataset}:{symbol} with the fields
// bid, ask, bid_sz, ask_sz, last and ts. Updates are partial: a trade only
// touches last and ts, a quote leaves last alone.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/rickgao/dbn-live/internal/metrics"
	"github.com/rickgao/dbn-live/internal/queue"
	"github.com/rickgao/dbn-live/internal/router"
)

// Errors
var (
	ErrNotFound = errors.New("quote not cached")
)

// Hash field names.
const (
	FieldBid   = "bid"
	FieldAsk   = "ask"
	FieldBidSz = "bid_sz"
	FieldAskSz = "ask_sz"
	FieldLast  = "last"
	FieldTs    = "ts"
)

// Config configures the quote cache.
type Config struct {
	Prefix    string        // Default: "dbn"
	Dataset   string        // required
	TTL       time.Duration // Default: 24h. 0 disables expiry.
	BatchSize int           // Default: 256, updates per pipeline
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		Prefix:    "dbn",
		TTL:       24 * time.Hour,
		BatchSize: 256,
	}
}

// Quote is a cached top of book.
type Quote struct {
	Symbol string
	Bid    decimal.NullDecimal
	Ask    decimal.NullDecimal
	BidSz  uint32
	AskSz  uint32
	Last   decimal.NullDecimal
	Ts     time.Time
}

// Stats contains cache counters.
type Stats struct {
	Updates   int64 // messages consumed
	Writes    int64 // hashes written
	Pipelines int64
	Errors    int64
}

// QuoteCache consumes the router's latest queue and writes hashes.
type QuoteCache struct {
	cfg     Config
	client  redis.Cmdable
	input   *queue.Queue[router.LatestMsg]
	logger  *slog.Logger
	metrics *metrics.Cache

	mu    sync.Mutex
	stats Stats

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a quote cache. A nil m gets unregistered metrics.
func New(cfg Config, client redis.Cmdable, input *queue.Queue[router.LatestMsg], m *metrics.Cache, logger *slog.Logger) *QuoteCache {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.NewCache(nil)
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	return &QuoteCache{
		cfg:     cfg,
		client:  client,
		input:   input,
		logger:  logger.With("component", "cache"),
		metrics: m,
		done:    make(chan struct{}),
	}
}

// Key returns the hash key for symbol.
func (c *QuoteCache) Key(symbol string) string {
	return fmt.Sprintf("%s:%s:%s", c.cfg.Prefix, c.cfg.Dataset, symbol)
}

// Start begins consuming updates.
func (c *QuoteCache) Start(ctx context.Context) error {
	ctx, c.cancel = context.WithCancel(ctx)
	go c.run(ctx)
	c.logger.Info("quote cache started", "prefix", c.cfg.Prefix, "dataset", c.cfg.Dataset, "ttl", c.cfg.TTL)
	return nil
}

// Stop waits for the input to drain, bounded by ctx.
func (c *QuoteCache) Stop(ctx context.Context) error {
	if c.cancel == nil {
		return nil
	}
	select {
	case <-c.done:
	case <-ctx.Done():
		c.logger.Warn("quote cache drain timed out", "pending", c.input.Len())
		c.cancel()
		<-c.done
	}
	c.cancel()
	return nil
}

// Stats returns current counters.
func (c *QuoteCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func (c *QuoteCache) run(ctx context.Context) {
	defer close(c.done)

	for {
		first, err := c.input.Receive(ctx)
		if err != nil {
			return
		}
		batch := append([]router.LatestMsg{first}, c.input.DrainTo(c.cfg.BatchSize-1)...)
		if err := c.write(ctx, batch); err != nil && ctx.Err() == nil {
			c.logger.Warn("cache write failed", "error", err, "updates", len(batch))
		}
	}
}

// write merges the batch per symbol and sends one pipeline.
func (c *QuoteCache) write(ctx context.Context, batch []router.LatestMsg) error {
	merged := coalesce(batch)

	pipe := c.client.Pipeline()
	for _, u := range merged {
		key := c.Key(u.symbol)
		pipe.HSet(ctx, key, u.values...)
		if c.cfg.TTL > 0 {
			pipe.Expire(ctx, key, c.cfg.TTL)
		}
	}
	_, err := pipe.Exec(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.Updates += int64(len(batch))
	c.stats.Pipelines++
	if err != nil {
		c.stats.Errors++
		c.metrics.Errors.Inc()
		return fmt.Errorf("pipeline: %w", err)
	}
	c.stats.Writes += int64(len(merged))
	c.metrics.Writes.Add(float64(len(merged)))
	return nil
}

// Get reads the cached quote for symbol.
func (c *QuoteCache) Get(ctx context.Context, symbol string) (Quote, error) {
	values, err := c.client.HGetAll(ctx, c.Key(symbol)).Result()
	if err != nil {
		return Quote{}, fmt.Errorf("hgetall: %w", err)
	}
	if len(values) == 0 {
		return Quote{}, ErrNotFound
	}
	q, err := parseQuote(values)
	if err != nil {
		return Quote{}, err
	}
	q.Symbol = symbol
	return q, nil
}

// -----------------------------------------------------------------------------
// Field mapping
// -----------------------------------------------------------------------------

type update struct {
	symbol string
	values []any // field, value pairs for HSET
}

// fields maps one update to HSET field/value pairs.
func fields(msg router.LatestMsg) map[string]string {
	f := make(map[string]string, 6)
	if msg.HasQuote {
		f[FieldBid] = priceString(msg.BidPx)
		f[FieldAsk] = priceString(msg.AskPx)
		f[FieldBidSz] = strconv.FormatUint(uint64(msg.BidSz), 10)
		f[FieldAskSz] = strconv.FormatUint(uint64(msg.AskSz), 10)
	}
	if msg.HasLast {
		f[FieldLast] = priceString(msg.Last)
	}
	if len(f) > 0 && !msg.TsEvent.IsZero() {
		f[FieldTs] = strconv.FormatInt(msg.TsEvent.UnixNano(), 10)
	}
	return f
}

// coalesce merges updates per symbol, later fields overwriting earlier
// ones, keeping first-seen symbol order.
func coalesce(batch []router.LatestMsg) []update {
	order := make([]string, 0, len(batch))
	merged := make(map[string]map[string]string, len(batch))
	for _, msg := range batch {
		f := fields(msg)
		if len(f) == 0 {
			continue
		}
		m, ok := merged[msg.Symbol]
		if !ok {
			order = append(order, msg.Symbol)
			merged[msg.Symbol] = f
			continue
		}
		for k, v := range f {
			m[k] = v
		}
	}

	result := make([]update, 0, len(order))
	for _, symbol := range order {
		f := merged[symbol]
		values := make([]any, 0, 2*len(f))
		for _, k := range []string{FieldBid, FieldAsk, FieldBidSz, FieldAskSz, FieldLast, FieldTs} {
			if v, ok := f[k]; ok {
				values = append(values, k, v)
			}
		}
		result = append(result, update{symbol: symbol, values: values})
	}
	return result
}

// priceString renders an unset price as the empty string.
func priceString(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.String()
}

func parsePrice(s string) (decimal.NullDecimal, error) {
	if s == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}

func parseQuote(values map[string]string) (Quote, error) {
	var q Quote
	var err error
	if q.Bid, err = parsePrice(values[FieldBid]); err != nil {
		return Quote{}, fmt.Errorf("field %s: %w", FieldBid, err)
	}
	if q.Ask, err = parsePrice(values[FieldAsk]); err != nil {
		return Quote{}, fmt.Errorf("field %s: %w", FieldAsk, err)
	}
	if q.Last, err = parsePrice(values[FieldLast]); err != nil {
		return Quote{}, fmt.Errorf("field %s: %w", FieldLast, err)
	}
	if v, ok := values[FieldBidSz]; ok {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return Quote{}, fmt.Errorf("field %s: %w", FieldBidSz, err)
		}
		q.BidSz = uint32(n)
	}
	if v, ok := values[FieldAskSz]; ok {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return Quote{}, fmt.Errorf("field %s: %w", FieldAskSz, err)
		}
		q.AskSz = uint32(n)
	}
	if v, ok := values[FieldTs]; ok {
		ns, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return Quote{}, fmt.Errorf("field %s: %w", FieldTs, err)
		}
		q.Ts = time.Unix(0, ns).UTC()
	}
	return q, nil
}
