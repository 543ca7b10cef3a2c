package writer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rickgao/dbn-live/internal/metrics"
	"github.com/rickgao/dbn-live/internal/queue"
)

// DB sends batched statements. *pgxpool.Pool implements it.
type DB interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Writer is the lifecycle shared by every table writer.
type Writer interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Stats() WriterMetrics
}

// Table describes how messages of type T become rows of type R in one
// table.
type Table[T, R any] struct {
	// Name labels logs and metrics.
	Name string

	// Insert is the parameterized statement queued once per row.
	Insert string

	// Transform converts a message. Returning false skips it.
	Transform func(T) (R, bool)

	// Args returns the statement arguments for a row.
	Args func(R) []any
}

// Batcher consumes one router queue and writes batches to one table.
type Batcher[T, R any] struct {
	cfg     WriterConfig
	table   Table[T, R]
	logger  *slog.Logger
	metrics *metrics.Writer

	// Input from the router
	input *queue.Queue[T]

	// Database
	db DB

	// Batching
	batch   []R
	batchMu sync.Mutex
	flushMu sync.Mutex // serializes flushes so batches land in order

	// Lifecycle
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	drained  chan struct{}
	stopOnce sync.Once

	stats WriterMetrics
}

// NewBatcher creates a batch writer for table. A nil m gets unregistered
// metrics.
func NewBatcher[T, R any](
	cfg WriterConfig,
	table Table[T, R],
	input *queue.Queue[T],
	db DB,
	m *metrics.Writer,
	logger *slog.Logger,
) *Batcher[T, R] {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.NewWriter(nil)
	}
	return &Batcher[T, R]{
		cfg:     cfg,
		table:   table,
		input:   input,
		db:      db,
		metrics: m,
		logger:  logger.With("component", "writer", "table", table.Name),
		batch:   make([]R, 0, cfg.BatchSize),
		drained: make(chan struct{}),
	}
}

// Name returns the table name.
func (w *Batcher[T, R]) Name() string { return w.table.Name }

// Start begins consuming messages and writing to the database.
func (w *Batcher[T, R]) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)

	// Consumer goroutine
	w.wg.Add(1)
	go w.consumeLoop()

	// Flush ticker goroutine
	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop waits for the input queue to drain, bounded by ctx, then shuts
// down and flushes what is left. Close the input first for a full drain.
func (w *Batcher[T, R]) Stop(ctx context.Context) error {
	w.stopOnce.Do(func() {
		w.logger.Info("stopping writer")
		if w.cancel == nil {
			return
		}

		select {
		case <-w.drained:
		case <-ctx.Done():
			w.logger.Warn("writer drain timed out", "pending", w.input.Len())
		}
		w.cancel()
		w.wg.Wait()

		// Final flush
		w.flush()
		w.logger.Info("writer stopped", "inserts", w.Stats().Inserts)
	})
	return nil
}

// Stats returns current counters.
func (w *Batcher[T, R]) Stats() WriterMetrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.stats
}

// consumeLoop reads from the input queue and accumulates batches. It
// returns once the queue is closed and empty, or on cancellation.
func (w *Batcher[T, R]) consumeLoop() {
	defer w.wg.Done()

	for {
		msg, err := w.input.Receive(w.ctx)
		if err != nil {
			if w.ctx.Err() == nil {
				close(w.drained)
			}
			return
		}
		w.handleMessage(msg)
	}
}

// flushLoop periodically flushes the batch.
func (w *Batcher[T, R]) flushLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.flush()
		}
	}
}

// handleMessage transforms and adds a message to the batch.
func (w *Batcher[T, R]) handleMessage(msg T) {
	row, ok := w.table.Transform(msg)
	if !ok {
		w.batchMu.Lock()
		w.stats.Skipped++
		w.batchMu.Unlock()
		return
	}

	w.batchMu.Lock()
	w.batch = append(w.batch, row)
	shouldFlush := len(w.batch) >= w.cfg.BatchSize
	w.batchMu.Unlock()

	if shouldFlush {
		w.flush()
	}
}

// flush writes the current batch to the database.
func (w *Batcher[T, R]) flush() {
	w.flushMu.Lock()
	defer w.flushMu.Unlock()

	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	batch := w.batch
	w.batch = make([]R, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()

	conflicts, err := w.batchInsert(batch)
	elapsed := time.Since(start)
	w.metrics.FlushTime.WithLabelValues(w.table.Name).Observe(elapsed.Seconds())
	w.metrics.BatchSize.WithLabelValues(w.table.Name).Observe(float64(len(batch)))

	if err != nil {
		w.logger.Error("batch insert failed", "error", err, "count", len(batch))
		w.metrics.Errors.WithLabelValues(w.table.Name).Inc()
		w.batchMu.Lock()
		w.stats.Errors++
		w.batchMu.Unlock()
		return
	}

	inserted := len(batch) - conflicts
	w.metrics.Inserts.WithLabelValues(w.table.Name).Add(float64(inserted))
	w.metrics.Conflicts.WithLabelValues(w.table.Name).Add(float64(conflicts))

	w.batchMu.Lock()
	w.stats.Inserts += int64(inserted)
	w.stats.Conflicts += int64(conflicts)
	w.stats.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("flushed batch",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", elapsed,
	)
}

// batchInsert inserts rows with one pgx.Batch. Rows the statement did not
// affect are counted as conflicts.
func (w *Batcher[T, R]) batchInsert(rows []R) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(w.table.Insert, w.table.Args(r)...)
	}

	// The final flush runs after cancellation, so inserts get their own
	// deadline.
	base := w.ctx
	if base == nil {
		base = context.Background()
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(base), w.cfg.FlushTimeout)
	defer cancel()

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	return conflicts, nil
}
