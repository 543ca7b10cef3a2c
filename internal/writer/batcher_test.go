package writer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rickgao/dbn-live/internal/queue"
	"github.com/rickgao/dbn-live/internal/router"
)

// fakeDB records queued statements. Every statement affects one row
// unless its first argument is in conflictOn.
type fakeDB struct {
	mu         sync.Mutex
	batches    [][]pgx.QueuedQuery
	conflictOn map[any]bool
	err        error
}

func (db *fakeDB) SendBatch(_ context.Context, b *pgx.Batch) pgx.BatchResults {
	db.mu.Lock()
	defer db.mu.Unlock()

	queries := make([]pgx.QueuedQuery, 0, len(b.QueuedQueries))
	for _, q := range b.QueuedQueries {
		queries = append(queries, *q)
	}
	db.batches = append(db.batches, queries)
	return &fakeResults{db: db, queries: queries}
}

func (db *fakeDB) rows() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	n := 0
	for _, b := range db.batches {
		n += len(b)
	}
	return n
}

type fakeResults struct {
	db      *fakeDB
	queries []pgx.QueuedQuery
	next    int
}

func (r *fakeResults) Exec() (pgconn.CommandTag, error) {
	if r.db.err != nil {
		return pgconn.CommandTag{}, r.db.err
	}
	q := r.queries[r.next]
	r.next++
	if len(q.Arguments) > 0 && r.db.conflictOn[q.Arguments[0]] {
		return pgconn.NewCommandTag("INSERT 0 0"), nil
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (r *fakeResults) Query() (pgx.Rows, error) { return nil, errors.New("not supported") }
func (r *fakeResults) QueryRow() pgx.Row        { return nil }
func (r *fakeResults) Close() error             { return nil }

// intTable writes ints; negative values are skipped.
func intTable() Table[int, int] {
	return Table[int, int]{
		Name:   "ints",
		Insert: "INSERT INTO ints (v) VALUES ($1) ON CONFLICT DO NOTHING",
		Transform: func(v int) (int, bool) {
			return v, v >= 0
		},
		Args: func(v int) []any { return []any{v} },
	}
}

func testWriterConfig() WriterConfig {
	return WriterConfig{BatchSize: 3, FlushInterval: time.Hour, FlushTimeout: time.Second}
}

func TestBatcher_FlushesBySize(t *testing.T) {
	db := &fakeDB{}
	input := queue.NewGrowable[int](8)
	w := NewBatcher(testWriterConfig(), intTable(), input, db, nil, nil)

	for i := 0; i < 7; i++ {
		w.handleMessage(i)
	}

	db.mu.Lock()
	batches := len(db.batches)
	db.mu.Unlock()
	if batches != 2 {
		t.Errorf("batches = %d, want 2", batches)
	}
	if n := w.Stats().Inserts; n != 6 {
		t.Errorf("Inserts = %d, want 6", n)
	}

	w.flush()
	if n := w.Stats().Inserts; n != 7 {
		t.Errorf("Inserts after flush = %d, want 7", n)
	}
	if n := w.Stats().Flushes; n != 3 {
		t.Errorf("Flushes = %d, want 3", n)
	}
}

func TestBatcher_CountsConflicts(t *testing.T) {
	db := &fakeDB{conflictOn: map[any]bool{1: true}}
	w := NewBatcher(testWriterConfig(), intTable(), queue.NewGrowable[int](8), db, nil, nil)

	w.handleMessage(0)
	w.handleMessage(1)
	w.handleMessage(2)

	stats := w.Stats()
	if stats.Inserts != 2 {
		t.Errorf("Inserts = %d, want 2", stats.Inserts)
	}
	if stats.Conflicts != 1 {
		t.Errorf("Conflicts = %d, want 1", stats.Conflicts)
	}
}

func TestBatcher_InsertError(t *testing.T) {
	db := &fakeDB{err: errors.New("connection reset")}
	w := NewBatcher(testWriterConfig(), intTable(), queue.NewGrowable[int](8), db, nil, nil)

	w.handleMessage(0)
	w.flush()

	stats := w.Stats()
	if stats.Errors != 1 {
		t.Errorf("Errors = %d, want 1", stats.Errors)
	}
	if stats.Inserts != 0 {
		t.Errorf("Inserts = %d, want 0", stats.Inserts)
	}
	// A failed batch is not retried.
	w.flush()
	if stats := w.Stats(); stats.Errors != 1 {
		t.Errorf("Errors after empty flush = %d, want 1", stats.Errors)
	}
}

func TestBatcher_DrainsOnStop(t *testing.T) {
	db := &fakeDB{}
	input := queue.NewGrowable[int](8)
	w := NewBatcher(testWriterConfig(), intTable(), input, db, nil, nil)

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	for i := 0; i < 5; i++ {
		input.Send(i)
	}
	input.Send(-1)
	input.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := w.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	if n := db.rows(); n != 5 {
		t.Errorf("rows written = %d, want 5", n)
	}
	stats := w.Stats()
	if stats.Inserts != 5 || stats.Skipped != 1 {
		t.Errorf("stats = %+v, want 5 inserts and 1 skipped", stats)
	}
}

func TestBatcher_FlushInterval(t *testing.T) {
	db := &fakeDB{}
	input := queue.NewGrowable[int](8)
	cfg := WriterConfig{BatchSize: 100, FlushInterval: 20 * time.Millisecond, FlushTimeout: time.Second}
	w := NewBatcher(cfg, intTable(), input, db, nil, nil)

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer func() {
		input.Close()
		w.Stop(context.Background())
	}()

	input.Send(1)

	deadline := time.Now().Add(2 * time.Second)
	for db.rows() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if db.rows() != 1 {
		t.Errorf("rows written = %d, want 1 after flush interval", db.rows())
	}
}

func TestBatcher_StopWithoutDrain(t *testing.T) {
	db := &fakeDB{}
	input := queue.NewGrowable[router.StatusMsg](8)
	w := NewStatusWriter(testWriterConfig(), input, db, nil, nil)

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// The input is never closed, so Stop gives up on draining once ctx
	// expires.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	if err := w.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Stop took %v", elapsed)
	}
}
