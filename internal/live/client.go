package live

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rickgao/dbn-live/internal/connection"
	"github.com/rickgao/dbn-live/internal/dbn"
	"github.com/rickgao/dbn-live/internal/gateway"
	"github.com/rickgao/dbn-live/internal/health"
	"github.com/rickgao/dbn-live/internal/metrics"
	"github.com/rickgao/dbn-live/internal/queue"
	"github.com/rickgao/dbn-live/internal/subscription"
)

// Errors
var (
	ErrStopped = fmt.Errorf("%w: client stopped", connection.ErrValidation)

	// ErrStreamClosed is returned by Next once the stream is stopped and
	// every queued record has been read.
	ErrStreamClosed = errors.New("stream closed")

	// ErrStreamEnded settles the metadata of a stream that ended before
	// the gateway sent any.
	ErrStreamEnded = errors.New("stream ended before metadata")
)

// Disposal states.
const (
	active int32 = iota
	disposing
	disposed
)

// stream is one StartEx run: its metadata future and record gate.
type stream struct {
	metadata *future[*dbn.Metadata]
	gate     *gate
}

// Client is a live market-data client.
type Client struct {
	cfg        Config
	handle     *connection.Handle
	registry   *subscription.Registry
	monitor    *health.Monitor
	queue      *queue.Queue[dbn.Record]
	logger     *slog.Logger
	metrics    *metrics.Live
	errHandler ErrorHandler

	status    atomic.Int32 // active, disposing, disposed
	inflight  atomic.Int64 // callbacks past the disposal check
	accepting atomic.Bool  // false once Stop begins
	started   atomic.Bool
	stopping  atomic.Bool
	current   atomic.Pointer[stream]
	dropped   atomic.Int64 // queue drops already counted in metrics

	seqMu     sync.Mutex // serializes reconnect sequences
	stopCtx   context.Context
	halting   context.CancelFunc // cancels stopCtx; called by Stop and Close
	stoppedCh chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup

	onRecord   listeners[dbn.Record]
	onError    listeners[error]
	onMetadata listeners[*dbn.Metadata]
}

// New creates the gateway session and returns an idle client.
func New(ctx context.Context, cfg Config, dialer gateway.Dialer, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", connection.ErrValidation, err)
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.metrics == nil {
		o.metrics = metrics.NewLive(nil)
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = DefaultConfig().DrainTimeout
	}
	if o.clock != nil {
		cfg.Health.Clock = o.clock
	}

	logger := o.logger.With("component", "live", "dataset", cfg.Dataset)
	handle, err := connection.New(ctx, dialer, connection.Config{
		Gateway:     cfg.gateway(),
		StopTimeout: cfg.StopTimeout,
	}, o.logger, o.metrics)
	if err != nil {
		return nil, err
	}

	c := &Client{
		cfg:        cfg,
		handle:     handle,
		registry:   subscription.NewRegistry(),
		logger:     logger,
		metrics:    o.metrics,
		errHandler: o.errHandler,
		stoppedCh:  make(chan struct{}),
	}
	if cfg.QueueCapacity > 0 {
		c.queue = queue.New[dbn.Record](queue.Options{
			Capacity: cfg.QueueCapacity,
			FullMode: cfg.QueueFullMode,
		})
	} else {
		c.queue = queue.NewGrowable[dbn.Record](0)
	}
	c.stopCtx, c.halting = context.WithCancel(context.Background())
	c.monitor = health.NewMonitor(cfg.Health, c.reconnect, o.logger, o.metrics)
	c.accepting.Store(true)
	return c, nil
}

func (c *Client) checkActive() error {
	if c.status.Load() != active {
		return connection.ErrDisposed
	}
	return nil
}

// ----------------------------------------------------------------------------
// Subscriptions
// ----------------------------------------------------------------------------

// Subscribe subscribes to symbols. An optional start time requests an
// intraday replay from that point. The subscription is recorded only after
// the gateway accepts it.
func (c *Client) Subscribe(ctx context.Context, dataset string, schema dbn.Schema, stypeIn dbn.SType, symbols []string, start ...time.Time) error {
	var st time.Time
	if len(start) > 0 {
		st = start[0]
	}
	return c.subscribe(ctx, dataset, schema, stypeIn, symbols, st, false)
}

// SubscribeWithSnapshot subscribes and requests a book snapshot first.
func (c *Client) SubscribeWithSnapshot(ctx context.Context, dataset string, schema dbn.Schema, stypeIn dbn.SType, symbols []string) error {
	return c.subscribe(ctx, dataset, schema, stypeIn, symbols, time.Time{}, true)
}

func (c *Client) subscribe(ctx context.Context, dataset string, schema dbn.Schema, stypeIn dbn.SType, symbols []string, start time.Time, snapshot bool) error {
	if err := c.checkActive(); err != nil {
		return err
	}
	sub, err := subscription.New(dataset, schema, stypeIn, symbols, start, snapshot)
	if err != nil {
		return fmt.Errorf("%w: %w", connection.ErrValidation, err)
	}
	if err := c.handle.Subscribe(ctx, sub); err != nil {
		return err
	}
	c.registry.Add(sub)
	c.logger.Info("subscribed", "subscription", sub.String())
	return nil
}

// Subscriptions returns the accepted subscriptions in the order they were
// made.
func (c *Client) Subscriptions() []subscription.Subscription {
	return c.registry.List()
}

// ----------------------------------------------------------------------------
// Lifecycle
// ----------------------------------------------------------------------------

// Start starts the stream and blocks until the gateway sends the session
// metadata. A concurrent Start fails with connection.ErrAlreadyStarted.
// If ctx is done first the stream is halted and ctx's error returned.
func (c *Client) Start(ctx context.Context) (*dbn.Metadata, error) {
	if err := c.checkActive(); err != nil {
		return nil, err
	}
	if c.stopping.Load() {
		return nil, ErrStopped
	}
	md, err := c.start(ctx)
	if err != nil {
		return nil, err
	}
	c.monitor.Start(context.Background())
	return md, nil
}

func (c *Client) start(ctx context.Context) (*dbn.Metadata, error) {
	s := &stream{
		metadata: newFuture[*dbn.Metadata](),
		gate:     &gate{},
	}
	result, err := c.handle.Start(c.callbacks(s))
	if err != nil {
		return nil, err
	}
	c.current.Store(s)
	c.started.Store(true)

	c.wg.Add(1)
	go c.watch(s, result)

	md, err := s.metadata.wait(ctx)
	if err == nil {
		c.logger.Info("streaming", "session", c.handle.SessionID(), "symbols", len(md.Symbols))
		return md, nil
	}

	// Start failed or was abandoned; the stream must not outlive it.
	s.metadata.reject(err)
	s.gate.discard()
	if !errors.Is(err, ErrStopped) {
		c.halt()
	}
	c.handle.Transition(connection.Connecting, connection.Disconnected)
	if ctx.Err() != nil {
		return nil, fmt.Errorf("start: %w", ctx.Err())
	}
	return nil, err
}

// halt stops the session without a state change, bounded by StopTimeout.
func (c *Client) halt() {
	ctx, cancel := context.WithTimeout(context.Background(), c.stopBound())
	defer cancel()
	if err := c.handle.Halt(ctx); err != nil {
		c.logger.Warn("halt failed", "error", err)
	}
}

func (c *Client) stopBound() time.Duration {
	d := c.cfg.StopTimeout
	if d <= 0 {
		d = gateway.DefaultStopTimeout
	}
	return d + time.Second
}

// watch observes the end of one StartEx run. An end the client did not ask
// for is reported to the health monitor.
func (c *Client) watch(s *stream, result <-chan error) {
	defer c.wg.Done()

	err := <-result
	live := s.metadata.resolved()
	if err != nil {
		s.metadata.reject(err)
	} else {
		s.metadata.reject(ErrStreamEnded)
	}
	if !live || c.current.Load() != s || c.stopping.Load() {
		return
	}
	if !c.handle.Transition(connection.Streaming, connection.Disconnected) {
		return // stopped, halted or disposed
	}

	c.logger.Warn("stream ended unexpectedly", "error", err)
	if err != nil {
		c.report(err)
	}
	c.monitor.RecordDisconnection()
}

// Stop stops the stream, waits for in-flight callbacks and closes the
// record queue. Queued records stay readable. Stop is a no-op when the
// client never started or is already stopped.
func (c *Client) Stop(ctx context.Context) error {
	if err := c.checkActive(); err != nil {
		return err
	}
	if !c.started.Load() || !c.stopping.CompareAndSwap(false, true) {
		return nil
	}
	c.logger.Info("stopping")

	c.halting()
	c.monitor.Stop()
	err := c.handle.Stop(ctx)
	c.handle.Transition(connection.Disconnected, connection.Stopped)
	c.finish()
	if err != nil {
		return err
	}
	c.logger.Info("stopped")
	return nil
}

// finish drains callbacks, closes the queue and releases
// BlockUntilStopped waiters.
func (c *Client) finish() {
	c.stopOnce.Do(func() {
		c.accepting.Store(false)
		c.drain()
		if s := c.current.Load(); s != nil {
			s.metadata.reject(ErrStopped)
			s.gate.discard()
		}
		c.queue.Close()
		close(c.stoppedCh)
	})
}

// drain waits for in-flight callbacks, up to DrainTimeout.
func (c *Client) drain() {
	deadline := time.Now().Add(c.cfg.DrainTimeout)
	for c.inflight.Load() > 0 {
		if time.Now().After(deadline) {
			c.logger.Warn("callbacks still in flight after drain timeout",
				"inflight", c.inflight.Load(),
				"timeout", c.cfg.DrainTimeout,
			)
			return
		}
		time.Sleep(time.Millisecond)
	}
}

// BlockUntilStopped waits for the stream to stop. It returns false when
// timeout elapses first; a timeout <= 0 waits for ctx only.
func (c *Client) BlockUntilStopped(ctx context.Context, timeout time.Duration) (bool, error) {
	if err := c.checkActive(); err != nil {
		return false, err
	}
	var expired <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}
	select {
	case <-c.stoppedCh:
		return true, nil
	case <-expired:
		return false, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Close stops the stream and destroys the session. It is safe to call more
// than once; callbacks that arrive afterwards are ignored.
func (c *Client) Close() {
	if !c.status.CompareAndSwap(active, disposing) {
		return
	}
	c.stopping.Store(true)
	c.halting()
	c.monitor.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), c.stopBound())
	if err := c.handle.Stop(ctx); err != nil {
		c.logger.Warn("stop on close failed", "error", err)
	}
	cancel()

	c.finish()
	c.handle.Close()
	c.wg.Wait()
	c.status.Store(disposed)
	c.logger.Info("client closed")
}

// ----------------------------------------------------------------------------
// Reconnection
// ----------------------------------------------------------------------------

// Reconnect halts the stream, replaces the gateway connection, replays
// every subscription in order and starts again. The health monitor runs
// the same sequence.
func (c *Client) Reconnect(ctx context.Context) error {
	if err := c.checkActive(); err != nil {
		return err
	}
	return c.reconnect(ctx)
}

func (c *Client) reconnect(ctx context.Context) error {
	c.seqMu.Lock()
	defer c.seqMu.Unlock()

	if c.status.Load() != active {
		return connection.ErrDisposed
	}
	if c.stopping.Load() {
		return ErrStopped
	}

	// Stop and Close cancel the sequence at whatever step it has reached.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer context.AfterFunc(c.stopCtx, cancel)()

	if !c.handle.Claim(connection.Reconnecting) {
		return ErrStopped
	}
	if err := c.handle.Halt(ctx); err != nil {
		return c.rollForward("halt", err)
	}
	if err := c.handle.Reconnect(ctx); err != nil {
		return c.rollForward("reconnect", err)
	}
	if c.stopping.Load() || !c.handle.Claim(connection.Connected) {
		return c.rollForward("reconnect", ErrStopped)
	}

	subs := c.registry.List()
	for i, sub := range subs {
		if err := c.handle.Subscribe(ctx, sub); err != nil {
			return c.rollForward(fmt.Sprintf("replay %d/%d", i+1, len(subs)), err)
		}
	}
	if c.stopping.Load() {
		return c.rollForward("restart", ErrStopped)
	}
	if c.started.Load() {
		if _, err := c.start(ctx); err != nil {
			return c.rollForward("restart", err)
		}
	}
	c.logger.Info("reconnected", "subscriptions", len(subs), "session", c.handle.SessionID())
	return nil
}

// rollForward ends a failed sequence in Disconnected. A sequence overtaken
// by Stop or Close leaves the state to them and returns ErrStopped.
func (c *Client) rollForward(step string, err error) error {
	if c.stopping.Load() {
		c.logger.Info("reconnect sequence abandoned by stop", "step", step)
		return fmt.Errorf("%s: %w", step, ErrStopped)
	}
	c.handle.Claim(connection.Disconnected)
	c.logger.Warn("reconnect sequence failed", "step", step, "error", err)
	return fmt.Errorf("%s: %w", step, err)
}

// Resubscribe asks the gateway to replay the session's subscriptions on
// the current connection.
func (c *Client) Resubscribe(ctx context.Context) error {
	if err := c.checkActive(); err != nil {
		return err
	}
	return c.handle.Resubscribe(ctx)
}

// ----------------------------------------------------------------------------
// Consumption
// ----------------------------------------------------------------------------

// Next returns the next record. It returns ErrStreamClosed once the stream
// is stopped and drained.
func (c *Client) Next(ctx context.Context) (dbn.Record, error) {
	if err := c.checkActive(); err != nil {
		return nil, err
	}
	rec, err := c.queue.Receive(ctx)
	if err != nil {
		if errors.Is(err, queue.ErrClosed) {
			return nil, ErrStreamClosed
		}
		return nil, err
	}
	c.metrics.QueueDepth.Set(float64(c.queue.Len()))
	return rec, nil
}

// Records yields records until the stream closes or ctx is done.
func (c *Client) Records(ctx context.Context) iter.Seq[dbn.Record] {
	return func(yield func(dbn.Record) bool) {
		for {
			rec, err := c.Next(ctx)
			if err != nil {
				return
			}
			if !yield(rec) {
				return
			}
		}
	}
}

// OnRecord registers fn for every delivered record. fn runs on the
// transport goroutine. The returned func unregisters it.
func (c *Client) OnRecord(fn func(dbn.Record)) func() {
	return c.onRecord.add(fn)
}

// OnError registers fn for every stream error.
func (c *Client) OnError(fn func(error)) func() {
	return c.onError.add(fn)
}

// OnMetadata registers fn for the metadata of every stream, including
// restarts after a reconnect.
func (c *Client) OnMetadata(fn func(*dbn.Metadata)) func() {
	return c.onMetadata.add(fn)
}

// Metadata returns the metadata of the current stream, or nil.
func (c *Client) Metadata() *dbn.Metadata {
	s := c.current.Load()
	if s == nil || !s.metadata.resolved() {
		return nil
	}
	return s.metadata.val
}

// State returns the connection state.
func (c *Client) State() connection.State {
	return c.handle.State()
}

// Health returns the health monitor's view of the stream.
func (c *Client) Health() health.Status {
	return c.monitor.Status()
}

// SessionID returns the id of the current stream.
func (c *Client) SessionID() string {
	return c.handle.SessionID()
}

// QueueStats returns record queue statistics.
func (c *Client) QueueStats() queue.Stats {
	return c.queue.Stats()
}
