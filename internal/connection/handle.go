package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/dbn-live/internal/gateway"
	"github.com/rickgao/dbn-live/internal/metrics"
	"github.com/rickgao/dbn-live/internal/subscription"
)

// Config configures a Handle.
type Config struct {
	Gateway     gateway.Config
	StopTimeout time.Duration // Bound for StopAndWait; timeouts are logged and ignored
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		StopTimeout: gateway.DefaultStopTimeout,
	}
}

// Handle owns one gateway session and its lifecycle state.
type Handle struct {
	cfg     Config
	session gateway.Session
	logger  *slog.Logger
	metrics *metrics.Live

	state     atomic.Int32
	starting  atomic.Bool // start slot
	closed    atomic.Bool
	sessionID atomic.Pointer[string]
	runDone   atomic.Pointer[chan struct{}] // closed when the current StartEx goroutine releases the slot

	// Owns every StartEx; cancelled by Close.
	runCtx    context.Context
	runCancel context.CancelFunc
	runWG     sync.WaitGroup
}

// New creates the gateway session and returns a Disconnected handle.
func New(ctx context.Context, dialer gateway.Dialer, cfg Config, logger *slog.Logger, m *metrics.Live) (*Handle, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.NewLive(nil)
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = gateway.DefaultStopTimeout
	}

	session, err := dialer.Create(ctx, cfg.Gateway)
	if err != nil {
		m.Commands.WithLabelValues("create", "error").Inc()
		return nil, Translate("create", err)
	}
	m.Commands.WithLabelValues("create", "ok").Inc()

	h := &Handle{
		cfg:     cfg,
		session: session,
		logger:  logger.With("component", "connection", "dataset", cfg.Gateway.Dataset),
		metrics: m,
	}
	h.runCtx, h.runCancel = context.WithCancel(context.Background())
	h.SetState(Disconnected)
	return h, nil
}

// State returns the current state.
func (h *Handle) State() State {
	return State(h.state.Load())
}

// Transition moves from one state to another if the handle is still in
// from.
func (h *Handle) Transition(from, to State) bool {
	if h.state.CompareAndSwap(int32(from), int32(to)) {
		h.metrics.ConnectionState.Set(float64(to))
		h.logger.Debug("state change", "from", from, "to", to)
		return true
	}
	return false
}

// SetState forces the state. Disposed is terminal and never overwritten.
func (h *Handle) SetState(s State) {
	for {
		cur := h.state.Load()
		if State(cur) == Disposed && s != Disposed {
			return
		}
		if h.state.CompareAndSwap(cur, int32(s)) {
			h.metrics.ConnectionState.Set(float64(s))
			return
		}
	}
}

// Claim moves to s unless the handle is Stopped or Disposed, which only
// Close can leave. It reports whether the move happened.
func (h *Handle) Claim(s State) bool {
	for {
		cur := h.State()
		if cur == Stopped || cur == Disposed {
			return false
		}
		if cur == s || h.Transition(cur, s) {
			return true
		}
	}
}

// SessionID returns the id of the current or last stream, or "".
func (h *Handle) SessionID() string {
	if id := h.sessionID.Load(); id != nil {
		return *id
	}
	return ""
}

func (h *Handle) checkOpen() error {
	if h.closed.Load() {
		return ErrDisposed
	}
	return nil
}

func (h *Handle) observe(op string, err error) error {
	err = Translate(op, err)
	result := "ok"
	if err != nil {
		result = "error"
		var e *Error
		if errors.As(err, &e) {
			h.metrics.GatewayErrors.WithLabelValues(e.Kind.String()).Inc()
		}
	}
	h.metrics.Commands.WithLabelValues(op, result).Inc()
	return err
}

// Subscribe forwards sub to the session, choosing replay or snapshot as
// the subscription requests.
func (h *Handle) Subscribe(ctx context.Context, sub subscription.Subscription) error {
	if err := h.checkOpen(); err != nil {
		return err
	}
	req := gateway.Request{
		Dataset: sub.Dataset(),
		Schema:  sub.Schema(),
		STypeIn: sub.STypeIn(),
		Symbols: sub.Symbols(),
	}

	_, replay := sub.Start()

	var err error
	switch {
	case sub.Snapshot():
		err = h.observe("subscribe_snapshot", h.session.SubscribeWithSnapshot(ctx, req))
	case replay:
		err = h.observe("subscribe_replay", h.session.SubscribeWithReplay(ctx, req, sub.StartNanos()))
	default:
		err = h.observe("subscribe", h.session.Subscribe(ctx, req))
	}
	if err != nil {
		return err
	}
	h.logger.Debug("subscribed", "subscription", sub.String())
	return nil
}

// Start claims the start slot, moves to Connecting and runs the blocking
// StartEx on its own goroutine. A stopped handle returns ErrStopped. The returned channel yields StartEx's
// translated result once and then closes. A concurrent Start returns
// ErrAlreadyStarted without touching state.
func (h *Handle) Start(cb gateway.Callbacks) (<-chan error, error) {
	if err := h.checkOpen(); err != nil {
		return nil, err
	}
	if !h.starting.CompareAndSwap(false, true) {
		return nil, ErrAlreadyStarted
	}

	if !h.Claim(Connecting) {
		h.starting.Store(false)
		if h.closed.Load() {
			return nil, ErrDisposed
		}
		return nil, ErrStopped
	}
	id := uuid.NewString()
	h.sessionID.Store(&id)

	logger := h.logger.With("session", id)
	logger.Info("starting stream")

	result := make(chan error, 1)
	done := make(chan struct{})
	h.runDone.Store(&done)

	h.runWG.Add(1)
	go func() {
		defer h.runWG.Done()

		err := h.session.StartEx(h.runCtx, cb)
		if err != nil && h.runCtx.Err() != nil {
			err = nil // closed underneath us
		}
		err = h.observe("start", err)
		if err != nil {
			logger.Warn("stream ended with error", "error", err)
		} else {
			logger.Info("stream ended")
		}

		// Release the slot before reporting so the receiver can restart.
		h.starting.Store(false)
		close(done)
		result <- err
		close(result)
	}()
	return result, nil
}

// Running reports whether a StartEx is in flight.
func (h *Handle) Running() bool {
	return h.starting.Load()
}

// Stop stops the stream. It is a no-op when nothing is running. A stop
// that exceeds StopTimeout is logged and treated as complete.
func (h *Handle) Stop(ctx context.Context) error {
	for {
		cur := h.State()
		if !cur.stoppable() {
			return nil
		}
		if h.Transition(cur, Stopped) {
			break
		}
	}
	return h.stopSession(ctx)
}

// Halt stops the running stream without changing state. The reconnect
// sequence uses it before replacing the connection.
func (h *Handle) Halt(ctx context.Context) error {
	if !h.Running() {
		return nil
	}
	return h.stopSession(ctx)
}

func (h *Handle) stopSession(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		res, err := h.session.StopAndWait(h.cfg.StopTimeout)
		if err != nil {
			h.logger.Warn("stop failed", "error", Translate("stop", err))
			return
		}
		if res == gateway.StopTimeout {
			h.logger.Warn("stop timed out, proceeding", "timeout", h.cfg.StopTimeout)
			return
		}
		if p := h.runDone.Load(); p != nil {
			<-*p
		}
	}()

	select {
	case <-done:
		h.metrics.Commands.WithLabelValues("stop", "ok").Inc()
		return nil
	case <-ctx.Done():
		return fmt.Errorf("stop: %w", ctx.Err())
	}
}

// Reconnect replaces the underlying gateway connection.
func (h *Handle) Reconnect(ctx context.Context) error {
	if err := h.checkOpen(); err != nil {
		return err
	}
	return h.observe("reconnect", h.session.Reconnect(ctx))
}

// Resubscribe asks the session to replay its accepted subscriptions.
func (h *Handle) Resubscribe(ctx context.Context) error {
	if err := h.checkOpen(); err != nil {
		return err
	}
	return h.observe("resubscribe", h.session.Resubscribe(ctx))
}

// Close destroys the session. The handle is unusable afterwards.
func (h *Handle) Close() {
	if !h.closed.CompareAndSwap(false, true) {
		return
	}
	h.SetState(Disposed)
	h.runCancel()
	h.session.Destroy()
	h.runWG.Wait()
	h.logger.Debug("connection closed")
}
