package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/rickgao/dbn-live/internal/metrics"
	"github.com/rickgao/dbn-live/internal/resilience"
)

// Errors
var (
	ErrStale              = errors.New("no activity within heartbeat timeout")
	ErrDisconnected       = errors.New("stream disconnected")
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")
	ErrReconnectVetoed    = errors.New("reconnect declined")
	ErrReconnectDeadline  = errors.New("reconnect deadline exceeded")
)

// ReconnectFunc re-establishes the stream. It is called once per attempt.
type ReconnectFunc func(ctx context.Context) error

// Config configures a Monitor.
type Config struct {
	AutoReconnect    bool
	MaxRetries       int           // Attempts per sequence; <= 0 retries until ReconnectDeadline
	HeartbeatTimeout time.Duration // Inactivity before the stream is Stale
	CheckInterval    time.Duration // Staleness check period

	// ReconnectDeadline bounds one whole sequence. 0 means unbounded.
	ReconnectDeadline time.Duration

	Policy resilience.Policy

	// ShouldReconnect is asked before every attempt. Returning false ends
	// the sequence as failed.
	ShouldReconnect   func(attempt int, err error) bool
	OnReconnected     func(attempts int)
	OnReconnectFailed func(err error)
	OnStateChange     func(from, to State)

	Clock clock.Clock // nil uses the wall clock
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		AutoReconnect:    true,
		MaxRetries:       5,
		HeartbeatTimeout: 30 * time.Second,
		CheckInterval:    5 * time.Second,
		Policy:           resilience.DefaultPolicy(),
	}
}

// Status is a point-in-time view of a Monitor.
type Status struct {
	State               State     `json:"-"`
	StateName           string    `json:"state"`
	LastActivity        time.Time `json:"last_activity"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	Reconnections       int64     `json:"reconnections"`
	DroppedTriggers     int64     `json:"dropped_triggers"`
	Reconnecting        bool      `json:"reconnecting"`
	LastError           string    `json:"last_error,omitempty"`
}

// Monitor observes a stream and reconnects it on failure.
type Monitor struct {
	cfg       Config
	reconnect ReconnectFunc
	clock     clock.Clock
	logger    *slog.Logger
	metrics   *metrics.Live

	state        atomic.Int32
	lastActivity atomic.Int64 // unix nanos on cfg.Clock
	failures     atomic.Int32
	reconnects   atomic.Int64
	dropped      atomic.Int64
	lastErr      atomic.Pointer[error]
	running      atomic.Bool // sequence guard
	started      atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewMonitor creates a monitor in the Unknown state. reconnect may be nil
// only when AutoReconnect is false.
func NewMonitor(cfg Config, reconnect ReconnectFunc, logger *slog.Logger, m *metrics.Live) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.NewLive(nil)
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if reconnect == nil {
		cfg.AutoReconnect = false
	}

	mon := &Monitor{
		cfg:       cfg,
		reconnect: reconnect,
		clock:     cfg.Clock,
		logger:    logger.With("component", "health"),
		metrics:   m,
	}
	mon.ctx, mon.cancel = context.WithCancel(context.Background())
	return mon
}

// Start runs the staleness loop until Stop or ctx is done. It is a no-op
// when called again, or when HeartbeatTimeout or CheckInterval is zero.
func (m *Monitor) Start(ctx context.Context) {
	if !m.started.CompareAndSwap(false, true) {
		return
	}
	if m.lastActivity.Load() == 0 {
		m.lastActivity.Store(m.clock.Now().UnixNano())
	}
	if m.cfg.HeartbeatTimeout <= 0 || m.cfg.CheckInterval <= 0 {
		return
	}

	ticker := m.clock.Ticker(m.cfg.CheckInterval)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.ctx.Done():
				return
			case <-ticker.C:
				m.check()
			}
		}
	}()
}

// Stop ends the loop and any running sequence, then waits for both.
func (m *Monitor) Stop() {
	m.cancel()
	m.wg.Wait()
}

// RecordActivity notes an inbound record or heartbeat.
func (m *Monitor) RecordActivity() {
	m.lastActivity.Store(m.clock.Now().UnixNano())
	if m.running.Load() {
		return
	}
	m.failures.Store(0)
	for {
		cur := m.State()
		if cur == Healthy || cur == Reconnecting {
			return
		}
		if m.transition(cur, Healthy) {
			return
		}
	}
}

// RecordError notes a transport error and, with AutoReconnect, starts a
// reconnection.
func (m *Monitor) RecordError(err error) {
	if err == nil {
		err = errors.New("unspecified transport error")
	}
	m.failures.Add(1)
	m.storeErr(err)
	for {
		cur := m.State()
		if cur == Degraded || cur == Reconnecting || cur == Failed || cur == Disconnected {
			break
		}
		if m.transition(cur, Degraded) {
			break
		}
	}
	m.trigger(err)
}

// RecordDisconnection notes that the stream dropped.
func (m *Monitor) RecordDisconnection() {
	m.storeErr(ErrDisconnected)
	if !m.running.Load() {
		m.setState(Disconnected)
	}
	m.trigger(ErrDisconnected)
}

// State returns the current health state.
func (m *Monitor) State() State {
	return State(m.state.Load())
}

// ReconnectionCount returns the number of successful sequences.
func (m *Monitor) ReconnectionCount() int64 {
	return m.reconnects.Load()
}

// ConsecutiveFailures returns errors and failed attempts since the last
// activity or successful reconnect.
func (m *Monitor) ConsecutiveFailures() int {
	return int(m.failures.Load())
}

// DroppedTriggers returns the triggers ignored because a sequence was
// already running.
func (m *Monitor) DroppedTriggers() int64 {
	return m.dropped.Load()
}

// Status returns a snapshot of the monitor.
func (m *Monitor) Status() Status {
	var last time.Time
	if n := m.lastActivity.Load(); n != 0 {
		last = time.Unix(0, n).UTC()
	}
	var lastErr string
	if p := m.lastErr.Load(); p != nil {
		lastErr = (*p).Error()
	}
	s := m.State()
	return Status{
		State:               s,
		StateName:           s.String(),
		LastActivity:        last,
		ConsecutiveFailures: m.ConsecutiveFailures(),
		Reconnections:       m.ReconnectionCount(),
		DroppedTriggers:     m.DroppedTriggers(),
		Reconnecting:        m.running.Load(),
		LastError:           lastErr,
	}
}

func (m *Monitor) storeErr(err error) {
	if err != nil {
		m.lastErr.Store(&err)
	}
}

func (m *Monitor) transition(from, to State) bool {
	if !m.state.CompareAndSwap(int32(from), int32(to)) {
		return false
	}
	m.changed(from, to)
	return true
}

func (m *Monitor) setState(to State) {
	from := State(m.state.Swap(int32(to)))
	if from != to {
		m.changed(from, to)
	}
}

func (m *Monitor) changed(from, to State) {
	m.metrics.HealthState.Set(float64(to))
	m.logger.Debug("health change", "from", from, "to", to)
	if m.cfg.OnStateChange != nil {
		m.cfg.OnStateChange(from, to)
	}
}

// check marks the stream Stale once HeartbeatTimeout passes without
// activity.
func (m *Monitor) check() {
	cur := m.State()
	switch cur {
	case Reconnecting, Failed, Disconnected, Stale:
		return
	}
	idle := m.clock.Now().Sub(time.Unix(0, m.lastActivity.Load()))
	if idle < m.cfg.HeartbeatTimeout {
		return
	}
	if !m.transition(cur, Stale) {
		return
	}
	m.logger.Warn("stream stale", "idle", idle, "timeout", m.cfg.HeartbeatTimeout)
	m.storeErr(ErrStale)
	m.trigger(ErrStale)
}

// trigger starts a sequence unless one is already running.
func (m *Monitor) trigger(cause error) {
	if !m.cfg.AutoReconnect || m.ctx.Err() != nil {
		return
	}
	if !m.running.CompareAndSwap(false, true) {
		m.dropped.Add(1)
		m.metrics.DroppedTriggers.Inc()
		m.logger.Debug("reconnect already running, trigger dropped", "cause", cause)
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer m.running.Store(false)
		m.runSequence(cause)
	}()
}

func (m *Monitor) runSequence(cause error) {
	m.setState(Reconnecting)
	m.logger.Info("reconnecting", "cause", cause)

	ctx, cancel := m.ctx, context.CancelFunc(func() {})
	if m.cfg.ReconnectDeadline > 0 {
		ctx, cancel = m.clock.WithTimeout(m.ctx, m.cfg.ReconnectDeadline)
	}
	defer cancel()

	lastErr := cause
	attempt := 0
	for ; m.cfg.MaxRetries <= 0 || attempt < m.cfg.MaxRetries; attempt++ {
		if m.cfg.ShouldReconnect != nil && !m.cfg.ShouldReconnect(attempt, lastErr) {
			m.fail(fmt.Errorf("%w at attempt %d: %w", ErrReconnectVetoed, attempt+1, lastErr))
			return
		}

		delay := m.cfg.Policy.Delay(attempt)
		select {
		case <-m.clock.After(delay):
		case <-ctx.Done():
			m.abort(ctx, attempt, lastErr)
			return
		}

		m.logger.Info("attempting reconnection", "attempt", attempt+1, "delay", delay)
		err := m.reconnect(ctx)
		if err == nil {
			m.failures.Store(0)
			m.lastActivity.Store(m.clock.Now().UnixNano())
			m.setState(Healthy)
			m.reconnects.Add(1)
			m.metrics.Reconnects.Inc()
			m.logger.Info("reconnected", "attempts", attempt+1)
			if m.cfg.OnReconnected != nil {
				m.cfg.OnReconnected(attempt + 1)
			}
			return
		}

		lastErr = err
		m.storeErr(err)
		m.failures.Add(1)
		m.logger.Warn("reconnection failed", "attempt", attempt+1, "error", err)
		if ctx.Err() != nil {
			m.abort(ctx, attempt+1, lastErr)
			return
		}
	}
	m.fail(fmt.Errorf("%w after %d attempts: %w", ErrReconnectExhausted, attempt, lastErr))
}

// abort ends a sequence whose context is done. Stop leaves the stream
// Disconnected without reporting; an expired deadline is a failure.
func (m *Monitor) abort(ctx context.Context, attempts int, lastErr error) {
	if m.ctx.Err() != nil {
		m.logger.Debug("reconnect cancelled", "attempts", attempts)
		m.setState(Disconnected)
		return
	}
	if lastErr == nil {
		lastErr = ctx.Err()
	}
	m.fail(fmt.Errorf("%w after %d attempts: %w", ErrReconnectDeadline, attempts, lastErr))
}

func (m *Monitor) fail(err error) {
	m.setState(Failed)
	m.metrics.ReconnectFailures.Inc()
	m.logger.Error("reconnect failed", "error", err)
	if m.cfg.OnReconnectFailed != nil {
		m.cfg.OnReconnectFailed(err)
	}
}
