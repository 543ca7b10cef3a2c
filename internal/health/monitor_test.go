package health

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/dbn-live/internal/resilience"
)

var errTransport = errors.New("connection reset by peer")

type recorder struct {
	mu     sync.Mutex
	states []State
}

func (r *recorder) onChange(_, to State) {
	r.mu.Lock()
	r.states = append(r.states, to)
	r.mu.Unlock()
}

func (r *recorder) trajectory() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}

func testConfig(mock *clock.Mock) Config {
	cfg := DefaultConfig()
	cfg.Clock = mock
	cfg.MaxRetries = 3
	cfg.Policy = resilience.Policy{InitialDelay: time.Second, MaxDelay: 30 * time.Second, Multiplier: 2}
	return cfg
}

func newMock() *clock.Mock {
	mock := clock.NewMock()
	mock.Set(time.Date(2024, 6, 3, 13, 30, 0, 0, time.UTC))
	return mock
}

// advanceUntil moves the mock clock forward until cond holds.
func advanceUntil(t *testing.T, mock *clock.Mock, step time.Duration, cond func() bool) {
	t.Helper()
	require.Eventually(t, func() bool {
		if cond() {
			return true
		}
		mock.Add(step)
		return cond()
	}, 2*time.Second, time.Millisecond)
}

func TestMonitor_ReconnectTrajectory(t *testing.T) {
	mock := newMock()
	rec := &recorder{}
	var calls atomic.Int32
	var reportedAttempts atomic.Int32

	cfg := testConfig(mock)
	cfg.OnStateChange = rec.onChange
	cfg.OnReconnected = func(n int) { reportedAttempts.Store(int32(n)) }

	m := NewMonitor(cfg, func(ctx context.Context) error {
		if calls.Add(1) <= 2 {
			return errTransport
		}
		return nil
	}, nil, nil)
	defer m.Stop()

	m.RecordActivity()
	m.RecordError(errTransport)

	advanceUntil(t, mock, time.Second, func() bool { return reportedAttempts.Load() != 0 })

	assert.Equal(t, []State{Healthy, Degraded, Reconnecting, Healthy}, rec.trajectory())
	assert.Equal(t, Healthy, m.State())
	assert.Equal(t, int64(1), m.ReconnectionCount())
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, int32(3), reportedAttempts.Load())
	assert.Equal(t, 0, m.ConsecutiveFailures())

	// The sequence has released its guard.
	require.Eventually(t, func() bool { return !m.Status().Reconnecting }, time.Second, time.Millisecond)
}

func TestMonitor_BackoffDelays(t *testing.T) {
	mock := newMock()
	var mu sync.Mutex
	at := []time.Time{mock.Now()}

	cfg := testConfig(mock)
	cfg.MaxRetries = 4
	m := NewMonitor(cfg, func(ctx context.Context) error {
		mu.Lock()
		at = append(at, mock.Now())
		mu.Unlock()
		return errTransport
	}, nil, nil)
	defer m.Stop()

	m.RecordError(errTransport)
	advanceUntil(t, mock, 500*time.Millisecond, func() bool { return m.State() == Failed })

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, at, 5)
	// Each attempt waits at least its policy delay after the previous one.
	for i, want := range []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second} {
		assert.GreaterOrEqual(t, at[i+1].Sub(at[i]), want, "attempt %d", i)
	}
}

func TestMonitor_ExhaustionFails(t *testing.T) {
	mock := newMock()
	var calls atomic.Int32
	failed := make(chan error, 1)

	cfg := testConfig(mock)
	cfg.MaxRetries = 2
	cfg.OnReconnectFailed = func(err error) { failed <- err }
	cfg.OnReconnected = func(int) { t.Error("OnReconnected called") }

	m := NewMonitor(cfg, func(ctx context.Context) error {
		calls.Add(1)
		return errTransport
	}, nil, nil)
	defer m.Stop()

	m.RecordError(errTransport)
	advanceUntil(t, mock, time.Second, func() bool { return m.State() == Failed })

	err := <-failed
	assert.ErrorIs(t, err, ErrReconnectExhausted)
	assert.ErrorIs(t, err, errTransport)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, int64(0), m.ReconnectionCount())
	assert.Equal(t, 3, m.ConsecutiveFailures())
}

func TestMonitor_ConcurrentTriggersDropped(t *testing.T) {
	mock := newMock()
	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	var calls atomic.Int32

	m := NewMonitor(testConfig(mock), func(ctx context.Context) error {
		calls.Add(1)
		entered <- struct{}{}
		<-release
		return nil
	}, nil, nil)
	defer m.Stop()

	m.RecordError(errTransport)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.RecordError(errTransport)
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(4), m.DroppedTriggers())

	advanceUntil(t, mock, time.Second, func() bool { return len(entered) == 1 })
	close(release)

	require.Eventually(t, func() bool { return m.ReconnectionCount() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestMonitor_AutoReconnectDisabled(t *testing.T) {
	mock := newMock()
	var calls atomic.Int32

	cfg := testConfig(mock)
	cfg.AutoReconnect = false
	m := NewMonitor(cfg, func(ctx context.Context) error {
		calls.Add(1)
		return nil
	}, nil, nil)
	defer m.Stop()

	m.RecordActivity()
	m.RecordError(errTransport)
	assert.Equal(t, Degraded, m.State())
	assert.Equal(t, 1, m.ConsecutiveFailures())

	mock.Add(time.Minute)
	assert.Equal(t, int32(0), calls.Load())
	assert.Equal(t, int64(0), m.DroppedTriggers())

	m.RecordActivity()
	assert.Equal(t, Healthy, m.State())
	assert.Equal(t, 0, m.ConsecutiveFailures())
}

func TestMonitor_Staleness(t *testing.T) {
	mock := newMock()
	cfg := testConfig(mock)
	cfg.AutoReconnect = false
	cfg.HeartbeatTimeout = 10 * time.Second
	cfg.CheckInterval = time.Second

	m := NewMonitor(cfg, nil, nil, nil)
	defer m.Stop()
	m.Start(context.Background())
	m.RecordActivity()

	mock.Add(5 * time.Second)
	assert.Equal(t, Healthy, m.State())

	advanceUntil(t, mock, time.Second, func() bool { return m.State() == Stale })
	assert.Equal(t, ErrStale.Error(), m.Status().LastError)

	m.RecordActivity()
	assert.Equal(t, Healthy, m.State())
}

func TestMonitor_StaleTriggersReconnect(t *testing.T) {
	mock := newMock()
	rec := &recorder{}
	cfg := testConfig(mock)
	cfg.HeartbeatTimeout = 10 * time.Second
	cfg.CheckInterval = time.Second
	cfg.OnStateChange = rec.onChange

	m := NewMonitor(cfg, func(ctx context.Context) error { return nil }, nil, nil)
	defer m.Stop()
	m.Start(context.Background())
	m.RecordActivity()

	advanceUntil(t, mock, time.Second, func() bool { return m.ReconnectionCount() == 1 })
	assert.Equal(t, []State{Healthy, Stale, Reconnecting, Healthy}, rec.trajectory())
}

func TestMonitor_DisconnectionReconnects(t *testing.T) {
	mock := newMock()
	rec := &recorder{}
	cfg := testConfig(mock)
	cfg.OnStateChange = rec.onChange

	m := NewMonitor(cfg, func(ctx context.Context) error { return nil }, nil, nil)
	defer m.Stop()

	m.RecordActivity()
	m.RecordDisconnection()

	advanceUntil(t, mock, time.Second, func() bool { return m.ReconnectionCount() == 1 })
	assert.Equal(t, []State{Healthy, Disconnected, Reconnecting, Healthy}, rec.trajectory())
}

func TestMonitor_ShouldReconnectVeto(t *testing.T) {
	mock := newMock()
	failed := make(chan error, 1)
	var asked atomic.Int32

	cfg := testConfig(mock)
	cfg.ShouldReconnect = func(attempt int, err error) bool {
		asked.Add(1)
		assert.ErrorIs(t, err, errTransport)
		return false
	}
	cfg.OnReconnectFailed = func(err error) { failed <- err }

	m := NewMonitor(cfg, func(ctx context.Context) error {
		t.Error("reconnect called after veto")
		return nil
	}, nil, nil)
	defer m.Stop()

	m.RecordError(errTransport)

	select {
	case err := <-failed:
		assert.ErrorIs(t, err, ErrReconnectVetoed)
	case <-time.After(time.Second):
		t.Fatal("sequence did not fail")
	}
	assert.Equal(t, Failed, m.State())
	assert.Equal(t, int32(1), asked.Load())
}

func TestMonitor_ReconnectDeadline(t *testing.T) {
	mock := newMock()
	failed := make(chan error, 1)

	cfg := testConfig(mock)
	cfg.MaxRetries = 0
	cfg.ReconnectDeadline = 3 * time.Second
	cfg.OnReconnectFailed = func(err error) { failed <- err }

	m := NewMonitor(cfg, func(ctx context.Context) error { return errTransport }, nil, nil)
	defer m.Stop()

	m.RecordError(errTransport)
	advanceUntil(t, mock, time.Second, func() bool { return m.State() == Failed })

	err := <-failed
	assert.ErrorIs(t, err, ErrReconnectDeadline)
}

func TestMonitor_StopCancelsSequence(t *testing.T) {
	mock := newMock()
	cfg := testConfig(mock)
	cfg.OnReconnectFailed = func(err error) { t.Errorf("OnReconnectFailed(%v) after Stop", err) }

	m := NewMonitor(cfg, func(ctx context.Context) error { return nil }, nil, nil)
	m.RecordError(errTransport)
	require.Eventually(t, func() bool { return m.State() == Reconnecting }, time.Second, time.Millisecond)

	m.Stop()
	assert.Equal(t, Disconnected, m.State())
	assert.Equal(t, int64(0), m.ReconnectionCount())

	// Triggers after Stop are ignored.
	m.RecordError(errTransport)
	assert.False(t, m.Status().Reconnecting)
}

func TestMonitor_NilReconnectDisablesAuto(t *testing.T) {
	m := NewMonitor(DefaultConfig(), nil, nil, nil)
	defer m.Stop()

	m.RecordError(errTransport)
	assert.Equal(t, Degraded, m.State())
	assert.False(t, m.Status().Reconnecting)
}

func TestState_String(t *testing.T) {
	tests := []struct {
		s    State
		want string
	}{
		{Unknown, "unknown"},
		{Healthy, "healthy"},
		{Degraded, "degraded"},
		{Stale, "stale"},
		{Reconnecting, "reconnecting"},
		{Disconnected, "disconnected"},
		{Failed, "failed"},
		{State(99), "invalid"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.s.String())
	}
}
