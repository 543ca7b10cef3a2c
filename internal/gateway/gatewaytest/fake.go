// Package gatewaytest provides an in-memory gateway.Session for tests.
package gatewaytest

import (
	"context"
	"encoding/json"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rickgao/dbn-live/internal/dbn"
	"github.com/rickgao/dbn-live/internal/gateway"
)

// Call records one subscribe-family call.
type Call struct {
	Method   string // "subscribe", "replay", "snapshot" or "resubscribe"
	Request  gateway.Request
	StartNs  uint64
	Snapshot bool
}

// Dialer returns the same Session from every Create.
type Dialer struct {
	Session   *Session
	CreateErr error

	mu      sync.Mutex
	configs []gateway.Config
}

// NewDialer returns a dialer around a fresh Session.
func NewDialer() *Dialer {
	return &Dialer{Session: NewSession()}
}

func (d *Dialer) Create(ctx context.Context, cfg gateway.Config) (gateway.Session, error) {
	d.mu.Lock()
	d.configs = append(d.configs, cfg)
	d.mu.Unlock()
	if d.CreateErr != nil {
		return nil, d.CreateErr
	}
	return d.Session, nil
}

// Configs returns every config passed to Create.
func (d *Dialer) Configs() []gateway.Config {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.configs)
}

// Session is a scripted gateway session. Tests drive it with the Emit
// methods once StartEx is running.
type Session struct {
	// Hooks; nil means success.
	SubscribeErr func(call Call) error
	StartErr     func(attempt int) error
	ReconnectErr func(attempt int) error

	// StopDelay delays the return of a stopped StartEx.
	StopDelay time.Duration

	mu        sync.Mutex
	calls     []Call
	cb        *gateway.Callbacks
	stop      chan struct{}
	drop      chan error
	startDone chan struct{}
	started   chan struct{} // closed when StartEx is running

	startCalls     atomic.Int32
	stopCalls      atomic.Int32
	reconnectCalls atomic.Int32
	destroyed      atomic.Bool
}

// NewSession creates an idle fake session.
func NewSession() *Session {
	return &Session{started: make(chan struct{})}
}

func (s *Session) record(call Call) error {
	if s.destroyed.Load() {
		return &gateway.CodeError{Code: gateway.CodeGatewayError, Message: "session destroyed"}
	}
	if err := gateway.ValidateRequest(call.Request); err != nil {
		return err
	}
	if s.SubscribeErr != nil {
		if err := s.SubscribeErr(call); err != nil {
			return err
		}
	}
	call.Request.Symbols = slices.Clone(call.Request.Symbols)
	s.mu.Lock()
	s.calls = append(s.calls, call)
	s.mu.Unlock()
	return nil
}

func (s *Session) Subscribe(ctx context.Context, req gateway.Request) error {
	return s.record(Call{Method: "subscribe", Request: req})
}

func (s *Session) SubscribeWithReplay(ctx context.Context, req gateway.Request, startNanos uint64) error {
	return s.record(Call{Method: "replay", Request: req, StartNs: startNanos})
}

func (s *Session) SubscribeWithSnapshot(ctx context.Context, req gateway.Request) error {
	return s.record(Call{Method: "snapshot", Request: req, Snapshot: true})
}

func (s *Session) StartEx(ctx context.Context, cb gateway.Callbacks) error {
	attempt := int(s.startCalls.Add(1))
	if s.StartErr != nil {
		if err := s.StartErr(attempt); err != nil {
			return err
		}
	}

	s.mu.Lock()
	if s.cb != nil {
		s.mu.Unlock()
		return &gateway.CodeError{Code: gateway.CodeGatewayError, Message: "session already started"}
	}
	stop := make(chan struct{})
	drop := make(chan error, 1)
	done := make(chan struct{})
	s.cb = &cb
	s.stop = stop
	s.drop = drop
	s.startDone = done
	close(s.started)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.cb = nil
		s.started = make(chan struct{})
		s.mu.Unlock()
		close(done)
	}()

	select {
	case <-stop:
		if s.StopDelay > 0 {
			time.Sleep(s.StopDelay)
		}
		return nil
	case err := <-drop:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) Stop() {
	s.stopCalls.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		select {
		case <-s.stop:
		default:
			close(s.stop)
		}
	}
}

func (s *Session) StopAndWait(timeout time.Duration) (gateway.StopResult, error) {
	s.Stop()
	s.mu.Lock()
	done := s.startDone
	s.mu.Unlock()
	if done == nil {
		return gateway.StopOK, nil
	}
	if timeout <= 0 {
		timeout = gateway.DefaultStopTimeout
	}
	select {
	case <-done:
		return gateway.StopOK, nil
	case <-time.After(timeout):
		return gateway.StopTimeout, nil
	}
}

func (s *Session) Reconnect(ctx context.Context) error {
	attempt := int(s.reconnectCalls.Add(1))
	if s.ReconnectErr != nil {
		return s.ReconnectErr(attempt)
	}
	return nil
}

func (s *Session) Resubscribe(ctx context.Context) error {
	s.mu.Lock()
	var replay []Call
	for _, c := range s.calls {
		if c.Method != "resubscribe" {
			replay = append(replay, Call{Method: "resubscribe", Request: c.Request})
		}
	}
	s.calls = append(s.calls, replay...)
	s.mu.Unlock()
	return nil
}

func (s *Session) Destroy() {
	if s.destroyed.CompareAndSwap(false, true) {
		s.Stop()
	}
}

// ----------------------------------------------------------------------------
// Test controls
// ----------------------------------------------------------------------------

// WaitStarted blocks until StartEx is running.
func (s *Session) WaitStarted(ctx context.Context) error {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	select {
	case <-started:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) callbacks() *gateway.Callbacks {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cb
}

// EmitMetadataJSON delivers raw metadata bytes. It reports whether a
// stream was running.
func (s *Session) EmitMetadataJSON(data []byte) bool {
	cb := s.callbacks()
	if cb == nil || cb.Metadata == nil {
		return false
	}
	cb.Metadata(data)
	return true
}

// EmitMetadata encodes and delivers md.
func (s *Session) EmitMetadata(md *dbn.Metadata) bool {
	data, err := json.Marshal(md)
	if err != nil {
		panic(err)
	}
	return s.EmitMetadataJSON(data)
}

// EmitRecord encodes and delivers a record.
func (s *Session) EmitRecord(r dbn.Record) bool {
	data, err := dbn.Encode(r)
	if err != nil {
		panic(err)
	}
	return s.EmitRaw(data, data[1])
}

// EmitRaw delivers record bytes with an explicit type tag.
func (s *Session) EmitRaw(data []byte, rtype uint8) bool {
	cb := s.callbacks()
	if cb == nil {
		return false
	}
	cb.Record(data, rtype)
	return true
}

// EmitError delivers a transport error callback.
func (s *Session) EmitError(msg string, code int) bool {
	cb := s.callbacks()
	if cb == nil || cb.Error == nil {
		return false
	}
	cb.Error(msg, code)
	return true
}

// Drop ends the running StartEx with err.
func (s *Session) Drop(err error) {
	s.mu.Lock()
	drop := s.drop
	s.mu.Unlock()
	if drop != nil {
		select {
		case drop <- err:
		default:
		}
	}
}

// Calls returns the recorded subscribe-family calls.
func (s *Session) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.calls)
}

func (s *Session) StartCalls() int     { return int(s.startCalls.Load()) }
func (s *Session) StopCalls() int      { return int(s.stopCalls.Load()) }
func (s *Session) ReconnectCalls() int { return int(s.reconnectCalls.Load()) }
func (s *Session) Destroyed() bool     { return s.destroyed.Load() }
