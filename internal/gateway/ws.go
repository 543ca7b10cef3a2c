package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"github.com/rickgao/dbn-live/internal/resilience"
	"github.com/rickgao/dbn-live/internal/version"
)

// Errors
var (
	ErrStaleConnection = errors.New("connection stale (no ping)")
)

// WSDialer creates sessions over the WebSocket bridge.
type WSDialer struct {
	URL              string        // Bridge URL (e.g., wss://bridge.example.com/v0/live)
	HandshakeTimeout time.Duration // WebSocket handshake bound
	WriteTimeout     time.Duration // Write deadline for sends
	CommandTimeout   time.Duration // Max wait for a command reply
	PingInterval     time.Duration // Keepalive ping period
	PingTimeout      time.Duration // Max time without ping/pong before the connection is stale
	DialRetries      uint64        // Dial attempts after the first
	Policy           resilience.Policy
	Logger           *slog.Logger
}

// NewWSDialer returns a dialer with sensible defaults.
func NewWSDialer(url string, logger *slog.Logger) *WSDialer {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSDialer{
		URL:              url,
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		CommandTimeout:   10 * time.Second,
		PingInterval:     30 * time.Second,
		PingTimeout:      60 * time.Second,
		DialRetries:      3,
		Policy:           resilience.DefaultPolicy(),
		Logger:           logger,
	}
}

// Create dials the bridge and returns a connected session.
func (d *WSDialer) Create(ctx context.Context, cfg Config) (Session, error) {
	if cfg.APIKey == "" {
		return nil, &CodeError{Code: CodeInvalidArgument, Message: "API key is required"}
	}
	if cfg.Dataset == "" {
		return nil, &CodeError{Code: CodeInvalidArgument, Message: "dataset is required"}
	}
	target, err := sessionURL(d.URL, cfg)
	if err != nil {
		return nil, &CodeError{Code: CodeInvalidArgument, Message: fmt.Sprintf("invalid gateway URL: %v", err)}
	}

	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &wsSession{
		dialer:  d,
		cfg:     cfg,
		target:  target,
		logger:  logger.With("component", "gateway", "dataset", cfg.Dataset),
		pending: make(map[int64]chan Response),
	}
	if err := s.connect(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// wsConn is one physical connection. A session replaces it on Reconnect.
type wsConn struct {
	ws   *websocket.Conn
	done chan struct{} // closed when the read loop exits

	lastPingAt atomic.Int64 // unix nanos

	errMu sync.Mutex
	err   error

	closeOnce sync.Once
}

func (c *wsConn) fail(err error) {
	c.errMu.Lock()
	if c.err == nil {
		c.err = err
	}
	c.errMu.Unlock()
}

func (c *wsConn) cause() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

func (c *wsConn) close() {
	c.closeOnce.Do(func() {
		c.ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		c.ws.Close()
	})
}

// wsSession implements Session.
type wsSession struct {
	dialer *WSDialer
	cfg    Config
	target string
	logger *slog.Logger

	mu        sync.Mutex
	conn      *wsConn
	subs      []Request     // accepted subscriptions, replayed by Resubscribe
	stop      chan struct{} // closed by Stop for the running StartEx
	startDone chan struct{} // closed when StartEx returns

	// Write serialization
	writeMu sync.Mutex

	// Command/response correlation
	pendingMu sync.Mutex
	pending   map[int64]chan Response
	cmdID     atomic.Int64

	callbacks atomic.Pointer[Callbacks]
	running   atomic.Bool
	destroyed atomic.Bool
}

func (s *wsSession) connect(ctx context.Context) error {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	header.Set("User-Agent", version.UserAgent())

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: s.dialer.HandshakeTimeout,
	}

	var ws *websocket.Conn
	attempt := 0
	op := func() error {
		attempt++
		conn, resp, err := dialer.DialContext(ctx, s.target, header)
		if err != nil {
			if resp != nil {
				switch {
				case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
					return backoff.Permanent(&CodeError{
						Code:    CodeGatewayError,
						Message: fmt.Sprintf("authentication failed: %s", resp.Status),
					})
				case resp.StatusCode >= 500:
					err = fmt.Errorf("server error %d: %w", resp.StatusCode, err)
				}
			}
			s.logger.Warn("dial failed", "attempt", attempt, "error", err)
			return err
		}
		ws = conn
		return nil
	}

	b := backoff.WithContext(backoff.WithMaxRetries(s.dialer.Policy.NewBackOff(), s.dialer.DialRetries), ctx)
	if err := backoff.Retry(op, b); err != nil {
		var ce *CodeError
		if errors.As(err, &ce) {
			return ce
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &CodeError{Code: CodeGatewayError, Message: fmt.Sprintf("connect: %v", err)}
	}

	c := &wsConn{ws: ws, done: make(chan struct{})}
	c.lastPingAt.Store(time.Now().UnixNano())

	// Server sends ping, we respond with pong
	ws.SetPingHandler(func(data string) error {
		c.lastPingAt.Store(time.Now().UnixNano())
		return ws.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})
	ws.SetPongHandler(func(string) error {
		c.lastPingAt.Store(time.Now().UnixNano())
		return nil
	})

	s.mu.Lock()
	s.conn = c
	s.mu.Unlock()

	go s.readLoop(c)
	go s.heartbeatLoop(c)

	s.logger.Debug("gateway connected", "url", s.dialer.URL, "attempts", attempt)
	return nil
}

func (s *wsSession) current() *wsConn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

func (s *wsSession) checkUsable() error {
	if s.destroyed.Load() {
		return &CodeError{Code: CodeGatewayError, Message: "session destroyed"}
	}
	return nil
}

// ----------------------------------------------------------------------------
// Subscriptions
// ----------------------------------------------------------------------------

func (s *wsSession) Subscribe(ctx context.Context, req Request) error {
	return s.subscribe(ctx, req, nil, false)
}

func (s *wsSession) SubscribeWithReplay(ctx context.Context, req Request, startNanos uint64) error {
	return s.subscribe(ctx, req, &startNanos, false)
}

func (s *wsSession) SubscribeWithSnapshot(ctx context.Context, req Request) error {
	return s.subscribe(ctx, req, nil, true)
}

func (s *wsSession) subscribe(ctx context.Context, req Request, start *uint64, snapshot bool) error {
	if err := s.checkUsable(); err != nil {
		return err
	}
	if err := ValidateRequest(req); err != nil {
		return err
	}
	if _, err := s.command(ctx, cmdSubscribe, newSubscribeParams(req, start, snapshot)); err != nil {
		return err
	}

	// Replaying a subscription after Reconnect must not grow the list.
	req.Symbols = slices.Clone(req.Symbols)
	s.mu.Lock()
	if !slices.ContainsFunc(s.subs, req.equal) {
		s.subs = append(s.subs, req)
	}
	s.mu.Unlock()

	s.logger.Debug("subscribed",
		"schema", req.Schema,
		"stype_in", req.STypeIn,
		"symbols", len(req.Symbols),
		"replay", start != nil,
		"snapshot", snapshot,
	)
	return nil
}

// Resubscribe replays every accepted subscription on the current
// connection. Replays omit replay start and snapshot so the stream resumes
// from live data.
func (s *wsSession) Resubscribe(ctx context.Context) error {
	if err := s.checkUsable(); err != nil {
		return err
	}
	s.mu.Lock()
	subs := slices.Clone(s.subs)
	s.mu.Unlock()

	for i, req := range subs {
		if _, err := s.command(ctx, cmdSubscribe, newSubscribeParams(req, nil, false)); err != nil {
			return fmt.Errorf("resubscribe %d/%d: %w", i+1, len(subs), err)
		}
	}
	s.logger.Info("resubscribed", "subscriptions", len(subs))
	return nil
}

// ----------------------------------------------------------------------------
// Streaming
// ----------------------------------------------------------------------------

func (s *wsSession) StartEx(ctx context.Context, cb Callbacks) error {
	if err := s.checkUsable(); err != nil {
		return err
	}
	if cb.Record == nil {
		return &CodeError{Code: CodeInvalidArgument, Message: "record callback cannot be null"}
	}
	if !s.running.CompareAndSwap(false, true) {
		return &CodeError{Code: CodeGatewayError, Message: "session already started"}
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	s.mu.Lock()
	s.stop = stop
	s.startDone = done
	c := s.conn
	s.mu.Unlock()

	s.callbacks.Store(&cb)
	defer func() {
		s.callbacks.Store(nil)
		s.running.Store(false)
		close(done)
	}()

	if c == nil {
		return &CodeError{Code: CodeNotConnected, Message: "not connected"}
	}
	if _, err := s.command(ctx, cmdStart, nil); err != nil {
		return err
	}
	s.logger.Info("stream started")

	select {
	case <-stop:
		return nil
	case <-c.done:
		return &CodeError{Code: CodeGatewayError, Message: fmt.Sprintf("connection lost: %v", c.cause())}
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *wsSession) Stop() {
	s.mu.Lock()
	stop := s.stop
	if stop != nil {
		select {
		case <-stop:
			stop = nil // already stopped
		default:
			close(stop)
		}
	}
	s.mu.Unlock()

	if stop != nil {
		go s.notify(cmdStop)
	}
}

func (s *wsSession) StopAndWait(timeout time.Duration) (StopResult, error) {
	s.Stop()

	s.mu.Lock()
	done := s.startDone
	s.mu.Unlock()
	if done == nil {
		return StopOK, nil
	}

	if timeout <= 0 {
		timeout = DefaultStopTimeout
	}
	select {
	case <-done:
		return StopOK, nil
	case <-time.After(timeout):
		return StopTimeout, nil
	}
}

// ----------------------------------------------------------------------------
// Connection lifecycle
// ----------------------------------------------------------------------------

// Reconnect replaces the connection. Accepted subscriptions are kept for
// Resubscribe.
func (s *wsSession) Reconnect(ctx context.Context) error {
	if err := s.checkUsable(); err != nil {
		return err
	}

	s.mu.Lock()
	old := s.conn
	s.conn = nil
	s.mu.Unlock()

	if old != nil {
		old.close()
	}

	s.logger.Info("attempting reconnection")
	if err := s.connect(ctx); err != nil {
		s.logger.Warn("reconnection failed", "error", err)
		return err
	}
	s.logger.Info("reconnected")
	return nil
}

func (s *wsSession) Destroy() {
	if !s.destroyed.CompareAndSwap(false, true) {
		return
	}
	s.Stop()

	s.mu.Lock()
	c := s.conn
	s.conn = nil
	s.mu.Unlock()

	if c != nil {
		c.close()
	}
	s.logger.Debug("session destroyed")
}

// ----------------------------------------------------------------------------
// Commands
// ----------------------------------------------------------------------------

// command sends a command and waits for its reply.
func (s *wsSession) command(ctx context.Context, name string, params interface{}) (Response, error) {
	c := s.current()
	if c == nil {
		return Response{}, &CodeError{Code: CodeNotConnected, Message: name + ": not connected"}
	}

	id := s.cmdID.Add(1)
	respCh := make(chan Response, 1)

	s.pendingMu.Lock()
	s.pending[id] = respCh
	s.pendingMu.Unlock()

	defer func() {
		s.pendingMu.Lock()
		delete(s.pending, id)
		s.pendingMu.Unlock()
	}()

	data, err := json.Marshal(Command{ID: id, Cmd: name, Params: params})
	if err != nil {
		return Response{}, &CodeError{Code: CodeInvalidArgument, Message: fmt.Sprintf("%s: %v", name, err)}
	}
	if err := s.write(c, data); err != nil {
		return Response{}, &CodeError{Code: CodeNotConnected, Message: fmt.Sprintf("%s: %v", name, err)}
	}

	timer := time.NewTimer(s.dialer.CommandTimeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return Response{}, ctx.Err()
	case <-timer.C:
		return Response{}, &CodeError{Code: CodeTimeout, Message: name + " timed out"}
	case <-c.done:
		return Response{}, &CodeError{Code: CodeNotConnected, Message: name + ": connection closed"}
	case resp := <-respCh:
		if resp.Type == typeError {
			code := resp.Code
			if code == 0 {
				code = CodeGatewayError
			}
			return resp, &CodeError{Code: code, Message: resp.text()}
		}
		return resp, nil
	}
}

// notify sends a command without waiting for the reply.
func (s *wsSession) notify(name string) {
	c := s.current()
	if c == nil {
		return
	}
	data, _ := json.Marshal(Command{ID: s.cmdID.Add(1), Cmd: name})
	if err := s.write(c, data); err != nil {
		s.logger.Debug("notify failed", "cmd", name, "error", err)
	}
}

func (s *wsSession) write(c *wsConn, data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	c.ws.SetWriteDeadline(time.Now().Add(s.dialer.WriteTimeout))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (s *wsSession) routeResponse(resp Response) {
	s.pendingMu.Lock()
	ch, ok := s.pending[resp.ID]
	if ok {
		delete(s.pending, resp.ID)
	}
	s.pendingMu.Unlock()

	if ok {
		select {
		case ch <- resp:
		default:
		}
	}
}

// ----------------------------------------------------------------------------
// Read side
// ----------------------------------------------------------------------------

func (s *wsSession) readLoop(c *wsConn) {
	defer close(c.done)

	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			c.fail(err)
			return
		}

		switch mt {
		case websocket.BinaryMessage:
			s.dispatchRecord(data)
		case websocket.TextMessage:
			s.dispatchText(data)
		}
	}
}

func (s *wsSession) dispatchRecord(data []byte) {
	cb := s.callbacks.Load()
	if cb == nil {
		return
	}
	if len(data) < 2 {
		if cb.Error != nil {
			cb.Error(fmt.Sprintf("record frame too short: %d bytes", len(data)), CodeGatewayError)
		}
		return
	}
	cb.Record(data, data[1])
}

func (s *wsSession) dispatchText(data []byte) {
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		s.logger.Warn("invalid bridge message", "error", err)
		return
	}
	if resp.ID != 0 {
		s.routeResponse(resp)
		return
	}

	cb := s.callbacks.Load()
	if cb == nil {
		return
	}
	switch resp.Type {
	case typeMetadata:
		if cb.Metadata != nil {
			cb.Metadata([]byte(resp.Msg))
		}
	case typeError:
		if cb.Error != nil {
			code := resp.Code
			if code == 0 {
				code = CodeGatewayError
			}
			cb.Error(resp.text(), code)
		}
	default:
		s.logger.Debug("ignoring bridge message", "type", resp.Type)
	}
}

// heartbeatLoop pings the bridge and closes a stale connection.
func (s *wsSession) heartbeatLoop(c *wsConn) {
	interval := s.dialer.PingInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(s.dialer.WriteTimeout)
			if err := c.ws.WriteControl(websocket.PingMessage, []byte("keepalive"), deadline); err != nil {
				s.logger.Debug("failed to send ping", "error", err)
			}

			lastPing := time.Unix(0, c.lastPingAt.Load())
			if s.dialer.PingTimeout > 0 && time.Since(lastPing) > s.dialer.PingTimeout {
				s.logger.Warn("no ping received, connection stale",
					"last_ping", lastPing,
					"timeout", s.dialer.PingTimeout,
				)
				c.fail(ErrStaleConnection)
				c.close()
				return
			}
		}
	}
}
