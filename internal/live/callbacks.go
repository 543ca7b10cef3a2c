package live

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rickgao/dbn-live/internal/connection"
	"github.com/rickgao/dbn-live/internal/dbn"
	"github.com/rickgao/dbn-live/internal/gateway"
)

// gate holds the records of a stream until its metadata arrives.
//
// Delivery runs outside mu: a Block-mode queue or a slow record listener
// stalls only the releasing callback, never hold or discard.
type gate struct {
	mu        sync.Mutex
	releasing bool // held records are being delivered
	open      bool
	closed    bool // metadata failed or the stream ended; records are discarded
	held      []dbn.Record
}

// hold keeps rec if the gate is not yet open. It reports whether the
// caller must not deliver rec itself.
func (g *gate) hold(rec dbn.Record) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.open {
		return false
	}
	if !g.closed {
		g.held = append(g.held, rec)
	}
	return true
}

// release delivers the held records in arrival order, then opens the gate.
// Records held while a batch is delivered go out in the next batch, so
// arrival order survives. It returns the number delivered.
func (g *gate) release(deliver func(dbn.Record)) int {
	g.mu.Lock()
	if g.open || g.closed || g.releasing {
		g.mu.Unlock()
		return 0
	}
	g.releasing = true

	n := 0
	for len(g.held) > 0 && !g.closed {
		batch := g.held
		g.held = nil
		g.mu.Unlock()

		for _, rec := range batch {
			deliver(rec)
		}
		n += len(batch)
		g.mu.Lock()
	}
	g.releasing = false
	g.open = !g.closed
	g.mu.Unlock()
	return n
}

// discard drops held records. Later records are dropped too unless the
// gate is already open. A release in progress stops after its batch.
func (g *gate) discard() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.open {
		g.closed = true
		g.held = nil
	}
}

func (c *Client) callbacks(s *stream) gateway.Callbacks {
	return gateway.Callbacks{
		Metadata: func(data []byte) { c.handleMetadata(s, data) },
		Record:   func(data []byte, rtype uint8) { c.handleRecord(s, data, rtype) },
		Error:    c.handleError,
	}
}

// enter admits a callback. Every admitted callback must call leave. Stop
// and Close wait for admitted callbacks before closing the queue.
func (c *Client) enter() bool {
	c.inflight.Add(1)
	if c.status.Load() != active || !c.accepting.Load() {
		c.inflight.Add(-1)
		return false
	}
	return true
}

func (c *Client) leave() {
	c.inflight.Add(-1)
}

// guard converts a panic in a callback into a reported error.
func (c *Client) guard(code, unknownCode int) {
	r := recover()
	if r == nil {
		return
	}
	var msg string
	switch v := r.(type) {
	case error:
		msg = v.Error()
	case string:
		msg = v
	default:
		msg = fmt.Sprintf("%v", v)
		code = unknownCode
	}
	c.logger.Error("callback panicked", "panic", msg, "code", code)
	if c.status.Load() == active {
		c.report(connection.CallbackError(msg, code))
	}
}

func (c *Client) handleMetadata(s *stream, data []byte) {
	defer c.guard(connection.CodeMetadataFault, connection.CodeMetadataUnknownFault)
	if !c.enter() {
		return
	}
	defer c.leave()

	md, err := dbn.ParseMetadata(data)
	if err != nil {
		err = fmt.Errorf("metadata: %w", err)
		if s.metadata.reject(err) {
			s.gate.discard()
		}
		c.report(err)
		return
	}
	if !s.metadata.resolve(md) {
		c.logger.Debug("duplicate metadata ignored")
		return
	}
	c.handle.Transition(connection.Connecting, connection.Streaming)
	c.onMetadata.notify(md, c.listenerPanicked)

	if n := s.gate.release(c.deliver); n > 0 {
		c.logger.Debug("released held records", "count", n)
	}
}

func (c *Client) handleRecord(s *stream, data []byte, rtype uint8) {
	defer c.guard(connection.CodeRecordFault, connection.CodeUnknownFault)
	if !c.enter() {
		return
	}
	defer c.leave()

	c.monitor.RecordActivity()

	rec, err := dbn.Decode(data, dbn.RType(rtype))
	if err != nil {
		c.metrics.DecodeErrors.Inc()
		c.report(err)
		return
	}
	c.metrics.Records.WithLabelValues(dbn.RType(rtype).String()).Inc()

	if m, ok := rec.(*dbn.ErrorMsg); ok {
		c.logger.Warn("gateway error record", "error", m.Err, "code", m.Code)
	}
	if s.gate.hold(rec) {
		return
	}
	c.deliver(rec)
}

func (c *Client) handleError(msg string, code int) {
	defer c.guard(connection.CodeUnknownFault, connection.CodeUnknownFault)
	if !c.enter() {
		return
	}
	defer c.leave()

	err := connection.CallbackError(msg, code)
	c.metrics.GatewayErrors.WithLabelValues(err.Kind.String()).Inc()
	c.logger.Warn("transport error", "error", err)
	c.monitor.RecordError(err)
	c.report(err)
}

// deliver enqueues rec and notifies record listeners.
func (c *Client) deliver(rec dbn.Record) {
	if !c.queue.Send(rec) {
		if !c.queue.Closed() {
			c.logger.Debug("record dropped by full queue", "rtype", rec.Header().RType)
		}
	}
	if c.cfg.QueueCapacity > 0 {
		if d := c.queue.Stats().Dropped; d > c.dropped.Load() {
			c.metrics.QueueDropped.Add(float64(d - c.dropped.Swap(d)))
		}
	}
	c.metrics.QueueDepth.Set(float64(c.queue.Len()))
	c.onRecord.notify(rec, c.listenerPanicked)
}

// report notifies error listeners and the error handler. A Stop decision
// stops the client on another goroutine.
func (c *Client) report(err error) {
	c.onError.notify(err, c.listenerPanicked)
	if c.errHandler == nil {
		return
	}
	if c.decide(err) == Stop {
		c.logger.Info("error handler requested stop", "error", err)
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), c.stopBound()+c.cfg.DrainTimeout)
			defer cancel()
			if err := c.Stop(ctx); err != nil && !errors.Is(err, connection.ErrDisposed) {
				c.logger.Warn("stop requested by error handler failed", "error", err)
			}
		}()
	}
}

func (c *Client) decide(err error) (action ErrorAction) {
	defer func() {
		if r := recover(); r != nil {
			c.listenerPanicked(r)
			action = Continue
		}
	}()
	return c.errHandler(err)
}

func (c *Client) listenerPanicked(r any) {
	c.metrics.ListenerPanics.Inc()
	c.logger.Error("listener panicked", "panic", r)
}
