package router

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rickgao/dbn-live/internal/dbn"
	"github.com/rickgao/dbn-live/internal/metrics"
	"github.com/rickgao/dbn-live/internal/queue"
	"github.com/rickgao/dbn-live/internal/symbology"
)

// Source yields decoded records in stream order. *live.Client implements it.
type Source interface {
	Next(ctx context.Context) (dbn.Record, error)
}

// Router converts records into typed messages for the writers.
type Router interface {
	// Start begins routing records from the source.
	Start(ctx context.Context) error

	// Stop shuts down the router and closes the output queues.
	Stop(ctx context.Context) error

	// Done is closed once the routing loop has exited.
	Done() <-chan struct{}

	// ApplyMetadata seeds the symbology from session metadata.
	ApplyMetadata(md *dbn.Metadata)

	// Queues returns the output queues.
	Queues() Queues

	// Symbology returns the instrument map maintained by the router.
	Symbology() *symbology.Map

	// Stats returns current router statistics.
	Stats() Stats
}

// Queues provides access to the output queues.
type Queues struct {
	Trades      *queue.Queue[TradeMsg]
	Quotes      *queue.Queue[QuoteMsg]
	Books       *queue.Queue[BookMsg]
	Bars        *queue.Queue[BarMsg]
	Definitions *queue.Queue[DefinitionMsg]
	Statuses    *queue.Queue[StatusMsg]
	Latest      *queue.Queue[LatestMsg]
}

// Stats contains runtime statistics.
type Stats struct {
	Received       int64
	Routed         int64
	Dropped        int64
	Unknown        int64
	GatewayErrors  int64
	SymbolMappings int64
	Trades         queue.Stats
	Quotes         queue.Stats
	Books          queue.Stats
	Bars           queue.Stats
	Definitions    queue.Stats
	Statuses       queue.Stats
	Latest         queue.Stats
}

type router struct {
	cfg     Config
	source  Source
	symbols *symbology.Map
	queues  Queues
	logger  *slog.Logger
	metrics *metrics.Router
	now     func() time.Time

	cancel    context.CancelFunc
	done      chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once

	received       atomic.Int64
	routed         atomic.Int64
	dropped        atomic.Int64
	unknown        atomic.Int64
	gatewayErrors  atomic.Int64
	symbolMappings atomic.Int64
}

// New creates a router reading from source. A nil m gets unregistered
// metrics.
func New(cfg Config, source Source, m *metrics.Router, logger *slog.Logger) Router {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.NewRouter(nil)
	}

	return &router{
		cfg:     cfg,
		source:  source,
		symbols: symbology.NewMap(),
		logger:  logger.With("component", "router"),
		metrics: m,
		now:     time.Now,
		done:    make(chan struct{}),
		queues: Queues{
			Trades:      queue.NewGrowable[TradeMsg](cfg.TradeBufferSize),
			Quotes:      queue.NewGrowable[QuoteMsg](cfg.QuoteBufferSize),
			Books:       queue.NewGrowable[BookMsg](cfg.BookBufferSize),
			Bars:        queue.NewGrowable[BarMsg](cfg.BarBufferSize),
			Definitions: queue.NewGrowable[DefinitionMsg](cfg.DefinitionBufferSize),
			Statuses:    queue.NewGrowable[StatusMsg](cfg.StatusBufferSize),
			Latest: queue.New[LatestMsg](queue.Options{
				Capacity: cfg.LatestBufferSize,
				FullMode: queue.DropOldest,
			}),
		},
	}
}

// Start begins routing records.
func (r *router) Start(ctx context.Context) error {
	r.startOnce.Do(func() {
		ctx, r.cancel = context.WithCancel(ctx)
		go r.routeLoop(ctx)

		r.logger.Info("router started",
			"trade_buffer", r.cfg.TradeBufferSize,
			"quote_buffer", r.cfg.QuoteBufferSize,
			"latest_buffer", r.cfg.LatestBufferSize,
		)
	})
	return nil
}

// Stop shuts down the router. Queued messages stay receivable so writers
// can drain them.
func (r *router) Stop(ctx context.Context) error {
	r.stopOnce.Do(func() {
		r.logger.Info("stopping router")
		if r.cancel != nil {
			r.cancel()
			select {
			case <-r.done:
				r.logger.Info("router stopped")
			case <-ctx.Done():
				r.logger.Warn("router stop timed out")
			}
		}
		r.closeQueues()
	})
	return nil
}

func (r *router) Done() <-chan struct{} { return r.done }

func (r *router) ApplyMetadata(md *dbn.Metadata) {
	if n := r.symbols.ApplyMetadata(md, r.now()); n > 0 {
		r.logger.Info("symbology seeded from metadata", "instruments", n)
	}
}

func (r *router) Queues() Queues { return r.queues }

func (r *router) Symbology() *symbology.Map { return r.symbols }

func (r *router) Stats() Stats {
	return Stats{
		Received:       r.received.Load(),
		Routed:         r.routed.Load(),
		Dropped:        r.dropped.Load(),
		Unknown:        r.unknown.Load(),
		GatewayErrors:  r.gatewayErrors.Load(),
		SymbolMappings: r.symbolMappings.Load(),
		Trades:         r.queues.Trades.Stats(),
		Quotes:         r.queues.Quotes.Stats(),
		Books:          r.queues.Books.Stats(),
		Bars:           r.queues.Bars.Stats(),
		Definitions:    r.queues.Definitions.Stats(),
		Statuses:       r.queues.Statuses.Stats(),
		Latest:         r.queues.Latest.Stats(),
	}
}

func (r *router) routeLoop(ctx context.Context) {
	defer close(r.done)

	for {
		rec, err := r.source.Next(ctx)
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, context.Canceled) {
				r.logger.Info("source ended", "error", err)
			}
			// Writers see closed queues and flush what is left.
			r.closeQueues()
			return
		}
		r.route(rec)
	}
}

func (r *router) closeQueues() {
	r.queues.Trades.Close()
	r.queues.Quotes.Close()
	r.queues.Books.Close()
	r.queues.Bars.Close()
	r.queues.Definitions.Close()
	r.queues.Statuses.Close()
	r.queues.Latest.Close()
}

// route converts and dispatches a single record.
func (r *router) route(rec dbn.Record) {
	r.received.Add(1)
	receivedAt := r.now()
	hd := rec.Header()

	switch m := rec.(type) {
	case *dbn.TradeMsg:
		symbol := r.symbol(hd.InstrumentID)
		r.emit(StreamTrades, r.queues.Trades.Send(TradeMsg{
			InstrumentID: hd.InstrumentID,
			Symbol:       symbol,
			TsEvent:      dbn.NanosToTime(hd.TsEvent),
			TsRecv:       dbn.NanosToTime(m.TsRecv),
			Price:        m.Price,
			Size:         m.Size,
			Side:         m.Side,
			Action:       m.Action,
			Flags:        m.Flags,
			Sequence:     m.Sequence,
			ReceivedAt:   receivedAt,
		}))
		r.latest(LatestMsg{
			InstrumentID: hd.InstrumentID,
			Symbol:       symbol,
			TsEvent:      dbn.NanosToTime(hd.TsEvent),
			HasLast:      true,
			Last:         m.Price,
		})

	case *dbn.Mbp1Msg:
		symbol := r.symbol(hd.InstrumentID)
		r.emit(StreamQuotes, r.queues.Quotes.Send(QuoteMsg{
			InstrumentID: hd.InstrumentID,
			Symbol:       symbol,
			RType:        hd.RType,
			TsEvent:      dbn.NanosToTime(hd.TsEvent),
			TsRecv:       dbn.NanosToTime(m.TsRecv),
			BidPx:        m.Level.BidPx,
			AskPx:        m.Level.AskPx,
			BidSz:        m.Level.BidSz,
			AskSz:        m.Level.AskSz,
			BidCt:        m.Level.BidCt,
			AskCt:        m.Level.AskCt,
			Side:         m.Side,
			Action:       m.Action,
			Flags:        m.Flags,
			Sequence:     m.Sequence,
			ReceivedAt:   receivedAt,
		}))
		update := LatestMsg{
			InstrumentID: hd.InstrumentID,
			Symbol:       symbol,
			TsEvent:      dbn.NanosToTime(hd.TsEvent),
			HasQuote:     true,
			BidPx:        m.Level.BidPx,
			AskPx:        m.Level.AskPx,
			BidSz:        m.Level.BidSz,
			AskSz:        m.Level.AskSz,
		}
		if m.Action == dbn.ActionTrade && m.Price.Valid {
			update.HasLast = true
			update.Last = m.Price
		}
		r.latest(update)

	case *dbn.Mbp10Msg:
		symbol := r.symbol(hd.InstrumentID)
		bids, asks := bookLevels(m.Levels[:])
		r.emit(StreamBooks, r.queues.Books.Send(BookMsg{
			InstrumentID: hd.InstrumentID,
			Symbol:       symbol,
			TsEvent:      dbn.NanosToTime(hd.TsEvent),
			TsRecv:       dbn.NanosToTime(m.TsRecv),
			Bids:         bids,
			Asks:         asks,
			Action:       m.Action,
			Side:         m.Side,
			Flags:        m.Flags,
			Sequence:     m.Sequence,
			ReceivedAt:   receivedAt,
		}))
		top := m.Levels[0]
		r.latest(LatestMsg{
			InstrumentID: hd.InstrumentID,
			Symbol:       symbol,
			TsEvent:      dbn.NanosToTime(hd.TsEvent),
			HasQuote:     true,
			BidPx:        top.BidPx,
			AskPx:        top.AskPx,
			BidSz:        top.BidSz,
			AskSz:        top.AskSz,
		})

	case *dbn.OhlcvMsg:
		r.emit(StreamBars, r.queues.Bars.Send(BarMsg{
			InstrumentID: hd.InstrumentID,
			Symbol:       r.symbol(hd.InstrumentID),
			Interval:     barInterval(hd.RType),
			TsEvent:      dbn.NanosToTime(hd.TsEvent),
			Open:         m.Open,
			High:         m.High,
			Low:          m.Low,
			Close:        m.Close,
			Volume:       m.Volume,
			ReceivedAt:   receivedAt,
		}))

	case *dbn.InstrumentDefMsg:
		r.symbols.ApplyRecord(m)
		r.emit(StreamDefinitions, r.queues.Definitions.Send(DefinitionMsg{
			Symbol:     r.symbol(hd.InstrumentID),
			Definition: m,
			ReceivedAt: receivedAt,
		}))

	case *dbn.StatusMsg:
		r.emit(StreamStatuses, r.queues.Statuses.Send(StatusMsg{
			InstrumentID:          hd.InstrumentID,
			Symbol:                r.symbol(hd.InstrumentID),
			TsEvent:               dbn.NanosToTime(hd.TsEvent),
			TsRecv:                dbn.NanosToTime(m.TsRecv),
			Action:                m.Action,
			Reason:                m.Reason,
			TradingEvent:          m.TradingEvent,
			IsTrading:             triState(m.IsTrading),
			IsQuoting:             triState(m.IsQuoting),
			IsShortSellRestricted: triState(m.IsShortSellRestricted),
			ReceivedAt:            receivedAt,
		}))

	case *dbn.SymbolMappingMsg:
		r.symbols.ApplyRecord(m)
		r.symbolMappings.Add(1)
		r.logger.Debug("symbol mapped",
			"instrument_id", hd.InstrumentID,
			"in", m.STypeInSymbol,
			"out", m.STypeOutSymbol,
		)

	case *dbn.ErrorMsg:
		r.gatewayErrors.Add(1)
		r.metrics.GatewayErrors.Inc()
		r.logger.Warn("gateway error record", "error", m.Err, "code", m.Code, "is_last", m.IsLast)

	case *dbn.SystemMsg:
		if !m.IsHeartbeat() {
			r.logger.Info("gateway system message", "msg", m.Msg, "code", m.Code)
		}

	default:
		r.unknown.Add(1)
		r.metrics.Unknown.Inc()
		r.logger.Debug("no route for record", "rtype", hd.RType.String())
	}
}

func (r *router) symbol(id uint32) string {
	s, _ := r.symbols.Symbol(id)
	return s
}

func (r *router) emit(stream string, sent bool) {
	if !sent {
		r.dropped.Add(1)
		r.metrics.Dropped.WithLabelValues(stream).Inc()
		return
	}
	r.routed.Add(1)
	r.metrics.Routed.WithLabelValues(stream).Inc()
}

// latest feeds the cache queue. Evictions under DropOldest are not counted
// as router drops.
func (r *router) latest(msg LatestMsg) {
	if msg.Symbol == "" {
		return
	}
	if r.queues.Latest.Send(msg) {
		r.metrics.Routed.WithLabelValues(StreamLatest).Inc()
	}
}

func bookLevels(levels []dbn.BidAskPair) (bids, asks []BookLevel) {
	for _, l := range levels {
		if l.BidPx.Valid {
			bids = append(bids, BookLevel{Price: l.BidPx.Decimal, Size: l.BidSz, Count: l.BidCt})
		}
		if l.AskPx.Valid {
			asks = append(asks, BookLevel{Price: l.AskPx.Decimal, Size: l.AskSz, Count: l.AskCt})
		}
	}
	return bids, asks
}

func barInterval(rt dbn.RType) string {
	switch rt {
	case dbn.RTypeOhlcv1S:
		return "1s"
	case dbn.RTypeOhlcv1M:
		return "1m"
	case dbn.RTypeOhlcv1H:
		return "1h"
	case dbn.RTypeOhlcv1D:
		return "1d"
	case dbn.RTypeOhlcvEod:
		return "eod"
	}
	return rt.String()
}

func triState(t dbn.TriState) *bool {
	v, ok := t.Bool()
	if !ok {
		return nil
	}
	return &v
}
