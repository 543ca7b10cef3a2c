package writer

import (
	"log/slog"

	"github.com/rickgao/dbn-live/internal/metrics"
	"github.com/rickgao/dbn-live/internal/queue"
	"github.com/rickgao/dbn-live/internal/router"
)

const insertQuoteSQL = `
	INSERT INTO quotes (ts_event, ts_recv, received_at, instrument_id, symbol, schema,
		bid_px, ask_px, bid_sz, ask_sz, bid_ct, ask_ct, spread, side, action, sequence)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	ON CONFLICT (instrument_id, ts_event, sequence) DO NOTHING`

// QuoteWriter consumes QuoteMsg from the router and writes to the quotes table.
type QuoteWriter = Batcher[router.QuoteMsg, quoteRow]

// NewQuoteWriter creates a new QuoteWriter.
func NewQuoteWriter(
	cfg WriterConfig,
	input *queue.Queue[router.QuoteMsg],
	db DB,
	m *metrics.Writer,
	logger *slog.Logger,
) *QuoteWriter {
	return NewBatcher(cfg, Table[router.QuoteMsg, quoteRow]{
		Name:      "quotes",
		Insert:    insertQuoteSQL,
		Transform: transformQuote,
		Args:      quoteArgs,
	}, input, db, m, logger)
}

// transformQuote converts a QuoteMsg to a quoteRow. An empty book on both
// sides is still recorded so that clears are visible.
func transformQuote(msg router.QuoteMsg) (quoteRow, bool) {
	return quoteRow{
		TsEvent:      msg.TsEvent,
		TsRecv:       msg.TsRecv,
		ReceivedAt:   msg.ReceivedAt,
		InstrumentID: int64(msg.InstrumentID),
		Symbol:       msg.Symbol,
		Schema:       msg.RType.String(),
		BidPx:        msg.BidPx,
		AskPx:        msg.AskPx,
		BidSz:        int64(msg.BidSz),
		AskSz:        int64(msg.AskSz),
		BidCt:        int64(msg.BidCt),
		AskCt:        int64(msg.AskCt),
		Spread:       spread(msg.BidPx, msg.AskPx),
		Side:         enumCode(msg.Side),
		Action:       enumCode(msg.Action),
		Sequence:     int64(msg.Sequence),
	}, true
}

func quoteArgs(r quoteRow) []any {
	return []any{
		r.TsEvent, nullableTime(r.TsRecv), r.ReceivedAt, r.InstrumentID, r.Symbol, r.Schema,
		r.BidPx, r.AskPx, r.BidSz, r.AskSz, r.BidCt, r.AskCt, r.Spread, r.Side, r.Action, r.Sequence,
	}
}
