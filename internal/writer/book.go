package writer

import (
	"log/slog"

	"github.com/rickgao/dbn-live/internal/metrics"
	"github.com/rickgao/dbn-live/internal/queue"
	"github.com/rickgao/dbn-live/internal/router"
)

const insertBookSQL = `
	INSERT INTO book_snapshots (ts_event, ts_recv, received_at, instrument_id, symbol,
		bids, asks, best_bid, best_ask, spread, sequence)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	ON CONFLICT (instrument_id, ts_event, sequence) DO NOTHING`

// BookWriter consumes BookMsg from the router and writes to the
// book_snapshots table.
type BookWriter = Batcher[router.BookMsg, bookRow]

// NewBookWriter creates a new BookWriter.
func NewBookWriter(
	cfg WriterConfig,
	input *queue.Queue[router.BookMsg],
	db DB,
	m *metrics.Writer,
	logger *slog.Logger,
) *BookWriter {
	return NewBatcher(cfg, Table[router.BookMsg, bookRow]{
		Name:      "book_snapshots",
		Insert:    insertBookSQL,
		Transform: transformBook,
		Args:      bookArgs,
	}, input, db, m, logger)
}

// transformBook converts a BookMsg to a bookRow.
func transformBook(msg router.BookMsg) (bookRow, bool) {
	bestBid := extractBestPrice(msg.Bids)
	bestAsk := extractBestPrice(msg.Asks)

	return bookRow{
		TsEvent:      msg.TsEvent,
		TsRecv:       msg.TsRecv,
		ReceivedAt:   msg.ReceivedAt,
		InstrumentID: int64(msg.InstrumentID),
		Symbol:       msg.Symbol,
		Bids:         priceLevelsToJSONB(msg.Bids),
		Asks:         priceLevelsToJSONB(msg.Asks),
		BestBid:      bestBid,
		BestAsk:      bestAsk,
		Spread:       spread(bestBid, bestAsk),
		Sequence:     int64(msg.Sequence),
	}, true
}

func bookArgs(r bookRow) []any {
	return []any{
		r.TsEvent, nullableTime(r.TsRecv), r.ReceivedAt, r.InstrumentID, r.Symbol,
		r.Bids, r.Asks, r.BestBid, r.BestAsk, r.Spread, r.Sequence,
	}
}
