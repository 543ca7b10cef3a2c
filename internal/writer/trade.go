package writer

import (
	"log/slog"

	"github.com/rickgao/dbn-live/internal/metrics"
	"github.com/rickgao/dbn-live/internal/queue"
	"github.com/rickgao/dbn-live/internal/router"
)

const insertTradeSQL = `
	INSERT INTO trades (ts_event, ts_recv, received_at, instrument_id, symbol, price, size, side, action, sequence)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	ON CONFLICT (instrument_id, ts_event, sequence) DO NOTHING`

// TradeWriter consumes TradeMsg from the router and writes to the trades table.
type TradeWriter = Batcher[router.TradeMsg, tradeRow]

// NewTradeWriter creates a new TradeWriter.
func NewTradeWriter(
	cfg WriterConfig,
	input *queue.Queue[router.TradeMsg],
	db DB,
	m *metrics.Writer,
	logger *slog.Logger,
) *TradeWriter {
	return NewBatcher(cfg, Table[router.TradeMsg, tradeRow]{
		Name:      "trades",
		Insert:    insertTradeSQL,
		Transform: transformTrade,
		Args:      tradeArgs,
	}, input, db, m, logger)
}

// transformTrade converts a TradeMsg to a tradeRow. Trades without a
// price are skipped.
func transformTrade(msg router.TradeMsg) (tradeRow, bool) {
	if !msg.Price.Valid {
		return tradeRow{}, false
	}
	return tradeRow{
		TsEvent:      msg.TsEvent,
		TsRecv:       msg.TsRecv,
		ReceivedAt:   msg.ReceivedAt,
		InstrumentID: int64(msg.InstrumentID),
		Symbol:       msg.Symbol,
		Price:        msg.Price,
		Size:         int64(msg.Size),
		Side:         enumCode(msg.Side),
		Action:       enumCode(msg.Action),
		Sequence:     int64(msg.Sequence),
	}, true
}

func tradeArgs(r tradeRow) []any {
	return []any{
		r.TsEvent, nullableTime(r.TsRecv), r.ReceivedAt, r.InstrumentID, r.Symbol,
		r.Price, r.Size, r.Side, r.Action, r.Sequence,
	}
}
