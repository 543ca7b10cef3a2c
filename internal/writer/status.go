package writer

import (
	"log/slog"

	"github.com/rickgao/dbn-live/internal/metrics"
	"github.com/rickgao/dbn-live/internal/queue"
	"github.com/rickgao/dbn-live/internal/router"
)

const insertStatusSQL = `
	INSERT INTO statuses (ts_event, ts_recv, received_at, instrument_id, symbol,
		action, reason, trading_event, is_trading, is_quoting, is_short_sell_restricted)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	ON CONFLICT (instrument_id, ts_event, action) DO NOTHING`

// StatusWriter consumes StatusMsg from the router and writes to the statuses table.
type StatusWriter = Batcher[router.StatusMsg, statusRow]

// NewStatusWriter creates a new StatusWriter.
func NewStatusWriter(
	cfg WriterConfig,
	input *queue.Queue[router.StatusMsg],
	db DB,
	m *metrics.Writer,
	logger *slog.Logger,
) *StatusWriter {
	return NewBatcher(cfg, Table[router.StatusMsg, statusRow]{
		Name:      "statuses",
		Insert:    insertStatusSQL,
		Transform: transformStatus,
		Args:      statusArgs,
	}, input, db, m, logger)
}

func transformStatus(msg router.StatusMsg) (statusRow, bool) {
	return statusRow{
		TsEvent:               msg.TsEvent,
		TsRecv:                msg.TsRecv,
		ReceivedAt:            msg.ReceivedAt,
		InstrumentID:          int64(msg.InstrumentID),
		Symbol:                msg.Symbol,
		Action:                int32(msg.Action),
		Reason:                int32(msg.Reason),
		TradingEvent:          int32(msg.TradingEvent),
		IsTrading:             msg.IsTrading,
		IsQuoting:             msg.IsQuoting,
		IsShortSellRestricted: msg.IsShortSellRestricted,
	}, true
}

func statusArgs(r statusRow) []any {
	return []any{
		r.TsEvent, nullableTime(r.TsRecv), r.ReceivedAt, r.InstrumentID, r.Symbol,
		r.Action, r.Reason, r.TradingEvent, r.IsTrading, r.IsQuoting, r.IsShortSellRestricted,
	}
}
