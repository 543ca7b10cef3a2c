package writer

import (
	"log/slog"

	"github.com/rickgao/dbn-live/internal/metrics"
	"github.com/rickgao/dbn-live/internal/queue"
	"github.com/rickgao/dbn-live/internal/router"
)

// A bar can be revised within its interval, so the latest value wins.
const insertBarSQL = `
	INSERT INTO bars (ts_event, received_at, instrument_id, symbol, interval, open, high, low, close, volume)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	ON CONFLICT (instrument_id, interval, ts_event) DO UPDATE SET
		open = EXCLUDED.open,
		high = EXCLUDED.high,
		low = EXCLUDED.low,
		close = EXCLUDED.close,
		volume = EXCLUDED.volume,
		received_at = EXCLUDED.received_at
	WHERE bars.volume IS DISTINCT FROM EXCLUDED.volume
		OR bars.close IS DISTINCT FROM EXCLUDED.close`

// BarWriter consumes BarMsg from the router and writes to the bars table.
type BarWriter = Batcher[router.BarMsg, barRow]

// NewBarWriter creates a new BarWriter.
func NewBarWriter(
	cfg WriterConfig,
	input *queue.Queue[router.BarMsg],
	db DB,
	m *metrics.Writer,
	logger *slog.Logger,
) *BarWriter {
	return NewBatcher(cfg, Table[router.BarMsg, barRow]{
		Name:      "bars",
		Insert:    insertBarSQL,
		Transform: transformBar,
		Args:      barArgs,
	}, input, db, m, logger)
}

func transformBar(msg router.BarMsg) (barRow, bool) {
	if !msg.Open.Valid || !msg.Close.Valid {
		return barRow{}, false
	}
	return barRow{
		TsEvent:      msg.TsEvent,
		ReceivedAt:   msg.ReceivedAt,
		InstrumentID: int64(msg.InstrumentID),
		Symbol:       msg.Symbol,
		Interval:     msg.Interval,
		Open:         msg.Open,
		High:         msg.High,
		Low:          msg.Low,
		Close:        msg.Close,
		Volume:       int64(msg.Volume),
	}, true
}

func barArgs(r barRow) []any {
	return []any{
		r.TsEvent, r.ReceivedAt, r.InstrumentID, r.Symbol, r.Interval,
		r.Open, r.High, r.Low, r.Close, r.Volume,
	}
}
