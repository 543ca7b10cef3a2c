package writer

import (
	"log/slog"

	"github.com/rickgao/dbn-live/internal/dbn"
	"github.com/rickgao/dbn-live/internal/metrics"
	"github.com/rickgao/dbn-live/internal/queue"
	"github.com/rickgao/dbn-live/internal/router"
)

// Definitions are reference data: the newest version of an instrument
// replaces the stored one. Older replays leave it untouched.
const upsertDefinitionSQL = `
	INSERT INTO instrument_definitions (instrument_id, raw_symbol, symbol, exchange, asset, "group",
		security_type, instrument_class, currency, min_price_increment, high_limit_price, low_limit_price,
		strike_price, contract_multiplier, expiration, activation, ts_event, update_action, received_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	ON CONFLICT (instrument_id) DO UPDATE SET
		raw_symbol = EXCLUDED.raw_symbol,
		symbol = EXCLUDED.symbol,
		exchange = EXCLUDED.exchange,
		asset = EXCLUDED.asset,
		"group" = EXCLUDED."group",
		security_type = EXCLUDED.security_type,
		instrument_class = EXCLUDED.instrument_class,
		currency = EXCLUDED.currency,
		min_price_increment = EXCLUDED.min_price_increment,
		high_limit_price = EXCLUDED.high_limit_price,
		low_limit_price = EXCLUDED.low_limit_price,
		strike_price = EXCLUDED.strike_price,
		contract_multiplier = EXCLUDED.contract_multiplier,
		expiration = EXCLUDED.expiration,
		activation = EXCLUDED.activation,
		ts_event = EXCLUDED.ts_event,
		update_action = EXCLUDED.update_action,
		received_at = EXCLUDED.received_at
	WHERE instrument_definitions.ts_event <= EXCLUDED.ts_event`

// DefinitionWriter consumes DefinitionMsg from the router and upserts
// into the instrument_definitions table.
type DefinitionWriter = Batcher[router.DefinitionMsg, definitionRow]

// NewDefinitionWriter creates a new DefinitionWriter.
func NewDefinitionWriter(
	cfg WriterConfig,
	input *queue.Queue[router.DefinitionMsg],
	db DB,
	m *metrics.Writer,
	logger *slog.Logger,
) *DefinitionWriter {
	return NewBatcher(cfg, Table[router.DefinitionMsg, definitionRow]{
		Name:      "instrument_definitions",
		Insert:    upsertDefinitionSQL,
		Transform: transformDefinition,
		Args:      definitionArgs,
	}, input, db, m, logger)
}

func transformDefinition(msg router.DefinitionMsg) (definitionRow, bool) {
	d := msg.Definition
	if d == nil {
		return definitionRow{}, false
	}
	symbol := msg.Symbol
	if symbol == "" {
		symbol = d.RawSymbol
	}
	return definitionRow{
		InstrumentID:       int64(d.Hd.InstrumentID),
		RawSymbol:          d.RawSymbol,
		Symbol:             symbol,
		Exchange:           d.Exchange,
		Asset:              d.Asset,
		Group:              d.Group,
		SecurityType:       d.SecurityType,
		InstrumentClass:    enumCode(d.InstrumentClass),
		Currency:           d.Currency,
		MinPriceIncrement:  d.MinPriceIncrement,
		HighLimitPrice:     d.HighLimitPrice,
		LowLimitPrice:      d.LowLimitPrice,
		StrikePrice:        d.StrikePrice,
		ContractMultiplier: int64(d.ContractMultiplier),
		Expiration:         dbn.NanosToTime(d.Expiration),
		Activation:         dbn.NanosToTime(d.Activation),
		TsEvent:            dbn.NanosToTime(d.Hd.TsEvent),
		UpdateAction:       enumCode(d.SecurityUpdateAction),
		ReceivedAt:         msg.ReceivedAt,
	}, true
}

func definitionArgs(r definitionRow) []any {
	return []any{
		r.InstrumentID, r.RawSymbol, r.Symbol, r.Exchange, r.Asset, r.Group,
		r.SecurityType, r.InstrumentClass, r.Currency, r.MinPriceIncrement, r.HighLimitPrice, r.LowLimitPrice,
		r.StrikePrice, r.ContractMultiplier, nullableTime(r.Expiration), nullableTime(r.Activation),
		r.TsEvent, r.UpdateAction, r.ReceivedAt,
	}
}
