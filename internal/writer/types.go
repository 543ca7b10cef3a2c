package writer

import (
	"time"

	"github.com/shopspring/decimal"
)

// WriterConfig contains configuration for batch writers.
type WriterConfig struct {
	// BatchSize is the number of rows to accumulate before flushing.
	BatchSize int

	// FlushInterval is the maximum time between flushes.
	FlushInterval time.Duration

	// FlushTimeout bounds one batch insert.
	FlushTimeout time.Duration
}

// DefaultWriterConfig returns sensible defaults.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		BatchSize:     1000,
		FlushInterval: 5 * time.Second,
		FlushTimeout:  10 * time.Second,
	}
}

// tradeRow represents a row to be inserted into the trades table.
type tradeRow struct {
	TsEvent      time.Time
	TsRecv       time.Time
	ReceivedAt   time.Time
	InstrumentID int64
	Symbol       string
	Price        decimal.NullDecimal
	Size         int64
	Side         string
	Action       string
	Sequence     int64
}

// quoteRow represents a row for the quotes table.
type quoteRow struct {
	TsEvent      time.Time
	TsRecv       time.Time
	ReceivedAt   time.Time
	InstrumentID int64
	Symbol       string
	Schema       string
	BidPx        decimal.NullDecimal
	AskPx        decimal.NullDecimal
	BidSz        int64
	AskSz        int64
	BidCt        int64
	AskCt        int64
	Spread       decimal.NullDecimal
	Side         string
	Action       string
	Sequence     int64
}

// bookRow represents a row for the book_snapshots table.
type bookRow struct {
	TsEvent      time.Time
	TsRecv       time.Time
	ReceivedAt   time.Time
	InstrumentID int64
	Symbol       string
	Bids         []byte // JSONB: [{price: "1.25", size: int, count: int}, ...]
	Asks         []byte // JSONB
	BestBid      decimal.NullDecimal
	BestAsk      decimal.NullDecimal
	Spread       decimal.NullDecimal
	Sequence     int64
}

// barRow represents a row for the bars table.
type barRow struct {
	TsEvent      time.Time
	ReceivedAt   time.Time
	InstrumentID int64
	Symbol       string
	Interval     string
	Open         decimal.NullDecimal
	High         decimal.NullDecimal
	Low          decimal.NullDecimal
	Close        decimal.NullDecimal
	Volume       int64
}

// statusRow represents a row for the statuses table.
type statusRow struct {
	TsEvent               time.Time
	TsRecv                time.Time
	ReceivedAt            time.Time
	InstrumentID          int64
	Symbol                string
	Action                int32
	Reason                int32
	TradingEvent          int32
	IsTrading             *bool
	IsQuoting             *bool
	IsShortSellRestricted *bool
}

// definitionRow represents a row for the instrument_definitions table.
type definitionRow struct {
	InstrumentID       int64
	RawSymbol          string
	Symbol             string
	Exchange           string
	Asset              string
	Group              string
	SecurityType       string
	InstrumentClass    string
	Currency           string
	MinPriceIncrement  decimal.NullDecimal
	HighLimitPrice     decimal.NullDecimal
	LowLimitPrice      decimal.NullDecimal
	StrikePrice        decimal.NullDecimal
	ContractMultiplier int64
	Expiration         time.Time
	Activation         time.Time
	TsEvent            time.Time
	UpdateAction       string
	ReceivedAt         time.Time
}

// WriterMetrics holds counters for a writer.
type WriterMetrics struct {
	Inserts   int64
	Conflicts int64
	Errors    int64
	Flushes   int64
	Skipped   int64 // messages rejected by the transform
}
