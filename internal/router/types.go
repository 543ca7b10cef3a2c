package router

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rickgao/dbn-live/internal/dbn"
)

// Config holds configuration for the router.
type Config struct {
	// Initial ring sizes of the writer queues. They grow on demand.
	TradeBufferSize      int // Default: 4096
	QuoteBufferSize      int // Default: 8192
	BookBufferSize       int // Default: 2048
	BarBufferSize        int // Default: 1024
	DefinitionBufferSize int // Default: 1024
	StatusBufferSize     int // Default: 256

	// LatestBufferSize bounds the cache queue. The oldest update is dropped
	// when the cache falls behind.
	LatestBufferSize int // Default: 4096
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		TradeBufferSize:      4096,
		QuoteBufferSize:      8192,
		BookBufferSize:       2048,
		BarBufferSize:        1024,
		DefinitionBufferSize: 1024,
		StatusBufferSize:     256,
		LatestBufferSize:     4096,
	}
}

// Stream names, used as metric labels.
const (
	StreamTrades      = "trades"
	StreamQuotes      = "quotes"
	StreamBooks       = "books"
	StreamBars        = "bars"
	StreamDefinitions = "definitions"
	StreamStatuses    = "statuses"
	StreamLatest      = "latest"
)

// TradeMsg is a trade print.
type TradeMsg struct {
	InstrumentID uint32
	Symbol       string
	TsEvent      time.Time
	TsRecv       time.Time
	Price        decimal.NullDecimal
	Size         uint32
	Side         dbn.Side
	Action       dbn.Action
	Flags        dbn.Flags
	Sequence     uint32
	ReceivedAt   time.Time
}

// QuoteMsg is a top-of-book update.
type QuoteMsg struct {
	InstrumentID uint32
	Symbol       string
	RType        dbn.RType
	TsEvent      time.Time
	TsRecv       time.Time
	BidPx        decimal.NullDecimal
	AskPx        decimal.NullDecimal
	BidSz        uint32
	AskSz        uint32
	BidCt        uint32
	AskCt        uint32
	Side         dbn.Side
	Action       dbn.Action
	Flags        dbn.Flags
	Sequence     uint32
	ReceivedAt   time.Time
}

// BookLevel is one populated price level of a depth update.
type BookLevel struct {
	Price decimal.Decimal
	Size  uint32
	Count uint32
}

// BookMsg is a ten-level depth update. Levels without a price are
// omitted, so either side may be shorter than ten.
type BookMsg struct {
	InstrumentID uint32
	Symbol       string
	TsEvent      time.Time
	TsRecv       time.Time
	Bids         []BookLevel
	Asks         []BookLevel
	Action       dbn.Action
	Side         dbn.Side
	Flags        dbn.Flags
	Sequence     uint32
	ReceivedAt   time.Time
}

// BarMsg is an OHLCV bar.
type BarMsg struct {
	InstrumentID uint32
	Symbol       string
	Interval     string // "1s", "1m", "1h", "1d" or "eod"
	TsEvent      time.Time
	Open         decimal.NullDecimal
	High         decimal.NullDecimal
	Low          decimal.NullDecimal
	Close        decimal.NullDecimal
	Volume       uint64
	ReceivedAt   time.Time
}

// DefinitionMsg is an instrument definition.
type DefinitionMsg struct {
	Symbol     string
	Definition *dbn.InstrumentDefMsg
	ReceivedAt time.Time
}

// StatusMsg is a trading status change. Nil flags are unset.
type StatusMsg struct {
	InstrumentID          uint32
	Symbol                string
	TsEvent               time.Time
	TsRecv                time.Time
	Action                uint16
	Reason                uint16
	TradingEvent          uint16
	IsTrading             *bool
	IsQuoting             *bool
	IsShortSellRestricted *bool
	ReceivedAt            time.Time
}

// LatestMsg is a partial update of the cached top of book. Only the fields
// flagged by HasQuote and HasLast are set.
type LatestMsg struct {
	InstrumentID uint32
	Symbol       string
	TsEvent      time.Time

	HasQuote bool
	BidPx    decimal.NullDecimal
	AskPx    decimal.NullDecimal
	BidSz    uint32
	AskSz    uint32

	HasLast bool
	Last    decimal.NullDecimal
}
