package dbn

import (
	"github.com/shopspring/decimal"
)

// Record is a decoded DBN record. The set of implementations is closed: use a
// type switch over the *Msg types in this package.
type Record interface {
	// Header returns the common record header.
	Header() RecordHeader
	isRecord()
}

// -----------------------------------------------------------------------------
// Market data
// -----------------------------------------------------------------------------

// TradeMsg is a trade event (mbp-0 / trades schema).
type TradeMsg struct {
	Hd        RecordHeader
	Price     decimal.NullDecimal
	Size      uint32
	Action    Action
	Side      Side
	Flags     Flags
	Depth     uint8
	TsRecv    uint64 // Capture-server receive time (ns)
	TsInDelta int32  // ts_recv minus the venue send time (ns)
	Sequence  uint32
}

// BidAskPair is one level of the book.
type BidAskPair struct {
	BidPx decimal.NullDecimal
	AskPx decimal.NullDecimal
	BidSz uint32
	AskSz uint32
	BidCt uint32
	AskCt uint32
}

// Mbp1Msg is a top-of-book update. The consolidated bbo/cbbo/tbbo schemas
// share this layout under their own record types.
type Mbp1Msg struct {
	Hd        RecordHeader
	Price     decimal.NullDecimal
	Size      uint32
	Action    Action
	Side      Side
	Flags     Flags
	Depth     uint8
	TsRecv    uint64
	TsInDelta int32
	Sequence  uint32
	Level     BidAskPair
}

// Mbp10Msg is a market-by-price update with ten levels.
type Mbp10Msg struct {
	Hd        RecordHeader
	Price     decimal.NullDecimal
	Size      uint32
	Action    Action
	Side      Side
	Flags     Flags
	Depth     uint8
	TsRecv    uint64
	TsInDelta int32
	Sequence  uint32
	Levels    [10]BidAskPair
}

// MboMsg is a market-by-order event.
type MboMsg struct {
	Hd        RecordHeader
	OrderID   uint64
	Price     decimal.NullDecimal
	Size      uint32
	Flags     Flags
	ChannelID uint8
	Action    Action
	Side      Side
	TsRecv    uint64
	TsInDelta int32
	Sequence  uint32
}

// OhlcvMsg is an aggregate bar. The bar interval is given by the header
// record type.
type OhlcvMsg struct {
	Hd     RecordHeader
	Open   decimal.NullDecimal
	High   decimal.NullDecimal
	Low    decimal.NullDecimal
	Close  decimal.NullDecimal
	Volume uint64
}

// StatMsg is a venue statistic such as settlement price or open interest.
type StatMsg struct {
	Hd           RecordHeader
	TsRecv       uint64
	TsRef        uint64 // Reference time of the statistic
	Price        decimal.NullDecimal
	Quantity     int64 // UndefStatQty when unset
	Sequence     uint32
	TsInDelta    int32
	StatType     uint16
	ChannelID    uint16
	UpdateAction uint8 // 1 = new, 2 = delete
	StatFlags    uint8
}

// -----------------------------------------------------------------------------
// Reference and session data
// -----------------------------------------------------------------------------

// InstrumentDefMsg is a static instrument definition.
type InstrumentDefMsg struct {
	Hd                       RecordHeader
	TsRecv                   uint64
	MinPriceIncrement        decimal.NullDecimal
	DisplayFactor            int64
	Expiration               uint64
	Activation               uint64
	HighLimitPrice           decimal.NullDecimal
	LowLimitPrice            decimal.NullDecimal
	MaxPriceVariation        decimal.NullDecimal
	UnitOfMeasureQty         int64
	MinPriceIncrementAmount  decimal.NullDecimal
	PriceRatio               int64
	StrikePrice              decimal.NullDecimal
	RawInstrumentID          uint64
	LegPrice                 decimal.NullDecimal
	LegDelta                 decimal.NullDecimal
	InstAttribValue          int32
	UnderlyingID             uint32
	MarketDepthImplied       int32
	MarketDepth              int32
	MarketSegmentID          uint32
	MaxTradeVol              uint32
	MinLotSize               int32
	MinLotSizeBlock          int32
	MinLotSizeRoundLot       int32
	MinTradeVol              uint32
	ContractMultiplier       int32
	DecayQuantity            int32
	OriginalContractSize     int32
	LegInstrumentID          uint32
	LegRatioPriceNumerator   int32
	LegRatioPriceDenominator int32
	LegRatioQtyNumerator     int32
	LegRatioQtyDenominator   int32
	LegUnderlyingID          uint32
	ApplID                   int16
	MaturityYear             uint16
	DecayStartDate           uint16
	ChannelID                uint16
	LegCount                 uint16
	LegIndex                 uint16
	Currency                 string
	SettlCurrency            string
	SecSubType               string
	RawSymbol                string
	Group                    string
	Exchange                 string
	Asset                    string
	CFI                      string
	SecurityType             string
	UnitOfMeasure            string
	Underlying               string
	StrikePriceCurrency      string
	LegRawSymbol             string
	InstrumentClass          byte
	MatchAlgorithm           byte
	MainFraction             uint8
	PriceDisplayFormat       uint8
	SubFraction              uint8
	UnderlyingProduct        uint8
	SecurityUpdateAction     byte // 'A' add, 'M' modify, 'D' delete
	MaturityMonth            uint8
	MaturityDay              uint8
	MaturityWeek             uint8
	UserDefinedInstrument    byte
	ContractMultiplierUnit   int8
	FlowScheduleType         int8
	TickRule                 uint8
	LegInstrumentClass       byte
	LegSide                  Side
}

// StatusMsg is a trading session state change.
type StatusMsg struct {
	Hd                    RecordHeader
	TsRecv                uint64
	Action                uint16
	Reason                uint16
	TradingEvent          uint16
	IsTrading             TriState
	IsQuoting             TriState
	IsShortSellRestricted TriState
}

// SymbolMappingMsg maps an input symbol to the instrument id it resolved to
// over an interval.
type SymbolMappingMsg struct {
	Hd             RecordHeader
	STypeIn        SType
	STypeInSymbol  string
	STypeOut       SType
	STypeOutSymbol string
	StartTs        uint64
	EndTs          uint64
}

// SystemCode values carried by SystemMsg.
const (
	SystemCodeHeartbeat         uint8 = 0
	SystemCodeSubscriptionAck   uint8 = 1
	SystemCodeSlowReaderWarning uint8 = 2
	SystemCodeReplayCompleted   uint8 = 3
	SystemCodeEndOfInterval     uint8 = 4
	SystemCodeUnset             uint8 = 255
)

// SystemMsg is a non-error text message from the gateway, including
// heartbeats.
type SystemMsg struct {
	Hd   RecordHeader
	Msg  string
	Code uint8
}

// IsHeartbeat reports whether the message is a gateway heartbeat.
func (m *SystemMsg) IsHeartbeat() bool {
	if m.Code == SystemCodeUnset {
		return m.Msg == "Heartbeat"
	}
	return m.Code == SystemCodeHeartbeat
}

// ErrorMsg is an error reported in-band by the gateway.
type ErrorMsg struct {
	Hd     RecordHeader
	Err    string
	Code   uint8
	IsLast bool
}

func (m *TradeMsg) Header() RecordHeader         { return m.Hd }
func (m *Mbp1Msg) Header() RecordHeader          { return m.Hd }
func (m *Mbp10Msg) Header() RecordHeader         { return m.Hd }
func (m *MboMsg) Header() RecordHeader           { return m.Hd }
func (m *OhlcvMsg) Header() RecordHeader         { return m.Hd }
func (m *StatMsg) Header() RecordHeader          { return m.Hd }
func (m *InstrumentDefMsg) Header() RecordHeader { return m.Hd }
func (m *StatusMsg) Header() RecordHeader        { return m.Hd }
func (m *SymbolMappingMsg) Header() RecordHeader { return m.Hd }
func (m *SystemMsg) Header() RecordHeader        { return m.Hd }
func (m *ErrorMsg) Header() RecordHeader         { return m.Hd }

func (*TradeMsg) isRecord()         {}
func (*Mbp1Msg) isRecord()          {}
func (*Mbp10Msg) isRecord()         {}
func (*MboMsg) isRecord()           {}
func (*OhlcvMsg) isRecord()         {}
func (*StatMsg) isRecord()          {}
func (*InstrumentDefMsg) isRecord() {}
func (*StatusMsg) isRecord()        {}
func (*SymbolMappingMsg) isRecord() {}
func (*SystemMsg) isRecord()        {}
func (*ErrorMsg) isRecord()         {}
