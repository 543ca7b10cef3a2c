package dbn

// Wire types mirror the packed little-endian C layouts field for field so
// that encoding/binary reads them without padding. Reserved fields use the
// blank identifier so they are skipped on read and zeroed on write.

type bidAskWire struct {
	BidPx int64
	AskPx int64
	BidSz uint32
	AskSz uint32
	BidCt uint32
	AskCt uint32
}

type tradeWire struct {
	Hd        RecordHeader
	Price     int64
	Size      uint32
	Action    byte
	Side      byte
	Flags     uint8
	Depth     uint8
	TsRecv    uint64
	TsInDelta int32
	Sequence  uint32
}

type mbp1Wire struct {
	Trade tradeWire
	Level bidAskWire
}

type mbp10Wire struct {
	Trade  tradeWire
	Levels [10]bidAskWire
}

type mboWire struct {
	Hd        RecordHeader
	OrderID   uint64
	Price     int64
	Size      uint32
	Flags     uint8
	ChannelID uint8
	Action    byte
	Side      byte
	TsRecv    uint64
	TsInDelta int32
	Sequence  uint32
}

type ohlcvWire struct {
	Hd     RecordHeader
	Open   int64
	High   int64
	Low    int64
	Close  int64
	Volume uint64
}

type statusWire struct {
	Hd                    RecordHeader
	TsRecv                uint64
	Action                uint16
	Reason                uint16
	TradingEvent          uint16
	IsTrading             byte
	IsQuoting             byte
	IsShortSellRestricted byte
	_                     [7]byte
}

type symbolMappingWire struct {
	Hd             RecordHeader
	STypeIn        uint8
	STypeInSymbol  [symbolCstrLen]byte
	STypeOut       uint8
	STypeOutSymbol [symbolCstrLen]byte
	StartTs        uint64
	EndTs          uint64
}

type systemWire struct {
	Hd   RecordHeader
	Msg  [303]byte
	Code uint8
}

type errorWire struct {
	Hd     RecordHeader
	Err    [302]byte
	Code   uint8
	IsLast uint8
}

type statWire struct {
	Hd           RecordHeader
	TsRecv       uint64
	TsRef        uint64
	Price        int64
	Quantity     int64
	Sequence     uint32
	TsInDelta    int32
	StatType     uint16
	ChannelID    uint16
	UpdateAction uint8
	StatFlags    uint8
	_            [18]byte
}

// instrumentDefWire is the 520-byte definition layout. Offsets are noted for
// the fields that are most often inspected by hand.
type instrumentDefWire struct {
	Hd                       RecordHeader // 0
	TsRecv                   uint64       // 16
	MinPriceIncrement        int64        // 24
	DisplayFactor            int64        // 32
	Expiration               uint64       // 40
	Activation               uint64       // 48
	HighLimitPrice           int64        // 56
	LowLimitPrice            int64        // 64
	MaxPriceVariation        int64        // 72
	UnitOfMeasureQty         int64        // 80
	MinPriceIncrementAmount  int64        // 88
	PriceRatio               int64        // 96
	StrikePrice              int64        // 104
	RawInstrumentID          uint64       // 112
	LegPrice                 int64        // 120
	LegDelta                 int64        // 128
	InstAttribValue          int32        // 136
	UnderlyingID             uint32       // 140
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
	Currency                 [4]byte             // 224
	SettlCurrency            [4]byte             // 228
	SecSubType               [6]byte             // 232
	RawSymbol                [symbolCstrLen]byte // 238
	Group                    [21]byte            // 309
	Exchange                 [5]byte             // 330
	Asset                    [11]byte            // 335
	CFI                      [7]byte             // 346
	SecurityType             [7]byte             // 353
	UnitOfMeasure            [31]byte            // 360
	Underlying               [21]byte            // 391
	StrikePriceCurrency      [4]byte             // 412
	LegRawSymbol             [symbolCstrLen]byte // 416
	InstrumentClass          byte                // 487
	MatchAlgorithm           byte
	MainFraction             uint8
	PriceDisplayFormat       uint8
	SubFraction              uint8
	UnderlyingProduct        uint8
	SecurityUpdateAction     byte
	MaturityMonth            uint8
	MaturityDay              uint8
	MaturityWeek             uint8
	UserDefinedInstrument    byte
	ContractMultiplierUnit   int8
	FlowScheduleType         int8
	TickRule                 uint8
	LegInstrumentClass       byte
	LegSide                  byte
	_                        [17]byte // 503
}

// symbolCstrLen is the fixed symbol field width in DBN version 2 and later.
const symbolCstrLen = 71

// -----------------------------------------------------------------------------
// Wire -> record
// -----------------------------------------------------------------------------

func (w *bidAskWire) toPair() BidAskPair {
	return BidAskPair{
		BidPx: PriceFromFixed(w.BidPx),
		AskPx: PriceFromFixed(w.AskPx),
		BidSz: w.BidSz,
		AskSz: w.AskSz,
		BidCt: w.BidCt,
		AskCt: w.AskCt,
	}
}

func pairToWire(p BidAskPair) bidAskWire {
	return bidAskWire{
		BidPx: PriceToFixed(p.BidPx),
		AskPx: PriceToFixed(p.AskPx),
		BidSz: p.BidSz,
		AskSz: p.AskSz,
		BidCt: p.BidCt,
		AskCt: p.AskCt,
	}
}

func (w *tradeWire) toRecord() *TradeMsg {
	return &TradeMsg{
		Hd:        w.Hd,
		Price:     PriceFromFixed(w.Price),
		Size:      w.Size,
		Action:    Action(w.Action),
		Side:      Side(w.Side),
		Flags:     Flags(w.Flags),
		Depth:     w.Depth,
		TsRecv:    w.TsRecv,
		TsInDelta: w.TsInDelta,
		Sequence:  w.Sequence,
	}
}

func (w *mbp1Wire) toRecord() *Mbp1Msg {
	t := w.Trade.toRecord()
	return &Mbp1Msg{
		Hd:        t.Hd,
		Price:     t.Price,
		Size:      t.Size,
		Action:    t.Action,
		Side:      t.Side,
		Flags:     t.Flags,
		Depth:     t.Depth,
		TsRecv:    t.TsRecv,
		TsInDelta: t.TsInDelta,
		Sequence:  t.Sequence,
		Level:     w.Level.toPair(),
	}
}

func (w *mbp10Wire) toRecord() *Mbp10Msg {
	t := w.Trade.toRecord()
	m := &Mbp10Msg{
		Hd:        t.Hd,
		Price:     t.Price,
		Size:      t.Size,
		Action:    t.Action,
		Side:      t.Side,
		Flags:     t.Flags,
		Depth:     t.Depth,
		TsRecv:    t.TsRecv,
		TsInDelta: t.TsInDelta,
		Sequence:  t.Sequence,
	}
	for i := range w.Levels {
		m.Levels[i] = w.Levels[i].toPair()
	}
	return m
}

func (w *mboWire) toRecord() *MboMsg {
	return &MboMsg{
		Hd:        w.Hd,
		OrderID:   w.OrderID,
		Price:     PriceFromFixed(w.Price),
		Size:      w.Size,
		Flags:     Flags(w.Flags),
		ChannelID: w.ChannelID,
		Action:    Action(w.Action),
		Side:      Side(w.Side),
		TsRecv:    w.TsRecv,
		TsInDelta: w.TsInDelta,
		Sequence:  w.Sequence,
	}
}

func (w *ohlcvWire) toRecord() *OhlcvMsg {
	return &OhlcvMsg{
		Hd:     w.Hd,
		Open:   PriceFromFixed(w.Open),
		High:   PriceFromFixed(w.High),
		Low:    PriceFromFixed(w.Low),
		Close:  PriceFromFixed(w.Close),
		Volume: w.Volume,
	}
}

func (w *statusWire) toRecord() *StatusMsg {
	return &StatusMsg{
		Hd:                    w.Hd,
		TsRecv:                w.TsRecv,
		Action:                w.Action,
		Reason:                w.Reason,
		TradingEvent:          w.TradingEvent,
		IsTrading:             TriState(w.IsTrading),
		IsQuoting:             TriState(w.IsQuoting),
		IsShortSellRestricted: TriState(w.IsShortSellRestricted),
	}
}

func (w *symbolMappingWire) toRecord() *SymbolMappingMsg {
	return &SymbolMappingMsg{
		Hd:             w.Hd,
		STypeIn:        SType(w.STypeIn),
		STypeInSymbol:  cString(w.STypeInSymbol[:]),
		STypeOut:       SType(w.STypeOut),
		STypeOutSymbol: cString(w.STypeOutSymbol[:]),
		StartTs:        w.StartTs,
		EndTs:          w.EndTs,
	}
}

func (w *systemWire) toRecord() *SystemMsg {
	return &SystemMsg{Hd: w.Hd, Msg: cString(w.Msg[:]), Code: w.Code}
}

func (w *errorWire) toRecord() *ErrorMsg {
	return &ErrorMsg{Hd: w.Hd, Err: cString(w.Err[:]), Code: w.Code, IsLast: w.IsLast != 0}
}

func (w *statWire) toRecord() *StatMsg {
	return &StatMsg{
		Hd:           w.Hd,
		TsRecv:       w.TsRecv,
		TsRef:        w.TsRef,
		Price:        PriceFromFixed(w.Price),
		Quantity:     w.Quantity,
		Sequence:     w.Sequence,
		TsInDelta:    w.TsInDelta,
		StatType:     w.StatType,
		ChannelID:    w.ChannelID,
		UpdateAction: w.UpdateAction,
		StatFlags:    w.StatFlags,
	}
}

func (w *instrumentDefWire) toRecord() *InstrumentDefMsg {
	return &InstrumentDefMsg{
		Hd:                       w.Hd,
		TsRecv:                   w.TsRecv,
		MinPriceIncrement:        PriceFromFixed(w.MinPriceIncrement),
		DisplayFactor:            w.DisplayFactor,
		Expiration:               w.Expiration,
		Activation:               w.Activation,
		HighLimitPrice:           PriceFromFixed(w.HighLimitPrice),
		LowLimitPrice:            PriceFromFixed(w.LowLimitPrice),
		MaxPriceVariation:        PriceFromFixed(w.MaxPriceVariation),
		UnitOfMeasureQty:         w.UnitOfMeasureQty,
		MinPriceIncrementAmount:  PriceFromFixed(w.MinPriceIncrementAmount),
		PriceRatio:               w.PriceRatio,
		StrikePrice:              PriceFromFixed(w.StrikePrice),
		RawInstrumentID:          w.RawInstrumentID,
		LegPrice:                 PriceFromFixed(w.LegPrice),
		LegDelta:                 PriceFromFixed(w.LegDelta),
		InstAttribValue:          w.InstAttribValue,
		UnderlyingID:             w.UnderlyingID,
		MarketDepthImplied:       w.MarketDepthImplied,
		MarketDepth:              w.MarketDepth,
		MarketSegmentID:          w.MarketSegmentID,
		MaxTradeVol:              w.MaxTradeVol,
		MinLotSize:               w.MinLotSize,
		MinLotSizeBlock:          w.MinLotSizeBlock,
		MinLotSizeRoundLot:       w.MinLotSizeRoundLot,
		MinTradeVol:              w.MinTradeVol,
		ContractMultiplier:       w.ContractMultiplier,
		DecayQuantity:            w.DecayQuantity,
		OriginalContractSize:     w.OriginalContractSize,
		LegInstrumentID:          w.LegInstrumentID,
		LegRatioPriceNumerator:   w.LegRatioPriceNumerator,
		LegRatioPriceDenominator: w.LegRatioPriceDenominator,
		LegRatioQtyNumerator:     w.LegRatioQtyNumerator,
		LegRatioQtyDenominator:   w.LegRatioQtyDenominator,
		LegUnderlyingID:          w.LegUnderlyingID,
		ApplID:                   w.ApplID,
		MaturityYear:             w.MaturityYear,
		DecayStartDate:           w.DecayStartDate,
		ChannelID:                w.ChannelID,
		LegCount:                 w.LegCount,
		LegIndex:                 w.LegIndex,
		Currency:                 cString(w.Currency[:]),
		SettlCurrency:            cString(w.SettlCurrency[:]),
		SecSubType:               cString(w.SecSubType[:]),
		RawSymbol:                cString(w.RawSymbol[:]),
		Group:                    cString(w.Group[:]),
		Exchange:                 cString(w.Exchange[:]),
		Asset:                    cString(w.Asset[:]),
		CFI:                      cString(w.CFI[:]),
		SecurityType:             cString(w.SecurityType[:]),
		UnitOfMeasure:            cString(w.UnitOfMeasure[:]),
		Underlying:               cString(w.Underlying[:]),
		StrikePriceCurrency:      cString(w.StrikePriceCurrency[:]),
		LegRawSymbol:             cString(w.LegRawSymbol[:]),
		InstrumentClass:          w.InstrumentClass,
		MatchAlgorithm:           w.MatchAlgorithm,
		MainFraction:             w.MainFraction,
		PriceDisplayFormat:       w.PriceDisplayFormat,
		SubFraction:              w.SubFraction,
		UnderlyingProduct:        w.UnderlyingProduct,
		SecurityUpdateAction:     w.SecurityUpdateAction,
		MaturityMonth:            w.MaturityMonth,
		MaturityDay:              w.MaturityDay,
		MaturityWeek:             w.MaturityWeek,
		UserDefinedInstrument:    w.UserDefinedInstrument,
		ContractMultiplierUnit:   w.ContractMultiplierUnit,
		FlowScheduleType:         w.FlowScheduleType,
		TickRule:                 w.TickRule,
		LegInstrumentClass:       w.LegInstrumentClass,
		LegSide:                  Side(w.LegSide),
	}
}
