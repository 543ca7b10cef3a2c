package dbn

import (
	"encoding/binary"
	"fmt"
)

// Encode serializes a record to its DBN wire form. The header length is
// always recomputed; a header record type that does not belong to the
// record's layout is replaced with the layout's canonical type.
func Encode(r Record) ([]byte, error) {
	switch m := r.(type) {
	case *TradeMsg:
		w := tradeToWire(m)
		w.Hd = fixHeader(m.Hd, RTypeMbp0, func(t RType) bool { return t == RTypeMbp0 })
		return encodeWire(&w)
	case *Mbp1Msg:
		w := mbp1Wire{
			Trade: tradeToWire(&TradeMsg{
				Price: m.Price, Size: m.Size, Action: m.Action, Side: m.Side, Flags: m.Flags,
				Depth: m.Depth, TsRecv: m.TsRecv, TsInDelta: m.TsInDelta, Sequence: m.Sequence,
			}),
			Level: pairToWire(m.Level),
		}
		w.Trade.Hd = fixHeader(m.Hd, RTypeMbp1, RType.IsMbp1Layout)
		return encodeWire(&w)
	case *Mbp10Msg:
		w := mbp10Wire{
			Trade: tradeToWire(&TradeMsg{
				Price: m.Price, Size: m.Size, Action: m.Action, Side: m.Side, Flags: m.Flags,
				Depth: m.Depth, TsRecv: m.TsRecv, TsInDelta: m.TsInDelta, Sequence: m.Sequence,
			}),
		}
		for i := range m.Levels {
			w.Levels[i] = pairToWire(m.Levels[i])
		}
		w.Trade.Hd = fixHeader(m.Hd, RTypeMbp10, func(t RType) bool { return t == RTypeMbp10 })
		return encodeWire(&w)
	case *MboMsg:
		w := mboWire{
			Hd:        fixHeader(m.Hd, RTypeMbo, func(t RType) bool { return t == RTypeMbo }),
			OrderID:   m.OrderID,
			Price:     PriceToFixed(m.Price),
			Size:      m.Size,
			Flags:     uint8(m.Flags),
			ChannelID: m.ChannelID,
			Action:    byte(m.Action),
			Side:      byte(m.Side),
			TsRecv:    m.TsRecv,
			TsInDelta: m.TsInDelta,
			Sequence:  m.Sequence,
		}
		return encodeWire(&w)
	case *OhlcvMsg:
		w := ohlcvWire{
			Hd:     fixHeader(m.Hd, RTypeOhlcv1S, RType.IsOhlcv),
			Open:   PriceToFixed(m.Open),
			High:   PriceToFixed(m.High),
			Low:    PriceToFixed(m.Low),
			Close:  PriceToFixed(m.Close),
			Volume: m.Volume,
		}
		return encodeWire(&w)
	case *StatusMsg:
		w := statusWire{
			Hd:                    fixHeader(m.Hd, RTypeStatus, func(t RType) bool { return t == RTypeStatus }),
			TsRecv:                m.TsRecv,
			Action:                m.Action,
			Reason:                m.Reason,
			TradingEvent:          m.TradingEvent,
			IsTrading:             byte(m.IsTrading),
			IsQuoting:             byte(m.IsQuoting),
			IsShortSellRestricted: byte(m.IsShortSellRestricted),
		}
		return encodeWire(&w)
	case *SymbolMappingMsg:
		w := symbolMappingWire{
			Hd:       fixHeader(m.Hd, RTypeSymbolMapping, func(t RType) bool { return t == RTypeSymbolMapping }),
			STypeIn:  uint8(m.STypeIn),
			STypeOut: uint8(m.STypeOut),
			StartTs:  m.StartTs,
			EndTs:    m.EndTs,
		}
		putCString(w.STypeInSymbol[:], m.STypeInSymbol)
		putCString(w.STypeOutSymbol[:], m.STypeOutSymbol)
		return encodeWire(&w)
	case *SystemMsg:
		w := systemWire{
			Hd:   fixHeader(m.Hd, RTypeSystem, func(t RType) bool { return t == RTypeSystem }),
			Code: m.Code,
		}
		putCString(w.Msg[:], m.Msg)
		return encodeWire(&w)
	case *ErrorMsg:
		w := errorWire{
			Hd:   fixHeader(m.Hd, RTypeError, func(t RType) bool { return t == RTypeError }),
			Code: m.Code,
		}
		if m.IsLast {
			w.IsLast = 1
		}
		putCString(w.Err[:], m.Err)
		return encodeWire(&w)
	case *StatMsg:
		w := statWire{
			Hd:           fixHeader(m.Hd, RTypeStatistics, func(t RType) bool { return t == RTypeStatistics }),
			TsRecv:       m.TsRecv,
			TsRef:        m.TsRef,
			Price:        PriceToFixed(m.Price),
			Quantity:     m.Quantity,
			Sequence:     m.Sequence,
			TsInDelta:    m.TsInDelta,
			StatType:     m.StatType,
			ChannelID:    m.ChannelID,
			UpdateAction: m.UpdateAction,
			StatFlags:    m.StatFlags,
		}
		return encodeWire(&w)
	case *InstrumentDefMsg:
		w := instrumentDefToWire(m)
		return encodeWire(&w)
	}
	return nil, fmt.Errorf("encode: unsupported record %T", r)
}

func encodeWire[W any](w *W) ([]byte, error) {
	buf, err := binary.Append(nil, binary.LittleEndian, w)
	if err != nil {
		return nil, fmt.Errorf("encode wire: %w", err)
	}
	buf[0] = uint8(len(buf) / 4)
	return buf, nil
}

func fixHeader(hd RecordHeader, canonical RType, valid func(RType) bool) RecordHeader {
	if !valid(hd.RType) {
		hd.RType = canonical
	}
	return hd
}

func tradeToWire(m *TradeMsg) tradeWire {
	return tradeWire{
		Hd:        m.Hd,
		Price:     PriceToFixed(m.Price),
		Size:      m.Size,
		Action:    byte(m.Action),
		Side:      byte(m.Side),
		Flags:     uint8(m.Flags),
		Depth:     m.Depth,
		TsRecv:    m.TsRecv,
		TsInDelta: m.TsInDelta,
		Sequence:  m.Sequence,
	}
}

func instrumentDefToWire(m *InstrumentDefMsg) instrumentDefWire {
	w := instrumentDefWire{
		Hd:                       fixHeader(m.Hd, RTypeInstrumentDef, func(t RType) bool { return t == RTypeInstrumentDef }),
		TsRecv:                   m.TsRecv,
		MinPriceIncrement:        PriceToFixed(m.MinPriceIncrement),
		DisplayFactor:            m.DisplayFactor,
		Expiration:               m.Expiration,
		Activation:               m.Activation,
		HighLimitPrice:           PriceToFixed(m.HighLimitPrice),
		LowLimitPrice:            PriceToFixed(m.LowLimitPrice),
		MaxPriceVariation:        PriceToFixed(m.MaxPriceVariation),
		UnitOfMeasureQty:         m.UnitOfMeasureQty,
		MinPriceIncrementAmount:  PriceToFixed(m.MinPriceIncrementAmount),
		PriceRatio:               m.PriceRatio,
		StrikePrice:              PriceToFixed(m.StrikePrice),
		RawInstrumentID:          m.RawInstrumentID,
		LegPrice:                 PriceToFixed(m.LegPrice),
		LegDelta:                 PriceToFixed(m.LegDelta),
		InstAttribValue:          m.InstAttribValue,
		UnderlyingID:             m.UnderlyingID,
		MarketDepthImplied:       m.MarketDepthImplied,
		MarketDepth:              m.MarketDepth,
		MarketSegmentID:          m.MarketSegmentID,
		MaxTradeVol:              m.MaxTradeVol,
		MinLotSize:               m.MinLotSize,
		MinLotSizeBlock:          m.MinLotSizeBlock,
		MinLotSizeRoundLot:       m.MinLotSizeRoundLot,
		MinTradeVol:              m.MinTradeVol,
		ContractMultiplier:       m.ContractMultiplier,
		DecayQuantity:            m.DecayQuantity,
		OriginalContractSize:     m.OriginalContractSize,
		LegInstrumentID:          m.LegInstrumentID,
		LegRatioPriceNumerator:   m.LegRatioPriceNumerator,
		LegRatioPriceDenominator: m.LegRatioPriceDenominator,
		LegRatioQtyNumerator:     m.LegRatioQtyNumerator,
		LegRatioQtyDenominator:   m.LegRatioQtyDenominator,
		LegUnderlyingID:          m.LegUnderlyingID,
		ApplID:                   m.ApplID,
		MaturityYear:             m.MaturityYear,
		DecayStartDate:           m.DecayStartDate,
		ChannelID:                m.ChannelID,
		LegCount:                 m.LegCount,
		LegIndex:                 m.LegIndex,
		InstrumentClass:          m.InstrumentClass,
		MatchAlgorithm:           m.MatchAlgorithm,
		MainFraction:             m.MainFraction,
		PriceDisplayFormat:       m.PriceDisplayFormat,
		SubFraction:              m.SubFraction,
		UnderlyingProduct:        m.UnderlyingProduct,
		SecurityUpdateAction:     m.SecurityUpdateAction,
		MaturityMonth:            m.MaturityMonth,
		MaturityDay:              m.MaturityDay,
		MaturityWeek:             m.MaturityWeek,
		UserDefinedInstrument:    m.UserDefinedInstrument,
		ContractMultiplierUnit:   m.ContractMultiplierUnit,
		FlowScheduleType:         m.FlowScheduleType,
		TickRule:                 m.TickRule,
		LegInstrumentClass:       m.LegInstrumentClass,
		LegSide:                  byte(m.LegSide),
	}
	putCString(w.Currency[:], m.Currency)
	putCString(w.SettlCurrency[:], m.SettlCurrency)
	putCString(w.SecSubType[:], m.SecSubType)
	putCString(w.RawSymbol[:], m.RawSymbol)
	putCString(w.Group[:], m.Group)
	putCString(w.Exchange[:], m.Exchange)
	putCString(w.Asset[:], m.Asset)
	putCString(w.CFI[:], m.CFI)
	putCString(w.SecurityType[:], m.SecurityType)
	putCString(w.UnitOfMeasure[:], m.UnitOfMeasure)
	putCString(w.Underlying[:], m.Underlying)
	putCString(w.StrikePriceCurrency[:], m.StrikePriceCurrency)
	putCString(w.LegRawSymbol[:], m.LegRawSymbol)
	return w
}
