package dbn

import "fmt"

// RType is the record type tag carried in every record header.
type RType uint8

const (
	RTypeMbp0            RType = 0x00 // trades
	RTypeMbp1            RType = 0x01
	RTypeMbp10           RType = 0x0A
	RTypeOhlcvDeprecated RType = 0x11
	RTypeStatus          RType = 0x12
	RTypeInstrumentDef   RType = 0x13
	RTypeImbalance       RType = 0x14
	RTypeError           RType = 0x15
	RTypeSymbolMapping   RType = 0x16
	RTypeSystem          RType = 0x17
	RTypeStatistics      RType = 0x18
	RTypeOhlcv1S         RType = 0x20
	RTypeOhlcv1M         RType = 0x21
	RTypeOhlcv1H         RType = 0x22
	RTypeOhlcv1D         RType = 0x23
	RTypeOhlcvEod        RType = 0x24
	RTypeMbo             RType = 0xA0
	RTypeCmbp1           RType = 0xB1
	RTypeCbbo1S          RType = 0xC0
	RTypeCbbo1M          RType = 0xC1
	RTypeTcbbo           RType = 0xC2
	RTypeBbo1S           RType = 0xC3
	RTypeBbo1M           RType = 0xC4
)

var rtypeNames = map[RType]string{
	RTypeMbp0:            "mbp-0",
	RTypeMbp1:            "mbp-1",
	RTypeMbp10:           "mbp-10",
	RTypeOhlcvDeprecated: "ohlcv",
	RTypeStatus:          "status",
	RTypeInstrumentDef:   "instrument-def",
	RTypeImbalance:       "imbalance",
	RTypeError:           "error",
	RTypeSymbolMapping:   "symbol-mapping",
	RTypeSystem:          "system",
	RTypeStatistics:      "statistics",
	RTypeOhlcv1S:         "ohlcv-1s",
	RTypeOhlcv1M:         "ohlcv-1m",
	RTypeOhlcv1H:         "ohlcv-1h",
	RTypeOhlcv1D:         "ohlcv-1d",
	RTypeOhlcvEod:        "ohlcv-eod",
	RTypeMbo:             "mbo",
	RTypeCmbp1:           "cmbp-1",
	RTypeCbbo1S:          "cbbo-1s",
	RTypeCbbo1M:          "cbbo-1m",
	RTypeTcbbo:           "tcbbo",
	RTypeBbo1S:           "bbo-1s",
	RTypeBbo1M:           "bbo-1m",
}

// String returns the DBN name of the record type.
func (r RType) String() string {
	if name, ok := rtypeNames[r]; ok {
		return name
	}
	return fmt.Sprintf("rtype(0x%02x)", uint8(r))
}

// IsOhlcv reports whether the record type uses the OHLCV layout.
func (r RType) IsOhlcv() bool {
	return r == RTypeOhlcvDeprecated || (r >= RTypeOhlcv1S && r <= RTypeOhlcvEod)
}

// IsMbp1Layout reports whether the record type shares the top-of-book layout.
func (r RType) IsMbp1Layout() bool {
	switch r {
	case RTypeMbp1, RTypeCmbp1, RTypeCbbo1S, RTypeCbbo1M, RTypeTcbbo, RTypeBbo1S, RTypeBbo1M:
		return true
	}
	return false
}
