package dbn

import (
	"bytes"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// Sentinel values for unset fields.
const (
	UndefPrice     int64  = math.MaxInt64
	UndefOrderSize uint32 = math.MaxUint32
	UndefStatQty   int64  = math.MaxInt64
	UndefTimestamp uint64 = math.MaxUint64

	// FixedPriceScale is the denominator of every fixed-point price.
	FixedPriceScale = 1_000_000_000
)

// HeaderSize is the size of RecordHeader on the wire.
const HeaderSize = 16

// RecordHeader is the common prefix of every DBN record.
type RecordHeader struct {
	Length       uint8 // Record length in 4-byte words
	RType        RType
	PublisherID  uint16
	InstrumentID uint32
	TsEvent      uint64 // Matching-engine timestamp (ns since epoch)
}

// Size returns the record length in bytes declared by the header.
func (h RecordHeader) Size() int {
	return int(h.Length) * 4
}

// EventTime returns TsEvent as a time.Time, or the zero time if unset.
func (h RecordHeader) EventTime() time.Time {
	return NanosToTime(h.TsEvent)
}

// NanosToTime converts a DBN timestamp to time.Time. UndefTimestamp maps to
// the zero time.
func NanosToTime(ns uint64) time.Time {
	if ns == UndefTimestamp || ns > math.MaxInt64 {
		return time.Time{}
	}
	return time.Unix(0, int64(ns)).UTC()
}

// PriceFromFixed converts a 1e9-scaled fixed-point price to a decimal.
// UndefPrice yields an invalid NullDecimal.
func PriceFromFixed(raw int64) decimal.NullDecimal {
	if raw == UndefPrice {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(decimal.New(raw, -9))
}

// PriceToFixed converts a decimal price back to DBN fixed point.
// An invalid NullDecimal yields UndefPrice.
func PriceToFixed(p decimal.NullDecimal) int64 {
	if !p.Valid {
		return UndefPrice
	}
	return p.Decimal.Shift(9).Round(0).IntPart()
}

// cString trims a fixed-width field at its first NUL.
func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

// putCString copies s into a fixed-width field, NUL padded. Long values are
// truncated so the final byte is always NUL.
func putCString(dst []byte, s string) {
	clear(dst)
	if len(dst) == 0 {
		return
	}
	copy(dst[:len(dst)-1], s)
}

// -----------------------------------------------------------------------------
// Enumerations
// -----------------------------------------------------------------------------

// Side is the side that initiates an event.
type Side byte

const (
	SideAsk  Side = 'A'
	SideBid  Side = 'B'
	SideNone Side = 'N'
)

// Action is the order event or order book operation.
type Action byte

const (
	ActionModify Action = 'M'
	ActionTrade  Action = 'T'
	ActionFill   Action = 'F'
	ActionCancel Action = 'C'
	ActionAdd    Action = 'A'
	ActionClear  Action = 'R'
	ActionNone   Action = 'N'
)

// Flags is the bit field carried by order book records.
type Flags uint8

const (
	FlagLast         Flags = 1 << 7 // Last record in the event for this instrument
	FlagTOB          Flags = 1 << 6 // Top-of-book message, not an individual order
	FlagSnapshot     Flags = 1 << 5 // Sourced from a replay such as a snapshot server
	FlagMBP          Flags = 1 << 4 // Aggregated price level message
	FlagBadTsRecv    Flags = 1 << 3 // ts_recv inaccurate due to clock or queue issues
	FlagMaybeBadBook Flags = 1 << 2 // Channel gap detected, book may be unrecoverable
)

// IsLast reports whether FlagLast is set.
func (f Flags) IsLast() bool { return f&FlagLast != 0 }

// IsSnapshot reports whether the record came from a snapshot replay.
func (f Flags) IsSnapshot() bool { return f&FlagSnapshot != 0 }

// IsTOB reports whether FlagTOB is set.
func (f Flags) IsTOB() bool { return f&FlagTOB != 0 }

// IsBadTsRecv reports whether FlagBadTsRecv is set.
func (f Flags) IsBadTsRecv() bool { return f&FlagBadTsRecv != 0 }

// MaybeBadBook reports whether FlagMaybeBadBook is set.
func (f Flags) MaybeBadBook() bool { return f&FlagMaybeBadBook != 0 }

// TriState is a boolean that may be unset ('~').
type TriState byte

const (
	TriStateNotAvailable TriState = '~'
	TriStateNo           TriState = 'N'
	TriStateYes          TriState = 'Y'
)

// Bool returns the value and whether it is set.
func (t TriState) Bool() (value, ok bool) {
	switch t {
	case TriStateYes:
		return true, true
	case TriStateNo:
		return false, true
	}
	return false, false
}
