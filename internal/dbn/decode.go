package dbn

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Fixed wire sizes in bytes, header included.
const (
	TradeMsgSize         = 48
	Mbp1MsgSize          = 80
	Mbp10MsgSize         = 368
	MboMsgSize           = 56
	OhlcvMsgSize         = 56
	StatusMsgSize        = 40
	InstrumentDefMsgSize = 520
	ErrorMsgSize         = 320
	SymbolMappingMsgSize = 176
	SystemMsgSize        = 320
	StatMsgSize          = 80
)

// Errors
var (
	ErrUnknownType    = errors.New("unknown record type")
	ErrLengthMismatch = errors.New("record length mismatch")
	ErrRTypeMismatch  = errors.New("record type mismatch")
)

// DecodeError describes a record that could not be decoded.
type DecodeError struct {
	Err   error // ErrUnknownType, ErrLengthMismatch or ErrRTypeMismatch
	RType RType
	Want  int
	Got   int
}

func (e *DecodeError) Error() string {
	switch {
	case errors.Is(e.Err, ErrLengthMismatch):
		return fmt.Sprintf("decode %s: %v: want %d bytes, got %d", e.RType, e.Err, e.Want, e.Got)
	case errors.Is(e.Err, ErrRTypeMismatch):
		return fmt.Sprintf("decode %s: %v: header carries 0x%02x", e.RType, e.Err, e.Got)
	}
	return fmt.Sprintf("decode: %v 0x%02x", e.Err, uint8(e.RType))
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Size returns the fixed wire size for a record type.
func Size(rtype RType) (int, bool) {
	switch {
	case rtype == RTypeMbp0:
		return TradeMsgSize, true
	case rtype.IsMbp1Layout():
		return Mbp1MsgSize, true
	case rtype == RTypeMbp10:
		return Mbp10MsgSize, true
	case rtype == RTypeMbo:
		return MboMsgSize, true
	case rtype.IsOhlcv():
		return OhlcvMsgSize, true
	case rtype == RTypeStatus:
		return StatusMsgSize, true
	case rtype == RTypeInstrumentDef:
		return InstrumentDefMsgSize, true
	case rtype == RTypeError:
		return ErrorMsgSize, true
	case rtype == RTypeSymbolMapping:
		return SymbolMappingMsgSize, true
	case rtype == RTypeSystem:
		return SystemMsgSize, true
	case rtype == RTypeStatistics:
		return StatMsgSize, true
	}
	return 0, false
}

// Decode maps a raw record buffer and its out-of-band type tag onto a
// Record. The buffer must be exactly the fixed size for the tag and its
// header must declare the same length and type. Decode does not retain data.
func Decode(data []byte, rtype RType) (Record, error) {
	want, ok := Size(rtype)
	if !ok {
		return nil, &DecodeError{Err: ErrUnknownType, RType: rtype}
	}
	if len(data) != want {
		return nil, &DecodeError{Err: ErrLengthMismatch, RType: rtype, Want: want, Got: len(data)}
	}
	if declared := int(data[0]) * 4; declared != want {
		return nil, &DecodeError{Err: ErrLengthMismatch, RType: rtype, Want: want, Got: declared}
	}
	if RType(data[1]) != rtype {
		return nil, &DecodeError{Err: ErrRTypeMismatch, RType: rtype, Got: int(data[1])}
	}

	switch {
	case rtype == RTypeMbp0:
		return decodeWire(data, (*tradeWire).toRecord)
	case rtype.IsMbp1Layout():
		return decodeWire(data, (*mbp1Wire).toRecord)
	case rtype == RTypeMbp10:
		return decodeWire(data, (*mbp10Wire).toRecord)
	case rtype == RTypeMbo:
		return decodeWire(data, (*mboWire).toRecord)
	case rtype.IsOhlcv():
		return decodeWire(data, (*ohlcvWire).toRecord)
	case rtype == RTypeStatus:
		return decodeWire(data, (*statusWire).toRecord)
	case rtype == RTypeInstrumentDef:
		return decodeWire(data, (*instrumentDefWire).toRecord)
	case rtype == RTypeError:
		return decodeWire(data, (*errorWire).toRecord)
	case rtype == RTypeSymbolMapping:
		return decodeWire(data, (*symbolMappingWire).toRecord)
	case rtype == RTypeSystem:
		return decodeWire(data, (*systemWire).toRecord)
	default:
		return decodeWire(data, (*statWire).toRecord)
	}
}

func decodeWire[W any, R Record](data []byte, convert func(*W) R) (Record, error) {
	var w W
	if _, err := binary.Decode(data, binary.LittleEndian, &w); err != nil {
		return nil, fmt.Errorf("decode wire: %w", err)
	}
	return convert(&w), nil
}
