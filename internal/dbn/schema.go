package dbn

import (
	"fmt"
	"strings"
)

// Schema is a record-type family a subscription can request.
type Schema uint16

const (
	SchemaMbo Schema = iota
	SchemaMbp1
	SchemaMbp10
	SchemaTbbo
	SchemaTrades
	SchemaOhlcv1S
	SchemaOhlcv1M
	SchemaOhlcv1H
	SchemaOhlcv1D
	SchemaDefinition
	SchemaStatistics
	SchemaStatus
	SchemaImbalance
	SchemaOhlcvEod
	SchemaCmbp1
	SchemaCbbo1S
	SchemaCbbo1M
	SchemaTcbbo
	SchemaBbo1S
	SchemaBbo1M
)

var schemaNames = [...]string{
	SchemaMbo:        "mbo",
	SchemaMbp1:       "mbp-1",
	SchemaMbp10:      "mbp-10",
	SchemaTbbo:       "tbbo",
	SchemaTrades:     "trades",
	SchemaOhlcv1S:    "ohlcv-1s",
	SchemaOhlcv1M:    "ohlcv-1m",
	SchemaOhlcv1H:    "ohlcv-1h",
	SchemaOhlcv1D:    "ohlcv-1d",
	SchemaDefinition: "definition",
	SchemaStatistics: "statistics",
	SchemaStatus:     "status",
	SchemaImbalance:  "imbalance",
	SchemaOhlcvEod:   "ohlcv-eod",
	SchemaCmbp1:      "cmbp-1",
	SchemaCbbo1S:     "cbbo-1s",
	SchemaCbbo1M:     "cbbo-1m",
	SchemaTcbbo:      "tcbbo",
	SchemaBbo1S:      "bbo-1s",
	SchemaBbo1M:      "bbo-1m",
}

func (s Schema) String() string {
	if int(s) < len(schemaNames) {
		return schemaNames[s]
	}
	return fmt.Sprintf("schema(%d)", uint16(s))
}

// ParseSchema parses a schema name such as "mbp-1" or "ohlcv-1m".
func ParseSchema(name string) (Schema, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for i, s := range schemaNames {
		if s == n {
			return Schema(i), nil
		}
	}
	return 0, fmt.Errorf("unknown schema: %s", name)
}

// MarshalText implements encoding.TextMarshaler.
func (s Schema) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler so schemas can be
// written by name in config files.
func (s *Schema) UnmarshalText(text []byte) error {
	v, err := ParseSchema(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// SType is a symbology type.
type SType uint8

const (
	STypeInstrumentID SType = iota
	STypeRawSymbol
	STypeSmart
	STypeContinuous
	STypeParent
	STypeNasdaqSymbol
	STypeCmsSymbol
	STypeIsin
	STypeUsCode
	STypeBbgCompID
	STypeBbgCompTicker
	STypeFigi
	STypeFigiTicker
)

var stypeNames = [...]string{
	STypeInstrumentID:  "instrument_id",
	STypeRawSymbol:     "raw_symbol",
	STypeSmart:         "smart",
	STypeContinuous:    "continuous",
	STypeParent:        "parent",
	STypeNasdaqSymbol:  "nasdaq_symbol",
	STypeCmsSymbol:     "cms_symbol",
	STypeIsin:          "isin",
	STypeUsCode:        "us_code",
	STypeBbgCompID:     "bbg_comp_id",
	STypeBbgCompTicker: "bbg_comp_ticker",
	STypeFigi:          "figi",
	STypeFigiTicker:    "figi_ticker",
}

func (s SType) String() string {
	if int(s) < len(stypeNames) {
		return stypeNames[s]
	}
	return fmt.Sprintf("stype(%d)", uint8(s))
}

// ParseSType parses a symbology type name such as "raw_symbol".
func ParseSType(name string) (SType, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for i, s := range stypeNames {
		if s == n {
			return SType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown stype: %s", name)
}

// MarshalText implements encoding.TextMarshaler.
func (s SType) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *SType) UnmarshalText(text []byte) error {
	v, err := ParseSType(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}
