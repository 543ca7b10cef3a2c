package dbn

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
)

// UnboundedEnd is the End value of a session without an end bound.
const UnboundedEnd uint64 = math.MaxUint64

// Metadata describes a live session. It is delivered once per start,
// before any record of that session.
type Metadata struct {
	Version       uint8
	Dataset       string
	Schema        *Schema // nil when the session mixes schemas
	Start         uint64  // ns since epoch
	End           uint64  // UnboundedEnd for live sessions
	Limit         uint64
	STypeIn       *SType // nil when mixed
	STypeOut      SType
	TsOut         bool // records carry a trailing gateway send timestamp
	SymbolCstrLen uint16
	Symbols       []string
	Partial       []string
	NotFound      []string
	Mappings      []SymbolMapping
}

// SymbolMapping resolves one raw symbol over a set of date intervals.
type SymbolMapping struct {
	RawSymbol string            `json:"raw_symbol"`
	Intervals []MappingInterval `json:"intervals"`
}

// MappingInterval is one resolution window of a SymbolMapping.
type MappingInterval struct {
	StartDate string `json:"start_date"` // YYYY-MM-DD
	EndDate   string `json:"end_date"`
	Symbol    string `json:"symbol"`
}

// Unbounded reports whether the session has no end bound.
func (m *Metadata) Unbounded() bool {
	return m.End == UnboundedEnd
}

// StartTime returns Start as a time.Time.
func (m *Metadata) StartTime() time.Time {
	return NanosToTime(m.Start)
}

// EndTime returns End as a time.Time and false when the session is
// unbounded.
func (m *Metadata) EndTime() (time.Time, bool) {
	if m.Unbounded() {
		return time.Time{}, false
	}
	return NanosToTime(m.End), true
}

// metadataJSON is the callback payload layout.
type metadataJSON struct {
	Version       uint8           `json:"version"`
	Dataset       *string         `json:"dataset"`
	Schema        *uint16         `json:"schema"`
	Start         uint64          `json:"start"`
	End           uint64          `json:"end"`
	Limit         uint64          `json:"limit"`
	STypeIn       *uint8          `json:"stype_in"`
	STypeOut      *uint8          `json:"stype_out"`
	TsOut         bool            `json:"ts_out"`
	SymbolCstrLen uint16          `json:"symbol_cstr_len"`
	Symbols       []string        `json:"symbols"`
	Partial       []string        `json:"partial"`
	NotFound      []string        `json:"not_found"`
	Mappings      []SymbolMapping `json:"mappings"`
}

// ParseMetadata decodes the metadata JSON delivered by the transport.
func ParseMetadata(data []byte) (*Metadata, error) {
	var raw metadataJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse metadata: %w", err)
	}
	if raw.Dataset == nil {
		return nil, errors.New("parse metadata: dataset is required")
	}
	if raw.STypeOut == nil {
		return nil, errors.New("parse metadata: stype_out is required")
	}

	m := &Metadata{
		Version:       raw.Version,
		Dataset:       *raw.Dataset,
		Start:         raw.Start,
		End:           raw.End,
		Limit:         raw.Limit,
		STypeOut:      SType(*raw.STypeOut),
		TsOut:         raw.TsOut,
		SymbolCstrLen: raw.SymbolCstrLen,
		Symbols:       nonNil(raw.Symbols),
		Partial:       nonNil(raw.Partial),
		NotFound:      nonNil(raw.NotFound),
		Mappings:      raw.Mappings,
	}
	if raw.Schema != nil {
		s := Schema(*raw.Schema)
		m.Schema = &s
	}
	if raw.STypeIn != nil {
		s := SType(*raw.STypeIn)
		m.STypeIn = &s
	}
	return m, nil
}

// MarshalJSON encodes the metadata in the transport layout.
func (m *Metadata) MarshalJSON() ([]byte, error) {
	raw := metadataJSON{
		Version:       m.Version,
		Dataset:       &m.Dataset,
		Start:         m.Start,
		End:           m.End,
		Limit:         m.Limit,
		TsOut:         m.TsOut,
		SymbolCstrLen: m.SymbolCstrLen,
		Symbols:       nonNil(m.Symbols),
		Partial:       nonNil(m.Partial),
		NotFound:      nonNil(m.NotFound),
		Mappings:      m.Mappings,
	}
	out := uint8(m.STypeOut)
	raw.STypeOut = &out
	if m.Schema != nil {
		s := uint16(*m.Schema)
		raw.Schema = &s
	}
	if m.STypeIn != nil {
		s := uint8(*m.STypeIn)
		raw.STypeIn = &s
	}
	return json.Marshal(raw)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
