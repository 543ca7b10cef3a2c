// Package symbology resolves instrument ids to symbols for a live session.
package symbology

import (
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/rickgao/dbn-live/internal/dbn"
)

// Instrument is what the session knows about one instrument id.
type Instrument struct {
	ID         uint32
	Symbol     string // stype_out symbol from mappings, else raw symbol
	RawSymbol  string // from the instrument definition
	Exchange   string
	Asset      string
	Class      byte
	Expiration time.Time
	UpdatedAt  time.Time // ts_event of the last record applied
}

// Map is a thread-safe instrument_id → Instrument table fed by symbol
// mapping and definition records.
type Map struct {
	mu          sync.RWMutex
	instruments map[uint32]*Instrument
}

// NewMap creates an empty map.
func NewMap() *Map {
	return &Map{instruments: make(map[uint32]*Instrument)}
}

// Symbol returns the symbol for id.
func (m *Map) Symbol(id uint32) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	inst, ok := m.instruments[id]
	if !ok || inst.Symbol == "" {
		return "", false
	}
	return inst.Symbol, true
}

// Instrument returns a copy of the entry for id.
func (m *Map) Instrument(id uint32) (Instrument, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	inst, ok := m.instruments[id]
	if !ok {
		return Instrument{}, false
	}
	return *inst, true
}

// Len returns the number of known instruments.
func (m *Map) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.instruments)
}

// Instruments returns a copy of every entry ordered by id.
func (m *Map) Instruments() []Instrument {
	m.mu.RLock()
	result := make([]Instrument, 0, len(m.instruments))
	for _, inst := range m.instruments {
		result = append(result, *inst)
	}
	m.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// ApplyRecord updates the map from symbol mapping and instrument
// definition records. It reports whether rec was one of those.
func (m *Map) ApplyRecord(rec dbn.Record) bool {
	switch r := rec.(type) {
	case *dbn.SymbolMappingMsg:
		m.mu.Lock()
		defer m.mu.Unlock()

		inst := m.entryLocked(r.Hd.InstrumentID)
		inst.Symbol = mappedSymbol(r)
		inst.UpdatedAt = dbn.NanosToTime(r.Hd.TsEvent)
		return true

	case *dbn.InstrumentDefMsg:
		m.mu.Lock()
		defer m.mu.Unlock()

		inst := m.entryLocked(r.Hd.InstrumentID)
		inst.RawSymbol = r.RawSymbol
		inst.Exchange = r.Exchange
		inst.Asset = r.Asset
		inst.Class = r.InstrumentClass
		inst.Expiration = dbn.NanosToTime(r.Expiration)
		inst.UpdatedAt = dbn.NanosToTime(r.Hd.TsEvent)
		if inst.Symbol == "" {
			inst.Symbol = r.RawSymbol
		}
		return true
	}
	return false
}

// mappedSymbol picks the human-readable side of a mapping. When the output
// symbology is instrument ids the input symbol is the useful one.
func mappedSymbol(r *dbn.SymbolMappingMsg) string {
	if r.STypeOut == dbn.STypeInstrumentID || r.STypeOutSymbol == "" {
		return r.STypeInSymbol
	}
	return r.STypeOutSymbol
}

// ApplyMetadata loads the session metadata's symbol mappings, using the
// interval covering at if there is one and the latest interval otherwise.
// It returns the number of instruments mapped.
func (m *Map) ApplyMetadata(md *dbn.Metadata, at time.Time) int {
	if md == nil || md.STypeOut != dbn.STypeInstrumentID {
		return 0
	}
	day := at.UTC().Format(time.DateOnly)

	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, mapping := range md.Mappings {
		iv, ok := pickInterval(mapping.Intervals, day)
		if !ok {
			continue
		}
		id, err := strconv.ParseUint(iv.Symbol, 10, 32)
		if err != nil {
			continue
		}
		inst := m.entryLocked(uint32(id))
		inst.Symbol = mapping.RawSymbol
		n++
	}
	return n
}

func pickInterval(intervals []dbn.MappingInterval, day string) (dbn.MappingInterval, bool) {
	var latest dbn.MappingInterval
	found := false
	for _, iv := range intervals {
		if iv.Symbol == "" {
			continue
		}
		if iv.StartDate <= day && day < iv.EndDate {
			return iv, true
		}
		if !found || iv.StartDate > latest.StartDate {
			latest = iv
			found = true
		}
	}
	return latest, found
}

func (m *Map) entryLocked(id uint32) *Instrument {
	inst, ok := m.instruments[id]
	if !ok {
		inst = &Instrument{ID: id}
		m.instruments[id] = inst
	}
	return inst
}
