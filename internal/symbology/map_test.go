package symbology

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/dbn-live/internal/dbn"
)

func mapping(id uint32, in, out string, stypeOut dbn.SType) *dbn.SymbolMappingMsg {
	return &dbn.SymbolMappingMsg{
		Hd:             dbn.RecordHeader{RType: dbn.RTypeSymbolMapping, InstrumentID: id, TsEvent: 1717400000000000000},
		STypeIn:        dbn.STypeRawSymbol,
		STypeInSymbol:  in,
		STypeOut:       stypeOut,
		STypeOutSymbol: out,
	}
}

func TestMap_ApplySymbolMapping(t *testing.T) {
	m := NewMap()

	assert.True(t, m.ApplyRecord(mapping(5602, "ESZ4", "5602", dbn.STypeInstrumentID)))
	assert.True(t, m.ApplyRecord(mapping(42, "ES.c.0", "ESZ4", dbn.STypeRawSymbol)))

	sym, ok := m.Symbol(5602)
	require.True(t, ok)
	assert.Equal(t, "ESZ4", sym)

	sym, ok = m.Symbol(42)
	require.True(t, ok)
	assert.Equal(t, "ESZ4", sym)

	_, ok = m.Symbol(7)
	assert.False(t, ok)
	assert.Equal(t, 2, m.Len())
}

func TestMap_ApplyDefinition(t *testing.T) {
	m := NewMap()
	def := &dbn.InstrumentDefMsg{
		Hd:              dbn.RecordHeader{RType: dbn.RTypeInstrumentDef, InstrumentID: 5602, TsEvent: 1717400000000000000},
		RawSymbol:       "ESZ4",
		Exchange:        "XCME",
		Asset:           "ES",
		InstrumentClass: 'F',
		Expiration:      1734705000000000000,
	}
	require.True(t, m.ApplyRecord(def))

	inst, ok := m.Instrument(5602)
	require.True(t, ok)
	assert.Equal(t, "ESZ4", inst.Symbol)
	assert.Equal(t, "XCME", inst.Exchange)
	assert.Equal(t, byte('F'), inst.Class)
	assert.Equal(t, time.Unix(0, 1734705000000000000).UTC(), inst.Expiration)

	// A later mapping overrides the symbol but keeps the definition.
	m.ApplyRecord(mapping(5602, "ES.FUT", "ESZ4-front", dbn.STypeRawSymbol))
	inst, _ = m.Instrument(5602)
	assert.Equal(t, "ESZ4-front", inst.Symbol)
	assert.Equal(t, "ESZ4", inst.RawSymbol)
}

func TestMap_IgnoresOtherRecords(t *testing.T) {
	m := NewMap()
	assert.False(t, m.ApplyRecord(&dbn.TradeMsg{Hd: dbn.RecordHeader{InstrumentID: 1}}))
	assert.Equal(t, 0, m.Len())
}

func TestMap_ApplyMetadata(t *testing.T) {
	md := &dbn.Metadata{
		Dataset:  "GLBX.MDP3",
		STypeOut: dbn.STypeInstrumentID,
		Mappings: []dbn.SymbolMapping{
			{RawSymbol: "ESZ4", Intervals: []dbn.MappingInterval{
				{StartDate: "2024-06-01", EndDate: "2024-06-03", Symbol: "1111"},
				{StartDate: "2024-06-03", EndDate: "2024-06-04", Symbol: "5602"},
			}},
			{RawSymbol: "NQZ4", Intervals: []dbn.MappingInterval{
				{StartDate: "2024-05-01", EndDate: "2024-05-02", Symbol: "7777"},
			}},
			{RawSymbol: "BAD", Intervals: []dbn.MappingInterval{
				{StartDate: "2024-06-03", EndDate: "2024-06-04", Symbol: "not-a-number"},
			}},
		},
	}

	m := NewMap()
	n := m.ApplyMetadata(md, time.Date(2024, 6, 3, 14, 0, 0, 0, time.UTC))
	assert.Equal(t, 2, n)

	sym, ok := m.Symbol(5602)
	require.True(t, ok)
	assert.Equal(t, "ESZ4", sym)
	_, ok = m.Symbol(1111)
	assert.False(t, ok)

	// No interval covers the day, so the latest one applies.
	sym, ok = m.Symbol(7777)
	require.True(t, ok)
	assert.Equal(t, "NQZ4", sym)

	md.STypeOut = dbn.STypeRawSymbol
	assert.Equal(t, 0, NewMap().ApplyMetadata(md, time.Now()))
}

func TestMap_Instruments(t *testing.T) {
	m := NewMap()
	for _, id := range []uint32{30, 10, 20} {
		m.ApplyRecord(mapping(id, fmt.Sprintf("S%d", id), "", dbn.STypeInstrumentID))
	}
	got := m.Instruments()
	require.Len(t, got, 3)
	assert.Equal(t, uint32(10), got[0].ID)
	assert.Equal(t, uint32(30), got[2].ID)
}

func TestMap_ConcurrentAccess(t *testing.T) {
	m := NewMap()
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(2)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				id := uint32(w*1000 + i)
				m.ApplyRecord(mapping(id, fmt.Sprintf("S%d", id), "", dbn.STypeInstrumentID))
			}
		}(w)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				m.Symbol(uint32(i))
				m.Len()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 800, m.Len())
}
