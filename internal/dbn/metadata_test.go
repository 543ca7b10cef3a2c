package dbn

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMetadata_Live(t *testing.T) {
	data := []byte(`{
		"version": 3,
		"dataset": "GLBX.MDP3",
		"schema": null,
		"start": 1700000000000000000,
		"end": 18446744073709551615,
		"limit": 0,
		"stype_in": 1,
		"stype_out": 0,
		"ts_out": false,
		"symbol_cstr_len": 71,
		"symbols": ["ESZ4"],
		"partial": [],
		"not_found": ["XXX"],
		"mappings": []
	}`)

	m, err := ParseMetadata(data)
	require.NoError(t, err)

	assert.Equal(t, uint8(3), m.Version)
	assert.Equal(t, "GLBX.MDP3", m.Dataset)
	assert.Nil(t, m.Schema, "mixed schema should be nil")
	assert.True(t, m.Unbounded())
	assert.NotZero(t, m.End)
	_, bounded := m.EndTime()
	assert.False(t, bounded)
	require.NotNil(t, m.STypeIn)
	assert.Equal(t, STypeRawSymbol, *m.STypeIn)
	assert.Equal(t, STypeInstrumentID, m.STypeOut)
	assert.Equal(t, uint16(71), m.SymbolCstrLen)
	assert.Equal(t, []string{"ESZ4"}, m.Symbols)
	assert.Equal(t, []string{"XXX"}, m.NotFound)
	assert.Empty(t, m.Partial)
	assert.Equal(t, int64(1700000000), m.StartTime().Unix())
}

func TestParseMetadata_SchemaAndBoundedEnd(t *testing.T) {
	data := []byte(`{"version":2,"dataset":"XNAS.ITCH","schema":4,"start":1,"end":2,"stype_out":0,
		"mappings":[{"raw_symbol":"AAPL","intervals":[{"start_date":"2024-01-02","end_date":"2024-01-03","symbol":"38"}]}]}`)

	m, err := ParseMetadata(data)
	require.NoError(t, err)

	require.NotNil(t, m.Schema)
	assert.Equal(t, SchemaTrades, *m.Schema)
	assert.False(t, m.Unbounded())
	assert.Nil(t, m.STypeIn)
	require.Len(t, m.Mappings, 1)
	assert.Equal(t, "38", m.Mappings[0].Intervals[0].Symbol)
	assert.NotNil(t, m.Symbols, "absent arrays decode as empty")
}

func TestParseMetadata_MissingFields(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"missing dataset", `{"version":3,"stype_out":0}`},
		{"missing stype_out", `{"version":3,"dataset":"GLBX.MDP3"}`},
		{"malformed", `{"version":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseMetadata([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestMetadata_MarshalKeepsUnboundedEnd(t *testing.T) {
	m := &Metadata{Version: 3, Dataset: "GLBX.MDP3", End: UnboundedEnd, STypeOut: STypeInstrumentID}

	data, err := json.Marshal(m)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"end":18446744073709551615`)
	assert.Contains(t, string(data), `"schema":null`)

	back, err := ParseMetadata(data)
	require.NoError(t, err)
	assert.True(t, back.Unbounded())
}

func TestParseSchema(t *testing.T) {
	tests := []struct {
		in      string
		want    Schema
		wantErr bool
	}{
		{"mbo", SchemaMbo, false},
		{"MBP-1", SchemaMbp1, false},
		{"trades", SchemaTrades, false},
		{"ohlcv-1d", SchemaOhlcv1D, false},
		{"ohlcv-eod", SchemaOhlcvEod, false},
		{"definition", SchemaDefinition, false},
		{"bbo-1m", SchemaBbo1M, false},
		{"mbp-5", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseSchema(tt.in)
		if tt.wantErr {
			assert.EqualError(t, err, "unknown schema: "+tt.in)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
		assert.Equal(t, tt.want, mustParseSchema(t, got.String()))
	}
}

func mustParseSchema(t *testing.T, s string) Schema {
	t.Helper()
	v, err := ParseSchema(s)
	require.NoError(t, err)
	return v
}

func TestParseSType(t *testing.T) {
	got, err := ParseSType("parent")
	require.NoError(t, err)
	assert.Equal(t, STypeParent, got)

	_, err = ParseSType("ticker")
	assert.Error(t, err)
}
