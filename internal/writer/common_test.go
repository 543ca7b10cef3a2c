package writer

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rickgao/dbn-live/internal/dbn"
	"github.com/rickgao/dbn-live/internal/router"
)

func dec(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func TestEnumCode(t *testing.T) {
	tests := []struct {
		name     string
		got      string
		expected string
	}{
		{"bid", enumCode(dbn.SideBid), "B"},
		{"ask", enumCode(dbn.SideAsk), "A"},
		{"trade action", enumCode(dbn.ActionTrade), "T"},
		{"zero", enumCode(dbn.Side(0)), "N"},
		{"instrument class", enumCode(byte('F')), "F"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("enumCode() = %q, want %q", tt.got, tt.expected)
			}
		})
	}
}

func TestNullableTime(t *testing.T) {
	if v := nullableTime(time.Time{}); v != nil {
		t.Errorf("nullableTime(zero) = %v, want nil", v)
	}
	now := time.Date(2024, 6, 3, 14, 0, 0, 0, time.UTC)
	if v := nullableTime(now); v != now {
		t.Errorf("nullableTime(now) = %v, want %v", v, now)
	}
}

func TestSpread(t *testing.T) {
	tests := []struct {
		name  string
		bid   decimal.NullDecimal
		ask   decimal.NullDecimal
		valid bool
		want  string
	}{
		{"both sides", dec("100.25"), dec("100.50"), true, "0.25"},
		{"no bid", decimal.NullDecimal{}, dec("100.50"), false, ""},
		{"no ask", dec("100.25"), decimal.NullDecimal{}, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := spread(tt.bid, tt.ask)
			if got.Valid != tt.valid {
				t.Fatalf("spread().Valid = %v, want %v", got.Valid, tt.valid)
			}
			if tt.valid && !got.Decimal.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("spread() = %s, want %s", got.Decimal, tt.want)
			}
		})
	}
}

func TestPriceLevelsToJSONB(t *testing.T) {
	levels := []router.BookLevel{
		{Price: decimal.RequireFromString("5321.25"), Size: 100, Count: 4},
		{Price: decimal.RequireFromString("5321"), Size: 200, Count: 7},
	}

	result := priceLevelsToJSONB(levels)

	var parsed []priceLevelJSON
	if err := json.Unmarshal(result, &parsed); err != nil {
		t.Fatalf("failed to unmarshal result: %v", err)
	}

	if len(parsed) != 2 {
		t.Fatalf("expected 2 levels, got %d", len(parsed))
	}

	if parsed[0].Price != "5321.25" || parsed[0].Size != 100 || parsed[0].Count != 4 {
		t.Errorf("level 0: got %+v, want {5321.25 100 4}", parsed[0])
	}
	if parsed[1].Price != "5321" || parsed[1].Size != 200 {
		t.Errorf("level 1: got %+v, want {5321 200 7}", parsed[1])
	}
}

func TestPriceLevelsToJSONB_Empty(t *testing.T) {
	result := priceLevelsToJSONB(nil)

	var parsed []priceLevelJSON
	if err := json.Unmarshal(result, &parsed); err != nil {
		t.Fatalf("failed to unmarshal result: %v", err)
	}

	if len(parsed) != 0 {
		t.Errorf("expected empty slice, got %d elements", len(parsed))
	}
}

func TestExtractBestPrice(t *testing.T) {
	tests := []struct {
		name   string
		levels []router.BookLevel
		valid  bool
		want   string
	}{
		{
			"with levels",
			[]router.BookLevel{{Price: decimal.RequireFromString("0.52")}, {Price: decimal.RequireFromString("0.51")}},
			true,
			"0.52",
		},
		{
			"empty",
			nil,
			false,
			"",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := extractBestPrice(tt.levels)
			if result.Valid != tt.valid {
				t.Fatalf("extractBestPrice().Valid = %v, want %v", result.Valid, tt.valid)
			}
			if tt.valid && result.Decimal.String() != tt.want {
				t.Errorf("extractBestPrice() = %s, want %s", result.Decimal, tt.want)
			}
		})
	}
}
