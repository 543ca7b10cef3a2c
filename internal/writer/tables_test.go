package writer

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rickgao/dbn-live/internal/dbn"
	"github.com/rickgao/dbn-live/internal/router"
)

func TestTransformQuote(t *testing.T) {
	msg := router.QuoteMsg{
		InstrumentID: 1,
		Symbol:       "ESZ4",
		RType:        dbn.RTypeMbp1,
		BidPx:        dec("100.25"),
		AskPx:        dec("100.75"),
		BidSz:        3,
		AskSz:        5,
		Side:         dbn.SideBid,
		Action:       dbn.ActionAdd,
	}

	row, ok := transformQuote(msg)
	if !ok {
		t.Fatal("transformQuote rejected a quote")
	}
	if row.Schema != "mbp-1" {
		t.Errorf("Schema = %s, want mbp-1", row.Schema)
	}
	if !row.Spread.Valid || !row.Spread.Decimal.Equal(decimal.RequireFromString("0.5")) {
		t.Errorf("Spread = %v, want 0.5", row.Spread)
	}
	if row.BidSz != 3 || row.AskSz != 5 {
		t.Errorf("sizes = %d/%d, want 3/5", row.BidSz, row.AskSz)
	}
	if len(quoteArgs(row)) != 16 {
		t.Errorf("len(quoteArgs) = %d, want 16", len(quoteArgs(row)))
	}
}

func TestTransformQuote_OneSided(t *testing.T) {
	row, _ := transformQuote(router.QuoteMsg{BidPx: dec("1")})
	if row.Spread.Valid {
		t.Errorf("Spread = %v, want NULL", row.Spread)
	}
}

func TestTransformBook(t *testing.T) {
	msg := router.BookMsg{
		InstrumentID: 9,
		Bids: []router.BookLevel{
			{Price: decimal.RequireFromString("10.5"), Size: 1},
			{Price: decimal.RequireFromString("10.25"), Size: 2},
		},
		Asks:     []router.BookLevel{{Price: decimal.RequireFromString("11"), Size: 4}},
		Sequence: 3,
	}

	row, ok := transformBook(msg)
	if !ok {
		t.Fatal("transformBook rejected a book")
	}
	if row.BestBid.Decimal.String() != "10.5" {
		t.Errorf("BestBid = %s, want 10.5", row.BestBid.Decimal)
	}
	if row.BestAsk.Decimal.String() != "11" {
		t.Errorf("BestAsk = %s, want 11", row.BestAsk.Decimal)
	}
	if row.Spread.Decimal.String() != "0.5" {
		t.Errorf("Spread = %s, want 0.5", row.Spread.Decimal)
	}

	var bids []priceLevelJSON
	if err := json.Unmarshal(row.Bids, &bids); err != nil {
		t.Fatalf("bids not JSON: %v", err)
	}
	if len(bids) != 2 || bids[1].Price != "10.25" {
		t.Errorf("bids = %+v", bids)
	}
}

func TestTransformBook_EmptySide(t *testing.T) {
	row, _ := transformBook(router.BookMsg{Bids: []router.BookLevel{{Price: decimal.RequireFromString("1")}}})
	if row.BestAsk.Valid || row.Spread.Valid {
		t.Errorf("BestAsk/Spread = %v/%v, want NULL", row.BestAsk, row.Spread)
	}
	if string(row.Asks) != "[]" {
		t.Errorf("Asks = %s, want []", row.Asks)
	}
}

func TestTransformBar(t *testing.T) {
	msg := router.BarMsg{
		InstrumentID: 2,
		Interval:     "1m",
		Open:         dec("1"),
		High:         dec("2"),
		Low:          dec("0.5"),
		Close:        dec("1.5"),
		Volume:       1200,
	}

	row, ok := transformBar(msg)
	if !ok {
		t.Fatal("transformBar rejected a bar")
	}
	if row.Interval != "1m" || row.Volume != 1200 {
		t.Errorf("row = %+v", row)
	}

	if _, ok := transformBar(router.BarMsg{Interval: "1m"}); ok {
		t.Error("transformBar accepted a bar without prices")
	}
}

func TestTransformStatus(t *testing.T) {
	yes := true
	row, ok := transformStatus(router.StatusMsg{
		InstrumentID: 4,
		Action:       7,
		Reason:       1,
		IsTrading:    &yes,
	})
	if !ok {
		t.Fatal("transformStatus rejected a status")
	}
	if row.Action != 7 || row.Reason != 1 {
		t.Errorf("action/reason = %d/%d, want 7/1", row.Action, row.Reason)
	}
	args := statusArgs(row)
	if args[8] != &yes {
		t.Errorf("is_trading arg = %v, want pointer to true", args[8])
	}
	if args[9] != (*bool)(nil) {
		t.Errorf("is_quoting arg = %v, want nil pointer", args[9])
	}
}

func TestTransformDefinition(t *testing.T) {
	def := &dbn.InstrumentDefMsg{
		Hd:                   dbn.RecordHeader{InstrumentID: 5602, TsEvent: 1717423200000000000},
		RawSymbol:            "ESZ4",
		Exchange:             "XCME",
		Asset:                "ES",
		InstrumentClass:      'F',
		MinPriceIncrement:    dec("0.25"),
		Expiration:           1734705000000000000,
		Activation:           dbn.UndefTimestamp,
		SecurityUpdateAction: 'A',
	}

	row, ok := transformDefinition(router.DefinitionMsg{Definition: def, ReceivedAt: time.Now()})
	if !ok {
		t.Fatal("transformDefinition rejected a definition")
	}
	if row.Symbol != "ESZ4" {
		t.Errorf("Symbol = %s, want raw symbol fallback ESZ4", row.Symbol)
	}
	if row.InstrumentClass != "F" || row.UpdateAction != "A" {
		t.Errorf("class/action = %s/%s, want F/A", row.InstrumentClass, row.UpdateAction)
	}
	args := definitionArgs(row)
	if args[15] != nil {
		t.Errorf("activation arg = %v, want nil for undefined timestamp", args[15])
	}
	if args[14] == nil {
		t.Error("expiration arg is nil")
	}

	if _, ok := transformDefinition(router.DefinitionMsg{}); ok {
		t.Error("transformDefinition accepted a message without a definition")
	}
}
