package writer

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rickgao/dbn-live/internal/router"
)

// enumCode renders a single-byte enum as a one-character string. Zero
// becomes "N" (none).
func enumCode[E ~byte](e E) string {
	if e == 0 {
		return "N"
	}
	return string(rune(e))
}

// nullableTime maps the zero time to SQL NULL.
func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

// spread returns ask - bid when both sides are set.
func spread(bid, ask decimal.NullDecimal) decimal.NullDecimal {
	if !bid.Valid || !ask.Valid {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(ask.Decimal.Sub(bid.Decimal))
}

// priceLevelJSON represents a price level in JSONB format. Prices are
// strings to keep their exact decimal form.
type priceLevelJSON struct {
	Price string `json:"price"`
	Size  uint32 `json:"size"`
	Count uint32 `json:"count"`
}

// priceLevelsToJSONB converts book levels to JSONB bytes.
func priceLevelsToJSONB(levels []router.BookLevel) []byte {
	result := make([]priceLevelJSON, len(levels))
	for i, level := range levels {
		result[i] = priceLevelJSON{
			Price: level.Price.String(),
			Size:  level.Size,
			Count: level.Count,
		}
	}
	data, _ := json.Marshal(result)
	return data
}

// extractBestPrice returns the price of the first level.
func extractBestPrice(levels []router.BookLevel) decimal.NullDecimal {
	if len(levels) == 0 {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(levels[0].Price)
}
