package collector

import (
	"fmt"
	"strings"
	"time"

	"github.com/eddiefleurent/spy_options_collector/internal/models"
)

// QuoteTimestampLayout is the ISO 8601 layout of the shared quote timestamp,
// local wall-clock time with microseconds.
const QuoteTimestampLayout = "2006-01-02T15:04:05.000000"

// ShapeError reports a raw contract that lacks fields the store requires.
type ShapeError struct {
	Index   int
	Symbol  string
	Missing []string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("option %d (%q) missing fields: %s", e.Index, e.Symbol, strings.Join(e.Missing, ", "))
}

// QuoteTimestamp formats the instant a batch was captured.
func QuoteTimestamp(now time.Time) string {
	return now.Format(QuoteTimestampLayout)
}

// Shape maps each raw contract to a row, all rows sharing one quote timestamp.
// Fields are copied verbatim and order is preserved.
func Shape(records []models.Option, now time.Time) ([]models.OptionRow, error) {
	ts := QuoteTimestamp(now)
	rows := make([]models.OptionRow, 0, len(records))

	for i := range records {
		o := &records[i]
		if missing := o.Missing(); len(missing) > 0 {
			return nil, &ShapeError{Index: i, Symbol: o.Symbol, Missing: missing}
		}
		rows = append(rows, models.OptionRow{
			Symbol:         o.Symbol,
			RootSymbol:     o.RootSymbol,
			OptionType:     o.OptionType,
			Strike:         o.Strike,
			Expiration:     o.ExpirationDate,
			QuoteTimestamp: ts,
			Bid:            o.Bid,
			Ask:            o.Ask,
			BidSize:        o.BidSize,
			AskSize:        o.AskSize,
		})
	}
	return rows, nil
}
