package transform

import (
	"fmt"

	"github.com/tavern-ops/barsync/internal/db"
)

func init() {
	Register(hourlySpec{})
}

// hourlySpec normalizes the POS feed's revenue-by-hour rollups. Exactly
// one row per venue, business date, and hour.
type hourlySpec struct{}

func (hourlySpec) Name() string { return "pos_hourly" }

func (hourlySpec) Upsert() db.UpsertConfig {
	return db.UpsertConfig{
		Table: "pos_hourly",
		Columns: []string{
			"venue_id", "ref_date", "hour", "weekday",
			"qty", "revenue",
			"idempotency_key",
		},
		ConflictKeys: []string{"idempotency_key"},
		UpdateCols:   []string{"weekday", "qty", "revenue"},
	}
}

func (h hourlySpec) Parse(venueID int64, refDate string, body []byte) ([][]any, error) {
	recs, err := decodeRecords(body)
	if err != nil {
		return nil, err
	}

	rows := make([][]any, 0, len(recs))
	for _, rec := range recs {
		date := dateOnly(rec, "vd_dtgerencial")
		if date == "" {
			date = refDate
		}
		hour := hourOf(rec, "hora")
		key := fmt.Sprintf("%d_%s_%d", venueID, date, hour)

		rows = append(rows, []any{
			venueID, nilIfEmpty(date), hour,
			strOr(rec, "dia"),
			floatOr(rec, "qtd", 0),
			moneyOr(rec, "valor"),
			key,
		})
	}
	return rows, nil
}
