package transform

import (
	"fmt"

	"github.com/tavern-ops/barsync/internal/db"
)

func init() {
	Register(salesSpec{})
}

// salesSpec normalizes the POS feed's line-item analytics. One record per
// item sold: transaction id (trn) plus line index (itm) identify it within
// a business date.
type salesSpec struct{}

func (salesSpec) Name() string { return "pos_sales" }

func (salesSpec) Upsert() db.UpsertConfig {
	return db.UpsertConfig{
		Table: "pos_sales",
		Columns: []string{
			"venue_id", "ref_date", "trn", "itm",
			"product", "category", "location", "sale_type",
			"qty", "discount", "net_value", "cost",
			"idempotency_key",
		},
		ConflictKeys: []string{"idempotency_key"},
		UpdateCols: []string{
			"product", "category", "location", "sale_type",
			"qty", "discount", "net_value", "cost",
		},
	}
}

func (s salesSpec) Parse(venueID int64, refDate string, body []byte) ([][]any, error) {
	recs, err := decodeRecords(body)
	if err != nil {
		return nil, err
	}

	rows := make([][]any, 0, len(recs))
	for _, rec := range recs {
		date := dateOnly(rec, "trn_dtgerencial", "dt_gerencial")
		if date == "" {
			date = refDate
		}
		trn := intOr(rec, "trn", 0)
		itm := intOr(rec, "itm", 0)
		key := fmt.Sprintf("%d_%s_%d_%d", venueID, date, trn, itm)

		rows = append(rows, []any{
			venueID, nilIfEmpty(date), trn, itm,
			strOr(rec, "prd_desc"),
			strOr(rec, "grp_desc"),
			strOr(rec, "loc_desc"),
			strOr(rec, "tipovenda"),
			floatOr(rec, "qtd", 0),
			moneyOr(rec, "desconto"),
			moneyOr(rec, "valorfinal"),
			moneyOr(rec, "custo"),
			key,
		})
	}
	return rows, nil
}
