package transform

import (
	"fmt"

	"github.com/tavern-ops/barsync/internal/db"
)

func init() {
	Register(productHourlySpec{})
}

// productHourlySpec normalizes the POS feed's per-product hourly sales.
// These records carry no date of their own, so the capture's reference
// date anchors the key: one row per venue, date, hour, and product.
type productHourlySpec struct{}

func (productHourlySpec) Name() string { return "pos_product_hourly" }

func (productHourlySpec) Upsert() db.UpsertConfig {
	return db.UpsertConfig{
		Table: "pos_product_hourly",
		Columns: []string{
			"venue_id", "ref_date", "hour", "product_id",
			"product", "category",
			"qty", "discount", "net_value",
			"idempotency_key",
		},
		ConflictKeys: []string{"idempotency_key"},
		UpdateCols: []string{
			"product", "category", "qty", "discount", "net_value",
		},
	}
}

func (p productHourlySpec) Parse(venueID int64, refDate string, body []byte) ([][]any, error) {
	recs, err := decodeRecords(body)
	if err != nil {
		return nil, err
	}

	rows := make([][]any, 0, len(recs))
	for _, rec := range recs {
		hour := hourOf(rec, "hora")
		productID := strOr(rec, "prd")
		key := fmt.Sprintf("%d_%s_%d_%s", venueID, refDate, hour, productID)

		rows = append(rows, []any{
			venueID, nilIfEmpty(refDate), hour, productID,
			strOr(rec, "prd_desc"),
			strOr(rec, "grp_desc"),
			floatOr(rec, "qtd", 0),
			moneyOr(rec, "desconto"),
			moneyOr(rec, "valorpago"),
			key,
		})
	}
	return rows, nil
}
