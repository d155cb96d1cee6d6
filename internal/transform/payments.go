package transform

import (
	"fmt"

	"github.com/tavern-ops/barsync/internal/db"
)

func init() {
	Register(paymentsSpec{})
}

// paymentsSpec normalizes the POS feed's settlement records: sale id (vd)
// plus transaction id (trn) within a business date.
type paymentsSpec struct{}

func (paymentsSpec) Name() string { return "pos_payments" }

func (paymentsSpec) Upsert() db.UpsertConfig {
	return db.UpsertConfig{
		Table: "pos_payments",
		Columns: []string{
			"venue_id", "ref_date", "vd", "trn",
			"customer", "method", "card_brand", "pay_kind",
			"gross_value", "fee", "net_value",
			"idempotency_key",
		},
		ConflictKeys: []string{"idempotency_key"},
		UpdateCols: []string{
			"customer", "method", "card_brand", "pay_kind",
			"gross_value", "fee", "net_value",
		},
	}
}

func (p paymentsSpec) Parse(venueID int64, refDate string, body []byte) ([][]any, error) {
	recs, err := decodeRecords(body)
	if err != nil {
		return nil, err
	}

	rows := make([][]any, 0, len(recs))
	for _, rec := range recs {
		date := dateOnly(rec, "dt_gerencial")
		if date == "" {
			date = refDate
		}
		// Some payment records carry only "id"; it stands in for both keys.
		vd := strOr(rec, "vd", "id")
		trn := strOr(rec, "trn", "id")
		key := fmt.Sprintf("%d_%s_%s_%s", venueID, date, vd, trn)

		rows = append(rows, []any{
			venueID, nilIfEmpty(date), vd, trn,
			strOr(rec, "cliente", "descricao"),
			strOr(rec, "pag"),
			strOr(rec, "cartao"),
			strOr(rec, "tipo"),
			moneyOr(rec, "valor"),
			moneyOr(rec, "taxa"),
			moneyOr(rec, "liquido"),
			key,
		})
	}
	return rows, nil
}
