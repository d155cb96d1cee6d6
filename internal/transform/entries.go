package transform

import (
	"fmt"

	"github.com/tavern-ops/barsync/internal/db"
)

func init() {
	Register(entriesSpec{})
}

// entriesSpec normalizes the ledger feed's scheduled receivables and
// payables. The upstream schedule id is the natural key; ad-hoc entries
// without one fall back to the plain id.
type entriesSpec struct{}

func (entriesSpec) Name() string { return "ledger_entries" }

func (entriesSpec) Upsert() db.UpsertConfig {
	return db.UpsertConfig{
		Table: "ledger_entries",
		Columns: []string{
			"venue_id", "entry_id", "entry_type", "status",
			"amount", "paid_amount",
			"due_date", "payment_date", "accrual_date",
			"description", "category", "counterparty",
			"idempotency_key",
		},
		ConflictKeys: []string{"idempotency_key"},
		UpdateCols: []string{
			"entry_type", "status", "amount", "paid_amount",
			"due_date", "payment_date", "accrual_date",
			"description", "category", "counterparty",
		},
	}
}

// Parse ignores the capture's reference month: every schedule carries its
// own dates.
func (e entriesSpec) Parse(venueID int64, _ string, body []byte) ([][]any, error) {
	recs, err := decodeRecords(body)
	if err != nil {
		return nil, err
	}

	rows := make([][]any, 0, len(recs))
	for _, rec := range recs {
		entryID := strOr(rec, "scheduleId", "id")
		key := fmt.Sprintf("%d_%s", venueID, entryID)

		rows = append(rows, []any{
			venueID, entryID,
			strOr(rec, "type"),
			strOr(rec, "status"),
			floatOr(rec, "value", 0),
			floatOr(rec, "paidValue", 0),
			dateOrNil(rec, "dueDate"),
			dateOrNil(rec, "paymentDate"),
			dateOrNil(rec, "accrualDate"),
			strOr(rec, "description"),
			nested(rec, "category", "name"),
			nested(rec, "stakeholder", "name"),
			key,
		})
	}
	return rows, nil
}
