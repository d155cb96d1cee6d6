package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryNames(t *testing.T) {
	assert.Equal(t,
		[]string{"ledger_entries", "pos_hourly", "pos_payments", "pos_product_hourly", "pos_sales"},
		Names())
}

func TestGetUnknown(t *testing.T) {
	_, err := Get("nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown data type")
}

func TestSpecColumnsMatchRowWidth(t *testing.T) {
	// Every spec must produce rows exactly as wide as its column list,
	// with the idempotency key in the last position.
	bodies := map[string]string{
		"pos_sales":          `{"list":[{"trn":"641","itm":"1"}]}`,
		"pos_payments":       `{"list":[{"vd":"10","trn":"641"}]}`,
		"pos_hourly":         `{"list":[{"hora":"18:00"}]}`,
		"ledger_entries":     `{"items":[{"scheduleId":"abc"}]}`,
		"pos_product_hourly": `{"list":[{"hora":"18:00","prd":"77"}]}`,
	}
	for _, name := range Names() {
		spec, err := Get(name)
		require.NoError(t, err)

		cfg := spec.Upsert()
		assert.Equal(t, "idempotency_key", cfg.Columns[len(cfg.Columns)-1], name)
		assert.Equal(t, []string{"idempotency_key"}, cfg.ConflictKeys, name)

		rows, err := spec.Parse(1, "2025-08-15", []byte(bodies[name]))
		require.NoError(t, err, name)
		require.Len(t, rows, 1, name)
		assert.Len(t, rows[0], len(cfg.Columns), name)
	}
}

func TestDecodeRecords_BothEnvelopes(t *testing.T) {
	recs, err := decodeRecords([]byte(`{"list":[{"a":1},{"a":2}]}`))
	require.NoError(t, err)
	assert.Len(t, recs, 2)

	recs, err = decodeRecords([]byte(`{"items":[{"b":3}]}`))
	require.NoError(t, err)
	assert.Len(t, recs, 1)

	recs, err = decodeRecords([]byte(`{}`))
	require.NoError(t, err)
	assert.Empty(t, recs)

	_, err = decodeRecords([]byte(`not json`))
	assert.Error(t, err)
}

func TestSalesParse(t *testing.T) {
	body := []byte(`{"list":[
		{"trn_dtgerencial":"2025-08-15T03:00:00.000Z","trn":"641","itm":"2",
		 "prd_desc":"Chopp Pilsen","grp_desc":"Cervejas","loc_desc":"Bar",
		 "tipovenda":"mesa","qtd":"2","desconto":"0","valorfinal":"25,80","custo":"9,10"},
		{"trn_dtgerencial":"2025-08-15T03:00:00.000Z","trn":"641","itm":"3",
		 "prd_desc":"Porção Fritas","qtd":1,"valorfinal":32.5}
	]}`)

	spec, _ := Get("pos_sales")
	rows, err := spec.Parse(7, "2025-08-15", body)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, int64(7), rows[0][0])
	assert.Equal(t, "2025-08-15", rows[0][1])
	assert.Equal(t, 641, rows[0][2])
	assert.Equal(t, 2, rows[0][3])
	assert.Equal(t, "Chopp Pilsen", rows[0][4])
	assert.InDelta(t, 25.80, rows[0][10], 1e-9)
	assert.Equal(t, "7_2025-08-15_641_2", rows[0][12])

	// Missing optional fields coerce to defaults, never error.
	assert.Equal(t, "", rows[1][5])
	assert.InDelta(t, 32.5, rows[1][10], 1e-9)
	assert.Equal(t, "7_2025-08-15_641_3", rows[1][12])
}

func TestSalesParse_Deterministic(t *testing.T) {
	body := []byte(`{"list":[{"trn_dtgerencial":"2025-08-15","trn":"641","itm":"1","valorfinal":"10,00"}]}`)
	spec, _ := Get("pos_sales")

	first, err := spec.Parse(3, "2025-08-15", body)
	require.NoError(t, err)
	second, err := spec.Parse(3, "2025-08-15", body)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestPaymentsParse_IDFallback(t *testing.T) {
	body := []byte(`{"list":[
		{"dt_gerencial":"2025-08-15T00:00:00Z","vd":"10","trn":"641",
		 "pag":"credito","cartao":"VISA","tipo":"cartao","cliente":"João",
		 "$valor":"150,00","$taxa":"4,50","$liquido":"145,50"},
		{"dt_gerencial":"2025-08-15","id":"998"}
	]}`)

	spec, _ := Get("pos_payments")
	rows, err := spec.Parse(2, "2025-08-15", body)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "2_2025-08-15_10_641", rows[0][11])
	assert.InDelta(t, 150.00, rows[0][8], 1e-9)
	assert.InDelta(t, 4.50, rows[0][9], 1e-9)
	assert.InDelta(t, 145.50, rows[0][10], 1e-9)

	// Records without vd/trn fall back to id for both.
	assert.Equal(t, "998", rows[1][2])
	assert.Equal(t, "998", rows[1][3])
	assert.Equal(t, "2_2025-08-15_998_998", rows[1][11])
}

func TestHourlyParse(t *testing.T) {
	body := []byte(`{"list":[
		{"vd_dtgerencial":"2025-08-15T03:00:00Z","hora":"18:00","dia":"sexta","qtd":42,"$valor":"3.150,75"}
	]}`)

	spec, _ := Get("pos_hourly")
	rows, err := spec.Parse(5, "2025-08-15", body)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	assert.Equal(t, 18, rows[0][2])
	assert.Equal(t, "sexta", rows[0][3])
	assert.InDelta(t, 3150.75, rows[0][5], 1e-9)
	assert.Equal(t, "5_2025-08-15_18", rows[0][6])
}

func TestProductHourlyParse_UsesCaptureDate(t *testing.T) {
	// These records carry no date field; the capture's reference date
	// anchors both the row and its key.
	body := []byte(`{"list":[
		{"prd":77,"prd_desc":"Chopp Pilsen","grp_desc":"Cervejas",
		 "hora":"23:00","qtd":"14","$valorpago":"361,20","$desconto":"0"}
	]}`)

	spec, _ := Get("pos_product_hourly")
	rows, err := spec.Parse(4, "2025-08-15", body)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	assert.Equal(t, "2025-08-15", rows[0][1])
	assert.Equal(t, 23, rows[0][2])
	assert.Equal(t, "77", rows[0][3])
	assert.Equal(t, "Chopp Pilsen", rows[0][4])
	assert.InDelta(t, 14, rows[0][6], 1e-9)
	assert.InDelta(t, 361.20, rows[0][8], 1e-9)
	assert.Equal(t, "4_2025-08-15_23_77", rows[0][9])
}

func TestEntriesParse_ScheduleIDFallback(t *testing.T) {
	body := []byte(`{"items":[
		{"scheduleId":"sch-001","id":"raw-1","type":"debit","status":"open",
		 "value":1200.50,"paidValue":0,"dueDate":"2025-09-01T00:00:00Z",
		 "accrualDate":"2025-08-15T00:00:00Z","description":"Fornecedor bebidas",
		 "category":{"id":"c1","name":"Insumos"},
		 "stakeholder":{"id":"s1","name":"Distribuidora Alfa","type":"supplier"}},
		{"id":"raw-2","value":300}
	]}`)

	spec, _ := Get("ledger_entries")
	rows, err := spec.Parse(9, "2025-08", body)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "sch-001", rows[0][1])
	assert.Equal(t, "9_sch-001", rows[0][12])
	assert.Equal(t, "Insumos", rows[0][10])
	assert.Equal(t, "Distribuidora Alfa", rows[0][11])
	assert.Equal(t, "2025-09-01", rows[0][6])

	// No scheduleId: plain id is the key; absent dates become NULL.
	assert.Equal(t, "raw-2", rows[1][1])
	assert.Equal(t, "9_raw-2", rows[1][12])
	assert.Nil(t, rows[1][6])
	assert.Nil(t, rows[1][8])
}

func TestEntriesParse_ListEnvelopeAccepted(t *testing.T) {
	// Envelope detection is shared: a ledger payload arriving under "list"
	// still parses.
	body := []byte(`{"list":[{"id":"x1","value":10}]}`)
	spec, _ := Get("ledger_entries")
	rows, err := spec.Parse(1, "2025-08", body)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
