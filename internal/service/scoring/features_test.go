package scoring

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinelpay/fraud-scoring-backend/internal/domain/transaction"
)

func testTransaction() *transaction.Transaction {
	return &transaction.Transaction{
		ID:            "tx-1",
		Amount:        decimal.NewFromFloat(49.99),
		Currency:      "USD",
		Timestamp:     time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC),
		CustomerEmail: "a@b.com",
		CustomerIP:    "203.0.113.7",
		MerchantID:    "merchant-1",
		Instrument: transaction.PaymentInstrument{
			Type: transaction.InstrumentCredit,
		},
	}
}

func TestAssembleShape(t *testing.T) {
	a := NewAssembler()
	fv := a.Assemble(testTransaction(), transaction.VelocityAggregates{}, GeoInfo{})
	assert.Len(t, fv, len(FeatureNames()))
}

func TestAssembleDeterministic(t *testing.T) {
	a := NewAssembler()
	tx := testTransaction()
	agg := transaction.VelocityAggregates{
		Customer: transaction.VelocityWindows{
			H1:  transaction.VelocityStats{Count: 2, Sum: 100},
			H24: transaction.VelocityStats{Count: 5, Sum: 250},
			D7:  transaction.VelocityStats{Count: 12, Sum: 600},
		},
	}
	geo := GeoInfo{CountryCode: "US"}

	first := a.Assemble(tx, agg, geo)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, a.Assemble(tx, agg, geo))
	}
}

func TestAssembleFeatureValues(t *testing.T) {
	a := NewAssembler()
	tx := testTransaction()
	tx.Amount = decimal.NewFromInt(500)
	tx.CustomerEmail = "bot12345@mailinator.com"
	// 02:00 UTC on a Saturday
	tx.Timestamp = time.Date(2026, 3, 7, 2, 0, 0, 0, time.UTC)
	tx.Instrument.Type = transaction.InstrumentPrepaid

	fv := a.Assemble(tx, transaction.VelocityAggregates{}, GeoInfo{CountryCode: "NG"})
	byName := map[string]float64{}
	for i, name := range FeatureNames() {
		byName[name] = fv[i]
	}

	assert.Equal(t, 500.0, byName["amount"])
	assert.Equal(t, 1.0, byName["is_round_amount"])
	assert.Equal(t, 0.0, byName["is_high_value"])
	assert.Equal(t, 2.0, byName["hour_of_day"])
	assert.Equal(t, 1.0, byName["is_weekend"])
	assert.Equal(t, 1.0, byName["is_night"])
	assert.Equal(t, 0.0, byName["is_business_hours"])
	assert.Equal(t, 1.0, byName["email_domain_disposable"])
	assert.InDelta(t, 5.0/8.0, byName["email_digit_ratio"], 1e-9)
	assert.Equal(t, 8.0, byName["email_local_length"])
	assert.Equal(t, 0.0, byName["instrument_is_credit"])
	assert.Equal(t, 1.0, byName["instrument_is_prepaid"])
	assert.Equal(t, 1.0, byName["geo_high_risk"])
}

func TestAssembleVelocityFeatures(t *testing.T) {
	a := NewAssembler()
	agg := transaction.VelocityAggregates{
		IP: transaction.VelocityWindows{
			H1: transaction.VelocityStats{Count: 7, Sum: 777.5},
		},
		Merchant: transaction.VelocityWindows{
			D7: transaction.VelocityStats{Count: 3, Sum: 90},
		},
	}
	fv := a.Assemble(testTransaction(), agg, GeoInfo{})
	byName := map[string]float64{}
	for i, name := range FeatureNames() {
		byName[name] = fv[i]
	}

	assert.Equal(t, 7.0, byName["ip_tx_count_1h"])
	assert.Equal(t, 777.5, byName["ip_amount_sum_1h"])
	assert.Equal(t, 3.0, byName["merchant_tx_count_7d"])
	assert.Equal(t, 90.0, byName["merchant_amount_sum_7d"])
	assert.Equal(t, 0.0, byName["customer_tx_count_24h"])
}

func TestAssembleUsesUTC(t *testing.T) {
	a := NewAssembler()
	tx := testTransaction()

	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	utc := a.Assemble(tx, transaction.VelocityAggregates{}, GeoInfo{})
	tx.Timestamp = tx.Timestamp.In(loc)
	local := a.Assemble(tx, transaction.VelocityAggregates{}, GeoInfo{})

	assert.Equal(t, utc, local)
}

func TestFeatureSchemaHashStable(t *testing.T) {
	assert.Equal(t, FeatureSchemaHash(), FeatureSchemaHash())
	assert.Len(t, FeatureSchemaHash(), 16)
}
