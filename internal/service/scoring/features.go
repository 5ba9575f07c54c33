package scoring

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"strings"

	"github.com/sentinelpay/fraud-scoring-backend/internal/domain/transaction"
)

// FeatureVector is the fixed-order numeric input to the model. Built fresh
// per scoring attempt and never mutated afterwards.
type FeatureVector []float64

// featureNames fixes the vector shape. The order is a versioned contract
// with the model artifact: a mismatch is a fatal configuration error caught
// at startup, not at request time.
var featureNames = []string{
	"amount",
	"amount_log",
	"is_round_amount",
	"is_high_value",
	"hour_of_day",
	"day_of_week",
	"is_weekend",
	"is_night",
	"is_business_hours",
	"email_domain_disposable",
	"email_digit_ratio",
	"email_local_length",
	"instrument_is_credit",
	"instrument_is_debit",
	"instrument_is_prepaid",
	"instrument_is_wallet",
	"geo_high_risk",
	"customer_tx_count_1h",
	"customer_amount_sum_1h",
	"customer_tx_count_24h",
	"customer_amount_sum_24h",
	"customer_tx_count_7d",
	"customer_amount_sum_7d",
	"ip_tx_count_1h",
	"ip_amount_sum_1h",
	"ip_tx_count_24h",
	"ip_amount_sum_24h",
	"ip_tx_count_7d",
	"ip_amount_sum_7d",
	"merchant_tx_count_1h",
	"merchant_amount_sum_1h",
	"merchant_tx_count_24h",
	"merchant_amount_sum_24h",
	"merchant_tx_count_7d",
	"merchant_amount_sum_7d",
}

// FeatureNames returns the canonical feature ordering.
func FeatureNames() []string {
	names := make([]string, len(featureNames))
	copy(names, featureNames)
	return names
}

// FeatureSchemaHash fingerprints the feature contract for startup checks
// and audit logs.
func FeatureSchemaHash() string {
	sum := sha256.Sum256([]byte(strings.Join(featureNames, "\n")))
	return hex.EncodeToString(sum[:8])
}

// disposableDomains are throwaway email providers disproportionately
// represented in chargeback records.
var disposableDomains = map[string]struct{}{
	"tempmail.com":      {},
	"guerrillamail.com": {},
	"mailinator.com":    {},
	"10minutemail.com":  {},
	"throwaway.email":   {},
	"yopmail.com":       {},
	"sharklasers.com":   {},
	"getnada.com":       {},
}

// highRiskCountries have historically elevated card-fraud rates.
var highRiskCountries = map[string]struct{}{
	"RU": {}, "NG": {}, "UA": {}, "VN": {}, "PK": {}, "KP": {}, "RO": {}, "GH": {}, "TZ": {},
}

const (
	highValueThreshold = 1000.0
	nightStartHour     = 0
	nightEndHour       = 6
)

// Assembler turns a transaction plus its velocity aggregates into the
// fixed-shape feature vector. Pure and side-effect free: it runs on every
// cache miss and its determinism is load-bearing for idempotent scoring.
type Assembler struct{}

// NewAssembler creates the feature assembler.
func NewAssembler() *Assembler {
	return &Assembler{}
}

// Assemble is deterministic for fixed inputs. Timestamps are interpreted in
// UTC so the time-of-day flags do not depend on server locale.
func (a *Assembler) Assemble(tx *transaction.Transaction, agg transaction.VelocityAggregates, geo GeoInfo) FeatureVector {
	amount := tx.Amount.InexactFloat64()
	ts := tx.Timestamp.UTC()
	hour := ts.Hour()
	weekday := int(ts.Weekday())

	local := tx.EmailLocalPart()
	domain := tx.EmailDomain()

	fv := make(FeatureVector, 0, len(featureNames))
	fv = append(fv,
		amount,
		math.Log1p(amount),
		boolFeature(isRoundAmount(tx)),
		boolFeature(amount >= highValueThreshold),
		float64(hour),
		float64(weekday),
		boolFeature(weekday == 0 || weekday == 6),
		boolFeature(hour >= nightStartHour && hour < nightEndHour),
		boolFeature(hour >= 9 && hour < 17 && weekday >= 1 && weekday <= 5),
		boolFeature(isDisposableDomain(domain)),
		digitRatio(local),
		float64(len(local)),
		boolFeature(tx.Instrument.Type == transaction.InstrumentCredit),
		boolFeature(tx.Instrument.Type == transaction.InstrumentDebit),
		boolFeature(tx.Instrument.Type == transaction.InstrumentPrepaid),
		boolFeature(tx.Instrument.Type == transaction.InstrumentWallet),
		boolFeature(isHighRiskCountry(geo.CountryCode)),
	)
	fv = appendWindows(fv, agg.Customer)
	fv = appendWindows(fv, agg.IP)
	fv = appendWindows(fv, agg.Merchant)
	return fv
}

func appendWindows(fv FeatureVector, w transaction.VelocityWindows) FeatureVector {
	return append(fv,
		float64(w.H1.Count), w.H1.Sum,
		float64(w.H24.Count), w.H24.Sum,
		float64(w.D7.Count), w.D7.Sum,
	)
}

func boolFeature(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// isRoundAmount flags whole-currency amounts like 100.00 or 500.00 that are
// overrepresented in card-testing traffic.
func isRoundAmount(tx *transaction.Transaction) bool {
	return tx.Amount.IsInteger() && tx.Amount.IntPart()%10 == 0
}

func isDisposableDomain(domain string) bool {
	_, ok := disposableDomains[domain]
	return ok
}

func isHighRiskCountry(code string) bool {
	_, ok := highRiskCountries[strings.ToUpper(code)]
	return ok
}

// digitRatio returns the fraction of numeric characters in the email local
// part; machine-generated accounts skew numeric.
func digitRatio(s string) float64 {
	if len(s) == 0 {
		return 0
	}
	digits := 0
	for _, ch := range s {
		if ch >= '0' && ch <= '9' {
			digits++
		}
	}
	return float64(digits) / float64(len([]rune(s)))
}
