package scoring

import (
	"fmt"

	"github.com/sentinelpay/fraud-scoring-backend/internal/domain/transaction"
	"github.com/sentinelpay/fraud-scoring-backend/internal/infrastructure/config"
)

// DecisionEngine maps model probabilities to risk tiers and recommendations
// through the configured threshold table, and derives the explanatory
// reasons and flags. The annotations never alter the numeric score or tier.
type DecisionEngine struct {
	thresholds []config.DecisionThreshold
}

// NewDecisionEngine takes a threshold table already validated for
// monotonicity at config load.
func NewDecisionEngine(cfg config.DecisionConfig) (*DecisionEngine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("decision thresholds: %w", err)
	}
	return &DecisionEngine{thresholds: cfg.Thresholds}, nil
}

// Decide returns the tier and recommendation for a probability. The table
// holds inclusive lower bounds, so the last bound not exceeding the
// probability wins.
func (e *DecisionEngine) Decide(probability float64) (transaction.RiskLevel, transaction.Recommendation) {
	selected := e.thresholds[0]
	for _, t := range e.thresholds[1:] {
		if probability >= t.Threshold {
			selected = t
		}
	}
	return selected.RiskLevel, selected.Recommendation
}

// Annotate derives human-readable reasons (for low scores) and flags (for
// elevated scores) from the inputs that produced the score.
func (e *DecisionEngine) Annotate(probability float64, tx *transaction.Transaction, agg transaction.VelocityAggregates, geo GeoInfo) (reasons, flags []string) {
	amount := tx.Amount.InexactFloat64()

	if probability < 0.3 {
		if agg.Customer.D7.Count > 0 {
			reasons = append(reasons, "established customer history")
		}
		if !amountAnomalous(amount, agg.Customer) {
			reasons = append(reasons, "normal spending pattern")
		}
		if len(reasons) == 0 {
			reasons = append(reasons, "no significant fraud indicators")
		}
		return reasons, nil
	}

	if probability >= 0.5 {
		if velocitySpike(agg) {
			flags = append(flags, "velocity_spike")
		}
		if amountAnomalous(amount, agg.Customer) || amount >= highValueThreshold {
			flags = append(flags, "anomalous_amount")
		}
		if isHighRiskCountry(geo.CountryCode) {
			flags = append(flags, "anomalous_geolocation")
		}
		if isDisposableDomain(tx.EmailDomain()) {
			flags = append(flags, "disposable_email_domain")
		}
		hour := tx.Timestamp.UTC().Hour()
		if hour >= nightStartHour && hour < nightEndHour {
			flags = append(flags, "night_activity")
		}
	}
	return nil, flags
}

// velocitySpike fires when the last hour alone carries a large share of the
// week's activity for any subject.
func velocitySpike(agg transaction.VelocityAggregates) bool {
	for _, w := range []transaction.VelocityWindows{agg.Customer, agg.IP, agg.Merchant} {
		if w.H1.Count >= 5 {
			return true
		}
		if w.D7.Count >= 4 && w.H1.Count*2 >= w.D7.Count {
			return true
		}
	}
	return false
}

// amountAnomalous compares the amount against the customer's 7-day average.
func amountAnomalous(amount float64, customer transaction.VelocityWindows) bool {
	if customer.D7.Count == 0 {
		return amount >= highValueThreshold
	}
	avg := customer.D7.Sum / float64(customer.D7.Count)
	return avg > 0 && amount >= 5*avg
}
