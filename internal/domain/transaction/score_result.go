package transaction

import "time"

// RiskLevel is the tier derived from the model probability
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// Recommendation is the action suggested to the payment flow
type Recommendation string

const (
	RecommendApprove Recommendation = "APPROVE"
	RecommendReview  Recommendation = "REVIEW"
	RecommendDecline Recommendation = "DECLINE"
)

// ScoreSource tells the caller how the result was produced so they can
// apply their own policy to degraded or cached responses.
type ScoreSource string

const (
	SourceFresh    ScoreSource = "fresh"
	SourceCache    ScoreSource = "cache"
	SourceDegraded ScoreSource = "degraded"
)

// ScoreResult is the cacheable outcome of scoring one transaction.
// Keyed by the transaction fingerprint; within the cache TTL the same
// fingerprint always maps to the same result, byte for byte. How the
// result was served (fresh, cache, degraded) is reported alongside it,
// not inside it, so cache hits stay identical to the original.
type ScoreResult struct {
	TransactionID  string         `json:"transaction_id"`
	FraudScore     float64        `json:"fraud_score"`
	RiskLevel      RiskLevel      `json:"risk_level"`
	Recommendation Recommendation `json:"recommendation"`
	Reasons        []string       `json:"reasons,omitempty"`
	Flags          []string       `json:"flags,omitempty"`
	ModelVersion   string         `json:"model_version"`
	ComputedAt     time.Time      `json:"computed_at"`
}
