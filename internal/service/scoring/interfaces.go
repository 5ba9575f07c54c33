package scoring

import (
	"context"
	"time"

	"github.com/sentinelpay/fraud-scoring-backend/internal/domain/transaction"
)

// HistoricalStore is the append-only transaction store consumed by the
// pipeline. It must serve the windowed aggregate query in a single round
// trip with latency proportional to result size.
type HistoricalStore interface {
	FetchVelocityAggregates(ctx context.Context, customerEmail, customerIP, merchantID string, asOf time.Time) (transaction.VelocityAggregates, error)
	SaveScored(ctx context.Context, tx *transaction.Transaction, result *transaction.ScoreResult) error
}

// Predictor is the loaded risk model: pure, read-only, safe for concurrent
// invocation. ModelInvoker implements it; tests use call-count spies.
type Predictor interface {
	Predict(features FeatureVector) (probability float64, modelVersion string, err error)
	Ready() bool
}

// GeoInfo is the slow-to-compute geolocation sub-result, cached with a long
// TTL because it is comparatively static.
type GeoInfo struct {
	CountryCode string `json:"country_code"`
}

// GeoResolver maps a customer IP to its geolocation.
type GeoResolver interface {
	Resolve(ctx context.Context, ip string) (GeoInfo, error)
}
