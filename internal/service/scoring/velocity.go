package scoring

import (
	"context"

	"go.uber.org/zap"

	"github.com/sentinelpay/fraud-scoring-backend/internal/domain/transaction"
)

// Aggregator computes windowed velocity features from the historical store.
// It is a thin boundary over the store's single-round-trip aggregate query:
// zero history comes back as zero aggregates, but an unreachable store
// surfaces as a typed error rather than silent zeros, because substituting
// zeros would systematically under-score risk.
type Aggregator struct {
	store  HistoricalStore
	logger *zap.Logger
}

// NewAggregator creates the velocity aggregator.
func NewAggregator(store HistoricalStore, logger *zap.Logger) *Aggregator {
	return &Aggregator{store: store, logger: logger}
}

// Fetch returns counts and sums of prior transactions for each
// (subject, window) pair, evaluated as of the transaction timestamp so
// results are reproducible regardless of when the call runs.
func (a *Aggregator) Fetch(ctx context.Context, tx *transaction.Transaction) (transaction.VelocityAggregates, error) {
	agg, err := a.store.FetchVelocityAggregates(ctx, tx.CustomerEmail, tx.CustomerIP, tx.MerchantID, tx.Timestamp)
	if err != nil {
		return transaction.VelocityAggregates{}, err
	}
	return agg, nil
}
