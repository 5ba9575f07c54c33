// Package repository provides the PostgreSQL adapter for the historical
// transaction store.
package repository

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/sentinelpay/fraud-scoring-backend/internal/domain/errors"
	"github.com/sentinelpay/fraud-scoring-backend/internal/domain/transaction"
	"github.com/sentinelpay/fraud-scoring-backend/internal/infrastructure/config"
	"github.com/sentinelpay/fraud-scoring-backend/internal/infrastructure/metrics"
)

// TransactionRepository reads windowed history and records scored
// transactions in PostgreSQL.
type TransactionRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPool builds the pgx connection pool from configuration.
func NewPool(ctx context.Context, cfg *config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing database url: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	poolCfg.ConnConfig.ConnectTimeout = cfg.AcquireTimeout

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	return pool, nil
}

// NewTransactionRepository creates the store adapter.
func NewTransactionRepository(pool *pgxpool.Pool, logger *zap.Logger) *TransactionRepository {
	return &TransactionRepository{pool: pool, logger: logger}
}

// velocityQuery fetches all nine (subject, window) aggregates in a single
// round trip. The outer predicate bounds the scan to the widest window and
// the three subjects; per-subject indexes keep cost proportional to result
// size, which is the store's obligation, not this component's.
const velocityQuery = `
SELECT
    COUNT(*)                 FILTER (WHERE customer_email = $1 AND occurred_at >= $4) AS cust_1h_count,
    COALESCE(SUM(amount) FILTER (WHERE customer_email = $1 AND occurred_at >= $4), 0)::float8 AS cust_1h_sum,
    COUNT(*)                 FILTER (WHERE customer_email = $1 AND occurred_at >= $5) AS cust_24h_count,
    COALESCE(SUM(amount) FILTER (WHERE customer_email = $1 AND occurred_at >= $5), 0)::float8 AS cust_24h_sum,
    COUNT(*)                 FILTER (WHERE customer_email = $1)                       AS cust_7d_count,
    COALESCE(SUM(amount) FILTER (WHERE customer_email = $1), 0)::float8               AS cust_7d_sum,
    COUNT(*)                 FILTER (WHERE customer_ip = $2 AND occurred_at >= $4)    AS ip_1h_count,
    COALESCE(SUM(amount) FILTER (WHERE customer_ip = $2 AND occurred_at >= $4), 0)::float8 AS ip_1h_sum,
    COUNT(*)                 FILTER (WHERE customer_ip = $2 AND occurred_at >= $5)    AS ip_24h_count,
    COALESCE(SUM(amount) FILTER (WHERE customer_ip = $2 AND occurred_at >= $5), 0)::float8 AS ip_24h_sum,
    COUNT(*)                 FILTER (WHERE customer_ip = $2)                          AS ip_7d_count,
    COALESCE(SUM(amount) FILTER (WHERE customer_ip = $2), 0)::float8                  AS ip_7d_sum,
    COUNT(*)                 FILTER (WHERE merchant_id = $3 AND occurred_at >= $4)    AS merch_1h_count,
    COALESCE(SUM(amount) FILTER (WHERE merchant_id = $3 AND occurred_at >= $4), 0)::float8 AS merch_1h_sum,
    COUNT(*)                 FILTER (WHERE merchant_id = $3 AND occurred_at >= $5)    AS merch_24h_count,
    COALESCE(SUM(amount) FILTER (WHERE merchant_id = $3 AND occurred_at >= $5), 0)::float8 AS merch_24h_sum,
    COUNT(*)                 FILTER (WHERE merchant_id = $3)                          AS merch_7d_count,
    COALESCE(SUM(amount) FILTER (WHERE merchant_id = $3), 0)::float8                  AS merch_7d_sum
FROM transactions
WHERE occurred_at >= $6 AND occurred_at < $7
  AND (customer_email = $1 OR customer_ip = $2 OR merchant_id = $3)
`

// FetchVelocityAggregates computes counts and sums of prior transactions for
// every (subject, window) pair, evaluated as of asOf rather than wall clock
// so results stay reproducible. Zero history returns the zero value.
func (r *TransactionRepository) FetchVelocityAggregates(ctx context.Context, customerEmail, customerIP, merchantID string, asOf time.Time) (transaction.VelocityAggregates, error) {
	start := time.Now()
	defer func() {
		metrics.VelocityQueryDuration.Observe(time.Since(start).Seconds())
	}()

	var agg transaction.VelocityAggregates
	row := r.pool.QueryRow(ctx, velocityQuery,
		customerEmail, customerIP, merchantID,
		asOf.Add(-time.Hour), asOf.Add(-24*time.Hour), asOf.Add(-7*24*time.Hour), asOf,
	)

	err := row.Scan(
		&agg.Customer.H1.Count, &agg.Customer.H1.Sum,
		&agg.Customer.H24.Count, &agg.Customer.H24.Sum,
		&agg.Customer.D7.Count, &agg.Customer.D7.Sum,
		&agg.IP.H1.Count, &agg.IP.H1.Sum,
		&agg.IP.H24.Count, &agg.IP.H24.Sum,
		&agg.IP.D7.Count, &agg.IP.D7.Sum,
		&agg.Merchant.H1.Count, &agg.Merchant.H1.Sum,
		&agg.Merchant.H24.Count, &agg.Merchant.H24.Sum,
		&agg.Merchant.D7.Count, &agg.Merchant.D7.Sum,
	)
	if err != nil {
		return transaction.VelocityAggregates{}, r.mapError(ctx, err, "velocity aggregate query")
	}
	return agg, nil
}

// SaveScored records a transaction together with its score result. Called
// after scoring completes, never before.
func (r *TransactionRepository) SaveScored(ctx context.Context, tx *transaction.Transaction, result *transaction.ScoreResult) error {
	query := `
		INSERT INTO transactions (
			id, transaction_id, amount, currency, occurred_at,
			customer_email, customer_ip, merchant_id,
			instrument_type, instrument_bin, instrument_last4, instrument_brand,
			fraud_score, risk_level, recommendation, model_version, scored_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17
		)
		ON CONFLICT (transaction_id) DO NOTHING
	`

	_, err := r.pool.Exec(ctx, query,
		uuid.New(), tx.ID, tx.Amount, tx.Currency, tx.Timestamp,
		tx.CustomerEmail, tx.CustomerIP, tx.MerchantID,
		tx.Instrument.Type, tx.Instrument.BIN, tx.Instrument.Last4, tx.Instrument.Brand,
		result.FraudScore, result.RiskLevel, result.Recommendation, result.ModelVersion, result.ComputedAt,
	)
	if err != nil {
		return r.mapError(ctx, err, "scored transaction insert")
	}
	return nil
}

// Ping checks connectivity, used by the readiness probe.
func (r *TransactionRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// mapError converts driver failures into the pipeline's typed errors:
// deadline expiry becomes Timeout (degraded-response path), everything
// else becomes DependencyUnavailable. Zeros are never substituted here.
func (r *TransactionRepository) mapError(ctx context.Context, err error, op string) error {
	if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
		return errors.NewTimeoutError(op).WithCause(err)
	}
	r.logger.Error("historical store error",
		zap.String("op", op),
		zap.Error(err))
	return errors.NewDependencyUnavailableError("historical store", op).WithCause(err)
}
