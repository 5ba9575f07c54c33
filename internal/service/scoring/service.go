// Package scoring implements the real-time fraud scoring pipeline: velocity
// aggregation, feature assembly, model invocation, and decision rules behind
// a two-tier cache with single-flight semantics per transaction fingerprint.
package scoring

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/sentinelpay/fraud-scoring-backend/internal/domain/errors"
	"github.com/sentinelpay/fraud-scoring-backend/internal/domain/transaction"
	"github.com/sentinelpay/fraud-scoring-backend/internal/infrastructure/cache"
	"github.com/sentinelpay/fraud-scoring-backend/internal/infrastructure/metrics"
	"github.com/sentinelpay/fraud-scoring-backend/internal/infrastructure/telemetry"
)

// Config carries the orchestrator's operational knobs.
type Config struct {
	// Deadline is the hard wall-clock budget for one scoring attempt.
	Deadline time.Duration
	// ScoreTTL bounds how long a fingerprint maps to a cached result.
	// Short on purpose: velocity features go stale as new transactions land.
	ScoreTTL time.Duration
	// DegradedScore is the fixed probability of the fallback result.
	DegradedScore float64
}

// Service is the scoring orchestrator. Per request:
// validate, check cache, on miss compute features, invoke the model, apply
// decision rules, warm the cache, persist asynchronously, respond within
// budget. Single-flight per fingerprint guarantees at most one model
// invocation per fresh transaction under concurrent retries.
type Service struct {
	cache      cache.Cache
	aggregator *Aggregator
	assembler  *Assembler
	model      Predictor
	decision   *DecisionEngine
	geo        GeoResolver
	persister  *AsyncPersister
	logger     *zap.Logger
	tracer     trace.Tracer
	cfg        Config

	now func() time.Time
}

// NewService wires the pipeline. The model is an injected singleton; the
// service never loads or mutates it.
func NewService(
	c cache.Cache,
	aggregator *Aggregator,
	assembler *Assembler,
	model Predictor,
	decision *DecisionEngine,
	geo GeoResolver,
	persister *AsyncPersister,
	logger *zap.Logger,
	cfg Config,
) *Service {
	return &Service{
		cache:      c,
		aggregator: aggregator,
		assembler:  assembler,
		model:      model,
		decision:   decision,
		geo:        geo,
		persister:  persister,
		logger:     logger,
		tracer:     telemetry.Tracer("scoring"),
		cfg:        cfg,
		now:        time.Now,
	}
}

// Ready reports whether the service can accept scoring traffic.
func (s *Service) Ready() bool {
	return s.model.Ready()
}

// Score runs one transaction through the pipeline and returns its result
// together with how it was produced (fresh, cache, degraded).
//
// Errors reaching the caller are terminal for the request (validation,
// model not ready, unexpected internal failures). Dependency outages and
// deadline expiry never surface as errors: a payment decision system must
// not block or return nothing, so those degrade to the fixed fallback
// result, erring toward manual review.
func (s *Service) Score(ctx context.Context, tx *transaction.Transaction) (*transaction.ScoreResult, transaction.ScoreSource, error) {
	start := s.now()

	// Fail fast, before any I/O.
	if err := tx.Validate(); err != nil {
		return nil, "", err
	}
	if !s.model.Ready() {
		s.logger.Error("scoring request with no model loaded",
			zap.String("transaction_id", tx.ID))
		return nil, "", errors.NewModelNotReadyError()
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Deadline)
	defer cancel()

	ctx, span := s.tracer.Start(ctx, "scoring.Score",
		trace.WithAttributes(attribute.String("transaction.id", tx.ID)))
	defer span.End()

	computed := false
	var result transaction.ScoreResult
	err := s.cache.GetOrCompute(ctx, cache.ScorePrefix+tx.Fingerprint(), s.cfg.ScoreTTL, &result,
		func(ctx context.Context) (interface{}, error) {
			computed = true
			return s.compute(ctx, tx)
		})

	switch {
	case err == nil:
		source := transaction.SourceCache
		if computed {
			source = transaction.SourceFresh
		}
		s.observe(start, source, result.RiskLevel)
		return &result, source, nil

	case errors.IsType(err, errors.ErrorTypeTimeout), errors.IsType(err, errors.ErrorTypeDependency):
		reason := "dependency_unavailable"
		if errors.IsType(err, errors.ErrorTypeTimeout) {
			reason = "timeout"
		}
		metrics.DegradedResponsesTotal.WithLabelValues(reason).Inc()
		s.logger.Warn("degrading to fallback result",
			zap.String("transaction_id", tx.ID),
			zap.String("reason", reason),
			zap.Error(err))
		fallback := s.degradedResult(tx)
		s.observe(start, transaction.SourceDegraded, fallback.RiskLevel)
		return fallback, transaction.SourceDegraded, nil

	default:
		telemetry.RecordError(span, err)
		s.logger.Error("scoring failed",
			zap.String("transaction_id", tx.ID),
			zap.Error(err))
		return nil, "", err
	}
}

// compute is the cache-miss path. It runs at most once per fingerprint
// across concurrent callers; everything it touches respects the attempt
// deadline carried by ctx.
func (s *Service) compute(ctx context.Context, tx *transaction.Transaction) (*transaction.ScoreResult, error) {
	ctx, span := s.tracer.Start(ctx, "scoring.compute")
	defer span.End()

	agg, err := s.aggregator.Fetch(ctx, tx)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	// Geolocation is enrichment: a resolver failure downgrades the geo
	// feature to unknown instead of failing the attempt.
	geo, err := s.geo.Resolve(ctx, tx.CustomerIP)
	if err != nil {
		s.logger.Warn("geolocation unavailable",
			zap.String("ip", tx.CustomerIP),
			zap.Error(err))
		geo = GeoInfo{}
	}

	features := s.assembler.Assemble(tx, agg, geo)

	probability, modelVersion, err := s.model.Predict(features)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	riskLevel, recommendation := s.decision.Decide(probability)
	reasons, flags := s.decision.Annotate(probability, tx, agg, geo)

	result := &transaction.ScoreResult{
		TransactionID:  tx.ID,
		FraudScore:     probability,
		RiskLevel:      riskLevel,
		Recommendation: recommendation,
		Reasons:        reasons,
		Flags:          flags,
		ModelVersion:   modelVersion,
		ComputedAt:     s.now().UTC(),
	}

	telemetry.AddEvent(span, "scored",
		attribute.Float64("fraud_score", probability),
		attribute.String("risk_level", string(riskLevel)))

	// Persistence happens after scoring, never before, and off the request
	// path: its failure must not cost the caller the computed result.
	s.persister.Enqueue(tx, result)

	return result, nil
}

// degradedResult is the fixed-shape fallback returned when the pipeline
// cannot complete in time. Mid-range score, manual review. Never cached:
// the next attempt should try the full pipeline again.
func (s *Service) degradedResult(tx *transaction.Transaction) *transaction.ScoreResult {
	return &transaction.ScoreResult{
		TransactionID:  tx.ID,
		FraudScore:     s.cfg.DegradedScore,
		RiskLevel:      transaction.RiskMedium,
		Recommendation: transaction.RecommendReview,
		Reasons:        []string{"scoring pipeline degraded; defaulting to manual review"},
		Flags:          []string{"degraded_fallback"},
		ModelVersion:   "",
		ComputedAt:     s.now().UTC(),
	}
}

func (s *Service) observe(start time.Time, source transaction.ScoreSource, level transaction.RiskLevel) {
	metrics.ScoringDuration.WithLabelValues(string(source)).Observe(s.now().Sub(start).Seconds())
	metrics.ScoringRequestsTotal.WithLabelValues(string(source), string(level)).Inc()
}
