package scoring

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/sentinelpay/fraud-scoring-backend/internal/domain/transaction"
	"github.com/sentinelpay/fraud-scoring-backend/internal/infrastructure/metrics"
)

type persistJob struct {
	tx     *transaction.Transaction
	result *transaction.ScoreResult
}

// AsyncPersister writes scored transactions to the historical store off the
// request path. Persistence failures never fail the scoring response; they
// are retried with bounded exponential backoff and dropped (with an error
// log) once the retry budget is spent.
type AsyncPersister struct {
	store      HistoricalStore
	logger     *zap.Logger
	queueSize  int
	maxElapsed time.Duration
	wg         sync.WaitGroup
	cancel     context.CancelFunc

	mu      sync.Mutex
	jobs    chan persistJob
	started bool
}

// NewAsyncPersister creates the persister with a bounded queue.
func NewAsyncPersister(store HistoricalStore, queueSize int, maxElapsed time.Duration, logger *zap.Logger) *AsyncPersister {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &AsyncPersister{
		store:      store,
		logger:     logger,
		queueSize:  queueSize,
		maxElapsed: maxElapsed,
		jobs:       make(chan persistJob, queueSize),
	}
}

// Start launches the worker. Idempotent, and safe to call again after Stop:
// a fresh queue replaces the one Stop drained.
func (p *AsyncPersister) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	if p.jobs == nil {
		p.jobs = make(chan persistJob, p.queueSize)
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.started = true
	p.wg.Add(1)
	go p.run(ctx, p.jobs)
}

// Stop drains in-flight work and shuts the worker down.
func (p *AsyncPersister) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	close(p.jobs)
	p.jobs = nil
	p.mu.Unlock()

	p.wg.Wait()
	p.cancel()
}

// Enqueue hands off a scored transaction for persistence. Fire-and-forget:
// when the queue is full, or the persister is not running, the job is
// dropped and logged rather than blocking the scoring path.
func (p *AsyncPersister) Enqueue(tx *transaction.Transaction, result *transaction.ScoreResult) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		p.logger.Error("persister not running, dropping scored transaction",
			zap.String("transaction_id", tx.ID))
		return
	}

	select {
	case p.jobs <- persistJob{tx: tx, result: result}:
		metrics.PersistQueueDepth.Set(float64(len(p.jobs)))
	default:
		p.logger.Error("persist queue full, dropping scored transaction",
			zap.String("transaction_id", tx.ID))
	}
}

func (p *AsyncPersister) run(ctx context.Context, jobs chan persistJob) {
	defer p.wg.Done()
	for job := range jobs {
		p.persist(ctx, job)
		metrics.PersistQueueDepth.Set(float64(len(jobs)))
	}
}

func (p *AsyncPersister) persist(ctx context.Context, job persistJob) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 100 * time.Millisecond
	policy.MaxElapsedTime = p.maxElapsed

	attempt := 0
	err := backoff.Retry(func() error {
		if attempt > 0 {
			metrics.PersistRetriesTotal.Inc()
		}
		attempt++
		opCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		return p.store.SaveScored(opCtx, job.tx, job.result)
	}, backoff.WithContext(policy, ctx))

	if err != nil {
		p.logger.Error("failed to persist scored transaction after retries",
			zap.String("transaction_id", job.tx.ID),
			zap.Error(err),
			zap.Int("attempts", attempt))
	}
}
