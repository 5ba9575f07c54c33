package scoring

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/sentinelpay/fraud-scoring-backend/internal/domain/errors"
	"github.com/sentinelpay/fraud-scoring-backend/internal/domain/transaction"
)

type flakyStore struct {
	fakeStore
	failFirst int64
	attempts  atomic.Int64
}

func (s *flakyStore) SaveScored(ctx context.Context, tx *transaction.Transaction, result *transaction.ScoreResult) error {
	if s.attempts.Add(1) <= s.failFirst {
		return errors.NewDependencyUnavailableError("postgres", "connection reset")
	}
	return s.fakeStore.SaveScored(ctx, tx, result)
}

func TestPersisterRetriesUntilSuccess(t *testing.T) {
	store := &flakyStore{failFirst: 2}
	p := NewAsyncPersister(store, 8, 5*time.Second, zaptest.NewLogger(t))
	p.Start()
	defer p.Stop()

	p.Enqueue(testTransaction(), &transaction.ScoreResult{TransactionID: "tx-1"})

	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return len(store.saved) == 1
	}, 3*time.Second, 20*time.Millisecond)
	assert.Equal(t, int64(3), store.attempts.Load())
}

func TestPersisterGivesUpAfterBudget(t *testing.T) {
	store := &fakeStore{saveErr: errors.NewDependencyUnavailableError("postgres", "down")}
	p := NewAsyncPersister(store, 8, 300*time.Millisecond, zaptest.NewLogger(t))
	p.Start()

	p.Enqueue(testTransaction(), &transaction.ScoreResult{TransactionID: "tx-1"})
	p.Stop() // drains the queue, waiting out the retry budget

	assert.GreaterOrEqual(t, store.saveCalls.Load(), int64(2))
	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Empty(t, store.saved)
}

func TestPersisterDropsWhenQueueFull(t *testing.T) {
	store := &fakeStore{}
	p := NewAsyncPersister(store, 1, time.Second, zaptest.NewLogger(t))
	// Mark running without a worker so the queue can only fill up.
	p.started = true
	defer func() { p.started = false }()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			p.Enqueue(testTransaction(), &transaction.ScoreResult{TransactionID: "tx-1"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Enqueue blocked on a full queue")
	}
}

func TestPersisterEnqueueWithoutStartDoesNotPanic(t *testing.T) {
	store := &fakeStore{}
	p := NewAsyncPersister(store, 4, time.Second, zaptest.NewLogger(t))

	p.Enqueue(testTransaction(), &transaction.ScoreResult{TransactionID: "tx-1"})
	assert.Zero(t, store.saveCalls.Load())
}

func TestPersisterRestartAfterStop(t *testing.T) {
	store := &fakeStore{}
	p := NewAsyncPersister(store, 8, time.Second, zaptest.NewLogger(t))

	p.Start()
	p.Enqueue(testTransaction(), &transaction.ScoreResult{TransactionID: "tx-1"})
	p.Stop()

	// Enqueue between Stop and the next Start drops instead of panicking
	// on the drained queue.
	p.Enqueue(testTransaction(), &transaction.ScoreResult{TransactionID: "tx-2"})

	p.Start()
	p.Enqueue(testTransaction(), &transaction.ScoreResult{TransactionID: "tx-3"})
	p.Stop()

	assert.Equal(t, int64(2), store.saveCalls.Load())
}

func TestPersisterStopDrainsPending(t *testing.T) {
	store := &fakeStore{}
	p := NewAsyncPersister(store, 16, time.Second, zaptest.NewLogger(t))
	p.Start()

	for i := 0; i < 5; i++ {
		p.Enqueue(testTransaction(), &transaction.ScoreResult{TransactionID: "tx-1"})
	}
	p.Stop()

	assert.Equal(t, int64(5), store.saveCalls.Load())
}
