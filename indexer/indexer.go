// Package indexer pushes parsed catalog entries into the backend in
// bounded batches with idempotent keyed upsert and retry.
package indexer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cpedb/cpedb-backend/backend"
	"github.com/cpedb/cpedb-backend/model"
)

// RetryPolicy is the injectable backoff policy for batch submission.
// A zero BaseDelay retries without sleeping, which tests rely on.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy caps a batch at 4 attempts with doubling delays.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts: 4,
	BaseDelay:   500 * time.Millisecond,
	MaxDelay:    10 * time.Second,
}

// newBackOff builds the cenkalti/backoff chain for one batch.
func (p RetryPolicy) newBackOff() backoff.BackOff {
	attempts := p.MaxAttempts
	if attempts <= 1 {
		// WithMaxRetries treats 0 as unlimited, so a single attempt
		// needs an explicit stop.
		return &backoff.StopBackOff{}
	}

	var bo backoff.BackOff
	if p.BaseDelay <= 0 {
		bo = &backoff.ZeroBackOff{}
	} else {
		ebo := backoff.NewExponentialBackOff()
		ebo.InitialInterval = p.BaseDelay
		ebo.MaxInterval = p.MaxDelay
		ebo.MaxElapsedTime = 0
		bo = ebo
	}

	return backoff.WithMaxRetries(bo, uint64(attempts-1))
}

// Report aggregates the outcome of one indexing run. Counts are documents,
// not batches, except FailedBatches.
type Report struct {
	Attempted     int      `json:"attempted"`
	Succeeded     int      `json:"succeeded"`
	Failed        int      `json:"failed"`
	FailedBatches int      `json:"failed_batches"`
	FailedKeys    []string `json:"failed_keys,omitempty"`
	Retries       int      `json:"retries"`
}

// Config holds the indexing settings.
type Config struct {
	BatchSize int
	Workers   int
	Retry     RetryPolicy
}

// BatchIndexer consumes an entry stream and upserts it into the backend.
// Batches are independent and keyed by NameID, so they are dispatched
// concurrently by a bounded worker pool; completion order is immaterial.
type BatchIndexer struct {
	store  backend.Store
	cfg    Config
	logger *zap.SugaredLogger
}

// unavailableBatches is the number of consecutive permanently-failed
// batches after which the backend is declared unreachable and the run
// aborts.
const unavailableBatches = 3

// NewBatchIndexer creates an indexer over the given store.
func NewBatchIndexer(store backend.Store, cfg Config, logger *zap.Logger) *BatchIndexer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1000
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetryPolicy
	}
	return &BatchIndexer{store: store, cfg: cfg, logger: logger.Sugar()}
}

// Index drains the entry channel, submitting batches until the channel
// closes or the context is canceled. Cancellation between batches leaves
// the backend consistent: every completed batch is already durably
// committed. The returned report is valid even when err is non-nil.
func (ix *BatchIndexer) Index(ctx context.Context, entries <-chan model.CPEEntry) (*Report, error) {
	report := &Report{}
	var mu sync.Mutex

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g := &errgroup.Group{}
	g.SetLimit(ix.cfg.Workers)

	consecutiveFailures := 0
	unavailable := false

	submit := func(batch []model.CPEEntry) {
		g.Go(func() error {
			retries, err := ix.submitBatch(runCtx, batch)

			mu.Lock()
			defer mu.Unlock()
			report.Retries += retries
			if err != nil {
				report.Failed += len(batch)
				report.FailedBatches++
				for _, e := range batch {
					report.FailedKeys = append(report.FailedKeys, e.NameID)
				}
				consecutiveFailures++
				if consecutiveFailures >= unavailableBatches {
					unavailable = true
					cancel()
				}
				ix.logger.Errorf("Batch of %d documents failed permanently: %v", len(batch), err)
				return nil
			}
			report.Succeeded += len(batch)
			consecutiveFailures = 0
			ix.logger.Infof("Indexed batch of %d documents. Total: %d", len(batch), report.Succeeded)
			return nil
		})
	}

	batch := make([]model.CPEEntry, 0, ix.cfg.BatchSize)

drain:
	for {
		select {
		case <-runCtx.Done():
			break drain
		case entry, ok := <-entries:
			if !ok {
				break drain
			}
			report.Attempted++
			batch = append(batch, entry)
			if len(batch) >= ix.cfg.BatchSize {
				submit(batch)
				batch = make([]model.CPEEntry, 0, ix.cfg.BatchSize)
			}
		}
	}

	if len(batch) > 0 && runCtx.Err() == nil {
		submit(batch)
	}

	_ = g.Wait()

	if unavailable {
		return report, fmt.Errorf("%d consecutive batches failed: %w", unavailableBatches, backend.ErrUnavailable)
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}

// IndexEntries is a convenience wrapper for fully materialized input.
func (ix *BatchIndexer) IndexEntries(ctx context.Context, entries []model.CPEEntry) (*Report, error) {
	// Scoped cancel unblocks the producer when Index stops early.
	feedCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	ch := make(chan model.CPEEntry)
	go func() {
		defer close(ch)
		for _, e := range entries {
			select {
			case ch <- e:
			case <-feedCtx.Done():
				return
			}
		}
	}()
	return ix.Index(ctx, ch)
}

// submitBatch upserts one batch under the retry policy, returning the
// number of retries spent.
func (ix *BatchIndexer) submitBatch(ctx context.Context, batch []model.CPEEntry) (int, error) {
	retries := -1

	op := func() error {
		retries++
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		return ix.store.BulkUpsert(ctx, batch)
	}

	err := backoff.Retry(op, ix.cfg.Retry.newBackOff())
	if retries < 0 {
		retries = 0
	}
	return retries, err
}
