package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/polkiloo/bookshop/internal/domain/model"
	"github.com/polkiloo/bookshop/internal/metrics"
)

const defaultSweepBatch = 100

// Lock guards the sweep so that a single instance runs it at a time.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// ExpiryFacade exposes the coordinator operations the sweeper needs.
type ExpiryFacade interface {
	ExpiredBefore(ctx context.Context, cutoff time.Time, limit int) ([]model.Order, error)
	CloseIfExpired(ctx context.Context, outTradeNo string) (*model.TransitionResult, error)
	PendingTTL() time.Duration
	Now() time.Time
}

// ExpirySweeper periodically closes pending orders whose payment window elapsed.
type ExpirySweeper struct {
	facade    ExpiryFacade
	lock      Lock
	interval  time.Duration
	batchSize int
	metrics   *metrics.Metrics
	logger    *slog.Logger

	wg     sync.WaitGroup
	cancel context.CancelFunc
	mu     sync.Mutex
}

// NewExpirySweeper constructs the sweeper. A nil lock means the sweep always runs.
func NewExpirySweeper(facade ExpiryFacade, lock Lock, interval time.Duration, batchSize int, m *metrics.Metrics, logger *slog.Logger) *ExpirySweeper {
	if batchSize <= 0 {
		batchSize = defaultSweepBatch
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &ExpirySweeper{
		facade:    facade,
		lock:      lock,
		interval:  interval,
		batchSize: batchSize,
		metrics:   m,
		logger:    logger,
	}
}

// Start launches the sweep loop.
func (s *ExpirySweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.loop(runCtx)
}

// Stop waits for an in-flight sweep to finish.
func (s *ExpirySweeper) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *ExpirySweeper) loop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.logger.Error("expiry sweep failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Sweep closes one batch of expired orders and returns how many were closed.
// Failures on individual orders do not stop the batch.
func (s *ExpirySweeper) Sweep(ctx context.Context) (closed int, err error) {
	if s.lock != nil {
		acquired, lockErr := s.lock.Acquire(ctx)
		if lockErr != nil {
			return 0, fmt.Errorf("acquire sweep lock: %w", lockErr)
		}
		if !acquired {
			s.logger.Debug("expiry sweep skipped, lock held elsewhere")
			return 0, nil
		}
		defer func() {
			err = multierr.Append(err, s.lock.Release(context.WithoutCancel(ctx)))
		}()
	}

	start := time.Now()
	defer func() { s.metrics.ObserveSweep(time.Since(start)) }()

	cutoff := s.facade.Now().Add(-s.facade.PendingTTL())
	orders, err := s.facade.ExpiredBefore(ctx, cutoff, s.batchSize)
	if err != nil {
		return 0, fmt.Errorf("list expired orders: %w", err)
	}

	for _, order := range orders {
		if ctx.Err() != nil {
			return closed, multierr.Append(err, ctx.Err())
		}
		result, closeErr := s.facade.CloseIfExpired(ctx, order.OutTradeNo)
		if closeErr != nil {
			err = multierr.Append(err, fmt.Errorf("close %s: %w", order.OutTradeNo, closeErr))
			continue
		}
		if result.Applied {
			closed++
		}
	}
	if closed > 0 {
		s.logger.Info("expired orders closed", slog.Int("count", closed))
	}
	return closed, err
}
