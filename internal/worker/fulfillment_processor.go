package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/polkiloo/bookshop/internal/domain/model"
)

// FulfillmentFacade exposes the fulfillment operations required by the worker.
type FulfillmentFacade interface {
	DueOrders(ctx context.Context, limit int) ([]model.Order, error)
	Fulfill(ctx context.Context, orderID int64) error
}

// FulfillmentProcessor pushes shipping info for paid orders concurrently.
// Orders arrive on the queue right after payment and from a periodic sweep
// of orders whose retry time has come.
type FulfillmentProcessor struct {
	facade       FulfillmentFacade
	queue        *Queue
	pollInterval time.Duration
	batchSize    int
	workers      int
	logger       *slog.Logger

	wg     sync.WaitGroup
	cancel context.CancelFunc
	mu     sync.Mutex
}

// NewFulfillmentProcessor constructs the fulfillment worker pool.
func NewFulfillmentProcessor(facade FulfillmentFacade, queue *Queue, pollInterval time.Duration, batchSize, workers int, logger *slog.Logger) *FulfillmentProcessor {
	if workers <= 0 {
		workers = 1
	}
	if batchSize <= 0 {
		batchSize = 1
	}
	if queue == nil {
		queue = NewQueue(batchSize * workers)
	}
	return &FulfillmentProcessor{
		facade:       facade,
		queue:        queue,
		pollInterval: pollInterval,
		batchSize:    batchSize,
		workers:      workers,
		logger:       logger,
	}
}

// Start launches background processing.
func (p *FulfillmentProcessor) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(runCtx)
	}

	p.wg.Add(1)
	go p.dispatch(runCtx)
}

// Stop waits for all workers to finish. Orders still buffered stay due in
// storage and are picked up by the next sweep.
func (p *FulfillmentProcessor) Stop() {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.mu.Unlock()

	p.wg.Wait()
}

func (p *FulfillmentProcessor) dispatch(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.fetchAndDispatch(ctx)
		}
	}
}

func (p *FulfillmentProcessor) fetchAndDispatch(ctx context.Context) {
	orders, err := p.facade.DueOrders(ctx, p.batchSize)
	if err != nil {
		p.logger.Error("fetch orders for fulfillment failed", slog.String("error", err.Error()))
		return
	}
	for _, order := range orders {
		select {
		case <-ctx.Done():
			return
		case p.queue.jobs <- order:
		}
	}
}

func (p *FulfillmentProcessor) worker(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case order := <-p.queue.jobs:
			p.handleOrder(ctx, order)
		}
	}
}

func (p *FulfillmentProcessor) handleOrder(ctx context.Context, order model.Order) {
	if err := p.facade.Fulfill(ctx, order.ID); err != nil {
		p.logger.Warn("shipping notification failed",
			slog.String("out_trade_no", order.OutTradeNo),
			slog.String("error", err.Error()),
		)
	}
}
