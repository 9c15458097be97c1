package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"

	"github.com/polkiloo/bookshop/internal/config"
	"github.com/polkiloo/bookshop/internal/metrics"
	"github.com/polkiloo/bookshop/internal/usecase"
	"github.com/polkiloo/bookshop/internal/worker"
)

// Module wires application services, runtime components, and lifecycle hooks.
var Module = fx.Options(
	fx.Provide(
		NewBookshopFacade,
		newHTTPServer,
		newFulfillmentQueue,
		func(q *worker.Queue) usecase.FulfillmentQueue { return q },
		newFulfillmentProcessor,
		newExpirySweeper,
	),
	fx.Invoke(registerLifecycle),
)

type serverParams struct {
	fx.In

	Config *config.Config
	Router *gin.Engine
}

func newHTTPServer(p serverParams) *http.Server {
	return &http.Server{
		Addr:    p.Config.RunAddress,
		Handler: p.Router,
	}
}

func newFulfillmentQueue(cfg *config.Config) *worker.Queue {
	return worker.NewQueue(cfg.FulfillmentBatch * cfg.WorkerPoolSize)
}

type processorParams struct {
	fx.In

	Fulfillment *usecase.FulfillmentUseCase
	Queue       *worker.Queue
	Config      *config.Config
	Logger      *slog.Logger
}

func newFulfillmentProcessor(p processorParams) *worker.FulfillmentProcessor {
	return worker.NewFulfillmentProcessor(
		p.Fulfillment,
		p.Queue,
		p.Config.FulfillmentPollInterval,
		p.Config.FulfillmentBatch,
		p.Config.WorkerPoolSize,
		p.Logger,
	)
}

type sweeperParams struct {
	fx.In

	Coordinator *usecase.OrderCoordinator
	Lock        worker.Lock      `optional:"true"`
	Metrics     *metrics.Metrics `optional:"true"`
	Config      *config.Config
	Logger      *slog.Logger
}

func newExpirySweeper(p sweeperParams) *worker.ExpirySweeper {
	return worker.NewExpirySweeper(
		p.Coordinator,
		p.Lock,
		p.Config.ExpirySweepPeriod,
		p.Config.FulfillmentBatch,
		p.Metrics,
		p.Logger,
	)
}

type lifecycleParams struct {
	fx.In

	Lifecycle  fx.Lifecycle
	Shutdowner fx.Shutdowner
	Logger     *slog.Logger
	Server     *http.Server
	Processor  *worker.FulfillmentProcessor
	Sweeper    *worker.ExpirySweeper
	Config     *config.Config
}

func registerLifecycle(p lifecycleParams) {
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			p.Logger.Info("starting bookshop", slog.String("addr", p.Server.Addr))
			// fx cancels the start context once OnStart returns.
			runCtx := context.WithoutCancel(ctx)
			p.Processor.Start(runCtx)
			p.Sweeper.Start(runCtx)
			go func() {
				if err := p.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					p.Logger.Error("http server terminated", slog.String("error", err.Error()))
					_ = p.Shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx := ctx
			cancel := func() {}
			if _, ok := ctx.Deadline(); !ok {
				shutdownCtx, cancel = context.WithTimeout(ctx, p.Config.ShutdownTimeout)
			}
			defer cancel()

			serverErr := p.Server.Shutdown(shutdownCtx)
			p.Sweeper.Stop()
			p.Processor.Stop()

			if serverErr != nil && !errors.Is(serverErr, http.ErrServerClosed) {
				return serverErr
			}
			p.Logger.Info("bookshop stopped")
			return nil
		},
	})
}
