package di

import (
	"go.uber.org/fx"

	"github.com/polkiloo/bookshop/internal/adapter/events"
	"github.com/polkiloo/bookshop/internal/adapter/shipping"
	"github.com/polkiloo/bookshop/internal/adapter/wechatpay"
	"github.com/polkiloo/bookshop/internal/app"
	"github.com/polkiloo/bookshop/internal/config"
	"github.com/polkiloo/bookshop/internal/logger"
	"github.com/polkiloo/bookshop/internal/metrics"
	"github.com/polkiloo/bookshop/internal/pkg/auth"
	"github.com/polkiloo/bookshop/internal/server/http/router"
	"github.com/polkiloo/bookshop/internal/storage/postgres"
	"github.com/polkiloo/bookshop/internal/storage/redis"
	"github.com/polkiloo/bookshop/internal/usecase"
)

func Module(opts ...fx.Option) fx.Option {
	modules := []fx.Option{
		config.Module,
		logger.Module,
		metrics.Module,
		auth.Module,
		postgres.Module,
		redis.Module,
		wechatpay.Module,
		shipping.Module,
		events.Module,
		usecase.Module,
		fx.Provide(func(s *postgres.Storage) app.HealthChecker { return s }),
		router.Module,
		app.Module,
	}
	modules = append(modules, opts...)
	return fx.Options(modules...)
}
