package router

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	"github.com/polkiloo/bookshop/internal/app"
	"github.com/polkiloo/bookshop/internal/config"
	"github.com/polkiloo/bookshop/internal/server/http/handlers"
)

// Module registers HTTP router construction for fx runtime.
var Module = fx.Options(
	fx.Provide(
		func(f *app.BookshopFacade) handlers.BookshopFacade { return f },
		newRouter,
	),
)

func newRouter(facade handlers.BookshopFacade, gatherer prometheus.Gatherer, cfg *config.Config, logger *slog.Logger) *gin.Engine {
	return Setup(facade, gatherer, logger, cfg.AdminRegisterKey)
}
