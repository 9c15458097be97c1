package router

import (
	"log/slog"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/polkiloo/bookshop/internal/server/http/handlers"
	"github.com/polkiloo/bookshop/internal/server/http/middleware"
)

// Setup configures gin router with handlers and middleware. Operator
// registration requires registerKey and is closed when it is empty.
func Setup(facade handlers.BookshopFacade, gatherer prometheus.Gatherer, logger *slog.Logger, registerKey string) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	engine.Use(gin.Recovery())
	engine.Use(middleware.RequestLogger(logger))
	engine.Use(middleware.LimitBody(middleware.DefaultMaxBodyBytes))
	engine.Use(middleware.DecompressRequest())

	engine.GET("/healthz", handlers.NewHealthHandler(facade).Healthz)
	if gatherer != nil {
		engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	webhookHandler := handlers.NewWebhookHandler(facade)
	pay := engine.Group("/pay")
	pay.POST("/notify", webhookHandler.Payment)
	pay.POST("/refund/notify", webhookHandler.Refund)

	authHandler := handlers.NewAuthHandler(facade)
	orderHandler := handlers.NewOrderHandler(facade)
	adminHandler := handlers.NewAdminHandler(facade, facade, logger)

	api := engine.Group("/api")
	api.Use(gzip.Gzip(gzip.DefaultCompression))

	orders := api.Group("/orders")
	orders.POST("", orderHandler.Create)
	orders.GET("", orderHandler.List)
	orders.GET("/:outTradeNo", orderHandler.Get)
	orders.POST("/:outTradeNo/close", orderHandler.Close)

	admin := api.Group("/admin")
	admin.POST("/register", middleware.RequireRegisterKey(registerKey), authHandler.Register)
	admin.POST("/login", authHandler.Login)

	adminAuth := admin.Group("")
	adminAuth.Use(middleware.AuthRequired(facade))
	adminAuth.GET("/orders", adminHandler.Orders)
	adminAuth.POST("/orders/:id/refund", adminHandler.Refund)
	adminAuth.POST("/orders/:id/refund/resubmit", adminHandler.ResubmitRefund)
	adminAuth.POST("/books/:id/stock", adminHandler.AdjustStock)

	return engine
}
