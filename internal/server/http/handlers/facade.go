package handlers

import (
	"context"

	"github.com/polkiloo/bookshop/internal/domain/model"
)

// AuthFacade describes authentication capabilities required by handlers.
type AuthFacade interface {
	Register(ctx context.Context, login, password string) (string, error)
	Authenticate(ctx context.Context, login, password string) (string, error)
	ParseToken(token string) (int64, error)
}

// OrderFacade encapsulates buyer order operations exposed via HTTP.
type OrderFacade interface {
	CreateOrder(ctx context.Context, req model.CreateOrderRequest) (*model.Checkout, error)
	GetOrder(ctx context.Context, outTradeNo string) (*model.Order, error)
	ListOrders(ctx context.Context, filter model.OrderFilter) ([]model.Order, error)
	CloseOrder(ctx context.Context, outTradeNo string) (*model.TransitionResult, error)
}

// AdminFacade provides operator actions.
type AdminFacade interface {
	RequestRefund(ctx context.Context, orderID int64, reason string) (*model.TransitionResult, error)
	ResubmitRefund(ctx context.Context, orderID int64) (*model.TransitionResult, error)
	AdjustStock(ctx context.Context, bookID int64, delta int) (*model.Book, error)
}

// WebhookFacade processes payment gateway notifications.
type WebhookFacade interface {
	HandlePayment(ctx context.Context, headers model.NotificationHeaders, body []byte) error
	HandleRefund(ctx context.Context, headers model.NotificationHeaders, body []byte) error
}

// HealthFacade reports readiness of the backing store.
type HealthFacade interface {
	HealthCheck(ctx context.Context) error
}

// BookshopFacade aggregates the full set of operations used across handlers.
type BookshopFacade interface {
	AuthFacade
	OrderFacade
	AdminFacade
	WebhookFacade
	HealthFacade
}
