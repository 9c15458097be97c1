package app

import (
	"context"

	"github.com/polkiloo/bookshop/internal/domain/model"
	"github.com/polkiloo/bookshop/internal/usecase"
)

// HealthChecker reports whether the backing store is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// BookshopFacade joins the use cases behind a single surface for the HTTP layer.
type BookshopFacade struct {
	auth          *usecase.AuthUseCase
	coordinator   *usecase.OrderCoordinator
	notifications *usecase.NotificationUseCase
	inventory     *usecase.InventoryUseCase
	health        HealthChecker
}

func NewBookshopFacade(
	auth *usecase.AuthUseCase,
	coordinator *usecase.OrderCoordinator,
	notifications *usecase.NotificationUseCase,
	inventory *usecase.InventoryUseCase,
	health HealthChecker,
) *BookshopFacade {
	return &BookshopFacade{
		auth:          auth,
		coordinator:   coordinator,
		notifications: notifications,
		inventory:     inventory,
		health:        health,
	}
}

func (f *BookshopFacade) Register(ctx context.Context, login, password string) (string, error) {
	_, token, err := f.auth.Register(ctx, login, password)
	return token, err
}

func (f *BookshopFacade) Authenticate(ctx context.Context, login, password string) (string, error) {
	_, token, err := f.auth.Authenticate(ctx, login, password)
	return token, err
}

func (f *BookshopFacade) ParseToken(token string) (int64, error) {
	return f.auth.ParseToken(token)
}

func (f *BookshopFacade) CreateOrder(ctx context.Context, req model.CreateOrderRequest) (*model.Checkout, error) {
	return f.coordinator.CreateOrder(ctx, req)
}

func (f *BookshopFacade) GetOrder(ctx context.Context, outTradeNo string) (*model.Order, error) {
	return f.coordinator.GetOrder(ctx, outTradeNo)
}

func (f *BookshopFacade) ListOrders(ctx context.Context, filter model.OrderFilter) ([]model.Order, error) {
	return f.coordinator.ListOrders(ctx, filter)
}

func (f *BookshopFacade) CloseOrder(ctx context.Context, outTradeNo string) (*model.TransitionResult, error) {
	return f.coordinator.CloseOrder(ctx, outTradeNo)
}

func (f *BookshopFacade) RequestRefund(ctx context.Context, orderID int64, reason string) (*model.TransitionResult, error) {
	return f.coordinator.ApplyRefundRequested(ctx, orderID, reason)
}

func (f *BookshopFacade) ResubmitRefund(ctx context.Context, orderID int64) (*model.TransitionResult, error) {
	return f.coordinator.ResubmitRefund(ctx, orderID)
}

func (f *BookshopFacade) AdjustStock(ctx context.Context, bookID int64, delta int) (*model.Book, error) {
	return f.inventory.AdjustStock(ctx, bookID, delta)
}

func (f *BookshopFacade) HandlePayment(ctx context.Context, headers model.NotificationHeaders, body []byte) error {
	return f.notifications.HandlePayment(ctx, headers, body)
}

func (f *BookshopFacade) HandleRefund(ctx context.Context, headers model.NotificationHeaders, body []byte) error {
	return f.notifications.HandleRefund(ctx, headers, body)
}

// HealthCheck pings storage; a facade without a checker is always healthy.
func (f *BookshopFacade) HealthCheck(ctx context.Context) error {
	if f.health == nil {
		return nil
	}
	return f.health.HealthCheck(ctx)
}
