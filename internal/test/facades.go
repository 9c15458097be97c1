package test

import (
	"context"
	"sync"
	"time"

	"github.com/polkiloo/bookshop/internal/domain/model"
)

// OrderFacadeStub provides controllable behaviour for buyer order endpoints.
type OrderFacadeStub struct {
	CreateFn func(context.Context, model.CreateOrderRequest) (*model.Checkout, error)
	GetFn    func(context.Context, string) (*model.Order, error)
	ListFn   func(context.Context, model.OrderFilter) ([]model.Order, error)
	CloseFn  func(context.Context, string) (*model.TransitionResult, error)
}

// CreateOrder delegates to provided function or returns a pending order.
func (s OrderFacadeStub) CreateOrder(ctx context.Context, req model.CreateOrderRequest) (*model.Checkout, error) {
	if s.CreateFn != nil {
		return s.CreateFn(ctx, req)
	}
	order := &model.Order{ID: 1, OutTradeNo: "no-1", OpenID: req.OpenID, Status: model.OrderStatusPendingPayment, Money: 100}
	return &model.Checkout{Order: order, PayParams: map[string]string{"package": "prepay_id=stub"}}, nil
}

// GetOrder returns the configured order.
func (s OrderFacadeStub) GetOrder(ctx context.Context, outTradeNo string) (*model.Order, error) {
	if s.GetFn != nil {
		return s.GetFn(ctx, outTradeNo)
	}
	return &model.Order{ID: 1, OutTradeNo: outTradeNo, Status: model.OrderStatusPendingPayment}, nil
}

// ListOrders returns predefined orders.
func (s OrderFacadeStub) ListOrders(ctx context.Context, filter model.OrderFilter) ([]model.Order, error) {
	if s.ListFn != nil {
		return s.ListFn(ctx, filter)
	}
	return []model.Order{{ID: 1, OutTradeNo: "no-1", OpenID: filter.OpenID, Status: model.OrderStatusPaid, CreatedAt: time.Unix(0, 0)}}, nil
}

// CloseOrder reports an applied close unless overridden.
func (s OrderFacadeStub) CloseOrder(ctx context.Context, outTradeNo string) (*model.TransitionResult, error) {
	if s.CloseFn != nil {
		return s.CloseFn(ctx, outTradeNo)
	}
	return &model.TransitionResult{Order: &model.Order{OutTradeNo: outTradeNo, Status: model.OrderStatusClosed}, Applied: true}, nil
}

// AdminFacadeStub simulates operator actions.
type AdminFacadeStub struct {
	RequestFn  func(context.Context, int64, string) (*model.TransitionResult, error)
	ResubmitFn func(context.Context, int64) (*model.TransitionResult, error)
	AdjustFn   func(context.Context, int64, int) (*model.Book, error)
}

// RequestRefund reports an applied refund request unless overridden.
func (s AdminFacadeStub) RequestRefund(ctx context.Context, orderID int64, reason string) (*model.TransitionResult, error) {
	if s.RequestFn != nil {
		return s.RequestFn(ctx, orderID, reason)
	}
	order := &model.Order{ID: orderID, Status: model.OrderStatusRefundRequested, RefundReason: reason}
	return &model.TransitionResult{Order: order, Applied: true}, nil
}

// ResubmitRefund reports an applied resubmission unless overridden.
func (s AdminFacadeStub) ResubmitRefund(ctx context.Context, orderID int64) (*model.TransitionResult, error) {
	if s.ResubmitFn != nil {
		return s.ResubmitFn(ctx, orderID)
	}
	return &model.TransitionResult{Order: &model.Order{ID: orderID, Status: model.OrderStatusRefundRequested}, Applied: true}, nil
}

// AdjustStock returns a book with the delta applied to a stock of ten.
func (s AdminFacadeStub) AdjustStock(ctx context.Context, bookID int64, delta int) (*model.Book, error) {
	if s.AdjustFn != nil {
		return s.AdjustFn(ctx, bookID, delta)
	}
	return &model.Book{ID: bookID, Name: "stub", Stock: 10 + delta}, nil
}

// WebhookFacadeStub records gateway notifications.
type WebhookFacadeStub struct {
	PaymentFn func(context.Context, model.NotificationHeaders, []byte) error
	RefundFn  func(context.Context, model.NotificationHeaders, []byte) error
}

// HandlePayment delegates to the override.
func (s WebhookFacadeStub) HandlePayment(ctx context.Context, headers model.NotificationHeaders, body []byte) error {
	if s.PaymentFn != nil {
		return s.PaymentFn(ctx, headers, body)
	}
	return nil
}

// HandleRefund delegates to the override.
func (s WebhookFacadeStub) HandleRefund(ctx context.Context, headers model.NotificationHeaders, body []byte) error {
	if s.RefundFn != nil {
		return s.RefundFn(ctx, headers, body)
	}
	return nil
}

// HealthStub answers readiness probes.
type HealthStub struct {
	Err error
}

// HealthCheck returns the configured error.
func (s HealthStub) HealthCheck(context.Context) error {
	return s.Err
}

// FulfillmentFacadeStub mimics the fulfillment use case for worker tests.
type FulfillmentFacadeStub struct {
	Due       [][]model.Order
	FulfillFn func(context.Context, int64) error

	mu        sync.Mutex
	dueCalls  int
	fulfilled []int64
}

// DueOrders returns configured batches, then nothing.
func (s *FulfillmentFacadeStub) DueOrders(ctx context.Context, limit int) ([]model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dueCalls++
	if s.dueCalls <= len(s.Due) {
		return s.Due[s.dueCalls-1], nil
	}
	return nil, nil
}

// Fulfill records the order id.
func (s *FulfillmentFacadeStub) Fulfill(ctx context.Context, orderID int64) error {
	s.mu.Lock()
	s.fulfilled = append(s.fulfilled, orderID)
	s.mu.Unlock()
	if s.FulfillFn != nil {
		return s.FulfillFn(ctx, orderID)
	}
	return nil
}

// Fulfilled returns a copy of the processed order ids.
func (s *FulfillmentFacadeStub) Fulfilled() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.fulfilled...)
}

// ExpiryFacadeStub mimics the coordinator for sweeper tests.
type ExpiryFacadeStub struct {
	Expired  []model.Order
	ListErr  error
	CloseErr map[string]error
	Skip     map[string]bool
	TTL      time.Duration
	At       time.Time

	mu     sync.Mutex
	Cutoff time.Time
	Closed []string
}

// ExpiredBefore records the cutoff and returns the configured orders.
func (s *ExpiryFacadeStub) ExpiredBefore(ctx context.Context, cutoff time.Time, limit int) ([]model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Cutoff = cutoff
	if s.ListErr != nil {
		return nil, s.ListErr
	}
	if limit < len(s.Expired) {
		return s.Expired[:limit], nil
	}
	return s.Expired, nil
}

// CloseIfExpired closes unless configured to fail or skip.
func (s *ExpiryFacadeStub) CloseIfExpired(ctx context.Context, outTradeNo string) (*model.TransitionResult, error) {
	if err := s.CloseErr[outTradeNo]; err != nil {
		return nil, err
	}
	order := &model.Order{OutTradeNo: outTradeNo, Status: model.OrderStatusClosed}
	if s.Skip[outTradeNo] {
		order.Status = model.OrderStatusPaid
		return &model.TransitionResult{Order: order}, nil
	}
	s.mu.Lock()
	s.Closed = append(s.Closed, outTradeNo)
	s.mu.Unlock()
	return &model.TransitionResult{Order: order, Applied: true}, nil
}

// ClosedOrders returns a copy of the closed order numbers.
func (s *ExpiryFacadeStub) ClosedOrders() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.Closed...)
}

// PendingTTL returns the configured window.
func (s *ExpiryFacadeStub) PendingTTL() time.Duration { return s.TTL }

// Now returns the configured instant.
func (s *ExpiryFacadeStub) Now() time.Time { return s.At }

// LockStub is an in-process lock with failure injection.
type LockStub struct {
	Held       bool
	AcquireErr error
	ReleaseErr error
	Releases   int
}

// Acquire succeeds when the lock is free.
func (l *LockStub) Acquire(context.Context) (bool, error) {
	if l.AcquireErr != nil {
		return false, l.AcquireErr
	}
	if l.Held {
		return false, nil
	}
	l.Held = true
	return true, nil
}

// Release frees the lock.
func (l *LockStub) Release(context.Context) error {
	l.Releases++
	l.Held = false
	return l.ReleaseErr
}
