package test

import (
	"context"
	"sync"

	"github.com/polkiloo/bookshop/internal/domain/model"
)

// PaymentGatewayStub records payment and refund requests.
type PaymentGatewayStub struct {
	IntentFn func(context.Context, model.PaymentIntentRequest) (*model.PaymentIntent, error)
	RefundFn func(context.Context, model.RefundRequest) (*model.RefundReceipt, error)

	mu      sync.Mutex
	Intents []model.PaymentIntentRequest
	Refunds []model.RefundRequest
}

// CreatePaymentIntent returns deterministic pay params unless overridden.
func (s *PaymentGatewayStub) CreatePaymentIntent(ctx context.Context, req model.PaymentIntentRequest) (*model.PaymentIntent, error) {
	s.mu.Lock()
	s.Intents = append(s.Intents, req)
	s.mu.Unlock()
	if s.IntentFn != nil {
		return s.IntentFn(ctx, req)
	}
	return &model.PaymentIntent{
		PrepayID: "prepay_" + req.OutTradeNo,
		PayParams: map[string]string{
			"appId":     "wx-app",
			"timeStamp": "1700000000",
			"nonceStr":  "nonce",
			"package":   "prepay_id=prepay_" + req.OutTradeNo,
			"signType":  "RSA",
			"paySign":   "sign",
		},
	}, nil
}

// CreateRefund records the refund request.
func (s *PaymentGatewayStub) CreateRefund(ctx context.Context, req model.RefundRequest) (*model.RefundReceipt, error) {
	s.mu.Lock()
	s.Refunds = append(s.Refunds, req)
	s.mu.Unlock()
	if s.RefundFn != nil {
		return s.RefundFn(ctx, req)
	}
	return &model.RefundReceipt{RefundID: "refund-" + req.OutRefundNo, Status: "PROCESSING"}, nil
}

// RefundCalls returns a copy of recorded refund requests.
func (s *PaymentGatewayStub) RefundCalls() []model.RefundRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.RefundRequest(nil), s.Refunds...)
}

// VerifierStub returns a fixed notification or error.
type VerifierStub struct {
	Notification *model.Notification
	Err          error
	Calls        int
}

// VerifyAndDecrypt returns the configured result.
func (s *VerifierStub) VerifyAndDecrypt(ctx context.Context, headers model.NotificationHeaders, body []byte) (*model.Notification, error) {
	s.Calls++
	if s.Err != nil {
		return nil, s.Err
	}
	return s.Notification, nil
}

// QueueStub collects enqueued orders.
type QueueStub struct {
	Reject bool

	mu     sync.Mutex
	Orders []model.Order
}

// Enqueue stores order unless Reject is set.
func (s *QueueStub) Enqueue(order model.Order) bool {
	if s.Reject {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Orders = append(s.Orders, order)
	return true
}

// Enqueued returns a copy of the queued orders.
func (s *QueueStub) Enqueued() []model.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Order(nil), s.Orders...)
}

// PublisherStub collects published events.
type PublisherStub struct {
	Err error

	mu     sync.Mutex
	Events []model.OrderEvent
}

// Publish records event and returns the configured error.
func (s *PublisherStub) Publish(ctx context.Context, event model.OrderEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Events = append(s.Events, event)
	return s.Err
}

// Types returns the recorded event types in order.
func (s *PublisherStub) Types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	types := make([]string, 0, len(s.Events))
	for _, e := range s.Events {
		types = append(types, e.Type)
	}
	return types
}

// NotifierStub records shipping notices.
type NotifierStub struct {
	Err error

	mu      sync.Mutex
	Notices []model.ShippingNotice
}

// Notify records notice and returns the configured error.
func (s *NotifierStub) Notify(ctx context.Context, notice model.ShippingNotice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Notices = append(s.Notices, notice)
	return s.Err
}

// Calls returns the number of Notify invocations.
func (s *NotifierStub) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Notices)
}

// GuardStub is an in-memory idempotency guard. Like a network client it
// fails calls made on a cancelled context.
type GuardStub struct {
	Err error

	mu     sync.Mutex
	marked map[string]bool
}

// Seen reports whether eventID was marked.
func (s *GuardStub) Seen(ctx context.Context, eventID string) (bool, error) {
	if err := s.callErr(ctx); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.marked[eventID], nil
}

// Mark records eventID.
func (s *GuardStub) Mark(ctx context.Context, eventID string) error {
	if err := s.callErr(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.marked == nil {
		s.marked = make(map[string]bool)
	}
	s.marked[eventID] = true
	return nil
}

// Marked reports whether eventID was recorded, bypassing Err.
func (s *GuardStub) Marked(eventID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.marked[eventID]
}

func (s *GuardStub) callErr(ctx context.Context) error {
	if s.Err != nil {
		return s.Err
	}
	return ctx.Err()
}
