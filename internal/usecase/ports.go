package usecase

import (
	"context"
	"time"

	"github.com/polkiloo/bookshop/internal/domain/model"
)

// PaymentGateway opens payments and refunds at the external gateway.
type PaymentGateway interface {
	CreatePaymentIntent(ctx context.Context, req model.PaymentIntentRequest) (*model.PaymentIntent, error)
	CreateRefund(ctx context.Context, req model.RefundRequest) (*model.RefundReceipt, error)
}

// NotificationVerifier authenticates and decrypts gateway webhooks.
type NotificationVerifier interface {
	VerifyAndDecrypt(ctx context.Context, headers model.NotificationHeaders, body []byte) (*model.Notification, error)
}

// ShippingNotifier pushes shipping information for a paid order.
type ShippingNotifier interface {
	Notify(ctx context.Context, notice model.ShippingNotice) error
}

// FulfillmentQueue accepts paid orders for asynchronous fulfillment.
// Enqueue must not block; false means the order is left for the periodic sweep.
type FulfillmentQueue interface {
	Enqueue(order model.Order) bool
}

// EventPublisher emits order events after commit.
type EventPublisher interface {
	Publish(ctx context.Context, event model.OrderEvent) error
}

// IdempotencyGuard short-circuits redeliveries of notifications that were
// already applied. Mark is called only after the transition has committed.
type IdempotencyGuard interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Mark(ctx context.Context, eventID string) error
}

// Clock returns the current time.
type Clock func() time.Time
