package repository

import (
	"context"
	"time"

	"github.com/polkiloo/bookshop/internal/domain/model"
)

// OrderRepository describes persistence operations with orders.
type OrderRepository interface {
	// Create inserts the order with its lines and fills generated identifiers.
	Create(ctx context.Context, order *model.Order) error
	GetByOutTradeNo(ctx context.Context, outTradeNo string) (*model.Order, error)
	GetByID(ctx context.Context, id int64) (*model.Order, error)
	// LockByOutTradeNo loads the order and holds its row lock until the transaction ends.
	LockByOutTradeNo(ctx context.Context, outTradeNo string) (*model.Order, error)
	LockByID(ctx context.Context, id int64) (*model.Order, error)
	// UpdateState persists status, payment, refund and shortfall fields.
	UpdateState(ctx context.Context, order *model.Order) error
	MarkLineDeducted(ctx context.Context, lineID int64, deducted bool) error
	RecordTransition(ctx context.Context, transition model.Transition) error
	List(ctx context.Context, filter model.OrderFilter) ([]model.Order, error)
	ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]model.Order, error)
	// SelectForFulfillment leases due paid orders until leaseUntil.
	SelectForFulfillment(ctx context.Context, now, leaseUntil time.Time, limit int) ([]model.Order, error)
	RecordFulfillmentAttempt(ctx context.Context, orderID int64, attempts int, nextAt *time.Time, lastError string) error
}
