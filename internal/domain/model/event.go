package model

import "time"

// Order event types published after a committed state change.
const (
	EventOrderCreated         = "order.created"
	EventOrderPaid            = "order.paid"
	EventOrderRefundRequested = "order.refund_requested"
	EventOrderRefunded        = "order.refunded"
	EventOrderClosed          = "order.closed"
	EventOrderCompleted       = "order.completed"
)

// OrderEvent is the message emitted on the order topic.
type OrderEvent struct {
	Type               string      `json:"type"`
	OrderID            int64       `json:"order_id"`
	OutTradeNo         string      `json:"out_trade_no"`
	Status             OrderStatus `json:"status"`
	Money              int64       `json:"money"`
	InventoryShortfall bool        `json:"inventory_shortfall,omitempty"`
	At                 time.Time   `json:"at"`
}

// NewOrderEvent captures the current state of order as an event.
func NewOrderEvent(eventType string, order *Order, at time.Time) OrderEvent {
	return OrderEvent{
		Type:               eventType,
		OrderID:            order.ID,
		OutTradeNo:         order.OutTradeNo,
		Status:             order.Status,
		Money:              order.Money,
		InventoryShortfall: order.InventoryShortfall,
		At:                 at,
	}
}

// EventTypeFor returns the event emitted when an order enters status.
func EventTypeFor(status OrderStatus) string {
	switch status {
	case OrderStatusPaid:
		return EventOrderPaid
	case OrderStatusRefundRequested:
		return EventOrderRefundRequested
	case OrderStatusRefunded:
		return EventOrderRefunded
	case OrderStatusClosed:
		return EventOrderClosed
	case OrderStatusCompleted:
		return EventOrderCompleted
	default:
		return EventOrderCreated
	}
}
