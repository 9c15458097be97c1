package model

import "time"

// OrderStatus describes order lifecycle.
type OrderStatus string

const (
	OrderStatusPendingPayment  OrderStatus = "PENDING_PAYMENT"
	OrderStatusPaid            OrderStatus = "PAID"
	OrderStatusRefundRequested OrderStatus = "REFUND_REQUESTED"
	OrderStatusRefunded        OrderStatus = "REFUNDED"
	OrderStatusCompleted       OrderStatus = "COMPLETED"
	OrderStatusClosed          OrderStatus = "CLOSED"
)

var transitions = map[OrderStatus][]OrderStatus{
	OrderStatusPendingPayment:  {OrderStatusPaid, OrderStatusClosed},
	OrderStatusPaid:            {OrderStatusRefundRequested, OrderStatusRefunded, OrderStatusCompleted},
	OrderStatusRefundRequested: {OrderStatusRefunded},
}

// CanTransitionTo reports whether next is reachable from s in a single step.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Valid reports whether s is a known status.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPendingPayment, OrderStatusPaid, OrderStatusRefundRequested,
		OrderStatusRefunded, OrderStatusCompleted, OrderStatusClosed:
		return true
	}
	return false
}

// Terminal reports whether no further transitions exist from s.
func (s OrderStatus) Terminal() bool {
	return len(transitions[s]) == 0
}

// Transition is an audit record of an applied status change.
type Transition struct {
	OrderID int64
	From    OrderStatus
	To      OrderStatus
	Reason  string
	At      time.Time
}
