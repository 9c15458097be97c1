package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// DeliveryMode selects how the buyer receives the goods.
type DeliveryMode string

const (
	DeliveryShipped    DeliveryMode = "shipped"
	DeliverySelfPickup DeliveryMode = "self_pickup"
)

// Valid reports whether mode is a known delivery mode.
func (m DeliveryMode) Valid() bool {
	return m == DeliveryShipped || m == DeliverySelfPickup
}

// Order is a purchase of one or more books paid through the gateway.
type Order struct {
	ID                  int64
	OutTradeNo          string
	OpenID              string
	ContactName         string
	ContactPhone        string
	Address             string
	DeliveryMode        DeliveryMode
	Money               int64
	Quantity            int
	Status              OrderStatus
	TransactionID       string
	PayTime             *time.Time
	RefundTime          *time.Time
	OutRefundNo         string
	RefundReason        string
	Remark              string
	InventoryShortfall  bool
	FulfillmentAttempts int
	FulfillmentNextAt   *time.Time
	FulfillmentError    string
	CreatedAt           time.Time
	UpdatedAt           time.Time
	Lines               []OrderLine
}

// OrderLine snapshots a book name and price at creation time.
type OrderLine struct {
	ID            int64
	OrderID       int64
	BookID        int64
	BookName      string
	Quantity      int
	Price         int64
	StockDeducted bool
}

// Subtotal returns price multiplied by quantity.
func (l OrderLine) Subtotal() int64 {
	return l.Price * int64(l.Quantity)
}

// ItemSummary joins the line book names, cut to at most limit runes.
func (o *Order) ItemSummary(limit int) string {
	names := make([]string, 0, len(o.Lines))
	for _, line := range o.Lines {
		names = append(names, line.BookName)
	}
	summary := []rune(strings.Join(names, ", "))
	if limit > 0 && len(summary) > limit {
		summary = summary[:limit]
	}
	return string(summary)
}

// Contact groups the buyer's delivery details.
type Contact struct {
	Name    string
	Phone   string
	Address string
}

// NewOrder builds a pending order whose totals are derived from its lines.
func NewOrder(outTradeNo, openID string, contact Contact, mode DeliveryMode, lines []OrderLine, remark string) *Order {
	order := &Order{
		OutTradeNo:   outTradeNo,
		OpenID:       openID,
		ContactName:  contact.Name,
		ContactPhone: contact.Phone,
		Address:      contact.Address,
		DeliveryMode: mode,
		Status:       OrderStatusPendingPayment,
		Remark:       remark,
		Lines:        lines,
	}
	for _, line := range lines {
		order.Money += line.Subtotal()
		order.Quantity += line.Quantity
	}
	return order
}

// NewOutTradeNo generates a merchant order number accepted by the gateway (32 chars).
func NewOutTradeNo() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// NewOutRefundNo generates a merchant refund number.
func NewOutRefundNo() string {
	return "refund_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// OrderFilter narrows order listings.
type OrderFilter struct {
	OpenID string
	Phone  string
	Status OrderStatus
	Page   int
	Size   int
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Normalize clamps pagination values to supported bounds.
func (f OrderFilter) Normalize() OrderFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Size <= 0 {
		f.Size = defaultPageSize
	}
	if f.Size > maxPageSize {
		f.Size = maxPageSize
	}
	return f
}

// Offset returns the row offset for the current page.
func (f OrderFilter) Offset() int {
	return (f.Page - 1) * f.Size
}

// CreateOrderRequest carries the buyer input for checkout.
type CreateOrderRequest struct {
	OpenID       string            `json:"openid" validate:"required"`
	Name         string            `json:"name" validate:"required"`
	Phone        string            `json:"phone" validate:"required,cnphone"`
	Address      string            `json:"address" validate:"required"`
	DeliveryMode DeliveryMode      `json:"deliveryMode" validate:"required,oneof=shipped self_pickup"`
	Remark       string            `json:"remark" validate:"max=500"`
	Lines        []CreateOrderLine `json:"lines" validate:"required,min=1,dive"`
}

// CreateOrderLine is a requested book and quantity.
type CreateOrderLine struct {
	BookID   int64 `json:"bookId" validate:"gt=0"`
	Quantity int   `json:"quantity" validate:"gt=0"`
}

// Checkout is returned to the client after an order has been created.
type Checkout struct {
	Order     *Order
	PayParams map[string]string
}

// Shortfall records a line whose stock could not be decremented at payment time.
type Shortfall struct {
	BookID   int64
	Quantity int
}

// TransitionResult describes the outcome of applying a lifecycle event.
type TransitionResult struct {
	Order      *Order
	Applied    bool
	Shortfalls []Shortfall
}
