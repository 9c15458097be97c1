package dto

import "time"

// CheckoutResponse returns a new order together with the client payment parameters.
type CheckoutResponse struct {
	Order     OrderResponse     `json:"order"`
	PayParams map[string]string `json:"payParams"`
}

// OrderResponse describes an order for API consumers.
type OrderResponse struct {
	ID                 int64               `json:"id"`
	OutTradeNo         string              `json:"outTradeNo"`
	OpenID             string              `json:"openid"`
	Name               string              `json:"name"`
	Phone              string              `json:"phone"`
	Address            string              `json:"address"`
	DeliveryMode       string              `json:"deliveryMode"`
	Money              int64               `json:"money"`
	Quantity           int                 `json:"quantity"`
	Status             string              `json:"status"`
	TransactionID      string              `json:"transactionId,omitempty"`
	PayTime            *time.Time          `json:"payTime,omitempty"`
	RefundTime         *time.Time          `json:"refundTime,omitempty"`
	OutRefundNo        string              `json:"outRefundNo,omitempty"`
	Remark             string              `json:"remark,omitempty"`
	InventoryShortfall bool                `json:"inventoryShortfall,omitempty"`
	CreatedAt          time.Time           `json:"createdAt"`
	Lines              []OrderLineResponse `json:"lines,omitempty"`
}

// OrderLineResponse is a single book position of an order.
type OrderLineResponse struct {
	BookID   int64  `json:"bookId"`
	BookName string `json:"bookName"`
	Quantity int    `json:"quantity"`
	Price    int64  `json:"price"`
}

// TransitionResponse reports the outcome of a status change request.
type TransitionResponse struct {
	Applied bool          `json:"applied"`
	Order   OrderResponse `json:"order"`
}
