package model

import "time"

// PaymentIntentRequest asks the gateway to open a payment for an order.
type PaymentIntentRequest struct {
	OutTradeNo  string
	Amount      int64
	BuyerRef    string
	NotifyURL   string
	Description string
}

// PaymentIntent holds the gateway token and the parameters the client needs to pay.
type PaymentIntent struct {
	PrepayID  string
	PayParams map[string]string
}

// RefundRequest asks the gateway to refund an order.
type RefundRequest struct {
	OutTradeNo   string
	OutRefundNo  string
	RefundAmount int64
	TotalAmount  int64
	Reason       string
	NotifyURL    string
}

// RefundReceipt is the synchronous gateway answer to a refund request.
type RefundReceipt struct {
	RefundID string
	Status   string
}

// NotificationHeaders are the authentication headers sent with every webhook.
type NotificationHeaders struct {
	Serial    string
	Nonce     string
	Timestamp string
	Signature string
}

// Complete reports whether every header is present.
func (h NotificationHeaders) Complete() bool {
	return h.Serial != "" && h.Nonce != "" && h.Timestamp != "" && h.Signature != ""
}

// Notification event types emitted by the gateway.
const (
	EventTransactionSuccess = "TRANSACTION.SUCCESS"
	EventRefundSuccess      = "REFUND.SUCCESS"
	EventRefundAbnormal     = "REFUND.ABNORMAL"
	EventRefundClosed       = "REFUND.CLOSED"
)

// TradeStateSuccess marks a successfully paid transaction.
const TradeStateSuccess = "SUCCESS"

// Notification is a verified and decrypted webhook envelope.
type Notification struct {
	ID           string
	EventType    string
	ResourceType string
	Summary      string
	CreateTime   time.Time
	Resource     []byte
}

// PaymentTransaction is the decrypted resource of a payment notification.
type PaymentTransaction struct {
	OutTradeNo    string `json:"out_trade_no"`
	TransactionID string `json:"transaction_id"`
	TradeState    string `json:"trade_state"`
	SuccessTime   string `json:"success_time"`
	Amount        struct {
		Total      int64 `json:"total"`
		PayerTotal int64 `json:"payer_total"`
	} `json:"amount"`
	Payer struct {
		OpenID string `json:"openid"`
	} `json:"payer"`
}

// RefundTransaction is the decrypted resource of a refund notification.
type RefundTransaction struct {
	OutTradeNo    string `json:"out_trade_no"`
	TransactionID string `json:"transaction_id"`
	OutRefundNo   string `json:"out_refund_no"`
	RefundID      string `json:"refund_id"`
	RefundStatus  string `json:"refund_status"`
	SuccessTime   string `json:"success_time"`
	Amount        struct {
		Total  int64 `json:"total"`
		Refund int64 `json:"refund"`
	} `json:"amount"`
}
