package model

import "time"

// Logistics codes understood by the shipping-info upload API.
const (
	LogisticsSameCity   = 2
	LogisticsSelfPickup = 4
)

// LogisticsType maps a delivery mode to the external logistics code.
func (m DeliveryMode) LogisticsType() int {
	if m == DeliveryShipped {
		return LogisticsSameCity
	}
	return LogisticsSelfPickup
}

// ShippingNotice is the fulfillment confirmation pushed for a paid order.
type ShippingNotice struct {
	OutTradeNo    string
	TransactionID string
	MchID         string
	LogisticsType int
	ItemDesc      string
	PayerOpenID   string
	UploadTime    time.Time
}
