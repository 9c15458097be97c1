package dto

// RefundRequest carries the operator supplied refund reason.
type RefundRequest struct {
	Reason string `json:"reason"`
}

// StockAdjustRequest changes the stock of a book by Delta.
type StockAdjustRequest struct {
	Delta int `json:"delta"`
}

// BookResponse describes a catalog entry.
type BookResponse struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Price int64  `json:"price"`
	Stock int    `json:"stock"`
}
