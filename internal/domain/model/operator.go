package model

import "time"

// Operator is a back-office account allowed to execute refunds and adjust stock.
type Operator struct {
	ID           int64
	Login        string
	PasswordHash string
	CreatedAt    time.Time
}
