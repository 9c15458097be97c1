package repository

import (
	"context"

	"github.com/polkiloo/bookshop/internal/domain/model"
)

// Catalog supplies live book prices for order creation.
type Catalog interface {
	GetBook(ctx context.Context, id int64) (*model.Book, error)
}

// InventoryLedger mutates stock through atomic conditional writes only.
type InventoryLedger interface {
	CheckAvailable(ctx context.Context, bookID int64, qty int) (bool, error)
	TryDecrement(ctx context.Context, bookID int64, qty int) (bool, error)
	Increment(ctx context.Context, bookID int64, qty int) error
}
