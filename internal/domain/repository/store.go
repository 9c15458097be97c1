package repository

import "context"

// Store groups repositories that share one connection or transaction.
type Store interface {
	Orders() OrderRepository
	Inventory() InventoryLedger
	Catalog() Catalog
}

// Transactor runs fn against a Store bound to a single transaction.
// The transaction commits when fn returns nil and rolls back otherwise.
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context, store Store) error) error
}
