package usecase

import (
	"context"
	"log/slog"

	domainErrors "github.com/polkiloo/bookshop/internal/domain/errors"
	"github.com/polkiloo/bookshop/internal/domain/model"
	"github.com/polkiloo/bookshop/internal/domain/repository"
)

// InventoryUseCase applies operator stock corrections through the ledger.
type InventoryUseCase struct {
	tx     repository.Transactor
	logger *slog.Logger
}

// NewInventoryUseCase constructs InventoryUseCase.
func NewInventoryUseCase(tx repository.Transactor, logger *slog.Logger) *InventoryUseCase {
	return &InventoryUseCase{tx: tx, logger: logger}
}

// AdjustStock adds delta to the stock of bookID. A negative delta larger than
// the current stock fails with OutOfStockError and changes nothing.
func (u *InventoryUseCase) AdjustStock(ctx context.Context, bookID int64, delta int) (*model.Book, error) {
	if bookID <= 0 {
		return nil, &domainErrors.ValidationError{Field: "bookId", Reason: "must be greater than 0"}
	}
	if delta == 0 {
		return nil, &domainErrors.ValidationError{Field: "delta", Reason: "must not be zero"}
	}

	var book *model.Book
	err := u.tx.WithinTransaction(ctx, func(ctx context.Context, store repository.Store) error {
		current, err := store.Catalog().GetBook(ctx, bookID)
		if err != nil {
			return err
		}
		if delta > 0 {
			if err := store.Inventory().Increment(ctx, bookID, delta); err != nil {
				return err
			}
		} else {
			ok, err := store.Inventory().TryDecrement(ctx, bookID, -delta)
			if err != nil {
				return err
			}
			if !ok {
				return &domainErrors.OutOfStockError{BookID: bookID, Requested: -delta, Available: current.Stock}
			}
		}
		book, err = store.Catalog().GetBook(ctx, bookID)
		return err
	})
	if err != nil {
		return nil, err
	}

	u.logger.Info("stock adjusted",
		slog.Int64("book_id", bookID),
		slog.Int("delta", delta),
		slog.Int("stock", book.Stock),
	)
	return book, nil
}
