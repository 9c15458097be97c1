package postgres

import (
	"context"

	domainErrors "github.com/polkiloo/bookshop/internal/domain/errors"
	"github.com/polkiloo/bookshop/internal/domain/model"
)

// inventoryLedger serves both the catalog lookup and stock mutations on the books table.
type inventoryLedger struct {
	q querier
}

func (l *inventoryLedger) GetBook(ctx context.Context, id int64) (*model.Book, error) {
	const query = `SELECT id, name, price, stock FROM books WHERE id=$1`
	var b model.Book
	if err := l.q.QueryRow(ctx, query, id).Scan(&b.ID, &b.Name, &b.Price, &b.Stock); err != nil {
		return nil, mapError(err)
	}
	return &b, nil
}

func (l *inventoryLedger) CheckAvailable(ctx context.Context, bookID int64, qty int) (bool, error) {
	var stock int
	if err := l.q.QueryRow(ctx, `SELECT stock FROM books WHERE id=$1`, bookID).Scan(&stock); err != nil {
		return false, mapError(err)
	}
	return stock >= qty, nil
}

func (l *inventoryLedger) TryDecrement(ctx context.Context, bookID int64, qty int) (bool, error) {
	const query = `UPDATE books SET stock = stock - $1 WHERE id = $2 AND stock >= $1`
	tag, err := l.q.Exec(ctx, query, qty, bookID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (l *inventoryLedger) Increment(ctx context.Context, bookID int64, qty int) error {
	tag, err := l.q.Exec(ctx, `UPDATE books SET stock = stock + $1 WHERE id = $2`, qty, bookID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrNotFound
	}
	return nil
}
