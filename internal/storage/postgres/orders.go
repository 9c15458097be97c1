package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	domainErrors "github.com/polkiloo/bookshop/internal/domain/errors"
	"github.com/polkiloo/bookshop/internal/domain/model"
)

const orderColumns = `id, out_trade_no, openid, contact_name, contact_phone, address, delivery_mode,
    money, quantity, status, transaction_id, pay_time, refund_time, out_refund_no, refund_reason,
    remark, inventory_shortfall, fulfillment_attempts, fulfillment_next_at, fulfillment_error,
    created_at, updated_at`

type orderRepository struct {
	storage *Storage
	q       querier
	inTx    bool
}

func scanOrder(row pgx.Row) (*model.Order, error) {
	var o model.Order
	err := row.Scan(
		&o.ID, &o.OutTradeNo, &o.OpenID, &o.ContactName, &o.ContactPhone, &o.Address, &o.DeliveryMode,
		&o.Money, &o.Quantity, &o.Status, &o.TransactionID, &o.PayTime, &o.RefundTime, &o.OutRefundNo, &o.RefundReason,
		&o.Remark, &o.InventoryShortfall, &o.FulfillmentAttempts, &o.FulfillmentNextAt, &o.FulfillmentError,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func collectOrders(rows pgx.Rows) ([]model.Order, error) {
	defer rows.Close()
	var result []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Create must run inside a transaction so the order and its lines land together.
func (r *orderRepository) Create(ctx context.Context, order *model.Order) error {
	const insertOrder = `INSERT INTO orders (out_trade_no, openid, contact_name, contact_phone, address, delivery_mode, money, quantity, status, remark)
                         VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
                         RETURNING id, created_at, updated_at`
	err := r.q.QueryRow(ctx, insertOrder,
		order.OutTradeNo, order.OpenID, order.ContactName, order.ContactPhone, order.Address,
		order.DeliveryMode, order.Money, order.Quantity, order.Status, order.Remark,
	).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return mapError(err)
	}

	const insertLine = `INSERT INTO order_lines (order_id, book_id, book_name, quantity, price)
                        VALUES ($1, $2, $3, $4, $5) RETURNING id`
	for i := range order.Lines {
		line := &order.Lines[i]
		line.OrderID = order.ID
		if err := r.q.QueryRow(ctx, insertLine, order.ID, line.BookID, line.BookName, line.Quantity, line.Price).Scan(&line.ID); err != nil {
			return fmt.Errorf("insert order line: %w", err)
		}
	}
	return nil
}

func (r *orderRepository) GetByOutTradeNo(ctx context.Context, outTradeNo string) (*model.Order, error) {
	return r.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE out_trade_no=$1`, outTradeNo)
}

func (r *orderRepository) GetByID(ctx context.Context, id int64) (*model.Order, error) {
	return r.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id)
}

func (r *orderRepository) LockByOutTradeNo(ctx context.Context, outTradeNo string) (*model.Order, error) {
	return r.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE out_trade_no=$1 FOR UPDATE`, outTradeNo)
}

func (r *orderRepository) LockByID(ctx context.Context, id int64) (*model.Order, error) {
	return r.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1 FOR UPDATE`, id)
}

func (r *orderRepository) getOne(ctx context.Context, query string, key any) (*model.Order, error) {
	order, err := scanOrder(r.q.QueryRow(ctx, query, key))
	if err != nil {
		return nil, mapError(err)
	}
	if err := r.attachLines(ctx, r.q, []*model.Order{order}); err != nil {
		return nil, err
	}
	return order, nil
}

func (r *orderRepository) attachLines(ctx context.Context, q querier, orders []*model.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(orders))
	byID := make(map[int64]*model.Order, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID)
		byID[o.ID] = o
	}

	const query = `SELECT id, order_id, book_id, book_name, quantity, price, stock_deducted
                   FROM order_lines WHERE order_id = ANY($1) ORDER BY id`
	rows, err := q.Query(ctx, query, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var l model.OrderLine
		if err := rows.Scan(&l.ID, &l.OrderID, &l.BookID, &l.BookName, &l.Quantity, &l.Price, &l.StockDeducted); err != nil {
			return err
		}
		if o, ok := byID[l.OrderID]; ok {
			o.Lines = append(o.Lines, l)
		}
	}
	return rows.Err()
}

func (r *orderRepository) UpdateState(ctx context.Context, order *model.Order) error {
	const query = `UPDATE orders SET status=$1, transaction_id=$2, pay_time=$3, refund_time=$4, out_refund_no=$5,
                   refund_reason=$6, remark=$7, inventory_shortfall=$8, fulfillment_next_at=$9, updated_at=NOW()
                   WHERE id=$10`
	tag, err := r.q.Exec(ctx, query,
		order.Status, order.TransactionID, order.PayTime, order.RefundTime, order.OutRefundNo,
		order.RefundReason, order.Remark, order.InventoryShortfall, order.FulfillmentNextAt, order.ID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrNotFound
	}
	return nil
}

func (r *orderRepository) MarkLineDeducted(ctx context.Context, lineID int64, deducted bool) error {
	_, err := r.q.Exec(ctx, `UPDATE order_lines SET stock_deducted=$1 WHERE id=$2`, deducted, lineID)
	return err
}

func (r *orderRepository) RecordTransition(ctx context.Context, t model.Transition) error {
	const query = `INSERT INTO order_transitions (order_id, from_status, to_status, reason, created_at)
                   VALUES ($1, $2, $3, $4, $5)`
	_, err := r.q.Exec(ctx, query, t.OrderID, t.From, t.To, t.Reason, t.At)
	return err
}

func (r *orderRepository) List(ctx context.Context, filter model.OrderFilter) ([]model.Order, error) {
	filter = filter.Normalize()

	var (
		conds []string
		args  []any
	)
	where := func(cond string, value any) {
		args = append(args, value)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.OpenID != "" {
		where("openid=$%d", filter.OpenID)
	}
	if filter.Phone != "" {
		where("contact_phone=$%d", filter.Phone)
	}
	if filter.Status != "" {
		where("status=$%d", filter.Status)
	}

	query := `SELECT ` + orderColumns + ` FROM orders`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	args = append(args, filter.Size, filter.Offset())
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}

func (r *orderRepository) ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]model.Order, error) {
	const query = `SELECT ` + orderColumns + ` FROM orders
                   WHERE status=$1 AND created_at < $2
                   ORDER BY created_at LIMIT $3`
	rows, err := r.q.Query(ctx, query, model.OrderStatusPendingPayment, cutoff, limit)
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}

func (r *orderRepository) SelectForFulfillment(ctx context.Context, now, leaseUntil time.Time, limit int) ([]model.Order, error) {
	const selectQuery = `SELECT ` + orderColumns + ` FROM orders
                         WHERE status=$1 AND fulfillment_next_at IS NOT NULL AND fulfillment_next_at <= $2
                         ORDER BY fulfillment_next_at
                         LIMIT $3
                         FOR UPDATE SKIP LOCKED`
	const leaseQuery = `UPDATE orders SET fulfillment_next_at=$1 WHERE id=$2`

	var orders []model.Order
	err := r.run(ctx, func(q querier) error {
		rows, err := q.Query(ctx, selectQuery, model.OrderStatusPaid, now, limit)
		if err != nil {
			return err
		}
		batch, err := collectOrders(rows)
		if err != nil {
			return err
		}

		refs := make([]*model.Order, 0, len(batch))
		for i := range batch {
			if _, err := q.Exec(ctx, leaseQuery, leaseUntil, batch[i].ID); err != nil {
				return err
			}
			lease := leaseUntil
			batch[i].FulfillmentNextAt = &lease
			refs = append(refs, &batch[i])
		}
		if err := r.attachLines(ctx, q, refs); err != nil {
			return err
		}
		orders = batch
		return nil
	})
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *orderRepository) RecordFulfillmentAttempt(ctx context.Context, orderID int64, attempts int, nextAt *time.Time, lastError string) error {
	const query = `UPDATE orders SET fulfillment_attempts=$1, fulfillment_next_at=$2, fulfillment_error=$3, updated_at=NOW()
                   WHERE id=$4`
	_, err := r.q.Exec(ctx, query, attempts, nextAt, lastError, orderID)
	return err
}

// run executes fn in the current transaction, or in a new one when bound to the pool.
func (r *orderRepository) run(ctx context.Context, fn func(q querier) error) error {
	if r.inTx {
		return fn(r.q)
	}
	return r.storage.withinTx(ctx, func(tx pgx.Tx) error { return fn(tx) })
}
