package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.uber.org/fx"

	"github.com/polkiloo/bookshop/internal/config"
	domainErrors "github.com/polkiloo/bookshop/internal/domain/errors"
	"github.com/polkiloo/bookshop/internal/domain/model"
	"github.com/polkiloo/bookshop/internal/domain/repository"
	"github.com/polkiloo/bookshop/internal/metrics"
)

const descriptionLimit = 120

// CoordinatorParams lists OrderCoordinator dependencies.
type CoordinatorParams struct {
	fx.In

	Transactor repository.Transactor
	Orders     repository.OrderRepository
	Catalog    repository.Catalog
	Ledger     repository.InventoryLedger
	Gateway    PaymentGateway
	Queue      FulfillmentQueue `optional:"true"`
	Events     EventPublisher   `optional:"true"`
	Metrics    *metrics.Metrics `optional:"true"`
	Logger     *slog.Logger
	Config     *config.Config
	Clock      Clock `optional:"true"`
}

// OrderCoordinator owns every order status change. Each change runs in one
// transaction holding the order row lock, so concurrent and repeated events
// for the same order serialize and all but the first become no-ops.
type OrderCoordinator struct {
	tx      repository.Transactor
	orders  repository.OrderRepository
	catalog repository.Catalog
	ledger  repository.InventoryLedger
	gateway PaymentGateway
	queue   FulfillmentQueue
	events  EventPublisher
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     Clock

	payNotifyURL    string
	refundNotifyURL string
	pendingTTL      time.Duration
	firstRetry      time.Duration
}

// NewOrderCoordinator constructs OrderCoordinator.
func NewOrderCoordinator(p CoordinatorParams) *OrderCoordinator {
	now := p.Clock
	if now == nil {
		now = time.Now
	}
	return &OrderCoordinator{
		tx:              p.Transactor,
		orders:          p.Orders,
		catalog:         p.Catalog,
		ledger:          p.Ledger,
		gateway:         p.Gateway,
		queue:           p.Queue,
		events:          p.Events,
		metrics:         p.Metrics,
		logger:          p.Logger,
		now:             now,
		payNotifyURL:    p.Config.PayNotifyURL,
		refundNotifyURL: p.Config.RefundNotifyURL,
		pendingTTL:      p.Config.PendingOrderTTL,
		firstRetry:      p.Config.FulfillmentBackoff,
	}
}

// CreateOrder validates the request, snapshots prices, stores a pending order
// and opens a payment intent in the same transaction.
func (c *OrderCoordinator) CreateOrder(ctx context.Context, req model.CreateOrderRequest) (*model.Checkout, error) {
	if err := ValidateCreateOrder(req); err != nil {
		return nil, err
	}

	lines, err := c.priceLines(ctx, mergeLines(req.Lines))
	if err != nil {
		return nil, err
	}

	contact := model.Contact{Name: req.Name, Phone: req.Phone, Address: req.Address}
	order := model.NewOrder(model.NewOutTradeNo(), req.OpenID, contact, req.DeliveryMode, lines, req.Remark)

	var intent *model.PaymentIntent
	err = c.tx.WithinTransaction(ctx, func(ctx context.Context, store repository.Store) error {
		if err := store.Orders().Create(ctx, order); err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		created, err := c.gateway.CreatePaymentIntent(ctx, model.PaymentIntentRequest{
			OutTradeNo:  order.OutTradeNo,
			Amount:      order.Money,
			BuyerRef:    order.OpenID,
			NotifyURL:   c.payNotifyURL,
			Description: order.ItemSummary(descriptionLimit),
		})
		if err != nil {
			return &domainErrors.GatewayError{Op: "create payment intent", Err: err}
		}
		intent = created
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("order created",
		slog.String("out_trade_no", order.OutTradeNo),
		slog.Int64("money", order.Money),
		slog.Int("lines", len(order.Lines)),
	)
	c.publish(ctx, model.EventOrderCreated, order)

	return &model.Checkout{Order: order, PayParams: intent.PayParams}, nil
}

func mergeLines(requested []model.CreateOrderLine) []model.CreateOrderLine {
	merged := make([]model.CreateOrderLine, 0, len(requested))
	index := make(map[int64]int, len(requested))
	for _, line := range requested {
		if i, ok := index[line.BookID]; ok {
			merged[i].Quantity += line.Quantity
			continue
		}
		index[line.BookID] = len(merged)
		merged = append(merged, line)
	}
	return merged
}

func (c *OrderCoordinator) priceLines(ctx context.Context, requested []model.CreateOrderLine) ([]model.OrderLine, error) {
	lines := make([]model.OrderLine, 0, len(requested))
	for _, item := range requested {
		book, err := c.catalog.GetBook(ctx, item.BookID)
		if err != nil {
			if errors.Is(err, domainErrors.ErrNotFound) {
				return nil, &domainErrors.ValidationError{Field: "lines", Reason: fmt.Sprintf("book %d does not exist", item.BookID)}
			}
			return nil, fmt.Errorf("get book %d: %w", item.BookID, err)
		}
		ok, err := c.ledger.CheckAvailable(ctx, book.ID, item.Quantity)
		if err != nil {
			return nil, fmt.Errorf("check stock for book %d: %w", book.ID, err)
		}
		if !ok {
			return nil, &domainErrors.OutOfStockError{BookID: book.ID, Requested: item.Quantity, Available: book.Stock}
		}
		lines = append(lines, model.OrderLine{
			BookID:   book.ID,
			BookName: book.Name,
			Quantity: item.Quantity,
			Price:    book.Price,
		})
	}
	return lines, nil
}

// transition describes one guarded status change.
type transition struct {
	to     model.OrderStatus
	reason string
	lock   func(ctx context.Context, orders repository.OrderRepository) (*model.Order, error)
	// allow adds a precondition on top of the status graph.
	allow func(order *model.Order) bool
	// apply performs the side effects of the change inside the transaction.
	apply func(ctx context.Context, store repository.Store, order *model.Order, result *model.TransitionResult) error
}

func byOutTradeNo(outTradeNo string) func(context.Context, repository.OrderRepository) (*model.Order, error) {
	return func(ctx context.Context, orders repository.OrderRepository) (*model.Order, error) {
		return orders.LockByOutTradeNo(ctx, outTradeNo)
	}
}

func byID(id int64) func(context.Context, repository.OrderRepository) (*model.Order, error) {
	return func(ctx context.Context, orders repository.OrderRepository) (*model.Order, error) {
		return orders.LockByID(ctx, id)
	}
}

func (c *OrderCoordinator) run(ctx context.Context, t transition) (*model.TransitionResult, error) {
	result := &model.TransitionResult{}
	var from model.OrderStatus

	err := c.tx.WithinTransaction(ctx, func(ctx context.Context, store repository.Store) error {
		order, err := t.lock(ctx, store.Orders())
		if err != nil {
			return err
		}
		result.Order = order
		from = order.Status

		if !order.Status.CanTransitionTo(t.to) {
			return nil
		}
		if t.allow != nil && !t.allow(order) {
			return nil
		}
		if t.apply != nil {
			if err := t.apply(ctx, store, order, result); err != nil {
				return err
			}
		}

		at := c.now()
		order.Status = t.to
		order.UpdatedAt = at
		if err := store.Orders().UpdateState(ctx, order); err != nil {
			return fmt.Errorf("update order state: %w", err)
		}
		if err := store.Orders().RecordTransition(ctx, model.Transition{
			OrderID: order.ID,
			From:    from,
			To:      t.to,
			Reason:  t.reason,
			At:      at,
		}); err != nil {
			return fmt.Errorf("record transition: %w", err)
		}
		result.Applied = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !result.Applied {
		c.logger.Debug("order transition skipped",
			slog.String("out_trade_no", result.Order.OutTradeNo),
			slog.String("status", string(from)),
			slog.String("target", string(t.to)),
		)
		return result, nil
	}

	c.metrics.Transition(string(from), string(t.to))
	c.logger.Info("order transition applied",
		slog.String("out_trade_no", result.Order.OutTradeNo),
		slog.String("from", string(from)),
		slog.String("to", string(t.to)),
		slog.String("reason", t.reason),
	)
	c.publish(ctx, model.EventTypeFor(t.to), result.Order)
	return result, nil
}

// ApplyPaymentConfirmed marks a pending order paid and decrements stock per
// line. A line that cannot be decremented is reported as a shortfall; the
// order is still marked paid because the buyer has already been charged.
func (c *OrderCoordinator) ApplyPaymentConfirmed(ctx context.Context, outTradeNo, transactionID string) (*model.TransitionResult, error) {
	result, err := c.run(ctx, transition{
		to:     model.OrderStatusPaid,
		reason: "payment confirmed",
		lock:   byOutTradeNo(outTradeNo),
		apply: func(ctx context.Context, store repository.Store, order *model.Order, result *model.TransitionResult) error {
			for i := range order.Lines {
				line := &order.Lines[i]
				ok, err := store.Inventory().TryDecrement(ctx, line.BookID, line.Quantity)
				if err != nil {
					return fmt.Errorf("decrement stock for book %d: %w", line.BookID, err)
				}
				if !ok {
					result.Shortfalls = append(result.Shortfalls, model.Shortfall{BookID: line.BookID, Quantity: line.Quantity})
					continue
				}
				if err := store.Orders().MarkLineDeducted(ctx, line.ID, true); err != nil {
					return fmt.Errorf("mark line deducted: %w", err)
				}
				line.StockDeducted = true
			}

			now := c.now()
			next := now.Add(c.firstRetry)
			order.TransactionID = transactionID
			order.PayTime = &now
			order.InventoryShortfall = len(result.Shortfalls) > 0
			order.FulfillmentNextAt = &next
			return nil
		},
	})
	if err != nil || !result.Applied {
		return result, err
	}

	if len(result.Shortfalls) > 0 {
		c.metrics.Shortfall(len(result.Shortfalls))
		for _, s := range result.Shortfalls {
			c.logger.Warn("inventory shortfall on paid order",
				slog.String("out_trade_no", outTradeNo),
				slog.Int64("book_id", s.BookID),
				slog.Int("quantity", s.Quantity),
			)
		}
	}
	if c.queue != nil && !c.queue.Enqueue(*result.Order) {
		c.logger.Debug("fulfillment queue full, left for sweep", slog.String("out_trade_no", outTradeNo))
	}
	return result, nil
}

// ApplyRefundRequested moves a paid order to REFUND_REQUESTED and asks the
// gateway for a full refund. A gateway failure keeps the order paid.
func (c *OrderCoordinator) ApplyRefundRequested(ctx context.Context, orderID int64, reason string) (*model.TransitionResult, error) {
	return c.run(ctx, transition{
		to:     model.OrderStatusRefundRequested,
		reason: "refund requested",
		lock:   byID(orderID),
		apply: func(ctx context.Context, _ repository.Store, order *model.Order, _ *model.TransitionResult) error {
			order.OutRefundNo = model.NewOutRefundNo()
			order.RefundReason = reason
			if reason != "" {
				order.Remark += fmt.Sprintf(" [refund reason: %s]", reason)
			}
			return c.requestRefund(ctx, order)
		},
	})
}

// ResubmitRefund re-sends the refund of an order still waiting for
// confirmation, reusing its out_refund_no.
func (c *OrderCoordinator) ResubmitRefund(ctx context.Context, orderID int64) (*model.TransitionResult, error) {
	result := &model.TransitionResult{}
	err := c.tx.WithinTransaction(ctx, func(ctx context.Context, store repository.Store) error {
		order, err := store.Orders().LockByID(ctx, orderID)
		if err != nil {
			return err
		}
		result.Order = order
		if order.Status != model.OrderStatusRefundRequested || order.OutRefundNo == "" {
			return nil
		}
		if err := c.requestRefund(ctx, order); err != nil {
			return err
		}
		result.Applied = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if result.Applied {
		c.logger.Info("refund resubmitted",
			slog.String("out_trade_no", result.Order.OutTradeNo),
			slog.String("out_refund_no", result.Order.OutRefundNo),
		)
	}
	return result, nil
}

func (c *OrderCoordinator) requestRefund(ctx context.Context, order *model.Order) error {
	_, err := c.gateway.CreateRefund(ctx, model.RefundRequest{
		OutTradeNo:   order.OutTradeNo,
		OutRefundNo:  order.OutRefundNo,
		RefundAmount: order.Money,
		TotalAmount:  order.Money,
		Reason:       order.RefundReason,
		NotifyURL:    c.refundNotifyURL,
	})
	if err != nil {
		return &domainErrors.GatewayError{Op: "create refund", Err: err}
	}
	return nil
}

// ApplyRefundConfirmed marks the order refunded and restores the stock of
// every line that was actually decremented at payment time.
func (c *OrderCoordinator) ApplyRefundConfirmed(ctx context.Context, outTradeNo string) (*model.TransitionResult, error) {
	return c.run(ctx, transition{
		to:     model.OrderStatusRefunded,
		reason: "refund confirmed",
		lock:   byOutTradeNo(outTradeNo),
		apply: func(ctx context.Context, store repository.Store, order *model.Order, _ *model.TransitionResult) error {
			for i := range order.Lines {
				line := &order.Lines[i]
				if !line.StockDeducted {
					continue
				}
				if err := store.Inventory().Increment(ctx, line.BookID, line.Quantity); err != nil {
					return fmt.Errorf("restore stock for book %d: %w", line.BookID, err)
				}
				if err := store.Orders().MarkLineDeducted(ctx, line.ID, false); err != nil {
					return fmt.Errorf("mark line restored: %w", err)
				}
				line.StockDeducted = false
			}
			now := c.now()
			order.RefundTime = &now
			order.FulfillmentNextAt = nil
			return nil
		},
	})
}

// CloseIfExpired closes a pending order older than the pending TTL.
func (c *OrderCoordinator) CloseIfExpired(ctx context.Context, outTradeNo string) (*model.TransitionResult, error) {
	return c.run(ctx, transition{
		to:     model.OrderStatusClosed,
		reason: "payment window expired",
		lock:   byOutTradeNo(outTradeNo),
		allow: func(order *model.Order) bool {
			return !order.CreatedAt.After(c.now().Add(-c.pendingTTL))
		},
	})
}

// CloseOrder closes a pending order regardless of its age.
func (c *OrderCoordinator) CloseOrder(ctx context.Context, outTradeNo string) (*model.TransitionResult, error) {
	return c.run(ctx, transition{
		to:     model.OrderStatusClosed,
		reason: "closed by buyer",
		lock:   byOutTradeNo(outTradeNo),
	})
}

// CompleteFulfillment marks a paid order completed after the shipping upload
// was acknowledged.
func (c *OrderCoordinator) CompleteFulfillment(ctx context.Context, outTradeNo string) (*model.TransitionResult, error) {
	return c.run(ctx, transition{
		to:     model.OrderStatusCompleted,
		reason: "shipping info uploaded",
		lock:   byOutTradeNo(outTradeNo),
		apply: func(_ context.Context, _ repository.Store, order *model.Order, _ *model.TransitionResult) error {
			order.FulfillmentNextAt = nil
			return nil
		},
	})
}

// GetOrder returns an order with its lines.
func (c *OrderCoordinator) GetOrder(ctx context.Context, outTradeNo string) (*model.Order, error) {
	return c.orders.GetByOutTradeNo(ctx, outTradeNo)
}

// GetOrderByID returns an order with its lines.
func (c *OrderCoordinator) GetOrderByID(ctx context.Context, id int64) (*model.Order, error) {
	return c.orders.GetByID(ctx, id)
}

// ListOrders returns orders matching filter, newest first.
func (c *OrderCoordinator) ListOrders(ctx context.Context, filter model.OrderFilter) ([]model.Order, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, &domainErrors.ValidationError{Field: "status", Reason: "unknown order status"}
	}
	return c.orders.List(ctx, filter.Normalize())
}

// ExpiredBefore lists pending orders created before cutoff.
func (c *OrderCoordinator) ExpiredBefore(ctx context.Context, cutoff time.Time, limit int) ([]model.Order, error) {
	return c.orders.ListPendingBefore(ctx, cutoff, limit)
}

// PendingTTL is the payment window of a new order.
func (c *OrderCoordinator) PendingTTL() time.Duration {
	return c.pendingTTL
}

// Now returns the coordinator clock.
func (c *OrderCoordinator) Now() time.Time {
	return c.now()
}

func (c *OrderCoordinator) publish(ctx context.Context, eventType string, order *model.Order) {
	if c.events == nil {
		return
	}
	if err := c.events.Publish(ctx, model.NewOrderEvent(eventType, order, c.now())); err != nil {
		c.logger.Warn("order event not published",
			slog.String("type", eventType),
			slog.String("out_trade_no", order.OutTradeNo),
			slog.Any("error", err),
		)
	}
}
