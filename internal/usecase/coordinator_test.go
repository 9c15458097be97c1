package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polkiloo/bookshop/internal/config"
	domainErrors "github.com/polkiloo/bookshop/internal/domain/errors"
	"github.com/polkiloo/bookshop/internal/domain/model"
	testhelpers "github.com/polkiloo/bookshop/internal/test"
)

const (
	bookA int64 = 1
	bookB int64 = 2
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type harness struct {
	store       *testhelpers.MemoryStore
	gateway     *testhelpers.PaymentGatewayStub
	queue       *testhelpers.QueueStub
	events      *testhelpers.PublisherStub
	clock       *fakeClock
	cfg         *config.Config
	coordinator *OrderCoordinator
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:   testhelpers.NewMemoryStore(),
		gateway: &testhelpers.PaymentGatewayStub{},
		queue:   &testhelpers.QueueStub{},
		events:  &testhelpers.PublisherStub{},
		clock:   &fakeClock{now: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)},
		cfg: &config.Config{
			PayNotifyURL:           "https://shop.example.com/pay/notify",
			RefundNotifyURL:        "https://shop.example.com/pay/refund/notify",
			PendingOrderTTL:        30 * time.Minute,
			FulfillmentBackoff:     30 * time.Second,
			FulfillmentMaxAttempts: 3,
			WeChat:                 config.WeChat{MchID: "1900000001"},
		},
	}
	h.store.Now = h.clock.Now
	h.store.AddBook(model.Book{ID: bookA, Name: "A", Price: 500, Stock: 5})
	h.store.AddBook(model.Book{ID: bookB, Name: "B", Price: 1200, Stock: 3})

	h.coordinator = NewOrderCoordinator(CoordinatorParams{
		Transactor: h.store,
		Orders:     h.store.Orders(),
		Catalog:    h.store.Catalog(),
		Ledger:     h.store.Inventory(),
		Gateway:    h.gateway,
		Queue:      h.queue,
		Events:     h.events,
		Logger:     discardLogger(),
		Config:     h.cfg,
		Clock:      h.clock.Now,
	})
	return h
}

func orderRequest(lines ...model.CreateOrderLine) model.CreateOrderRequest {
	return model.CreateOrderRequest{
		OpenID:       "openid-1",
		Name:         "Han Meimei",
		Phone:        "13912345678",
		Address:      "88 Nanjing Rd",
		DeliveryMode: model.DeliveryShipped,
		Lines:        lines,
	}
}

func (h *harness) create(t *testing.T, lines ...model.CreateOrderLine) *model.Order {
	t.Helper()
	checkout, err := h.coordinator.CreateOrder(context.Background(), orderRequest(lines...))
	require.NoError(t, err)
	return checkout.Order
}

func (h *harness) pay(t *testing.T, outTradeNo string) *model.TransitionResult {
	t.Helper()
	result, err := h.coordinator.ApplyPaymentConfirmed(context.Background(), outTradeNo, "4200000001")
	require.NoError(t, err)
	return result
}

func TestCreateOrderScenario(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	checkout, err := h.coordinator.CreateOrder(ctx, orderRequest(model.CreateOrderLine{BookID: bookA, Quantity: 2}))
	require.NoError(t, err)
	order := checkout.Order
	assert.Equal(t, int64(1000), order.Money)
	assert.Equal(t, model.OrderStatusPendingPayment, order.Status)
	assert.Len(t, order.OutTradeNo, 32)
	assert.Equal(t, 5, h.store.Book(bookA).Stock)
	assert.Equal(t, "prepay_id=prepay_"+order.OutTradeNo, checkout.PayParams["package"])

	require.Len(t, h.gateway.Intents, 1)
	intent := h.gateway.Intents[0]
	assert.Equal(t, order.OutTradeNo, intent.OutTradeNo)
	assert.Equal(t, int64(1000), intent.Amount)
	assert.Equal(t, "openid-1", intent.BuyerRef)
	assert.Equal(t, h.cfg.PayNotifyURL, intent.NotifyURL)
	assert.Equal(t, "A", intent.Description)

	result := h.pay(t, order.OutTradeNo)
	assert.True(t, result.Applied)
	stored := h.store.Order(order.OutTradeNo)
	assert.Equal(t, model.OrderStatusPaid, stored.Status)
	assert.Equal(t, "4200000001", stored.TransactionID)
	require.NotNil(t, stored.PayTime)
	assert.Equal(t, 3, h.store.Book(bookA).Stock)

	again := h.pay(t, order.OutTradeNo)
	assert.False(t, again.Applied)
	assert.Equal(t, model.OrderStatusPaid, h.store.Order(order.OutTradeNo).Status)
	assert.Equal(t, 3, h.store.Book(bookA).Stock)

	refunded, err := h.coordinator.ApplyRefundConfirmed(ctx, order.OutTradeNo)
	require.NoError(t, err)
	assert.True(t, refunded.Applied)
	stored = h.store.Order(order.OutTradeNo)
	assert.Equal(t, model.OrderStatusRefunded, stored.Status)
	require.NotNil(t, stored.RefundTime)
	assert.Equal(t, 5, h.store.Book(bookA).Stock)

	assert.Equal(t, []string{model.EventOrderCreated, model.EventOrderPaid, model.EventOrderRefunded}, h.events.Types())
	transitions := h.store.Transitions()
	require.Len(t, transitions, 2)
	assert.Equal(t, model.OrderStatusPendingPayment, transitions[0].From)
	assert.Equal(t, model.OrderStatusPaid, transitions[0].To)
	assert.Equal(t, model.OrderStatusRefunded, transitions[1].To)
}

func TestCreateOrderOutOfStock(t *testing.T) {
	h := newHarness(t)

	_, err := h.coordinator.CreateOrder(context.Background(), orderRequest(model.CreateOrderLine{BookID: bookB, Quantity: 10}))
	require.ErrorIs(t, err, domainErrors.ErrOutOfStock)
	var stockErr *domainErrors.OutOfStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, bookB, stockErr.BookID)
	assert.Equal(t, 10, stockErr.Requested)
	assert.Equal(t, 3, stockErr.Available)

	orders, err := h.coordinator.ListOrders(context.Background(), model.OrderFilter{})
	require.NoError(t, err)
	assert.Empty(t, orders)
	assert.Empty(t, h.gateway.Intents)
}

func TestCreateOrderMergesDuplicateLines(t *testing.T) {
	h := newHarness(t)
	order := h.create(t,
		model.CreateOrderLine{BookID: bookA, Quantity: 1},
		model.CreateOrderLine{BookID: bookB, Quantity: 1},
		model.CreateOrderLine{BookID: bookA, Quantity: 2},
	)
	require.Len(t, order.Lines, 2)
	assert.Equal(t, 3, order.Lines[0].Quantity)
	assert.Equal(t, int64(3*500+1200), order.Money)
	assert.Equal(t, 4, order.Quantity)
}

func TestCreateOrderRejectsInvalidInput(t *testing.T) {
	h := newHarness(t)

	req := orderRequest(model.CreateOrderLine{BookID: bookA, Quantity: 1})
	req.Phone = "555-1234"
	_, err := h.coordinator.CreateOrder(context.Background(), req)
	assert.ErrorIs(t, err, domainErrors.ErrValidation)

	_, err = h.coordinator.CreateOrder(context.Background(), orderRequest(model.CreateOrderLine{BookID: 404, Quantity: 1}))
	var vErr *domainErrors.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "lines", vErr.Field)
	assert.Empty(t, h.gateway.Intents)
}

func TestCreateOrderGatewayFailureRollsBack(t *testing.T) {
	h := newHarness(t)
	h.gateway.IntentFn = func(context.Context, model.PaymentIntentRequest) (*model.PaymentIntent, error) {
		return nil, errors.New("timeout")
	}

	_, err := h.coordinator.CreateOrder(context.Background(), orderRequest(model.CreateOrderLine{BookID: bookA, Quantity: 1}))
	require.ErrorIs(t, err, domainErrors.ErrGateway)

	orders, err := h.coordinator.ListOrders(context.Background(), model.OrderFilter{})
	require.NoError(t, err)
	assert.Empty(t, orders)
	assert.Empty(t, h.events.Types())
}

func TestApplyPaymentConfirmedEnqueuesFulfillment(t *testing.T) {
	h := newHarness(t)
	order := h.create(t, model.CreateOrderLine{BookID: bookA, Quantity: 1})

	h.pay(t, order.OutTradeNo)

	queued := h.queue.Enqueued()
	require.Len(t, queued, 1)
	assert.Equal(t, order.OutTradeNo, queued[0].OutTradeNo)
	stored := h.store.Order(order.OutTradeNo)
	require.NotNil(t, stored.FulfillmentNextAt)
	assert.True(t, stored.FulfillmentNextAt.Equal(h.clock.Now().Add(30*time.Second)))

	h.queue.Reject = true
	other := h.create(t, model.CreateOrderLine{BookID: bookB, Quantity: 1})
	result := h.pay(t, other.OutTradeNo)
	assert.True(t, result.Applied)
	assert.Len(t, h.queue.Enqueued(), 1)
}

func TestApplyPaymentConfirmedShortfall(t *testing.T) {
	h := newHarness(t)
	first := h.create(t, model.CreateOrderLine{BookID: bookB, Quantity: 2})
	second := h.create(t,
		model.CreateOrderLine{BookID: bookA, Quantity: 1},
		model.CreateOrderLine{BookID: bookB, Quantity: 2},
	)

	h.pay(t, first.OutTradeNo)
	result := h.pay(t, second.OutTradeNo)

	assert.True(t, result.Applied)
	require.Len(t, result.Shortfalls, 1)
	assert.Equal(t, model.Shortfall{BookID: bookB, Quantity: 2}, result.Shortfalls[0])

	stored := h.store.Order(second.OutTradeNo)
	assert.Equal(t, model.OrderStatusPaid, stored.Status)
	assert.True(t, stored.InventoryShortfall)
	assert.True(t, stored.Lines[0].StockDeducted)
	assert.False(t, stored.Lines[1].StockDeducted)
	assert.Equal(t, 4, h.store.Book(bookA).Stock)
	assert.Equal(t, 1, h.store.Book(bookB).Stock)

	_, err := h.coordinator.ApplyRefundConfirmed(context.Background(), second.OutTradeNo)
	require.NoError(t, err)
	assert.Equal(t, 5, h.store.Book(bookA).Stock)
	assert.Equal(t, 1, h.store.Book(bookB).Stock)
}

func TestApplyPaymentConfirmedOnTerminalOrders(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	closed := h.create(t, model.CreateOrderLine{BookID: bookA, Quantity: 1})
	_, err := h.coordinator.CloseOrder(ctx, closed.OutTradeNo)
	require.NoError(t, err)

	refunded := h.create(t, model.CreateOrderLine{BookID: bookA, Quantity: 1})
	h.pay(t, refunded.OutTradeNo)
	_, err = h.coordinator.ApplyRefundConfirmed(ctx, refunded.OutTradeNo)
	require.NoError(t, err)

	for _, tc := range []struct {
		outTradeNo string
		status     model.OrderStatus
	}{
		{closed.OutTradeNo, model.OrderStatusClosed},
		{refunded.OutTradeNo, model.OrderStatusRefunded},
	} {
		result := h.pay(t, tc.outTradeNo)
		assert.False(t, result.Applied)
		assert.Equal(t, tc.status, h.store.Order(tc.outTradeNo).Status)
	}
	assert.Equal(t, 5, h.store.Book(bookA).Stock)
}

func TestApplyPaymentConfirmedUnknownOrder(t *testing.T) {
	h := newHarness(t)
	_, err := h.coordinator.ApplyPaymentConfirmed(context.Background(), "missing", "tx")
	assert.ErrorIs(t, err, domainErrors.ErrNotFound)
}

func TestApplyPaymentConfirmedRollsBackOnStoreFailure(t *testing.T) {
	h := newHarness(t)
	order := h.create(t, model.CreateOrderLine{BookID: bookA, Quantity: 2})

	h.store.FailOn("UpdateState", errors.New("connection reset"))
	_, err := h.coordinator.ApplyPaymentConfirmed(context.Background(), order.OutTradeNo, "tx")
	require.Error(t, err)
	assert.Equal(t, 5, h.store.Book(bookA).Stock)
	assert.Equal(t, model.OrderStatusPendingPayment, h.store.Order(order.OutTradeNo).Status)

	h.store.FailOn("UpdateState", nil)
	result := h.pay(t, order.OutTradeNo)
	assert.True(t, result.Applied)
	assert.Equal(t, 3, h.store.Book(bookA).Stock)
}

func TestConcurrentPaymentDeliveriesDecrementOnce(t *testing.T) {
	h := newHarness(t)
	order := h.create(t, model.CreateOrderLine{BookID: bookA, Quantity: 2})

	const deliveries = 8
	var wg sync.WaitGroup
	applied := make(chan bool, deliveries)
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := h.coordinator.ApplyPaymentConfirmed(context.Background(), order.OutTradeNo, "tx")
			if err == nil {
				applied <- result.Applied
			}
		}()
	}
	wg.Wait()
	close(applied)

	count := 0
	for a := range applied {
		if a {
			count++
		}
	}
	assert.Equal(t, 1, count)
	assert.Equal(t, 3, h.store.Book(bookA).Stock)
}

func TestRefundRestoreIsAdditive(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	order := h.create(t, model.CreateOrderLine{BookID: bookA, Quantity: 2})
	h.pay(t, order.OutTradeNo)

	other := h.create(t, model.CreateOrderLine{BookID: bookA, Quantity: 3})
	h.pay(t, other.OutTradeNo)
	assert.Equal(t, 0, h.store.Book(bookA).Stock)

	_, err := h.coordinator.ApplyRefundConfirmed(ctx, order.OutTradeNo)
	require.NoError(t, err)
	assert.Equal(t, 2, h.store.Book(bookA).Stock)

	again, err := h.coordinator.ApplyRefundConfirmed(ctx, order.OutTradeNo)
	require.NoError(t, err)
	assert.False(t, again.Applied)
	assert.Equal(t, 2, h.store.Book(bookA).Stock)
}

func TestApplyRefundRequested(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	order := h.create(t, model.CreateOrderLine{BookID: bookA, Quantity: 2})

	pending, err := h.coordinator.ApplyRefundRequested(ctx, order.ID, "damaged")
	require.NoError(t, err)
	assert.False(t, pending.Applied)
	assert.Empty(t, h.gateway.RefundCalls())

	h.pay(t, order.OutTradeNo)
	result, err := h.coordinator.ApplyRefundRequested(ctx, order.ID, "damaged")
	require.NoError(t, err)
	assert.True(t, result.Applied)

	stored := h.store.Order(order.OutTradeNo)
	assert.Equal(t, model.OrderStatusRefundRequested, stored.Status)
	assert.Equal(t, "damaged", stored.RefundReason)
	assert.Contains(t, stored.Remark, "[refund reason: damaged]")
	assert.Regexp(t, `^refund_[0-9a-f]{32}$`, stored.OutRefundNo)

	calls := h.gateway.RefundCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, stored.OutRefundNo, calls[0].OutRefundNo)
	assert.Equal(t, int64(1000), calls[0].RefundAmount)
	assert.Equal(t, int64(1000), calls[0].TotalAmount)
	assert.Equal(t, h.cfg.RefundNotifyURL, calls[0].NotifyURL)

	// stock comes back only on confirmation
	assert.Equal(t, 3, h.store.Book(bookA).Stock)
	_, err = h.coordinator.ApplyRefundConfirmed(ctx, order.OutTradeNo)
	require.NoError(t, err)
	assert.Equal(t, 5, h.store.Book(bookA).Stock)
}

func TestApplyRefundRequestedGatewayFailureKeepsPaid(t *testing.T) {
	h := newHarness(t)
	order := h.create(t, model.CreateOrderLine{BookID: bookA, Quantity: 1})
	h.pay(t, order.OutTradeNo)
	h.gateway.RefundFn = func(context.Context, model.RefundRequest) (*model.RefundReceipt, error) {
		return nil, errors.New("gateway busy")
	}

	_, err := h.coordinator.ApplyRefundRequested(context.Background(), order.ID, "changed mind")
	require.ErrorIs(t, err, domainErrors.ErrGateway)

	stored := h.store.Order(order.OutTradeNo)
	assert.Equal(t, model.OrderStatusPaid, stored.Status)
	assert.Empty(t, stored.OutRefundNo)
	assert.Empty(t, stored.RefundReason)
}

func TestResubmitRefund(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	order := h.create(t, model.CreateOrderLine{BookID: bookA, Quantity: 1})
	h.pay(t, order.OutTradeNo)

	notRequested, err := h.coordinator.ResubmitRefund(ctx, order.ID)
	require.NoError(t, err)
	assert.False(t, notRequested.Applied)

	_, err = h.coordinator.ApplyRefundRequested(ctx, order.ID, "")
	require.NoError(t, err)
	result, err := h.coordinator.ResubmitRefund(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, result.Applied)

	calls := h.gateway.RefundCalls()
	require.Len(t, calls, 2)
	assert.Equal(t, calls[0].OutRefundNo, calls[1].OutRefundNo)
	assert.Equal(t, model.OrderStatusRefundRequested, h.store.Order(order.OutTradeNo).Status)
}

func TestCloseIfExpired(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	order := h.create(t, model.CreateOrderLine{BookID: bookA, Quantity: 1})

	fresh, err := h.coordinator.CloseIfExpired(ctx, order.OutTradeNo)
	require.NoError(t, err)
	assert.False(t, fresh.Applied)

	h.clock.Advance(31 * time.Minute)
	result, err := h.coordinator.CloseIfExpired(ctx, order.OutTradeNo)
	require.NoError(t, err)
	assert.True(t, result.Applied)
	assert.Equal(t, model.OrderStatusClosed, h.store.Order(order.OutTradeNo).Status)
	assert.Equal(t, 5, h.store.Book(bookA).Stock)

	paid := h.create(t, model.CreateOrderLine{BookID: bookA, Quantity: 1})
	h.pay(t, paid.OutTradeNo)
	h.clock.Advance(time.Hour)
	skipped, err := h.coordinator.CloseIfExpired(ctx, paid.OutTradeNo)
	require.NoError(t, err)
	assert.False(t, skipped.Applied)
	assert.Equal(t, model.OrderStatusPaid, h.store.Order(paid.OutTradeNo).Status)
}

func TestCompleteFulfillment(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	order := h.create(t, model.CreateOrderLine{BookID: bookA, Quantity: 1})

	early, err := h.coordinator.CompleteFulfillment(ctx, order.OutTradeNo)
	require.NoError(t, err)
	assert.False(t, early.Applied)

	h.pay(t, order.OutTradeNo)
	result, err := h.coordinator.CompleteFulfillment(ctx, order.OutTradeNo)
	require.NoError(t, err)
	assert.True(t, result.Applied)

	stored := h.store.Order(order.OutTradeNo)
	assert.Equal(t, model.OrderStatusCompleted, stored.Status)
	assert.Nil(t, stored.FulfillmentNextAt)

	// completed orders are no longer refundable through the webhook
	refund, err := h.coordinator.ApplyRefundConfirmed(ctx, order.OutTradeNo)
	require.NoError(t, err)
	assert.False(t, refund.Applied)
}

func TestListOrders(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	first := h.create(t, model.CreateOrderLine{BookID: bookA, Quantity: 1})
	h.clock.Advance(time.Minute)
	second := h.create(t, model.CreateOrderLine{BookID: bookA, Quantity: 1})
	h.pay(t, second.OutTradeNo)

	all, err := h.coordinator.ListOrders(ctx, model.OrderFilter{OpenID: "openid-1"})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, second.OutTradeNo, all[0].OutTradeNo)

	paid, err := h.coordinator.ListOrders(ctx, model.OrderFilter{Status: model.OrderStatusPaid})
	require.NoError(t, err)
	require.Len(t, paid, 1)
	assert.Equal(t, second.OutTradeNo, paid[0].OutTradeNo)

	page, err := h.coordinator.ListOrders(ctx, model.OrderFilter{Page: 2, Size: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, first.OutTradeNo, page[0].OutTradeNo)

	_, err = h.coordinator.ListOrders(ctx, model.OrderFilter{Status: "SHIPPED"})
	assert.ErrorIs(t, err, domainErrors.ErrValidation)

	got, err := h.coordinator.GetOrder(ctx, first.OutTradeNo)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
	_, err = h.coordinator.GetOrder(ctx, "nope")
	assert.ErrorIs(t, err, domainErrors.ErrNotFound)
}

func TestConcurrentTryDecrementSingleUnit(t *testing.T) {
	store := testhelpers.NewMemoryStore()
	store.AddBook(model.Book{ID: 9, Name: "Last copy", Price: 100, Stock: 1})
	ledger := store.Inventory()

	var wg sync.WaitGroup
	results := make(chan bool, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := ledger.TryDecrement(context.Background(), 9, 1)
			if err == nil {
				results <- ok
			}
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for ok := range results {
		if ok {
			succeeded++
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 0, store.Book(9).Stock)
}
