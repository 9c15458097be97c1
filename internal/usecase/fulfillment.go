package usecase

import (
	"context"
	"log/slog"
	"time"

	"go.uber.org/fx"

	"github.com/polkiloo/bookshop/internal/config"
	"github.com/polkiloo/bookshop/internal/domain/model"
	"github.com/polkiloo/bookshop/internal/domain/repository"
	"github.com/polkiloo/bookshop/internal/metrics"
)

// Fulfillment results reported to metrics.
const (
	FulfillmentSuccess = "success"
	FulfillmentRetry   = "retry"
	FulfillmentGaveUp  = "gave_up"
	FulfillmentSkipped = "skipped"
)

const (
	maxFulfillmentBackoff = time.Hour
	fulfillmentLease      = 2 * time.Minute
	itemDescLimit         = 120
)

// FulfillmentParams lists FulfillmentUseCase dependencies.
type FulfillmentParams struct {
	fx.In

	Orders      repository.OrderRepository
	Coordinator *OrderCoordinator
	Notifier    ShippingNotifier
	Metrics     *metrics.Metrics `optional:"true"`
	Logger      *slog.Logger
	Config      *config.Config
	Clock       Clock `optional:"true"`
}

// FulfillmentUseCase uploads shipping information for paid orders and
// schedules retries with exponential backoff.
type FulfillmentUseCase struct {
	orders      repository.OrderRepository
	coordinator *OrderCoordinator
	notifier    ShippingNotifier
	metrics     *metrics.Metrics
	logger      *slog.Logger
	now         Clock

	mchID       string
	maxAttempts int
	backoff     time.Duration
}

// NewFulfillmentUseCase constructs FulfillmentUseCase.
func NewFulfillmentUseCase(p FulfillmentParams) *FulfillmentUseCase {
	now := p.Clock
	if now == nil {
		now = time.Now
	}
	return &FulfillmentUseCase{
		orders:      p.Orders,
		coordinator: p.Coordinator,
		notifier:    p.Notifier,
		metrics:     p.Metrics,
		logger:      p.Logger,
		now:         now,
		mchID:       p.Config.WeChat.MchID,
		maxAttempts: p.Config.FulfillmentMaxAttempts,
		backoff:     p.Config.FulfillmentBackoff,
	}
}

// DueOrders leases up to limit paid orders whose next attempt is due.
func (u *FulfillmentUseCase) DueOrders(ctx context.Context, limit int) ([]model.Order, error) {
	now := u.now()
	return u.orders.SelectForFulfillment(ctx, now, now.Add(fulfillmentLease), limit)
}

// Fulfill notifies the logistics API for one order. The order is re-read
// first so a refund or completion that happened after it was queued wins.
func (u *FulfillmentUseCase) Fulfill(ctx context.Context, orderID int64) error {
	order, err := u.orders.GetByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order.Status != model.OrderStatusPaid {
		u.metrics.FulfillmentResult(FulfillmentSkipped)
		return nil
	}

	notifyErr := u.notifier.Notify(ctx, u.Notice(order))
	if notifyErr == nil {
		if _, err := u.coordinator.CompleteFulfillment(ctx, order.OutTradeNo); err != nil {
			return err
		}
		u.metrics.FulfillmentResult(FulfillmentSuccess)
		return nil
	}

	attempts := order.FulfillmentAttempts + 1
	var next *time.Time
	result := FulfillmentGaveUp
	if attempts < u.maxAttempts {
		at := u.now().Add(BackoffFor(u.backoff, attempts))
		next = &at
		result = FulfillmentRetry
	}
	u.metrics.FulfillmentResult(result)

	log := u.logger.With(slog.String("out_trade_no", order.OutTradeNo), slog.Int("attempt", attempts))
	if next == nil {
		log.Error("shipping upload abandoned", slog.Any("error", notifyErr))
	} else {
		log.Warn("shipping upload failed", slog.Any("error", notifyErr), slog.Time("next_attempt", *next))
	}

	if err := u.orders.RecordFulfillmentAttempt(ctx, order.ID, attempts, next, notifyErr.Error()); err != nil {
		return err
	}
	return notifyErr
}

// Notice builds the shipping upload for order.
func (u *FulfillmentUseCase) Notice(order *model.Order) model.ShippingNotice {
	return model.ShippingNotice{
		OutTradeNo:    order.OutTradeNo,
		TransactionID: order.TransactionID,
		MchID:         u.mchID,
		LogisticsType: order.DeliveryMode.LogisticsType(),
		ItemDesc:      order.ItemSummary(itemDescLimit),
		PayerOpenID:   order.OpenID,
		UploadTime:    u.now(),
	}
}

// BackoffFor returns base * 2^(attempt-1), capped at one hour.
func BackoffFor(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxFulfillmentBackoff {
			return maxFulfillmentBackoff
		}
	}
	if d > maxFulfillmentBackoff {
		return maxFulfillmentBackoff
	}
	return d
}
