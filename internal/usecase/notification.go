package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	domainErrors "github.com/polkiloo/bookshop/internal/domain/errors"
	"github.com/polkiloo/bookshop/internal/domain/model"
	"github.com/polkiloo/bookshop/internal/metrics"
)

const (
	kindPayment = "payment"
	kindRefund  = "refund"
)

// NotificationUseCase verifies gateway webhooks and dispatches them to the coordinator.
type NotificationUseCase struct {
	verifier    NotificationVerifier
	coordinator *OrderCoordinator
	guard       IdempotencyGuard
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// NewNotificationUseCase constructs NotificationUseCase. guard and m may be nil.
func NewNotificationUseCase(verifier NotificationVerifier, coordinator *OrderCoordinator, guard IdempotencyGuard, m *metrics.Metrics, logger *slog.Logger) *NotificationUseCase {
	return &NotificationUseCase{verifier: verifier, coordinator: coordinator, guard: guard, metrics: m, logger: logger}
}

// HandlePayment processes a payment webhook. Only verification failures are
// returned; anything after verification is logged and acknowledged.
func (u *NotificationUseCase) HandlePayment(ctx context.Context, headers model.NotificationHeaders, body []byte) error {
	return u.handle(ctx, kindPayment, headers, body, u.dispatchPayment)
}

// HandleRefund processes a refund webhook with the same contract as HandlePayment.
func (u *NotificationUseCase) HandleRefund(ctx context.Context, headers model.NotificationHeaders, body []byte) error {
	return u.handle(ctx, kindRefund, headers, body, u.dispatchRefund)
}

type dispatchFunc func(ctx context.Context, n *model.Notification) (string, error)

func (u *NotificationUseCase) handle(ctx context.Context, kind string, headers model.NotificationHeaders, body []byte, dispatch dispatchFunc) error {
	n, err := u.verifier.VerifyAndDecrypt(ctx, headers, body)
	if err != nil {
		u.metrics.WebhookEvent(kind, metrics.OutcomeRejected)
		u.logger.Warn("webhook rejected", slog.String("kind", kind), slog.Any("error", err))
		if !errors.Is(err, domainErrors.ErrVerification) {
			err = fmt.Errorf("%w: %v", domainErrors.ErrVerification, err)
		}
		return err
	}

	log := u.logger.With(slog.String("kind", kind), slog.String("event_id", n.ID), slog.String("event_type", n.EventType))

	useGuard := u.guard != nil && n.ID != ""
	if useGuard {
		seen, err := u.guard.Seen(ctx, n.ID)
		switch {
		case err != nil:
			log.Warn("idempotency guard unavailable", slog.Any("error", err))
		case seen:
			u.metrics.WebhookEvent(kind, metrics.OutcomeDuplicate)
			log.Info("duplicate webhook delivery")
			return nil
		}
	}

	outcome, err := dispatch(ctx, n)
	if err != nil {
		u.metrics.WebhookEvent(kind, metrics.OutcomeError)
		log.Error("webhook processing failed", slog.Any("error", err))
		return nil
	}

	if useGuard {
		// the gateway may already have given up on this request
		if merr := u.guard.Mark(context.WithoutCancel(ctx), n.ID); merr != nil {
			log.Warn("idempotency mark not stored", slog.Any("error", merr))
		}
	}

	u.metrics.WebhookEvent(kind, outcome)
	log.Info("webhook processed", slog.String("outcome", outcome))
	return nil
}

func (u *NotificationUseCase) dispatchPayment(ctx context.Context, n *model.Notification) (string, error) {
	if n.EventType != model.EventTransactionSuccess {
		return metrics.OutcomeIgnored, nil
	}
	var tx model.PaymentTransaction
	if err := json.Unmarshal(n.Resource, &tx); err != nil {
		return "", fmt.Errorf("decode payment resource: %w", err)
	}
	if tx.TradeState != model.TradeStateSuccess {
		u.logger.Info("payment not successful", slog.String("out_trade_no", tx.OutTradeNo), slog.String("trade_state", tx.TradeState))
		return metrics.OutcomeIgnored, nil
	}
	if tx.OutTradeNo == "" {
		return "", errors.New("payment resource without out_trade_no")
	}

	result, err := u.coordinator.ApplyPaymentConfirmed(ctx, tx.OutTradeNo, tx.TransactionID)
	if err != nil {
		return "", err
	}
	if !result.Applied {
		return metrics.OutcomeDuplicate, nil
	}
	if result.Order.Money != tx.Amount.Total {
		u.logger.Warn("paid amount differs from order total",
			slog.String("out_trade_no", tx.OutTradeNo),
			slog.Int64("order_money", result.Order.Money),
			slog.Int64("paid_total", tx.Amount.Total),
		)
	}
	return metrics.OutcomeApplied, nil
}

func (u *NotificationUseCase) dispatchRefund(ctx context.Context, n *model.Notification) (string, error) {
	var tx model.RefundTransaction
	if err := json.Unmarshal(n.Resource, &tx); err != nil {
		return "", fmt.Errorf("decode refund resource: %w", err)
	}

	switch n.EventType {
	case model.EventRefundSuccess:
		if tx.OutTradeNo == "" {
			return "", errors.New("refund resource without out_trade_no")
		}
		result, err := u.coordinator.ApplyRefundConfirmed(ctx, tx.OutTradeNo)
		if err != nil {
			return "", err
		}
		if !result.Applied {
			return metrics.OutcomeDuplicate, nil
		}
		return metrics.OutcomeApplied, nil
	case model.EventRefundAbnormal, model.EventRefundClosed:
		u.logger.Warn("refund not completed by gateway",
			slog.String("event_type", n.EventType),
			slog.String("out_trade_no", tx.OutTradeNo),
			slog.String("out_refund_no", tx.OutRefundNo),
			slog.String("refund_status", tx.RefundStatus),
		)
		return metrics.OutcomeIgnored, nil
	default:
		return metrics.OutcomeIgnored, nil
	}
}
