package redis

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/polkiloo/bookshop/internal/config"
	"github.com/polkiloo/bookshop/internal/usecase"
	"github.com/polkiloo/bookshop/internal/worker"
)

const (
	webhookScope    = "wechatpay"
	expirySweepLock = "expiry-sweep"
)

type clientParams struct {
	fx.In

	Ctx       context.Context
	Config    *config.Config
	Logger    *slog.Logger
	Lifecycle fx.Lifecycle
}

// NewFromConfig connects to redis when configured. A nil client means redis is disabled.
func NewFromConfig(p clientParams) (*Client, error) {
	if p.Config.RedisURL == "" {
		p.Logger.Info("redis not configured, dedup guard and sweeper lock are local")
		return nil, nil
	}
	client, err := New(p.Ctx, p.Config.RedisURL)
	if err != nil {
		return nil, err
	}
	p.Lifecycle.Append(fx.Hook{
		OnStop: func(context.Context) error { return client.Close() },
	})
	return client, nil
}

func newGuard(client *Client, cfg *config.Config) (usecase.IdempotencyGuard, error) {
	if client == nil {
		return NopGuard{}, nil
	}
	return NewIdempotencyGuard(client, cfg.WebhookDedupTTL, webhookScope)
}

func newSweepLock(client *Client, cfg *config.Config) (worker.Lock, error) {
	if client == nil {
		return NopLock{}, nil
	}
	return NewLock(client, client.LockKey(expirySweepLock), cfg.ExpirySweepPeriod)
}

// Module provides the redis client, the webhook guard and the expiry sweeper lock.
var Module = fx.Options(
	fx.Provide(
		NewFromConfig,
		newGuard,
		newSweepLock,
	),
)
