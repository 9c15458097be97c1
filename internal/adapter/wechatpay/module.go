package wechatpay

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go.uber.org/fx"

	"github.com/polkiloo/bookshop/internal/config"
	"github.com/polkiloo/bookshop/internal/usecase"
)

// Gateway is both the payment gateway and the notification verifier.
type Gateway interface {
	usecase.PaymentGateway
	usecase.NotificationVerifier
}

// NewFromConfig builds the real client in prod mode and the mock otherwise.
func NewFromConfig(cfg *config.Config, logger *slog.Logger) (Gateway, error) {
	switch cfg.PayMode {
	case config.PayModeMock:
		logger.Warn("wechat pay running in mock mode")
		return NewMockClient(cfg.WeChat.AppID, cfg.WeChat.APIv3Key, cfg.WebhookTolerance), nil
	case config.PayModeProd, "":
		return NewClient(Config{
			AppID:        cfg.WeChat.AppID,
			MchID:        cfg.WeChat.MchID,
			MchSerial:    cfg.WeChat.MchSerial,
			PrivateKey:   cfg.WeChat.PrivateKey,
			PlatformCert: cfg.WeChat.PlatformCert,
			APIv3Key:     cfg.WeChat.APIv3Key,
			BaseURL:      cfg.WeChat.PayBaseURL,
			Tolerance:    cfg.WebhookTolerance,
			HTTP:         &http.Client{Timeout: 10 * time.Second},
		})
	default:
		return nil, fmt.Errorf("unknown pay mode %q", cfg.PayMode)
	}
}

// Module wires the gateway client under both usecase interfaces.
var Module = fx.Options(
	fx.Provide(
		NewFromConfig,
		func(g Gateway) usecase.PaymentGateway { return g },
		func(g Gateway) usecase.NotificationVerifier { return g },
	),
)
