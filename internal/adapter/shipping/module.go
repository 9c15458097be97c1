package shipping

import (
	"log/slog"

	"go.uber.org/fx"

	"github.com/polkiloo/bookshop/internal/config"
	"github.com/polkiloo/bookshop/internal/usecase"
)

// Module exposes the shipping notifier to the fx graph.
var Module = fx.Provide(newNotifier)

type notifierParams struct {
	fx.In

	Config *config.Config
	Logger *slog.Logger
}

func newNotifier(p notifierParams) (usecase.ShippingNotifier, error) {
	if p.Config.PayMode == config.PayModeMock {
		return NewLogNotifier(p.Logger), nil
	}
	return NewHTTPClient(p.Config.WeChat.APIBaseURL, p.Config.WeChat.AppID, p.Config.WeChat.AppSecret, p.Logger)
}
