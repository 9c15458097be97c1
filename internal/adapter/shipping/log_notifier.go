package shipping

import (
	"context"
	"log/slog"

	"github.com/polkiloo/bookshop/internal/domain/model"
)

// LogNotifier records shipping notices without calling out; used in mock pay mode.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, notice model.ShippingNotice) error {
	n.logger.Info("shipping notice (mock)",
		slog.String("out_trade_no", notice.OutTradeNo),
		slog.Int("logistics_type", notice.LogisticsType),
		slog.String("items", notice.ItemDesc),
	)
	return nil
}
