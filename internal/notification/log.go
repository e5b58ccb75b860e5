package notification

import (
	"context"

	obslogger "github.com/smallbiznis/cashback/internal/observability/logger"
	"go.uber.org/zap"
)

// LogDispatcher writes each notification to the operational log instead of delivering it.
type LogDispatcher struct {
	log *zap.Logger
}

func NewLogDispatcher(log *zap.Logger) *LogDispatcher {
	return &LogDispatcher{log: log.Named("notification")}
}

func (d *LogDispatcher) Dispatch(ctx context.Context, notifications []Notification) error {
	log := obslogger.WithContext(ctx, d.log)
	for _, n := range notifications {
		log.Info("notification.logged",
			zap.String("recipient", n.Recipient),
			zap.String("subscription_id", n.SubscriptionID.String()),
			zap.String("reason", string(n.Reason)),
			zap.String("invoice_number", n.InvoiceNumber),
		)
	}
	return nil
}
