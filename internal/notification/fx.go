package notification

import (
	"github.com/smallbiznis/cashback/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("notification",
	fx.Provide(NewFromConfig),
)

// NewFromConfig sends email when SMTP is configured and logs notifications otherwise.
func NewFromConfig(cfg config.Config, log *zap.Logger) Dispatcher {
	if !cfg.Email.Enabled() {
		return NewLogDispatcher(log)
	}
	return NewEmailDispatcher(EmailConfig{
		Host:     cfg.Email.SMTPHost,
		Port:     cfg.Email.SMTPPort,
		Username: cfg.Email.SMTPUsername,
		Password: cfg.Email.SMTPPassword,
		From:     cfg.Email.SMTPFrom,
	}, log)
}
