package notification

import (
	"context"
	"testing"

	"github.com/smallbiznis/cashback/internal/config"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestNewFromConfigSelectsDispatcher(t *testing.T) {
	logOnly := NewFromConfig(config.Config{}, zap.NewNop())
	assert.IsType(t, &LogDispatcher{}, logOnly)
	assert.NoError(t, logOnly.Dispatch(context.Background(), []Notification{{Recipient: "a@b.test", Reason: ReasonPaymentReminder}}))

	email := NewFromConfig(config.Config{Email: config.EmailConfig{SMTPHost: "smtp.test", SMTPPort: 25}}, zap.NewNop())
	assert.IsType(t, &EmailDispatcher{}, email)
}
