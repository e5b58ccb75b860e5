package notification

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

type sentMail struct {
	from string
	to   []string
	body string
}

type fakeSender struct {
	sent   []sentMail
	failTo string
	closed bool
}

func (f *fakeSender) Send(from string, to []string, msg io.WriterTo) error {
	if len(to) > 0 && to[0] == f.failTo {
		return errors.New("mailbox unavailable")
	}
	var b strings.Builder
	if _, err := msg.WriteTo(&b); err != nil {
		return err
	}
	f.sent = append(f.sent, sentMail{from: from, to: to, body: b.String()})
	return nil
}

func (f *fakeSender) Close() error {
	f.closed = true
	return nil
}

func newTestDispatcher(sender *fakeSender) *EmailDispatcher {
	return &EmailDispatcher{
		from: "billing@cashback.test",
		dial: func() (gomail.SendCloser, error) { return sender, nil },
		log:  zap.NewNop(),
	}
}

func TestEmailDispatcherSendsOneMessagePerNotification(t *testing.T) {
	sender := &fakeSender{}
	d := newTestDispatcher(sender)
	due := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	err := d.Dispatch(context.Background(), []Notification{
		{
			Recipient:      "owner@kopi.test",
			SubscriptionID: snowflake.ID(10),
			Reason:         ReasonPaymentReminder,
			InvoiceNumber:  "INV-202401-000001",
			Amount:         4990,
			Currency:       "USD",
			DueDate:        &due,
		},
		{Recipient: "owner@kopi.test", SubscriptionID: snowflake.ID(10), Reason: ReasonSubscriptionDelinquent},
	})
	require.NoError(t, err)
	require.Len(t, sender.sent, 2)
	assert.True(t, sender.closed)
	assert.Equal(t, "billing@cashback.test", sender.sent[0].from)
	assert.Equal(t, []string{"owner@kopi.test"}, sender.sent[0].to)
	assert.Contains(t, sender.sent[0].body, "INV-202401-000001")
	assert.Contains(t, sender.sent[0].body, "49.90 USD")
	assert.Contains(t, sender.sent[0].body, "2024-01-01")
}

func TestEmailDispatcherSkipsEmptyRecipientAndJoinsFailures(t *testing.T) {
	sender := &fakeSender{failTo: "broken@merchant.test"}
	d := newTestDispatcher(sender)

	err := d.Dispatch(context.Background(), []Notification{
		{Recipient: "", SubscriptionID: snowflake.ID(1), Reason: ReasonSubscriptionSuspended},
		{Recipient: "broken@merchant.test", SubscriptionID: snowflake.ID(2), Reason: ReasonSubscriptionSuspended},
		{Recipient: "ok@merchant.test", SubscriptionID: snowflake.ID(3), Reason: ReasonSubscriptionSuspended},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken@merchant.test")
	require.Len(t, sender.sent, 1)
	assert.Equal(t, []string{"ok@merchant.test"}, sender.sent[0].to)
}

func TestEmailDispatcherReportsDialFailure(t *testing.T) {
	d := &EmailDispatcher{
		dial: func() (gomail.SendCloser, error) { return nil, errors.New("connection refused") },
		log:  zap.NewNop(),
	}
	err := d.Dispatch(context.Background(), []Notification{{Recipient: "a@b.test", Reason: ReasonPaymentReminder}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dial smtp")

	assert.NoError(t, d.Dispatch(context.Background(), nil))
}

func TestEmailDispatcherRejectsUnknownReason(t *testing.T) {
	sender := &fakeSender{}
	err := newTestDispatcher(sender).Dispatch(context.Background(), []Notification{{Recipient: "a@b.test", Reason: "unknown"}})
	require.Error(t, err)
	assert.Empty(t, sender.sent)
}

func TestFormatMinor(t *testing.T) {
	assert.Equal(t, "49.90", formatMinor(4990))
	assert.Equal(t, "0.05", formatMinor(5))
	assert.Equal(t, "-1.00", formatMinor(-100))
}
