package notification

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"strings"

	obslogger "github.com/smallbiznis/cashback/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/cashback/internal/observability/metrics"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type dialFunc func() (gomail.SendCloser, error)

// EmailDispatcher sends one HTML email per notification over a single SMTP session.
type EmailDispatcher struct {
	from string
	dial dialFunc
	log  *zap.Logger
}

func NewEmailDispatcher(cfg EmailConfig, log *zap.Logger) *EmailDispatcher {
	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	return &EmailDispatcher{
		from: cfg.From,
		dial: dialer.Dial,
		log:  log.Named("notification.email"),
	}
}

func (d *EmailDispatcher) Dispatch(ctx context.Context, notifications []Notification) error {
	if len(notifications) == 0 {
		return nil
	}
	metrics := obsmetrics.Scheduler()

	sender, err := d.dial()
	if err != nil {
		for _, n := range notifications {
			metrics.IncNotification(string(n.Reason), obsmetrics.OutcomeFailed)
		}
		return fmt.Errorf("dial smtp: %w", err)
	}
	defer sender.Close()

	log := obslogger.WithContext(ctx, d.log)
	var sendErr error
	for _, n := range notifications {
		if err := ctx.Err(); err != nil {
			return errors.Join(sendErr, err)
		}
		if strings.TrimSpace(n.Recipient) == "" {
			metrics.IncNotification(string(n.Reason), obsmetrics.OutcomeSkipped)
			continue
		}

		msg, err := d.message(n)
		if err == nil {
			err = gomail.Send(sender, msg)
		}
		if err != nil {
			metrics.IncNotification(string(n.Reason), obsmetrics.OutcomeFailed)
			sendErr = errors.Join(sendErr, fmt.Errorf("%s to %s: %w", n.Reason, n.Recipient, err))
			log.Warn("notification.send.failed",
				zap.String("reason", string(n.Reason)),
				zap.String("subscription_id", n.SubscriptionID.String()),
				zap.Error(err),
			)
			continue
		}
		metrics.IncNotification(string(n.Reason), obsmetrics.OutcomeSucceeded)
	}
	return sendErr
}

func (d *EmailDispatcher) message(n Notification) (*gomail.Message, error) {
	tmpl, ok := templates[n.Reason]
	if !ok {
		return nil, fmt.Errorf("no email template for reason %q", n.Reason)
	}
	var body bytes.Buffer
	if err := tmpl.body.Execute(&body, newEmailView(n)); err != nil {
		return nil, err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", d.from)
	m.SetHeader("To", n.Recipient)
	m.SetHeader("Subject", tmpl.subject)
	m.SetBody("text/html", body.String())
	return m, nil
}

type emailTemplate struct {
	subject string
	body    *template.Template
}

var templates = map[Reason]emailTemplate{
	ReasonPaymentReminder: {
		subject: "Payment reminder: your invoice is overdue",
		body: template.Must(template.New("reminder").Parse(
			"<p>Invoice <strong>{{.InvoiceNumber}}</strong>\n" +
				"for {{.Amount}} {{.Currency}} was due on {{.DueDate}}.</p>\n" +
				"<p>Please settle it to keep your cashback program running.</p>\n")),
	},
	ReasonSubscriptionDelinquent: {
		subject: "Your subscription is past due",
		body: template.Must(template.New("delinquent").Parse(
			"<p>Subscription {{.SubscriptionID}} has an unpaid invoice\n" +
				"past its grace period.</p>\n" +
				"<p>Service will be suspended if the balance remains unpaid.</p>\n")),
	},
	ReasonSubscriptionSuspended: {
		subject: "Your subscription has been suspended",
		body: template.Must(template.New("suspended").Parse(
			"<p>Subscription {{.SubscriptionID}} has been suspended for non-payment.</p>\n" +
				"<p>Pay the outstanding invoices to reactivate it.</p>\n")),
	},
}

type emailView struct {
	SubscriptionID string
	InvoiceNumber  string
	Amount         string
	Currency       string
	DueDate        string
}

func newEmailView(n Notification) emailView {
	view := emailView{
		SubscriptionID: n.SubscriptionID.String(),
		InvoiceNumber:  n.InvoiceNumber,
		Amount:         formatMinor(n.Amount),
		Currency:       n.Currency,
	}
	if n.DueDate != nil {
		view.DueDate = n.DueDate.Format("2006-01-02")
	}
	return view
}

// formatMinor renders minor units with two decimals (4990 -> 49.90).
func formatMinor(amount int64) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	return fmt.Sprintf("%s%d.%02d", sign, amount/100, amount%100)
}
