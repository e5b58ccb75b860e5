package dunning

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/cashback/internal/clock"
	"github.com/smallbiznis/cashback/internal/config"
	invoicedomain "github.com/smallbiznis/cashback/internal/invoice/domain"
	merchantdomain "github.com/smallbiznis/cashback/internal/merchant/domain"
	"github.com/smallbiznis/cashback/internal/notification"
	obslogger "github.com/smallbiznis/cashback/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/cashback/internal/observability/metrics"
	subscriptiondomain "github.com/smallbiznis/cashback/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Clock   clock.Clock
	Billing *config.BillingConfigHolder

	SubscriptionSvc subscriptiondomain.Service
	InvoiceSvc      invoicedomain.Service
	MerchantRepo    merchantdomain.Repository
}

type Engine struct {
	db      *gorm.DB
	log     *zap.Logger
	clock   clock.Clock
	billing *config.BillingConfigHolder

	subscriptionSvc subscriptiondomain.Service
	invoiceSvc      invoicedomain.Service
	merchantRepo    merchantdomain.Repository
}

func NewEngine(p Params) *Engine {
	return &Engine{
		db:      p.DB,
		log:     p.Log.Named("dunning"),
		clock:   p.Clock,
		billing: p.Billing,

		subscriptionSvc: p.SubscriptionSvc,
		invoiceSvc:      p.InvoiceSvc,
		merchantRepo:    p.MerchantRepo,
	}
}

// Run performs one dunning pass as of now. The suspension pass runs before
// the grace pass so a subscription escalates at most one step per run.
// Invoices are never mutated here.
func (e *Engine) Run(ctx context.Context, now time.Time) (Result, error) {
	if now.IsZero() {
		now = e.clock.Now()
	}
	now = now.UTC()
	cfg := ConfigFromBilling(e.billing.Get())
	log := obslogger.WithContext(ctx, e.log)

	result := Result{
		ReminderCandidates: []ReminderCandidate{},
		Recipients:         map[snowflake.ID]string{},
	}

	suspended, err := e.subscriptionSvc.Suspend(ctx, now, cfg.SuspensionDays)
	if err != nil {
		return result, fmt.Errorf("suspension pass: %w", err)
	}
	result.SuspendedIDs = suspended.Transitioned
	result.SuspendedCount = len(suspended.Transitioned)
	result.Errors = append(result.Errors, suspended.Errors...)

	delinquent, err := e.subscriptionSvc.MarkDelinquent(ctx, now, cfg.GraceDays)
	if err != nil {
		return result, fmt.Errorf("grace pass: %w", err)
	}
	result.DelinquentIDs = delinquent.Transitioned
	result.DelinquentCount = len(delinquent.Transitioned)
	result.Errors = append(result.Errors, delinquent.Errors...)

	reminderDue := clock.StartOfDay(now).AddDate(0, 0, -cfg.ReminderDays)
	invoices, err := e.invoiceSvc.ListOutstandingDueOn(ctx, reminderDue)
	if err != nil {
		return result, fmt.Errorf("reminder detection: %w", err)
	}
	for _, inv := range invoices {
		result.ReminderCandidates = append(result.ReminderCandidates, ReminderCandidate{
			InvoiceID:      inv.ID,
			InvoiceNumber:  inv.Number,
			SubscriptionID: inv.SubscriptionID,
			MerchantID:     inv.MerchantID,
			DueDate:        inv.DueDate,
			Amount:         inv.Amount,
			Currency:       inv.Currency,
		})
	}
	obsmetrics.Scheduler().SetReminderCandidates(len(result.ReminderCandidates))

	e.resolveRecipients(ctx, log, &result)

	log.Info("dunning.completed",
		zap.Time("as_of", now),
		zap.Int("suspended", result.SuspendedCount),
		zap.Int("delinquent", result.DelinquentCount),
		zap.Int("reminder_candidates", len(result.ReminderCandidates)),
		zap.Int("errors", len(result.Errors)),
	)
	return result, nil
}

// resolveRecipients is best effort: a lookup failure leaves recipients empty
// and the affected notifications are skipped by the dispatcher.
func (e *Engine) resolveRecipients(ctx context.Context, log *zap.Logger, result *Result) {
	ids := make([]snowflake.ID, 0, len(result.SuspendedIDs)+len(result.DelinquentIDs)+len(result.ReminderCandidates))
	seen := make(map[snowflake.ID]struct{})
	add := func(id snowflake.ID) {
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	for _, id := range result.SuspendedIDs {
		add(id)
	}
	for _, id := range result.DelinquentIDs {
		add(id)
	}
	for _, c := range result.ReminderCandidates {
		add(c.SubscriptionID)
	}
	if len(ids) == 0 {
		return
	}

	merchants, err := e.merchantRepo.FindBySubscriptionIDs(ctx, e.db, ids)
	if err != nil {
		log.Warn("dunning.recipients.lookup_failed", zap.Int("subscriptions", len(ids)), zap.Error(err))
		return
	}
	for subscriptionID, m := range merchants {
		result.Recipients[subscriptionID] = m.Email
	}
	for i := range result.ReminderCandidates {
		result.ReminderCandidates[i].Recipient = result.Recipients[result.ReminderCandidates[i].SubscriptionID]
	}
}

// Notifications turns a run result into the tuples handed to the dispatcher.
func Notifications(result Result) []notification.Notification {
	out := make([]notification.Notification, 0, len(result.ReminderCandidates)+result.DelinquentCount+result.SuspendedCount)
	for _, c := range result.ReminderCandidates {
		due := c.DueDate
		recipient := c.Recipient
		if recipient == "" {
			recipient = result.Recipients[c.SubscriptionID]
		}
		out = append(out, notification.Notification{
			Recipient:      recipient,
			SubscriptionID: c.SubscriptionID,
			Reason:         notification.ReasonPaymentReminder,
			InvoiceID:      c.InvoiceID,
			InvoiceNumber:  c.InvoiceNumber,
			Amount:         c.Amount,
			Currency:       c.Currency,
			DueDate:        &due,
		})
	}
	for _, id := range result.DelinquentIDs {
		out = append(out, notification.Notification{
			Recipient:      result.Recipients[id],
			SubscriptionID: id,
			Reason:         notification.ReasonSubscriptionDelinquent,
		})
	}
	for _, id := range result.SuspendedIDs {
		out = append(out, notification.Notification{
			Recipient:      result.Recipients[id],
			SubscriptionID: id,
			Reason:         notification.ReasonSubscriptionSuspended,
		})
	}
	return out
}
