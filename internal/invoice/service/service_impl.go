package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/cashback/internal/clock"
	"github.com/smallbiznis/cashback/internal/config"
	invoicedomain "github.com/smallbiznis/cashback/internal/invoice/domain"
	"github.com/smallbiznis/cashback/internal/invoice/format"
	obslogger "github.com/smallbiznis/cashback/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/cashback/internal/observability/metrics"
	plandomain "github.com/smallbiznis/cashback/internal/plan/domain"
	subscriptiondomain "github.com/smallbiznis/cashback/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Billing *config.BillingConfigHolder

	Repo             invoicedomain.Repository
	SubscriptionRepo subscriptiondomain.Repository
	SubscriptionSvc  subscriptiondomain.Service
	PlanRepo         plandomain.Repository
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID   *snowflake.Node
	clock   clock.Clock
	billing *config.BillingConfigHolder

	repo             invoicedomain.Repository
	subscriptionRepo subscriptiondomain.Repository
	subscriptionSvc  subscriptiondomain.Service
	planRepo         plandomain.Repository
}

func NewService(p ServiceParam) invoicedomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("invoice.service"),

		genID:   p.GenID,
		clock:   p.Clock,
		billing: p.Billing,

		repo:             p.Repo,
		subscriptionRepo: p.SubscriptionRepo,
		subscriptionSvc:  p.SubscriptionSvc,
		planRepo:         p.PlanRepo,
	}
}

// GenerateDue invoices each due subscription in its own transaction. A
// failure is recorded against the subscription and the batch continues.
// Only a failure to list candidates aborts the run.
func (s *Service) GenerateDue(ctx context.Context, now time.Time) (invoicedomain.GenerateResult, error) {
	now = s.at(now)
	today := clock.StartOfDay(now)
	cfg := s.billing.Get()
	statuses := subscriptiondomain.BillableStatuses(cfg.BillSuspended)
	log := obslogger.WithContext(ctx, s.log)

	result := invoicedomain.GenerateResult{
		InvoiceIDs: []snowflake.ID{},
		Errors:     []invoicedomain.GenerateError{},
	}

	subscriptions, err := s.subscriptionRepo.ListBillable(ctx, s.db, statuses, today, 0)
	if err != nil {
		return result, fmt.Errorf("list billable subscriptions: %w", err)
	}

	for _, sub := range subscriptions {
		result.Processed++

		if err := ctx.Err(); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, invoicedomain.GenerateError{SubscriptionID: sub.ID, Error: err.Error()})
			continue
		}
		if sub.InTrial(now) {
			result.Skipped++
			log.Debug("invoice.skipped",
				zap.String("subscription_id", sub.ID.String()),
				zap.String("reason", "trial_active"),
			)
			continue
		}

		invoice, err := s.generateOne(ctx, sub, cfg, statuses, today, now)
		switch {
		case errors.Is(err, invoicedomain.ErrDuplicateInvoice),
			errors.Is(err, invoicedomain.ErrSubscriptionAdvanced),
			errors.Is(err, invoicedomain.ErrSubscriptionNotBillable):
			result.Skipped++
			log.Info("invoice.skipped",
				zap.String("subscription_id", sub.ID.String()),
				zap.String("reason", err.Error()),
			)
		case err != nil:
			result.Failed++
			result.Errors = append(result.Errors, invoicedomain.GenerateError{SubscriptionID: sub.ID, Error: err.Error()})
			log.Warn("invoice.generate.failed",
				zap.String("subscription_id", sub.ID.String()),
				zap.Error(err),
			)
		default:
			result.Succeeded++
			result.InvoiceIDs = append(result.InvoiceIDs, invoice.ID)
			obsmetrics.Scheduler().AddInvoicedAmount(invoice.Currency, invoice.Amount)
			log.Info("invoice.generated",
				zap.String("invoice_id", invoice.ID.String()),
				zap.String("number", invoice.Number),
				zap.String("subscription_id", sub.ID.String()),
				zap.Int64("amount", invoice.Amount),
				zap.String("currency", invoice.Currency),
				zap.Time("due_date", invoice.DueDate),
				zap.Time("next_invoice_date", invoice.PeriodEnd),
			)
		}
	}

	return result, nil
}

func (s *Service) generateOne(
	ctx context.Context,
	candidate subscriptiondomain.Subscription,
	cfg config.BillingConfig,
	statuses []subscriptiondomain.SubscriptionStatus,
	today, now time.Time,
) (*invoicedomain.Invoice, error) {
	var invoice *invoicedomain.Invoice

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sub, err := s.subscriptionRepo.FindByIDForUpdate(ctx, tx, candidate.ID)
		if err != nil {
			return err
		}
		if sub == nil {
			return subscriptiondomain.ErrSubscriptionNotFound
		}
		if !hasStatus(statuses, sub.Status) || sub.CancelAt != nil || sub.InTrial(now) {
			return invoicedomain.ErrSubscriptionNotBillable
		}
		if !sub.NextInvoiceDate.Equal(candidate.NextInvoiceDate) {
			return invoicedomain.ErrSubscriptionAdvanced
		}

		dueDate := clock.StartOfDay(sub.NextInvoiceDate)
		if dueDate.After(today) {
			return invoicedomain.ErrSubscriptionAdvanced
		}

		plan, err := s.planRepo.FindByID(ctx, tx, sub.PlanID)
		if err != nil {
			return fmt.Errorf("load plan: %w", err)
		}
		if plan == nil {
			return invoicedomain.ErrPlanNotFound
		}
		amount := amountFor(*plan, sub.BillingCycle)
		if amount <= 0 {
			return invoicedomain.ErrInvalidAmount
		}

		anchorDay := anchorDayFor(*sub, dueDate)
		periodEnd, err := nextDueDate(dueDate, sub.BillingCycle, &anchorDay)
		if err != nil {
			return err
		}

		seq, err := s.repo.NextSequence(ctx, tx)
		if err != nil {
			return fmt.Errorf("next invoice sequence: %w", err)
		}
		number, err := format.InvoiceNumber(cfg.InvoiceNumberTemplate, dueDate, seq)
		if err != nil {
			return err
		}

		invoice = &invoicedomain.Invoice{
			ID:             s.genID.Generate(),
			SubscriptionID: sub.ID,
			MerchantID:     sub.MerchantID,
			Sequence:       seq,
			Number:         number,
			Amount:         amount,
			Currency:       plan.Currency,
			DueDate:        dueDate,
			PeriodStart:    dueDate,
			PeriodEnd:      periodEnd,
			Status:         invoicedomain.InvoiceStatusPending,
			Metadata: datatypes.JSONMap{
				"plan_id":       plan.ID.String(),
				"plan_code":     plan.Code,
				"billing_cycle": string(sub.BillingCycle),
			},
			CreatedAt: now,
			UpdatedAt: now,
		}
		inserted, err := s.repo.Insert(ctx, tx, invoice)
		if err != nil {
			return fmt.Errorf("insert invoice: %w", err)
		}
		if !inserted {
			return invoicedomain.ErrDuplicateInvoice
		}

		advanced, err := s.subscriptionRepo.AdvanceNextInvoiceDate(ctx, tx, sub.ID, sub.NextInvoiceDate, periodEnd, anchorDay, now)
		if err != nil {
			return fmt.Errorf("advance next invoice date: %w", err)
		}
		if !advanced {
			return invoicedomain.ErrSubscriptionAdvanced
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return invoice, nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (invoicedomain.Invoice, error) {
	if id == 0 {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidInvoice
	}
	invoice, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}
	if invoice == nil {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvoiceNotFound
	}
	return *invoice, nil
}

func (s *Service) ListBySubscription(ctx context.Context, subscriptionID snowflake.ID) ([]invoicedomain.Invoice, error) {
	if subscriptionID == 0 {
		return nil, subscriptiondomain.ErrInvalidSubscription
	}
	return s.repo.ListBySubscription(ctx, s.db, subscriptionID)
}

func (s *Service) ListOutstandingDueOn(ctx context.Context, dueDate time.Time) ([]invoicedomain.Invoice, error) {
	from := clock.StartOfDay(dueDate)
	return s.repo.ListOutstandingDueBetween(ctx, s.db, from, from.AddDate(0, 0, 1))
}

// MarkPaid records a successful collection and reactivates the subscription
// once nothing else is outstanding.
func (s *Service) MarkPaid(ctx context.Context, id snowflake.ID, at time.Time) (invoicedomain.Invoice, error) {
	invoice, changed, err := s.updateStatus(ctx, id, invoicedomain.OutstandingStatuses, invoicedomain.InvoiceStatusPaid, at)
	if err != nil {
		return invoice, err
	}
	if changed {
		s.reactivate(ctx, invoice, at)
	}
	return invoice, nil
}

func (s *Service) MarkFailed(ctx context.Context, id snowflake.ID, at time.Time) (invoicedomain.Invoice, error) {
	invoice, _, err := s.updateStatus(ctx, id, []invoicedomain.InvoiceStatus{invoicedomain.InvoiceStatusPending}, invoicedomain.InvoiceStatusFailed, at)
	return invoice, err
}

func (s *Service) Void(ctx context.Context, id snowflake.ID, at time.Time) (invoicedomain.Invoice, error) {
	invoice, changed, err := s.updateStatus(ctx, id, invoicedomain.OutstandingStatuses, invoicedomain.InvoiceStatusVoid, at)
	if err != nil {
		return invoice, err
	}
	if changed {
		s.reactivate(ctx, invoice, at)
	}
	return invoice, nil
}

func (s *Service) updateStatus(
	ctx context.Context,
	id snowflake.ID,
	from []invoicedomain.InvoiceStatus,
	to invoicedomain.InvoiceStatus,
	at time.Time,
) (invoicedomain.Invoice, bool, error) {
	if id == 0 {
		return invoicedomain.Invoice{}, false, invoicedomain.ErrInvalidInvoice
	}
	at = s.at(at)

	var (
		invoice *invoicedomain.Invoice
		changed bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.FindByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if current == nil {
			return invoicedomain.ErrInvoiceNotFound
		}
		invoice = current
		if current.Status == to {
			return nil
		}
		if !hasInvoiceStatus(from, current.Status) {
			return invoicedomain.ErrInvalidStatusTransition
		}

		updated, err := s.repo.UpdateStatus(ctx, tx, id, current.Status, to, at)
		if err != nil {
			return err
		}
		if !updated {
			return invoicedomain.ErrInvalidStatusTransition
		}
		invoice, err = s.repo.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		changed = true
		return nil
	})
	if err != nil {
		return invoicedomain.Invoice{}, false, err
	}

	if changed {
		obslogger.WithContext(ctx, s.log).Info("invoice.status.changed",
			zap.String("invoice_id", id.String()),
			zap.String("subscription_id", invoice.SubscriptionID.String()),
			zap.String("status", string(to)),
		)
	}
	return *invoice, changed, nil
}

func (s *Service) reactivate(ctx context.Context, invoice invoicedomain.Invoice, at time.Time) {
	if _, err := s.subscriptionSvc.Reactivate(ctx, invoice.SubscriptionID, at); err != nil {
		obslogger.WithContext(ctx, s.log).Warn("subscription.reactivate.failed",
			zap.String("invoice_id", invoice.ID.String()),
			zap.String("subscription_id", invoice.SubscriptionID.String()),
			zap.Error(err),
		)
	}
}

func (s *Service) at(t time.Time) time.Time {
	if t.IsZero() {
		return s.clock.Now()
	}
	return t.UTC()
}

func hasStatus(statuses []subscriptiondomain.SubscriptionStatus, status subscriptiondomain.SubscriptionStatus) bool {
	for _, candidate := range statuses {
		if candidate == status {
			return true
		}
	}
	return false
}

func hasInvoiceStatus(statuses []invoicedomain.InvoiceStatus, status invoicedomain.InvoiceStatus) bool {
	for _, candidate := range statuses {
		if candidate == status {
			return true
		}
	}
	return false
}
