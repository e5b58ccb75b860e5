package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	invoicedomain "github.com/smallbiznis/cashback/internal/invoice/domain"
	subscriptiondomain "github.com/smallbiznis/cashback/internal/subscription/domain"
	"gorm.io/gorm"
)

const subscriptionColumns = `id, merchant_id, plan_id, billing_cycle, status, trial_ends_at,
	next_invoice_date, billing_anchor_day, cancel_at, delinquent_at, suspended_at,
	canceled_at, created_at, updated_at`

type repo struct{}

func Provide() subscriptiondomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, subscription *subscriptiondomain.Subscription) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO subscriptions (`+subscriptionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		subscription.ID,
		subscription.MerchantID,
		subscription.PlanID,
		subscription.BillingCycle,
		subscription.Status,
		subscription.TrialEndsAt,
		subscription.NextInvoiceDate,
		subscription.BillingAnchorDay,
		subscription.CancelAt,
		subscription.DelinquentAt,
		subscription.SuspendedAt,
		subscription.CanceledAt,
		subscription.CreatedAt,
		subscription.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*subscriptiondomain.Subscription, error) {
	return r.find(ctx, db, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = ?`, id)
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*subscriptiondomain.Subscription, error) {
	return r.find(ctx, db, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = ? FOR UPDATE`, id)
}

func (r *repo) find(ctx context.Context, db *gorm.DB, query string, args ...any) (*subscriptiondomain.Subscription, error) {
	var subscriptions []subscriptiondomain.Subscription
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&subscriptions).Error; err != nil {
		return nil, err
	}
	if len(subscriptions) == 0 {
		return nil, nil
	}
	return &subscriptions[0], nil
}

// ListBillable returns subscriptions in statuses whose next invoice date has
// been reached, that are not scheduled for cancellation, and that hold no
// pending invoice due today or later.
func (r *repo) ListBillable(ctx context.Context, db *gorm.DB, statuses []subscriptiondomain.SubscriptionStatus, today time.Time, limit int) ([]subscriptiondomain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions s
		WHERE s.status IN ?
		AND s.next_invoice_date <= ?
		AND s.cancel_at IS NULL
		AND NOT EXISTS (
			SELECT 1 FROM invoices i
			WHERE i.subscription_id = s.id AND i.status = ? AND i.due_date >= ?
		)
		ORDER BY s.next_invoice_date ASC, s.id ASC`
	args := []any{
		statuses,
		today,
		invoicedomain.InvoiceStatusPending,
		today,
	}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	var subscriptions []subscriptiondomain.Subscription
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&subscriptions).Error; err != nil {
		return nil, err
	}
	return subscriptions, nil
}

// ListDelinquencyCandidates returns active or ended-trial subscriptions with
// an outstanding invoice due before cutoff. A trial counts as ended once
// trial_ends_at <= now.
func (r *repo) ListDelinquencyCandidates(ctx context.Context, db *gorm.DB, cutoff, now time.Time) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := db.WithContext(ctx).Raw(
		`SELECT s.id FROM subscriptions s
		WHERE s.status IN ?
		AND (s.status <> ? OR s.trial_ends_at IS NULL OR s.trial_ends_at <= ?)
		AND EXISTS (
			SELECT 1 FROM invoices i
			WHERE i.subscription_id = s.id AND i.status IN ? AND i.due_date < ?
		)
		ORDER BY s.id ASC`,
		[]subscriptiondomain.SubscriptionStatus{
			subscriptiondomain.SubscriptionStatusActive,
			subscriptiondomain.SubscriptionStatusTrial,
		},
		subscriptiondomain.SubscriptionStatusTrial,
		now,
		invoicedomain.OutstandingStatuses,
		cutoff,
	).Scan(&ids).Error
	return ids, err
}

func (r *repo) ListSuspensionCandidates(ctx context.Context, db *gorm.DB, cutoff time.Time) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := db.WithContext(ctx).Raw(
		`SELECT s.id FROM subscriptions s
		WHERE s.status = ?
		AND EXISTS (
			SELECT 1 FROM invoices i
			WHERE i.subscription_id = s.id AND i.status IN ? AND i.due_date < ?
		)
		ORDER BY s.id ASC`,
		subscriptiondomain.SubscriptionStatusDelinquent,
		invoicedomain.OutstandingStatuses,
		cutoff,
	).Scan(&ids).Error
	return ids, err
}

func (r *repo) ListCancellationsDue(ctx context.Context, db *gorm.DB, now time.Time) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := db.WithContext(ctx).Raw(
		`SELECT id FROM subscriptions
		WHERE status <> ? AND cancel_at IS NOT NULL AND cancel_at <= ?
		ORDER BY id ASC`,
		subscriptiondomain.SubscriptionStatusCancelled,
		now,
	).Scan(&ids).Error
	return ids, err
}

func (r *repo) HasOutstandingInvoiceDueBefore(ctx context.Context, db *gorm.DB, id snowflake.ID, cutoff time.Time) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM invoices WHERE subscription_id = ? AND status IN ? AND due_date < ?`,
		id,
		invoicedomain.OutstandingStatuses,
		cutoff,
	).Scan(&count).Error
	return count > 0, err
}

func (r *repo) CountOutstandingInvoices(ctx context.Context, db *gorm.DB, id snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM invoices WHERE subscription_id = ? AND status IN ?`,
		id,
		invoicedomain.OutstandingStatuses,
	).Scan(&count).Error
	return count, err
}

// UpdateStatus moves a subscription from -> to only if it is still in from.
func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to subscriptiondomain.SubscriptionStatus, at time.Time) (bool, error) {
	set := `status = ?, updated_at = ?`
	args := []any{to, at}
	switch to {
	case subscriptiondomain.SubscriptionStatusDelinquent:
		set += `, delinquent_at = ?`
		args = append(args, at)
	case subscriptiondomain.SubscriptionStatusSuspended:
		set += `, suspended_at = ?`
		args = append(args, at)
	case subscriptiondomain.SubscriptionStatusCancelled:
		set += `, canceled_at = ?`
		args = append(args, at)
	case subscriptiondomain.SubscriptionStatusActive:
		set += `, delinquent_at = NULL, suspended_at = NULL`
	}
	args = append(args, id, from)

	result := db.WithContext(ctx).Exec(`UPDATE subscriptions SET `+set+` WHERE id = ? AND status = ?`, args...)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// AdvanceNextInvoiceDate moves next_invoice_date forward only if it still
// equals from. billing_anchor_day is filled in when it was never set.
func (r *repo) AdvanceNextInvoiceDate(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to time.Time, anchorDay int16, at time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		SET next_invoice_date = ?, billing_anchor_day = COALESCE(billing_anchor_day, ?), updated_at = ?
		WHERE id = ? AND next_invoice_date = ?`,
		to,
		anchorDay,
		at,
		id,
		from,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) InsertTransition(ctx context.Context, db *gorm.DB, transition *subscriptiondomain.StatusTransition) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO subscription_status_transitions (
			id, subscription_id, from_status, to_status, reason, metadata, occurred_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		transition.ID,
		transition.SubscriptionID,
		transition.FromStatus,
		transition.ToStatus,
		transition.Reason,
		transition.Metadata,
		transition.OccurredAt,
		transition.CreatedAt,
	).Error
}

func (r *repo) ListTransitions(ctx context.Context, db *gorm.DB, id snowflake.ID) ([]subscriptiondomain.StatusTransition, error) {
	var transitions []subscriptiondomain.StatusTransition
	err := db.WithContext(ctx).Raw(
		`SELECT id, subscription_id, from_status, to_status, reason, metadata, occurred_at, created_at
		FROM subscription_status_transitions
		WHERE subscription_id = ?
		ORDER BY occurred_at ASC, id ASC`,
		id,
	).Scan(&transitions).Error
	return transitions, err
}
