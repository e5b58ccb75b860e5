package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	invoicedomain "github.com/smallbiznis/cashback/internal/invoice/domain"
	subscriptiondomain "github.com/smallbiznis/cashback/internal/subscription/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const invoiceColumns = `id, subscription_id, merchant_id, sequence, number, amount, currency,
	due_date, period_start, period_end, status, paid_at, failed_at, voided_at,
	metadata, created_at, updated_at`

type repo struct{}

func Provide() invoicedomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, invoice *invoicedomain.Invoice) (bool, error) {
	result := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "subscription_id"}, {Name: "due_date"}},
			DoNothing: true,
		}).
		Create(invoice)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// NextSequence increments the invoice counter and returns the new value. The
// increment holds the counter row lock until db's transaction ends, so
// concurrent generators are serialized and a rolled back invoice gives its
// number back. A missing counter is seeded from the highest stored sequence.
func (r *repo) NextSequence(ctx context.Context, db *gorm.DB) (int64, error) {
	db = db.WithContext(ctx)

	result := db.Exec(
		`UPDATE invoice_sequences SET value = value + 1 WHERE name = ?`,
		invoicedomain.InvoiceSequenceName,
	)
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected == 0 {
		err := db.Exec(
			`INSERT INTO invoice_sequences (name, value)
			SELECT ?, COALESCE(MAX(sequence), 0) + 1 FROM invoices`,
			invoicedomain.InvoiceSequenceName,
		).Error
		if err != nil {
			return 0, err
		}
	}

	var next int64
	err := db.Raw(
		`SELECT value FROM invoice_sequences WHERE name = ?`,
		invoicedomain.InvoiceSequenceName,
	).Scan(&next).Error
	return next, err
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*invoicedomain.Invoice, error) {
	return r.find(ctx, db, `SELECT `+invoiceColumns+` FROM invoices WHERE id = ?`, id)
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*invoicedomain.Invoice, error) {
	return r.find(ctx, db, `SELECT `+invoiceColumns+` FROM invoices WHERE id = ? FOR UPDATE`, id)
}

func (r *repo) find(ctx context.Context, db *gorm.DB, query string, args ...any) (*invoicedomain.Invoice, error) {
	var invoice invoicedomain.Invoice
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&invoice).Error; err != nil {
		return nil, err
	}
	if invoice.ID == 0 {
		return nil, nil
	}
	return &invoice, nil
}

func (r *repo) ListBySubscription(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID) ([]invoicedomain.Invoice, error) {
	var invoices []invoicedomain.Invoice
	err := db.WithContext(ctx).Raw(
		`SELECT `+invoiceColumns+` FROM invoices
		WHERE subscription_id = ?
		ORDER BY due_date ASC, sequence ASC`,
		subscriptionID,
	).Scan(&invoices).Error
	return invoices, err
}

// ListOutstandingDueBetween returns unpaid invoices with from <= due_date < to
// whose subscription has not been cancelled.
func (r *repo) ListOutstandingDueBetween(ctx context.Context, db *gorm.DB, from, to time.Time) ([]invoicedomain.Invoice, error) {
	var invoices []invoicedomain.Invoice
	err := db.WithContext(ctx).Raw(
		`SELECT `+invoiceColumns+` FROM invoices i
		WHERE i.status IN ?
		AND i.due_date >= ? AND i.due_date < ?
		AND EXISTS (
			SELECT 1 FROM subscriptions s
			WHERE s.id = i.subscription_id AND s.status <> ?
		)
		ORDER BY i.due_date ASC, i.sequence ASC`,
		invoicedomain.OutstandingStatuses,
		from,
		to,
		subscriptiondomain.SubscriptionStatusCancelled,
	).Scan(&invoices).Error
	return invoices, err
}

// UpdateStatus moves an invoice from -> to only if it is still in from.
func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to invoicedomain.InvoiceStatus, at time.Time) (bool, error) {
	set := `status = ?, updated_at = ?`
	args := []any{to, at}
	switch to {
	case invoicedomain.InvoiceStatusPaid:
		set += `, paid_at = ?`
		args = append(args, at)
	case invoicedomain.InvoiceStatusFailed:
		set += `, failed_at = ?`
		args = append(args, at)
	case invoicedomain.InvoiceStatusVoid:
		set += `, voided_at = ?`
		args = append(args, at)
	}
	args = append(args, id, from)

	result := db.WithContext(ctx).Exec(`UPDATE invoices SET `+set+` WHERE id = ? AND status = ?`, args...)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
