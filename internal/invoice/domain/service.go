package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// GenerateError records why one subscription could not be invoiced.
type GenerateError struct {
	SubscriptionID snowflake.ID `json:"subscription_id"`
	Error          string       `json:"error"`
}

// GenerateResult is the batch tally returned to the scheduler.
type GenerateResult struct {
	Processed  int             `json:"processed"`
	Succeeded  int             `json:"succeeded"`
	Failed     int             `json:"failed"`
	Skipped    int             `json:"skipped"`
	InvoiceIDs []snowflake.ID  `json:"invoice_ids,omitempty"`
	Errors     []GenerateError `json:"errors"`
}

type Service interface {
	// GenerateDue invoices every billable subscription whose next invoice date has been reached.
	GenerateDue(ctx context.Context, now time.Time) (GenerateResult, error)

	GetByID(ctx context.Context, id snowflake.ID) (Invoice, error)
	ListBySubscription(ctx context.Context, subscriptionID snowflake.ID) ([]Invoice, error)
	// ListOutstandingDueOn returns unpaid invoices due on the given day for non-cancelled subscriptions.
	ListOutstandingDueOn(ctx context.Context, dueDate time.Time) ([]Invoice, error)

	MarkPaid(ctx context.Context, id snowflake.ID, at time.Time) (Invoice, error)
	MarkFailed(ctx context.Context, id snowflake.ID, at time.Time) (Invoice, error)
	Void(ctx context.Context, id snowflake.ID, at time.Time) (Invoice, error)
}

var (
	ErrInvoiceNotFound         = errors.New("invoice_not_found")
	ErrInvalidInvoice          = errors.New("invalid_invoice")
	ErrInvalidStatusTransition = errors.New("invalid_invoice_status_transition")
	ErrInvalidAmount           = errors.New("invalid_amount")
	ErrInvalidBillingCycle     = errors.New("invalid_billing_cycle")
	ErrPlanNotFound            = errors.New("plan_not_found")
	ErrDuplicateInvoice        = errors.New("duplicate_invoice")
	ErrSubscriptionNotBillable = errors.New("subscription_not_billable")
	ErrSubscriptionAdvanced    = errors.New("subscription_already_advanced")
)
