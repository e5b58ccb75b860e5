// Package notification delivers billing notices computed by the dunning engine.
// Delivery is best effort: failures are reported to the caller, never retried.
package notification

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Reason identifies why a merchant is being notified.
type Reason string

const (
	ReasonPaymentReminder        Reason = "payment_reminder"
	ReasonSubscriptionDelinquent Reason = "subscription_delinquent"
	ReasonSubscriptionSuspended  Reason = "subscription_suspended"
)

// Notification is one (recipient, subscription, reason) tuple plus the invoice
// details a reminder refers to.
type Notification struct {
	Recipient      string       `json:"recipient"`
	SubscriptionID snowflake.ID `json:"subscription_id"`
	Reason         Reason       `json:"reason"`
	InvoiceID      snowflake.ID `json:"invoice_id,omitempty"`
	InvoiceNumber  string       `json:"invoice_number,omitempty"`
	Amount         int64        `json:"amount,omitempty"`
	Currency       string       `json:"currency,omitempty"`
	DueDate        *time.Time   `json:"due_date,omitempty"`
}

type Dispatcher interface {
	Dispatch(ctx context.Context, notifications []Notification) error
}

type NoOpDispatcher struct{}

func (NoOpDispatcher) Dispatch(context.Context, []Notification) error {
	return nil
}
