// Package dunning escalates unpaid subscriptions and computes payment reminders.
package dunning

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/cashback/internal/config"
	subscriptiondomain "github.com/smallbiznis/cashback/internal/subscription/domain"
)

type Config struct {
	GraceDays      int
	SuspensionDays int
	ReminderDays   int
}

func ConfigFromBilling(cfg config.BillingConfig) Config {
	return Config{
		GraceDays:      cfg.GraceDays,
		SuspensionDays: cfg.SuspensionDays,
		ReminderDays:   cfg.ReminderDays,
	}
}

// ReminderCandidate is an unpaid invoice that became overdue by exactly ReminderDays.
type ReminderCandidate struct {
	InvoiceID      snowflake.ID `json:"invoice_id"`
	InvoiceNumber  string       `json:"invoice_number"`
	SubscriptionID snowflake.ID `json:"subscription_id"`
	MerchantID     snowflake.ID `json:"merchant_id"`
	Recipient      string       `json:"recipient,omitempty"`
	DueDate        time.Time    `json:"due_date"`
	Amount         int64        `json:"amount"`
	Currency       string       `json:"currency"`
}

type Result struct {
	DelinquentCount    int                                  `json:"delinquent_count"`
	SuspendedCount     int                                  `json:"suspended_count"`
	DelinquentIDs      []snowflake.ID                       `json:"delinquent_ids,omitempty"`
	SuspendedIDs       []snowflake.ID                       `json:"suspended_ids,omitempty"`
	ReminderCandidates []ReminderCandidate                  `json:"reminder_candidates"`
	Errors             []subscriptiondomain.TransitionError `json:"errors,omitempty"`

	// Recipients maps subscription id to the merchant email on file.
	Recipients map[snowflake.ID]string `json:"-"`
}
