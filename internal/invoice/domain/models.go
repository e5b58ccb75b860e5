// Package domain contains persistence models for invoicing.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// InvoiceStatus represents invoice lifecycle states.
type InvoiceStatus string

const (
	InvoiceStatusPending InvoiceStatus = "pending"
	InvoiceStatusPaid    InvoiceStatus = "paid"
	InvoiceStatusFailed  InvoiceStatus = "failed"
	InvoiceStatusVoid    InvoiceStatus = "void"
)

// OutstandingStatuses are the statuses that still represent an unpaid obligation.
var OutstandingStatuses = []InvoiceStatus{InvoiceStatusPending, InvoiceStatusFailed}

// Invoice is the billing obligation for one subscription period.
type Invoice struct {
	ID             snowflake.ID      `gorm:"primaryKey" json:"id"`
	SubscriptionID snowflake.ID      `gorm:"not null;uniqueIndex:ux_invoices_subscription_due_date" json:"subscription_id"`
	MerchantID     snowflake.ID      `gorm:"not null;index" json:"merchant_id"`
	Sequence       int64             `gorm:"not null;uniqueIndex" json:"sequence"`
	Number         string            `gorm:"type:text;not null;uniqueIndex" json:"number"`
	Amount         int64             `gorm:"not null" json:"amount"`
	Currency       string            `gorm:"type:text;not null" json:"currency"`
	DueDate        time.Time         `gorm:"not null;uniqueIndex:ux_invoices_subscription_due_date" json:"due_date"`
	PeriodStart    time.Time         `gorm:"not null" json:"period_start"`
	PeriodEnd      time.Time         `gorm:"not null" json:"period_end"`
	Status         InvoiceStatus     `gorm:"type:text;not null;index" json:"status"`
	PaidAt         *time.Time        `json:"paid_at,omitempty"`
	FailedAt       *time.Time        `json:"failed_at,omitempty"`
	VoidedAt       *time.Time        `json:"voided_at,omitempty"`
	Metadata       datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt      time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time         `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

// IsOutstanding reports whether the invoice still awaits payment.
func (i Invoice) IsOutstanding() bool {
	for _, status := range OutstandingStatuses {
		if i.Status == status {
			return true
		}
	}
	return false
}

// InvoiceSequenceName keys the counter that numbers invoices.
const InvoiceSequenceName = "invoice"

// InvoiceSequence holds the last sequence number handed out for a counter.
type InvoiceSequence struct {
	Name  string `gorm:"primaryKey;size:64" json:"name"`
	Value int64  `gorm:"not null" json:"value"`
}

// TableName sets the database table name.
func (InvoiceSequence) TableName() string { return "invoice_sequences" }
