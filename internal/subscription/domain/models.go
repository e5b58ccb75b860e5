// Package domain contains the subscription model and its lifecycle rules.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// SubscriptionStatus represents lifecycle states for a subscription.
type SubscriptionStatus string

const (
	SubscriptionStatusTrial      SubscriptionStatus = "trial"
	SubscriptionStatusActive     SubscriptionStatus = "active"
	SubscriptionStatusDelinquent SubscriptionStatus = "delinquent"
	SubscriptionStatusSuspended  SubscriptionStatus = "suspended"
	SubscriptionStatusCancelled  SubscriptionStatus = "cancelled"
)

// BillingCycle is the renewal interval of a subscription.
type BillingCycle string

const (
	BillingCycleMonthly BillingCycle = "monthly"
	BillingCycleYearly  BillingCycle = "yearly"
)

// TransitionReason records why a lifecycle transition was taken.
type TransitionReason string

const (
	ReasonGracePeriodExceeded TransitionReason = "grace_period_exceeded"
	ReasonSuspensionThreshold TransitionReason = "suspension_threshold_exceeded"
	ReasonCancelAtReached     TransitionReason = "cancel_at_reached"
	ReasonPaymentReceived     TransitionReason = "payment_received"
	ReasonManual              TransitionReason = "manual"
)

// Subscription is a merchant's enrollment in a plan.
type Subscription struct {
	ID               snowflake.ID       `gorm:"primaryKey" json:"id"`
	MerchantID       snowflake.ID       `gorm:"not null;index" json:"merchant_id"`
	PlanID           snowflake.ID       `gorm:"not null;index" json:"plan_id"`
	BillingCycle     BillingCycle       `gorm:"type:text;not null" json:"billing_cycle"`
	Status           SubscriptionStatus `gorm:"type:text;not null;index" json:"status"`
	TrialEndsAt      *time.Time         `json:"trial_ends_at,omitempty"`
	NextInvoiceDate  time.Time          `gorm:"not null;index" json:"next_invoice_date"`
	BillingAnchorDay *int16             `json:"billing_anchor_day,omitempty"`
	CancelAt         *time.Time         `json:"cancel_at,omitempty"`
	DelinquentAt     *time.Time         `json:"delinquent_at,omitempty"`
	SuspendedAt      *time.Time         `json:"suspended_at,omitempty"`
	CanceledAt       *time.Time         `json:"canceled_at,omitempty"`
	CreatedAt        time.Time          `gorm:"not null" json:"created_at"`
	UpdatedAt        time.Time          `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Subscription) TableName() string { return "subscriptions" }

// InTrial reports whether the trial is still running at the instant at. A
// trial ending earlier the same day has ended. A trial without an end date
// is treated as already ended.
func (s Subscription) InTrial(at time.Time) bool {
	if s.Status != SubscriptionStatusTrial || s.TrialEndsAt == nil {
		return false
	}
	return s.TrialEndsAt.After(at)
}

// StatusTransition is the audit row written for every status change.
type StatusTransition struct {
	ID             snowflake.ID       `gorm:"primaryKey" json:"id"`
	SubscriptionID snowflake.ID       `gorm:"not null;index" json:"subscription_id"`
	FromStatus     SubscriptionStatus `gorm:"type:text;not null" json:"from_status"`
	ToStatus       SubscriptionStatus `gorm:"type:text;not null" json:"to_status"`
	Reason         TransitionReason   `gorm:"type:text;not null" json:"reason"`
	Metadata       datatypes.JSONMap  `json:"metadata,omitempty"`
	OccurredAt     time.Time          `gorm:"not null" json:"occurred_at"`
	CreatedAt      time.Time          `gorm:"not null" json:"created_at"`
}

func (StatusTransition) TableName() string { return "subscription_status_transitions" }
