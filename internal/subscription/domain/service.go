package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// TransitionError records a per-subscription failure inside a bulk operation.
type TransitionError struct {
	SubscriptionID snowflake.ID `json:"subscription_id"`
	Error          string       `json:"error"`
}

// BulkResult summarizes a bulk lifecycle escalation.
type BulkResult struct {
	Considered   int               `json:"considered"`
	Transitioned []snowflake.ID    `json:"transitioned"`
	Errors       []TransitionError `json:"errors,omitempty"`
}

type Service interface {
	GetByID(ctx context.Context, id snowflake.ID) (Subscription, error)
	ListTransitions(ctx context.Context, id snowflake.ID) ([]StatusTransition, error)

	// Transition moves one subscription to target. Same-state requests are a no-op.
	Transition(ctx context.Context, id snowflake.ID, target SubscriptionStatus, reason TransitionReason, at time.Time) (bool, error)

	// MarkDelinquent escalates trial|active subscriptions holding an invoice overdue beyond graceDays.
	MarkDelinquent(ctx context.Context, now time.Time, graceDays int) (BulkResult, error)
	// Suspend escalates delinquent subscriptions holding an invoice overdue beyond suspensionDays.
	Suspend(ctx context.Context, now time.Time, suspensionDays int) (BulkResult, error)
	// CancelDue cancels every subscription whose cancel_at has been reached.
	CancelDue(ctx context.Context, now time.Time) (BulkResult, error)
	// Reactivate returns a subscription to active once no outstanding invoice remains.
	Reactivate(ctx context.Context, id snowflake.ID, at time.Time) (bool, error)
}

var (
	ErrInvalidSubscription  = errors.New("invalid_subscription")
	ErrInvalidTargetStatus  = errors.New("invalid_target_status")
	ErrInvalidTransition    = errors.New("invalid_transition")
	ErrInvalidThreshold     = errors.New("invalid_threshold")
	ErrSubscriptionNotFound = errors.New("subscription_not_found")
)
