package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, subscription *Subscription) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Subscription, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Subscription, error)
	ListBillable(ctx context.Context, db *gorm.DB, statuses []SubscriptionStatus, today time.Time, limit int) ([]Subscription, error)
	ListDelinquencyCandidates(ctx context.Context, db *gorm.DB, cutoff, now time.Time) ([]snowflake.ID, error)
	ListSuspensionCandidates(ctx context.Context, db *gorm.DB, cutoff time.Time) ([]snowflake.ID, error)
	ListCancellationsDue(ctx context.Context, db *gorm.DB, now time.Time) ([]snowflake.ID, error)
	HasOutstandingInvoiceDueBefore(ctx context.Context, db *gorm.DB, id snowflake.ID, cutoff time.Time) (bool, error)
	CountOutstandingInvoices(ctx context.Context, db *gorm.DB, id snowflake.ID) (int64, error)
	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to SubscriptionStatus, at time.Time) (bool, error)
	AdvanceNextInvoiceDate(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to time.Time, anchorDay int16, at time.Time) (bool, error)
	InsertTransition(ctx context.Context, db *gorm.DB, transition *StatusTransition) error
	ListTransitions(ctx context.Context, db *gorm.DB, id snowflake.ID) ([]StatusTransition, error)
}
