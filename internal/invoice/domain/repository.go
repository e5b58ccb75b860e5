package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// Insert writes the invoice unless one already exists for the same
	// subscription and due date. It reports whether a row was written.
	Insert(ctx context.Context, db *gorm.DB, invoice *Invoice) (bool, error)
	NextSequence(ctx context.Context, db *gorm.DB) (int64, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Invoice, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Invoice, error)
	ListBySubscription(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID) ([]Invoice, error)
	ListOutstandingDueBetween(ctx context.Context, db *gorm.DB, from, to time.Time) ([]Invoice, error)
	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to InvoiceStatus, at time.Time) (bool, error)
}
