package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Merchant owns subscriptions and receives billing notifications.
type Merchant struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	Name      string       `gorm:"type:text;not null" json:"name"`
	Email     string       `gorm:"type:text;not null" json:"email"`
	Phone     *string      `gorm:"type:text" json:"phone,omitempty"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null" json:"updated_at"`
}

func (Merchant) TableName() string { return "merchants" }

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, merchant *Merchant) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Merchant, error)
	// FindBySubscriptionIDs maps each subscription to its merchant.
	FindBySubscriptionIDs(ctx context.Context, db *gorm.DB, subscriptionIDs []snowflake.ID) (map[snowflake.ID]Merchant, error)
}
