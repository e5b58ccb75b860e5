// Package domain contains the plan pricing record.
package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Plan prices a subscription. Amounts are in minor currency units.
type Plan struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	Code         string       `gorm:"type:text;not null;uniqueIndex" json:"code"`
	Name         string       `gorm:"type:text;not null" json:"name"`
	MonthlyPrice int64        `gorm:"not null" json:"monthly_price"`
	AnnualPrice  int64        `gorm:"not null" json:"annual_price"`
	Currency     string       `gorm:"type:text;not null" json:"currency"`
	CreatedAt    time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time    `gorm:"not null" json:"updated_at"`
}

func (Plan) TableName() string { return "plans" }

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, plan *Plan) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Plan, error)
}
