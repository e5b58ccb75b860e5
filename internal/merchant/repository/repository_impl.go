package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/cashback/internal/merchant/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, merchant *domain.Merchant) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO merchants (id, name, email, phone, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		merchant.ID,
		merchant.Name,
		merchant.Email,
		merchant.Phone,
		merchant.CreatedAt,
		merchant.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Merchant, error) {
	var merchant domain.Merchant
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, email, phone, created_at, updated_at
		 FROM merchants WHERE id = ?`,
		id,
	).Scan(&merchant).Error
	if err != nil {
		return nil, err
	}
	if merchant.ID == 0 {
		return nil, nil
	}
	return &merchant, nil
}

type subscriptionMerchantRow struct {
	SubscriptionID snowflake.ID
	ID             snowflake.ID
	Name           string
	Email          string
	Phone          *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (r *repo) FindBySubscriptionIDs(ctx context.Context, db *gorm.DB, subscriptionIDs []snowflake.ID) (map[snowflake.ID]domain.Merchant, error) {
	out := make(map[snowflake.ID]domain.Merchant, len(subscriptionIDs))
	if len(subscriptionIDs) == 0 {
		return out, nil
	}

	var rows []subscriptionMerchantRow
	err := db.WithContext(ctx).Raw(
		`SELECT s.id AS subscription_id, m.id, m.name, m.email, m.phone, m.created_at, m.updated_at
		 FROM subscriptions s
		 JOIN merchants m ON m.id = s.merchant_id
		 WHERE s.id IN ?`,
		subscriptionIDs,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.SubscriptionID] = domain.Merchant{
			ID:        row.ID,
			Name:      row.Name,
			Email:     row.Email,
			Phone:     row.Phone,
			CreatedAt: row.CreatedAt,
			UpdatedAt: row.UpdatedAt,
		}
	}
	return out, nil
}
