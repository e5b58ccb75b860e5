package repository

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/cashback/internal/merchant/domain"
	subscriptiondomain "github.com/smallbiznis/cashback/internal/subscription/domain"
	"github.com/smallbiznis/cashback/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindBySubscriptionIDs(t *testing.T) {
	db := dbtest.Open(t, &domain.Merchant{}, &subscriptiondomain.Subscription{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r := Provide()

	merchant := domain.Merchant{ID: node.Generate(), Name: "Kopi Kita", Email: "owner@kopikita.id", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, r.Insert(ctx, db, &merchant))

	sub := subscriptiondomain.Subscription{
		ID:              node.Generate(),
		MerchantID:      merchant.ID,
		PlanID:          node.Generate(),
		BillingCycle:    subscriptiondomain.BillingCycleMonthly,
		Status:          subscriptiondomain.SubscriptionStatusActive,
		NextInvoiceDate: now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	require.NoError(t, db.Create(&sub).Error)

	got, err := r.FindBySubscriptionIDs(ctx, db, []snowflake.ID{sub.ID, node.Generate()})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "owner@kopikita.id", got[sub.ID].Email)

	found, err := r.FindByID(ctx, db, merchant.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "Kopi Kita", found.Name)

	missing, err := r.FindByID(ctx, db, node.Generate())
	require.NoError(t, err)
	assert.Nil(t, missing)

	empty, err := r.FindBySubscriptionIDs(ctx, db, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
