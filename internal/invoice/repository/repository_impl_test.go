package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	invoicedomain "github.com/smallbiznis/cashback/internal/invoice/domain"
	"github.com/smallbiznis/cashback/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func seedInvoice(t *testing.T, db *gorm.DB, node *snowflake.Node, seq int64) {
	t.Helper()
	due := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	inv := invoicedomain.Invoice{
		ID:             node.Generate(),
		SubscriptionID: node.Generate(),
		MerchantID:     node.Generate(),
		Sequence:       seq,
		Number:         "INV-SEED-" + node.Generate().String(),
		Amount:         4990,
		Currency:       "USD",
		DueDate:        due,
		PeriodStart:    due,
		PeriodEnd:      due.AddDate(0, 1, 0),
		Status:         invoicedomain.InvoiceStatusPending,
		CreatedAt:      due,
		UpdatedAt:      due,
	}
	require.NoError(t, db.Create(&inv).Error)
}

func TestNextSequenceSeedsFromExistingInvoicesThenIncrements(t *testing.T) {
	db := dbtest.Open(t, &invoicedomain.Invoice{}, &invoicedomain.InvoiceSequence{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	seedInvoice(t, db, node, 41)

	repo := Provide()
	ctx := context.Background()

	first, err := repo.NextSequence(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, int64(42), first)

	second, err := repo.NextSequence(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, int64(43), second)
}

func TestNextSequenceReturnsNumberOnRollback(t *testing.T) {
	db := dbtest.Open(t, &invoicedomain.Invoice{}, &invoicedomain.InvoiceSequence{})
	repo := Provide()
	ctx := context.Background()

	first, err := repo.NextSequence(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, int64(1), first)

	errAbort := errors.New("abort")
	err = db.Transaction(func(tx *gorm.DB) error {
		seq, err := repo.NextSequence(ctx, tx)
		require.NoError(t, err)
		assert.Equal(t, int64(2), seq)
		return errAbort
	})
	require.ErrorIs(t, err, errAbort)

	next, err := repo.NextSequence(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, int64(2), next)
}
