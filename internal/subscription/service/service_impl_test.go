package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/cashback/internal/clock"
	invoicedomain "github.com/smallbiznis/cashback/internal/invoice/domain"
	obscontext "github.com/smallbiznis/cashback/internal/observability/context"
	subscriptiondomain "github.com/smallbiznis/cashback/internal/subscription/domain"
	"github.com/smallbiznis/cashback/internal/subscription/repository"
	"github.com/smallbiznis/cashback/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	svc   subscriptiondomain.Service
	db    *gorm.DB
	clock *clock.FakeClock
	node  *snowflake.Node
	seq   int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.Open(t,
		&subscriptiondomain.Subscription{},
		&subscriptiondomain.StatusTransition{},
		&invoicedomain.Invoice{},
	)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(date(2024, 1, 1))

	svc := NewService(ServiceParam{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
		Repo:  repository.Provide(),
	})
	return &fixture{svc: svc, db: db, clock: clk, node: node}
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (f *fixture) subscription(t *testing.T, status subscriptiondomain.SubscriptionStatus, mutate ...func(*subscriptiondomain.Subscription)) subscriptiondomain.Subscription {
	t.Helper()
	now := f.clock.Now()
	sub := subscriptiondomain.Subscription{
		ID:              f.node.Generate(),
		MerchantID:      f.node.Generate(),
		PlanID:          f.node.Generate(),
		BillingCycle:    subscriptiondomain.BillingCycleMonthly,
		Status:          status,
		NextInvoiceDate: date(2024, 2, 1),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	for _, fn := range mutate {
		fn(&sub)
	}
	require.NoError(t, repository.Provide().Insert(context.Background(), f.db, &sub))
	return sub
}

func (f *fixture) invoice(t *testing.T, subscriptionID snowflake.ID, due time.Time, status invoicedomain.InvoiceStatus) invoicedomain.Invoice {
	t.Helper()
	f.seq++
	inv := invoicedomain.Invoice{
		ID:             f.node.Generate(),
		SubscriptionID: subscriptionID,
		MerchantID:     f.node.Generate(),
		Sequence:       f.seq,
		Number:         "INV-TEST-" + f.node.Generate().String(),
		Amount:         4990,
		Currency:       "USD",
		DueDate:        due,
		PeriodStart:    due,
		PeriodEnd:      due.AddDate(0, 1, 0),
		Status:         status,
		CreatedAt:      due,
		UpdatedAt:      due,
	}
	require.NoError(t, f.db.Create(&inv).Error)
	return inv
}

func (f *fixture) status(t *testing.T, id snowflake.ID) subscriptiondomain.SubscriptionStatus {
	t.Helper()
	sub, err := f.svc.GetByID(context.Background(), id)
	require.NoError(t, err)
	return sub.Status
}

func TestMarkDelinquentRespectsGraceBoundary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := f.subscription(t, subscriptiondomain.SubscriptionStatusActive)
	f.invoice(t, sub.ID, date(2024, 1, 1), invoicedomain.InvoiceStatusPending)

	res, err := f.svc.MarkDelinquent(ctx, date(2024, 1, 4), 3)
	require.NoError(t, err)
	assert.Empty(t, res.Transitioned)
	assert.Equal(t, subscriptiondomain.SubscriptionStatusActive, f.status(t, sub.ID))

	res, err = f.svc.MarkDelinquent(ctx, date(2024, 1, 5), 3)
	require.NoError(t, err)
	assert.Equal(t, []snowflake.ID{sub.ID}, res.Transitioned)
	assert.Equal(t, subscriptiondomain.SubscriptionStatusDelinquent, f.status(t, sub.ID))

	stored, err := f.svc.GetByID(ctx, sub.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.DelinquentAt)
	assert.True(t, stored.DelinquentAt.Equal(date(2024, 1, 5)))
}

func TestMarkDelinquentIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := f.subscription(t, subscriptiondomain.SubscriptionStatusActive)
	f.invoice(t, sub.ID, date(2024, 1, 1), invoicedomain.InvoiceStatusPending)

	first, err := f.svc.MarkDelinquent(ctx, date(2024, 1, 5), 3)
	require.NoError(t, err)
	second, err := f.svc.MarkDelinquent(ctx, date(2024, 1, 5), 3)
	require.NoError(t, err)

	assert.Len(t, first.Transitioned, 1)
	assert.Empty(t, second.Transitioned)
	assert.Empty(t, second.Errors)

	transitions, err := f.svc.ListTransitions(ctx, sub.ID)
	require.NoError(t, err)
	require.Len(t, transitions, 1)
	assert.Equal(t, subscriptiondomain.SubscriptionStatusActive, transitions[0].FromStatus)
	assert.Equal(t, subscriptiondomain.SubscriptionStatusDelinquent, transitions[0].ToStatus)
	assert.Equal(t, subscriptiondomain.ReasonGracePeriodExceeded, transitions[0].Reason)
}

func TestMarkDelinquentIgnoresPaidAndFutureTrial(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	paid := f.subscription(t, subscriptiondomain.SubscriptionStatusActive)
	f.invoice(t, paid.ID, date(2024, 1, 1), invoicedomain.InvoiceStatusPaid)

	trialEnd := date(2024, 3, 1)
	trial := f.subscription(t, subscriptiondomain.SubscriptionStatusTrial, func(s *subscriptiondomain.Subscription) {
		s.TrialEndsAt = &trialEnd
	})
	f.invoice(t, trial.ID, date(2024, 1, 1), invoicedomain.InvoiceStatusPending)

	expiredEnd := date(2024, 1, 1)
	expired := f.subscription(t, subscriptiondomain.SubscriptionStatusTrial, func(s *subscriptiondomain.Subscription) {
		s.TrialEndsAt = &expiredEnd
	})
	f.invoice(t, expired.ID, date(2024, 1, 1), invoicedomain.InvoiceStatusPending)

	res, err := f.svc.MarkDelinquent(ctx, date(2024, 1, 10), 3)
	require.NoError(t, err)
	assert.Equal(t, []snowflake.ID{expired.ID}, res.Transitioned)
	assert.Equal(t, subscriptiondomain.SubscriptionStatusActive, f.status(t, paid.ID))
	assert.Equal(t, subscriptiondomain.SubscriptionStatusTrial, f.status(t, trial.ID))
}

func TestMarkDelinquentTrialEndingMidDay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	trialEnd := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)
	trial := f.subscription(t, subscriptiondomain.SubscriptionStatusTrial, func(s *subscriptiondomain.Subscription) {
		s.TrialEndsAt = &trialEnd
	})
	f.invoice(t, trial.ID, date(2024, 1, 1), invoicedomain.InvoiceStatusPending)

	res, err := f.svc.MarkDelinquent(ctx, time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC), 3)
	require.NoError(t, err)
	assert.Empty(t, res.Transitioned)
	assert.Equal(t, subscriptiondomain.SubscriptionStatusTrial, f.status(t, trial.ID))

	res, err = f.svc.MarkDelinquent(ctx, time.Date(2024, 1, 10, 15, 0, 0, 0, time.UTC), 3)
	require.NoError(t, err)
	assert.Equal(t, []snowflake.ID{trial.ID}, res.Transitioned)
	assert.Equal(t, subscriptiondomain.SubscriptionStatusDelinquent, f.status(t, trial.ID))
}

func TestFailedInvoiceStillCountsAsOutstanding(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := f.subscription(t, subscriptiondomain.SubscriptionStatusActive)
	f.invoice(t, sub.ID, date(2024, 1, 1), invoicedomain.InvoiceStatusFailed)

	res, err := f.svc.MarkDelinquent(ctx, date(2024, 1, 5), 3)
	require.NoError(t, err)
	assert.Equal(t, []snowflake.ID{sub.ID}, res.Transitioned)

	res, err = f.svc.Suspend(ctx, date(2024, 1, 20), 15)
	require.NoError(t, err)
	assert.Equal(t, []snowflake.ID{sub.ID}, res.Transitioned)
	assert.Equal(t, subscriptiondomain.SubscriptionStatusSuspended, f.status(t, sub.ID))
}

func TestMarkDelinquentRejectsNegativeGrace(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.MarkDelinquent(context.Background(), date(2024, 1, 10), -1)
	assert.ErrorIs(t, err, subscriptiondomain.ErrInvalidThreshold)
}

func TestSuspendOnlyEscalatesDelinquent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	active := f.subscription(t, subscriptiondomain.SubscriptionStatusActive)
	f.invoice(t, active.ID, date(2024, 1, 1), invoicedomain.InvoiceStatusPending)
	delinquent := f.subscription(t, subscriptiondomain.SubscriptionStatusDelinquent)
	f.invoice(t, delinquent.ID, date(2024, 1, 1), invoicedomain.InvoiceStatusPending)

	res, err := f.svc.Suspend(ctx, date(2024, 1, 16), 15)
	require.NoError(t, err)
	assert.Empty(t, res.Transitioned)

	res, err = f.svc.Suspend(ctx, date(2024, 1, 20), 15)
	require.NoError(t, err)
	assert.Equal(t, []snowflake.ID{delinquent.ID}, res.Transitioned)
	assert.Equal(t, subscriptiondomain.SubscriptionStatusActive, f.status(t, active.ID))
	assert.Equal(t, subscriptiondomain.SubscriptionStatusSuspended, f.status(t, delinquent.ID))

	res, err = f.svc.Suspend(ctx, date(2024, 1, 20), 15)
	require.NoError(t, err)
	assert.Empty(t, res.Transitioned)
	assert.Zero(t, res.Considered)
}

func TestCancelDue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cancelAt := date(2024, 1, 10)
	sub := f.subscription(t, subscriptiondomain.SubscriptionStatusSuspended, func(s *subscriptiondomain.Subscription) {
		s.CancelAt = &cancelAt
	})
	untouched := f.subscription(t, subscriptiondomain.SubscriptionStatusActive)

	res, err := f.svc.CancelDue(ctx, date(2024, 1, 9))
	require.NoError(t, err)
	assert.Empty(t, res.Transitioned)

	res, err = f.svc.CancelDue(ctx, date(2024, 1, 10))
	require.NoError(t, err)
	assert.Equal(t, []snowflake.ID{sub.ID}, res.Transitioned)
	assert.Equal(t, subscriptiondomain.SubscriptionStatusCancelled, f.status(t, sub.ID))
	assert.Equal(t, subscriptiondomain.SubscriptionStatusActive, f.status(t, untouched.ID))

	res, err = f.svc.CancelDue(ctx, date(2024, 1, 11))
	require.NoError(t, err)
	assert.Zero(t, res.Considered)
}

func TestTransitionRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := f.subscription(t, subscriptiondomain.SubscriptionStatusActive)

	changed, err := f.svc.Transition(ctx, sub.ID, subscriptiondomain.SubscriptionStatusActive, "", time.Time{})
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = f.svc.Transition(ctx, sub.ID, subscriptiondomain.SubscriptionStatusSuspended, "", time.Time{})
	assert.ErrorIs(t, err, subscriptiondomain.ErrInvalidTransition)

	_, err = f.svc.Transition(ctx, sub.ID, "paused", "", time.Time{})
	assert.ErrorIs(t, err, subscriptiondomain.ErrInvalidTargetStatus)

	_, err = f.svc.Transition(ctx, f.node.Generate(), subscriptiondomain.SubscriptionStatusCancelled, "", time.Time{})
	assert.ErrorIs(t, err, subscriptiondomain.ErrSubscriptionNotFound)

	changed, err = f.svc.Transition(ctx, sub.ID, subscriptiondomain.SubscriptionStatusCancelled, subscriptiondomain.ReasonManual, time.Time{})
	require.NoError(t, err)
	assert.True(t, changed)

	_, err = f.svc.Transition(ctx, sub.ID, subscriptiondomain.SubscriptionStatusActive, "", time.Time{})
	assert.ErrorIs(t, err, subscriptiondomain.ErrInvalidTransition)
}

func TestTransitionRecordsRunMetadata(t *testing.T) {
	f := newFixture(t)
	sub := f.subscription(t, subscriptiondomain.SubscriptionStatusActive)

	ctx := obscontext.WithRun(context.Background(), "dunning", "run-1")
	ctx = obscontext.WithActor(ctx, "system", "scheduler")
	changed, err := f.svc.Transition(ctx, sub.ID, subscriptiondomain.SubscriptionStatusDelinquent, subscriptiondomain.ReasonGracePeriodExceeded, date(2024, 1, 5))
	require.NoError(t, err)
	require.True(t, changed)

	transitions, err := f.svc.ListTransitions(ctx, sub.ID)
	require.NoError(t, err)
	require.Len(t, transitions, 1)
	assert.Equal(t, "run-1", transitions[0].Metadata["run_id"])
	assert.Equal(t, "scheduler", transitions[0].Metadata["actor_id"])
	assert.True(t, transitions[0].OccurredAt.Equal(date(2024, 1, 5)))
}

func TestReactivateRequiresSettledInvoices(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := f.subscription(t, subscriptiondomain.SubscriptionStatusSuspended)
	inv := f.invoice(t, sub.ID, date(2024, 1, 1), invoicedomain.InvoiceStatusPending)

	changed, err := f.svc.Reactivate(ctx, sub.ID, date(2024, 1, 21))
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, subscriptiondomain.SubscriptionStatusSuspended, f.status(t, sub.ID))

	require.NoError(t, f.db.Exec(`UPDATE invoices SET status = ? WHERE id = ?`, invoicedomain.InvoiceStatusPaid, inv.ID).Error)

	changed, err = f.svc.Reactivate(ctx, sub.ID, date(2024, 1, 21))
	require.NoError(t, err)
	assert.True(t, changed)

	stored, err := f.svc.GetByID(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, subscriptiondomain.SubscriptionStatusActive, stored.Status)
	assert.Nil(t, stored.SuspendedAt)
	assert.Nil(t, stored.DelinquentAt)
}

func TestReactivateLeavesCancelledAlone(t *testing.T) {
	f := newFixture(t)
	sub := f.subscription(t, subscriptiondomain.SubscriptionStatusCancelled)

	changed, err := f.svc.Reactivate(context.Background(), sub.ID, date(2024, 1, 21))
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, subscriptiondomain.SubscriptionStatusCancelled, f.status(t, sub.ID))
}
