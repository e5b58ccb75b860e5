package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/cashback/internal/clock"
	obscontext "github.com/smallbiznis/cashback/internal/observability/context"
	obslogger "github.com/smallbiznis/cashback/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/cashback/internal/observability/metrics"
	subscriptiondomain "github.com/smallbiznis/cashback/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// guardFunc re-checks a transition precondition inside the row-locked transaction.
type guardFunc func(ctx context.Context, tx *gorm.DB, subscription *subscriptiondomain.Subscription) (bool, error)

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID *snowflake.Node
	clock clock.Clock
	repo  subscriptiondomain.Repository
}

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  subscriptiondomain.Repository
}

func NewService(p ServiceParam) subscriptiondomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("subscription.service"),

		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (subscriptiondomain.Subscription, error) {
	if id == 0 {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrInvalidSubscription
	}
	item, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}
	if item == nil {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrSubscriptionNotFound
	}
	return *item, nil
}

func (s *Service) ListTransitions(ctx context.Context, id snowflake.ID) ([]subscriptiondomain.StatusTransition, error) {
	if id == 0 {
		return nil, subscriptiondomain.ErrInvalidSubscription
	}
	return s.repo.ListTransitions(ctx, s.db, id)
}

func (s *Service) Transition(
	ctx context.Context,
	id snowflake.ID,
	target subscriptiondomain.SubscriptionStatus,
	reason subscriptiondomain.TransitionReason,
	at time.Time,
) (bool, error) {
	if id == 0 {
		return false, subscriptiondomain.ErrInvalidSubscription
	}
	if !subscriptiondomain.IsValidStatus(target) {
		return false, subscriptiondomain.ErrInvalidTargetStatus
	}
	if reason == "" {
		reason = subscriptiondomain.ReasonManual
	}
	return s.transition(ctx, id, target, reason, s.at(at), nil)
}

func (s *Service) MarkDelinquent(ctx context.Context, now time.Time, graceDays int) (subscriptiondomain.BulkResult, error) {
	if graceDays < 0 {
		return subscriptiondomain.BulkResult{}, subscriptiondomain.ErrInvalidThreshold
	}
	now = s.at(now)
	today := clock.StartOfDay(now)
	cutoff := today.AddDate(0, 0, -graceDays)

	ids, err := s.repo.ListDelinquencyCandidates(ctx, s.db, cutoff, now)
	if err != nil {
		return subscriptiondomain.BulkResult{}, fmt.Errorf("list delinquency candidates: %w", err)
	}

	guard := func(ctx context.Context, tx *gorm.DB, sub *subscriptiondomain.Subscription) (bool, error) {
		if sub.InTrial(now) {
			return false, nil
		}
		return s.repo.HasOutstandingInvoiceDueBefore(ctx, tx, sub.ID, cutoff)
	}
	return s.bulk(ctx, ids, subscriptiondomain.SubscriptionStatusDelinquent, subscriptiondomain.ReasonGracePeriodExceeded, now, guard), nil
}

func (s *Service) Suspend(ctx context.Context, now time.Time, suspensionDays int) (subscriptiondomain.BulkResult, error) {
	if suspensionDays < 0 {
		return subscriptiondomain.BulkResult{}, subscriptiondomain.ErrInvalidThreshold
	}
	now = s.at(now)
	cutoff := clock.StartOfDay(now).AddDate(0, 0, -suspensionDays)

	ids, err := s.repo.ListSuspensionCandidates(ctx, s.db, cutoff)
	if err != nil {
		return subscriptiondomain.BulkResult{}, fmt.Errorf("list suspension candidates: %w", err)
	}

	guard := func(ctx context.Context, tx *gorm.DB, sub *subscriptiondomain.Subscription) (bool, error) {
		if sub.Status != subscriptiondomain.SubscriptionStatusDelinquent {
			return false, nil
		}
		return s.repo.HasOutstandingInvoiceDueBefore(ctx, tx, sub.ID, cutoff)
	}
	return s.bulk(ctx, ids, subscriptiondomain.SubscriptionStatusSuspended, subscriptiondomain.ReasonSuspensionThreshold, now, guard), nil
}

func (s *Service) CancelDue(ctx context.Context, now time.Time) (subscriptiondomain.BulkResult, error) {
	now = s.at(now)
	ids, err := s.repo.ListCancellationsDue(ctx, s.db, now)
	if err != nil {
		return subscriptiondomain.BulkResult{}, fmt.Errorf("list cancellations due: %w", err)
	}

	guard := func(_ context.Context, _ *gorm.DB, sub *subscriptiondomain.Subscription) (bool, error) {
		return sub.CancelAt != nil && !sub.CancelAt.After(now), nil
	}
	return s.bulk(ctx, ids, subscriptiondomain.SubscriptionStatusCancelled, subscriptiondomain.ReasonCancelAtReached, now, guard), nil
}

func (s *Service) Reactivate(ctx context.Context, id snowflake.ID, at time.Time) (bool, error) {
	if id == 0 {
		return false, subscriptiondomain.ErrInvalidSubscription
	}
	at = s.at(at)

	guard := func(ctx context.Context, tx *gorm.DB, sub *subscriptiondomain.Subscription) (bool, error) {
		outstanding, err := s.repo.CountOutstandingInvoices(ctx, tx, sub.ID)
		if err != nil {
			return false, err
		}
		return outstanding == 0, nil
	}
	changed, err := s.transition(ctx, id, subscriptiondomain.SubscriptionStatusActive, subscriptiondomain.ReasonPaymentReceived, at, guard)
	if errors.Is(err, subscriptiondomain.ErrInvalidTransition) {
		// cancelled subscriptions stay cancelled after a late payment
		return false, nil
	}
	return changed, err
}

// bulk runs one transaction per subscription so a failure never rolls back
// the subscriptions already handled.
func (s *Service) bulk(
	ctx context.Context,
	ids []snowflake.ID,
	target subscriptiondomain.SubscriptionStatus,
	reason subscriptiondomain.TransitionReason,
	at time.Time,
	guard guardFunc,
) subscriptiondomain.BulkResult {
	result := subscriptiondomain.BulkResult{
		Considered:   len(ids),
		Transitioned: []snowflake.ID{},
	}
	for _, id := range ids {
		if ctx.Err() != nil {
			result.Errors = append(result.Errors, subscriptiondomain.TransitionError{
				SubscriptionID: id,
				Error:          ctx.Err().Error(),
			})
			continue
		}
		changed, err := s.transition(ctx, id, target, reason, at, guard)
		if err != nil {
			result.Errors = append(result.Errors, subscriptiondomain.TransitionError{
				SubscriptionID: id,
				Error:          err.Error(),
			})
			continue
		}
		if changed {
			result.Transitioned = append(result.Transitioned, id)
		}
	}
	return result
}

func (s *Service) transition(
	ctx context.Context,
	id snowflake.ID,
	target subscriptiondomain.SubscriptionStatus,
	reason subscriptiondomain.TransitionReason,
	at time.Time,
	guard guardFunc,
) (bool, error) {
	var from subscriptiondomain.SubscriptionStatus
	var changed bool

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		subscription, err := s.repo.FindByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if subscription == nil {
			return subscriptiondomain.ErrSubscriptionNotFound
		}

		from = subscription.Status
		if from == target {
			return nil
		}
		if !subscriptiondomain.CanTransition(from, target) {
			return subscriptiondomain.ErrInvalidTransition
		}
		if guard != nil {
			ok, err := guard(ctx, tx, subscription)
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
		}

		updated, err := s.repo.UpdateStatus(ctx, tx, id, from, target, at)
		if err != nil {
			return err
		}
		if !updated {
			return nil
		}

		if err := s.repo.InsertTransition(ctx, tx, &subscriptiondomain.StatusTransition{
			ID:             s.genID.Generate(),
			SubscriptionID: id,
			FromStatus:     from,
			ToStatus:       target,
			Reason:         reason,
			Metadata:       transitionMetadata(ctx),
			OccurredAt:     at,
			CreatedAt:      s.clock.Now(),
		}); err != nil {
			return err
		}
		changed = true
		return nil
	})
	if err != nil {
		if !errors.Is(err, subscriptiondomain.ErrInvalidTransition) && !errors.Is(err, subscriptiondomain.ErrSubscriptionNotFound) {
			err = fmt.Errorf("transition subscription %s to %s: %w", id, target, err)
		}
		return false, err
	}

	if changed {
		obsmetrics.Scheduler().AddTransitions(string(from), string(target), 1)
		obslogger.WithContext(ctx, s.log).Info("subscription.transitioned",
			zap.String("subscription_id", id.String()),
			zap.String("from", string(from)),
			zap.String("to", string(target)),
			zap.String("reason", string(reason)),
			zap.Time("at", at),
		)
	}
	return changed, nil
}

func (s *Service) at(t time.Time) time.Time {
	if t.IsZero() {
		return s.clock.Now()
	}
	return t.UTC()
}

func transitionMetadata(ctx context.Context) datatypes.JSONMap {
	meta := datatypes.JSONMap{}
	if job, runID := obscontext.RunFromContext(ctx); runID != "" {
		meta["job"] = job
		meta["run_id"] = runID
	}
	if actorType, actorID := obscontext.ActorFromContext(ctx); actorType != "" {
		meta["actor_type"] = actorType
		meta["actor_id"] = actorID
	}
	return meta
}
