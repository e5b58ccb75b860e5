package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/cashback/internal/clock"
	"github.com/smallbiznis/cashback/internal/dunning"
	invoicedomain "github.com/smallbiznis/cashback/internal/invoice/domain"
	"github.com/smallbiznis/cashback/internal/lease"
	"github.com/smallbiznis/cashback/internal/notification"
	obsmetrics "github.com/smallbiznis/cashback/internal/observability/metrics"
	subscriptiondomain "github.com/smallbiznis/cashback/internal/subscription/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	JobInvoiceGeneration = "invoice_generation"
	JobDunning           = "dunning"
	JobCancellations     = "cancellations"

	dateLayout = "2006-01-02"
)

// Jobs lists every job in the order RunOnce executes them. Cancellations run
// first so a subscription that reached cancel_at is neither invoiced nor dunned.
var Jobs = []string{JobCancellations, JobInvoiceGeneration, JobDunning}

var (
	ErrInvalidConfig = errors.New("invalid_scheduler_config")
	ErrUnknownJob    = errors.New("unknown_job")
	// ErrJobLocked reports that another run of the same job holds the lease.
	ErrJobLocked = lease.ErrLeaseHeld
)

// JobResult is the structured outcome of one job run. Exactly one of the
// job specific sections is set.
type JobResult struct {
	Job        string    `json:"job"`
	RunID      string    `json:"run_id"`
	AsOf       string    `json:"as_of"`
	StartedAt  time.Time `json:"started_at"`
	DurationMS int64     `json:"duration_ms"`
	Summary    string    `json:"summary"`

	Invoices      *invoicedomain.GenerateResult  `json:"invoices,omitempty"`
	Dunning       *dunning.Result                `json:"dunning,omitempty"`
	Notifications int                            `json:"notifications,omitempty"`
	Cancellations *subscriptiondomain.BulkResult `json:"cancellations,omitempty"`
}

type Params struct {
	fx.In

	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock

	Locker          lease.Locker
	InvoiceSvc      invoicedomain.Service
	SubscriptionSvc subscriptiondomain.Service
	Dunning         *dunning.Engine
	Dispatcher      notification.Dispatcher
	Config          Config `optional:"true"`
}

type Scheduler struct {
	log    *zap.Logger
	cfg    Config
	genID  *snowflake.Node
	clock  clock.Clock
	tracer trace.Tracer

	locker          lease.Locker
	invoiceSvc      invoicedomain.Service
	subscriptionSvc subscriptiondomain.Service
	dunning         *dunning.Engine
	dispatcher      notification.Dispatcher
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.GenID == nil || p.Clock == nil || p.Locker == nil ||
		p.InvoiceSvc == nil || p.SubscriptionSvc == nil || p.Dunning == nil {
		return nil, ErrInvalidConfig
	}
	dispatcher := p.Dispatcher
	if dispatcher == nil {
		dispatcher = notification.NoOpDispatcher{}
	}
	return &Scheduler{
		log:    p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:    p.Config.withDefaults(),
		genID:  p.GenID,
		clock:  p.Clock,
		tracer: otel.Tracer("github.com/smallbiznis/cashback/internal/scheduler"),

		locker:          p.Locker,
		invoiceSvc:      p.InvoiceSvc,
		subscriptionSvc: p.SubscriptionSvc,
		dunning:         p.Dunning,
		dispatcher:      dispatcher,
	}, nil
}

// IsKnownJob reports whether name is a job this scheduler can run.
func IsKnownJob(name string) bool {
	for _, job := range Jobs {
		if job == name {
			return true
		}
	}
	return false
}

// RunJob runs a single job as of at (the clock's now when at is zero) under
// the job's lease. A contended lease returns ErrJobLocked without running.
func (s *Scheduler) RunJob(parent context.Context, name string, at time.Time) (JobResult, error) {
	if !IsKnownJob(name) {
		return JobResult{}, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	if at.IsZero() {
		at = s.clock.Now()
	}
	at = at.UTC()

	ctx, span := s.tracer.Start(parent, "scheduler."+name, trace.WithAttributes(
		attribute.String("scheduler.job", name),
		attribute.String("scheduler.as_of", at.Format(dateLayout)),
	))
	defer span.End()

	ctx, run, _ := s.ensureJobRun(ctx, name, at)
	span.SetAttributes(attribute.String("scheduler.run_id", run.runID))
	result := JobResult{
		Job:       name,
		RunID:     run.runID,
		AsOf:      at.Format(dateLayout),
		StartedAt: run.startedAt,
	}
	schedMetrics := obsmetrics.Scheduler()

	waitStart := time.Now()
	held, err := s.locker.Acquire(ctx, name, s.cfg.LeaseTTL)
	schedMetrics.ObserveLeaseWait(time.Since(waitStart))
	if err != nil {
		if errors.Is(err, lease.ErrLeaseHeld) {
			schedMetrics.IncJobSkipped(name, obsmetrics.SchedulerJobReasonLeaseHeld)
			s.logger(ctx).Warn("scheduler.job.locked")
			span.SetStatus(codes.Error, "lease held")
			return result, fmt.Errorf("%s: %w", name, ErrJobLocked)
		}
		schedMetrics.IncJobError(name, err)
		s.logSchedulerError(ctx, run, "scheduler.lease.acquire.failed", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return result, fmt.Errorf("%s: acquire lease: %w", name, err)
	}
	defer func() {
		if err := held.Release(context.WithoutCancel(ctx)); err != nil {
			s.logger(ctx).Warn("scheduler.lease.release.failed", zap.Error(err))
		}
	}()

	s.logJobStart(ctx, run)
	schedMetrics.IncJobRun(name)

	jobCtx, cancel := context.WithTimeout(ctx, s.cfg.JobTimeout)
	defer cancel()

	switch name {
	case JobInvoiceGeneration:
		err = s.runInvoiceGeneration(jobCtx, run, at, &result)
	case JobDunning:
		err = s.runDunning(jobCtx, run, at, &result)
	case JobCancellations:
		err = s.runCancellations(jobCtx, run, at, &result)
	}

	elapsed := s.clock.Now().Sub(run.startedAt)
	result.DurationMS = elapsed.Milliseconds()
	schedMetrics.ObserveJobDuration(name, elapsed)
	span.SetAttributes(
		attribute.Int("scheduler.processed", run.processedCount),
		attribute.Int("scheduler.errors", run.errorCount),
	)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			schedMetrics.IncJobTimeout(name)
		}
		schedMetrics.IncJobError(name, err)
		s.logSchedulerError(ctx, run, "scheduler.job.failed", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if result.Summary == "" {
			result.Summary = fmt.Sprintf("%s for %s failed: %v", name, result.AsOf, err)
		}
		s.logJobFinish(ctx, run, result.Summary)
		return result, fmt.Errorf("%s: %w", name, err)
	}

	s.logJobFinish(ctx, run, result.Summary)
	s.logger(ctx).Info(result.Summary)
	return result, nil
}

func (s *Scheduler) runInvoiceGeneration(ctx context.Context, run *jobRun, at time.Time, result *JobResult) error {
	res, err := s.invoiceSvc.GenerateDue(ctx, at)
	if err != nil {
		return err
	}
	result.Invoices = &res
	run.AddProcessed(res.Processed)
	run.AddErrors(res.Failed)

	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.AddItems(JobInvoiceGeneration, obsmetrics.OutcomeSucceeded, res.Succeeded)
	schedMetrics.AddItems(JobInvoiceGeneration, obsmetrics.OutcomeFailed, res.Failed)
	schedMetrics.AddItems(JobInvoiceGeneration, obsmetrics.OutcomeSkipped, res.Skipped)

	result.Summary = fmt.Sprintf(
		"invoice generation for %s: %d processed, %d succeeded, %d failed, %d skipped",
		result.AsOf, res.Processed, res.Succeeded, res.Failed, res.Skipped,
	)
	return nil
}

// runDunning escalates subscriptions and hands the notices to the dispatcher.
// Dispatch failures are logged and never fail the run.
func (s *Scheduler) runDunning(ctx context.Context, run *jobRun, at time.Time, result *JobResult) error {
	res, err := s.dunning.Run(ctx, at)
	if err != nil {
		return err
	}
	result.Dunning = &res
	run.AddProcessed(res.DelinquentCount + res.SuspendedCount)
	run.AddErrors(len(res.Errors))

	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.AddItems(JobDunning, obsmetrics.OutcomeSucceeded, res.DelinquentCount+res.SuspendedCount)
	schedMetrics.AddItems(JobDunning, obsmetrics.OutcomeFailed, len(res.Errors))

	notifications := dunning.Notifications(res)
	result.Notifications = len(notifications)
	if len(notifications) > 0 {
		if err := s.dispatcher.Dispatch(ctx, notifications); err != nil {
			s.logger(ctx).Warn("scheduler.notification.dispatch.failed",
				zap.Int("notifications", len(notifications)),
				zap.Error(err),
			)
		}
	}

	result.Summary = fmt.Sprintf(
		"dunning for %s: %d delinquent, %d suspended, %d reminder candidates, %d errors",
		result.AsOf, res.DelinquentCount, res.SuspendedCount, len(res.ReminderCandidates), len(res.Errors),
	)
	return nil
}

func (s *Scheduler) runCancellations(ctx context.Context, run *jobRun, at time.Time, result *JobResult) error {
	res, err := s.subscriptionSvc.CancelDue(ctx, at)
	if err != nil {
		return err
	}
	result.Cancellations = &res
	run.AddProcessed(res.Considered)
	run.AddErrors(len(res.Errors))

	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.AddItems(JobCancellations, obsmetrics.OutcomeSucceeded, len(res.Transitioned))
	schedMetrics.AddItems(JobCancellations, obsmetrics.OutcomeFailed, len(res.Errors))

	result.Summary = fmt.Sprintf(
		"cancellations for %s: %d considered, %d cancelled, %d errors",
		result.AsOf, res.Considered, len(res.Transitioned), len(res.Errors),
	)
	return nil
}

// RunOnce runs every enabled job at the current time. A job skipped because
// another instance holds its lease is not an error.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	var err error
	for _, name := range Jobs {
		if !s.isJobEnabled(name) {
			continue
		}
		if ctx.Err() != nil {
			return errors.Join(err, ctx.Err())
		}
		if _, jobErr := s.RunJob(ctx, name, time.Time{}); jobErr != nil && !errors.Is(jobErr, ErrJobLocked) {
			err = errors.Join(err, jobErr)
		}
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := time.Now().Add(s.cfg.RunInterval)
	schedMetrics := obsmetrics.Scheduler()

	if err := s.RunOnce(ctx); err != nil {
		s.log.Warn("scheduler.run.failed", zap.Error(err))
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if lag := time.Since(nextRun); lag > 0 {
			schedMetrics.ObserveRunLoopLag(lag)
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler.run.failed", zap.Error(err))
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	// an empty list enables every job
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(strings.TrimSpace(enabled), jobName) {
			return true
		}
	}
	return false
}
