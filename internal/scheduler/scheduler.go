package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/hera/internal/clock"
	"github.com/smallbiznis/hera/internal/config"
	entitydomain "github.com/smallbiznis/hera/internal/entity/domain"
	"github.com/smallbiznis/hera/internal/lock"
	obsmetrics "github.com/smallbiznis/hera/internal/observability/metrics"
	organizationdomain "github.com/smallbiznis/hera/internal/organization/domain"
	postingdomain "github.com/smallbiznis/hera/internal/posting/domain"
	"github.com/smallbiznis/hera/internal/scheduler/guard"
	"github.com/smallbiznis/hera/internal/schema"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	JobDailyPosting = "daily_posting"

	deferredReasonDayOpen = "day_open"
	lockKeyFormat         = "hera:posting:daily:%s:%s:%s"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	Log           *zap.Logger
	Organizations organizationdomain.Service
	Entities      entitydomain.Service
	Posting       postingdomain.Service
	GenID         *snowflake.Node
	Clock         clock.Clock
	Locker        *lock.Locker                `optional:"true"`
	Settings      *config.PostingConfigHolder `optional:"true"`
	Config        Config                      `optional:"true"`
}

// Scheduler posts the daily sales journal for every active branch once its
// business day has closed.
type Scheduler struct {
	log           *zap.Logger
	cfg           Config
	genID         *snowflake.Node
	clock         clock.Clock
	organizations organizationdomain.Service
	entities      entitydomain.Service
	posting       postingdomain.Service
	locker        *lock.Locker
	settings      *config.PostingConfigHolder
	metrics       *obsmetrics.SchedulerMetrics
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Organizations == nil || p.Entities == nil || p.Posting == nil || p.GenID == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:           p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:           p.Config.withDefaults(),
		genID:         p.GenID,
		clock:         p.Clock,
		organizations: p.Organizations,
		entities:      p.Entities,
		posting:       p.Posting,
		locker:        p.Locker,
		settings:      p.Settings,
		metrics:       obsmetrics.Scheduler(),
	}, nil
}

func (s *Scheduler) runJob(parent context.Context, name string, timeout time.Duration, fn func(ctx context.Context) error) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run, owner := s.ensureJobRun(ctx, name)
	if owner {
		s.logJobStart(ctx, run)
	}
	s.metrics.IncJobRun(name)

	err := fn(ctx)
	s.metrics.ObserveJobDuration(name, s.clock.Now().Sub(start))
	if owner {
		if err != nil && run.errorCount == 0 {
			run.IncError()
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}

	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		s.metrics.IncJobTimeout(name)
	}
	s.metrics.IncJobError(name, err)
	if isTimeout {
		s.logger(ctx).Warn("job timed out",
			zap.String("job", name),
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}
	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(ctx context.Context) error {
	return s.runJob(ctx, JobDailyPosting, s.cfg.JobTimeout, s.DailyPostingJob)
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now().Add(s.cfg.RunInterval)

	for {
		if lag := s.clock.Now().Sub(nextRun); lag > 0 {
			s.metrics.ObserveRunLoopLag(lag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// DailyPostingJob walks active organizations and their branches, posting
// each closed business day inside the lookback window.
func (s *Scheduler) DailyPostingJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobDailyPosting)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	orgs, err := s.organizations.ListActive(ctx)
	if err != nil {
		return err
	}

	days := s.businessDays()
	var errs error
	for _, org := range orgs {
		if err := ctx.Err(); err != nil {
			return errors.Join(errs, err)
		}
		branches, err := s.listBranches(ctx, org.ID)
		if err != nil {
			s.logSchedulerError(ctx, run, "scheduler.branches.list_failed", org.ID, err)
			errs = errors.Join(errs, err)
			continue
		}
		s.metrics.AddBatchProcessed(JobDailyPosting, "branches", len(branches))
		for _, branch := range branches {
			for _, day := range days {
				if err := s.postBranchDay(ctx, run, org.ID, branch.ID, day); err != nil {
					errs = errors.Join(errs, err)
				}
			}
		}
	}
	return errs
}

// businessDays lists the lookback window oldest first, ending yesterday in
// the configured zone.
func (s *Scheduler) businessDays() []time.Time {
	loc, err := time.LoadLocation(s.settings.Get().Timezone)
	if err != nil {
		loc = time.UTC
	}
	y, m, d := s.clock.Now().In(loc).Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)

	days := make([]time.Time, 0, s.cfg.LookbackDays)
	for offset := s.cfg.LookbackDays; offset >= 1; offset-- {
		days = append(days, today.AddDate(0, 0, -offset))
	}
	return days
}

func (s *Scheduler) listBranches(ctx context.Context, orgID snowflake.ID) ([]entitydomain.Record, error) {
	resp, err := s.entities.Execute(ctx, entitydomain.Request{
		Action:         entitydomain.ActionRead,
		ActorUserID:    s.cfg.ActorID,
		OrganizationID: orgID,
		Options: entitydomain.Options{
			Limit: entitydomain.MaxListLimit,
			Filters: entitydomain.Filters{
				EntityType: postingdomain.BranchEntityType,
				Status:     schema.EntityStatusActive,
			},
		},
	})
	if err != nil {
		return nil, err
	}
	return resp.Entities, nil
}

func (s *Scheduler) postBranchDay(ctx context.Context, run *jobRun, orgID, branchID snowflake.ID, day time.Time) error {
	ctx = s.withLogContext(ctx, orgID)
	businessDate := day.Format(postingdomain.DayLayout)
	log := s.logger(ctx).With(
		zap.String("branch_id", branchID.String()),
		zap.String("business_date", businessDate),
	)

	loc, err := s.branchLocation(ctx, orgID, branchID)
	if err != nil {
		s.logSchedulerError(ctx, run, "scheduler.posting.policy_failed", orgID, err,
			zap.String("branch_id", branchID.String()))
		s.metrics.IncPostingResult(obsmetrics.PostingOutcomeFailed)
		return err
	}
	if err := guard.EnsureDayClosed(day, loc, s.clock.Now()); err != nil {
		run.IncDeferred()
		s.metrics.IncBatchDeferred(JobDailyPosting, deferredReasonDayOpen)
		log.Debug("scheduler.posting.day_open", zap.String("timezone", loc.String()))
		return nil
	}

	if s.locker.Enabled() {
		key := fmt.Sprintf(lockKeyFormat, orgID, branchID, businessDate)
		token, ok, err := s.locker.TryLock(ctx, key, s.cfg.LockTTL)
		if err != nil {
			s.logSchedulerError(ctx, run, "scheduler.posting.lock_failed", orgID, err,
				zap.String("branch_id", branchID.String()))
			return err
		}
		if !ok {
			run.IncDeferred()
			s.metrics.IncBatchDeferred(JobDailyPosting, obsmetrics.SchedulerBatchDeferredReasonLockHeld)
			log.Debug("scheduler.posting.lock_held")
			return nil
		}
		defer func() {
			if err := s.locker.Release(context.WithoutCancel(ctx), key, token); err != nil {
				log.Warn("scheduler.posting.lock_release_failed", zap.Error(err))
			}
		}()
	}

	result, err := s.posting.PostDaily(ctx, postingdomain.PostRequest{
		ActorUserID:    s.cfg.ActorID,
		OrganizationID: orgID,
		BranchID:       branchID,
		Day:            businessDate,
	})
	switch {
	case err == nil:
		run.AddProcessed(1)
		s.metrics.IncPostingResult(obsmetrics.PostingOutcomePosted)
		log.Info("scheduler.posting.posted",
			zap.String("journal_id", result.JournalID.String()),
			zap.String("transaction_code", result.TransactionCode),
		)
		return nil
	case errors.Is(err, postingdomain.ErrAlreadyPosted):
		s.metrics.IncPostingResult(obsmetrics.PostingOutcomeAlreadyPosted)
		return nil
	case errors.Is(err, postingdomain.ErrNoSalesFound):
		s.metrics.IncPostingResult(obsmetrics.PostingOutcomeNoSales)
		return nil
	case errors.Is(err, postingdomain.ErrNoPolicy):
		s.metrics.IncPostingResult(obsmetrics.PostingOutcomeNoPolicy)
		fields := []zap.Field{zap.Error(err)}
		if summary := postingdomain.SummaryOf(err); summary != nil {
			fields = append(fields, zap.Int("transaction_count", summary.TransactionCount))
		}
		log.Warn("scheduler.posting.no_policy", fields...)
		return nil
	default:
		s.metrics.IncPostingResult(obsmetrics.PostingOutcomeFailed)
		s.logSchedulerError(ctx, run, "scheduler.posting.failed", orgID, err,
			zap.String("branch_id", branchID.String()),
			zap.String("business_date", businessDate))
		return err
	}
}

// branchLocation resolves the zone a branch's business day closes in. A
// branch without a policy falls back to the configured zone and is reported
// by the posting call itself.
func (s *Scheduler) branchLocation(ctx context.Context, orgID, branchID snowflake.ID) (*time.Location, error) {
	policy, err := s.posting.ResolvePolicy(ctx, postingdomain.PolicyRequest{
		ActorUserID:    s.cfg.ActorID,
		OrganizationID: orgID,
		BranchID:       branchID,
	})
	if err != nil && !errors.Is(err, postingdomain.ErrNoPolicy) {
		return nil, err
	}
	if policy != nil && policy.Timezone != "" {
		return policy.Location()
	}
	loc, err := time.LoadLocation(s.settings.Get().Timezone)
	if err != nil {
		return nil, postingdomain.ErrInvalidTimezone
	}
	return loc, nil
}
