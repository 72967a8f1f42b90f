package service

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"quant-research/config"
	"quant-research/internal/repository"
	"quant-research/pkg/logger"
)

// SchedulerService owns the recurring maintenance jobs: warming the price
// cache for the configured watchlist and pruning persisted runs and reports
// past the retention horizon.
type SchedulerService interface {
	Start(ctx context.Context) error
	Stop()
	WarmPriceCache(ctx context.Context) error
	Cleanup(ctx context.Context) error
}

type schedulerService struct {
	cfg              *config.Config
	log              *logger.Logger
	cron             *cron.Cron
	priceDataRepo    repository.PriceDataRepository
	backtestRunRepo  repository.BacktestRunRepository
	miningReportRepo repository.MiningReportRepository
}

func NewSchedulerService(
	cfg *config.Config,
	log *logger.Logger,
	priceDataRepo repository.PriceDataRepository,
	backtestRunRepo repository.BacktestRunRepository,
	miningReportRepo repository.MiningReportRepository,
) SchedulerService {
	return &schedulerService{
		cfg:              cfg,
		log:              log,
		cron:             cron.New(),
		priceDataRepo:    priceDataRepo,
		backtestRunRepo:  backtestRunRepo,
		miningReportRepo: miningReportRepo,
	}
}

func (s *schedulerService) Start(ctx context.Context) error {
	warmup := s.cfg.Scheduler.WarmupSpec
	if warmup == "" {
		warmup = "0 6 * * *"
	}
	cleanup := s.cfg.Scheduler.CleanupSpec
	if cleanup == "" {
		cleanup = "0 1 * * 0"
	}

	if _, err := s.cron.AddFunc(warmup, func() { s.runJob(ctx, "price-cache-warmup", s.WarmPriceCache) }); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(cleanup, func() { s.runJob(ctx, "retention-cleanup", s.Cleanup) }); err != nil {
		return err
	}

	s.cron.Start()
	s.log.Info("Scheduler started",
		logger.StringField("warmup_spec", warmup),
		logger.StringField("cleanup_spec", cleanup),
		logger.IntField("symbols", len(s.cfg.Scheduler.Symbols)),
	)
	return nil
}

func (s *schedulerService) Stop() {
	<-s.cron.Stop().Done()
}

func (s *schedulerService) runJob(ctx context.Context, name string, fn func(context.Context) error) {
	timeout := s.cfg.Scheduler.TimeoutDuration
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	jobCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	started := time.Now()
	if err := fn(jobCtx); err != nil {
		s.log.ErrorContext(jobCtx, "Scheduled job failed",
			logger.StringField("job", name),
			logger.ErrorField(err),
		)
		return
	}
	s.log.InfoContext(jobCtx, "Scheduled job finished",
		logger.StringField("job", name),
		logger.Field("elapsed", time.Since(started)),
	)
}

// WarmPriceCache pre-fetches history for the watchlist so interactive
// requests hit the in-memory cache. Symbols are fetched concurrently, bounded
// by the scheduler's concurrency limit.
func (s *schedulerService) WarmPriceCache(ctx context.Context) error {
	days := s.cfg.Scheduler.WarmupDays
	if days <= 0 {
		days = 365
	}
	end := time.Now().UTC()
	start := end.AddDate(0, 0, -days)

	g, ctx := errgroup.WithContext(ctx)
	if s.cfg.Scheduler.MaxConcurrency > 0 {
		g.SetLimit(s.cfg.Scheduler.MaxConcurrency)
	}
	for _, symbol := range s.cfg.Scheduler.Symbols {
		symbol := symbol
		g.Go(func() error {
			_, err := s.priceDataRepo.Get(ctx, symbol, start, end)
			if err != nil {
				s.log.WarnContext(ctx, "Price warmup failed for symbol",
					logger.StringField("symbol", symbol),
					logger.ErrorField(err),
				)
			}
			return nil
		})
	}
	return g.Wait()
}

// Cleanup deletes runs and reports older than the retention window.
func (s *schedulerService) Cleanup(ctx context.Context) error {
	days := s.cfg.Scheduler.RetentionDays
	if days <= 0 {
		days = 90
	}
	horizon := time.Now().UTC().AddDate(0, 0, -days)

	runs, err := s.backtestRunRepo.DeleteOlderThan(ctx, horizon)
	if err != nil {
		return err
	}
	reports, err := s.miningReportRepo.DeleteOlderThan(ctx, horizon)
	if err != nil {
		return err
	}
	s.log.InfoContext(ctx, "Retention cleanup done",
		logger.IntField("backtest_runs_deleted", int(runs)),
		logger.IntField("mining_reports_deleted", int(reports)),
	)
	return nil
}
