package service

import (
	"quant-research/config"
	"quant-research/internal/repository"
	"quant-research/pkg/logger"
)

type Service struct {
	BacktestService  BacktestService
	MiningService    MiningService
	SchedulerService SchedulerService
}

func NewService(
	cfg *config.Config,
	log *logger.Logger,
	repo *repository.Repository,
) *Service {
	backtestService := NewBacktestService(cfg, log, repo.PriceDataRepo, repo.RuleResultRepo, repo.BacktestRunRepo, repo.UnitOfWork)
	miningService := NewMiningService(cfg, log, repo.PriceDataRepo, repo.RuleResultRepo, repo.MiningReportRepo)
	schedulerService := NewSchedulerService(cfg, log, repo.PriceDataRepo, repo.BacktestRunRepo, repo.MiningReportRepo)

	return &Service{
		BacktestService:  backtestService,
		MiningService:    miningService,
		SchedulerService: schedulerService,
	}
}
