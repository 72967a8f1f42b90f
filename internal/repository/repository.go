package repository

import (
	"gorm.io/gorm"

	"quant-research/config"
	"quant-research/pkg/cache"
	"quant-research/pkg/logger"
)

type Repository struct {
	PriceDataRepo    PriceDataRepository
	RuleResultRepo   RuleResultRepository
	BacktestRunRepo  BacktestRunRepository
	MiningReportRepo MiningReportRepository
	UnitOfWork       UnitOfWork
}

func NewRepository(cfg *config.Config, db *gorm.DB, log *logger.Logger) (*Repository, error) {
	memCache := cache.NewCache(cfg.Cache.DefaultExpiration, cfg.Cache.CleanupInterval)

	ruleResultRepo, err := NewRuleResultRepository(cfg.Data.ResultCacheDir, memCache, log)
	if err != nil {
		return nil, err
	}

	return &Repository{
		PriceDataRepo:    NewPriceDataRepository(cfg, memCache, log),
		RuleResultRepo:   ruleResultRepo,
		BacktestRunRepo:  NewBacktestRunRepository(db),
		MiningReportRepo: NewMiningReportRepository(db),
		UnitOfWork:       NewUnitOfWork(db),
	}, nil
}
