package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"quant-research/internal/model"
	"quant-research/pkg/utils"
)

type BacktestRunRepository interface {
	Create(ctx context.Context, run *model.BacktestRun, opts ...utils.DBOption) error
	Get(ctx context.Context, param model.GetBacktestRunsParam) ([]model.BacktestRun, error)
	GetByID(ctx context.Context, id uint) (*model.BacktestRun, error)
	DeleteOlderThan(ctx context.Context, date time.Time) (int64, error)
}

type backtestRunRepository struct {
	db *gorm.DB
}

func NewBacktestRunRepository(db *gorm.DB) BacktestRunRepository {
	return &backtestRunRepository{db: db}
}

func (r *backtestRunRepository) Create(ctx context.Context, run *model.BacktestRun, opts ...utils.DBOption) error {
	return utils.ApplyOptions(r.db.WithContext(ctx), opts...).Create(run).Error
}

func (r *backtestRunRepository) Get(ctx context.Context, param model.GetBacktestRunsParam) ([]model.BacktestRun, error) {
	query := r.db.WithContext(ctx).Model(&model.BacktestRun{})
	if param.Symbol != "" {
		query = query.Where("symbols @> ?", `["`+param.Symbol+`"]`)
	}
	if param.Bankrupt != nil {
		query = query.Where("bankrupt = ?", *param.Bankrupt)
	}
	if !param.CreatedAt.IsZero() {
		query = query.Where("created_at >= ?", param.CreatedAt)
	}
	if param.Limit > 0 {
		query = query.Limit(param.Limit)
	}

	var runs []model.BacktestRun
	if err := query.Order("created_at DESC").Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

func (r *backtestRunRepository) GetByID(ctx context.Context, id uint) (*model.BacktestRun, error) {
	var run model.BacktestRun
	if err := r.db.WithContext(ctx).Preload("Trades").First(&run, id).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

// DeleteOlderThan prunes runs and their trade records past the retention
// horizon.
func (r *backtestRunRepository) DeleteOlderThan(ctx context.Context, date time.Time) (int64, error) {
	if err := r.db.WithContext(ctx).
		Where("backtest_run_id IN (?)", r.db.Model(&model.BacktestRun{}).Select("id").Where("created_at < ?", date)).
		Delete(&model.TradeRecord{}).Error; err != nil {
		return 0, err
	}
	result := r.db.WithContext(ctx).Where("created_at < ?", date).Delete(&model.BacktestRun{})
	return result.RowsAffected, result.Error
}
