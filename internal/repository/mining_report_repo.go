package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"quant-research/internal/model"
)

type MiningReportRepository interface {
	Create(ctx context.Context, report *model.MiningReport) error
	Get(ctx context.Context, param model.GetMiningReportsParam) ([]model.MiningReport, error)
	DeleteOlderThan(ctx context.Context, date time.Time) (int64, error)
}

type miningReportRepository struct {
	db *gorm.DB
}

func NewMiningReportRepository(db *gorm.DB) MiningReportRepository {
	return &miningReportRepository{db: db}
}

func (r *miningReportRepository) Create(ctx context.Context, report *model.MiningReport) error {
	return r.db.WithContext(ctx).Create(report).Error
}

func (r *miningReportRepository) Get(ctx context.Context, param model.GetMiningReportsParam) ([]model.MiningReport, error) {
	query := r.db.WithContext(ctx).Model(&model.MiningReport{})
	if param.Symbol != "" {
		query = query.Where("symbol = ?", param.Symbol)
	}
	if param.Significance != "" {
		query = query.Where("significance = ?", param.Significance)
	}
	if param.Limit > 0 {
		query = query.Limit(param.Limit)
	}

	var reports []model.MiningReport
	if err := query.Order("created_at DESC").Find(&reports).Error; err != nil {
		return nil, err
	}
	return reports, nil
}

func (r *miningReportRepository) DeleteOlderThan(ctx context.Context, date time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("created_at < ?", date).Delete(&model.MiningReport{})
	return result.RowsAffected, result.Error
}
