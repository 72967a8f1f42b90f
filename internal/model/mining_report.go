package model

import (
	"time"

	"gorm.io/datatypes"
)

type MiningReport struct {
	ID                uint           `gorm:"primarykey"`
	Symbol            string         `gorm:"not null;index"`
	BestConfig        string         `gorm:"not null"`
	ObservedMean      float64        `gorm:"not null"`
	BootstrapPValue   float64        `gorm:"not null"`
	PermutationPValue float64        `gorm:"not null"`
	Significance      string         `gorm:"not null"`
	Samples           int            `gorm:"not null"`
	Seed              int64          `gorm:"not null"`
	Configs           datatypes.JSON `gorm:"type:jsonb"`
	SkippedConfigs    datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt         time.Time      `gorm:"autoCreateTime" json:"created_at"`
}

func (MiningReport) TableName() string {
	return "mining_reports"
}

type GetMiningReportsParam struct {
	Symbol       string
	Significance string
	Limit        int
}
