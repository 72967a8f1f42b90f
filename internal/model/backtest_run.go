package model

import (
	"time"

	"gorm.io/datatypes"
)

type BacktestRun struct {
	ID           uint           `gorm:"primarykey"`
	Symbols      datatypes.JSON `gorm:"type:jsonb"`
	Rules        datatypes.JSON `gorm:"type:jsonb"`
	Strategy     datatypes.JSON `gorm:"type:jsonb"`
	Sizer        string         `gorm:"not null"`
	InitCapital  float64        `gorm:"not null"`
	FinalNAV     float64        `gorm:"not null"`
	RateOfReturn float64        `gorm:"not null"`
	SharpeRatio  float64
	MaxDrawdown  float64
	TotalTrades  int
	Bankrupt     bool
	Summary      datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt    time.Time      `gorm:"autoCreateTime" json:"created_at"`

	Trades []TradeRecord `gorm:"foreignKey:BacktestRunID"`
}

func (BacktestRun) TableName() string {
	return "backtest_runs"
}

type TradeRecord struct {
	ID            uint   `gorm:"primarykey"`
	BacktestRunID uint   `gorm:"not null;index"`
	TradeID       string `gorm:"not null"`
	Symbol        string `gorm:"not null"`
	Side          string `gorm:"not null"`
	Shares        int64  `gorm:"not null"`
	EntryDate     time.Time
	EntryPrice    float64
	EntryFee      float64
	ExitDate      *time.Time `gorm:"null"`
	ExitPrice     float64
	ExitFee       float64
	Gross         float64
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (TradeRecord) TableName() string {
	return "trade_records"
}

type GetBacktestRunsParam struct {
	Symbol    string
	Bankrupt  *bool
	Limit     int
	CreatedAt time.Time
}
