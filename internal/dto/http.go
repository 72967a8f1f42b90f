package dto

import "time"

// BacktestRequest defines one backtest run over a set of symbols.
type BacktestRequest struct {
	Symbols     []string           `json:"symbols" validate:"required,min=1"`
	StartDate   time.Time          `json:"start_date"`
	EndDate     time.Time          `json:"end_date"`
	Rules       []RuleDescriptor   `json:"rules" validate:"required,min=1"`
	Derived     []DerivedColumn    `json:"derived,omitempty"`
	Strategy    StrategyDescriptor `json:"strategy" validate:"required"`
	InitCapital float64            `json:"init_capital" validate:"gt=0"`
	Sizer       string             `json:"sizer,omitempty"`
	SizerOrder  string             `json:"sizer_order,omitempty"`
	MaxDays     int                `json:"max_days,omitempty"`
}

// BacktestSummary aggregates the derived performance metrics of one run.
type BacktestSummary struct {
	FinalNAV         float64 `json:"final_nav"`
	RateOfReturn     float64 `json:"rate_of_return"`
	SharpeRatio      float64 `json:"sharpe_ratio"`
	AnnualizedReturn float64 `json:"annualized_return"`
	MaxDrawdown      float64 `json:"max_drawdown"`
	MaxDrawdownDays  int     `json:"max_drawdown_days"`
	TotalTrades      int     `json:"total_trades"`
	Expectation      float64 `json:"expectation"`
}

// BacktestResponse is the dated equity curve plus the trade ledger.
type BacktestResponse struct {
	RunID        uint            `json:"run_id,omitempty"`
	Dates        []time.Time     `json:"dates"`
	AccountValue []float64       `json:"account_value"`
	NAV          []float64       `json:"nav"`
	RateOfReturn []float64       `json:"rate_of_return"`
	Trades       []Trade         `json:"trades"`
	Summary      BacktestSummary `json:"summary"`
	Bankrupt     bool            `json:"bankrupt,omitempty"`
	BankruptDate *time.Time      `json:"bankrupt_date,omitempty"`
}

// MiningRequest drives the rule-mining validator over a family of rule
// configurations for one symbol.
type MiningRequest struct {
	Symbol      string             `json:"symbol" validate:"required"`
	StartDate   time.Time          `json:"start_date"`
	EndDate     time.Time          `json:"end_date"`
	Configs     []MiningConfig     `json:"configs" validate:"required,min=1"`
	Derived     []DerivedColumn    `json:"derived,omitempty"`
	Strategy    StrategyDescriptor `json:"strategy"`
	InitCapital float64            `json:"init_capital" validate:"gt=0"`
	Samples     int                `json:"samples,omitempty"`
	Seed        int64              `json:"seed,omitempty"`
}

// MiningConfig is one parameterized rule configuration in the mined family.
type MiningConfig struct {
	Name  string           `json:"name" validate:"required"`
	Rules []RuleDescriptor `json:"rules" validate:"required,min=1"`
}

// MiningResponse reports the best observed configuration and the two
// null-distribution p-values.
type MiningResponse struct {
	ReportID          uint     `json:"report_id,omitempty"`
	BestConfig        string   `json:"best_config"`
	ObservedMean      float64  `json:"observed_mean"`
	BootstrapPValue   float64  `json:"bootstrap_p_value"`
	PermutationPValue float64  `json:"permutation_p_value"`
	Significance      string   `json:"significance"`
	Samples           int      `json:"samples"`
	Seed              int64    `json:"seed"`
	SkippedConfigs    []string `json:"skipped_configs,omitempty"`
}
