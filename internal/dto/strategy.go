package dto

// StrategyType selects how the generator picks among rule outputs.
type StrategyType string

const (
	StrategyFixed    StrategyType = "fixed"
	StrategyLearning StrategyType = "learning"
)

// PerformanceMetric is the backward-looking score a learning strategy uses to
// reselect the followed rule.
type PerformanceMetric string

const (
	MetricDailyReturns          PerformanceMetric = "daily_returns"
	MetricAvgLogReturns         PerformanceMetric = "avg_log_returns"
	MetricAvgLogReturnsHeldOnly PerformanceMetric = "avg_log_returns_held_only"
	MetricVoting                PerformanceMetric = "voting"
)

// StrategyConstraints are the optional entry/exit constraints applied during
// trigger synthesis.
type StrategyConstraints struct {
	HoldXDays             int `json:"hold_x_days,omitempty"`
	WaitEntryConfirmation int `json:"wait_entry_confirmation,omitempty"`
}

// StrategyDescriptor declares the signal-selection logic for one generator run.
type StrategyDescriptor struct {
	Type        StrategyType        `json:"type"`
	Rules       []string            `json:"rules"`
	Constraints StrategyConstraints `json:"constraints,omitempty"`
	Reversed    bool                `json:"reversed,omitempty"`

	// Learning only.
	MemorySpan        int               `json:"memory_span,omitempty"`
	ReviewSpan        int               `json:"review_span,omitempty"`
	PerformanceMetric PerformanceMetric `json:"performance_metric,omitempty"`
	PriceLabel        string            `json:"price_label,omitempty"`
}

// Validate enforces the structural requirements: a learning strategy needs
// all of its learning parameters, with review span bounded by memory span.
func (s *StrategyDescriptor) Validate() error {
	if len(s.Rules) == 0 {
		return &ValidationError{Reason: "strategy declares no rules"}
	}
	switch s.Type {
	case StrategyFixed:
		return nil
	case StrategyLearning:
		if s.MemorySpan <= 0 {
			return &ValidationError{Reason: "learning strategy missing memory_span"}
		}
		if s.ReviewSpan <= 0 {
			return &ValidationError{Reason: "learning strategy missing review_span"}
		}
		if s.ReviewSpan > s.MemorySpan {
			return &ValidationError{Reason: "review_span exceeds memory_span"}
		}
		switch s.PerformanceMetric {
		case MetricDailyReturns, MetricAvgLogReturns, MetricAvgLogReturnsHeldOnly, MetricVoting:
		default:
			return &ValidationError{Reason: "learning strategy missing performance_metric"}
		}
		if s.PriceLabel == "" {
			return &ValidationError{Reason: "learning strategy missing price_label"}
		}
		return nil
	default:
		return &ValidationError{Reason: "unknown strategy type"}
	}
}
