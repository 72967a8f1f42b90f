package dto

import (
	"fmt"
	"time"
)

// ValidationError reports a pre-run configuration problem: an invalid
// strategy, a malformed descriptor, or mismatched inputs.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s", e.Reason)
}

// MissingDataError reports an absent value that a component required: a cached
// rule result, a stop-loss on a sizer candidate, or a missing column.
type MissingDataError struct {
	Symbol string
	RuleID string
	Field  string
}

func (e *MissingDataError) Error() string {
	msg := "missing data"
	if e.Field != "" {
		msg += fmt.Sprintf(": %s", e.Field)
	}
	if e.RuleID != "" {
		msg += fmt.Sprintf(" (rule %s)", e.RuleID)
	}
	if e.Symbol != "" {
		msg += fmt.Sprintf(" (symbol %s)", e.Symbol)
	}
	return msg
}

// MissingRuleResultsError reports that a persisted rule-result load could not
// satisfy the declared rule set.
type MissingRuleResultsError struct {
	Symbol string
	RuleID string
}

func (e *MissingRuleResultsError) Error() string {
	return fmt.Sprintf("missing rule results for rule %s (symbol %s)", e.RuleID, e.Symbol)
}

// MalformedMultiSeriesError reports a descriptor whose declared input shape
// does not match what its rule function expects.
type MalformedMultiSeriesError struct {
	RuleID string
	Reason string
}

func (e *MalformedMultiSeriesError) Error() string {
	return fmt.Sprintf("malformed series spec for rule %s: %s", e.RuleID, e.Reason)
}

// AccountBankruptError terminates a backtest run when NAV drops to zero or
// below; it carries the failing date.
type AccountBankruptError struct {
	Date time.Time
	NAV  float64
}

func (e *AccountBankruptError) Error() string {
	return fmt.Sprintf("account bankrupt on %s (nav %.2f)", e.Date.Format(DateLayout), e.NAV)
}

// InconsistentSignalsError reports an entry trigger for a symbol that already
// holds a position.
type InconsistentSignalsError struct {
	Symbol string
	Date   time.Time
}

func (e *InconsistentSignalsError) Error() string {
	return fmt.Sprintf("inconsistent signals for %s on %s: entry while holding", e.Symbol, e.Date.Format(DateLayout))
}

// LengthMismatchError reports validator or series inputs of unequal length.
type LengthMismatchError struct {
	ID   string
	Want int
	Got  int
}

func (e *LengthMismatchError) Error() string {
	return fmt.Sprintf("length mismatch for %s: want %d, got %d", e.ID, e.Want, e.Got)
}
