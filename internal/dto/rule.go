package dto

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// RuleKind tags a rule descriptor as simple or convoluted.
type RuleKind string

const (
	RuleKindSimple     RuleKind = "simple"
	RuleKindConvoluted RuleKind = "convoluted"
)

// AggregationType selects how a convoluted rule combines its inputs.
type AggregationType string

const (
	AggregationCombine    AggregationType = "combine"
	AggregationStateBased AggregationType = "state-based"
)

// Combine modes.
const (
	CombineStrong         = "strong"
	CombineMajorityVoting = "majority_voting"
)

// Params is the opaque parameter bundle attached to a rule descriptor.
type Params map[string]any

// Float reads a numeric parameter, falling back to def when absent.
func (p Params) Float(key string, def float64) float64 {
	v, ok := p[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return def
		}
		return f
	default:
		return def
	}
}

// Int reads an integer parameter, falling back to def when absent.
func (p Params) Int(key string, def int) int {
	return int(p.Float(key, float64(def)))
}

// String reads a string parameter, falling back to def when absent.
func (p Params) String(key string, def string) string {
	if v, ok := p[key].(string); ok {
		return v
	}
	return def
}

// Has reports whether the parameter was supplied at all.
func (p Params) Has(key string) bool {
	_, ok := p[key]
	return ok
}

// AggregationParams configures a convoluted rule.
//
// For combine, Mode is one of CombineStrong or CombineMajorityVoting. For
// state-based, Long/Short/Neutral list the simple-rule output tuples mapped to
// each state; an unmatched tuple carries the previous state.
type AggregationParams struct {
	Mode    string     `json:"mode,omitempty"`
	Long    [][]Signal `json:"long,omitempty"`
	Short   [][]Signal `json:"short,omitempty"`
	Neutral [][]Signal `json:"neutral,omitempty"`
}

// RuleDescriptor is the immutable declaration of one rule. Simple descriptors
// reference a function in the rule library; convoluted descriptors aggregate
// the outputs of previously declared simple rules.
type RuleDescriptor struct {
	ID            string   `json:"id"`
	Kind          RuleKind `json:"kind"`
	Lookback      int      `json:"lookback"`
	Columns       []string `json:"columns"`
	Func          string   `json:"func,omitempty"`
	Params        Params   `json:"params,omitempty"`
	HoldFixedDays int      `json:"hold_fixed_days,omitempty"`

	// Convoluted only.
	SimpleRules       []string          `json:"simple_rules,omitempty"`
	Aggregation       AggregationType   `json:"aggregation,omitempty"`
	AggregationParams AggregationParams `json:"aggregation_params,omitempty"`
}

// Validate checks structural requirements common to both kinds.
func (d *RuleDescriptor) Validate() error {
	if d.ID == "" {
		return &ValidationError{Reason: "rule descriptor missing id"}
	}
	if d.Lookback < 0 {
		return &ValidationError{Reason: fmt.Sprintf("rule %s: negative lookback", d.ID)}
	}
	switch d.Kind {
	case RuleKindSimple:
		if d.Func == "" {
			return &ValidationError{Reason: fmt.Sprintf("rule %s: simple rule missing func", d.ID)}
		}
		if len(d.Columns) == 0 {
			return &ValidationError{Reason: fmt.Sprintf("rule %s: no input columns", d.ID)}
		}
	case RuleKindConvoluted:
		if len(d.SimpleRules) == 0 {
			return &ValidationError{Reason: fmt.Sprintf("rule %s: convoluted rule with no simple rules", d.ID)}
		}
		if d.Aggregation != AggregationCombine && d.Aggregation != AggregationStateBased {
			return &ValidationError{Reason: fmt.Sprintf("rule %s: unknown aggregation %q", d.ID, d.Aggregation)}
		}
	default:
		return &ValidationError{Reason: fmt.Sprintf("rule %s: unknown kind %q", d.ID, d.Kind)}
	}
	if d.HoldFixedDays < 0 {
		return &ValidationError{Reason: fmt.Sprintf("rule %s: negative hold_fixed_days", d.ID)}
	}
	return nil
}

// Fingerprint hashes the full descriptor. The rule-result cache stores it next
// to each result file so stale entries are rejected when parameters change
// under an unchanged id.
func (d *RuleDescriptor) Fingerprint() string {
	raw, err := json.Marshal(d)
	if err != nil {
		// Descriptors are plain data; marshalling cannot fail in practice.
		return ""
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
