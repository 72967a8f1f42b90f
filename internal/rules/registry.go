// Package rules is the registry of pure signal functions the generator
// dispatches by id. Every rule maps a fixed-length window of one or more
// series plus a parameter bundle to a ternary signal; rules hold no state and
// perform no I/O.
package rules

import (
	"fmt"
	"sort"
	"strings"

	"quant-research/internal/dto"
)

// Window is the slice of history a rule sees: either a single column of
// length lookback+1 (current bar last) or a mapping of column name to slices
// of the same length and index when the descriptor declares multiple series.
type Window struct {
	Values []float64
	Series map[string][]float64
}

// Func is a pure rule function.
type Func func(w Window, p dto.Params) dto.Signal

type entry struct {
	fn    Func
	multi bool
}

var registry = map[string]entry{
	"trend":                  {fn: Trend},
	"support_resistance":     {fn: SupportResistance},
	"moving_average":         {fn: MovingAverage},
	"channel_break_out":      {fn: ChannelBreakOut},
	"momentum_in_oscillator": {fn: MomentumInOscillator},
	"hammer":                 {fn: Hammer, multi: true},
	"engulfing":              {fn: Engulfing, multi: true},
	"star":                   {fn: Star, multi: true},
}

// Lookup resolves a rule function by name.
func Lookup(name string) (Func, error) {
	e, ok := registry[name]
	if !ok {
		return nil, &dto.ValidationError{Reason: fmt.Sprintf("unknown rule func %q (have %s)", name, strings.Join(Names(), ", "))}
	}
	return e.fn, nil
}

// MultiSeries reports whether the named rule consumes a column mapping rather
// than a single series.
func MultiSeries(name string) (bool, error) {
	e, ok := registry[name]
	if !ok {
		return false, &dto.ValidationError{Reason: fmt.Sprintf("unknown rule func %q", name)}
	}
	return e.multi, nil
}

// Names lists the registered rule functions in stable order.
func Names() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
