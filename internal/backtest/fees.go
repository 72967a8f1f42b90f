// Package backtest replays trigger tables bar by bar against a simulated
// account: a sell phase, a sized buy phase and an end-of-day mark-to-market,
// with the position-sizing policy pluggable per run.
package backtest

import "math"

// FeeSchedule prices both legs of a trade: max(min, perc × value), rounded to
// the cent. The sizer applies it on entry, the engine on exit.
type FeeSchedule struct {
	Perc float64
	Min  float64
}

// Fee returns the commission for a transaction value.
func (f FeeSchedule) Fee(value float64) float64 {
	return roundCents(math.Max(f.Min, f.Perc*value))
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
