package rules

import "quant-research/internal/dto"

// Trend signals the direction of a least-squares fit over the window,
// thresholded at ±0.25.
func Trend(w Window, p dto.Params) dto.Signal {
	xs := w.Values
	n := len(xs)
	if n < 2 {
		return dto.SignalNeutral
	}
	// Slope of the LSQ line over x = 0..n-1.
	xMean := float64(n-1) / 2
	yMean := sma(xs)
	var num, den float64
	for i, y := range xs {
		dx := float64(i) - xMean
		num += dx * (y - yMean)
		den += dx * dx
	}
	slope := num / den
	switch {
	case slope > 0.25:
		return dto.SignalLong
	case slope < -0.25:
		return dto.SignalShort
	default:
		return dto.SignalNeutral
	}
}

// SupportResistance signals a close beyond the reference high or low of the
// preceding window. Parameter b widens the bands multiplicatively. Parameter
// e, when set, redefines the reference levels as the most recent value of the
// preceding window exceeded more than e times by its own prefix.
func SupportResistance(w Window, p dto.Params) dto.Signal {
	xs := w.Values
	if len(xs) < 2 {
		return dto.SignalNeutral
	}
	last := xs[len(xs)-1]
	prev := xs[:len(xs)-1]
	b := p.Float("b", 0)

	high := maxOf(prev)
	low := minOf(prev)
	if p.Has("e") {
		e := p.Int("e", 0)
		if h, ok := referenceLevel(prev, e, true); ok {
			high = h
		}
		if l, ok := referenceLevel(prev, e, false); ok {
			low = l
		}
	}

	switch {
	case last > high*(1+b):
		return dto.SignalLong
	case last < low*(1-b):
		return dto.SignalShort
	default:
		return dto.SignalNeutral
	}
}

// referenceLevel scans the window from the most recent value backwards and
// returns the first value whose preceding prefix exceeds it more than e
// times. above selects the resistance (prefix values above) or support
// (prefix values below) direction.
func referenceLevel(xs []float64, e int, above bool) (float64, bool) {
	for j := len(xs) - 1; j >= 0; j-- {
		count := 0
		for k := 0; k < j; k++ {
			if (above && xs[k] > xs[j]) || (!above && xs[k] < xs[j]) {
				count++
			}
		}
		if count > e {
			return xs[j], true
		}
	}
	return 0, false
}

// MovingAverage compares the last price against a single MA, or a fast MA
// against a slow one when both spans are supplied. Params: kind
// (simple|weighted), span, fast, slow, b (multiplicative filter).
func MovingAverage(w Window, p dto.Params) dto.Signal {
	xs := w.Values
	if len(xs) == 0 {
		return dto.SignalNeutral
	}
	b := p.Float("b", 0)
	avg := sma
	if p.String("kind", "simple") == "weighted" {
		avg = wma
	}

	if p.Has("fast") && p.Has("slow") {
		fast := p.Int("fast", 0)
		slow := p.Int("slow", 0)
		if fast <= 0 || slow <= 0 || slow > len(xs) || fast > len(xs) {
			return dto.SignalNeutral
		}
		fastMA := avg(xs[len(xs)-fast:])
		slowMA := avg(xs[len(xs)-slow:])
		switch {
		case fastMA > slowMA*(1+b):
			return dto.SignalLong
		case fastMA < slowMA*(1-b):
			return dto.SignalShort
		default:
			return dto.SignalNeutral
		}
	}

	span := p.Int("span", len(xs))
	if span <= 0 || span > len(xs) {
		span = len(xs)
	}
	ma := avg(xs[len(xs)-span:])
	last := xs[len(xs)-1]
	switch {
	case last > ma*(1+b):
		return dto.SignalLong
	case last < ma*(1-b):
		return dto.SignalShort
	default:
		return dto.SignalNeutral
	}
}

// ChannelBreakOut signals a breakout from a narrow channel: when the high/low
// range of the preceding window is within the fraction channel_width of the
// low, a close beyond either edge (scaled by b) fires.
func ChannelBreakOut(w Window, p dto.Params) dto.Signal {
	xs := w.Values
	if len(xs) < 2 {
		return dto.SignalNeutral
	}
	last := xs[len(xs)-1]
	prev := xs[:len(xs)-1]
	width := p.Float("channel_width", 0.05)
	b := p.Float("b", 0)

	high := maxOf(prev)
	low := minOf(prev)
	if low == 0 || (high-low)/low > width {
		return dto.SignalNeutral
	}
	switch {
	case last > high*(1+b):
		return dto.SignalLong
	case last < low*(1-b):
		return dto.SignalShort
	default:
		return dto.SignalNeutral
	}
}

// MomentumInOscillator thresholds the last value of a precomputed oscillator
// series (ROC, SMA-of-ROC, ratio-of-MAs ROC). Params: upper, lower.
func MomentumInOscillator(w Window, p dto.Params) dto.Signal {
	xs := w.Values
	if len(xs) == 0 {
		return dto.SignalNeutral
	}
	last := xs[len(xs)-1]
	upper := p.Float("upper", p.Float("threshold", 0))
	lower := p.Float("lower", -upper)
	switch {
	case last > upper:
		return dto.SignalLong
	case last < lower:
		return dto.SignalShort
	default:
		return dto.SignalNeutral
	}
}
