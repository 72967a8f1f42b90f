package rules

import (
	"math"

	"quant-research/internal/dto"
)

// The candle-pattern rules consume a multi-series window of OHLC columns and
// look only at the final one to three bars.

type candle struct {
	open, high, low, close float64
}

func (c candle) body() float64    { return math.Abs(c.close - c.open) }
func (c candle) bullish() bool    { return c.close > c.open }
func (c candle) bearish() bool    { return c.close < c.open }
func (c candle) upperWick() float64 {
	return c.high - math.Max(c.open, c.close)
}
func (c candle) lowerWick() float64 {
	return math.Min(c.open, c.close) - c.low
}

func candleAt(w Window, back int) (candle, bool) {
	opens, ok1 := w.Series[dto.ColumnOpen]
	highs, ok2 := w.Series[dto.ColumnHigh]
	lows, ok3 := w.Series[dto.ColumnLow]
	closes, ok4 := w.Series[dto.ColumnClose]
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return candle{}, false
	}
	i := len(closes) - 1 - back
	if i < 0 {
		return candle{}, false
	}
	return candle{open: opens[i], high: highs[i], low: lows[i], close: closes[i]}, true
}

// Hammer detects a hammer (+1, after a down bar) or hanging man (-1, after an
// up bar): a small body near the top of the range with a lower shadow at
// least twice the body.
func Hammer(w Window, p dto.Params) dto.Signal {
	cur, ok := candleAt(w, 0)
	if !ok {
		return dto.SignalNeutral
	}
	prev, ok := candleAt(w, 1)
	if !ok {
		return dto.SignalNeutral
	}
	body := cur.body()
	if body == 0 {
		return dto.SignalNeutral
	}
	if cur.lowerWick() < 2*body || cur.upperWick() > body {
		return dto.SignalNeutral
	}
	switch {
	case prev.bearish():
		return dto.SignalLong
	case prev.bullish():
		return dto.SignalShort
	default:
		return dto.SignalNeutral
	}
}

// Engulfing detects a bullish (+1) or bearish (-1) engulfing pair: the
// current body fully contains the previous, opposite-colored body.
func Engulfing(w Window, p dto.Params) dto.Signal {
	cur, ok := candleAt(w, 0)
	if !ok {
		return dto.SignalNeutral
	}
	prev, ok := candleAt(w, 1)
	if !ok {
		return dto.SignalNeutral
	}
	if prev.bearish() && cur.bullish() && cur.open <= prev.close && cur.close >= prev.open {
		return dto.SignalLong
	}
	if prev.bullish() && cur.bearish() && cur.open >= prev.close && cur.close <= prev.open {
		return dto.SignalShort
	}
	return dto.SignalNeutral
}

// Star detects a morning star (+1) or evening star (-1) over the final three
// bars: a long directional bar, a small-bodied middle bar beyond its close,
// and a third bar closing past the midpoint of the first body.
func Star(w Window, p dto.Params) dto.Signal {
	third, ok := candleAt(w, 0)
	if !ok {
		return dto.SignalNeutral
	}
	mid, ok := candleAt(w, 1)
	if !ok {
		return dto.SignalNeutral
	}
	first, ok := candleAt(w, 2)
	if !ok {
		return dto.SignalNeutral
	}
	if first.body() == 0 || mid.body() > first.body()/2 {
		return dto.SignalNeutral
	}
	firstMid := (first.open + first.close) / 2

	if first.bearish() && third.bullish() &&
		math.Max(mid.open, mid.close) < first.close && third.close > firstMid {
		return dto.SignalLong
	}
	if first.bullish() && third.bearish() &&
		math.Min(mid.open, mid.close) > first.close && third.close < firstMid {
		return dto.SignalShort
	}
	return dto.SignalNeutral
}
