package backtest

import (
	"math"

	"quant-research/internal/dto"
)

const (
	tradingSessions = 252
	riskFreeRate    = 0.02
)

// Summarize derives the performance metrics of a finished run.
func Summarize(res *Result, initCapital float64) dto.BacktestSummary {
	s := dto.BacktestSummary{TotalTrades: len(res.Trades)}
	if len(res.NAV) == 0 {
		return s
	}

	finalNAV := res.NAV[len(res.NAV)-1]
	s.FinalNAV = finalNAV
	s.RateOfReturn = (finalNAV - initCapital) / initCapital * 100
	s.SharpeRatio = sharpe(res.DailyReturns(initCapital))
	s.AnnualizedReturn = annualized(initCapital, finalNAV, len(res.NAV))
	s.MaxDrawdown, s.MaxDrawdownDays = maxDrawdown(res.NAV)
	s.Expectation = expectation(res.Trades)
	return s
}

// sharpe is the annualized excess-return ratio over a 2% risk-free rate,
// assuming 252 trading sessions per year.
func sharpe(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns) - 1)
	if variance == 0 {
		return 0
	}
	dailyRf := riskFreeRate / tradingSessions
	return (mean - dailyRf) / math.Sqrt(variance) * math.Sqrt(tradingSessions)
}

func annualized(initCapital, finalNAV float64, days int) float64 {
	if days == 0 || initCapital <= 0 || finalNAV <= 0 {
		return 0
	}
	years := float64(days) / tradingSessions
	return (math.Pow(finalNAV/initCapital, 1/years) - 1) * 100
}

// maxDrawdown reports the deepest peak-to-trough decline in percent and the
// longest stretch of days spent below a prior peak.
func maxDrawdown(nav []float64) (float64, int) {
	peak := math.Inf(-1)
	worst := 0.0
	longest, current := 0, 0
	for _, v := range nav {
		if v >= peak {
			peak = v
			current = 0
			continue
		}
		current++
		if current > longest {
			longest = current
		}
		if peak > 0 {
			if dd := (peak - v) / peak * 100; dd > worst {
				worst = dd
			}
		}
	}
	return worst, longest
}

// expectation is the average gross profit per closed trade.
func expectation(trades []dto.Trade) float64 {
	closed := 0
	total := 0.0
	for i := range trades {
		if trades[i].Open() {
			continue
		}
		closed++
		total += trades[i].Gross
	}
	if closed == 0 {
		return 0
	}
	return total / float64(closed)
}
