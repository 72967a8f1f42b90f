package backtest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"quant-research/internal/dto"
)

func TestMaxDrawdown(t *testing.T) {
	tests := []struct {
		name     string
		nav      []float64
		wantDD   float64
		wantDays int
	}{
		{
			name:     "single trough",
			nav:      []float64{100, 120, 90, 95, 130, 110},
			wantDD:   25,
			wantDays: 2,
		},
		{
			name:     "monotonic rise",
			nav:      []float64{100, 110, 120},
			wantDD:   0,
			wantDays: 0,
		},
		{
			name:     "never recovers",
			nav:      []float64{100, 90, 80, 70},
			wantDD:   30,
			wantDays: 3,
		},
		{
			name:     "empty",
			nav:      nil,
			wantDD:   0,
			wantDays: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dd, days := maxDrawdown(tt.nav)
			assert.InDelta(t, tt.wantDD, dd, 1e-9)
			assert.Equal(t, tt.wantDays, days)
		})
	}
}

func TestSharpe(t *testing.T) {
	assert.Equal(t, 0.0, sharpe(nil))
	assert.Equal(t, 0.0, sharpe([]float64{0.01}))
	// Zero variance is undefined; reported as 0 rather than Inf.
	assert.Equal(t, 0.0, sharpe([]float64{0.01, 0.01, 0.01}))

	// Alternating returns: mean 0.005, sample stddev of {0.02, -0.01, ...}.
	got := sharpe([]float64{0.02, -0.01, 0.02, -0.01})
	assert.Greater(t, got, 0.0)
}

func TestAnnualized(t *testing.T) {
	// Doubling over one 252-session year is 100% annualized.
	assert.InDelta(t, 100, annualized(100, 200, 252), 1e-9)
	// 21% over two years compounds to 10% per year.
	assert.InDelta(t, 10, annualized(100, 121, 504), 1e-9)
	assert.Equal(t, 0.0, annualized(100, 200, 0))
	assert.Equal(t, 0.0, annualized(100, -5, 252))
}

func TestExpectation(t *testing.T) {
	exit := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	trades := []dto.Trade{
		{Gross: 10, ExitDate: exit},
		{Gross: -4, ExitDate: exit},
		{Gross: 99}, // still open, ignored
	}

	assert.InDelta(t, 3, expectation(trades), 1e-9)
	assert.Equal(t, 0.0, expectation(nil))
}

func TestSummarize(t *testing.T) {
	exit := time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)
	res := &Result{
		NAV:    []float64{1000, 1100, 1210},
		Trades: []dto.Trade{{Gross: 210, ExitDate: exit}},
	}

	got := Summarize(res, 1000)

	assert.Equal(t, 1210.0, got.FinalNAV)
	assert.InDelta(t, 21, got.RateOfReturn, 1e-9)
	assert.Equal(t, 1, got.TotalTrades)
	assert.InDelta(t, 210, got.Expectation, 1e-9)
	assert.Greater(t, got.AnnualizedReturn, 0.0)
	assert.Equal(t, 0.0, got.MaxDrawdown)
}

func TestSummarizeEmpty(t *testing.T) {
	got := Summarize(&Result{}, 1000)
	assert.Equal(t, dto.BacktestSummary{}, got)
}
