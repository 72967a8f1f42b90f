package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quant-research/config"
	"quant-research/internal/dto"
	"quant-research/pkg/logger"
)

type stubPriceRepo struct {
	series *dto.PriceSeries
}

func (s *stubPriceRepo) Get(_ context.Context, _ string, _, _ time.Time) (*dto.PriceSeries, error) {
	return s.series, nil
}

// recordingResultStore is an in-memory rule-result store counting traffic.
type recordingResultStore struct {
	mu       sync.Mutex
	data     map[string][]dto.Signal
	fps      map[string]string
	saves    int
	loadHits int
}

func newRecordingResultStore() *recordingResultStore {
	return &recordingResultStore{data: map[string][]dto.Signal{}, fps: map[string]string{}}
}

func (r *recordingResultStore) Save(_ context.Context, symbol, ruleID, fp string, signals []dto.Signal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := symbol + "_" + ruleID
	r.data[k] = append([]dto.Signal(nil), signals...)
	r.fps[k] = fp
	r.saves++
	return nil
}

func (r *recordingResultStore) Load(_ context.Context, symbol, ruleID, fp string) ([]dto.Signal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := symbol + "_" + ruleID
	res, ok := r.data[k]
	if !ok || r.fps[k] != fp {
		return nil, &dto.MissingRuleResultsError{Symbol: symbol, RuleID: ruleID}
	}
	r.loadHits++
	return append([]dto.Signal(nil), res...), nil
}

func testConfig() *config.Config {
	return &config.Config{
		Backtest: config.Backtest{InitCapital: 10000},
		Mining:   config.Mining{Samples: 50, Seed: 7, Workers: 2},
	}
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("error", "console")
	require.NoError(t, err)
	return log
}

func testSeries(t *testing.T, closes []float64) *dto.PriceSeries {
	t.Helper()
	bars := make([]dto.Bar, len(closes))
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, c := range closes {
		bars[i] = dto.Bar{Date: start.AddDate(0, 0, i), Open: c, High: c, Low: c, Close: c, Volume: 100}
	}
	s, err := dto.NewPriceSeries("TEST", bars)
	require.NoError(t, err)
	return s
}

func wavyCloses(n int) []float64 {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = 100 + float64(i%5) - float64((i/5)%3)
	}
	return closes
}

func srDescriptor(id string) dto.RuleDescriptor {
	return dto.RuleDescriptor{
		ID:       id,
		Kind:     dto.RuleKindSimple,
		Lookback: 1,
		Columns:  []string{dto.ColumnClose},
		Func:     "support_resistance",
	}
}

func TestMiningServiceMemoizesSimpleRules(t *testing.T) {
	store := newRecordingResultStore()
	svc := NewMiningService(testConfig(), testLogger(t),
		&stubPriceRepo{series: testSeries(t, wavyCloses(40))}, store, nil)

	req := dto.MiningRequest{
		Symbol:      "TEST",
		InitCapital: 10000,
		Configs: []dto.MiningConfig{
			{Name: "c1", Rules: []dto.RuleDescriptor{srDescriptor("sr")}},
			{Name: "c2", Rules: []dto.RuleDescriptor{srDescriptor("sr")}},
		},
	}

	first, err := svc.Run(context.Background(), req)
	require.NoError(t, err)
	require.Empty(t, first.SkippedConfigs)

	// The shared simple rule is computed once and served from the store for
	// the second configuration.
	assert.GreaterOrEqual(t, store.saves, 1)
	assert.GreaterOrEqual(t, store.loadHits, 1)
	assert.Contains(t, store.data, "TEST_sr")

	// A fully warm store reproduces the cold-run report.
	second, err := svc.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first.BestConfig, second.BestConfig)
	assert.Equal(t, first.ObservedMean, second.ObservedMean)
	assert.Equal(t, first.BootstrapPValue, second.BootstrapPValue)
	assert.Equal(t, first.PermutationPValue, second.PermutationPValue)
}

func TestBacktestServiceDerivedColumnEndToEnd(t *testing.T) {
	store := newRecordingResultStore()
	svc := NewBacktestService(testConfig(), testLogger(t),
		&stubPriceRepo{series: testSeries(t, wavyCloses(40))}, store, nil, nil)

	rule := srDescriptor("obv_break")
	rule.Columns = []string{"obv"}

	req := dto.BacktestRequest{
		Symbols:     []string{"TEST"},
		Rules:       []dto.RuleDescriptor{rule},
		Derived:     []dto.DerivedColumn{{Name: "obv", Kind: dto.DerivedOBV}},
		Strategy:    dto.StrategyDescriptor{Type: dto.StrategyFixed, Rules: []string{"obv_break"}},
		InitCapital: 10000,
	}

	resp, err := svc.Run(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, resp.NAV, 40)

	// Derived definitions are outside the rule fingerprint, so the store
	// stays untouched.
	assert.Zero(t, store.saves)
	assert.Zero(t, store.loadHits)
}

func TestBacktestServiceUnknownDerivedColumnFails(t *testing.T) {
	svc := NewBacktestService(testConfig(), testLogger(t),
		&stubPriceRepo{series: testSeries(t, wavyCloses(20))}, newRecordingResultStore(), nil, nil)

	rule := srDescriptor("osc_break")
	rule.Columns = []string{"osc"}

	req := dto.BacktestRequest{
		Symbols:     []string{"TEST"},
		Rules:       []dto.RuleDescriptor{rule},
		Strategy:    dto.StrategyDescriptor{Type: dto.StrategyFixed, Rules: []string{"osc_break"}},
		InitCapital: 10000,
	}

	_, err := svc.Run(context.Background(), req)
	var missing *dto.MissingDataError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "osc", missing.Field)
}
