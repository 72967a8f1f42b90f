package signal

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quant-research/internal/dto"
)

func makeSeries(t *testing.T, closes []float64) *dto.PriceSeries {
	t.Helper()
	bars := make([]dto.Bar, len(closes))
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, c := range closes {
		bars[i] = dto.Bar{
			Date:   start.AddDate(0, 0, i),
			Open:   c,
			High:   c * 1.01,
			Low:    c * 0.99,
			Close:  c,
			Volume: 1000,
		}
	}
	s, err := dto.NewPriceSeries("TEST", bars)
	require.NoError(t, err)
	return s
}

func srRule(id string, lookback int) dto.RuleDescriptor {
	return dto.RuleDescriptor{
		ID:       id,
		Kind:     dto.RuleKindSimple,
		Lookback: lookback,
		Columns:  []string{dto.ColumnClose},
		Func:     "support_resistance",
	}
}

func fixedStrategy(ruleIDs ...string) dto.StrategyDescriptor {
	return dto.StrategyDescriptor{Type: dto.StrategyFixed, Rules: ruleIDs}
}

func TestGeneratorFixedStrategy(t *testing.T) {
	// support_resistance with lookback 1 signals the sign of the one-day
	// change; positions must follow with a one-row zero prefix.
	series := makeSeries(t, []float64{10, 11, 12, 11, 10, 10, 12})
	gen, err := New(series, []dto.RuleDescriptor{srRule("sr", 1)}, fixedStrategy("sr"))
	require.NoError(t, err)

	table, err := gen.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, sig(0, 1, 1, -1, -1, 0, 1), table.Position)
	assert.Equal(t, []int{0, 1, 0, 0, 0, 0, 1}, table.EntryLong)
	assert.Equal(t, []int{0, 0, 0, 1, 0, 0, 0}, table.ExitLong)
	assert.Equal(t, []int{0, 0, 0, 1, 0, 0, 0}, table.EntryShort)
	assert.Equal(t, []int{0, 0, 0, 0, 0, 1, 0}, table.ExitShort)
}

func TestGeneratorLookbackPrefixIsZero(t *testing.T) {
	series := makeSeries(t, []float64{10, 11, 12, 13, 14, 15, 16, 17})
	gen, err := New(series, []dto.RuleDescriptor{srRule("sr", 3)}, fixedStrategy("sr"))
	require.NoError(t, err)

	table, err := gen.Run(context.Background())
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		assert.Equal(t, dto.SignalNeutral, table.Position[i])
		assert.Zero(t, table.EntryLong[i])
		assert.Zero(t, table.EntryShort[i])
	}
	assert.Equal(t, dto.SignalLong, table.Position[3])
}

func TestGeneratorHoldFixedDays(t *testing.T) {
	// A non-neutral firing is held for the next k-1 steps regardless of what
	// the rule would have said.
	series := makeSeries(t, []float64{1, 2, 1, 1, 1, 1})
	desc := srRule("sr", 1)
	desc.HoldFixedDays = 3
	gen, err := New(series, []dto.RuleDescriptor{desc}, fixedStrategy("sr"))
	require.NoError(t, err)

	_, err = gen.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, sig(1, 1, 1, 0, 0), gen.Results()["sr"])
}

func TestGeneratorConvolutedStrong(t *testing.T) {
	series := makeSeries(t, []float64{10, 11, 12, 11, 10, 12})
	descs := []dto.RuleDescriptor{
		srRule("a", 1),
		srRule("b", 1),
		{
			ID:                "both",
			Kind:              dto.RuleKindConvoluted,
			SimpleRules:       []string{"a", "b"},
			Aggregation:       dto.AggregationCombine,
			AggregationParams: dto.AggregationParams{Mode: dto.CombineStrong},
		},
	}
	gen, err := New(series, descs, fixedStrategy("both"))
	require.NoError(t, err)

	_, err = gen.Run(context.Background())
	require.NoError(t, err)

	// Identical inputs agree everywhere, so the convoluted result mirrors
	// the simple one.
	assert.Equal(t, gen.Results()["a"], gen.Results()["both"])
}

func TestGeneratorConvolutedStateCarry(t *testing.T) {
	series := makeSeries(t, []float64{10, 11, 12, 12, 10, 12})
	descs := []dto.RuleDescriptor{
		srRule("a", 1),
		{
			ID:          "state",
			Kind:        dto.RuleKindConvoluted,
			SimpleRules: []string{"a"},
			Aggregation: dto.AggregationStateBased,
			AggregationParams: dto.AggregationParams{
				Long:  [][]dto.Signal{{dto.SignalLong}},
				Short: [][]dto.Signal{{dto.SignalShort}},
				// Neutral input is not declared: the previous state carries.
			},
		},
	}
	gen, err := New(series, descs, fixedStrategy("state"))
	require.NoError(t, err)

	_, err = gen.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, sig(1, 1, 0, -1, 1), gen.Results()["a"])
	assert.Equal(t, sig(1, 1, 1, -1, 1), gen.Results()["state"])
}

func TestGeneratorReversalLaw(t *testing.T) {
	closes := []float64{10, 11, 12, 11, 10, 10, 12}
	series := makeSeries(t, closes)

	forward, err := New(series, []dto.RuleDescriptor{srRule("sr", 1)}, fixedStrategy("sr"))
	require.NoError(t, err)
	fwdTable, err := forward.Run(context.Background())
	require.NoError(t, err)

	revStrategy := fixedStrategy("sr")
	revStrategy.Reversed = true
	reversed, err := New(makeSeries(t, closes), []dto.RuleDescriptor{srRule("sr", 1)}, revStrategy)
	require.NoError(t, err)
	revTable, err := reversed.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, fwdTable.EntryLong, revTable.EntryShort)
	assert.Equal(t, fwdTable.EntryShort, revTable.EntryLong)
	assert.Equal(t, fwdTable.ExitLong, revTable.ExitShort)
	assert.Equal(t, fwdTable.ExitShort, revTable.ExitLong)
	for i := range fwdTable.Position {
		assert.Equal(t, -fwdTable.Position[i], revTable.Position[i])
	}
	for i := range forward.Results()["sr"] {
		assert.Equal(t, -forward.Results()["sr"][i], reversed.Results()["sr"][i])
	}
}

func TestGeneratorValidation(t *testing.T) {
	series := makeSeries(t, []float64{1, 2, 3, 4, 5, 6})

	tests := []struct {
		name     string
		rules    []dto.RuleDescriptor
		strategy dto.StrategyDescriptor
	}{
		{
			name:     "unknown strategy rule",
			rules:    []dto.RuleDescriptor{srRule("sr", 1)},
			strategy: fixedStrategy("nope"),
		},
		{
			name:  "learning missing params",
			rules: []dto.RuleDescriptor{srRule("sr", 1)},
			strategy: dto.StrategyDescriptor{
				Type:  dto.StrategyLearning,
				Rules: []string{"sr"},
			},
		},
		{
			name:  "review span exceeds memory span",
			rules: []dto.RuleDescriptor{srRule("sr", 1)},
			strategy: dto.StrategyDescriptor{
				Type:              dto.StrategyLearning,
				Rules:             []string{"sr"},
				MemorySpan:        5,
				ReviewSpan:        10,
				PerformanceMetric: dto.MetricDailyReturns,
				PriceLabel:        dto.ColumnClose,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(series, tt.rules, tt.strategy)
			var vErr *dto.ValidationError
			require.ErrorAs(t, err, &vErr)
		})
	}
}

func TestGeneratorMalformedMultiSeries(t *testing.T) {
	series := makeSeries(t, []float64{1, 2, 3, 4})
	desc := dto.RuleDescriptor{
		ID:       "candle",
		Kind:     dto.RuleKindSimple,
		Lookback: 1,
		Columns:  []string{dto.ColumnClose}, // engulfing needs OHLC
		Func:     "engulfing",
	}
	_, err := New(series, []dto.RuleDescriptor{desc}, fixedStrategy("candle"))
	var mErr *dto.MalformedMultiSeriesError
	require.ErrorAs(t, err, &mErr)
}

// memStore is an in-memory ResultStore for round-trip tests.
type memStore struct {
	data map[string][]dto.Signal
	fps  map[string]string
}

func newMemStore() *memStore {
	return &memStore{data: map[string][]dto.Signal{}, fps: map[string]string{}}
}

func (m *memStore) key(symbol, ruleID string) string { return symbol + "_" + ruleID }

func (m *memStore) Save(_ context.Context, symbol, ruleID, fp string, signals []dto.Signal) error {
	k := m.key(symbol, ruleID)
	m.data[k] = append([]dto.Signal(nil), signals...)
	m.fps[k] = fp
	return nil
}

func (m *memStore) Load(_ context.Context, symbol, ruleID, fp string) ([]dto.Signal, error) {
	k := m.key(symbol, ruleID)
	res, ok := m.data[k]
	if !ok || m.fps[k] != fp {
		return nil, &dto.MissingRuleResultsError{Symbol: symbol, RuleID: ruleID}
	}
	return res, nil
}

func TestGeneratorCacheRoundTrip(t *testing.T) {
	closes := []float64{10, 11, 12, 11, 10, 10, 12}
	store := newMemStore()

	first, err := New(makeSeries(t, closes), []dto.RuleDescriptor{srRule("sr", 1)}, fixedStrategy("sr"))
	require.NoError(t, err)
	firstTable, err := first.Run(context.Background())
	require.NoError(t, err)

	second, err := New(makeSeries(t, closes), []dto.RuleDescriptor{srRule("sr", 1)}, fixedStrategy("sr"),
		WithResultStore(store, false))
	require.NoError(t, err)
	// The store is empty on the first cached run.
	_, err = second.Run(context.Background())
	var missing *dto.MissingRuleResultsError
	require.ErrorAs(t, err, &missing)

	// Populate, then reload into a fresh generator: identical output.
	third, err := New(makeSeries(t, closes), []dto.RuleDescriptor{srRule("sr", 1)}, fixedStrategy("sr"),
		WithResultStore(store, false))
	require.NoError(t, err)
	srDesc := srRule("sr", 1)
	require.NoError(t, store.Save(context.Background(), "TEST", "sr", srDesc.Fingerprint(), first.Results()["sr"]))
	thirdTable, err := third.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, firstTable.Position, thirdTable.Position)
	assert.Equal(t, firstTable.EntryLong, thirdTable.EntryLong)
	assert.Equal(t, first.Results()["sr"], third.Results()["sr"])
}

func TestGeneratorLoadOnlySimpleRecomputesConvoluted(t *testing.T) {
	closes := []float64{10, 11, 12, 11, 10, 12}
	descs := []dto.RuleDescriptor{
		srRule("a", 1),
		{
			ID:                "both",
			Kind:              dto.RuleKindConvoluted,
			SimpleRules:       []string{"a"},
			Aggregation:       dto.AggregationCombine,
			AggregationParams: dto.AggregationParams{Mode: dto.CombineStrong},
		},
	}

	forward, err := New(makeSeries(t, closes), descs, fixedStrategy("both"))
	require.NoError(t, err)
	fwdTable, err := forward.Run(context.Background())
	require.NoError(t, err)

	// Only the simple rule is persisted.
	store := newMemStore()
	require.NoError(t, store.Save(context.Background(), "TEST", "a", descs[0].Fingerprint(), forward.Results()["a"]))

	// A full load demands the convoluted results too and must miss.
	strict, err := New(makeSeries(t, closes), descs, fixedStrategy("both"),
		WithResultStore(store, false))
	require.NoError(t, err)
	_, err = strict.Run(context.Background())
	var missing *dto.MissingRuleResultsError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "both", missing.RuleID)

	// load_only_simple loads the simple rule and recomputes the aggregate.
	relaxed, err := New(makeSeries(t, closes), descs, fixedStrategy("both"),
		WithResultStore(store, true))
	require.NoError(t, err)
	relTable, err := relaxed.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, forward.Results()["a"], relaxed.Results()["a"])
	assert.Equal(t, forward.Results()["both"], relaxed.Results()["both"])
	assert.Equal(t, fwdTable.Position, relTable.Position)
}

func TestGeneratorReversedRunLeavesStoredResultsIntact(t *testing.T) {
	closes := []float64{10, 11, 12, 11, 10, 10, 12}
	store := newMemStore()
	fpDesc := srRule("sr", 1)
	fp := fpDesc.Fingerprint()

	forward, err := New(makeSeries(t, closes), []dto.RuleDescriptor{srRule("sr", 1)}, fixedStrategy("sr"))
	require.NoError(t, err)
	_, err = forward.Run(context.Background())
	require.NoError(t, err)
	canonical := append([]dto.Signal(nil), forward.Results()["sr"]...)
	require.NoError(t, store.Save(context.Background(), "TEST", "sr", fp, canonical))

	revStrategy := fixedStrategy("sr")
	revStrategy.Reversed = true
	reversed, err := New(makeSeries(t, closes), []dto.RuleDescriptor{srRule("sr", 1)}, revStrategy,
		WithResultStore(store, false))
	require.NoError(t, err)
	_, err = reversed.Run(context.Background())
	require.NoError(t, err)

	// The reversed run negates its own copy of the loaded results. A later
	// load under the same fingerprint must still see the canonical signals.
	reloaded, err := store.Load(context.Background(), "TEST", "sr", fp)
	require.NoError(t, err)
	assert.Equal(t, canonical, reloaded)
	for i := range canonical {
		assert.Equal(t, -canonical[i], reversed.Results()["sr"][i])
	}
}

func TestLearnerFollowsBestRule(t *testing.T) {
	steps := 12
	up := make([]dto.Signal, steps)
	down := make([]dto.Signal, steps)
	prices := make([]float64, steps)
	for i := 0; i < steps; i++ {
		up[i] = dto.SignalLong
		down[i] = dto.SignalShort
		prices[i] = float64(100 + i) // rising market
	}
	results := map[string][]dto.Signal{"up": up, "down": down}

	strategy := dto.StrategyDescriptor{
		Type:              dto.StrategyLearning,
		Rules:             []string{"down", "up"},
		MemorySpan:        10,
		ReviewSpan:        5,
		PerformanceMetric: dto.MetricDailyReturns,
		PriceLabel:        dto.ColumnClose,
	}
	l := newLearner(strategy, RampWarmup{Step: 5}, prices, 0)

	var out []dto.Signal
	for r := 0; r < steps; r++ {
		out = append(out, l.step(r, results))
	}

	// Neutral until the first review completes, then the long rule wins in a
	// rising market.
	assert.Equal(t, sig(0, 0, 0, 0, 1, 1, 1, 1, 1, 1, 1, 1), out)
	assert.Equal(t, "up", l.followed)
}

func TestLearnerVoting(t *testing.T) {
	steps := 6
	long := make([]dto.Signal, steps)
	short := make([]dto.Signal, steps)
	prices := make([]float64, steps)
	for i := range long {
		long[i] = dto.SignalLong
		short[i] = dto.SignalShort
		prices[i] = 100
	}
	results := map[string][]dto.Signal{"a": long, "b": long, "c": short}

	strategy := dto.StrategyDescriptor{
		Type:              dto.StrategyLearning,
		Rules:             []string{"a", "b", "c"},
		MemorySpan:        5,
		ReviewSpan:        5,
		PerformanceMetric: dto.MetricVoting,
		PriceLabel:        dto.ColumnClose,
	}
	l := newLearner(strategy, RampWarmup{Step: 5}, prices, 0)

	var last dto.Signal
	for r := 0; r < steps; r++ {
		last = l.step(r, results)
	}
	assert.Equal(t, dto.SignalLong, last)
}
