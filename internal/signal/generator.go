// Package signal composes rule results into per-date trigger sequences. The
// generator walks the price series once, evaluates every declared rule at
// each bar, applies the strategy (fixed priority or performance learning) and
// synthesizes the four entry/exit triggers plus the derived position track.
package signal

import (
	"context"
	"fmt"

	"quant-research/internal/dto"
	"quant-research/internal/rules"
	"quant-research/pkg/logger"
)

// ResultStore persists per-rule signal sequences keyed by (symbol, rule id).
// The fingerprint guards against cache hits for a rule whose parameters
// changed under an unchanged id.
type ResultStore interface {
	Save(ctx context.Context, symbol, ruleID, fingerprint string, signals []dto.Signal) error
	Load(ctx context.Context, symbol, ruleID, fingerprint string) ([]dto.Signal, error)
}

// Option configures a Generator.
type Option func(*Generator)

// WithResultStore wires rule-result persistence. When loadOnlySimple is set,
// only simple-rule results must be present on load and convoluted results are
// recomputed.
func WithResultStore(store ResultStore, loadOnlySimple bool) Option {
	return func(g *Generator) {
		g.store = store
		g.loadOnlySimple = loadOnlySimple
	}
}

// WithWarmupPolicy overrides the learning review warm-up ramp.
func WithWarmupPolicy(p WarmupPolicy) Option {
	return func(g *Generator) { g.warmup = p }
}

// WithLogger attaches a logger; the generator is silent without one.
func WithLogger(log *logger.Logger) Option {
	return func(g *Generator) { g.log = log }
}

type simpleRule struct {
	desc  dto.RuleDescriptor
	fn    rules.Func
	multi bool
}

// Generator evaluates a rule set and a strategy over one symbol's series.
type Generator struct {
	log      *logger.Logger
	series   *dto.PriceSeries
	strategy dto.StrategyDescriptor

	simples    []simpleRule
	convoluted []dto.RuleDescriptor
	descByID   map[string]dto.RuleDescriptor

	maxLookback int
	cols        map[string][]float64

	results  map[string][]dto.Signal
	holdBufs map[string][]dto.Signal
	loaded   map[string]bool

	store          ResultStore
	loadOnlySimple bool
	warmup         WarmupPolicy
}

// New validates the descriptors and strategy and prepares a generator. The
// series is read-only; a generator is good for one Run.
func New(series *dto.PriceSeries, ruleDescs []dto.RuleDescriptor, strategy dto.StrategyDescriptor, opts ...Option) (*Generator, error) {
	if err := strategy.Validate(); err != nil {
		return nil, err
	}

	g := &Generator{
		series:   series,
		strategy: strategy,
		descByID: make(map[string]dto.RuleDescriptor, len(ruleDescs)),
		cols:     make(map[string][]float64),
		results:  make(map[string][]dto.Signal, len(ruleDescs)),
		holdBufs: make(map[string][]dto.Signal),
		loaded:   make(map[string]bool),
		warmup:   RampWarmup{Step: 5},
	}
	for _, opt := range opts {
		opt(g)
	}

	for _, d := range ruleDescs {
		if err := d.Validate(); err != nil {
			return nil, err
		}
		if _, dup := g.descByID[d.ID]; dup {
			return nil, &dto.ValidationError{Reason: fmt.Sprintf("duplicate rule id %q", d.ID)}
		}
		g.descByID[d.ID] = d

		switch d.Kind {
		case dto.RuleKindSimple:
			fn, err := rules.Lookup(d.Func)
			if err != nil {
				return nil, err
			}
			multi, err := rules.MultiSeries(d.Func)
			if err != nil {
				return nil, err
			}
			if multi && len(d.Columns) < 2 {
				return nil, &dto.MalformedMultiSeriesError{RuleID: d.ID, Reason: "rule func expects multiple series"}
			}
			if !multi && len(d.Columns) != 1 {
				return nil, &dto.MalformedMultiSeriesError{RuleID: d.ID, Reason: "rule func expects a single series"}
			}
			for _, name := range d.Columns {
				col, err := series.Column(name)
				if err != nil {
					return nil, err
				}
				g.cols[name] = col
			}
			if d.Lookback > g.maxLookback {
				g.maxLookback = d.Lookback
			}
			g.simples = append(g.simples, simpleRule{desc: d, fn: fn, multi: multi})
		case dto.RuleKindConvoluted:
			g.convoluted = append(g.convoluted, d)
		}
	}

	for _, d := range g.convoluted {
		for _, id := range d.SimpleRules {
			ref, ok := g.descByID[id]
			if !ok || ref.Kind != dto.RuleKindSimple {
				return nil, &dto.ValidationError{Reason: fmt.Sprintf("convoluted rule %s references unknown simple rule %q", d.ID, id)}
			}
		}
	}
	for _, id := range strategy.Rules {
		if _, ok := g.descByID[id]; !ok {
			return nil, &dto.ValidationError{Reason: fmt.Sprintf("strategy references unknown rule %q", id)}
		}
	}
	return g, nil
}

// MaxLookback returns the widest simple-rule lookback; the first MaxLookback
// rows of the output carry no triggers.
func (g *Generator) MaxLookback() int { return g.maxLookback }

// Results exposes the per-rule signal sequences computed by Run.
func (g *Generator) Results() map[string][]dto.Signal { return g.results }

// Run evaluates every step and returns the merged trigger table.
func (g *Generator) Run(ctx context.Context) (*dto.TriggerTable, error) {
	n := g.series.Len()
	steps := n - g.maxLookback
	if steps <= 0 {
		return nil, &dto.ValidationError{Reason: fmt.Sprintf("series %s shorter than max lookback %d", g.series.Symbol, g.maxLookback)}
	}

	if g.store != nil {
		if err := g.loadResults(ctx, steps); err != nil {
			return nil, err
		}
	}

	var learn *learner
	if g.strategy.Type == dto.StrategyLearning {
		learn = newLearner(g.strategy, g.warmup, g.priceColumn(), g.maxLookback)
	}

	initial := make([]dto.Signal, steps)
	for i := g.maxLookback; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r := i - g.maxLookback

		for _, sr := range g.simples {
			if g.loaded[sr.desc.ID] {
				continue
			}
			g.results[sr.desc.ID] = append(g.results[sr.desc.ID], g.evalSimple(sr, i))
		}
		for _, d := range g.convoluted {
			if g.loaded[d.ID] {
				continue
			}
			g.results[d.ID] = append(g.results[d.ID], g.aggregate(d, r))
		}

		if learn != nil {
			initial[r] = learn.step(r, g.results)
		} else {
			initial[r] = g.fixedSignal(r)
		}
	}

	set := synthesize(initial, g.strategy.Constraints.WaitEntryConfirmation, g.strategy.Constraints.HoldXDays)

	if g.strategy.Reversed {
		g.reverse(set)
	}

	table := g.buildTable(set)

	// Persisting reversed results would poison the cache for the canonical
	// direction, so only non-reversed strategies write.
	if g.store != nil && !g.strategy.Reversed {
		if err := g.saveResults(ctx); err != nil {
			return nil, err
		}
	}
	return table, nil
}

func (g *Generator) priceColumn() []float64 {
	label := g.strategy.PriceLabel
	if label == "" {
		label = dto.ColumnClose
	}
	col, err := g.series.Column(label)
	if err != nil {
		// Validate guarantees the close column exists; fall back to it.
		col, _ = g.series.Column(dto.ColumnClose)
	}
	return col
}

// evalSimple reuses a held result when the sticky buffer is non-empty,
// otherwise invokes the rule on the window ending at bar i. A non-neutral
// result with hold_fixed_days = k refills the buffer with k-1 copies.
func (g *Generator) evalSimple(sr simpleRule, i int) dto.Signal {
	id := sr.desc.ID
	if sr.desc.HoldFixedDays > 0 {
		if buf := g.holdBufs[id]; len(buf) > 0 {
			g.holdBufs[id] = buf[1:]
			return buf[0]
		}
	}

	sig := sr.fn(g.window(sr, i), sr.desc.Params)

	if k := sr.desc.HoldFixedDays; k > 1 && sig != dto.SignalNeutral {
		buf := make([]dto.Signal, k-1)
		for j := range buf {
			buf[j] = sig
		}
		g.holdBufs[id] = buf
	}
	return sig
}

func (g *Generator) window(sr simpleRule, i int) rules.Window {
	lo := i - sr.desc.Lookback
	if sr.multi {
		series := make(map[string][]float64, len(sr.desc.Columns))
		for _, name := range sr.desc.Columns {
			series[name] = g.cols[name][lo : i+1]
		}
		return rules.Window{Series: series}
	}
	return rules.Window{Values: g.cols[sr.desc.Columns[0]][lo : i+1]}
}

// aggregate combines the just-computed simple-rule outputs at result index r.
func (g *Generator) aggregate(d dto.RuleDescriptor, r int) dto.Signal {
	inputs := make([]dto.Signal, len(d.SimpleRules))
	for j, id := range d.SimpleRules {
		inputs[j] = g.results[id][r]
	}

	switch d.Aggregation {
	case dto.AggregationCombine:
		if d.AggregationParams.Mode == dto.CombineMajorityVoting {
			return majority(inputs)
		}
		return unanimous(inputs)
	case dto.AggregationStateBased:
		if s, ok := matchState(inputs, d.AggregationParams); ok {
			return s
		}
		// No declared state matched: carry the previous state.
		if prev := g.results[d.ID]; len(prev) > 0 {
			return prev[len(prev)-1]
		}
		return dto.SignalNeutral
	default:
		return dto.SignalNeutral
	}
}

func unanimous(inputs []dto.Signal) dto.Signal {
	first := inputs[0]
	for _, v := range inputs[1:] {
		if v != first {
			return dto.SignalNeutral
		}
	}
	return first
}

func majority(inputs []dto.Signal) dto.Signal {
	counts := map[dto.Signal]int{}
	for _, v := range inputs {
		counts[v]++
	}
	best, bestCount, tied := dto.SignalNeutral, -1, false
	for _, s := range []dto.Signal{dto.SignalShort, dto.SignalNeutral, dto.SignalLong} {
		switch {
		case counts[s] > bestCount:
			best, bestCount, tied = s, counts[s], false
		case counts[s] == bestCount:
			tied = true
		}
	}
	if tied {
		return dto.SignalNeutral
	}
	return best
}

func matchState(inputs []dto.Signal, p dto.AggregationParams) (dto.Signal, bool) {
	if containsTuple(p.Long, inputs) {
		return dto.SignalLong, true
	}
	if containsTuple(p.Short, inputs) {
		return dto.SignalShort, true
	}
	if containsTuple(p.Neutral, inputs) {
		return dto.SignalNeutral, true
	}
	return dto.SignalNeutral, false
}

func containsTuple(set [][]dto.Signal, tuple []dto.Signal) bool {
	for _, candidate := range set {
		if len(candidate) != len(tuple) {
			continue
		}
		match := true
		for i := range candidate {
			if candidate[i] != tuple[i] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// fixedSignal walks the strategy rules in priority order and adopts the first
// non-neutral output.
func (g *Generator) fixedSignal(r int) dto.Signal {
	for _, id := range g.strategy.Rules {
		if v := g.results[id][r]; v != dto.SignalNeutral {
			return v
		}
	}
	return dto.SignalNeutral
}

// reverse negates every rule result and position and swaps the long/short
// trigger pairs. Applying it twice restores the original signals.
func (g *Generator) reverse(set *triggerSet) {
	for id, res := range g.results {
		for i, v := range res {
			res[i] = -v
		}
		g.results[id] = res
	}
	set.entryLong, set.entryShort = set.entryShort, set.entryLong
	set.exitLong, set.exitShort = set.exitShort, set.exitLong
	for i, p := range set.positions {
		set.positions[i] = -p
	}
}

func (g *Generator) buildTable(set *triggerSet) *dto.TriggerTable {
	label := g.strategy.PriceLabel
	if label == "" {
		label = dto.ColumnClose
	}
	table := dto.NewTriggerTable(g.series.Symbol, label, g.series.Dates)
	for _, name := range g.series.ColumnNames() {
		col, _ := g.series.Column(name)
		table.Prices[name] = col
	}
	for r := range set.positions {
		i := g.maxLookback + r
		table.EntryLong[i] = set.entryLong[r]
		table.ExitLong[i] = set.exitLong[r]
		table.EntryShort[i] = set.entryShort[r]
		table.ExitShort[i] = set.exitShort[r]
		table.Position[i] = set.positions[r]
	}
	return table
}

func (g *Generator) loadResults(ctx context.Context, steps int) error {
	for id, d := range g.descByID {
		if g.loadOnlySimple && d.Kind != dto.RuleKindSimple {
			continue
		}
		res, err := g.store.Load(ctx, g.series.Symbol, id, d.Fingerprint())
		if err != nil {
			return err
		}
		if len(res) != steps {
			return &dto.LengthMismatchError{ID: id, Want: steps, Got: len(res)}
		}
		// Reversal negates results in place, so never share the store's slice.
		g.results[id] = append([]dto.Signal(nil), res...)
		g.loaded[id] = true
	}
	return nil
}

func (g *Generator) saveResults(ctx context.Context) error {
	for id, res := range g.results {
		d := g.descByID[id]
		if err := g.store.Save(ctx, g.series.Symbol, id, d.Fingerprint(), res); err != nil {
			if g.log != nil {
				g.log.ErrorContext(ctx, "Failed to persist rule results",
					logger.StringField("symbol", g.series.Symbol),
					logger.StringField("rule_id", id),
					logger.ErrorField(err),
				)
			}
			return err
		}
	}
	return nil
}
