package signal

import (
	"math"

	"quant-research/internal/dto"
)

// WarmupPolicy controls how the effective review interval of a learning
// strategy ramps up towards the configured review span. The default grows in
// increments of 5; alternatives can be plugged in via WithWarmupPolicy.
type WarmupPolicy interface {
	Next(current int) int
}

// RampWarmup grows the interval by a fixed step per review.
type RampWarmup struct {
	Step int
}

func (w RampWarmup) Next(current int) int { return current + w.Step }

// learner holds the mutable state of a learning strategy between steps.
type learner struct {
	strategy    dto.StrategyDescriptor
	warmup      WarmupPolicy
	prices      []float64
	maxLookback int

	interval int
	counter  int
	followed string
	voted    dto.Signal
	reviewed bool

	// Full metric history per rule, used for tie-breaking.
	history map[string][]float64
}

func newLearner(strategy dto.StrategyDescriptor, warmup WarmupPolicy, prices []float64, maxLookback int) *learner {
	interval := 5
	if strategy.ReviewSpan < interval {
		interval = strategy.ReviewSpan
	}
	return &learner{
		strategy:    strategy,
		warmup:      warmup,
		prices:      prices,
		maxLookback: maxLookback,
		interval:    interval,
		history:     make(map[string][]float64, len(strategy.Rules)),
	}
}

// step advances the review counter and returns the strategy signal at result
// index r. Before the first completed review the learner emits neutral.
func (l *learner) step(r int, results map[string][]dto.Signal) dto.Signal {
	l.counter++
	if l.counter >= l.interval {
		l.review(r, results)
		l.counter = 0
		next := l.warmup.Next(l.interval)
		if next > l.strategy.ReviewSpan {
			next = l.strategy.ReviewSpan
		}
		l.interval = next
	}

	if !l.reviewed {
		return dto.SignalNeutral
	}
	if l.strategy.PerformanceMetric == dto.MetricVoting {
		return l.voted
	}
	if l.followed == "" {
		return dto.SignalNeutral
	}
	return results[l.followed][r]
}

// review recomputes the performance metric over the trailing memory-span
// window (truncated to available history) and reselects the followed rule, or
// the voted position for the voting metric.
func (l *learner) review(r int, results map[string][]dto.Signal) {
	l.reviewed = true
	start := r - l.strategy.MemorySpan + 1
	if start < 0 {
		start = 0
	}

	if l.strategy.PerformanceMetric == dto.MetricVoting {
		l.voted = l.vote(start, r, results)
		return
	}

	best := ""
	bestMetric := math.Inf(-1)
	var tiedWith []string
	for _, id := range l.strategy.Rules {
		m := l.metric(results[id], start, r)
		l.history[id] = append(l.history[id], m)
		switch {
		case m > bestMetric:
			best, bestMetric = id, m
			tiedWith = tiedWith[:0]
		case m == bestMetric:
			tiedWith = append(tiedWith, id)
		}
	}
	if len(tiedWith) > 0 {
		best = l.breakTie(append([]string{best}, tiedWith...))
	}
	l.followed = best
}

// vote aggregates position counts across all candidate rules over the window
// and picks the strict plurality; ties yield neutral.
func (l *learner) vote(start, end int, results map[string][]dto.Signal) dto.Signal {
	counts := map[dto.Signal]int{}
	for _, id := range l.strategy.Rules {
		res := results[id]
		for t := start; t <= end && t < len(res); t++ {
			counts[res[t]]++
		}
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

// metric scores one rule over result indices [start, end].
func (l *learner) metric(res []dto.Signal, start, end int) float64 {
	var sum float64
	var held int
	count := 0
	for t := start; t <= end && t < len(res); t++ {
		i := t + l.maxLookback
		var dr, lr float64
		if i > 0 && l.prices[i-1] != 0 {
			dr = l.prices[i]/l.prices[i-1] - 1
			lr = math.Log(l.prices[i] / l.prices[i-1])
		}
		sig := float64(res[t])
		switch l.strategy.PerformanceMetric {
		case dto.MetricDailyReturns:
			sum += dr * sig
		case dto.MetricAvgLogReturns, dto.MetricAvgLogReturnsHeldOnly:
			sum += lr * sig
			if res[t] != dto.SignalNeutral {
				held++
			}
		}
		count++
	}
	switch l.strategy.PerformanceMetric {
	case dto.MetricDailyReturns:
		return sum
	case dto.MetricAvgLogReturns:
		if count == 0 {
			return 0
		}
		return sum / float64(count)
	case dto.MetricAvgLogReturnsHeldOnly:
		if held == 0 {
			return 0
		}
		return sum / float64(held)
	default:
		return 0
	}
}

// breakTie prefers the rule with the best mean historical metric; a remaining
// tie picks the first in strategy order.
func (l *learner) breakTie(ids []string) string {
	best := ""
	bestMean := math.Inf(-1)
	for _, id := range l.strategy.Rules {
		if !containsString(ids, id) {
			continue
		}
		m := mean(l.history[id])
		if m > bestMean {
			best, bestMean = id, m
		}
	}
	return best
}

func containsString(xs []string, s string) bool {
	for _, v := range xs {
		if v == s {
			return true
		}
	}
	return false
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range xs {
		sum += v
	}
	return sum / float64(len(xs))
}
