// Package mining implements the statistical validation layer for rule
// mining: White's Reality Check bootstrap and a Monte Carlo permutation
// test, both calibrating the best-of-K statistic against a null that best-of
// selection alone would produce.
package mining

import (
	"context"
	"math/rand"
	"sort"

	"golang.org/x/sync/errgroup"

	"quant-research/internal/dto"
	"quant-research/pkg/logger"
)

// Validator draws S null samples for either test. A fixed Seed makes runs
// reproducible; Workers bounds the sampling parallelism.
type Validator struct {
	Samples int
	Seed    int64
	Workers int

	log *logger.Logger
}

func NewValidator(log *logger.Logger, samples int, seed int64, workers int) *Validator {
	if samples <= 0 {
		samples = 1000
	}
	if workers <= 0 {
		workers = 4
	}
	return &Validator{Samples: samples, Seed: seed, Workers: workers, log: log}
}

// TestResult reports the best observed rule against the null distribution.
type TestResult struct {
	BestRule     string
	ObservedMean float64
	PValue       float64
	Samples      int
}

// RealityCheck runs White's Reality Check over aligned daily-return series.
// Each series is mean-centered to build the null; every bootstrap sample
// redraws the date axis with replacement and records the maximum mean across
// rules. The p-value is the fraction of sample maxima at or above the
// observed best mean.
func (v *Validator) RealityCheck(ctx context.Context, returns map[string][]float64) (*TestResult, error) {
	ids, n, err := alignedIDs(returns)
	if err != nil {
		return nil, err
	}

	bestRule := ""
	observed := 0.0
	centered := make([][]float64, len(ids))
	for k, id := range ids {
		m := mean(returns[id])
		if k == 0 || m > observed {
			observed = m
			bestRule = id
		}
		c := make([]float64, n)
		for i, r := range returns[id] {
			c[i] = r - m
		}
		centered[k] = c
	}

	stats, err := v.sample(ctx, func(rng *rand.Rand) float64 {
		idx := make([]int, n)
		for i := range idx {
			idx[i] = rng.Intn(n)
		}
		best := 0.0
		for k, c := range centered {
			sum := 0.0
			for _, i := range idx {
				sum += c[i]
			}
			if m := sum / float64(n); k == 0 || m > best {
				best = m
			}
		}
		return best
	})
	if err != nil {
		return nil, err
	}

	res := &TestResult{
		BestRule:     bestRule,
		ObservedMean: observed,
		PValue:       pValue(stats, observed),
		Samples:      v.Samples,
	}
	if v.log != nil {
		v.log.InfoContext(ctx, "Reality check finished",
			logger.StringField("best_rule", res.BestRule),
			logger.Field("observed_mean", res.ObservedMean),
			logger.Field("p_value", res.PValue),
		)
	}
	return res, nil
}

// sample draws v.Samples statistics in parallel. Every sample owns an rng
// seeded from a master sequence, so the output is identical regardless of
// worker count.
func (v *Validator) sample(ctx context.Context, draw func(rng *rand.Rand) float64) ([]float64, error) {
	seeds := make([]int64, v.Samples)
	master := rand.New(rand.NewSource(v.Seed))
	for i := range seeds {
		seeds[i] = master.Int63()
	}

	stats := make([]float64, v.Samples)
	g, ctx := errgroup.WithContext(ctx)
	chunk := (v.Samples + v.Workers - 1) / v.Workers
	for w := 0; w < v.Workers; w++ {
		lo := w * chunk
		hi := lo + chunk
		if hi > v.Samples {
			hi = v.Samples
		}
		if lo >= hi {
			break
		}
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				stats[i] = draw(rand.New(rand.NewSource(seeds[i])))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return stats, nil
}

func pValue(stats []float64, observed float64) float64 {
	count := 0
	for _, s := range stats {
		if s >= observed {
			count++
		}
	}
	return float64(count) / float64(len(stats))
}

// alignedIDs validates that all series share one length and returns the rule
// ids in sorted order.
func alignedIDs(series map[string][]float64) ([]string, int, error) {
	if len(series) == 0 {
		return nil, 0, &dto.ValidationError{Reason: "no series to validate"}
	}
	ids := make([]string, 0, len(series))
	for id := range series {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	n := len(series[ids[0]])
	if n == 0 {
		return nil, 0, &dto.ValidationError{Reason: "empty series"}
	}
	for _, id := range ids {
		if len(series[id]) != n {
			return nil, 0, &dto.LengthMismatchError{ID: id, Want: n, Got: len(series[id])}
		}
	}
	return ids, n, nil
}

func mean(xs []float64) float64 {
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
