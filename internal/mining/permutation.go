package mining

import (
	"context"
	"math/rand"

	"quant-research/internal/dto"
	"quant-research/pkg/logger"
)

// Permutation runs the Monte Carlo permutation test. Price changes are shared
// across rules; each trial permutes the price-change axis while the position
// series stay in place, so a rule's holding pattern survives but any real
// alignment between signals and moves is destroyed. The observed statistic is
// the best mean of price_change × position across rules.
func (v *Validator) Permutation(ctx context.Context, priceChanges []float64, positions map[string][]dto.Signal) (*TestResult, error) {
	n := len(priceChanges)
	if n == 0 {
		return nil, &dto.ValidationError{Reason: "empty price-change series"}
	}
	pos := make(map[string][]float64, len(positions))
	for id, p := range positions {
		if len(p) != n {
			return nil, &dto.LengthMismatchError{ID: id, Want: n, Got: len(p)}
		}
		f := make([]float64, n)
		for i, s := range p {
			f[i] = float64(s)
		}
		pos[id] = f
	}
	ids, _, err := alignedIDs(pos)
	if err != nil {
		return nil, err
	}

	bestRule := ""
	observed := 0.0
	for k, id := range ids {
		sum := 0.0
		for i, c := range priceChanges {
			sum += c * pos[id][i]
		}
		if m := sum / float64(n); k == 0 || m > observed {
			observed = m
			bestRule = id
		}
	}

	stats, err := v.sample(ctx, func(rng *rand.Rand) float64 {
		perm := rng.Perm(n)
		best := 0.0
		for k, id := range ids {
			sum := 0.0
			for i, j := range perm {
				sum += priceChanges[j] * pos[id][i]
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
		v.log.InfoContext(ctx, "Permutation test finished",
			logger.StringField("best_rule", res.BestRule),
			logger.Field("observed_mean", res.ObservedMean),
			logger.Field("p_value", res.PValue),
		)
	}
	return res, nil
}

// Significance maps a p-value onto the reporting bands.
func Significance(p float64) string {
	switch {
	case p <= 0.001:
		return "highly significant"
	case p <= 0.01:
		return "very significant"
	case p <= 0.05:
		return "significant"
	default:
		return "no evidence"
	}
}

// PriceChanges derives the absolute day-over-day change series from a price
// track; the output is one element shorter than the input.
func PriceChanges(prices []float64) []float64 {
	if len(prices) < 2 {
		return nil
	}
	out := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		out[i-1] = prices[i] - prices[i-1]
	}
	return out
}
