package rules

// Small helpers shared by the rule functions plus the derived-series
// constructors the momentum and volume rules consume.

func sma(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range xs {
		sum += v
	}
	return sum / float64(len(xs))
}

// wma weights the most recent value highest: weights 1..n.
func wma(xs []float64) float64 {
	n := len(xs)
	if n == 0 {
		return 0
	}
	var sum, weight float64
	for i, v := range xs {
		w := float64(i + 1)
		sum += v * w
		weight += w
	}
	return sum / weight
}

func maxOf(xs []float64) float64 {
	m := xs[0]
	for _, v := range xs[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func minOf(xs []float64) float64 {
	m := xs[0]
	for _, v := range xs[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

// ROC is the n-period rate of change, in percent, aligned to the input; the
// first n entries are zero.
func ROC(xs []float64, n int) []float64 {
	out := make([]float64, len(xs))
	for i := n; i < len(xs); i++ {
		if xs[i-n] != 0 {
			out[i] = (xs[i] - xs[i-n]) / xs[i-n] * 100
		}
	}
	return out
}

// SMAOfROC smooths the n-period ROC with an m-period simple moving average.
func SMAOfROC(xs []float64, n, m int) []float64 {
	roc := ROC(xs, n)
	out := make([]float64, len(roc))
	for i := m - 1; i < len(roc); i++ {
		out[i] = sma(roc[i-m+1 : i+1])
	}
	return out
}

// RatioMAROC is the rate of change of the ratio between a fast and a slow
// simple moving average.
func RatioMAROC(xs []float64, fast, slow, n int) []float64 {
	ratio := make([]float64, len(xs))
	for i := slow - 1; i < len(xs); i++ {
		s := sma(xs[i-slow+1 : i+1])
		if s != 0 {
			ratio[i] = sma(xs[i-fast+1:i+1]) / s
		}
	}
	return ROC(ratio, n)
}

// OnBalanceVolume is the cumulative signed volume series: volume added on up
// closes, subtracted on down closes. Consumed as a price series by the MA
// rules.
func OnBalanceVolume(closes, volumes []float64) []float64 {
	out := make([]float64, len(closes))
	for i := 1; i < len(closes); i++ {
		switch {
		case closes[i] > closes[i-1]:
			out[i] = out[i-1] + volumes[i]
		case closes[i] < closes[i-1]:
			out[i] = out[i-1] - volumes[i]
		default:
			out[i] = out[i-1]
		}
	}
	return out
}
