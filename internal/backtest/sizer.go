package backtest

import (
	"math"
	"math/rand"
	"sort"

	"quant-research/internal/dto"
)

// Candidate is one entry trigger offered to the position sizer.
type Candidate struct {
	Symbol   string
	Side     dto.TradeSide
	Price    float64
	StopLoss *float64
}

// Purchase is a sized allocation returned by a sizer.
type Purchase struct {
	Symbol   string
	Side     dto.TradeSide
	Shares   int64
	TrxValue float64
	Fee      float64
}

// Sizer turns the day's candidates into zero or more purchases, given the
// cash still available.
type Sizer interface {
	Allocate(cash float64, candidates []Candidate) ([]Purchase, error)
}

// OrderMode fixes the iteration order over same-day candidates.
type OrderMode string

const (
	OrderAlphabetical      OrderMode = "alphabetical"
	OrderRandom            OrderMode = "random"
	OrderCheapest          OrderMode = "cheapest"
	OrderMostExpensive     OrderMode = "most-expensive"
	OrderVolatilityHighest OrderMode = "volatility-highest"
	OrderVolatilityLowest  OrderMode = "volatility-lowest"
	OrderRRR               OrderMode = "rrr"
)

// sortCandidates orders candidates in place. The random mode uses the
// provided source so runs stay reproducible under a fixed seed.
func sortCandidates(cands []Candidate, mode OrderMode, vol, rrr map[string]float64, rng *rand.Rand) {
	switch mode {
	case OrderRandom:
		if rng != nil {
			rng.Shuffle(len(cands), func(i, j int) { cands[i], cands[j] = cands[j], cands[i] })
		}
	case OrderCheapest:
		sort.SliceStable(cands, func(i, j int) bool { return cands[i].Price < cands[j].Price })
	case OrderMostExpensive:
		sort.SliceStable(cands, func(i, j int) bool { return cands[i].Price > cands[j].Price })
	case OrderVolatilityHighest:
		sort.SliceStable(cands, func(i, j int) bool { return vol[cands[i].Symbol] > vol[cands[j].Symbol] })
	case OrderVolatilityLowest:
		sort.SliceStable(cands, func(i, j int) bool { return vol[cands[i].Symbol] < vol[cands[j].Symbol] })
	case OrderRRR:
		sort.SliceStable(cands, func(i, j int) bool { return rrr[cands[i].Symbol] < rrr[cands[j].Symbol] })
	default: // alphabetical
		sort.SliceStable(cands, func(i, j int) bool { return cands[i].Symbol < cands[j].Symbol })
	}
}

// affordableShares reduces the share count until value plus fee fits in cash.
func affordableShares(shares int64, price, cash float64, fees FeeSchedule) int64 {
	for shares > 0 {
		value := float64(shares) * price
		if value+fees.Fee(value) <= cash {
			return shares
		}
		shares--
	}
	return 0
}

// MaxFirstEncountered spends all available cash on the first affordable
// candidate in sort order.
type MaxFirstEncountered struct {
	Fees       FeeSchedule
	Mode       OrderMode
	Volatility map[string]float64
	Rand       *rand.Rand
}

func (s *MaxFirstEncountered) Allocate(cash float64, candidates []Candidate) ([]Purchase, error) {
	cands := append([]Candidate(nil), candidates...)
	sortCandidates(cands, s.Mode, s.Volatility, nil, s.Rand)

	for _, c := range cands {
		if c.Price <= 0 {
			continue
		}
		shares := affordableShares(int64(cash/c.Price), c.Price, cash, s.Fees)
		if shares == 0 {
			continue
		}
		value := float64(shares) * c.Price
		return []Purchase{{
			Symbol:   c.Symbol,
			Side:     c.Side,
			Shares:   shares,
			TrxValue: value,
			Fee:      s.Fees.Fee(value),
		}}, nil
	}
	return nil, nil
}

// FixedCapitalPerc buys up to perc × capital worth of each candidate in sort
// order until cash runs out or candidates are depleted.
type FixedCapitalPerc struct {
	Fees       FeeSchedule
	Mode       OrderMode
	Perc       float64
	Capital    float64
	Volatility map[string]float64
	Rand       *rand.Rand
}

func (s *FixedCapitalPerc) Allocate(cash float64, candidates []Candidate) ([]Purchase, error) {
	cands := append([]Candidate(nil), candidates...)
	sortCandidates(cands, s.Mode, s.Volatility, nil, s.Rand)

	var out []Purchase
	for _, c := range cands {
		if cash <= 0 {
			break
		}
		if c.Price <= 0 {
			continue
		}
		budget := math.Min(s.Perc*s.Capital, cash)
		shares := affordableShares(int64(budget/c.Price), c.Price, cash, s.Fees)
		if shares == 0 {
			continue
		}
		value := float64(shares) * c.Price
		fee := s.Fees.Fee(value)
		out = append(out, Purchase{Symbol: c.Symbol, Side: c.Side, Shares: shares, TrxValue: value, Fee: fee})
		cash -= value + fee
	}
	return out, nil
}

// PercentageRisk sizes each position so that the loss at the stop level is at
// most risk × capital. Candidates must carry a stop-loss; a stop equal to the
// price is replaced by a synthetic stop fallbackSL away.
type PercentageRisk struct {
	Fees       FeeSchedule
	Mode       OrderMode
	Risk       float64
	FallbackSL float64
	Capital    float64
	Volatility map[string]float64
	Rand       *rand.Rand
}

func (s *PercentageRisk) Allocate(cash float64, candidates []Candidate) ([]Purchase, error) {
	cands := append([]Candidate(nil), candidates...)
	sortCandidates(cands, s.Mode, s.Volatility, nil, s.Rand)

	var out []Purchase
	for _, c := range cands {
		if cash <= 0 {
			break
		}
		if c.StopLoss == nil {
			return nil, &dto.MissingDataError{Symbol: c.Symbol, Field: "stop_loss"}
		}
		valueAtRisk := math.Abs(c.Price - *c.StopLoss)
		if valueAtRisk == 0 {
			valueAtRisk = c.Price * s.FallbackSL
		}
		if valueAtRisk == 0 || c.Price <= 0 {
			continue
		}
		shares := int64(s.Risk * s.Capital / valueAtRisk)
		if limit := int64(cash / c.Price); shares > limit {
			shares = limit
		}
		shares = affordableShares(shares, c.Price, cash, s.Fees)
		if shares == 0 {
			continue
		}
		value := float64(shares) * c.Price
		fee := s.Fees.Fee(value)
		out = append(out, Purchase{Symbol: c.Symbol, Side: c.Side, Shares: shares, TrxValue: value, Fee: fee})
		cash -= value + fee
	}
	return out, nil
}

// FixedRisk targets a flat currency risk per trade and prioritizes fills by
// reward-to-risk ratio (or any other order mode). Degenerate ratios fall back
// to the sentinel 1.0 instead of failing.
type FixedRisk struct {
	Fees         FeeSchedule
	Mode         OrderMode
	RiskPerTrade float64
	AllowPartial bool
	Volatility   map[string]float64
	Rand         *rand.Rand
}

func (s *FixedRisk) Allocate(cash float64, candidates []Candidate) ([]Purchase, error) {
	type sized struct {
		cand   Candidate
		shares int64
	}

	rrr := make(map[string]float64, len(candidates))
	plan := make([]sized, 0, len(candidates))
	cands := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.StopLoss == nil {
			return nil, &dto.MissingDataError{Symbol: c.Symbol, Field: "stop_loss"}
		}
		valueAtRisk := math.Abs(c.Price - *c.StopLoss)
		if valueAtRisk == 0 || c.Price <= 0 {
			continue
		}
		shares := int64(s.RiskPerTrade / valueAtRisk)
		if shares == 0 {
			continue
		}
		if swing := float64(shares) * s.Volatility[c.Symbol]; swing > 0 {
			rrr[c.Symbol] = s.RiskPerTrade / swing
		} else {
			rrr[c.Symbol] = 1.0
		}
		plan = append(plan, sized{cand: c, shares: shares})
		cands = append(cands, c)
	}

	sortCandidates(cands, s.Mode, s.Volatility, rrr, s.Rand)
	bySymbol := make(map[string]sized, len(plan))
	for _, p := range plan {
		bySymbol[p.cand.Symbol] = p
	}

	var out []Purchase
	for _, c := range cands {
		if cash <= 0 {
			break
		}
		p := bySymbol[c.Symbol]
		shares := p.shares
		if affordable := affordableShares(shares, c.Price, cash, s.Fees); affordable < shares {
			if !s.AllowPartial {
				continue
			}
			shares = affordable
		}
		if shares == 0 {
			continue
		}
		value := float64(shares) * c.Price
		fee := s.Fees.Fee(value)
		out = append(out, Purchase{Symbol: c.Symbol, Side: c.Side, Shares: shares, TrxValue: value, Fee: fee})
		cash -= value + fee
	}
	return out, nil
}
