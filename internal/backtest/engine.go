package backtest

import (
	"context"
	"sort"
	"time"

	"quant-research/internal/dto"
	"quant-research/pkg/logger"
)

// Config holds the engine-owned run parameters. Entry fees are computed by
// the sizer; the engine applies the same schedule on exit.
type Config struct {
	InitCapital  float64
	Fees         FeeSchedule
	MaxDays      int
	AutoStopLoss bool
	StopLossPerc float64
}

// Result is the dated equity curve plus the trade ledger. When the account
// goes bankrupt the rows up to and including the failing date are preserved.
type Result struct {
	Dates        []time.Time
	AccountValue []float64
	NAV          []float64
	RateOfReturn []float64
	Trades       []dto.Trade
	Bankrupt     bool
	BankruptDate time.Time
}

// DailyReturns derives nav_t / nav_{t-1} - 1; the first day compares against
// the initial capital.
func (r *Result) DailyReturns(initCapital float64) []float64 {
	out := make([]float64, len(r.NAV))
	prev := initCapital
	for i, nav := range r.NAV {
		if prev != 0 {
			out[i] = nav/prev - 1
		}
		prev = nav
	}
	return out
}

type openPosition struct {
	shares     int64 // signed; negative = short
	tradeID    string
	entryPrice float64
	stopLoss   float64 // 0 = none
}

// Engine replays trigger tables for one or more symbols against a single
// account. All state is reset at the start of every Run; an Engine is safe to
// reuse serially but not concurrently.
type Engine struct {
	log   *logger.Logger
	sizer Sizer
	cfg   Config

	cash      float64
	positions map[string]*openPosition
	trades    []dto.Trade
	tradeIdx  map[string]int
	lastPrice map[string]float64
}

func NewEngine(log *logger.Logger, sizer Sizer, cfg Config) *Engine {
	return &Engine{log: log, sizer: sizer, cfg: cfg}
}

func (e *Engine) reset() {
	e.cash = e.cfg.InitCapital
	e.positions = make(map[string]*openPosition)
	e.trades = nil
	e.tradeIdx = make(map[string]int)
	e.lastPrice = make(map[string]float64)
}

// Run walks the sorted union of the tables' date axes. Symbols are visited in
// sorted order within each day so the output is deterministic.
func (e *Engine) Run(ctx context.Context, tables map[string]*dto.TriggerTable) (*Result, error) {
	e.reset()

	symbols := make([]string, 0, len(tables))
	for sym := range tables {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	dates := unionDates(tables)
	if e.cfg.MaxDays > 0 && len(dates) > e.cfg.MaxDays {
		dates = dates[:e.cfg.MaxDays]
	}

	res := &Result{}
	for _, date := range dates {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		if err := e.sellPhase(symbols, tables, date); err != nil {
			return res, err
		}
		if err := e.buyPhase(symbols, tables, date); err != nil {
			return res, err
		}

		accountValue := e.markToMarket(symbols, tables, date)
		nav := e.cash + accountValue
		ror := (nav - e.cfg.InitCapital) / e.cfg.InitCapital * 100

		res.Dates = append(res.Dates, date)
		res.AccountValue = append(res.AccountValue, accountValue)
		res.NAV = append(res.NAV, nav)
		res.RateOfReturn = append(res.RateOfReturn, ror)

		if nav <= 0 {
			res.Bankrupt = true
			res.BankruptDate = date
			res.Trades = e.trades
			if e.log != nil {
				e.log.WarnContext(ctx, "Backtest account bankrupt",
					logger.StringField("date", date.Format(dto.DateLayout)),
				)
			}
			return res, &dto.AccountBankruptError{Date: date, NAV: nav}
		}
	}
	res.Trades = e.trades
	return res, nil
}

func unionDates(tables map[string]*dto.TriggerTable) []time.Time {
	seen := make(map[string]time.Time)
	for _, t := range tables {
		for _, d := range t.Dates {
			seen[d.Format(dto.DateLayout)] = d
		}
	}
	out := make([]time.Time, 0, len(seen))
	for _, d := range seen {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// sellPhase liquidates open positions whose row carries the matching exit
// trigger, plus stop-loss breaches when auto stop-loss is enabled. Symbols
// without a bar today are skipped.
func (e *Engine) sellPhase(symbols []string, tables map[string]*dto.TriggerTable, date time.Time) error {
	for _, sym := range symbols {
		pos, ok := e.positions[sym]
		if !ok {
			continue
		}
		table := tables[sym]
		i := table.IndexOf(date)
		if i < 0 {
			continue
		}
		price := table.PriceAt(i)

		long := pos.shares > 0
		exit := (long && table.ExitLong[i] == 1) || (!long && table.ExitShort[i] == 1)
		if !exit && e.cfg.AutoStopLoss {
			if long && price <= pos.entryPrice*(1-e.cfg.StopLossPerc) {
				exit = true
			}
			if !long && price >= pos.entryPrice*(1+e.cfg.StopLossPerc) {
				exit = true
			}
		}
		if !exit && e.cfg.AutoStopLoss && pos.stopLoss > 0 {
			if (long && price <= pos.stopLoss) || (!long && price >= pos.stopLoss) {
				exit = true
			}
		}
		if exit {
			e.liquidate(sym, pos, date, price)
		}
	}
	return nil
}

func (e *Engine) liquidate(sym string, pos *openPosition, date time.Time, price float64) {
	count := pos.shares
	if count < 0 {
		count = -count
	}
	value := float64(count) * price
	fee := e.cfg.Fees.Fee(value)

	trade := &e.trades[e.tradeIdx[pos.tradeID]]
	trade.ExitDate = date
	trade.ExitPrice = price
	trade.ExitFee = fee
	if pos.shares > 0 {
		trade.Gross = float64(count)*(price-trade.EntryPrice) - trade.EntryFee - fee
		e.cash += value - fee
	} else {
		trade.Gross = float64(count)*(trade.EntryPrice-price) - trade.EntryFee - fee
		e.cash -= value + fee
	}
	delete(e.positions, sym)
}

// buyPhase collects today's entry candidates, hands them to the sizer and
// books the resulting purchases.
func (e *Engine) buyPhase(symbols []string, tables map[string]*dto.TriggerTable, date time.Time) error {
	var candidates []Candidate
	for _, sym := range symbols {
		table := tables[sym]
		i := table.IndexOf(date)
		if i < 0 {
			continue
		}
		var side dto.TradeSide
		switch {
		case table.EntryLong[i] == 1:
			side = dto.TradeSideLong
		case table.EntryShort[i] == 1:
			side = dto.TradeSideShort
		default:
			continue
		}
		if _, holding := e.positions[sym]; holding {
			return &dto.InconsistentSignalsError{Symbol: sym, Date: date}
		}
		c := Candidate{Symbol: sym, Side: side, Price: table.PriceAt(i)}
		if table.StopLoss != nil && table.StopLoss[i] > 0 {
			sl := table.StopLoss[i]
			c.StopLoss = &sl
		}
		candidates = append(candidates, c)
	}
	if len(candidates) == 0 {
		return nil
	}

	purchases, err := e.sizer.Allocate(e.cash, candidates)
	if err != nil {
		return err
	}
	for _, p := range purchases {
		tradeID := dto.TradeID(date, p.Symbol, p.Side)
		shares := p.Shares
		if p.Side == dto.TradeSideShort {
			shares = -shares
			e.cash += p.TrxValue - p.Fee
		} else {
			e.cash -= p.TrxValue + p.Fee
		}
		var stop float64
		for _, c := range candidates {
			if c.Symbol == p.Symbol && c.StopLoss != nil {
				stop = *c.StopLoss
			}
		}
		e.positions[p.Symbol] = &openPosition{
			shares:     shares,
			tradeID:    tradeID,
			entryPrice: p.TrxValue / float64(p.Shares),
			stopLoss:   stop,
		}
		e.tradeIdx[tradeID] = len(e.trades)
		e.trades = append(e.trades, dto.Trade{
			ID:         tradeID,
			Symbol:     p.Symbol,
			Side:       p.Side,
			Shares:     p.Shares,
			EntryDate:  date,
			EntryPrice: p.TrxValue / float64(p.Shares),
			EntryFee:   p.Fee,
		})
	}
	return nil
}

// markToMarket values the open positions at today's price, falling back to
// the last-known price for symbols without a bar today.
func (e *Engine) markToMarket(symbols []string, tables map[string]*dto.TriggerTable, date time.Time) float64 {
	total := 0.0
	for _, sym := range symbols {
		table := tables[sym]
		if i := table.IndexOf(date); i >= 0 {
			e.lastPrice[sym] = table.PriceAt(i)
		}
		pos, ok := e.positions[sym]
		if !ok {
			continue
		}
		total += float64(pos.shares) * e.lastPrice[sym]
	}
	return total
}
