package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"

	"golang.org/x/sync/errgroup"

	"quant-research/config"
	"quant-research/internal/backtest"
	"quant-research/internal/dto"
	"quant-research/internal/model"
	"quant-research/internal/repository"
	"quant-research/internal/rules"
	"quant-research/internal/signal"
	"quant-research/pkg/logger"
	"quant-research/pkg/utils"
)

type BacktestService interface {
	Run(ctx context.Context, req dto.BacktestRequest) (*dto.BacktestResponse, error)
	GetRuns(ctx context.Context, param model.GetBacktestRunsParam) ([]model.BacktestRun, error)
}

type backtestService struct {
	cfg             *config.Config
	log             *logger.Logger
	priceDataRepo   repository.PriceDataRepository
	ruleResultRepo  repository.RuleResultRepository
	backtestRunRepo repository.BacktestRunRepository
	uow             repository.UnitOfWork
}

func NewBacktestService(
	cfg *config.Config,
	log *logger.Logger,
	priceDataRepo repository.PriceDataRepository,
	ruleResultRepo repository.RuleResultRepository,
	backtestRunRepo repository.BacktestRunRepository,
	uow repository.UnitOfWork,
) BacktestService {
	return &backtestService{
		cfg:             cfg,
		log:             log,
		priceDataRepo:   priceDataRepo,
		ruleResultRepo:  ruleResultRepo,
		backtestRunRepo: backtestRunRepo,
		uow:             uow,
	}
}

// Run generates trigger tables for every requested symbol in parallel, then
// replays them serially through one account. Bankruptcy is reported in the
// response rather than as a failure.
func (s *backtestService) Run(ctx context.Context, req dto.BacktestRequest) (*dto.BacktestResponse, error) {
	tables, err := s.generateTables(ctx, req)
	if err != nil {
		return nil, err
	}

	sizer, err := s.buildSizer(req)
	if err != nil {
		return nil, err
	}

	engineCfg := backtest.Config{
		InitCapital:  req.InitCapital,
		Fees:         backtest.FeeSchedule{Perc: s.cfg.Backtest.FeePerc, Min: s.cfg.Backtest.MinFee},
		MaxDays:      req.MaxDays,
		AutoStopLoss: s.cfg.Backtest.AutoStopLoss,
		StopLossPerc: s.cfg.Backtest.StopLossPerc,
	}
	engine := backtest.NewEngine(s.log, sizer, engineCfg)

	res, err := engine.Run(ctx, tables)
	var bankrupt *dto.AccountBankruptError
	if err != nil && !errors.As(err, &bankrupt) {
		return nil, err
	}

	response := &dto.BacktestResponse{
		Dates:        res.Dates,
		AccountValue: res.AccountValue,
		NAV:          res.NAV,
		RateOfReturn: res.RateOfReturn,
		Trades:       res.Trades,
		Summary:      backtest.Summarize(res, req.InitCapital),
		Bankrupt:     res.Bankrupt,
	}
	if res.Bankrupt {
		d := res.BankruptDate
		response.BankruptDate = &d
	}

	if s.backtestRunRepo != nil {
		if runID, err := s.persistRun(ctx, req, response); err != nil {
			s.log.ErrorContext(ctx, "Failed to persist backtest run", logger.ErrorField(err))
		} else {
			response.RunID = runID
		}
	}
	return response, nil
}

func (s *backtestService) GetRuns(ctx context.Context, param model.GetBacktestRunsParam) ([]model.BacktestRun, error) {
	return s.backtestRunRepo.Get(ctx, param)
}

// generateTables runs the signal generator per symbol, one goroutine each.
// Workers write to the shared map under a mutex; the date axes stay disjoint
// per symbol so there is no other shared state.
func (s *backtestService) generateTables(ctx context.Context, req dto.BacktestRequest) (map[string]*dto.TriggerTable, error) {
	tables := make(map[string]*dto.TriggerTable, len(req.Symbols))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	for _, symbol := range req.Symbols {
		symbol := symbol
		g.Go(func() error {
			series, err := s.priceDataRepo.Get(ctx, symbol, req.StartDate, req.EndDate)
			if err != nil {
				return fmt.Errorf("fetch prices for %s: %w", symbol, err)
			}
			if len(req.Derived) > 0 {
				// The repo may hand out a cached series; derive on a clone.
				series = series.Clone()
				if err := rules.ApplyDerived(series, req.Derived); err != nil {
					return fmt.Errorf("derived columns for %s: %w", symbol, err)
				}
			}

			table, err := s.generateOne(ctx, symbol, series, req)
			if err != nil {
				return err
			}

			mu.Lock()
			tables[symbol] = table
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return tables, nil
}

// generateOne tries the persisted rule results first and falls back to a
// fresh computation on a cache miss, persisting the new results for the next
// run.
func (s *backtestService) generateOne(ctx context.Context, symbol string, series *dto.PriceSeries, req dto.BacktestRequest) (*dto.TriggerTable, error) {
	// Derived-column definitions are not part of the rule fingerprint, so
	// runs that use them bypass the result store entirely.
	if len(req.Derived) == 0 {
		gen, err := signal.New(series, req.Rules, req.Strategy,
			signal.WithResultStore(s.ruleResultRepo, false),
			signal.WithLogger(s.log),
		)
		if err != nil {
			return nil, err
		}

		table, err := gen.Run(ctx)
		if err == nil {
			return table, nil
		}
		var missing *dto.MissingRuleResultsError
		if !errors.As(err, &missing) {
			return nil, err
		}
	}

	// Cold cache: recompute from the raw series.
	gen, err := signal.New(series, req.Rules, req.Strategy,
		signal.WithLogger(s.log),
	)
	if err != nil {
		return nil, err
	}
	table, err := gen.Run(ctx)
	if err != nil {
		return nil, err
	}
	// Reversed runs hold negated rule results, which must not reach the cache.
	if len(req.Derived) == 0 && !req.Strategy.Reversed {
		if saveErr := s.saveResults(ctx, symbol, req.Rules, gen.Results()); saveErr != nil {
			s.log.WarnContext(ctx, "Failed to persist rule results",
				logger.StringField("symbol", symbol),
				logger.ErrorField(saveErr),
			)
		}
	}
	return table, nil
}

func (s *backtestService) saveResults(ctx context.Context, symbol string, rules []dto.RuleDescriptor, results map[string][]dto.Signal) error {
	for _, d := range rules {
		signals, ok := results[d.ID]
		if !ok {
			continue
		}
		if err := s.ruleResultRepo.Save(ctx, symbol, d.ID, d.Fingerprint(), signals); err != nil {
			return err
		}
	}
	return nil
}

func (s *backtestService) buildSizer(req dto.BacktestRequest) (backtest.Sizer, error) {
	bc := s.cfg.Backtest
	fees := backtest.FeeSchedule{Perc: bc.FeePerc, Min: bc.MinFee}
	order := req.SizerOrder
	if order == "" {
		order = bc.SizerOrder
	}
	mode := backtest.OrderMode(order)
	rng := rand.New(rand.NewSource(s.cfg.Mining.Seed))

	name := req.Sizer
	if name == "" {
		name = bc.Sizer
	}
	if name == "" {
		name = "max-first-encountered"
	}
	switch name {
	case "max-first-encountered":
		return &backtest.MaxFirstEncountered{Fees: fees, Mode: mode, Rand: rng}, nil
	case "fixed-capital-perc":
		return &backtest.FixedCapitalPerc{Fees: fees, Mode: mode, Perc: bc.SizerPerc, Capital: req.InitCapital, Rand: rng}, nil
	case "percentage-risk":
		return &backtest.PercentageRisk{Fees: fees, Mode: mode, Risk: bc.Risk, FallbackSL: bc.FallbackSL, Capital: req.InitCapital, Rand: rng}, nil
	case "fixed-risk":
		return &backtest.FixedRisk{Fees: fees, Mode: backtest.OrderRRR, RiskPerTrade: bc.RiskPerTrade, AllowPartial: true, Rand: rng}, nil
	default:
		return nil, &dto.ValidationError{Reason: fmt.Sprintf("unknown sizer %q", name)}
	}
}

func (s *backtestService) persistRun(ctx context.Context, req dto.BacktestRequest, resp *dto.BacktestResponse) (uint, error) {
	symbols, _ := json.Marshal(req.Symbols)
	rules, _ := json.Marshal(req.Rules)
	strategy, _ := json.Marshal(req.Strategy)
	summary, _ := json.Marshal(resp.Summary)

	run := &model.BacktestRun{
		Symbols:      symbols,
		Rules:        rules,
		Strategy:     strategy,
		Sizer:        req.Sizer,
		InitCapital:  req.InitCapital,
		FinalNAV:     resp.Summary.FinalNAV,
		RateOfReturn: resp.Summary.RateOfReturn,
		SharpeRatio:  resp.Summary.SharpeRatio,
		MaxDrawdown:  resp.Summary.MaxDrawdown,
		TotalTrades:  resp.Summary.TotalTrades,
		Bankrupt:     resp.Bankrupt,
		Summary:      summary,
	}
	for _, t := range resp.Trades {
		record := model.TradeRecord{
			TradeID:    t.ID,
			Symbol:     t.Symbol,
			Side:       string(t.Side),
			Shares:     t.Shares,
			EntryDate:  t.EntryDate,
			EntryPrice: t.EntryPrice,
			EntryFee:   t.EntryFee,
			ExitPrice:  t.ExitPrice,
			ExitFee:    t.ExitFee,
			Gross:      t.Gross,
		}
		if !t.Open() {
			exit := t.ExitDate
			record.ExitDate = &exit
		}
		run.Trades = append(run.Trades, record)
	}

	err := s.uow.Run(func(opts ...utils.DBOption) error {
		return s.backtestRunRepo.Create(ctx, run, opts...)
	})
	if err != nil {
		return 0, err
	}
	return run.ID, nil
}
