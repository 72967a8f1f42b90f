package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"quant-research/config"
	"quant-research/internal/backtest"
	"quant-research/internal/dto"
	"quant-research/internal/mining"
	"quant-research/internal/model"
	"quant-research/internal/repository"
	"quant-research/internal/rules"
	"quant-research/internal/signal"
	"quant-research/pkg/logger"
)

type MiningService interface {
	Run(ctx context.Context, req dto.MiningRequest) (*dto.MiningResponse, error)
	GetReports(ctx context.Context, param model.GetMiningReportsParam) ([]model.MiningReport, error)
}

type miningService struct {
	cfg              *config.Config
	log              *logger.Logger
	priceDataRepo    repository.PriceDataRepository
	ruleResultRepo   repository.RuleResultRepository
	miningReportRepo repository.MiningReportRepository
}

func NewMiningService(
	cfg *config.Config,
	log *logger.Logger,
	priceDataRepo repository.PriceDataRepository,
	ruleResultRepo repository.RuleResultRepository,
	miningReportRepo repository.MiningReportRepository,
) MiningService {
	return &miningService{
		cfg:              cfg,
		log:              log,
		priceDataRepo:    priceDataRepo,
		ruleResultRepo:   ruleResultRepo,
		miningReportRepo: miningReportRepo,
	}
}

// Run drives every mined configuration through the generator and the
// backtester, then calibrates the best performer against both null
// distributions. Configurations that bankrupt the account are excluded from
// the tests and reported as skipped.
func (s *miningService) Run(ctx context.Context, req dto.MiningRequest) (*dto.MiningResponse, error) {
	series, err := s.priceDataRepo.Get(ctx, req.Symbol, req.StartDate, req.EndDate)
	if err != nil {
		return nil, fmt.Errorf("fetch prices for %s: %w", req.Symbol, err)
	}
	if len(req.Derived) > 0 {
		// The repo may hand out a cached series; derive on a clone.
		series = series.Clone()
		if err := rules.ApplyDerived(series, req.Derived); err != nil {
			return nil, fmt.Errorf("derived columns for %s: %w", req.Symbol, err)
		}
	}

	samples := req.Samples
	if samples == 0 {
		samples = s.cfg.Mining.Samples
	}
	seed := req.Seed
	if seed == 0 {
		seed = s.cfg.Mining.Seed
	}

	returns := make(map[string][]float64, len(req.Configs))
	positions := make(map[string][]dto.Signal, len(req.Configs))
	var skipped []string
	var priceChanges []float64

	for _, cfgEntry := range req.Configs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		table, res, err := s.evaluateConfig(ctx, series, req, cfgEntry)
		if err != nil {
			var bankrupt *dto.AccountBankruptError
			if errors.As(err, &bankrupt) {
				s.log.WarnContext(ctx, "Mined configuration went bankrupt, skipping",
					logger.StringField("config", cfgEntry.Name),
					logger.StringField("date", bankrupt.Date.Format(dto.DateLayout)),
				)
				skipped = append(skipped, cfgEntry.Name)
				continue
			}
			return nil, fmt.Errorf("config %s: %w", cfgEntry.Name, err)
		}

		if priceChanges == nil {
			priceChanges = mining.PriceChanges(table.Prices[table.PriceLabel])
		}
		returns[cfgEntry.Name] = res.DailyReturns(req.InitCapital)
		positions[cfgEntry.Name] = table.Position[:len(priceChanges)]
	}
	if len(returns) == 0 {
		return nil, &dto.ValidationError{Reason: "every mined configuration was skipped"}
	}

	validator := mining.NewValidator(s.log, samples, seed, s.cfg.Mining.Workers)
	wrc, err := validator.RealityCheck(ctx, returns)
	if err != nil {
		return nil, err
	}
	perm, err := validator.Permutation(ctx, priceChanges, positions)
	if err != nil {
		return nil, err
	}

	response := &dto.MiningResponse{
		BestConfig:        wrc.BestRule,
		ObservedMean:      wrc.ObservedMean,
		BootstrapPValue:   wrc.PValue,
		PermutationPValue: perm.PValue,
		Significance:      mining.Significance(wrc.PValue),
		Samples:           samples,
		Seed:              seed,
		SkippedConfigs:    skipped,
	}

	if s.miningReportRepo != nil {
		if reportID, err := s.persistReport(ctx, req, response); err != nil {
			s.log.ErrorContext(ctx, "Failed to persist mining report", logger.ErrorField(err))
		} else {
			response.ReportID = reportID
		}
	}
	return response, nil
}

func (s *miningService) GetReports(ctx context.Context, param model.GetMiningReportsParam) ([]model.MiningReport, error) {
	return s.miningReportRepo.Get(ctx, param)
}

// evaluateConfig backtests one configuration with the whole account, fixed
// strategy over the config's rules unless the request pins a strategy.
func (s *miningService) evaluateConfig(ctx context.Context, series *dto.PriceSeries, req dto.MiningRequest, cfgEntry dto.MiningConfig) (*dto.TriggerTable, *backtest.Result, error) {
	strat := req.Strategy
	if len(strat.Rules) == 0 {
		strat.Type = dto.StrategyFixed
		for _, d := range cfgEntry.Rules {
			strat.Rules = append(strat.Rules, d.ID)
		}
	}

	table, err := s.generate(ctx, series, cfgEntry.Rules, strat, len(req.Derived) == 0)
	if err != nil {
		return nil, nil, err
	}

	fees := backtest.FeeSchedule{Perc: s.cfg.Backtest.FeePerc, Min: s.cfg.Backtest.MinFee}
	engine := backtest.NewEngine(s.log, &backtest.MaxFirstEncountered{Fees: fees}, backtest.Config{
		InitCapital: req.InitCapital,
		Fees:        fees,
	})
	res, err := engine.Run(ctx, map[string]*dto.TriggerTable{req.Symbol: table})
	if err != nil {
		return nil, nil, err
	}
	return table, res, nil
}

// generate runs the signal generator with simple-rule memoization. Mined
// configurations repeat the same simple rules under many aggregations, so
// simple results load from the store while convoluted ones are recomputed.
// A cache miss falls back to a full computation and persists the simple
// results for the configurations that follow. Derived-column runs never
// memoize: the derived definitions are not part of the rule fingerprint.
func (s *miningService) generate(ctx context.Context, series *dto.PriceSeries, ruleDescs []dto.RuleDescriptor, strat dto.StrategyDescriptor, memoize bool) (*dto.TriggerTable, error) {
	if memoize && s.ruleResultRepo != nil {
		gen, err := signal.New(series, ruleDescs, strat,
			signal.WithResultStore(s.ruleResultRepo, true),
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

	gen, err := signal.New(series, ruleDescs, strat, signal.WithLogger(s.log))
	if err != nil {
		return nil, err
	}
	table, err := gen.Run(ctx)
	if err != nil {
		return nil, err
	}

	// Reversed runs hold negated rule results, which must not reach the cache.
	if memoize && s.ruleResultRepo != nil && !strat.Reversed {
		for _, d := range ruleDescs {
			if d.Kind != dto.RuleKindSimple {
				continue
			}
			res, ok := gen.Results()[d.ID]
			if !ok {
				continue
			}
			if err := s.ruleResultRepo.Save(ctx, series.Symbol, d.ID, d.Fingerprint(), res); err != nil {
				s.log.WarnContext(ctx, "Failed to persist rule results",
					logger.StringField("symbol", series.Symbol),
					logger.StringField("rule_id", d.ID),
					logger.ErrorField(err),
				)
			}
		}
	}
	return table, nil
}

func (s *miningService) persistReport(ctx context.Context, req dto.MiningRequest, resp *dto.MiningResponse) (uint, error) {
	configs, _ := json.Marshal(req.Configs)
	skipped, _ := json.Marshal(resp.SkippedConfigs)

	report := &model.MiningReport{
		Symbol:            req.Symbol,
		BestConfig:        resp.BestConfig,
		ObservedMean:      resp.ObservedMean,
		BootstrapPValue:   resp.BootstrapPValue,
		PermutationPValue: resp.PermutationPValue,
		Significance:      resp.Significance,
		Samples:           resp.Samples,
		Seed:              resp.Seed,
		Configs:           configs,
		SkippedConfigs:    skipped,
	}
	if err := s.miningReportRepo.Create(ctx, report); err != nil {
		return 0, err
	}
	return report.ID, nil
}
