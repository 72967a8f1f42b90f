package cmd

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"quant-research/config"
	"quant-research/internal/dto"
	"quant-research/internal/repository"
	"quant-research/internal/service"
	"quant-research/pkg/cache"
	"quant-research/pkg/logger"
)

var backtestRequestPath string

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Run a single backtest from a JSON request file and print the summary",
	Run:   RunBacktest,
}

func init() {
	backtestCmd.Flags().StringVarP(&backtestRequestPath, "request", "r", "", "path to a JSON backtest request")
	backtestCmd.MarkFlagRequired("request")
}

// offlineDeps builds the repositories a CLI run needs without a database
// connection. Runs are not persisted.
func offlineDeps() (*config.Config, *logger.Logger, repository.PriceDataRepository, repository.RuleResultRepository, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, nil, err
	}
	lg, err := logger.New(cfg.Log.Level, cfg.Log.Encoding)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	memCache := cache.NewCache(cfg.Cache.DefaultExpiration, cfg.Cache.CleanupInterval)
	ruleResultRepo, err := repository.NewRuleResultRepository(cfg.Data.ResultCacheDir, memCache, lg)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	return cfg, lg, repository.NewPriceDataRepository(cfg, memCache, lg), ruleResultRepo, nil
}

func RunBacktest(cmd *cobra.Command, args []string) {
	cfg, lg, priceRepo, resultRepo, err := offlineDeps()
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}

	payload, err := os.ReadFile(backtestRequestPath)
	if err != nil {
		log.Fatalf("Failed to read request file: %v", err)
	}
	var req dto.BacktestRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		log.Fatalf("Failed to parse request file: %v", err)
	}

	svc := service.NewBacktestService(cfg, lg, priceRepo, resultRepo, nil, nil)
	resp, err := svc.Run(cmd.Context(), req)
	if err != nil {
		log.Fatalf("Backtest failed: %v", err)
	}

	out, _ := json.MarshalIndent(resp.Summary, "", "  ")
	fmt.Println(string(out))
	if resp.Bankrupt {
		fmt.Printf("account went bankrupt on %s\n", resp.BankruptDate.Format(dto.DateLayout))
	}
}
