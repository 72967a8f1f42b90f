package cmd

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"quant-research/internal/dto"
	"quant-research/internal/service"
)

var miningRequestPath string

var mineCmd = &cobra.Command{
	Use:   "mine",
	Short: "Validate a mined rule family from a JSON request file",
	Run:   RunMine,
}

func init() {
	mineCmd.Flags().StringVarP(&miningRequestPath, "request", "r", "", "path to a JSON mining request")
	mineCmd.MarkFlagRequired("request")
}

func RunMine(cmd *cobra.Command, args []string) {
	cfg, lg, priceRepo, resultRepo, err := offlineDeps()
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}

	payload, err := os.ReadFile(miningRequestPath)
	if err != nil {
		log.Fatalf("Failed to read request file: %v", err)
	}
	var req dto.MiningRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		log.Fatalf("Failed to parse request file: %v", err)
	}

	svc := service.NewMiningService(cfg, lg, priceRepo, resultRepo, nil)
	resp, err := svc.Run(cmd.Context(), req)
	if err != nil {
		log.Fatalf("Mining validation failed: %v", err)
	}

	out, _ := json.MarshalIndent(resp, "", "  ")
	fmt.Println(string(out))
}
