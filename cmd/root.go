package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/urban-futures/plantable/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "plantable",
	Short: "Street-tree planting candidate generation",
	Long:  "Generates candidate street-tree planting locations from municipal open data, evaluates clearance constraints, and aggregates results onto a hex grid.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
