package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/solwatch/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "solwatch",
	Short: "Procurement notice ingestion and 508-compliance pipeline",
	Long:  "Ingests government procurement notices from SAM.gov, resolves and extracts attachment documents, scores them for Section 508 compliance, and reconciles solicitation state in Postgres.",
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
