package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/economy-energy/crm-aggregator/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "crm-aggregator",
	Short: "Unified CRM record lookup by customer email",
	Long:  "Aggregates leads, deals, and usina deals from Bitrix24 for a customer email, deduplicated and enriched with contact phone numbers.",
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
