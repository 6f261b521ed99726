package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/economy-energy/crm-aggregator/internal/config"
)

var aggregateEmail string

var aggregateCmd = &cobra.Command{
	Use:   "aggregate",
	Short: "Fetch all CRM records for a customer email and print them as JSON",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := config.Validate(cfg, "aggregate"); err != nil {
			return err
		}

		agg := newAggregator(cfg)
		result, err := agg.Run(cmd.Context(), aggregateEmail)
		if err != nil {
			return eris.Wrap(err, "aggregate")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	aggregateCmd.Flags().StringVar(&aggregateEmail, "email", "", "customer email to look up")
	_ = aggregateCmd.MarkFlagRequired("email")
	rootCmd.AddCommand(aggregateCmd)
}
