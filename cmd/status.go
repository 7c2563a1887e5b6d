package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print store counters and the retraining recommendation",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		stats, err := st.GetStats(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("Solicitations:        %d (%d active, %d not applicable)\n",
			stats.Total, stats.Active, stats.NotApplicable)
		fmt.Printf("Attachments:          %d (%d validated, %d trained)\n",
			stats.Attachments, stats.Validated, stats.Trained)
		fmt.Printf("Validated untrained:  %d\n", stats.ValidatedUntrained)
		if stats.RetrainingNeeded() {
			fmt.Println("Retraining: recommended")
		} else {
			fmt.Println("Retraining: not needed")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
