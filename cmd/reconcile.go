package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sells-group/solwatch/internal/reconcile"
	"github.com/sells-group/solwatch/internal/store"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Sweep persisted solicitations against the authoritative snapshot",
	Long: `Check a bounded batch of persisted solicitations against the
opportunity snapshot export. Solicitations absent from the snapshot go
inactive; solicitations whose notice type drifted are corrected and queued
for re-scoring.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		started := time.Now()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		maxChecks, _ := cmd.Flags().GetInt("max-checks")
		rcfg := cfg.Reconcile
		if maxChecks > 0 {
			rcfg.MaxChecks = maxChecks
		}

		sweeper := reconcile.NewSweeper(
			reconcile.StoreUnits{Store: env.store}, env.snapshot, rcfg)
		sum := sweeper.Sweep(ctx)

		if err := env.store.LogSync(ctx, store.SyncRecord{
			Kind:      "reconcile",
			StartedAt: started,
			Notices:   sum.Checked,
			Updated:   sum.Deactivated + sum.Corrected,
			Errors:    sum.Errors,
		}); err != nil {
			return err
		}

		fmt.Printf("Sweep: %d checked, %d deactivated, %d corrected, %d errors\n",
			sum.Checked, sum.Deactivated, sum.Corrected, sum.Errors)
		return nil
	},
}

func init() {
	reconcileCmd.Flags().Int("max-checks", 0, "cap on snapshot lookups this run (default from config)")
	rootCmd.AddCommand(reconcileCmd)
}
