package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mediasearch/mediasearch/internal/maintenance"
)

var (
	maintenanceDryRun         bool
	maintenanceLibrary        string
	maintenanceRetryPoisoned  bool
)

func init() {
	rootCmd.AddCommand(maintenanceCmd)
	maintenanceCmd.AddCommand(maintenanceRunCmd)
	maintenanceRunCmd.Flags().BoolVar(&maintenanceDryRun, "dry-run", false, "skip lease/worker/poison changes and only count the temp files that would be removed")
	maintenanceRunCmd.Flags().StringVar(&maintenanceLibrary, "library", "", "scope to one library slug (empty = all)")
	maintenanceRunCmd.Flags().BoolVar(&maintenanceRetryPoisoned, "retry-poisoned", false, "also un-poison failed assets for --library (spec's only un-poison path)")
}

var maintenanceCmd = &cobra.Command{
	Use:   "maintenance",
	Short: "Housekeeping: lease reclaim, stale workers, temp-file GC",
}

var maintenanceRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one maintenance pass",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if maintenanceRetryPoisoned && maintenanceLibrary == "" {
			return fmt.Errorf("--retry-poisoned requires --library <slug>")
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := context.Background()
		st, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		if maintenanceLibrary != "" {
			if _, err := requireLibrary(ctx, st, maintenanceLibrary); err != nil {
				return err
			}
		}

		res, err := maintenance.Sweep(ctx, st, cfg.DataDir, maintenanceLibrary, maintenanceRetryPoisoned, maintenanceDryRun)
		if err != nil {
			return err
		}

		if maintenanceDryRun {
			fmt.Println("dry run (no changes were made):")
		}
		fmt.Printf("leases reclaimed:      %d\n", res.LeasesReclaimed)
		fmt.Printf("assets poisoned:       %d\n", res.AssetsPoisoned)
		fmt.Printf("stale workers pruned:  %d\n", res.StaleWorkersPruned)
		if maintenanceRetryPoisoned {
			fmt.Printf("poisoned retried:      %d\n", res.PoisonedRetried)
		}
		fmt.Printf("temp files removed:    %d\n", res.TempFilesRemoved)
		fmt.Printf("temp files skipped:    %d (active transcode on host)\n", res.TempFilesSkipped)
		return nil
	},
}
