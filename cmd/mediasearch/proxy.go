package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mediasearch/mediasearch/internal/proxy"
	"github.com/mediasearch/mediasearch/internal/worker"
)

var (
	proxyLibrary   string
	proxyAll       bool
	proxyOnce      bool
	proxyRepair    bool
	proxyVerbose   bool
	proxyHeartbeat int
	proxyWorkerName string
)

func init() {
	proxyCmd.Flags().StringVar(&proxyLibrary, "library", "", "restrict to one library slug")
	proxyCmd.Flags().BoolVar(&proxyAll, "all", false, "run unscoped across every library")
	proxyCmd.Flags().BoolVar(&proxyOnce, "once", false, "process at most one asset then exit")
	proxyCmd.Flags().BoolVar(&proxyRepair, "repair", false, "reset assets with missing derivatives to pending, then exit")
	proxyCmd.Flags().BoolVar(&proxyVerbose, "verbose", false, "debug-level logging")
	proxyCmd.Flags().IntVar(&proxyHeartbeat, "heartbeat", 0, "heartbeat interval in seconds (0 = config default)")
	proxyCmd.Flags().StringVar(&proxyWorkerName, "worker-name", "", "override the generated worker id")
	rootCmd.AddCommand(proxyCmd)
}

var proxyCmd = &cobra.Command{
	Use:   "proxy",
	Short: "Run the image proxy/thumbnail worker (C4)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireLibraryOrAll(proxyLibrary, proxyAll); err != nil {
			return err
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		setVerbose(proxyVerbose)
		ctx := context.Background()
		st, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		if proxyLibrary != "" {
			if _, err := requireLibrary(ctx, st, proxyLibrary); err != nil {
				return err
			}
		}

		if proxyRepair {
			reset, err := proxy.RepairScan(ctx, st, cfg.DataDir, proxyLibrary)
			if err != nil {
				return err
			}
			fmt.Printf("repair: reset %d asset(s) to pending\n", reset)
			return nil
		}

		stage := &proxy.Stage{Store: st, DataDir: cfg.DataDir, FFmpegBin: cfg.FFmpegBin, FFprobeBin: cfg.FFprobeBin}
		r := worker.NewRunner(st, stage, runnerConfig(cfg, proxyLibrary, proxyOnce, proxyHeartbeat))
		if proxyWorkerName != "" {
			r.WorkerID = proxyWorkerName
		}
		return r.Run(ctx)
	},
}
