package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mediasearch/mediasearch/internal/video"
	"github.com/mediasearch/mediasearch/internal/videoproxy"
	"github.com/mediasearch/mediasearch/internal/worker"
)

var (
	videoProxyLibrary    string
	videoProxyAll        bool
	videoProxyOnce       bool
	videoProxyRepair     bool
	videoProxyVerbose    bool
	videoProxyHeartbeat  int
	videoProxyWorkerName string
)

func init() {
	videoProxyCmd.Flags().StringVar(&videoProxyLibrary, "library", "", "restrict to one library slug")
	videoProxyCmd.Flags().BoolVar(&videoProxyAll, "all", false, "run unscoped across every library")
	videoProxyCmd.Flags().BoolVar(&videoProxyOnce, "once", false, "process at most one asset then exit")
	videoProxyCmd.Flags().BoolVar(&videoProxyRepair, "repair", false, "reset assets with missing derivatives to pending, then exit")
	videoProxyCmd.Flags().BoolVar(&videoProxyVerbose, "verbose", false, "debug-level logging")
	videoProxyCmd.Flags().IntVar(&videoProxyHeartbeat, "heartbeat", 0, "heartbeat interval in seconds (0 = config default)")
	videoProxyCmd.Flags().StringVar(&videoProxyWorkerName, "worker-name", "", "override the generated worker id")
	rootCmd.AddCommand(videoProxyCmd)
}

var videoProxyCmd = &cobra.Command{
	Use:   "video-proxy",
	Short: "Run the video transcode/thumbnail/scene-segmentation worker (C4+C5)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireLibraryOrAll(videoProxyLibrary, videoProxyAll); err != nil {
			return err
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		setVerbose(videoProxyVerbose)
		ctx := context.Background()
		st, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		if videoProxyLibrary != "" {
			if _, err := requireLibrary(ctx, st, videoProxyLibrary); err != nil {
				return err
			}
		}

		if videoProxyRepair {
			reset, err := videoproxy.RepairScan(ctx, st, cfg.DataDir, videoProxyLibrary)
			if err != nil {
				return err
			}
			fmt.Printf("repair: reset %d asset(s) to pending\n", reset)
			return nil
		}

		engine := video.NewEngine(st, cfg.FFmpegBin, cfg.FFprobeBin, cfg.DataDir, cfg.LeaseTTL)
		stage := &videoproxy.Stage{Store: st, Engine: engine, DataDir: cfg.DataDir, FFmpegBin: cfg.FFmpegBin, FFprobeBin: cfg.FFprobeBin}
		r := worker.NewRunner(st, stage, runnerConfig(cfg, videoProxyLibrary, videoProxyOnce, videoProxyHeartbeat))
		if videoProxyWorkerName != "" {
			r.WorkerID = videoProxyWorkerName
		}
		return r.Run(ctx)
	},
}
