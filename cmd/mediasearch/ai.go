package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mediasearch/mediasearch/internal/analyzer"
	"github.com/mediasearch/mediasearch/internal/store"
	"github.com/mediasearch/mediasearch/internal/visionstage"
	"github.com/mediasearch/mediasearch/internal/worker"
)

var aiCmd = &cobra.Command{
	Use:   "ai",
	Short: "Run the vision-analysis worker (C6)",
}

func init() {
	rootCmd.AddCommand(aiCmd)
	aiCmd.AddCommand(aiStartCmd, aiVideoCmd)
}

var (
	aiLibrary    string
	aiAll        bool
	aiOnce       bool
	aiVerbose    bool
	aiHeartbeat  int
	aiWorkerName string
	aiAnalyzer   string
	aiMode       string
)

func registerAIFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&aiLibrary, "library", "", "restrict to one library slug")
	cmd.Flags().BoolVar(&aiAll, "all", false, "run unscoped across every library")
	cmd.Flags().BoolVar(&aiOnce, "once", false, "process at most one asset then exit")
	cmd.Flags().BoolVar(&aiVerbose, "verbose", false, "debug-level logging")
	cmd.Flags().IntVar(&aiHeartbeat, "heartbeat", 0, "heartbeat interval in seconds (0 = config default)")
	cmd.Flags().StringVar(&aiWorkerName, "worker-name", "", "override the generated worker id")
	cmd.Flags().StringVar(&aiAnalyzer, "analyzer", "mock", "registered analyzer name (internal/analyzer registry)")
	cmd.Flags().StringVar(&aiMode, "mode", "light", "light or full")
}

func init() {
	registerAIFlags(aiStartCmd)
	registerAIFlags(aiVideoCmd)
}

// resolveMode parses --mode into visionstage.Mode.
func resolveMode(raw string) (visionstage.Mode, error) {
	switch raw {
	case "light":
		return visionstage.ModeLight, nil
	case "full":
		return visionstage.ModeFull, nil
	default:
		return "", fmt.Errorf("--mode must be \"light\" or \"full\", got %q", raw)
	}
}

// resolveAnalyzer constructs the named analyzer and ensures its model
// card has a row in ai_models, returning the model id visionstage
// stages use to detect a stale pass (spec §4.5.6 rule 2).
func resolveAnalyzer(ctx context.Context, st store.Store, name string) (analyzer.Analyzer, int64, error) {
	an, err := analyzer.Get(name)
	if err != nil {
		return nil, 0, err
	}
	card := an.ModelCard()
	m, err := st.EnsureAIModel(ctx, card.Name, card.Version)
	if err != nil {
		return nil, 0, fmt.Errorf("register analyzer model: %w", err)
	}
	return an, m.ID, nil
}

var aiStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Run the image vision-analysis worker",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireLibraryOrAll(aiLibrary, aiAll); err != nil {
			return err
		}
		mode, err := resolveMode(aiMode)
		if err != nil {
			return err
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		setVerbose(aiVerbose)
		ctx := context.Background()
		st, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		if aiLibrary != "" {
			if _, err := requireLibrary(ctx, st, aiLibrary); err != nil {
				return err
			}
		}

		an, modelID, err := resolveAnalyzer(ctx, st, aiAnalyzer)
		if err != nil {
			return err
		}

		stage := &visionstage.ImageStage{Store: st, Analyzer: an, ModelID: modelID, Mode: mode, DataDir: cfg.DataDir}
		r := worker.NewRunner(st, stage, runnerConfig(cfg, aiLibrary, aiOnce, aiHeartbeat))
		if aiWorkerName != "" {
			r.WorkerID = aiWorkerName
		}
		return r.Run(ctx)
	},
}

var aiVideoCmd = &cobra.Command{
	Use:   "video",
	Short: "Run the per-scene video vision-analysis worker",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireLibraryOrAll(aiLibrary, aiAll); err != nil {
			return err
		}
		mode, err := resolveMode(aiMode)
		if err != nil {
			return err
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		setVerbose(aiVerbose)
		ctx := context.Background()
		st, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		if aiLibrary != "" {
			if _, err := requireLibrary(ctx, st, aiLibrary); err != nil {
				return err
			}
		}

		an, modelID, err := resolveAnalyzer(ctx, st, aiAnalyzer)
		if err != nil {
			return err
		}

		stage := &visionstage.VideoStage{Store: st, Analyzer: an, ModelID: modelID, Mode: mode, DataDir: cfg.DataDir}
		r := worker.NewRunner(st, stage, runnerConfig(cfg, aiLibrary, aiOnce, aiHeartbeat))
		if aiWorkerName != "" {
			r.WorkerID = aiWorkerName
		}
		return r.Run(ctx)
	},
}
