package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mediasearch/mediasearch/internal/log"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "mediasearch",
	Short:         "Media library indexing and resumable video segmentation",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (YAML)")
}

// Execute runs the CLI and maps any returned error to exit code 1
// (spec §6.1: "Exit 0 success, 1 any user-visible error").
func Execute() {
	log.Configure(log.Config{Service: "mediasearch"})
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "mediasearch:", err)
		os.Exit(1)
	}
}
