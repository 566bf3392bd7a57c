package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mediasearch/mediasearch/internal/scanner"
)

var scanCmd = &cobra.Command{
	Use:   "scan <slug>",
	Short: "Reconcile one library's source root against the database",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
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

		if _, err := requireLibrary(ctx, st, args[0]); err != nil {
			return err
		}

		s := scanner.New(st)
		if err := s.Run(ctx, args[0], func() bool { return false }); err != nil {
			return err
		}
		status := s.Status()
		fmt.Printf("scan complete: %d files processed, %d inserted, %d dirtied\n",
			status.FilesProcessed, status.FilesInserted, status.FilesDirtied)
		if status.LastError != "" {
			fmt.Printf("last error: %s\n", status.LastError)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)
}
