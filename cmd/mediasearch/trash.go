package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var trashCmd = &cobra.Command{
	Use:   "trash",
	Short: "Permanently purge soft-deleted libraries",
}

var trashBatchSize int

func init() {
	rootCmd.AddCommand(trashCmd)
	trashCmd.PersistentFlags().IntVar(&trashBatchSize, "batch-size", 5000, "asset rows deleted per batch")
	trashCmd.AddCommand(trashEmptyCmd, trashEmptyAllCmd)
}

var trashEmptyCmd = &cobra.Command{
	Use:   "empty <slug>",
	Short: "Permanently delete one trashed library and its assets",
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

		deleted, err := st.TrashEmpty(ctx, args[0], trashBatchSize)
		if err != nil {
			return err
		}
		fmt.Printf("purged library %q: %d assets deleted\n", args[0], deleted)
		return nil
	},
}

var trashEmptyAllCmd = &cobra.Command{
	Use:   "empty-all",
	Short: "Permanently delete every trashed library",
	Args:  cobra.NoArgs,
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

		libs, err := st.ListLibraries(ctx, true)
		if err != nil {
			return err
		}
		purged := 0
		for _, lib := range libs {
			if !lib.IsDeleted() {
				continue
			}
			deleted, err := st.TrashEmpty(ctx, lib.Slug, trashBatchSize)
			if err != nil {
				return fmt.Errorf("purge %q: %w", lib.Slug, err)
			}
			fmt.Printf("purged library %q: %d assets deleted\n", lib.Slug, deleted)
			purged++
		}
		if purged == 0 {
			fmt.Println("trash is empty")
		}
		return nil
	},
}
