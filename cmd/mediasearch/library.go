package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var libraryCmd = &cobra.Command{
	Use:   "library",
	Short: "Manage registered media libraries",
}

func init() {
	rootCmd.AddCommand(libraryCmd)
	libraryCmd.AddCommand(libraryAddCmd, libraryRemoveCmd, libraryRestoreCmd, libraryListCmd)
}

var libraryAddCmd = &cobra.Command{
	Use:   "add <slug> <name> <root>",
	Short: "Register a new library",
	Args:  cobra.ExactArgs(3),
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

		lib, err := st.AddLibrary(ctx, args[0], args[1], args[2])
		if err != nil {
			return err
		}
		fmt.Printf("added library %q (%s) at %s\n", lib.Slug, lib.Name, lib.SourceRoot)
		return nil
	},
}

var libraryRemoveCmd = &cobra.Command{
	Use:   "remove <slug>",
	Short: "Soft-delete a library (moves it to the trash)",
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

		if err := st.RemoveLibrary(ctx, args[0]); err != nil {
			return err
		}
		fmt.Printf("library %q moved to trash\n", args[0])
		return nil
	},
}

var libraryRestoreCmd = &cobra.Command{
	Use:   "restore <slug>",
	Short: "Restore a soft-deleted library out of the trash",
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

		if err := st.RestoreLibrary(ctx, args[0]); err != nil {
			return err
		}
		fmt.Printf("library %q restored\n", args[0])
		return nil
	},
}

var libraryListIncludeDeleted bool

func init() {
	libraryListCmd.Flags().BoolVar(&libraryListIncludeDeleted, "include-deleted", false, "also list trashed libraries")
}

var libraryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered libraries",
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

		libs, err := st.ListLibraries(ctx, libraryListIncludeDeleted)
		if err != nil {
			return err
		}
		if len(libs) == 0 {
			fmt.Println("no libraries registered")
			return nil
		}
		for _, lib := range libs {
			state := string(lib.ScanState)
			if lib.IsDeleted() {
				state = "trashed"
			}
			fmt.Printf("%-20s %-30s %-10s %s\n", lib.Slug, lib.Name, state, lib.SourceRoot)
		}
		return nil
	},
}
