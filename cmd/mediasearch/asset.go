package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mediasearch/mediasearch/internal/model"
)

var assetCmd = &cobra.Command{
	Use:   "asset",
	Short: "Inspect assets within a library",
}

var (
	assetListStatus string
	assetListLimit  int
)

func init() {
	rootCmd.AddCommand(assetCmd)
	assetCmd.AddCommand(assetListCmd)
	assetListCmd.Flags().StringVar(&assetListStatus, "status", "", "restrict to one asset status")
	assetListCmd.Flags().IntVar(&assetListLimit, "limit", 50, "maximum rows to print (0 = unlimited)")
}

var assetListCmd = &cobra.Command{
	Use:   "list <slug>",
	Short: "List assets in a library, optionally filtered by status",
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

		var statusFilter *model.AssetStatus
		if assetListStatus != "" {
			s := model.AssetStatus(assetListStatus)
			statusFilter = &s
		}

		assets, err := st.ListAssets(ctx, args[0], statusFilter, assetListLimit)
		if err != nil {
			return err
		}
		if len(assets) == 0 {
			fmt.Println("no matching assets")
			return nil
		}
		for _, a := range assets {
			fmt.Printf("%-8d %-10s %-16s %s\n", a.ID, a.Kind, a.Status, a.RelPath)
		}

		counts, err := st.CountAssetsByStatus(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Println("---")
		for status, n := range counts {
			fmt.Printf("%-16s %d\n", status, n)
		}
		return nil
	},
}
