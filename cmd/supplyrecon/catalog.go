package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var catalogRefreshCmd = &cobra.Command{
	Use:   "catalog:refresh",
	Short: "Refetch suppliers and products from the POS",
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := application.CatalogSync().Refresh(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "catalog refreshed: suppliers=%d products=%d barcodes=%d skus=%d\n",
			res.Suppliers, res.Products, res.Barcodes, res.SKUs)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(catalogRefreshCmd)
}
