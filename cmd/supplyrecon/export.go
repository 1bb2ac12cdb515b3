package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"supplyrecon/internal/audit"
)

var (
	exportSupply string
	exportOut    string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write a recorded import to xlsx",
	RunE: func(cmd *cobra.Command, args []string) error {
		row, err := application.DB.GetImportBySupplyID(cmd.Context(), exportSupply)
		if err != nil {
			return err
		}
		if row == nil {
			return fmt.Errorf("no import recorded for supply %s", exportSupply)
		}
		out := exportOut
		if out == "" {
			out = filepath.Join(application.Cfg.OutputDir, fmt.Sprintf("supply_%s.xlsx", exportSupply))
		}
		if err := audit.ExportImportToXLSX(*row, out); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "exported %d lines to %s\n", len(row.Invoice.Items), out)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportSupply, "supply", "", "supply id")
	exportCmd.Flags().StringVar(&exportOut, "out", "", "output xlsx path")
	_ = exportCmd.MarkFlagRequired("supply")
	rootCmd.AddCommand(exportCmd)
}
