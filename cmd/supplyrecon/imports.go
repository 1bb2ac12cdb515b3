package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"supplyrecon/internal/catalog"
	"supplyrecon/internal/util"
)

var importsLimit int

var importsCmd = &cobra.Command{
	Use:   "imports",
	Short: "List the most recent imports",
	RunE: func(cmd *cobra.Command, args []string) error {
		rows, err := application.DB.ListImports(cmd.Context(), importsLimit)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no imports yet")
			return nil
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SUPPLY\tSUPPLIER\tNUMBER\tDATE\tLINES\tCREATED")
		for _, r := range rows {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n", r.SupplyID, r.SupplierName,
				util.Deref(r.InvoiceNumber), util.Deref(r.InvoiceDate), len(r.Invoice.Items), r.CreatedAt)
		}
		return w.Flush()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show store backends and the last catalog refresh",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := application.Cfg
		last, err := application.DB.GetMetadata(catalog.LastRefreshKey)
		if err != nil {
			return err
		}
		refreshed := "never"
		if last != nil {
			refreshed = *last
		}
		fmt.Fprintf(cmd.OutOrStdout(), "db:               %s\n", cfg.DBPath)
		fmt.Fprintf(cmd.OutOrStdout(), "store backend:    %s\n", cfg.StoreBackend)
		fmt.Fprintf(cmd.OutOrStdout(), "session backend:  %s (ttl %s)\n", cfg.SessionBackend, cfg.SessionTTL)
		fmt.Fprintf(cmd.OutOrStdout(), "catalog refresh:  %s\n", refreshed)
		return nil
	},
}

var sessionsPurgeCmd = &cobra.Command{
	Use:   "sessions:purge",
	Short: "Delete expired sessions from the sqlite session store",
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := application.DB.Sessions().PurgeExpiredSessions(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "purged %d expired sessions\n", n)
		return nil
	},
}

func init() {
	importsCmd.Flags().IntVar(&importsLimit, "limit", 20, "rows to show")
	rootCmd.AddCommand(importsCmd, statusCmd, sessionsPurgeCmd)
}
