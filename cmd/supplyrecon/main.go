package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"supplyrecon/internal/app"
	"supplyrecon/internal/config"
	"supplyrecon/internal/logx"
)

// application is opened before every subcommand and closed after it.
var application *app.App

var rootCmd = &cobra.Command{
	Use:   "supplyrecon",
	Short: "Reconcile supplier invoices into POS supplies",
	Long: `supplyrecon reads supplier invoices (xlsx, csv, pdf, html, eml, json),
resolves the supplier and every line against the POS catalog, asks about
anything it cannot match, and creates the supply once the totals agree.

Examples:
  supplyrecon upload --conversation chat:1 --file invoice.xlsx
  supplyrecon choose --conversation chat:1 --token supplier:12
  supplyrecon chat --conversation chat:1
  supplyrecon mail:listen`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		logx.Init(logx.Options{Environment: cfg.Environment, Level: cfg.LogLevel})
		application, err = app.Open(cmd.Context(), cfg)
		return err
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if application == nil {
			return nil
		}
		return application.Close()
	},
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		if application != nil {
			_ = application.Close()
		}
		os.Exit(1)
	}
}
