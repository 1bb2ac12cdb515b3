package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"supplyrecon/internal/connectors"
	"supplyrecon/internal/listener"
)

var (
	mailProvider string
	mailLabel    string
	mailMax      int
	processBatch int
)

var mailFetchCmd = &cobra.Command{
	Use:   "mail:fetch",
	Short: "Store new messages from a mailbox",
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, err := listener.NewConnector(cmd.Context(), application.Cfg, mailProvider)
		if err != nil {
			return err
		}
		fetch := connectors.NewFetchService(application.DB, application.Cfg.RawMailDir, conn)
		res, err := fetch.FetchAndStore(cmd.Context(), mailLabel, mailMax)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "mail fetch done provider=%s fetched=%d stored=%d\n", mailProvider, res.Fetched, res.Stored)
		return nil
	},
}

var mailProcessCmd = &cobra.Command{
	Use:   "mail:process",
	Short: "Open a resolution session for every stored invoice email",
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := application.Processor().ProcessPending(cmd.Context(), processBatch)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "processed=%d prompted=%d imported=%d duplicates=%d skipped=%d failed=%d\n",
			res.Processed, res.Prompted, res.Imported, res.Duplicates, res.Skipped, res.Failed)
		return nil
	},
}

var mailListenCmd = &cobra.Command{
	Use:   "mail:listen",
	Short: "Poll the mailbox until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		return application.Listener().Run(cmd.Context())
	},
}

func init() {
	mailFetchCmd.Flags().StringVar(&mailProvider, "provider", "gmail", "gmail|imap")
	mailFetchCmd.Flags().StringVar(&mailLabel, "label", "INBOX", "mailbox or label")
	mailFetchCmd.Flags().IntVar(&mailMax, "max", 50, "max messages")
	mailProcessCmd.Flags().IntVar(&processBatch, "batch", 20, "batch size")
	rootCmd.AddCommand(mailFetchCmd, mailProcessCmd, mailListenCmd)
}
