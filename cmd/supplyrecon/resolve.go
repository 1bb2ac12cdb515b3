package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"supplyrecon/internal/console"
	"supplyrecon/internal/extract"
	"supplyrecon/internal/listener"
	"supplyrecon/internal/logx"
	"supplyrecon/internal/session"
)

var (
	conversation string
	uploadFile   string
	choiceToken  string
)

var uploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "Extract an invoice file and start resolving it",
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, ok := extract.KindFromFilename(uploadFile)
		if !ok {
			return fmt.Errorf("unsupported file type: %s", uploadFile)
		}
		data, err := os.ReadFile(uploadFile)
		if err != nil {
			return err
		}
		draft, err := application.Extractor.Extract(cmd.Context(), data, kind)
		if err != nil {
			return err
		}
		out, err := application.Engine.StartResolution(cmd.Context(), conversation, draft)
		if err != nil {
			return err
		}
		console.Render(cmd.OutOrStdout(), out)
		return nil
	},
}

var chooseCmd = &cobra.Command{
	Use:   "choose",
	Short: "Answer the open question of a conversation",
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := application.Engine.SubmitChoice(cmd.Context(), conversation, choiceToken)
		if err != nil {
			return err
		}
		console.Render(cmd.OutOrStdout(), out)
		trackEmail(conversation)(out)
		return nil
	},
}

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "Show the open question of a conversation",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := application.Engine.Active(cmd.Context(), conversation)
		if err != nil {
			return err
		}
		if s == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "no open import")
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "session %s (%s), supplier %q, %d items\n",
			s.ID, s.State, s.Draft.SupplierName, len(s.Draft.Items))
		console.RenderPrompt(cmd.OutOrStdout(), s.Prompt)
		return nil
	},
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive console for one conversation",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := console.New(application.Engine, application.Extractor, conversation, cmd.OutOrStdout())
		c.OnOutcome = trackEmail(conversation)
		return c.Run(cmd.Context(), filepath.Join(application.Cfg.DataDir, ".history"))
	},
}

// trackEmail keeps the status of a mail conversation's email in step with
// the answers given for it. Other conversations are left alone.
func trackEmail(conv string) func(session.Outcome) {
	emailID, ok := listener.EmailIDFromConversation(conv)
	if !ok {
		return func(session.Outcome) {}
	}
	return func(out session.Outcome) {
		status, ok := listener.StatusForOutcome(out.Kind)
		if !ok {
			return
		}
		email, err := application.DB.GetEmailByID(emailID)
		if err != nil || email == nil || email.Status == status {
			return
		}
		if err := application.DB.UpdateEmailStatus(emailID, status); err != nil {
			logx.Warn().Err(err).Int("email_id", emailID).Str("status", status).Msg("update email status")
		}
	}
}

func init() {
	for _, c := range []*cobra.Command{uploadCmd, chooseCmd, pendingCmd, chatCmd} {
		c.Flags().StringVar(&conversation, "conversation", "console:default", "conversation key")
		rootCmd.AddCommand(c)
	}
	uploadCmd.Flags().StringVar(&uploadFile, "file", "", "invoice file")
	_ = uploadCmd.MarkFlagRequired("file")
	chooseCmd.Flags().StringVar(&choiceToken, "token", "", "option token")
	_ = chooseCmd.MarkFlagRequired("token")
}
