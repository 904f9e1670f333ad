package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Handle unseen messages from the IMAP mailbox",
	Long: `Connects to the configured IMAP mailbox, routes every unseen message
like a message on stdin would be, and flags it \Seen once its reply was
sent. Stops at the first message whose reply could not be delivered.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		bot, err := openBot()
		if err != nil {
			return err
		}
		defer bot.Close()

		inbox, err := bot.Inbox()
		if err != nil {
			return err
		}

		stats, err := inbox.Drain(cmd.Context(), bot.Router().HandleMessage)
		fmt.Fprintf(cmd.OutOrStdout(), "handled %d, unparseable %d\n", stats.Handled, stats.Unparseable)
		return err
	},
}

func init() {
	rootCmd.AddCommand(fetchCmd)
}
