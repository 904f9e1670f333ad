package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nhle/issuebot/internal/poller"
)

var cronCmd = &cobra.Command{
	Use:   "cron",
	Short: "Mail new tracker comments to subscribed submitters",
	Long: `Checks every stored issue for comments newer than the last digest and
mails them to the submitter when subscribed. Meant to run from cron. Exits
non-zero if any issue could not be processed; issues that were processed
stay processed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		bot, err := openBot()
		if err != nil {
			return err
		}
		defer bot.Close()

		return cronError(bot.Poller().Run(cmd.Context()))
	},
}

// cronError turns a poll report into the command's exit error.
func cronError(report poller.Report) error {
	if err := report.ListErr(); err != nil {
		return err
	}
	if err := report.Err(); err != nil {
		return fmt.Errorf("%d of %d issues failed:\n%w",
			report.Failed, len(report.Results), err)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(cronCmd)
}
