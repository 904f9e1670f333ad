package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nhle/issuebot/internal/ui/issuetable"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Show the issues the bot tracks",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		bot, err := openBot()
		if err != nil {
			return err
		}
		defer bot.Close()

		issues, err := bot.Store.ListIssues(cmd.Context())
		if err != nil {
			return err
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(issues)
		}
		fmt.Fprintln(cmd.OutOrStdout(), issuetable.Render(issues))
		return nil
	},
}

func init() {
	listCmd.Flags().Bool("json", false, "output JSON (tokens are never included)")
	rootCmd.AddCommand(listCmd)
}
