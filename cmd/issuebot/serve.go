package main

import (
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Accept inbound mail and poll requests over HTTP",
	Long: `Serves POST /inbound (a raw RFC 5322 message as the body), POST /poll
(one poller run) and GET /health on listen_addr. With poll_interval set
the poller also runs periodically.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		bot, err := openBot()
		if err != nil {
			return err
		}
		defer bot.Close()

		addr, _ := cmd.Flags().GetString("listen")
		if addr == "" {
			addr = bot.Config.ListenAddr
		}
		return bot.Server().ListenAndServe(cmd.Context(), addr, bot.Config.PollInterval)
	},
}

func init() {
	serveCmd.Flags().String("listen", "", "listen address (overrides listen_addr)")
	rootCmd.AddCommand(serveCmd)
}
