// Command issuebot turns email into issue tracker actions.
//
// Run without a subcommand it reads one RFC 5322 message from stdin, acts
// on it and mails exactly one reply. `issuebot cron` pushes new tracker
// comments to subscribed submitters.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/nhle/issuebot/internal/app"
	"github.com/nhle/issuebot/internal/credential"
	"github.com/nhle/issuebot/internal/mail"
	"github.com/nhle/issuebot/internal/model"
	"github.com/nhle/issuebot/internal/theme"
)

var (
	configPath string
	dryRun     bool

	// stdin is swapped in tests.
	stdin io.Reader = os.Stdin
)

var rootCmd = &cobra.Command{
	Use:   "issuebot",
	Short: "Mail-driven front end for an issue tracker",
	Long: `issuebot reads one inbound message from stdin and turns it into a
tracker action: mail issues@domain to open an issue, and use the
issues+<token>+reply|close|subscribe|unsubscribe@domain addresses from the
confirmation to act on it.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runInbound,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"config file (default $ISSUEBOT_CONFIG or ./config.toml)")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false,
		"log outgoing mail instead of sending it")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, theme.ErrorStyle.Render("Error:"), err)
		os.Exit(1)
	}
}

// loadConfig reads .env, the config file and the environment, fills empty
// secrets from the keyring, and validates the result.
func loadConfig() (model.Config, error) {
	// Load .env file (ignore error if file doesn't exist)
	_ = godotenv.Load()

	path := model.ConfigPath(configPath)
	cfg, err := model.LoadConfig(path)
	if err != nil {
		return model.Config{}, err
	}
	if dryRun {
		cfg.DryRun = true
	}

	if credential.NeedsResolve(cfg) {
		if err := resolveSecrets(&cfg); err != nil {
			fmt.Fprintln(os.Stderr, theme.HelpStyle.Render("keyring unavailable: "+err.Error()))
		}
	}

	if err := cfg.Validate(); err != nil {
		return model.Config{}, fmt.Errorf("invalid config %s:\n%w", path, err)
	}
	return cfg, nil
}

func resolveSecrets(cfg *model.Config) error {
	ring, err := credential.Open()
	if err != nil {
		return err
	}
	return ring.Resolve(cfg)
}

// openBot loads the configuration and wires the bot.
func openBot() (*app.Bot, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return app.New(cfg)
}

func runInbound(cmd *cobra.Command, _ []string) error {
	bot, err := openBot()
	if err != nil {
		return err
	}
	defer bot.Close()

	env, err := mail.ParseEnvelope(stdin)
	if err != nil {
		bot.Logger.Error("unparseable inbound message", "error", err)
		return fmt.Errorf("reading message from stdin: %w", err)
	}

	// Failed actions were already reported to the sender; only an
	// undeliverable reply fails the run.
	_, err = bot.Router().Handle(cmd.Context(), env)
	return err
}
