package main

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/nhle/issuebot/internal/credential"
	"github.com/nhle/issuebot/internal/model"
	"github.com/nhle/issuebot/internal/theme"
	"github.com/nhle/issuebot/internal/ui/setup"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Write a config file interactively",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		path := model.ConfigPath(configPath)
		base, err := model.LoadConfig(path)
		if err != nil {
			return err
		}

		answers := setup.FromConfig(base)
		if err := setup.NewForm(answers).Run(); err != nil {
			if errors.Is(err, huh.ErrUserAborted) {
				return nil
			}
			return err
		}

		cfg, err := answers.Apply(base)
		if err != nil {
			return err
		}

		if answers.StoreSecrets {
			if secrets := answers.Secrets(); len(secrets) > 0 {
				ring, err := credential.Open()
				if err != nil {
					return err
				}
				for key, value := range secrets {
					if err := ring.Set(key, value); err != nil {
						return err
					}
				}
			}
		}

		if err := model.SaveConfig(path, cfg); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, theme.HeaderStyle.Render("Saved "+path))
		if err := cfg.Validate(); err != nil {
			fmt.Fprintln(out, theme.HelpStyle.Render("Still incomplete:\n"+err.Error()))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(setupCmd)
}
