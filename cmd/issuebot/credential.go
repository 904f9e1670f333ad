package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nhle/issuebot/internal/credential"
)

var credentialCmd = &cobra.Command{
	Use:   "credential",
	Short: "Manage secrets in the system keyring",
	Long: "Secrets left empty in the config file are read from the keyring.\nKeys: " +
		strings.Join(credential.Keys, ", "),
}

var credentialSetCmd = &cobra.Command{
	Use:   "set <key>",
	Short: "Store a secret read from stdin",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]
		if !credential.IsValidKey(key) {
			return fmt.Errorf("unknown key %q (want one of %s)", key, strings.Join(credential.Keys, ", "))
		}

		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		value := strings.TrimRight(line, "\r\n")
		if value == "" {
			if err != nil {
				return fmt.Errorf("reading secret: %w", err)
			}
			return fmt.Errorf("secret for %q is empty", key)
		}

		ring, err := credential.Open()
		if err != nil {
			return err
		}
		return ring.Set(key, value)
	},
}

var credentialDeleteCmd = &cobra.Command{
	Use:   "delete <key>",
	Short: "Remove a secret",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		if !credential.IsValidKey(args[0]) {
			return fmt.Errorf("unknown key %q", args[0])
		}
		ring, err := credential.Open()
		if err != nil {
			return err
		}
		return ring.Delete(args[0])
	},
}

func init() {
	credentialCmd.AddCommand(credentialSetCmd, credentialDeleteCmd)
	rootCmd.AddCommand(credentialCmd)
}
