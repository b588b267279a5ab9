package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/faucetdb/quotagate/internal/service"
)

func newKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "key",
		Aliases: []string{"apikey"},
		Short:   "Issue and verify API keys against the key service",
		Long: `Operator commands that talk to the configured key service directly. Keys
issued here carry the same owner, quota and refill policy as keys handed out
by POST /authorize.`,
	}

	cmd.AddCommand(newKeyIssueCmd())
	cmd.AddCommand(newKeyVerifyCmd())

	return cmd
}

// ---------- key issue ----------

func newKeyIssueCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue a new API key",
		Long:  "Create a new rate-limited API key. The secret is shown once.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.Keys.Validate(); err != nil {
				return err
			}

			cred, err := service.NewCredentialService(cfg.Keys).Issue(context.Background())
			if err != nil {
				return fmt.Errorf("issue key: %w", err)
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(cred)
			}
			fmt.Fprintf(out, "Key issued.\n")
			fmt.Fprintf(out, "  key:    %s\n", cred.Secret)
			fmt.Fprintf(out, "  key_id: %s\n", cred.Identifier)
			fmt.Fprintf(out, "  quota:  %d (refill %d %s)\n", cfg.Keys.InitialQuota, cfg.Keys.RefillAmount, cfg.Keys.RefillInterval)
			fmt.Fprintln(out, "\nStore the key now; it cannot be shown again.")
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the key as JSON")

	return cmd
}

// ---------- key verify ----------

func newKeyVerifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify [key]",
		Short: "Verify an API key and show its remaining quota",
		Long: `Ask the key service whether a key is usable. Without an argument the key is
read from the terminal without echo, or from stdin when it is not a terminal.

Note: the key service counts every verification against the key's quota.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.Keys.Validate(); err != nil {
				return err
			}

			secret := ""
			if len(args) == 1 {
				secret = args[0]
			} else if secret, err = readSecret(cmd); err != nil {
				return err
			}

			v, err := service.NewCredentialService(cfg.Keys).Verify(context.Background(), secret)
			if err != nil {
				return fmt.Errorf("verify key: %w", err)
			}

			out := cmd.OutOrStdout()
			if !v.Valid {
				fmt.Fprintln(out, "Key is invalid or its quota is exhausted.")
				return errors.New("key rejected")
			}
			if v.Remaining == nil {
				fmt.Fprintln(out, "Key is valid (no quota tracked).")
			} else {
				fmt.Fprintf(out, "Key is valid (%d calls remaining).\n", *v.Remaining)
			}
			return nil
		},
	}

	return cmd
}

// readSecret reads a key from the terminal without echo, or a single line
// from stdin when stdin is piped.
func readSecret(cmd *cobra.Command) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(cmd.ErrOrStderr(), "API key: ")
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", fmt.Errorf("read key: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}

	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read key from stdin: %w", err)
	}
	secret := strings.TrimSpace(line)
	if secret == "" {
		return "", errors.New("no key given")
	}
	return secret, nil
}
