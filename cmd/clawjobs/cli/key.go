package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/openclaw/clawjobs/internal/model"
	"github.com/openclaw/clawjobs/internal/store"
)

func newKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "key",
		Aliases: []string{"apikey"},
		Short:   "Manage agent API keys",
		Long:    "Create, list, revoke and check the API keys agents use to call the marketplace API.",
	}

	cmd.AddCommand(newKeyCreateCmd())
	cmd.AddCommand(newKeyListCmd())
	cmd.AddCommand(newKeyRevokeCmd())
	cmd.AddCommand(newKeyCheckCmd())

	return cmd
}

// ---------- key create ----------

func newKeyCreateCmd() *cobra.Command {
	var (
		agentID string
		label   string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new API key for an agent",
		Long:  "Generate a new API key bound to an agent. The raw key is shown once and cannot be retrieved again.",
		Example: `  clawjobs key create --agent agent-123 --label "production runner"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			gen, err := a.keys.Generate(cmd.Context(), agentID, label)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "API Key created:")
			fmt.Fprintln(out)
			fmt.Fprintf(out, "  Key:    %s\n", gen.PlaintextKey)
			fmt.Fprintf(out, "  ID:     %s\n", gen.Record.ID)
			fmt.Fprintf(out, "  Agent:  %s\n", agentID)
			fmt.Fprintf(out, "  Label:  %s\n", label)
			fmt.Fprintln(out)
			fmt.Fprintln(out, "  Save this key now - it cannot be retrieved again.")
			return nil
		},
	}

	cmd.Flags().StringVar(&agentID, "agent", "", "Agent (user) ID that owns the key (required)")
	cmd.Flags().StringVar(&label, "label", "", "Human-readable label for the key (required)")
	cmd.MarkFlagRequired("agent")
	cmd.MarkFlagRequired("label")

	return cmd
}

// ---------- key list ----------

func newKeyListCmd() *cobra.Command {
	var (
		agentID    string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			var keys []model.APIKey
			if agentID != "" {
				keys, err = a.keys.ListForAgent(cmd.Context(), agentID)
			} else {
				keys, err = a.store.ListAPIKeys(cmd.Context())
			}
			if err != nil {
				return fmt.Errorf("list api keys: %w", err)
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				return printJSON(out, keys)
			}
			if len(keys) == 0 {
				fmt.Fprintln(out, "No API keys found. Use 'clawjobs key create' to create one.")
				return nil
			}

			fmt.Fprintf(out, "%-36s %-16s %-20s %-20s %-6s %-16s\n", "ID", "PREFIX", "AGENT", "LABEL", "ACTIVE", "LAST USED")
			for _, k := range keys {
				active := "yes"
				if !k.IsActive {
					active = "no"
				}
				fmt.Fprintf(out, "%-36s %-16s %-20s %-20s %-6s %-16s\n",
					k.ID, k.KeyPrefix, k.AgentID, k.Name, active, formatTime(k.LastUsedAt))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&agentID, "agent", "", "Only list keys of this agent")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

// ---------- key revoke ----------

func newKeyRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <key-id>",
		Short: "Revoke an API key",
		Long:  "Deactivate an API key, rejecting any further requests made with it. The record is kept for the audit trail.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.keys.Revoke(cmd.Context(), args[0]); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf("no API key with id %q", args[0])
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Revoked API key %s\n", args[0])
			return nil
		},
	}
}

// ---------- key check ----------

func newKeyCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check whether an API key is valid",
		Long: `Validate an API key and print the agent it belongs to. The key is read
from the terminal without echo, or from stdin when piped.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readSecret(cmd.ErrOrStderr(), "API key: ")
			if err != nil {
				return err
			}

			a, err := openApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			v, err := a.keys.Validate(cmd.Context(), raw)
			if err != nil {
				return err
			}
			if !v.Valid {
				return errors.New("key is invalid or revoked")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Valid key %s for agent %s\n", v.KeyID, v.AgentID)
			return nil
		},
	}
}

// readSecret reads one line without echo from a terminal, or plainly from
// piped stdin.
func readSecret(prompt io.Writer, label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(prompt, label)
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(prompt)
		if err != nil {
			return "", fmt.Errorf("failed to read key: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read key: %w", err)
	}
	return strings.TrimSpace(line), nil
}
