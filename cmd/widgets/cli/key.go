package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/faucetdb/widgets/internal/model"
	"github.com/faucetdb/widgets/internal/service"
	"github.com/faucetdb/widgets/internal/store"
)

func newKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "key",
		Aliases: []string{"apikey"},
		Short:   "Manage API keys",
		Long: `Issue, deactivate, list and check the API keys clients use to call the widgets API.

A client holds at most one active key. Deactivation is permanent and keys are
never deleted or reused, so the list doubles as an audit trail.`,
	}

	cmd.AddCommand(newKeyIssueCmd())
	cmd.AddCommand(newKeyDeactivateCmd())
	cmd.AddCommand(newKeyListCmd())
	cmd.AddCommand(newKeyCheckCmd())

	return cmd
}

// ---------- key issue ----------

func newKeyIssueCmd() *cobra.Command {
	var (
		client string
		key    string
		prompt bool
	)

	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue a new API key to a client",
		Long: `Issue an API key to a client. Without --key or --prompt a random key is
generated and shown once.`,
		Example: `  widgets key issue --client acme
  widgets key issue --client acme --key abc123
  widgets key issue --client acme --prompt`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyIssue(client, key, prompt)
		},
	}

	cmd.Flags().StringVar(&client, "client", "", "Client name the key is assigned to (required)")
	cmd.Flags().StringVar(&key, "key", "", "Use this key instead of generating one")
	cmd.Flags().BoolVar(&prompt, "prompt", false, "Read the key from the terminal without echo")
	cmd.MarkFlagRequired("client")
	cmd.MarkFlagsMutuallyExclusive("key", "prompt")

	return cmd
}

func runKeyIssue(client, key string, prompt bool) error {
	generated := false
	switch {
	case prompt:
		k, err := promptKey()
		if err != nil {
			return err
		}
		key = k
	case key == "":
		k, err := service.GenerateAPIKey()
		if err != nil {
			return err
		}
		key, generated = k, true
	}

	ctx := context.Background()
	_, _, st, err := setup(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	rec, err := st.IssueAPIKey(ctx, key, client)
	switch {
	case errors.Is(err, store.ErrDuplicateKey):
		return fmt.Errorf("that key has already been issued; keys are never reused")
	case errors.Is(err, store.ErrDuplicateClient):
		return fmt.Errorf("client %q already has an active key; run 'widgets key deactivate' first", client)
	case err != nil:
		return fmt.Errorf("issue api key: %w", err)
	}

	fmt.Println("API key issued:")
	fmt.Println()
	if generated {
		fmt.Printf("  Key:     %s\n", rec.Key)
	} else {
		fmt.Printf("  Prefix:  %s\n", rec.Prefix())
	}
	fmt.Printf("  Client:  %s\n", rec.ClientName)
	fmt.Printf("  Created: %s\n", rec.CreatedAt.Format(time.RFC3339))
	if generated {
		fmt.Println()
		fmt.Println("  Save this key now - it is not shown again.")
	}
	return nil
}

// promptKey reads a key twice from the terminal without echoing it.
func promptKey() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("--prompt requires an interactive terminal; use --key instead")
	}

	fmt.Print("API key: ")
	keyBytes, err := term.ReadPassword(fd)
	if err != nil {
		return "", fmt.Errorf("failed to read key: %w", err)
	}
	fmt.Println()

	fmt.Print("Confirm API key: ")
	confirmBytes, err := term.ReadPassword(fd)
	if err != nil {
		return "", fmt.Errorf("failed to read confirmation: %w", err)
	}
	fmt.Println()

	if string(keyBytes) != string(confirmBytes) {
		return "", fmt.Errorf("keys do not match")
	}
	return string(keyBytes), nil
}

// ---------- key deactivate ----------

func newKeyDeactivateCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "deactivate <key>",
		Aliases: []string{"revoke"},
		Short:   "Permanently deactivate an API key",
		Long:    "Deactivate an API key. The key stops authenticating immediately and can never be reactivated or reissued.",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyDeactivate(args[0])
		},
	}
}

func runKeyDeactivate(key string) error {
	ctx := context.Background()
	_, _, st, err := setup(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	err = st.DeactivateAPIKey(ctx, key)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("no API key found with prefix %q", model.KeyPrefix(key))
	case errors.Is(err, store.ErrAlreadyDeactivated):
		return fmt.Errorf("API key %q is already deactivated", model.KeyPrefix(key))
	case err != nil:
		return fmt.Errorf("deactivate api key: %w", err)
	}

	fmt.Printf("Deactivated API key with prefix %q\n", model.KeyPrefix(key))
	return nil
}

// ---------- key list ----------

func newKeyListCmd() *cobra.Command {
	var (
		jsonOutput bool
		activeOnly bool
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List issued API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyList(jsonOutput, activeOnly)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&activeOnly, "active", false, "Only show keys that can still authenticate")

	return cmd
}

type keyRow struct {
	ID            int64      `json:"id"`
	Prefix        string     `json:"prefix"`
	Client        string     `json:"client_name"`
	Active        bool       `json:"active"`
	CreatedAt     time.Time  `json:"created_at"`
	DeactivatedAt *time.Time `json:"deactivated_at,omitempty"`
}

func runKeyList(jsonOutput, activeOnly bool) error {
	ctx := context.Background()
	_, _, st, err := setup(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	keys, err := st.ListAPIKeys(ctx, activeOnly)
	if err != nil {
		return fmt.Errorf("list api keys: %w", err)
	}

	rows := make([]keyRow, len(keys))
	for i := range keys {
		k := &keys[i]
		rows[i] = keyRow{
			ID:            k.ID,
			Prefix:        k.Prefix(),
			Client:        k.ClientName,
			Active:        k.IsActive(),
			CreatedAt:     k.CreatedAt,
			DeactivatedAt: k.DeactivatedAt,
		}
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	if len(rows) == 0 {
		fmt.Println("No API keys issued. Use 'widgets key issue' to create one.")
		return nil
	}

	fmt.Printf("%-6s %-10s %-24s %-8s %-20s\n", "ID", "PREFIX", "CLIENT", "ACTIVE", "CREATED")
	fmt.Printf("%-6s %-10s %-24s %-8s %-20s\n", "--", "------", "------", "------", "-------")
	for _, k := range rows {
		active := "yes"
		if !k.Active {
			active = "no"
		}
		fmt.Printf("%-6d %-10s %-24s %-8s %-20s\n", k.ID, k.Prefix, k.Client, active, k.CreatedAt.Format(time.RFC3339))
	}

	return nil
}

// ---------- key check ----------

func newKeyCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <key>",
		Short: "Check whether an API key currently authenticates",
		Long:  "Authenticate a key against the active key set. Exits non-zero when the key is unknown or deactivated.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyCheck(args[0])
		},
	}
}

func runKeyCheck(key string) error {
	ctx := context.Background()
	_, _, st, err := setup(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	result, err := st.AuthenticateAPIKey(ctx, key)
	if err != nil {
		return fmt.Errorf("authenticate: %w", err)
	}
	if !result.Valid() {
		return fmt.Errorf("API key %q is not valid", model.KeyPrefix(key))
	}

	fmt.Println("API key is valid")
	fmt.Printf("  Client:  %s\n", result.Key.ClientName)
	fmt.Printf("  Created: %s\n", result.Key.CreatedAt.Format(time.RFC3339))
	return nil
}
