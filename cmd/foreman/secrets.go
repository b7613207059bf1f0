package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/foreman/internal/config"
	"github.com/ShayCichocki/foreman/internal/secrets"
)

var secretsCmd = &cobra.Command{
	Use:   "secrets",
	Short: "Manage the encrypted secret store",
	Long: `Store, read, and remove encrypted secrets.

Values are sealed with AES-256-GCM. The key comes from the
FOREMAN_SECRETS_KEY environment variable, or from the key file named
by secrets.key_file in the configuration. Every access is appended to
the store's access log.`,
}

var secretsSetCmd = &cobra.Command{
	Use:   "set <name> <value>",
	Short: "Store a secret",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openSecretStore()
		if err != nil {
			return err
		}
		if err := store.Set(args[0], args[1]); err != nil {
			return fmt.Errorf("set secret: %w", err)
		}
		fmt.Printf("Stored %s\n", args[0])
		return nil
	},
}

var secretsGetCmd = &cobra.Command{
	Use:   "get <name>",
	Short: "Read a secret",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openSecretStore()
		if err != nil {
			return err
		}
		value, err := store.Get(args[0])
		if err != nil {
			return err
		}
		fmt.Println(value)
		return nil
	},
}

var secretsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List secret names",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openSecretStore()
		if err != nil {
			return err
		}
		names := store.List()
		if len(names) == 0 {
			fmt.Println("No secrets stored.")
			return nil
		}
		for _, name := range names {
			fmt.Println(name)
		}
		return nil
	},
}

var secretsDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Remove a secret",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openSecretStore()
		if err != nil {
			return err
		}
		if err := store.Delete(args[0]); err != nil {
			return err
		}
		fmt.Printf("Deleted %s\n", args[0])
		return nil
	},
}

func init() {
	secretsCmd.AddCommand(secretsSetCmd)
	secretsCmd.AddCommand(secretsGetCmd)
	secretsCmd.AddCommand(secretsListCmd)
	secretsCmd.AddCommand(secretsDeleteCmd)
}

// openSecretStore resolves the key and opens the store at the configured
// path, defaulting to secrets.json next to the user config file.
func openSecretStore() (*secrets.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	key, err := config.GetSecretsKey(cfg)
	if err != nil {
		return nil, err
	}

	path := cfg.Secrets.Path
	if path == "" {
		path = filepath.Join(filepath.Dir(config.GetUserConfigPath()), "secrets.json")
	}

	store, err := secrets.Open(path, key)
	if err != nil {
		return nil, fmt.Errorf("open secret store: %w", err)
	}
	return store, nil
}
