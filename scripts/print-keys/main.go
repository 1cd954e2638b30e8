package main

import (
	"fmt"
	"io"
	"os"
	"slices"
	"syscall"

	"github.com/fystack/walletd/pkg/config"
	"github.com/fystack/walletd/pkg/keystore"
	"github.com/fystack/walletd/pkg/logger"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "print-keys",
	Short: "Print the storage names held by a keystore backend",
	Long:  "Print the storage names held by the keystore backend selected in the walletd configuration. Key material is never printed.",
	RunE:  printKeys,
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to the walletd configuration file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func printKeys(cmd *cobra.Command, args []string) error {
	config.SetEnvConfigPath(configPath)
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger.Init(cfg.Environment, false)

	if err := promptSecret(cfg); err != nil {
		return err
	}

	ks, err := keystore.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to open keystore: %w", err)
	}
	if c, ok := ks.(io.Closer); ok {
		defer c.Close()
	}

	names, err := ks.List()
	if err != nil {
		return fmt.Errorf("failed to list keystore: %w", err)
	}
	slices.Sort(names)

	fmt.Printf("=== %s keystore ===\n", cfg.Keystore.Type)
	for i, name := range names {
		fmt.Printf("%d. %s\n", i+1, name)
	}
	if len(names) == 0 {
		fmt.Println("No keys found in the keystore.")
	} else {
		fmt.Printf("\nTotal entries: %d\n", len(names))
	}
	return nil
}

func promptSecret(cfg *config.Config) error {
	var prompt string
	switch {
	case cfg.Keystore.Type == config.KeystoreTypeFile && cfg.Keystore.Passphrase == "":
		prompt = "Enter keystore passphrase (empty for plaintext): "
	case cfg.Keystore.Type == config.KeystoreTypeBadger && cfg.Keystore.Badger.EncryptionKey == "":
		prompt = "Enter database password: "
	default:
		return nil
	}

	fmt.Print(prompt)
	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		return fmt.Errorf("failed to read password: %v", err)
	}
	fmt.Println() // Print newline after password input

	if cfg.Keystore.Type == config.KeystoreTypeFile {
		config.SetKeystorePassphrase(string(passwordBytes))
	} else {
		config.SetBadgerEncryptionKey(string(passwordBytes))
	}
	return nil
}
