package main

import (
	"errors"
	"fmt"
	"syscall"

	"github.com/fystack/walletd/pkg/config"
	"github.com/fystack/walletd/pkg/filesystem"
	"golang.org/x/term"
)

// secretName describes what the keystore secret unlocks, or "" when the
// configured backend takes none.
func secretName(cfg *config.Config) string {
	switch cfg.Keystore.Type {
	case config.KeystoreTypeFile:
		return "keystore passphrase"
	case config.KeystoreTypeBadger:
		return "Badger DB encryption key"
	}
	return ""
}

func applySecret(cfg *config.Config, secret string) {
	switch cfg.Keystore.Type {
	case config.KeystoreTypeFile:
		config.SetKeystorePassphrase(secret)
	case config.KeystoreTypeBadger:
		config.SetBadgerEncryptionKey(secret)
	}
}

// loadPasswordFromFile reads the keystore secret from a file
func loadPasswordFromFile(cfg *config.Config, filePath string) error {
	if secretName(cfg) == "" {
		return fmt.Errorf("keystore type %s does not take a password", cfg.Keystore.Type)
	}
	secret, err := filesystem.ReadSecretFile(filePath)
	if err != nil {
		return err
	}
	applySecret(cfg, secret)
	return nil
}

// Prompt user for the keystore secret
func promptForSensitiveCredentials(cfg *config.Config) error {
	name := secretName(cfg)
	if name == "" {
		return checkRequiredConfigValues(cfg)
	}

	fmt.Printf("WARNING: Please back up your %s in a secure location.\n", name)
	fmt.Println("If you lose it, you will permanently lose access to your keys!")

	var pass, confirm []byte
	defer func() {
		filesystem.ZeroBytes(pass)
		filesystem.ZeroBytes(confirm)
	}()

	for {
		var err error
		fmt.Printf("Enter %s: ", name)
		pass, err = term.ReadPassword(int(syscall.Stdin))
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", name, err)
		}
		fmt.Println() // Add newline after password input

		if len(pass) == 0 {
			fmt.Println("Password cannot be empty. Please try again.")
			continue
		}

		fmt.Printf("Confirm %s: ", name)
		confirm, err = term.ReadPassword(int(syscall.Stdin))
		if err != nil {
			return fmt.Errorf("failed to read confirmation: %w", err)
		}
		fmt.Println()

		if string(pass) != string(confirm) {
			fmt.Println("Passwords do not match. Please try again.")
			continue
		}
		break
	}

	secret := string(pass)
	fmt.Printf("Password set: %s\n", maskString(secret))
	applySecret(cfg, secret)
	return checkRequiredConfigValues(cfg)
}

// maskString shows the first and last character of a string, replacing the middle with asterisks
func maskString(s string) string {
	if len(s) <= 2 {
		return s // Too short to mask
	}

	masked := s[0:1]
	for i := 0; i < len(s)-2; i++ {
		masked += "*"
	}
	masked += s[len(s)-1:]

	return masked
}

// Check required configuration values are present
func checkRequiredConfigValues(cfg *config.Config) error {
	ks := cfg.Keystore
	switch ks.Type {
	case config.KeystoreTypeFile:
		if ks.Passphrase == "" && cfg.Environment == config.Production {
			return errors.New("keystore passphrase is required in production")
		}
	case config.KeystoreTypeBadger:
		if ks.Badger.EncryptionKey == "" {
			return errors.New("badger encryption key is required")
		}
	case config.KeystoreTypeConsul:
		if ks.Consul == nil || ks.Consul.Address == "" {
			return errors.New("consul address is required")
		}
	case config.KeystoreTypeRedis:
		if ks.Redis.Addr == "" {
			return errors.New("redis address is required")
		}
	case config.KeystoreTypePostgres:
		if ks.Postgres.DSN == "" {
			return errors.New("postgres DSN is required")
		}
	}
	return nil
}
