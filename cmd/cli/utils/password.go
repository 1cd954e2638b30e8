package utils

import (
	"fmt"
	"syscall"

	"golang.org/x/term"
)

const minPassphraseLength = 12

// RequestPassword prompts for an export passphrase, confirms it and checks its strength.
func RequestPassword() (string, error) {
	fmt.Println("IMPORTANT: Please ensure you back up your passphrase securely.")
	fmt.Println("If lost, you won't be able to recover the exported key.")

	fmt.Print("Enter passphrase to encrypt the key: ")
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println() // newline after prompt
	if err != nil {
		return "", fmt.Errorf("failed to read passphrase: %w", err)
	}
	passphrase := string(bytePassword)

	fmt.Print("Confirm passphrase: ")
	byteConfirmation, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read confirmation passphrase: %w", err)
	}

	if passphrase != string(byteConfirmation) {
		return "", fmt.Errorf("passphrases do not match")
	}
	if err := ValidatePassphrase(passphrase); err != nil {
		return "", err
	}
	return passphrase, nil
}

func ValidatePassphrase(passphrase string) error {
	if len(passphrase) < minPassphraseLength {
		return fmt.Errorf("passphrase too short (minimum %d characters)", minPassphraseLength)
	}
	if !ContainsAtLeastNSpecial(passphrase, 1) {
		return fmt.Errorf("passphrase must contain at least 1 special character")
	}
	return nil
}

// ContainsAtLeastNSpecial checks if a string contains at least n special characters
func ContainsAtLeastNSpecial(s string, n int) bool {
	count := 0
	for _, r := range s {
		if !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			count++
			if count >= n {
				return true
			}
		}
	}
	return false
}

// PromptPassword reads a password without echo and without confirmation.
func PromptPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println() // Add newline after password input
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}

	password := string(passwordBytes)
	if len(password) == 0 {
		return "", fmt.Errorf("password cannot be empty")
	}

	return password, nil
}
