package filesystem

import (
	"fmt"
	"os"
	"strings"
)

// ReadSecretFile reads a passphrase file and trims surrounding whitespace.
func ReadSecretFile(path string) (string, error) {
	if err := ValidateFilePath(path); err != nil {
		return "", err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read secret file %s: %w", path, err)
	}
	defer ZeroBytes(raw)

	secret := strings.TrimSpace(string(raw))
	if secret == "" {
		return "", fmt.Errorf("secret file %s is empty", path)
	}
	return secret, nil
}

// ZeroBytes overwrites b in place.
func ZeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
