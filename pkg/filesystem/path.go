package filesystem

import (
	"fmt"
	"path/filepath"
	"strings"
)

// SafePath joins name onto baseDir and rejects results that escape baseDir.
func SafePath(baseDir, name string) (string, error) {
	if err := ValidateFilePath(name); err != nil {
		return "", err
	}
	fullPath := filepath.Join(baseDir, filepath.Clean(name))

	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path for base directory: %w", err)
	}
	absPath, err := filepath.Abs(fullPath)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}
	rel, err := filepath.Rel(absBase, absPath)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("path %q is outside base directory %q", name, baseDir)
	}
	return fullPath, nil
}

// ValidateFilePath rejects paths containing parent directory references.
func ValidateFilePath(filePath string) error {
	if filePath == "" {
		return fmt.Errorf("invalid file path: empty")
	}
	for _, part := range strings.Split(filepath.ToSlash(filepath.Clean(filePath)), "/") {
		if part == ".." {
			return fmt.Errorf("invalid file path %q: path traversal not allowed", filePath)
		}
	}
	return nil
}
