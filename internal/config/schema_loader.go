package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// defaultSchemaDir is the subdirectory within the user's home directory.
const defaultSchemaDir = ".config/structurizer/schemas"

// LoadSchemaContent resolves the path for a target schema file and reads its content.
// If configuredPath is absolute, or relative and present in the working directory, it
// is used directly. Otherwise it is treated as a filename within
// ~/.config/structurizer/schemas/.
func LoadSchemaContent(configuredPath string) (string, error) {
	if configuredPath == "" {
		return "", fmt.Errorf("no schema file given")
	}

	finalPath := configuredPath
	if !filepath.IsAbs(configuredPath) {
		if _, err := os.Stat(configuredPath); err != nil {
			homeDir, homeErr := os.UserHomeDir()
			if homeErr != nil {
				return "", fmt.Errorf("failed to get user home directory: %w", homeErr)
			}
			finalPath = filepath.Join(homeDir, defaultSchemaDir, configuredPath)
		}
	}

	schemaBytes, err := os.ReadFile(finalPath)
	if err != nil {
		if os.IsNotExist(err) && finalPath != configuredPath {
			return "", fmt.Errorf("schema file not found at '%s' or '%s': %w", configuredPath, finalPath, err)
		}
		return "", fmt.Errorf("failed to read schema file '%s': %w", finalPath, err)
	}
	return string(schemaBytes), nil
}
