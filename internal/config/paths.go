package config

import (
	"os"
	"path/filepath"
)

// GetUserConfigDir returns ~/.config/tuick.
func GetUserConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".config", "tuick"), nil
}

// GetProjectDir walks up from the current directory looking for a
// .tuick.yaml or .git marker, falling back to the current directory.
func GetProjectDir() (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}

	dir := wd
	for {
		if _, err := os.Stat(filepath.Join(dir, ".tuick.yaml")); err == nil {
			return dir, nil
		}
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return wd, nil
		}
		dir = parent
	}
}

// EnsureUserConfigDir creates userConfigDir if it doesn't already exist.
func EnsureUserConfigDir(userConfigDir string) error {
	return os.MkdirAll(userConfigDir, 0o755)
}
