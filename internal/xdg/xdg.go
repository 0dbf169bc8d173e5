package xdg

import (
	"os"
	"path/filepath"
)

const appName = "camelhole"

// Dir returns the XDG directory for the application.
// It checks envVar first (e.g. XDG_CONFIG_HOME), falling back to ~/fallbackDot
// (e.g. .config). The result always has "/camelhole" appended.
func Dir(envVar, fallbackDot string) (string, error) {
	if dir := os.Getenv(envVar); dir != "" {
		return filepath.Join(dir, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, fallbackDot, appName), nil
}
