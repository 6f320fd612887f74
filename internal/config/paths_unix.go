//go:build linux || darwin

package config

import (
	"os"
	"path/filepath"
)

func configSearchPaths() []string {
	home, _ := os.UserHomeDir()
	return []string{
		filepath.Join(home, ".diamond-agent", "config.yaml"),
		"/etc/diamond-agent/agent.yaml",
	}
}
