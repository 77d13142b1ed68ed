// Package config provides configuration helpers and TOML parsing.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// FileConfig represents the TOML configuration file.
type FileConfig struct {
	Workspace WorkspaceConfig `toml:"workspace"`
	Render    RenderConfig    `toml:"render"`
	Swing     SwingConfig     `toml:"swing"`
	Server    ServerConfig    `toml:"server"`
}

// WorkspaceConfig locates the CSV tables and the operation journal.
type WorkspaceConfig struct {
	Dir     *string `toml:"dir"`
	Journal *string `toml:"journal"`
}

// RenderConfig maps presentation settings passed to map front-ends.
type RenderConfig struct {
	Title       *string  `toml:"title"`
	StrokeWidth *float64 `toml:"stroke-width"`
}

// SwingConfig maps swing defaults.
type SwingConfig struct {
	LockTotal *bool `toml:"lock-total"`
}

// ServerConfig maps HTTP server settings.
type ServerConfig struct {
	Listen *string `toml:"listen"`
}

// LoadConfig reads a TOML config from the given path. Missing file is not an error.
func LoadConfig(path string) (FileConfig, error) {
	if path == "" {
		return FileConfig{}, fmt.Errorf("config path is empty")
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, nil
		}
		return FileConfig{}, fmt.Errorf("failed to stat config: %w", err)
	}
	var cfg FileConfig
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return FileConfig{}, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}
