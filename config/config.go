// Package config loads updater configuration from a TOML file found at
// platform-appropriate locations, with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/BurntSushi/toml"
)

const configFileName = "updater.toml"

// Config is the full updater configuration surface.
type Config struct {
	Updates   UpdatesConfig   `toml:"updates"`
	Telemetry TelemetryConfig `toml:"telemetry"`
	Logging   LoggingConfig   `toml:"logging"`
	Database  DatabaseConfig  `toml:"database"`
	Control   ControlConfig   `toml:"control"`
}

// UpdatesConfig controls check scheduling and install behavior.
type UpdatesConfig struct {
	// AutomaticInstall mirrors the user's auto-update preference. It is
	// captured into every flow at start.
	AutomaticInstall bool `toml:"automatic_install"`
	// BackgroundCheckIntervalMinutes is how often the background worker
	// wakes up to consider a check.
	BackgroundCheckIntervalMinutes int `toml:"background_check_interval_minutes"`
	// InternalUser marks builds used by the development team.
	InternalUser bool `toml:"internal_user"`
}

// TelemetryConfig points at the pixel collection backend.
type TelemetryConfig struct {
	Endpoint string `toml:"endpoint"`
	AppName  string `toml:"app_name"`
	Enabled  bool   `toml:"enabled"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `toml:"level"`
	Dir   string `toml:"dir"`
}

// DatabaseConfig holds the updater state database location.
type DatabaseConfig struct {
	Path string `toml:"path"`
}

// ControlConfig holds the host-app control channel settings.
type ControlConfig struct {
	// Endpoint is the websocket URL of the host app's updater control
	// socket. Empty disables the control channel.
	Endpoint string `toml:"endpoint"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Updates: UpdatesConfig{
			AutomaticInstall:               true,
			BackgroundCheckIntervalMinutes: 60,
		},
		Telemetry: TelemetryConfig{
			AppName: "Meridian-Updater/1.0",
			Enabled: true,
		},
		Logging: LoggingConfig{
			Level: "INFO",
		},
	}
}

// BackgroundCheckInterval returns the worker wake-up interval.
func (c Config) BackgroundCheckInterval() time.Duration {
	minutes := c.Updates.BackgroundCheckIntervalMinutes
	if minutes <= 0 {
		minutes = 60
	}
	return time.Duration(minutes) * time.Minute
}

// Load reads the config file from the first search path that has one,
// falling back to defaults, then applies environment overrides.
func Load() (Config, string, error) {
	cfg := Default()

	path, data, err := findConfigFile()
	if err != nil {
		applyEnvOverrides(&cfg)
		return cfg, "", nil
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, path, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	applyEnvOverrides(&cfg)
	return cfg, path, nil
}

func findConfigFile() (string, []byte, error) {
	for _, path := range searchPaths() {
		if data, err := os.ReadFile(path); err == nil {
			return path, data, nil
		}
	}
	return "", nil, fmt.Errorf("%s not found in any search path", configFileName)
}

// searchPaths returns candidate config locations in priority order: system
// directory, user config directory, executable directory, working
// directory.
func searchPaths() []string {
	var paths []string

	switch runtime.GOOS {
	case "windows":
		paths = append(paths, filepath.Join(os.Getenv("ProgramData"), "Meridian", "updater", configFileName))
	case "darwin":
		paths = append(paths, filepath.Join("/Library/Application Support", "Meridian", "updater", configFileName))
	default:
		paths = append(paths, filepath.Join("/etc/meridian", "updater", configFileName))
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		switch runtime.GOOS {
		case "windows":
			paths = append(paths, filepath.Join(homeDir, "AppData", "Local", "Meridian", "updater", configFileName))
		case "darwin":
			paths = append(paths, filepath.Join(homeDir, "Library", "Application Support", "Meridian", "updater", configFileName))
		default:
			paths = append(paths, filepath.Join(homeDir, ".config", "meridian", "updater", configFileName))
		}
	}

	if exePath, err := os.Executable(); err == nil {
		paths = append(paths, filepath.Join(filepath.Dir(exePath), configFileName))
	}

	paths = append(paths, filepath.Join(".", configFileName))
	return paths
}

func applyEnvOverrides(cfg *Config) {
	if val := os.Getenv("UPDATER_TELEMETRY_ENDPOINT"); val != "" {
		cfg.Telemetry.Endpoint = val
	}
	if val := os.Getenv("UPDATER_DB_PATH"); val != "" {
		cfg.Database.Path = val
	}
	if val := os.Getenv("UPDATER_LOG_LEVEL"); val != "" {
		cfg.Logging.Level = val
	}
	if val := os.Getenv("UPDATER_CONTROL_ENDPOINT"); val != "" {
		cfg.Control.Endpoint = val
	}
}

// DataDirectory returns the directory for the updater's state database,
// creating it if needed.
func DataDirectory() (string, error) {
	var dataDir string

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not get user home directory: %w", err)
	}

	switch runtime.GOOS {
	case "windows":
		dataDir = filepath.Join(homeDir, "AppData", "Local", "Meridian", "updater")
	case "darwin":
		dataDir = filepath.Join(homeDir, "Library", "Application Support", "Meridian", "updater")
	default:
		dataDir = filepath.Join(homeDir, ".local", "share", "meridian", "updater")
	}

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	return dataDir, nil
}
