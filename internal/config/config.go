// Package config loads uplink configuration from the environment and an
// optional YAML file.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/raphaelgruber/uplink/internal/models"
)

// Config holds all configuration values.
type Config struct {
	// Processing backend
	ServerURL string

	// Snapshot slot for the outstanding batch
	SnapshotFile string

	// Logging
	LogFile  string
	LogLevel slog.Level

	// Quota tier selected for this installation
	Tier string

	// File-based settings (tiers, remote accounts)
	File FileConfig
}

// FileConfig is the YAML-backed part of the configuration.
type FileConfig struct {
	Tier     string                `yaml:"tier"`
	Tiers    map[string]TierConfig `yaml:"tiers"`
	Accounts []models.Account      `yaml:"accounts"`
}

// TierConfig describes one subscription tier's limits.
// MaxItems of -1 means unlimited.
type TierConfig struct {
	MaxItems  int   `yaml:"max_items"`
	MaxFileMB int64 `yaml:"max_file_mb"`
}

// Load reads configuration from environment variables and, when present, the
// YAML config file (UPLINK_CONFIG, default ~/.uplink/config.yaml).
func Load() (Config, error) {
	cfg := Config{
		ServerURL:    getEnv("UPLINK_SERVER_URL", "http://localhost:8484"),
		SnapshotFile: getEnv("UPLINK_SNAPSHOT_FILE", defaultPath("batch.json")),
		LogFile:      getEnv("UPLINK_LOG_FILE", "/tmp/uplink.log"),
		LogLevel:     parseLogLevel(getEnv("UPLINK_LOG_LEVEL", "INFO")),
		Tier:         getEnv("UPLINK_TIER", ""),
	}

	path := getEnv("UPLINK_CONFIG", defaultPath("config.yaml"))
	fc, err := loadFile(path)
	if err != nil {
		return cfg, err
	}
	cfg.File = fc

	// Env tier wins over the file's selection.
	if cfg.Tier == "" {
		cfg.Tier = fc.Tier
	}
	if cfg.Tier == "" {
		cfg.Tier = "free"
	}

	return cfg, nil
}

// loadFile parses the YAML config file. A missing file is not an error; the
// built-in defaults apply.
func loadFile(path string) (FileConfig, error) {
	var fc FileConfig
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return fc, nil
	}
	if err != nil {
		return fc, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fc, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return fc, nil
}

// TierLimits resolves the selected tier, falling back to the built-in table
// when the file does not define it.
func (c Config) TierLimits() TierConfig {
	if t, ok := c.File.Tiers[c.Tier]; ok {
		return t
	}
	switch c.Tier {
	case "pro":
		return TierConfig{MaxItems: -1, MaxFileMB: 100}
	default:
		return TierConfig{MaxItems: 20, MaxFileMB: 10}
	}
}

func defaultPath(name string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "uplink-"+name)
	}
	return filepath.Join(home, ".uplink", name)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
