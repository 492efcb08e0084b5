package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/tideline/internal/stream"
)

// Config holds the resolved runtime configuration: YAML file values with
// flag overrides applied on top.
type Config struct {
	// DataDir holds the SQLite files (records.db, queue.db, registry.db).
	DataDir string `yaml:"data_dir"`

	// CacheSize bounds the content cache, in blocks.
	CacheSize int `yaml:"cache_size"`

	// KuboURL is the node RPC endpoint serving block get/put and pub/sub.
	KuboURL string `yaml:"kubo_url"`

	// GatewayURL overrides per-dapp gateway endpoints when set.
	GatewayURL string `yaml:"gateway_url"`

	// UpdateTopic carries accepted-tip announcements.
	UpdateTopic string `yaml:"update_topic"`
}

// DefaultConfig returns the built-in defaults applied underneath the config
// file and flags.
func DefaultConfig() Config {
	return Config{
		DataDir:     defaultDataDir(),
		CacheSize:   1024,
		KuboURL:     "http://127.0.0.1:5001",
		UpdateTopic: stream.DefaultUpdateTopic,
	}
}

// LoadConfig reads the YAML config at path over the defaults. An empty path
// probes the default location and quietly uses defaults when no file exists;
// an explicit path must exist.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	explicit := path != ""
	if !explicit {
		path = defaultConfigPath()
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.CacheSize < 1 {
		return Config{}, stream.NewInvalidConfigurationError(
			fmt.Sprintf("cache_size must be at least 1, got %d", cfg.CacheSize))
	}
	return cfg, nil
}

// defaultDataDir is ~/.tideline, falling back to a relative directory when
// the home directory is unknown.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".tideline"
	}
	return filepath.Join(home, ".tideline")
}

func defaultConfigPath() string {
	return filepath.Join(defaultDataDir(), "config.yaml")
}
