package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

const (
	// ConfigDir is the default config directory name.
	ConfigDir = ".queuedeck"
	// ConfigFile is the default config file name.
	ConfigFile = "config.json"
)

// ConfigPath returns the path to the config file. QUEUEDECK_CONFIG
// overrides the default location.
func ConfigPath() (string, error) {
	if explicit := strings.TrimSpace(os.Getenv("QUEUEDECK_CONFIG")); explicit != "" {
		if strings.HasPrefix(explicit, "~") {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			return filepath.Join(home, explicit[1:]), nil
		}
		return explicit, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ConfigDir, ConfigFile), nil
}

// Load reads the config file (missing file is fine, defaults apply) and
// then overlays environment variables.
func Load() (*Config, error) {
	cfg := defaults()

	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	for _, section := range []struct {
		prefix string
		target interface{}
	}{
		{"QUEUEDECK_SERVER", &cfg.Server},
		{"QUEUEDECK_STORE", &cfg.Store},
		{"QUEUEDECK_DISPATCH", &cfg.Dispatch},
		{"QUEUEDECK", &cfg.Relay},
		{"QUEUEDECK", &cfg.Slack},
	} {
		if err := envconfig.Process(section.prefix, section.target); err != nil {
			return nil, fmt.Errorf("process env config: %w", err)
		}
	}

	return cfg, nil
}

func defaults() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Server: ServerConfig{Listen: "127.0.0.1:8090"},
		Store:  StoreConfig{Path: filepath.Join(home, ConfigDir, "queuedeck.db")},
		Dispatch: DispatchConfig{
			MaxActiveChats: 2,
		},
		Relay: RelayConfig{
			Topic:         "queuedeck.changes",
			ConsumerGroup: "queuedeck",
		},
	}
}

// Save writes the config back to its file, creating the directory if
// needed.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
