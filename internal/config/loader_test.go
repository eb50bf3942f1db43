package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("QUEUEDECK_CONFIG", filepath.Join(t.TempDir(), "missing.json"))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Listen != "127.0.0.1:8090" {
		t.Fatalf("unexpected default listen: %q", cfg.Server.Listen)
	}
	if cfg.Dispatch.MaxActiveChats != 2 {
		t.Fatalf("unexpected default cap: %d", cfg.Dispatch.MaxActiveChats)
	}
	if cfg.Relay.Topic != "queuedeck.changes" {
		t.Fatalf("unexpected default relay topic: %q", cfg.Relay.Topic)
	}
	if cfg.Relay.Enabled || cfg.Slack.Enabled {
		t.Fatalf("expected optional integrations disabled by default")
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{
		"server": {"listen": "0.0.0.0:9000"},
		"dispatch": {"maxActiveChats": 4},
		"auth": {"credentials": [{"user_id": "u-1", "email": "alice@example.com", "password": "s3cret"}]}
	}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("QUEUEDECK_CONFIG", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Listen != "0.0.0.0:9000" {
		t.Fatalf("expected file value, got %q", cfg.Server.Listen)
	}
	if cfg.Dispatch.MaxActiveChats != 4 {
		t.Fatalf("expected file value, got %d", cfg.Dispatch.MaxActiveChats)
	}
	if len(cfg.Auth.Credentials) != 1 || cfg.Auth.Credentials[0].UserID != "u-1" {
		t.Fatalf("unexpected credentials: %+v", cfg.Auth.Credentials)
	}
	// fields the file omits keep their defaults
	if cfg.Relay.Topic != "queuedeck.changes" {
		t.Fatalf("expected default topic kept, got %q", cfg.Relay.Topic)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"server": {"listen": "0.0.0.0:9000"}}`), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("QUEUEDECK_CONFIG", path)
	t.Setenv("QUEUEDECK_SERVER_LISTEN", "127.0.0.1:7777")
	t.Setenv("QUEUEDECK_DISPATCH_MAX_ACTIVE_CHATS", "3")
	t.Setenv("QUEUEDECK_RELAY_ENABLED", "true")
	t.Setenv("QUEUEDECK_RELAY_BROKERS", "kafka-1:9092,kafka-2:9092")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Listen != "127.0.0.1:7777" {
		t.Fatalf("expected env override, got %q", cfg.Server.Listen)
	}
	if cfg.Dispatch.MaxActiveChats != 3 {
		t.Fatalf("expected env override, got %d", cfg.Dispatch.MaxActiveChats)
	}
	if !cfg.Relay.Enabled || cfg.Relay.Brokers != "kafka-1:9092,kafka-2:9092" {
		t.Fatalf("unexpected relay config: %+v", cfg.Relay)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	t.Setenv("QUEUEDECK_CONFIG", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	cfg.Server.Listen = "0.0.0.0:8091"
	if err := Save(cfg); err != nil {
		t.Fatalf("save: %v", err)
	}

	reloaded, err := Load()
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Server.Listen != "0.0.0.0:8091" {
		t.Fatalf("expected saved value back, got %q", reloaded.Server.Listen)
	}
}
