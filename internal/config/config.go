// Package config provides configuration types and loading for queuedeck.
package config

import (
	"github.com/QueueDeck/QueueDeck/internal/identity"
)

// Config is the root configuration struct.
type Config struct {
	Server   ServerConfig   `json:"server"`
	Store    StoreConfig    `json:"store"`
	Dispatch DispatchConfig `json:"dispatch"`
	Relay    RelayConfig    `json:"relay"`
	Slack    SlackConfig    `json:"slack"`
	Auth     AuthConfig     `json:"auth"`
}

// ServerConfig groups the HTTP gateway settings.
type ServerConfig struct {
	Listen string `json:"listen" envconfig:"LISTEN"`
}

// StoreConfig groups persistence settings.
type StoreConfig struct {
	Path string `json:"path" envconfig:"DB_PATH"`
}

// DispatchConfig groups queue-engine settings.
type DispatchConfig struct {
	MaxActiveChats int `json:"maxActiveChats" envconfig:"MAX_ACTIVE_CHATS"`
}

// RelayConfig configures the optional Kafka feed relay that propagates
// change-feed events between dashboard processes.
type RelayConfig struct {
	Enabled       bool   `json:"enabled" envconfig:"RELAY_ENABLED"`
	Brokers       string `json:"brokers" envconfig:"RELAY_BROKERS"` // comma-separated
	Topic         string `json:"topic" envconfig:"RELAY_TOPIC"`
	ConsumerGroup string `json:"consumerGroup" envconfig:"RELAY_CONSUMER_GROUP"`
}

// SlackConfig configures the optional Slack alerting for missed calls and
// urgent ribbon entries.
type SlackConfig struct {
	Enabled bool   `json:"enabled" envconfig:"SLACK_ENABLED"`
	Token   string `json:"token" envconfig:"SLACK_TOKEN"`
	Channel string `json:"channel" envconfig:"SLACK_CHANNEL"`
}

// AuthConfig seeds the static credential provider. Deployments fronted by a
// real identity provider leave this empty.
type AuthConfig struct {
	Credentials []identity.Credential `json:"credentials"`
}
