// Package config defines the Switchboard relay configuration.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the top-level Switchboard configuration.
type Config struct {
	Server     ServerConfig     `json:"server" yaml:"server"`
	Auth       AuthConfig       `json:"auth" yaml:"auth"`
	Bus        BusConfig        `json:"bus" yaml:"bus"`
	Encryption EncryptionConfig `json:"encryption" yaml:"encryption"`
	Archive    ArchiveConfig    `json:"archive" yaml:"archive"`
	Agents     []AgentConfig    `json:"agents" yaml:"agents"`
	LogLevel   string           `json:"log_level" yaml:"log_level"`
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Addr string `json:"addr" yaml:"addr"` // listen address, e.g., ":8765"
}

// AuthConfig controls API authentication.
type AuthConfig struct {
	JWTSecret string `json:"jwt_secret" yaml:"jwt_secret"`
	AdminUser string `json:"admin_user" yaml:"admin_user"`
	AdminPass string `json:"admin_pass" yaml:"admin_pass"` // bcrypt hash
}

// BusConfig tunes the message bus.
type BusConfig struct {
	CompletedCap int   `json:"completed_cap" yaml:"completed_cap"` // in-memory completion log size
	Workers      int   `json:"workers" yaml:"workers"`             // dispatcher goroutines
	DefaultTTL   int64 `json:"default_ttl" yaml:"default_ttl"`     // seconds
}

// EncryptionConfig controls payload encryption between agents.
type EncryptionConfig struct {
	Enabled   bool   `json:"enabled" yaml:"enabled"`
	Mode      string `json:"mode" yaml:"mode"`             // "symmetric" or "asymmetric"
	SecretKey string `json:"secret_key" yaml:"secret_key"` // base64, 32 bytes
}

// ArchiveConfig controls the durable completion archive.
type ArchiveConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path" yaml:"path"` // SQLite database file
}

// AgentConfig defines a single agent registration.
type AgentConfig struct {
	ID      string   `json:"id" yaml:"id"`
	Type    string   `json:"type" yaml:"type"`                 // e.g., "assistant", "tool"
	URL     string   `json:"url,omitempty" yaml:"url"`         // HTTP endpoint; empty means scripted
	Replies []string `json:"replies,omitempty" yaml:"replies"` // canned replies for scripted agents
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr: ":8765",
		},
		Auth: AuthConfig{
			AdminUser: "admin",
		},
		Bus: BusConfig{
			CompletedCap: 1000,
			Workers:      4,
			DefaultTTL:   3600,
		},
		Encryption: EncryptionConfig{
			Mode: "symmetric",
		},
		Archive: ArchiveConfig{
			Path: "./switchboard.db",
		},
		LogLevel: "info",
		Agents: []AgentConfig{
			{
				ID:      "echo",
				Type:    "assistant",
				Replies: []string{"Message received. Working on it."},
			},
		},
	}
}

// Load reads a YAML config file and returns the parsed configuration.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
