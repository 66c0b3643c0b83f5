// Package config holds OPERATOR-LEVEL configuration for a banneton
// installation.
//
// This is infrastructure config set by whoever deploys the process, NOT
// tenant or end-user data. Tenants, users, quotas, and the product catalog
// live in the SQLite store and are managed through the API and tools.
//
// Each key maps to an env var with the BANNETON_ prefix (e.g. "signing_key"
// → BANNETON_SIGNING_KEY) and to a YAML field in banneton.config.yaml.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Viper keys.
const (
	KeyDataDir       = "data_dir"
	KeySigningKey    = "signing_key"
	KeyOpenAIKey     = "openai_api_key"
	KeyModel         = "model"
	KeyListenAddr    = "listen_addr"
	KeyMaxIterations = "max_iterations"
)

// Defaults that do not involve crypto material. The signing key has no
// baked-in default; when unset we derive a per-machine fallback and the
// caller warns loudly.
const (
	DefaultModel         = "gpt-4o-mini"
	DefaultListenAddr    = ":8080"
	DefaultMaxIterations = 3
)

// Config holds resolved operator-level configuration for a banneton process.
type Config struct {
	DataDir       string // base directory for all state (~/.banneton)
	SigningKey    string // HMAC-SHA256 key for audit record signing (≥32 bytes)
	OpenAIKey     string // OpenAI API key; quickstart fallback only
	Model         string // model handed to the provider for every turn
	ListenAddr    string // HTTP listen address for serve
	MaxIterations int    // conversation loop ceiling

	usingDefaultSigningKey bool
}

// UsingDefaultSigningKey reports whether the audit signing key was derived
// rather than set explicitly. Commands should warn when this is the case.
func (c *Config) UsingDefaultSigningKey() bool {
	return c.usingDefaultSigningKey
}

// StoreDBPath returns the full path to the business-data SQLite database.
func (c *Config) StoreDBPath() string {
	return filepath.Join(c.DataDir, "bakery.db")
}

// AuditDBPath returns the full path to the audit-trail SQLite database.
func (c *Config) AuditDBPath() string {
	return filepath.Join(c.DataDir, "audit.db")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c *Config) EnsureDataDir() error {
	return os.MkdirAll(c.DataDir, 0o700)
}

func init() {
	viper.SetEnvPrefix("BANNETON")
	viper.AutomaticEnv()
	viper.SetDefault(KeyModel, DefaultModel)
	viper.SetDefault(KeyListenAddr, DefaultListenAddr)
	viper.SetDefault(KeyMaxIterations, DefaultMaxIterations)
}

// Load reads configuration from Viper (which merges env vars, config file,
// and defaults) and returns a validated Config.
func Load() (*Config, error) {
	cfg := &Config{
		DataDir:       resolveDataDir(),
		SigningKey:    viper.GetString(KeySigningKey),
		OpenAIKey:     viper.GetString(KeyOpenAIKey),
		Model:         viper.GetString(KeyModel),
		ListenAddr:    viper.GetString(KeyListenAddr),
		MaxIterations: viper.GetInt(KeyMaxIterations),
	}

	if cfg.SigningKey == "" {
		cfg.SigningKey = deriveDefaultKey(cfg.DataDir, "audit-signing")
		cfg.usingDefaultSigningKey = true
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func resolveDataDir() string {
	if dir := viper.GetString(KeyDataDir); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".banneton"
	}
	return filepath.Join(home, ".banneton")
}

// deriveDefaultKey produces a deterministic 32-byte fallback key from the
// data directory path and a salt. This is NOT cryptographically strong; it
// exists solely so `banneton init && banneton serve` works out of the box
// while still signing audit records with a per-machine-unique key.
func deriveDefaultKey(dataDir, salt string) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("banneton:%s:%s", dataDir, salt)))
	return hex.EncodeToString(h[:])
}

func (c *Config) validate() error {
	if len(c.SigningKey) < 32 {
		return fmt.Errorf("signing_key must be at least 32 bytes (got %d); set BANNETON_SIGNING_KEY", len(c.SigningKey))
	}
	if c.MaxIterations < 1 {
		return fmt.Errorf("max_iterations must be at least 1")
	}
	return nil
}
