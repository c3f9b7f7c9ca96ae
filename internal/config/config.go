// Package config holds nexus's typed configuration: the on-disk YAML file
// that names the bank, the account, and the key/database locations, plus
// the handful of environment variables that configure the process itself
// (log format, Wire Gateway bind address, JWT secret). The CLI front-end
// and config loader are an external collaborator of the core per the
// fetch/submit/key-exchange state machines; this package is that
// collaborator.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment represents the runtime environment.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvProduction  Environment = "production"
	EnvTest        Environment = "test"
)

// BankDialect names an EBICS bank's house dialect. EBICS 3 leaves enough
// implementation-defined behavior (BTD descriptor option strings, HAC
// framing) that nexus pins to one dialect at a time rather than trying to
// auto-detect it.
type BankDialect string

// DialectPostfinance is the only bank dialect nexus currently speaks.
const DialectPostfinance BankDialect = "postfinance"

// ConfigVersion is the current on-disk config file version.
const ConfigVersion = "1.0"

// NexusConfig is the on-disk, per-subscriber YAML configuration: the bank
// connection, the own account identity, key file locations, and the
// fetch/submit tick frequency. Loaded with LoadNexusConfig, written with
// Save.
type NexusConfig struct {
	Version string `yaml:"version"`

	Currency    string      `yaml:"currency"`
	HostBaseURL string      `yaml:"host_base_url"`
	HostID      string      `yaml:"host_id"`
	UserID      string      `yaml:"user_id"`
	PartnerID   string      `yaml:"partner_id"`
	SystemID    string      `yaml:"system_id,omitempty"`
	BankDialect BankDialect `yaml:"bank_dialect"`

	Account AccountConfig `yaml:"account"`
	Keys    KeyPaths      `yaml:"keys"`

	FetchFrequency  time.Duration `yaml:"fetch_frequency"`
	SubmitFrequency time.Duration `yaml:"submit_frequency"`

	MinimumAmount string `yaml:"minimum_amount,omitempty"`
	DebugLogDir   string `yaml:"debug_log_dir,omitempty"`
}

// AccountConfig identifies the subscriber's own account, used as the
// debtor on every pain.001 submission.
type AccountConfig struct {
	IBAN string `yaml:"iban"`
	BIC  string `yaml:"bic,omitempty"`
	Name string `yaml:"name"`
}

// KeyPaths names the on-disk locations of the client and bank key files
// consumed by keystore (C10).
type KeyPaths struct {
	ClientKeysPath string `yaml:"client_keys_path"`
	BankKeysPath   string `yaml:"bank_keys_path"`
}

// DefaultNexusConfig returns the built-in defaults that LoadNexusConfig uses
// when no config file exists; bank details are left empty.
func DefaultNexusConfig() *NexusConfig {
	return &NexusConfig{
		Version:         ConfigVersion,
		BankDialect:     DialectPostfinance,
		FetchFrequency:  5 * time.Minute,
		SubmitFrequency: time.Minute,
		Keys: KeyPaths{
			ClientKeysPath: "client-keys.json",
			BankKeysPath:   "bank-keys.json",
		},
	}
}

// LoadNexusConfig reads and parses the YAML config file at path. A missing
// file is not an error: it returns DefaultNexusConfig. Nothing writes that
// default back to disk.
func LoadNexusConfig(path string) (*NexusConfig, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return DefaultNexusConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := DefaultNexusConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to path as YAML, creating its parent directory if
// needed.
func (c *NexusConfig) Save(path string) error {
	dir := dirOf(path)
	if dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("config: create %s: %w", dir, err)
		}
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

func dirOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return ""
}

// Validate checks that every field the core requires (the "Configuration
// keys consumed by the core" list) is present and well-formed, collecting
// every problem into a single error so an operator sees the whole list at
// once rather than one field per run.
func (c *NexusConfig) Validate() error {
	var errs []string

	if c.Currency == "" {
		errs = append(errs, "currency is required")
	}
	if c.HostBaseURL == "" {
		errs = append(errs, "host_base_url is required")
	}
	if c.HostID == "" {
		errs = append(errs, "host_id is required")
	}
	if c.UserID == "" {
		errs = append(errs, "user_id is required")
	}
	if c.PartnerID == "" {
		errs = append(errs, "partner_id is required")
	}
	if c.BankDialect != DialectPostfinance {
		errs = append(errs, fmt.Sprintf("bank_dialect %q is not supported (only %q)", c.BankDialect, DialectPostfinance))
	}
	if c.Account.IBAN == "" {
		errs = append(errs, "account.iban is required")
	}
	if c.Account.Name == "" {
		errs = append(errs, "account.name is required")
	}
	if c.Keys.ClientKeysPath == "" {
		errs = append(errs, "keys.client_keys_path is required")
	}
	if c.Keys.BankKeysPath == "" {
		errs = append(errs, "keys.bank_keys_path is required")
	}
	if c.FetchFrequency <= 0 {
		errs = append(errs, "fetch_frequency must be positive")
	}
	if c.SubmitFrequency <= 0 {
		errs = append(errs, "submit_frequency must be positive")
	}

	if len(errs) > 0 {
		return errors.New("configuration errors: " + strings.Join(errs, "; "))
	}
	return nil
}

// ProcessConfig holds the process-level settings that make sense as
// environment variables rather than the per-subscriber YAML file: where
// nexusd listens, how it logs, and how the Wire Gateway authenticates
// callers.
type ProcessConfig struct {
	Environment     Environment
	NexusConfigPath string

	Server   ServerConfig
	Database DatabaseConfig
	Auth     AuthConfig
}

// ServerConfig holds the Wire Gateway HTTP server's bind settings.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DatabaseConfig holds PostgreSQL connection settings for nexusdb.
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
	MaxConns int32
}

// AuthConfig holds the Wire Gateway's bearer-token JWT settings.
type AuthConfig struct {
	JWTSecret      string
	AccessTokenTTL time.Duration
}

// LoadProcess loads process-level configuration from environment
// variables, the ambient counterpart to LoadNexusConfig's on-disk file.
func LoadProcess() *ProcessConfig {
	env := Environment(getEnv("ENV", "production"))
	if env != EnvDevelopment && env != EnvProduction && env != EnvTest {
		env = EnvProduction
	}

	return &ProcessConfig{
		Environment:     env,
		NexusConfigPath: getEnv("NEXUS_CONFIG", "nexus.yaml"),
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			ReadTimeout:  getDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "nexus"),
			Password: getEnv("DB_PASSWORD", ""),
			Name:     getEnv("DB_NAME", "nexus"),
			SSLMode:  getEnv("DB_SSLMODE", "require"),
			MaxConns: int32(getInt("DB_MAX_CONNS", 0)),
		},
		Auth: AuthConfig{
			JWTSecret:      getEnv("JWT_SECRET", ""),
			AccessTokenTTL: getDuration("ACCESS_TOKEN_TTL", 15*time.Minute),
		},
	}
}

// Validate checks the process-level settings required in production.
func (c *ProcessConfig) Validate() error {
	var errs []string

	if c.Environment == EnvProduction {
		if c.Auth.JWTSecret == "" {
			errs = append(errs, "JWT_SECRET is required in production")
		} else if len(c.Auth.JWTSecret) < 32 {
			errs = append(errs, "JWT_SECRET must be at least 32 characters in production")
		}
		if c.Database.Password == "" {
			errs = append(errs, "DB_PASSWORD is required in production")
		}
	}

	if len(errs) > 0 {
		return errors.New("configuration errors: " + strings.Join(errs, "; "))
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *ProcessConfig) IsDevelopment() bool {
	return c.Environment == EnvDevelopment
}

// IsProduction returns true if running in production mode.
func (c *ProcessConfig) IsProduction() bool {
	return c.Environment == EnvProduction
}

// SetupLogging installs the process-wide slog.Logger: JSON in production,
// text in development, matching the teacher's handler selection.
func SetupLogging(c *ProcessConfig) {
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if c.IsDevelopment() {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
