// Package config loads, defaults, validates and materializes the server
// configuration.
//
// Loading is split into phases: viper reads file and environment,
// ApplyDefaults fills gaps, Validate enforces structure, and the
// factories turn the declarative config into live objects (storage
// backend, principal registry, server settings).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete server configuration.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (COVEDAV_*)
//  2. Configuration file (YAML)
//  3. Default values
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging"`

	// Server contains the HTTP listener settings
	Server ServerConfig `mapstructure:"server"`

	// Auth contains the authentication settings
	Auth AuthConfig `mapstructure:"auth"`

	// Storage selects the storage backend and its type-specific options
	Storage StorageConfig `mapstructure:"storage"`

	// Directory is the default root directory for users that do not
	// override it
	Directory string `mapstructure:"directory" validate:"required"`

	// Permissions is the default permission string ("C", "R", "U", "D"
	// in any combination, or "none") for paths no rule matches
	Permissions string `mapstructure:"permissions"`

	// Rules is the global ordered rule list. Later rules take
	// precedence over earlier ones when both match a path.
	Rules []RuleConfig `mapstructure:"rules" validate:"dive"`

	// Users defines the accounts allowed to authenticate
	Users []UserConfig `mapstructure:"users" validate:"dive"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required"`
}

// ServerConfig contains the HTTP listener settings.
type ServerConfig struct {
	// Address is the interface to bind ("" binds all interfaces)
	Address string `mapstructure:"address"`

	// Port is the TCP port to listen on
	Port int `mapstructure:"port" validate:"required,gt=0,lte=65535"`

	// Prefix is the URL prefix the tree is mounted under ("" for root)
	Prefix string `mapstructure:"prefix" validate:"omitempty,startswith=/"`

	// TLSCertFile and TLSKeyFile enable TLS when both are set
	TLSCertFile string `mapstructure:"tls_cert_file"`
	TLSKeyFile  string `mapstructure:"tls_key_file"`

	// CORS configures cross-origin behavior
	CORS CORSConfig `mapstructure:"cors"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0"`
}

// CORSConfig controls cross-origin resource sharing.
type CORSConfig struct {
	// Enabled turns CORS handling on
	Enabled bool `mapstructure:"enabled"`

	// AllowedOrigins lists origins allowed to make requests
	AllowedOrigins []string `mapstructure:"allowed_origins"`

	// AllowedMethods lists methods allowed in cross-origin requests
	AllowedMethods []string `mapstructure:"allowed_methods"`

	// AllowedHeaders lists headers allowed in cross-origin requests
	AllowedHeaders []string `mapstructure:"allowed_headers"`

	// Credentials allows credentialed cross-origin requests
	Credentials bool `mapstructure:"credentials"`
}

// AuthConfig contains the authentication settings.
type AuthConfig struct {
	// Realm is the authentication realm presented in challenges
	Realm string `mapstructure:"realm" validate:"required"`

	// NoPassword disables secret verification. A known username is
	// still required.
	NoPassword bool `mapstructure:"no_password"`
}

// StorageConfig selects the storage backend.
//
// The Type field determines which backend is used. Only the
// corresponding type-specific section is read.
type StorageConfig struct {
	// Type specifies which backend to use
	// Valid values: filesystem, memory
	Type string `mapstructure:"type" validate:"required,oneof=filesystem memory"`

	// Filesystem contains filesystem-specific options
	// Only used when Type = "filesystem"
	Filesystem map[string]any `mapstructure:"filesystem"`

	// Memory contains memory-specific options
	// Only used when Type = "memory"
	Memory map[string]any `mapstructure:"memory"`
}

// RuleConfig defines a single permission rule.
//
// Exactly one of Path and Regex must be set: Path matches by literal
// prefix, Regex by regular expression.
type RuleConfig struct {
	// Path is a literal path prefix to match
	Path string `mapstructure:"path"`

	// Regex is a regular expression matched against the full path
	Regex string `mapstructure:"regex"`

	// Permissions granted on matching paths
	Permissions string `mapstructure:"permissions" validate:"required"`
}

// UserConfig defines a single account.
type UserConfig struct {
	// Username identifies the account
	Username string `mapstructure:"username" validate:"required"`

	// Password is the account secret: a literal, a "{bcrypt}"-prefixed
	// hash, or an "{env}"-prefixed environment variable name
	Password string `mapstructure:"password"`

	// Directory overrides the global root directory for this user
	Directory string `mapstructure:"directory"`

	// Permissions overrides the global default permissions
	Permissions string `mapstructure:"permissions"`

	// Rules is the user's own rule list
	Rules []RuleConfig `mapstructure:"rules" validate:"dive"`

	// RulesBehavior selects how Rules combines with the global list
	// Valid values: append (default), overwrite
	RulesBehavior string `mapstructure:"rules_behavior" validate:"omitempty,oneof=append overwrite"`
}

// Load loads configuration from file, environment, and defaults.
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures viper with environment variables and config file
// settings.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use the COVEDAV_ prefix with underscores,
	// e.g. COVEDAV_LOGGING_LEVEL=DEBUG.
	v.SetEnvPrefix("COVEDAV")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists. A missing
// file is acceptable; defaults and environment take over.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to the
// current directory if the home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "covedav")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "covedav")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}
