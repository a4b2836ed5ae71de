package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds runtime parameters for the timer server.
type Config struct {
	// ServerAddress is the address the HTTP API listens on.
	ServerAddress string `yaml:"server_addr" envconfig:"SERVER_ADDR"`
	// StateFile is the path to the JSON document storing the live timer set.
	StateFile string `yaml:"state_file" envconfig:"STATE_FILE"`
	// ActionEndpoint is the base URL of the automation API that executes
	// service calls and receives fired events. Empty means dispatch is
	// logged only.
	ActionEndpoint string `yaml:"action_endpoint" envconfig:"ACTION_ENDPOINT"`
	// ActionToken is an optional bearer token sent with dispatch requests.
	ActionToken string `yaml:"action_token" envconfig:"ACTION_TOKEN"`
	// ActionTimeout bounds the execution of a single action at expiry.
	ActionTimeout time.Duration `yaml:"action_timeout" envconfig:"ACTION_TIMEOUT"`
}

const (
	// DefaultConfigFilename is the default filename for server settings.
	DefaultConfigFilename = "dynamic-timers-settings.yaml"

	// DefaultStateFilename is the default filename for the persisted timer set.
	DefaultStateFilename = "dynamic-timers-state.json"

	// DefaultActionTimeout is the default duration for a single action dispatch.
	DefaultActionTimeout = 10 * time.Second

	// DefaultFilePermissions is the default file permission for config and state files.
	DefaultFilePermissions = 0o600

	// envPrefix namespaces environment variable overrides (e.g. TIMERS_SERVER_ADDR).
	envPrefix = "timers"
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errServerSocketRequired is returned when server address is missing.
	errServerSocketRequired = errors.New("server address must be provided")
)

// Load reads configuration from the provided path, applies environment
// variable overrides and validates essential fields.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	// Environment variables win over the file so deployments can override
	// single values without editing YAML.
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("apply environment overrides: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the configuration to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks the provided settings for required fields and formatting.
func Validate(cfg *Config) error {
	if cfg.ServerAddress == "" {
		return errServerSocketRequired
	}

	if _, err := net.ResolveTCPAddr("tcp", cfg.ServerAddress); err != nil {
		return fmt.Errorf("invalid server socket: %w", err)
	}

	// Set default action timeout if not specified.
	if cfg.ActionTimeout <= 0 {
		cfg.ActionTimeout = DefaultActionTimeout
	}

	// Set default state file if not specified.
	if cfg.StateFile == "" {
		cfg.StateFile = DefaultStateFilename
	}

	if cfg.ActionEndpoint == "" {
		return nil
	}

	if _, err := url.ParseRequestURI(cfg.ActionEndpoint); err != nil {
		return fmt.Errorf("invalid action endpoint URI: %w", err)
	}

	return nil
}
