// Package config provides configuration structures and loading logic for the
// governance hub.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the global configuration for the hub.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Bus       BusConfig       `yaml:"bus"`
	Storage   StorageConfig   `yaml:"storage"`
	Policy    PolicyConfig    `yaml:"policy"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds configuration for the admin HTTP server.
type ServerConfig struct {
	AdminAddress string `yaml:"admin_address"`
}

// TelemetryConfig holds configuration for OpenTelemetry.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	Environment  string `yaml:"environment"`
	Insecure     bool   `yaml:"insecure"`
}

// BusConfig holds configuration for the event bus.
type BusConfig struct {
	HistorySize int `yaml:"history_size"`
}

// StorageConfig holds configuration for snapshot persistence.
type StorageConfig struct {
	SnapshotFile string        `yaml:"snapshot_file"`
	SaveInterval time.Duration `yaml:"save_interval"`
}

// PolicyConfig holds configuration for the admission policy gate.
type PolicyConfig struct {
	// Dir contains the rego modules loaded into the gate. Empty disables
	// the gate entirely.
	Dir        string `yaml:"dir"`
	Entrypoint string `yaml:"entrypoint"`
}

// LoggingConfig holds configuration for logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Load reads configuration from a file and applies environment variable
// overrides. A missing path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{
		// Defaults
		Server: ServerConfig{
			AdminAddress: ":19091",
		},
		Bus: BusConfig{
			HistorySize: 100,
		},
		Storage: StorageConfig{
			SaveInterval: time.Minute,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}

	if path != "" {
		//nolint:gosec // Config file path is controlled by admin/operator
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	if c.Server.AdminAddress == "" {
		return fmt.Errorf("server.admin_address must not be empty")
	}
	if c.Bus.HistorySize <= 0 {
		return fmt.Errorf("bus.history_size must be positive, got %d", c.Bus.HistorySize)
	}
	if c.Storage.SaveInterval < 0 {
		return fmt.Errorf("storage.save_interval must not be negative")
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	return nil
}

// LoadPolicyModules reads every .rego file in the policy directory, keyed by
// file name. Returns an empty map when no directory is configured.
func (c *Config) LoadPolicyModules() (map[string]string, error) {
	if c.Policy.Dir == "" {
		return nil, nil
	}

	entries, err := os.ReadDir(c.Policy.Dir)
	if err != nil {
		return nil, fmt.Errorf("read policy directory %s: %w", c.Policy.Dir, err)
	}

	modules := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".rego") {
			continue
		}
		//nolint:gosec // Policy directory is controlled by admin/operator
		data, err := os.ReadFile(filepath.Join(c.Policy.Dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read policy module %s: %w", entry.Name(), err)
		}
		modules[entry.Name()] = string(data)
	}
	return modules, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GOVHUB_ADMIN_ADDRESS"); v != "" {
		cfg.Server.AdminAddress = v
	}
	if v := os.Getenv("GOVHUB_OTLP_ENDPOINT"); v != "" {
		cfg.Telemetry.OTLPEndpoint = v
	}
	if v := os.Getenv("GOVHUB_SNAPSHOT_FILE"); v != "" {
		cfg.Storage.SnapshotFile = v
	}
	if v := os.Getenv("GOVHUB_POLICY_DIR"); v != "" {
		cfg.Policy.Dir = v
	}
	if v := os.Getenv("GOVHUB_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("GOVHUB_BUS_HISTORY_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Bus.HistorySize = n
		}
	}
}
