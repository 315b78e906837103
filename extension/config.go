package extension

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is the environment variable prefix read by LoadEnv.
const EnvPrefix = "ESCROW"

// Config holds the Escrow extension configuration.
// Fields can be set programmatically via Option functions, loaded from
// YAML configuration files (under "extensions.escrow" or "escrow" keys),
// and finally overridden from ESCROW_* environment variables.
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate" envconfig:"DISABLE_MIGRATE"`

	// Admin is the wallet recorded as admin on first start. Ignored once
	// the store already holds an admin.
	Admin string `json:"admin" mapstructure:"admin" yaml:"admin" envconfig:"ADMIN"`

	// CycleUnit is the length of one billing day (default: 24h).
	CycleUnit time.Duration `json:"cycle_unit" mapstructure:"cycle_unit" yaml:"cycle_unit" envconfig:"CYCLE_UNIT"`

	// DefaultPageSize is used when a paginated query passes zero (default: 25).
	DefaultPageSize int `json:"default_page_size" mapstructure:"default_page_size" yaml:"default_page_size" envconfig:"DEFAULT_PAGE_SIZE"`

	// MaxPageSize caps every page (default: 100).
	MaxPageSize int `json:"max_page_size" mapstructure:"max_page_size" yaml:"max_page_size" envconfig:"MAX_PAGE_SIZE"`

	// GroveDatabase is the name of a grove.DB registered in the DI container.
	// When set, the extension resolves this named database and auto-constructs
	// the appropriate store based on the driver type (pg/sqlite/mongo).
	// When empty and WithGroveDatabase was called, the default (unnamed) DB is used.
	GroveDatabase string `json:"grove_database" mapstructure:"grove_database" yaml:"grove_database" envconfig:"GROVE_DATABASE"`

	// BadgerPath opens an embedded badger store at this directory when no
	// store or grove database is configured.
	BadgerPath string `json:"badger_path" mapstructure:"badger_path" yaml:"badger_path" envconfig:"BADGER_PATH"`

	// MetricsNamespace, when set, registers the Prometheus metrics plugin
	// under this namespace.
	MetricsNamespace string `json:"metrics_namespace" mapstructure:"metrics_namespace" yaml:"metrics_namespace" envconfig:"METRICS_NAMESPACE"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-" ignored:"true"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		CycleUnit:       24 * time.Hour,
		DefaultPageSize: 25,
		MaxPageSize:     100,
	}
}

// LoadEnv overrides cfg with any ESCROW_* environment variables that are set.
// Unset variables leave the corresponding field untouched.
func LoadEnv(cfg Config) (Config, error) {
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return cfg, fmt.Errorf("escrow: load env config: %w", err)
	}
	return cfg, nil
}

// Validate reports configuration values the engine cannot run with.
func (c Config) Validate() error {
	if c.CycleUnit < 0 {
		return fmt.Errorf("escrow: cycle_unit must not be negative, got %s", c.CycleUnit)
	}
	if c.DefaultPageSize < 0 || c.MaxPageSize < 0 {
		return fmt.Errorf("escrow: page sizes must not be negative")
	}
	if c.MaxPageSize > 0 && c.DefaultPageSize > c.MaxPageSize {
		return fmt.Errorf("escrow: default_page_size %d exceeds max_page_size %d", c.DefaultPageSize, c.MaxPageSize)
	}
	return nil
}
