// Package extension provides the Forge extension adapter for Escrow.
//
// It implements the forge.Extension interface to integrate Escrow
// into a Forge application with automatic dependency discovery,
// DI registration, and lifecycle management.
//
// Configuration can be provided programmatically via Option functions,
// via YAML configuration files under "extensions.escrow" or "escrow" keys,
// or via ESCROW_* environment variables, which win over both.
package extension

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/xraph/forge"
	"github.com/xraph/grove"
	"github.com/xraph/vessel"

	"github.com/xraph/escrow"
	"github.com/xraph/escrow/observability"
	"github.com/xraph/escrow/store"
	"github.com/xraph/escrow/store/badger"
	"github.com/xraph/escrow/store/memory"
	"github.com/xraph/escrow/store/mongo"
	"github.com/xraph/escrow/store/postgres"
	"github.com/xraph/escrow/store/sqlite"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "escrow"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Escrowed recurring invoice and payment contract ledger"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts Escrow as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *escrow.Escrow
	store      store.Store
	escrowOpts []escrow.Option
	useGrove   bool
	registerer prometheus.Registerer
}

// New creates a new Escrow Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying Escrow instance.
// This is nil until Register is called.
func (e *Extension) Engine() *escrow.Escrow { return e.engine }

// Config returns the resolved configuration.
func (e *Extension) Config() Config { return e.config }

// Register implements [forge.Extension]. It loads configuration,
// resolves the store, initializes the escrow engine, and registers it
// in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	s, err := e.resolveStore(fapp.Container())
	if err != nil {
		return err
	}
	e.store = s

	e.engine = escrow.New(e.store, e.buildEscrowOpts()...)

	return vessel.Provide(fapp.Container(), func() (*escrow.Escrow, error) {
		return e.engine, nil
	})
}

// Start implements [forge.Extension]. It migrates the store unless
// disabled and records the configured admin if none exists yet.
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("escrow: extension not initialized")
	}

	if !e.config.DisableMigrate {
		if err := e.engine.Start(ctx); err != nil {
			return err
		}
	}

	if e.config.Admin != "" {
		err := e.engine.Instantiate(ctx, e.config.Admin)
		switch {
		case err == nil:
			e.Logger().Info("escrow: admin instantiated", forge.F("admin", e.config.Admin))
		case errors.Is(err, escrow.ErrAlreadyInstantiated):
		default:
			return err
		}
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	if e.engine != nil {
		if err := e.engine.Stop(); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("escrow: store not initialized")
	}
	return e.store.Ping(ctx)
}

// buildEscrowOpts constructs escrow.Option values from the resolved config.
func (e *Extension) buildEscrowOpts() []escrow.Option {
	opts := make([]escrow.Option, 0, len(e.escrowOpts)+3)

	if e.config.CycleUnit > 0 {
		opts = append(opts, escrow.WithCycleUnit(e.config.CycleUnit))
	}
	if e.config.DefaultPageSize > 0 || e.config.MaxPageSize > 0 {
		opts = append(opts, escrow.WithPageLimits(e.config.DefaultPageSize, e.config.MaxPageSize))
	}

	if e.config.MetricsNamespace != "" {
		reg := e.registerer
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		metrics := observability.NewMetricsExtension(observability.NewPrometheusFactory(reg, e.config.MetricsNamespace))
		opts = append(opts, escrow.WithPlugin(metrics))
	}

	// Append any pass-through escrow options.
	opts = append(opts, e.escrowOpts...)

	return opts
}

// --- Store resolution ---

// resolveStore picks the backend in order: programmatic store, grove
// database from DI, badger directory, in-memory.
func (e *Extension) resolveStore(c vessel.Vessel) (store.Store, error) {
	if e.store != nil {
		return e.store, nil
	}

	if e.useGrove || e.config.GroveDatabase != "" {
		db, err := e.resolveGroveDB(c)
		if err != nil {
			return nil, err
		}
		s, err := StoreForGrove(db)
		if err != nil {
			return nil, err
		}
		e.Logger().Debug("escrow: using grove store",
			forge.F("database", e.config.GroveDatabase),
			forge.F("driver", db.Driver().Name()),
		)
		return s, nil
	}

	if e.config.BadgerPath != "" {
		s, err := badger.Open(e.config.BadgerPath)
		if err != nil {
			return nil, err
		}
		e.Logger().Debug("escrow: using badger store", forge.F("path", e.config.BadgerPath))
		return s, nil
	}

	return memory.New(), nil
}

func (e *Extension) resolveGroveDB(c vessel.Vessel) (*grove.DB, error) {
	if e.config.GroveDatabase == "" {
		db, err := vessel.Inject[*grove.DB](c)
		if err != nil {
			return nil, fmt.Errorf("escrow: resolve default grove database: %w", err)
		}
		return db, nil
	}
	db, err := vessel.InjectNamed[*grove.DB](c, e.config.GroveDatabase)
	if err != nil {
		return nil, fmt.Errorf("escrow: resolve grove database %q: %w", e.config.GroveDatabase, err)
	}
	return db, nil
}

// StoreForGrove builds the store backend matching db's driver.
func StoreForGrove(db *grove.DB) (store.Store, error) {
	if db == nil {
		return nil, errors.New("escrow: grove database is nil")
	}
	switch name := db.Driver().Name(); name {
	case "pg":
		return postgres.New(db), nil
	case "sqlite":
		return sqlite.New(db), nil
	case "mongo":
		return mongo.New(db), nil
	default:
		return nil, fmt.Errorf("escrow: unsupported grove driver %q", name)
	}
}

// --- Config Loading (mirrors grove/shield extension pattern) ---

// loadConfiguration loads config from YAML files or programmatic sources,
// then applies environment overrides.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	// Try loading from config file.
	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("escrow: configuration is required but not found in config files; " +
				"ensure 'extensions.escrow' or 'escrow' key exists in your config")
		}

		// Use programmatic config merged with defaults.
		e.config = mergeWithDefaults(programmaticConfig)
	} else {
		// Config loaded from YAML -- merge with programmatic options.
		e.config = mergeConfigurations(fileConfig, programmaticConfig)
	}

	cfg, err := LoadEnv(e.config)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	e.config = cfg

	e.Logger().Debug("escrow: configuration loaded",
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("admin", e.config.Admin),
		forge.F("cycle_unit", e.config.CycleUnit),
		forge.F("default_page_size", e.config.DefaultPageSize),
		forge.F("max_page_size", e.config.MaxPageSize),
		forge.F("grove_database", e.config.GroveDatabase),
		forge.F("badger_path", e.config.BadgerPath),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	// Try "extensions.escrow" first (namespaced pattern).
	if cm.IsSet("extensions.escrow") {
		if err := cm.Bind("extensions.escrow", &cfg); err == nil {
			e.Logger().Debug("escrow: loaded config from file",
				forge.F("key", "extensions.escrow"),
			)
			return cfg, true
		}
		e.Logger().Warn("escrow: failed to bind extensions.escrow config",
			forge.F("error", "bind failed"),
		)
	}

	// Try legacy "escrow" key.
	if cm.IsSet("escrow") {
		if err := cm.Bind("escrow", &cfg); err == nil {
			e.Logger().Debug("escrow: loaded config from file",
				forge.F("key", "escrow"),
			)
			return cfg, true
		}
		e.Logger().Warn("escrow: failed to bind escrow config",
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.CycleUnit == 0 {
		cfg.CycleUnit = defaults.CycleUnit
	}
	if cfg.MaxPageSize == 0 {
		cfg.MaxPageSize = defaults.MaxPageSize
	}
	if cfg.DefaultPageSize == 0 {
		cfg.DefaultPageSize = min(defaults.DefaultPageSize, cfg.MaxPageSize)
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic bool flags fill gaps.
func mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	// Programmatic bool flags override when true.
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}

	// String fields: YAML takes precedence.
	if yamlConfig.Admin == "" {
		yamlConfig.Admin = programmaticConfig.Admin
	}
	if yamlConfig.GroveDatabase == "" {
		yamlConfig.GroveDatabase = programmaticConfig.GroveDatabase
	}
	if yamlConfig.BadgerPath == "" {
		yamlConfig.BadgerPath = programmaticConfig.BadgerPath
	}
	if yamlConfig.MetricsNamespace == "" {
		yamlConfig.MetricsNamespace = programmaticConfig.MetricsNamespace
	}

	// Duration/int fields: YAML takes precedence, programmatic fills gaps.
	if yamlConfig.CycleUnit == 0 {
		yamlConfig.CycleUnit = programmaticConfig.CycleUnit
	}
	if yamlConfig.DefaultPageSize == 0 {
		yamlConfig.DefaultPageSize = programmaticConfig.DefaultPageSize
	}
	if yamlConfig.MaxPageSize == 0 {
		yamlConfig.MaxPageSize = programmaticConfig.MaxPageSize
	}

	// Fill remaining zeros with defaults.
	return mergeWithDefaults(yamlConfig)
}
