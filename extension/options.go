package extension

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/xraph/escrow"
	"github.com/xraph/escrow/plugin"
	"github.com/xraph/escrow/store"
)

// Option configures the Escrow Forge extension.
type Option func(*Extension)

// WithStore sets the store for the escrow engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithEscrowOption passes an escrow.Option through to the underlying engine.
func WithEscrowOption(opt escrow.Option) Option {
	return func(e *Extension) {
		e.escrowOpts = append(e.escrowOpts, opt)
	}
}

// WithPlugin registers an escrow plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.escrowOpts = append(e.escrowOpts, escrow.WithPlugin(p))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithAdmin sets the admin wallet recorded on first start.
func WithAdmin(addr string) Option {
	return func(e *Extension) { e.config.Admin = addr }
}

// WithCycleUnit sets the length of one billing day.
func WithCycleUnit(d time.Duration) Option {
	return func(e *Extension) { e.config.CycleUnit = d }
}

// WithPageLimits sets the default and maximum page sizes for paginated queries.
func WithPageLimits(defaultSize, maxSize int) Option {
	return func(e *Extension) {
		e.config.DefaultPageSize = defaultSize
		e.config.MaxPageSize = maxSize
	}
}

// WithBadgerPath opens an embedded badger store at path.
func WithBadgerPath(path string) Option {
	return func(e *Extension) { e.config.BadgerPath = path }
}

// WithMetrics registers the Prometheus metrics plugin on reg under namespace.
func WithMetrics(reg prometheus.Registerer, namespace string) Option {
	return func(e *Extension) {
		e.registerer = reg
		e.config.MetricsNamespace = namespace
	}
}

// WithGroveDatabase sets the name of the grove.DB to resolve from the DI container.
// The extension will auto-construct the appropriate store backend (postgres/sqlite/mongo)
// based on the grove driver type. Pass an empty string to use the default (unnamed) grove.DB.
func WithGroveDatabase(name string) Option {
	return func(e *Extension) {
		e.config.GroveDatabase = name
		e.useGrove = true
	}
}
