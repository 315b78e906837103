package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/xraph/escrow/account"
	"github.com/xraph/escrow/contract"
	"github.com/xraph/escrow/invoice"
)

// DefaultTimeout bounds every hook call.
const DefaultTimeout = 5 * time.Second

// Registry manages all registered plugins and provides efficient dispatch.
// Hook implementations are discovered once, at registration.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	onInit              []OnInit
	onShutdown          []OnShutdown
	onInvoiceSubmitted  []OnInvoiceSubmitted
	onInvoiceAccepted   []OnInvoiceAccepted
	onPaymentCancelled  []OnPaymentCancelled
	onPaymentWithdrawn  []OnPaymentWithdrawn
	onContractCompleted []OnContractCompleted
	onAdminUpdated      []OnAdminUpdated
	onOperationFailed   []OnOperationFailed
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets the per-hook timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	r.timeout = d
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnInvoiceSubmitted); ok {
		r.onInvoiceSubmitted = append(r.onInvoiceSubmitted, v)
	}
	if v, ok := p.(OnInvoiceAccepted); ok {
		r.onInvoiceAccepted = append(r.onInvoiceAccepted, v)
	}
	if v, ok := p.(OnPaymentCancelled); ok {
		r.onPaymentCancelled = append(r.onPaymentCancelled, v)
	}
	if v, ok := p.(OnPaymentWithdrawn); ok {
		r.onPaymentWithdrawn = append(r.onPaymentWithdrawn, v)
	}
	if v, ok := p.(OnContractCompleted); ok {
		r.onContractCompleted = append(r.onContractCompleted, v)
	}
	if v, ok := p.(OnAdminUpdated); ok {
		r.onAdminUpdated = append(r.onAdminUpdated, v)
	}
	if v, ok := p.(OnOperationFailed); ok {
		r.onOperationFailed = append(r.onOperationFailed, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", implementedInterfaces(p),
	)

	return nil
}

// implementedInterfaces returns the hook interfaces implemented by p.
func implementedInterfaces(p Plugin) []string {
	var interfaces []string
	v := reflect.TypeOf(p)

	check := func(iface reflect.Type, name string) {
		if v.Implements(iface) {
			interfaces = append(interfaces, name)
		}
	}

	check(reflect.TypeOf((*OnInit)(nil)).Elem(), "OnInit")
	check(reflect.TypeOf((*OnShutdown)(nil)).Elem(), "OnShutdown")
	check(reflect.TypeOf((*OnInvoiceSubmitted)(nil)).Elem(), "OnInvoiceSubmitted")
	check(reflect.TypeOf((*OnInvoiceAccepted)(nil)).Elem(), "OnInvoiceAccepted")
	check(reflect.TypeOf((*OnPaymentCancelled)(nil)).Elem(), "OnPaymentCancelled")
	check(reflect.TypeOf((*OnPaymentWithdrawn)(nil)).Elem(), "OnPaymentWithdrawn")
	check(reflect.TypeOf((*OnContractCompleted)(nil)).Elem(), "OnContractCompleted")
	check(reflect.TypeOf((*OnAdminUpdated)(nil)).Elem(), "OnAdminUpdated")
	check(reflect.TypeOf((*OnOperationFailed)(nil)).Elem(), "OnOperationFailed")

	return interfaces
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, engine any) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnInit", func() error {
			return p.OnInit(ctx, engine)
		})
	}
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnShutdown", func() error {
			return p.OnShutdown(ctx)
		})
	}
}

// EmitInvoiceSubmitted emits an invoice submitted event.
func (r *Registry) EmitInvoiceSubmitted(ctx context.Context, inv *invoice.Invoice) {
	r.mu.RLock()
	plugins := r.onInvoiceSubmitted
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnInvoiceSubmitted", func() error {
			return p.OnInvoiceSubmitted(ctx, inv)
		})
	}
}

// EmitInvoiceAccepted emits an invoice accepted event.
func (r *Registry) EmitInvoiceAccepted(ctx context.Context, inv *invoice.Invoice, c *contract.Contract) {
	r.mu.RLock()
	plugins := r.onInvoiceAccepted
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnInvoiceAccepted", func() error {
			return p.OnInvoiceAccepted(ctx, inv, c)
		})
	}
}

// EmitPaymentCancelled emits a payment cancelled event.
func (r *Registry) EmitPaymentCancelled(ctx context.Context, inv *invoice.Invoice, refunds []*account.Transfer) {
	r.mu.RLock()
	plugins := r.onPaymentCancelled
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnPaymentCancelled", func() error {
			return p.OnPaymentCancelled(ctx, inv, refunds)
		})
	}
}

// EmitPaymentWithdrawn emits a payment withdrawn event.
func (r *Registry) EmitPaymentWithdrawn(ctx context.Context, inv *invoice.Invoice, release *account.Transfer) {
	r.mu.RLock()
	plugins := r.onPaymentWithdrawn
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnPaymentWithdrawn", func() error {
			return p.OnPaymentWithdrawn(ctx, inv, release)
		})
	}
}

// EmitContractCompleted emits a contract completed event.
func (r *Registry) EmitContractCompleted(ctx context.Context, inv *invoice.Invoice, c *contract.Contract) {
	r.mu.RLock()
	plugins := r.onContractCompleted
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnContractCompleted", func() error {
			return p.OnContractCompleted(ctx, inv, c)
		})
	}
}

// EmitAdminUpdated emits an admin updated event.
func (r *Registry) EmitAdminUpdated(ctx context.Context, previous, current string) {
	r.mu.RLock()
	plugins := r.onAdminUpdated
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnAdminUpdated", func() error {
			return p.OnAdminUpdated(ctx, previous, current)
		})
	}
}

// EmitOperationFailed emits an operation failed event.
func (r *Registry) EmitOperationFailed(ctx context.Context, operation, caller string, err error) {
	r.mu.RLock()
	plugins := r.onOperationFailed
	r.mu.RUnlock()

	for _, p := range plugins {
		r.dispatch(ctx, p.Name(), "OnOperationFailed", func() error {
			return p.OnOperationFailed(ctx, operation, caller, err)
		})
	}
}

// dispatch runs one hook and logs its failure.
func (r *Registry) dispatch(ctx context.Context, pluginName, hook string, fn func() error) {
	if err := r.callWithTimeout(ctx, pluginName, fn); err != nil {
		r.logger.Warn("plugin "+hook+" failed",
			"plugin", pluginName,
			"error", err,
		)
	}
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins never block the operation pipeline for longer than r.timeout.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
