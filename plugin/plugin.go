// Package plugin provides the hook system of the escrow engine.
// Plugins implement any subset of the hook interfaces below; the engine
// calls them after the corresponding transition has committed.
package plugin

import (
	"context"

	"github.com/xraph/escrow/account"
	"github.com/xraph/escrow/contract"
	"github.com/xraph/escrow/invoice"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the engine starts.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine any) error
}

// OnShutdown is called when the engine stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Invoice hooks
// ──────────────────────────────────────────────────

// OnInvoiceSubmitted is called after a new invoice is stored.
type OnInvoiceSubmitted interface {
	Plugin
	OnInvoiceSubmitted(ctx context.Context, inv *invoice.Invoice) error
}

// OnInvoiceAccepted is called after a payer accepts an invoice and its
// payment contract is created.
type OnInvoiceAccepted interface {
	Plugin
	OnInvoiceAccepted(ctx context.Context, inv *invoice.Invoice, c *contract.Contract) error
}

// ──────────────────────────────────────────────────
// Payment hooks
// ──────────────────────────────────────────────────

// OnPaymentCancelled is called after an invoice is cancelled. refunds is
// empty when nothing was escrowed.
type OnPaymentCancelled interface {
	Plugin
	OnPaymentCancelled(ctx context.Context, inv *invoice.Invoice, refunds []*account.Transfer) error
}

// OnPaymentWithdrawn is called after one cycle is released to the payee.
type OnPaymentWithdrawn interface {
	Plugin
	OnPaymentWithdrawn(ctx context.Context, inv *invoice.Invoice, release *account.Transfer) error
}

// OnContractCompleted is called when the last cycle is withdrawn.
type OnContractCompleted interface {
	Plugin
	OnContractCompleted(ctx context.Context, inv *invoice.Invoice, c *contract.Contract) error
}

// ──────────────────────────────────────────────────
// Admin hooks
// ──────────────────────────────────────────────────

// OnAdminUpdated is called when the admin wallet is set or replaced.
// previous is empty on instantiation.
type OnAdminUpdated interface {
	Plugin
	OnAdminUpdated(ctx context.Context, previous, current string) error
}

// ──────────────────────────────────────────────────
// Failure hooks
// ──────────────────────────────────────────────────

// OnOperationFailed is called when an operation is rejected. No state
// changed.
type OnOperationFailed interface {
	Plugin
	OnOperationFailed(ctx context.Context, operation, caller string, err error) error
}
