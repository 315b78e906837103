// Package audithook bridges escrow lifecycle events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not import
// Chronicle directly. Callers inject a RecorderFunc adapter that bridges
// to Chronicle at wiring time.
package audithook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/xraph/escrow"
	"github.com/xraph/escrow/account"
	"github.com/xraph/escrow/contract"
	"github.com/xraph/escrow/invoice"
	"github.com/xraph/escrow/plugin"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin              = (*Extension)(nil)
	_ plugin.OnInvoiceSubmitted  = (*Extension)(nil)
	_ plugin.OnInvoiceAccepted   = (*Extension)(nil)
	_ plugin.OnPaymentCancelled  = (*Extension)(nil)
	_ plugin.OnPaymentWithdrawn  = (*Extension)(nil)
	_ plugin.OnContractCompleted = (*Extension)(nil)
	_ plugin.OnAdminUpdated      = (*Extension)(nil)
	_ plugin.OnOperationFailed   = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
// It mirrors chronicle.Emitter; callers inject the concrete backend at
// wiring time.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
// It mirrors chronicle/audit.Event but avoids a module dependency.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges escrow lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Invoice lifecycle hooks
// ──────────────────────────────────────────────────

// OnInvoiceSubmitted implements plugin.OnInvoiceSubmitted.
func (e *Extension) OnInvoiceSubmitted(ctx context.Context, inv *invoice.Invoice) error {
	return e.record(ctx, ActionInvoiceSubmitted, SeverityInfo, OutcomeSuccess,
		ResourceInvoice, invoiceID(inv.ID), CategoryBilling, nil,
		"owner", inv.Owner,
		"payer", inv.Payer,
		"amount", inv.Amount.String(),
		"denom", inv.Token.Denom(),
		"recurrent_time", inv.RecurrentTime,
	)
}

// OnInvoiceAccepted implements plugin.OnInvoiceAccepted.
func (e *Extension) OnInvoiceAccepted(ctx context.Context, inv *invoice.Invoice, c *contract.Contract) error {
	return e.record(ctx, ActionInvoiceAccepted, SeverityInfo, OutcomeSuccess,
		ResourceInvoice, invoiceID(inv.ID), CategoryPayment, nil,
		"payer", inv.Payer,
		"escrow_balance", c.EscrowBalance.String(),
		"next_withdrawal_at", c.NextWithdrawalAt,
	)
}

// ──────────────────────────────────────────────────
// Payment lifecycle hooks
// ──────────────────────────────────────────────────

// OnPaymentCancelled implements plugin.OnPaymentCancelled.
func (e *Extension) OnPaymentCancelled(ctx context.Context, inv *invoice.Invoice, refunds []*account.Transfer) error {
	refunded := make([]string, 0, len(refunds))
	for _, t := range refunds {
		refunded = append(refunded, t.Coin.String())
	}
	return e.record(ctx, ActionPaymentCancelled, SeverityWarning, OutcomeSuccess,
		ResourceInvoice, invoiceID(inv.ID), CategoryPayment, nil,
		"payer", inv.Payer,
		"refunds", refunded,
	)
}

// OnPaymentWithdrawn implements plugin.OnPaymentWithdrawn.
func (e *Extension) OnPaymentWithdrawn(ctx context.Context, inv *invoice.Invoice, release *account.Transfer) error {
	return e.record(ctx, ActionPaymentWithdrawn, SeverityInfo, OutcomeSuccess,
		ResourceInvoice, invoiceID(inv.ID), CategoryPayment, nil,
		"owner", inv.Owner,
		"amount", release.Coin.String(),
		"cycles_withdrawn", inv.CyclesWithdrawn,
		"transfer_id", release.ID.String(),
	)
}

// OnContractCompleted implements plugin.OnContractCompleted.
func (e *Extension) OnContractCompleted(ctx context.Context, inv *invoice.Invoice, c *contract.Contract) error {
	return e.record(ctx, ActionContractCompleted, SeverityInfo, OutcomeSuccess,
		ResourceContract, invoiceID(c.ID), CategoryPayment, nil,
		"payer", c.Payer,
		"payee", c.Payee,
		"total_cycles", c.TotalCycles,
	)
}

// ──────────────────────────────────────────────────
// Admin and failure hooks
// ──────────────────────────────────────────────────

// OnAdminUpdated implements plugin.OnAdminUpdated.
func (e *Extension) OnAdminUpdated(ctx context.Context, previous, current string) error {
	return e.record(ctx, ActionAdminUpdated, SeverityWarning, OutcomeSuccess,
		ResourceAdmin, current, CategoryAccess, nil,
		"previous", previous,
		"current", current,
	)
}

// OnOperationFailed implements plugin.OnOperationFailed.
func (e *Extension) OnOperationFailed(ctx context.Context, operation, caller string, err error) error {
	kind := escrow.KindOf(err)

	severity, category := SeverityInfo, CategoryBilling
	switch kind {
	case escrow.KindUnauthorized, escrow.KindWrongPayer:
		severity, category = SeverityWarning, CategoryAccess
	case escrow.KindStoreCorrupt:
		severity = SeverityCritical
	case escrow.KindInternal:
		severity = SeverityError
	}

	var resourceID string
	var oe *escrow.OpError
	if errors.As(err, &oe) && oe.InvoiceID != 0 {
		resourceID = invoiceID(oe.InvoiceID)
	}

	return e.record(ctx, ActionOperationFailed, severity, OutcomeFailure,
		ResourceOperation, resourceID, category, err,
		"operation", operation,
		"caller", caller,
		"kind", string(kind),
	)
}

func invoiceID(id uint64) string { return strconv.FormatUint(id, 10) }

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
