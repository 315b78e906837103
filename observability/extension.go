// Package observability provides a metrics extension for escrow that records
// lifecycle event counts via a MetricFactory.
package observability

import (
	"context"

	"github.com/xraph/escrow"
	"github.com/xraph/escrow/account"
	"github.com/xraph/escrow/contract"
	"github.com/xraph/escrow/invoice"
	"github.com/xraph/escrow/plugin"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin              = (*MetricsExtension)(nil)
	_ plugin.OnInit              = (*MetricsExtension)(nil)
	_ plugin.OnInvoiceSubmitted  = (*MetricsExtension)(nil)
	_ plugin.OnInvoiceAccepted   = (*MetricsExtension)(nil)
	_ plugin.OnPaymentCancelled  = (*MetricsExtension)(nil)
	_ plugin.OnPaymentWithdrawn  = (*MetricsExtension)(nil)
	_ plugin.OnContractCompleted = (*MetricsExtension)(nil)
	_ plugin.OnAdminUpdated      = (*MetricsExtension)(nil)
	_ plugin.OnOperationFailed   = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide lifecycle metrics.
// Register it as an escrow plugin to track invoice and payment metrics.
type MetricsExtension struct {
	factory MetricFactory

	// Invoice metrics
	InvoiceSubmitted Counter
	InvoiceAccepted  Counter
	InvoiceAmount    Histogram

	// Payment metrics
	PaymentCancelled  Counter
	PaymentWithdrawn  Counter
	ReleaseAmount     Histogram
	RefundedTransfers Counter

	// Contract metrics
	ContractCompleted Counter

	// Admin metrics
	AdminUpdated Counter

	// Error metrics
	OperationFailed Counter
	StoreErrors     Counter
	AuthFailures    Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
// Use app.Metrics() in forge extensions, or NewPrometheusFactory elsewhere.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		InvoiceSubmitted: factory.Counter("escrow.invoice.submitted"),
		InvoiceAccepted:  factory.Counter("escrow.invoice.accepted"),
		InvoiceAmount:    factory.Histogram("escrow.invoice.amount"),

		PaymentCancelled:  factory.Counter("escrow.payment.cancelled"),
		PaymentWithdrawn:  factory.Counter("escrow.payment.withdrawn"),
		ReleaseAmount:     factory.Histogram("escrow.payment.release_amount"),
		RefundedTransfers: factory.Counter("escrow.payment.refunds"),

		ContractCompleted: factory.Counter("escrow.contract.completed"),

		AdminUpdated: factory.Counter("escrow.admin.updated"),

		OperationFailed: factory.Counter("escrow.operation.failed"),
		StoreErrors:     factory.Counter("escrow.store.errors"),
		AuthFailures:    factory.Counter("escrow.auth.failures"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ any) error {
	return nil
}

// ──────────────────────────────────────────────────
// Invoice lifecycle hooks
// ──────────────────────────────────────────────────

// OnInvoiceSubmitted implements plugin.OnInvoiceSubmitted.
func (m *MetricsExtension) OnInvoiceSubmitted(_ context.Context, inv *invoice.Invoice) error {
	m.InvoiceSubmitted.Inc()
	m.InvoiceAmount.Observe(float64(inv.Amount))
	return nil
}

// OnInvoiceAccepted implements plugin.OnInvoiceAccepted.
func (m *MetricsExtension) OnInvoiceAccepted(_ context.Context, _ *invoice.Invoice, _ *contract.Contract) error {
	m.InvoiceAccepted.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Payment lifecycle hooks
// ──────────────────────────────────────────────────

// OnPaymentCancelled implements plugin.OnPaymentCancelled.
func (m *MetricsExtension) OnPaymentCancelled(_ context.Context, _ *invoice.Invoice, refunds []*account.Transfer) error {
	m.PaymentCancelled.Inc()
	m.RefundedTransfers.Add(float64(len(refunds)))
	return nil
}

// OnPaymentWithdrawn implements plugin.OnPaymentWithdrawn.
func (m *MetricsExtension) OnPaymentWithdrawn(_ context.Context, _ *invoice.Invoice, release *account.Transfer) error {
	m.PaymentWithdrawn.Inc()
	m.ReleaseAmount.Observe(float64(release.Coin.Amount))
	return nil
}

// OnContractCompleted implements plugin.OnContractCompleted.
func (m *MetricsExtension) OnContractCompleted(_ context.Context, _ *invoice.Invoice, _ *contract.Contract) error {
	m.ContractCompleted.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Admin and failure hooks
// ──────────────────────────────────────────────────

// OnAdminUpdated implements plugin.OnAdminUpdated.
func (m *MetricsExtension) OnAdminUpdated(_ context.Context, _, _ string) error {
	m.AdminUpdated.Inc()
	return nil
}

// OnOperationFailed implements plugin.OnOperationFailed.
func (m *MetricsExtension) OnOperationFailed(_ context.Context, _, _ string, err error) error {
	m.OperationFailed.Inc()
	switch escrow.KindOf(err) {
	case escrow.KindStoreCorrupt, escrow.KindInternal:
		m.StoreErrors.Inc()
	case escrow.KindUnauthorized, escrow.KindWrongPayer:
		m.AuthFailures.Inc()
	}
	return nil
}
