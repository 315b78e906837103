package audithook

// Action constants for audit events.
const (
	// Invoice actions
	ActionInvoiceSubmitted = "invoice.submitted"
	ActionInvoiceAccepted  = "invoice.accepted"

	// Payment actions
	ActionPaymentCancelled = "payment.cancelled"
	ActionPaymentWithdrawn = "payment.withdrawn"

	// Contract actions
	ActionContractCompleted = "contract.completed"

	// Admin actions
	ActionAdminUpdated = "admin.updated"

	// Failures
	ActionOperationFailed = "operation.failed"
)

// Resource constants for audit events.
const (
	ResourceInvoice   = "invoice"
	ResourceContract  = "contract"
	ResourceAdmin     = "admin"
	ResourceOperation = "operation"
)

// Category constants for audit events.
const (
	CategoryBilling = "billing"
	CategoryPayment = "payment"
	CategoryAccess  = "access"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)
