package escrow

import (
	"github.com/xraph/escrow/account"
	"github.com/xraph/escrow/id"
	"github.com/xraph/escrow/invoice"
	"github.com/xraph/escrow/types"
)

// Operation names as they appear on the wire.
const (
	OpSubmitInvoice   = "submit_invoice"
	OpAcceptInvoice   = "accept_invoice"
	OpCancelPayment   = "cancel_payment"
	OpWithdrawPayment = "withdraw_payment"
	OpUpdateAdmin     = "admin_update_admin"
)

// Caller is the authenticated sender of an operation together with the
// funds it attached.
type Caller struct {
	Address string
	Funds   types.Coins
}

// Operation is one of SubmitInvoice, AcceptInvoice, CancelPayment,
// WithdrawPayment or UpdateAdmin.
type Operation interface {
	Name() string
	isOperation()
}

// SubmitInvoice creates a pending invoice owned by the caller.
type SubmitInvoice struct {
	Purpose        string        `json:"purpose" validate:"max=512"`
	Amount         types.Amount  `json:"amount" validate:"gt=0"`
	AdminCharge    types.Amount  `json:"admin_charge"`
	CustomerCharge types.Amount  `json:"customer_charge"`
	Payer          string        `json:"payer" validate:"required,address"`
	Days           uint64        `json:"days"`
	RecurrentTime  uint64        `json:"recurrent_time"`
	Token          invoice.Token `json:"token"`
}

// AcceptInvoice deposits the invoice amount plus customer charge into
// escrow. Only the invoice payer may accept.
type AcceptInvoice struct {
	ID uint64 `json:"id"`
}

// CancelPayment cancels a pending invoice, or an accepted one before its
// first withdrawal, refunding escrow to the payer.
type CancelPayment struct {
	ID uint64 `json:"id"`
}

// WithdrawPayment releases the next due cycle to the invoice owner.
type WithdrawPayment struct {
	ID uint64 `json:"id"`
}

// UpdateAdmin replaces the admin wallet. Only the current admin may call it.
type UpdateAdmin struct {
	NewAdmin string `json:"new_admin" validate:"required,address"`
}

func (SubmitInvoice) Name() string   { return OpSubmitInvoice }
func (AcceptInvoice) Name() string   { return OpAcceptInvoice }
func (CancelPayment) Name() string   { return OpCancelPayment }
func (WithdrawPayment) Name() string { return OpWithdrawPayment }
func (UpdateAdmin) Name() string     { return OpUpdateAdmin }

func (SubmitInvoice) isOperation()   {}
func (AcceptInvoice) isOperation()   {}
func (CancelPayment) isOperation()   {}
func (WithdrawPayment) isOperation() {}
func (UpdateAdmin) isOperation()     {}

// Result describes a committed operation.
type Result struct {
	OperationID id.OperationID      `json:"operation_id"`
	Operation   string              `json:"operation"`
	InvoiceID   uint64              `json:"invoice_id,omitempty"`
	Transfers   []*account.Transfer `json:"transfers,omitempty"`
}
