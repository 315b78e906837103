// Package contract defines the payer-facing payment contract created when
// an invoice is accepted.
package contract

import (
	"time"

	"github.com/xraph/escrow/types"
)

// Status is the lifecycle state of a payment contract.
type Status string

const (
	StatusActive    Status = "active"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// Contract tracks the escrowed funds and release schedule of one accepted
// invoice. Its ID equals the invoice ID.
type Contract struct {
	types.Entity

	ID               uint64       `json:"id"`
	InvoiceID        uint64       `json:"invoice_id"`
	Payer            string       `json:"payer"`
	Payee            string       `json:"payee"`
	Denom            string       `json:"denom"`
	TotalCycles      uint64       `json:"total_cycles"`
	RemainingCycles  uint64       `json:"remaining_cycles"`
	NextWithdrawalAt time.Time    `json:"next_withdrawal_at"`
	EscrowBalance    types.Amount `json:"escrow_balance"`
	Status           Status       `json:"status"`
}

// Clone returns a copy.
func (c *Contract) Clone() *Contract {
	cp := *c
	return &cp
}
