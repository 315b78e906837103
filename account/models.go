// Package account holds the admin wallet, per-owner token balances and the
// journal of every credit the escrow engine makes.
package account

import (
	"time"

	"github.com/xraph/escrow/id"
	"github.com/xraph/escrow/types"
)

// Kind classifies a transfer.
type Kind string

const (
	// KindAdminFee is the admin charge taken at acceptance.
	KindAdminFee Kind = "admin_fee"
	// KindRelease is one cycle of the payee share.
	KindRelease Kind = "release"
	// KindCustomerCharge is the customer charge paid to the admin once the
	// contract completes.
	KindCustomerCharge Kind = "customer_charge"
	// KindRefund returns escrowed or excess funds to the payer.
	KindRefund Kind = "refund"
)

// Transfer is one balance credit.
type Transfer struct {
	ID          id.TransferID  `json:"id"`
	Seq         uint64         `json:"seq"`
	OperationID id.OperationID `json:"operation_id"`
	InvoiceID   uint64         `json:"invoice_id"`
	Kind        Kind           `json:"kind"`
	Recipient   string         `json:"recipient"`
	Coin        types.Coin     `json:"coin"`
	CreatedAt   time.Time      `json:"created_at"`
}
