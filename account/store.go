package account

import (
	"context"

	"github.com/xraph/escrow/types"
)

// Store persists the admin address, balances and the transfer journal.
type Store interface {
	// GetAdmin returns escrow.ErrNotFound before instantiation.
	GetAdmin(ctx context.Context) (string, error)
	PutAdmin(ctx context.Context, address string) error

	// GetBalance returns zero for an owner that was never credited.
	GetBalance(ctx context.Context, owner, denom string) (types.Amount, error)
	PutBalance(ctx context.Context, owner, denom string, amount types.Amount) error

	AppendTransfer(ctx context.Context, t *Transfer) error
	// ListTransfers returns an invoice's transfers in Seq order.
	ListTransfers(ctx context.Context, invoiceID uint64) ([]*Transfer, error)
}
