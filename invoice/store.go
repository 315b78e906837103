package invoice

import "context"

// Store persists invoices. Get returns escrow.ErrNotFound for unknown ids;
// Put upserts.
type Store interface {
	GetInvoice(ctx context.Context, id uint64) (*Invoice, error)
	PutInvoice(ctx context.Context, inv *Invoice) error
}
