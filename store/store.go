// Package store defines the transactional storage contract of the escrow
// engine. Backends live in the sub-packages.
package store

import (
	"context"

	"github.com/xraph/escrow/account"
	"github.com/xraph/escrow/contract"
	"github.com/xraph/escrow/invoice"
)

// Counter names.
const (
	CounterInvoices  = "invoices"
	CounterTransfers = "transfers"
)

// Index names.
const (
	// IndexOwnerInvoices maps an owner address to the invoices it submitted.
	IndexOwnerInvoices = "owner_invoices"
	// IndexPayerContracts maps a payer address to its payment contracts.
	IndexPayerContracts = "payer_contracts"
)

// Tx is a unit of work. Writes made through a Tx become visible together
// when Update returns nil and are discarded otherwise.
type Tx interface {
	invoice.Store
	contract.Store
	account.Store

	// NextID increments counter and returns the new value. The first value
	// of every counter is 1.
	NextID(ctx context.Context, counter string) (uint64, error)

	// IndexAppend adds id under (index, key). Appending an existing id is a
	// no-op.
	IndexAppend(ctx context.Context, index, key string, id uint64) error

	// IndexRange returns up to limit ids under (index, key) in ascending
	// order, skipping the first offset.
	IndexRange(ctx context.Context, index, key string, offset, limit int) ([]uint64, error)

	// IndexLen returns the number of ids under (index, key).
	IndexLen(ctx context.Context, index, key string) (uint64, error)
}

// Store is implemented by every backend.
type Store interface {
	// Update runs fn in a read-write transaction.
	Update(ctx context.Context, fn func(Tx) error) error

	// View runs fn against a consistent snapshot. Writes fail with
	// escrow.ErrReadOnly.
	View(ctx context.Context, fn func(Tx) error) error

	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
