package escrow

import (
	"context"
	"fmt"
	"math"

	"github.com/xraph/escrow/account"
	"github.com/xraph/escrow/contract"
	"github.com/xraph/escrow/invoice"
	"github.com/xraph/escrow/store"
	"github.com/xraph/escrow/types"
)

// Query names as they appear on the wire.
const (
	QuerySingleInvoice     = "single_invoice"
	QueryPaginatedInvoice  = "paginated_invoice"
	QueryNumberOfInvoice   = "number_of_invoice"
	QuerySingleContract    = "single_contract"
	QueryPaginatedContract = "paginated_contract"
	QueryNumberOfContract  = "number_of_contract"
	QueryAdminWallet       = "admin_wallet"
	QueryBalance           = "balance"
	QueryTransfers         = "transfers"
)

// Query is a read-only request. Queries never change state.
type Query interface {
	Name() string
	isQuery()
}

// SingleInvoice returns one invoice if owner submitted it.
type SingleInvoice struct {
	ID    uint64 `json:"id"`
	Owner string `json:"owner"`
}

// PaginatedInvoice lists an owner's invoices in ascending id order.
type PaginatedInvoice struct {
	Owner    string `json:"owner"`
	Page     uint32 `json:"page"`
	PageSize uint32 `json:"page_size"`
}

// NumberOfInvoice counts an owner's invoices.
type NumberOfInvoice struct {
	Owner string `json:"owner"`
}

// SingleContract returns one payment contract if payer owns it.
type SingleContract struct {
	ID    uint64 `json:"id"`
	Payer string `json:"payer"`
}

// PaginatedContract lists a payer's contracts in ascending id order.
type PaginatedContract struct {
	Payer    string `json:"payer"`
	Page     uint32 `json:"page"`
	PageSize uint32 `json:"page_size"`
}

// NumberOfContract counts a payer's contracts.
type NumberOfContract struct {
	Payer string `json:"payer"`
}

// AdminWallet returns the current admin address.
type AdminWallet struct{}

// BalanceOf returns the credited balance of owner in denom.
type BalanceOf struct {
	Owner string `json:"owner"`
	Denom string `json:"denom"`
}

// InvoiceTransfers lists every credit made for an invoice.
type InvoiceTransfers struct {
	InvoiceID uint64 `json:"invoice_id"`
}

func (SingleInvoice) Name() string     { return QuerySingleInvoice }
func (PaginatedInvoice) Name() string  { return QueryPaginatedInvoice }
func (NumberOfInvoice) Name() string   { return QueryNumberOfInvoice }
func (SingleContract) Name() string    { return QuerySingleContract }
func (PaginatedContract) Name() string { return QueryPaginatedContract }
func (NumberOfContract) Name() string  { return QueryNumberOfContract }
func (AdminWallet) Name() string       { return QueryAdminWallet }
func (BalanceOf) Name() string         { return QueryBalance }
func (InvoiceTransfers) Name() string  { return QueryTransfers }

func (SingleInvoice) isQuery()     {}
func (PaginatedInvoice) isQuery()  {}
func (NumberOfInvoice) isQuery()   {}
func (SingleContract) isQuery()    {}
func (PaginatedContract) isQuery() {}
func (NumberOfContract) isQuery()  {}
func (AdminWallet) isQuery()       {}
func (BalanceOf) isQuery()         {}
func (InvoiceTransfers) isQuery()  {}

// Query answers q. The concrete result type depends on the query:
// *invoice.Invoice, []*invoice.Invoice, *contract.Contract,
// []*contract.Contract, uint64 for counts, string for the admin wallet,
// types.Amount for balances and []*account.Transfer for transfers.
func (e *Escrow) Query(ctx context.Context, q Query) (any, error) {
	switch q := q.(type) {
	case SingleInvoice:
		return e.SingleInvoice(ctx, q.ID, q.Owner)
	case PaginatedInvoice:
		return e.PaginatedInvoice(ctx, q.Owner, q.Page, q.PageSize)
	case NumberOfInvoice:
		return e.NumberOfInvoice(ctx, q.Owner)
	case SingleContract:
		return e.SingleContract(ctx, q.ID, q.Payer)
	case PaginatedContract:
		return e.PaginatedContract(ctx, q.Payer, q.Page, q.PageSize)
	case NumberOfContract:
		return e.NumberOfContract(ctx, q.Payer)
	case AdminWallet:
		return e.AdminWallet(ctx)
	case BalanceOf:
		return e.Balance(ctx, q.Owner, q.Denom)
	case InvoiceTransfers:
		return e.Transfers(ctx, q.InvoiceID)
	case nil:
		return nil, fmt.Errorf("%w: nil query", ErrInvalidInput)
	default:
		return nil, fmt.Errorf("%w: unknown query %s", ErrInvalidInput, q.Name())
	}
}

// ──────────────────────────────────────────────────
// Invoices
// ──────────────────────────────────────────────────

// SingleInvoice returns invoice id. Invoices owned by someone else are
// reported as ErrNotFound.
func (e *Escrow) SingleInvoice(ctx context.Context, id uint64, owner string) (*invoice.Invoice, error) {
	var inv *invoice.Invoice
	err := e.store.View(ctx, func(tx store.Tx) error {
		var err error
		inv, err = tx.GetInvoice(ctx, id)
		if err != nil {
			return err
		}
		if inv.Owner != owner {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return nil, opError(QuerySingleInvoice, id, err)
	}
	return inv, nil
}

// PaginatedInvoice returns one page of the invoices owner submitted.
func (e *Escrow) PaginatedInvoice(ctx context.Context, owner string, page, pageSize uint32) ([]*invoice.Invoice, error) {
	out := []*invoice.Invoice{}
	err := e.store.View(ctx, func(tx store.Tx) error {
		ids, err := e.indexPage(ctx, tx, store.IndexOwnerInvoices, owner, page, pageSize)
		if err != nil {
			return err
		}
		for _, invoiceID := range ids {
			inv, err := tx.GetInvoice(ctx, invoiceID)
			if err != nil {
				return indexed(err, store.IndexOwnerInvoices, invoiceID)
			}
			if inv.Owner != owner {
				return fmt.Errorf("%w: invoice %d indexed under %s", ErrStoreCorrupt, invoiceID, owner)
			}
			out = append(out, inv)
		}
		return nil
	})
	if err != nil {
		return nil, opError(QueryPaginatedInvoice, 0, err)
	}
	return out, nil
}

// NumberOfInvoice returns how many invoices owner submitted.
func (e *Escrow) NumberOfInvoice(ctx context.Context, owner string) (uint64, error) {
	var n uint64
	err := e.store.View(ctx, func(tx store.Tx) error {
		var err error
		n, err = tx.IndexLen(ctx, store.IndexOwnerInvoices, owner)
		return err
	})
	if err != nil {
		return 0, opError(QueryNumberOfInvoice, 0, err)
	}
	return n, nil
}

// ──────────────────────────────────────────────────
// Contracts
// ──────────────────────────────────────────────────

// SingleContract returns contract id. Contracts of another payer are
// reported as ErrNotFound.
func (e *Escrow) SingleContract(ctx context.Context, id uint64, payer string) (*contract.Contract, error) {
	var c *contract.Contract
	err := e.store.View(ctx, func(tx store.Tx) error {
		var err error
		c, err = tx.GetContract(ctx, id)
		if err != nil {
			return err
		}
		if c.Payer != payer {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return nil, opError(QuerySingleContract, id, err)
	}
	return c, nil
}

// PaginatedContract returns one page of payer's contracts.
func (e *Escrow) PaginatedContract(ctx context.Context, payer string, page, pageSize uint32) ([]*contract.Contract, error) {
	out := []*contract.Contract{}
	err := e.store.View(ctx, func(tx store.Tx) error {
		ids, err := e.indexPage(ctx, tx, store.IndexPayerContracts, payer, page, pageSize)
		if err != nil {
			return err
		}
		for _, contractID := range ids {
			c, err := tx.GetContract(ctx, contractID)
			if err != nil {
				return indexed(err, store.IndexPayerContracts, contractID)
			}
			if c.Payer != payer {
				return fmt.Errorf("%w: contract %d indexed under %s", ErrStoreCorrupt, contractID, payer)
			}
			out = append(out, c)
		}
		return nil
	})
	if err != nil {
		return nil, opError(QueryPaginatedContract, 0, err)
	}
	return out, nil
}

// NumberOfContract returns how many contracts payer holds.
func (e *Escrow) NumberOfContract(ctx context.Context, payer string) (uint64, error) {
	var n uint64
	err := e.store.View(ctx, func(tx store.Tx) error {
		var err error
		n, err = tx.IndexLen(ctx, store.IndexPayerContracts, payer)
		return err
	})
	if err != nil {
		return 0, opError(QueryNumberOfContract, 0, err)
	}
	return n, nil
}

// ──────────────────────────────────────────────────
// Accounts
// ──────────────────────────────────────────────────

// AdminWallet returns the current admin address, or ErrNotInstantiated.
func (e *Escrow) AdminWallet(ctx context.Context) (string, error) {
	var admin string
	err := e.store.View(ctx, func(tx store.Tx) error {
		var err error
		admin, err = tx.GetAdmin(ctx)
		if IsNotFound(err) {
			return ErrNotInstantiated
		}
		return err
	})
	if err != nil {
		return "", opError(QueryAdminWallet, 0, err)
	}
	return admin, nil
}

// Balance returns what has been credited to owner in denom.
func (e *Escrow) Balance(ctx context.Context, owner, denom string) (types.Amount, error) {
	var bal types.Amount
	err := e.store.View(ctx, func(tx store.Tx) error {
		var err error
		bal, err = tx.GetBalance(ctx, owner, denom)
		return err
	})
	if err != nil {
		return 0, opError(QueryBalance, 0, err)
	}
	return bal, nil
}

// Transfers returns the credits made for invoiceID in the order they
// happened.
func (e *Escrow) Transfers(ctx context.Context, invoiceID uint64) ([]*account.Transfer, error) {
	out := []*account.Transfer{}
	err := e.store.View(ctx, func(tx store.Tx) error {
		ts, err := tx.ListTransfers(ctx, invoiceID)
		if err != nil {
			return err
		}
		out = append(out, ts...)
		return nil
	})
	if err != nil {
		return nil, opError(QueryTransfers, invoiceID, err)
	}
	return out, nil
}

// ──────────────────────────────────────────────────
// Pagination
// ──────────────────────────────────────────────────

// pageWindow converts a zero-based page and page size to an offset and
// limit. ok is false when the window starts beyond any addressable entry.
func (e *Escrow) pageWindow(page, pageSize uint32) (offset, limit int, ok bool) {
	size := int(pageSize)
	if size == 0 {
		size = e.defaultPageSize
	}
	if size > e.maxPageSize {
		size = e.maxPageSize
	}
	start := uint64(page) * uint64(size)
	if start > math.MaxInt32 {
		return 0, 0, false
	}
	return int(start), size, true
}

func (e *Escrow) indexPage(ctx context.Context, tx store.Tx, index, key string, page, pageSize uint32) ([]uint64, error) {
	offset, limit, ok := e.pageWindow(page, pageSize)
	if !ok {
		return nil, nil
	}
	return tx.IndexRange(ctx, index, key, offset, limit)
}

// indexed turns a missing primary record behind an index entry into
// ErrStoreCorrupt.
func indexed(err error, index string, id uint64) error {
	if IsNotFound(err) {
		return fmt.Errorf("%w: %s references missing id %d", ErrStoreCorrupt, index, id)
	}
	return err
}
