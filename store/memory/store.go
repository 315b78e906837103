// Package memory provides an in-process store.Store. It is the default
// backend for tests and single-process deployments.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/xraph/escrow"
	"github.com/xraph/escrow/account"
	"github.com/xraph/escrow/contract"
	"github.com/xraph/escrow/invoice"
	"github.com/xraph/escrow/store"
	"github.com/xraph/escrow/types"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

type state struct {
	counters  map[string]uint64
	invoices  map[uint64]*invoice.Invoice
	contracts map[uint64]*contract.Contract
	index     map[indexKey][]uint64
	balances  map[balanceKey]types.Amount
	transfers map[uint64][]*account.Transfer
	admin     *string
}

type indexKey struct{ index, key string }

type balanceKey struct{ owner, denom string }

func newState() *state {
	return &state{
		counters:  make(map[string]uint64),
		invoices:  make(map[uint64]*invoice.Invoice),
		contracts: make(map[uint64]*contract.Contract),
		index:     make(map[indexKey][]uint64),
		balances:  make(map[balanceKey]types.Amount),
		transfers: make(map[uint64][]*account.Transfer),
	}
}

// Store keeps all escrow state in maps guarded by a RWMutex. Update holds
// the write lock for the whole transaction and buffers writes until fn
// returns nil.
type Store struct {
	mu   sync.RWMutex
	data *state
}

// New creates an empty memory store.
func New() *Store {
	return &Store{data: newState()}
}

// Update runs fn in a read-write transaction.
func (s *Store) Update(ctx context.Context, fn func(store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t := &tx{base: s.data, pending: newState()}
	if err := fn(t); err != nil {
		return err
	}
	t.commit()
	return nil
}

// View runs fn against the current state. Writes fail with ErrReadOnly.
func (s *Store) View(ctx context.Context, fn func(store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	return fn(&tx{base: s.data, readOnly: true})
}

// Migrate is a no-op.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds.
func (s *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Transaction
// ──────────────────────────────────────────────────

type tx struct {
	base     *state
	pending  *state
	readOnly bool
}

func (t *tx) writable() error {
	if t.readOnly {
		return escrow.ErrReadOnly
	}
	return nil
}

func (t *tx) commit() {
	for k, v := range t.pending.counters {
		t.base.counters[k] = v
	}
	for k, v := range t.pending.invoices {
		t.base.invoices[k] = v
	}
	for k, v := range t.pending.contracts {
		t.base.contracts[k] = v
	}
	for k, ids := range t.pending.index {
		t.base.index[k] = mergeSorted(t.base.index[k], ids)
	}
	for k, v := range t.pending.balances {
		t.base.balances[k] = v
	}
	for k, ts := range t.pending.transfers {
		t.base.transfers[k] = append(t.base.transfers[k], ts...)
	}
	if t.pending.admin != nil {
		t.base.admin = t.pending.admin
	}
}

func (t *tx) NextID(_ context.Context, counter string) (uint64, error) {
	if err := t.writable(); err != nil {
		return 0, err
	}
	cur, ok := t.pending.counters[counter]
	if !ok {
		cur = t.base.counters[counter]
	}
	if cur == ^uint64(0) {
		return 0, escrow.ErrOverflow
	}
	cur++
	t.pending.counters[counter] = cur
	return cur, nil
}

// ──────────────────────────────────────────────────
// Invoice Store implementation
// ──────────────────────────────────────────────────

func (t *tx) GetInvoice(_ context.Context, invoiceID uint64) (*invoice.Invoice, error) {
	if t.pending != nil {
		if inv, ok := t.pending.invoices[invoiceID]; ok {
			return inv.Clone(), nil
		}
	}
	if inv, ok := t.base.invoices[invoiceID]; ok {
		return inv.Clone(), nil
	}
	return nil, escrow.ErrNotFound
}

func (t *tx) PutInvoice(_ context.Context, inv *invoice.Invoice) error {
	if err := t.writable(); err != nil {
		return err
	}
	t.pending.invoices[inv.ID] = inv.Clone()
	return nil
}

// ──────────────────────────────────────────────────
// Contract Store implementation
// ──────────────────────────────────────────────────

func (t *tx) GetContract(_ context.Context, contractID uint64) (*contract.Contract, error) {
	if t.pending != nil {
		if c, ok := t.pending.contracts[contractID]; ok {
			return c.Clone(), nil
		}
	}
	if c, ok := t.base.contracts[contractID]; ok {
		return c.Clone(), nil
	}
	return nil, escrow.ErrNotFound
}

func (t *tx) PutContract(_ context.Context, c *contract.Contract) error {
	if err := t.writable(); err != nil {
		return err
	}
	t.pending.contracts[c.ID] = c.Clone()
	return nil
}

// ──────────────────────────────────────────────────
// Index
// ──────────────────────────────────────────────────

func (t *tx) ids(index, key string) []uint64 {
	k := indexKey{index, key}
	if t.pending == nil {
		return t.base.index[k]
	}
	return mergeSorted(t.base.index[k], t.pending.index[k])
}

func (t *tx) IndexAppend(_ context.Context, index, key string, id uint64) error {
	if err := t.writable(); err != nil {
		return err
	}
	k := indexKey{index, key}
	if _, found := slices.BinarySearch(t.base.index[k], id); found {
		return nil
	}
	pending := t.pending.index[k]
	pos, found := slices.BinarySearch(pending, id)
	if found {
		return nil
	}
	t.pending.index[k] = slices.Insert(pending, pos, id)
	return nil
}

func (t *tx) IndexRange(_ context.Context, index, key string, offset, limit int) ([]uint64, error) {
	all := t.ids(index, key)
	if offset < 0 || offset >= len(all) || limit <= 0 {
		return []uint64{}, nil
	}
	end := min(offset+limit, len(all))
	return slices.Clone(all[offset:end]), nil
}

func (t *tx) IndexLen(_ context.Context, index, key string) (uint64, error) {
	return uint64(len(t.ids(index, key))), nil
}

// mergeSorted returns the sorted union of two ascending, duplicate-free
// slices without modifying either.
func mergeSorted(a, b []uint64) []uint64 {
	if len(b) == 0 {
		return a
	}
	out := make([]uint64, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] < b[j]:
			out = append(out, a[i])
			i++
		case a[i] > b[j]:
			out = append(out, b[j])
			j++
		default:
			out = append(out, a[i])
			i++
			j++
		}
	}
	out = append(out, a[i:]...)
	return append(out, b[j:]...)
}

// ──────────────────────────────────────────────────
// Account Store implementation
// ──────────────────────────────────────────────────

func (t *tx) GetAdmin(_ context.Context) (string, error) {
	if t.pending != nil && t.pending.admin != nil {
		return *t.pending.admin, nil
	}
	if t.base.admin != nil {
		return *t.base.admin, nil
	}
	return "", escrow.ErrNotFound
}

func (t *tx) PutAdmin(_ context.Context, address string) error {
	if err := t.writable(); err != nil {
		return err
	}
	t.pending.admin = &address
	return nil
}

func (t *tx) GetBalance(_ context.Context, owner, denom string) (types.Amount, error) {
	k := balanceKey{owner, denom}
	if t.pending != nil {
		if v, ok := t.pending.balances[k]; ok {
			return v, nil
		}
	}
	return t.base.balances[k], nil
}

func (t *tx) PutBalance(_ context.Context, owner, denom string, amount types.Amount) error {
	if err := t.writable(); err != nil {
		return err
	}
	t.pending.balances[balanceKey{owner, denom}] = amount
	return nil
}

func (t *tx) AppendTransfer(_ context.Context, tr *account.Transfer) error {
	if err := t.writable(); err != nil {
		return err
	}
	cp := *tr
	t.pending.transfers[tr.InvoiceID] = append(t.pending.transfers[tr.InvoiceID], &cp)
	return nil
}

func (t *tx) ListTransfers(_ context.Context, invoiceID uint64) ([]*account.Transfer, error) {
	all := t.base.transfers[invoiceID]
	if t.pending != nil {
		all = append(slices.Clip(all), t.pending.transfers[invoiceID]...)
	}
	out := make([]*account.Transfer, 0, len(all))
	for _, tr := range all {
		cp := *tr
		out = append(out, &cp)
	}
	slices.SortStableFunc(out, func(a, b *account.Transfer) int {
		switch {
		case a.Seq < b.Seq:
			return -1
		case a.Seq > b.Seq:
			return 1
		}
		return 0
	})
	return out, nil
}
