// Package badger implements store.Store on an embedded Badger database.
// Records are JSON values under slash-separated keys; ids are zero-padded
// so that key order equals numeric order.
package badger

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/xraph/escrow"
	"github.com/xraph/escrow/account"
	"github.com/xraph/escrow/contract"
	"github.com/xraph/escrow/invoice"
	"github.com/xraph/escrow/store"
	"github.com/xraph/escrow/types"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

var adminKey = []byte("/settings/admin")

func counterKey(name string) []byte {
	return []byte(fmt.Sprintf("/counters/%s", name))
}

func invoiceKey(id uint64) []byte {
	return []byte(fmt.Sprintf("/invoices/%020d", id))
}

func contractKey(id uint64) []byte {
	return []byte(fmt.Sprintf("/contracts/%020d", id))
}

func indexPrefix(index, key string) []byte {
	return []byte(fmt.Sprintf("/index/%s/%s/", index, key))
}

func indexKey(index, key string, id uint64) []byte {
	return []byte(fmt.Sprintf("/index/%s/%s/%020d", index, key, id))
}

func balanceKey(owner, denom string) []byte {
	return []byte(fmt.Sprintf("/balances/%s/%s", owner, denom))
}

func transferPrefix(invoiceID uint64) []byte {
	return []byte(fmt.Sprintf("/transfers/%020d/", invoiceID))
}

func transferKey(invoiceID, seq uint64) []byte {
	return []byte(fmt.Sprintf("/transfers/%020d/%020d", invoiceID, seq))
}

// Store is a Badger-backed store.
type Store struct {
	db    *badger.DB
	owned bool
}

// New wraps an open database. Close does not close db.
func New(db *badger.DB) *Store {
	return &Store{db: db}
}

// Open opens (or creates) a database at path.
func Open(path string) (*Store, error) {
	db, err := badger.Open(badger.DefaultOptions(path).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("escrow/badger: open %s: %w", path, err)
	}
	return &Store{db: db, owned: true}, nil
}

// OpenInMemory opens a database that lives only in memory.
func OpenInMemory() (*Store, error) {
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("escrow/badger: open in-memory: %w", err)
	}
	return &Store{db: db, owned: true}, nil
}

// DB returns the underlying database.
func (s *Store) DB() *badger.DB { return s.db }

// Update runs fn in a read-write Badger transaction.
func (s *Store) Update(ctx context.Context, fn func(store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return fn(&tx{txn: txn})
	})
}

// View runs fn in a read-only Badger transaction.
func (s *Store) View(ctx context.Context, fn func(store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(txn *badger.Txn) error {
		return fn(&tx{txn: txn, readOnly: true})
	})
}

// Migrate is a no-op; Badger is schemaless.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping reports whether the database is still open.
func (s *Store) Ping(_ context.Context) error {
	if s.db.IsClosed() {
		return errors.New("escrow/badger: database closed")
	}
	return nil
}

// Close closes the database if the store opened it.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}

// ──────────────────────────────────────────────────
// Transaction
// ──────────────────────────────────────────────────

type tx struct {
	txn      *badger.Txn
	readOnly bool
}

func (t *tx) get(key []byte, dst any) error {
	item, err := t.txn.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return escrow.ErrNotFound
		}
		return fmt.Errorf("escrow/badger: get %s: %w", key, err)
	}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, dst)
	})
	if err != nil {
		return fmt.Errorf("escrow/badger: decode %s: %w", key, err)
	}
	return nil
}

func (t *tx) set(key []byte, v any) error {
	if t.readOnly {
		return escrow.ErrReadOnly
	}
	contents, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("escrow/badger: encode %s: %w", key, err)
	}
	if err := t.txn.Set(key, contents); err != nil {
		return fmt.Errorf("escrow/badger: set %s: %w", key, err)
	}
	return nil
}

// keys returns the keys under prefix in order, skipping offset and
// stopping after limit (limit < 0 means all).
func (t *tx) keys(prefix []byte, offset, limit int) [][]byte {
	options := badger.DefaultIteratorOptions
	options.Prefix = prefix
	options.PrefetchValues = false
	it := t.txn.NewIterator(options)
	defer it.Close()

	var out [][]byte
	skipped := 0
	for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
		if skipped < offset {
			skipped++
			continue
		}
		if limit >= 0 && len(out) >= limit {
			break
		}
		out = append(out, it.Item().KeyCopy(nil))
	}
	return out
}

func (t *tx) NextID(_ context.Context, counter string) (uint64, error) {
	if t.readOnly {
		return 0, escrow.ErrReadOnly
	}
	key := counterKey(counter)
	var cur uint64
	item, err := t.txn.Get(key)
	switch {
	case err == nil:
		err = item.Value(func(val []byte) error {
			if len(val) != 8 {
				return fmt.Errorf("%w: counter %s has %d bytes", escrow.ErrStoreCorrupt, counter, len(val))
			}
			cur = binary.BigEndian.Uint64(val)
			return nil
		})
		if err != nil {
			return 0, err
		}
	case errors.Is(err, badger.ErrKeyNotFound):
	default:
		return 0, fmt.Errorf("escrow/badger: get counter %s: %w", counter, err)
	}
	if cur == ^uint64(0) {
		return 0, escrow.ErrOverflow
	}
	cur++
	if err := t.txn.Set(key, binary.BigEndian.AppendUint64(nil, cur)); err != nil {
		return 0, fmt.Errorf("escrow/badger: set counter %s: %w", counter, err)
	}
	return cur, nil
}

// ──────────────────────────────────────────────────
// Invoice Store implementation
// ──────────────────────────────────────────────────

func (t *tx) GetInvoice(_ context.Context, invoiceID uint64) (*invoice.Invoice, error) {
	var inv invoice.Invoice
	if err := t.get(invoiceKey(invoiceID), &inv); err != nil {
		return nil, err
	}
	return &inv, nil
}

func (t *tx) PutInvoice(_ context.Context, inv *invoice.Invoice) error {
	return t.set(invoiceKey(inv.ID), inv)
}

// ──────────────────────────────────────────────────
// Contract Store implementation
// ──────────────────────────────────────────────────

func (t *tx) GetContract(_ context.Context, contractID uint64) (*contract.Contract, error) {
	var c contract.Contract
	if err := t.get(contractKey(contractID), &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (t *tx) PutContract(_ context.Context, c *contract.Contract) error {
	return t.set(contractKey(c.ID), c)
}

// ──────────────────────────────────────────────────
// Index
// ──────────────────────────────────────────────────

func (t *tx) IndexAppend(_ context.Context, index, key string, id uint64) error {
	if t.readOnly {
		return escrow.ErrReadOnly
	}
	if err := t.txn.Set(indexKey(index, key, id), nil); err != nil {
		return fmt.Errorf("escrow/badger: index %s: %w", index, err)
	}
	return nil
}

func (t *tx) IndexRange(_ context.Context, index, key string, offset, limit int) ([]uint64, error) {
	out := []uint64{}
	if offset < 0 || limit <= 0 {
		return out, nil
	}
	prefix := indexPrefix(index, key)
	for _, k := range t.keys(prefix, offset, limit) {
		id, err := parseID(k[len(prefix):])
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

func (t *tx) IndexLen(_ context.Context, index, key string) (uint64, error) {
	return uint64(len(t.keys(indexPrefix(index, key), 0, -1))), nil
}

func parseID(b []byte) (uint64, error) {
	var id uint64
	if _, err := fmt.Sscanf(string(b), "%d", &id); err != nil {
		return 0, fmt.Errorf("%w: index key %q", escrow.ErrStoreCorrupt, b)
	}
	return id, nil
}

// ──────────────────────────────────────────────────
// Account Store implementation
// ──────────────────────────────────────────────────

func (t *tx) GetAdmin(_ context.Context) (string, error) {
	var admin string
	if err := t.get(adminKey, &admin); err != nil {
		return "", err
	}
	return admin, nil
}

func (t *tx) PutAdmin(_ context.Context, address string) error {
	return t.set(adminKey, address)
}

func (t *tx) GetBalance(_ context.Context, owner, denom string) (types.Amount, error) {
	var amount types.Amount
	err := t.get(balanceKey(owner, denom), &amount)
	if errors.Is(err, escrow.ErrNotFound) {
		return 0, nil
	}
	return amount, err
}

func (t *tx) PutBalance(_ context.Context, owner, denom string, amount types.Amount) error {
	return t.set(balanceKey(owner, denom), amount)
}

func (t *tx) AppendTransfer(_ context.Context, tr *account.Transfer) error {
	return t.set(transferKey(tr.InvoiceID, tr.Seq), tr)
}

func (t *tx) ListTransfers(_ context.Context, invoiceID uint64) ([]*account.Transfer, error) {
	out := []*account.Transfer{}
	for _, k := range t.keys(transferPrefix(invoiceID), 0, -1) {
		var tr account.Transfer
		if err := t.get(k, &tr); err != nil {
			return nil, err
		}
		out = append(out, &tr)
	}
	return out, nil
}
