// Package sqlite implements store.Store on SQLite through the grove ORM.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	_ "github.com/xraph/grove/drivers/sqlitedriver/sqlitemigrate"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/escrow"
	"github.com/xraph/escrow/account"
	"github.com/xraph/escrow/contract"
	"github.com/xraph/escrow/invoice"
	escrowstore "github.com/xraph/escrow/store"
	"github.com/xraph/escrow/types"
)

// compile-time interface check
var _ escrowstore.Store = (*Store)(nil)

const adminSetting = "admin"

// Store implements store.Store using SQLite via Grove ORM.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("escrow/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("escrow/sqlite: migration failed: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Update runs fn inside a SQLite transaction and commits when fn returns nil.
func (s *Store) Update(ctx context.Context, fn func(escrowstore.Tx) error) error {
	t, err := s.sdb.BeginTxQuery(ctx, nil)
	if err != nil {
		return fmt.Errorf("escrow/sqlite: begin: %w", err)
	}
	defer t.Rollback() //nolint:errcheck // no-op after commit

	if err := fn(&tx{q: t}); err != nil {
		return err
	}
	if err := t.Commit(); err != nil {
		return fmt.Errorf("escrow/sqlite: commit: %w", err)
	}
	return nil
}

// View runs fn inside a transaction that is always rolled back.
func (s *Store) View(ctx context.Context, fn func(escrowstore.Tx) error) error {
	t, err := s.sdb.BeginTxQuery(ctx, nil)
	if err != nil {
		return fmt.Errorf("escrow/sqlite: begin: %w", err)
	}
	defer t.Rollback() //nolint:errcheck // read-only

	return fn(&tx{q: t, readOnly: true})
}

// ==================== Transaction ====================

type tx struct {
	q        *sqlitedriver.SqliteTx
	readOnly bool
}

func (t *tx) writable() error {
	if t.readOnly {
		return escrow.ErrReadOnly
	}
	return nil
}

func (t *tx) NextID(ctx context.Context, counter string) (uint64, error) {
	if err := t.writable(); err != nil {
		return 0, err
	}
	var value int64
	err := t.q.NewRaw(`INSERT INTO escrow_counters (name, value) VALUES (?, 1)
ON CONFLICT (name) DO UPDATE SET value = escrow_counters.value + 1
RETURNING value`, counter).Scan(ctx, &value)
	if err != nil {
		return 0, fmt.Errorf("escrow/sqlite: next %s: %w", counter, err)
	}
	return uint64(value), nil
}

// ==================== Invoice Store ====================

func (t *tx) GetInvoice(ctx context.Context, invoiceID uint64) (*invoice.Invoice, error) {
	m := new(invoiceModel)
	err := t.q.NewSelect(m).
		Where("id = ?", int64(invoiceID)).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, escrow.ErrNotFound
		}
		return nil, err
	}
	return fromInvoiceModel(m)
}

func (t *tx) PutInvoice(ctx context.Context, inv *invoice.Invoice) error {
	if err := t.writable(); err != nil {
		return err
	}
	q := t.q.NewInsert(toInvoiceModel(inv)).OnConflict("(id) DO UPDATE")
	for _, col := range invoiceColumns {
		q = q.Set(col + " = EXCLUDED." + col)
	}
	_, err := q.Exec(ctx)
	return err
}

// ==================== Contract Store ====================

func (t *tx) GetContract(ctx context.Context, contractID uint64) (*contract.Contract, error) {
	m := new(contractModel)
	err := t.q.NewSelect(m).
		Where("id = ?", int64(contractID)).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, escrow.ErrNotFound
		}
		return nil, err
	}
	return fromContractModel(m)
}

func (t *tx) PutContract(ctx context.Context, c *contract.Contract) error {
	if err := t.writable(); err != nil {
		return err
	}
	q := t.q.NewInsert(toContractModel(c)).OnConflict("(id) DO UPDATE")
	for _, col := range contractColumns {
		q = q.Set(col + " = EXCLUDED." + col)
	}
	_, err := q.Exec(ctx)
	return err
}

// ==================== Index ====================

func (t *tx) IndexAppend(ctx context.Context, index, key string, id uint64) error {
	if err := t.writable(); err != nil {
		return err
	}
	m := &indexModel{IndexName: index, EntryKey: key, ID: int64(id)}
	_, err := t.q.NewInsert(m).
		OnConflict("(index_name, entry_key, id) DO NOTHING").
		Exec(ctx)
	return err
}

func (t *tx) IndexRange(ctx context.Context, index, key string, offset, limit int) ([]uint64, error) {
	out := []uint64{}
	if offset < 0 || limit <= 0 {
		return out, nil
	}
	var models []indexModel
	q := t.q.NewSelect(&models).
		Where("index_name = ?", index).
		Where("entry_key = ?", key).
		OrderExpr("id ASC").
		Limit(limit)
	if offset > 0 {
		q = q.Offset(offset)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	for i := range models {
		out = append(out, uint64(models[i].ID))
	}
	return out, nil
}

func (t *tx) IndexLen(ctx context.Context, index, key string) (uint64, error) {
	var models []indexModel
	n, err := t.q.NewSelect(&models).
		Where("index_name = ?", index).
		Where("entry_key = ?", key).
		Count(ctx)
	if err != nil {
		return 0, err
	}
	return uint64(n), nil
}

// ==================== Account Store ====================

func (t *tx) GetAdmin(ctx context.Context) (string, error) {
	m := new(settingModel)
	err := t.q.NewSelect(m).
		Where("name = ?", adminSetting).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return "", escrow.ErrNotFound
		}
		return "", err
	}
	return m.Value, nil
}

func (t *tx) PutAdmin(ctx context.Context, address string) error {
	if err := t.writable(); err != nil {
		return err
	}
	_, err := t.q.NewInsert(&settingModel{Name: adminSetting, Value: address}).
		OnConflict("(name) DO UPDATE").
		Set("value = EXCLUDED.value").
		Exec(ctx)
	return err
}

func (t *tx) GetBalance(ctx context.Context, owner, denom string) (types.Amount, error) {
	m := new(balanceModel)
	err := t.q.NewSelect(m).
		Where("owner = ?", owner).
		Where("denom = ?", denom).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return 0, nil
		}
		return 0, err
	}
	return parseAmount("amount", m.Amount)
}

func (t *tx) PutBalance(ctx context.Context, owner, denom string, amount types.Amount) error {
	if err := t.writable(); err != nil {
		return err
	}
	m := &balanceModel{Owner: owner, Denom: denom, Amount: amount.String()}
	_, err := t.q.NewInsert(m).
		OnConflict("(owner, denom) DO UPDATE").
		Set("amount = EXCLUDED.amount").
		Exec(ctx)
	return err
}

func (t *tx) AppendTransfer(ctx context.Context, tr *account.Transfer) error {
	if err := t.writable(); err != nil {
		return err
	}
	_, err := t.q.NewInsert(toTransferModel(tr)).Exec(ctx)
	return err
}

func (t *tx) ListTransfers(ctx context.Context, invoiceID uint64) ([]*account.Transfer, error) {
	var models []transferModel
	err := t.q.NewSelect(&models).
		Where("invoice_id = ?", int64(invoiceID)).
		OrderExpr("seq ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*account.Transfer, 0, len(models))
	for i := range models {
		tr, err := fromTransferModel(&models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, tr)
	}
	return out, nil
}

// ==================== Helpers ====================

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
