// Package mongo implements store.Store on MongoDB through the grove ORM.
// Transactions require a replica set or sharded cluster.
package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/escrow"
	"github.com/xraph/escrow/account"
	"github.com/xraph/escrow/contract"
	"github.com/xraph/escrow/invoice"
	escrowstore "github.com/xraph/escrow/store"
	"github.com/xraph/escrow/types"
)

// Collection name constants.
const (
	colCounters  = "escrow_counters"
	colInvoices  = "escrow_invoices"
	colContracts = "escrow_contracts"
	colIndex     = "escrow_index"
	colSettings  = "escrow_settings"
	colBalances  = "escrow_balances"
	colTransfers = "escrow_transfers"
)

const adminSetting = "admin"

// compile-time interface check
var _ escrowstore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all escrow collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("escrow/mongo: migrate %s indexes: %w", col, err)
		}
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

func (s *Store) begin(ctx context.Context, readOnly bool) (*mongodriver.MongoTx, error) {
	raw, err := s.mdb.GroveTx(ctx, 0, readOnly)
	if err != nil {
		return nil, fmt.Errorf("escrow/mongo: begin: %w", err)
	}
	t, ok := raw.(*mongodriver.MongoTx)
	if !ok {
		return nil, fmt.Errorf("escrow/mongo: begin: unexpected transaction type %T", raw)
	}
	return t, nil
}

// Update runs fn inside a MongoDB transaction and commits when fn returns nil.
func (s *Store) Update(ctx context.Context, fn func(escrowstore.Tx) error) error {
	t, err := s.begin(ctx, false)
	if err != nil {
		return err
	}
	if err := fn(&tx{q: t}); err != nil {
		t.Rollback() //nolint:errcheck // the callback error wins
		return err
	}
	if err := t.Commit(); err != nil {
		return fmt.Errorf("escrow/mongo: commit: %w", err)
	}
	return nil
}

// View runs fn inside a transaction that is always aborted.
func (s *Store) View(ctx context.Context, fn func(escrowstore.Tx) error) error {
	t, err := s.begin(ctx, true)
	if err != nil {
		return err
	}
	defer t.Rollback() //nolint:errcheck // read-only

	return fn(&tx{q: t, readOnly: true})
}

// ==================== Transaction ====================

type tx struct {
	q        *mongodriver.MongoTx
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
	_, err := t.q.NewUpdate(&counterModel{}).
		Filter(bson.M{"_id": counter}).
		SetUpdate(bson.M{"$inc": bson.M{"value": int64(1)}}).
		Upsert().
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("escrow/mongo: next %s: %w", counter, err)
	}

	var m counterModel
	if err := t.q.NewFind(&m).Filter(bson.M{"_id": counter}).Scan(ctx); err != nil {
		return 0, fmt.Errorf("escrow/mongo: read %s: %w", counter, err)
	}
	return uint64(m.Value), nil
}

// ==================== Invoice Store ====================

func (t *tx) GetInvoice(ctx context.Context, invoiceID uint64) (*invoice.Invoice, error) {
	var m invoiceModel
	err := t.q.NewFind(&m).
		Filter(bson.M{"_id": int64(invoiceID)}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, escrow.ErrNotFound
		}
		return nil, fmt.Errorf("escrow/mongo: get invoice: %w", err)
	}
	return fromInvoiceModel(&m)
}

func (t *tx) PutInvoice(ctx context.Context, inv *invoice.Invoice) error {
	if err := t.writable(); err != nil {
		return err
	}
	m := toInvoiceModel(inv)
	_, err := t.q.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		SetUpdate(bson.M{"$set": m.fields()}).
		Upsert().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("escrow/mongo: put invoice: %w", err)
	}
	return nil
}

// ==================== Contract Store ====================

func (t *tx) GetContract(ctx context.Context, contractID uint64) (*contract.Contract, error) {
	var m contractModel
	err := t.q.NewFind(&m).
		Filter(bson.M{"_id": int64(contractID)}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, escrow.ErrNotFound
		}
		return nil, fmt.Errorf("escrow/mongo: get contract: %w", err)
	}
	return fromContractModel(&m)
}

func (t *tx) PutContract(ctx context.Context, c *contract.Contract) error {
	if err := t.writable(); err != nil {
		return err
	}
	m := toContractModel(c)
	_, err := t.q.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		SetUpdate(bson.M{"$set": m.fields()}).
		Upsert().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("escrow/mongo: put contract: %w", err)
	}
	return nil
}

// ==================== Index ====================

func (t *tx) IndexAppend(ctx context.Context, index, key string, entryID uint64) error {
	if err := t.writable(); err != nil {
		return err
	}
	m := &indexModel{
		Key:       indexDocID(index, key, entryID),
		IndexName: index,
		EntryKey:  key,
		EntryID:   int64(entryID),
	}
	_, err := t.q.NewUpdate(m).
		Filter(bson.M{"_id": m.Key}).
		SetUpdate(bson.M{"$setOnInsert": bson.M{
			"index_name": m.IndexName,
			"entry_key":  m.EntryKey,
			"entry_id":   m.EntryID,
		}}).
		Upsert().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("escrow/mongo: index append: %w", err)
	}
	return nil
}

func (t *tx) IndexRange(ctx context.Context, index, key string, offset, limit int) ([]uint64, error) {
	out := []uint64{}
	if offset < 0 || limit <= 0 {
		return out, nil
	}
	var models []indexModel
	q := t.q.NewFind(&models).
		Filter(bson.M{"index_name": index, "entry_key": key}).
		Sort(bson.D{{Key: "entry_id", Value: 1}}).
		Limit(int64(limit))
	if offset > 0 {
		q = q.Skip(int64(offset))
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("escrow/mongo: index range: %w", err)
	}
	for i := range models {
		out = append(out, uint64(models[i].EntryID))
	}
	return out, nil
}

func (t *tx) IndexLen(ctx context.Context, index, key string) (uint64, error) {
	var models []indexModel
	n, err := t.q.NewFind(&models).
		Filter(bson.M{"index_name": index, "entry_key": key}).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("escrow/mongo: index len: %w", err)
	}
	return uint64(n), nil
}

// ==================== Account Store ====================

func (t *tx) GetAdmin(ctx context.Context) (string, error) {
	var m settingModel
	err := t.q.NewFind(&m).
		Filter(bson.M{"_id": adminSetting}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return "", escrow.ErrNotFound
		}
		return "", fmt.Errorf("escrow/mongo: get admin: %w", err)
	}
	return m.Value, nil
}

func (t *tx) PutAdmin(ctx context.Context, address string) error {
	if err := t.writable(); err != nil {
		return err
	}
	_, err := t.q.NewUpdate(&settingModel{}).
		Filter(bson.M{"_id": adminSetting}).
		Set("value", address).
		Upsert().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("escrow/mongo: put admin: %w", err)
	}
	return nil
}

func (t *tx) GetBalance(ctx context.Context, owner, denom string) (types.Amount, error) {
	var m balanceModel
	err := t.q.NewFind(&m).
		Filter(bson.M{"_id": balanceDocID(owner, denom)}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("escrow/mongo: get balance: %w", err)
	}
	return parseAmount("amount", m.Amount)
}

func (t *tx) PutBalance(ctx context.Context, owner, denom string, amount types.Amount) error {
	if err := t.writable(); err != nil {
		return err
	}
	_, err := t.q.NewUpdate(&balanceModel{}).
		Filter(bson.M{"_id": balanceDocID(owner, denom)}).
		SetUpdate(bson.M{"$set": bson.M{
			"owner":  owner,
			"denom":  denom,
			"amount": amount.String(),
		}}).
		Upsert().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("escrow/mongo: put balance: %w", err)
	}
	return nil
}

func (t *tx) AppendTransfer(ctx context.Context, tr *account.Transfer) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, err := t.q.NewInsert(toTransferModel(tr)).Exec(ctx); err != nil {
		return fmt.Errorf("escrow/mongo: append transfer: %w", err)
	}
	return nil
}

func (t *tx) ListTransfers(ctx context.Context, invoiceID uint64) ([]*account.Transfer, error) {
	var models []transferModel
	err := t.q.NewFind(&models).
		Filter(bson.M{"invoice_id": int64(invoiceID)}).
		Sort(bson.D{{Key: "seq", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("escrow/mongo: list transfers: %w", err)
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

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all escrow collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colInvoices: {
			{Keys: bson.D{{Key: "owner", Value: 1}, {Key: "_id", Value: 1}}},
			{Keys: bson.D{{Key: "payer", Value: 1}, {Key: "status", Value: 1}}},
		},
		colContracts: {
			{
				Keys:    bson.D{{Key: "invoice_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "payer", Value: 1}, {Key: "_id", Value: 1}}},
		},
		colIndex: {
			{Keys: bson.D{{Key: "index_name", Value: 1}, {Key: "entry_key", Value: 1}, {Key: "entry_id", Value: 1}}},
		},
		colBalances: {
			{Keys: bson.D{{Key: "owner", Value: 1}}},
		},
		colTransfers: {
			{Keys: bson.D{{Key: "invoice_id", Value: 1}, {Key: "seq", Value: 1}}},
			{
				Keys:    bson.D{{Key: "seq", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
		colCounters: nil,
		colSettings: nil,
	}
}
