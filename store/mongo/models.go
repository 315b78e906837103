package mongo

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/xraph/grove"

	"github.com/xraph/escrow"
	"github.com/xraph/escrow/account"
	"github.com/xraph/escrow/contract"
	"github.com/xraph/escrow/id"
	"github.com/xraph/escrow/invoice"
	"github.com/xraph/escrow/types"
)

// ==================== Counter / index / setting models ====================

type counterModel struct {
	grove.BaseModel `grove:"table:escrow_counters"`

	Name  string `grove:"name,pk" bson:"_id"`
	Value int64  `grove:"value"   bson:"value"`
}

type indexModel struct {
	grove.BaseModel `grove:"table:escrow_index"`

	Key       string `grove:"id,pk"      bson:"_id"`
	IndexName string `grove:"index_name" bson:"index_name"`
	EntryKey  string `grove:"entry_key"  bson:"entry_key"`
	EntryID   int64  `grove:"entry_id"   bson:"entry_id"`
}

func indexDocID(index, key string, entryID uint64) string {
	return fmt.Sprintf("%s/%s/%020d", index, key, entryID)
}

type settingModel struct {
	grove.BaseModel `grove:"table:escrow_settings"`

	Name  string `grove:"name,pk" bson:"_id"`
	Value string `grove:"value"   bson:"value"`
}

type balanceModel struct {
	grove.BaseModel `grove:"table:escrow_balances"`

	Key    string `grove:"id,pk"  bson:"_id"`
	Owner  string `grove:"owner"  bson:"owner"`
	Denom  string `grove:"denom"  bson:"denom"`
	Amount string `grove:"amount" bson:"amount"`
}

func balanceDocID(owner, denom string) string {
	return owner + "/" + denom
}

// ==================== Invoice models ====================

type invoiceModel struct {
	grove.BaseModel `grove:"table:escrow_invoices"`

	ID              int64       `grove:"id,pk"            bson:"_id"`
	Purpose         string      `grove:"purpose"          bson:"purpose"`
	Amount          string      `grove:"amount"           bson:"amount"`
	AdminCharge     string      `grove:"admin_charge"     bson:"admin_charge"`
	CustomerCharge  string      `grove:"customer_charge"  bson:"customer_charge"`
	Payer           string      `grove:"payer"            bson:"payer"`
	Owner           string      `grove:"owner"            bson:"owner"`
	Days            int64       `grove:"days"             bson:"days"`
	RecurrentTime   int64       `grove:"recurrent_time"   bson:"recurrent_time"`
	Token           *tokenModel `grove:"token"            bson:"token"`
	Status          string      `grove:"status"           bson:"status"`
	CyclesWithdrawn int64       `grove:"cycles_withdrawn" bson:"cycles_withdrawn"`
	AcceptedAt      *int64      `grove:"accepted_at"      bson:"accepted_at,omitempty"`
	CreatedAt       int64       `grove:"created_at"       bson:"created_at"`
	UpdatedAt       int64       `grove:"updated_at"       bson:"updated_at"`
}

type tokenModel struct {
	Native string       `bson:"native,omitempty"`
	Snip20 *snip20Model `bson:"snip20,omitempty"`
}

type snip20Model struct {
	Address string `bson:"address"`
	Hash    string `bson:"hash"`
}

func (m *invoiceModel) fields() bson.M {
	f := bson.M{
		"purpose":          m.Purpose,
		"amount":           m.Amount,
		"admin_charge":     m.AdminCharge,
		"customer_charge":  m.CustomerCharge,
		"payer":            m.Payer,
		"owner":            m.Owner,
		"days":             m.Days,
		"recurrent_time":   m.RecurrentTime,
		"token":            m.Token,
		"status":           m.Status,
		"cycles_withdrawn": m.CyclesWithdrawn,
		"created_at":       m.CreatedAt,
		"updated_at":       m.UpdatedAt,
	}
	if m.AcceptedAt != nil {
		f["accepted_at"] = *m.AcceptedAt
	}
	return f
}

func toInvoiceModel(inv *invoice.Invoice) *invoiceModel {
	m := &invoiceModel{
		ID:              int64(inv.ID),
		Purpose:         inv.Purpose,
		Amount:          inv.Amount.String(),
		AdminCharge:     inv.AdminCharge.String(),
		CustomerCharge:  inv.CustomerCharge.String(),
		Payer:           inv.Payer,
		Owner:           inv.Owner,
		Days:            int64(inv.Days),
		RecurrentTime:   int64(inv.RecurrentTime),
		Token:           &tokenModel{Native: inv.Token.Native},
		Status:          string(inv.Status),
		CyclesWithdrawn: int64(inv.CyclesWithdrawn),
		CreatedAt:       inv.CreatedAt.UnixNano(),
		UpdatedAt:       inv.UpdatedAt.UnixNano(),
	}
	if inv.Token.Snip20 != nil {
		m.Token.Snip20 = &snip20Model{Address: inv.Token.Snip20.Address, Hash: inv.Token.Snip20.Hash}
	}
	if inv.AcceptedAt != nil {
		n := inv.AcceptedAt.UnixNano()
		m.AcceptedAt = &n
	}
	return m
}

func fromInvoiceModel(m *invoiceModel) (*invoice.Invoice, error) {
	var err error
	inv := &invoice.Invoice{
		Entity: types.Entity{
			CreatedAt: fromNanos(m.CreatedAt),
			UpdatedAt: fromNanos(m.UpdatedAt),
		},
		ID:              uint64(m.ID),
		Purpose:         m.Purpose,
		Payer:           m.Payer,
		Owner:           m.Owner,
		Days:            uint64(m.Days),
		RecurrentTime:   uint64(m.RecurrentTime),
		Status:          invoice.Status(m.Status),
		CyclesWithdrawn: uint64(m.CyclesWithdrawn),
	}
	if inv.Amount, err = parseAmount("amount", m.Amount); err != nil {
		return nil, err
	}
	if inv.AdminCharge, err = parseAmount("admin_charge", m.AdminCharge); err != nil {
		return nil, err
	}
	if inv.CustomerCharge, err = parseAmount("customer_charge", m.CustomerCharge); err != nil {
		return nil, err
	}
	if m.Token == nil {
		return nil, fmt.Errorf("%w: invoice %d has no token", escrow.ErrStoreCorrupt, m.ID)
	}
	inv.Token.Native = m.Token.Native
	if m.Token.Snip20 != nil {
		inv.Token.Snip20 = &invoice.Snip20{Address: m.Token.Snip20.Address, Hash: m.Token.Snip20.Hash}
	}
	if m.AcceptedAt != nil {
		t := fromNanos(*m.AcceptedAt)
		inv.AcceptedAt = &t
	}
	return inv, nil
}

// ==================== Contract models ====================

type contractModel struct {
	grove.BaseModel `grove:"table:escrow_contracts"`

	ID               int64  `grove:"id,pk"              bson:"_id"`
	InvoiceID        int64  `grove:"invoice_id"         bson:"invoice_id"`
	Payer            string `grove:"payer"              bson:"payer"`
	Payee            string `grove:"payee"              bson:"payee"`
	Denom            string `grove:"denom"              bson:"denom"`
	TotalCycles      int64  `grove:"total_cycles"       bson:"total_cycles"`
	RemainingCycles  int64  `grove:"remaining_cycles"   bson:"remaining_cycles"`
	NextWithdrawalAt int64  `grove:"next_withdrawal_at" bson:"next_withdrawal_at"`
	EscrowBalance    string `grove:"escrow_balance"     bson:"escrow_balance"`
	Status           string `grove:"status"             bson:"status"`
	CreatedAt        int64  `grove:"created_at"         bson:"created_at"`
	UpdatedAt        int64  `grove:"updated_at"         bson:"updated_at"`
}

func (m *contractModel) fields() bson.M {
	return bson.M{
		"invoice_id":         m.InvoiceID,
		"payer":              m.Payer,
		"payee":              m.Payee,
		"denom":              m.Denom,
		"total_cycles":       m.TotalCycles,
		"remaining_cycles":   m.RemainingCycles,
		"next_withdrawal_at": m.NextWithdrawalAt,
		"escrow_balance":     m.EscrowBalance,
		"status":             m.Status,
		"created_at":         m.CreatedAt,
		"updated_at":         m.UpdatedAt,
	}
}

func toContractModel(c *contract.Contract) *contractModel {
	return &contractModel{
		ID:               int64(c.ID),
		InvoiceID:        int64(c.InvoiceID),
		Payer:            c.Payer,
		Payee:            c.Payee,
		Denom:            c.Denom,
		TotalCycles:      int64(c.TotalCycles),
		RemainingCycles:  int64(c.RemainingCycles),
		NextWithdrawalAt: c.NextWithdrawalAt.UnixNano(),
		EscrowBalance:    c.EscrowBalance.String(),
		Status:           string(c.Status),
		CreatedAt:        c.CreatedAt.UnixNano(),
		UpdatedAt:        c.UpdatedAt.UnixNano(),
	}
}

func fromContractModel(m *contractModel) (*contract.Contract, error) {
	balance, err := parseAmount("escrow_balance", m.EscrowBalance)
	if err != nil {
		return nil, err
	}
	return &contract.Contract{
		Entity: types.Entity{
			CreatedAt: fromNanos(m.CreatedAt),
			UpdatedAt: fromNanos(m.UpdatedAt),
		},
		ID:               uint64(m.ID),
		InvoiceID:        uint64(m.InvoiceID),
		Payer:            m.Payer,
		Payee:            m.Payee,
		Denom:            m.Denom,
		TotalCycles:      uint64(m.TotalCycles),
		RemainingCycles:  uint64(m.RemainingCycles),
		NextWithdrawalAt: fromNanos(m.NextWithdrawalAt),
		EscrowBalance:    balance,
		Status:           contract.Status(m.Status),
	}, nil
}

// ==================== Transfer models ====================

type transferModel struct {
	grove.BaseModel `grove:"table:escrow_transfers"`

	ID          string `grove:"id,pk"        bson:"_id"`
	Seq         int64  `grove:"seq"          bson:"seq"`
	OperationID string `grove:"operation_id" bson:"operation_id"`
	InvoiceID   int64  `grove:"invoice_id"   bson:"invoice_id"`
	Kind        string `grove:"kind"         bson:"kind"`
	Recipient   string `grove:"recipient"    bson:"recipient"`
	Denom       string `grove:"denom"        bson:"denom"`
	Amount      string `grove:"amount"       bson:"amount"`
	CreatedAt   int64  `grove:"created_at"   bson:"created_at"`
}

func toTransferModel(t *account.Transfer) *transferModel {
	return &transferModel{
		ID:          t.ID.String(),
		Seq:         int64(t.Seq),
		OperationID: t.OperationID.String(),
		InvoiceID:   int64(t.InvoiceID),
		Kind:        string(t.Kind),
		Recipient:   t.Recipient,
		Denom:       t.Coin.Denom,
		Amount:      t.Coin.Amount.String(),
		CreatedAt:   t.CreatedAt.UnixNano(),
	}
}

func fromTransferModel(m *transferModel) (*account.Transfer, error) {
	transferID, err := id.ParseTransferID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: transfer id %q: %w", escrow.ErrStoreCorrupt, m.ID, err)
	}
	var opID id.OperationID
	if m.OperationID != "" {
		if opID, err = id.ParseOperationID(m.OperationID); err != nil {
			return nil, fmt.Errorf("%w: operation id %q: %w", escrow.ErrStoreCorrupt, m.OperationID, err)
		}
	}
	amount, err := parseAmount("amount", m.Amount)
	if err != nil {
		return nil, err
	}
	return &account.Transfer{
		ID:          transferID,
		Seq:         uint64(m.Seq),
		OperationID: opID,
		InvoiceID:   uint64(m.InvoiceID),
		Kind:        account.Kind(m.Kind),
		Recipient:   m.Recipient,
		Coin:        types.NewCoin(m.Denom, amount),
		CreatedAt:   fromNanos(m.CreatedAt),
	}, nil
}

// ==================== Helpers ====================

// Times are stored as unix nanoseconds; BSON dates only keep milliseconds.
func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func parseAmount(field, s string) (types.Amount, error) {
	a, err := types.ParseAmount(s)
	if err != nil {
		return 0, fmt.Errorf("%w: field %s: %w", escrow.ErrStoreCorrupt, field, err)
	}
	return a, nil
}
