package postgres

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

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

	Name  string `grove:"name,pk"`
	Value int64  `grove:"value"`
}

type indexModel struct {
	grove.BaseModel `grove:"table:escrow_index"`

	IndexName string `grove:"index_name,pk"`
	EntryKey  string `grove:"entry_key,pk"`
	ID        int64  `grove:"id,pk"`
}

type settingModel struct {
	grove.BaseModel `grove:"table:escrow_settings"`

	Name  string `grove:"name,pk"`
	Value string `grove:"value"`
}

type balanceModel struct {
	grove.BaseModel `grove:"table:escrow_balances"`

	Owner  string `grove:"owner,pk"`
	Denom  string `grove:"denom,pk"`
	Amount string `grove:"amount"`
}

// ==================== Invoice models ====================

type invoiceModel struct {
	grove.BaseModel `grove:"table:escrow_invoices"`

	ID              int64         `grove:"id,pk"`
	Purpose         string        `grove:"purpose"`
	Amount          string        `grove:"amount"`
	AdminCharge     string        `grove:"admin_charge"`
	CustomerCharge  string        `grove:"customer_charge"`
	Payer           string        `grove:"payer"`
	Owner           string        `grove:"owner"`
	Days            int64         `grove:"days"`
	RecurrentTime   int64         `grove:"recurrent_time"`
	Token           string        `grove:"token"`
	Status          string        `grove:"status"`
	CyclesWithdrawn int64         `grove:"cycles_withdrawn"`
	AcceptedAt      sql.NullInt64 `grove:"accepted_at"`
	CreatedAt       int64         `grove:"created_at"`
	UpdatedAt       int64         `grove:"updated_at"`
}

var invoiceColumns = []string{
	"purpose", "amount", "admin_charge", "customer_charge", "payer", "owner",
	"days", "recurrent_time", "token", "status", "cycles_withdrawn",
	"accepted_at", "created_at", "updated_at",
}

func toInvoiceModel(inv *invoice.Invoice) *invoiceModel {
	token, _ := json.Marshal(inv.Token) //nolint:errcheck // plain struct
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
		Token:           string(token),
		Status:          string(inv.Status),
		CyclesWithdrawn: int64(inv.CyclesWithdrawn),
		CreatedAt:       inv.CreatedAt.UnixNano(),
		UpdatedAt:       inv.UpdatedAt.UnixNano(),
	}
	if inv.AcceptedAt != nil {
		m.AcceptedAt = sql.NullInt64{Int64: inv.AcceptedAt.UnixNano(), Valid: true}
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
	if err := json.Unmarshal([]byte(m.Token), &inv.Token); err != nil {
		return nil, fmt.Errorf("%w: invoice %d token: %w", escrow.ErrStoreCorrupt, m.ID, err)
	}
	if m.AcceptedAt.Valid {
		t := fromNanos(m.AcceptedAt.Int64)
		inv.AcceptedAt = &t
	}
	return inv, nil
}

// ==================== Contract models ====================

type contractModel struct {
	grove.BaseModel `grove:"table:escrow_contracts"`

	ID               int64  `grove:"id,pk"`
	InvoiceID        int64  `grove:"invoice_id"`
	Payer            string `grove:"payer"`
	Payee            string `grove:"payee"`
	Denom            string `grove:"denom"`
	TotalCycles      int64  `grove:"total_cycles"`
	RemainingCycles  int64  `grove:"remaining_cycles"`
	NextWithdrawalAt int64  `grove:"next_withdrawal_at"`
	EscrowBalance    string `grove:"escrow_balance"`
	Status           string `grove:"status"`
	CreatedAt        int64  `grove:"created_at"`
	UpdatedAt        int64  `grove:"updated_at"`
}

var contractColumns = []string{
	"invoice_id", "payer", "payee", "denom", "total_cycles", "remaining_cycles",
	"next_withdrawal_at", "escrow_balance", "status", "created_at", "updated_at",
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

	ID          string `grove:"id,pk"`
	Seq         int64  `grove:"seq"`
	OperationID string `grove:"operation_id"`
	InvoiceID   int64  `grove:"invoice_id"`
	Kind        string `grove:"kind"`
	Recipient   string `grove:"recipient"`
	Denom       string `grove:"denom"`
	Amount      string `grove:"amount"`
	CreatedAt   int64  `grove:"created_at"`
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

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func parseAmount(column, s string) (types.Amount, error) {
	a, err := types.ParseAmount(s)
	if err != nil {
		return 0, fmt.Errorf("%w: column %s: %w", escrow.ErrStoreCorrupt, column, err)
	}
	return a, nil
}
