// Package storetest is the conformance suite every store.Store backend
// runs from its own tests.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"testing"
	"time"

	_ "embed"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/xraph/escrow"
	"github.com/xraph/escrow/account"
	"github.com/xraph/escrow/contract"
	"github.com/xraph/escrow/id"
	"github.com/xraph/escrow/invoice"
	"github.com/xraph/escrow/store"
	"github.com/xraph/escrow/types"
)

//go:embed testdata/index.yaml
var indexCases []byte

//go:embed testdata/balances.yaml
var balanceCases []byte

// Factory returns a migrated, empty store. It is called once per subtest.
type Factory func(t *testing.T) store.Store

// Run exercises s against the store.Store contract.
func Run(t *testing.T, newStore Factory) {
	t.Run("Counters", func(t *testing.T) { testCounters(t, newStore(t)) })
	t.Run("Invoices", func(t *testing.T) { testInvoices(t, newStore(t)) })
	t.Run("Contracts", func(t *testing.T) { testContracts(t, newStore(t)) })
	t.Run("Rollback", func(t *testing.T) { testRollback(t, newStore(t)) })
	t.Run("ReadOnly", func(t *testing.T) { testReadOnly(t, newStore(t)) })
	t.Run("Index", func(t *testing.T) { testIndex(t, newStore(t)) })
	t.Run("Admin", func(t *testing.T) { testAdmin(t, newStore(t)) })
	t.Run("Balances", func(t *testing.T) { testBalances(t, newStore(t)) })
	t.Run("Transfers", func(t *testing.T) { testTransfers(t, newStore(t)) })
}

func address(prefix string) string {
	return fmt.Sprintf("%s%d", prefix, rand.Uint32())
}

// at returns a timestamp every backend can represent exactly.
func at(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}

func sampleInvoice(invoiceID uint64) *invoice.Invoice {
	accepted := at(1_700_000_600)
	return &invoice.Invoice{
		Entity:          types.NewEntityAt(at(1_700_000_000)),
		ID:              invoiceID,
		Purpose:         "hosting",
		Amount:          800,
		AdminCharge:     50,
		CustomerCharge:  89,
		Payer:           address("payer"),
		Owner:           address("owner"),
		Days:            6,
		RecurrentTime:   2,
		Token:           invoice.NativeToken("uscrt"),
		Status:          invoice.StatusAccepted,
		CyclesWithdrawn: 1,
		AcceptedAt:      &accepted,
	}
}

func assertInvoice(t *testing.T, want, got *invoice.Invoice) {
	t.Helper()
	assertions := assert.New(t)

	assertions.True(want.CreatedAt.Equal(got.CreatedAt), "created_at: %v != %v", want.CreatedAt, got.CreatedAt)
	assertions.True(want.UpdatedAt.Equal(got.UpdatedAt), "updated_at: %v != %v", want.UpdatedAt, got.UpdatedAt)
	if want.AcceptedAt == nil {
		assertions.Nil(got.AcceptedAt)
	} else if assertions.NotNil(got.AcceptedAt) {
		assertions.True(want.AcceptedAt.Equal(*got.AcceptedAt), "accepted_at: %v != %v", want.AcceptedAt, got.AcceptedAt)
	}

	w, g := want.Clone(), got.Clone()
	w.Entity, g.Entity = types.Entity{}, types.Entity{}
	w.AcceptedAt, g.AcceptedAt = nil, nil
	assertions.Equal(w, g)
}

func testCounters(t *testing.T, s store.Store) {
	ctx := context.Background()
	assertions := assert.New(t)

	var got []uint64
	err := s.Update(ctx, func(tx store.Tx) error {
		for range 3 {
			n, err := tx.NextID(ctx, store.CounterInvoices)
			if err != nil {
				return err
			}
			got = append(got, n)
		}
		return nil
	})
	require.NoError(t, err)
	assertions.Equal([]uint64{1, 2, 3}, got)

	err = s.Update(ctx, func(tx store.Tx) error {
		n, err := tx.NextID(ctx, store.CounterTransfers)
		assertions.Equal(uint64(1), n, "counters are independent")
		return err
	})
	require.NoError(t, err)

	err = s.Update(ctx, func(tx store.Tx) error {
		n, err := tx.NextID(ctx, store.CounterInvoices)
		assertions.Equal(uint64(4), n, "counter survives commit")
		return err
	})
	require.NoError(t, err)
}

func testInvoices(t *testing.T, s store.Store) {
	ctx := context.Background()

	want := sampleInvoice(1)
	err := s.Update(ctx, func(tx store.Tx) error {
		if err := tx.PutInvoice(ctx, want); err != nil {
			return err
		}
		got, err := tx.GetInvoice(ctx, want.ID)
		if err != nil {
			return err
		}
		assertInvoice(t, want, got)
		return nil
	})
	require.NoError(t, err, "put invoice")

	err = s.View(ctx, func(tx store.Tx) error {
		got, err := tx.GetInvoice(ctx, want.ID)
		if err != nil {
			return err
		}
		assertInvoice(t, want, got)
		return nil
	})
	require.NoError(t, err, "get invoice")

	// Put replaces.
	updated := want.Clone()
	updated.Status = invoice.StatusCompleted
	updated.CyclesWithdrawn = 2
	updated.TouchAt(at(1_700_001_000))
	require.NoError(t, s.Update(ctx, func(tx store.Tx) error {
		return tx.PutInvoice(ctx, updated)
	}))
	require.NoError(t, s.View(ctx, func(tx store.Tx) error {
		got, err := tx.GetInvoice(ctx, want.ID)
		if err != nil {
			return err
		}
		assertInvoice(t, updated, got)
		return nil
	}))

	pending := sampleInvoice(2)
	pending.Status = invoice.StatusPending
	pending.CyclesWithdrawn = 0
	pending.AcceptedAt = nil
	require.NoError(t, s.Update(ctx, func(tx store.Tx) error {
		return tx.PutInvoice(ctx, pending)
	}))
	require.NoError(t, s.View(ctx, func(tx store.Tx) error {
		got, err := tx.GetInvoice(ctx, pending.ID)
		if err != nil {
			return err
		}
		assertInvoice(t, pending, got)
		return nil
	}))

	err = s.View(ctx, func(tx store.Tx) error {
		_, err := tx.GetInvoice(ctx, 999)
		return err
	})
	assert.ErrorIs(t, err, escrow.ErrNotFound)
}

func testContracts(t *testing.T, s store.Store) {
	ctx := context.Background()
	assertions := assert.New(t)

	want := &contract.Contract{
		Entity:           types.NewEntityAt(at(1_700_000_000)),
		ID:               7,
		InvoiceID:        7,
		Payer:            address("payer"),
		Payee:            address("payee"),
		Denom:            "uscrt",
		TotalCycles:      2,
		RemainingCycles:  1,
		NextWithdrawalAt: at(1_700_100_000),
		EscrowBalance:    464,
		Status:           contract.StatusActive,
	}
	require.NoError(t, s.Update(ctx, func(tx store.Tx) error {
		return tx.PutContract(ctx, want)
	}))

	var got *contract.Contract
	require.NoError(t, s.View(ctx, func(tx store.Tx) error {
		var err error
		got, err = tx.GetContract(ctx, want.ID)
		return err
	}))
	assertions.True(want.NextWithdrawalAt.Equal(got.NextWithdrawalAt))
	assertions.True(want.CreatedAt.Equal(got.CreatedAt))

	w, g := want.Clone(), got.Clone()
	w.Entity, g.Entity = types.Entity{}, types.Entity{}
	w.NextWithdrawalAt, g.NextWithdrawalAt = time.Time{}, time.Time{}
	assertions.Equal(w, g)

	err := s.View(ctx, func(tx store.Tx) error {
		_, err := tx.GetContract(ctx, 8)
		return err
	})
	assertions.ErrorIs(err, escrow.ErrNotFound)
}

func testRollback(t *testing.T, s store.Store) {
	ctx := context.Background()
	assertions := assert.New(t)
	boom := errors.New("boom")

	owner := address("owner")
	err := s.Update(ctx, func(tx store.Tx) error {
		n, err := tx.NextID(ctx, store.CounterInvoices)
		if err != nil {
			return err
		}
		inv := sampleInvoice(n)
		inv.Owner = owner
		if err := tx.PutInvoice(ctx, inv); err != nil {
			return err
		}
		if err := tx.IndexAppend(ctx, store.IndexOwnerInvoices, owner, n); err != nil {
			return err
		}
		if err := tx.PutAdmin(ctx, "rolledback"); err != nil {
			return err
		}
		if err := tx.PutBalance(ctx, owner, "uscrt", 10); err != nil {
			return err
		}
		return boom
	})
	assertions.ErrorIs(err, boom)

	require.NoError(t, s.View(ctx, func(tx store.Tx) error {
		_, err := tx.GetInvoice(ctx, 1)
		assertions.ErrorIs(err, escrow.ErrNotFound, "invoice rolled back")

		n, err := tx.IndexLen(ctx, store.IndexOwnerInvoices, owner)
		assertions.NoError(err)
		assertions.Zero(n, "index rolled back")

		_, err = tx.GetAdmin(ctx)
		assertions.ErrorIs(err, escrow.ErrNotFound, "admin rolled back")

		bal, err := tx.GetBalance(ctx, owner, "uscrt")
		assertions.NoError(err)
		assertions.Zero(bal, "balance rolled back")
		return nil
	}))

	require.NoError(t, s.Update(ctx, func(tx store.Tx) error {
		n, err := tx.NextID(ctx, store.CounterInvoices)
		assertions.Equal(uint64(1), n, "counter rolled back")
		return err
	}))
}

func testReadOnly(t *testing.T, s store.Store) {
	ctx := context.Background()
	assertions := assert.New(t)

	writes := map[string]func(tx store.Tx) error{
		"NextID":         func(tx store.Tx) error { _, err := tx.NextID(ctx, store.CounterInvoices); return err },
		"PutInvoice":     func(tx store.Tx) error { return tx.PutInvoice(ctx, sampleInvoice(1)) },
		"PutContract":    func(tx store.Tx) error { return tx.PutContract(ctx, &contract.Contract{ID: 1}) },
		"IndexAppend":    func(tx store.Tx) error { return tx.IndexAppend(ctx, store.IndexOwnerInvoices, "owner", 1) },
		"PutAdmin":       func(tx store.Tx) error { return tx.PutAdmin(ctx, "admin") },
		"PutBalance":     func(tx store.Tx) error { return tx.PutBalance(ctx, "owner", "uscrt", 1) },
		"AppendTransfer": func(tx store.Tx) error { return tx.AppendTransfer(ctx, &account.Transfer{ID: id.NewTransferID(), Seq: 1}) },
	}
	for name, write := range writes {
		err := s.View(ctx, write)
		assertions.ErrorIs(err, escrow.ErrReadOnly, name)
	}
}

func testIndex(t *testing.T, s store.Store) {
	type Page struct {
		Offset int      `yaml:"offset"`
		Limit  int      `yaml:"limit"`
		Expect []uint64 `yaml:"expect"`
	}
	type Case struct {
		Name   string   `yaml:"name"`
		Index  string   `yaml:"index"`
		Append []uint64 `yaml:"append"`
		Length uint64   `yaml:"length"`
		Pages  []Page   `yaml:"pages"`
	}

	var cases []Case
	require.NoError(t, yaml.Unmarshal(indexCases, &cases), "failed to load index cases")

	ctx := context.Background()
	for _, tc := range cases {
		t.Run(tc.Name, func(t *testing.T) {
			assertions := assert.New(t)
			key := address("key")

			// Half the appends commit first so ranges merge committed and
			// pending entries.
			half := len(tc.Append) / 2
			require.NoError(t, s.Update(ctx, func(tx store.Tx) error {
				for _, n := range tc.Append[:half] {
					if err := tx.IndexAppend(ctx, tc.Index, key, n); err != nil {
						return err
					}
				}
				return nil
			}))
			require.NoError(t, s.Update(ctx, func(tx store.Tx) error {
				for _, n := range tc.Append[half:] {
					if err := tx.IndexAppend(ctx, tc.Index, key, n); err != nil {
						return err
					}
				}
				n, err := tx.IndexLen(ctx, tc.Index, key)
				assertions.Equal(tc.Length, n, "length inside the writing transaction")
				return err
			}))

			require.NoError(t, s.View(ctx, func(tx store.Tx) error {
				n, err := tx.IndexLen(ctx, tc.Index, key)
				if err != nil {
					return err
				}
				assertions.Equal(tc.Length, n, "length")

				for _, p := range tc.Pages {
					ids, err := tx.IndexRange(ctx, tc.Index, key, p.Offset, p.Limit)
					if err != nil {
						return err
					}
					want := p.Expect
					if want == nil {
						want = []uint64{}
					}
					assertions.Equal(want, ids, "offset=%d limit=%d", p.Offset, p.Limit)
				}

				other, err := tx.IndexLen(ctx, tc.Index, key+"x")
				assertions.Zero(other, "keys sharing a prefix are separate")
				return err
			}))
		})
	}
}

func testAdmin(t *testing.T, s store.Store) {
	ctx := context.Background()
	assertions := assert.New(t)

	require.NoError(t, s.View(ctx, func(tx store.Tx) error {
		_, err := tx.GetAdmin(ctx)
		assertions.ErrorIs(err, escrow.ErrNotFound)
		return nil
	}))

	for _, admin := range []string{"admin1", "admin2"} {
		require.NoError(t, s.Update(ctx, func(tx store.Tx) error {
			return tx.PutAdmin(ctx, admin)
		}))
		require.NoError(t, s.View(ctx, func(tx store.Tx) error {
			got, err := tx.GetAdmin(ctx)
			assertions.Equal(admin, got)
			return err
		}))
	}
}

func testBalances(t *testing.T, s store.Store) {
	type Write struct {
		Denom  string `yaml:"denom"`
		Amount string `yaml:"amount"`
	}
	type Case struct {
		Name   string            `yaml:"name"`
		Writes []Write           `yaml:"writes"`
		Expect map[string]string `yaml:"expect"`
	}

	var cases []Case
	require.NoError(t, yaml.Unmarshal(balanceCases, &cases), "failed to load balance cases")

	ctx := context.Background()
	for _, tc := range cases {
		t.Run(tc.Name, func(t *testing.T) {
			assertions := assert.New(t)
			owner := address("owner")

			for _, w := range tc.Writes {
				amount, err := types.ParseAmount(w.Amount)
				require.NoError(t, err)
				require.NoError(t, s.Update(ctx, func(tx store.Tx) error {
					return tx.PutBalance(ctx, owner, w.Denom, amount)
				}))
			}

			require.NoError(t, s.View(ctx, func(tx store.Tx) error {
				for denom, raw := range tc.Expect {
					got, err := tx.GetBalance(ctx, owner, denom)
					if err != nil {
						return err
					}
					assertions.Equal(types.MustParseAmount(raw), got, denom)
				}
				other, err := tx.GetBalance(ctx, owner+"x", "uscrt")
				assertions.Zero(other)
				return err
			}))
		})
	}
}

func testTransfers(t *testing.T, s store.Store) {
	ctx := context.Background()
	assertions := assert.New(t)

	op := id.NewOperationID()
	transfer := func(invoiceID, seq uint64, kind account.Kind) *account.Transfer {
		return &account.Transfer{
			ID:          id.NewTransferID(),
			Seq:         seq,
			OperationID: op,
			InvoiceID:   invoiceID,
			Kind:        kind,
			Recipient:   "recipient",
			Coin:        types.NewCoin("uscrt", types.Amount(seq*100)),
			CreatedAt:   at(1_700_000_000 + int64(seq)),
		}
	}

	written := []*account.Transfer{
		transfer(1, 3, account.KindRelease),
		transfer(1, 1, account.KindAdminFee),
		transfer(2, 2, account.KindRefund),
		transfer(1, 4, account.KindCustomerCharge),
	}
	require.NoError(t, s.Update(ctx, func(tx store.Tx) error {
		for _, tr := range written {
			if err := tx.AppendTransfer(ctx, tr); err != nil {
				return err
			}
		}
		return nil
	}))

	require.NoError(t, s.View(ctx, func(tx store.Tx) error {
		got, err := tx.ListTransfers(ctx, 1)
		if err != nil {
			return err
		}
		if !assertions.Len(got, 3) {
			return nil
		}
		for i, want := range []*account.Transfer{written[1], written[0], written[3]} {
			assertions.Equal(want.ID.String(), got[i].ID.String())
			assertions.Equal(want.Seq, got[i].Seq)
			assertions.Equal(want.OperationID.String(), got[i].OperationID.String())
			assertions.Equal(want.Kind, got[i].Kind)
			assertions.Equal(want.Recipient, got[i].Recipient)
			assertions.Equal(want.Coin, got[i].Coin)
			assertions.True(want.CreatedAt.Equal(got[i].CreatedAt))
		}

		none, err := tx.ListTransfers(ctx, 3)
		assertions.NotNil(none)
		assertions.Empty(none)
		return err
	}))
}
