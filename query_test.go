package escrow_test

import (
	"context"
	"math"
	"testing"

	"github.com/xraph/escrow"
	"github.com/xraph/escrow/store"
)

// submitMany submits n invoices owned by owner and returns their ids.
func submitMany(t *testing.T, e *escrow.Escrow, owner string, n int) []uint64 {
	t.Helper()
	ids := make([]uint64, 0, n)
	for i := 0; i < n; i++ {
		res := mustExecute(t, e, escrow.Caller{Address: owner}, scenarioInvoice())
		ids = append(ids, res.InvoiceID)
	}
	return ids
}

func TestPaginatedInvoice(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t)

	var want []uint64
	for i := 0; i < 7; i++ {
		want = append(want, submitMany(t, e, "payee", 1)...)
		submitMany(t, e, "other", 1)
	}

	count, err := e.NumberOfInvoice(ctx, "payee")
	if err != nil || count != 7 {
		t.Fatalf("NumberOfInvoice: got (%d, %v), want 7", count, err)
	}

	const size = 3
	var got []uint64
	for page := uint32(0); uint64(page) <= (count+size-1)/size; page++ {
		invs, err := e.PaginatedInvoice(ctx, "payee", page, size)
		if err != nil {
			t.Fatalf("page %d: %v", page, err)
		}
		if len(invs) > size {
			t.Fatalf("page %d: %d entries exceed page size", page, len(invs))
		}
		for _, inv := range invs {
			if inv.Owner != "payee" {
				t.Fatalf("page %d: invoice %d owned by %s", page, inv.ID, inv.Owner)
			}
			got = append(got, inv.ID)
		}
	}

	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestPaginatedInvoiceOutOfRange(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t)
	submitMany(t, e, "payee", 2)

	tests := []struct {
		name     string
		owner    string
		page     uint32
		pageSize uint32
	}{
		{"Past the end", "payee", 5, 10},
		{"Unknown owner", "nobody", 0, 10},
		{"Overflowing start", "payee", math.MaxUint32, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			invs, err := e.PaginatedInvoice(ctx, tt.owner, tt.page, tt.pageSize)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if invs == nil || len(invs) != 0 {
				t.Errorf("expected empty non-nil page, got %v", invs)
			}
		})
	}
}

func TestPageSizeLimits(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t, escrow.WithPageLimits(2, 3))
	submitMany(t, e, "payee", 5)

	tests := []struct {
		name     string
		pageSize uint32
		want     int
	}{
		{"Default", 0, 2},
		{"Explicit", 1, 1},
		{"Clamped", 50, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			invs, err := e.PaginatedInvoice(ctx, "payee", 0, tt.pageSize)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(invs) != tt.want {
				t.Errorf("got %d entries, want %d", len(invs), tt.want)
			}
		})
	}
}

func TestPaginatedContract(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t)

	ids := submitMany(t, e, "payee", 4)
	for _, id := range ids[:3] {
		mustExecute(t, e, funds(889), escrow.AcceptInvoice{ID: id})
	}

	n, err := e.NumberOfContract(ctx, "payer")
	if err != nil || n != 3 {
		t.Fatalf("NumberOfContract: got (%d, %v), want 3", n, err)
	}

	first, err := e.PaginatedContract(ctx, "payer", 0, 2)
	if err != nil {
		t.Fatalf("page 0: %v", err)
	}
	second, err := e.PaginatedContract(ctx, "payer", 1, 2)
	if err != nil {
		t.Fatalf("page 1: %v", err)
	}
	if len(first) != 2 || len(second) != 1 {
		t.Fatalf("page lengths: %d, %d", len(first), len(second))
	}
	if first[0].ID != 1 || first[1].ID != 2 || second[0].ID != 3 {
		t.Errorf("order: %d %d %d", first[0].ID, first[1].ID, second[0].ID)
	}

	if n, _ := e.NumberOfContract(ctx, "payee"); n != 0 {
		t.Errorf("payee holds %d contracts", n)
	}
}

func TestSingleQueriesHideOthers(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t)
	submitAccepted(t, e)

	if _, err := e.SingleInvoice(ctx, 1, "payer"); escrow.KindOf(err) != escrow.KindNotFound {
		t.Errorf("SingleInvoice by non-owner: %v", err)
	}
	if _, err := e.SingleInvoice(ctx, 2, "payee"); escrow.KindOf(err) != escrow.KindNotFound {
		t.Errorf("SingleInvoice of missing id: %v", err)
	}
	if _, err := e.SingleContract(ctx, 1, "payee"); escrow.KindOf(err) != escrow.KindNotFound {
		t.Errorf("SingleContract by non-payer: %v", err)
	}
	if c, err := e.SingleContract(ctx, 1, "payer"); err != nil || c.InvoiceID != 1 {
		t.Errorf("SingleContract by payer: (%+v, %v)", c, err)
	}
}

func TestQueryDispatch(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t)
	submitAccepted(t, e)

	tests := []struct {
		name  string
		query escrow.Query
		check func(t *testing.T, v any)
	}{
		{"NumberOfInvoice", escrow.NumberOfInvoice{Owner: "payee"}, func(t *testing.T, v any) {
			if v.(uint64) != 1 {
				t.Errorf("got %v", v)
			}
		}},
		{"AdminWallet", escrow.AdminWallet{}, func(t *testing.T, v any) {
			if v.(string) != "admin" {
				t.Errorf("got %v", v)
			}
		}},
		{"Balance", escrow.BalanceOf{Owner: "admin", Denom: denom}, func(t *testing.T, v any) {
			if v.(escrow.Amount) != 50 {
				t.Errorf("got %v", v)
			}
		}},
		{"PaginatedContract", escrow.PaginatedContract{Payer: "payer"}, func(t *testing.T, v any) {
			if v == nil {
				t.Error("nil result")
			}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := e.Query(ctx, tt.query)
			if err != nil {
				t.Fatalf("Query: %v", err)
			}
			tt.check(t, v)
		})
	}

	if _, err := e.Query(ctx, nil); escrow.KindOf(err) != escrow.KindInvalidInput {
		t.Errorf("nil query: %v", err)
	}
}

func TestQueriesDoNotMutate(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t)
	submitAccepted(t, e)

	for i := 0; i < 3; i++ {
		_, _ = e.PaginatedInvoice(ctx, "payee", 0, 10)
		_, _ = e.SingleContract(ctx, 1, "payer")
		_, _ = e.NumberOfContract(ctx, "payer")
	}

	res := mustExecute(t, e, escrow.Caller{Address: "payee"}, scenarioInvoice())
	if res.InvoiceID != 2 {
		t.Errorf("queries advanced the invoice counter: next id %d", res.InvoiceID)
	}
}

func TestDanglingIndexEntryIsCorrupt(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t)
	submitMany(t, e, "payee", 1)

	err := e.Store().Update(ctx, func(tx store.Tx) error {
		return tx.IndexAppend(ctx, store.IndexOwnerInvoices, "payee", 42)
	})
	if err != nil {
		t.Fatalf("IndexAppend: %v", err)
	}

	_, err = e.PaginatedInvoice(ctx, "payee", 0, 10)
	if escrow.KindOf(err) != escrow.KindStoreCorrupt {
		t.Fatalf("expected StoreCorrupt, got %v", err)
	}
}
