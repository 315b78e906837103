package escrow_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/xraph/escrow"
)

func TestKindOf(t *testing.T) {
	var multi escrow.MultiError
	multi.Add(escrow.ValidationError{Field: "payer", Message: "is required"})
	multi.Add(escrow.ValidationError{Field: "amount", Message: "must be greater than 0"})

	tests := []struct {
		name string
		err  error
		want escrow.Kind
	}{
		{"Nil", nil, escrow.KindNone},
		{"NotFound", escrow.ErrNotFound, escrow.KindNotFound},
		{"Unauthorized", escrow.ErrUnauthorized, escrow.KindUnauthorized},
		{"WrongPayer", escrow.ErrWrongPayer, escrow.KindWrongPayer},
		{"InvalidState", escrow.ErrInvalidState, escrow.KindInvalidState},
		{"AlreadyInstantiated", escrow.ErrAlreadyInstantiated, escrow.KindInvalidState},
		{"NotInstantiated", escrow.ErrNotInstantiated, escrow.KindInvalidState},
		{"InsufficientFunds", escrow.ErrInsufficientFunds, escrow.KindInsufficientFunds},
		{"InvalidSchedule", escrow.ErrInvalidSchedule, escrow.KindInvalidSchedule},
		{"Overflow", escrow.ErrOverflow, escrow.KindOverflow},
		{"NotYetDue", escrow.ErrNotYetDue, escrow.KindNotYetDue},
		{"StoreCorrupt", escrow.ErrStoreCorrupt, escrow.KindStoreCorrupt},
		{"ChargesExceedAmount", escrow.ErrChargesExceedAmount, escrow.KindInvalidInput},
		{"UnsupportedToken", escrow.ErrUnsupportedToken, escrow.KindInvalidInput},
		{"ValidationError", escrow.ValidationError{Field: "payer", Message: "is required"}, escrow.KindInvalidInput},
		{"MultiError", multi, escrow.KindInvalidInput},
		{"Wrapped", fmt.Errorf("outer: %w", escrow.ErrNotYetDue), escrow.KindNotYetDue},
		{"Context", context.Canceled, escrow.KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := escrow.KindOf(tt.err); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestOpError(t *testing.T) {
	e, _ := newEngine(t)
	_, err := e.Execute(context.Background(), funds(889), escrow.AcceptInvoice{ID: 12})

	var oe *escrow.OpError
	if !errors.As(err, &oe) {
		t.Fatalf("expected *OpError, got %T", err)
	}
	if oe.Op != escrow.OpAcceptInvoice || oe.InvoiceID != 12 {
		t.Errorf("OpError: %+v", oe)
	}
	if want := "accept_invoice 12: escrow: not found"; err.Error() != want {
		t.Errorf("message: got %q, want %q", err.Error(), want)
	}

	noID := &escrow.OpError{Op: escrow.QueryAdminWallet, Err: escrow.ErrNotInstantiated}
	if want := "admin_wallet: escrow: invalid state: admin not set"; noID.Error() != want {
		t.Errorf("message: got %q, want %q", noID.Error(), want)
	}
}

func TestMultiError(t *testing.T) {
	var m escrow.MultiError
	if m.HasErrors() || m.First() != nil {
		t.Fatal("empty MultiError reports errors")
	}
	m.Add(nil)
	m.Add(escrow.ErrNotFound)
	m.Add(escrow.ErrUnauthorized)

	if !m.HasErrors() || m.First() != escrow.ErrNotFound {
		t.Errorf("First: %v", m.First())
	}
	if !errors.Is(m, escrow.ErrUnauthorized) {
		t.Error("errors.Is should see every collected error")
	}
	if !escrow.IsAuthError(m) || !escrow.IsNotFound(m) {
		t.Error("helpers should see through MultiError")
	}
}
