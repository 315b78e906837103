// Package escrow provides an escrow and recurring-billing ledger for Go
// applications.
//
// A payee submits an invoice naming a payer, a total, an admin charge, a
// customer charge and a release schedule. The payer accepts it by attaching
// funds; the admin charge is paid out at once and the rest is held in escrow.
// The payee then withdraws the escrowed share one cycle at a time as each
// cycle matures. Every accepted invoice has a payer-facing payment contract
// that tracks the remaining cycles and escrow balance.
//
// Escrow is a library, not a service. State lives behind the store.Store
// interface, with memory, Badger, SQLite, PostgreSQL and MongoDB backends.
//
// # Quick Start
//
//	import (
//	    "github.com/xraph/escrow"
//	    "github.com/xraph/escrow/invoice"
//	    "github.com/xraph/escrow/store/memory"
//	)
//
//	e := escrow.New(memory.New())
//	if err := e.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer e.Stop()
//
//	if err := e.Instantiate(ctx, "admin"); err != nil {
//	    log.Fatal(err)
//	}
//
//	res, err := e.Execute(ctx, escrow.Caller{Address: "payee"}, escrow.SubmitInvoice{
//	    Purpose:        "hosting",
//	    Amount:         800,
//	    AdminCharge:    50,
//	    CustomerCharge: 89,
//	    Payer:          "payer",
//	    Days:           6,
//	    RecurrentTime:  2,
//	    Token:          invoice.NativeToken("uscrt"),
//	})
//
// # Operations
//
// Mutations go through Execute with one of SubmitInvoice, AcceptInvoice,
// CancelPayment, WithdrawPayment or UpdateAdmin. Each runs in a single store
// transaction: it either commits every write or none. Reads go through Query
// or the typed methods (SingleInvoice, PaginatedInvoice, SingleContract and
// so on) and never change state.
//
// DecodeOperation and DecodeQuery accept JSON envelopes of the form
// {"accept_invoice": {"id": 1}}.
//
// # Errors
//
// Every failure matches one sentinel through errors.Is, and KindOf maps it to
// a stable Kind such as KindNotYetDue or KindWrongPayer.
//
// # Arithmetic
//
// Amounts are unsigned integers in the token's smallest unit. All arithmetic
// is checked; an overflow fails the operation with ErrOverflow.
package escrow
