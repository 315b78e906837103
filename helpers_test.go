package escrow_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/xraph/escrow"
	"github.com/xraph/escrow/invoice"
	"github.com/xraph/escrow/store"
	"github.com/xraph/escrow/store/badger"
	"github.com/xraph/escrow/store/memory"
)

const denom = "uscrt"

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

const day = 24 * time.Hour

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// backends lists the stores every engine test runs against.
func backends(t *testing.T) map[string]func(t *testing.T) store.Store {
	t.Helper()
	return map[string]func(t *testing.T) store.Store{
		"memory": func(t *testing.T) store.Store { return memory.New() },
		"badger": func(t *testing.T) store.Store {
			s, err := badger.OpenInMemory()
			if err != nil {
				t.Fatalf("open badger: %v", err)
			}
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
}

// newEngine returns an instantiated engine on a memory store.
func newEngine(t *testing.T, opts ...escrow.Option) (*escrow.Escrow, *fakeClock) {
	t.Helper()
	return newEngineOn(t, memory.New(), opts...)
}

func newEngineOn(t *testing.T, s store.Store, opts ...escrow.Option) (*escrow.Escrow, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: epoch}
	opts = append([]escrow.Option{
		escrow.WithClock(clock.Now),
		escrow.WithLogger(quietLogger),
	}, opts...)
	e := escrow.New(s, opts...)

	ctx := context.Background()
	if err := e.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := e.Instantiate(ctx, "admin"); err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	return e, clock
}

// scenarioInvoice is the 800 / 50 / 89, two cycles of six days invoice.
func scenarioInvoice() escrow.SubmitInvoice {
	return escrow.SubmitInvoice{
		Purpose:        "website hosting",
		Amount:         800,
		AdminCharge:    50,
		CustomerCharge: 89,
		Payer:          "payer",
		Days:           6,
		RecurrentTime:  2,
		Token:          invoice.NativeToken(denom),
	}
}

func funds(amount escrow.Amount) escrow.Caller {
	return escrow.Caller{Address: "payer", Funds: escrow.Coins{escrow.NewCoin(denom, amount)}}
}

func mustExecute(t *testing.T, e *escrow.Escrow, caller escrow.Caller, op escrow.Operation) *escrow.Result {
	t.Helper()
	res, err := e.Execute(context.Background(), caller, op)
	if err != nil {
		t.Fatalf("%s by %s: %v", op.Name(), caller.Address, err)
	}
	return res
}

func expectErr(t *testing.T, err, want error) {
	t.Helper()
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}

func balance(t *testing.T, e *escrow.Escrow, owner string) escrow.Amount {
	t.Helper()
	b, err := e.Balance(context.Background(), owner, denom)
	if err != nil {
		t.Fatalf("Balance(%s): %v", owner, err)
	}
	return b
}

// submitAccepted submits the scenario invoice and accepts it with exact funds.
func submitAccepted(t *testing.T, e *escrow.Escrow) uint64 {
	t.Helper()
	res := mustExecute(t, e, escrow.Caller{Address: "payee"}, scenarioInvoice())
	mustExecute(t, e, funds(889), escrow.AcceptInvoice{ID: res.InvoiceID})
	return res.InvoiceID
}

func memoryStore() store.Store { return memory.New() }
