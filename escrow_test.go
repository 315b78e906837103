package escrow_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/xraph/escrow"
	"github.com/xraph/escrow/account"
	"github.com/xraph/escrow/contract"
	"github.com/xraph/escrow/invoice"
)

func TestScenario(t *testing.T) {
	for name, newStore := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			e, clock := newEngineOn(t, newStore(t))

			res := mustExecute(t, e, escrow.Caller{Address: "payee"}, scenarioInvoice())
			if res.InvoiceID != 1 {
				t.Fatalf("first invoice id: got %d, want 1", res.InvoiceID)
			}

			res = mustExecute(t, e, funds(889), escrow.AcceptInvoice{ID: 1})
			if len(res.Transfers) != 1 || res.Transfers[0].Kind != account.KindAdminFee {
				t.Fatalf("accept transfers: %+v", res.Transfers)
			}
			if got := balance(t, e, "admin"); got != 50 {
				t.Errorf("admin balance after accept: got %d, want 50", got)
			}

			inv, err := e.SingleInvoice(ctx, 1, "payee")
			if err != nil {
				t.Fatalf("SingleInvoice: %v", err)
			}
			if inv.Status != invoice.StatusAccepted || inv.AcceptedAt == nil || !inv.AcceptedAt.Equal(epoch) {
				t.Fatalf("invoice after accept: %+v", inv)
			}
			c, err := e.SingleContract(ctx, 1, "payer")
			if err != nil {
				t.Fatalf("SingleContract: %v", err)
			}
			if c.RemainingCycles != 2 || c.EscrowBalance != 839 || c.Status != contract.StatusActive {
				t.Fatalf("contract after accept: %+v", c)
			}
			if !c.NextWithdrawalAt.Equal(epoch.Add(6 * day)) {
				t.Errorf("next withdrawal: got %v", c.NextWithdrawalAt)
			}

			_, err = e.Execute(ctx, escrow.Caller{Address: "payee"}, escrow.WithdrawPayment{ID: 1})
			expectErr(t, err, escrow.ErrNotYetDue)
			if escrow.KindOf(err) != escrow.KindNotYetDue || !escrow.IsRetryable(err) {
				t.Errorf("early withdraw: kind %s", escrow.KindOf(err))
			}

			clock.Advance(6 * day)
			mustExecute(t, e, escrow.Caller{Address: "payee"}, escrow.WithdrawPayment{ID: 1})
			if got := balance(t, e, "payee"); got != 375 {
				t.Errorf("payee balance after first cycle: got %d, want 375", got)
			}
			inv, _ = e.SingleInvoice(ctx, 1, "payee")
			if inv.CyclesWithdrawn != 1 {
				t.Errorf("cycles withdrawn: got %d, want 1", inv.CyclesWithdrawn)
			}

			_, err = e.Execute(ctx, escrow.Caller{Address: "payee"}, escrow.WithdrawPayment{ID: 1})
			expectErr(t, err, escrow.ErrNotYetDue)

			clock.Advance(6 * day)
			mustExecute(t, e, escrow.Caller{Address: "payee"}, escrow.WithdrawPayment{ID: 1})
			if got := balance(t, e, "payee"); got != 750 {
				t.Errorf("payee balance after second cycle: got %d, want 750", got)
			}
			if got := balance(t, e, "admin"); got != 139 {
				t.Errorf("admin balance after completion: got %d, want 139", got)
			}

			inv, _ = e.SingleInvoice(ctx, 1, "payee")
			if inv.Status != invoice.StatusCompleted || inv.CyclesWithdrawn != 2 {
				t.Errorf("invoice after completion: %+v", inv)
			}
			c, _ = e.SingleContract(ctx, 1, "payer")
			if c.Status != contract.StatusCompleted || c.RemainingCycles != 0 || c.EscrowBalance != 0 {
				t.Errorf("contract after completion: %+v", c)
			}

			_, err = e.Execute(ctx, escrow.Caller{Address: "payee"}, escrow.WithdrawPayment{ID: 1})
			expectErr(t, err, escrow.ErrInvalidState)

			transfers, err := e.Transfers(ctx, 1)
			if err != nil {
				t.Fatalf("Transfers: %v", err)
			}
			wantKinds := []account.Kind{account.KindAdminFee, account.KindRelease, account.KindRelease, account.KindCustomerCharge}
			if len(transfers) != len(wantKinds) {
				t.Fatalf("transfers: got %d, want %d", len(transfers), len(wantKinds))
			}
			for i, tr := range transfers {
				if tr.Kind != wantKinds[i] {
					t.Errorf("transfer %d: got %s, want %s", i, tr.Kind, wantKinds[i])
				}
			}
		})
	}
}

func TestSubmitInvoiceValidation(t *testing.T) {
	snip20 := scenarioInvoice()
	snip20.Token = invoice.Token{Snip20: &invoice.Snip20{Address: "secret1token", Hash: "abc"}}

	tests := []struct {
		name    string
		caller  string
		mutate  func(*escrow.SubmitInvoice)
		wantErr error
	}{
		{"Zero amount", "payee", func(o *escrow.SubmitInvoice) { o.Amount = 0 }, escrow.ErrInvalidInput},
		{"Zero days", "payee", func(o *escrow.SubmitInvoice) { o.Days = 0 }, escrow.ErrInvalidSchedule},
		{"Zero cycles", "payee", func(o *escrow.SubmitInvoice) { o.RecurrentTime = 0 }, escrow.ErrInvalidSchedule},
		{"Payer is caller", "payer", func(o *escrow.SubmitInvoice) {}, escrow.ErrInvalidInput},
		{"Malformed payer", "payee", func(o *escrow.SubmitInvoice) { o.Payer = "Not An Address" }, escrow.ErrInvalidInput},
		{"Missing payer", "payee", func(o *escrow.SubmitInvoice) { o.Payer = "" }, escrow.ErrInvalidInput},
		{"Charges exceed amount", "payee", func(o *escrow.SubmitInvoice) { o.CustomerCharge = 751 }, escrow.ErrChargesExceedAmount},
		{"Snip20 token", "payee", func(o *escrow.SubmitInvoice) { o.Token = snip20.Token }, escrow.ErrUnsupportedToken},
		{"Short denom", "payee", func(o *escrow.SubmitInvoice) { o.Token = invoice.NativeToken("u") }, escrow.ErrInvalidInput},
		{"Missing caller", "", func(o *escrow.SubmitInvoice) {}, escrow.ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := newEngine(t)
			op := scenarioInvoice()
			tt.mutate(&op)

			_, err := e.Execute(context.Background(), escrow.Caller{Address: tt.caller}, op)
			expectErr(t, err, tt.wantErr)

			n, err := e.NumberOfInvoice(context.Background(), tt.caller)
			if err != nil || n != 0 {
				t.Errorf("rejected submission stored an invoice: n=%d err=%v", n, err)
			}
		})
	}
}

func TestSubmitInvoiceSequentialIDs(t *testing.T) {
	e, _ := newEngine(t)
	for want := uint64(1); want <= 5; want++ {
		res := mustExecute(t, e, escrow.Caller{Address: "payee"}, scenarioInvoice())
		if res.InvoiceID != want {
			t.Fatalf("got id %d, want %d", res.InvoiceID, want)
		}
	}
}

func TestSubmitInvoiceConcurrentIDsUnique(t *testing.T) {
	e, _ := newEngine(t)
	const n = 50

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ids = make(map[uint64]bool)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := e.Execute(context.Background(), escrow.Caller{Address: "payee"}, scenarioInvoice())
			if err != nil {
				t.Errorf("submit: %v", err)
				return
			}
			mu.Lock()
			ids[res.InvoiceID] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(ids) != n {
		t.Fatalf("got %d unique ids, want %d", len(ids), n)
	}
	for i := uint64(1); i <= n; i++ {
		if !ids[i] {
			t.Errorf("id %d never assigned", i)
		}
	}
}

func TestAcceptInvoice(t *testing.T) {
	ctx := context.Background()

	t.Run("Wrong payer", func(t *testing.T) {
		e, _ := newEngine(t)
		mustExecute(t, e, escrow.Caller{Address: "payee"}, scenarioInvoice())
		caller := funds(889)
		caller.Address = "mallory"
		_, err := e.Execute(ctx, caller, escrow.AcceptInvoice{ID: 1})
		expectErr(t, err, escrow.ErrWrongPayer)
		if !escrow.IsAuthError(err) {
			t.Error("WrongPayer should be an auth error")
		}
	})

	t.Run("Not found", func(t *testing.T) {
		e, _ := newEngine(t)
		_, err := e.Execute(ctx, funds(889), escrow.AcceptInvoice{ID: 99})
		expectErr(t, err, escrow.ErrNotFound)
	})

	t.Run("Insufficient funds", func(t *testing.T) {
		e, _ := newEngine(t)
		mustExecute(t, e, escrow.Caller{Address: "payee"}, scenarioInvoice())
		_, err := e.Execute(ctx, funds(888), escrow.AcceptInvoice{ID: 1})
		expectErr(t, err, escrow.ErrInsufficientFunds)

		inv, err := e.SingleInvoice(ctx, 1, "payee")
		if err != nil {
			t.Fatalf("SingleInvoice: %v", err)
		}
		if inv.Status != invoice.StatusPending {
			t.Errorf("status after failed accept: %s", inv.Status)
		}
		if n, _ := e.NumberOfContract(ctx, "payer"); n != 0 {
			t.Errorf("failed accept created %d contracts", n)
		}
		if got := balance(t, e, "admin"); got != 0 {
			t.Errorf("failed accept credited admin %d", got)
		}
	})

	t.Run("Funds in another denom", func(t *testing.T) {
		e, _ := newEngine(t)
		mustExecute(t, e, escrow.Caller{Address: "payee"}, scenarioInvoice())
		caller := escrow.Caller{Address: "payer", Funds: escrow.Coins{escrow.NewCoin("uatom", 10_000)}}
		_, err := e.Execute(ctx, caller, escrow.AcceptInvoice{ID: 1})
		expectErr(t, err, escrow.ErrInsufficientFunds)
	})

	t.Run("Accept twice", func(t *testing.T) {
		e, _ := newEngine(t)
		submitAccepted(t, e)
		_, err := e.Execute(ctx, funds(889), escrow.AcceptInvoice{ID: 1})
		expectErr(t, err, escrow.ErrInvalidState)
		if n, _ := e.NumberOfContract(ctx, "payer"); n != 1 {
			t.Errorf("contracts: got %d, want 1", n)
		}
	})

	t.Run("Excess refunded", func(t *testing.T) {
		e, _ := newEngine(t)
		mustExecute(t, e, escrow.Caller{Address: "payee"}, scenarioInvoice())
		caller := escrow.Caller{Address: "payer", Funds: escrow.Coins{
			escrow.NewCoin(denom, 900),
			escrow.NewCoin("uatom", 5),
		}}
		res := mustExecute(t, e, caller, escrow.AcceptInvoice{ID: 1})

		var refunds []escrow.Coin
		for _, tr := range res.Transfers {
			if tr.Kind == account.KindRefund {
				if tr.Recipient != "payer" {
					t.Errorf("refund to %s", tr.Recipient)
				}
				refunds = append(refunds, tr.Coin)
			}
		}
		if len(refunds) != 2 {
			t.Fatalf("refunds: %v", refunds)
		}
		if got := balance(t, e, "payer"); got != 11 {
			t.Errorf("payer refund: got %d, want 11", got)
		}
		if got, _ := e.Balance(ctx, "payer", "uatom"); got != 5 {
			t.Errorf("payer uatom refund: got %d, want 5", got)
		}
	})

	t.Run("Not instantiated", func(t *testing.T) {
		e := escrow.New(memoryStore(), escrow.WithLogger(quietLogger))
		mustExecute(t, e, escrow.Caller{Address: "payee"}, scenarioInvoice())
		_, err := e.Execute(ctx, funds(889), escrow.AcceptInvoice{ID: 1})
		expectErr(t, err, escrow.ErrNotInstantiated)
		if escrow.KindOf(err) != escrow.KindInvalidState {
			t.Errorf("kind: got %s", escrow.KindOf(err))
		}
	})
}

func TestCancelPayment(t *testing.T) {
	ctx := context.Background()

	t.Run("Pending by owner", func(t *testing.T) {
		e, _ := newEngine(t)
		mustExecute(t, e, escrow.Caller{Address: "payee"}, scenarioInvoice())
		res := mustExecute(t, e, escrow.Caller{Address: "payee"}, escrow.CancelPayment{ID: 1})
		if len(res.Transfers) != 0 {
			t.Errorf("pending cancel moved funds: %+v", res.Transfers)
		}
		inv, _ := e.SingleInvoice(ctx, 1, "payee")
		if inv.Status != invoice.StatusCancelled {
			t.Errorf("status: %s", inv.Status)
		}

		_, err := e.Execute(ctx, funds(889), escrow.AcceptInvoice{ID: 1})
		expectErr(t, err, escrow.ErrInvalidState)
	})

	t.Run("Stranger", func(t *testing.T) {
		e, _ := newEngine(t)
		mustExecute(t, e, escrow.Caller{Address: "payee"}, scenarioInvoice())
		_, err := e.Execute(ctx, escrow.Caller{Address: "mallory"}, escrow.CancelPayment{ID: 1})
		expectErr(t, err, escrow.ErrUnauthorized)
	})

	t.Run("Accepted by payer refunds escrow", func(t *testing.T) {
		e, _ := newEngine(t)
		submitAccepted(t, e)

		res := mustExecute(t, e, escrow.Caller{Address: "payer"}, escrow.CancelPayment{ID: 1})
		if len(res.Transfers) != 1 || res.Transfers[0].Kind != account.KindRefund || res.Transfers[0].Coin.Amount != 839 {
			t.Fatalf("cancel transfers: %+v", res.Transfers)
		}
		if got := balance(t, e, "payer"); got != 839 {
			t.Errorf("payer balance: got %d, want 839", got)
		}
		if got := balance(t, e, "admin"); got != 50 {
			t.Errorf("admin keeps its fee: got %d, want 50", got)
		}

		c, err := e.SingleContract(ctx, 1, "payer")
		if err != nil {
			t.Fatalf("SingleContract: %v", err)
		}
		if c.Status != contract.StatusCancelled || c.EscrowBalance != 0 {
			t.Errorf("contract after cancel: %+v", c)
		}

		_, err = e.Execute(ctx, escrow.Caller{Address: "payer"}, escrow.CancelPayment{ID: 1})
		expectErr(t, err, escrow.ErrInvalidState)
		_, err = e.Execute(ctx, escrow.Caller{Address: "payee"}, escrow.WithdrawPayment{ID: 1})
		expectErr(t, err, escrow.ErrInvalidState)
	})

	t.Run("After withdrawal", func(t *testing.T) {
		e, clock := newEngine(t)
		submitAccepted(t, e)
		clock.Advance(6 * day)
		mustExecute(t, e, escrow.Caller{Address: "payee"}, escrow.WithdrawPayment{ID: 1})

		for _, who := range []string{"payee", "payer"} {
			_, err := e.Execute(ctx, escrow.Caller{Address: who}, escrow.CancelPayment{ID: 1})
			expectErr(t, err, escrow.ErrInvalidState)
		}
	})

	t.Run("Not found", func(t *testing.T) {
		e, _ := newEngine(t)
		_, err := e.Execute(ctx, escrow.Caller{Address: "payee"}, escrow.CancelPayment{ID: 7})
		expectErr(t, err, escrow.ErrNotFound)
	})
}

func TestWithdrawPayment(t *testing.T) {
	ctx := context.Background()

	t.Run("Only owner", func(t *testing.T) {
		e, clock := newEngine(t)
		submitAccepted(t, e)
		clock.Advance(6 * day)
		_, err := e.Execute(ctx, escrow.Caller{Address: "payer"}, escrow.WithdrawPayment{ID: 1})
		expectErr(t, err, escrow.ErrUnauthorized)
	})

	t.Run("Pending", func(t *testing.T) {
		e, _ := newEngine(t)
		mustExecute(t, e, escrow.Caller{Address: "payee"}, scenarioInvoice())
		_, err := e.Execute(ctx, escrow.Caller{Address: "payee"}, escrow.WithdrawPayment{ID: 1})
		expectErr(t, err, escrow.ErrInvalidState)
	})

	t.Run("Once per elapsed cycle", func(t *testing.T) {
		e, clock := newEngine(t)
		op := escrow.SubmitInvoice{
			Amount:        10,
			Payer:         "payer",
			Days:          1,
			RecurrentTime: 3,
			Token:         invoice.NativeToken(denom),
		}
		mustExecute(t, e, escrow.Caller{Address: "payee"}, op)
		mustExecute(t, e, funds(10), escrow.AcceptInvoice{ID: 1})

		clock.Advance(2 * day)
		var released []escrow.Amount
		for i := 0; i < 2; i++ {
			res := mustExecute(t, e, escrow.Caller{Address: "payee"}, escrow.WithdrawPayment{ID: 1})
			released = append(released, res.Transfers[0].Coin.Amount)
		}
		_, err := e.Execute(ctx, escrow.Caller{Address: "payee"}, escrow.WithdrawPayment{ID: 1})
		expectErr(t, err, escrow.ErrNotYetDue)

		clock.Advance(day)
		res := mustExecute(t, e, escrow.Caller{Address: "payee"}, escrow.WithdrawPayment{ID: 1})
		released = append(released, res.Transfers[0].Coin.Amount)

		want := []escrow.Amount{3, 3, 4}
		for i := range want {
			if released[i] != want[i] {
				t.Errorf("cycle %d: got %d, want %d", i, released[i], want[i])
			}
		}
		if got := balance(t, e, "payee"); got != 10 {
			t.Errorf("payee total: got %d, want 10", got)
		}
		inv, _ := e.SingleInvoice(ctx, 1, "payee")
		if inv.Status != invoice.StatusCompleted {
			t.Errorf("status: %s", inv.Status)
		}
	})
}

func TestUpdateAdmin(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t)

	_, err := e.Execute(ctx, escrow.Caller{Address: "mallory"}, escrow.UpdateAdmin{NewAdmin: "mallory"})
	expectErr(t, err, escrow.ErrUnauthorized)

	_, err = e.Execute(ctx, escrow.Caller{Address: "admin"}, escrow.UpdateAdmin{NewAdmin: "Bad Admin"})
	expectErr(t, err, escrow.ErrInvalidInput)

	mustExecute(t, e, escrow.Caller{Address: "admin"}, escrow.UpdateAdmin{NewAdmin: "treasury"})
	got, err := e.AdminWallet(ctx)
	if err != nil || got != "treasury" {
		t.Fatalf("AdminWallet: got (%q, %v), want treasury", got, err)
	}

	_, err = e.Execute(ctx, escrow.Caller{Address: "admin"}, escrow.UpdateAdmin{NewAdmin: "admin"})
	expectErr(t, err, escrow.ErrUnauthorized)

	// Fees follow the new admin.
	submitAccepted(t, e)
	if got := balance(t, e, "treasury"); got != 50 {
		t.Errorf("treasury fee: got %d, want 50", got)
	}
}

func TestInstantiate(t *testing.T) {
	ctx := context.Background()
	e := escrow.New(memoryStore(), escrow.WithLogger(quietLogger))

	if _, err := e.AdminWallet(ctx); !errors.Is(err, escrow.ErrNotInstantiated) {
		t.Fatalf("AdminWallet before instantiate: %v", err)
	}
	expectErr(t, e.Instantiate(ctx, ""), escrow.ErrInvalidInput)
	if err := e.Instantiate(ctx, "admin"); err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	expectErr(t, e.Instantiate(ctx, "other"), escrow.ErrAlreadyInstantiated)

	_, err := e.Execute(ctx, escrow.Caller{Address: "admin"}, nil)
	expectErr(t, err, escrow.ErrUnknownOperation)
}

func TestPointerOperations(t *testing.T) {
	e, _ := newEngine(t)
	op := scenarioInvoice()
	res := mustExecute(t, e, escrow.Caller{Address: "payee"}, &op)
	if res.Operation != escrow.OpSubmitInvoice || res.OperationID.IsNil() {
		t.Errorf("result: %+v", res)
	}

	var nilOp *escrow.AcceptInvoice
	_, err := e.Execute(context.Background(), funds(889), nilOp)
	expectErr(t, err, escrow.ErrUnknownOperation)
}
