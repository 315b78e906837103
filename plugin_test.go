package escrow_test

import (
	"context"
	"slices"
	"sync"
	"testing"

	"github.com/xraph/escrow"
	"github.com/xraph/escrow/account"
	"github.com/xraph/escrow/contract"
	"github.com/xraph/escrow/invoice"
)

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) record(ev string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.events)
}

func (r *recorder) Name() string { return "recorder" }

func (r *recorder) OnInvoiceSubmitted(_ context.Context, _ *invoice.Invoice) error {
	r.record("submitted")
	return nil
}

func (r *recorder) OnInvoiceAccepted(_ context.Context, _ *invoice.Invoice, _ *contract.Contract) error {
	r.record("accepted")
	return nil
}

func (r *recorder) OnPaymentCancelled(_ context.Context, _ *invoice.Invoice, refunds []*account.Transfer) error {
	r.record("cancelled")
	return nil
}

func (r *recorder) OnPaymentWithdrawn(_ context.Context, _ *invoice.Invoice, release *account.Transfer) error {
	r.record("withdrawn:" + release.Coin.String())
	return nil
}

func (r *recorder) OnContractCompleted(_ context.Context, _ *invoice.Invoice, _ *contract.Contract) error {
	r.record("completed")
	return nil
}

func (r *recorder) OnAdminUpdated(_ context.Context, previous, current string) error {
	r.record("admin:" + previous + "->" + current)
	return nil
}

func (r *recorder) OnOperationFailed(_ context.Context, operation, _ string, _ error) error {
	r.record("failed:" + operation)
	return nil
}

func TestPluginHooks(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	e, clock := newEngine(t, escrow.WithPlugin(rec))

	submitAccepted(t, e)
	_, _ = e.Execute(ctx, escrow.Caller{Address: "payee"}, escrow.WithdrawPayment{ID: 1})
	clock.Advance(12 * day)
	mustExecute(t, e, escrow.Caller{Address: "payee"}, escrow.WithdrawPayment{ID: 1})
	mustExecute(t, e, escrow.Caller{Address: "payee"}, escrow.WithdrawPayment{ID: 1})

	mustExecute(t, e, escrow.Caller{Address: "payee"}, scenarioInvoice())
	mustExecute(t, e, escrow.Caller{Address: "payer"}, escrow.CancelPayment{ID: 2})
	mustExecute(t, e, escrow.Caller{Address: "admin"}, escrow.UpdateAdmin{NewAdmin: "treasury"})

	want := []string{
		"admin:->admin",
		"submitted",
		"accepted",
		"failed:withdraw_payment",
		"withdrawn:375uscrt",
		"withdrawn:375uscrt",
		"completed",
		"submitted",
		"cancelled",
		"admin:admin->treasury",
	}
	if got := rec.snapshot(); !slices.Equal(got, want) {
		t.Errorf("events:\n got %v\nwant %v", got, want)
	}
}
