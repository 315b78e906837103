package audithook_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/xraph/escrow"
	audithook "github.com/xraph/escrow/audit_hook"
	"github.com/xraph/escrow/invoice"
	"github.com/xraph/escrow/store/memory"
)

type sink struct {
	mu     sync.Mutex
	events []*audithook.AuditEvent
}

func (s *sink) Record(_ context.Context, ev *audithook.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *sink) actions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev.Action)
	}
	return out
}

func (s *sink) last() *audithook.AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events[len(s.events)-1]
}

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func newEngine(t *testing.T, ext *audithook.Extension) (*escrow.Escrow, *time.Time) {
	t.Helper()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	e := escrow.New(memory.New(),
		escrow.WithLogger(quiet),
		escrow.WithPlugin(ext),
		escrow.WithClock(func() time.Time { return now }),
	)
	if err := e.Instantiate(context.Background(), "admin"); err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	return e, &now
}

func run(t *testing.T, e *escrow.Escrow, caller escrow.Caller, op escrow.Operation) {
	t.Helper()
	if _, err := e.Execute(context.Background(), caller, op); err != nil {
		t.Fatalf("%s: %v", op.Name(), err)
	}
}

func TestLifecycleEvents(t *testing.T) {
	rec := &sink{}
	e, now := newEngine(t, audithook.New(rec, audithook.WithLogger(quiet)))

	run(t, e, escrow.Caller{Address: "payee"}, escrow.SubmitInvoice{
		Amount:        100,
		Payer:         "payer",
		Days:          1,
		RecurrentTime: 1,
		Token:         invoice.NativeToken("uscrt"),
	})
	run(t, e, escrow.Caller{Address: "payer", Funds: escrow.Coins{escrow.NewCoin("uscrt", 100)}}, escrow.AcceptInvoice{ID: 1})
	*now = now.Add(24 * time.Hour)
	run(t, e, escrow.Caller{Address: "payee"}, escrow.WithdrawPayment{ID: 1})

	want := []string{
		audithook.ActionAdminUpdated,
		audithook.ActionInvoiceSubmitted,
		audithook.ActionInvoiceAccepted,
		audithook.ActionPaymentWithdrawn,
		audithook.ActionContractCompleted,
	}
	got := rec.actions()
	if len(got) != len(want) {
		t.Fatalf("actions: got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("action %d: got %s, want %s", i, got[i], want[i])
		}
	}

	ev := rec.last()
	if ev.ResourceID != "1" || ev.Resource != audithook.ResourceContract || ev.Outcome != audithook.OutcomeSuccess {
		t.Errorf("completion event: %+v", ev)
	}
}

func TestOperationFailedEvent(t *testing.T) {
	rec := &sink{}
	e, _ := newEngine(t, audithook.New(rec, audithook.WithLogger(quiet)))

	run(t, e, escrow.Caller{Address: "payee"}, escrow.SubmitInvoice{
		Amount:        100,
		Payer:         "payer",
		Days:          1,
		RecurrentTime: 1,
		Token:         invoice.NativeToken("uscrt"),
	})
	_, err := e.Execute(context.Background(), escrow.Caller{Address: "mallory"}, escrow.AcceptInvoice{ID: 1})
	if !errors.Is(err, escrow.ErrWrongPayer) {
		t.Fatalf("expected ErrWrongPayer, got %v", err)
	}

	ev := rec.last()
	if ev.Action != audithook.ActionOperationFailed {
		t.Fatalf("action: got %s", ev.Action)
	}
	if ev.Severity != audithook.SeverityWarning || ev.Category != audithook.CategoryAccess {
		t.Errorf("severity/category: %s/%s", ev.Severity, ev.Category)
	}
	if ev.ResourceID != "1" || ev.Metadata["kind"] != string(escrow.KindWrongPayer) || ev.Reason == "" {
		t.Errorf("event: %+v", ev)
	}
}

func TestEnabledActions(t *testing.T) {
	rec := &sink{}
	ext := audithook.New(rec,
		audithook.WithLogger(quiet),
		audithook.WithDisabledActions(audithook.ActionAdminUpdated),
	)
	e, _ := newEngine(t, ext)

	run(t, e, escrow.Caller{Address: "admin"}, escrow.UpdateAdmin{NewAdmin: "treasury"})
	if got := rec.actions(); len(got) != 0 {
		t.Errorf("disabled action recorded: %v", got)
	}

	only := &sink{}
	e2, _ := newEngine(t, audithook.New(only,
		audithook.WithLogger(quiet),
		audithook.WithEnabledActions(audithook.ActionOperationFailed),
	))
	run(t, e2, escrow.Caller{Address: "admin"}, escrow.UpdateAdmin{NewAdmin: "treasury"})
	_, _ = e2.Execute(context.Background(), escrow.Caller{Address: "admin"}, escrow.UpdateAdmin{NewAdmin: "other"})
	if got := only.actions(); len(got) != 1 || got[0] != audithook.ActionOperationFailed {
		t.Errorf("enabled actions: %v", got)
	}
}

func TestRecorderErrorIsSwallowed(t *testing.T) {
	failing := audithook.RecorderFunc(func(context.Context, *audithook.AuditEvent) error {
		return errors.New("backend down")
	})
	ext := audithook.New(failing, audithook.WithLogger(quiet))
	if err := ext.OnAdminUpdated(context.Background(), "a", "b"); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}
