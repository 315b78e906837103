package plugin_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xraph/escrow/plugin"
)

type adminWatcher struct {
	name  string
	calls atomic.Int32
	err   error
	delay time.Duration
}

func (w *adminWatcher) Name() string { return w.name }

func (w *adminWatcher) OnAdminUpdated(_ context.Context, _, _ string) error {
	if w.delay > 0 {
		time.Sleep(w.delay)
	}
	w.calls.Add(1)
	return w.err
}

type bare struct{}

func (bare) Name() string { return "bare" }

func newRegistry() *plugin.Registry {
	return plugin.NewRegistry().WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRegisterDuplicate(t *testing.T) {
	r := newRegistry()
	if err := r.Register(&adminWatcher{name: "a"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register(&adminWatcher{name: "a"}); err == nil {
		t.Fatal("expected duplicate registration error")
	}
	if r.Count() != 1 {
		t.Errorf("Count: got %d, want 1", r.Count())
	}
	if r.Get("a") == nil || r.Get("missing") != nil {
		t.Error("Get returned the wrong plugin")
	}
}

func TestEmitOnlyReachesImplementers(t *testing.T) {
	r := newRegistry()
	w := &adminWatcher{name: "watcher"}
	_ = r.Register(w)
	_ = r.Register(bare{})

	r.EmitAdminUpdated(context.Background(), "", "admin")
	r.EmitInvoiceSubmitted(context.Background(), nil)

	if got := w.calls.Load(); got != 1 {
		t.Errorf("calls: got %d, want 1", got)
	}
	if len(r.List()) != 2 {
		t.Errorf("List: got %d plugins", len(r.List()))
	}
}

func TestHookErrorsDoNotStopDispatch(t *testing.T) {
	r := newRegistry()
	failing := &adminWatcher{name: "failing", err: errors.New("boom")}
	ok := &adminWatcher{name: "ok"}
	_ = r.Register(failing)
	_ = r.Register(ok)

	r.EmitAdminUpdated(context.Background(), "a", "b")

	if failing.calls.Load() != 1 || ok.calls.Load() != 1 {
		t.Errorf("calls: failing=%d ok=%d", failing.calls.Load(), ok.calls.Load())
	}
}

func TestHookTimeout(t *testing.T) {
	r := newRegistry().WithTimeout(10 * time.Millisecond)
	slow := &adminWatcher{name: "slow", delay: 200 * time.Millisecond}
	_ = r.Register(slow)

	start := time.Now()
	r.EmitAdminUpdated(context.Background(), "a", "b")
	if elapsed := time.Since(start); elapsed > 150*time.Millisecond {
		t.Errorf("emit blocked for %v", elapsed)
	}
}
