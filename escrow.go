package escrow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/xraph/escrow/account"
	"github.com/xraph/escrow/id"
	"github.com/xraph/escrow/plugin"
	"github.com/xraph/escrow/store"
)

// Default settings.
const (
	DefaultCycleUnit   = 24 * time.Hour
	DefaultPageSize    = 25
	DefaultMaxPageSize = 100
)

const opInstantiate = "instantiate"

// Escrow is the escrow and recurring-billing engine.
type Escrow struct {
	store   store.Store
	plugins *plugin.Registry
	logger  *slog.Logger

	validate *validator.Validate
	clock    func() time.Time

	// mu serializes mutating operations.
	mu sync.Mutex

	cycleUnit       time.Duration
	defaultPageSize int
	maxPageSize     int
}

// New creates a new Escrow engine backed by s.
func New(s store.Store, opts ...Option) *Escrow {
	e := &Escrow{
		store:           s,
		plugins:         plugin.NewRegistry(),
		logger:          slog.Default(),
		validate:        newValidator(),
		clock:           time.Now,
		cycleUnit:       DefaultCycleUnit,
		defaultPageSize: DefaultPageSize,
		maxPageSize:     DefaultMaxPageSize,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Option configures an Escrow instance.
type Option func(*Escrow)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Escrow) {
		e.logger = logger
		e.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Escrow) {
		_ = e.plugins.Register(p) //nolint:errcheck // duplicate names are logged by the registry and skipped
	}
}

// WithClock sets the time source used for acceptance and due checks.
func WithClock(clock func() time.Time) Option {
	return func(e *Escrow) {
		e.clock = clock
	}
}

// WithCycleUnit sets the length of one schedule "day".
func WithCycleUnit(d time.Duration) Option {
	return func(e *Escrow) {
		if d > 0 {
			e.cycleUnit = d
		}
	}
}

// WithPageLimits sets the page size used when a query passes zero and the
// upper bound every page size is clamped to.
func WithPageLimits(defaultSize, maxSize int) Option {
	return func(e *Escrow) {
		if maxSize > 0 {
			e.maxPageSize = maxSize
		}
		if defaultSize > 0 {
			e.defaultPageSize = defaultSize
		}
		if e.defaultPageSize > e.maxPageSize {
			e.defaultPageSize = e.maxPageSize
		}
	}
}

// Plugins returns the plugin registry.
func (e *Escrow) Plugins() *plugin.Registry { return e.plugins }

// Store returns the underlying store.
func (e *Escrow) Store() store.Store { return e.store }

// Start migrates the store and initializes plugins.
func (e *Escrow) Start(ctx context.Context) error {
	if err := e.store.Migrate(ctx); err != nil {
		return err
	}

	e.plugins.EmitInit(ctx, e)

	e.logger.Info("escrow started",
		"cycle_unit", e.cycleUnit,
		"default_page_size", e.defaultPageSize,
		"max_page_size", e.maxPageSize,
		"plugins", e.plugins.Count(),
	)

	return nil
}

// Stop shuts down plugins and closes the store.
func (e *Escrow) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.plugins.EmitShutdown(context.Background())

	return e.store.Close()
}

// Instantiate records the initial admin wallet. It fails with
// ErrAlreadyInstantiated once an admin exists.
func (e *Escrow) Instantiate(ctx context.Context, admin string) error {
	if err := e.validateAddress("admin", admin); err != nil {
		return opError(opInstantiate, 0, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	err := e.store.Update(ctx, func(tx store.Tx) error {
		_, err := tx.GetAdmin(ctx)
		switch {
		case err == nil:
			return ErrAlreadyInstantiated
		case !IsNotFound(err):
			return err
		}
		return tx.PutAdmin(ctx, admin)
	})
	if err != nil {
		return opError(opInstantiate, 0, err)
	}

	e.logger.Debug("escrow instantiated", "admin", admin)
	e.plugins.EmitAdminUpdated(ctx, "", admin)
	return nil
}

// ──────────────────────────────────────────────────
// Operation dispatch
// ──────────────────────────────────────────────────

// notifier runs after a transition has committed.
type notifier func(ctx context.Context)

// Execute applies op on behalf of caller. All writes of one operation
// commit together; on error nothing is written.
func (e *Escrow) Execute(ctx context.Context, caller Caller, op Operation) (*Result, error) {
	op = normalize(op)
	if op == nil {
		return nil, ErrUnknownOperation
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock().UTC()
	res := &Result{
		OperationID: id.NewOperationID(),
		Operation:   op.Name(),
	}

	var notify notifier
	err := e.store.Update(ctx, func(tx store.Tx) error {
		var err error
		switch o := op.(type) {
		case SubmitInvoice:
			notify, err = e.submitInvoice(ctx, tx, caller, o, now, res)
		case AcceptInvoice:
			res.InvoiceID = o.ID
			notify, err = e.acceptInvoice(ctx, tx, caller, o, now, res)
		case CancelPayment:
			res.InvoiceID = o.ID
			notify, err = e.cancelPayment(ctx, tx, caller, o, now, res)
		case WithdrawPayment:
			res.InvoiceID = o.ID
			notify, err = e.withdrawPayment(ctx, tx, caller, o, now, res)
		case UpdateAdmin:
			notify, err = e.updateAdmin(ctx, tx, caller, o)
		default:
			err = ErrUnknownOperation
		}
		return err
	})
	if err != nil {
		err = opError(op.Name(), res.InvoiceID, err)
		e.logger.Debug("operation rejected",
			"operation", op.Name(),
			"caller", caller.Address,
			"invoice_id", res.InvoiceID,
			"kind", KindOf(err),
			"error", err,
		)
		e.plugins.EmitOperationFailed(ctx, op.Name(), caller.Address, err)
		return nil, err
	}

	if notify != nil {
		notify(ctx)
	}
	return res, nil
}

// normalize dereferences pointer operations.
func normalize(op Operation) Operation {
	switch o := op.(type) {
	case *SubmitInvoice:
		if o != nil {
			return *o
		}
		return nil
	case *AcceptInvoice:
		if o != nil {
			return *o
		}
		return nil
	case *CancelPayment:
		if o != nil {
			return *o
		}
		return nil
	case *WithdrawPayment:
		if o != nil {
			return *o
		}
		return nil
	case *UpdateAdmin:
		if o != nil {
			return *o
		}
		return nil
	}
	return op
}

// transfersOf filters the result transfers by kind.
func transfersOf(res *Result, kind account.Kind) []*account.Transfer {
	var out []*account.Transfer
	for _, t := range res.Transfers {
		if t.Kind == kind {
			out = append(out, t)
		}
	}
	return out
}
