// Package propsync keeps the structured header of markdown documents in sync
// with the inline fields written in their bodies.
//
// A Client runs reconciliation cycles: it extracts the inline fields of a
// document, coerces them into header-safe values, decides which header keys
// must be added, updated or removed, and applies that decision atomically.
// A snapshot of the keys written by each cycle lets the next cycle remove
// fields whose inline source disappeared without ever touching keys the
// user wrote by hand.
//
// Example usage:
//
//	ps, err := propsync.New(
//	    propsync.WithDocuments(store),
//	    propsync.WithSettings(settings.Defaults()),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer ps.Close()
//
//	ps.OnFieldAdded(func(doc string, change reconcile.FieldChange) {
//	    log.Printf("%s: added %s", doc, change.Key)
//	})
//
//	result, err := ps.Reconcile(ctx, "projects/roadmap.md")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(result.Summary())
package propsync

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agentstation/propsync/internal/scheduler"
	"github.com/agentstation/propsync/internal/snapshots"
	"github.com/agentstation/propsync/pkg/constants"
	"github.com/agentstation/propsync/pkg/errors"
	"github.com/agentstation/propsync/pkg/fields"
	"github.com/agentstation/propsync/pkg/logging"
	"github.com/agentstation/propsync/pkg/reconcile"
	"github.com/agentstation/propsync/pkg/settings"
)

// Compile-time interface checks to ensure proper implementation.
var (
	_ Client        = (*client)(nil)
	_ SnapshotStore = snapshots.Store(nil)
	_ Hooks         = (*hooks)(nil)
)

// HeaderStore reads and atomically rewrites document headers.
type HeaderStore interface {
	// ReadHeader returns the header of doc, nil when it has none.
	ReadHeader(ctx context.Context, doc string) (*fields.Map, error)

	// UpdateHeader calls fn with the current header (never nil) and
	// persists whatever fn leaves in it. When fn returns an error nothing
	// is written and the error is returned.
	UpdateHeader(ctx context.Context, doc string, fn func(header *fields.Map) error) error
}

// Extractor produces the raw inline fields of a document.
type Extractor interface {
	Extract(ctx context.Context, doc string) ([]fields.Raw, error)
}

// Documents is a store that owns both headers and bodies.
type Documents interface {
	HeaderStore
	Extractor
}

// SnapshotStore persists the keys written by the last cycle of each document.
type SnapshotStore interface {
	// Get returns nil without error when doc has no snapshot.
	Get(ctx context.Context, doc string) (*reconcile.Snapshot, error)
	Put(ctx context.Context, doc string, snap reconcile.Snapshot) error
	Delete(ctx context.Context, doc string) error
	Rename(ctx context.Context, from, to string) error
	Close() error
}

// Reconciler runs reconciliation cycles.
type Reconciler interface {
	// Reconcile runs one cycle for doc and applies its decision.
	Reconcile(ctx context.Context, doc string) (*Result, error)

	// ReconcileAll reconciles docs concurrently. Every document is
	// attempted; failures are joined into the returned error.
	ReconcileAll(ctx context.Context, docs []string) ([]*Result, error)

	// Check runs one cycle for doc without writing the header or the snapshot.
	Check(ctx context.Context, doc string) (*Result, error)

	// Trigger schedules a debounced Reconcile of doc. It returns false
	// once the client is closed.
	Trigger(doc string) bool
}

// Lifecycle keeps snapshots in step with documents that move or vanish.
type Lifecycle interface {
	// Forget drops the snapshot and any pending trigger of doc.
	Forget(ctx context.Context, doc string) error

	// Rename moves the snapshot of from to to.
	Rename(ctx context.Context, from, to string) error
}

// Configurable exposes the active settings generation.
type Configurable interface {
	// Settings returns the active settings.
	Settings() settings.Settings

	// UpdateSettings validates and compiles s, then makes it the active
	// generation. Cycles already running finish with the old generation.
	UpdateSettings(s settings.Settings) error
}

// Client manages reconciliation of a document store.
type Client interface {

	// Reconciler runs reconciliation cycles
	Reconciler

	// Lifecycle handles snapshot bookkeeping
	Lifecycle

	// Configurable handles settings generations
	Configurable

	// AutoResyncer provides access to periodic resync controls
	AutoResyncer

	// Hooks provides access to event callback registration
	Hooks

	// Close stops the resync loop, drains scheduled work and closes the
	// snapshot store.
	Close() error
}

// client is the internal implementation of the Client interface.
type client struct {

	// options are the configured options for the client
	options *options

	// generation is the active compiled settings
	generation atomic.Pointer[settings.Compiled]

	// locks serializes cycles per document
	locks *docLocks

	scheduler *scheduler.Scheduler
	closed    atomic.Bool

	// registered callbacks, promoted to satisfy Hooks
	*hooks

	// resync state
	resyncMu     sync.Mutex
	resyncTicker *time.Ticker
	stopCh       chan struct{}
	resyncCancel context.CancelFunc
}

// New creates a new Client instance with the given options.
func New(opts ...Option) (Client, error) {
	o, err := defaults().apply(opts...)
	if err != nil {
		return nil, err
	}
	if o.headers == nil {
		return nil, errors.NewValidationError("headers", nil, "a header store is required")
	}
	if o.extractor == nil {
		return nil, errors.NewValidationError("extractor", nil, "an extractor is required")
	}
	if o.snapshots == nil {
		o.snapshots = snapshots.NewMemory()
	}

	c := &client{
		options: o,
		locks:   newDocLocks(),
		hooks:   newHooks(),
	}
	if err := c.UpdateSettings(o.settings); err != nil {
		return nil, err
	}

	debounce := o.settings.Debounce
	if o.debounce != nil {
		debounce = *o.debounce
	}
	c.scheduler = scheduler.New(c.run,
		scheduler.WithDebounce(debounce),
		scheduler.WithTimeout(constants.CycleTimeout),
		scheduler.WithLogger(o.logger),
	)

	return c, nil
}

// Settings returns the active settings.
func (c *client) Settings() settings.Settings {
	return c.generation.Load().Settings
}

// UpdateSettings validates, compiles and activates s.
func (c *client) UpdateSettings(s settings.Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	compiled, err := settings.Compile(s, c.options.logger, c.coerceOptions()...)
	if err != nil {
		return err
	}
	c.generation.Store(compiled)
	c.options.logger.Debug().
		Bool("only_mode", s.OnlyMode).
		Str("prefix", s.Prefix).
		Msg("Settings generation activated")
	return nil
}

// Trigger schedules a debounced reconciliation of doc.
func (c *client) Trigger(doc string) bool {
	if c.closed.Load() {
		return false
	}
	return c.scheduler.Trigger(doc)
}

// run is the scheduled cycle. Its outcome is only logged.
func (c *client) run(ctx context.Context, doc string) error {
	result, err := c.cycle(ctx, doc, !c.options.dryRun)
	if err != nil {
		return err
	}
	if result.Written {
		c.options.logger.Info().
			Str("document", doc).
			Str("run", result.RunID).
			Msg(result.Decision.String())
	}
	return nil
}

// Forget drops the snapshot and any pending trigger of doc.
func (c *client) Forget(ctx context.Context, doc string) error {
	if c.closed.Load() {
		return errors.ErrClosed
	}
	c.scheduler.Cancel(doc)

	unlock := c.locks.lock(doc)
	defer unlock()

	if err := c.options.snapshots.Delete(ctx, doc); err != nil {
		return errors.WrapResource("delete", "snapshot", doc, err)
	}
	logging.FromContext(c.context(ctx)).Debug().Str("document", doc).Msg("Snapshot forgotten")
	return nil
}

// Rename moves the snapshot of from to to.
func (c *client) Rename(ctx context.Context, from, to string) error {
	if c.closed.Load() {
		return errors.ErrClosed
	}
	if from == to {
		return nil
	}
	c.scheduler.Cancel(from)

	unlock := c.locks.lock(from, to)
	defer unlock()

	if err := c.options.snapshots.Rename(ctx, from, to); err != nil {
		return errors.WrapResource("rename", "snapshot", from, err)
	}
	logging.FromContext(c.context(ctx)).Debug().
		Str("from", from).
		Str("to", to).
		Msg("Snapshot renamed")
	return nil
}

// Close stops the resync loop, drains the scheduler and closes the snapshot store.
func (c *client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	_ = c.AutoResyncOff()

	ctx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := c.scheduler.Close(ctx); err != nil {
		errs = append(errs, errors.WrapResource("close", "scheduler", "", err))
	}
	if err := c.options.snapshots.Close(); err != nil {
		errs = append(errs, errors.WrapResource("close", "snapshots", "", err))
	}
	return errors.Join(errs...)
}

// context attaches the client logger unless ctx already carries one.
func (c *client) context(ctx context.Context) context.Context {
	if logging.FromContext(ctx) != logging.Default() {
		return ctx
	}
	return logging.WithLogger(ctx, c.options.logger)
}
