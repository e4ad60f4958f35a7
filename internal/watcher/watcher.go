// Package watcher turns filesystem notifications under a vault into
// reconciliation triggers.
//
// Creates and writes of documents trigger a debounced reconciliation.
// Removals forget the document's snapshot. A rename arrives as a Rename
// event for the old name followed by a Create for the new one; the old name
// is held for a short window and, when a matching create shows up, the
// snapshot is moved instead of forgotten. Old names nobody claims are
// forgotten when the window ends. New directories are watched as they
// appear and any document already inside them is triggered.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"github.com/agentstation/propsync/pkg/constants"
	"github.com/agentstation/propsync/pkg/errors"
	"github.com/agentstation/propsync/pkg/logging"
)

// Target receives the document events.
type Target interface {
	Trigger(doc string) bool
	Forget(ctx context.Context, doc string) error
	Rename(ctx context.Context, from, to string) error
}

// Documents maps filesystem paths to document identities.
type Documents interface {
	Root() string
	ID(path string) (string, error)
	IsDocument(doc string) bool
}

// Action is what an event asks of the target.
type Action int

// Actions.
const (
	ActionNone Action = iota
	ActionTrigger
	ActionForget
	ActionMoveAway
	ActionWatchDir
)

// String returns the action name.
func (a Action) String() string {
	switch a {
	case ActionTrigger:
		return "trigger"
	case ActionForget:
		return "forget"
	case ActionMoveAway:
		return "move-away"
	case ActionWatchDir:
		return "watch-dir"
	default:
		return "none"
	}
}

// Stats are point-in-time counters.
type Stats struct {
	Events    int64 `json:"events"`
	Triggered int64 `json:"triggered"`
	Forgotten int64 `json:"forgotten"`
	Renamed   int64 `json:"renamed"`
	Dirs      int64 `json:"dirs"`
	Errors    int64 `json:"errors"`
}

// Watcher is safe for concurrent use of Stats while Run executes.
type Watcher struct {
	target Target
	docs   Documents
	logger *zerolog.Logger
	ready  chan struct{}

	// Old names of renamed documents waiting for their create
	window  time.Duration
	pending *gocache.Cache
	baseCtx context.Context

	events    atomic.Int64
	triggered atomic.Int64
	forgotten atomic.Int64
	renamed   atomic.Int64
	dirs      atomic.Int64
	errs      atomic.Int64
}

// move is a renamed-away document. Whoever claims it first, a matching
// create or the window expiry, handles it.
type move struct {
	doc     string
	claimed atomic.Bool
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the watcher logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithRenameWindow sets how long a renamed-away document waits for the
// create of its new name. Zero forgets it at once.
func WithRenameWindow(d time.Duration) Option {
	return func(w *Watcher) {
		if d >= 0 {
			w.window = d
		}
	}
}

// New creates a Watcher. Call Run to start it.
func New(target Target, docs Documents, opts ...Option) *Watcher {
	w := &Watcher{
		target:  target,
		docs:    docs,
		logger:  logging.Default(),
		ready:   make(chan struct{}),
		window:  constants.RenameWindow,
		baseCtx: context.Background(),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.window > 0 {
		w.pending = gocache.New(w.window, w.window/2)
		w.pending.OnEvicted(func(_ string, v any) {
			if m, ok := v.(*move); ok && m.claimed.CompareAndSwap(false, true) {
				w.forget(w.baseCtx, m.doc)
			}
		})
	}
	return w
}

// Ready is closed once the initial tree is watched.
func (w *Watcher) Ready() <-chan struct{} {
	return w.ready
}

// Stats returns the current counters.
func (w *Watcher) Stats() Stats {
	return Stats{
		Events:    w.events.Load(),
		Triggered: w.triggered.Load(),
		Forgotten: w.forgotten.Load(),
		Renamed:   w.renamed.Load(),
		Dirs:      w.dirs.Load(),
		Errors:    w.errs.Load(),
	}
}

// Run watches the vault until ctx ends. It returns nil on cancellation.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.WrapResource("create", "watcher", w.docs.Root(), err)
	}
	defer fw.Close()

	// Expired moves are forgotten from the cache janitor, outside this loop.
	w.baseCtx = context.WithoutCancel(ctx)
	defer w.flushMoves()

	if err := w.addTree(fw, w.docs.Root(), false); err != nil {
		return err
	}
	close(w.ready)
	w.logger.Info().Str("root", w.docs.Root()).Int64("dirs", w.dirs.Load()).Msg("Watching vault")

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("Watcher stopped")
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.handle(ctx, fw, event)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.errs.Add(1)
			w.logger.Warn().Err(err).Msg("Watcher error")
		}
	}
}

func (w *Watcher) handle(ctx context.Context, fw *fsnotify.Watcher, event fsnotify.Event) {
	w.events.Add(1)
	action, doc := w.Classify(event)

	switch action {
	case ActionTrigger:
		if event.Has(fsnotify.Create) {
			w.completeMove(ctx, doc)
		}
		if w.target.Trigger(doc) {
			w.triggered.Add(1)
		}
	case ActionForget:
		w.forget(ctx, doc)
	case ActionMoveAway:
		if w.pending == nil {
			w.forget(ctx, doc)
			break
		}
		w.pending.SetDefault(doc, &move{doc: doc})
	case ActionWatchDir:
		if err := w.addTree(fw, event.Name, true); err != nil {
			w.errs.Add(1)
			w.logger.Warn().Err(err).Str("dir", event.Name).Msg("Failed to watch directory")
		}
	}
	if action != ActionNone {
		w.logger.Trace().Str("op", event.Op.String()).Str("path", event.Name).Stringer("action", action).Msg("Event handled")
	}
}

// Classify decides what an event asks for and for which document. Combined
// operations are resolved with removal first, then creation, then writes.
func (w *Watcher) Classify(event fsnotify.Event) (Action, string) {
	if isHidden(w.docs.Root(), event.Name) {
		return ActionNone, ""
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			return ActionWatchDir, ""
		}
	}

	doc, err := w.docs.ID(event.Name)
	if err != nil || !w.docs.IsDocument(doc) {
		return ActionNone, ""
	}

	switch {
	case event.Has(fsnotify.Remove):
		return ActionForget, doc
	case event.Has(fsnotify.Rename):
		return ActionMoveAway, doc
	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		return ActionTrigger, doc
	default:
		return ActionNone, ""
	}
}

func (w *Watcher) forget(ctx context.Context, doc string) {
	if err := w.target.Forget(ctx, doc); err != nil {
		w.errs.Add(1)
		w.logger.Warn().Err(err).Str("document", doc).Msg("Failed to forget document")
		return
	}
	w.forgotten.Add(1)
}

// completeMove pairs a created document with the single pending move that
// looks like its old name: same directory (renamed in place) or same file
// name (moved to another folder). Anything ambiguous is left to expire.
func (w *Watcher) completeMove(ctx context.Context, doc string) {
	if w.pending == nil {
		return
	}
	items := w.pending.Items()
	if len(items) != 1 {
		return
	}
	for from, item := range items {
		m, ok := item.Object.(*move)
		if !ok || from == doc {
			return
		}
		if path.Dir(from) != path.Dir(doc) && path.Base(from) != path.Base(doc) {
			return
		}
		if !m.claimed.CompareAndSwap(false, true) {
			return
		}
		w.pending.Delete(from)

		if err := w.target.Rename(ctx, from, doc); err != nil {
			w.errs.Add(1)
			w.logger.Warn().Err(err).Str("from", from).Str("to", doc).Msg("Failed to move snapshot")
			return
		}
		w.renamed.Add(1)
		w.logger.Debug().Str("from", from).Str("to", doc).Msg("Document renamed")
	}
}

// flushMoves forgets every move still waiting when the watcher stops.
func (w *Watcher) flushMoves() {
	if w.pending == nil {
		return
	}
	for from, item := range w.pending.Items() {
		if m, ok := item.Object.(*move); ok && m.claimed.CompareAndSwap(false, true) {
			w.forget(w.baseCtx, from)
		}
	}
	w.pending.Flush()
}

// addTree watches dir and every visible directory below it. When announce
// is set the documents found are triggered, catching files written before
// the watch was attached.
func (w *Watcher) addTree(fw *fsnotify.Watcher, dir string, announce bool) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			// The tree can change under the walk; skip what vanished.
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return errors.WrapIO("walk", p, err)
		}
		if d.IsDir() {
			if p != w.docs.Root() && isHidden(w.docs.Root(), p) {
				return filepath.SkipDir
			}
			if err := fw.Add(p); err != nil {
				return errors.WrapResource("watch", "directory", p, err)
			}
			w.dirs.Add(1)
			return nil
		}
		if !announce {
			return nil
		}
		if doc, err := w.docs.ID(p); err == nil && w.docs.IsDocument(doc) {
			if w.target.Trigger(doc) {
				w.triggered.Add(1)
			}
		}
		return nil
	})
}

// isHidden reports whether any segment of p below root starts with a dot.
func isHidden(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	for _, segment := range strings.Split(filepath.ToSlash(rel), "/") {
		if len(segment) > 1 && strings.HasPrefix(segment, ".") && segment != ".." {
			return true
		}
	}
	return false
}
