// Package scheduler serializes and debounces per-document work.
//
// Triggers for one document inside the debounce window collapse into a
// single run. A trigger that arrives while the document's run is in flight
// marks it dirty; the run is repeated once when it finishes, so the last
// change is never lost and two runs for the same document never overlap.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/agentstation/propsync/pkg/constants"
	"github.com/agentstation/propsync/pkg/logging"
)

// Func processes one document.
type Func func(ctx context.Context, doc string) error

// Stats are point-in-time counters.
type Stats struct {
	Triggered int64 `json:"triggered"`
	Coalesced int64 `json:"coalesced"`
	Runs      int64 `json:"runs"`
	Failures  int64 `json:"failures"`
	Pending   int   `json:"pending"`
}

type entry struct {
	gen     uint64
	timer   *time.Timer
	running bool
	dirty   bool
}

// Scheduler is safe for concurrent use.
type Scheduler struct {
	run      Func
	debounce time.Duration
	timeout  time.Duration
	logger   *zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	entries map[string]*entry
	closed  bool
	wg      sync.WaitGroup

	triggered atomic.Int64
	coalesced atomic.Int64
	runs      atomic.Int64
	failures  atomic.Int64
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithDebounce sets the quiet period before a triggered document runs.
func WithDebounce(d time.Duration) Option {
	return func(s *Scheduler) {
		if d >= 0 {
			s.debounce = d
		}
	}
}

// WithTimeout bounds a single run. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d >= 0 {
			s.timeout = d
		}
	}
}

// WithLogger sets the logger used for run failures.
func WithLogger(logger *zerolog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a Scheduler that calls run for each settled document.
func New(run Func, opts ...Option) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		run:      run,
		debounce: constants.DefaultDebounce,
		timeout:  constants.CycleTimeout,
		logger:   logging.Default(),
		ctx:      ctx,
		cancel:   cancel,
		entries:  make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Trigger schedules doc. It returns false once the scheduler is closed.
func (s *Scheduler) Trigger(doc string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.triggered.Add(1)

	e, ok := s.entries[doc]
	if !ok {
		e = &entry{}
		s.entries[doc] = e
	}
	if e.running {
		if e.dirty {
			s.coalesced.Add(1)
		}
		e.dirty = true
		return true
	}
	if e.timer != nil {
		e.timer.Stop()
		s.coalesced.Add(1)
	}
	e.gen++
	gen := e.gen
	e.timer = time.AfterFunc(s.debounce, func() { s.fire(doc, gen) })
	return true
}

// Cancel drops a pending trigger for doc. An in-flight run completes but
// is not repeated.
func (s *Scheduler) Cancel(doc string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[doc]
	if !ok {
		return
	}
	if e.running {
		e.dirty = false
		return
	}
	if e.timer != nil {
		e.timer.Stop()
	}
	delete(s.entries, doc)
}

func (s *Scheduler) fire(doc string, gen uint64) {
	s.mu.Lock()
	e, ok := s.entries[doc]
	if !ok || e.gen != gen || e.running || s.closed {
		s.mu.Unlock()
		return
	}
	e.timer = nil
	e.running = true
	s.wg.Add(1)
	s.mu.Unlock()

	s.execute(doc, e)
}

// execute runs doc until no trigger arrived during the last run.
func (s *Scheduler) execute(doc string, e *entry) {
	defer s.wg.Done()
	for {
		s.once(doc)

		s.mu.Lock()
		if e.dirty {
			e.dirty = false
			s.mu.Unlock()
			continue
		}
		e.running = false
		delete(s.entries, doc)
		s.mu.Unlock()
		return
	}
}

func (s *Scheduler) once(doc string) {
	ctx := s.ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	s.runs.Add(1)

	defer func() {
		if r := recover(); r != nil {
			s.failures.Add(1)
			s.logger.Error().
				Str("document", doc).
				Str("panic", fmt.Sprint(r)).
				Msg("Recovered from panic while processing document")
		}
	}()

	if err := s.run(ctx, doc); err != nil {
		s.failures.Add(1)
		s.logger.Warn().Err(err).Str("document", doc).Msg("Document processing failed")
	}
}

// Pending returns the number of documents waiting or running.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Stats returns the scheduler counters.
func (s *Scheduler) Stats() Stats {
	return Stats{
		Triggered: s.triggered.Load(),
		Coalesced: s.coalesced.Load(),
		Runs:      s.runs.Load(),
		Failures:  s.failures.Load(),
		Pending:   s.Pending(),
	}
}

// Close stops accepting triggers, runs every pending document without
// waiting for its debounce window and waits for all runs to finish. When
// ctx ends first, in-flight runs are canceled and ctx's error returned.
func (s *Scheduler) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for doc, e := range s.entries {
		if e.running || e.timer == nil {
			continue
		}
		e.timer.Stop()
		e.timer = nil
		e.gen++
		e.running = true
		s.wg.Add(1)
		go s.execute(doc, e)
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
		return nil
	case <-ctx.Done():
		s.cancel()
		<-done
		return ctx.Err()
	}
}
