package propsync

import (
	"context"
	"time"

	"github.com/agentstation/propsync/pkg/coerce"
	"github.com/agentstation/propsync/pkg/errors"
	"github.com/agentstation/propsync/pkg/fields"
	"github.com/agentstation/propsync/pkg/logging"
	"github.com/agentstation/propsync/pkg/reconcile"
	"github.com/agentstation/propsync/pkg/settings"
)

// errSkipWrite aborts a header update that turned out to need no write.
var errSkipWrite = errors.New("skip write")

// Reconcile runs one cycle for doc and applies its decision. It behaves
// like Check when the client was created with WithDryRun.
func (c *client) Reconcile(ctx context.Context, doc string) (*Result, error) {
	if c.closed.Load() {
		return nil, errors.ErrClosed
	}
	return c.cycle(ctx, doc, !c.options.dryRun)
}

// Check runs one cycle for doc without writing anything.
func (c *client) Check(ctx context.Context, doc string) (*Result, error) {
	if c.closed.Load() {
		return nil, errors.ErrClosed
	}
	return c.cycle(ctx, doc, false)
}

// cycle runs without the closed check so Close can flush scheduled work.
func (c *client) cycle(ctx context.Context, doc string, write bool) (*Result, error) {
	if doc == "" {
		return nil, errors.NewValidationError("document", doc, "cannot be empty")
	}

	unlock := c.locks.lock(doc)
	defer unlock()

	// One generation for the whole cycle.
	gen := c.generation.Load()

	ctx = c.context(ctx)
	ctx, runID := logging.WithRun(ctx)
	ctx = logging.WithDocument(ctx, doc)
	logger := logging.FromContext(ctx)

	start := time.Now()
	result := &Result{
		Document: doc,
		RunID:    runID,
		DryRun:   !write,
	}
	defer func() { result.Duration = time.Since(start) }()

	if pattern := gen.ExcludedByPath(doc); pattern != "" {
		result.Excluded = true
		result.ExcludedBy = ExclusionPath
		result.ExclusionPattern = pattern
		logger.Debug().Str("pattern", pattern).Msg("Document excluded by path")
		return result, nil
	}

	header, err := c.options.headers.ReadHeader(ctx, doc)
	if err != nil {
		return nil, errors.WrapResource("read", "header", doc, err)
	}
	if gen.ExcludedByHeader(header) {
		c.excludeByHeader(result, gen)
		logger.Debug().Str("key", gen.Settings.Exclude.Key).Msg("Document excluded by header")
		return result, nil
	}

	raws, err := c.options.extractor.Extract(ctx, doc)
	if err != nil {
		return nil, errors.WrapResource("extract", "fields", doc, err)
	}
	current := gen.Coercer.CoerceAll(ctx, doc, selectRaws(gen, raws))
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	previous, err := c.options.snapshots.Get(ctx, doc)
	if err != nil {
		return nil, errors.WrapResource("get", "snapshot", doc, err)
	}

	decide := func(existing *fields.Map) *reconcile.Decision {
		return gen.Reconciler.Decide(reconcile.Input{
			Current:  current,
			Previous: previous,
			Existing: existing,
		})
	}

	if !write {
		result.Decision = decide(header)
		result.Snapshot = result.Decision.Snapshot
		logger.Debug().Msg(result.Decision.String())
		return result, nil
	}

	// The decision is recomputed against the header the store hands to
	// the transform so a concurrent edit between read and write is honored.
	excluded := false
	err = c.options.headers.UpdateHeader(ctx, doc, func(h *fields.Map) error {
		if gen.ExcludedByHeader(h) {
			excluded = true
			return errSkipWrite
		}
		result.Decision = decide(h)
		if !result.Decision.NeedsWrite() {
			return errSkipWrite
		}
		result.Decision.Apply(h)
		return nil
	})
	switch {
	case err == nil:
		result.Written = true
	case errors.Is(err, errSkipWrite):
	default:
		return nil, errors.WrapResource("update", "header", doc, err)
	}

	if excluded {
		c.excludeByHeader(result, gen)
		return result, nil
	}

	// An empty cycle keeps the previous snapshot; only Forget clears it.
	if snap := result.Decision.Snapshot; snap != nil {
		if err := c.options.snapshots.Put(ctx, doc, *snap); err != nil {
			return result, errors.WrapResource("put", "snapshot", doc, err)
		}
		result.Snapshot = snap
	}

	if result.Written {
		c.hooks.triggerDecision(doc, result.Decision)
		logger.Debug().
			Int("added", result.Decision.Summary.Added).
			Int("updated", result.Decision.Summary.Updated).
			Int("removed", result.Decision.Summary.Removed).
			Msg("Header updated")
	}
	return result, nil
}

func (c *client) excludeByHeader(result *Result, gen *settings.Compiled) {
	result.Excluded = true
	result.ExcludedBy = ExclusionHeader
	result.ExclusionPattern = gen.Settings.Exclude.Key
}

// selectRaws applies only mode.
func selectRaws(gen *settings.Compiled, raws []fields.Raw) []fields.Raw {
	if !gen.Settings.OnlyMode {
		return raws
	}
	selected := make([]fields.Raw, 0, len(raws))
	for _, raw := range raws {
		if gen.Selected(raw) {
			selected = append(selected, raw)
		}
	}
	return selected
}

// coerceOptions wires the configured evaluator and link renderer into
// every settings generation.
func (c *client) coerceOptions() []coerce.Option {
	var opts []coerce.Option
	if c.options.evaluator != nil {
		opts = append(opts, coerce.WithEvaluator(c.options.evaluator))
	}
	if c.options.links != nil {
		opts = append(opts, coerce.WithLinkRenderer(c.options.links))
	}
	return opts
}
