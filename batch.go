package propsync

import (
	"context"
	"sync"

	"github.com/agentstation/propsync/pkg/errors"
	"github.com/agentstation/propsync/pkg/logging"
)

// ReconcileAll reconciles docs with bounded concurrency. Results keep the
// order of docs; a failed document leaves a nil entry.
func (c *client) ReconcileAll(ctx context.Context, docs []string) ([]*Result, error) {
	logger := logging.FromContext(c.context(ctx))

	results := make([]*Result, len(docs))
	sem := make(chan struct{}, c.options.concurrency)

	var wg sync.WaitGroup
	var errs []error
	var errMutex sync.Mutex

	for i, doc := range docs {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			errMutex.Lock()
			errs = append(errs, ctx.Err())
			errMutex.Unlock()
			return results, errors.Join(errs...)
		}

		wg.Add(1)
		go func(i int, doc string) {
			defer wg.Done()
			defer func() { <-sem }()

			result, err := c.Reconcile(ctx, doc)
			if err != nil {
				logger.Warn().Err(err).Str("document", doc).Msg("Reconciliation failed")
				errMutex.Lock()
				errs = append(errs, err)
				errMutex.Unlock()
				return
			}
			results[i] = result
		}(i, doc)
	}

	wg.Wait()
	return results, errors.Join(errs...)
}
