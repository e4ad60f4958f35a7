package propsync

import (
	"context"
	"time"

	"github.com/agentstation/propsync/pkg/constants"
	"github.com/agentstation/propsync/pkg/errors"
	"github.com/agentstation/propsync/pkg/logging"
)

// ListFunc lists every document a resync should visit.
type ListFunc func(ctx context.Context) ([]string, error)

// AutoResyncer provides controls for periodic full resyncs. Each tick
// triggers every listed document through the scheduler, catching edits
// that happened while no watcher was running.
type AutoResyncer interface {
	// AutoResyncOn starts resyncing every settings interval
	AutoResyncOn(list ListFunc) error

	// AutoResyncOff stops resyncing
	AutoResyncOff() error
}

// AutoResyncOn starts the resync loop.
func (c *client) AutoResyncOn(list ListFunc) error {
	interval := c.Settings().Interval
	if interval <= 0 {
		return &errors.ValidationError{
			Field:   "interval",
			Value:   interval,
			Message: "resync interval must be positive",
		}
	}
	if list == nil {
		return errors.NewValidationError("list", nil, "list function cannot be nil")
	}
	if c.closed.Load() {
		return errors.ErrClosed
	}

	// Stop any existing loop to prevent resource leaks
	if err := c.AutoResyncOff(); err != nil {
		return err
	}

	c.resyncMu.Lock()
	defer c.resyncMu.Unlock()

	c.stopCh = make(chan struct{})
	c.resyncTicker = time.NewTicker(interval)

	ctx, cancel := context.WithCancel(context.Background())
	c.resyncCancel = cancel

	go func(parentCtx context.Context, ticker *time.Ticker, stopCh chan struct{}) {
		for {
			select {
			case <-ticker.C:
				listCtx, listCancel := context.WithTimeout(parentCtx, constants.CycleTimeout)
				n, err := c.resync(listCtx, list)
				listCancel()

				if err != nil {
					if errors.IsCanceled(err) || errors.Is(err, errors.ErrClosed) {
						return
					}
					c.options.logger.Error().Err(err).Msg("Resync failed")
					continue
				}
				c.options.logger.Debug().Int("documents", n).Msg("Resync triggered")
			case <-parentCtx.Done():
				return
			case <-stopCh:
				return
			}
		}
	}(ctx, c.resyncTicker, c.stopCh)

	return nil
}

// AutoResyncOff stops the resync loop.
func (c *client) AutoResyncOff() error {
	c.resyncMu.Lock()
	defer c.resyncMu.Unlock()

	if c.resyncTicker != nil {
		c.resyncTicker.Stop()
		c.resyncTicker = nil
	}
	if c.resyncCancel != nil {
		c.resyncCancel()
		c.resyncCancel = nil
	}
	if c.stopCh != nil {
		close(c.stopCh)
		c.stopCh = nil
	}
	return nil
}

// resync triggers every listed document.
func (c *client) resync(ctx context.Context, list ListFunc) (int, error) {
	docs, err := list(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, doc := range docs {
		if !c.Trigger(doc) {
			return n, errors.ErrClosed
		}
		n++
	}
	logging.FromContext(ctx).Trace().Int("documents", n).Msg("Documents queued for resync")
	return n, nil
}
