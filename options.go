package propsync

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/agentstation/propsync/pkg/coerce"
	"github.com/agentstation/propsync/pkg/errors"
	"github.com/agentstation/propsync/pkg/logging"
	"github.com/agentstation/propsync/pkg/settings"
)

// Option is a function that configures a Client
type Option func(*options) error

type options struct {
	settings    settings.Settings
	headers     HeaderStore
	extractor   Extractor
	evaluator   coerce.Evaluator
	links       coerce.LinkRenderer
	snapshots   SnapshotStore
	logger      *zerolog.Logger
	debounce    *time.Duration
	dryRun      bool
	concurrency int
}

func defaults() *options {
	return &options{
		settings:    settings.Defaults(),
		logger:      logging.Default(),
		concurrency: 4,
	}
}

func (o *options) apply(opts ...Option) (*options, error) {
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// WithSettings configures the reconciliation settings. They are validated
// when the client is created.
func WithSettings(s settings.Settings) Option {
	return func(o *options) error {
		o.settings = s
		return nil
	}
}

// WithHeaderStore configures where structured headers are read and written
func WithHeaderStore(h HeaderStore) Option {
	return func(o *options) error {
		if h == nil {
			return errors.NewValidationError("headers", nil, "header store cannot be nil")
		}
		o.headers = h
		return nil
	}
}

// WithExtractor configures where inline fields come from
func WithExtractor(e Extractor) Option {
	return func(o *options) error {
		if e == nil {
			return errors.NewValidationError("extractor", nil, "extractor cannot be nil")
		}
		o.extractor = e
		return nil
	}
}

// WithDocuments configures a store that both extracts inline fields and
// owns the headers. A store that also renders links becomes the link
// renderer unless one is set explicitly.
func WithDocuments(d Documents) Option {
	return func(o *options) error {
		if d == nil {
			return errors.NewValidationError("documents", nil, "document store cannot be nil")
		}
		o.headers = d
		o.extractor = d
		if r, ok := d.(coerce.LinkRenderer); ok && o.links == nil {
			o.links = r
		}
		return nil
	}
}

// WithEvaluator configures the embedded query evaluator
func WithEvaluator(e coerce.Evaluator) Option {
	return func(o *options) error {
		o.evaluator = e
		return nil
	}
}

// WithLinkRenderer configures how links are written into headers
func WithLinkRenderer(r coerce.LinkRenderer) Option {
	return func(o *options) error {
		o.links = r
		return nil
	}
}

// WithSnapshotStore configures where extraction snapshots are kept.
// The client closes it on Close.
func WithSnapshotStore(s SnapshotStore) Option {
	return func(o *options) error {
		if s == nil {
			return errors.NewValidationError("snapshots", nil, "snapshot store cannot be nil")
		}
		o.snapshots = s
		return nil
	}
}

// WithLogger configures the client logger
func WithLogger(logger *zerolog.Logger) Option {
	return func(o *options) error {
		if logger != nil {
			o.logger = logger
		}
		return nil
	}
}

// WithDebounce overrides the debounce window of the settings
func WithDebounce(d time.Duration) Option {
	return func(o *options) error {
		if d < 0 {
			return errors.NewValidationError("debounce", d, "cannot be negative")
		}
		o.debounce = &d
		return nil
	}
}

// WithDryRun makes Reconcile behave like Check
func WithDryRun(enabled bool) Option {
	return func(o *options) error {
		o.dryRun = enabled
		return nil
	}
}

// WithConcurrency bounds how many documents ReconcileAll processes at once
func WithConcurrency(n int) Option {
	return func(o *options) error {
		if n < 1 {
			return errors.NewValidationError("concurrency", n, "must be at least 1")
		}
		o.concurrency = n
		return nil
	}
}
