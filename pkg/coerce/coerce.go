// Package coerce converts raw extracted values into storable header values.
//
// Strings go through embedded-query substitution, cleanup and numeric
// conversion; list fields are parsed from markdown; links, durations and
// HTML fragments are rendered to text; functions, widgets and nulls are
// dropped. Every field is coerced independently: a failure on one field is
// logged and the field is left out, the rest of the batch carries on.
package coerce

import (
	"context"
	"fmt"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/microcosm-cc/bluemonday"

	"github.com/agentstation/propsync/pkg/cleanup"
	"github.com/agentstation/propsync/pkg/constants"
	"github.com/agentstation/propsync/pkg/errors"
	"github.com/agentstation/propsync/pkg/fields"
	"github.com/agentstation/propsync/pkg/logging"
	"github.com/agentstation/propsync/pkg/rules"
)

// Evaluator resolves one embedded query to text. siblings holds the fields
// already coerced for the document, for queries that reference them.
type Evaluator interface {
	Evaluate(ctx context.Context, doc string, q Query, siblings *fields.Map) (string, error)
}

// LinkRenderer renders a link in the host's cross-reference syntax.
type LinkRenderer interface {
	RenderLink(ctx context.Context, doc string, link fields.Link) (string, error)
}

// GenericLinks renders links as [[path#subpath|display]] without resolution.
type GenericLinks struct{}

// RenderLink implements LinkRenderer.
func (GenericLinks) RenderLink(_ context.Context, _ string, link fields.Link) (string, error) {
	return link.Render(), nil
}

// Config holds the per-generation coercion settings.
type Config struct {
	// Lists marks list fields by name in addition to ListSuffix.
	Lists      *rules.RuleSet
	ListSuffix string

	Cleaner  *cleanup.Cleaner
	Duration DurationFormat
	Queries  QueryConfig

	// ErrorSentinel marks evaluator output that must not be stored.
	ErrorSentinel string
	// LinkScheme is the host URL scheme rewritten in markdown list links.
	LinkScheme string
}

// DefaultConfig returns a configuration with stock suffix, sentinel and scheme.
func DefaultConfig() Config {
	return Config{
		ListSuffix:    constants.DefaultListSuffix,
		ErrorSentinel: constants.DefaultErrorSentinel,
		LinkScheme:    constants.DefaultLinkScheme,
		Queries:       DefaultQueryConfig(),
	}
}

// Coercer turns raw values into header values. It is safe for concurrent use.
type Coercer struct {
	cfg       Config
	evaluator Evaluator
	links     LinkRenderer
	markdown  *converter.Converter
	policy    *bluemonday.Policy
	queries   *queryMatcher
}

// Option configures a Coercer.
type Option func(*Coercer)

// WithEvaluator sets the embedded-query evaluator. Without one, query text
// is kept verbatim.
func WithEvaluator(e Evaluator) Option {
	return func(c *Coercer) { c.evaluator = e }
}

// WithLinkRenderer sets the link renderer.
func WithLinkRenderer(r LinkRenderer) Option {
	return func(c *Coercer) {
		if r != nil {
			c.links = r
		}
	}
}

// New creates a Coercer.
func New(cfg Config, opts ...Option) *Coercer {
	c := &Coercer{
		cfg:      cfg,
		links:    GenericLinks{},
		markdown: newMarkdownConverter(),
		policy:   bluemonday.UGCPolicy(),
		queries:  newQueryMatcher(cfg.Queries),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Config returns the configuration the coercer was built with.
func (c *Coercer) Config() Config {
	return c.cfg
}

// IsListField reports whether key names a list field.
func (c *Coercer) IsListField(key string) bool {
	if c.cfg.Lists.Matches(key) {
		return true
	}
	suffix := c.cfg.ListSuffix
	return suffix != "" && len(key) > len(suffix) &&
		strings.EqualFold(key[len(key)-len(suffix):], suffix)
}

// Coerce converts one raw value. The boolean is false when the field must be
// left out. Errors and panics are logged against the field and reported as
// absent.
func (c *Coercer) Coerce(ctx context.Context, doc, key string, raw fields.Value, siblings *fields.Map) (v fields.Value, ok bool) {
	logger := logging.FromContext(ctx)
	defer func() {
		if r := recover(); r != nil {
			logger.Error().
				Str("field", key).
				Str("kind", raw.Kind().String()).
				Interface("panic", r).
				Msg("Recovered while coercing field")
			v, ok = fields.Null(), false
		}
	}()

	in := input{doc: doc, key: key, siblings: siblings}
	v, ok, err := c.coerce(ctx, in, raw, 0)
	if err != nil {
		logger.Warn().
			Err(errors.NewCoercionError(key, raw.Kind().String(), err)).
			Str("field", key).
			Msg("Dropping field that could not be coerced")
		return fields.Null(), false
	}
	return v, ok
}

// CoerceAll coerces raws in order. Each coerced value is visible as a
// sibling to the fields after it. The first occurrence of a key wins.
func (c *Coercer) CoerceAll(ctx context.Context, doc string, raws []fields.Raw) *fields.Map {
	out := fields.NewMap()
	for _, raw := range raws {
		if out.Has(raw.Key) {
			continue
		}
		if v, ok := c.Coerce(ctx, doc, raw.Key, raw.Value, out); ok {
			out.Set(raw.Key, v)
		}
	}
	return out
}

type input struct {
	doc      string
	key      string
	siblings *fields.Map
}

func (c *Coercer) coerce(ctx context.Context, in input, raw fields.Value, depth int) (fields.Value, bool, error) {
	if depth > constants.MaxListDepth {
		return fields.Null(), false, fmt.Errorf("list nesting deeper than %d", constants.MaxListDepth)
	}
	logger := logging.FromContext(ctx)

	switch raw.Kind() {
	case fields.KindNull:
		logger.Debug().Str("field", in.key).Msg("Skipping null value")
		return fields.Null(), false, nil

	case fields.KindString:
		if raw.Str() == "" {
			return fields.Null(), false, nil
		}
		text, err := c.substitute(ctx, in, raw.Str())
		if err != nil {
			return fields.Null(), false, err
		}
		if depth == 0 && c.IsListField(in.key) {
			return c.coerceList(ctx, in, ParseMarkdownList(text), depth)
		}
		return c.coerceText(text)

	case fields.KindLink:
		rendered, err := c.links.RenderLink(ctx, in.doc, raw.Link())
		if err != nil {
			return fields.Null(), false, err
		}
		return fields.String(rendered), true, nil

	case fields.KindHTML:
		md, err := c.htmlToMarkdown(raw.Str())
		if err != nil {
			return fields.Null(), false, err
		}
		if md == "" {
			return fields.Null(), false, nil
		}
		return c.coerceText(md)

	case fields.KindFunction, fields.KindWidget:
		logger.Warn().
			Str("field", in.key).
			Str("kind", raw.Kind().String()).
			Msg("Skipping value that cannot be stored in a header")
		return fields.Null(), false, nil

	case fields.KindList:
		return c.coerceValues(ctx, in, raw.Items(), depth)

	case fields.KindDuration:
		return fields.String(c.cfg.Duration.Format(raw.Duration())), true, nil

	default:
		if depth == 0 && c.IsListField(in.key) {
			return fields.List(raw), true, nil
		}
		return raw, true, nil
	}
}

// coerceText cleans a string and converts it to a number when it reads as one.
func (c *Coercer) coerceText(text string) (fields.Value, bool, error) {
	cleaned, ok := c.cfg.Cleaner.String(text)
	if !ok || cleaned == "" {
		return fields.Null(), false, nil
	}
	if n, isNum := fields.ParseNumber(cleaned); isNum {
		return fields.Number(n), true, nil
	}
	return fields.String(cleaned), true, nil
}

func (c *Coercer) coerceList(ctx context.Context, in input, items []string, depth int) (fields.Value, bool, error) {
	values := make([]fields.Value, len(items))
	for i, item := range items {
		values[i] = fields.String(RewriteMarkdownLink(item, c.cfg.LinkScheme))
	}
	return c.coerceValues(ctx, in, values, depth)
}

// coerceValues coerces each element on its own. Elements that come out
// absent are dropped; the list itself is kept even when empty.
func (c *Coercer) coerceValues(ctx context.Context, in input, items []fields.Value, depth int) (fields.Value, bool, error) {
	out := make([]fields.Value, 0, len(items))
	for _, item := range items {
		v, ok, err := c.coerce(ctx, in, item, depth+1)
		if err != nil {
			logging.FromContext(ctx).Warn().
				Err(err).
				Str("field", in.key).
				Msg("Dropping list element that could not be coerced")
			continue
		}
		if ok {
			out = append(out, v)
		}
	}
	return fields.List(out...), true, nil
}
