package settings

import (
	"github.com/rs/zerolog"

	"github.com/agentstation/propsync/internal/matcher"
	"github.com/agentstation/propsync/pkg/cleanup"
	"github.com/agentstation/propsync/pkg/coerce"
	"github.com/agentstation/propsync/pkg/errors"
	"github.com/agentstation/propsync/pkg/fields"
	"github.com/agentstation/propsync/pkg/logging"
	"github.com/agentstation/propsync/pkg/normalize"
	"github.com/agentstation/propsync/pkg/reconcile"
	"github.com/agentstation/propsync/pkg/rules"
)

// Compiled is one immutable settings generation. Every cycle reads a single
// generation from start to finish.
type Compiled struct {
	Settings Settings

	Ignore *rules.RuleSet
	Lists  *rules.RuleSet
	Force  *rules.RuleSet

	Cleaner    *cleanup.Cleaner
	Coercer    *coerce.Coercer
	Reconciler reconcile.Reconciler

	excludedPaths *matcher.MultiMatcher
}

// Compile builds a generation from s. Malformed rule patterns are logged
// and skipped; call Validate first to reject them instead.
func Compile(s Settings, logger *zerolog.Logger, opts ...coerce.Option) (*Compiled, error) {
	if logger == nil {
		logger = logging.Default()
	}

	c := &Compiled{
		Settings: s,
		Ignore:   compileGroup("ignore", s.Ignore, logger),
		Lists:    compileGroup("lists", s.Lists, logger),
		Force:    compileGroup("force", s.Force, logger),
		Cleaner:  cleanup.New(s.Cleanup.Patterns, s.Cleanup.Profile()),
	}

	excluded, err := matcher.NewMultiMatcher(s.Exclude.Paths, matcher.Auto)
	if err != nil {
		return nil, errors.NewConfigError("exclude", "invalid path pattern", err)
	}
	c.excludedPaths = excluded

	cfg := coerce.DefaultConfig()
	cfg.Lists = c.Lists
	cfg.Cleaner = c.Cleaner
	cfg.Duration = s.Duration
	cfg.Queries = s.Queries
	if s.ListSuffix != "" {
		cfg.ListSuffix = s.ListSuffix
	}
	if s.ErrorSentinel != "" {
		cfg.ErrorSentinel = s.ErrorSentinel
	}
	if s.LinkScheme != "" {
		cfg.LinkScheme = s.LinkScheme
	}
	c.Coercer = coerce.New(cfg, opts...)

	// Key and value comparisons share the ignore group's profile.
	profile := s.Ignore.Profile()
	ropts := []reconcile.Option{
		reconcile.WithIgnore(c.Ignore),
		reconcile.WithKeyNormalizer(normalize.New(profile)),
		reconcile.WithValueNormalizer(normalize.New(profile)),
	}
	if s.Prefix != "" {
		ropts = append(ropts, reconcile.WithPrefix(s.Prefix))
	}
	if s.Unflatten.Enabled {
		ropts = append(ropts, reconcile.WithUnflatten(s.Unflatten.Separator))
	}
	r, err := reconcile.New(ropts...)
	if err != nil {
		return nil, errors.NewConfigError("reconcile", "invalid reconciliation settings", err)
	}
	c.Reconciler = r

	return c, nil
}

func compileGroup(name string, g RuleGroup, logger *zerolog.Logger) *rules.RuleSet {
	return rules.Compile(g.Patterns, normalize.New(g.Profile()), rules.WithGroup(name), rules.WithLogger(logger))
}

// ExcludedByPath returns the exclusion pattern matching the document path,
// or "" when the path is not excluded.
func (c *Compiled) ExcludedByPath(doc string) string {
	return c.excludedPaths.MatchingPattern(doc)
}

// ExcludedByHeader reports whether the header sets the exclusion key to
// true or "true".
func (c *Compiled) ExcludedByHeader(header *fields.Map) bool {
	key := c.Settings.Exclude.Key
	if key == "" {
		return false
	}
	v, ok := header.Get(key)
	if !ok {
		return false
	}
	switch v.Kind() {
	case fields.KindBool:
		return v.Truth()
	case fields.KindString:
		return v.Str() == "true"
	default:
		return false
	}
}

// Forced reports whether key is synchronized regardless of only mode.
func (c *Compiled) Forced(key string) bool {
	return c.Force.Matches(key)
}

// Selected reports whether a raw field takes part in the cycle. Outside
// only mode every field does; in only mode a field needs an inline query
// in its source text or a key matching the force group.
func (c *Compiled) Selected(raw fields.Raw) bool {
	if !c.Settings.OnlyMode {
		return true
	}
	if c.Forced(raw.Key) {
		return true
	}
	return c.Coercer.HasQuery(raw.Source)
}
