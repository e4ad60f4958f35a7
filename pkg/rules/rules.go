// Package rules compiles user-configured pattern lists into immutable rule
// sets and matches field keys against them.
//
// A pattern is either a literal (compared after normalization) or a regular
// expression written as /body/flags. Rule sets are built once per settings
// generation and never mutated; a settings change builds a new set.
package rules

import (
	"regexp"
	"sort"

	"github.com/rs/zerolog"

	"github.com/agentstation/propsync/pkg/errors"
	"github.com/agentstation/propsync/pkg/logging"
	"github.com/agentstation/propsync/pkg/normalize"
)

// RuleSet is the compiled form of a pattern list.
type RuleSet struct {
	keys       map[string]struct{}
	patterns   []*regexp.Regexp
	sources    []string
	normalizer *normalize.Normalizer
}

// Option configures compilation.
type Option func(*options)

type options struct {
	group  string
	logger *zerolog.Logger
}

// WithGroup names the rule group in diagnostics.
func WithGroup(name string) Option {
	return func(o *options) { o.group = name }
}

// WithLogger sets the logger used for diagnostics.
func WithLogger(logger *zerolog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// Compile builds a RuleSet. Patterns whose regex body does not compile are
// reported and left out of both collections; they never match.
func Compile(patterns []string, n *normalize.Normalizer, opts ...Option) *RuleSet {
	o := &options{logger: logging.Default()}
	for _, opt := range opts {
		opt(o)
	}

	rs, errs := compile(patterns, n)
	for _, err := range errs {
		o.logger.Warn().
			Err(err).
			Str("group", o.group).
			Msg("Ignoring invalid pattern")
	}
	return rs
}

// Validate compiles patterns and returns every failure, for rejecting
// configuration at edit time.
func Validate(group string, patterns []string) error {
	_, errs := compile(patterns, normalize.New(normalize.Profile{}))
	joined := make([]error, 0, len(errs))
	for _, err := range errs {
		var pe *errors.PatternError
		if errors.As(err, &pe) {
			joined = append(joined, errors.NewPatternError(group, pe.Pattern, pe.Err))
			continue
		}
		joined = append(joined, err)
	}
	return errors.Join(joined...)
}

func compile(patterns []string, n *normalize.Normalizer) (*RuleSet, []error) {
	if n == nil {
		n = normalize.New(normalize.Default)
	}
	rs := &RuleSet{
		keys:       make(map[string]struct{}),
		normalizer: n,
	}

	var errs []error
	for _, p := range patterns {
		re, err := CompileRegex(p)
		switch {
		case err != nil:
			errs = append(errs, err)
		case re != nil:
			rs.patterns = append(rs.patterns, re)
			rs.sources = append(rs.sources, p)
		default:
			rs.keys[n.Normalize(p)] = struct{}{}
		}
	}
	return rs, errs
}

// Empty reports whether no rule is configured.
func (r *RuleSet) Empty() bool {
	return r == nil || (len(r.keys) == 0 && len(r.patterns) == 0)
}

// Matches reports whether candidate is covered by the rule set. The
// candidate is normalized with the set's profile, then looked up among the
// literal keys and finally tested against each expression in order.
func (r *RuleSet) Matches(candidate string) bool {
	if r.Empty() {
		return false
	}

	normalized := r.normalizer.Normalize(candidate)
	if _, ok := r.keys[normalized]; ok {
		return true
	}
	for _, re := range r.patterns {
		if re.MatchString(normalized) {
			return true
		}
	}
	return false
}

// Normalizer returns the normalizer bound to the set.
func (r *RuleSet) Normalizer() *normalize.Normalizer {
	return r.normalizer
}

// Keys returns the normalized literal keys in sorted order.
func (r *RuleSet) Keys() []string {
	if r == nil {
		return nil
	}
	keys := make([]string, 0, len(r.keys))
	for k := range r.keys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Patterns returns the source text of the compiled expressions in insertion order.
func (r *RuleSet) Patterns() []string {
	if r == nil {
		return nil
	}
	return append([]string(nil), r.sources...)
}

// KeysMatch reports whether a header key and an inline key name the same
// field: identical, equal after normalization, or the header key is a
// delimited expression matching the inline key.
func KeysMatch(headerKey, inlineKey string, n *normalize.Normalizer) bool {
	if headerKey == inlineKey {
		return true
	}
	if n != nil && n.Normalize(headerKey) == n.Normalize(inlineKey) {
		return true
	}
	re, err := CompileRegex(headerKey)
	if err != nil || re == nil {
		return false
	}
	return re.MatchString(inlineKey)
}
