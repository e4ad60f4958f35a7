// Package matcher matches document paths against exclusion patterns.
// A pattern is a plain substring, a glob (*, ? or [) or a /regex/flags
// expression in the same notation used by the rule groups.
package matcher

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/agentstation/propsync/pkg/rules"
)

// PatternType represents the type of pattern matching to use.
type PatternType int

const (
	// Substring matches when the pattern occurs anywhere in the path.
	Substring PatternType = iota
	// Glob uses slash-separated shell patterns (*, ?, []).
	Glob
	// Regex uses a /body/flags expression.
	Regex
	// Auto detects the pattern type from its notation.
	Auto
)

// Matcher is the main interface for pattern matching operations.
type Matcher interface {
	// Match checks if the input matches the pattern
	Match(input string) bool
	// MatchAll checks multiple inputs and returns matches.
	MatchAll(inputs ...string) []string
	// MatchFirst returns the first matching input or empty string.
	MatchFirst(inputs ...string) string
	// MatchCount returns the number of matching inputs.
	MatchCount(inputs ...string) int
	// Pattern returns the original pattern string.
	Pattern() string
	// Type returns the pattern type being used.
	Type() PatternType
}

// matcher is immutable once compiled, so it is safe for concurrent use.
type matcher struct {
	pattern         string
	patternType     PatternType
	compiled        *regexp.Regexp
	needle          string
	caseInsensitive bool
}

// Options configures the matcher behavior.
type Options struct {
	// CaseInsensitive folds case for substring and glob patterns.
	// Expressions carry their own i flag.
	CaseInsensitive bool
}

// DefaultOptions returns the default options.
func DefaultOptions() *Options {
	return &Options{}
}

// New creates a new Matcher with the specified pattern and type.
func New(patternType PatternType, pattern string, opts ...*Options) (Matcher, error) {
	options := DefaultOptions()
	if len(opts) > 0 && opts[0] != nil {
		options = opts[0]
	}

	if pattern == "" {
		return nil, fmt.Errorf("failed to compile pattern: empty pattern")
	}

	m := &matcher{
		pattern:     pattern,
		patternType: patternType,
	}
	if patternType == Auto {
		m.patternType = DetectPatternType(pattern)
	}

	if err := m.compile(options); err != nil {
		return nil, fmt.Errorf("failed to compile pattern: %w", err)
	}
	return m, nil
}

// MustNew creates a new Matcher and panics if there's an error.
func MustNew(patternType PatternType, pattern string, opts ...*Options) Matcher {
	m, err := New(patternType, pattern, opts...)
	if err != nil {
		panic(err)
	}
	return m
}

func (m *matcher) compile(opts *Options) error {
	m.caseInsensitive = opts.CaseInsensitive

	switch m.patternType {
	case Substring:
		m.needle = m.fold(m.pattern)
	case Glob:
		m.needle = m.fold(m.pattern)
		if _, err := path.Match(m.needle, ""); err != nil {
			return fmt.Errorf("invalid glob pattern: %w", err)
		}
	case Regex:
		re, err := rules.CompileRegex(m.pattern)
		if err != nil {
			return err
		}
		if re == nil {
			return fmt.Errorf("invalid regex pattern: %q is not written as /body/flags", m.pattern)
		}
		m.compiled = re
	default:
		return fmt.Errorf("unsupported pattern type: %v", m.patternType)
	}
	return nil
}

func (m *matcher) fold(s string) string {
	if m.caseInsensitive {
		return strings.ToLower(s)
	}
	return s
}

// Match checks if the input matches the pattern. A glob without a slash
// is also tried against the last path element.
func (m *matcher) Match(input string) bool {
	switch m.patternType {
	case Substring:
		return strings.Contains(m.fold(input), m.needle)
	case Glob:
		candidate := m.fold(input)
		if ok, _ := path.Match(m.needle, candidate); ok {
			return true
		}
		if !strings.Contains(m.needle, "/") {
			ok, _ := path.Match(m.needle, path.Base(candidate))
			return ok
		}
		return false
	case Regex:
		return m.compiled.MatchString(input)
	default:
		return false
	}
}

// MatchAll checks multiple inputs and returns matches.
func (m *matcher) MatchAll(inputs ...string) []string {
	results := make([]string, 0)
	for _, input := range inputs {
		if m.Match(input) {
			results = append(results, input)
		}
	}
	return results
}

// MatchFirst returns the first matching input or empty string.
func (m *matcher) MatchFirst(inputs ...string) string {
	for _, input := range inputs {
		if m.Match(input) {
			return input
		}
	}
	return ""
}

// MatchCount returns the number of matching inputs.
func (m *matcher) MatchCount(inputs ...string) int {
	count := 0
	for _, input := range inputs {
		if m.Match(input) {
			count++
		}
	}
	return count
}

// Pattern returns the original pattern string.
func (m *matcher) Pattern() string {
	return m.pattern
}

// Type returns the pattern type being used.
func (m *matcher) Type() PatternType {
	return m.patternType
}

// DetectPatternType picks Regex for /body/flags, Glob for patterns with
// glob metacharacters and Substring for everything else.
func DetectPatternType(pattern string) PatternType {
	switch {
	case rules.IsRegex(pattern):
		return Regex
	case IsGlobPattern(pattern):
		return Glob
	default:
		return Substring
	}
}

// String returns a string representation of the PatternType.
func (pt PatternType) String() string {
	switch pt {
	case Substring:
		return "substring"
	case Glob:
		return "glob"
	case Regex:
		return "regex"
	case Auto:
		return "auto"
	default:
		return "unknown"
	}
}

// MultiMatcher matches against several patterns at once. The zero value and
// a nil pointer match nothing.
type MultiMatcher struct {
	matchers []Matcher
}

// NewMultiMatcher creates a matcher with multiple patterns. Blank patterns
// are skipped.
func NewMultiMatcher(patterns []string, patternType PatternType, opts ...*Options) (*MultiMatcher, error) {
	mm := &MultiMatcher{
		matchers: make([]Matcher, 0, len(patterns)),
	}

	for _, pattern := range patterns {
		if strings.TrimSpace(pattern) == "" {
			continue
		}
		m, err := New(patternType, pattern, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create matcher for pattern %q: %w", pattern, err)
		}
		mm.matchers = append(mm.matchers, m)
	}

	return mm, nil
}

// Match returns true if any pattern matches.
func (mm *MultiMatcher) Match(input string) bool {
	return mm.MatchingPattern(input) != ""
}

// MatchingPattern returns the first pattern that matches input, or "".
func (mm *MultiMatcher) MatchingPattern(input string) string {
	if mm == nil {
		return ""
	}
	for _, m := range mm.matchers {
		if m.Match(input) {
			return m.Pattern()
		}
	}
	return ""
}

// MatchAll returns all inputs that match any pattern.
func (mm *MultiMatcher) MatchAll(inputs ...string) []string {
	results := make([]string, 0)
	seen := make(map[string]bool)

	for _, input := range inputs {
		if !seen[input] && mm.Match(input) {
			results = append(results, input)
			seen[input] = true
		}
	}

	return results
}

// Len returns the number of compiled patterns.
func (mm *MultiMatcher) Len() int {
	if mm == nil {
		return 0
	}
	return len(mm.matchers)
}

// IsGlobPattern checks if a string contains glob metacharacters.
func IsGlobPattern(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[")
}
