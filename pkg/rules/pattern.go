package rules

import (
	"regexp"
	"strings"
	"sync"

	"github.com/agentstation/propsync/pkg/errors"
)

// delimited recognizes the /body/flags form. The body is greedy so slashes
// inside it need no escaping: "/a/b/i" has body "a/b".
var delimited = regexp.MustCompile(`^/(.+)/([gmiyuvsd]*)$`)

// compiled memoizes single-pattern compilation. Entries are immutable.
var compiled sync.Map // string -> compiledEntry

type compiledEntry struct {
	re  *regexp.Regexp
	err error
}

// ParsePattern splits a delimited pattern into its body and deduplicated
// flags. ok is false when the input is a literal.
func ParsePattern(pattern string) (body, flags string, ok bool) {
	m := delimited.FindStringSubmatch(pattern)
	if m == nil {
		return "", "", false
	}
	return m[1], dedupeFlags(m[2]), true
}

// IsRegex reports whether pattern uses the delimited regex form.
func IsRegex(pattern string) bool {
	return delimited.MatchString(pattern)
}

// CompileRegex compiles a delimited pattern. It returns (nil, nil) for
// literals and a PatternError when the body is not a valid expression.
//
// Flag mapping: i, m and s become inline flags; y anchors the expression at
// the start of the input; g, u, v and d have no effect on a boolean test or
// a replace-all and are accepted silently.
func CompileRegex(pattern string) (*regexp.Regexp, error) {
	if v, ok := compiled.Load(pattern); ok {
		e := v.(compiledEntry)
		return e.re, e.err
	}

	body, flags, ok := ParsePattern(pattern)
	if !ok {
		return nil, nil
	}

	re, err := regexp.Compile(translate(body, flags))
	entry := compiledEntry{re: re}
	if err != nil {
		entry = compiledEntry{err: errors.NewPatternError("", pattern, err)}
	}
	compiled.Store(pattern, entry)
	return entry.re, entry.err
}

func translate(body, flags string) string {
	var inline strings.Builder
	sticky := false
	for _, f := range flags {
		switch f {
		case 'i', 'm', 's':
			inline.WriteRune(f)
		case 'y':
			sticky = true
		}
	}

	expr := body
	if sticky {
		expr = `\A(?:` + body + `)`
	}
	if inline.Len() > 0 {
		expr = "(?" + inline.String() + ")" + expr
	}
	return expr
}

// dedupeFlags keeps the first occurrence of each flag.
func dedupeFlags(flags string) string {
	if len(flags) < 2 {
		return flags
	}
	var seen [128]bool
	var b strings.Builder
	for i := 0; i < len(flags); i++ {
		c := flags[i]
		if seen[c] {
			continue
		}
		seen[c] = true
		b.WriteByte(c)
	}
	return b.String()
}
