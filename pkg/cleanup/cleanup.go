// Package cleanup strips configured fragments out of field values.
//
// Each pattern is either a /regex/flags expression, applied to the raw text,
// or a literal removed with the case and accent sensitivity of the profile.
// An empty pattern list leaves values untouched; a value that ends up empty
// is reported as absent so the caller can drop the field.
package cleanup

import (
	"regexp"
	"strings"

	"github.com/agentstation/propsync/pkg/fields"
	"github.com/agentstation/propsync/pkg/normalize"
	"github.com/agentstation/propsync/pkg/rules"
)

// Cleaner applies one cleanup pattern list. It is immutable after New and
// safe for concurrent use.
type Cleaner struct {
	steps      []step
	normalizer *normalize.Normalizer
}

type step struct {
	re      *regexp.Regexp
	literal string
	needle  string
}

// New prepares patterns under profile. Expressions that fail to compile are
// treated as literal text.
func New(patterns []string, profile normalize.Profile) *Cleaner {
	c := &Cleaner{}
	if profile.IgnoreAccents {
		c.normalizer = normalize.New(profile)
	}

	for _, p := range patterns {
		if p == "" {
			continue
		}
		if re, err := rules.CompileRegex(p); err == nil && re != nil {
			c.steps = append(c.steps, step{re: re})
			continue
		}

		switch {
		case c.normalizer != nil:
			c.steps = append(c.steps, step{literal: p, needle: c.normalizer.FoldNeedle(p)})
		case profile.LowerCase:
			c.steps = append(c.steps, step{re: regexp.MustCompile(`(?i)` + regexp.QuoteMeta(p))})
		default:
			c.steps = append(c.steps, step{literal: p})
		}
	}
	return c
}

// Clean is shorthand for New(patterns, profile).String(value).
func Clean(value string, patterns []string, profile normalize.Profile) (string, bool) {
	if len(patterns) == 0 {
		return value, true
	}
	return New(patterns, profile).String(value)
}

// Empty reports whether the cleaner has nothing to remove.
func (c *Cleaner) Empty() bool {
	return c == nil || len(c.steps) == 0
}

// String removes every configured fragment from value, trims it and collapses
// inner whitespace. The boolean is false when nothing is left.
func (c *Cleaner) String(value string) (string, bool) {
	if c.Empty() {
		return value, true
	}

	out := value
	for _, s := range c.steps {
		switch {
		case s.re != nil:
			out = s.re.ReplaceAllString(out, "")
		case s.needle != "":
			out = c.removeFolded(out, s.needle)
		case s.literal != "":
			out = strings.ReplaceAll(out, s.literal, "")
		}
	}

	out = strings.Join(strings.Fields(out), " ")
	return out, out != ""
}

// removeFolded deletes occurrences of needle found in the folded copy of s,
// splicing the original text at the mapped byte offsets.
func (c *Cleaner) removeFolded(s, needle string) string {
	folded, offsets := c.normalizer.Fold(s)

	var b strings.Builder
	last, pos := 0, 0
	for {
		i := strings.Index(folded[pos:], needle)
		if i < 0 {
			break
		}
		start := pos + i
		end := start + len(needle)

		from, to := offsets[start], offsets[end]
		if from >= last {
			b.WriteString(s[last:from])
			last = to
		}
		pos = end
	}
	if last == 0 {
		return s
	}
	b.WriteString(s[last:])
	return b.String()
}

// Value cleans string values and the strings inside lists. Strings that are
// emptied become null; emptied list elements are dropped. Other kinds pass
// through.
func (c *Cleaner) Value(v fields.Value) fields.Value {
	if c.Empty() {
		return v
	}

	switch v.Kind() {
	case fields.KindString:
		s, ok := c.String(v.Str())
		if !ok {
			return fields.Null()
		}
		return fields.String(s)
	case fields.KindList:
		items := make([]fields.Value, 0, len(v.Items()))
		for _, item := range v.Items() {
			cleaned := c.Value(item)
			if cleaned.IsNull() && !item.IsNull() {
				continue
			}
			items = append(items, cleaned)
		}
		return fields.List(items...)
	default:
		return v
	}
}
