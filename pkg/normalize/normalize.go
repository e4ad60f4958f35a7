// Package normalize canonicalizes strings for key and value comparison.
//
// A Profile selects two independent transforms: full Unicode case folding and
// accent stripping (canonical decomposition followed by removal of nonspacing
// marks). A Normalizer binds one profile to a memo cache and is safe for
// concurrent use.
package normalize

import (
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/agentstation/propsync/pkg/constants"
)

// Profile holds the normalization switches of a rule group.
type Profile struct {
	LowerCase     bool `json:"lower_case" yaml:"lower_case" mapstructure:"lower_case"`
	IgnoreAccents bool `json:"ignore_accents" yaml:"ignore_accents" mapstructure:"ignore_accents"`
}

// Default is the profile used when a rule group does not say otherwise.
var Default = Profile{LowerCase: true, IgnoreAccents: true}

// IsIdentity reports whether the profile leaves every string unchanged.
func (p Profile) IsIdentity() bool {
	return !p.LowerCase && !p.IgnoreAccents
}

// Apply normalizes s under p without caching.
func (p Profile) Apply(s string) string {
	if p.IsIdentity() || s == "" {
		return s
	}
	if p.LowerCase {
		// Casers carry state, a fresh one per call keeps Apply goroutine safe.
		s = cases.Fold().String(s)
	}
	if p.IgnoreAccents {
		s = stripAccents(s)
	}
	return s
}

func stripAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Normalizer applies a profile with memoization.
type Normalizer struct {
	profile Profile
	limit   int

	mu    sync.RWMutex
	cache map[string]string
}

// New returns a Normalizer for the profile.
func New(profile Profile) *Normalizer {
	return &Normalizer{
		profile: profile,
		limit:   constants.MaxNormalizeCacheEntries,
		cache:   make(map[string]string),
	}
}

// Profile returns the profile the normalizer was built with.
func (n *Normalizer) Profile() Profile {
	return n.profile
}

// Normalize returns the canonical form of s.
func (n *Normalizer) Normalize(s string) string {
	if n.profile.IsIdentity() {
		return s
	}

	n.mu.RLock()
	out, ok := n.cache[s]
	n.mu.RUnlock()
	if ok {
		return out
	}

	out = n.profile.Apply(s)

	n.mu.Lock()
	if len(n.cache) >= n.limit {
		// Inputs are field keys and short values; starting over is cheaper than LRU bookkeeping.
		n.cache = make(map[string]string, n.limit/4)
	}
	n.cache[s] = out
	n.mu.Unlock()

	return out
}

// Equal reports whether a and b share a canonical form.
func (n *Normalizer) Equal(a, b string) bool {
	if a == b {
		return true
	}
	return n.Normalize(a) == n.Normalize(b)
}

// CacheLen returns the number of memoized entries.
func (n *Normalizer) CacheLen() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.cache)
}

// Fold normalizes s one rune at a time and records, for every byte of the
// result, the byte offset in s of the rune that produced it. The returned
// offsets slice has len(folded)+1 entries; the last one is len(s).
//
// Searching the folded string and mapping match boundaries back through the
// offsets gives splice positions in the original text even when folding
// changed byte lengths (accented letters, ß, decomposed marks).
func (n *Normalizer) Fold(s string) (string, []int) {
	var b strings.Builder
	b.Grow(len(s))
	offsets := make([]int, 0, len(s)+1)

	for i, r := range s {
		var piece string
		if r == utf8.RuneError {
			piece = string(r)
		} else {
			piece = n.Normalize(string(r))
		}
		for j := 0; j < len(piece); j++ {
			offsets = append(offsets, i)
		}
		b.WriteString(piece)
	}
	offsets = append(offsets, len(s))
	return b.String(), offsets
}

// FoldNeedle folds a search term the same way Fold folds the text it is searched in.
func (n *Normalizer) FoldNeedle(s string) string {
	folded, _ := n.Fold(s)
	return folded
}
