package reconcile

import (
	"strings"

	"github.com/agentstation/propsync/pkg/fields"
	"github.com/agentstation/propsync/pkg/normalize"
)

var bracketStripper = strings.NewReplacer("[", "", "]", "")

// foldCandidates returns the spellings under which key collides with other
// keys: its normalized form, with spaces turned into hyphens, and with
// brackets removed.
func foldCandidates(key string, n *normalize.Normalizer) [3]string {
	return [3]string{
		n.Normalize(key),
		n.Normalize(strings.ReplaceAll(key, " ", "-")),
		n.Normalize(bracketStripper.Replace(key)),
	}
}

// FoldDuplicates keeps the first of several keys that denote the same field
// and returns the keys it dropped. "Due Date", "due-date" and "[due date]"
// all fold together. m is not modified.
func FoldDuplicates(m *fields.Map, n *normalize.Normalizer) (*fields.Map, []string) {
	out := fields.NewMap()
	if m.Len() == 0 {
		return out, nil
	}

	var dropped []string
	seen := make(map[string]struct{}, m.Len()*3)
	m.Range(func(key string, v fields.Value) bool {
		candidates := foldCandidates(key, n)
		for _, c := range candidates {
			if _, ok := seen[c]; ok {
				dropped = append(dropped, key)
				return true
			}
		}
		for _, c := range candidates {
			seen[c] = struct{}{}
		}
		out.Set(key, v)
		return true
	})
	return out, dropped
}
