package coerce

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/agentstation/propsync/pkg/constants"
)

var (
	unorderedItem = regexp.MustCompile(`^[-*+]\s+(.*)$`)
	orderedItem   = regexp.MustCompile(`^\d+\.\s+(.*)$`)
	markdownLink  = regexp.MustCompile(`^\[([^\]]*)\]\(([^)]+)\)$`)
)

// ParseMarkdownList returns the items of a markdown list, one per line that
// starts with -, *, + or a number followed by a dot. Other lines are
// skipped, so text without any list line yields no items.
func ParseMarkdownList(text string) []string {
	var items []string
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if m := unorderedItem.FindStringSubmatch(trimmed); m != nil {
			items = append(items, m[1])
			continue
		}
		if m := orderedItem.FindStringSubmatch(trimmed); m != nil {
			items = append(items, m[1])
		}
	}
	return items
}

// RewriteMarkdownLink turns a [display](target) item into a wiki reference.
// Web URLs and absolute paths are left alone. Targets using scheme (the
// host's own URL scheme) are reduced to the document they point at.
func RewriteMarkdownLink(item, scheme string) string {
	m := markdownLink.FindStringSubmatch(strings.TrimSpace(item))
	if m == nil {
		return item
	}
	display, target := strings.TrimSpace(m[1]), strings.TrimSpace(m[2])
	if strings.HasPrefix(target, "http") || strings.HasPrefix(target, "/") {
		return item
	}

	if scheme != "" && strings.HasPrefix(target, scheme) {
		target = schemeTarget(strings.TrimPrefix(target, scheme))
	}
	if decoded, err := url.PathUnescape(target); err == nil {
		target = decoded
	}
	target = strings.TrimSuffix(target, constants.DefaultDocumentExtension)
	if target == "" {
		return item
	}

	if display == "" || display == target {
		return "[[" + target + "]]"
	}
	return "[[" + target + "|" + display + "]]"
}

// schemeTarget extracts the document from a host URL with its scheme
// removed, e.g. "open?vault=v&file=dir%2Fnote" or "dir/note.md".
func schemeTarget(rest string) string {
	path, query, found := strings.Cut(rest, "?")
	if !found {
		return path
	}
	values, err := url.ParseQuery(query)
	if err != nil {
		return rest
	}
	for _, key := range []string{"file", "path"} {
		if v := values.Get(key); v != "" {
			// ParseQuery already decoded the value; escape it back so the
			// caller's single unescape leaves it intact.
			return url.PathEscape(v)
		}
	}
	return path
}
