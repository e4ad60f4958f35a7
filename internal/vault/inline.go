package vault

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/agentstation/propsync/pkg/fields"
)

var (
	fenceOpen = regexp.MustCompile("^\\s{0,3}(`{3,}|~{3,})")

	// lineField is a whole-line "key:: value", optionally inside a list
	// item or task.
	lineField = regexp.MustCompile(`^\s*(?:(?:[-*+]|\d+[.)])\s+)?(?:\[.\]\s+)?([^\s:\[\]()` + "`" + `][^:\[\]()` + "`" + `]*?)::(.*)$`)

	wikiLink = regexp.MustCompile(`^!?\[\[([^\]|#]*)(#[^\]|]*)?(?:\|([^\]]*))?\]\]$`)

	htmlFragment = regexp.MustCompile(`(?s)^<([a-zA-Z][a-zA-Z0-9-]*)(?:\s[^>]*)?>.*</([a-zA-Z][a-zA-Z0-9-]*)>$`)

	durationUnits = `years?|yrs?|months?|mos?|weeks?|wks?|w|days?|d|hours?|hrs?|h|minutes?|mins?|m|seconds?|secs?|s|milliseconds?|ms`
	durationPart  = regexp.MustCompile(`(?i)(\d+)\s*(` + durationUnits + `)\b`)
	durationFull  = regexp.MustCompile(`(?i)^(?:\d+\s*(?:` + durationUnits + `)\b[\s,]*(?:and\s+)?)+$`)

	emphasisMarkers = []string{"**", "__", "~~", "==", "*", "_"}
)

// Extract returns the inline fields of a document body in order of
// appearance. Fenced code blocks and the frontmatter are skipped; repeated
// keys are merged into a list.
func (v *Vault) Extract(_ context.Context, doc string) ([]fields.Raw, error) {
	content, _, err := v.read(doc)
	if err != nil {
		return nil, err
	}
	_, body, _ := Split(content)
	return ExtractFields(body), nil
}

// ExtractFields scans markdown text for "key:: value" lines and bracketed
// "[key:: value]" or "(key:: value)" fields.
func ExtractFields(body string) []fields.Raw {
	var (
		out      []fields.Raw
		index    = make(map[string]int)
		repeated = make(map[string]bool)
		fence    string
	)

	add := func(key, source string) {
		key = cleanKey(key)
		if key == "" {
			return
		}
		source = strings.TrimSpace(source)
		value := ParseValue(source)

		i, seen := index[key]
		if !seen {
			index[key] = len(out)
			out = append(out, fields.Raw{Key: key, Value: value, Source: source})
			return
		}

		prev := out[i]
		items := []fields.Value{prev.Value}
		if repeated[key] {
			items = prev.Value.Items()
		}
		repeated[key] = true
		out[i] = fields.Raw{
			Key:    key,
			Value:  fields.List(append(items, value)...),
			Source: prev.Source + "\n" + source,
		}
	}

	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSuffix(line, "\r")

		if fence != "" {
			if closesFence(line, fence) {
				fence = ""
			}
			continue
		}
		if m := fenceOpen.FindStringSubmatch(line); m != nil {
			fence = m[1]
			continue
		}

		if m := lineField.FindStringSubmatch(line); m != nil {
			add(m[1], m[2])
			continue
		}
		for _, f := range bracketed(line) {
			add(f[0], f[1])
		}
	}
	return out
}

func closesFence(line, fence string) bool {
	trimmed := strings.TrimSpace(line)
	run := strings.TrimLeft(trimmed, fence[:1])
	return run == "" && len(trimmed) >= len(fence)
}

// cleanKey drops markdown emphasis wrapped around a key.
func cleanKey(key string) string {
	key = strings.TrimSpace(key)
	for changed := true; changed; {
		changed = false
		for _, marker := range emphasisMarkers {
			if len(key) > 2*len(marker) && strings.HasPrefix(key, marker) && strings.HasSuffix(key, marker) {
				key = strings.TrimSpace(key[len(marker) : len(key)-len(marker)])
				changed = true
			}
		}
	}
	return key
}

// bracketed returns the [key, value] pairs of "[key:: value]" and
// "(key:: value)" fields on one line, outside inline code.
func bracketed(line string) [][2]string {
	var out [][2]string
	inCode := false
	for i := 0; i < len(line); i++ {
		c := line[i]
		if c == '`' {
			inCode = !inCode
			continue
		}
		if inCode || (c != '[' && c != '(') {
			continue
		}
		end := closing(line, i)
		if end < 0 {
			continue
		}
		key, value, ok := strings.Cut(line[i+1:end], "::")
		if ok && validKey(key) {
			out = append(out, [2]string{key, value})
			i = end
		}
	}
	return out
}

// closing returns the index of the bracket closing the one at start, or -1.
func closing(line string, start int) int {
	open := line[start]
	shut := byte(']')
	if open == '(' {
		shut = ')'
	}
	depth := 0
	inCode := false
	for j := start; j < len(line); j++ {
		switch line[j] {
		case '`':
			inCode = !inCode
		case open:
			if !inCode {
				depth++
			}
		case shut:
			if inCode {
				continue
			}
			depth--
			if depth == 0 {
				return j
			}
		}
	}
	return -1
}

func validKey(key string) bool {
	key = strings.TrimSpace(key)
	return key != "" && !strings.ContainsAny(key, "[]()`")
}

// ParseValue types the text of an inline field: booleans, wiki links and
// lists of them, numbers, durations and HTML fragments. Anything else is a
// string; an empty value is null.
func ParseValue(s string) fields.Value {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return fields.Null()
	case strings.EqualFold(s, "true"):
		return fields.Bool(true)
	case strings.EqualFold(s, "false"):
		return fields.Bool(false)
	}

	if link, ok := ParseLink(s); ok {
		return fields.LinkValue(link)
	}
	if links, ok := parseLinkList(s); ok {
		return fields.List(links...)
	}
	if n, ok := fields.ParseNumber(s); ok {
		return fields.Number(n)
	}
	if d, ok := ParseDuration(s); ok {
		return fields.DurationValue(d)
	}
	if m := htmlFragment.FindStringSubmatch(s); m != nil && strings.EqualFold(m[1], m[2]) {
		return fields.HTML(s)
	}
	return fields.String(s)
}

// ParseLink parses a single [[target#subpath|display]] link.
func ParseLink(s string) (fields.Link, bool) {
	m := wikiLink.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil || strings.TrimSpace(m[1]) == "" {
		return fields.Link{}, false
	}
	return fields.Link{
		Path:    strings.TrimSpace(m[1]),
		Subpath: strings.TrimPrefix(m[2], "#"),
		Display: strings.TrimSpace(m[3]),
	}, true
}

func parseLinkList(s string) ([]fields.Value, bool) {
	parts := strings.Split(s, ",")
	if len(parts) < 2 {
		return nil, false
	}
	links := make([]fields.Value, 0, len(parts))
	for _, part := range parts {
		link, ok := ParseLink(part)
		if !ok {
			return nil, false
		}
		links = append(links, fields.LinkValue(link))
	}
	return links, true
}

// ParseDuration parses durations such as "1 day 2 hours" or "3h, 20m".
func ParseDuration(s string) (fields.Duration, bool) {
	if !durationFull.MatchString(s) {
		return fields.Duration{}, false
	}

	var d fields.Duration
	for _, m := range durationPart.FindAllStringSubmatch(s, -1) {
		n, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return fields.Duration{}, false
		}
		switch unit := strings.ToLower(m[2]); {
		case strings.HasPrefix(unit, "y"):
			d.Years += n
		case strings.HasPrefix(unit, "mo"):
			d.Months += n
		case strings.HasPrefix(unit, "w"):
			d.Weeks += n
		case strings.HasPrefix(unit, "d"):
			d.Days += n
		case strings.HasPrefix(unit, "h"):
			d.Hours += n
		case unit == "ms" || strings.HasPrefix(unit, "milli"):
			d.Milliseconds += n
		case strings.HasPrefix(unit, "m"):
			d.Minutes += n
		case strings.HasPrefix(unit, "s"):
			d.Seconds += n
		}
	}
	return d, true
}
