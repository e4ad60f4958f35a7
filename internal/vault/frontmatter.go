package vault

import (
	"context"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/agentstation/propsync/pkg/errors"
	"github.com/agentstation/propsync/pkg/fields"
	"github.com/agentstation/propsync/pkg/logging"
)

const delimiter = "---"

// Split separates a leading frontmatter block from the body. ok is false
// when the content has no frontmatter, in which case body is the whole
// content.
func Split(content string) (header, body string, ok bool) {
	first, rest, found := cutLine(content)
	if !found || strings.TrimRight(first, " \t") != delimiter {
		return "", content, false
	}

	offset := 0
	for remaining := rest; ; {
		line, next, more := cutLine(remaining)
		trimmed := strings.TrimRight(line, " \t")
		if trimmed == delimiter || trimmed == "..." {
			return rest[:offset], next, true
		}
		if !more {
			return "", content, false
		}
		offset += len(remaining) - len(next)
		remaining = next
	}
}

// cutLine returns the first line of s without its terminator.
func cutLine(s string) (line, rest string, more bool) {
	i := strings.IndexByte(s, '\n')
	if i < 0 {
		return s, "", false
	}
	return strings.TrimSuffix(s[:i], "\r"), s[i+1:], true
}

// ParseHeader decodes a frontmatter block into an ordered map. A blank
// block yields an empty map.
func ParseHeader(doc, text string) (*fields.Map, error) {
	if strings.TrimSpace(text) == "" {
		return fields.NewMap(), nil
	}

	var out any
	if err := yaml.UnmarshalWithOptions([]byte(text), &out, yaml.UseOrderedMap()); err != nil {
		return nil, errors.NewParseError("yaml", doc, "invalid frontmatter", err)
	}
	if out == nil {
		return fields.NewMap(), nil
	}

	v := fields.FromNative(out)
	if v.Kind() != fields.KindMap {
		return nil, errors.NewParseError("yaml", doc, "frontmatter is not a mapping", nil)
	}
	return v.Map(), nil
}

// EncodeHeader renders a header as a frontmatter block, delimiters
// included. An empty header renders as nothing.
func EncodeHeader(header *fields.Map) (string, error) {
	if header.Len() == 0 {
		return "", nil
	}
	data, err := yaml.MarshalWithOptions(header.Native(),
		yaml.Indent(2),
		yaml.IndentSequence(true),
	)
	if err != nil {
		return "", errors.NewParseError("yaml", "", "cannot encode frontmatter", err)
	}
	return delimiter + "\n" + string(data) + delimiter + "\n", nil
}

// ReadHeader returns the document's frontmatter, or nil when it has none.
func (v *Vault) ReadHeader(_ context.Context, doc string) (*fields.Map, error) {
	content, _, err := v.read(doc)
	if err != nil {
		return nil, err
	}
	header, _, ok := Split(content)
	if !ok {
		return nil, nil
	}
	return ParseHeader(doc, header)
}

// UpdateHeader applies fn to the document's frontmatter and writes the
// result back atomically. fn receives an empty map when the document has
// no frontmatter; when fn leaves the map empty the block is removed.
// Nothing is written when the content does not change.
func (v *Vault) UpdateHeader(ctx context.Context, doc string, fn func(*fields.Map) error) error {
	content, mode, err := v.read(doc)
	if err != nil {
		return err
	}

	text, body, ok := Split(content)
	header := fields.NewMap()
	if ok {
		if header, err = ParseHeader(doc, text); err != nil {
			return err
		}
	}

	if err := fn(header); err != nil {
		return err
	}

	block, err := EncodeHeader(header)
	if err != nil {
		return err
	}
	updated := block + body
	if updated == content {
		logging.FromContext(ctx).Debug().Str("document", doc).Msg("Header unchanged, skipping write")
		return nil
	}
	return v.write(doc, updated, mode)
}
