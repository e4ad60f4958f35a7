package coerce

import (
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
)

func newMarkdownConverter() *converter.Converter {
	return converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
			table.NewTablePlugin(),
		),
	)
}

// htmlToMarkdown sanitizes markup and converts what is left to markdown.
func (c *Coercer) htmlToMarkdown(markup string) (string, error) {
	safe := c.policy.Sanitize(markup)
	if strings.TrimSpace(safe) == "" {
		return "", nil
	}
	md, err := c.markdown.ConvertString(safe)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(md), nil
}
