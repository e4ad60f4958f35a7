package output

import (
	"io"
	"strings"

	md "github.com/nao1215/markdown"
)

// MarkdownFormatter outputs a GitHub-flavored markdown table.
type MarkdownFormatter struct {
	Wide bool
}

// Format writes data as a markdown table. Values without a table layout
// fall back to JSON, like the table formatter.
func (f *MarkdownFormatter) Format(w io.Writer, data any) error {
	var d Data
	switch v := data.(type) {
	case Data:
		d = v
	case Tabular:
		d = v.TableData(f.Wide)
	default:
		var ok bool
		if d, ok = reflectData(data); !ok {
			return (&JSONFormatter{Indent: "  "}).Format(w, data)
		}
	}

	rows := make([][]string, len(d.Rows))
	for i, row := range d.Rows {
		rows[i] = make([]string, len(row))
		for j, c := range row {
			rows[i][j] = escapeCell(c)
		}
	}
	return md.NewMarkdown(w).
		Table(md.TableSet{Header: d.Headers, Rows: rows}).
		Build()
}

// escapeCell keeps pipes inside their cell.
func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
