package output_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/propsync"
	"github.com/agentstation/propsync/internal/cmd/output"
	"github.com/agentstation/propsync/pkg/errors"
	"github.com/agentstation/propsync/pkg/fields"
	"github.com/agentstation/propsync/pkg/reconcile"
)

func sampleResults() output.Results {
	decision := &reconcile.Decision{
		Upserts: []reconcile.FieldChange{
			{Key: "status", Field: "status", Path: []string{"status"}, Type: reconcile.ChangeTypeAdd, New: fields.String("done")},
			{Key: "rating", Field: "rating", Path: []string{"rating"}, Type: reconcile.ChangeTypeUpdate, Old: fields.Number(3), New: fields.Number(4)},
		},
		Removals: []reconcile.FieldChange{
			{Key: "due", Field: "due", Path: []string{"due"}, Type: reconcile.ChangeTypeRemove, Old: fields.String("2024-05-01")},
		},
		Summary: reconcile.Summary{Added: 1, Updated: 1, Removed: 1, Total: 3},
	}
	return output.Results{
		{Document: "a.md", Decision: decision, Written: true},
		{Document: "Templates/t.md", Excluded: true, ExcludedBy: propsync.ExclusionPath, ExclusionPattern: "Templates/"},
		nil,
		{Document: "b.md", Decision: &reconcile.Decision{}},
	}
}

func TestParseFormat(t *testing.T) {
	for _, f := range output.Formats {
		got, err := output.ParseFormat(string(f))
		require.NoError(t, err)
		assert.Equal(t, f, got)
	}
	got, err := output.ParseFormat("JSON")
	require.NoError(t, err)
	assert.Equal(t, output.FormatJSON, got)

	_, err = output.ParseFormat("xml")
	assert.True(t, errors.IsValidationError(err))
}

func TestDetectFormat(t *testing.T) {
	assert.Equal(t, output.FormatYAML, output.DetectFormat("YAML"))
}

func TestResultsTable(t *testing.T) {
	d := sampleResults().TableData(false)
	assert.Equal(t, []string{"Document", "Status", "Added", "Updated", "Removed"}, d.Headers)
	require.Len(t, d.Rows, 3)
	assert.Equal(t, []string{"a.md", "written", "1", "1", "1"}, d.Rows[0])
	assert.Equal(t, "excluded (path)", d.Rows[1][1])
	assert.Equal(t, "in sync", d.Rows[2][1])

	wide := sampleResults().TableData(true)
	assert.Len(t, wide.Headers, 9)
	assert.Len(t, wide.Rows[0], 9)
}

func TestChangesTable(t *testing.T) {
	d := output.Changes(sampleResults()).TableData(false)
	require.Len(t, d.Rows, 3)
	assert.Equal(t, []string{"a.md", "add", "status", "", "done"}, d.Rows[0])
	assert.Equal(t, []string{"a.md", "update", "rating", "3", "4"}, d.Rows[1])
	assert.Equal(t, []string{"a.md", "remove", "due", "2024-05-01", ""}, d.Rows[2])
}

func TestTableFormatter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, output.NewFormatter(output.FormatTable).Format(&buf, sampleResults()))
	assert.Contains(t, buf.String(), "a.md")
	assert.Contains(t, buf.String(), "written")

	buf.Reset()
	type row struct {
		Name  string `json:"doc_name"`
		Count int    `json:"count,omitempty"`
	}
	require.NoError(t, output.NewFormatter(output.FormatTable).Format(&buf, []row{{"x.md", 2}}))
	assert.Contains(t, strings.ToUpper(buf.String()), "DOC NAME")
	assert.Contains(t, buf.String(), "x.md")

	buf.Reset()
	require.NoError(t, output.NewFormatter(output.FormatTable).Format(&buf, map[string]int{"n": 1}))
	assert.JSONEq(t, `{"n": 1}`, buf.String())
}

func TestJSONAndYAMLFormatters(t *testing.T) {
	results := sampleResults()

	var buf bytes.Buffer
	require.NoError(t, output.NewFormatter(output.FormatJSON).Format(&buf, results[0]))
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "a.md", decoded["document"])
	assert.Equal(t, true, decoded["written"])

	buf.Reset()
	require.NoError(t, output.NewFormatter(output.FormatYAML).Format(&buf, results[1]))
	assert.Contains(t, buf.String(), "document: Templates/t.md")
	assert.Contains(t, buf.String(), "excluded: true")
}

func TestMarkdownFormatter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, output.NewFormatter(output.FormatMarkdown).Format(&buf, sampleResults()))
	out := buf.String()
	assert.Contains(t, strings.ToUpper(out), "| DOCUMENT")
	assert.Contains(t, out, "a.md")
	assert.Contains(t, out, "excluded (path)")

	buf.Reset()
	data := output.Data{Headers: []string{"Key"}, Rows: [][]string{{"a|b"}}}
	require.NoError(t, output.NewFormatter(output.FormatMarkdown).Format(&buf, data))
	assert.Contains(t, buf.String(), `a\|b`)

	got, err := output.ParseFormat("md")
	require.NoError(t, err)
	assert.Equal(t, output.FormatMarkdown, got)
}
