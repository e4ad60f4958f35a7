package output

import (
	"strconv"
	"strings"
	"time"

	"github.com/agentstation/propsync"
	"github.com/agentstation/propsync/pkg/reconcile"
)

// Results is a batch of cycle results.
type Results []*propsync.Result

// Status describes what a cycle did to its document.
func Status(r *propsync.Result) string {
	switch {
	case r.Excluded:
		return "excluded (" + r.ExcludedBy + ")"
	case r.Written:
		return "written"
	case r.HasChanges():
		return "pending"
	default:
		return "in sync"
	}
}

// TableData implements Tabular.
func (rs Results) TableData(wide bool) Data {
	d := Data{
		Headers:         []string{"Document", "Status", "Added", "Updated", "Removed"},
		ColumnAlignment: []Align{AlignLeft, AlignLeft, AlignRight, AlignRight, AlignRight},
	}
	if wide {
		d.Headers = append(d.Headers, "Unchanged", "Ignored", "Duration", "Run")
		d.ColumnAlignment = append(d.ColumnAlignment, AlignRight, AlignRight, AlignRight, AlignLeft)
	}

	for _, r := range rs {
		if r == nil {
			continue
		}
		var s reconcile.Summary
		if r.Decision != nil {
			s = r.Decision.Summary
		}
		row := []string{
			r.Document,
			Status(r),
			strconv.Itoa(s.Added),
			strconv.Itoa(s.Updated),
			strconv.Itoa(s.Removed),
		}
		if wide {
			row = append(row,
				strconv.Itoa(s.Unchanged),
				strconv.Itoa(s.Ignored),
				r.Duration.Round(time.Microsecond).String(),
				r.RunID,
			)
		}
		d.Rows = append(d.Rows, row)
	}
	return d
}

// Changes lists every field change of a batch, one row per change.
type Changes []*propsync.Result

// TableData implements Tabular. The wide layout adds the inline key and
// the nesting path.
func (cs Changes) TableData(wide bool) Data {
	d := Data{Headers: []string{"Document", "Change", "Key", "Old", "New"}}
	if wide {
		d.Headers = append(d.Headers, "Field", "Path")
	}

	for _, r := range cs {
		if r == nil || r.Decision == nil {
			continue
		}
		for _, c := range r.Decision.Changes() {
			var old, updated string
			if c.Type != reconcile.ChangeTypeAdd {
				old = cell(c.Old.String())
			}
			if c.Type != reconcile.ChangeTypeRemove {
				updated = cell(c.New.String())
			}
			row := []string{r.Document, string(c.Type), c.Key, old, updated}
			if wide {
				row = append(row, c.Field, strings.Join(c.Path, "."))
			}
			d.Rows = append(d.Rows, row)
		}
	}
	return d
}

// cell keeps multi-line values on one table line.
func cell(s string) string {
	runes := []rune(strings.ReplaceAll(s, "\n", "⏎"))
	if len(runes) > 60 {
		return string(runes[:57]) + "..."
	}
	return string(runes)
}
