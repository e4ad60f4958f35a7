package coerce

import (
	"strconv"
	"strings"

	"github.com/agentstation/propsync/pkg/fields"
	"github.com/agentstation/propsync/pkg/rules"
)

// Duration styles.
const (
	StyleLong   = "long"
	StyleShort  = "short"
	StyleNarrow = "narrow"
)

// DurationFormat controls how durations are written.
type DurationFormat struct {
	// Style is long ("2 hours"), short ("2 hr") or narrow ("2h").
	Style string `json:"style,omitempty" yaml:"style,omitempty" mapstructure:"style"`
	// Separator joins the components; ", " when empty.
	Separator string `json:"separator,omitempty" yaml:"separator,omitempty" mapstructure:"separator"`
	// Pattern, a literal or /regex/flags, is replaced in the formatted text.
	Pattern     string `json:"pattern,omitempty" yaml:"pattern,omitempty" mapstructure:"pattern"`
	Replacement string `json:"replacement,omitempty" yaml:"replacement,omitempty" mapstructure:"replacement"`
}

type unitNames struct {
	long, short, narrow string
}

var durationUnits = [...]unitNames{
	{"year", "yr", "y"},
	{"month", "mth", "mo"},
	{"week", "wk", "w"},
	{"day", "day", "d"},
	{"hour", "hr", "h"},
	{"minute", "min", "m"},
	{"second", "sec", "s"},
	{"millisecond", "ms", "ms"},
}

// Format renders d with non-zero components only, largest first. A zero
// duration renders as zero seconds.
func (f DurationFormat) Format(d fields.Duration) string {
	amounts := [...]int64{d.Years, d.Months, d.Weeks, d.Days, d.Hours, d.Minutes, d.Seconds, d.Milliseconds}

	parts := make([]string, 0, len(amounts))
	for i, n := range amounts {
		if n != 0 {
			parts = append(parts, f.unit(n, durationUnits[i]))
		}
	}
	if len(parts) == 0 {
		parts = append(parts, f.unit(0, durationUnits[6]))
	}

	sep := f.Separator
	if sep == "" {
		sep = ", "
	}
	return f.substitute(strings.Join(parts, sep))
}

func (f DurationFormat) unit(n int64, names unitNames) string {
	num := strconv.FormatInt(n, 10)
	switch f.Style {
	case StyleNarrow:
		return num + names.narrow
	case StyleShort:
		name := names.short
		if names.short == "day" && n != 1 {
			name = "days"
		}
		return num + " " + name
	default:
		name := names.long
		if n != 1 {
			name += "s"
		}
		return num + " " + name
	}
}

func (f DurationFormat) substitute(text string) string {
	if f.Pattern == "" {
		return text
	}
	if re, err := rules.CompileRegex(f.Pattern); err == nil && re != nil {
		return re.ReplaceAllString(text, f.Replacement)
	}
	return strings.ReplaceAll(text, f.Pattern, f.Replacement)
}
