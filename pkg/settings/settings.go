// Package settings holds the user-facing reconciliation settings, validates
// them when they are edited, and compiles them into an immutable generation
// consumed by the client.
package settings

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/agentstation/propsync/internal/matcher"
	"github.com/agentstation/propsync/pkg/coerce"
	"github.com/agentstation/propsync/pkg/constants"
	"github.com/agentstation/propsync/pkg/errors"
	"github.com/agentstation/propsync/pkg/normalize"
	"github.com/agentstation/propsync/pkg/rules"
)

// RuleGroup is a pattern list with its normalization switches.
type RuleGroup struct {
	Patterns      []string `json:"patterns" yaml:"patterns" mapstructure:"patterns"`
	LowerCase     bool     `json:"lower_case" yaml:"lower_case" mapstructure:"lower_case"`
	IgnoreAccents bool     `json:"ignore_accents" yaml:"ignore_accents" mapstructure:"ignore_accents"`
}

// Profile returns the normalization profile of the group.
func (g RuleGroup) Profile() normalize.Profile {
	return normalize.Profile{LowerCase: g.LowerCase, IgnoreAccents: g.IgnoreAccents}
}

// Unflatten controls nesting of separator-joined keys.
type Unflatten struct {
	Enabled   bool   `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	Separator string `json:"separator" yaml:"separator" mapstructure:"separator"`
}

// Exclude selects documents that are never synchronized.
type Exclude struct {
	// Paths are substrings, globs (containing *, ? or [) or /regex/flags.
	Paths []string `json:"paths" yaml:"paths" mapstructure:"paths"`
	// Key is a header key; a document whose header sets it to true is skipped.
	Key string `json:"key" yaml:"key" mapstructure:"key"`
}

// Settings configures the reconciliation engine.
type Settings struct {
	Ignore  RuleGroup `json:"ignore" yaml:"ignore" mapstructure:"ignore"`
	Cleanup RuleGroup `json:"cleanup" yaml:"cleanup" mapstructure:"cleanup"`
	Lists   RuleGroup `json:"lists" yaml:"lists" mapstructure:"lists"`
	Force   RuleGroup `json:"force" yaml:"force" mapstructure:"force"`

	Prefix     string    `json:"prefix" yaml:"prefix" mapstructure:"prefix"`
	ListSuffix string    `json:"list_suffix" yaml:"list_suffix" mapstructure:"list_suffix"`
	Unflatten  Unflatten `json:"unflatten" yaml:"unflatten" mapstructure:"unflatten"`
	OnlyMode   bool      `json:"only_mode" yaml:"only_mode" mapstructure:"only_mode"`

	Queries  coerce.QueryConfig    `json:"queries" yaml:"queries" mapstructure:"queries"`
	Duration coerce.DurationFormat `json:"duration" yaml:"duration" mapstructure:"duration"`
	Exclude  Exclude               `json:"exclude" yaml:"exclude" mapstructure:"exclude"`

	Debounce time.Duration `json:"debounce" yaml:"debounce" mapstructure:"debounce"`
	Interval time.Duration `json:"interval" yaml:"interval" mapstructure:"interval"`

	ErrorSentinel string `json:"error_sentinel" yaml:"error_sentinel" mapstructure:"error_sentinel"`
	LinkScheme    string `json:"link_scheme" yaml:"link_scheme" mapstructure:"link_scheme"`
}

func defaultGroup() RuleGroup {
	return RuleGroup{
		Patterns:      []string{},
		LowerCase:     normalize.Default.LowerCase,
		IgnoreAccents: normalize.Default.IgnoreAccents,
	}
}

// Defaults returns the stock settings.
func Defaults() Settings {
	return Settings{
		Ignore:     defaultGroup(),
		Cleanup:    defaultGroup(),
		Lists:      defaultGroup(),
		Force:      defaultGroup(),
		ListSuffix: constants.DefaultListSuffix,
		Unflatten: Unflatten{
			Separator: constants.DefaultUnflattenSeparator,
		},
		Queries: coerce.DefaultQueryConfig(),
		Duration: coerce.DurationFormat{
			Style:     coerce.StyleLong,
			Separator: ", ",
		},
		Exclude: Exclude{
			Paths: []string{},
			Key:   constants.DefaultExcludeKey,
		},
		Debounce:      constants.DefaultDebounce,
		ErrorSentinel: constants.DefaultErrorSentinel,
		LinkScheme:    constants.DefaultLinkScheme,
	}
}

// Validate reports every problem with s at once. Invalid expressions come
// back as *errors.PatternError, other problems as *errors.ValidationError.
func (s Settings) Validate() error {
	var errs []error

	groups := []struct {
		name  string
		group RuleGroup
	}{
		{"ignore", s.Ignore},
		{"cleanup", s.Cleanup},
		{"lists", s.Lists},
		{"force", s.Force},
	}
	for _, g := range groups {
		if err := rules.Validate(g.name, g.group.Patterns); err != nil {
			errs = append(errs, err)
		}
	}
	if err := validateExclusions(s.Exclude.Paths); err != nil {
		errs = append(errs, err)
	}
	if s.Duration.Pattern != "" {
		if err := rules.Validate("duration.pattern", []string{s.Duration.Pattern}); err != nil {
			errs = append(errs, err)
		}
	}

	if s.Prefix != "" && strings.TrimSpace(s.Prefix) == "" {
		errs = append(errs, errors.NewValidationError("prefix", s.Prefix, "cannot be blank"))
	}
	if s.Prefix != strings.TrimSpace(s.Prefix) {
		errs = append(errs, errors.NewValidationError("prefix", s.Prefix, "cannot start or end with whitespace"))
	}
	if s.Unflatten.Enabled {
		switch {
		case strings.TrimSpace(s.Unflatten.Separator) == "":
			errs = append(errs, errors.NewValidationError("unflatten.separator", s.Unflatten.Separator, "cannot be blank"))
		case strings.Contains(s.Unflatten.Separator, "."):
			errs = append(errs, errors.NewValidationError("unflatten.separator", s.Unflatten.Separator, "cannot contain a dot"))
		}
	}
	switch s.Duration.Style {
	case "", coerce.StyleLong, coerce.StyleShort, coerce.StyleNarrow:
	default:
		errs = append(errs, errors.NewValidationError("duration.style", s.Duration.Style,
			fmt.Sprintf("must be one of %s, %s, %s", coerce.StyleLong, coerce.StyleShort, coerce.StyleNarrow)))
	}
	if s.Debounce < 0 {
		errs = append(errs, errors.NewValidationError("debounce", s.Debounce, "cannot be negative"))
	}
	if s.Interval < 0 {
		errs = append(errs, errors.NewValidationError("interval", s.Interval, "cannot be negative"))
	}

	return errors.Join(errs...)
}

// validateExclusions checks expression and glob path patterns.
func validateExclusions(patterns []string) error {
	var errs []error
	for _, p := range patterns {
		switch {
		case rules.IsRegex(p):
			if err := rules.Validate("exclude", []string{p}); err != nil {
				errs = append(errs, err)
			}
		case matcher.IsGlobPattern(p):
			if _, err := path.Match(p, ""); err != nil {
				errs = append(errs, errors.NewPatternError("exclude", p, err))
			}
		}
	}
	return errors.Join(errs...)
}
