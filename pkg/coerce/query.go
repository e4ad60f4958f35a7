package coerce

import (
	"context"
	"regexp"
	"strings"

	"github.com/agentstation/propsync/pkg/constants"
	"github.com/agentstation/propsync/pkg/logging"
)

// QueryKind tells the two embedded query forms apart.
type QueryKind string

// Query kinds.
const (
	QueryExpression QueryKind = "expression"
	QueryScript     QueryKind = "script"
)

// Query is one embedded query found in a string value.
type Query struct {
	Kind QueryKind
	// Expr is the query text between the prefix and the closing backtick, trimmed.
	Expr string
	// Source is the full fragment, backticks included.
	Source string
}

// QueryConfig selects which query forms are evaluated and how they are written.
type QueryConfig struct {
	Expressions      bool   `json:"dql" yaml:"dql" mapstructure:"dql"`
	Scripts          bool   `json:"djs" yaml:"djs" mapstructure:"djs"`
	ExpressionPrefix string `json:"expression_prefix,omitempty" yaml:"expression_prefix,omitempty" mapstructure:"expression_prefix"`
	ScriptPrefix     string `json:"script_prefix,omitempty" yaml:"script_prefix,omitempty" mapstructure:"script_prefix"`
}

// DefaultQueryConfig enables both forms with the stock prefixes.
func DefaultQueryConfig() QueryConfig {
	return QueryConfig{
		Expressions:      true,
		Scripts:          true,
		ExpressionPrefix: constants.DefaultQueryPrefix,
		ScriptPrefix:     constants.DefaultJSQueryPrefix,
	}
}

type queryMatcher struct {
	cfg        QueryConfig
	expression *regexp.Regexp
	script     *regexp.Regexp
}

func newQueryMatcher(cfg QueryConfig) *queryMatcher {
	if cfg.ExpressionPrefix == "" {
		cfg.ExpressionPrefix = constants.DefaultQueryPrefix
	}
	if cfg.ScriptPrefix == "" {
		cfg.ScriptPrefix = constants.DefaultJSQueryPrefix
	}
	return &queryMatcher{
		cfg:        cfg,
		expression: regexp.MustCompile("(?s)`" + regexp.QuoteMeta(cfg.ExpressionPrefix) + "(.+?)`"),
		script:     regexp.MustCompile("(?s)`" + regexp.QuoteMeta(cfg.ScriptPrefix) + "(.+?)`"),
	}
}

// find returns the embedded queries of text in order of appearance,
// including forms that are switched off when all is set.
func (m *queryMatcher) find(text string, all bool) []Query {
	var out []Query
	if all || m.cfg.Expressions {
		for _, match := range m.expression.FindAllStringSubmatch(text, -1) {
			out = append(out, Query{Kind: QueryExpression, Expr: strings.TrimSpace(match[1]), Source: match[0]})
		}
	}
	if all || m.cfg.Scripts {
		for _, match := range m.script.FindAllStringSubmatch(text, -1) {
			out = append(out, Query{Kind: QueryScript, Expr: strings.TrimSpace(match[1]), Source: match[0]})
		}
	}
	return out
}

// FindQueries returns the embedded queries in text whose form is enabled.
func (c *Coercer) FindQueries(text string) []Query {
	return c.queries.find(text, false)
}

// HasQuery reports whether text carries an embedded query of either form,
// enabled or not. Only mode uses it on the raw source of a field.
func (c *Coercer) HasQuery(text string) bool {
	return len(c.queries.find(text, true)) > 0
}

// substitute replaces each enabled query in text with its evaluated result.
// A result carrying the error sentinel, or an evaluation error, leaves that
// query's text in place.
func (c *Coercer) substitute(ctx context.Context, in input, text string) (string, error) {
	if c.evaluator == nil {
		return text, nil
	}
	queries := c.FindQueries(text)
	if len(queries) == 0 {
		return text, nil
	}

	logger := logging.FromContext(ctx)
	for _, q := range queries {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		result, err := c.evaluator.Evaluate(ctx, in.doc, q, in.siblings)
		if err != nil {
			logger.Warn().
				Err(err).
				Str("field", in.key).
				Str("query", q.Expr).
				Msg("Query evaluation failed, keeping source text")
			continue
		}
		if c.cfg.ErrorSentinel != "" && strings.Contains(result, c.cfg.ErrorSentinel) {
			logger.Debug().
				Str("field", in.key).
				Str("query", q.Expr).
				Msg("Query reported an error, keeping source text")
			continue
		}
		text = strings.Replace(text, q.Source, result, 1)
	}
	return text, nil
}
