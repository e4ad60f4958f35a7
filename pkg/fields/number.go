package fields

import (
	"math"
	"regexp"
	"strconv"
)

// numeric is the accepted number grammar: optional minus, digits, optional
// fraction, optional exponent. Leading plus signs, bare fractions (".5") and
// surrounding whitespace are not numbers.
var numeric = regexp.MustCompile(`^-?\d+(\.\d+)?([eE][+-]?\d+)?$`)

// IsNumeric reports whether s is written in the number grammar.
func IsNumeric(s string) bool {
	return s != "" && numeric.MatchString(s)
}

// ParseNumber converts s when it is written in the number grammar.
func ParseNumber(s string) (float64, bool) {
	if !IsNumeric(s) {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// AsNumber interprets v as a number: numeric values directly, strings
// through the number grammar.
func AsNumber(v Value) (float64, bool) {
	switch v.kind {
	case KindNumber:
		return v.num, !math.IsNaN(v.num)
	case KindString:
		return ParseNumber(v.str)
	default:
		return 0, false
	}
}

// FormatNumber renders n without exponent or trailing zeros.
func FormatNumber(n float64) string {
	return strconv.FormatFloat(n, 'f', -1, 64)
}
