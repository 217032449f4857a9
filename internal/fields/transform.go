package fields

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Transformation kinds supported in field mapping chains.
const (
	TransformUppercase      = "uppercase"
	TransformLowercase      = "lowercase"
	TransformTitleCase      = "title_case"
	TransformFormatCurrency = "format_currency"
	TransformFormatDate     = "format_date"
	TransformPrefix         = "prefix"
	TransformSuffix         = "suffix"
	TransformReplace        = "replace"
)

// DefaultDateFormat is the output layout when a format_date step does not
// configure one.
const DefaultDateFormat = "2006-01-02"

type transformFunc func(value string, options map[string]string) (string, error)

// transformers maps transformation kind tags to their implementations.
// Unknown kinds resolve to an identity no-op for compatibility with
// configurations written against newer mapping versions.
var transformers = map[string]transformFunc{
	TransformUppercase: func(v string, _ map[string]string) (string, error) {
		return strings.ToUpper(v), nil
	},
	TransformLowercase: func(v string, _ map[string]string) (string, error) {
		return strings.ToLower(v), nil
	},
	TransformTitleCase: titleCase,
	TransformFormatCurrency: func(v string, _ map[string]string) (string, error) {
		amount, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			amount = 0
		}
		return fmt.Sprintf("$%.2f", amount), nil
	},
	TransformFormatDate: formatDate,
	TransformPrefix: func(v string, opts map[string]string) (string, error) {
		return opts["text"] + v, nil
	},
	TransformSuffix: func(v string, opts map[string]string) (string, error) {
		return v + opts["text"], nil
	},
	TransformReplace: func(v string, opts map[string]string) (string, error) {
		return strings.ReplaceAll(v, opts["search"], opts["replace"]), nil
	},
}

func identity(v string, _ map[string]string) (string, error) {
	return v, nil
}

func applyTransform(t Transform, value string) (string, error) {
	fn, ok := transformers[t.Type]
	if !ok {
		fn = identity
	}
	return fn(value, t.Options)
}

func titleCase(v string, _ map[string]string) (string, error) {
	words := strings.Fields(v)
	for i, w := range words {
		r := []rune(strings.ToLower(w))
		if len(r) > 0 {
			r[0] = []rune(strings.ToUpper(string(r[0])))[0]
		}
		words[i] = string(r)
	}
	return strings.Join(words, " "), nil
}

// dateInputLayouts are tried in order when parsing a format_date source value.
var dateInputLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02/01/2006",
	"01/02/2006",
	"02-01-2006",
}

func formatDate(v string, opts map[string]string) (string, error) {
	trimmed := strings.TrimSpace(v)
	if trimmed == "" {
		return "", fmt.Errorf("format_date: empty input")
	}

	layout := opts["format"]
	if layout == "" {
		layout = DefaultDateFormat
	}

	for _, in := range dateInputLayouts {
		if parsed, err := time.Parse(in, trimmed); err == nil {
			return parsed.Format(layout), nil
		}
	}

	// Unix timestamps show up from some e-commerce platforms.
	if secs, err := strconv.ParseInt(trimmed, 10, 64); err == nil && secs > 0 {
		return time.Unix(secs, 0).UTC().Format(layout), nil
	}

	return "", fmt.Errorf("format_date: unparseable date %q", trimmed)
}
