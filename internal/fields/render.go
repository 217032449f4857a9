package fields

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var placeholderPattern = regexp.MustCompile(`\{([^{}]+)\}`)

// ResolvePlaceholders substitutes every {dot.path} placeholder in s with the
// value resolved from the payload. Unresolvable paths become empty strings;
// structured values are serialized to JSON.
func ResolvePlaceholders(payload interface{}, s string) string {
	return placeholderPattern.ReplaceAllStringFunc(s, func(match string) string {
		path := match[1 : len(match)-1]
		return Stringify(Resolve(payload, path))
	})
}

// paramsCountKey is an optional field in object-form parameter definitions
// that overrides the inferred parameter count.
const paramsCountKey = "_params_count"

// ParseParams decodes a raw parameter definition into the ordered list of
// raw (unresolved) parameter strings. The definition is either a JSON array
// of strings or a JSON object keyed "1", "2", ... with an optional
// _params_count override. The alternate @{...} placeholder escaping is
// normalized to {...} before decoding.
func ParseParams(rawParamsJSON string) ([]string, error) {
	raw := strings.ReplaceAll(rawParamsJSON, "@{", "{")
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	var asArray []interface{}
	if err := json.Unmarshal([]byte(raw), &asArray); err == nil {
		params := make([]string, 0, len(asArray))
		for _, item := range asArray {
			params = append(params, Stringify(item))
		}
		return params, nil
	}

	var asObject map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &asObject); err != nil {
		return nil, fmt.Errorf("parse params: %w", err)
	}

	count := 0
	if rawCount, ok := asObject[paramsCountKey]; ok {
		count = int(toFloat(rawCount))
	} else {
		for key := range asObject {
			if idx, err := strconv.Atoi(key); err == nil && idx > count {
				count = idx
			}
		}
	}

	params := make([]string, count)
	for i := 1; i <= count; i++ {
		if value, ok := asObject[strconv.Itoa(i)]; ok {
			params[i-1] = Stringify(value)
		}
	}
	return params, nil
}

func toFloat(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case string:
		f, _ := strconv.ParseFloat(n, 64)
		return f
	default:
		return 0
	}
}

// RenderParamArray resolves a raw parameter definition against a payload and
// returns the ordered, trimmed parameter values (1-indexed definition,
// 0-indexed result) for structured API component building.
func RenderParamArray(payload interface{}, rawParamsJSON string) ([]string, error) {
	params, err := ParseParams(rawParamsJSON)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(params))
	for i, p := range params {
		out[i] = strings.TrimSpace(ResolvePlaceholders(payload, p))
	}
	return out, nil
}

// RenderText resolves a raw parameter definition against a payload and
// substitutes the values into {{1}}, {{2}}, ... tokens of a template body.
// Blank values render as a single space so the provider never receives an
// empty parameter.
func RenderText(payload interface{}, rawParamsJSON, template string) (string, error) {
	values, err := RenderParamArray(payload, rawParamsJSON)
	if err != nil {
		return "", err
	}
	rendered := template
	for i, v := range values {
		if v == "" {
			v = " "
		}
		token := fmt.Sprintf("{{%d}}", i+1)
		rendered = strings.ReplaceAll(rendered, token, v)
	}
	return rendered, nil
}

// PadBlank maps an empty parameter to the single space the provider
// requires. Exported for the component builders in the send adapter.
func PadBlank(v string) string {
	if v == "" {
		return " "
	}
	return v
}
