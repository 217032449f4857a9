// Package fields turns inbound webhook payloads and per-campaign parameter
// definitions into the flat string values a WhatsApp template send needs.
// Everything here is a pure function over decoded JSON.
package fields

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Resolve walks a dot-notation path into a decoded JSON payload. A missing
// key at any segment yields nil. Numeric segments index into arrays.
func Resolve(payload interface{}, path string) interface{} {
	if path == "" {
		return nil
	}
	current := payload
	for _, segment := range strings.Split(path, ".") {
		switch node := current.(type) {
		case map[string]interface{}:
			value, ok := node[segment]
			if !ok {
				return nil
			}
			current = value
		case []interface{}:
			idx, err := strconv.Atoi(segment)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil
			}
			current = node[idx]
		default:
			return nil
		}
	}
	return current
}

// Stringify renders a resolved value as a string. Scalars use their natural
// text form; structured values are serialized to JSON.
func Stringify(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(encoded)
	}
}

// FieldError records a transformation failure for a single mapped field.
// The field still appears in the output with its last good value.
type FieldError struct {
	Variable string
	Err      error
}

// Mapping is the extraction unit: a source path, the template variable it
// feeds, an optional default and an ordered transformation chain.
type Mapping struct {
	SourcePath       string
	TemplateVariable string
	DefaultValue     string
	Transformations  []Transform
}

// Transform is one step of a mapping chain.
type Transform struct {
	Type    string
	Options map[string]string
}

// ExtractFields resolves every mapping against the payload and applies its
// transformation chain in order. Mappings with an empty source path or
// template variable are skipped. A missing path yields the default value if
// one is configured, otherwise an empty string. Transformation failures stop
// that field's chain but never abort the other fields.
func ExtractFields(payload interface{}, mappings []Mapping) (map[string]string, []FieldError) {
	out := make(map[string]string, len(mappings))
	var errs []FieldError

	for _, m := range mappings {
		if m.SourcePath == "" || m.TemplateVariable == "" {
			continue
		}

		value := Stringify(Resolve(payload, m.SourcePath))
		if value == "" && m.DefaultValue != "" {
			value = m.DefaultValue
		}

		for _, t := range m.Transformations {
			next, err := applyTransform(t, value)
			if err != nil {
				errs = append(errs, FieldError{Variable: m.TemplateVariable, Err: err})
				break
			}
			value = next
		}

		out[m.TemplateVariable] = value
	}

	return out, errs
}
