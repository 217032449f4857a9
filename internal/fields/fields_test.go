package fields

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, raw string) interface{} {
	t.Helper()
	var payload interface{}
	require.NoError(t, json.Unmarshal([]byte(raw), &payload))
	return payload
}

func TestResolve(t *testing.T) {
	payload := decode(t, `{"order":{"id":"7741","items":[{"sku":"A-1"},{"sku":"B-2"}],"total":49.9},"paid":true}`)

	assert.Equal(t, "7741", Resolve(payload, "order.id"))
	assert.Equal(t, "B-2", Resolve(payload, "order.items.1.sku"))
	assert.Nil(t, Resolve(payload, "order.missing.deep"))
	assert.Nil(t, Resolve(payload, "order.items.7.sku"))
	assert.Nil(t, Resolve(payload, ""))

	assert.Equal(t, "49.9", Stringify(Resolve(payload, "order.total")))
	assert.Equal(t, "true", Stringify(Resolve(payload, "paid")))
}

func TestExtractFieldsBasics(t *testing.T) {
	payload := decode(t, `{"customer":{"name":"ana lima"},"order":{"id":"7741"}}`)
	mappings := []Mapping{
		{SourcePath: "customer.name", TemplateVariable: "name"},
		{SourcePath: "order.id", TemplateVariable: "order_id"},
		{SourcePath: "order.coupon", TemplateVariable: "coupon", DefaultValue: "NONE"},
		{SourcePath: "order.gift", TemplateVariable: "gift"},
		{SourcePath: "", TemplateVariable: "skipped"},
		{SourcePath: "order.id", TemplateVariable: ""},
	}

	out, errs := ExtractFields(payload, mappings)
	assert.Empty(t, errs)
	assert.Equal(t, map[string]string{
		"name":     "ana lima",
		"order_id": "7741",
		"coupon":   "NONE",
		"gift":     "",
	}, out)

	// Pure function: identical inputs, identical output.
	again, _ := ExtractFields(payload, mappings)
	assert.Equal(t, out, again)
}

func TestTransformationOrderIsPreserved(t *testing.T) {
	payload := decode(t, `{"v":"ab"}`)

	out, errs := ExtractFields(payload, []Mapping{{
		SourcePath:       "v",
		TemplateVariable: "first",
		Transformations: []Transform{
			{Type: TransformUppercase},
			{Type: TransformSuffix, Options: map[string]string{"text": "X"}},
		},
	}})
	assert.Empty(t, errs)
	assert.Equal(t, "ABX", out["first"])

	out, errs = ExtractFields(payload, []Mapping{{
		SourcePath:       "v",
		TemplateVariable: "second",
		Transformations: []Transform{
			{Type: TransformSuffix, Options: map[string]string{"text": "x"}},
			{Type: TransformUppercase},
		},
	}})
	assert.Empty(t, errs)
	assert.Equal(t, "ABX", out["second"])
}

func TestTransformKinds(t *testing.T) {
	cases := []struct {
		name  string
		chain []Transform
		in    string
		want  string
	}{
		{"lowercase", []Transform{{Type: TransformLowercase}}, "HeLLo", "hello"},
		{"title_case", []Transform{{Type: TransformTitleCase}}, "ana DE lima", "Ana De Lima"},
		{"currency", []Transform{{Type: TransformFormatCurrency}}, "49.9", "$49.90"},
		{"currency_non_numeric", []Transform{{Type: TransformFormatCurrency}}, "free", "$0.00"},
		{"prefix", []Transform{{Type: TransformPrefix, Options: map[string]string{"text": "#"}}}, "7741", "#7741"},
		{"replace", []Transform{{Type: TransformReplace, Options: map[string]string{"search": "-", "replace": " "}}}, "a-b-c", "a b c"},
		{"unknown_is_noop", []Transform{{Type: "sparkle"}}, "as-is", "as-is"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			payload := map[string]interface{}{"v": tc.in}
			out, errs := ExtractFields(payload, []Mapping{{
				SourcePath:       "v",
				TemplateVariable: "v",
				Transformations:  tc.chain,
			}})
			assert.Empty(t, errs)
			assert.Equal(t, tc.want, out["v"])
		})
	}
}

func TestFormatDate(t *testing.T) {
	payload := decode(t, `{"ok":"2026-03-05T10:00:00Z","bad":"not a date","other":"fine"}`)

	out, errs := ExtractFields(payload, []Mapping{
		{SourcePath: "ok", TemplateVariable: "ok", Transformations: []Transform{
			{Type: TransformFormatDate, Options: map[string]string{"format": "02 Jan 2006"}},
		}},
		{SourcePath: "bad", TemplateVariable: "bad", Transformations: []Transform{
			{Type: TransformFormatDate},
		}},
		{SourcePath: "other", TemplateVariable: "other"},
	})

	assert.Equal(t, "05 Mar 2026", out["ok"])
	// The unparseable field errors alone; the rest of the extraction proceeds.
	require.Len(t, errs, 1)
	assert.Equal(t, "bad", errs[0].Variable)
	assert.Equal(t, "fine", out["other"])
}

func TestFormatDateDefaultLayout(t *testing.T) {
	got, err := formatDate("05/03/2026", nil)
	require.NoError(t, err)
	assert.Equal(t, "2026-03-05", got)
}
