package fields

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderTextSubstitutesPlaceholders(t *testing.T) {
	payload := decode(t, `{"customer":{"name":"Ana"},"order":{"id":"7741"}}`)

	got, err := RenderText(payload, `["{customer.name}", "{order.id}"]`, "Hi {{1}}, your order {{2}} shipped")
	require.NoError(t, err)
	assert.Equal(t, "Hi Ana, your order 7741 shipped", got)
}

func TestRenderTextMissingPathRendersSingleSpace(t *testing.T) {
	payload := decode(t, `{"customer":{"name":"Ana"}}`)

	got, err := RenderText(payload, `["{customer.name}", "{order.id}"]`, "Hi {{1}}, your order {{2}} shipped")
	require.NoError(t, err)
	assert.Equal(t, "Hi Ana, your order   shipped", got)
}

func TestRenderParamArray(t *testing.T) {
	payload := decode(t, `{"a":" padded ","items":{"count":3}}`)

	got, err := RenderParamArray(payload, `["{a}", "literal", "{items}"]`)
	require.NoError(t, err)
	assert.Equal(t, []string{"padded", "literal", `{"count":3}`}, got)
}

func TestParseParamsNormalizesEscapedPlaceholders(t *testing.T) {
	payload := decode(t, `{"order":{"id":"7741"}}`)

	got, err := RenderParamArray(payload, `["@{order.id}"]`)
	require.NoError(t, err)
	assert.Equal(t, []string{"7741"}, got)
}

func TestParseParamsObjectForm(t *testing.T) {
	params, err := ParseParams(`{"1":"{a}","2":"{b}","_params_count":2}`)
	require.NoError(t, err)
	assert.Equal(t, []string{"{a}", "{b}"}, params)

	// Without the count field the highest numeric key wins.
	params, err = ParseParams(`{"2":"second","1":"first"}`)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, params)
}

func TestParseParamsEmpty(t *testing.T) {
	params, err := ParseParams("")
	require.NoError(t, err)
	assert.Empty(t, params)

	_, err = ParseParams("{not json")
	assert.Error(t, err)
}

func TestPadBlank(t *testing.T) {
	assert.Equal(t, " ", PadBlank(""))
	assert.Equal(t, "x", PadBlank("x"))
}
