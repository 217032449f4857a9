package whatsapp

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akunesiateam/akunchatlagi-sub002/internal/config"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewClient(&config.Config{
		WhatsAppToken: "test-token",
		PhoneNumberID: "12345",
	})
	client.BaseURL = server.URL
	return client
}

func TestSendTemplateSuccess(t *testing.T) {
	var captured TemplateMessage
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/12345/messages", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &captured))
		w.Write([]byte(`{"messages":[{"id":"wamid.ABC123"}]}`))
	})

	result := client.SendTemplate(TemplateSend{
		To:         "5511999990000",
		Name:       "order_shipped",
		Language:   "en_US",
		BodyParams: []string{"Ana", "7741"},
	})

	assert.True(t, result.Success)
	assert.Equal(t, "wamid.ABC123", result.MessageID)
	assert.Equal(t, http.StatusOK, result.HTTPStatus)

	require.NotNil(t, captured.Template)
	assert.Equal(t, "order_shipped", captured.Template.Name)
	require.Len(t, captured.Template.Components, 1)
	assert.Equal(t, "body", captured.Template.Components[0].Type)
	assert.Equal(t, "Ana", captured.Template.Components[0].Parameters[0].Text)
}

func TestSendTemplateProviderRejection(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"Invalid parameter","type":"OAuthException","code":100}}`))
	})

	result := client.SendTemplate(TemplateSend{To: "5511999990000", Name: "x", Language: "en"})

	assert.False(t, result.Success)
	assert.Equal(t, "Invalid parameter", result.ErrorMessage)
	assert.Equal(t, http.StatusBadRequest, result.HTTPStatus)
}

func TestSendTemplateRawBodyFallback(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream unavailable"))
	})

	result := client.SendTemplate(TemplateSend{To: "5511999990000", Name: "x", Language: "en"})

	assert.False(t, result.Success)
	assert.Equal(t, "upstream unavailable", result.ErrorMessage)
}

func TestSendTemplateEmptyBodyFallback(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	result := client.SendTemplate(TemplateSend{To: "5511999990000", Name: "x", Language: "en"})

	assert.False(t, result.Success)
	assert.Equal(t, "provider returned HTTP 500", result.ErrorMessage)
}

func TestSendTemplateTransportError(t *testing.T) {
	client := NewClient(&config.Config{PhoneNumberID: "12345"})
	client.BaseURL = "http://127.0.0.1:1" // nothing listens here

	result := client.SendTemplate(TemplateSend{To: "5511999990000", Name: "x", Language: "en"})

	assert.False(t, result.Success)
	assert.NotEmpty(t, result.ErrorMessage)
	assert.Zero(t, result.HTTPStatus)
}

func TestBuildComponents(t *testing.T) {
	t.Run("text header", func(t *testing.T) {
		components := buildComponents(TemplateSend{
			HeaderFormat: "TEXT",
			HeaderParams: []string{"Ana"},
			BodyParams:   []string{"7741", ""},
		})
		require.Len(t, components, 2)
		assert.Equal(t, "header", components[0].Type)
		assert.Equal(t, "Ana", components[0].Parameters[0].Text)
		// Blank body values are padded so the provider never sees an empty parameter.
		assert.Equal(t, " ", components[1].Parameters[1].Text)
	})

	t.Run("media header", func(t *testing.T) {
		components := buildComponents(TemplateSend{
			HeaderFormat: "IMAGE",
			HeaderLink:   "https://cdn.example.com/banner.png",
		})
		require.Len(t, components, 1)
		require.NotNil(t, components[0].Parameters[0].Image)
		assert.Equal(t, "https://cdn.example.com/banner.png", components[0].Parameters[0].Image.Link)
	})

	t.Run("single flow action", func(t *testing.T) {
		components := buildComponents(TemplateSend{
			Buttons: []ButtonDef{
				{Type: "QUICK_REPLY"},
				{Type: "FLOW", FlowID: "flow-1"},
				{Type: "FLOW", FlowID: "flow-2"},
			},
			FlowContext: map[string]interface{}{"campaign_id": 7},
		})
		require.Len(t, components, 1)
		button := components[0]
		assert.Equal(t, "flow", button.SubType)
		require.NotNil(t, button.Parameters[0].Action)
		assert.Equal(t, "flow-1", button.Parameters[0].Action.FlowID)
		assert.Contains(t, button.Parameters[0].Action.FlowToken, `"campaign_id":7`)
	})
}

func TestParseComponents(t *testing.T) {
	meta, err := ParseComponents(`[
		{"type":"HEADER","format":"IMAGE"},
		{"type":"BODY","text":"Hi {{1}}, your order {{2}} shipped"},
		{"type":"FOOTER","text":"Reply STOP to opt out"},
		{"type":"BUTTONS","buttons":[{"type":"FLOW","flow_id":"890"}]}
	]`)
	require.NoError(t, err)
	assert.Equal(t, "IMAGE", meta.HeaderFormat)
	assert.Equal(t, "Hi {{1}}, your order {{2}} shipped", meta.BodyText)
	assert.Equal(t, "Reply STOP to opt out", meta.FooterText)
	require.Len(t, meta.Buttons, 1)
	assert.Equal(t, "890", meta.Buttons[0].FlowID)

	_, err = ParseComponents("{bad")
	assert.Error(t, err)

	meta, err = ParseComponents("")
	require.NoError(t, err)
	assert.Empty(t, meta.BodyText)
}
