package whatsapp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/akunesiateam/akunchatlagi-sub002/internal/config"
)

// DefaultBaseURL is the Meta Graph API root. Overridable for tests.
const DefaultBaseURL = "https://graph.facebook.com/v19.0"

type Client struct {
	Config     *config.Config
	BaseURL    string
	HTTPClient *http.Client
}

func NewClient(cfg *config.Config) *Client {
	timeout := cfg.SendTimeout
	if timeout == 0 {
		timeout = 2 * time.Minute
	}
	return &Client{
		Config:     cfg,
		BaseURL:    DefaultBaseURL,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

// --- Message Structures ---

type TemplateMessage struct {
	MessagingProduct string       `json:"messaging_product"`
	To               string       `json:"to"`
	Type             string       `json:"type"`
	Template         *TemplateObj `json:"template,omitempty"`
}

type TemplateObj struct {
	Name       string         `json:"name"`
	Language   LanguageObj    `json:"language"`
	Components []ComponentObj `json:"components,omitempty"`
}

type LanguageObj struct {
	Code string `json:"code"`
}

type ComponentObj struct {
	Type       string         `json:"type"`
	SubType    string         `json:"sub_type,omitempty"`
	Index      string         `json:"index,omitempty"` // for buttons
	Parameters []ParameterObj `json:"parameters"`
}

type ParameterObj struct {
	Type     string      `json:"type"`
	Text     string      `json:"text,omitempty"`
	Image    *MediaObj   `json:"image,omitempty"`
	Video    *MediaObj   `json:"video,omitempty"`
	Document *MediaObj   `json:"document,omitempty"`
	Action   *FlowAction `json:"action,omitempty"`
}

type MediaObj struct {
	ID       string `json:"id,omitempty"`
	Link     string `json:"link,omitempty"`
	Filename string `json:"filename,omitempty"`
}

// FlowAction is the button parameter payload for flow-type template buttons.
type FlowAction struct {
	FlowID    string `json:"flow_id,omitempty"`
	FlowToken string `json:"flow_token,omitempty"`
}

// sendResponse is the success body of the message send endpoint.
type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// apiError is the structured error body Meta returns on rejection.
type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// --- Helper Functions ---

// post performs one JSON POST against the Graph API and returns the raw
// response body along with the HTTP status. Transport failures return a nil
// body and status 0.
func (c *Client) post(url string, body interface{}) ([]byte, int, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, 0, err
	}

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Authorization", "Bearer "+c.Config.WhatsAppToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return respBody, resp.StatusCode, nil
}

func (c *Client) get(url string) ([]byte, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.Config.WhatsAppToken)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return respBody, fmt.Errorf("API error: %s - %s", resp.Status, string(respBody))
	}
	return respBody, nil
}

// --- Template Management Methods ---

// MetaTemplate is one entry from the WABA message_templates listing.
type MetaTemplate struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Language   string          `json:"language"`
	Category   string          `json:"category"`
	Status     string          `json:"status"`
	Components json.RawMessage `json:"components"`
}

// GetTemplates lists the approved message templates for the configured WABA.
func (c *Client) GetTemplates() ([]MetaTemplate, error) {
	url := fmt.Sprintf("%s/%s/message_templates", c.BaseURL, c.Config.WhatsAppBusinessAccountID)
	resp, err := c.get(url)
	if err != nil {
		return nil, err
	}

	var result struct {
		Data []MetaTemplate `json:"data"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, fmt.Errorf("parse templates response: %w", err)
	}
	return result.Data, nil
}
