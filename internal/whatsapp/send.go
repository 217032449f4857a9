package whatsapp

import (
	"encoding/json"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/akunesiateam/akunchatlagi-sub002/internal/fields"
)

// SendResult is the normalized outcome of one template send attempt. The
// adapter always returns a result; provider rejections never surface as
// errors past this boundary.
type SendResult struct {
	Success      bool
	MessageID    string
	ErrorMessage string
	HTTPStatus   int
	RawBody      string
}

// TemplateSend describes one fully rendered template message.
type TemplateSend struct {
	To           string
	Name         string
	Language     string
	HeaderFormat string   // TEXT, IMAGE, VIDEO, DOCUMENT or empty
	HeaderParams []string // used when HeaderFormat is TEXT
	HeaderLink   string   // public media URL for non-text headers
	BodyParams   []string
	Buttons      []ButtonDef
	FlowContext  map[string]interface{} // JSON-encoded into the flow token
}

// ButtonDef is a button slot from the template definition. Only flow-type
// buttons affect the outgoing payload.
type ButtonDef struct {
	Type   string
	FlowID string
}

// TemplateMeta is the subset of a synced template definition the dispatch
// pipelines need.
type TemplateMeta struct {
	HeaderFormat string
	BodyText     string
	FooterText   string
	Buttons      []ButtonDef
}

// ParseComponents decodes the components JSON stored on a synced template.
func ParseComponents(componentsJSON string) (TemplateMeta, error) {
	var meta TemplateMeta
	if componentsJSON == "" {
		return meta, nil
	}

	var components []struct {
		Type    string `json:"type"`
		Format  string `json:"format"`
		Text    string `json:"text"`
		Buttons []struct {
			Type   string `json:"type"`
			FlowID string `json:"flow_id"`
		} `json:"buttons"`
	}
	if err := json.Unmarshal([]byte(componentsJSON), &components); err != nil {
		return meta, fmt.Errorf("parse template components: %w", err)
	}

	for _, comp := range components {
		switch strings.ToUpper(comp.Type) {
		case "HEADER":
			meta.HeaderFormat = strings.ToUpper(comp.Format)
		case "BODY":
			meta.BodyText = comp.Text
		case "FOOTER":
			meta.FooterText = comp.Text
		case "BUTTONS":
			for _, b := range comp.Buttons {
				meta.Buttons = append(meta.Buttons, ButtonDef{
					Type:   strings.ToUpper(b.Type),
					FlowID: b.FlowID,
				})
			}
		}
	}
	return meta, nil
}

// buildComponents assembles the header/body/button component list for a
// template send. A TEXT header gets text parameters; any other header format
// attaches the public media link instead. At most one flow action is
// appended, referencing the first flow button in the definition.
func buildComponents(t TemplateSend) []ComponentObj {
	var components []ComponentObj

	switch {
	case t.HeaderFormat == "TEXT" && len(t.HeaderParams) > 0:
		params := make([]ParameterObj, 0, len(t.HeaderParams))
		for _, p := range t.HeaderParams {
			params = append(params, ParameterObj{Type: "text", Text: fields.PadBlank(p)})
		}
		components = append(components, ComponentObj{Type: "header", Parameters: params})
	case t.HeaderFormat != "" && t.HeaderFormat != "TEXT" && t.HeaderLink != "":
		media := &MediaObj{Link: t.HeaderLink}
		param := ParameterObj{Type: strings.ToLower(t.HeaderFormat)}
		switch t.HeaderFormat {
		case "IMAGE":
			param.Image = media
		case "VIDEO":
			param.Video = media
		case "DOCUMENT":
			param.Document = media
		default:
			param.Image = media
		}
		components = append(components, ComponentObj{Type: "header", Parameters: []ParameterObj{param}})
	}

	if len(t.BodyParams) > 0 {
		params := make([]ParameterObj, 0, len(t.BodyParams))
		for _, p := range t.BodyParams {
			params = append(params, ParameterObj{Type: "text", Text: fields.PadBlank(p)})
		}
		components = append(components, ComponentObj{Type: "body", Parameters: params})
	}

	for _, btn := range t.Buttons {
		if btn.Type != "FLOW" {
			continue
		}
		action := &FlowAction{FlowID: btn.FlowID}
		if t.FlowContext != nil {
			if token, err := json.Marshal(t.FlowContext); err == nil {
				action.FlowToken = string(token)
			}
		}
		components = append(components, ComponentObj{
			Type:       "button",
			SubType:    "flow",
			Index:      "0",
			Parameters: []ParameterObj{{Type: "action", Action: action}},
		})
		break
	}

	return components
}

// SendTemplate performs exactly one send call against the provider and
// normalizes the outcome. Transport failures, provider rejections and
// success all come back as a SendResult.
func (c *Client) SendTemplate(t TemplateSend) SendResult {
	msg := TemplateMessage{
		MessagingProduct: "whatsapp",
		To:               t.To,
		Type:             "template",
		Template: &TemplateObj{
			Name:       t.Name,
			Language:   LanguageObj{Code: t.Language},
			Components: buildComponents(t),
		},
	}

	url := fmt.Sprintf("%s/%s/messages", c.BaseURL, c.Config.PhoneNumberID)
	body, status, err := c.post(url, msg)

	logger := log.WithFields(log.Fields{
		"to":       t.To,
		"template": t.Name,
		"language": t.Language,
		"status":   status,
	})

	if err != nil {
		logger.WithError(err).Error("Template send transport failure")
		return SendResult{Success: false, ErrorMessage: err.Error(), HTTPStatus: status}
	}

	raw := string(body)

	if status >= 200 && status < 300 {
		var resp sendResponse
		if jsonErr := json.Unmarshal(body, &resp); jsonErr == nil && len(resp.Messages) > 0 {
			logger.WithField("message_id", resp.Messages[0].ID).Info("Template message sent")
			return SendResult{Success: true, MessageID: resp.Messages[0].ID, HTTPStatus: status, RawBody: raw}
		}
		logger.WithField("body", raw).Warn("Send succeeded but response carried no message id")
		return SendResult{Success: true, HTTPStatus: status, RawBody: raw}
	}

	logger.WithField("body", raw).Warn("Template send rejected by provider")
	return SendResult{
		Success:      false,
		ErrorMessage: extractErrorMessage(body, fmt.Sprintf("provider returned HTTP %d", status)),
		HTTPStatus:   status,
		RawBody:      raw,
	}
}

// extractErrorMessage follows the documented precedence: the structured
// error.message if present, then the raw body, then the fallback text.
func extractErrorMessage(body []byte, fallback string) string {
	var parsed apiError
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		return parsed.Error.Message
	}
	if raw := strings.TrimSpace(string(body)); raw != "" {
		return raw
	}
	return fallback
}
