package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Task statuses for campaign recipient tasks. A task starts pending and is
// moved exactly once to sent or failed by the dispatch worker.
const (
	TaskFailed  = 0
	TaskPending = 1
	TaskSent    = 2
)

// Send statuses for webhook activity logs.
const (
	SendPending = "pending"
	SendSent    = "sent"
	SendFailed  = "failed"
)

// Campaign represents an outbound template campaign
type Campaign struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	TenantID     uint      `gorm:"index" json:"tenant_id"`
	Name         string    `gorm:"type:varchar(255);not null" json:"name"`
	TemplateID   string    `gorm:"type:varchar(255)" json:"template_id"`
	Paused       bool      `gorm:"default:false" json:"paused"`
	ParamsJSON   string    `gorm:"type:text" json:"params_json"` // JSON array of body parameters, may contain {dot.path} placeholders
	HeaderLink   string    `gorm:"type:text" json:"header_link"` // public media URL for non-text headers
	Status       string    `gorm:"type:varchar(20);default:'draft'" json:"status"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Campaign) TableName() string {
	return "campaigns"
}

// Contact represents a WhatsApp contact
type Contact struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	TenantID  uint      `gorm:"index" json:"tenant_id"`
	WaID      string    `gorm:"type:varchar(50);index" json:"wa_id"` // WhatsApp ID (phone number)
	Name      string    `gorm:"type:varchar(255)" json:"name"`
	OptedOut  bool      `gorm:"default:false" json:"opted_out"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Contact) TableName() string {
	return "contacts"
}

// CampaignRecipientTask is one unit of dispatch work per (campaign, recipient).
// Created when a campaign is started, mutated exclusively by the worker.
type CampaignRecipientTask struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	CampaignID        uint      `gorm:"index;not null" json:"campaign_id"`
	TenantID          uint      `gorm:"index" json:"tenant_id"`
	ContactID         uint      `gorm:"index;not null" json:"contact_id"`
	Status            int       `gorm:"default:1;index" json:"status"` // 1=pending 2=sent 0=failed
	MessageStatus     string    `gorm:"type:varchar(50)" json:"message_status"`
	WhatsAppMessageID string    `gorm:"column:whatsapp_message_id;type:varchar(255)" json:"whatsapp_message_id"`
	ResponseMessage   string    `gorm:"type:text" json:"response_message"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (CampaignRecipientTask) TableName() string {
	return "campaign_recipient_tasks"
}

// Template represents a WhatsApp message template synced from Meta
type Template struct {
	ID         string `gorm:"primaryKey" json:"id"`
	Name       string `gorm:"type:varchar(255)" json:"name"`
	Language   string `gorm:"type:varchar(50)" json:"language"`
	Category   string `gorm:"type:varchar(100)" json:"category"`
	Status     string `gorm:"type:varchar(50)" json:"status"`
	Components string `gorm:"type:text" json:"components"` // JSON components as returned by Meta
}

func (Template) TableName() string {
	return "templates"
}

// FieldMapping maps a dot-notation path in an inbound payload to a template
// variable, with an optional default and an ordered transformation chain.
type FieldMapping struct {
	SourcePath       string           `json:"source_path"`
	TemplateVariable string           `json:"template_variable"`
	DefaultValue     string           `json:"default_value,omitempty"`
	Transformations  []Transformation `json:"transformations,omitempty"`
}

// Transformation is one step of a field mapping chain. Options carries
// kind-specific settings (prefix/suffix text, date format, replace pair).
type Transformation struct {
	Type    string            `json:"type"`
	Options map[string]string `json:"options,omitempty"`
}

// WebhookEndpoint is a tenant-owned inbound webhook receiver configuration.
// The UUID is issued once on creation and never changes.
type WebhookEndpoint struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	TenantID      uint      `gorm:"index" json:"tenant_id"`
	UUID          string    `gorm:"type:varchar(36);uniqueIndex;not null" json:"uuid"`
	Name          string    `gorm:"type:varchar(255)" json:"name"`
	Secret        string    `gorm:"type:varchar(255)" json:"-"`
	Method        string    `gorm:"type:varchar(10);default:'POST'" json:"method"`
	Active        bool      `gorm:"default:true" json:"active"`
	TemplateID    string    `gorm:"type:varchar(255)" json:"template_id"`
	PhonePath     string    `gorm:"type:varchar(255)" json:"phone_path"`     // dot path to the recipient phone in the payload
	FieldMappings string    `gorm:"type:text" json:"field_mappings"`         // JSON array of FieldMapping
	CreatedBy     uint      `json:"created_by"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (WebhookEndpoint) TableName() string {
	return "webhook_endpoints"
}

// ParseFieldMappings decodes the stored JSON mapping list. An empty column
// yields an empty slice.
func (e *WebhookEndpoint) ParseFieldMappings() ([]FieldMapping, error) {
	if e.FieldMappings == "" {
		return nil, nil
	}
	var mappings []FieldMapping
	if err := json.Unmarshal([]byte(e.FieldMappings), &mappings); err != nil {
		return nil, fmt.Errorf("parse field mappings for endpoint %s: %w", e.UUID, err)
	}
	return mappings, nil
}

// WebhookActivityLog is one row per inbound webhook delivery attempt.
// Created pending by the receiver, resolved exactly once by the worker.
type WebhookActivityLog struct {
	ID                uint       `gorm:"primaryKey" json:"id"`
	TenantID          uint       `gorm:"index" json:"tenant_id"`
	WebhookEndpointID uint       `gorm:"index;not null" json:"webhook_endpoint_id"`
	Payload           string     `gorm:"type:text" json:"payload"`          // raw inbound JSON
	ExtractedFields   string     `gorm:"type:text" json:"extracted_fields"` // JSON map, persisted before send
	RecipientPhone    string     `gorm:"type:varchar(50)" json:"recipient_phone"`
	WhatsAppMessageID string     `gorm:"column:whatsapp_message_id;type:varchar(255)" json:"whatsapp_message_id"`
	SendStatus        string     `gorm:"type:varchar(20);default:'pending';index" json:"send_status"`
	DeliveryStatus    string     `gorm:"type:varchar(20)" json:"delivery_status"` // sent|delivered|read|failed, from status callbacks
	FailureReason     string     `gorm:"type:text" json:"failure_reason"`
	MetaResponse      string     `gorm:"type:text" json:"meta_response"` // accumulating JSON audit trail
	ProcessedAt       *time.Time `json:"processed_at"`
	StatusUpdatedAt   *time.Time `json:"status_updated_at"`
	CreatedAt         time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (WebhookActivityLog) TableName() string {
	return "webhook_activity_logs"
}

// ParseMetaResponse decodes the accumulated meta_response blob. Corrupt or
// empty data yields an empty map so a merge can always proceed.
func (l *WebhookActivityLog) ParseMetaResponse() map[string]interface{} {
	meta := map[string]interface{}{}
	if l.MetaResponse != "" {
		_ = json.Unmarshal([]byte(l.MetaResponse), &meta)
	}
	return meta
}

// MergeMetaResponse adds the given keys to meta_response, preserving existing
// ones. The blob is an audit trail across processing attempts, never replaced.
func (l *WebhookActivityLog) MergeMetaResponse(updates map[string]interface{}) error {
	meta := l.ParseMetaResponse()
	for k, v := range updates {
		meta[k] = v
	}
	encoded, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode meta response for log %d: %w", l.ID, err)
	}
	l.MetaResponse = string(encoded)
	return nil
}
