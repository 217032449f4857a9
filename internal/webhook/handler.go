// Package webhook is the inbound HTTP surface: tenant-defined receiver
// endpoints that turn third-party callbacks into queued dispatch work, and
// the Meta platform webhook for verification and delivery status updates.
package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/akunesiateam/akunchatlagi-sub002/internal/config"
	"github.com/akunesiateam/akunchatlagi-sub002/internal/models"
	"github.com/akunesiateam/akunchatlagi-sub002/internal/queue"
	"github.com/akunesiateam/akunchatlagi-sub002/internal/store"
)

// SecretHeader carries the shared secret for receiver endpoints that
// configure one. A "secret" query parameter is accepted as a fallback for
// callers that cannot set headers.
const SecretHeader = "X-Webhook-Secret"

// optOutKeywords are inbound text bodies treated as an opt-out request.
var optOutKeywords = map[string]bool{
	"stop":        true,
	"unsubscribe": true,
	"berhenti":    true,
}

type Handler struct {
	Config    *config.Config
	Store     *store.Store
	Queue     queue.TaskQueue
	QueueName string
}

func NewHandler(cfg *config.Config, st *store.Store, q queue.TaskQueue) *Handler {
	return &Handler{
		Config:    cfg,
		Store:     st,
		Queue:     q,
		QueueName: cfg.WebhookQueue,
	}
}

// Receive accepts one third-party delivery on a tenant receiver endpoint.
// The payload is stored verbatim and all interpretation happens in the
// worker; the receiver only validates the endpoint configuration.
func (h *Handler) Receive(c *gin.Context) {
	uuid := c.Param("uuid")

	endpoint, err := h.Store.GetEndpointByUUID(uuid)
	if err != nil {
		log.WithError(err).Error("Endpoint lookup failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if endpoint == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Webhook endpoint not found"})
		return
	}
	if !endpoint.Active {
		c.JSON(http.StatusGone, gin.H{"error": "Webhook endpoint is disabled"})
		return
	}
	if endpoint.Method != "" && c.Request.Method != endpoint.Method {
		c.Header("Allow", endpoint.Method)
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "Method not allowed for this endpoint"})
		return
	}
	if endpoint.Secret != "" && !h.secretMatches(c, endpoint.Secret) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid webhook secret"})
		return
	}

	payload, err := h.readPayload(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unable to read request body"})
		return
	}

	logRow := models.WebhookActivityLog{
		TenantID:          endpoint.TenantID,
		WebhookEndpointID: endpoint.ID,
		Payload:           payload,
		SendStatus:        models.SendPending,
	}
	if err := h.Store.CreateActivityLog(&logRow); err != nil {
		log.WithError(err).Error("Failed to create activity log")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	job := queue.Job{
		LogID:      logRow.ID,
		EndpointID: endpoint.ID,
		TenantID:   endpoint.TenantID,
	}
	if err := h.Queue.Publish(c.Request.Context(), h.QueueName, job); err != nil {
		// The log row stays pending; a requeue sweep can pick it up later.
		log.WithError(err).WithField("log_id", logRow.ID).Error("Failed to enqueue webhook job")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	log.WithFields(log.Fields{
		"endpoint": endpoint.UUID,
		"log_id":   logRow.ID,
	}).Info("Webhook delivery accepted")
	c.JSON(http.StatusAccepted, gin.H{"status": "queued", "log_id": logRow.ID})
}

func (h *Handler) secretMatches(c *gin.Context, secret string) bool {
	if c.GetHeader(SecretHeader) == secret {
		return true
	}
	return c.Query("secret") == secret
}

// readPayload returns the stored payload text. GET deliveries carry their
// data in the query string, which is folded into a flat JSON object so the
// worker's path extraction works the same either way.
func (h *Handler) readPayload(c *gin.Context) (string, error) {
	if c.Request.Method == http.MethodGet {
		params := map[string]string{}
		for key, values := range c.Request.URL.Query() {
			if key == "secret" || len(values) == 0 {
				continue
			}
			params[key] = values[0]
		}
		encoded, err := json.Marshal(params)
		return string(encoded), err
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// VerifyPlatformWebhook answers Meta's subscription handshake.
func (h *Handler) VerifyPlatformWebhook(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode == "" || token == "" {
		c.Status(http.StatusBadRequest)
		return
	}
	if mode == "subscribe" && token == h.Config.VerifyToken {
		log.Info("Platform webhook verified")
		c.String(http.StatusOK, challenge)
		return
	}
	c.Status(http.StatusForbidden)
}

// HandlePlatformCallback processes Meta's webhook posts: delivery status
// updates for messages this platform sent, and inbound opt-out keywords.
func (h *Handler) HandlePlatformCallback(c *gin.Context) {
	var payload MetaCallbackPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		log.WithError(err).Warn("Malformed platform callback")
		c.Status(http.StatusBadRequest)
		return
	}

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			for _, status := range change.Value.Statuses {
				if err := h.Store.UpdateDeliveryStatus(status.ID, status.Status); err != nil {
					log.WithError(err).WithField("message_id", status.ID).
						Error("Failed to record delivery status")
				}
			}
			for _, message := range change.Value.Messages {
				if message.Type != "text" {
					continue
				}
				h.handleInboundText(c.Request.Context(), message.From, message.Text.Body)
			}
		}
	}

	// Meta expects a 200 regardless of how much of the batch was usable.
	c.Status(http.StatusOK)
}

func (h *Handler) handleInboundText(_ context.Context, from, body string) {
	if !optOutKeywords[strings.ToLower(strings.TrimSpace(body))] {
		return
	}
	if err := h.Store.SetContactOptOut(from, true); err != nil {
		log.WithError(err).WithField("wa_id", from).Error("Failed to record opt-out")
		return
	}
	log.WithField("wa_id", from).Info("Contact opted out via keyword")
}
