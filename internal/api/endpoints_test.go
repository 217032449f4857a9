package api

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/akunesiateam/akunchatlagi-sub002/internal/database"
	"github.com/akunesiateam/akunchatlagi-sub002/internal/models"
	"github.com/akunesiateam/akunchatlagi-sub002/internal/store"
)

func newEndpointFixture(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	f := &apiFixture{store: store.NewStore(db)}
	endpoints := NewEndpointHandler(f.store)

	f.router = gin.New()
	f.router.GET("/api/webhooks", endpoints.GetEndpoints)
	f.router.POST("/api/webhooks", endpoints.CreateEndpoint)
	f.router.PUT("/api/webhooks/:id", endpoints.UpdateEndpoint)
	f.router.DELETE("/api/webhooks/:id", endpoints.DeleteEndpoint)
	f.router.GET("/api/webhooks/:id/logs", endpoints.GetEndpointLogs)
	return f
}

func TestCreateEndpointIssuesUUID(t *testing.T) {
	f := newEndpointFixture(t)

	w := f.do(http.MethodPost, "/api/webhooks", `{"name":"orders","template_id":"tpl-1","phone_path":"customer.phone","tenant_id":1}`)
	require.Equal(t, http.StatusCreated, w.Code)

	var created models.WebhookEndpoint
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Len(t, created.UUID, 36)
	assert.Equal(t, "POST", created.Method)
	assert.True(t, created.Active)
}

func TestCreateEndpointRejectsBadMappings(t *testing.T) {
	f := newEndpointFixture(t)

	w := f.do(http.MethodPost, "/api/webhooks", `{"name":"orders","field_mappings":"{not a list"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateEndpointKeepsUUID(t *testing.T) {
	f := newEndpointFixture(t)

	endpoint := models.WebhookEndpoint{TenantID: 1, UUID: "11111111-2222-3333-4444-555555555555", Name: "orders", Active: true}
	require.NoError(t, f.store.DB().Create(&endpoint).Error)

	w := f.do(http.MethodPut, "/api/webhooks/1", `{"name":"renamed","active":false}`)
	assert.Equal(t, http.StatusOK, w.Code)

	reloaded, err := f.store.GetEndpoint(endpoint.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", reloaded.Name)
	assert.False(t, reloaded.Active)
	assert.Equal(t, endpoint.UUID, reloaded.UUID, "the receiver URL never changes")
}

func TestEndpointLogsListing(t *testing.T) {
	f := newEndpointFixture(t)

	endpoint := models.WebhookEndpoint{TenantID: 1, UUID: "11111111-2222-3333-4444-555555555555", Name: "orders", Active: true}
	require.NoError(t, f.store.DB().Create(&endpoint).Error)
	require.NoError(t, f.store.DB().Create(&models.WebhookActivityLog{WebhookEndpointID: endpoint.ID, SendStatus: models.SendSent}).Error)
	require.NoError(t, f.store.DB().Create(&models.WebhookActivityLog{WebhookEndpointID: endpoint.ID, SendStatus: models.SendFailed}).Error)

	w := f.do(http.MethodGet, "/api/webhooks/1/logs", "")
	require.Equal(t, http.StatusOK, w.Code)
	var logs []models.WebhookActivityLog
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &logs))
	assert.Len(t, logs, 2)

	w = f.do(http.MethodGet, "/api/webhooks/1/logs?status=failed", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &logs))
	require.Len(t, logs, 1)
	assert.Equal(t, models.SendFailed, logs[0].SendStatus)
}
