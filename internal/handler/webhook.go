package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"fieldops/internal/model"
	"fieldops/internal/service"
)

// WebhookHandler manages webhook endpoints (payroll, BI, etc.)
type WebhookHandler struct {
	webhookService *service.WebhookService
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(webhookService *service.WebhookService) *WebhookHandler {
	return &WebhookHandler{webhookService: webhookService}
}

// RegisterRoutes registers webhook routes
func (h *WebhookHandler) RegisterRoutes(r *gin.RouterGroup) {
	webhooks := r.Group("/webhooks")
	webhooks.Use(RequireRole("admin", "manager"))
	{
		webhooks.GET("", h.ListWebhooks)
		webhooks.POST("", h.CreateWebhook)
		webhooks.GET("/events", h.GetEventTypes)
		webhooks.GET("/:id", h.GetWebhook)
		webhooks.DELETE("/:id", h.DeleteWebhook)
		webhooks.POST("/:id/toggle", h.ToggleWebhook)
	}
}

// ListWebhooks returns the tenant's webhooks
func (h *WebhookHandler) ListWebhooks(c *gin.Context) {
	webhooks, err := h.webhookService.List(c.Request.Context(), c.GetString("tenantID"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data":  webhooks,
		"count": len(webhooks),
	})
}

// GetWebhook returns one webhook
func (h *WebhookHandler) GetWebhook(c *gin.Context) {
	webhook, err := h.webhookService.Get(c.Request.Context(), c.GetString("tenantID"), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "webhook not found"})
		return
	}
	c.JSON(http.StatusOK, webhook)
}

// CreateWebhook registers a new endpoint
func (h *WebhookHandler) CreateWebhook(c *gin.Context) {
	var req model.CreateWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.Events) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "events cannot be empty"})
		return
	}

	webhook, err := h.webhookService.Create(c.Request.Context(), c.GetString("tenantID"), &req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, webhook)
}

// DeleteWebhook removes an endpoint
func (h *WebhookHandler) DeleteWebhook(c *gin.Context) {
	if err := h.webhookService.Delete(c.Request.Context(), c.GetString("tenantID"), c.Param("id")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "webhook deleted"})
}

// ToggleWebhook flips an endpoint between active and inactive
func (h *WebhookHandler) ToggleWebhook(c *gin.Context) {
	status, err := h.webhookService.ToggleStatus(c.Request.Context(), c.GetString("tenantID"), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": status})
}

// GetEventTypes lists subscribable event types
func (h *WebhookHandler) GetEventTypes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"events": []model.WebhookEventType{
			model.WebhookEventVisitCheckedIn,
			model.WebhookEventVisitCheckedOut,
			model.WebhookEventVisitCancelled,
			model.WebhookEventCommissionAccrued,
			model.WebhookEventAll,
		},
	})
}
