package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"fieldops/internal/config"
	"fieldops/internal/geo"
	"fieldops/internal/model"
	"fieldops/internal/service"
)

// GPSHandler handles trail logging and proximity checks
type GPSHandler struct {
	trailService    *service.TrailService
	customerService *service.CustomerService
	geofence        config.GeofenceConfig
}

// NewGPSHandler creates a new GPS handler
func NewGPSHandler(trailService *service.TrailService, customerService *service.CustomerService, geofence config.GeofenceConfig) *GPSHandler {
	return &GPSHandler{
		trailService:    trailService,
		customerService: customerService,
		geofence:        geofence,
	}
}

// LogSample appends one GPS sample to the agent's trail
// @Summary Log a GPS sample
// @Tags GPS
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body model.LogSampleRequest true "Sample payload"
// @Success 201 {object} model.GPSSample
// @Failure 400 {object} map[string]string
// @Router /gps/log [post]
func (h *GPSHandler) LogSample(c *gin.Context) {
	var req model.LogSampleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sample, err := h.trailService.LogSample(c.Request.Context(), c.GetString("tenantID"), c.GetString("agentID"), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sample)
}

// GetTrack returns an agent's movement trail
// @Summary Agent movement trail
// @Description Returns GPS samples ordered by recorded time, newest first
// @Tags GPS
// @Produce json
// @Security BearerAuth
// @Param agent_id path string true "Agent ID"
// @Param from_date query string false "From date (YYYY-MM-DD)"
// @Param to_date query string false "To date (YYYY-MM-DD)"
// @Param activity_type query string false "Activity type filter"
// @Param limit query int false "Max samples" default(500)
// @Success 200 {object} map[string]interface{}
// @Router /gps/agents/{agent_id}/track [get]
func (h *GPSHandler) GetTrack(c *gin.Context) {
	agentID := c.Param("agent_id")
	// Agents may only read their own trail.
	if role := c.GetString("role"); role == "agent" && agentID != c.GetString("agentID") {
		c.JSON(http.StatusForbidden, gin.H{"error": "insufficient permissions"})
		return
	}

	var q model.TrackQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if q.Limit <= 0 {
		q.Limit = 500
	}

	samples, err := h.trailService.Track(c.Request.Context(), c.GetString("tenantID"), agentID, &q)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"agent_id": agentID,
		"data":     samples,
		"count":    len(samples),
	})
}

// GetShadow returns an agent's latest known position
// @Summary Latest agent position
// @Tags GPS
// @Produce json
// @Security BearerAuth
// @Param agent_id path string true "Agent ID"
// @Success 200 {object} model.AgentShadow
// @Failure 404 {object} map[string]string
// @Router /gps/agents/{agent_id}/shadow [get]
func (h *GPSHandler) GetShadow(c *gin.Context) {
	shadow, err := h.trailService.Shadow(c.Request.Context(), c.GetString("tenantID"), c.Param("agent_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if shadow == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no recent position"})
		return
	}
	c.JSON(http.StatusOK, shadow)
}

// ValidateProximityRequest is the payload for POST /gps/validate-proximity.
type ValidateProximityRequest struct {
	CustomerID string   `json:"customer_id" binding:"required"`
	Latitude   *float64 `json:"latitude" binding:"required"`
	Longitude  *float64 `json:"longitude" binding:"required"`
	Accuracy   float64  `json:"accuracy"`
	Radius     float64  `json:"radius"`
}

// ValidateProximity scores the agent's fix against a customer location
// @Summary Validate proximity to a customer
// @Description Dry-run distance check, does not open a visit
// @Tags GPS
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body ValidateProximityRequest true "Proximity payload"
// @Success 200 {object} geo.Proximity
// @Failure 400 {object} map[string]interface{}
// @Failure 404 {object} map[string]string
// @Router /gps/validate-proximity [post]
func (h *GPSHandler) ValidateProximity(c *gin.Context) {
	var req ValidateProximityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	radius := req.Radius
	if radius <= 0 {
		radius = h.geofence.CheckInRadiusMeters
	}

	target, _, err := h.customerService.Location(c.Request.Context(), c.GetString("tenantID"), req.CustomerID)
	if err != nil {
		respondError(c, err)
		return
	}

	fix := geo.Fix{
		Point:    geo.Point{Latitude: *req.Latitude, Longitude: *req.Longitude},
		Accuracy: req.Accuracy,
	}
	prox, err := geo.ValidateProximity(fix, target, radius)
	if err != nil {
		respondError(c, err)
		return
	}

	// The pre-check leaves a trail sample so dispatchers can see failed
	// attempts to reach a customer.
	_, _ = h.trailService.LogSample(c.Request.Context(), c.GetString("tenantID"), c.GetString("agentID"), &model.LogSampleRequest{
		Latitude:      req.Latitude,
		Longitude:     req.Longitude,
		Accuracy:      req.Accuracy,
		ActivityType:  model.ActivityProximityCheck,
		ReferenceType: "customer",
		ReferenceID:   req.CustomerID,
	})

	c.JSON(http.StatusOK, prox)
}

// UpdateCustomerLocation re-registers a customer's coordinates
// @Summary Update customer location
// @Description Stores new customer coordinates and versions the previous ones
// @Tags GPS
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body model.UpdateCustomerLocationRequest true "Location payload"
// @Success 200 {object} map[string]string
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /gps/customer-location [put]
func (h *GPSHandler) UpdateCustomerLocation(c *gin.Context) {
	var req model.UpdateCustomerLocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.customerService.UpdateLocation(c.Request.Context(), c.GetString("tenantID"), c.GetString("agentID"), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "customer location updated"})
}

// GetCustomerLocation returns a customer's stored coordinates
// @Summary Customer location
// @Tags GPS
// @Produce json
// @Security BearerAuth
// @Param customer_id path string true "Customer ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]string
// @Router /gps/customer-location/{customer_id} [get]
func (h *GPSHandler) GetCustomerLocation(c *gin.Context) {
	customerID := c.Param("customer_id")
	p, accuracy, err := h.customerService.Location(c.Request.Context(), c.GetString("tenantID"), customerID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"customer_id": customerID,
		"latitude":    p.Latitude,
		"longitude":   p.Longitude,
		"accuracy":    accuracy,
	})
}
