package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"fieldops/internal/config"
	"fieldops/internal/geo"
	"fieldops/internal/service"
)

// CustomerHandler exposes the customer read model to field agents
type CustomerHandler struct {
	customerService *service.CustomerService
	geofence        config.GeofenceConfig
}

// NewCustomerHandler creates a new customer handler
func NewCustomerHandler(customerService *service.CustomerService, geofence config.GeofenceConfig) *CustomerHandler {
	return &CustomerHandler{customerService: customerService, geofence: geofence}
}

// Get returns one customer
// @Summary Get customer
// @Tags Customers
// @Produce json
// @Security BearerAuth
// @Param id path string true "Customer ID"
// @Success 200 {object} model.Customer
// @Failure 404 {object} map[string]string
// @Router /customers/{id} [get]
func (h *CustomerHandler) Get(c *gin.Context) {
	customer, err := h.customerService.Get(c.Request.Context(), c.GetString("tenantID"), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, customer)
}

// Nearby returns customers close to the given fix
// @Summary Nearby customers
// @Description Customers with stored coordinates within the radius, nearest first
// @Tags Customers
// @Produce json
// @Security BearerAuth
// @Param latitude query number true "Agent latitude"
// @Param longitude query number true "Agent longitude"
// @Param radius query number false "Radius in meters" default(1000)
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]string
// @Router /customers/nearby [get]
func (h *CustomerHandler) Nearby(c *gin.Context) {
	lat, err := strconv.ParseFloat(c.Query("latitude"), 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid latitude"})
		return
	}
	lon, err := strconv.ParseFloat(c.Query("longitude"), 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid longitude"})
		return
	}
	radius := h.geofence.NearbyRadiusMeters
	if raw := c.Query("radius"); raw != "" {
		if r, err := strconv.ParseFloat(raw, 64); err == nil && r > 0 {
			radius = r
		}
	}

	fix := geo.Fix{Point: geo.Point{Latitude: lat, Longitude: lon}}
	customers, err := h.customerService.Nearby(c.Request.Context(), c.GetString("tenantID"), fix, radius)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data":          customers,
		"count":         len(customers),
		"radius_meters": radius,
	})
}
