package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"fieldops/internal/model"
	"fieldops/internal/service"
)

// CommissionHandler exposes accrued commissions to agents and payroll
type CommissionHandler struct {
	commissionService *service.CommissionService
}

// NewCommissionHandler creates a new commission handler
func NewCommissionHandler(commissionService *service.CommissionService) *CommissionHandler {
	return &CommissionHandler{commissionService: commissionService}
}

// ListMine returns the agent's own commission lines
// @Summary My commissions
// @Tags Commissions
// @Produce json
// @Security BearerAuth
// @Param status query string false "Status filter (pending, approved, paid)"
// @Param from_date query string false "From date (YYYY-MM-DD)"
// @Param to_date query string false "To date (YYYY-MM-DD)"
// @Success 200 {object} map[string]interface{}
// @Router /commissions [get]
func (h *CommissionHandler) ListMine(c *gin.Context) {
	var q model.CommissionListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	lines, err := h.commissionService.ListForAgent(c.Request.Context(), c.GetString("tenantID"), c.GetString("agentID"), &q)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data":  lines,
		"count": len(lines),
		"total": service.TotalAmount(lines),
	})
}

// ListTenant returns all commission lines in the tenant, for payroll
// @Summary Tenant commissions
// @Tags Commissions
// @Produce json
// @Security BearerAuth
// @Param status query string false "Status filter"
// @Param from_date query string false "From date (YYYY-MM-DD)"
// @Param to_date query string false "To date (YYYY-MM-DD)"
// @Success 200 {object} map[string]interface{}
// @Router /commissions/all [get]
func (h *CommissionHandler) ListTenant(c *gin.Context) {
	var q model.CommissionListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	lines, err := h.commissionService.ListForTenant(c.Request.Context(), c.GetString("tenantID"), &q)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data":  lines,
		"count": len(lines),
		"total": service.TotalAmount(lines),
	})
}

// UpdateStatus advances a commission line (payroll only)
// @Summary Update commission status
// @Description Moves a line along pending -> approved -> paid
// @Tags Commissions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Commission line ID"
// @Param request body model.UpdateCommissionStatusRequest true "New status"
// @Success 200 {object} model.CommissionLine
// @Failure 400 {object} map[string]interface{}
// @Failure 404 {object} map[string]string
// @Router /commissions/{id}/status [post]
func (h *CommissionHandler) UpdateStatus(c *gin.Context) {
	var req model.UpdateCommissionStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	line, err := h.commissionService.UpdateStatus(c.Request.Context(), c.GetString("tenantID"), c.Param("id"), req.Status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, line)
}

// Summary aggregates the agent's commissions month to date
// @Summary Commission summary
// @Tags Commissions
// @Produce json
// @Security BearerAuth
// @Success 200 {object} model.CommissionSummary
// @Router /commissions/summary [get]
func (h *CommissionHandler) Summary(c *gin.Context) {
	now := time.Now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	summary, err := h.commissionService.Summary(c.Request.Context(), c.GetString("tenantID"), c.GetString("agentID"), monthStart)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// Export downloads the agent's commission statement as an Excel file
// @Summary Export commission statement
// @Tags Commissions
// @Produce application/octet-stream
// @Security BearerAuth
// @Param status query string false "Status filter"
// @Param from_date query string false "From date (YYYY-MM-DD)"
// @Param to_date query string false "To date (YYYY-MM-DD)"
// @Success 200 {file} binary
// @Router /commissions/export [get]
func (h *CommissionHandler) Export(c *gin.Context) {
	var q model.CommissionListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	buf, err := h.commissionService.ExportStatement(c.Request.Context(), c.GetString("tenantID"), c.GetString("agentID"), &q)
	if err != nil {
		respondError(c, err)
		return
	}

	filename := fmt.Sprintf("commission-statement-%s.xlsx", time.Now().Format("20060102"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}
