package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"fieldops/internal/model"
	"fieldops/internal/service"
)

// VisitHandler handles the field visit workflow endpoints
type VisitHandler struct {
	visitService *service.VisitService
}

// NewVisitHandler creates a new visit handler
func NewVisitHandler(visitService *service.VisitService) *VisitHandler {
	return &VisitHandler{visitService: visitService}
}

// CheckIn opens a visit at the customer's location
// @Summary Check in at a customer
// @Description Validates the agent's GPS fix against the stored customer location and opens the visit with its task list
// @Tags Field
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body model.CheckInRequest true "Check-in payload"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Failure 404 {object} map[string]string
// @Router /field/check-in [post]
func (h *VisitHandler) CheckIn(c *gin.Context) {
	var req model.CheckInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	visit, prox, err := h.visitService.CheckIn(c.Request.Context(), c.GetString("tenantID"), c.GetString("agentID"), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"visit":     visit,
		"proximity": prox,
	})
}

// GetTasks returns the task list of a visit
// @Summary Visit task list
// @Tags Field
// @Produce json
// @Security BearerAuth
// @Param visit_id path string true "Visit ID"
// @Param brand_ids query string false "Comma-separated brand IDs"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]string
// @Router /field/visits/{visit_id}/tasks [get]
func (h *VisitHandler) GetTasks(c *gin.Context) {
	var brandIDs []string
	if raw := c.Query("brand_ids"); raw != "" {
		brandIDs = strings.Split(raw, ",")
	}

	visit, tasks, err := h.visitService.Tasks(c.Request.Context(), c.GetString("tenantID"), c.Param("visit_id"), brandIDs)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"visit_id":     visit.ID,
		"visit_status": visit.Status,
		"tasks":        tasks,
	})
}

// CompleteTask marks a task completed
// @Summary Complete a visit task
// @Tags Field
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body model.CompleteTaskRequest true "Completion payload"
// @Success 200 {object} model.Task
// @Failure 400 {object} map[string]interface{}
// @Router /field/visit-task/complete [post]
func (h *VisitHandler) CompleteTask(c *gin.Context) {
	var req model.CompleteTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	task, err := h.visitService.CompleteTask(c.Request.Context(), c.GetString("tenantID"), c.GetString("agentID"), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

// SkipTask marks an optional task skipped
// @Summary Skip an optional visit task
// @Tags Field
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body model.SkipTaskRequest true "Skip payload"
// @Success 200 {object} model.Task
// @Failure 400 {object} map[string]interface{}
// @Router /field/visit-task/skip [post]
func (h *VisitHandler) SkipTask(c *gin.Context) {
	var req model.SkipTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	task, err := h.visitService.SkipTask(c.Request.Context(), c.GetString("tenantID"), c.GetString("agentID"), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

// CheckOut closes the visit and accrues commissions
// @Summary Check out of a visit
// @Description Closes the visit if every mandatory task is done and accrues commission for completed tasks
// @Tags Field
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body model.CheckOutRequest true "Check-out payload"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Failure 404 {object} map[string]string
// @Router /field/check-out [post]
func (h *VisitHandler) CheckOut(c *gin.Context) {
	var req model.CheckOutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	visit, lines, err := h.visitService.CheckOut(c.Request.Context(), c.GetString("tenantID"), c.GetString("agentID"), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"visit":            visit,
		"commissions":      lines,
		"total_commission": visit.TotalCommission,
	})
}

// Schedule creates a future visit
// @Summary Schedule a visit
// @Tags Field
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body model.ScheduleVisitRequest true "Schedule payload"
// @Success 201 {object} model.Visit
// @Failure 400 {object} map[string]string
// @Router /field/visits [post]
func (h *VisitHandler) Schedule(c *gin.Context) {
	var req model.ScheduleVisitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	visit, err := h.visitService.Schedule(c.Request.Context(), c.GetString("tenantID"), c.GetString("agentID"), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, visit)
}

// Cancel cancels a visit
// @Summary Cancel a visit
// @Tags Field
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param visit_id path string true "Visit ID"
// @Success 200 {object} model.Visit
// @Failure 400 {object} map[string]interface{}
// @Failure 404 {object} map[string]string
// @Router /field/visits/{visit_id}/cancel [post]
func (h *VisitHandler) Cancel(c *gin.Context) {
	var req struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&req)

	visit, err := h.visitService.Cancel(c.Request.Context(), c.GetString("tenantID"), c.GetString("agentID"), c.Param("visit_id"), req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, visit)
}

// MyVisits lists the agent's visits
// @Summary List my visits
// @Tags Field
// @Produce json
// @Security BearerAuth
// @Param status query string false "Visit status filter"
// @Param from_date query string false "From date (YYYY-MM-DD)"
// @Param to_date query string false "To date (YYYY-MM-DD)"
// @Success 200 {object} map[string]interface{}
// @Router /field/my-visits [get]
func (h *VisitHandler) MyVisits(c *gin.Context) {
	var q model.VisitListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	visits, err := h.visitService.ListVisits(c.Request.Context(), c.GetString("tenantID"), c.GetString("agentID"), &q)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data":  visits,
		"count": len(visits),
	})
}

// Dashboard summarizes the agent's day
// @Summary Agent dashboard
// @Tags Field
// @Produce json
// @Security BearerAuth
// @Success 200 {object} model.AgentDashboard
// @Router /field/dashboard [get]
func (h *VisitHandler) Dashboard(c *gin.Context) {
	d, err := h.visitService.Dashboard(c.Request.Context(), c.GetString("tenantID"), c.GetString("agentID"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}
