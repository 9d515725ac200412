package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"fieldops/internal/config"
	"fieldops/internal/errs"
	"fieldops/internal/geo"
	"fieldops/internal/model"
	"fieldops/internal/store"
)

const activeVisitTTL = 12 * time.Hour

// VisitService drives the visit state machine: geofenced check-in, task
// progression, and check-out with commission accrual. All state mutations of
// one visit run under a row lock so concurrent submissions serialize.
type VisitService struct {
	store     store.Store
	redis     *redis.Client
	nats      *nats.Conn
	customers *CustomerService
	geofence  config.GeofenceConfig
	rates     config.RateTable
}

// NewVisitService creates a new visit service.
func NewVisitService(st store.Store, redisClient *redis.Client, nc *nats.Conn, customers *CustomerService, geofence config.GeofenceConfig, rates config.RateTable) *VisitService {
	return &VisitService{
		store:     st,
		redis:     redisClient,
		nats:      nc,
		customers: customers,
		geofence:  geofence,
		rates:     rates,
	}
}

func activeVisitKey(tenantID, agentID string) string {
	return fmt.Sprintf("fieldops:visit:active:%s:%s", tenantID, agentID)
}

// CheckIn validates the agent's position against the customer's stored
// location and opens the visit. The task list is generated in the same
// transaction, so a visit is never observable in progress without its tasks.
func (s *VisitService) CheckIn(ctx context.Context, tenantID, agentID string, req *model.CheckInRequest) (*model.Visit, geo.Proximity, error) {
	fix := geo.Fix{
		Point:    geo.Point{Latitude: *req.Latitude, Longitude: *req.Longitude},
		Accuracy: req.Accuracy,
	}

	target, _, err := s.customers.Location(ctx, tenantID, req.CustomerID)
	if err != nil {
		return nil, geo.Proximity{}, err
	}
	prox, err := geo.ValidateProximity(fix, target, s.geofence.CheckInRadiusMeters)
	if err != nil {
		return nil, geo.Proximity{}, err
	}
	if !prox.WithinRadius {
		return nil, prox, errs.LocationRejected(prox.DistanceMeters, s.geofence.CheckInRadiusMeters)
	}

	if active := s.activeVisitID(ctx, tenantID, agentID); active != "" && active != req.VisitID {
		return nil, prox, errs.StateConflict(
			"agent already has an active visit",
			map[string]interface{}{"visit_id": active},
		)
	}

	now := time.Now().UTC()
	var visit *model.Visit
	err = s.store.Atomically(ctx, func(st store.Store) error {
		var err error
		visit, err = s.openVisit(ctx, st, tenantID, agentID, req, now)
		if err != nil {
			return err
		}
		if visit.CheckInTime != nil && !visit.CheckInTime.Equal(now) {
			// Retried check-in against an already open visit; keep the
			// original check-in record.
			if len(req.BrandIDs) > 0 {
				visit.Tasks, err = ensureTasks(ctx, st, visit, req.BrandIDs)
				return err
			}
			visit.Tasks, err = st.Tasks().ListByVisit(ctx, tenantID, visit.ID)
			return err
		}

		visit.Status = model.VisitInProgress
		visit.CheckInTime = &now
		visit.CheckInLatitude = req.Latitude
		visit.CheckInLongitude = req.Longitude
		if req.Accuracy > 0 {
			visit.CheckInAccuracy = &req.Accuracy
		}
		if err := st.Visits().Update(ctx, visit); err != nil {
			return err
		}

		// Brands omitted at check-in leave generation to the first task
		// list read, where the agent can still supply them.
		if len(req.BrandIDs) > 0 {
			if visit.Tasks, err = ensureTasks(ctx, st, visit, req.BrandIDs); err != nil {
				return err
			}
		}

		return st.Samples().Create(ctx, &model.GPSSample{
			ID:            uuid.New().String(),
			TenantID:      tenantID,
			AgentID:       agentID,
			Latitude:      fix.Latitude,
			Longitude:     fix.Longitude,
			Accuracy:      fix.Accuracy,
			ActivityType:  model.ActivityCheckIn,
			ReferenceType: "visit",
			ReferenceID:   visit.ID,
			RecordedAt:    now,
		})
	})
	if err != nil {
		return nil, prox, err
	}

	s.setActiveVisit(ctx, tenantID, agentID, visit.ID)
	publishEvent(s.nats, SubjectVisitCheckedIn, tenantID, visit)
	log.Printf("[Visit] Agent %s checked in at customer %s, visit %s (%.1fm, %s)",
		agentID, req.CustomerID, visit.ID, prox.DistanceMeters, prox.Confidence)
	return visit, prox, nil
}

// openVisit resolves the visit being checked into: a referenced scheduled
// visit, today's scheduled visit for the customer, or a fresh ad-hoc one.
func (s *VisitService) openVisit(ctx context.Context, st store.Store, tenantID, agentID string, req *model.CheckInRequest, now time.Time) (*model.Visit, error) {
	if req.VisitID != "" {
		visit, err := st.Visits().GetForUpdate(ctx, tenantID, req.VisitID)
		if err != nil {
			return nil, err
		}
		if visit.AgentID != agentID {
			return nil, errs.NotFound("visit %s not found", req.VisitID)
		}
		if visit.Status.Terminal() {
			return nil, errs.StateConflict(
				fmt.Sprintf("visit is already %s", visit.Status),
				map[string]interface{}{"visit_id": visit.ID, "status": visit.Status},
			)
		}
		return visit, nil
	}

	todays, err := st.Visits().ListByAgentOnDay(ctx, tenantID, agentID, now)
	if err != nil {
		return nil, err
	}
	for i := range todays {
		v := &todays[i]
		if v.CustomerID == req.CustomerID && v.Status == model.VisitScheduled {
			return st.Visits().GetForUpdate(ctx, tenantID, v.ID)
		}
	}

	visit := &model.Visit{
		ID:            uuid.New().String(),
		TenantID:      tenantID,
		AgentID:       agentID,
		CustomerID:    req.CustomerID,
		VisitType:     "field_visit",
		Status:        model.VisitScheduled,
		ScheduledDate: now,
	}
	if err := st.Visits().Create(ctx, visit); err != nil {
		return nil, err
	}
	return visit, nil
}

// Tasks returns the visit's task list. On an open visit the list is
// generated on first read, so clients that skipped brand ids at check-in
// can still supply them here. Generation holds the visit row lock so
// concurrent reads cannot each insert a list.
func (s *VisitService) Tasks(ctx context.Context, tenantID, visitID string, brandIDs []string) (*model.Visit, []model.Task, error) {
	var (
		visit *model.Visit
		tasks []model.Task
	)
	err := s.store.Atomically(ctx, func(st store.Store) error {
		var err error
		visit, err = st.Visits().GetForUpdate(ctx, tenantID, visitID)
		if err != nil {
			return err
		}
		if visit.Status == model.VisitInProgress {
			tasks, err = ensureTasks(ctx, st, visit, brandIDs)
			return err
		}
		tasks, err = st.Tasks().ListByVisit(ctx, tenantID, visitID)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return visit, tasks, nil
}

// CompleteTask marks a pending task completed. Completing an already
// completed task is a no-op so retried submissions stay safe.
func (s *VisitService) CompleteTask(ctx context.Context, tenantID, agentID string, req *model.CompleteTaskRequest) (*model.Task, error) {
	var task *model.Task
	err := s.store.Atomically(ctx, func(st store.Store) error {
		var err error
		task, err = s.taskOnOpenVisit(ctx, st, tenantID, req.TaskID)
		if err != nil {
			return err
		}
		switch task.Status {
		case model.TaskCompleted:
			return nil
		case model.TaskSkipped:
			return errs.StateConflict("task was skipped and cannot be completed",
				map[string]interface{}{"task_id": task.ID})
		}

		now := time.Now().UTC()
		task.Status = model.TaskCompleted
		task.CompletedBy = &agentID
		task.CompletedAt = &now
		if req.ResultData != nil {
			task.ResultData = req.ResultData
		}
		return st.Tasks().Update(ctx, task)
	})
	return task, err
}

// SkipTask marks an optional pending task skipped. Mandatory tasks cannot be
// skipped; that is what gates check-out.
func (s *VisitService) SkipTask(ctx context.Context, tenantID, agentID string, req *model.SkipTaskRequest) (*model.Task, error) {
	var task *model.Task
	err := s.store.Atomically(ctx, func(st store.Store) error {
		var err error
		task, err = s.taskOnOpenVisit(ctx, st, tenantID, req.TaskID)
		if err != nil {
			return err
		}
		if task.Mandatory {
			return errs.StateConflict("mandatory task cannot be skipped",
				map[string]interface{}{"task_id": task.ID})
		}
		switch task.Status {
		case model.TaskSkipped:
			return nil
		case model.TaskCompleted:
			return errs.StateConflict("completed task cannot be skipped",
				map[string]interface{}{"task_id": task.ID})
		}

		task.Status = model.TaskSkipped
		if req.Reason != "" {
			if task.ResultData == nil {
				task.ResultData = model.JSONMap{}
			}
			task.ResultData["skip_reason"] = req.Reason
		}
		return st.Tasks().Update(ctx, task)
	})
	return task, err
}

// taskOnOpenVisit loads the task and locks its visit, which must still be in
// progress for any task transition.
func (s *VisitService) taskOnOpenVisit(ctx context.Context, st store.Store, tenantID, taskID string) (*model.Task, error) {
	task, err := st.Tasks().Get(ctx, tenantID, taskID)
	if err != nil {
		return nil, err
	}
	visit, err := st.Visits().GetForUpdate(ctx, tenantID, task.VisitID)
	if err != nil {
		return nil, err
	}
	if visit.Status != model.VisitInProgress {
		return nil, errs.StateConflict(
			fmt.Sprintf("visit is %s, tasks can only change while in progress", visit.Status),
			map[string]interface{}{"visit_id": visit.ID, "status": visit.Status},
		)
	}
	return task, nil
}

// CheckOut closes the visit and accrues commissions for its completed tasks,
// all in one transaction. A visit with pending mandatory tasks cannot close;
// a visit that is not in progress reads as gone, matching what a retried
// check-out should see.
func (s *VisitService) CheckOut(ctx context.Context, tenantID, agentID string, req *model.CheckOutRequest) (*model.Visit, []model.CommissionLine, error) {
	if req.Latitude != nil && req.Longitude != nil {
		if err := geo.CheckPoint(geo.Point{Latitude: *req.Latitude, Longitude: *req.Longitude}); err != nil {
			return nil, nil, err
		}
	}
	if req.Rating != nil && (*req.Rating < 1 || *req.Rating > 5) {
		return nil, nil, errs.Validation("rating must be between 1 and 5")
	}

	now := time.Now().UTC()
	var visit *model.Visit
	var lines []model.CommissionLine
	err := s.store.Atomically(ctx, func(st store.Store) error {
		var err error
		visit, err = st.Visits().GetForUpdate(ctx, tenantID, req.VisitID)
		if err != nil {
			return err
		}
		if visit.AgentID != agentID || visit.Status != model.VisitInProgress {
			return errs.NotFound("visit not found or already completed")
		}

		tasks, err := st.Tasks().ListByVisit(ctx, tenantID, visit.ID)
		if err != nil {
			return err
		}
		var blocking []string
		for _, t := range tasks {
			if t.Mandatory && t.Status == model.TaskPending {
				blocking = append(blocking, t.ID)
			}
		}
		if len(blocking) > 0 {
			return errs.StateConflict(
				"cannot check out with mandatory tasks pending",
				map[string]interface{}{
					"pending_count": len(blocking),
					"task_ids":      blocking,
				},
			)
		}

		lines = AccrueCommissions(visit, tasks, s.rates)
		if len(lines) > 0 {
			if err := st.Commissions().CreateBatch(ctx, lines); err != nil {
				return err
			}
		}

		visit.Status = model.VisitCompleted
		visit.CheckOutTime = &now
		visit.CheckOutLatitude = req.Latitude
		visit.CheckOutLongitude = req.Longitude
		if req.Accuracy > 0 {
			visit.CheckOutAccuracy = &req.Accuracy
		}
		visit.TotalCommission = TotalAmount(lines)
		if req.Notes != "" {
			visit.Notes = req.Notes
		}
		visit.Rating = req.Rating
		visit.Tasks = tasks
		if err := st.Visits().Update(ctx, visit); err != nil {
			return err
		}

		if req.Latitude != nil && req.Longitude != nil {
			return st.Samples().Create(ctx, &model.GPSSample{
				ID:            uuid.New().String(),
				TenantID:      tenantID,
				AgentID:       agentID,
				Latitude:      *req.Latitude,
				Longitude:     *req.Longitude,
				Accuracy:      req.Accuracy,
				ActivityType:  model.ActivityCheckOut,
				ReferenceType: "visit",
				ReferenceID:   visit.ID,
				RecordedAt:    now,
			})
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	s.clearActiveVisit(ctx, tenantID, agentID)
	publishEvent(s.nats, SubjectVisitCheckedOut, tenantID, visit)
	if len(lines) > 0 {
		publishEvent(s.nats, SubjectCommissionAccrued, tenantID, lines)
	}
	log.Printf("[Visit] Agent %s checked out of visit %s, %d commission lines totalling %.2f %s",
		agentID, visit.ID, len(lines), visit.TotalCommission, s.rates.Currency)
	return visit, lines, nil
}

// Schedule creates a future visit in scheduled state.
func (s *VisitService) Schedule(ctx context.Context, tenantID, agentID string, req *model.ScheduleVisitRequest) (*model.Visit, error) {
	if _, err := s.store.Customers().Get(ctx, tenantID, req.CustomerID); err != nil {
		return nil, err
	}
	visitType := req.VisitType
	if visitType == "" {
		visitType = "field_visit"
	}
	visit := &model.Visit{
		ID:            uuid.New().String(),
		TenantID:      tenantID,
		AgentID:       agentID,
		CustomerID:    req.CustomerID,
		VisitType:     visitType,
		Status:        model.VisitScheduled,
		ScheduledDate: req.ScheduledDate,
		Notes:         req.Notes,
	}
	if err := s.store.Visits().Create(ctx, visit); err != nil {
		return nil, err
	}
	return visit, nil
}

// Cancel moves a non-terminal visit to cancelled. No commission is ever
// accrued for a cancelled visit.
func (s *VisitService) Cancel(ctx context.Context, tenantID, agentID, visitID, reason string) (*model.Visit, error) {
	var visit *model.Visit
	err := s.store.Atomically(ctx, func(st store.Store) error {
		var err error
		visit, err = st.Visits().GetForUpdate(ctx, tenantID, visitID)
		if err != nil {
			return err
		}
		if visit.AgentID != agentID {
			return errs.NotFound("visit %s not found", visitID)
		}
		if !visit.Status.CanTransition(model.VisitCancelled) {
			return errs.StateConflict(
				fmt.Sprintf("visit is %s and cannot be cancelled", visit.Status),
				map[string]interface{}{"visit_id": visit.ID, "status": visit.Status},
			)
		}
		visit.Status = model.VisitCancelled
		if reason != "" {
			visit.Notes = reason
		}
		return st.Visits().Update(ctx, visit)
	})
	if err != nil {
		return nil, err
	}

	s.clearActiveVisit(ctx, tenantID, agentID)
	publishEvent(s.nats, SubjectVisitCancelled, tenantID, visit)
	return visit, nil
}

// ListVisits returns the agent's visits, optionally filtered.
func (s *VisitService) ListVisits(ctx context.Context, tenantID, agentID string, q *model.VisitListQuery) ([]model.Visit, error) {
	var f store.VisitFilter
	if q.Status != "" {
		st := model.VisitStatus(q.Status)
		if !st.Valid() {
			return nil, errs.Validation("unknown visit status %q", q.Status)
		}
		f.Status = st
	}
	var err error
	if f.FromDate, err = parseDate(q.FromDate, false); err != nil {
		return nil, err
	}
	if f.ToDate, err = parseDate(q.ToDate, true); err != nil {
		return nil, err
	}
	return s.store.Visits().ListByAgent(ctx, tenantID, agentID, f)
}

// Dashboard summarizes the agent's day: today's visits, open work, and
// month-to-date commissions.
func (s *VisitService) Dashboard(ctx context.Context, tenantID, agentID string) (*model.AgentDashboard, error) {
	now := time.Now().UTC()
	todays, err := s.store.Visits().ListByAgentOnDay(ctx, tenantID, agentID, now)
	if err != nil {
		return nil, err
	}

	d := &model.AgentDashboard{TodayVisits: todays}
	for _, v := range todays {
		switch v.Status {
		case model.VisitCompleted:
			d.CompletedToday++
		case model.VisitInProgress:
			d.InProgress++
		case model.VisitScheduled:
			d.ScheduledToday++
		}
	}

	if d.PendingTasks, err = s.store.Tasks().CountPendingForAgent(ctx, tenantID, agentID); err != nil {
		return nil, err
	}

	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	if d.Commissions, err = s.store.Commissions().SummaryForAgent(ctx, tenantID, agentID, monthStart); err != nil {
		return nil, err
	}

	if active := s.activeVisitID(ctx, tenantID, agentID); active != "" {
		d.ActiveVisitID = &active
	}
	return d, nil
}

// activeVisitID reads the active-visit pointer; Redis being down never
// blocks the workflow, the row lock is the authority.
func (s *VisitService) activeVisitID(ctx context.Context, tenantID, agentID string) string {
	if s.redis == nil {
		return ""
	}
	id, err := s.redis.Get(ctx, activeVisitKey(tenantID, agentID)).Result()
	if err != nil {
		return ""
	}
	return id
}

func (s *VisitService) setActiveVisit(ctx context.Context, tenantID, agentID, visitID string) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Set(ctx, activeVisitKey(tenantID, agentID), visitID, activeVisitTTL).Err(); err != nil {
		log.Printf("[Visit] Failed to set active visit pointer for agent %s: %v", agentID, err)
	}
}

func (s *VisitService) clearActiveVisit(ctx context.Context, tenantID, agentID string) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Del(ctx, activeVisitKey(tenantID, agentID)).Err(); err != nil {
		log.Printf("[Visit] Failed to clear active visit pointer for agent %s: %v", agentID, err)
	}
}
