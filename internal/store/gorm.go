package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"fieldops/internal/errs"
	"fieldops/internal/model"
)

// Gorm is the PostgreSQL-backed Store.
type Gorm struct {
	db *gorm.DB
}

// NewGorm creates a Store on top of a gorm connection.
func NewGorm(db *gorm.DB) *Gorm {
	return &Gorm{db: db}
}

func (g *Gorm) Visits() VisitStore           { return gormVisits{g.db} }
func (g *Gorm) Tasks() TaskStore             { return gormTasks{g.db} }
func (g *Gorm) Samples() SampleStore         { return gormSamples{g.db} }
func (g *Gorm) Commissions() CommissionStore { return gormCommissions{g.db} }
func (g *Gorm) Customers() CustomerStore     { return gormCustomers{g.db} }
func (g *Gorm) Surveys() SurveyStore         { return gormSurveys{g.db} }

// Atomically runs fn in a database transaction.
func (g *Gorm) Atomically(ctx context.Context, fn func(Store) error) error {
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Gorm{db: tx})
	})
}

// ---- visits ----

type gormVisits struct{ db *gorm.DB }

func (s gormVisits) Create(ctx context.Context, visit *model.Visit) error {
	if err := s.db.WithContext(ctx).Create(visit).Error; err != nil {
		return errs.Store("create visit", err)
	}
	return nil
}

func (s gormVisits) Get(ctx context.Context, tenantID, visitID string) (*model.Visit, error) {
	return s.get(ctx, s.db, tenantID, visitID)
}

func (s gormVisits) GetForUpdate(ctx context.Context, tenantID, visitID string) (*model.Visit, error) {
	return s.get(ctx, s.db.Clauses(clause.Locking{Strength: "UPDATE"}), tenantID, visitID)
}

func (s gormVisits) get(ctx context.Context, db *gorm.DB, tenantID, visitID string) (*model.Visit, error) {
	var visit model.Visit
	err := db.WithContext(ctx).
		Where("id = ? AND tenant_id = ?", visitID, tenantID).
		First(&visit).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFound("visit %s not found", visitID)
		}
		return nil, errs.Store("load visit", err)
	}
	return &visit, nil
}

func (s gormVisits) Update(ctx context.Context, visit *model.Visit) error {
	if err := s.db.WithContext(ctx).Save(visit).Error; err != nil {
		return errs.Store("update visit", err)
	}
	return nil
}

func (s gormVisits) ListByAgent(ctx context.Context, tenantID, agentID string, f VisitFilter) ([]model.Visit, error) {
	db := s.db.WithContext(ctx).
		Where("tenant_id = ? AND agent_id = ?", tenantID, agentID)
	if f.Status != "" {
		db = db.Where("status = ?", f.Status)
	}
	if f.FromDate != nil {
		db = db.Where("scheduled_date >= ?", *f.FromDate)
	}
	if f.ToDate != nil {
		db = db.Where("scheduled_date <= ?", *f.ToDate)
	}

	var visits []model.Visit
	if err := db.Order("scheduled_date DESC").Find(&visits).Error; err != nil {
		return nil, errs.Store("list visits", err)
	}
	return visits, nil
}

func (s gormVisits) ListByAgentOnDay(ctx context.Context, tenantID, agentID string, day time.Time) ([]model.Visit, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.Add(24 * time.Hour)

	var visits []model.Visit
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND agent_id = ? AND scheduled_date >= ? AND scheduled_date < ?",
			tenantID, agentID, start, end).
		Order("scheduled_date").
		Find(&visits).Error
	if err != nil {
		return nil, errs.Store("list visits for day", err)
	}
	return visits, nil
}

// ---- tasks ----

type gormTasks struct{ db *gorm.DB }

func (s gormTasks) CreateBatch(ctx context.Context, tasks []model.Task) error {
	if len(tasks) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Create(&tasks).Error; err != nil {
		return errs.Store("create tasks", err)
	}
	return nil
}

func (s gormTasks) Get(ctx context.Context, tenantID, taskID string) (*model.Task, error) {
	var task model.Task
	err := s.db.WithContext(ctx).
		Where("id = ? AND tenant_id = ?", taskID, tenantID).
		First(&task).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFound("task %s not found", taskID)
		}
		return nil, errs.Store("load task", err)
	}
	return &task, nil
}

func (s gormTasks) ListByVisit(ctx context.Context, tenantID, visitID string) ([]model.Task, error) {
	var tasks []model.Task
	err := s.db.WithContext(ctx).
		Where("visit_id = ? AND tenant_id = ?", visitID, tenantID).
		Order("sequence_order").
		Find(&tasks).Error
	if err != nil {
		return nil, errs.Store("list tasks", err)
	}
	return tasks, nil
}

func (s gormTasks) Update(ctx context.Context, task *model.Task) error {
	if err := s.db.WithContext(ctx).Save(task).Error; err != nil {
		return errs.Store("update task", err)
	}
	return nil
}

func (s gormTasks) CountPendingForAgent(ctx context.Context, tenantID, agentID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.Task{}).
		Joins("JOIN visits ON visits.id = tasks.visit_id").
		Where("visits.agent_id = ? AND tasks.tenant_id = ? AND tasks.status = ?",
			agentID, tenantID, model.TaskPending).
		Count(&count).Error
	if err != nil {
		return 0, errs.Store("count pending tasks", err)
	}
	return count, nil
}

// ---- gps samples ----

type gormSamples struct{ db *gorm.DB }

func (s gormSamples) Create(ctx context.Context, sample *model.GPSSample) error {
	if err := s.db.WithContext(ctx).Create(sample).Error; err != nil {
		return errs.Store("create gps sample", err)
	}
	return nil
}

func (s gormSamples) ListByAgent(ctx context.Context, tenantID, agentID string, f TrackFilter) ([]model.GPSSample, error) {
	db := s.db.WithContext(ctx).
		Where("tenant_id = ? AND agent_id = ?", tenantID, agentID)
	if f.From != nil {
		db = db.Where("recorded_at >= ?", *f.From)
	}
	if f.To != nil {
		db = db.Where("recorded_at <= ?", *f.To)
	}
	if f.ActivityType != "" {
		db = db.Where("activity_type = ?", f.ActivityType)
	}
	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}

	var samples []model.GPSSample
	// Ordering by recorded_at, not id: retried submissions arrive out of
	// insertion order.
	if err := db.Order("recorded_at DESC").Limit(limit).Find(&samples).Error; err != nil {
		return nil, errs.Store("list gps samples", err)
	}
	return samples, nil
}

// ---- commission lines ----

type gormCommissions struct{ db *gorm.DB }

func (s gormCommissions) CreateBatch(ctx context.Context, lines []model.CommissionLine) error {
	if len(lines) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Create(&lines).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return errs.StateConflict("commission already accrued for this check-out", nil)
		}
		return errs.Store("create commission lines", err)
	}
	return nil
}

func (s gormCommissions) Get(ctx context.Context, tenantID, lineID string) (*model.CommissionLine, error) {
	var line model.CommissionLine
	err := s.db.WithContext(ctx).
		Where("id = ? AND tenant_id = ?", lineID, tenantID).
		First(&line).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFound("commission line %s not found", lineID)
		}
		return nil, errs.Store("load commission line", err)
	}
	return &line, nil
}

func (s gormCommissions) ListByAgent(ctx context.Context, tenantID, agentID string, f CommissionFilter) ([]model.CommissionLine, error) {
	return s.list(ctx, s.db.Where("tenant_id = ? AND agent_id = ?", tenantID, agentID), f)
}

func (s gormCommissions) ListByTenant(ctx context.Context, tenantID string, f CommissionFilter) ([]model.CommissionLine, error) {
	return s.list(ctx, s.db.Where("tenant_id = ?", tenantID), f)
}

func (s gormCommissions) list(ctx context.Context, db *gorm.DB, f CommissionFilter) ([]model.CommissionLine, error) {
	db = db.WithContext(ctx)
	if f.Status != "" {
		db = db.Where("status = ?", f.Status)
	}
	if f.From != nil {
		db = db.Where("created_at >= ?", *f.From)
	}
	if f.To != nil {
		db = db.Where("created_at <= ?", *f.To)
	}

	var lines []model.CommissionLine
	if err := db.Order("created_at DESC").Find(&lines).Error; err != nil {
		return nil, errs.Store("list commission lines", err)
	}
	return lines, nil
}

func (s gormCommissions) Update(ctx context.Context, line *model.CommissionLine) error {
	if err := s.db.WithContext(ctx).Save(line).Error; err != nil {
		return errs.Store("update commission line", err)
	}
	return nil
}

func (s gormCommissions) SummaryForAgent(ctx context.Context, tenantID, agentID string, since time.Time) (model.CommissionSummary, error) {
	type row struct {
		Status model.CommissionStatus
		Total  float64
	}
	var rows []row
	err := s.db.WithContext(ctx).Model(&model.CommissionLine{}).
		Select("status, SUM(amount) as total").
		Where("tenant_id = ? AND agent_id = ? AND created_at >= ?", tenantID, agentID, since).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return model.CommissionSummary{}, errs.Store("summarize commissions", err)
	}

	var summary model.CommissionSummary
	for _, r := range rows {
		switch r.Status {
		case model.CommissionPending:
			summary.Pending += r.Total
		case model.CommissionApproved:
			summary.Earned += r.Total
		case model.CommissionPaid:
			summary.Earned += r.Total
			summary.Paid += r.Total
		}
	}
	return summary, nil
}

// ---- customers ----

type gormCustomers struct{ db *gorm.DB }

func (s gormCustomers) Get(ctx context.Context, tenantID, customerID string) (*model.Customer, error) {
	var customer model.Customer
	err := s.db.WithContext(ctx).
		Where("id = ? AND tenant_id = ?", customerID, tenantID).
		First(&customer).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFound("customer %s not found", customerID)
		}
		return nil, errs.Store("load customer", err)
	}
	return &customer, nil
}

func (s gormCustomers) ListLocated(ctx context.Context, tenantID string) ([]model.Customer, error) {
	var customers []model.Customer
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND latitude IS NOT NULL AND longitude IS NOT NULL", tenantID).
		Find(&customers).Error
	if err != nil {
		return nil, errs.Store("list customers", err)
	}
	return customers, nil
}

func (s gormCustomers) UpdateLocation(ctx context.Context, tenantID, customerID string, lat, lon float64, accuracy *float64) error {
	res := s.db.WithContext(ctx).Model(&model.Customer{}).
		Where("id = ? AND tenant_id = ?", customerID, tenantID).
		Updates(map[string]interface{}{
			"latitude":     lat,
			"longitude":    lon,
			"gps_accuracy": accuracy,
		})
	if res.Error != nil {
		return errs.Store("update customer location", res.Error)
	}
	if res.RowsAffected == 0 {
		return errs.NotFound("customer %s not found", customerID)
	}
	return nil
}

func (s gormCustomers) CreateLocationHistory(ctx context.Context, h *model.CustomerLocationHistory) error {
	if err := s.db.WithContext(ctx).Create(h).Error; err != nil {
		return errs.Store("create location history", err)
	}
	return nil
}

// ---- surveys ----

type gormSurveys struct{ db *gorm.DB }

func (s gormSurveys) MandatoryActiveByBrands(ctx context.Context, tenantID string, brandIDs []string) ([]model.Survey, error) {
	if len(brandIDs) == 0 {
		return nil, nil
	}
	var surveys []model.Survey
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND brand_id IN ? AND mandatory = ? AND status = ?",
			tenantID, brandIDs, true, "active").
		Order("brand_id, created_at").
		Find(&surveys).Error
	if err != nil {
		return nil, errs.Store("list surveys", err)
	}
	return surveys, nil
}
