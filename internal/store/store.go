// Package store defines the persistence contracts used by the visit workflow
// engine and their PostgreSQL implementation. Every read and write is scoped
// by tenant id.
package store

import (
	"context"
	"time"

	"fieldops/internal/model"
)

// VisitFilter narrows visit scans. Zero values mean "no constraint".
type VisitFilter struct {
	Status   model.VisitStatus
	FromDate *time.Time
	ToDate   *time.Time
}

// TrackFilter narrows GPS sample scans.
type TrackFilter struct {
	From         *time.Time
	To           *time.Time
	ActivityType string
	Limit        int
}

// CommissionFilter narrows commission line scans.
type CommissionFilter struct {
	Status model.CommissionStatus
	From   *time.Time
	To     *time.Time
}

// VisitStore persists visits.
type VisitStore interface {
	Create(ctx context.Context, visit *model.Visit) error
	// Get returns errs.NotFound when no visit matches within the tenant.
	Get(ctx context.Context, tenantID, visitID string) (*model.Visit, error)
	// GetForUpdate acquires a row-level lock on the visit for the duration
	// of the enclosing transaction, serializing concurrent check-out and
	// task-completion against the same visit.
	GetForUpdate(ctx context.Context, tenantID, visitID string) (*model.Visit, error)
	Update(ctx context.Context, visit *model.Visit) error
	ListByAgent(ctx context.Context, tenantID, agentID string, f VisitFilter) ([]model.Visit, error)
	// ListByAgentOnDay returns the agent's visits scheduled on the given day.
	ListByAgentOnDay(ctx context.Context, tenantID, agentID string, day time.Time) ([]model.Visit, error)
}

// TaskStore persists visit tasks. Tasks are never deleted.
type TaskStore interface {
	CreateBatch(ctx context.Context, tasks []model.Task) error
	Get(ctx context.Context, tenantID, taskID string) (*model.Task, error)
	ListByVisit(ctx context.Context, tenantID, visitID string) ([]model.Task, error)
	Update(ctx context.Context, task *model.Task) error
	CountPendingForAgent(ctx context.Context, tenantID, agentID string) (int64, error)
}

// SampleStore appends GPS samples. Samples are immutable once written.
type SampleStore interface {
	Create(ctx context.Context, sample *model.GPSSample) error
	// ListByAgent returns samples ordered by recorded timestamp, not by
	// insertion order.
	ListByAgent(ctx context.Context, tenantID, agentID string, f TrackFilter) ([]model.GPSSample, error)
}

// CommissionStore persists commission lines.
type CommissionStore interface {
	// CreateBatch inserts all lines or none. A duplicate idempotency key
	// returns errs.StateConflict so retried check-outs cannot double-pay.
	CreateBatch(ctx context.Context, lines []model.CommissionLine) error
	Get(ctx context.Context, tenantID, lineID string) (*model.CommissionLine, error)
	ListByAgent(ctx context.Context, tenantID, agentID string, f CommissionFilter) ([]model.CommissionLine, error)
	ListByTenant(ctx context.Context, tenantID string, f CommissionFilter) ([]model.CommissionLine, error)
	Update(ctx context.Context, line *model.CommissionLine) error
	SummaryForAgent(ctx context.Context, tenantID, agentID string, since time.Time) (model.CommissionSummary, error)
}

// CustomerStore is the narrow read/write surface the engine needs from the
// customer master data owned by the sales back office.
type CustomerStore interface {
	Get(ctx context.Context, tenantID, customerID string) (*model.Customer, error)
	// ListLocated returns customers that have stored coordinates.
	ListLocated(ctx context.Context, tenantID string) ([]model.Customer, error)
	UpdateLocation(ctx context.Context, tenantID, customerID string, lat, lon float64, accuracy *float64) error
	CreateLocationHistory(ctx context.Context, h *model.CustomerLocationHistory) error
}

// SurveyStore looks up brand questionnaires.
type SurveyStore interface {
	MandatoryActiveByBrands(ctx context.Context, tenantID string, brandIDs []string) ([]model.Survey, error)
}

// Store bundles the per-entity stores with a transactional runner.
type Store interface {
	Visits() VisitStore
	Tasks() TaskStore
	Samples() SampleStore
	Commissions() CommissionStore
	Customers() CustomerStore
	Surveys() SurveyStore

	// Atomically runs fn inside one transaction; the Store handed to fn
	// operates on that transaction. Row locks taken via GetForUpdate are
	// held until fn returns.
	Atomically(ctx context.Context, fn func(Store) error) error
}
