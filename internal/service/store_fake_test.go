package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"fieldops/internal/errs"
	"fieldops/internal/model"
	"fieldops/internal/store"
)

// fakeStore is an in-memory store.Store for service tests. Atomically holds
// a store-wide lock across the callback, mirroring how the row lock
// serializes transactional sections in Postgres.
type fakeStore struct {
	mu          sync.Mutex
	txMu        sync.Mutex
	visits      map[string]model.Visit
	tasks       map[string]model.Task
	samples     []model.GPSSample
	commissions map[string]model.CommissionLine
	customers   map[string]model.Customer
	histories   []model.CustomerLocationHistory
	surveys     []model.Survey
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		visits:      make(map[string]model.Visit),
		tasks:       make(map[string]model.Task),
		commissions: make(map[string]model.CommissionLine),
		customers:   make(map[string]model.Customer),
	}
}

func (f *fakeStore) Visits() store.VisitStore           { return (*fakeVisits)(f) }
func (f *fakeStore) Tasks() store.TaskStore             { return (*fakeTasks)(f) }
func (f *fakeStore) Samples() store.SampleStore         { return (*fakeSamples)(f) }
func (f *fakeStore) Commissions() store.CommissionStore { return (*fakeCommissions)(f) }
func (f *fakeStore) Customers() store.CustomerStore     { return (*fakeCustomers)(f) }
func (f *fakeStore) Surveys() store.SurveyStore         { return (*fakeSurveys)(f) }

func (f *fakeStore) Atomically(ctx context.Context, fn func(store.Store) error) error {
	f.txMu.Lock()
	defer f.txMu.Unlock()
	return fn(f)
}

type fakeVisits fakeStore

func (f *fakeVisits) Create(ctx context.Context, visit *model.Visit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.visits[visit.ID] = *visit
	return nil
}

func (f *fakeVisits) Get(ctx context.Context, tenantID, visitID string) (*model.Visit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.visits[visitID]
	if !ok || v.TenantID != tenantID {
		return nil, errs.NotFound("visit %s not found", visitID)
	}
	cp := v
	return &cp, nil
}

func (f *fakeVisits) GetForUpdate(ctx context.Context, tenantID, visitID string) (*model.Visit, error) {
	return f.Get(ctx, tenantID, visitID)
}

func (f *fakeVisits) Update(ctx context.Context, visit *model.Visit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.visits[visit.ID]; !ok {
		return errs.NotFound("visit %s not found", visit.ID)
	}
	f.visits[visit.ID] = *visit
	return nil
}

func (f *fakeVisits) ListByAgent(ctx context.Context, tenantID, agentID string, flt store.VisitFilter) ([]model.Visit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Visit
	for _, v := range f.visits {
		if v.TenantID != tenantID || v.AgentID != agentID {
			continue
		}
		if flt.Status != "" && v.Status != flt.Status {
			continue
		}
		if flt.FromDate != nil && v.ScheduledDate.Before(*flt.FromDate) {
			continue
		}
		if flt.ToDate != nil && v.ScheduledDate.After(*flt.ToDate) {
			continue
		}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledDate.After(out[j].ScheduledDate) })
	return out, nil
}

func (f *fakeVisits) ListByAgentOnDay(ctx context.Context, tenantID, agentID string, day time.Time) ([]model.Visit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	y, m, d := day.UTC().Date()
	var out []model.Visit
	for _, v := range f.visits {
		if v.TenantID != tenantID || v.AgentID != agentID {
			continue
		}
		vy, vm, vd := v.ScheduledDate.UTC().Date()
		if vy == y && vm == m && vd == d {
			out = append(out, v)
		}
	}
	return out, nil
}

type fakeTasks fakeStore

func (f *fakeTasks) CreateBatch(ctx context.Context, tasks []model.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range tasks {
		f.tasks[t.ID] = t
	}
	return nil
}

func (f *fakeTasks) Get(ctx context.Context, tenantID, taskID string) (*model.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[taskID]
	if !ok || t.TenantID != tenantID {
		return nil, errs.NotFound("task %s not found", taskID)
	}
	cp := t
	return &cp, nil
}

func (f *fakeTasks) ListByVisit(ctx context.Context, tenantID, visitID string) ([]model.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Task
	for _, t := range f.tasks {
		if t.TenantID == tenantID && t.VisitID == visitID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SequenceOrder < out[j].SequenceOrder })
	return out, nil
}

func (f *fakeTasks) Update(ctx context.Context, task *model.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tasks[task.ID]; !ok {
		return errs.NotFound("task %s not found", task.ID)
	}
	f.tasks[task.ID] = *task
	return nil
}

func (f *fakeTasks) CountPendingForAgent(ctx context.Context, tenantID, agentID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var count int64
	for _, t := range f.tasks {
		if t.TenantID != tenantID || t.Status != model.TaskPending {
			continue
		}
		v, ok := f.visits[t.VisitID]
		if ok && v.AgentID == agentID {
			count++
		}
	}
	return count, nil
}

type fakeSamples fakeStore

func (f *fakeSamples) Create(ctx context.Context, sample *model.GPSSample) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.samples = append(f.samples, *sample)
	return nil
}

func (f *fakeSamples) ListByAgent(ctx context.Context, tenantID, agentID string, flt store.TrackFilter) ([]model.GPSSample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.GPSSample
	for _, s := range f.samples {
		if s.TenantID != tenantID || s.AgentID != agentID {
			continue
		}
		if flt.ActivityType != "" && s.ActivityType != flt.ActivityType {
			continue
		}
		if flt.From != nil && s.RecordedAt.Before(*flt.From) {
			continue
		}
		if flt.To != nil && s.RecordedAt.After(*flt.To) {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RecordedAt.After(out[j].RecordedAt) })
	if flt.Limit > 0 && len(out) > flt.Limit {
		out = out[:flt.Limit]
	}
	return out, nil
}

type fakeCommissions fakeStore

func (f *fakeCommissions) CreateBatch(ctx context.Context, lines []model.CommissionLine) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, l := range lines {
		for _, existing := range f.commissions {
			if existing.IdempotencyKey == l.IdempotencyKey {
				return errs.StateConflict("commission already accrued for this check-out", nil)
			}
		}
	}
	for _, l := range lines {
		f.commissions[l.ID] = l
	}
	return nil
}

func (f *fakeCommissions) Get(ctx context.Context, tenantID, lineID string) (*model.CommissionLine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.commissions[lineID]
	if !ok || l.TenantID != tenantID {
		return nil, errs.NotFound("commission %s not found", lineID)
	}
	cp := l
	return &cp, nil
}

func (f *fakeCommissions) ListByAgent(ctx context.Context, tenantID, agentID string, flt store.CommissionFilter) ([]model.CommissionLine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.CommissionLine
	for _, l := range f.commissions {
		if l.TenantID != tenantID || l.AgentID != agentID {
			continue
		}
		if flt.Status != "" && l.Status != flt.Status {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

func (f *fakeCommissions) ListByTenant(ctx context.Context, tenantID string, flt store.CommissionFilter) ([]model.CommissionLine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.CommissionLine
	for _, l := range f.commissions {
		if l.TenantID != tenantID {
			continue
		}
		if flt.Status != "" && l.Status != flt.Status {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

func (f *fakeCommissions) Update(ctx context.Context, line *model.CommissionLine) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.commissions[line.ID]; !ok {
		return errs.NotFound("commission %s not found", line.ID)
	}
	f.commissions[line.ID] = *line
	return nil
}

func (f *fakeCommissions) SummaryForAgent(ctx context.Context, tenantID, agentID string, since time.Time) (model.CommissionSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var summary model.CommissionSummary
	for _, l := range f.commissions {
		if l.TenantID != tenantID || l.AgentID != agentID || l.CreatedAt.Before(since) {
			continue
		}
		switch l.Status {
		case model.CommissionPending:
			summary.Pending += l.Amount
		case model.CommissionApproved:
			summary.Earned += l.Amount
		case model.CommissionPaid:
			summary.Earned += l.Amount
			summary.Paid += l.Amount
		}
	}
	return summary, nil
}

type fakeCustomers fakeStore

func (f *fakeCustomers) Get(ctx context.Context, tenantID, customerID string) (*model.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.customers[customerID]
	if !ok || c.TenantID != tenantID {
		return nil, errs.NotFound("customer %s not found", customerID)
	}
	cp := c
	return &cp, nil
}

func (f *fakeCustomers) ListLocated(ctx context.Context, tenantID string) ([]model.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Customer
	for _, c := range f.customers {
		if c.TenantID == tenantID && c.Latitude != nil && c.Longitude != nil {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeCustomers) UpdateLocation(ctx context.Context, tenantID, customerID string, lat, lon float64, accuracy *float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.customers[customerID]
	if !ok || c.TenantID != tenantID {
		return errs.NotFound("customer %s not found", customerID)
	}
	c.Latitude = &lat
	c.Longitude = &lon
	c.GPSAccuracy = accuracy
	f.customers[customerID] = c
	return nil
}

func (f *fakeCustomers) CreateLocationHistory(ctx context.Context, h *model.CustomerLocationHistory) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.histories = append(f.histories, *h)
	return nil
}

type fakeSurveys fakeStore

func (f *fakeSurveys) MandatoryActiveByBrands(ctx context.Context, tenantID string, brandIDs []string) ([]model.Survey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(brandIDs) == 0 {
		return nil, nil
	}
	wanted := make(map[string]bool, len(brandIDs))
	for _, id := range brandIDs {
		wanted[id] = true
	}
	var out []model.Survey
	for _, s := range f.surveys {
		if s.TenantID == tenantID && s.Mandatory && s.Status == "active" && wanted[s.BrandID] {
			out = append(out, s)
		}
	}
	// Matches the SQL ordering of the real store.
	sort.Slice(out, func(i, j int) bool { return out[i].BrandID < out[j].BrandID })
	return out, nil
}
