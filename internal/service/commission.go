package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"fieldops/internal/config"
	"fieldops/internal/errs"
	"fieldops/internal/model"
	"fieldops/internal/store"
)

// AccrueCommissions prices every completed task of a visit at check-out and
// returns the commission lines to persist. It is pure: no clock, no I/O.
//
// Each line carries an idempotency key derived from tenant, visit and task,
// so a retried check-out that somehow reaches the insert a second time is
// rejected by the unique index instead of paying twice.
func AccrueCommissions(visit *model.Visit, tasks []model.Task, rates config.RateTable) []model.CommissionLine {
	var lines []model.CommissionLine
	for _, t := range tasks {
		if t.Status != model.TaskCompleted {
			continue
		}
		t := t
		amount, needsReview := priceTask(&t, rates)
		lines = append(lines, model.CommissionLine{
			ID:             uuid.New().String(),
			TenantID:       visit.TenantID,
			AgentID:        visit.AgentID,
			VisitID:        visit.ID,
			TaskID:         &t.ID,
			ActivityType:   t.TaskType,
			Amount:         amount,
			Currency:       rates.Currency,
			Status:         model.CommissionPending,
			NeedsReview:    needsReview,
			IdempotencyKey: commissionKey(visit.TenantID, visit.ID, t.ID),
		})
	}
	return lines
}

// priceTask applies the rate table to one completed task. Product
// distribution pays per unit; a missing or invalid quantity fails closed to
// zero and flags the line for manual review rather than guessing.
func priceTask(t *model.Task, rates config.RateTable) (amount float64, needsReview bool) {
	switch t.TaskType {
	case model.TaskSurvey:
		return rates.SurveyAmount, false
	case model.TaskBoardPlacement:
		return rates.BoardAmount, false
	case model.TaskProductDistribution:
		qty, ok := taskQuantity(t)
		if !ok {
			return 0, true
		}
		return rates.DistributionPerUnit * qty, false
	default:
		return rates.DefaultAmount, false
	}
}

// taskQuantity extracts a usable unit count from the task's result payload.
func taskQuantity(t *model.Task) (float64, bool) {
	if t.ResultData == nil {
		return 0, false
	}
	raw, ok := t.ResultData["quantity"]
	if !ok {
		return 0, false
	}
	var qty float64
	switch v := raw.(type) {
	case float64:
		qty = v
	case int:
		qty = float64(v)
	default:
		return 0, false
	}
	if qty <= 0 {
		return 0, false
	}
	return qty, true
}

func commissionKey(tenantID, visitID, taskID string) string {
	sum := sha256.Sum256([]byte(tenantID + "|" + visitID + "|" + taskID))
	return hex.EncodeToString(sum[:])
}

// TotalAmount sums the payable amounts of a line batch.
func TotalAmount(lines []model.CommissionLine) float64 {
	var total float64
	for _, l := range lines {
		total += l.Amount
	}
	return total
}

// CommissionService exposes accrued commission lines to agents and payroll.
type CommissionService struct {
	store store.Store
}

// NewCommissionService creates a new commission service.
func NewCommissionService(st store.Store) *CommissionService {
	return &CommissionService{store: st}
}

// ListForAgent returns the agent's own commission lines.
func (s *CommissionService) ListForAgent(ctx context.Context, tenantID, agentID string, q *model.CommissionListQuery) ([]model.CommissionLine, error) {
	f, err := commissionFilter(q)
	if err != nil {
		return nil, err
	}
	return s.store.Commissions().ListByAgent(ctx, tenantID, agentID, f)
}

// ListForTenant returns all commission lines in the tenant, for payroll.
func (s *CommissionService) ListForTenant(ctx context.Context, tenantID string, q *model.CommissionListQuery) ([]model.CommissionLine, error) {
	f, err := commissionFilter(q)
	if err != nil {
		return nil, err
	}
	return s.store.Commissions().ListByTenant(ctx, tenantID, f)
}

// UpdateStatus advances a commission line along pending -> approved -> paid.
func (s *CommissionService) UpdateStatus(ctx context.Context, tenantID, lineID string, next model.CommissionStatus) (*model.CommissionLine, error) {
	if !next.Valid() {
		return nil, errs.Validation("unknown commission status %q", next)
	}
	var updated *model.CommissionLine
	err := s.store.Atomically(ctx, func(st store.Store) error {
		line, err := st.Commissions().Get(ctx, tenantID, lineID)
		if err != nil {
			return err
		}
		if !line.Status.CanTransition(next) {
			return errs.StateConflict(
				fmt.Sprintf("commission cannot move from %s to %s", line.Status, next),
				map[string]interface{}{"current_status": line.Status},
			)
		}
		line.Status = next
		if err := st.Commissions().Update(ctx, line); err != nil {
			return err
		}
		updated = line
		return nil
	})
	return updated, err
}

// Summary aggregates the agent's commissions since the given time.
func (s *CommissionService) Summary(ctx context.Context, tenantID, agentID string, since time.Time) (model.CommissionSummary, error) {
	return s.store.Commissions().SummaryForAgent(ctx, tenantID, agentID, since)
}

func commissionFilter(q *model.CommissionListQuery) (store.CommissionFilter, error) {
	var f store.CommissionFilter
	if q == nil {
		return f, nil
	}
	if q.Status != "" {
		st := model.CommissionStatus(q.Status)
		if !st.Valid() {
			return f, errs.Validation("unknown commission status %q", q.Status)
		}
		f.Status = st
	}
	var err error
	if f.From, err = parseDate(q.FromDate, false); err != nil {
		return f, err
	}
	if f.To, err = parseDate(q.ToDate, true); err != nil {
		return f, err
	}
	return f, nil
}

// parseDate accepts YYYY-MM-DD or RFC 3339. endOfDay widens a bare date to
// its last instant so to_date filters are inclusive.
func parseDate(s string, endOfDay bool) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		if endOfDay {
			t = t.Add(24*time.Hour - time.Nanosecond)
		}
		return &t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}
	return nil, errs.Validation("invalid date %q, want YYYY-MM-DD or RFC 3339", s)
}
