package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"fieldops/internal/model"
	"fieldops/internal/store"
)

// standardOptionalTasks are appended to every generated task list after the
// mandatory survey tasks, in this fixed order.
var standardOptionalTasks = []struct {
	Type model.TaskType
	Name string
}{
	{model.TaskBoardPlacement, "Place promotional board"},
	{model.TaskProductDistribution, "Distribute products"},
	{model.TaskPhotoDocumentation, "Photo documentation"},
}

// BuildTaskList derives the full task list for a visit: one mandatory survey
// task per mandatory active survey, ordered by the first appearance of the
// survey's brand in brandIDs, followed by the standard optional tasks.
// It is pure; persistence and idempotency live in ensureTasks.
func BuildTaskList(visit *model.Visit, brandIDs []string, surveys []model.Survey) []model.Task {
	// Surveys arrive ordered by brand id; the agent-reported brand order is
	// what the task list must follow.
	rank := make(map[string]int, len(brandIDs))
	for i, id := range brandIDs {
		if _, seen := rank[id]; !seen {
			rank[id] = i
		}
	}
	ordered := make([]model.Survey, 0, len(surveys))
	for _, s := range surveys {
		if _, ok := rank[s.BrandID]; ok {
			ordered = append(ordered, s)
		}
	}
	for i := 1; i < len(ordered); i++ {
		for j := i; j > 0 && rank[ordered[j].BrandID] < rank[ordered[j-1].BrandID]; j-- {
			ordered[j], ordered[j-1] = ordered[j-1], ordered[j]
		}
	}

	tasks := make([]model.Task, 0, len(ordered)+len(standardOptionalTasks))
	seq := 1
	for _, s := range ordered {
		s := s
		tasks = append(tasks, model.Task{
			ID:            uuid.New().String(),
			TenantID:      visit.TenantID,
			VisitID:       visit.ID,
			TaskType:      model.TaskSurvey,
			Name:          fmt.Sprintf("Complete survey: %s", s.Title),
			Description:   s.Description,
			Mandatory:     true,
			SequenceOrder: seq,
			Status:        model.TaskPending,
			BrandID:       &s.BrandID,
			SurveyID:      &s.ID,
		})
		seq++
	}
	for _, t := range standardOptionalTasks {
		tasks = append(tasks, model.Task{
			ID:            uuid.New().String(),
			TenantID:      visit.TenantID,
			VisitID:       visit.ID,
			TaskType:      t.Type,
			Name:          t.Name,
			Mandatory:     false,
			SequenceOrder: seq,
			Status:        model.TaskPending,
		})
		seq++
	}
	return tasks
}

// ensureTasks generates the visit's task list exactly once. A visit that
// already has tasks keeps them untouched, so retried check-ins cannot
// duplicate work items.
func ensureTasks(ctx context.Context, st store.Store, visit *model.Visit, brandIDs []string) ([]model.Task, error) {
	existing, err := st.Tasks().ListByVisit(ctx, visit.TenantID, visit.ID)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return existing, nil
	}

	surveys, err := st.Surveys().MandatoryActiveByBrands(ctx, visit.TenantID, brandIDs)
	if err != nil {
		return nil, err
	}
	tasks := BuildTaskList(visit, brandIDs, surveys)
	if err := st.Tasks().CreateBatch(ctx, tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}
