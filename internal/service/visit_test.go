package service

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fieldops/internal/config"
	"fieldops/internal/errs"
	"fieldops/internal/geo"
	"fieldops/internal/model"
	"fieldops/internal/store"
)

const (
	testTenant = "tenant-1"
	testAgent  = "agent-1"

	baseLat = -26.2041
	baseLon = 28.0473

	degPerMeter = 180 / (math.Pi * 6371000)
)

var testRates = config.RateTable{
	SurveyAmount:        5.00,
	BoardAmount:         10.00,
	DistributionPerUnit: 0.50,
	DefaultAmount:       2.00,
	Currency:            "ZAR",
}

var testGeofence = config.GeofenceConfig{
	CheckInRadiusMeters: 10,
	NearbyRadiusMeters:  1000,
}

func newTestVisitService(f *fakeStore) *VisitService {
	customers := NewCustomerService(f, nil)
	return NewVisitService(f, nil, nil, customers, testGeofence, testRates)
}

func seedCustomer(f *fakeStore, id string) {
	lat, lon := baseLat, baseLon
	f.customers[id] = model.Customer{
		ID:        id,
		TenantID:  testTenant,
		Name:      "Soweto Mini Market",
		Latitude:  &lat,
		Longitude: &lon,
	}
}

func checkInAt(metersAway, accuracy float64) *model.CheckInRequest {
	lat := baseLat + metersAway*degPerMeter
	lon := baseLon
	return &model.CheckInRequest{
		CustomerID: "cust-1",
		Latitude:   &lat,
		Longitude:  &lon,
		Accuracy:   accuracy,
	}
}

func TestCheckInWithinRadius(t *testing.T) {
	f := newFakeStore()
	seedCustomer(f, "cust-1")
	svc := newTestVisitService(f)

	visit, prox, err := svc.CheckIn(context.Background(), testTenant, testAgent, checkInAt(7, 5))
	require.NoError(t, err)

	assert.True(t, prox.WithinRadius)
	assert.InDelta(t, 7, prox.DistanceMeters, 0.1)
	assert.Equal(t, geo.ConfidenceHigh, prox.Confidence)

	assert.Equal(t, model.VisitInProgress, visit.Status)
	assert.NotNil(t, visit.CheckInTime)
	assert.Equal(t, testAgent, visit.AgentID)

	// Without brands nothing is generated yet; the first task list read
	// produces the standard optional tasks.
	assert.Empty(t, visit.Tasks)

	_, tasks, err := svc.Tasks(context.Background(), testTenant, visit.ID, nil)
	require.NoError(t, err)
	require.Len(t, tasks, 3)
	for _, task := range tasks {
		assert.False(t, task.Mandatory)
		assert.Equal(t, model.TaskPending, task.Status)
	}

	samples, err := f.Samples().ListByAgent(context.Background(), testTenant, testAgent, store.TrackFilter{ActivityType: model.ActivityCheckIn})
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, visit.ID, samples[0].ReferenceID)
}

func TestCheckInOutsideRadius(t *testing.T) {
	f := newFakeStore()
	seedCustomer(f, "cust-1")
	svc := newTestVisitService(f)

	_, prox, err := svc.CheckIn(context.Background(), testTenant, testAgent, checkInAt(15, 5))
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindLocationRejected))
	assert.False(t, prox.WithinRadius)
	assert.InDelta(t, 15, prox.DistanceMeters, 0.1)

	e, ok := errs.As(err)
	require.True(t, ok)
	assert.InDelta(t, 15, e.Detail["distance_meters"].(float64), 0.1)

	// No visit was opened.
	assert.Empty(t, f.visits)
}

func TestCheckInCustomerWithoutLocation(t *testing.T) {
	f := newFakeStore()
	f.customers["cust-1"] = model.Customer{ID: "cust-1", TenantID: testTenant, Name: "New Outlet"}
	svc := newTestVisitService(f)

	_, _, err := svc.CheckIn(context.Background(), testTenant, testAgent, checkInAt(0, 5))
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindStateConflict))
}

func TestCheckInGeneratesMandatorySurveyTasks(t *testing.T) {
	f := newFakeStore()
	seedCustomer(f, "cust-1")
	f.surveys = []model.Survey{
		{ID: "s-alpha", TenantID: testTenant, BrandID: "brand-a", Title: "Alpha Cola Audit", Mandatory: true, Status: "active"},
		{ID: "s-beta", TenantID: testTenant, BrandID: "brand-b", Title: "Beta Snacks Audit", Mandatory: true, Status: "active"},
		{ID: "s-opt", TenantID: testTenant, BrandID: "brand-a", Title: "Optional Poll", Mandatory: false, Status: "active"},
		{ID: "s-old", TenantID: testTenant, BrandID: "brand-b", Title: "Archived Audit", Mandatory: true, Status: "archived"},
	}
	svc := newTestVisitService(f)

	req := checkInAt(3, 5)
	req.BrandIDs = []string{"brand-b", "brand-a"}
	visit, _, err := svc.CheckIn(context.Background(), testTenant, testAgent, req)
	require.NoError(t, err)

	require.Len(t, visit.Tasks, 5)

	// Mandatory surveys first, in the order the agent reported the brands.
	assert.Equal(t, model.TaskSurvey, visit.Tasks[0].TaskType)
	assert.True(t, visit.Tasks[0].Mandatory)
	assert.Equal(t, "brand-b", *visit.Tasks[0].BrandID)
	assert.Equal(t, "s-beta", *visit.Tasks[0].SurveyID)

	assert.Equal(t, model.TaskSurvey, visit.Tasks[1].TaskType)
	assert.Equal(t, "brand-a", *visit.Tasks[1].BrandID)

	assert.Equal(t, model.TaskBoardPlacement, visit.Tasks[2].TaskType)
	assert.Equal(t, model.TaskProductDistribution, visit.Tasks[3].TaskType)
	assert.Equal(t, model.TaskPhotoDocumentation, visit.Tasks[4].TaskType)
}

func TestCheckInTaskGenerationIsIdempotent(t *testing.T) {
	f := newFakeStore()
	seedCustomer(f, "cust-1")
	f.surveys = []model.Survey{
		{ID: "s1", TenantID: testTenant, BrandID: "brand-a", Title: "Audit", Mandatory: true, Status: "active"},
	}
	svc := newTestVisitService(f)

	req := checkInAt(3, 5)
	req.BrandIDs = []string{"brand-a"}
	visit, _, err := svc.CheckIn(context.Background(), testTenant, testAgent, req)
	require.NoError(t, err)
	require.Len(t, visit.Tasks, 4)

	// Retried check-in against the same visit must not duplicate tasks.
	retry := checkInAt(3, 5)
	retry.VisitID = visit.ID
	retry.BrandIDs = []string{"brand-a"}
	again, _, err := svc.CheckIn(context.Background(), testTenant, testAgent, retry)
	require.NoError(t, err)
	assert.Equal(t, visit.ID, again.ID)
	assert.Len(t, again.Tasks, 4)
	assert.Len(t, f.tasks, 4)
}

func TestTasksGeneratesFromBrandsSuppliedAfterCheckIn(t *testing.T) {
	f := newFakeStore()
	seedCustomer(f, "cust-1")
	f.surveys = []model.Survey{
		{ID: "s1", TenantID: testTenant, BrandID: "brand-1", Title: "Shelf Audit", Mandatory: true, Status: "active"},
	}
	svc := newTestVisitService(f)

	visit, _, err := svc.CheckIn(context.Background(), testTenant, testAgent, checkInAt(3, 5))
	require.NoError(t, err)
	assert.Empty(t, visit.Tasks)

	// Brands reported on the first task list read still yield the
	// mandatory survey work.
	_, tasks, err := svc.Tasks(context.Background(), testTenant, visit.ID, []string{"brand-1"})
	require.NoError(t, err)
	require.Len(t, tasks, 4)
	assert.Equal(t, model.TaskSurvey, tasks[0].TaskType)
	assert.True(t, tasks[0].Mandatory)
	assert.Equal(t, "s1", *tasks[0].SurveyID)

	// The survey now gates the check-out like any other mandatory task.
	_, _, err = svc.CheckOut(context.Background(), testTenant, testAgent, &model.CheckOutRequest{VisitID: visit.ID})
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindStateConflict))
}

func TestConcurrentTaskReadsGenerateOnce(t *testing.T) {
	f := newFakeStore()
	seedCustomer(f, "cust-1")
	svc := newTestVisitService(f)

	visit, _, err := svc.CheckIn(context.Background(), testTenant, testAgent, checkInAt(3, 5))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, tasks, err := svc.Tasks(context.Background(), testTenant, visit.ID, nil)
			assert.NoError(t, err)
			assert.Len(t, tasks, 3)
		}()
	}
	wg.Wait()

	assert.Len(t, f.tasks, 3)
}

func TestCompleteTaskIsIdempotent(t *testing.T) {
	f := newFakeStore()
	seedCustomer(f, "cust-1")
	svc := newTestVisitService(f)

	visit, _, err := svc.CheckIn(context.Background(), testTenant, testAgent, checkInAt(3, 5))
	require.NoError(t, err)
	_, tasks, err := svc.Tasks(context.Background(), testTenant, visit.ID, nil)
	require.NoError(t, err)
	taskID := tasks[0].ID

	task, err := svc.CompleteTask(context.Background(), testTenant, testAgent, &model.CompleteTaskRequest{
		TaskID:     taskID,
		ResultData: model.JSONMap{"note": "done"},
	})
	require.NoError(t, err)
	assert.Equal(t, model.TaskCompleted, task.Status)
	firstCompletedAt := *task.CompletedAt

	task, err = svc.CompleteTask(context.Background(), testTenant, testAgent, &model.CompleteTaskRequest{TaskID: taskID})
	require.NoError(t, err)
	assert.Equal(t, model.TaskCompleted, task.Status)
	assert.Equal(t, firstCompletedAt, *task.CompletedAt)
}

func TestSkipMandatoryTaskRejected(t *testing.T) {
	f := newFakeStore()
	seedCustomer(f, "cust-1")
	f.surveys = []model.Survey{
		{ID: "s1", TenantID: testTenant, BrandID: "brand-a", Title: "Audit", Mandatory: true, Status: "active"},
	}
	svc := newTestVisitService(f)

	req := checkInAt(3, 5)
	req.BrandIDs = []string{"brand-a"}
	visit, _, err := svc.CheckIn(context.Background(), testTenant, testAgent, req)
	require.NoError(t, err)

	_, err = svc.SkipTask(context.Background(), testTenant, testAgent, &model.SkipTaskRequest{TaskID: visit.Tasks[0].ID})
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindStateConflict))

	// Optional tasks can be skipped.
	task, err := svc.SkipTask(context.Background(), testTenant, testAgent, &model.SkipTaskRequest{
		TaskID: visit.Tasks[1].ID,
		Reason: "store owner declined",
	})
	require.NoError(t, err)
	assert.Equal(t, model.TaskSkipped, task.Status)
	assert.Equal(t, "store owner declined", task.ResultData["skip_reason"])
}

func TestCheckOutBlockedByPendingMandatoryTasks(t *testing.T) {
	f := newFakeStore()
	seedCustomer(f, "cust-1")
	f.surveys = []model.Survey{
		{ID: "s1", TenantID: testTenant, BrandID: "brand-a", Title: "Audit", Mandatory: true, Status: "active"},
	}
	svc := newTestVisitService(f)

	req := checkInAt(3, 5)
	req.BrandIDs = []string{"brand-a"}
	visit, _, err := svc.CheckIn(context.Background(), testTenant, testAgent, req)
	require.NoError(t, err)

	_, _, err = svc.CheckOut(context.Background(), testTenant, testAgent, &model.CheckOutRequest{VisitID: visit.ID})
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindStateConflict))

	e, _ := errs.As(err)
	assert.Equal(t, 1, e.Detail["pending_count"])

	// The visit is still open and no commission was accrued.
	current, err := f.Visits().Get(context.Background(), testTenant, visit.ID)
	require.NoError(t, err)
	assert.Equal(t, model.VisitInProgress, current.Status)
	assert.Empty(t, f.commissions)

	// Completing the survey unblocks the check-out even though optional
	// tasks remain pending, and only the survey earns a line.
	tasks, err := f.Tasks().ListByVisit(context.Background(), testTenant, visit.ID)
	require.NoError(t, err)
	for _, task := range tasks {
		if task.TaskType == model.TaskSurvey {
			_, err = svc.CompleteTask(context.Background(), testTenant, testAgent, &model.CompleteTaskRequest{TaskID: task.ID})
			require.NoError(t, err)
		}
	}

	_, lines, err := svc.CheckOut(context.Background(), testTenant, testAgent, &model.CheckOutRequest{VisitID: visit.ID})
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, model.TaskSurvey, lines[0].ActivityType)
	assert.Equal(t, 5.00, lines[0].Amount)
}

func completeAll(t *testing.T, svc *VisitService, taskIDs map[model.TaskType]string, results map[model.TaskType]model.JSONMap) {
	t.Helper()
	for taskType, id := range taskIDs {
		_, err := svc.CompleteTask(context.Background(), testTenant, testAgent, &model.CompleteTaskRequest{
			TaskID:     id,
			ResultData: results[taskType],
		})
		require.NoError(t, err)
	}
}

func TestCheckOutAccruesCommission(t *testing.T) {
	f := newFakeStore()
	seedCustomer(f, "cust-1")
	f.surveys = []model.Survey{
		{ID: "s1", TenantID: testTenant, BrandID: "brand-a", Title: "Audit", Mandatory: true, Status: "active"},
	}
	svc := newTestVisitService(f)

	req := checkInAt(3, 5)
	req.BrandIDs = []string{"brand-a"}
	visit, _, err := svc.CheckIn(context.Background(), testTenant, testAgent, req)
	require.NoError(t, err)

	byType := make(map[model.TaskType]string)
	for _, task := range visit.Tasks {
		byType[task.TaskType] = task.ID
	}

	completeAll(t, svc, map[model.TaskType]string{
		model.TaskSurvey:              byType[model.TaskSurvey],
		model.TaskBoardPlacement:      byType[model.TaskBoardPlacement],
		model.TaskProductDistribution: byType[model.TaskProductDistribution],
	}, map[model.TaskType]model.JSONMap{
		model.TaskProductDistribution: {"quantity": float64(20)},
	})
	_, err = svc.SkipTask(context.Background(), testTenant, testAgent, &model.SkipTaskRequest{
		TaskID: byType[model.TaskPhotoDocumentation],
	})
	require.NoError(t, err)

	closed, lines, err := svc.CheckOut(context.Background(), testTenant, testAgent, &model.CheckOutRequest{VisitID: visit.ID})
	require.NoError(t, err)

	assert.Equal(t, model.VisitCompleted, closed.Status)
	require.Len(t, lines, 3)

	amounts := make(map[model.TaskType]float64)
	for _, l := range lines {
		amounts[l.ActivityType] = l.Amount
		assert.Equal(t, "ZAR", l.Currency)
		assert.Equal(t, model.CommissionPending, l.Status)
		assert.False(t, l.NeedsReview)
	}
	assert.Equal(t, 5.00, amounts[model.TaskSurvey])
	assert.Equal(t, 10.00, amounts[model.TaskBoardPlacement])
	assert.Equal(t, 10.00, amounts[model.TaskProductDistribution]) // 20 units x 0.50
	assert.Equal(t, 25.00, closed.TotalCommission)
}

func TestCheckOutTwiceDoesNotDoublePay(t *testing.T) {
	f := newFakeStore()
	seedCustomer(f, "cust-1")
	svc := newTestVisitService(f)

	visit, _, err := svc.CheckIn(context.Background(), testTenant, testAgent, checkInAt(3, 5))
	require.NoError(t, err)
	_, tasks, err := svc.Tasks(context.Background(), testTenant, visit.ID, nil)
	require.NoError(t, err)

	for _, task := range tasks {
		_, err := svc.CompleteTask(context.Background(), testTenant, testAgent, &model.CompleteTaskRequest{
			TaskID:     task.ID,
			ResultData: model.JSONMap{"quantity": float64(4)},
		})
		require.NoError(t, err)
	}

	_, lines, err := svc.CheckOut(context.Background(), testTenant, testAgent, &model.CheckOutRequest{VisitID: visit.ID})
	require.NoError(t, err)
	require.Len(t, lines, 3)

	_, _, err = svc.CheckOut(context.Background(), testTenant, testAgent, &model.CheckOutRequest{VisitID: visit.ID})
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindNotFound))
	assert.Contains(t, err.Error(), "not found or already completed")

	// Still exactly one commission batch.
	assert.Len(t, f.commissions, 3)
}

func TestCheckOutFailClosedQuantity(t *testing.T) {
	f := newFakeStore()
	seedCustomer(f, "cust-1")
	svc := newTestVisitService(f)

	visit, _, err := svc.CheckIn(context.Background(), testTenant, testAgent, checkInAt(3, 5))
	require.NoError(t, err)
	_, tasks, err := svc.Tasks(context.Background(), testTenant, visit.ID, nil)
	require.NoError(t, err)

	var distributionID string
	for _, task := range tasks {
		if task.TaskType == model.TaskProductDistribution {
			distributionID = task.ID
		} else {
			_, err := svc.SkipTask(context.Background(), testTenant, testAgent, &model.SkipTaskRequest{TaskID: task.ID})
			require.NoError(t, err)
		}
	}

	// Completed without a usable quantity.
	_, err = svc.CompleteTask(context.Background(), testTenant, testAgent, &model.CompleteTaskRequest{
		TaskID:     distributionID,
		ResultData: model.JSONMap{"quantity": "a lot"},
	})
	require.NoError(t, err)

	closed, lines, err := svc.CheckOut(context.Background(), testTenant, testAgent, &model.CheckOutRequest{VisitID: visit.ID})
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, 0.0, lines[0].Amount)
	assert.True(t, lines[0].NeedsReview)
	assert.Equal(t, 0.0, closed.TotalCommission)
}

func TestCancelVisitTransitions(t *testing.T) {
	f := newFakeStore()
	seedCustomer(f, "cust-1")
	svc := newTestVisitService(f)

	scheduled, err := svc.Schedule(context.Background(), testTenant, testAgent, &model.ScheduleVisitRequest{
		CustomerID:    "cust-1",
		ScheduledDate: time.Now().UTC().Add(24 * time.Hour),
	})
	require.NoError(t, err)

	cancelled, err := svc.Cancel(context.Background(), testTenant, testAgent, scheduled.ID, "customer closed")
	require.NoError(t, err)
	assert.Equal(t, model.VisitCancelled, cancelled.Status)

	// Terminal states reject further transitions.
	_, err = svc.Cancel(context.Background(), testTenant, testAgent, scheduled.ID, "")
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindStateConflict))
}

func TestDashboardCountsPendingTasksAcrossVisitStatuses(t *testing.T) {
	f := newFakeStore()
	svc := newTestVisitService(f)
	now := time.Now().UTC()

	f.visits["v-open"] = model.Visit{
		ID: "v-open", TenantID: testTenant, AgentID: testAgent, CustomerID: "cust-1",
		Status: model.VisitInProgress, ScheduledDate: now,
	}
	f.visits["v-done"] = model.Visit{
		ID: "v-done", TenantID: testTenant, AgentID: testAgent, CustomerID: "cust-2",
		Status: model.VisitCompleted, ScheduledDate: now.Add(-24 * time.Hour),
	}
	f.tasks["t-open"] = model.Task{
		ID: "t-open", TenantID: testTenant, VisitID: "v-open",
		TaskType: model.TaskSurvey, Status: model.TaskPending,
	}
	// A task left pending on a closed visit still shows up as outstanding
	// work on the dashboard.
	f.tasks["t-stale"] = model.Task{
		ID: "t-stale", TenantID: testTenant, VisitID: "v-done",
		TaskType: model.TaskPhotoDocumentation, Status: model.TaskPending,
	}
	f.tasks["t-done"] = model.Task{
		ID: "t-done", TenantID: testTenant, VisitID: "v-open",
		TaskType: model.TaskBoardPlacement, Status: model.TaskCompleted,
	}

	d, err := svc.Dashboard(context.Background(), testTenant, testAgent)
	require.NoError(t, err)
	assert.Equal(t, int64(2), d.PendingTasks)
	assert.Equal(t, 1, d.InProgress)
}

func TestCheckOutRejectsBadRating(t *testing.T) {
	f := newFakeStore()
	seedCustomer(f, "cust-1")
	svc := newTestVisitService(f)

	visit, _, err := svc.CheckIn(context.Background(), testTenant, testAgent, checkInAt(3, 5))
	require.NoError(t, err)

	rating := 9
	_, _, err = svc.CheckOut(context.Background(), testTenant, testAgent, &model.CheckOutRequest{
		VisitID: visit.ID,
		Rating:  &rating,
	})
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindValidation))
}
