package model

import (
	"time"
)

// CommissionStatus is the payroll-side state of a commission line. The
// workflow engine only ever creates lines in pending; later transitions are
// driven by the payroll collaborator.
type CommissionStatus string

const (
	CommissionPending  CommissionStatus = "pending"
	CommissionApproved CommissionStatus = "approved"
	CommissionPaid     CommissionStatus = "paid"
)

var commissionTransitions = map[CommissionStatus][]CommissionStatus{
	CommissionPending:  {CommissionApproved},
	CommissionApproved: {CommissionPaid},
	CommissionPaid:     {},
}

// CanTransition reports whether moving from s to next is legal.
func (s CommissionStatus) CanTransition(next CommissionStatus) bool {
	for _, allowed := range commissionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Valid reports whether s is a known status value.
func (s CommissionStatus) Valid() bool {
	_, ok := commissionTransitions[s]
	return ok
}

// CommissionLine is one payable amount attributed to a completed task (or a
// visit-level activity when TaskID is nil). Created only at check-out; the
// unique idempotency key makes the emission safe across retries and restarts.
type CommissionLine struct {
	ID       string `json:"id" gorm:"primaryKey;size:36"`
	TenantID string `json:"tenant_id" gorm:"size:36;index;not null"`
	AgentID  string `json:"agent_id" gorm:"size:36;index;not null"`
	VisitID  string `json:"visit_id" gorm:"size:36;index;not null"`

	TaskID       *string          `json:"task_id" gorm:"size:36"`
	ActivityType TaskType         `json:"activity_type" gorm:"size:30;not null"`
	Amount       float64          `json:"amount" gorm:"not null"`
	Currency     string           `json:"currency" gorm:"size:3;not null"`
	Status       CommissionStatus `json:"status" gorm:"size:20;not null;default:pending"`

	// NeedsReview marks lines where the payable amount could not be derived
	// from the task payload and was zeroed instead.
	NeedsReview    bool   `json:"needs_review"`
	IdempotencyKey string `json:"-" gorm:"size:64;uniqueIndex"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CommissionListQuery filters GET /commissions.
type CommissionListQuery struct {
	Status   string `form:"status"`
	FromDate string `form:"from_date"`
	ToDate   string `form:"to_date"`
}

// UpdateCommissionStatusRequest is the payload for POST /commissions/:id/status.
type UpdateCommissionStatusRequest struct {
	Status CommissionStatus `json:"status" binding:"required"`
}

// CommissionSummary aggregates amounts per status for the dashboard.
type CommissionSummary struct {
	Earned  float64 `json:"earned"`
	Pending float64 `json:"pending"`
	Paid    float64 `json:"paid"`
}
