package model

import (
	"time"

	"gorm.io/gorm"
)

// VisitStatus is the life-cycle state of a field visit.
type VisitStatus string

const (
	VisitScheduled  VisitStatus = "scheduled"
	VisitInProgress VisitStatus = "in_progress"
	VisitCompleted  VisitStatus = "completed"
	VisitCancelled  VisitStatus = "cancelled"
)

// visitTransitions is the only legal transition table. Terminal states have
// no outgoing edges.
var visitTransitions = map[VisitStatus][]VisitStatus{
	VisitScheduled:  {VisitInProgress, VisitCancelled},
	VisitInProgress: {VisitCompleted, VisitCancelled},
	VisitCompleted:  {},
	VisitCancelled:  {},
}

// CanTransition reports whether moving from s to next is legal.
func (s VisitStatus) CanTransition(next VisitStatus) bool {
	for _, allowed := range visitTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether s has no outgoing transitions.
func (s VisitStatus) Terminal() bool {
	return len(visitTransitions[s]) == 0
}

// Valid reports whether s is a known status value.
func (s VisitStatus) Valid() bool {
	_, ok := visitTransitions[s]
	return ok
}

// Visit represents one physical agent-at-customer engagement.
type Visit struct {
	ID         string      `json:"id" gorm:"primaryKey;size:36"`
	TenantID   string      `json:"tenant_id" gorm:"size:36;index;not null"`
	AgentID    string      `json:"agent_id" gorm:"size:36;index;not null"`
	CustomerID string      `json:"customer_id" gorm:"size:36;index;not null"`
	VisitType  string      `json:"visit_type" gorm:"size:30;default:field_visit"`
	Status     VisitStatus `json:"status" gorm:"size:20;not null;default:scheduled"`

	ScheduledDate time.Time  `json:"scheduled_date"`
	CheckInTime   *time.Time `json:"check_in_time"`
	CheckOutTime  *time.Time `json:"check_out_time"`

	CheckInLatitude   *float64 `json:"check_in_latitude"`
	CheckInLongitude  *float64 `json:"check_in_longitude"`
	CheckInAccuracy   *float64 `json:"check_in_accuracy"`
	CheckOutLatitude  *float64 `json:"check_out_latitude"`
	CheckOutLongitude *float64 `json:"check_out_longitude"`
	CheckOutAccuracy  *float64 `json:"check_out_accuracy"`

	// TotalCommission is derived at check-out; not authoritative before then.
	TotalCommission float64 `json:"total_commission"`
	Notes           string  `json:"notes"`
	Rating          *int    `json:"rating"`

	Tasks []Task `json:"tasks,omitempty" gorm:"foreignKey:VisitID"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

// CheckInRequest is the payload for POST /field/check-in.
type CheckInRequest struct {
	CustomerID string   `json:"customer_id" binding:"required"`
	Latitude   *float64 `json:"latitude" binding:"required"`
	Longitude  *float64 `json:"longitude" binding:"required"`
	Accuracy   float64  `json:"accuracy"`
	BrandIDs   []string `json:"brand_ids"`
	VisitID    string   `json:"visit_id"` // optional: check in against a scheduled visit
}

// CheckOutRequest is the payload for POST /field/check-out.
type CheckOutRequest struct {
	VisitID   string   `json:"visit_id" binding:"required"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Accuracy  float64  `json:"accuracy"`
	Notes     string   `json:"notes"`
	Rating    *int     `json:"rating"`
}

// ScheduleVisitRequest is the payload for POST /field/visits.
type ScheduleVisitRequest struct {
	CustomerID    string    `json:"customer_id" binding:"required"`
	ScheduledDate time.Time `json:"scheduled_date" binding:"required"`
	VisitType     string    `json:"visit_type"`
	Notes         string    `json:"notes"`
}

// AgentDashboard summarizes an agent's day for GET /field/dashboard.
type AgentDashboard struct {
	TodayVisits    []Visit           `json:"today_visits"`
	ScheduledToday int               `json:"scheduled_today"`
	InProgress     int               `json:"in_progress"`
	CompletedToday int               `json:"completed_today"`
	PendingTasks   int64             `json:"pending_tasks"`
	ActiveVisitID  *string           `json:"active_visit_id,omitempty"`
	Commissions    CommissionSummary `json:"commissions"`
}

// VisitListQuery filters GET /field/my-visits.
type VisitListQuery struct {
	Status   string `form:"status"`
	FromDate string `form:"from_date"`
	ToDate   string `form:"to_date"`
}
