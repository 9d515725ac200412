package model

import (
	"time"
)

// TaskStatus is the life-cycle state of a visit task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskCompleted TaskStatus = "completed"
	TaskSkipped   TaskStatus = "skipped"
)

// TaskType classifies the unit of agent work.
type TaskType string

const (
	TaskSurvey              TaskType = "survey"
	TaskBoardPlacement      TaskType = "board_placement"
	TaskProductDistribution TaskType = "product_distribution"
	TaskPhotoDocumentation  TaskType = "photo_documentation"
)

// Task is one unit of required or optional agent work scoped to a visit.
// Tasks are never deleted, only transitioned.
type Task struct {
	ID       string `json:"id" gorm:"primaryKey;size:36"`
	TenantID string `json:"tenant_id" gorm:"size:36;index;not null"`
	VisitID  string `json:"visit_id" gorm:"size:36;index;not null"`

	TaskType      TaskType   `json:"task_type" gorm:"size:30;not null"`
	Name          string     `json:"name" gorm:"size:200"`
	Description   string     `json:"description"`
	Mandatory     bool       `json:"mandatory" gorm:"not null;default:false"`
	SequenceOrder int        `json:"sequence_order"`
	Status        TaskStatus `json:"status" gorm:"size:20;not null;default:pending"`

	BrandID   *string `json:"brand_id" gorm:"size:36"`
	SurveyID  *string `json:"survey_id" gorm:"size:36"`
	BoardID   *string `json:"board_id" gorm:"size:36"`
	ProductID *string `json:"product_id" gorm:"size:36"`

	CompletedBy *string    `json:"completed_by" gorm:"size:36"`
	CompletedAt *time.Time `json:"completed_at"`
	ResultData  JSONMap    `json:"result_data" gorm:"type:jsonb"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CompleteTaskRequest is the payload for POST /field/visit-task/complete.
type CompleteTaskRequest struct {
	TaskID     string  `json:"task_id" binding:"required"`
	ResultData JSONMap `json:"result_data"`
}

// SkipTaskRequest is the payload for POST /field/visit-task/skip.
type SkipTaskRequest struct {
	TaskID string `json:"task_id" binding:"required"`
	Reason string `json:"reason"`
}
