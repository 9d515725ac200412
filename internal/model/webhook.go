package model

import (
	"time"

	"gorm.io/gorm"
)

// WebhookEventType enumerates events external collaborators can subscribe to.
type WebhookEventType string

const (
	WebhookEventVisitCheckedIn    WebhookEventType = "visit.checked_in"
	WebhookEventVisitCheckedOut   WebhookEventType = "visit.checked_out"
	WebhookEventVisitCancelled    WebhookEventType = "visit.cancelled"
	WebhookEventCommissionAccrued WebhookEventType = "commission.accrued"
	WebhookEventAll               WebhookEventType = "all"
)

// WebhookStatus is the delivery state of a webhook endpoint.
type WebhookStatus string

const (
	WebhookStatusActive   WebhookStatus = "active"
	WebhookStatusInactive WebhookStatus = "inactive"
	WebhookStatusFailed   WebhookStatus = "failed"
)

// Webhook is a registered endpoint, e.g. the payroll system consuming
// commission accruals.
type Webhook struct {
	ID          string   `json:"id" gorm:"primaryKey;size:36"`
	TenantID    string   `json:"tenant_id" gorm:"size:36;index;not null"`
	Name        string   `json:"name" gorm:"size:100;not null"`
	Description string   `json:"description"`
	URL         string   `json:"url" gorm:"size:500;not null"`
	Secret      string   `json:"-" gorm:"size:255"`
	Events      []string `json:"events" gorm:"serializer:json"`

	Status        WebhookStatus `json:"status" gorm:"size:20;default:active"`
	RetryCount    int           `json:"retry_count" gorm:"default:3"`
	RetryInterval int           `json:"retry_interval" gorm:"default:5"` // seconds
	Timeout       int           `json:"timeout" gorm:"default:30"`      // seconds

	SuccessCount    int        `json:"success_count"`
	FailCount       int        `json:"fail_count"`
	LastTriggeredAt *time.Time `json:"last_triggered_at"`
	LastError       string     `json:"last_error,omitempty"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

// WebhookPayload is the request body posted to an endpoint.
type WebhookPayload struct {
	EventID   string      `json:"event_id"`
	EventType string      `json:"event_type"`
	TenantID  string      `json:"tenant_id"`
	Timestamp int64       `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// CreateWebhookRequest registers a new endpoint.
type CreateWebhookRequest struct {
	Name          string   `json:"name" binding:"required,max=100"`
	Description   string   `json:"description"`
	URL           string   `json:"url" binding:"required,url,max=500"`
	Secret        string   `json:"secret" binding:"max=255"`
	Events        []string `json:"events" binding:"required"`
	RetryCount    int      `json:"retry_count" binding:"min=0,max=10"`
	RetryInterval int      `json:"retry_interval" binding:"omitempty,min=1,max=300"`
	Timeout       int      `json:"timeout" binding:"omitempty,min=1,max=300"`
}
