package model

import (
	"time"
)

// GPS activity tags. Samples are written once and never mutated.
const (
	ActivityCheckIn        = "check_in"
	ActivityCheckOut       = "check_out"
	ActivityPing           = "ping"
	ActivityProximityCheck = "proximity_check"
)

// GPSSample is one append-only agent position record, optionally tied to a
// visit-lifecycle event. Ordering for trail reconstruction is by RecordedAt,
// never by insertion order: retried submissions can arrive out of order.
type GPSSample struct {
	ID       string `json:"id" gorm:"primaryKey;size:36"`
	TenantID string `json:"tenant_id" gorm:"size:36;index;not null"`
	AgentID  string `json:"agent_id" gorm:"size:36;index;not null"`

	Latitude  float64  `json:"latitude" gorm:"not null"`
	Longitude float64  `json:"longitude" gorm:"not null"`
	Accuracy  float64  `json:"accuracy"`
	Altitude  *float64 `json:"altitude"`
	Speed     *float64 `json:"speed"`
	Bearing   *float64 `json:"bearing"`

	ActivityType  string    `json:"activity_type" gorm:"size:30;index"`
	ReferenceType string    `json:"reference_type" gorm:"size:30"`
	ReferenceID   string    `json:"reference_id" gorm:"size:36;index"`
	RecordedAt    time.Time `json:"recorded_at" gorm:"index;not null"`

	CreatedAt time.Time `json:"created_at"`
}

// LogSampleRequest is the payload for POST /gps/log.
type LogSampleRequest struct {
	Latitude      *float64 `json:"latitude" binding:"required"`
	Longitude     *float64 `json:"longitude" binding:"required"`
	Accuracy      float64  `json:"accuracy"`
	Altitude      *float64 `json:"altitude"`
	Speed         *float64 `json:"speed"`
	Bearing       *float64 `json:"bearing"`
	ActivityType  string   `json:"activity_type"`
	ReferenceType string   `json:"reference_type"`
	ReferenceID   string   `json:"reference_id"`
	// RecordedAt lets delayed clients backfill the true capture time.
	RecordedAt *time.Time `json:"recorded_at"`
}

// AgentShadow is the latest known fix for an agent (kept in Redis).
type AgentShadow struct {
	AgentID    string  `json:"agent_id"`
	Latitude   float64 `json:"lat"`
	Longitude  float64 `json:"lon"`
	Accuracy   float64 `json:"acc"`
	Activity   string  `json:"activity,omitempty"`
	RecordedAt int64   `json:"ts"`
}

// TrackQuery filters GET /gps/agents/:agent_id/track.
type TrackQuery struct {
	FromDate     string `form:"from_date"`
	ToDate       string `form:"to_date"`
	ActivityType string `form:"activity_type"`
	Limit        int    `form:"limit"`
}
