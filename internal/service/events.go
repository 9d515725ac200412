package service

import (
	"encoding/json"
	"log"
	"time"

	"github.com/nats-io/nats.go"
)

// NATS subjects published by the workflow engine. Webhook fan-out and the
// live tracking hub subscribe to these.
const (
	SubjectVisitCheckedIn    = "field.visit.checked_in"
	SubjectVisitCheckedOut   = "field.visit.checked_out"
	SubjectVisitCancelled    = "field.visit.cancelled"
	SubjectCommissionAccrued = "field.commission.accrued"
	SubjectGPSSample         = "field.gps.sample"
)

// Event is the envelope for every published message.
type Event struct {
	Subject   string      `json:"subject"`
	TenantID  string      `json:"tenant_id"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// publishEvent fires an event without blocking the request path. Delivery is
// best effort; a dead broker must not fail a check-in.
func publishEvent(nc *nats.Conn, subject, tenantID string, data interface{}) {
	if nc == nil {
		return
	}
	payload, err := json.Marshal(Event{
		Subject:   subject,
		TenantID:  tenantID,
		Timestamp: time.Now().UTC(),
		Data:      data,
	})
	if err != nil {
		log.Printf("[Events] Failed to marshal %s event: %v", subject, err)
		return
	}
	if err := nc.Publish(subject, payload); err != nil {
		log.Printf("[Events] Failed to publish %s: %v", subject, err)
	}
}
