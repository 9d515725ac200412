package service

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"gorm.io/gorm"

	"fieldops/internal/model"
)

const (
	WebhookSignatureHeader = "X-Webhook-Signature"
	WebhookTimestampHeader = "X-Webhook-Timestamp"
	WebhookEventHeader     = "X-Webhook-Event"
	WebhookIDHeader        = "X-Webhook-ID"

	// MaxFailCount disables an endpoint after this many failed deliveries.
	MaxFailCount = 100
)

// WebhookService fans workflow events out to registered endpoints, e.g. the
// payroll system consuming commission accruals. Events arrive over NATS from
// the workflow engine; delivery is signed, retried, and per-tenant.
type WebhookService struct {
	db         *gorm.DB
	httpClient *http.Client
}

// NewWebhookService creates a new webhook service.
func NewWebhookService(db *gorm.DB) *WebhookService {
	return &WebhookService{
		db: db,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Subscribe bridges NATS workflow events into webhook deliveries. The
// "field." prefix is stripped, so subject field.visit.checked_in becomes
// event type visit.checked_in.
func (s *WebhookService) Subscribe(nc *nats.Conn) (*nats.Subscription, error) {
	return nc.Subscribe("field.>", func(msg *nats.Msg) {
		var event Event
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			log.Printf("[Webhook] Dropping malformed event on %s: %v", msg.Subject, err)
			return
		}
		if msg.Subject == SubjectGPSSample {
			// Position pings are too chatty for webhook fan-out; the
			// tracking hub serves them over WebSocket instead.
			return
		}
		eventType := strings.TrimPrefix(msg.Subject, "field.")
		if err := s.TriggerEvent(context.Background(), event.TenantID, eventType, event.Data); err != nil {
			log.Printf("[Webhook] Failed to trigger %s: %v", eventType, err)
		}
	})
}

// Create registers a new endpoint.
func (s *WebhookService) Create(ctx context.Context, tenantID string, req *model.CreateWebhookRequest) (*model.Webhook, error) {
	webhook := &model.Webhook{
		ID:            uuid.New().String(),
		TenantID:      tenantID,
		Name:          req.Name,
		Description:   req.Description,
		URL:           req.URL,
		Secret:        req.Secret,
		Events:        req.Events,
		Status:        model.WebhookStatusActive,
		RetryCount:    req.RetryCount,
		RetryInterval: req.RetryInterval,
		Timeout:       req.Timeout,
	}
	if webhook.RetryCount == 0 {
		webhook.RetryCount = 3
	}
	if webhook.RetryInterval == 0 {
		webhook.RetryInterval = 5
	}
	if webhook.Timeout == 0 {
		webhook.Timeout = 30
	}

	if err := s.db.WithContext(ctx).Create(webhook).Error; err != nil {
		return nil, fmt.Errorf("create webhook failed: %w", err)
	}
	return webhook, nil
}

// Get returns one webhook within the tenant.
func (s *WebhookService) Get(ctx context.Context, tenantID, id string) (*model.Webhook, error) {
	var webhook model.Webhook
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&webhook).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("webhook not found")
		}
		return nil, err
	}
	return &webhook, nil
}

// List returns the tenant's webhooks.
func (s *WebhookService) List(ctx context.Context, tenantID string) ([]model.Webhook, error) {
	var webhooks []model.Webhook
	err := s.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at DESC").
		Find(&webhooks).Error
	return webhooks, err
}

// Delete soft-deletes a webhook.
func (s *WebhookService) Delete(ctx context.Context, tenantID, id string) error {
	return s.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Delete(&model.Webhook{}).Error
}

// ToggleStatus flips a webhook between active and inactive.
func (s *WebhookService) ToggleStatus(ctx context.Context, tenantID, id string) (*model.WebhookStatus, error) {
	webhook, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	var newStatus model.WebhookStatus
	if webhook.Status == model.WebhookStatusActive {
		newStatus = model.WebhookStatusInactive
	} else {
		newStatus = model.WebhookStatusActive
	}

	if err := s.db.WithContext(ctx).Model(webhook).Updates(map[string]interface{}{
		"status":     newStatus,
		"updated_at": time.Now(),
	}).Error; err != nil {
		return nil, err
	}
	return &newStatus, nil
}

// TriggerEvent sends the event to every active endpoint subscribed to it.
func (s *WebhookService) TriggerEvent(ctx context.Context, tenantID, eventType string, data interface{}) error {
	var webhooks []model.Webhook
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND status = ?", tenantID, model.WebhookStatusActive).
		Find(&webhooks).Error
	if err != nil {
		return fmt.Errorf("query webhooks failed: %w", err)
	}

	subscribed := webhooks[:0]
	for _, w := range webhooks {
		if subscribesTo(w.Events, eventType) {
			subscribed = append(subscribed, w)
		}
	}
	if len(subscribed) == 0 {
		return nil
	}

	eventID := uuid.New().String()
	payloadBytes, err := json.Marshal(model.WebhookPayload{
		EventID:   eventID,
		EventType: eventType,
		TenantID:  tenantID,
		Timestamp: time.Now().UnixMilli(),
		Data:      data,
	})
	if err != nil {
		return fmt.Errorf("marshal payload failed: %w", err)
	}

	for i := range subscribed {
		go s.sendWebhookWithRetry(&subscribed[i], eventType, eventID, payloadBytes)
	}
	return nil
}

// Events are stored as a JSON array, so the match happens here rather than
// in SQL.
func subscribesTo(events []string, eventType string) bool {
	for _, e := range events {
		if e == eventType || e == string(model.WebhookEventAll) {
			return true
		}
	}
	return false
}

// sendWebhookWithRetry delivers one event with the endpoint's retry policy.
func (s *WebhookService) sendWebhookWithRetry(webhook *model.Webhook, eventType, eventID string, payload []byte) {
	var lastErr error

	for attempt := 1; attempt <= webhook.RetryCount+1; attempt++ {
		if attempt > 1 {
			time.Sleep(time.Duration(webhook.RetryInterval) * time.Second)
		}

		success, statusCode, _, err := s.sendWebhook(webhook, eventType, eventID, payload)
		if success {
			s.db.Model(webhook).Updates(map[string]interface{}{
				"success_count":     gorm.Expr("success_count + 1"),
				"last_triggered_at": time.Now(),
				"last_error":        "",
			})
			return
		}
		if err != nil {
			lastErr = err
		} else {
			lastErr = fmt.Errorf("endpoint returned status %d", statusCode)
		}
	}

	errorMsg := ""
	if lastErr != nil {
		errorMsg = lastErr.Error()
	}
	updates := map[string]interface{}{
		"fail_count":        gorm.Expr("fail_count + 1"),
		"last_triggered_at": time.Now(),
		"last_error":        errorMsg,
	}
	// Endpoints that keep failing get disabled instead of hammered forever.
	if webhook.FailCount+1 >= MaxFailCount {
		updates["status"] = model.WebhookStatusFailed
	}
	s.db.Model(webhook).Updates(updates)

	log.Printf("[Webhook] Failed to send webhook %s after %d attempts: %v",
		webhook.ID, webhook.RetryCount+1, lastErr)
}

// sendWebhook performs one signed delivery attempt.
func (s *WebhookService) sendWebhook(webhook *model.Webhook, eventType, eventID string, payload []byte) (bool, int, string, error) {
	req, err := http.NewRequest(http.MethodPost, webhook.URL, bytes.NewBuffer(payload))
	if err != nil {
		return false, 0, "", fmt.Errorf("create request failed: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "FieldOps-Webhook/1.0")
	req.Header.Set(WebhookEventHeader, eventType)
	req.Header.Set(WebhookIDHeader, eventID)

	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	req.Header.Set(WebhookTimestampHeader, timestamp)
	if webhook.Secret != "" {
		req.Header.Set(WebhookSignatureHeader, s.GenerateSignature(payload, timestamp, webhook.Secret))
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(webhook.Timeout)*time.Second)
	defer cancel()
	req = req.WithContext(ctx)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return false, 0, "", fmt.Errorf("send request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	success := resp.StatusCode >= 200 && resp.StatusCode < 300
	return success, resp.StatusCode, string(body), nil
}

// GenerateSignature computes hex(hmac-sha256(timestamp + "." + payload)).
func (s *WebhookService) GenerateSignature(payload []byte, timestamp, secret string) string {
	message := timestamp + "." + string(payload)
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(message))
	return hex.EncodeToString(h.Sum(nil))
}

// VerifySignature checks a signature in constant time.
func (s *WebhookService) VerifySignature(payload []byte, timestamp, signature, secret string) bool {
	expected := s.GenerateSignature(payload, timestamp, secret)
	return hmac.Equal([]byte(signature), []byte(expected))
}
