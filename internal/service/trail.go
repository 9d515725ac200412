package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"fieldops/internal/errs"
	"fieldops/internal/geo"
	"fieldops/internal/model"
	"fieldops/internal/store"
)

const agentShadowTTL = 10 * time.Minute

// TrailService appends agent GPS samples and reconstructs movement trails.
// Samples are immutable; the trail is always read back in recorded-time
// order regardless of arrival order.
type TrailService struct {
	store store.Store
	redis *redis.Client
	nats  *nats.Conn
}

// NewTrailService creates a new trail service.
func NewTrailService(st store.Store, redisClient *redis.Client, nc *nats.Conn) *TrailService {
	return &TrailService{store: st, redis: redisClient, nats: nc}
}

func agentShadowKey(tenantID, agentID string) string {
	return fmt.Sprintf("fieldops:shadow:%s:%s", tenantID, agentID)
}

// LogSample appends one position sample for the agent. RecordedAt defaults
// to now; delayed clients may backfill the true capture time, which must not
// be in the future.
func (s *TrailService) LogSample(ctx context.Context, tenantID, agentID string, req *model.LogSampleRequest) (*model.GPSSample, error) {
	p := geo.Point{Latitude: *req.Latitude, Longitude: *req.Longitude}
	if err := geo.CheckPoint(p); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	recordedAt := now
	if req.RecordedAt != nil {
		if req.RecordedAt.After(now.Add(time.Minute)) {
			return nil, errs.Validation("recorded_at cannot be in the future")
		}
		recordedAt = req.RecordedAt.UTC()
	}
	activity := req.ActivityType
	if activity == "" {
		activity = model.ActivityPing
	}

	sample := &model.GPSSample{
		ID:            uuid.New().String(),
		TenantID:      tenantID,
		AgentID:       agentID,
		Latitude:      p.Latitude,
		Longitude:     p.Longitude,
		Accuracy:      req.Accuracy,
		Altitude:      req.Altitude,
		Speed:         req.Speed,
		Bearing:       req.Bearing,
		ActivityType:  activity,
		ReferenceType: req.ReferenceType,
		ReferenceID:   req.ReferenceID,
		RecordedAt:    recordedAt,
	}
	if err := s.store.Samples().Create(ctx, sample); err != nil {
		return nil, err
	}

	s.updateShadow(ctx, sample)
	publishEvent(s.nats, SubjectGPSSample, tenantID, sample)
	return sample, nil
}

// Track returns the agent's trail ordered by recorded time, newest first.
func (s *TrailService) Track(ctx context.Context, tenantID, agentID string, q *model.TrackQuery) ([]model.GPSSample, error) {
	var f store.TrackFilter
	var err error
	if f.From, err = parseDate(q.FromDate, false); err != nil {
		return nil, err
	}
	if f.To, err = parseDate(q.ToDate, true); err != nil {
		return nil, err
	}
	f.ActivityType = q.ActivityType
	f.Limit = q.Limit
	return s.store.Samples().ListByAgent(ctx, tenantID, agentID, f)
}

// Shadow returns the agent's latest known fix from Redis, or nil when the
// agent has not reported recently.
func (s *TrailService) Shadow(ctx context.Context, tenantID, agentID string) (*model.AgentShadow, error) {
	if s.redis == nil {
		return nil, nil
	}
	raw, err := s.redis.Get(ctx, agentShadowKey(tenantID, agentID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errs.Store("read agent shadow", err)
	}
	var shadow model.AgentShadow
	if err := json.Unmarshal([]byte(raw), &shadow); err != nil {
		return nil, errs.Store("decode agent shadow", err)
	}
	return &shadow, nil
}

// updateShadow keeps the latest fix per agent in Redis for live tracking.
func (s *TrailService) updateShadow(ctx context.Context, sample *model.GPSSample) {
	if s.redis == nil {
		return
	}
	payload, _ := json.Marshal(model.AgentShadow{
		AgentID:    sample.AgentID,
		Latitude:   sample.Latitude,
		Longitude:  sample.Longitude,
		Accuracy:   sample.Accuracy,
		Activity:   sample.ActivityType,
		RecordedAt: sample.RecordedAt.Unix(),
	})
	key := agentShadowKey(sample.TenantID, sample.AgentID)
	if err := s.redis.Set(ctx, key, payload, agentShadowTTL).Err(); err != nil {
		log.Printf("[Trail] Failed to update shadow for agent %s: %v", sample.AgentID, err)
	}
}
