package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"fieldops/internal/errs"
	"fieldops/internal/geo"
	"fieldops/internal/model"
	"fieldops/internal/store"
)

const customerLocationTTL = 5 * time.Minute

// CustomerService reads and maintains customer coordinates for the visit
// workflow. Location reads are cached in Redis; writes version the previous
// coordinates into the history table.
type CustomerService struct {
	store store.Store
	redis *redis.Client
}

// NewCustomerService creates a new customer service.
func NewCustomerService(st store.Store, redisClient *redis.Client) *CustomerService {
	return &CustomerService{store: st, redis: redisClient}
}

type cachedLocation struct {
	Latitude  float64  `json:"lat"`
	Longitude float64  `json:"lon"`
	Accuracy  *float64 `json:"acc,omitempty"`
}

func customerLocationKey(tenantID, customerID string) string {
	return fmt.Sprintf("fieldops:customer:location:%s:%s", tenantID, customerID)
}

// Get returns the customer record.
func (s *CustomerService) Get(ctx context.Context, tenantID, customerID string) (*model.Customer, error) {
	return s.store.Customers().Get(ctx, tenantID, customerID)
}

// Location returns the customer's stored coordinates. A customer without a
// registered location cannot anchor a geofenced check-in, so that case is a
// state conflict rather than a missing record.
func (s *CustomerService) Location(ctx context.Context, tenantID, customerID string) (geo.Point, *float64, error) {
	key := customerLocationKey(tenantID, customerID)
	if s.redis != nil {
		if raw, err := s.redis.Get(ctx, key).Result(); err == nil {
			var c cachedLocation
			if json.Unmarshal([]byte(raw), &c) == nil {
				return geo.Point{Latitude: c.Latitude, Longitude: c.Longitude}, c.Accuracy, nil
			}
		}
	}

	customer, err := s.store.Customers().Get(ctx, tenantID, customerID)
	if err != nil {
		return geo.Point{}, nil, err
	}
	if customer.Latitude == nil || customer.Longitude == nil {
		return geo.Point{}, nil, errs.StateConflict(
			"customer location not registered",
			map[string]interface{}{"customer_id": customerID},
		)
	}
	p := geo.Point{Latitude: *customer.Latitude, Longitude: *customer.Longitude}

	if s.redis != nil {
		payload, _ := json.Marshal(cachedLocation{
			Latitude:  p.Latitude,
			Longitude: p.Longitude,
			Accuracy:  customer.GPSAccuracy,
		})
		if err := s.redis.Set(ctx, key, payload, customerLocationTTL).Err(); err != nil {
			log.Printf("[Customer] Failed to cache location for %s: %v", customerID, err)
		}
	}
	return p, customer.GPSAccuracy, nil
}

// UpdateLocation re-registers a customer's coordinates from the field. The
// previous coordinates, when present, are versioned into the history table
// inside the same transaction.
func (s *CustomerService) UpdateLocation(ctx context.Context, tenantID, agentID string, req *model.UpdateCustomerLocationRequest) error {
	p := geo.Point{Latitude: *req.Latitude, Longitude: *req.Longitude}
	if err := geo.CheckPoint(p); err != nil {
		return err
	}

	err := s.store.Atomically(ctx, func(st store.Store) error {
		customer, err := st.Customers().Get(ctx, tenantID, req.CustomerID)
		if err != nil {
			return err
		}
		if customer.Latitude != nil && customer.Longitude != nil {
			h := &model.CustomerLocationHistory{
				ID:         uuid.New().String(),
				TenantID:   tenantID,
				CustomerID: customer.ID,
				Latitude:   *customer.Latitude,
				Longitude:  *customer.Longitude,
				Accuracy:   customer.GPSAccuracy,
				UpdatedBy:  agentID,
				Reason:     req.Reason,
			}
			if err := st.Customers().CreateLocationHistory(ctx, h); err != nil {
				return err
			}
		}
		var acc *float64
		if req.Accuracy > 0 {
			acc = &req.Accuracy
		}
		return st.Customers().UpdateLocation(ctx, tenantID, req.CustomerID, p.Latitude, p.Longitude, acc)
	})
	if err != nil {
		return err
	}

	if s.redis != nil {
		if err := s.redis.Del(ctx, customerLocationKey(tenantID, req.CustomerID)).Err(); err != nil {
			log.Printf("[Customer] Failed to invalidate location cache for %s: %v", req.CustomerID, err)
		}
	}
	return nil
}

// Nearby returns customers with stored coordinates within radiusMeters of
// the fix, nearest first.
func (s *CustomerService) Nearby(ctx context.Context, tenantID string, fix geo.Fix, radiusMeters float64) ([]model.NearbyCustomer, error) {
	if err := geo.CheckPoint(fix.Point); err != nil {
		return nil, err
	}
	customers, err := s.store.Customers().ListLocated(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	nearby := make([]model.NearbyCustomer, 0)
	for _, c := range customers {
		if c.Latitude == nil || c.Longitude == nil {
			continue
		}
		d := geo.Distance(fix.Point, geo.Point{Latitude: *c.Latitude, Longitude: *c.Longitude})
		if d <= radiusMeters {
			nearby = append(nearby, model.NearbyCustomer{Customer: c, DistanceMeters: d})
		}
	}
	sort.Slice(nearby, func(i, j int) bool {
		return nearby[i].DistanceMeters < nearby[j].DistanceMeters
	})
	return nearby, nil
}
