package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fieldops/internal/errs"
	"fieldops/internal/geo"
	"fieldops/internal/model"
)

func locatedCustomer(id string, metersNorth float64) model.Customer {
	lat := baseLat + metersNorth*degPerMeter
	lon := baseLon
	return model.Customer{ID: id, TenantID: testTenant, Latitude: &lat, Longitude: &lon}
}

func TestNearbySortedByDistance(t *testing.T) {
	f := newFakeStore()
	f.customers["far"] = locatedCustomer("far", 800)
	f.customers["near"] = locatedCustomer("near", 50)
	f.customers["mid"] = locatedCustomer("mid", 300)
	f.customers["out"] = locatedCustomer("out", 5000)
	f.customers["unlocated"] = model.Customer{ID: "unlocated", TenantID: testTenant}
	svc := NewCustomerService(f, nil)

	fix := geo.Fix{Point: geo.Point{Latitude: baseLat, Longitude: baseLon}}
	nearby, err := svc.Nearby(context.Background(), testTenant, fix, 1000)
	require.NoError(t, err)

	require.Len(t, nearby, 3)
	assert.Equal(t, "near", nearby[0].ID)
	assert.Equal(t, "mid", nearby[1].ID)
	assert.Equal(t, "far", nearby[2].ID)
	assert.InDelta(t, 50, nearby[0].DistanceMeters, 1)
}

func TestUpdateLocationVersionsPrevious(t *testing.T) {
	f := newFakeStore()
	f.customers["cust-1"] = locatedCustomer("cust-1", 0)
	svc := NewCustomerService(f, nil)

	newLat := baseLat + 0.001
	err := svc.UpdateLocation(context.Background(), testTenant, testAgent, &model.UpdateCustomerLocationRequest{
		CustomerID: "cust-1",
		Latitude:   &newLat,
		Longitude:  ptr(baseLon),
		Accuracy:   6,
		Reason:     "store moved across the street",
	})
	require.NoError(t, err)

	updated, err := svc.Get(context.Background(), testTenant, "cust-1")
	require.NoError(t, err)
	assert.Equal(t, newLat, *updated.Latitude)

	require.Len(t, f.histories, 1)
	assert.Equal(t, baseLat, f.histories[0].Latitude)
	assert.Equal(t, testAgent, f.histories[0].UpdatedBy)
	assert.Equal(t, "store moved across the street", f.histories[0].Reason)
}

func TestUpdateLocationFirstRegistrationSkipsHistory(t *testing.T) {
	f := newFakeStore()
	f.customers["cust-1"] = model.Customer{ID: "cust-1", TenantID: testTenant}
	svc := NewCustomerService(f, nil)

	err := svc.UpdateLocation(context.Background(), testTenant, testAgent, &model.UpdateCustomerLocationRequest{
		CustomerID: "cust-1",
		Latitude:   ptr(baseLat),
		Longitude:  ptr(baseLon),
	})
	require.NoError(t, err)
	assert.Empty(t, f.histories)

	// Now a location exists, so check-in anchoring works.
	p, _, err := svc.Location(context.Background(), testTenant, "cust-1")
	require.NoError(t, err)
	assert.Equal(t, baseLat, p.Latitude)
}

func TestLocationUnregisteredIsConflict(t *testing.T) {
	f := newFakeStore()
	f.customers["cust-1"] = model.Customer{ID: "cust-1", TenantID: testTenant}
	svc := NewCustomerService(f, nil)

	_, _, err := svc.Location(context.Background(), testTenant, "cust-1")
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindStateConflict))

	_, _, err = svc.Location(context.Background(), testTenant, "missing")
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindNotFound))
}

func TestUpdateLocationRejectsBadCoordinates(t *testing.T) {
	f := newFakeStore()
	f.customers["cust-1"] = locatedCustomer("cust-1", 0)
	svc := NewCustomerService(f, nil)

	err := svc.UpdateLocation(context.Background(), testTenant, testAgent, &model.UpdateCustomerLocationRequest{
		CustomerID: "cust-1",
		Latitude:   ptr(100),
		Longitude:  ptr(baseLon),
	})
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindValidation))
}
