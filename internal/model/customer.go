package model

import (
	"time"

	"gorm.io/gorm"
)

// Customer is the workflow engine's read model of a store/outlet. Full
// customer CRUD lives with the sales back office; the engine only needs the
// stored coordinates and display fields.
type Customer struct {
	ID       string `json:"id" gorm:"primaryKey;size:36"`
	TenantID string `json:"tenant_id" gorm:"size:36;index;not null"`
	Name     string `json:"name" gorm:"size:200"`
	Phone    string `json:"phone" gorm:"size:30"`
	Address  string `json:"address"`

	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
	GPSAccuracy *float64 `json:"gps_accuracy"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

// CustomerLocationHistory keeps the previous coordinates whenever an agent
// re-registers a customer location in the field.
type CustomerLocationHistory struct {
	ID         string    `json:"id" gorm:"primaryKey;size:36"`
	TenantID   string    `json:"tenant_id" gorm:"size:36;index;not null"`
	CustomerID string    `json:"customer_id" gorm:"size:36;index;not null"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Accuracy   *float64  `json:"accuracy"`
	UpdatedBy  string    `json:"updated_by" gorm:"size:36"`
	Reason     string    `json:"reason"`
	CreatedAt  time.Time `json:"created_at"`
}

// UpdateCustomerLocationRequest is the payload for PUT /gps/customer-location.
type UpdateCustomerLocationRequest struct {
	CustomerID string   `json:"customer_id" binding:"required"`
	Latitude   *float64 `json:"latitude" binding:"required"`
	Longitude  *float64 `json:"longitude" binding:"required"`
	Accuracy   float64  `json:"accuracy"`
	Reason     string   `json:"reason"`
}

// NearbyCustomer is a customer plus its distance from the queried fix.
type NearbyCustomer struct {
	Customer
	DistanceMeters float64 `json:"distance_meters"`
}

// Survey is a brand-scoped questionnaire. Mandatory active surveys become
// mandatory visit tasks.
type Survey struct {
	ID          string `json:"id" gorm:"primaryKey;size:36"`
	TenantID    string `json:"tenant_id" gorm:"size:36;index;not null"`
	BrandID     string `json:"brand_id" gorm:"size:36;index;not null"`
	Title       string `json:"title" gorm:"size:200"`
	Description string `json:"description"`
	Mandatory   bool   `json:"mandatory"`
	Status      string `json:"status" gorm:"size:20;default:active"` // active, archived

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}
