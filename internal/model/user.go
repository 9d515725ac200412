package model

import (
	"time"

	"gorm.io/gorm"
)

// User represents a field agent or back-office user within a tenant.
type User struct {
	ID       string `json:"id" gorm:"primaryKey;size:36"`
	TenantID string `json:"tenant_id" gorm:"size:36;index;not null"`
	Username string `json:"username" gorm:"uniqueIndex;size:50"`
	Password string `json:"-" gorm:"size:255"` // hashed password
	Email    string `json:"email" gorm:"size:100"`
	Phone    string `json:"phone" gorm:"size:20"`
	Role     string `json:"role" gorm:"size:20;default:'agent'"` // admin, manager, agent
	Status   int    `json:"status" gorm:"default:1"`             // 0: inactive, 1: active

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

// LoginRequest represents login credentials.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse represents login response.
type LoginResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}
