package domain

import (
	"time"

	"github.com/google/uuid"
)

// Roles known to the diagnostic product.
const (
	RoleAdmin      = "admin"
	RoleManager    = "manager"
	RoleTechnician = "technician"
	RoleViewer     = "viewer"
)

// User is a registered account. Users are never hard-deleted.
type User struct {
	ID             string     `json:"id"`
	Email          string     `json:"email"`
	PasswordHash   string     `json:"-"` // bcrypt hash, never serialized
	Name           string     `json:"name"`
	Phone          string     `json:"phone,omitempty"`
	OrganizationID *string    `json:"organizationId,omitempty"`
	LicenseKey     *string    `json:"licenseKey,omitempty"`
	Role           string     `json:"role"`
	IsActive       bool       `json:"isActive"`
	LastLogin      *time.Time `json:"lastLogin,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// UserResponse is the public projection of a user (no password hash).
type UserResponse struct {
	ID             string     `json:"id"`
	Email          string     `json:"email"`
	Name           string     `json:"name"`
	Phone          string     `json:"phone,omitempty"`
	OrganizationID *string    `json:"organizationId,omitempty"`
	LicenseKey     *string    `json:"licenseKey,omitempty"`
	Role           string     `json:"role"`
	IsActive       bool       `json:"isActive"`
	LastLogin      *time.Time `json:"lastLogin,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// Public returns the safe projection of u.
func (u *User) Public() *UserResponse {
	return &UserResponse{
		ID:             u.ID,
		Email:          u.Email,
		Name:           u.Name,
		Phone:          u.Phone,
		OrganizationID: u.OrganizationID,
		LicenseKey:     u.LicenseKey,
		Role:           u.Role,
		IsActive:       u.IsActive,
		LastLogin:      u.LastLogin,
		CreatedAt:      u.CreatedAt,
	}
}

// RegisterRequest is the validated input for self-registration.
type RegisterRequest struct {
	Email          string  `json:"email" validate:"required,email,max=254"`
	Password       string  `json:"password" validate:"required,max=128"`
	Name           string  `json:"name" validate:"omitempty,max=100"`
	Phone          string  `json:"phone" validate:"omitempty,max=20"`
	OrganizationID *string `json:"organizationId" validate:"omitempty,max=64"`
	LicenseKey     *string `json:"licenseKey" validate:"omitempty,max=64"`
	Role           string  `json:"role" validate:"omitempty,oneof=admin manager technician viewer"`
}

// LoginRequest is the input for POST /auth/login.
type LoginRequest struct {
	Email             string `json:"email" validate:"required"`
	Password          string `json:"password" validate:"required"`
	DeviceFingerprint string `json:"deviceFingerprint" validate:"omitempty,max=256"`
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	User         *UserResponse `json:"user"`
	SessionToken string        `json:"-"`
	ExpiresAt    time.Time     `json:"expiresAt"`
}

// ChangePasswordRequest is the input for POST /auth/password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,max=128"`
}

// UpdateRoleRequest is the input for PATCH /admin/users/{id}/role.
type UpdateRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=admin manager technician viewer"`
}

// NewUserID generates a new UUID for a user.
func NewUserID() string {
	return uuid.New().String()
}
