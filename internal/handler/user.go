package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/generatororacle/backend/internal/contextkeys"
	"github.com/generatororacle/backend/internal/domain"
)

// UserAdmin is the account management surface for admins and managers.
type UserAdmin interface {
	ListUsers(ctx context.Context) ([]*domain.UserResponse, error)
	UpdateRole(ctx context.Context, actorRole, targetID string, req *domain.UpdateRoleRequest) (*domain.UserResponse, error)
	DeactivateUser(ctx context.Context, actorID, targetID string) error
}

// UserHandler handles user management endpoints.
type UserHandler struct {
	users UserAdmin
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(users UserAdmin) *UserHandler {
	return &UserHandler{users: users}
}

// List handles GET /admin/users.
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.ListUsers(r.Context())
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, users)
}

// UpdateRole handles PATCH /admin/users/{id}/role.
func (h *UserHandler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	var req domain.UpdateRoleRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		Error(w, err)
		return
	}

	user, err := h.users.UpdateRole(r.Context(), contextkeys.String(r.Context(), contextkeys.UserRole), chi.URLParam(r, "id"), &req)
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, user)
}

// Deactivate handles POST /admin/users/{id}/deactivate.
func (h *UserHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	if err := h.users.DeactivateUser(r.Context(), contextkeys.String(r.Context(), contextkeys.UserID), chi.URLParam(r, "id")); err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]bool{"success": true})
}
