package handler

import (
	"context"
	"net/http"

	"github.com/generatororacle/backend/internal/contextkeys"
	"github.com/generatororacle/backend/internal/domain"
)

// Entitlements answers subscription questions for the current user.
type Entitlements interface {
	Status(ctx context.Context, userID string) (*domain.SubscriptionStatusResponse, error)
	IsEntitled(ctx context.Context, userID, planID string) (bool, error)
}

type SubscriptionHandler struct {
	subs Entitlements
}

func NewSubscriptionHandler(subs Entitlements) *SubscriptionHandler {
	return &SubscriptionHandler{subs: subs}
}

// Current handles GET /subscription.
func (h *SubscriptionHandler) Current(w http.ResponseWriter, r *http.Request) {
	status, err := h.subs.Status(r.Context(), contextkeys.String(r.Context(), contextkeys.UserID))
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, status)
}

// Entitlement handles GET /subscription/entitlement?plan=.
func (h *SubscriptionHandler) Entitlement(w http.ResponseWriter, r *http.Request) {
	planID := r.URL.Query().Get("plan")
	if planID == "" {
		Error(w, domain.ErrValidation("plan is required"))
		return
	}

	ok, err := h.subs.IsEntitled(r.Context(), contextkeys.String(r.Context(), contextkeys.UserID), planID)
	if err != nil {
		Error(w, err)
		return
	}
	JSON(w, http.StatusOK, domain.EntitlementResponse{PlanID: planID, Entitled: ok})
}
