package domain

import "time"

// Subscription is the single entitlement row a user holds. It is only ever
// written by activation from a completed payment.
type Subscription struct {
	UserID          string    `json:"userId"`
	PlanID          string    `json:"planId"`
	ActivatedAt     time.Time `json:"activatedAt"`
	ExpiresAt       time.Time `json:"expiresAt"`
	SourcePaymentID string    `json:"sourcePaymentId"`
	ReceiptNumber   *string   `json:"receiptNumber,omitempty"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// ActiveAt reports whether the subscription grants access at t.
func (s *Subscription) ActiveAt(t time.Time) bool {
	return t.Before(s.ExpiresAt)
}

// SubscriptionStatusResponse is returned by GET /subscription.
type SubscriptionStatusResponse struct {
	Active       bool          `json:"active"`
	Subscription *Subscription `json:"subscription,omitempty"`
	Plan         *Plan         `json:"plan,omitempty"`
}

// EntitlementResponse is returned by GET /subscription/entitlement.
type EntitlementResponse struct {
	PlanID   string `json:"planId"`
	Entitled bool   `json:"entitled"`
}
