package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/generatororacle/backend/internal/contextkeys"
	"github.com/generatororacle/backend/internal/domain"
)

// AuthService is the account surface used by AuthHandler.
type AuthService interface {
	Register(ctx context.Context, req *domain.RegisterRequest) (*domain.UserResponse, error)
	Login(ctx context.Context, req *domain.LoginRequest, meta domain.SessionMeta) (*domain.LoginResult, error)
	Logout(ctx context.Context, token string) error
	LogoutAllDevices(ctx context.Context, userID string) (int64, error)
	ChangePassword(ctx context.Context, userID string, req *domain.ChangePasswordRequest) error
}

// SessionService resolves and manages sessions.
type SessionService interface {
	Validate(ctx context.Context, token string) (*domain.ValidatedSession, error)
	ListActive(ctx context.Context, userID string) ([]*domain.Session, error)
	RevokeByID(ctx context.Context, userID, sessionID string) error
}

// AuthHandler handles authentication HTTP endpoints.
type AuthHandler struct {
	auth     AuthService
	sessions SessionService
	cookies  Cookies
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(auth AuthService, sessions SessionService, cookies Cookies) *AuthHandler {
	return &AuthHandler{auth: auth, sessions: sessions, cookies: cookies}
}

// Register handles POST /auth/register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		Error(w, err)
		return
	}

	user, err := h.auth.Register(r.Context(), &req)
	if err != nil {
		Error(w, err)
		return
	}

	JSON(w, http.StatusCreated, map[string]any{"user": user})
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		Error(w, err)
		return
	}

	res, err := h.auth.Login(r.Context(), &req, sessionMeta(r))
	if err != nil {
		Error(w, err)
		return
	}

	h.cookies.Set(w, res.SessionToken)
	JSON(w, http.StatusOK, map[string]any{"user": res.User, "expiresAt": res.ExpiresAt})
}

// Logout handles POST /auth/logout. It always succeeds.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	_ = h.auth.Logout(r.Context(), SessionToken(r))
	h.cookies.Clear(w)
	JSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Session handles GET /auth/session.
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	v, err := h.sessions.Validate(r.Context(), SessionToken(r))
	if err != nil {
		msg := "not authenticated"
		if appErr, ok := domain.AsAppError(err); ok && appErr.Kind == domain.KindSession {
			msg = appErr.Message
			h.cookies.Clear(w)
		}
		JSON(w, http.StatusUnauthorized, map[string]any{"authenticated": false, "error": msg})
		return
	}

	JSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"user":          v.User.Public(),
		"expiresAt":     v.Session.ExpiresAt,
	})
}

// LogoutAll handles DELETE /auth/session.
func (h *AuthHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	n, err := h.auth.LogoutAllDevices(r.Context(), contextkeys.String(r.Context(), contextkeys.UserID))
	if err != nil {
		Error(w, err)
		return
	}
	h.cookies.Clear(w)
	JSON(w, http.StatusOK, map[string]any{"success": true, "revoked": n})
}

type sessionView struct {
	*domain.Session
	Current bool `json:"current"`
}

// ListSessions handles GET /auth/sessions.
func (h *AuthHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessions, err := h.sessions.ListActive(ctx, contextkeys.String(ctx, contextkeys.UserID))
	if err != nil {
		Error(w, err)
		return
	}

	current := contextkeys.String(ctx, contextkeys.SessionID)
	out := make([]sessionView, len(sessions))
	for i, s := range sessions {
		out[i] = sessionView{Session: s, Current: s.ID == current}
	}
	JSON(w, http.StatusOK, out)
}

// RevokeSession handles DELETE /auth/sessions/{id}.
func (h *AuthHandler) RevokeSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	if err := h.sessions.RevokeByID(ctx, contextkeys.String(ctx, contextkeys.UserID), id); err != nil {
		Error(w, err)
		return
	}
	if id == contextkeys.String(ctx, contextkeys.SessionID) {
		h.cookies.Clear(w)
	}
	JSON(w, http.StatusOK, map[string]bool{"success": true})
}

// ChangePassword handles POST /auth/password.
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req domain.ChangePasswordRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		Error(w, err)
		return
	}

	if err := h.auth.ChangePassword(r.Context(), contextkeys.String(r.Context(), contextkeys.UserID), &req); err != nil {
		Error(w, err)
		return
	}
	h.cookies.Clear(w)
	JSON(w, http.StatusOK, map[string]bool{"success": true})
}
