package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/generatororacle/backend/internal/domain"
	"github.com/generatororacle/backend/internal/lib/sl"
	"github.com/generatororacle/backend/internal/obs"
	"github.com/generatororacle/backend/internal/repository"
)

// BcryptCost is the work factor for stored password hashes.
const BcryptCost = 12

// AuthService handles registration, login and account management.
type AuthService struct {
	users         UserStore
	sessions      *SessionService
	throttle      LoginThrottle
	validate      *validator.Validate
	adminEmail    string
	adminPassword string
	cost          int
	log           *slog.Logger
	now           func() time.Time

	dummyOnce sync.Once
	dummyHash []byte
}

// NewAuthService creates a new AuthService. A nil throttle disables lockout.
func NewAuthService(users UserStore, sessions *SessionService, throttle LoginThrottle, adminEmail, adminPassword string, log *slog.Logger) *AuthService {
	if throttle == nil {
		throttle = noThrottle{}
	}
	return &AuthService{
		users:         users,
		sessions:      sessions,
		throttle:      throttle,
		validate:      validator.New(),
		adminEmail:    normalizeEmail(adminEmail),
		adminPassword: adminPassword,
		cost:          BcryptCost,
		log:           log,
		now:           time.Now,
	}
}

type noThrottle struct{}

func (noThrottle) Blocked(context.Context, string) (bool, error) { return false, nil }
func (noThrottle) RecordFailure(context.Context, string) error   { return nil }
func (noThrottle) Reset(context.Context, string) error           { return nil }

func (s *AuthService) hash(pw string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(pw), s.cost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// SeedAdmin creates the configured admin account if it doesn't exist.
func (s *AuthService) SeedAdmin(ctx context.Context) error {
	if s.adminEmail == "" || s.adminPassword == "" {
		s.log.Info("admin seed skipped, ADMIN_EMAIL or ADMIN_PASSWORD not set")
		return nil
	}

	exists, err := s.users.Exists(ctx, s.adminEmail)
	if err != nil {
		return fmt.Errorf("failed to check admin existence: %w", err)
	}
	if exists {
		s.log.Info("admin user already exists", slog.String("email", s.adminEmail))
		return nil
	}

	hashed, err := s.hash(s.adminPassword)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}

	now := s.now()
	admin := &domain.User{
		ID:           domain.NewUserID(),
		Email:        s.adminEmail,
		PasswordHash: hashed,
		Name:         "Administrator",
		Role:         domain.RoleAdmin,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, admin); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil
		}
		return fmt.Errorf("failed to create admin user: %w", err)
	}

	s.log.Info("admin user created", slog.String("email", s.adminEmail))
	return nil
}

// Register creates a self-service account. Only the technician and viewer
// roles can be chosen here.
func (s *AuthService) Register(ctx context.Context, req *domain.RegisterRequest) (*domain.UserResponse, error) {
	req.Email = normalizeEmail(req.Email)
	if err := s.validate.Struct(req); err != nil {
		return nil, domain.ErrValidation(formatValidationErrors(err))
	}
	if err := checkPassword(req.Password); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}

	role := req.Role
	switch role {
	case "":
		role = domain.RoleTechnician
	case domain.RoleTechnician, domain.RoleViewer:
	default:
		return nil, domain.ErrValidation("role is not available for self-registration")
	}

	exists, err := s.users.Exists(ctx, req.Email)
	if err != nil {
		return nil, domain.ErrInternal("failed to check user", err)
	}
	if exists {
		return nil, domain.ErrConflict("email already registered")
	}

	hashed, err := s.hash(req.Password)
	if err != nil {
		return nil, domain.ErrInternal("failed to hash password", err)
	}

	now := s.now()
	user := &domain.User{
		ID:             domain.NewUserID(),
		Email:          req.Email,
		PasswordHash:   hashed,
		Name:           req.Name,
		Phone:          req.Phone,
		OrganizationID: req.OrganizationID,
		LicenseKey:     req.LicenseKey,
		Role:           role,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, domain.ErrConflict("email already registered")
		}
		return nil, domain.ErrInternal("failed to create user", err)
	}

	s.log.Info("user registered", slog.String("user_id", user.ID), slog.String("role", role))
	return user.Public(), nil
}

// Login verifies credentials and opens a new session.
func (s *AuthService) Login(ctx context.Context, req *domain.LoginRequest, meta domain.SessionMeta) (*domain.LoginResult, error) {
	email := normalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		return nil, domain.ErrValidation("email and password are required")
	}

	blocked, err := s.throttle.Blocked(ctx, email)
	if err != nil {
		s.log.Warn("login throttle unavailable", sl.Err(err))
	}
	if blocked {
		obs.Logins.WithLabelValues("throttled").Inc()
		return nil, domain.ErrTooManyAttempts()
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, domain.ErrInternal("failed to find user", err)
	}
	if user == nil {
		s.compareDummy(req.Password)
		return nil, s.loginFailed(ctx, email)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, s.loginFailed(ctx, email)
	}
	if !user.IsActive {
		return nil, s.loginFailed(ctx, email)
	}

	if err := s.throttle.Reset(ctx, email); err != nil {
		s.log.Warn("failed to reset login throttle", sl.Err(err))
	}

	meta.DeviceFingerprint = req.DeviceFingerprint
	token, sess, err := s.sessions.Issue(ctx, user.ID, meta)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if err := s.users.TouchLastLogin(ctx, user.ID, now); err != nil {
		s.log.Warn("failed to record last login", slog.String("user_id", user.ID), sl.Err(err))
	} else {
		user.LastLogin = &now
	}

	obs.Logins.WithLabelValues("success").Inc()
	s.log.Info("user logged in", slog.String("user_id", user.ID), slog.String("session_id", sess.ID))

	return &domain.LoginResult{
		User:         user.Public(),
		SessionToken: token,
		ExpiresAt:    sess.ExpiresAt,
	}, nil
}

func (s *AuthService) loginFailed(ctx context.Context, email string) error {
	if err := s.throttle.RecordFailure(ctx, email); err != nil {
		s.log.Warn("failed to record login failure", sl.Err(err))
	}
	obs.Logins.WithLabelValues("failed").Inc()
	return domain.ErrAuth()
}

// compareDummy burns a bcrypt comparison so unknown emails take as long as wrong passwords.
func (s *AuthService) compareDummy(pw string) {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-password"), s.cost)
	})
	_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(pw))
}

// Logout revokes the session behind token.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	return s.sessions.Revoke(ctx, token)
}

// LogoutAllDevices revokes every session of the user.
func (s *AuthService) LogoutAllDevices(ctx context.Context, userID string) (int64, error) {
	return s.sessions.RevokeAll(ctx, userID)
}

// ChangePassword replaces the password and signs the user out everywhere.
func (s *AuthService) ChangePassword(ctx context.Context, userID string, req *domain.ChangePasswordRequest) error {
	if err := s.validate.Struct(req); err != nil {
		return domain.ErrValidation(formatValidationErrors(err))
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return domain.ErrInternal("failed to find user", err)
	}
	if user == nil {
		return domain.ErrNotFound("user not found")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.CurrentPassword)); err != nil {
		return domain.ErrUnauthorized("current password is incorrect")
	}
	if err := checkPassword(req.NewPassword); err != nil {
		return domain.ErrValidation(err.Error())
	}

	hashed, err := s.hash(req.NewPassword)
	if err != nil {
		return domain.ErrInternal("failed to hash password", err)
	}
	if err := s.users.UpdatePassword(ctx, userID, hashed); err != nil {
		return domain.ErrInternal("failed to update password", err)
	}

	_, err = s.sessions.RevokeAll(ctx, userID)
	return err
}

// GetUserByID returns a user profile by ID.
func (s *AuthService) GetUserByID(ctx context.Context, id string) (*domain.UserResponse, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, domain.ErrInternal("failed to find user", err)
	}
	if user == nil {
		return nil, domain.ErrNotFound("user not found")
	}
	return user.Public(), nil
}

// ListUsers returns all users.
func (s *AuthService) ListUsers(ctx context.Context) ([]*domain.UserResponse, error) {
	users, err := s.users.ListAll(ctx)
	if err != nil {
		return nil, domain.ErrInternal("failed to list users", err)
	}
	responses := make([]*domain.UserResponse, len(users))
	for i, u := range users {
		responses[i] = u.Public()
	}
	return responses, nil
}

// UpdateRole changes a user's role. Managers may not grant or revoke admin.
func (s *AuthService) UpdateRole(ctx context.Context, actorRole, targetID string, req *domain.UpdateRoleRequest) (*domain.UserResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, domain.ErrValidation(formatValidationErrors(err))
	}

	user, err := s.users.FindByID(ctx, targetID)
	if err != nil {
		return nil, domain.ErrInternal("failed to find user", err)
	}
	if user == nil {
		return nil, domain.ErrNotFound("user not found")
	}
	if actorRole != domain.RoleAdmin && (req.Role == domain.RoleAdmin || user.Role == domain.RoleAdmin) {
		return nil, domain.ErrForbidden("only admins can grant or revoke the admin role")
	}

	if err := s.users.UpdateRole(ctx, targetID, req.Role); err != nil {
		return nil, domain.ErrInternal("failed to update role", err)
	}
	user.Role = req.Role
	s.log.Info("user role updated", slog.String("user_id", targetID), slog.String("role", req.Role))
	return user.Public(), nil
}

// DeactivateUser disables an account and revokes its sessions.
func (s *AuthService) DeactivateUser(ctx context.Context, actorID, targetID string) error {
	if actorID == targetID {
		return domain.ErrBadRequest("cannot deactivate your own account")
	}

	user, err := s.users.FindByID(ctx, targetID)
	if err != nil {
		return domain.ErrInternal("failed to find user", err)
	}
	if user == nil {
		return domain.ErrNotFound("user not found")
	}

	if err := s.users.SetActive(ctx, targetID, false); err != nil {
		return domain.ErrInternal("failed to deactivate user", err)
	}
	_, err = s.sessions.RevokeAll(ctx, targetID)
	return err
}
