package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"tamaco/internal/common"
	"tamaco/internal/common/security"
	"tamaco/internal/domain/model"
)

var errInvalidCredentials = errors.New("invalid login or password")

type AuthService struct {
	users  *UserService
	tokens *security.TokenManager
	audit  AuditRecorder
}

func NewAuthService(users *UserService, tokens *security.TokenManager, audit AuditRecorder) *AuthService {
	return &AuthService{users: users, tokens: tokens, audit: audit}
}

type LoginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type AuthResponse struct {
	User      *model.User `json:"user"`
	Token     string      `json:"token"`
	ExpiresIn int64       `json:"expiresIn"` // seconds
}

// Login answers the same error for an unknown login and a wrong password.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	login := strings.TrimSpace(req.Login)
	if login == "" || req.Password == "" {
		return nil, fmt.Errorf("login and password are required: %w", common.ErrValidation)
	}

	user, err := s.users.FindByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, fmt.Errorf("%w: %w", errInvalidCredentials, common.ErrUnauthorized)
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if !s.users.VerifyCredential(req.Password, user.PasswordHash) {
		return nil, fmt.Errorf("%w: %w", errInvalidCredentials, common.ErrUnauthorized)
	}
	user.PasswordHash = "" // Clear password before returning

	resp, err := s.issue(user)
	if err != nil {
		return nil, err
	}
	if s.audit != nil {
		s.audit.Record(security.WithIdentity(ctx, security.Identity{ID: user.ID, Login: user.Login, Role: user.Role}),
			model.AuditActionLogin, entityUser, &user.ID, nil)
	}
	return resp, nil
}

func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (*model.User, error) {
	return s.users.CreateUser(ctx, req.Login, req.Password, req.Role)
}

func (s *AuthService) Me(ctx context.Context, userID int64) (*model.User, error) {
	return s.users.FindByID(ctx, userID)
}

// Refresh issues a fresh token for a user that still exists.
func (s *AuthService) Refresh(ctx context.Context, userID int64) (*AuthResponse, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.issue(user)
}

func (s *AuthService) ChangePassword(ctx context.Context, userID int64, req ChangePasswordRequest) error {
	if req.CurrentPassword == "" || req.NewPassword == "" {
		return fmt.Errorf("current and new password are required: %w", common.ErrValidation)
	}
	return s.users.ChangePassword(ctx, userID, req.CurrentPassword, req.NewPassword)
}

func (s *AuthService) ListUsers(ctx context.Context, page, limit int) ([]model.User, model.Pagination, error) {
	return s.users.ListUsers(ctx, page, limit)
}

func (s *AuthService) ChangeUserRole(ctx context.Context, actorID, targetID int64, role string) (*model.User, error) {
	if actorID == targetID {
		return nil, fmt.Errorf("cannot change your own role: %w", common.ErrBadRequest)
	}
	return s.users.UpdateRole(ctx, targetID, role)
}

func (s *AuthService) DeleteUser(ctx context.Context, actorID, targetID int64) (*model.User, error) {
	if actorID == targetID {
		return nil, fmt.Errorf("cannot delete yourself: %w", common.ErrBadRequest)
	}
	return s.users.DeleteUser(ctx, targetID)
}

func (s *AuthService) issue(user *model.User) (*AuthResponse, error) {
	token, err := s.tokens.Generate(user.ID, user.Login, user.Role)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}
	return &AuthResponse{
		User:      user,
		Token:     token,
		ExpiresIn: int64(s.tokens.TTL().Seconds()),
	}, nil
}
