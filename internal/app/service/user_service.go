package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"tamaco/internal/common"
	"tamaco/internal/common/security"
	"tamaco/internal/domain/model"
	"tamaco/internal/domain/repository"
	"tamaco/internal/platform/database"
)

const (
	entityUser        = "user"
	MinPasswordLength = 6
	maxLoginLength    = 50
)

type UserService struct {
	db       *sql.DB
	userRepo repository.UserRepository
	audit    AuditRecorder
}

func NewUserService(db *sql.DB, userRepo repository.UserRepository, audit AuditRecorder) *UserService {
	return &UserService{db: db, userRepo: userRepo, audit: audit}
}

func validatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return fmt.Errorf("password must be at least %d characters: %w", MinPasswordLength, common.ErrValidation)
	}
	return nil
}

// FindByLogin returns the user including the password hash, for credential checks.
func (s *UserService) FindByLogin(ctx context.Context, login string) (*model.User, error) {
	return s.userRepo.FindByLogin(ctx, strings.TrimSpace(login))
}

func (s *UserService) FindByID(ctx context.Context, id int64) (*model.User, error) {
	return s.userRepo.FindByID(ctx, id)
}

func (s *UserService) CreateUser(ctx context.Context, login, password, role string) (*model.User, error) {
	login = strings.TrimSpace(login)
	if login == "" {
		return nil, fmt.Errorf("login is required: %w", common.ErrValidation)
	}
	if len([]rune(login)) > maxLoginLength {
		return nil, fmt.Errorf("login is longer than %d characters: %w", maxLoginLength, common.ErrValidation)
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}
	if role == "" {
		role = model.RoleUser
	}
	if !model.IsValidRole(role) {
		return nil, fmt.Errorf("unknown role %q: %w", role, common.ErrValidation)
	}

	hash, err := security.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	user := &model.User{Login: login, PasswordHash: hash, Role: role}
	if err := s.userRepo.Create(ctx, nil, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	user.PasswordHash = ""

	s.record(ctx, model.AuditActionCreate, user.ID, map[string]string{"login": user.Login, "role": user.Role})
	return user, nil
}

func (s *UserService) VerifyCredential(plain, hash string) bool {
	return security.CheckPasswordHash(plain, hash)
}

// ChangePassword checks the current password before storing the new one.
func (s *UserService) ChangePassword(ctx context.Context, id int64, current, next string) error {
	if err := validatePassword(next); err != nil {
		return err
	}
	user, err := s.userRepo.FindCredentialsByID(ctx, id)
	if err != nil {
		return err
	}
	if !s.VerifyCredential(current, user.PasswordHash) {
		return fmt.Errorf("current password is incorrect: %w", common.ErrValidation)
	}
	return s.UpdatePassword(ctx, id, next)
}

func (s *UserService) UpdatePassword(ctx context.Context, id int64, password string) error {
	if err := validatePassword(password); err != nil {
		return err
	}
	hash, err := security.HashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.userRepo.UpdatePassword(ctx, nil, id, hash); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	s.record(ctx, model.AuditActionUpdate, id, map[string]string{"field": "password"})
	return nil
}

// UpdateRole changes a user's role. Demoting the last admin is refused.
func (s *UserService) UpdateRole(ctx context.Context, id int64, role string) (*model.User, error) {
	if !model.IsValidRole(role) {
		return nil, fmt.Errorf("unknown role %q: %w", role, common.ErrValidation)
	}

	var user *model.User
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		admins, err := s.userRepo.LockAdminIDs(ctx, tx)
		if err != nil {
			return err
		}
		user, err = s.userRepo.LockUser(ctx, tx, id)
		if err != nil {
			return err
		}
		if user.Role == model.RoleAdmin && role != model.RoleAdmin && len(admins) <= 1 {
			return fmt.Errorf("cannot demote the last admin: %w", common.ErrConflict)
		}
		if err := s.userRepo.UpdateRole(ctx, tx, id, role); err != nil {
			return err
		}
		user.Role = role
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update role of user %d: %w", id, err)
	}

	s.record(ctx, model.AuditActionUpdate, id, map[string]string{"role": role})
	return user, nil
}

func (s *UserService) ListUsers(ctx context.Context, page, limit int) ([]model.User, model.Pagination, error) {
	page, limit = model.NormalizePage(page, limit)
	p := model.NewPagination(page, limit, 0)
	users, total, err := s.userRepo.List(ctx, limit, p.Offset())
	if err != nil {
		return nil, p, fmt.Errorf("failed to list users: %w", err)
	}
	return users, model.NewPagination(page, limit, total), nil
}

// DeleteUser removes a user. Deleting the last admin is refused.
func (s *UserService) DeleteUser(ctx context.Context, id int64) (*model.User, error) {
	var user *model.User
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		admins, err := s.userRepo.LockAdminIDs(ctx, tx)
		if err != nil {
			return err
		}
		user, err = s.userRepo.LockUser(ctx, tx, id)
		if err != nil {
			return err
		}
		if user.Role == model.RoleAdmin && len(admins) <= 1 {
			return fmt.Errorf("cannot delete the last admin: %w", common.ErrConflict)
		}
		n, err := s.userRepo.Delete(ctx, tx, id)
		if err != nil {
			return err
		}
		if n == 0 {
			return common.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to delete user %d: %w", id, err)
	}

	s.record(ctx, model.AuditActionDelete, id, map[string]string{"login": user.Login})
	return user, nil
}

func (s *UserService) record(ctx context.Context, action string, id int64, details interface{}) {
	if s.audit != nil {
		s.audit.Record(ctx, action, entityUser, &id, details)
	}
}
