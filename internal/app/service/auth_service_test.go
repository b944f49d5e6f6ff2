package service

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"tamaco/internal/common"
	"tamaco/internal/common/security"
	"tamaco/internal/domain/model"
	"tamaco/internal/domain/repository"

	"github.com/DATA-DOG/go-sqlmock"
)

func newAuthServiceWithMock(t *testing.T) (*AuthService, sqlmock.Sqlmock, *fakeAudit) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	audit := &fakeAudit{}
	users := NewUserService(db, repository.NewPgUserRepository(db), audit)
	return NewAuthService(users, security.NewTokenManager([]byte("test-secret"), 24*time.Hour), audit), mock, audit
}

var credentialCols = []string{"id", "login", "password_hash", "role", "created_at"}

func TestLoginSuccess(t *testing.T) {
	svc, mock, audit := newAuthServiceWithMock(t)
	hash, _ := security.HashPassword("admin123")

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE login = $1")).
		WithArgs("admin").
		WillReturnRows(sqlmock.NewRows(credentialCols).AddRow(1, "admin", hash, model.RoleAdmin, time.Now()))

	resp, err := svc.Login(context.Background(), LoginRequest{Login: "admin", Password: "admin123"})
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if resp.Token == "" || resp.ExpiresIn != 86400 || resp.User.PasswordHash != "" {
		t.Errorf("resp = %+v", resp)
	}
	if len(audit.entries) != 1 || audit.entries[0].action != model.AuditActionLogin {
		t.Errorf("audit = %+v", audit.entries)
	}
}

func TestLoginFailuresLookAlike(t *testing.T) {
	svc, mock, _ := newAuthServiceWithMock(t)
	hash, _ := security.HashPassword("admin123")

	mock.ExpectQuery("WHERE login = \\$1").
		WillReturnRows(sqlmock.NewRows(credentialCols))
	_, unknownErr := svc.Login(context.Background(), LoginRequest{Login: "ghost", Password: "whatever"})

	mock.ExpectQuery("WHERE login = \\$1").
		WillReturnRows(sqlmock.NewRows(credentialCols).AddRow(1, "admin", hash, model.RoleAdmin, time.Now()))
	_, wrongErr := svc.Login(context.Background(), LoginRequest{Login: "admin", Password: "nope"})

	for _, err := range []error{unknownErr, wrongErr} {
		if !errors.Is(err, common.ErrUnauthorized) {
			t.Errorf("error = %v, want ErrUnauthorized", err)
		}
	}
	if unknownErr.Error() != wrongErr.Error() {
		t.Errorf("messages differ: %q vs %q", unknownErr, wrongErr)
	}
}

func TestLoginRequiresFields(t *testing.T) {
	svc, _, _ := newAuthServiceWithMock(t)
	if _, err := svc.Login(context.Background(), LoginRequest{Login: " "}); !errors.Is(err, common.ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation", err)
	}
}

func TestAdminCannotActOnSelf(t *testing.T) {
	svc, mock, _ := newAuthServiceWithMock(t)

	if _, err := svc.ChangeUserRole(context.Background(), 1, 1, model.RoleUser); !errors.Is(err, common.ErrBadRequest) {
		t.Errorf("role change error = %v", err)
	}
	if _, err := svc.DeleteUser(context.Background(), 1, 1); !errors.Is(err, common.ErrBadRequest) {
		t.Errorf("delete error = %v", err)
	}
	expectMet(t, mock)
}

func TestRefreshRequiresExistingUser(t *testing.T) {
	svc, mock, _ := newAuthServiceWithMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, login, role, created_at FROM users WHERE id = $1")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "login", "role", "created_at"}))

	if _, err := svc.Refresh(context.Background(), 9); !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}
