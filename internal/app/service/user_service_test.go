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

var userCols = []string{"id", "login", "role", "created_at"}

func newUserServiceWithMock(t *testing.T) (*UserService, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewUserService(db, repository.NewPgUserRepository(db), nil), mock
}

func TestDeleteLastAdminIsRefused(t *testing.T) {
	svc, mock := newUserServiceWithMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM users WHERE role = $1 ORDER BY id FOR UPDATE")).
		WithArgs(model.RoleAdmin).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE id = $1 FOR UPDATE")).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows(userCols).AddRow(1, "admin", model.RoleAdmin, time.Now()))
	mock.ExpectRollback()

	if _, err := svc.DeleteUser(context.Background(), 1); !errors.Is(err, common.ErrConflict) {
		t.Fatalf("error = %v, want ErrConflict", err)
	}
	expectMet(t, mock)
}

func TestDemoteLastAdminIsRefused(t *testing.T) {
	svc, mock := newUserServiceWithMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery("role = \\$1 ORDER BY id FOR UPDATE").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectQuery("WHERE id = \\$1 FOR UPDATE").
		WillReturnRows(sqlmock.NewRows(userCols).AddRow(1, "admin", model.RoleAdmin, time.Now()))
	mock.ExpectRollback()

	if _, err := svc.UpdateRole(context.Background(), 1, model.RoleUser); !errors.Is(err, common.ErrConflict) {
		t.Fatalf("error = %v, want ErrConflict", err)
	}
	expectMet(t, mock)
}

func TestDeleteAdminWhenAnotherRemains(t *testing.T) {
	svc, mock := newUserServiceWithMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery("role = \\$1 ORDER BY id FOR UPDATE").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1).AddRow(2))
	mock.ExpectQuery("WHERE id = \\$1 FOR UPDATE").
		WillReturnRows(sqlmock.NewRows(userCols).AddRow(2, "second", model.RoleAdmin, time.Now()))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM users WHERE id = $1")).
		WithArgs(int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	user, err := svc.DeleteUser(context.Background(), 2)
	if err != nil {
		t.Fatalf("DeleteUser() error = %v", err)
	}
	if user.Login != "second" {
		t.Errorf("user = %+v", user)
	}
	expectMet(t, mock)
}

func TestCreateUserValidation(t *testing.T) {
	svc, mock := newUserServiceWithMock(t)

	cases := []struct{ login, password, role string }{
		{"", "secret1", ""},
		{"bob", "12345", ""},
		{"bob", "secret1", "root"},
	}
	for _, c := range cases {
		if _, err := svc.CreateUser(context.Background(), c.login, c.password, c.role); !errors.Is(err, common.ErrValidation) {
			t.Errorf("CreateUser(%q, %q, %q) error = %v", c.login, c.password, c.role, err)
		}
	}
	expectMet(t, mock)
}

func TestCreateUserDefaultsRoleAndHidesHash(t *testing.T) {
	svc, mock := newUserServiceWithMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO users (login, password_hash, role)")).
		WithArgs("bob", sqlmock.AnyArg(), model.RoleUser).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(4, time.Now()))

	user, err := svc.CreateUser(context.Background(), " bob ", "secret1", "")
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	if user.ID != 4 || user.Role != model.RoleUser || user.PasswordHash != "" {
		t.Errorf("user = %+v", user)
	}
	expectMet(t, mock)
}

func TestChangePasswordChecksCurrent(t *testing.T) {
	svc, mock := newUserServiceWithMock(t)
	hash, err := security.HashPassword("oldpass")
	if err != nil {
		t.Fatal(err)
	}
	credCols := []string{"id", "login", "password_hash", "role", "created_at"}

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, login, password_hash, role, created_at FROM users WHERE id = $1")).
		WillReturnRows(sqlmock.NewRows(credCols).AddRow(3, "bob", hash, model.RoleUser, time.Now()))
	if err := svc.ChangePassword(context.Background(), 3, "wrong", "newpass"); !errors.Is(err, common.ErrValidation) {
		t.Fatalf("wrong current error = %v", err)
	}

	mock.ExpectQuery("password_hash, role, created_at FROM users").
		WillReturnRows(sqlmock.NewRows(credCols).AddRow(3, "bob", hash, model.RoleUser, time.Now()))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET password_hash = $1 WHERE id = $2")).
		WithArgs(sqlmock.AnyArg(), int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := svc.ChangePassword(context.Background(), 3, "oldpass", "newpass"); err != nil {
		t.Fatalf("ChangePassword() error = %v", err)
	}
	expectMet(t, mock)
}
