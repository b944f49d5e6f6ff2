package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"tamaco/internal/common"
	"tamaco/internal/domain/model"
)

type UserRepository interface {
	Create(ctx context.Context, tx *sql.Tx, user *model.User) error
	FindByLogin(ctx context.Context, login string) (*model.User, error)
	FindByID(ctx context.Context, id int64) (*model.User, error)
	FindCredentialsByID(ctx context.Context, id int64) (*model.User, error)
	List(ctx context.Context, limit, offset int) ([]model.User, int64, error)
	LockUser(ctx context.Context, tx *sql.Tx, id int64) (*model.User, error)
	LockAdminIDs(ctx context.Context, tx *sql.Tx) ([]int64, error)
	UpdatePassword(ctx context.Context, tx *sql.Tx, id int64, passwordHash string) error
	UpdateRole(ctx context.Context, tx *sql.Tx, id int64, role string) error
	Delete(ctx context.Context, tx *sql.Tx, id int64) (int64, error)
}

type pgUserRepository struct {
	db *sql.DB
}

func NewPgUserRepository(db *sql.DB) UserRepository {
	return &pgUserRepository{db: db}
}

func (r *pgUserRepository) Create(ctx context.Context, tx *sql.Tx, user *model.User) error {
	query := `INSERT INTO users (login, password_hash, role)
	          VALUES ($1, $2, $3)
	          RETURNING id, created_at`
	err := conn(r.db, tx).QueryRowContext(ctx, query, user.Login, user.PasswordHash, user.Role).
		Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		if common.IsPgCode(err, common.PgUniqueViolation) {
			return fmt.Errorf("user with login %q already exists: %w", user.Login, common.ErrConflict)
		}
		return translatePgError("pgUserRepository.Create", err)
	}
	return nil
}

func (r *pgUserRepository) FindByLogin(ctx context.Context, login string) (*model.User, error) {
	query := `SELECT id, login, password_hash, role, created_at
	          FROM users WHERE login = $1`
	user := &model.User{}
	err := r.db.QueryRowContext(ctx, query, login).Scan(
		&user.ID, &user.Login, &user.PasswordHash, &user.Role, &user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgUserRepository.FindByLogin: %w", err)
	}
	return user, nil
}

// FindByID never selects the password hash.
func (r *pgUserRepository) FindByID(ctx context.Context, id int64) (*model.User, error) {
	query := `SELECT id, login, role, created_at FROM users WHERE id = $1`
	user := &model.User{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(&user.ID, &user.Login, &user.Role, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgUserRepository.FindByID: %w", err)
	}
	return user, nil
}

func (r *pgUserRepository) FindCredentialsByID(ctx context.Context, id int64) (*model.User, error) {
	query := `SELECT id, login, password_hash, role, created_at FROM users WHERE id = $1`
	user := &model.User{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&user.ID, &user.Login, &user.PasswordHash, &user.Role, &user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgUserRepository.FindCredentialsByID: %w", err)
	}
	return user, nil
}

func (r *pgUserRepository) List(ctx context.Context, limit, offset int) ([]model.User, int64, error) {
	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgUserRepository.List count: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, login, role, created_at FROM users ORDER BY id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("pgUserRepository.List query: %w", err)
	}
	defer rows.Close()

	users := []model.User{}
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.ID, &u.Login, &u.Role, &u.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("pgUserRepository.List scan: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("pgUserRepository.List rows: %w", err)
	}
	return users, total, nil
}

func (r *pgUserRepository) LockUser(ctx context.Context, tx *sql.Tx, id int64) (*model.User, error) {
	user := &model.User{}
	err := conn(r.db, tx).QueryRowContext(ctx,
		`SELECT id, login, role, created_at FROM users WHERE id = $1 FOR UPDATE`, id,
	).Scan(&user.ID, &user.Login, &user.Role, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgUserRepository.LockUser: %w", err)
	}
	return user, nil
}

// LockAdminIDs locks every admin row so concurrent demotions and deletions serialize.
func (r *pgUserRepository) LockAdminIDs(ctx context.Context, tx *sql.Tx) ([]int64, error) {
	rows, err := conn(r.db, tx).QueryContext(ctx,
		`SELECT id FROM users WHERE role = $1 ORDER BY id FOR UPDATE`, model.RoleAdmin)
	if err != nil {
		return nil, fmt.Errorf("pgUserRepository.LockAdminIDs: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("pgUserRepository.LockAdminIDs scan: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *pgUserRepository) UpdatePassword(ctx context.Context, tx *sql.Tx, id int64, passwordHash string) error {
	return r.exec(ctx, tx, "UpdatePassword", `UPDATE users SET password_hash = $1 WHERE id = $2`, passwordHash, id)
}

func (r *pgUserRepository) UpdateRole(ctx context.Context, tx *sql.Tx, id int64, role string) error {
	return r.exec(ctx, tx, "UpdateRole", `UPDATE users SET role = $1 WHERE id = $2`, role, id)
}

func (r *pgUserRepository) exec(ctx context.Context, tx *sql.Tx, op, query string, args ...interface{}) error {
	res, err := conn(r.db, tx).ExecContext(ctx, query, args...)
	if err != nil {
		return translatePgError("pgUserRepository."+op, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *pgUserRepository) Delete(ctx context.Context, tx *sql.Tx, id int64) (int64, error) {
	res, err := conn(r.db, tx).ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return 0, fmt.Errorf("pgUserRepository.Delete: %w", err)
	}
	return res.RowsAffected()
}
