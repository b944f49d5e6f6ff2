package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"tamaco/internal/common/security"
)

var defaultTags = []string{"mod", "ascii-art", "formula", "c++", "math", "algorithms", "data"}

var defaultContests = []struct {
	Name string
	Year int
}{
	{"Python 5-7 Start", 2025},
	{"10 TX Операции с числами", 2025},
	{"Python 5-7 Самостоятельная работа", 2024},
}

// Seed inserts the bootstrap admin and the default tags and contests.
// Existing rows are left alone, so it is safe to run on every start.
func Seed(ctx context.Context, db *sql.DB, adminLogin, adminPassword string) error {
	hash, err := security.HashPassword(adminPassword)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	return WithTx(ctx, db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO users (login, password_hash, role) VALUES ($1, $2, 'admin') ON CONFLICT (login) DO NOTHING`,
			adminLogin, hash)
		if err != nil {
			return fmt.Errorf("seed admin: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			slog.Info("bootstrap admin created", slog.String("login", adminLogin))
		}

		for _, name := range defaultTags {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO tags (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, name); err != nil {
				return fmt.Errorf("seed tag %q: %w", name, err)
			}
		}

		for _, c := range defaultContests {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO contests (name, year) VALUES ($1, $2) ON CONFLICT (name) DO NOTHING`,
				c.Name, c.Year); err != nil {
				return fmt.Errorf("seed contest %q: %w", c.Name, err)
			}
		}
		return nil
	})
}
