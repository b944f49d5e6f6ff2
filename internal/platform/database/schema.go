package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// schema is applied statement by statement; every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            BIGSERIAL PRIMARY KEY,
		login         VARCHAR(50) NOT NULL UNIQUE,
		password_hash VARCHAR(255) NOT NULL,
		role          VARCHAR(20) NOT NULL DEFAULT 'user' CHECK (role IN ('admin', 'user')),
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS tags (
		id   BIGSERIAL PRIMARY KEY,
		name VARCHAR(100) NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS contests (
		id         BIGSERIAL PRIMARY KEY,
		name       VARCHAR(255) NOT NULL UNIQUE,
		year       INT NOT NULL CHECK (year BETWEEN 2000 AND 2100),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_contests_year ON contests (year)`,
	`CREATE TABLE IF NOT EXISTS tasks (
		id                  BIGSERIAL PRIMARY KEY,
		title_ru            VARCHAR(500) NOT NULL CHECK (btrim(title_ru) <> ''),
		slug                VARCHAR(600) NOT NULL DEFAULT '',
		description         TEXT NOT NULL DEFAULT '',
		solution_idea       TEXT NOT NULL DEFAULT '',
		polygon_url         VARCHAR(500) NOT NULL DEFAULT '',
		difficulty          INT NOT NULL DEFAULT 5 CHECK (difficulty BETWEEN 1 AND 10),
		note                TEXT NOT NULL DEFAULT '',
		is_codeforces_ready BOOLEAN GENERATED ALWAYS AS (polygon_url <> '') STORED,
		is_yandex_ready     BOOLEAN GENERATED ALWAYS AS (polygon_url <> '') STORED,
		created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_difficulty ON tasks (difficulty)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_created_at ON tasks (created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_slug ON tasks (slug)`,
	`CREATE TABLE IF NOT EXISTS task_tags (
		task_id BIGINT NOT NULL REFERENCES tasks (id) ON DELETE CASCADE,
		tag_id  BIGINT NOT NULL REFERENCES tags (id) ON DELETE CASCADE,
		PRIMARY KEY (task_id, tag_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_task_tags_tag_id ON task_tags (tag_id)`,
	`CREATE TABLE IF NOT EXISTS task_contests (
		task_id    BIGINT NOT NULL REFERENCES tasks (id) ON DELETE CASCADE,
		contest_id BIGINT NOT NULL REFERENCES contests (id) ON DELETE CASCADE,
		PRIMARY KEY (task_id, contest_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_task_contests_contest_id ON task_contests (contest_id)`,
	`CREATE TABLE IF NOT EXISTS audit_log (
		id         UUID PRIMARY KEY,
		action     VARCHAR(50) NOT NULL,
		entity     VARCHAR(50) NOT NULL,
		entity_id  BIGINT,
		actor_id   BIGINT,
		details    JSONB NOT NULL DEFAULT '{}'::jsonb,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_log_created_at ON audit_log (created_at DESC)`,
}

// Migrate creates the catalog tables and indexes if they do not exist.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate statement %d: %w", i+1, err)
		}
	}
	slog.Info("database schema is up to date", slog.Int("statements", len(schema)))
	return nil
}
