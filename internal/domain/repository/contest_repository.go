package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"tamaco/internal/common"
	"tamaco/internal/domain/model"
)

type ContestRepository interface {
	ListContests(ctx context.Context) ([]model.Contest, error)
	ListContestsByYear(ctx context.Context, year int) ([]model.Contest, error)
	FindContestByID(ctx context.Context, tx *sql.Tx, id int64) (*model.Contest, error)
	FindContestByName(ctx context.Context, tx *sql.Tx, name string) (*model.Contest, error)
	LockContest(ctx context.Context, tx *sql.Tx, id int64) (*model.Contest, error)
	CreateContest(ctx context.Context, tx *sql.Tx, name string, year int) (*model.Contest, error)
	UpdateContest(ctx context.Context, tx *sql.Tx, id int64, name *string, year *int) (*model.Contest, error)
	CountContestUsage(ctx context.Context, tx *sql.Tx, id int64) (int64, error)
	DeleteContest(ctx context.Context, tx *sql.Tx, id int64) (int64, error)
	SearchContests(ctx context.Context, term string, year *int, limit int) ([]model.Contest, error)
	ContestStats(ctx context.Context) ([]model.ContestYearStat, error)
	ExistingContestIDs(ctx context.Context, tx *sql.Tx, ids []int64) ([]int64, error)
}

type pgContestRepository struct {
	db *sql.DB
}

func NewPgContestRepository(db *sql.DB) ContestRepository {
	return &pgContestRepository{db: db}
}

const contestColumns = `id, name, year, created_at`

func (r *pgContestRepository) queryContests(ctx context.Context, op, query string, args ...interface{}) ([]model.Contest, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("pgContestRepository.%s: %w", op, err)
	}
	defer rows.Close()

	contests := []model.Contest{}
	for rows.Next() {
		var c model.Contest
		if err := rows.Scan(&c.ID, &c.Name, &c.Year, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("pgContestRepository.%s scan: %w", op, err)
		}
		contests = append(contests, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgContestRepository.%s rows: %w", op, err)
	}
	return contests, nil
}

func (r *pgContestRepository) ListContests(ctx context.Context) ([]model.Contest, error) {
	return r.queryContests(ctx, "ListContests",
		`SELECT `+contestColumns+` FROM contests ORDER BY year DESC, name`)
}

func (r *pgContestRepository) ListContestsByYear(ctx context.Context, year int) ([]model.Contest, error) {
	return r.queryContests(ctx, "ListContestsByYear",
		`SELECT `+contestColumns+` FROM contests WHERE year = $1 ORDER BY name`, year)
}

func (r *pgContestRepository) FindContestByID(ctx context.Context, tx *sql.Tx, id int64) (*model.Contest, error) {
	return r.findOne(ctx, tx, "FindContestByID", `SELECT `+contestColumns+` FROM contests WHERE id = $1`, id)
}

func (r *pgContestRepository) FindContestByName(ctx context.Context, tx *sql.Tx, name string) (*model.Contest, error) {
	return r.findOne(ctx, tx, "FindContestByName", `SELECT `+contestColumns+` FROM contests WHERE name = $1`, name)
}

func (r *pgContestRepository) LockContest(ctx context.Context, tx *sql.Tx, id int64) (*model.Contest, error) {
	return r.findOne(ctx, tx, "LockContest", `SELECT `+contestColumns+` FROM contests WHERE id = $1 FOR UPDATE`, id)
}

func (r *pgContestRepository) findOne(ctx context.Context, tx *sql.Tx, op, query string, args ...interface{}) (*model.Contest, error) {
	c := &model.Contest{}
	if err := conn(r.db, tx).QueryRowContext(ctx, query, args...).Scan(&c.ID, &c.Name, &c.Year, &c.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		if common.IsPgCode(err, common.PgUniqueViolation) {
			return nil, fmt.Errorf("contest name already exists: %w", common.ErrConflict)
		}
		return nil, translatePgError("pgContestRepository."+op, err)
	}
	return c, nil
}

func (r *pgContestRepository) CreateContest(ctx context.Context, tx *sql.Tx, name string, year int) (*model.Contest, error) {
	return r.findOne(ctx, tx, "CreateContest",
		`INSERT INTO contests (name, year) VALUES ($1, $2) RETURNING `+contestColumns, name, year)
}

// UpdateContest sets the given fields; at least one must be non-nil.
func (r *pgContestRepository) UpdateContest(ctx context.Context, tx *sql.Tx, id int64, name *string, year *int) (*model.Contest, error) {
	var sets []string
	var args []interface{}
	argID := 1
	if name != nil {
		sets = append(sets, fmt.Sprintf("name = $%d", argID))
		args = append(args, *name)
		argID++
	}
	if year != nil {
		sets = append(sets, fmt.Sprintf("year = $%d", argID))
		args = append(args, *year)
		argID++
	}
	if len(sets) == 0 {
		return nil, fmt.Errorf("no contest fields to update: %w", common.ErrValidation)
	}
	args = append(args, id)
	query := fmt.Sprintf(`UPDATE contests SET %s WHERE id = $%d RETURNING %s`, strings.Join(sets, ", "), argID, contestColumns)
	return r.findOne(ctx, tx, "UpdateContest", query, args...)
}

func (r *pgContestRepository) CountContestUsage(ctx context.Context, tx *sql.Tx, id int64) (int64, error) {
	var n int64
	if err := conn(r.db, tx).QueryRowContext(ctx, `SELECT COUNT(*) FROM task_contests WHERE contest_id = $1`, id).Scan(&n); err != nil {
		return 0, fmt.Errorf("pgContestRepository.CountContestUsage: %w", err)
	}
	return n, nil
}

func (r *pgContestRepository) DeleteContest(ctx context.Context, tx *sql.Tx, id int64) (int64, error) {
	res, err := conn(r.db, tx).ExecContext(ctx, `DELETE FROM contests WHERE id = $1`, id)
	if err != nil {
		return 0, translatePgError("pgContestRepository.DeleteContest", err)
	}
	return res.RowsAffected()
}

// SearchContests matches the name substring, or the exact year when year is set.
func (r *pgContestRepository) SearchContests(ctx context.Context, term string, year *int, limit int) ([]model.Contest, error) {
	if year != nil {
		return r.queryContests(ctx, "SearchContests",
			`SELECT `+contestColumns+` FROM contests WHERE name ILIKE $1 OR year = $2 ORDER BY year DESC, name LIMIT $3`,
			likePattern(term), *year, limit)
	}
	return r.queryContests(ctx, "SearchContests",
		`SELECT `+contestColumns+` FROM contests WHERE name ILIKE $1 ORDER BY year DESC, name LIMIT $2`,
		likePattern(term), limit)
}

func (r *pgContestRepository) ContestStats(ctx context.Context) ([]model.ContestYearStat, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT c.year, COUNT(DISTINCT c.id) AS contest_count, COUNT(DISTINCT tc.task_id) AS task_count
		FROM contests c
		LEFT JOIN task_contests tc ON tc.contest_id = c.id
		GROUP BY c.year
		ORDER BY c.year DESC`)
	if err != nil {
		return nil, fmt.Errorf("pgContestRepository.ContestStats: %w", err)
	}
	defer rows.Close()

	stats := []model.ContestYearStat{}
	for rows.Next() {
		var s model.ContestYearStat
		if err := rows.Scan(&s.Year, &s.ContestCount, &s.TaskCount); err != nil {
			return nil, fmt.Errorf("pgContestRepository.ContestStats scan: %w", err)
		}
		stats = append(stats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgContestRepository.ContestStats rows: %w", err)
	}
	return stats, nil
}

func (r *pgContestRepository) ExistingContestIDs(ctx context.Context, tx *sql.Tx, ids []int64) ([]int64, error) {
	return existingIDs(ctx, conn(r.db, tx), "contests", ids)
}
