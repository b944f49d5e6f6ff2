package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"tamaco/internal/common"
	"tamaco/internal/domain/model"

	"github.com/lib/pq"
)

type TaskRepository interface {
	ListTasks(ctx context.Context, limit, offset int) ([]model.Task, int64, error)
	FindTaskByID(ctx context.Context, tx *sql.Tx, id int64) (*model.Task, error)
	FindTaskBySlug(ctx context.Context, slug string) (*model.Task, error)
	SearchTasks(ctx context.Context, term string, limit, offset int) ([]model.Task, int64, error)
	FilterTasks(ctx context.Context, minDifficulty, maxDifficulty int, tagIDs []int64) ([]model.Task, error)
	ListTasksByTag(ctx context.Context, tagID int64, limit, offset int) ([]model.Task, int64, error)
	ListTasksByContest(ctx context.Context, contestID int64, limit, offset int) ([]model.Task, int64, error)
	GetStats(ctx context.Context) (*model.TaskStats, error)

	CreateTask(ctx context.Context, tx *sql.Tx, fields model.TaskFields) (int64, error)
	UpdateTask(ctx context.Context, tx *sql.Tx, id int64, changes model.TaskChanges) error
	ReplaceTaskTags(ctx context.Context, tx *sql.Tx, taskID int64, tagIDs []int64) error
	ReplaceTaskContests(ctx context.Context, tx *sql.Tx, taskID int64, contestIDs []int64) error

	LockTask(ctx context.Context, tx *sql.Tx, id int64) (*model.TaskRef, error)
	LockTasks(ctx context.Context, tx *sql.Tx, ids []int64) ([]model.TaskRef, error)
	LockTasksByFilter(ctx context.Context, tx *sql.Tx, filter model.TaskDeleteFilter) ([]model.TaskRef, error)
	DeleteTaskAssociations(ctx context.Context, tx *sql.Tx, ids []int64) (tags int64, contests int64, err error)
	DeleteTasks(ctx context.Context, tx *sql.Tx, ids []int64) (int64, error)
	CountTasks(ctx context.Context, tx *sql.Tx) (int64, error)
	TruncateTasks(ctx context.Context, tx *sql.Tx) error
}

type pgTaskRepository struct {
	db *sql.DB
}

func NewPgTaskRepository(db *sql.DB) TaskRepository {
	return &pgTaskRepository{db: db}
}

// taskSelect reads a task with its tag and contest names and ids.
const taskSelect = `
	SELECT t.id, t.title_ru, t.slug, t.description, t.solution_idea, t.polygon_url,
	       t.difficulty, t.note, t.is_codeforces_ready, t.is_yandex_ready,
	       t.created_at, t.updated_at,
	       COALESCE((SELECT STRING_AGG(tg.name, ',' ORDER BY tg.name)
	                 FROM task_tags tt JOIN tags tg ON tg.id = tt.tag_id
	                 WHERE tt.task_id = t.id), '') AS tags,
	       COALESCE((SELECT STRING_AGG(c.name, ',' ORDER BY c.name)
	                 FROM task_contests tc JOIN contests c ON c.id = tc.contest_id
	                 WHERE tc.task_id = t.id), '') AS contests,
	       COALESCE((SELECT ARRAY_AGG(tt.tag_id ORDER BY tt.tag_id)
	                 FROM task_tags tt WHERE tt.task_id = t.id), '{}') AS tag_ids,
	       COALESCE((SELECT ARRAY_AGG(tc.contest_id ORDER BY tc.contest_id)
	                 FROM task_contests tc WHERE tc.task_id = t.id), '{}') AS contest_ids
	FROM tasks t`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(s rowScanner) (model.Task, error) {
	var t model.Task
	var tagIDs, contestIDs pq.Int64Array
	err := s.Scan(
		&t.ID, &t.TitleRU, &t.Slug, &t.Description, &t.SolutionIdea, &t.PolygonURL,
		&t.Difficulty, &t.Note, &t.IsCodeforcesReady, &t.IsYandexReady,
		&t.CreatedAt, &t.UpdatedAt,
		&t.Tags, &t.Contests, &tagIDs, &contestIDs,
	)
	if err != nil {
		return t, err
	}
	t.TagIDs = []int64(tagIDs)
	t.ContestIDs = []int64(contestIDs)
	if t.TagIDs == nil {
		t.TagIDs = []int64{}
	}
	if t.ContestIDs == nil {
		t.ContestIDs = []int64{}
	}
	return t, nil
}

func (r *pgTaskRepository) queryTasks(ctx context.Context, op, query string, args ...interface{}) ([]model.Task, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("pgTaskRepository.%s query: %w", op, err)
	}
	defer rows.Close()

	tasks := []model.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("pgTaskRepository.%s scan: %w", op, err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgTaskRepository.%s rows: %w", op, err)
	}
	return tasks, nil
}

func (r *pgTaskRepository) count(ctx context.Context, op, query string, args ...interface{}) (int64, error) {
	var total int64
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("pgTaskRepository.%s count: %w", op, err)
	}
	return total, nil
}

func (r *pgTaskRepository) ListTasks(ctx context.Context, limit, offset int) ([]model.Task, int64, error) {
	total, err := r.count(ctx, "ListTasks", `SELECT COUNT(*) FROM tasks`)
	if err != nil {
		return nil, 0, err
	}
	tasks, err := r.queryTasks(ctx, "ListTasks", taskSelect+` ORDER BY t.id DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return tasks, total, nil
}

func (r *pgTaskRepository) FindTaskByID(ctx context.Context, tx *sql.Tx, id int64) (*model.Task, error) {
	t, err := scanTask(conn(r.db, tx).QueryRowContext(ctx, taskSelect+` WHERE t.id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgTaskRepository.FindTaskByID: %w", err)
	}
	return &t, nil
}

func (r *pgTaskRepository) FindTaskBySlug(ctx context.Context, slug string) (*model.Task, error) {
	t, err := scanTask(r.db.QueryRowContext(ctx, taskSelect+` WHERE t.slug = $1 ORDER BY t.id DESC LIMIT 1`, slug))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgTaskRepository.FindTaskBySlug: %w", err)
	}
	return &t, nil
}

func (r *pgTaskRepository) SearchTasks(ctx context.Context, term string, limit, offset int) ([]model.Task, int64, error) {
	pattern := likePattern(term)
	total, err := r.count(ctx, "SearchTasks",
		`SELECT COUNT(*) FROM tasks t WHERE t.title_ru ILIKE $1 OR t.description ILIKE $1`, pattern)
	if err != nil {
		return nil, 0, err
	}
	tasks, err := r.queryTasks(ctx, "SearchTasks",
		taskSelect+` WHERE t.title_ru ILIKE $1 OR t.description ILIKE $1 ORDER BY t.id DESC LIMIT $2 OFFSET $3`,
		pattern, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return tasks, total, nil
}

// FilterTasks returns tasks within the difficulty range that carry every tag in tagIDs.
func (r *pgTaskRepository) FilterTasks(ctx context.Context, minDifficulty, maxDifficulty int, tagIDs []int64) ([]model.Task, error) {
	query := taskSelect + ` WHERE t.difficulty BETWEEN $1 AND $2`
	args := []interface{}{minDifficulty, maxDifficulty}
	if len(tagIDs) > 0 {
		query += ` AND t.id IN (
			SELECT task_id FROM task_tags
			WHERE tag_id = ANY($3)
			GROUP BY task_id
			HAVING COUNT(DISTINCT tag_id) = $4)`
		args = append(args, pq.Array(tagIDs), len(tagIDs))
	}
	query += ` ORDER BY t.difficulty, t.id DESC`
	return r.queryTasks(ctx, "FilterTasks", query, args...)
}

func (r *pgTaskRepository) ListTasksByTag(ctx context.Context, tagID int64, limit, offset int) ([]model.Task, int64, error) {
	total, err := r.count(ctx, "ListTasksByTag", `SELECT COUNT(*) FROM task_tags WHERE tag_id = $1`, tagID)
	if err != nil {
		return nil, 0, err
	}
	tasks, err := r.queryTasks(ctx, "ListTasksByTag",
		taskSelect+` WHERE t.id IN (SELECT task_id FROM task_tags WHERE tag_id = $1) ORDER BY t.id DESC LIMIT $2 OFFSET $3`,
		tagID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return tasks, total, nil
}

func (r *pgTaskRepository) ListTasksByContest(ctx context.Context, contestID int64, limit, offset int) ([]model.Task, int64, error) {
	total, err := r.count(ctx, "ListTasksByContest", `SELECT COUNT(*) FROM task_contests WHERE contest_id = $1`, contestID)
	if err != nil {
		return nil, 0, err
	}
	tasks, err := r.queryTasks(ctx, "ListTasksByContest",
		taskSelect+` WHERE t.id IN (SELECT task_id FROM task_contests WHERE contest_id = $1) ORDER BY t.id DESC LIMIT $2 OFFSET $3`,
		contestID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return tasks, total, nil
}

func (r *pgTaskRepository) GetStats(ctx context.Context) (*model.TaskStats, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT difficulty, COUNT(*), AVG(difficulty)::float8,
		       COUNT(*) FILTER (WHERE is_codeforces_ready),
		       COUNT(*) FILTER (WHERE is_yandex_ready)
		FROM tasks
		GROUP BY difficulty
		ORDER BY difficulty`)
	if err != nil {
		return nil, fmt.Errorf("pgTaskRepository.GetStats by difficulty: %w", err)
	}
	defer rows.Close()

	stats := &model.TaskStats{ByDifficulty: []model.DifficultyStat{}}
	for rows.Next() {
		var s model.DifficultyStat
		if err := rows.Scan(&s.Difficulty, &s.Count, &s.AvgDifficulty, &s.CodeforcesReady, &s.YandexReady); err != nil {
			return nil, fmt.Errorf("pgTaskRepository.GetStats scan: %w", err)
		}
		stats.ByDifficulty = append(stats.ByDifficulty, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgTaskRepository.GetStats rows: %w", err)
	}

	o := &stats.Overall
	err = r.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(AVG(difficulty), 0)::float8,
		       COALESCE(MIN(difficulty), 0), COALESCE(MAX(difficulty), 0),
		       COUNT(*) FILTER (WHERE is_codeforces_ready),
		       COUNT(*) FILTER (WHERE is_yandex_ready)
		FROM tasks`).Scan(&o.TotalTasks, &o.OverallAvgDifficulty, &o.MinDifficulty, &o.MaxDifficulty, &o.CodeforcesReady, &o.YandexReady)
	if err != nil {
		return nil, fmt.Errorf("pgTaskRepository.GetStats overall: %w", err)
	}
	return stats, nil
}

func (r *pgTaskRepository) CreateTask(ctx context.Context, tx *sql.Tx, f model.TaskFields) (int64, error) {
	query := `INSERT INTO tasks (title_ru, slug, description, solution_idea, polygon_url, difficulty, note)
	          VALUES ($1, $2, $3, $4, $5, $6, $7)
	          RETURNING id`

	var id int64
	err := conn(r.db, tx).QueryRowContext(ctx, query,
		f.TitleRU, f.Slug, f.Description, f.SolutionIdea, f.PolygonURL, f.Difficulty, f.Note,
	).Scan(&id)
	if err != nil {
		return 0, translatePgError("pgTaskRepository.CreateTask", err)
	}
	return id, nil
}

// buildTaskUpdate renders the UPDATE for the set fields; updated_at is always bumped.
func buildTaskUpdate(id int64, c model.TaskChanges) (string, []interface{}) {
	var sets []string
	var args []interface{}
	argID := 1

	add := func(column string, value interface{}) {
		sets = append(sets, fmt.Sprintf("%s = $%d", column, argID))
		args = append(args, value)
		argID++
	}
	if c.TitleRU != nil {
		add("title_ru", *c.TitleRU)
	}
	if c.Slug != nil {
		add("slug", *c.Slug)
	}
	if c.Description != nil {
		add("description", *c.Description)
	}
	if c.SolutionIdea != nil {
		add("solution_idea", *c.SolutionIdea)
	}
	if c.PolygonURL != nil {
		add("polygon_url", *c.PolygonURL)
	}
	if c.Difficulty != nil {
		add("difficulty", *c.Difficulty)
	}
	if c.Note != nil {
		add("note", *c.Note)
	}
	sets = append(sets, "updated_at = NOW()")

	args = append(args, id)
	query := fmt.Sprintf("UPDATE tasks SET %s WHERE id = $%d", strings.Join(sets, ", "), argID)
	return query, args
}

func (r *pgTaskRepository) UpdateTask(ctx context.Context, tx *sql.Tx, id int64, changes model.TaskChanges) error {
	query, args := buildTaskUpdate(id, changes)
	res, err := conn(r.db, tx).ExecContext(ctx, query, args...)
	if err != nil {
		return translatePgError("pgTaskRepository.UpdateTask", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *pgTaskRepository) ReplaceTaskTags(ctx context.Context, tx *sql.Tx, taskID int64, tagIDs []int64) error {
	return r.replaceAssociations(ctx, tx, "task_tags", "tag_id", taskID, tagIDs)
}

func (r *pgTaskRepository) ReplaceTaskContests(ctx context.Context, tx *sql.Tx, taskID int64, contestIDs []int64) error {
	return r.replaceAssociations(ctx, tx, "task_contests", "contest_id", taskID, contestIDs)
}

// replaceAssociations makes the join rows of taskID exactly ids. Table and column are internal constants.
func (r *pgTaskRepository) replaceAssociations(ctx context.Context, tx *sql.Tx, table, column string, taskID int64, ids []int64) error {
	q := conn(r.db, tx)
	if _, err := q.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE task_id = $1`, table), taskID); err != nil {
		return fmt.Errorf("pgTaskRepository.replace %s clear: %w", table, err)
	}
	if len(ids) == 0 {
		return nil
	}
	insert := fmt.Sprintf(`INSERT INTO %s (task_id, %s) SELECT $1::bigint, UNNEST($2::bigint[]) ON CONFLICT DO NOTHING`, table, column)
	if _, err := q.ExecContext(ctx, insert, taskID, pq.Array(ids)); err != nil {
		return translatePgError("pgTaskRepository.replace "+table, err)
	}
	return nil
}

func (r *pgTaskRepository) LockTask(ctx context.Context, tx *sql.Tx, id int64) (*model.TaskRef, error) {
	ref := &model.TaskRef{}
	err := conn(r.db, tx).QueryRowContext(ctx,
		`SELECT id, title_ru FROM tasks WHERE id = $1 FOR UPDATE`, id,
	).Scan(&ref.ID, &ref.TitleRU)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgTaskRepository.LockTask: %w", err)
	}
	return ref, nil
}

func (r *pgTaskRepository) LockTasks(ctx context.Context, tx *sql.Tx, ids []int64) ([]model.TaskRef, error) {
	return r.lockRefs(ctx, tx, "LockTasks",
		`SELECT id, title_ru FROM tasks WHERE id = ANY($1) ORDER BY id FOR UPDATE`, pq.Array(ids))
}

func (r *pgTaskRepository) LockTasksByFilter(ctx context.Context, tx *sql.Tx, filter model.TaskDeleteFilter) ([]model.TaskRef, error) {
	where, args, err := buildDeleteFilter(filter)
	if err != nil {
		return nil, err
	}
	return r.lockRefs(ctx, tx, "LockTasksByFilter",
		`SELECT id, title_ru FROM tasks WHERE `+where+` ORDER BY id FOR UPDATE`, args...)
}

func (r *pgTaskRepository) lockRefs(ctx context.Context, tx *sql.Tx, op, query string, args ...interface{}) ([]model.TaskRef, error) {
	rows, err := conn(r.db, tx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("pgTaskRepository.%s: %w", op, err)
	}
	defer rows.Close()

	refs := []model.TaskRef{}
	for rows.Next() {
		var ref model.TaskRef
		if err := rows.Scan(&ref.ID, &ref.TitleRU); err != nil {
			return nil, fmt.Errorf("pgTaskRepository.%s scan: %w", op, err)
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgTaskRepository.%s rows: %w", op, err)
	}
	return refs, nil
}

// buildDeleteFilter renders the conjunctive WHERE clause; an empty filter is rejected.
func buildDeleteFilter(f model.TaskDeleteFilter) (string, []interface{}, error) {
	var conditions []string
	var args []interface{}
	argID := 1

	if f.MinDifficulty != nil {
		conditions = append(conditions, fmt.Sprintf("difficulty >= $%d", argID))
		args = append(args, *f.MinDifficulty)
		argID++
	}
	if f.MaxDifficulty != nil {
		conditions = append(conditions, fmt.Sprintf("difficulty <= $%d", argID))
		args = append(args, *f.MaxDifficulty)
		argID++
	}
	if f.TagID != nil {
		conditions = append(conditions, fmt.Sprintf("id IN (SELECT task_id FROM task_tags WHERE tag_id = $%d)", argID))
		args = append(args, *f.TagID)
		argID++
	}
	if f.ContestID != nil {
		conditions = append(conditions, fmt.Sprintf("id IN (SELECT task_id FROM task_contests WHERE contest_id = $%d)", argID))
		args = append(args, *f.ContestID)
		argID++
	}
	if f.IsCodeforcesReady != nil {
		conditions = append(conditions, fmt.Sprintf("is_codeforces_ready = $%d", argID))
		args = append(args, *f.IsCodeforcesReady)
		argID++
	}
	if f.IsYandexReady != nil {
		conditions = append(conditions, fmt.Sprintf("is_yandex_ready = $%d", argID))
		args = append(args, *f.IsYandexReady)
	}

	if len(conditions) == 0 {
		return "", nil, fmt.Errorf("no filter conditions given: %w", common.ErrValidation)
	}
	return strings.Join(conditions, " AND "), args, nil
}

func (r *pgTaskRepository) DeleteTaskAssociations(ctx context.Context, tx *sql.Tx, ids []int64) (int64, int64, error) {
	q := conn(r.db, tx)
	tagRes, err := q.ExecContext(ctx, `DELETE FROM task_tags WHERE task_id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return 0, 0, fmt.Errorf("pgTaskRepository.DeleteTaskAssociations tags: %w", err)
	}
	contestRes, err := q.ExecContext(ctx, `DELETE FROM task_contests WHERE task_id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return 0, 0, fmt.Errorf("pgTaskRepository.DeleteTaskAssociations contests: %w", err)
	}
	tags, _ := tagRes.RowsAffected()
	contests, _ := contestRes.RowsAffected()
	return tags, contests, nil
}

func (r *pgTaskRepository) DeleteTasks(ctx context.Context, tx *sql.Tx, ids []int64) (int64, error) {
	res, err := conn(r.db, tx).ExecContext(ctx, `DELETE FROM tasks WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return 0, fmt.Errorf("pgTaskRepository.DeleteTasks: %w", err)
	}
	return res.RowsAffected()
}

func (r *pgTaskRepository) CountTasks(ctx context.Context, tx *sql.Tx) (int64, error) {
	var total int64
	if err := conn(r.db, tx).QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks`).Scan(&total); err != nil {
		return 0, fmt.Errorf("pgTaskRepository.CountTasks: %w", err)
	}
	return total, nil
}

func (r *pgTaskRepository) TruncateTasks(ctx context.Context, tx *sql.Tx) error {
	if _, err := conn(r.db, tx).ExecContext(ctx, `TRUNCATE task_tags, task_contests, tasks RESTART IDENTITY`); err != nil {
		return fmt.Errorf("pgTaskRepository.TruncateTasks: %w", err)
	}
	return nil
}
