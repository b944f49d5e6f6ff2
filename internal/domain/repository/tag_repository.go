package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"tamaco/internal/common"
	"tamaco/internal/domain/model"

	"github.com/lib/pq"
)

type TagRepository interface {
	ListTags(ctx context.Context) ([]model.Tag, error)
	FindTagByID(ctx context.Context, id int64) (*model.Tag, error)
	FindTagByName(ctx context.Context, tx *sql.Tx, name string) (*model.Tag, error)
	LockTag(ctx context.Context, tx *sql.Tx, id int64) (*model.Tag, error)
	CreateTag(ctx context.Context, tx *sql.Tx, name string) (*model.Tag, error)
	UpdateTag(ctx context.Context, tx *sql.Tx, id int64, name string) (*model.Tag, error)
	CountTagUsage(ctx context.Context, tx *sql.Tx, id int64) (int64, error)
	DeleteTag(ctx context.Context, tx *sql.Tx, id int64) (int64, error)
	SearchTags(ctx context.Context, term string, limit int) ([]model.Tag, error)
	TagStats(ctx context.Context) ([]model.TagStat, error)
	ExistingTagIDs(ctx context.Context, tx *sql.Tx, ids []int64) ([]int64, error)
}

type pgTagRepository struct {
	db *sql.DB
}

func NewPgTagRepository(db *sql.DB) TagRepository {
	return &pgTagRepository{db: db}
}

func (r *pgTagRepository) queryTags(ctx context.Context, op, query string, args ...interface{}) ([]model.Tag, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("pgTagRepository.%s: %w", op, err)
	}
	defer rows.Close()

	tags := []model.Tag{}
	for rows.Next() {
		var t model.Tag
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, fmt.Errorf("pgTagRepository.%s scan: %w", op, err)
		}
		tags = append(tags, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgTagRepository.%s rows: %w", op, err)
	}
	return tags, nil
}

func (r *pgTagRepository) ListTags(ctx context.Context) ([]model.Tag, error) {
	return r.queryTags(ctx, "ListTags", `SELECT id, name FROM tags ORDER BY name`)
}

func (r *pgTagRepository) FindTagByID(ctx context.Context, id int64) (*model.Tag, error) {
	return r.findOne(ctx, nil, "FindTagByID", `SELECT id, name FROM tags WHERE id = $1`, id)
}

func (r *pgTagRepository) FindTagByName(ctx context.Context, tx *sql.Tx, name string) (*model.Tag, error) {
	return r.findOne(ctx, tx, "FindTagByName", `SELECT id, name FROM tags WHERE name = $1`, name)
}

// LockTag blocks concurrent task links to the tag until tx ends.
func (r *pgTagRepository) LockTag(ctx context.Context, tx *sql.Tx, id int64) (*model.Tag, error) {
	return r.findOne(ctx, tx, "LockTag", `SELECT id, name FROM tags WHERE id = $1 FOR UPDATE`, id)
}

func (r *pgTagRepository) findOne(ctx context.Context, tx *sql.Tx, op, query string, arg interface{}) (*model.Tag, error) {
	tag := &model.Tag{}
	if err := conn(r.db, tx).QueryRowContext(ctx, query, arg).Scan(&tag.ID, &tag.Name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgTagRepository.%s: %w", op, err)
	}
	return tag, nil
}

func (r *pgTagRepository) CreateTag(ctx context.Context, tx *sql.Tx, name string) (*model.Tag, error) {
	tag := &model.Tag{}
	err := conn(r.db, tx).QueryRowContext(ctx,
		`INSERT INTO tags (name) VALUES ($1) RETURNING id, name`, name,
	).Scan(&tag.ID, &tag.Name)
	if err != nil {
		if common.IsPgCode(err, common.PgUniqueViolation) {
			return nil, fmt.Errorf("tag %q already exists: %w", name, common.ErrConflict)
		}
		return nil, translatePgError("pgTagRepository.CreateTag", err)
	}
	return tag, nil
}

func (r *pgTagRepository) UpdateTag(ctx context.Context, tx *sql.Tx, id int64, name string) (*model.Tag, error) {
	tag := &model.Tag{}
	err := conn(r.db, tx).QueryRowContext(ctx,
		`UPDATE tags SET name = $1 WHERE id = $2 RETURNING id, name`, name, id,
	).Scan(&tag.ID, &tag.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		if common.IsPgCode(err, common.PgUniqueViolation) {
			return nil, fmt.Errorf("tag %q already exists: %w", name, common.ErrConflict)
		}
		return nil, translatePgError("pgTagRepository.UpdateTag", err)
	}
	return tag, nil
}

func (r *pgTagRepository) CountTagUsage(ctx context.Context, tx *sql.Tx, id int64) (int64, error) {
	var n int64
	if err := conn(r.db, tx).QueryRowContext(ctx, `SELECT COUNT(*) FROM task_tags WHERE tag_id = $1`, id).Scan(&n); err != nil {
		return 0, fmt.Errorf("pgTagRepository.CountTagUsage: %w", err)
	}
	return n, nil
}

func (r *pgTagRepository) DeleteTag(ctx context.Context, tx *sql.Tx, id int64) (int64, error) {
	res, err := conn(r.db, tx).ExecContext(ctx, `DELETE FROM tags WHERE id = $1`, id)
	if err != nil {
		return 0, translatePgError("pgTagRepository.DeleteTag", err)
	}
	return res.RowsAffected()
}

func (r *pgTagRepository) SearchTags(ctx context.Context, term string, limit int) ([]model.Tag, error) {
	return r.queryTags(ctx, "SearchTags",
		`SELECT id, name FROM tags WHERE name ILIKE $1 ORDER BY name LIMIT $2`, likePattern(term), limit)
}

func (r *pgTagRepository) TagStats(ctx context.Context) ([]model.TagStat, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT tg.id, tg.name, COUNT(tt.task_id) AS task_count
		FROM tags tg
		LEFT JOIN task_tags tt ON tt.tag_id = tg.id
		GROUP BY tg.id, tg.name
		ORDER BY task_count DESC, tg.name`)
	if err != nil {
		return nil, fmt.Errorf("pgTagRepository.TagStats: %w", err)
	}
	defer rows.Close()

	stats := []model.TagStat{}
	for rows.Next() {
		var s model.TagStat
		if err := rows.Scan(&s.ID, &s.Name, &s.TaskCount); err != nil {
			return nil, fmt.Errorf("pgTagRepository.TagStats scan: %w", err)
		}
		stats = append(stats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgTagRepository.TagStats rows: %w", err)
	}
	return stats, nil
}

func (r *pgTagRepository) ExistingTagIDs(ctx context.Context, tx *sql.Tx, ids []int64) ([]int64, error) {
	return existingIDs(ctx, conn(r.db, tx), "tags", ids)
}

// existingIDs returns the subset of ids present in table. Table is an internal constant.
func existingIDs(ctx context.Context, q querier, table string, ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return []int64{}, nil
	}
	var found pq.Int64Array
	err := q.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COALESCE(ARRAY_AGG(id ORDER BY id), '{}') FROM %s WHERE id = ANY($1)`, table),
		pq.Array(ids),
	).Scan(&found)
	if err != nil {
		return nil, fmt.Errorf("existing %s ids: %w", table, err)
	}
	return []int64(found), nil
}
