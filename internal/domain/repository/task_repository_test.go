package repository

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"tamaco/internal/common"
	"tamaco/internal/domain/model"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
)

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }
func i64Ptr(i int64) *int64   { return &i }
func boolPtr(b bool) *bool    { return &b }

var taskColumns = []string{
	"id", "title_ru", "slug", "description", "solution_idea", "polygon_url",
	"difficulty", "note", "is_codeforces_ready", "is_yandex_ready",
	"created_at", "updated_at", "tags", "contests", "tag_ids", "contest_ids",
}

func TestBuildTaskUpdate(t *testing.T) {
	query, args := buildTaskUpdate(7, model.TaskChanges{
		TitleRU:    strPtr("Сумма"),
		Slug:       strPtr("summa"),
		Difficulty: intPtr(3),
	})

	want := "UPDATE tasks SET title_ru = $1, slug = $2, difficulty = $3, updated_at = NOW() WHERE id = $4"
	if query != want {
		t.Errorf("query = %q\nwant    %q", query, want)
	}
	if len(args) != 4 || args[0] != "Сумма" || args[2] != 3 || args[3] != int64(7) {
		t.Errorf("args = %v", args)
	}
}

func TestBuildTaskUpdateOnlyBumpsTimestamp(t *testing.T) {
	query, args := buildTaskUpdate(1, model.TaskChanges{})
	if query != "UPDATE tasks SET updated_at = NOW() WHERE id = $1" {
		t.Errorf("query = %q", query)
	}
	if len(args) != 1 {
		t.Errorf("args = %v", args)
	}
}

func TestBuildDeleteFilter(t *testing.T) {
	where, args, err := buildDeleteFilter(model.TaskDeleteFilter{
		MinDifficulty: intPtr(2),
		TagID:         i64Ptr(4),
		IsYandexReady: boolPtr(false),
	})
	if err != nil {
		t.Fatalf("buildDeleteFilter() error = %v", err)
	}
	want := "difficulty >= $1 AND id IN (SELECT task_id FROM task_tags WHERE tag_id = $2) AND is_yandex_ready = $3"
	if where != want {
		t.Errorf("where = %q\nwant    %q", where, want)
	}
	if len(args) != 3 || args[2] != false {
		t.Errorf("args = %v", args)
	}
}

func TestBuildDeleteFilterRequiresCondition(t *testing.T) {
	_, _, err := buildDeleteFilter(model.TaskDeleteFilter{})
	if !errors.Is(err, common.ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation", err)
	}
}

func TestLikePatternEscapesWildcards(t *testing.T) {
	if got := likePattern(`50%_off\`); got != `%50\%\_off\\%` {
		t.Errorf("likePattern() = %q", got)
	}
}

func TestFindTaskByIDScansJoinedColumns(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM tasks t WHERE t.id = $1")).
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows(taskColumns).AddRow(
			5, "Сумма", "summa", "d", "idea", "https://polygon.codeforces.com/p/1",
			4, "", true, true, now, now, "math,mod", "Python 5-7 Start", "{1,2}", "{3}",
		))

	task, err := NewPgTaskRepository(db).FindTaskByID(context.Background(), nil, 5)
	if err != nil {
		t.Fatalf("FindTaskByID() error = %v", err)
	}
	if task.Tags != "math,mod" || len(task.TagIDs) != 2 || task.TagIDs[1] != 2 || task.ContestIDs[0] != 3 {
		t.Errorf("task = %+v", task)
	}
	if !task.IsCodeforcesReady {
		t.Error("readiness flag not scanned")
	}
}

func TestFindTaskByIDNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("FROM tasks t WHERE").WillReturnRows(sqlmock.NewRows(taskColumns))

	if _, err := NewPgTaskRepository(db).FindTaskByID(context.Background(), nil, 99); !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestFilterTasksUsesHavingForTagConjunction(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("HAVING COUNT(DISTINCT tag_id) = $4")).
		WithArgs(2, 8, sqlmock.AnyArg(), 2).
		WillReturnRows(sqlmock.NewRows(taskColumns))

	tasks, err := NewPgTaskRepository(db).FilterTasks(context.Background(), 2, 8, []int64{1, 3})
	if err != nil {
		t.Fatalf("FilterTasks() error = %v", err)
	}
	if len(tasks) != 0 {
		t.Errorf("tasks = %v", tasks)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestReplaceTaskTagsEmptyOnlyClears(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM task_tags WHERE task_id = $1")).
		WithArgs(int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 2))

	if err := NewPgTaskRepository(db).ReplaceTaskTags(context.Background(), nil, 3, nil); err != nil {
		t.Fatalf("ReplaceTaskTags() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestReplaceTaskContestsInsertsSet(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM task_contests WHERE task_id = $1")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO task_contests (task_id, contest_id) SELECT $1::bigint, UNNEST($2::bigint[])")).
		WithArgs(int64(3), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))

	if err := NewPgTaskRepository(db).ReplaceTaskContests(context.Background(), nil, 3, []int64{1, 2}); err != nil {
		t.Fatalf("ReplaceTaskContests() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestUpdateTaskMissingRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("UPDATE tasks SET").WillReturnResult(sqlmock.NewResult(0, 0))

	err = NewPgTaskRepository(db).UpdateTask(context.Background(), nil, 42, model.TaskChanges{Note: strPtr("n")})
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestGetStats(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("GROUP BY difficulty").WillReturnRows(
		sqlmock.NewRows([]string{"difficulty", "count", "avg", "cf", "ya"}).
			AddRow(3, 2, 3.0, 1, 1).
			AddRow(7, 1, 7.0, 0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("COALESCE(AVG(difficulty), 0)")).WillReturnRows(
		sqlmock.NewRows([]string{"total", "avg", "min", "max", "cf", "ya"}).
			AddRow(3, 4.33, 3, 7, 1, 1))

	stats, err := NewPgTaskRepository(db).GetStats(context.Background())
	if err != nil {
		t.Fatalf("GetStats() error = %v", err)
	}
	if len(stats.ByDifficulty) != 2 || stats.Overall.TotalTasks != 3 || stats.Overall.MaxDifficulty != 7 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestTranslatePgErrorPassesThroughOtherErrors(t *testing.T) {
	base := errors.New("connection refused")
	err := translatePgError("op", base)
	if !errors.Is(err, base) || !strings.HasPrefix(err.Error(), "op: ") {
		t.Errorf("translatePgError() = %v", err)
	}
}

func TestTranslatePgErrorHidesDriverText(t *testing.T) {
	cases := []struct {
		code string
		want error
	}{
		{common.PgUniqueViolation, common.ErrConflict},
		{common.PgForeignKeyViolation, common.ErrValidation},
		{common.PgCheckViolation, common.ErrValidation},
		{common.PgStringTooLong, common.ErrValidation},
	}
	for _, c := range cases {
		pgErr := &pgconn.PgError{Code: c.code, Message: "violates constraint tasks_title_key", ConstraintName: "tasks_title_key"}
		err := translatePgError("create task", pgErr)
		if !errors.Is(err, c.want) {
			t.Errorf("%s: error = %v, want %v", c.code, err, c.want)
		}
		msg := err.Error()
		if strings.Contains(msg, "SQLSTATE") || strings.Contains(msg, "tasks_title_key") {
			t.Errorf("%s: message leaks driver text: %q", c.code, msg)
		}
		if !strings.HasSuffix(msg, c.want.Error()) {
			t.Errorf("%s: message %q does not end with the sentinel", c.code, msg)
		}
	}
}
