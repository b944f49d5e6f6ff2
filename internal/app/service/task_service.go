package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"tamaco/internal/common"
	"tamaco/internal/domain/model"
	"tamaco/internal/domain/repository"
	"tamaco/internal/platform/database"
	"tamaco/internal/platform/metrics"

	"github.com/gosimple/slug"
)

const entityTask = "task"

type TaskService struct {
	db          *sql.DB // For transactions
	taskRepo    repository.TaskRepository
	tagRepo     repository.TagRepository
	contestRepo repository.ContestRepository
	audit       AuditRecorder
	stats       StatsStore
	metrics     *metrics.Metrics
}

// NewTaskService wires the task module. audit, stats and m may be nil.
func NewTaskService(
	db *sql.DB,
	taskRepo repository.TaskRepository,
	tagRepo repository.TagRepository,
	contestRepo repository.ContestRepository,
	audit AuditRecorder,
	stats StatsStore,
	m *metrics.Metrics,
) *TaskService {
	return &TaskService{
		db:          db,
		taskRepo:    taskRepo,
		tagRepo:     tagRepo,
		contestRepo: contestRepo,
		audit:       audit,
		stats:       stats,
		metrics:     m,
	}
}

type CreateTaskRequest struct {
	TitleRU      string       `json:"title_ru"`
	Description  string       `json:"description"`
	SolutionIdea string       `json:"solution_idea"`
	PolygonURL   string       `json:"polygon_url"`
	Difficulty   *int         `json:"difficulty"`
	Note         string       `json:"note"`
	Tags         common.IDSet `json:"tags"`
	Contests     common.IDSet `json:"contests"`
	TagIDs       common.IDSet `json:"tag_ids"`     // alias of tags
	ContestIDs   common.IDSet `json:"contest_ids"` // alias of contests
}

// UpdateTaskRequest carries the allow-listed task fields. A nil field is left untouched;
// a non-nil Tags or Contests (even empty) replaces the whole association set.
type UpdateTaskRequest struct {
	TitleRU      *string       `json:"title_ru,omitempty"`
	Description  *string       `json:"description,omitempty"`
	SolutionIdea *string       `json:"solution_idea,omitempty"`
	PolygonURL   *string       `json:"polygon_url,omitempty"`
	Difficulty   *int          `json:"difficulty,omitempty"`
	Note         *string       `json:"note,omitempty"`
	Tags         *common.IDSet `json:"tags,omitempty"`
	Contests     *common.IDSet `json:"contests,omitempty"`
	TagIDs       *common.IDSet `json:"tag_ids,omitempty"`
	ContestIDs   *common.IDSet `json:"contest_ids,omitempty"`
}

func (r UpdateTaskRequest) tagSet() *common.IDSet {
	if r.Tags != nil {
		return r.Tags
	}
	return r.TagIDs
}

func (r UpdateTaskRequest) contestSet() *common.IDSet {
	if r.Contests != nil {
		return r.Contests
	}
	return r.ContestIDs
}

func (r UpdateTaskRequest) isEmpty() bool {
	return r.TitleRU == nil && r.Description == nil && r.SolutionIdea == nil && r.PolygonURL == nil &&
		r.Difficulty == nil && r.Note == nil && r.tagSet() == nil && r.contestSet() == nil
}

const (
	maxTitleLength      = 500
	maxPolygonURLLength = 500
)

func normalizeTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", fmt.Errorf("title_ru is required: %w", common.ErrValidation)
	}
	if len([]rune(title)) > maxTitleLength {
		return "", fmt.Errorf("title_ru is longer than %d characters: %w", maxTitleLength, common.ErrValidation)
	}
	return title, nil
}

func normalizePolygonURL(u string) (string, error) {
	u = strings.TrimSpace(u)
	if len([]rune(u)) > maxPolygonURLLength {
		return "", fmt.Errorf("polygon_url is longer than %d characters: %w", maxPolygonURLLength, common.ErrValidation)
	}
	return u, nil
}

func validateDifficulty(d int) error {
	if d < model.MinDifficulty || d > model.MaxDifficulty {
		return fmt.Errorf("difficulty must be between %d and %d: %w", model.MinDifficulty, model.MaxDifficulty, common.ErrValidation)
	}
	return nil
}

func (r CreateTaskRequest) toFields() (model.TaskFields, error) {
	title, err := normalizeTitle(r.TitleRU)
	if err != nil {
		return model.TaskFields{}, err
	}
	polygonURL, err := normalizePolygonURL(r.PolygonURL)
	if err != nil {
		return model.TaskFields{}, err
	}
	difficulty := model.DefaultDifficulty
	if r.Difficulty != nil {
		if err := validateDifficulty(*r.Difficulty); err != nil {
			return model.TaskFields{}, err
		}
		difficulty = *r.Difficulty
	}
	return model.TaskFields{
		TitleRU:      title,
		Slug:         slug.Make(title),
		Description:  r.Description,
		SolutionIdea: r.SolutionIdea,
		PolygonURL:   polygonURL,
		Difficulty:   difficulty,
		Note:         r.Note,
	}, nil
}

func (r UpdateTaskRequest) toChanges() (model.TaskChanges, error) {
	changes := model.TaskChanges{
		Description:  r.Description,
		SolutionIdea: r.SolutionIdea,
		Note:         r.Note,
	}
	if r.TitleRU != nil {
		title, err := normalizeTitle(*r.TitleRU)
		if err != nil {
			return changes, err
		}
		s := slug.Make(title)
		changes.TitleRU = &title
		changes.Slug = &s
	}
	if r.PolygonURL != nil {
		u, err := normalizePolygonURL(*r.PolygonURL)
		if err != nil {
			return changes, err
		}
		changes.PolygonURL = &u
	}
	if r.Difficulty != nil {
		if err := validateDifficulty(*r.Difficulty); err != nil {
			return changes, err
		}
		changes.Difficulty = r.Difficulty
	}
	return changes, nil
}

func (s *TaskService) ListTasks(ctx context.Context, page, limit int) ([]model.Task, model.Pagination, error) {
	page, limit = model.NormalizePage(page, limit)
	p := model.NewPagination(page, limit, 0)
	tasks, total, err := s.taskRepo.ListTasks(ctx, limit, p.Offset())
	if err != nil {
		return nil, p, fmt.Errorf("failed to list tasks: %w", err)
	}
	return tasks, model.NewPagination(page, limit, total), nil
}

func (s *TaskService) GetTask(ctx context.Context, id int64) (*model.Task, error) {
	if id <= 0 {
		return nil, fmt.Errorf("invalid task id: %w", common.ErrValidation)
	}
	return s.taskRepo.FindTaskByID(ctx, nil, id)
}

func (s *TaskService) GetTaskBySlug(ctx context.Context, taskSlug string) (*model.Task, error) {
	taskSlug = strings.TrimSpace(taskSlug)
	if taskSlug == "" {
		return nil, fmt.Errorf("slug is required: %w", common.ErrValidation)
	}
	return s.taskRepo.FindTaskBySlug(ctx, taskSlug)
}

func (s *TaskService) CreateTask(ctx context.Context, req CreateTaskRequest) (*model.Task, error) {
	fields, err := req.toFields()
	if err != nil {
		return nil, err
	}
	tags := common.NewIDSet(append(req.Tags, req.TagIDs...)...)
	contests := common.NewIDSet(append(req.Contests, req.ContestIDs...)...)

	var task *model.Task
	err = database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := s.checkReferences(ctx, tx, &tags, &contests); err != nil {
			return err
		}
		id, err := s.taskRepo.CreateTask(ctx, tx, fields)
		if err != nil {
			return err
		}
		if len(tags) > 0 {
			if err := s.taskRepo.ReplaceTaskTags(ctx, tx, id, tags); err != nil {
				return err
			}
		}
		if len(contests) > 0 {
			if err := s.taskRepo.ReplaceTaskContests(ctx, tx, id, contests); err != nil {
				return err
			}
		}
		task, err = s.taskRepo.FindTaskByID(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	s.afterMutation(ctx, "create", model.AuditActionCreate, &task.ID, map[string]interface{}{
		"title_ru": task.TitleRU, "tag_ids": task.TagIDs, "contest_ids": task.ContestIDs,
	})
	return task, nil
}

// UpdateTask applies the present fields; with no fields it only bumps updated_at.
func (s *TaskService) UpdateTask(ctx context.Context, id int64, req UpdateTaskRequest) (*model.Task, error) {
	return s.applyUpdate(ctx, id, req, "update")
}

// PatchTask is UpdateTask for partial payloads; an empty payload is rejected.
func (s *TaskService) PatchTask(ctx context.Context, id int64, req UpdateTaskRequest) (*model.Task, error) {
	if req.isEmpty() {
		return nil, fmt.Errorf("no fields to update: %w", common.ErrValidation)
	}
	return s.applyUpdate(ctx, id, req, "patch")
}

func (s *TaskService) applyUpdate(ctx context.Context, id int64, req UpdateTaskRequest, kind string) (*model.Task, error) {
	if id <= 0 {
		return nil, fmt.Errorf("invalid task id: %w", common.ErrValidation)
	}
	changes, err := req.toChanges()
	if err != nil {
		return nil, err
	}
	tags, contests := req.tagSet(), req.contestSet()

	var task *model.Task
	err = database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := s.taskRepo.LockTask(ctx, tx, id); err != nil {
			return err
		}
		if err := s.checkReferences(ctx, tx, tags, contests); err != nil {
			return err
		}
		if err := s.taskRepo.UpdateTask(ctx, tx, id, changes); err != nil {
			return err
		}
		if tags != nil {
			if err := s.taskRepo.ReplaceTaskTags(ctx, tx, id, *tags); err != nil {
				return err
			}
		}
		if contests != nil {
			if err := s.taskRepo.ReplaceTaskContests(ctx, tx, id, *contests); err != nil {
				return err
			}
		}
		task, err = s.taskRepo.FindTaskByID(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update task %d: %w", id, err)
	}

	s.afterMutation(ctx, kind, model.AuditActionUpdate, &task.ID, req)
	return task, nil
}

// checkReferences rejects tag or contest ids that do not exist. Nil sets are skipped.
func (s *TaskService) checkReferences(ctx context.Context, tx *sql.Tx, tags, contests *common.IDSet) error {
	if tags != nil && len(*tags) > 0 {
		found, err := s.tagRepo.ExistingTagIDs(ctx, tx, *tags)
		if err != nil {
			return err
		}
		if missing := tags.Missing(found); len(missing) > 0 {
			return fmt.Errorf("unknown tag ids %v: %w", missing, common.ErrValidation)
		}
	}
	if contests != nil && len(*contests) > 0 {
		found, err := s.contestRepo.ExistingContestIDs(ctx, tx, *contests)
		if err != nil {
			return err
		}
		if missing := contests.Missing(found); len(missing) > 0 {
			return fmt.Errorf("unknown contest ids %v: %w", missing, common.ErrValidation)
		}
	}
	return nil
}

func (s *TaskService) DeleteTask(ctx context.Context, id int64) (*model.TaskDeletion, error) {
	if id <= 0 {
		return nil, fmt.Errorf("invalid task id: %w", common.ErrValidation)
	}

	var result *model.TaskDeletion
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		// Concurrent deleters queue on the row lock; the loser sees no row.
		ref, err := s.taskRepo.LockTask(ctx, tx, id)
		if err != nil {
			return err
		}
		ids := []int64{id}
		tagsDeleted, contestsDeleted, err := s.taskRepo.DeleteTaskAssociations(ctx, tx, ids)
		if err != nil {
			return err
		}
		n, err := s.taskRepo.DeleteTasks(ctx, tx, ids)
		if err != nil {
			return err
		}
		if n == 0 {
			return common.ErrNotFound
		}
		result = &model.TaskDeletion{
			DeletedID:       ref.ID,
			Title:           ref.TitleRU,
			DeletedCount:    n,
			TagsDeleted:     tagsDeleted,
			ContestsDeleted: contestsDeleted,
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to delete task %d: %w", id, err)
	}

	s.afterMutation(ctx, "delete", model.AuditActionDelete, &id, result)
	return result, nil
}

func (s *TaskService) DeleteManyTasks(ctx context.Context, ids []int64) (*model.TaskDeletion, error) {
	set := common.NewIDSet(ids...)
	if len(set) == 0 {
		return nil, fmt.Errorf("no valid task ids given: %w", common.ErrValidation)
	}

	var result *model.TaskDeletion
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		refs, err := s.taskRepo.LockTasks(ctx, tx, set)
		if err != nil {
			return err
		}
		if len(refs) == 0 {
			return fmt.Errorf("none of the tasks %v exist: %w", []int64(set), common.ErrNotFound)
		}
		result, err = s.deleteRefs(ctx, tx, refs)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to delete tasks: %w", err)
	}

	s.afterMutation(ctx, "delete_many", model.AuditActionDelete, nil, result)
	return result, nil
}

func (s *TaskService) DeleteAllTasks(ctx context.Context) (*model.TaskDeletion, error) {
	result := &model.TaskDeletion{}
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		total, err := s.taskRepo.CountTasks(ctx, tx)
		if err != nil {
			return err
		}
		result.DeletedCount = total
		// Truncate even when empty so the id sequence restarts.
		return s.taskRepo.TruncateTasks(ctx, tx)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to delete all tasks: %w", err)
	}

	if result.DeletedCount > 0 {
		s.afterMutation(ctx, "delete_all", model.AuditActionDelete, nil, map[string]int64{"deletedCount": result.DeletedCount})
	}
	return result, nil
}

func (s *TaskService) DeleteTasksByFilter(ctx context.Context, filter model.TaskDeleteFilter) (*model.TaskDeletion, error) {
	if filter.IsEmpty() {
		return nil, fmt.Errorf("no filter conditions given: %w", common.ErrValidation)
	}
	for _, d := range []*int{filter.MinDifficulty, filter.MaxDifficulty} {
		if d != nil {
			if err := validateDifficulty(*d); err != nil {
				return nil, err
			}
		}
	}

	result := &model.TaskDeletion{Filter: &filter}
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		refs, err := s.taskRepo.LockTasksByFilter(ctx, tx, filter)
		if err != nil {
			return err
		}
		if len(refs) == 0 {
			return nil
		}
		deleted, err := s.deleteRefs(ctx, tx, refs)
		if err != nil {
			return err
		}
		deleted.Filter = &filter
		result = deleted
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to delete tasks by filter: %w", err)
	}

	if result.DeletedCount > 0 {
		s.afterMutation(ctx, "delete_by_filter", model.AuditActionDelete, nil, result)
	}
	return result, nil
}

// deleteRefs removes exactly the locked tasks and their associations.
func (s *TaskService) deleteRefs(ctx context.Context, tx *sql.Tx, refs []model.TaskRef) (*model.TaskDeletion, error) {
	ids := make([]int64, len(refs))
	titles := make([]string, len(refs))
	for i, ref := range refs {
		ids[i] = ref.ID
		titles[i] = ref.TitleRU
	}
	tagsDeleted, contestsDeleted, err := s.taskRepo.DeleteTaskAssociations(ctx, tx, ids)
	if err != nil {
		return nil, err
	}
	n, err := s.taskRepo.DeleteTasks(ctx, tx, ids)
	if err != nil {
		return nil, err
	}
	return &model.TaskDeletion{
		DeletedCount:    n,
		DeletedIDs:      ids,
		DeletedTitles:   titles,
		TagsDeleted:     tagsDeleted,
		ContestsDeleted: contestsDeleted,
	}, nil
}

// FilterTasks applies the difficulty range (default 1..10) and requires every tag in tagIDs.
func (s *TaskService) FilterTasks(ctx context.Context, minDifficulty, maxDifficulty *int, tagIDs []int64) ([]model.Task, error) {
	lo, hi := model.MinDifficulty, model.MaxDifficulty
	if minDifficulty != nil {
		if err := validateDifficulty(*minDifficulty); err != nil {
			return nil, err
		}
		lo = *minDifficulty
	}
	if maxDifficulty != nil {
		if err := validateDifficulty(*maxDifficulty); err != nil {
			return nil, err
		}
		hi = *maxDifficulty
	}
	if lo > hi {
		return nil, fmt.Errorf("min difficulty %d is greater than max %d: %w", lo, hi, common.ErrValidation)
	}
	tasks, err := s.taskRepo.FilterTasks(ctx, lo, hi, common.NewIDSet(tagIDs...))
	if err != nil {
		return nil, fmt.Errorf("failed to filter tasks: %w", err)
	}
	return tasks, nil
}

func (s *TaskService) SearchTasks(ctx context.Context, term string, page, limit int) ([]model.Task, model.Pagination, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, model.Pagination{}, fmt.Errorf("search term is required: %w", common.ErrValidation)
	}
	page, limit = model.NormalizePage(page, limit)
	p := model.NewPagination(page, limit, 0)
	tasks, total, err := s.taskRepo.SearchTasks(ctx, term, limit, p.Offset())
	if err != nil {
		return nil, p, fmt.Errorf("failed to search tasks: %w", err)
	}
	return tasks, model.NewPagination(page, limit, total), nil
}

func (s *TaskService) TasksByTag(ctx context.Context, tagID int64, page, limit int) ([]model.Task, model.Pagination, error) {
	if _, err := s.tagRepo.FindTagByID(ctx, tagID); err != nil {
		return nil, model.Pagination{}, err
	}
	page, limit = model.NormalizePage(page, limit)
	p := model.NewPagination(page, limit, 0)
	tasks, total, err := s.taskRepo.ListTasksByTag(ctx, tagID, limit, p.Offset())
	if err != nil {
		return nil, p, fmt.Errorf("failed to list tasks for tag %d: %w", tagID, err)
	}
	return tasks, model.NewPagination(page, limit, total), nil
}

func (s *TaskService) TasksByContest(ctx context.Context, contestID int64, page, limit int) ([]model.Task, model.Pagination, error) {
	if _, err := s.contestRepo.FindContestByID(ctx, nil, contestID); err != nil {
		return nil, model.Pagination{}, err
	}
	page, limit = model.NormalizePage(page, limit)
	p := model.NewPagination(page, limit, 0)
	tasks, total, err := s.taskRepo.ListTasksByContest(ctx, contestID, limit, p.Offset())
	if err != nil {
		return nil, p, fmt.Errorf("failed to list tasks for contest %d: %w", contestID, err)
	}
	return tasks, model.NewPagination(page, limit, total), nil
}

func (s *TaskService) GetTasksStats(ctx context.Context) (*model.TaskStats, error) {
	if s.stats != nil {
		if cached, ok := s.stats.Get(ctx); ok {
			return cached, nil
		}
	}
	stats, err := s.taskRepo.GetStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load task stats: %w", err)
	}
	if s.stats != nil {
		s.stats.Set(ctx, stats)
	}
	return stats, nil
}

// afterMutation runs the post-commit side effects. None of them can fail the mutation.
func (s *TaskService) afterMutation(ctx context.Context, kind, action string, entityID *int64, details interface{}) {
	if s.stats != nil {
		s.stats.Invalidate(ctx)
	}
	s.metrics.ObserveTaskMutation(kind)
	if s.audit != nil {
		s.audit.Record(ctx, action, entityTask, entityID, details)
	}
}
