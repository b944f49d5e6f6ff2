package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"tamaco/internal/api/middleware"
	"tamaco/internal/app/service"
	"tamaco/internal/common"
	"tamaco/internal/domain/model"

	"github.com/go-chi/chi/v5"
)

type TaskService interface {
	ListTasks(ctx context.Context, page, limit int) ([]model.Task, model.Pagination, error)
	GetTask(ctx context.Context, id int64) (*model.Task, error)
	GetTaskBySlug(ctx context.Context, taskSlug string) (*model.Task, error)
	CreateTask(ctx context.Context, req service.CreateTaskRequest) (*model.Task, error)
	UpdateTask(ctx context.Context, id int64, req service.UpdateTaskRequest) (*model.Task, error)
	PatchTask(ctx context.Context, id int64, req service.UpdateTaskRequest) (*model.Task, error)
	DeleteTask(ctx context.Context, id int64) (*model.TaskDeletion, error)
	DeleteManyTasks(ctx context.Context, ids []int64) (*model.TaskDeletion, error)
	DeleteAllTasks(ctx context.Context) (*model.TaskDeletion, error)
	DeleteTasksByFilter(ctx context.Context, filter model.TaskDeleteFilter) (*model.TaskDeletion, error)
	FilterTasks(ctx context.Context, minDifficulty, maxDifficulty *int, tagIDs []int64) ([]model.Task, error)
	SearchTasks(ctx context.Context, term string, page, limit int) ([]model.Task, model.Pagination, error)
	TasksByTag(ctx context.Context, tagID int64, page, limit int) ([]model.Task, model.Pagination, error)
	TasksByContest(ctx context.Context, contestID int64, page, limit int) ([]model.Task, model.Pagination, error)
	GetTasksStats(ctx context.Context) (*model.TaskStats, error)
}

type TaskHandler struct {
	taskService TaskService
	errs        Errors
}

func NewTaskHandler(ts TaskService, errs Errors) *TaskHandler {
	return &TaskHandler{taskService: ts, errs: errs}
}

// RegisterRoutes mounts the task routes; authn must resolve the caller identity.
func (h *TaskHandler) RegisterRoutes(r chi.Router, authn func(http.Handler) http.Handler) {
	r.Get("/", h.listTasks)
	r.Get("/search", h.searchTasks)
	r.Get("/filter/by-difficulty", h.filterTasks)
	r.Get("/stats/summary", h.stats)
	r.Get("/by-tag/{tagID}", h.tasksByTag)
	r.Get("/by-contest/{contestID}", h.tasksByContest)
	r.Get("/slug/{slug}", h.getTaskBySlug)
	r.Get("/{taskID}", h.getTask)

	r.Group(func(userRouter chi.Router) {
		userRouter.Use(authn)
		userRouter.Use(middleware.RequireRole(model.RoleUser, model.RoleAdmin))
		userRouter.Post("/", h.createTask)
		userRouter.Put("/{taskID}", h.updateTask)
		userRouter.Patch("/{taskID}", h.patchTask)
	})

	r.Group(func(adminRouter chi.Router) {
		adminRouter.Use(authn)
		adminRouter.Use(middleware.AdminOnly)
		adminRouter.Delete("/{taskID}", h.deleteTask)
		adminRouter.Delete("/", h.deleteAllTasks)
		adminRouter.Post("/delete-many", h.deleteManyTasks)
		adminRouter.Post("/delete-by-filter", h.deleteTasksByFilter)
	})
}

func (h *TaskHandler) listTasks(w http.ResponseWriter, r *http.Request) {
	tasks, pagination, err := h.taskService.ListTasks(r.Context(), queryInt(r, "page", 1), queryInt(r, "limit", model.DefaultPageLimit))
	if err != nil {
		h.errs.Respond(w, r, err)
		return
	}
	common.RespondWithSuccess(w, http.StatusOK, common.Envelope{"tasks": tasks, "pagination": pagination})
}

func (h *TaskHandler) getTask(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "taskID")
	if err != nil {
		h.errs.Respond(w, r, err)
		return
	}
	task, err := h.taskService.GetTask(r.Context(), id)
	if err != nil {
		h.errs.Respond(w, r, err)
		return
	}
	common.RespondWithSuccess(w, http.StatusOK, common.Envelope{"data": task})
}

func (h *TaskHandler) getTaskBySlug(w http.ResponseWriter, r *http.Request) {
	task, err := h.taskService.GetTaskBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		h.errs.Respond(w, r, err)
		return
	}
	common.RespondWithSuccess(w, http.StatusOK, common.Envelope{"data": task})
}

func (h *TaskHandler) createTask(w http.ResponseWriter, r *http.Request) {
	var req service.CreateTaskRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.errs.Respond(w, r, err)
		return
	}
	task, err := h.taskService.CreateTask(r.Context(), req)
	if err != nil {
		h.errs.Respond(w, r, err)
		return
	}
	common.RespondWithSuccess(w, http.StatusCreated, common.Envelope{"message": "Task created", "data": task})
}

func (h *TaskHandler) updateTask(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, h.taskService.UpdateTask, decodeOptionalJSON)
}

func (h *TaskHandler) patchTask(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, h.taskService.PatchTask, decodeJSON)
}

type taskUpdateFunc func(ctx context.Context, id int64, req service.UpdateTaskRequest) (*model.Task, error)

type decodeFunc func(w http.ResponseWriter, r *http.Request, dst interface{}) error

func (h *TaskHandler) update(w http.ResponseWriter, r *http.Request, apply taskUpdateFunc, decode decodeFunc) {
	id, err := pathID(r, "taskID")
	if err != nil {
		h.errs.Respond(w, r, err)
		return
	}
	var req service.UpdateTaskRequest
	if err := decode(w, r, &req); err != nil {
		h.errs.Respond(w, r, err)
		return
	}
	task, err := apply(r.Context(), id, req)
	if err != nil {
		h.errs.Respond(w, r, err)
		return
	}
	common.RespondWithSuccess(w, http.StatusOK, common.Envelope{"message": "Task updated", "data": task})
}

func (h *TaskHandler) deleteTask(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "taskID")
	if err != nil {
		h.errs.Respond(w, r, err)
		return
	}
	deletion, err := h.taskService.DeleteTask(r.Context(), id)
	if err != nil {
		h.errs.Respond(w, r, err)
		return
	}
	common.RespondWithSuccess(w, http.StatusOK, common.Envelope{"message": "Task deleted", "data": deletion})
}

func (h *TaskHandler) deleteManyTasks(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs common.IDSet `json:"ids"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		h.errs.Respond(w, r, err)
		return
	}
	deletion, err := h.taskService.DeleteManyTasks(r.Context(), req.IDs.Int64s())
	if err != nil {
		h.errs.Respond(w, r, err)
		return
	}
	common.RespondWithSuccess(w, http.StatusOK, common.Envelope{
		"message": fmt.Sprintf("Deleted %d tasks", deletion.DeletedCount),
		"data":    deletion,
	})
}

func (h *TaskHandler) deleteAllTasks(w http.ResponseWriter, r *http.Request) {
	deletion, err := h.taskService.DeleteAllTasks(r.Context())
	if err != nil {
		h.errs.Respond(w, r, err)
		return
	}
	common.RespondWithSuccess(w, http.StatusOK, common.Envelope{
		"message": fmt.Sprintf("Deleted all %d tasks", deletion.DeletedCount),
		"data":    deletion,
	})
}

func (h *TaskHandler) deleteTasksByFilter(w http.ResponseWriter, r *http.Request) {
	var filter model.TaskDeleteFilter
	if err := decodeJSON(w, r, &filter); err != nil {
		h.errs.Respond(w, r, err)
		return
	}
	deletion, err := h.taskService.DeleteTasksByFilter(r.Context(), filter)
	if err != nil {
		h.errs.Respond(w, r, err)
		return
	}
	common.RespondWithSuccess(w, http.StatusOK, common.Envelope{
		"message": fmt.Sprintf("Deleted %d tasks matching the filter", deletion.DeletedCount),
		"data":    deletion,
	})
}

func (h *TaskHandler) searchTasks(w http.ResponseWriter, r *http.Request) {
	term := strings.TrimSpace(r.URL.Query().Get("q"))
	tasks, pagination, err := h.taskService.SearchTasks(r.Context(), term, queryInt(r, "page", 1), queryInt(r, "limit", model.DefaultPageLimit))
	if err != nil {
		h.errs.Respond(w, r, err)
		return
	}
	common.RespondWithSuccess(w, http.StatusOK, common.Envelope{
		"searchTerm": term,
		"tasks":      tasks,
		"pagination": pagination,
	})
}

func (h *TaskHandler) filterTasks(w http.ResponseWriter, r *http.Request) {
	minDifficulty := queryIntPtr(r, "min")
	maxDifficulty := queryIntPtr(r, "max")
	tagIDs := common.ParseIDList(r.URL.Query().Get("tags"))

	tasks, err := h.taskService.FilterTasks(r.Context(), minDifficulty, maxDifficulty, tagIDs.Int64s())
	if err != nil {
		h.errs.Respond(w, r, err)
		return
	}

	lo, hi := model.MinDifficulty, model.MaxDifficulty
	if minDifficulty != nil {
		lo = *minDifficulty
	}
	if maxDifficulty != nil {
		hi = *maxDifficulty
	}
	common.RespondWithSuccess(w, http.StatusOK, common.Envelope{
		"filters": map[string]interface{}{
			"minDifficulty": lo,
			"maxDifficulty": hi,
			"tagIds":        tagIDs,
			"tagCount":      len(tagIDs),
		},
		"count": len(tasks),
		"data":  tasks,
	})
}

func (h *TaskHandler) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.taskService.GetTasksStats(r.Context())
	if err != nil {
		h.errs.Respond(w, r, err)
		return
	}
	common.RespondWithSuccess(w, http.StatusOK, common.Envelope{"data": stats})
}

func (h *TaskHandler) tasksByTag(w http.ResponseWriter, r *http.Request) {
	tagID, err := pathID(r, "tagID")
	if err != nil {
		h.errs.Respond(w, r, err)
		return
	}
	tasks, pagination, err := h.taskService.TasksByTag(r.Context(), tagID, queryInt(r, "page", 1), queryInt(r, "limit", model.DefaultPageLimit))
	if err != nil {
		h.errs.Respond(w, r, err)
		return
	}
	common.RespondWithSuccess(w, http.StatusOK, common.Envelope{"tagId": tagID, "tasks": tasks, "pagination": pagination})
}

func (h *TaskHandler) tasksByContest(w http.ResponseWriter, r *http.Request) {
	contestID, err := pathID(r, "contestID")
	if err != nil {
		h.errs.Respond(w, r, err)
		return
	}
	tasks, pagination, err := h.taskService.TasksByContest(r.Context(), contestID, queryInt(r, "page", 1), queryInt(r, "limit", model.DefaultPageLimit))
	if err != nil {
		h.errs.Respond(w, r, err)
		return
	}
	common.RespondWithSuccess(w, http.StatusOK, common.Envelope{"contestId": contestID, "tasks": tasks, "pagination": pagination})
}
