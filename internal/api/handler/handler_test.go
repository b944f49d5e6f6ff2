package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"tamaco/internal/app/service"
	"tamaco/internal/common"
	"tamaco/internal/common/security"
	"tamaco/internal/domain/model"

	"github.com/go-chi/chi/v5"
)

// testAuthn trusts an X-Test-Role header instead of a JWT.
func testAuthn(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		role := r.Header.Get("X-Test-Role")
		if role == "" {
			common.RespondWithError(w, http.StatusUnauthorized, "Access token required")
			return
		}
		id, _ := strconv.ParseInt(r.Header.Get("X-Test-User"), 10, 64)
		ctx := security.WithIdentity(r.Context(), security.Identity{ID: id, Login: "tester", Role: role})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type request struct {
	method, path, body, role string
	userID                   int64
}

func serve(t *testing.T, h http.Handler, req request) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	r := httptest.NewRequest(req.method, req.path, bytes.NewReader([]byte(req.body)))
	if req.role != "" {
		r.Header.Set("X-Test-Role", req.role)
		r.Header.Set("X-Test-User", strconv.FormatInt(req.userID, 10))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)

	var decoded map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("response is not JSON: %v (%s)", err, rec.Body.String())
	}
	return rec, decoded
}

type fakeTaskService struct {
	tasks map[int64]*model.Task

	lastCreate  service.CreateTaskRequest
	lastUpdate  *service.UpdateTaskRequest
	lastPatched bool
	lastFilter  struct {
		min, max *int
		tags     []int64
	}
	deletedIDs []int64
	failWith   error
}

func newFakeTaskService() *fakeTaskService {
	return &fakeTaskService{tasks: map[int64]*model.Task{
		1: {ID: 1, TitleRU: "Сумма чисел", Slug: "summa-chisel", Difficulty: 3},
	}}
}

func (f *fakeTaskService) ListTasks(_ context.Context, page, limit int) ([]model.Task, model.Pagination, error) {
	if f.failWith != nil {
		return nil, model.Pagination{}, f.failWith
	}
	var out []model.Task
	for _, t := range f.tasks {
		out = append(out, *t)
	}
	return out, model.NewPagination(page, limit, int64(len(out))), nil
}

func (f *fakeTaskService) GetTask(_ context.Context, id int64) (*model.Task, error) {
	if t, ok := f.tasks[id]; ok {
		return t, nil
	}
	return nil, fmt.Errorf("task %d: %w", id, common.ErrNotFound)
}

func (f *fakeTaskService) GetTaskBySlug(_ context.Context, s string) (*model.Task, error) {
	for _, t := range f.tasks {
		if t.Slug == s {
			return t, nil
		}
	}
	return nil, common.ErrNotFound
}

func (f *fakeTaskService) CreateTask(_ context.Context, req service.CreateTaskRequest) (*model.Task, error) {
	f.lastCreate = req
	if req.TitleRU == "" {
		return nil, fmt.Errorf("title_ru is required: %w", common.ErrValidation)
	}
	return &model.Task{ID: 2, TitleRU: req.TitleRU}, nil
}

func (f *fakeTaskService) UpdateTask(_ context.Context, id int64, req service.UpdateTaskRequest) (*model.Task, error) {
	f.lastUpdate = &req
	return f.GetTask(context.Background(), id)
}

func (f *fakeTaskService) PatchTask(_ context.Context, id int64, req service.UpdateTaskRequest) (*model.Task, error) {
	f.lastPatched = true
	return f.UpdateTask(context.Background(), id, req)
}

func (f *fakeTaskService) DeleteTask(_ context.Context, id int64) (*model.TaskDeletion, error) {
	t, ok := f.tasks[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return &model.TaskDeletion{DeletedID: id, Title: t.TitleRU, DeletedCount: 1}, nil
}

func (f *fakeTaskService) DeleteManyTasks(_ context.Context, ids []int64) (*model.TaskDeletion, error) {
	f.deletedIDs = ids
	return &model.TaskDeletion{DeletedCount: int64(len(ids)), DeletedIDs: ids}, nil
}

func (f *fakeTaskService) DeleteAllTasks(context.Context) (*model.TaskDeletion, error) {
	return &model.TaskDeletion{DeletedCount: int64(len(f.tasks))}, nil
}

func (f *fakeTaskService) DeleteTasksByFilter(_ context.Context, filter model.TaskDeleteFilter) (*model.TaskDeletion, error) {
	if filter.IsEmpty() {
		return nil, fmt.Errorf("filter is empty: %w", common.ErrValidation)
	}
	return &model.TaskDeletion{}, nil
}

func (f *fakeTaskService) FilterTasks(_ context.Context, lo, hi *int, tags []int64) ([]model.Task, error) {
	f.lastFilter.min, f.lastFilter.max, f.lastFilter.tags = lo, hi, tags
	return []model.Task{*f.tasks[1]}, nil
}

func (f *fakeTaskService) SearchTasks(_ context.Context, term string, page, limit int) ([]model.Task, model.Pagination, error) {
	if term == "" {
		return nil, model.Pagination{}, fmt.Errorf("search term is required: %w", common.ErrValidation)
	}
	return []model.Task{*f.tasks[1]}, model.NewPagination(page, limit, 1), nil
}

func (f *fakeTaskService) TasksByTag(_ context.Context, tagID int64, page, limit int) ([]model.Task, model.Pagination, error) {
	return nil, model.NewPagination(page, limit, 0), nil
}

func (f *fakeTaskService) TasksByContest(_ context.Context, id int64, page, limit int) ([]model.Task, model.Pagination, error) {
	return nil, model.Pagination{}, common.ErrNotFound
}

func (f *fakeTaskService) GetTasksStats(context.Context) (*model.TaskStats, error) {
	return &model.TaskStats{Overall: model.OverallStat{TotalTasks: 1}}, nil
}

func newTaskRouter(svc TaskService, expose bool) http.Handler {
	r := chi.NewRouter()
	h := NewTaskHandler(svc, Errors{ExposeDetails: expose})
	r.Route("/api/tasks", func(r chi.Router) { h.RegisterRoutes(r, testAuthn) })
	return r
}

func TestTaskRoutesAuthLevels(t *testing.T) {
	h := newTaskRouter(newFakeTaskService(), true)

	cases := []struct {
		name string
		req  request
		want int
	}{
		{"public read", request{method: http.MethodGet, path: "/api/tasks/1"}, http.StatusOK},
		{"anonymous create", request{method: http.MethodPost, path: "/api/tasks", body: `{"title_ru":"x"}`}, http.StatusUnauthorized},
		{"user create", request{method: http.MethodPost, path: "/api/tasks", body: `{"title_ru":"x"}`, role: model.RoleUser}, http.StatusCreated},
		{"user delete", request{method: http.MethodDelete, path: "/api/tasks/1", role: model.RoleUser}, http.StatusForbidden},
		{"admin delete", request{method: http.MethodDelete, path: "/api/tasks/1", role: model.RoleAdmin}, http.StatusOK},
		{"admin delete all", request{method: http.MethodDelete, path: "/api/tasks", role: model.RoleAdmin}, http.StatusOK},
		{"user delete many", request{method: http.MethodPost, path: "/api/tasks/delete-many", body: `{"ids":[1]}`, role: model.RoleUser}, http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, _ := serve(t, h, tc.req)
			if rec.Code != tc.want {
				t.Errorf("status = %d, want %d (%s)", rec.Code, tc.want, rec.Body.String())
			}
		})
	}
}

func TestGetTaskEnvelopes(t *testing.T) {
	h := newTaskRouter(newFakeTaskService(), true)

	rec, body := serve(t, h, request{method: http.MethodGet, path: "/api/tasks/1"})
	if rec.Code != http.StatusOK || body["success"] != true {
		t.Fatalf("status = %d body = %v", rec.Code, body)
	}
	if data := body["data"].(map[string]interface{}); data["slug"] != "summa-chisel" {
		t.Errorf("data = %v", data)
	}

	rec, body = serve(t, h, request{method: http.MethodGet, path: "/api/tasks/42"})
	if rec.Code != http.StatusNotFound || body["success"] != false || body["error"] != "task 42" {
		t.Errorf("status = %d body = %v", rec.Code, body)
	}

	rec, _ = serve(t, h, request{method: http.MethodGet, path: "/api/tasks/abc"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("non-numeric id status = %d", rec.Code)
	}

	rec, body = serve(t, h, request{method: http.MethodGet, path: "/api/tasks/slug/summa-chisel"})
	if rec.Code != http.StatusOK || body["data"] == nil {
		t.Errorf("slug lookup status = %d", rec.Code)
	}
}

func TestCreateTaskAcceptsIDShapes(t *testing.T) {
	svc := newFakeTaskService()
	h := newTaskRouter(svc, true)

	rec, body := serve(t, h, request{
		method: http.MethodPost, path: "/api/tasks", role: model.RoleUser,
		body: `{"title_ru":"Новая","tags":"3,1","contest_ids":[2,"2"]}`,
	})
	if rec.Code != http.StatusCreated || body["message"] == nil {
		t.Fatalf("status = %d body = %v", rec.Code, body)
	}
	if got := svc.lastCreate.Tags; len(got) != 2 || got[0] != 1 || got[1] != 3 {
		t.Errorf("tags = %v", got)
	}
	if got := svc.lastCreate.ContestIDs; len(got) != 1 || got[0] != 2 {
		t.Errorf("contest_ids = %v", got)
	}
}

func TestCreateTaskErrors(t *testing.T) {
	h := newTaskRouter(newFakeTaskService(), true)

	rec, body := serve(t, h, request{method: http.MethodPost, path: "/api/tasks", role: model.RoleUser, body: `{"title_ru":""}`})
	if rec.Code != http.StatusBadRequest || body["error"] != "title_ru is required" {
		t.Errorf("status = %d body = %v", rec.Code, body)
	}

	rec, _ = serve(t, h, request{method: http.MethodPost, path: "/api/tasks", role: model.RoleUser, body: `{broken`})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed JSON status = %d", rec.Code)
	}
}

func TestPutAllowsEmptyBodyPatchDoesNot(t *testing.T) {
	svc := newFakeTaskService()
	h := newTaskRouter(svc, true)

	rec, _ := serve(t, h, request{method: http.MethodPut, path: "/api/tasks/1", role: model.RoleUser})
	if rec.Code != http.StatusOK || svc.lastUpdate == nil || svc.lastPatched {
		t.Errorf("PUT status = %d update = %v", rec.Code, svc.lastUpdate)
	}

	rec, _ = serve(t, h, request{method: http.MethodPatch, path: "/api/tasks/1", role: model.RoleUser})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("PATCH with no body status = %d", rec.Code)
	}
}

func TestUpdateTaskDistinguishesAbsentTags(t *testing.T) {
	svc := newFakeTaskService()
	h := newTaskRouter(svc, true)

	serve(t, h, request{method: http.MethodPut, path: "/api/tasks/1", role: model.RoleUser, body: `{"note":"n"}`})
	if svc.lastUpdate.Tags != nil {
		t.Errorf("absent tags decoded as %v", *svc.lastUpdate.Tags)
	}

	serve(t, h, request{method: http.MethodPut, path: "/api/tasks/1", role: model.RoleUser, body: `{"tags":[]}`})
	if svc.lastUpdate.Tags == nil || len(*svc.lastUpdate.Tags) != 0 {
		t.Errorf("empty tags decoded as %v", svc.lastUpdate.Tags)
	}
}

func TestFilterTasksEnvelope(t *testing.T) {
	svc := newFakeTaskService()
	h := newTaskRouter(svc, true)

	rec, body := serve(t, h, request{method: http.MethodGet, path: "/api/tasks/filter/by-difficulty?min=2&tags=4,2,x"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if svc.lastFilter.min == nil || *svc.lastFilter.min != 2 || svc.lastFilter.max != nil {
		t.Errorf("min/max = %v/%v", svc.lastFilter.min, svc.lastFilter.max)
	}
	filters := body["filters"].(map[string]interface{})
	if filters["minDifficulty"] != float64(2) || filters["maxDifficulty"] != float64(10) || filters["tagCount"] != float64(2) {
		t.Errorf("filters = %v", filters)
	}
	if body["count"] != float64(1) {
		t.Errorf("count = %v", body["count"])
	}
}

func TestSearchTasks(t *testing.T) {
	h := newTaskRouter(newFakeTaskService(), true)

	rec, body := serve(t, h, request{method: http.MethodGet, path: "/api/tasks/search?q=%D1%81%D1%83%D0%BC%D0%BC%D0%B0"})
	if rec.Code != http.StatusOK || body["searchTerm"] != "сумма" || body["pagination"] == nil {
		t.Errorf("status = %d body = %v", rec.Code, body)
	}

	rec, _ = serve(t, h, request{method: http.MethodGet, path: "/api/tasks/search?q=%20"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("blank search status = %d", rec.Code)
	}
}

func TestDeleteManyParsesIDs(t *testing.T) {
	svc := newFakeTaskService()
	h := newTaskRouter(svc, true)

	rec, body := serve(t, h, request{method: http.MethodPost, path: "/api/tasks/delete-many", role: model.RoleAdmin, body: `{"ids":"5,3,5"}`})
	if rec.Code != http.StatusOK || body["message"] != "Deleted 2 tasks" {
		t.Errorf("status = %d body = %v", rec.Code, body)
	}
	if len(svc.deletedIDs) != 2 || svc.deletedIDs[0] != 3 {
		t.Errorf("ids = %v", svc.deletedIDs)
	}
}

func TestDeleteByFilterRequiresCriteria(t *testing.T) {
	h := newTaskRouter(newFakeTaskService(), true)
	rec, _ := serve(t, h, request{method: http.MethodPost, path: "/api/tasks/delete-by-filter", role: model.RoleAdmin, body: `{}`})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestTasksByTagAndContest(t *testing.T) {
	h := newTaskRouter(newFakeTaskService(), true)

	rec, body := serve(t, h, request{method: http.MethodGet, path: "/api/tasks/by-tag/3?page=2"})
	if rec.Code != http.StatusOK || body["tagId"] != float64(3) {
		t.Errorf("by-tag status = %d body = %v", rec.Code, body)
	}
	rec, _ = serve(t, h, request{method: http.MethodGet, path: "/api/tasks/by-contest/9"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("by-contest status = %d", rec.Code)
	}
}

func TestServerErrorDetailExposure(t *testing.T) {
	svc := newFakeTaskService()
	svc.failWith = errors.New("connection reset by peer")

	_, body := serve(t, newTaskRouter(svc, true), request{method: http.MethodGet, path: "/api/tasks"})
	if body["error"] != "Internal server error" || body["message"] != "connection reset by peer" {
		t.Errorf("development body = %v", body)
	}

	rec, body := serve(t, newTaskRouter(svc, false), request{method: http.MethodGet, path: "/api/tasks"})
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d", rec.Code)
	}
	if _, ok := body["message"]; ok {
		t.Errorf("production body leaks detail: %v", body)
	}
}
