package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"tamaco/internal/api/middleware"
	"tamaco/internal/app/service"
	"tamaco/internal/common"
	"tamaco/internal/domain/model"

	"github.com/go-chi/chi/v5"
)

type ContestService interface {
	List(ctx context.Context) ([]model.Contest, error)
	ListByYear(ctx context.Context, year int) ([]model.Contest, error)
	Get(ctx context.Context, id int64) (*model.Contest, error)
	Create(ctx context.Context, req service.CreateContestRequest) (*model.Contest, error)
	Update(ctx context.Context, id int64, req service.UpdateContestRequest) (*model.Contest, error)
	Delete(ctx context.Context, id int64) (*model.Contest, error)
	Search(ctx context.Context, term string, limit int) ([]model.Contest, error)
	Stats(ctx context.Context) ([]model.ContestYearStat, error)
}

type ContestHandler struct {
	contestService ContestService
	errs           Errors
}

func NewContestHandler(cs ContestService, errs Errors) *ContestHandler {
	return &ContestHandler{contestService: cs, errs: errs}
}

func (h *ContestHandler) RegisterRoutes(r chi.Router, authn func(http.Handler) http.Handler) {
	r.Get("/", h.listContests)
	r.Get("/search", h.searchContests)
	r.Get("/stats", h.contestStats)
	r.Get("/year/{year}", h.contestsByYear)
	r.Get("/{contestID}", h.getContest)

	r.Group(func(userRouter chi.Router) {
		userRouter.Use(authn)
		userRouter.Use(middleware.RequireRole(model.RoleUser, model.RoleAdmin))
		userRouter.Post("/", h.createContest)
		userRouter.Put("/{contestID}", h.updateContest)
	})
	r.With(authn, middleware.AdminOnly).Delete("/{contestID}", h.deleteContest)
}

func (h *ContestHandler) listContests(w http.ResponseWriter, r *http.Request) {
	contests, err := h.contestService.List(r.Context())
	if err != nil {
		h.errs.Respond(w, r, err)
		return
	}
	common.RespondWithSuccess(w, http.StatusOK, common.Envelope{"data": contests})
}

func (h *ContestHandler) contestsByYear(w http.ResponseWriter, r *http.Request) {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		h.errs.Respond(w, r, fmt.Errorf("invalid year: %w", common.ErrBadRequest))
		return
	}
	contests, err := h.contestService.ListByYear(r.Context(), year)
	if err != nil {
		h.errs.Respond(w, r, err)
		return
	}
	common.RespondWithSuccess(w, http.StatusOK, common.Envelope{"year": year, "data": contests})
}

func (h *ContestHandler) getContest(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "contestID")
	if err != nil {
		h.errs.Respond(w, r, err)
		return
	}
	contest, err := h.contestService.Get(r.Context(), id)
	if err != nil {
		h.errs.Respond(w, r, err)
		return
	}
	common.RespondWithSuccess(w, http.StatusOK, common.Envelope{"data": contest})
}

func (h *ContestHandler) createContest(w http.ResponseWriter, r *http.Request) {
	var req service.CreateContestRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.errs.Respond(w, r, err)
		return
	}
	contest, err := h.contestService.Create(r.Context(), req)
	if err != nil {
		h.errs.Respond(w, r, err)
		return
	}
	common.RespondWithSuccess(w, http.StatusCreated, common.Envelope{"message": "Contest created", "data": contest})
}

func (h *ContestHandler) updateContest(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "contestID")
	if err != nil {
		h.errs.Respond(w, r, err)
		return
	}
	var req service.UpdateContestRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.errs.Respond(w, r, err)
		return
	}
	contest, err := h.contestService.Update(r.Context(), id, req)
	if err != nil {
		h.errs.Respond(w, r, err)
		return
	}
	common.RespondWithSuccess(w, http.StatusOK, common.Envelope{"message": "Contest updated", "data": contest})
}

func (h *ContestHandler) deleteContest(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "contestID")
	if err != nil {
		h.errs.Respond(w, r, err)
		return
	}
	contest, err := h.contestService.Delete(r.Context(), id)
	if err != nil {
		h.errs.Respond(w, r, err)
		return
	}
	common.RespondWithSuccess(w, http.StatusOK, common.Envelope{"message": "Contest deleted", "data": contest})
}

func (h *ContestHandler) searchContests(w http.ResponseWriter, r *http.Request) {
	contests, err := h.contestService.Search(r.Context(), r.URL.Query().Get("q"), queryInt(r, "limit", 0))
	if err != nil {
		h.errs.Respond(w, r, err)
		return
	}
	common.RespondWithSuccess(w, http.StatusOK, common.Envelope{"data": contests})
}

func (h *ContestHandler) contestStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.contestService.Stats(r.Context())
	if err != nil {
		h.errs.Respond(w, r, err)
		return
	}
	common.RespondWithSuccess(w, http.StatusOK, common.Envelope{"data": stats})
}
