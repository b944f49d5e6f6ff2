package handler

import (
	"context"
	"net/http"

	"tamaco/internal/api/middleware"
	"tamaco/internal/common"
	"tamaco/internal/domain/model"

	"github.com/go-chi/chi/v5"
)

type TagService interface {
	List(ctx context.Context) ([]model.Tag, error)
	Get(ctx context.Context, id int64) (*model.Tag, error)
	Create(ctx context.Context, name string) (*model.Tag, error)
	Update(ctx context.Context, id int64, name string) (*model.Tag, error)
	Delete(ctx context.Context, id int64) (*model.Tag, error)
	Search(ctx context.Context, term string, limit int) ([]model.Tag, error)
	Stats(ctx context.Context) ([]model.TagStat, error)
}

type TagHandler struct {
	tagService TagService
	errs       Errors
}

func NewTagHandler(ts TagService, errs Errors) *TagHandler {
	return &TagHandler{tagService: ts, errs: errs}
}

type tagRequest struct {
	Name string `json:"name"`
}

func (h *TagHandler) RegisterRoutes(r chi.Router, authn func(http.Handler) http.Handler) {
	r.Get("/", h.listTags)
	r.Get("/search", h.searchTags)
	r.Get("/stats", h.tagStats)
	r.Get("/{tagID}", h.getTag)

	r.Group(func(userRouter chi.Router) {
		userRouter.Use(authn)
		userRouter.Use(middleware.RequireRole(model.RoleUser, model.RoleAdmin))
		userRouter.Post("/", h.createTag)
		userRouter.Put("/{tagID}", h.updateTag)
	})
	r.With(authn, middleware.AdminOnly).Delete("/{tagID}", h.deleteTag)
}

func (h *TagHandler) listTags(w http.ResponseWriter, r *http.Request) {
	tags, err := h.tagService.List(r.Context())
	if err != nil {
		h.errs.Respond(w, r, err)
		return
	}
	common.RespondWithSuccess(w, http.StatusOK, common.Envelope{"data": tags})
}

func (h *TagHandler) getTag(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "tagID")
	if err != nil {
		h.errs.Respond(w, r, err)
		return
	}
	tag, err := h.tagService.Get(r.Context(), id)
	if err != nil {
		h.errs.Respond(w, r, err)
		return
	}
	common.RespondWithSuccess(w, http.StatusOK, common.Envelope{"data": tag})
}

func (h *TagHandler) createTag(w http.ResponseWriter, r *http.Request) {
	var req tagRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.errs.Respond(w, r, err)
		return
	}
	tag, err := h.tagService.Create(r.Context(), req.Name)
	if err != nil {
		h.errs.Respond(w, r, err)
		return
	}
	common.RespondWithSuccess(w, http.StatusCreated, common.Envelope{"message": "Tag created", "data": tag})
}

func (h *TagHandler) updateTag(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "tagID")
	if err != nil {
		h.errs.Respond(w, r, err)
		return
	}
	var req tagRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.errs.Respond(w, r, err)
		return
	}
	tag, err := h.tagService.Update(r.Context(), id, req.Name)
	if err != nil {
		h.errs.Respond(w, r, err)
		return
	}
	common.RespondWithSuccess(w, http.StatusOK, common.Envelope{"message": "Tag updated", "data": tag})
}

func (h *TagHandler) deleteTag(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "tagID")
	if err != nil {
		h.errs.Respond(w, r, err)
		return
	}
	tag, err := h.tagService.Delete(r.Context(), id)
	if err != nil {
		h.errs.Respond(w, r, err)
		return
	}
	common.RespondWithSuccess(w, http.StatusOK, common.Envelope{"message": "Tag deleted", "data": tag})
}

func (h *TagHandler) searchTags(w http.ResponseWriter, r *http.Request) {
	tags, err := h.tagService.Search(r.Context(), r.URL.Query().Get("q"), queryInt(r, "limit", 0))
	if err != nil {
		h.errs.Respond(w, r, err)
		return
	}
	common.RespondWithSuccess(w, http.StatusOK, common.Envelope{"data": tags})
}

func (h *TagHandler) tagStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.tagService.Stats(r.Context())
	if err != nil {
		h.errs.Respond(w, r, err)
		return
	}
	common.RespondWithSuccess(w, http.StatusOK, common.Envelope{"data": stats})
}
