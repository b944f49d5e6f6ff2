package handler

import (
	"context"
	"net/http"

	"tamaco/internal/common"
	"tamaco/internal/domain/model"

	"github.com/go-chi/chi/v5"
)

type AuditLog interface {
	ListRecent(ctx context.Context, limit int) ([]model.AuditEntry, error)
}

type AuditHandler struct {
	audit AuditLog
	errs  Errors
}

func NewAuditHandler(audit AuditLog, errs Errors) *AuditHandler {
	return &AuditHandler{audit: audit, errs: errs}
}

// RegisterRoutes expects r to be admin-only already.
func (h *AuditHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.listRecent)
}

func (h *AuditHandler) listRecent(w http.ResponseWriter, r *http.Request) {
	entries, err := h.audit.ListRecent(r.Context(), queryInt(r, "limit", 0))
	if err != nil {
		h.errs.Respond(w, r, err)
		return
	}
	common.RespondWithSuccess(w, http.StatusOK, common.Envelope{"data": entries})
}
