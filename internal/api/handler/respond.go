package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"tamaco/internal/common"

	"github.com/go-chi/chi/v5"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// Errors writes the error envelope. Server errors carry the underlying
// detail in "message" only when ExposeDetails is set (non-production).
type Errors struct {
	Logger        *slog.Logger
	ExposeDetails bool
}

func (e Errors) Respond(w http.ResponseWriter, r *http.Request, err error) {
	status := common.HTTPStatusFromError(err)
	if status < http.StatusInternalServerError {
		common.RespondWithError(w, status, publicMessage(err))
		return
	}

	if e.Logger != nil {
		e.Logger.ErrorContext(r.Context(), "request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
	if e.ExposeDetails {
		common.RespondWithErrorDetail(w, status, "Internal server error", err.Error())
		return
	}
	common.RespondWithError(w, status, "Internal server error")
}

// publicMessage strips the trailing sentinel text ("...: validation failed").
func publicMessage(err error) string {
	msg := err.Error()
	for _, sentinel := range []error{
		common.ErrValidation, common.ErrBadRequest, common.ErrNotFound,
		common.ErrConflict, common.ErrUnauthorized, common.ErrForbidden,
	} {
		if errors.Is(err, sentinel) {
			if trimmed := strings.TrimSuffix(msg, ": "+sentinel.Error()); trimmed != "" {
				return trimmed
			}
		}
	}
	return msg
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("invalid request payload: %w", common.ErrBadRequest)
	}
	return nil
}

// decodeOptionalJSON treats an empty body as an empty object.
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid request payload: %w", common.ErrBadRequest)
	}
	return nil
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s: %w", name, common.ErrBadRequest)
	}
	return id, nil
}

func queryInt(r *http.Request, key string, fallback int) int {
	v, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get(key)))
	if err != nil {
		return fallback
	}
	return v
}

// queryIntPtr returns nil when the parameter is absent or not a number.
func queryIntPtr(r *http.Request, key string) *int {
	v, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get(key)))
	if err != nil {
		return nil
	}
	return &v
}
