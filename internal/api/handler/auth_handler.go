package handler

import (
	"context"
	"fmt"
	"net/http"

	"tamaco/internal/api/middleware"
	"tamaco/internal/app/service"
	"tamaco/internal/common"
	"tamaco/internal/common/security"
	"tamaco/internal/domain/model"

	"github.com/go-chi/chi/v5"
)

type AuthService interface {
	Login(ctx context.Context, req service.LoginRequest) (*service.AuthResponse, error)
	Register(ctx context.Context, req service.RegisterRequest) (*model.User, error)
	Me(ctx context.Context, userID int64) (*model.User, error)
	Refresh(ctx context.Context, userID int64) (*service.AuthResponse, error)
	ChangePassword(ctx context.Context, userID int64, req service.ChangePasswordRequest) error
	ListUsers(ctx context.Context, page, limit int) ([]model.User, model.Pagination, error)
	ChangeUserRole(ctx context.Context, actorID, targetID int64, role string) (*model.User, error)
	DeleteUser(ctx context.Context, actorID, targetID int64) (*model.User, error)
}

type AuthHandler struct {
	authService AuthService
	errs        Errors
}

func NewAuthHandler(authService AuthService, errs Errors) *AuthHandler {
	return &AuthHandler{authService: authService, errs: errs}
}

func (h *AuthHandler) RegisterRoutes(r chi.Router, authn func(http.Handler) http.Handler) {
	r.Post("/login", h.login)
	r.Post("/logout", h.logout)

	r.Group(func(userRouter chi.Router) {
		userRouter.Use(authn)
		userRouter.Get("/me", h.me)
		userRouter.Post("/refresh", h.refresh)
		userRouter.Post("/change-password", h.changePassword)
	})

	r.Group(func(adminRouter chi.Router) {
		adminRouter.Use(authn)
		adminRouter.Use(middleware.AdminOnly)
		adminRouter.Post("/register", h.register)
		adminRouter.Get("/users", h.listUsers)
		adminRouter.Put("/users/{userID}/role", h.changeUserRole)
		adminRouter.Delete("/users/{userID}", h.deleteUser)
	})
}

func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request) {
	var req service.LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.errs.Respond(w, r, err)
		return
	}
	resp, err := h.authService.Login(r.Context(), req)
	if err != nil {
		h.errs.Respond(w, r, err)
		return
	}
	common.RespondWithSuccess(w, http.StatusOK, common.Envelope{
		"message":   "Login successful",
		"token":     resp.Token,
		"user":      resp.User,
		"expiresIn": resp.ExpiresIn,
	})
}

// logout is an acknowledgement only; tokens are stateless and expire on their own.
func (h *AuthHandler) logout(w http.ResponseWriter, r *http.Request) {
	common.RespondWithSuccess(w, http.StatusOK, common.Envelope{"message": "Logged out"})
}

func (h *AuthHandler) register(w http.ResponseWriter, r *http.Request) {
	var req service.RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.errs.Respond(w, r, err)
		return
	}
	user, err := h.authService.Register(r.Context(), req)
	if err != nil {
		h.errs.Respond(w, r, err)
		return
	}
	common.RespondWithSuccess(w, http.StatusCreated, common.Envelope{"message": "User created", "user": user})
}

func (h *AuthHandler) me(w http.ResponseWriter, r *http.Request) {
	identity, ok := security.IdentityFromContext(r.Context())
	if !ok {
		common.RespondWithError(w, http.StatusUnauthorized, "Missing user context")
		return
	}
	user, err := h.authService.Me(r.Context(), identity.ID)
	if err != nil {
		h.errs.Respond(w, r, err)
		return
	}
	common.RespondWithSuccess(w, http.StatusOK, common.Envelope{"user": user})
}

func (h *AuthHandler) refresh(w http.ResponseWriter, r *http.Request) {
	identity, ok := security.IdentityFromContext(r.Context())
	if !ok {
		common.RespondWithError(w, http.StatusUnauthorized, "Missing user context")
		return
	}
	resp, err := h.authService.Refresh(r.Context(), identity.ID)
	if err != nil {
		h.errs.Respond(w, r, err)
		return
	}
	common.RespondWithSuccess(w, http.StatusOK, common.Envelope{
		"token":     resp.Token,
		"user":      resp.User,
		"expiresIn": resp.ExpiresIn,
	})
}

func (h *AuthHandler) changePassword(w http.ResponseWriter, r *http.Request) {
	identity, ok := security.IdentityFromContext(r.Context())
	if !ok {
		common.RespondWithError(w, http.StatusUnauthorized, "Missing user context")
		return
	}
	var req service.ChangePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.errs.Respond(w, r, err)
		return
	}
	if err := h.authService.ChangePassword(r.Context(), identity.ID, req); err != nil {
		h.errs.Respond(w, r, err)
		return
	}
	common.RespondWithSuccess(w, http.StatusOK, common.Envelope{"message": "Password changed"})
}

func (h *AuthHandler) listUsers(w http.ResponseWriter, r *http.Request) {
	users, pagination, err := h.authService.ListUsers(r.Context(), queryInt(r, "page", 1), queryInt(r, "limit", model.DefaultPageLimit))
	if err != nil {
		h.errs.Respond(w, r, err)
		return
	}
	common.RespondWithSuccess(w, http.StatusOK, common.Envelope{"users": users, "pagination": pagination})
}

func (h *AuthHandler) changeUserRole(w http.ResponseWriter, r *http.Request) {
	identity, _ := security.IdentityFromContext(r.Context())
	targetID, err := pathID(r, "userID")
	if err != nil {
		h.errs.Respond(w, r, err)
		return
	}
	var req struct {
		Role string `json:"role"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		h.errs.Respond(w, r, err)
		return
	}
	if req.Role == "" {
		h.errs.Respond(w, r, fmt.Errorf("role is required: %w", common.ErrValidation))
		return
	}
	user, err := h.authService.ChangeUserRole(r.Context(), identity.ID, targetID, req.Role)
	if err != nil {
		h.errs.Respond(w, r, err)
		return
	}
	common.RespondWithSuccess(w, http.StatusOK, common.Envelope{
		"message": fmt.Sprintf("Role of %s changed to %s", user.Login, user.Role),
		"user":    user,
	})
}

func (h *AuthHandler) deleteUser(w http.ResponseWriter, r *http.Request) {
	identity, _ := security.IdentityFromContext(r.Context())
	targetID, err := pathID(r, "userID")
	if err != nil {
		h.errs.Respond(w, r, err)
		return
	}
	user, err := h.authService.DeleteUser(r.Context(), identity.ID, targetID)
	if err != nil {
		h.errs.Respond(w, r, err)
		return
	}
	common.RespondWithSuccess(w, http.StatusOK, common.Envelope{
		"message": fmt.Sprintf("User %s deleted", user.Login),
		"user":    user,
	})
}
