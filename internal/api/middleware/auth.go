package middleware

import (
	"context"
	"errors"
	"net/http"

	"tamaco/internal/common"
	"tamaco/internal/common/security"
	"tamaco/internal/domain/model"

	"github.com/go-chi/jwtauth/v5"
)

// UserLookup re-reads the token subject so deleted users and changed roles take effect immediately.
type UserLookup interface {
	FindByID(ctx context.Context, id int64) (*model.User, error)
}

// Authenticator must run after jwtauth.Verifier. A missing token answers 401,
// a bad or expired one 403.
func Authenticator(users UserLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, claims, err := jwtauth.FromContext(r.Context())
			if err != nil {
				if errors.Is(err, jwtauth.ErrNoTokenFound) {
					common.RespondWithError(w, http.StatusUnauthorized, "Access token required")
					return
				}
				common.RespondWithError(w, http.StatusForbidden, "Invalid or expired token")
				return
			}
			if token == nil {
				common.RespondWithError(w, http.StatusUnauthorized, "Access token required")
				return
			}

			userID, err := security.GetUserIDFromClaims(claims)
			if err != nil {
				common.RespondWithError(w, http.StatusForbidden, "Invalid token claims")
				return
			}

			user, err := users.FindByID(r.Context(), userID)
			if err != nil {
				if errors.Is(err, common.ErrNotFound) {
					common.RespondWithError(w, http.StatusForbidden, "User no longer exists")
					return
				}
				common.RespondWithError(w, http.StatusInternalServerError, "Failed to verify user")
				return
			}

			ctx := security.WithIdentity(r.Context(), security.Identity{ID: user.ID, Login: user.Login, Role: user.Role})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole lets through callers whose stored role is one of roles.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := security.IdentityFromContext(r.Context())
			if !ok {
				common.RespondWithError(w, http.StatusUnauthorized, "Authentication required")
				return
			}
			for _, role := range roles {
				if identity.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			common.RespondWithError(w, http.StatusForbidden, "Insufficient permissions")
		})
	}
}

func AdminOnly(next http.Handler) http.Handler {
	return RequireRole(model.RoleAdmin)(next)
}
