package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"tamaco/internal/api/handler"
	"tamaco/internal/api/middleware"
	"tamaco/internal/common"
	"tamaco/internal/common/security"
	"tamaco/internal/platform/config"
	"tamaco/internal/platform/metrics"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/jwtauth/v5"
)

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type Dependencies struct {
	Config  *config.Config
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Tokens  *security.TokenManager
	DB      Pinger

	Users    middleware.UserLookup
	Tasks    handler.TaskService
	Tags     handler.TagService
	Contests handler.ContestService
	Auth     handler.AuthService
	Audit    handler.AuditLog
}

func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Base Middlewares
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.Metrics(deps.Metrics))
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(deps.Config.RequestTimeout))

	// Looks for "Authorization: Bearer T"; the authenticator decides per route.
	r.Use(jwtauth.Verifier(deps.Tokens.JWTAuth()))

	errs := handler.Errors{Logger: deps.Logger, ExposeDetails: !deps.Config.IsProduction()}
	authn := middleware.Authenticator(deps.Users)

	r.Get("/health", health(deps.DB))
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	r.Route("/api", func(api chi.Router) {
		api.Get("/health", health(deps.DB))

		taskHandler := handler.NewTaskHandler(deps.Tasks, errs)
		api.Route("/tasks", func(r chi.Router) { taskHandler.RegisterRoutes(r, authn) })

		tagHandler := handler.NewTagHandler(deps.Tags, errs)
		api.Route("/tags", func(r chi.Router) { tagHandler.RegisterRoutes(r, authn) })

		contestHandler := handler.NewContestHandler(deps.Contests, errs)
		api.Route("/contests", func(r chi.Router) { contestHandler.RegisterRoutes(r, authn) })

		authHandler := handler.NewAuthHandler(deps.Auth, errs)
		api.Route("/auth", func(r chi.Router) { authHandler.RegisterRoutes(r, authn) })

		auditHandler := handler.NewAuditHandler(deps.Audit, errs)
		api.Route("/audit", func(r chi.Router) {
			r.Use(authn, middleware.AdminOnly)
			auditHandler.RegisterRoutes(r)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		common.RespondWithError(w, http.StatusNotFound, "Route not found")
	})

	return r
}

func health(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, database := "ok", "ok"
		code := http.StatusOK
		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := db.PingContext(ctx); err != nil {
				status, database = "degraded", "unreachable"
				code = http.StatusServiceUnavailable
			}
		}
		common.RespondWithJSON(w, code, common.Envelope{
			"status":    status,
			"database":  database,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}
}
