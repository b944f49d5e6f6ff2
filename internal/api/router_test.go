package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tamaco/internal/common"
	"tamaco/internal/common/security"
	"tamaco/internal/domain/model"
	"tamaco/internal/platform/config"
	"tamaco/internal/platform/metrics"
)

type stubPinger struct{ err error }

func (p stubPinger) PingContext(context.Context) error { return p.err }

type stubUsers struct{}

func (stubUsers) FindByID(_ context.Context, id int64) (*model.User, error) {
	if id == 1 {
		return &model.User{ID: 1, Login: "admin", Role: model.RoleAdmin}, nil
	}
	return nil, common.ErrNotFound
}

type stubAudit struct{}

func (stubAudit) ListRecent(context.Context, int) ([]model.AuditEntry, error) {
	return []model.AuditEntry{}, nil
}

func newTestRouter(t *testing.T, db Pinger) (http.Handler, *security.TokenManager) {
	t.Helper()
	cfg := &config.Config{
		AppEnv:         "development",
		CORSOrigins:    []string{"http://localhost:5173"},
		RequestTimeout: 5 * time.Second,
	}
	tokens := security.NewTokenManager([]byte("router-secret"), time.Hour)
	return NewRouter(Dependencies{
		Config:  cfg,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Metrics: metrics.New(),
		Tokens:  tokens,
		DB:      db,
		Users:   stubUsers{},
		Audit:   stubAudit{},
	}), tokens
}

func TestHealth(t *testing.T) {
	h, _ := newTestRouter(t, stubPinger{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Errorf("status = %d body = %s", rec.Code, rec.Body.String())
	}

	h, _ = newTestRouter(t, stubPinger{err: errors.New("down")})
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("degraded status = %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h, _ := newTestRouter(t, stubPinger{})
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `route="/health"`) {
		t.Errorf("status = %d, health request not counted", rec.Code)
	}
}

func TestUnknownRouteIsJSON404(t *testing.T) {
	h, _ := newTestRouter(t, stubPinger{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/nope", nil))
	if rec.Code != http.StatusNotFound || !strings.Contains(rec.Body.String(), `"success":false`) {
		t.Errorf("status = %d body = %s", rec.Code, rec.Body.String())
	}
}

func TestCORSPreflight(t *testing.T) {
	h, _ := newTestRouter(t, stubPinger{})
	req := httptest.NewRequest(http.MethodOptions, "/api/tasks", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Errorf("Allow-Origin = %q", got)
	}
}

func TestAuditRequiresAdminToken(t *testing.T) {
	h, tokens := newTestRouter(t, stubPinger{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/audit", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("anonymous status = %d", rec.Code)
	}

	token, err := tokens.Generate(1, "admin", model.RoleAdmin)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodGet, "/api/audit", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("admin status = %d body = %s", rec.Code, rec.Body.String())
	}
}
