package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"tamaco/internal/common/security"
	"tamaco/internal/domain/model"
	"tamaco/internal/platform/metrics"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// AuditRecorder records a committed mutation. Implementations must not block the caller on failure.
type AuditRecorder interface {
	Record(ctx context.Context, action, entity string, entityID *int64, details interface{})
}

// AuditPublisher pushes audit entries onto a Redis list consumed by the audit worker.
type AuditPublisher struct {
	rdb     *redis.Client
	queue   string
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewAuditPublisher(rdb *redis.Client, queue string, logger *slog.Logger, m *metrics.Metrics) *AuditPublisher {
	return &AuditPublisher{rdb: rdb, queue: queue, logger: logger, metrics: m, now: time.Now}
}

func (p *AuditPublisher) Record(ctx context.Context, action, entity string, entityID *int64, details interface{}) {
	entry := model.AuditEntry{
		ID:        uuid.NewString(),
		Action:    action,
		Entity:    entity,
		EntityID:  entityID,
		CreatedAt: p.now().UTC(),
	}
	if identity, ok := security.IdentityFromContext(ctx); ok {
		actor := identity.ID
		entry.ActorID = &actor
	}
	if details != nil {
		raw, err := json.Marshal(details)
		if err == nil {
			entry.Details = raw
		}
	}

	payload, err := json.Marshal(entry)
	if err != nil {
		p.drop(entry, err)
		return
	}

	// The request may already be finishing; the push gets its own short deadline.
	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := p.rdb.LPush(pushCtx, p.queue, payload).Err(); err != nil {
		p.drop(entry, err)
		return
	}
	p.metrics.ObserveAudit("published")
}

func (p *AuditPublisher) drop(entry model.AuditEntry, err error) {
	p.metrics.ObserveAudit("dropped")
	if p.logger != nil {
		p.logger.Warn("audit entry dropped",
			slog.String("action", entry.Action),
			slog.String("entity", entry.Entity),
			slog.String("error", err.Error()),
		)
	}
}
