package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"tamaco/internal/domain/model"
	"tamaco/internal/platform/metrics"

	"github.com/redis/go-redis/v9"
)

// AuditStore persists dequeued audit entries.
type AuditStore interface {
	Store(ctx context.Context, entry model.AuditEntry) error
}

// AuditWorker drains the audit queue into the audit_log table, one entry at a time.
type AuditWorker struct {
	rdb     *redis.Client
	queue   string
	store   AuditStore
	logger  *slog.Logger
	metrics *metrics.Metrics

	popTimeout time.Duration
	retryDelay time.Duration
}

func NewAuditWorker(rdb *redis.Client, queue string, store AuditStore, logger *slog.Logger, m *metrics.Metrics) *AuditWorker {
	return &AuditWorker{
		rdb:        rdb,
		queue:      queue,
		store:      store,
		logger:     logger,
		metrics:    m,
		popTimeout: 2 * time.Second,
		retryDelay: 5 * time.Second,
	}
}

// Start blocks until ctx is cancelled.
func (w *AuditWorker) Start(ctx context.Context) {
	w.logger.Info("audit worker started", slog.String("queue", w.queue))
	for {
		if ctx.Err() != nil {
			w.logger.Info("audit worker stopping")
			return
		}

		// BRPop returns [queue, value].
		res, err := w.rdb.BRPop(ctx, w.popTimeout, w.queue).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			w.logger.Error("audit queue pop failed", slog.String("queue", w.queue), slog.String("error", err.Error()))
			w.wait(ctx, w.retryDelay)
			continue
		}
		if len(res) < 2 || res[1] == "" {
			continue
		}
		w.process(ctx, res[1])
	}
}

func (w *AuditWorker) process(ctx context.Context, payload string) {
	var entry model.AuditEntry
	if err := json.Unmarshal([]byte(payload), &entry); err != nil || entry.ID == "" {
		w.metrics.ObserveAudit("failed")
		w.logger.Warn("discarding malformed audit entry", slog.String("payload", payload))
		return
	}

	if err := w.store.Store(context.WithoutCancel(ctx), entry); err != nil {
		w.metrics.ObserveAudit("failed")
		w.logger.Error("failed to store audit entry",
			slog.String("id", entry.ID),
			slog.String("error", err.Error()),
		)
		w.requeue(ctx, payload)
		w.wait(ctx, w.retryDelay)
		return
	}
	w.metrics.ObserveAudit("stored")
	w.logger.Debug("audit entry stored", slog.String("id", entry.ID), slog.String("action", entry.Action))
}

// requeue puts the entry back on the consuming end so it is retried first.
func (w *AuditWorker) requeue(ctx context.Context, payload string) {
	if err := w.rdb.RPush(context.WithoutCancel(ctx), w.queue, payload).Err(); err != nil {
		w.logger.Error("failed to requeue audit entry", slog.String("error", err.Error()))
	}
}

func (w *AuditWorker) wait(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
