package repository

import (
	"context"
	"database/sql"
	"fmt"

	"tamaco/internal/domain/model"
)

type AuditRepository interface {
	Insert(ctx context.Context, entry model.AuditEntry) error
	ListRecent(ctx context.Context, limit int) ([]model.AuditEntry, error)
}

type pgAuditRepository struct {
	db *sql.DB
}

func NewPgAuditRepository(db *sql.DB) AuditRepository {
	return &pgAuditRepository{db: db}
}

// Insert ignores entries whose id was already stored, so redelivery is harmless.
func (r *pgAuditRepository) Insert(ctx context.Context, e model.AuditEntry) error {
	details := []byte(e.Details)
	if len(details) == 0 {
		details = []byte("{}")
	}
	query := `INSERT INTO audit_log (id, action, entity, entity_id, actor_id, details, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7)
	          ON CONFLICT (id) DO NOTHING`
	_, err := r.db.ExecContext(ctx, query, e.ID, e.Action, e.Entity, e.EntityID, e.ActorID, string(details), e.CreatedAt)
	if err != nil {
		return fmt.Errorf("pgAuditRepository.Insert: %w", err)
	}
	return nil
}

func (r *pgAuditRepository) ListRecent(ctx context.Context, limit int) ([]model.AuditEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, action, entity, entity_id, actor_id, details, created_at
		FROM audit_log
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("pgAuditRepository.ListRecent: %w", err)
	}
	defer rows.Close()

	entries := []model.AuditEntry{}
	for rows.Next() {
		var e model.AuditEntry
		var entityID, actorID sql.NullInt64
		var details []byte
		if err := rows.Scan(&e.ID, &e.Action, &e.Entity, &entityID, &actorID, &details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("pgAuditRepository.ListRecent scan: %w", err)
		}
		if entityID.Valid {
			e.EntityID = &entityID.Int64
		}
		if actorID.Valid {
			e.ActorID = &actorID.Int64
		}
		e.Details = details
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgAuditRepository.ListRecent rows: %w", err)
	}
	return entries, nil
}
