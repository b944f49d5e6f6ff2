package service

import (
	"context"

	"tamaco/internal/domain/model"
	"tamaco/internal/domain/repository"
)

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 500
)

type AuditService struct {
	auditRepo repository.AuditRepository
}

func NewAuditService(auditRepo repository.AuditRepository) *AuditService {
	return &AuditService{auditRepo: auditRepo}
}

func (s *AuditService) ListRecent(ctx context.Context, limit int) ([]model.AuditEntry, error) {
	if limit < 1 {
		limit = defaultAuditLimit
	}
	if limit > maxAuditLimit {
		limit = maxAuditLimit
	}
	return s.auditRepo.ListRecent(ctx, limit)
}

// Store persists one entry; the audit worker calls it for every dequeued message.
func (s *AuditService) Store(ctx context.Context, entry model.AuditEntry) error {
	return s.auditRepo.Insert(ctx, entry)
}
