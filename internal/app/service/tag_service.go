package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"tamaco/internal/common"
	"tamaco/internal/domain/model"
	"tamaco/internal/domain/repository"
	"tamaco/internal/platform/database"
)

const (
	entityTag          = "tag"
	maxTagNameLength   = 100
	defaultSearchLimit = 20
	maxSearchLimit     = 100
)

type TagService struct {
	db      *sql.DB
	tagRepo repository.TagRepository
	audit   AuditRecorder
	stats   StatsStore
}

func NewTagService(db *sql.DB, tagRepo repository.TagRepository, audit AuditRecorder, stats StatsStore) *TagService {
	return &TagService{db: db, tagRepo: tagRepo, audit: audit, stats: stats}
}

func normalizeTagName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("tag name is required: %w", common.ErrValidation)
	}
	if len([]rune(name)) > maxTagNameLength {
		return "", fmt.Errorf("tag name is longer than %d characters: %w", maxTagNameLength, common.ErrValidation)
	}
	return name, nil
}

func clampSearchLimit(limit int) int {
	if limit < 1 {
		return defaultSearchLimit
	}
	if limit > maxSearchLimit {
		return maxSearchLimit
	}
	return limit
}

func (s *TagService) List(ctx context.Context) ([]model.Tag, error) {
	return s.tagRepo.ListTags(ctx)
}

func (s *TagService) Get(ctx context.Context, id int64) (*model.Tag, error) {
	return s.tagRepo.FindTagByID(ctx, id)
}

func (s *TagService) Create(ctx context.Context, name string) (*model.Tag, error) {
	name, err := normalizeTagName(name)
	if err != nil {
		return nil, err
	}

	var tag *model.Tag
	err = database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		existing, err := s.tagRepo.FindTagByName(ctx, tx, name)
		if err == nil {
			return fmt.Errorf("tag %q already exists (id %d): %w", name, existing.ID, common.ErrConflict)
		}
		if !errors.Is(err, common.ErrNotFound) {
			return err
		}
		tag, err = s.tagRepo.CreateTag(ctx, tx, name)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create tag: %w", err)
	}

	s.record(ctx, model.AuditActionCreate, tag.ID, tag)
	return tag, nil
}

func (s *TagService) Update(ctx context.Context, id int64, name string) (*model.Tag, error) {
	name, err := normalizeTagName(name)
	if err != nil {
		return nil, err
	}

	var tag *model.Tag
	err = database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := s.tagRepo.LockTag(ctx, tx, id); err != nil {
			return err
		}
		existing, err := s.tagRepo.FindTagByName(ctx, tx, name)
		if err == nil && existing.ID != id {
			return fmt.Errorf("tag %q already exists (id %d): %w", name, existing.ID, common.ErrConflict)
		}
		if err != nil && !errors.Is(err, common.ErrNotFound) {
			return err
		}
		tag, err = s.tagRepo.UpdateTag(ctx, tx, id, name)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update tag %d: %w", id, err)
	}

	s.record(ctx, model.AuditActionUpdate, tag.ID, tag)
	return tag, nil
}

// Delete refuses to remove a tag that any task still carries.
func (s *TagService) Delete(ctx context.Context, id int64) (*model.Tag, error) {
	var tag *model.Tag
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error
		tag, err = s.tagRepo.LockTag(ctx, tx, id)
		if err != nil {
			return err
		}
		used, err := s.tagRepo.CountTagUsage(ctx, tx, id)
		if err != nil {
			return err
		}
		if used > 0 {
			return fmt.Errorf("tag %q is used by %d tasks: %w", tag.Name, used, common.ErrConflict)
		}
		n, err := s.tagRepo.DeleteTag(ctx, tx, id)
		if err != nil {
			return err
		}
		if n == 0 {
			return common.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to delete tag %d: %w", id, err)
	}

	s.record(ctx, model.AuditActionDelete, id, tag)
	return tag, nil
}

func (s *TagService) Search(ctx context.Context, term string, limit int) ([]model.Tag, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, fmt.Errorf("search term is required: %w", common.ErrValidation)
	}
	return s.tagRepo.SearchTags(ctx, term, clampSearchLimit(limit))
}

func (s *TagService) Stats(ctx context.Context) ([]model.TagStat, error) {
	return s.tagRepo.TagStats(ctx)
}

func (s *TagService) record(ctx context.Context, action string, id int64, details interface{}) {
	if s.stats != nil {
		s.stats.Invalidate(ctx)
	}
	if s.audit != nil {
		s.audit.Record(ctx, action, entityTag, &id, details)
	}
}
