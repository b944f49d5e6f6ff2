package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"tamaco/internal/common"
	"tamaco/internal/domain/model"
	"tamaco/internal/domain/repository"
	"tamaco/internal/platform/database"
)

const (
	entityContest        = "contest"
	maxContestNameLength = 255
)

type ContestService struct {
	db          *sql.DB
	contestRepo repository.ContestRepository
	audit       AuditRecorder
}

func NewContestService(db *sql.DB, contestRepo repository.ContestRepository, audit AuditRecorder) *ContestService {
	return &ContestService{db: db, contestRepo: contestRepo, audit: audit}
}

type CreateContestRequest struct {
	Name string `json:"name"`
	Year int    `json:"year"`
}

type UpdateContestRequest struct {
	Name *string `json:"name,omitempty"`
	Year *int    `json:"year,omitempty"`
}

func validateYear(year int) error {
	if year < model.MinContestYear || year > model.MaxContestYear {
		return fmt.Errorf("year must be between %d and %d: %w", model.MinContestYear, model.MaxContestYear, common.ErrValidation)
	}
	return nil
}

func normalizeContestName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("contest name is required: %w", common.ErrValidation)
	}
	if len([]rune(name)) > maxContestNameLength {
		return "", fmt.Errorf("contest name is longer than %d characters: %w", maxContestNameLength, common.ErrValidation)
	}
	return name, nil
}

func (s *ContestService) List(ctx context.Context) ([]model.Contest, error) {
	return s.contestRepo.ListContests(ctx)
}

func (s *ContestService) ListByYear(ctx context.Context, year int) ([]model.Contest, error) {
	if err := validateYear(year); err != nil {
		return nil, err
	}
	return s.contestRepo.ListContestsByYear(ctx, year)
}

func (s *ContestService) Get(ctx context.Context, id int64) (*model.Contest, error) {
	return s.contestRepo.FindContestByID(ctx, nil, id)
}

func (s *ContestService) Create(ctx context.Context, req CreateContestRequest) (*model.Contest, error) {
	name, err := normalizeContestName(req.Name)
	if err != nil {
		return nil, err
	}
	if err := validateYear(req.Year); err != nil {
		return nil, err
	}

	var contest *model.Contest
	err = database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := s.ensureNameFree(ctx, tx, name, 0); err != nil {
			return err
		}
		contest, err = s.contestRepo.CreateContest(ctx, tx, name, req.Year)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create contest: %w", err)
	}

	s.record(ctx, model.AuditActionCreate, contest.ID, contest)
	return contest, nil
}

// Update applies a partial {name?, year?}; an empty update is rejected.
func (s *ContestService) Update(ctx context.Context, id int64, req UpdateContestRequest) (*model.Contest, error) {
	if req.Name == nil && req.Year == nil {
		return nil, fmt.Errorf("no contest fields to update: %w", common.ErrValidation)
	}
	var name *string
	if req.Name != nil {
		n, err := normalizeContestName(*req.Name)
		if err != nil {
			return nil, err
		}
		name = &n
	}
	if req.Year != nil {
		if err := validateYear(*req.Year); err != nil {
			return nil, err
		}
	}

	var contest *model.Contest
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := s.contestRepo.LockContest(ctx, tx, id); err != nil {
			return err
		}
		if name != nil {
			if err := s.ensureNameFree(ctx, tx, *name, id); err != nil {
				return err
			}
		}
		var err error
		contest, err = s.contestRepo.UpdateContest(ctx, tx, id, name, req.Year)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update contest %d: %w", id, err)
	}

	s.record(ctx, model.AuditActionUpdate, contest.ID, contest)
	return contest, nil
}

// ensureNameFree fails with ErrConflict when another contest (not ownID) has name.
func (s *ContestService) ensureNameFree(ctx context.Context, tx *sql.Tx, name string, ownID int64) error {
	existing, err := s.contestRepo.FindContestByName(ctx, tx, name)
	if errors.Is(err, common.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if existing.ID != ownID {
		return fmt.Errorf("contest %q already exists (id %d): %w", name, existing.ID, common.ErrConflict)
	}
	return nil
}

// Delete refuses to remove a contest that any task still references.
func (s *ContestService) Delete(ctx context.Context, id int64) (*model.Contest, error) {
	var contest *model.Contest
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error
		contest, err = s.contestRepo.LockContest(ctx, tx, id)
		if err != nil {
			return err
		}
		used, err := s.contestRepo.CountContestUsage(ctx, tx, id)
		if err != nil {
			return err
		}
		if used > 0 {
			return fmt.Errorf("contest %q is used by %d tasks: %w", contest.Name, used, common.ErrConflict)
		}
		n, err := s.contestRepo.DeleteContest(ctx, tx, id)
		if err != nil {
			return err
		}
		if n == 0 {
			return common.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to delete contest %d: %w", id, err)
	}

	s.record(ctx, model.AuditActionDelete, id, contest)
	return contest, nil
}

// Search matches a name substring; a numeric term also matches the year exactly.
func (s *ContestService) Search(ctx context.Context, term string, limit int) ([]model.Contest, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, fmt.Errorf("search term is required: %w", common.ErrValidation)
	}
	var year *int
	if y, err := strconv.Atoi(term); err == nil {
		year = &y
	}
	return s.contestRepo.SearchContests(ctx, term, year, clampSearchLimit(limit))
}

func (s *ContestService) Stats(ctx context.Context) ([]model.ContestYearStat, error) {
	return s.contestRepo.ContestStats(ctx)
}

func (s *ContestService) record(ctx context.Context, action string, id int64, details interface{}) {
	if s.audit != nil {
		s.audit.Record(ctx, action, entityContest, &id, details)
	}
}
