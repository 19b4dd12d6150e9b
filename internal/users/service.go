package users

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/veridian-data/veridian/internal/shared"
)

// Repository provides persistence for directory accounts.
type Repository interface {
	Insert(ctx context.Context, user User) (User, error)
	Get(ctx context.Context, id int64) (User, error)
	List(ctx context.Context, limit, offset int) ([]User, error)
	Count(ctx context.Context) (int, error)
	UpdateLegacyRole(ctx context.Context, id int64, role string) error
	UpdateAttributes(ctx context.Context, id int64, department, region string) error
	Deactivate(ctx context.Context, id int64) error
}

// Invalidator drops cached grant sets after a directory mutation.
type Invalidator interface {
	Publish(ctx context.Context, userID int64) error
}

// RegisterInput is the payload for creating an account.
type RegisterInput struct {
	Email      string `validate:"required,email"`
	FullName   string `validate:"required,min=1,max=256"`
	LegacyRole string `validate:"omitempty,max=64"`
	Department string `validate:"omitempty,max=128"`
	Region     string `validate:"omitempty,max=128"`
}

// Service orchestrates directory operations. Mutations that change what
// the engine would decide for a user publish a cache invalidation.
type Service struct {
	repo        Repository
	invalidator Invalidator
	validate    *validator.Validate
	logger      *slog.Logger
}

// NewService constructs a Service.
func NewService(repo Repository, invalidator Invalidator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:        repo,
		invalidator: invalidator,
		validate:    validator.New(),
		logger:      logger,
	}
}

// Register creates a new active account.
func (s *Service) Register(ctx context.Context, in RegisterInput) (User, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.FullName = strings.TrimSpace(in.FullName)
	if err := s.validate.Struct(in); err != nil {
		return User{}, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}
	return s.repo.Insert(ctx, User{
		Email:      in.Email,
		FullName:   in.FullName,
		LegacyRole: in.LegacyRole,
		Department: in.Department,
		Region:     in.Region,
		Active:     true,
	})
}

// Get returns one account.
func (s *Service) Get(ctx context.Context, id int64) (User, error) {
	return s.repo.Get(ctx, id)
}

// List returns a page of accounts plus listing metadata.
func (s *Service) List(ctx context.Context, page, perPage int) ([]User, shared.Pagination, error) {
	if perPage < 1 || perPage > 100 {
		perPage = 50
	}
	if page < 1 {
		page = 1
	}
	total, err := s.repo.Count(ctx)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	meta := shared.NewPagination(page, perPage, total)
	list, err := s.repo.List(ctx, meta.PerPage, meta.Offset())
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return list, meta, nil
}

// SetLegacyRole replaces the account's legacy role column.
func (s *Service) SetLegacyRole(ctx context.Context, id int64, role string) error {
	if err := s.repo.UpdateLegacyRole(ctx, id, strings.TrimSpace(role)); err != nil {
		return err
	}
	s.invalidate(ctx, id)
	return nil
}

// SetAttributes replaces the department and region attributes that
// conditional grants match against.
func (s *Service) SetAttributes(ctx context.Context, id int64, department, region string) error {
	if err := s.repo.UpdateAttributes(ctx, id, strings.TrimSpace(department), strings.TrimSpace(region)); err != nil {
		return err
	}
	s.invalidate(ctx, id)
	return nil
}

// Deactivate soft-disables an account. Evaluations for an inactive
// account are denied outright, so stale cache entries are dropped here.
func (s *Service) Deactivate(ctx context.Context, id int64) error {
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, id)
	return nil
}

func (s *Service) invalidate(ctx context.Context, userID int64) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.Publish(ctx, userID); err != nil {
		s.logger.Warn("cache invalidation failed",
			slog.Int64("user_id", userID),
			slog.Any("error", err))
	}
}
