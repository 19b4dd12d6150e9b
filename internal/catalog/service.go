package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/veridian-data/veridian/internal/shared"
)

// Repository provides persistence for the registry.
type Repository interface {
	Insert(ctx context.Context, src DataSource) (DataSource, error)
	Get(ctx context.Context, id string) (DataSource, error)
	List(ctx context.Context, kind string, activeOnly bool) ([]DataSource, error)
	Update(ctx context.Context, src DataSource) error
	Delete(ctx context.Context, id string) error
}

// RegisterInput is the payload for registering a source.
type RegisterInput struct {
	Name        string
	Kind        string
	OwnerID     int64
	Description string
	Tags        []string
}

// Service orchestrates registry operations.
type Service struct {
	repo Repository
}

// NewService constructs a Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Register adds a new source to the registry.
func (s *Service) Register(ctx context.Context, in RegisterInput) (DataSource, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Kind = strings.ToLower(strings.TrimSpace(in.Kind))
	if in.Name == "" {
		return DataSource{}, fmt.Errorf("%w: name required", shared.ErrInvalidInput)
	}
	if _, ok := validKinds[in.Kind]; !ok {
		return DataSource{}, fmt.Errorf("%w: unsupported kind %q", shared.ErrInvalidInput, in.Kind)
	}
	if in.OwnerID < 1 {
		return DataSource{}, fmt.Errorf("%w: owner required", shared.ErrInvalidInput)
	}
	return s.repo.Insert(ctx, DataSource{
		ID:          uuid.NewString(),
		Name:        in.Name,
		Kind:        in.Kind,
		OwnerID:     in.OwnerID,
		Description: strings.TrimSpace(in.Description),
		Tags:        normalizeTags(in.Tags),
		Active:      true,
	})
}

// Get returns one source.
func (s *Service) Get(ctx context.Context, id string) (DataSource, error) {
	return s.repo.Get(ctx, id)
}

// List returns sources, optionally filtered by kind or liveness.
func (s *Service) List(ctx context.Context, kind string, activeOnly bool) ([]DataSource, error) {
	return s.repo.List(ctx, strings.ToLower(strings.TrimSpace(kind)), activeOnly)
}

// UpdateInput is the mutable subset of a registration.
type UpdateInput struct {
	Name        string
	Description string
	Tags        []string
	Active      *bool
}

// Update rewrites the mutable fields of a registration.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (DataSource, error) {
	src, err := s.repo.Get(ctx, id)
	if err != nil {
		return DataSource{}, err
	}
	if name := strings.TrimSpace(in.Name); name != "" {
		src.Name = name
	}
	src.Description = strings.TrimSpace(in.Description)
	if in.Tags != nil {
		src.Tags = normalizeTags(in.Tags)
	}
	if in.Active != nil {
		src.Active = *in.Active
	}
	if err := s.repo.Update(ctx, src); err != nil {
		return DataSource{}, err
	}
	return src, nil
}

// Delete removes a registration.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

func normalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}
