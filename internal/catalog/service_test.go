package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/veridian-data/veridian/internal/shared"
)

type stubRepo struct {
	sources map[string]DataSource
}

func newStubRepo() *stubRepo {
	return &stubRepo{sources: map[string]DataSource{}}
}

func (r *stubRepo) Insert(_ context.Context, src DataSource) (DataSource, error) {
	for _, existing := range r.sources {
		if existing.Name == src.Name {
			return DataSource{}, shared.ErrConflict
		}
	}
	r.sources[src.ID] = src
	return src, nil
}

func (r *stubRepo) Get(_ context.Context, id string) (DataSource, error) {
	src, ok := r.sources[id]
	if !ok {
		return DataSource{}, shared.ErrNotFound
	}
	return src, nil
}

func (r *stubRepo) List(_ context.Context, kind string, activeOnly bool) ([]DataSource, error) {
	var out []DataSource
	for _, src := range r.sources {
		if kind != "" && src.Kind != kind {
			continue
		}
		if activeOnly && !src.Active {
			continue
		}
		out = append(out, src)
	}
	return out, nil
}

func (r *stubRepo) Update(_ context.Context, src DataSource) error {
	if _, ok := r.sources[src.ID]; !ok {
		return shared.ErrNotFound
	}
	r.sources[src.ID] = src
	return nil
}

func (r *stubRepo) Delete(_ context.Context, id string) error {
	if _, ok := r.sources[id]; !ok {
		return shared.ErrNotFound
	}
	delete(r.sources, id)
	return nil
}

func TestRegisterAssignsIDAndNormalizes(t *testing.T) {
	svc := NewService(newStubRepo())

	src, err := svc.Register(context.Background(), RegisterInput{
		Name:    "  Billing Warehouse ",
		Kind:    "Postgres",
		OwnerID: 3,
		Tags:    []string{" PII ", "finance", "pii"},
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := uuid.Parse(src.ID); err != nil {
		t.Fatalf("id %q is not a uuid", src.ID)
	}
	if src.Name != "Billing Warehouse" || src.Kind != "postgres" {
		t.Fatalf("normalization failed: %+v", src)
	}
	if len(src.Tags) != 2 || src.Tags[0] != "pii" || src.Tags[1] != "finance" {
		t.Fatalf("tags = %v", src.Tags)
	}
	if !src.Active {
		t.Fatal("new sources should be active")
	}
}

func TestRegisterRejectsUnknownKind(t *testing.T) {
	svc := NewService(newStubRepo())

	_, err := svc.Register(context.Background(), RegisterInput{Name: "x", Kind: "ftp", OwnerID: 1})
	if !errors.Is(err, shared.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestRegisterRequiresOwner(t *testing.T) {
	svc := NewService(newStubRepo())

	_, err := svc.Register(context.Background(), RegisterInput{Name: "x", Kind: "s3"})
	if !errors.Is(err, shared.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestUpdatePartialFields(t *testing.T) {
	repo := newStubRepo()
	service := NewService(repo)
	ctx := context.Background()

	src, err := service.Register(ctx, RegisterInput{Name: "events", Kind: "kafka", OwnerID: 2})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	inactive := false
	updated, err := service.Update(ctx, src.ID, UpdateInput{Description: "event firehose", Active: &inactive})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Name != "events" {
		t.Fatalf("name changed unexpectedly: %q", updated.Name)
	}
	if updated.Description != "event firehose" || updated.Active {
		t.Fatalf("update not applied: %+v", updated)
	}
}

func TestDeleteUnknownSource(t *testing.T) {
	svc := NewService(newStubRepo())

	if err := svc.Delete(context.Background(), "missing"); !errors.Is(err, shared.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
