package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veridian-data/veridian/internal/shared"
)

const uniqueViolation = "23505"

// PGRepository provides PostgreSQL backed persistence for the registry.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const sourceColumns = `id, name, kind, owner_id, COALESCE(description, ''), tags, is_active, created_at, updated_at`

// Insert persists a new registration.
func (r *PGRepository) Insert(ctx context.Context, src DataSource) (DataSource, error) {
	query := `
		INSERT INTO data_sources (id, name, kind, owner_id, description, tags, is_active)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7)
		RETURNING ` + sourceColumns
	row := r.pool.QueryRow(ctx, query,
		src.ID, src.Name, src.Kind, src.OwnerID, src.Description, src.Tags, src.Active)
	created, err := scanSource(row)
	if err != nil {
		return DataSource{}, mapError("insert source", err)
	}
	return created, nil
}

// Get fetches one registration.
func (r *PGRepository) Get(ctx context.Context, id string) (DataSource, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+sourceColumns+` FROM data_sources WHERE id = $1`, id)
	src, err := scanSource(row)
	if err != nil {
		return DataSource{}, mapError("get source", err)
	}
	return src, nil
}

// List returns registrations, optionally filtered.
func (r *PGRepository) List(ctx context.Context, kind string, activeOnly bool) ([]DataSource, error) {
	query := `SELECT ` + sourceColumns + ` FROM data_sources WHERE 1=1`
	args := []any{}
	if kind != "" {
		args = append(args, kind)
		query += fmt.Sprintf(" AND kind = $%d", len(args))
	}
	if activeOnly {
		query += " AND is_active"
	}
	query += " ORDER BY name"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("catalog: list sources: %w", err)
	}
	defer rows.Close()

	var out []DataSource
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("catalog: scan source: %w", err)
		}
		out = append(out, src)
	}
	return out, rows.Err()
}

// Update rewrites the mutable fields of a registration.
func (r *PGRepository) Update(ctx context.Context, src DataSource) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE data_sources
		SET name = $2, description = NULLIF($3, ''), tags = $4, is_active = $5, updated_at = now()
		WHERE id = $1`,
		src.ID, src.Name, src.Description, src.Tags, src.Active)
	if err != nil {
		return mapError("update source", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Delete removes a registration.
func (r *PGRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM data_sources WHERE id = $1`, id)
	if err != nil {
		return mapError("delete source", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func scanSource(row pgx.Row) (DataSource, error) {
	var src DataSource
	err := row.Scan(
		&src.ID, &src.Name, &src.Kind, &src.OwnerID, &src.Description,
		&src.Tags, &src.Active, &src.CreatedAt, &src.UpdatedAt,
	)
	return src, err
}

func mapError(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("catalog: %s: %w", op, shared.ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("catalog: %s: %w", op, shared.ErrConflict)
	}
	return fmt.Errorf("catalog: %s: %w", op, err)
}
