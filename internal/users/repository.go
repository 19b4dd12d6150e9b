package users

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

// PGRepository provides PostgreSQL backed persistence for the
// directory.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const userColumns = `id, email, full_name, COALESCE(legacy_role, ''),
	COALESCE(department, ''), COALESCE(region, ''), is_active, created_at, updated_at`

// Insert persists a new account.
func (r *PGRepository) Insert(ctx context.Context, user User) (User, error) {
	query := `
		INSERT INTO users (email, full_name, legacy_role, department, region, is_active)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), $6)
		RETURNING ` + userColumns
	row := r.pool.QueryRow(ctx, query,
		user.Email, user.FullName, user.LegacyRole, user.Department, user.Region, user.Active)
	created, err := scanUser(row)
	if err != nil {
		return User{}, mapError("insert user", err)
	}
	return created, nil
}

// Get fetches one account by ID.
func (r *PGRepository) Get(ctx context.Context, id int64) (User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	user, err := scanUser(row)
	if err != nil {
		return User{}, mapError("get user", err)
	}
	return user, nil
}

// List returns a page of accounts ordered by ID.
func (r *PGRepository) List(ctx context.Context, limit, offset int) ([]User, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("users: list: %w", err)
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("users: scan: %w", err)
		}
		out = append(out, user)
	}
	return out, rows.Err()
}

// Count reports the number of accounts.
func (r *PGRepository) Count(ctx context.Context) (int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM users`).Scan(&total); err != nil {
		return 0, fmt.Errorf("users: count: %w", err)
	}
	return total, nil
}

// UpdateLegacyRole replaces the legacy role column.
func (r *PGRepository) UpdateLegacyRole(ctx context.Context, id int64, role string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET legacy_role = NULLIF($2, ''), updated_at = now() WHERE id = $1`, id, role)
	if err != nil {
		return mapError("update legacy role", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// UpdateAttributes replaces department and region.
func (r *PGRepository) UpdateAttributes(ctx context.Context, id int64, department, region string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET department = NULLIF($2, ''), region = NULLIF($3, ''), updated_at = now()
		 WHERE id = $1`, id, department, region)
	if err != nil {
		return mapError("update attributes", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Deactivate soft-disables an account.
func (r *PGRepository) Deactivate(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET is_active = false, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return mapError("deactivate user", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (User, error) {
	var user User
	err := row.Scan(
		&user.ID, &user.Email, &user.FullName, &user.LegacyRole,
		&user.Department, &user.Region, &user.Active, &user.CreatedAt, &user.UpdatedAt,
	)
	return user, err
}

func mapError(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("users: %s: %w", op, shared.ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("users: %s: %w", op, shared.ErrConflict)
	}
	return fmt.Errorf("users: %s: %w", op, err)
}
