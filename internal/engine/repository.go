package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veridian-data/veridian/internal/platform/db"
)

// querier is the subset of pgx shared by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository provides PostgreSQL backed read access for the engine.
type Repository struct {
	pool *pgxpool.Pool
	q    querier
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, q: pool}
}

// Snapshot runs fn inside a read-only RepeatableRead transaction so one
// evaluation never observes a partially updated grant set.
func (r *Repository) Snapshot(ctx context.Context, fn func(Store) error) error {
	if r.pool == nil {
		return fn(r)
	}
	return db.WithReadSnapshot(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(&Repository{q: tx})
	})
}

// GetUser returns the user or ErrUserNotFound.
func (r *Repository) GetUser(ctx context.Context, id int64) (User, error) {
	const query = `
		SELECT id, email, COALESCE(legacy_role, ''), is_active,
		       COALESCE(department, ''), COALESCE(region, '')
		FROM users WHERE id = $1`
	var user User
	err := r.q.QueryRow(ctx, query, id).Scan(
		&user.ID, &user.Email, &user.LegacyRole, &user.Active,
		&user.Department, &user.Region,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("engine: get user: %w", err)
	}
	return user, nil
}

// GroupIDs returns the IDs of every group the user belongs to.
func (r *Repository) GroupIDs(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := r.q.Query(ctx, `SELECT group_id FROM user_groups WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("engine: group ids: %w", err)
	}
	defer rows.Close()
	return scanInt64s(rows)
}

// DenyAssignments returns deny rows matching the user or any of its groups.
func (r *Repository) DenyAssignments(ctx context.Context, userID int64, groupIDs []int64, action, resource string) ([]DenyAssignment, error) {
	const query = `
		SELECT id, user_id, group_id, action, resource, COALESCE(condition, '')
		FROM deny_assignments
		WHERE (user_id = $1 OR group_id = ANY($2)) AND action = $3 AND resource = $4`
	rows, err := r.q.Query(ctx, query, userID, groupIDs, action, resource)
	if err != nil {
		return nil, fmt.Errorf("engine: deny assignments: %w", err)
	}
	defer rows.Close()

	var denies []DenyAssignment
	for rows.Next() {
		var d DenyAssignment
		var condition string
		if err := rows.Scan(&d.ID, &d.UserID, &d.GroupID, &d.Action, &d.Resource, &condition); err != nil {
			return nil, fmt.Errorf("engine: scan deny: %w", err)
		}
		if condition != "" {
			d.Condition = []byte(condition)
		}
		denies = append(denies, d)
	}
	return denies, rows.Err()
}

// RoleByName resolves a role by its unique name.
func (r *Repository) RoleByName(ctx context.Context, name string) (Role, error) {
	return r.scanRole(r.q.QueryRow(ctx, `SELECT id, name, parent_id FROM roles WHERE name = $1`, name))
}

// Role fetches a role by ID.
func (r *Repository) Role(ctx context.Context, id int64) (Role, error) {
	return r.scanRole(r.q.QueryRow(ctx, `SELECT id, name, parent_id FROM roles WHERE id = $1`, id))
}

func (r *Repository) scanRole(row pgx.Row) (Role, error) {
	var role Role
	if err := row.Scan(&role.ID, &role.Name, &role.ParentID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, ErrRoleNotFound
		}
		return Role{}, fmt.Errorf("engine: scan role: %w", err)
	}
	return role, nil
}

// RoleIDsForGroups returns role IDs granted to any of the groups.
func (r *Repository) RoleIDsForGroups(ctx context.Context, groupIDs []int64) ([]int64, error) {
	if len(groupIDs) == 0 {
		return nil, nil
	}
	rows, err := r.q.Query(ctx, `SELECT DISTINCT role_id FROM group_roles WHERE group_id = ANY($1)`, groupIDs)
	if err != nil {
		return nil, fmt.Errorf("engine: group roles: %w", err)
	}
	defer rows.Close()
	return scanInt64s(rows)
}

// RolePermissions returns the grants attached to a role.
func (r *Repository) RolePermissions(ctx context.Context, roleID int64) ([]Grant, error) {
	const query = `
		SELECT p.resource || '.' || p.action, COALESCE(p.condition, ''), ro.name
		FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		JOIN roles ro ON ro.id = rp.role_id
		WHERE rp.role_id = $1`
	rows, err := r.q.Query(ctx, query, roleID)
	if err != nil {
		return nil, fmt.Errorf("engine: role permissions: %w", err)
	}
	defer rows.Close()
	return scanGrants(rows)
}

// ResourceGrants returns grants scoped to the exact resource instance.
func (r *Repository) ResourceGrants(ctx context.Context, userID int64, resourceType, resourceID string) ([]Grant, error) {
	const query = `
		SELECT p.resource || '.' || p.action, COALESCE(p.condition, ''), ro.name
		FROM resource_roles rr
		JOIN role_permissions rp ON rp.role_id = rr.role_id
		JOIN permissions p ON p.id = rp.permission_id
		JOIN roles ro ON ro.id = rr.role_id
		WHERE rr.user_id = $1 AND rr.resource_type = $2 AND rr.resource_id = $3`
	rows, err := r.q.Query(ctx, query, userID, resourceType, resourceID)
	if err != nil {
		return nil, fmt.Errorf("engine: resource grants: %w", err)
	}
	defer rows.Close()
	return scanGrants(rows)
}

func scanInt64s(rows pgx.Rows) ([]int64, error) {
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("engine: scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanGrants(rows pgx.Rows) ([]Grant, error) {
	var grants []Grant
	for rows.Next() {
		var g Grant
		var condition string
		if err := rows.Scan(&g.Permission, &condition, &g.RoleName); err != nil {
			return nil, fmt.Errorf("engine: scan grant: %w", err)
		}
		if condition != "" {
			g.Condition = []byte(condition)
		}
		grants = append(grants, g)
	}
	return grants, rows.Err()
}
