package rbac

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veridian-data/veridian/internal/platform/db"
	"github.com/veridian-data/veridian/internal/shared"
)

const uniqueViolation = "23505"

// PGRepository provides PostgreSQL backed persistence for the
// permission store.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// CreateRole inserts a role.
func (r *PGRepository) CreateRole(ctx context.Context, name string, parentID *int64) (Role, error) {
	var role Role
	err := r.pool.QueryRow(ctx,
		`INSERT INTO roles (name, parent_id) VALUES ($1, $2) RETURNING id, name, parent_id`,
		name, parentID).Scan(&role.ID, &role.Name, &role.ParentID)
	if err != nil {
		return Role{}, mapError("create role", err)
	}
	return role, nil
}

// ListRoles returns all roles ordered by name.
func (r *PGRepository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, parent_id FROM roles ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("rbac: list roles: %w", err)
	}
	defer rows.Close()

	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.ParentID); err != nil {
			return nil, fmt.Errorf("rbac: scan role: %w", err)
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// Role fetches a role by ID.
func (r *PGRepository) Role(ctx context.Context, id int64) (Role, error) {
	var role Role
	err := r.pool.QueryRow(ctx, `SELECT id, name, parent_id FROM roles WHERE id = $1`, id).
		Scan(&role.ID, &role.Name, &role.ParentID)
	if err != nil {
		return Role{}, mapError("get role", err)
	}
	return role, nil
}

// SetRoleParent rewires the inheritance edge of a role.
func (r *PGRepository) SetRoleParent(ctx context.Context, roleID int64, parentID *int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE roles SET parent_id = $2 WHERE id = $1`, roleID, parentID)
	if err != nil {
		return mapError("set role parent", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// DeleteRole removes a role.
func (r *PGRepository) DeleteRole(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		return mapError("delete role", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// CreatePermission inserts a permission.
func (r *PGRepository) CreatePermission(ctx context.Context, action, resource string, condition []byte) (Permission, error) {
	var (
		perm Permission
		cond []byte
	)
	if len(condition) > 0 {
		cond = condition
	}
	err := r.pool.QueryRow(ctx,
		`INSERT INTO permissions (action, resource, condition) VALUES ($1, $2, $3)
		 RETURNING id, action, resource, COALESCE(condition, '')`,
		action, resource, cond).Scan(&perm.ID, &perm.Action, &perm.Resource, &cond)
	if err != nil {
		return Permission{}, mapError("create permission", err)
	}
	if len(cond) > 0 {
		perm.Condition = cond
	}
	return perm, nil
}

// ListPermissions returns all permissions ordered by identifier.
func (r *PGRepository) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, action, resource, COALESCE(condition, '') FROM permissions ORDER BY resource, action`)
	if err != nil {
		return nil, fmt.Errorf("rbac: list permissions: %w", err)
	}
	defer rows.Close()

	var perms []Permission
	for rows.Next() {
		var (
			perm Permission
			cond string
		)
		if err := rows.Scan(&perm.ID, &perm.Action, &perm.Resource, &cond); err != nil {
			return nil, fmt.Errorf("rbac: scan permission: %w", err)
		}
		if cond != "" {
			perm.Condition = []byte(cond)
		}
		perms = append(perms, perm)
	}
	return perms, rows.Err()
}

// SetRolePermissions replaces the permission set of a role.
func (r *PGRepository) SetRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
			return fmt.Errorf("rbac: clear role permissions: %w", err)
		}
		for _, permID := range permissionIDs {
			if _, err := tx.Exec(ctx,
				`INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2)`,
				roleID, permID); err != nil {
				return mapError("attach permission", err)
			}
		}
		return nil
	})
}

// CreateGroup inserts a group.
func (r *PGRepository) CreateGroup(ctx context.Context, name string) (Group, error) {
	var group Group
	err := r.pool.QueryRow(ctx,
		`INSERT INTO groups (name) VALUES ($1) RETURNING id, name`, name).
		Scan(&group.ID, &group.Name)
	if err != nil {
		return Group{}, mapError("create group", err)
	}
	return group, nil
}

// ListGroups returns all groups ordered by name.
func (r *PGRepository) ListGroups(ctx context.Context) ([]Group, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name FROM groups ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("rbac: list groups: %w", err)
	}
	defer rows.Close()

	var groups []Group
	for rows.Next() {
		var group Group
		if err := rows.Scan(&group.ID, &group.Name); err != nil {
			return nil, fmt.Errorf("rbac: scan group: %w", err)
		}
		groups = append(groups, group)
	}
	return groups, rows.Err()
}

// SetGroupRoles replaces the roles granted to a group.
func (r *PGRepository) SetGroupRoles(ctx context.Context, groupID int64, roleIDs []int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM group_roles WHERE group_id = $1`, groupID); err != nil {
			return fmt.Errorf("rbac: clear group roles: %w", err)
		}
		for _, roleID := range roleIDs {
			if _, err := tx.Exec(ctx,
				`INSERT INTO group_roles (group_id, role_id) VALUES ($1, $2)`,
				groupID, roleID); err != nil {
				return mapError("attach group role", err)
			}
		}
		return nil
	})
}

// SetUserGroups replaces the group memberships of a user.
func (r *PGRepository) SetUserGroups(ctx context.Context, userID int64, groupIDs []int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM user_groups WHERE user_id = $1`, userID); err != nil {
			return fmt.Errorf("rbac: clear user groups: %w", err)
		}
		for _, groupID := range groupIDs {
			if _, err := tx.Exec(ctx,
				`INSERT INTO user_groups (user_id, group_id) VALUES ($1, $2)`,
				userID, groupID); err != nil {
				return mapError("attach user group", err)
			}
		}
		return nil
	})
}

// CreateDeny inserts a deny assignment.
func (r *PGRepository) CreateDeny(ctx context.Context, deny DenyAssignment) (DenyAssignment, error) {
	var cond []byte
	if len(deny.Condition) > 0 {
		cond = deny.Condition
	}
	err := r.pool.QueryRow(ctx,
		`INSERT INTO deny_assignments (user_id, group_id, action, resource, condition)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		deny.UserID, deny.GroupID, deny.Action, deny.Resource, cond).Scan(&deny.ID)
	if err != nil {
		return DenyAssignment{}, mapError("create deny", err)
	}
	return deny, nil
}

// DeleteDeny removes a deny assignment and returns the removed row.
func (r *PGRepository) DeleteDeny(ctx context.Context, id int64) (DenyAssignment, error) {
	var (
		deny DenyAssignment
		cond string
	)
	err := r.pool.QueryRow(ctx,
		`DELETE FROM deny_assignments WHERE id = $1
		 RETURNING id, user_id, group_id, action, resource, COALESCE(condition, '')`, id).
		Scan(&deny.ID, &deny.UserID, &deny.GroupID, &deny.Action, &deny.Resource, &cond)
	if err != nil {
		return DenyAssignment{}, mapError("delete deny", err)
	}
	if cond != "" {
		deny.Condition = []byte(cond)
	}
	return deny, nil
}

// GrantResourceRole inserts a resource-scoped grant; duplicates are idempotent.
func (r *PGRepository) GrantResourceRole(ctx context.Context, grant ResourceRole) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO resource_roles (user_id, role_id, resource_type, resource_id)
		 VALUES ($1, $2, $3, $4) ON CONFLICT DO NOTHING`,
		grant.UserID, grant.RoleID, grant.ResourceType, grant.ResourceID)
	if err != nil {
		return mapError("grant resource role", err)
	}
	return nil
}

// RevokeResourceRole removes a resource-scoped grant.
func (r *PGRepository) RevokeResourceRole(ctx context.Context, grant ResourceRole) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM resource_roles
		 WHERE user_id = $1 AND role_id = $2 AND resource_type = $3 AND resource_id = $4`,
		grant.UserID, grant.RoleID, grant.ResourceType, grant.ResourceID)
	if err != nil {
		return mapError("revoke resource role", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func mapError(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return shared.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("rbac: %s: %w", op, shared.ErrConflict)
	}
	return fmt.Errorf("rbac: %s: %w", op, err)
}
