package rbac

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/veridian-data/veridian/internal/shared"
)

// Repository provides persistence for the permission store.
type Repository interface {
	CreateRole(ctx context.Context, name string, parentID *int64) (Role, error)
	ListRoles(ctx context.Context) ([]Role, error)
	Role(ctx context.Context, id int64) (Role, error)
	SetRoleParent(ctx context.Context, roleID int64, parentID *int64) error
	DeleteRole(ctx context.Context, id int64) error

	CreatePermission(ctx context.Context, action, resource string, condition []byte) (Permission, error)
	ListPermissions(ctx context.Context) ([]Permission, error)
	SetRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error

	CreateGroup(ctx context.Context, name string) (Group, error)
	ListGroups(ctx context.Context) ([]Group, error)
	SetGroupRoles(ctx context.Context, groupID int64, roleIDs []int64) error
	SetUserGroups(ctx context.Context, userID int64, groupIDs []int64) error

	CreateDeny(ctx context.Context, deny DenyAssignment) (DenyAssignment, error)
	DeleteDeny(ctx context.Context, id int64) (DenyAssignment, error)

	GrantResourceRole(ctx context.Context, grant ResourceRole) error
	RevokeResourceRole(ctx context.Context, grant ResourceRole) error
}

// Invalidator drops cached grant sets after store mutations. userID 0
// means every user.
type Invalidator interface {
	Publish(ctx context.Context, userID int64) error
}

// Service orchestrates permission store administration. Every mutation
// invalidates the affected cache entries; the cache is advisory, so an
// invalidation failure is logged rather than rolled back.
type Service struct {
	repo        Repository
	invalidator Invalidator
	logger      *slog.Logger
}

// NewService constructs a Service.
func NewService(repo Repository, invalidator Invalidator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, invalidator: invalidator, logger: logger}
}

// CreateRole inserts a new role, optionally inheriting from a parent.
func (s *Service) CreateRole(ctx context.Context, name string, parentID *int64) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, fmt.Errorf("%w: role name required", shared.ErrInvalidInput)
	}
	if parentID != nil {
		if _, err := s.repo.Role(ctx, *parentID); err != nil {
			return Role{}, err
		}
	}
	role, err := s.repo.CreateRole(ctx, name, parentID)
	if err != nil {
		return Role{}, err
	}
	s.invalidate(ctx, 0)
	return role, nil
}

// ListRoles returns all roles.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.repo.ListRoles(ctx)
}

// SetRoleParent rewires role inheritance. An edge that would close a
// cycle is rejected here, at grant time, so the evaluator never has to
// break one.
func (s *Service) SetRoleParent(ctx context.Context, roleID int64, parentID *int64) error {
	if parentID != nil {
		if err := s.checkCycle(ctx, roleID, *parentID); err != nil {
			return err
		}
	}
	if err := s.repo.SetRoleParent(ctx, roleID, parentID); err != nil {
		return err
	}
	s.invalidate(ctx, 0)
	return nil
}

// DeleteRole removes a role.
func (s *Service) DeleteRole(ctx context.Context, id int64) error {
	if err := s.repo.DeleteRole(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, 0)
	return nil
}

// CreatePermission registers a capability. Condition payloads are
// validated at write time: the evaluator fails unknown keys closed, so
// an unparseable or mistyped condition would silently dead-letter the
// grant.
func (s *Service) CreatePermission(ctx context.Context, action, resource string, condition []byte) (Permission, error) {
	action = strings.TrimSpace(action)
	resource = strings.TrimSpace(resource)
	if action == "" || resource == "" {
		return Permission{}, fmt.Errorf("%w: action and resource required", shared.ErrInvalidInput)
	}
	if len(condition) > 0 {
		if err := validateCondition(condition); err != nil {
			return Permission{}, err
		}
	}
	perm, err := s.repo.CreatePermission(ctx, action, resource, condition)
	if err != nil {
		return Permission{}, err
	}
	s.invalidate(ctx, 0)
	return perm, nil
}

// ListPermissions returns all permissions.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.repo.ListPermissions(ctx)
}

// SetRolePermissions replaces the permission set of a role.
func (s *Service) SetRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	if _, err := s.repo.Role(ctx, roleID); err != nil {
		return err
	}
	if err := s.repo.SetRolePermissions(ctx, roleID, permissionIDs); err != nil {
		return err
	}
	s.invalidate(ctx, 0)
	return nil
}

// CreateGroup inserts a new group.
func (s *Service) CreateGroup(ctx context.Context, name string) (Group, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Group{}, fmt.Errorf("%w: group name required", shared.ErrInvalidInput)
	}
	return s.repo.CreateGroup(ctx, name)
}

// ListGroups returns all groups.
func (s *Service) ListGroups(ctx context.Context) ([]Group, error) {
	return s.repo.ListGroups(ctx)
}

// SetGroupRoles replaces the roles granted to a group.
func (s *Service) SetGroupRoles(ctx context.Context, groupID int64, roleIDs []int64) error {
	if err := s.repo.SetGroupRoles(ctx, groupID, roleIDs); err != nil {
		return err
	}
	s.invalidate(ctx, 0)
	return nil
}

// SetUserGroups replaces the group memberships of a user.
func (s *Service) SetUserGroups(ctx context.Context, userID int64, groupIDs []int64) error {
	if err := s.repo.SetUserGroups(ctx, userID, groupIDs); err != nil {
		return err
	}
	s.invalidate(ctx, userID)
	return nil
}

// CreateDeny registers an explicit negative grant.
func (s *Service) CreateDeny(ctx context.Context, deny DenyAssignment) (DenyAssignment, error) {
	if (deny.UserID == nil) == (deny.GroupID == nil) {
		return DenyAssignment{}, fmt.Errorf("%w: exactly one of user_id and group_id required", shared.ErrInvalidInput)
	}
	if strings.TrimSpace(deny.Action) == "" || strings.TrimSpace(deny.Resource) == "" {
		return DenyAssignment{}, fmt.Errorf("%w: action and resource required", shared.ErrInvalidInput)
	}
	if len(deny.Condition) > 0 {
		if err := validateCondition(deny.Condition); err != nil {
			return DenyAssignment{}, err
		}
	}
	created, err := s.repo.CreateDeny(ctx, deny)
	if err != nil {
		return DenyAssignment{}, err
	}
	s.invalidateDeny(ctx, created)
	return created, nil
}

// DeleteDeny removes a deny assignment.
func (s *Service) DeleteDeny(ctx context.Context, id int64) error {
	removed, err := s.repo.DeleteDeny(ctx, id)
	if err != nil {
		return err
	}
	s.invalidateDeny(ctx, removed)
	return nil
}

// GrantResourceRole scopes a role to one resource instance for a user.
func (s *Service) GrantResourceRole(ctx context.Context, grant ResourceRole) error {
	if strings.TrimSpace(grant.ResourceType) == "" || strings.TrimSpace(grant.ResourceID) == "" {
		return fmt.Errorf("%w: resource type and id required", shared.ErrInvalidInput)
	}
	if _, err := s.repo.Role(ctx, grant.RoleID); err != nil {
		return err
	}
	if err := s.repo.GrantResourceRole(ctx, grant); err != nil {
		return err
	}
	s.invalidate(ctx, grant.UserID)
	return nil
}

// RevokeResourceRole removes a scoped grant.
func (s *Service) RevokeResourceRole(ctx context.Context, grant ResourceRole) error {
	if err := s.repo.RevokeResourceRole(ctx, grant); err != nil {
		return err
	}
	s.invalidate(ctx, grant.UserID)
	return nil
}

// checkCycle walks the ancestor chain of the candidate parent; reaching
// roleID means the new edge would close a cycle.
func (s *Service) checkCycle(ctx context.Context, roleID, parentID int64) error {
	visited := map[int64]struct{}{roleID: {}}
	current := parentID
	for {
		if _, seen := visited[current]; seen {
			return fmt.Errorf("%w: role %d cannot inherit from role %d", shared.ErrRoleCycle, roleID, parentID)
		}
		visited[current] = struct{}{}
		role, err := s.repo.Role(ctx, current)
		if err != nil {
			return err
		}
		if role.ParentID == nil {
			return nil
		}
		current = *role.ParentID
	}
}

func validateCondition(raw []byte) error {
	var cond map[string]json.RawMessage
	if err := json.Unmarshal(raw, &cond); err != nil {
		return fmt.Errorf("%w: condition must be a JSON object", shared.ErrInvalidInput)
	}
	for key := range cond {
		switch key {
		case "user_id", "department", "region", "time_range":
		default:
			return fmt.Errorf("%w: unknown condition key %q", shared.ErrInvalidInput, key)
		}
	}
	return nil
}

func (s *Service) invalidateDeny(ctx context.Context, deny DenyAssignment) {
	if deny.UserID != nil {
		s.invalidate(ctx, *deny.UserID)
		return
	}
	// Group-level denies affect an open set of users.
	s.invalidate(ctx, 0)
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
