package engine

import (
	"context"
	"errors"
)

// ErrUserNotFound indicates the evaluation subject does not exist.
var ErrUserNotFound = errors.New("engine: user not found")

// ErrRoleNotFound indicates a referenced role does not exist.
var ErrRoleNotFound = errors.New("engine: role not found")

// Store provides read access to the permission store. All calls made
// during a single evaluation go through the Store handed to the
// Snapshot callback, which implementations must serve from one
// consistent snapshot of the underlying data.
type Store interface {
	// Snapshot runs fn against a consistent view of the store.
	Snapshot(ctx context.Context, fn func(Store) error) error

	// GetUser returns the user or ErrUserNotFound.
	GetUser(ctx context.Context, id int64) (User, error)

	// GroupIDs returns the IDs of every group the user belongs to.
	GroupIDs(ctx context.Context, userID int64) ([]int64, error)

	// DenyAssignments returns deny rows matching the user directly or any
	// of the given groups, for the exact action/resource pair.
	DenyAssignments(ctx context.Context, userID int64, groupIDs []int64, action, resource string) ([]DenyAssignment, error)

	// RoleByName resolves a role by its unique name, ErrRoleNotFound when absent.
	RoleByName(ctx context.Context, name string) (Role, error)

	// Role fetches a role by ID, ErrRoleNotFound when absent.
	Role(ctx context.Context, id int64) (Role, error)

	// RoleIDsForGroups returns role IDs granted to any of the groups.
	RoleIDsForGroups(ctx context.Context, groupIDs []int64) ([]int64, error)

	// RolePermissions returns the grants attached to a role, conditions included.
	RolePermissions(ctx context.Context, roleID int64) ([]Grant, error)

	// ResourceGrants returns grants the user holds through roles scoped to
	// the exact (resourceType, resourceID) instance.
	ResourceGrants(ctx context.Context, userID int64, resourceType, resourceID string) ([]Grant, error)
}
