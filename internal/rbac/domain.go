// Package rbac is the administrative surface of the permission store:
// role, permission, group, deny-assignment and resource-grant
// management. Evaluation itself lives in the engine package.
package rbac

import "github.com/veridian-data/veridian/internal/engine"

// Permission is an atomic capability identified by resource.action. The
// optional condition is a flat JSON predicate evaluated by the engine.
type Permission struct {
	ID        int64
	Action    string
	Resource  string
	Condition []byte
}

// Identifier returns the dot-joined permission identifier.
func (p Permission) Identifier() string {
	return p.Resource + "." + p.Action
}

// Group is a named collection of users granted roles collectively.
type Group struct {
	ID   int64
	Name string
}

// ResourceRole scopes a role grant to one resource instance.
type ResourceRole struct {
	UserID       int64
	RoleID       int64
	ResourceType string
	ResourceID   string
}

// Role re-exports the engine's role shape for admin callers.
type Role = engine.Role

// DenyAssignment re-exports the engine's deny shape for admin callers.
type DenyAssignment = engine.DenyAssignment
