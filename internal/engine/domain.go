// Package engine implements the unified permission evaluation engine.
// It merges the historically separate authorization mechanisms (legacy
// role table, dot-notation permission map, conditional ABAC grants,
// hierarchical group/role inheritance and resource-scoped grants) into
// a single deny-overrides decision pipeline. Every evaluation produces
// exactly one audit record.
package engine

import (
	"time"

	"github.com/google/uuid"
)

// Grant provenance tags.
const (
	SourceDeny          = "deny"
	SourceLegacyRole    = "legacy_role"
	SourceStaticMap     = "static_map"
	SourceABAC          = "abac"
	SourceHierarchy     = "hierarchy"
	SourceResourceScope = "resource_scope"
	SourceNone          = "none"

	ProvenanceDirectRole    = "direct_role"
	ProvenanceInheritedRole = "inherited_role"
	ProvenanceGroupRole     = "group_role"
)

// User is the evaluation subject. LegacyRole carries the single role
// string from pre-relational deployments; Department and Region feed
// ABAC conditions.
type User struct {
	ID         int64
	Email      string
	LegacyRole string
	Active     bool
	Department string
	Region     string
}

// Role is a named permission grouping. ParentID points at the role this
// role inherits from; nil when the role is a hierarchy root.
type Role struct {
	ID       int64
	Name     string
	ParentID *int64
}

// Grant is a single permission attached to a role, carrying the raw
// condition payload (empty when unconditional) and its provenance.
type Grant struct {
	Permission string
	Condition  []byte
	RoleName   string
	Provenance string
}

// DenyAssignment is an explicit negative grant. Exactly one of UserID
// and GroupID is set. A deny with no condition is unconditional; a deny
// whose condition evaluates false does not apply.
type DenyAssignment struct {
	ID        int64
	UserID    *int64
	GroupID   *int64
	Action    string
	Resource  string
	Condition []byte
}

// Request describes one permission evaluation.
type Request struct {
	UserID       int64
	Action       string
	ResourceType string
	ResourceID   string
	Context      map[string]any
}

// Permission returns the dot-joined case-sensitive permission identifier.
func (r Request) Permission() string {
	return r.ResourceType + "." + r.Action
}

// Decision is the outcome of one evaluation. Reason is diagnostic text,
// not a stable API surface.
type Decision struct {
	ID      uuid.UUID
	Allowed bool
	Reason  string
	Source  string
}

// DecisionRecord is the audit payload written for every evaluation.
type DecisionRecord struct {
	DecisionID   uuid.UUID
	ActorID      int64
	Action       string
	ResourceType string
	ResourceID   string
	Allowed      bool
	Reason       string
	Source       string
	Context      map[string]any
	At           time.Time
}
