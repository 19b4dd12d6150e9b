package engine

import (
	"context"
	"errors"
	"fmt"
)

type roleRef struct {
	id         int64
	provenance string
}

// resolveHierarchy expands the user's direct role and group roles
// through the inheritance chain and returns the deduplicated grant set
// tagged with provenance. Grants collapse on (permission, condition),
// never on the permission alone: an unconditional grant from one role
// must survive a conditional sibling granting the same permission.
// Traversal is a work-list with a visited set, so a mis-configured
// cycle degrades into a no-op instead of looping.
func resolveHierarchy(ctx context.Context, st Store, user User, groupIDs []int64) ([]Grant, error) {
	var work []roleRef

	if user.LegacyRole != "" {
		role, err := st.RoleByName(ctx, user.LegacyRole)
		switch {
		case err == nil:
			work = append(work, roleRef{id: role.ID, provenance: ProvenanceDirectRole})
		case errors.Is(err, ErrRoleNotFound):
			// Legacy role without a store counterpart resolves through the
			// static tables only.
		default:
			return nil, fmt.Errorf("engine: resolve direct role: %w", err)
		}
	}

	if len(groupIDs) > 0 {
		roleIDs, err := st.RoleIDsForGroups(ctx, groupIDs)
		if err != nil {
			return nil, fmt.Errorf("engine: resolve group roles: %w", err)
		}
		for _, id := range roleIDs {
			work = append(work, roleRef{id: id, provenance: ProvenanceGroupRole})
		}
	}

	visited := make(map[int64]struct{}, len(work))
	seen := make(map[string]struct{})
	var grants []Grant

	for len(work) > 0 {
		ref := work[0]
		work = work[1:]
		if _, done := visited[ref.id]; done {
			continue
		}
		visited[ref.id] = struct{}{}

		perms, err := st.RolePermissions(ctx, ref.id)
		if err != nil {
			return nil, fmt.Errorf("engine: role permissions: %w", err)
		}
		for _, g := range perms {
			key := g.Permission + "\x00" + string(g.Condition)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			g.Provenance = ref.provenance
			grants = append(grants, g)
		}

		role, err := st.Role(ctx, ref.id)
		if err != nil {
			if errors.Is(err, ErrRoleNotFound) {
				continue
			}
			return nil, fmt.Errorf("engine: load role: %w", err)
		}
		if role.ParentID != nil {
			work = append(work, roleRef{id: *role.ParentID, provenance: ProvenanceInheritedRole})
		}
	}

	return grants, nil
}
