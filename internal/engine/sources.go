package engine

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// verdict is an affirmative or definitive-negative outcome from one
// grant source. Sources that have nothing to say about a request report
// matched=false and the engine falls through to the next source.
type verdict struct {
	allowed bool
	reason  string
}

// grantSource is one grant-resolution strategy. The engine consults
// sources in a fixed priority order; the first matching verdict wins.
// Deny assignments are not a source: they gate the whole pipeline.
type grantSource interface {
	name() string
	evaluate(ctx context.Context, st Store, user User, req Request) (verdict, bool, error)
}

// legacyRoleSource matches the user's single legacy role string against
// the frozen pre-relational role table.
type legacyRoleSource struct{}

func (legacyRoleSource) name() string { return SourceLegacyRole }

func (legacyRoleSource) evaluate(_ context.Context, _ Store, user User, req Request) (verdict, bool, error) {
	if user.LegacyRole == "" {
		return verdict{}, false, nil
	}
	if staticTableContains(legacyRolePermissions, user.LegacyRole, req.Permission()) {
		return verdict{allowed: true, reason: "role:" + user.LegacyRole}, true, nil
	}
	return verdict{}, false, nil
}

// staticMapSource matches against the independently maintained
// dot-notation table kept for migration-era compatibility.
type staticMapSource struct{}

func (staticMapSource) name() string { return SourceStaticMap }

func (staticMapSource) evaluate(_ context.Context, _ Store, user User, req Request) (verdict, bool, error) {
	if user.LegacyRole == "" {
		return verdict{}, false, nil
	}
	if staticTableContains(dotNotationPermissions, user.LegacyRole, req.Permission()) {
		return verdict{allowed: true, reason: "role:" + user.LegacyRole}, true, nil
	}
	return verdict{}, false, nil
}

// abacSource matches conditional grants attached to the user's direct
// role. A grant whose condition holds allows; a matched grant whose
// condition fails is a definitive deny for this request, it does not
// defer to later sources. Malformed conditions skip the grant.
type abacSource struct {
	now func() time.Time
}

func (abacSource) name() string { return SourceABAC }

func (s abacSource) evaluate(ctx context.Context, st Store, user User, req Request) (verdict, bool, error) {
	if user.LegacyRole == "" {
		return verdict{}, false, nil
	}
	role, err := st.RoleByName(ctx, user.LegacyRole)
	if err != nil {
		if errors.Is(err, ErrRoleNotFound) {
			return verdict{}, false, nil
		}
		return verdict{}, false, fmt.Errorf("engine: abac role lookup: %w", err)
	}
	grants, err := st.RolePermissions(ctx, role.ID)
	if err != nil {
		return verdict{}, false, fmt.Errorf("engine: abac grants: %w", err)
	}

	permission := req.Permission()
	failedKey := ""
	matched := false
	for _, g := range grants {
		if g.Permission != permission {
			continue
		}
		ok, key, err := evalCondition(g.Condition, user, req.Context, s.now())
		if err != nil {
			var malformed errMalformedCondition
			if errors.As(err, &malformed) {
				continue
			}
			return verdict{}, false, err
		}
		if ok {
			if len(g.Condition) == 0 {
				return verdict{allowed: true, reason: "abac"}, true, nil
			}
			return verdict{allowed: true, reason: "abac + conditions met"}, true, nil
		}
		matched = true
		failedKey = key
	}
	if matched {
		return verdict{allowed: false, reason: "condition failed: " + failedKey}, true, nil
	}
	return verdict{}, false, nil
}

// hierarchySource matches against the flattened group/role inheritance
// set, consulting the permission cache first. Cached entries hold the
// resolved grants only; conditions on hierarchical grants still gate.
type hierarchySource struct {
	cache   PermissionCache
	metrics Metrics
	now     func() time.Time
}

func (hierarchySource) name() string { return SourceHierarchy }

func (s hierarchySource) evaluate(ctx context.Context, st Store, user User, req Request) (verdict, bool, error) {
	grants, ok := s.cache.Get(user.ID)
	if ok {
		s.metrics.PermissionCacheHit()
	} else {
		s.metrics.PermissionCacheMiss()
		groupIDs, err := st.GroupIDs(ctx, user.ID)
		if err != nil {
			return verdict{}, false, fmt.Errorf("engine: groups: %w", err)
		}
		grants, err = resolveHierarchy(ctx, st, user, groupIDs)
		if err != nil {
			return verdict{}, false, err
		}
		s.cache.Set(user.ID, grants)
	}

	permission := req.Permission()
	for _, g := range grants {
		if g.Permission != permission {
			continue
		}
		ok, _, err := evalCondition(g.Condition, user, req.Context, s.now())
		if err != nil || !ok {
			continue
		}
		return verdict{allowed: true, reason: "hierarchical"}, true, nil
	}
	return verdict{}, false, nil
}

// resourceScopeSource matches role grants bound to the exact resource
// instance named in the request. It only participates when the request
// carries a resource ID.
type resourceScopeSource struct {
	now func() time.Time
}

func (resourceScopeSource) name() string { return SourceResourceScope }

func (s resourceScopeSource) evaluate(ctx context.Context, st Store, user User, req Request) (verdict, bool, error) {
	if req.ResourceID == "" {
		return verdict{}, false, nil
	}
	grants, err := st.ResourceGrants(ctx, user.ID, req.ResourceType, req.ResourceID)
	if err != nil {
		return verdict{}, false, fmt.Errorf("engine: resource grants: %w", err)
	}
	permission := req.Permission()
	for _, g := range grants {
		if g.Permission != permission {
			continue
		}
		ok, _, err := evalCondition(g.Condition, user, req.Context, s.now())
		if err != nil || !ok {
			continue
		}
		return verdict{allowed: true, reason: "resource-scoped"}, true, nil
	}
	return verdict{}, false, nil
}
