package engine

import (
	"context"
	"testing"
)

func TestInheritanceTransitivity(t *testing.T) {
	store := newMemStore()
	store.users[1] = User{ID: 1, LegacyRole: "junior_steward", Active: true}
	store.addRole(Role{ID: 2, Name: "base_steward"}, Grant{Permission: "datasource.annotate", RoleName: "base_steward"})
	store.addRole(Role{ID: 1, Name: "junior_steward", ParentID: int64ptr(2)})
	eng, _ := newTestEngine(store)

	decision, err := eng.Evaluate(context.Background(), Request{UserID: 1, Action: "annotate", ResourceType: "datasource"})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !decision.Allowed {
		t.Fatalf("holder of the child role must inherit the parent grant, got deny (%s)", decision.Reason)
	}
	if decision.Reason != "hierarchical" {
		t.Fatalf("expected reason %q, got %q", "hierarchical", decision.Reason)
	}
	if decision.Source != SourceHierarchy {
		t.Fatalf("expected source %s, got %s", SourceHierarchy, decision.Source)
	}
}

func TestGroupRolePropagation(t *testing.T) {
	store := newMemStore()
	store.users[1] = User{ID: 1, Active: true}
	store.userGroups[1] = []int64{3}
	store.groupRoles[3] = []int64{9}
	store.addRole(Role{ID: 9, Name: "lineage_reader"}, Grant{Permission: "lineage.view", RoleName: "lineage_reader"})
	eng, _ := newTestEngine(store)

	decision, _ := eng.Evaluate(context.Background(), Request{UserID: 1, Action: "view", ResourceType: "lineage"})
	if !decision.Allowed {
		t.Fatalf("group membership must propagate the role grant, got deny (%s)", decision.Reason)
	}
	if decision.Source != SourceHierarchy {
		t.Fatalf("expected source %s, got %s", SourceHierarchy, decision.Source)
	}
}

func TestConditionalGrantDoesNotShadowUnconditional(t *testing.T) {
	store := newMemStore()
	store.users[1] = User{ID: 1, Department: "engineering", Active: true}
	store.userGroups[1] = []int64{5}
	store.groupRoles[5] = []int64{11, 12}
	// The conditional role resolves first; the unconditional sibling
	// granting the same permission must still be consulted.
	store.addRole(Role{ID: 11, Name: "finance_viewer"},
		Grant{Permission: "report.view", Condition: []byte(`{"department": "finance"}`), RoleName: "finance_viewer"})
	store.addRole(Role{ID: 12, Name: "global_viewer"},
		Grant{Permission: "report.view", RoleName: "global_viewer"})
	eng, _ := newTestEngine(store)

	decision, err := eng.Evaluate(context.Background(), Request{UserID: 1, Action: "view", ResourceType: "report"})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !decision.Allowed {
		t.Fatalf("unconditional group grant must allow despite the failed conditional sibling, got deny (%s)", decision.Reason)
	}
	if decision.Source != SourceHierarchy {
		t.Fatalf("expected source %s, got %s", SourceHierarchy, decision.Source)
	}
}

func TestResolveHierarchyKeepsConditionVariants(t *testing.T) {
	store := newMemStore()
	user := User{ID: 1, Active: true}
	store.users[1] = user
	store.addRole(Role{ID: 11, Name: "finance_viewer"},
		Grant{Permission: "report.view", Condition: []byte(`{"department": "finance"}`), RoleName: "finance_viewer"})
	store.addRole(Role{ID: 12, Name: "global_viewer"},
		Grant{Permission: "report.view", RoleName: "global_viewer"})
	store.userGroups[1] = []int64{5}
	store.groupRoles[5] = []int64{11, 12}

	grants, err := resolveHierarchy(context.Background(), store, user, []int64{5})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(grants) != 2 {
		t.Fatalf("expected both condition variants of the permission, got %d grants", len(grants))
	}
	unconditional := false
	for _, g := range grants {
		if g.Permission == "report.view" && len(g.Condition) == 0 {
			unconditional = true
		}
	}
	if !unconditional {
		t.Fatalf("unconditional variant was collapsed away: %+v", grants)
	}
}

func TestHierarchyCycleTerminates(t *testing.T) {
	store := newMemStore()
	store.users[1] = User{ID: 1, LegacyRole: "cyclic_a", Active: true}
	store.addRole(Role{ID: 1, Name: "cyclic_a", ParentID: int64ptr(2)}, Grant{Permission: "datasource.tag", RoleName: "cyclic_a"})
	store.addRole(Role{ID: 2, Name: "cyclic_b", ParentID: int64ptr(1)}, Grant{Permission: "datasource.label", RoleName: "cyclic_b"})
	eng, _ := newTestEngine(store)

	// Grant-time validation rejects cycles, but a pre-existing one must
	// still resolve instead of looping.
	decision, err := eng.Evaluate(context.Background(), Request{UserID: 1, Action: "label", ResourceType: "datasource"})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !decision.Allowed {
		t.Fatalf("expected allow through the cycle, got deny (%s)", decision.Reason)
	}
}

func TestResolveHierarchyProvenance(t *testing.T) {
	store := newMemStore()
	user := User{ID: 1, LegacyRole: "child", Active: true}
	store.users[1] = user
	store.userGroups[1] = []int64{4}
	store.groupRoles[4] = []int64{30}
	store.addRole(Role{ID: 10, Name: "child", ParentID: int64ptr(20)}, Grant{Permission: "a.read", RoleName: "child"})
	store.addRole(Role{ID: 20, Name: "parent"}, Grant{Permission: "b.read", RoleName: "parent"})
	store.addRole(Role{ID: 30, Name: "grouped"}, Grant{Permission: "c.read", RoleName: "grouped"})

	grants, err := resolveHierarchy(context.Background(), store, user, []int64{4})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	got := make(map[string]string, len(grants))
	for _, g := range grants {
		got[g.Permission] = g.Provenance
	}
	want := map[string]string{
		"a.read": ProvenanceDirectRole,
		"b.read": ProvenanceInheritedRole,
		"c.read": ProvenanceGroupRole,
	}
	for perm, provenance := range want {
		if got[perm] != provenance {
			t.Fatalf("permission %s: expected provenance %s, got %s", perm, provenance, got[perm])
		}
	}
	if len(grants) != len(want) {
		t.Fatalf("expected %d deduplicated grants, got %d", len(want), len(grants))
	}
}
