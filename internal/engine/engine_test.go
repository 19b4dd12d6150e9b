package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/veridian-data/veridian/internal/shared"
)

type memStore struct {
	users          map[int64]User
	userGroups     map[int64][]int64
	denies         []DenyAssignment
	rolesByID      map[int64]Role
	groupRoles     map[int64][]int64
	rolePerms      map[int64][]Grant
	resourceGrants map[string][]Grant

	snapshotCalls  int
	groupIDsCalls  int
	rolePermsCalls int
}

func newMemStore() *memStore {
	return &memStore{
		users:          make(map[int64]User),
		userGroups:     make(map[int64][]int64),
		rolesByID:      make(map[int64]Role),
		groupRoles:     make(map[int64][]int64),
		rolePerms:      make(map[int64][]Grant),
		resourceGrants: make(map[string][]Grant),
	}
}

func (s *memStore) addRole(role Role, grants ...Grant) {
	s.rolesByID[role.ID] = role
	s.rolePerms[role.ID] = grants
}

func (s *memStore) Snapshot(ctx context.Context, fn func(Store) error) error {
	s.snapshotCalls++
	return fn(s)
}

func (s *memStore) GetUser(ctx context.Context, id int64) (User, error) {
	user, ok := s.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return user, nil
}

func (s *memStore) GroupIDs(ctx context.Context, userID int64) ([]int64, error) {
	s.groupIDsCalls++
	return s.userGroups[userID], nil
}

func (s *memStore) DenyAssignments(ctx context.Context, userID int64, groupIDs []int64, action, resource string) ([]DenyAssignment, error) {
	groups := make(map[int64]struct{}, len(groupIDs))
	for _, id := range groupIDs {
		groups[id] = struct{}{}
	}
	var matched []DenyAssignment
	for _, d := range s.denies {
		if d.Action != action || d.Resource != resource {
			continue
		}
		if d.UserID != nil && *d.UserID == userID {
			matched = append(matched, d)
			continue
		}
		if d.GroupID != nil {
			if _, ok := groups[*d.GroupID]; ok {
				matched = append(matched, d)
			}
		}
	}
	return matched, nil
}

func (s *memStore) RoleByName(ctx context.Context, name string) (Role, error) {
	for _, role := range s.rolesByID {
		if role.Name == name {
			return role, nil
		}
	}
	return Role{}, ErrRoleNotFound
}

func (s *memStore) Role(ctx context.Context, id int64) (Role, error) {
	role, ok := s.rolesByID[id]
	if !ok {
		return Role{}, ErrRoleNotFound
	}
	return role, nil
}

func (s *memStore) RoleIDsForGroups(ctx context.Context, groupIDs []int64) ([]int64, error) {
	var ids []int64
	for _, g := range groupIDs {
		ids = append(ids, s.groupRoles[g]...)
	}
	return ids, nil
}

func (s *memStore) RolePermissions(ctx context.Context, roleID int64) ([]Grant, error) {
	s.rolePermsCalls++
	return s.rolePerms[roleID], nil
}

func (s *memStore) ResourceGrants(ctx context.Context, userID int64, resourceType, resourceID string) ([]Grant, error) {
	return s.resourceGrants[resourceKey(userID, resourceType, resourceID)], nil
}

func resourceKey(userID int64, resourceType, resourceID string) string {
	return fmt.Sprintf("%d/%s/%s", userID, resourceType, resourceID)
}

type memRecorder struct {
	records []DecisionRecord
	fail    bool
}

func (r *memRecorder) RecordDecision(ctx context.Context, rec DecisionRecord) error {
	if r.fail {
		return errors.New("ledger unavailable")
	}
	r.records = append(r.records, rec)
	return nil
}

func int64ptr(v int64) *int64 { return &v }

func newTestEngine(store *memStore) (*Engine, *memRecorder) {
	recorder := &memRecorder{}
	eng := New(Options{Store: store, Recorder: recorder})
	return eng, recorder
}

func TestEvaluateLegacyRoleGrant(t *testing.T) {
	store := newMemStore()
	store.users[1] = User{ID: 1, Email: "alice@example.com", LegacyRole: "viewer", Active: true}
	eng, recorder := newTestEngine(store)

	decision, err := eng.Evaluate(context.Background(), Request{UserID: 1, Action: "view", ResourceType: "datasource"})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !decision.Allowed {
		t.Fatalf("expected allow, got deny (%s)", decision.Reason)
	}
	if decision.Reason != "role:viewer" {
		t.Fatalf("expected reason role:viewer, got %q", decision.Reason)
	}
	if decision.Source != SourceLegacyRole {
		t.Fatalf("expected source %s, got %s", SourceLegacyRole, decision.Source)
	}
	if len(recorder.records) != 1 {
		t.Fatalf("expected 1 audit record, got %d", len(recorder.records))
	}
}

func TestEvaluateNoMatchingPermission(t *testing.T) {
	store := newMemStore()
	store.users[1] = User{ID: 1, LegacyRole: "viewer", Active: true}
	eng, _ := newTestEngine(store)

	decision, err := eng.Evaluate(context.Background(), Request{UserID: 1, Action: "delete", ResourceType: "datasource"})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if decision.Allowed {
		t.Fatal("expected deny")
	}
	if decision.Reason != "no matching permission" {
		t.Fatalf("expected reason %q, got %q", "no matching permission", decision.Reason)
	}
}

func TestDenyDominatesLegacyGrant(t *testing.T) {
	store := newMemStore()
	store.users[1] = User{ID: 1, LegacyRole: "viewer", Active: true}
	store.denies = append(store.denies, DenyAssignment{ID: 1, UserID: int64ptr(1), Action: "view", Resource: "datasource"})
	eng, recorder := newTestEngine(store)

	decision, err := eng.Evaluate(context.Background(), Request{UserID: 1, Action: "view", ResourceType: "datasource"})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if decision.Allowed {
		t.Fatal("deny assignment must dominate the legacy grant")
	}
	if decision.Reason != "explicit deny" {
		t.Fatalf("expected reason %q, got %q", "explicit deny", decision.Reason)
	}
	if decision.Source != SourceDeny {
		t.Fatalf("expected source %s, got %s", SourceDeny, decision.Source)
	}
	if len(recorder.records) != 1 {
		t.Fatalf("expected 1 audit record, got %d", len(recorder.records))
	}
}

func TestGroupDenyBlocks(t *testing.T) {
	store := newMemStore()
	store.users[1] = User{ID: 1, LegacyRole: "viewer", Active: true}
	store.userGroups[1] = []int64{7}
	store.denies = append(store.denies, DenyAssignment{ID: 1, GroupID: int64ptr(7), Action: "view", Resource: "datasource"})
	eng, _ := newTestEngine(store)

	decision, _ := eng.Evaluate(context.Background(), Request{UserID: 1, Action: "view", ResourceType: "datasource"})
	if decision.Allowed {
		t.Fatal("group-level deny must block")
	}
	if decision.Reason != "explicit deny" {
		t.Fatalf("expected reason %q, got %q", "explicit deny", decision.Reason)
	}
}

func TestDenyWithFalseConditionDoesNotApply(t *testing.T) {
	store := newMemStore()
	store.users[1] = User{ID: 1, LegacyRole: "viewer", Active: true, Department: "engineering"}
	store.denies = append(store.denies, DenyAssignment{
		ID: 1, UserID: int64ptr(1), Action: "view", Resource: "datasource",
		Condition: []byte(`{"department":"finance"}`),
	})
	eng, _ := newTestEngine(store)

	decision, _ := eng.Evaluate(context.Background(), Request{UserID: 1, Action: "view", ResourceType: "datasource"})
	if !decision.Allowed {
		t.Fatalf("deny with non-matching condition must not apply, got deny (%s)", decision.Reason)
	}
}

func TestDenyWithMalformedConditionIsSkipped(t *testing.T) {
	store := newMemStore()
	store.users[1] = User{ID: 1, LegacyRole: "viewer", Active: true}
	store.denies = append(store.denies, DenyAssignment{
		ID: 1, UserID: int64ptr(1), Action: "view", Resource: "datasource",
		Condition: []byte(`{not json`),
	})
	eng, _ := newTestEngine(store)

	decision, _ := eng.Evaluate(context.Background(), Request{UserID: 1, Action: "view", ResourceType: "datasource"})
	if !decision.Allowed {
		t.Fatalf("malformed deny condition must be skipped, got deny (%s)", decision.Reason)
	}
}

func TestEvaluateUserNotFound(t *testing.T) {
	store := newMemStore()
	eng, recorder := newTestEngine(store)

	decision, err := eng.Evaluate(context.Background(), Request{UserID: 99, Action: "view", ResourceType: "datasource"})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if decision.Allowed {
		t.Fatal("missing user must fail closed")
	}
	if decision.Reason != "user not found" {
		t.Fatalf("expected reason %q, got %q", "user not found", decision.Reason)
	}
	if len(recorder.records) != 1 {
		t.Fatalf("fail-closed decisions must still be audited, got %d records", len(recorder.records))
	}
}

func TestEvaluateInactiveUser(t *testing.T) {
	store := newMemStore()
	store.users[1] = User{ID: 1, LegacyRole: "admin", Active: false}
	eng, _ := newTestEngine(store)

	decision, _ := eng.Evaluate(context.Background(), Request{UserID: 1, Action: "view", ResourceType: "datasource"})
	if decision.Allowed {
		t.Fatal("inactive user must fail closed")
	}
	if decision.Reason != "user inactive" {
		t.Fatalf("expected reason %q, got %q", "user inactive", decision.Reason)
	}
}

func TestEvaluateInvalidInput(t *testing.T) {
	store := newMemStore()
	store.users[1] = User{ID: 1, LegacyRole: "viewer", Active: true}
	eng, recorder := newTestEngine(store)

	_, err := eng.Evaluate(context.Background(), Request{UserID: 1, Action: "", ResourceType: "datasource"})
	if !errors.Is(err, shared.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	_, err = eng.Evaluate(context.Background(), Request{UserID: 1, Action: "view", ResourceType: "  "})
	if !errors.Is(err, shared.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if len(recorder.records) != 0 {
		t.Fatalf("contract violations are not decisions and must not be audited, got %d records", len(recorder.records))
	}
}

func TestAuditEntryPerCall(t *testing.T) {
	store := newMemStore()
	store.users[1] = User{ID: 1, LegacyRole: "viewer", Active: true}
	eng, recorder := newTestEngine(store)

	const calls = 5
	for i := 0; i < calls; i++ {
		if _, err := eng.Evaluate(context.Background(), Request{UserID: 1, Action: "view", ResourceType: "datasource"}); err != nil {
			t.Fatalf("evaluate %d: %v", i, err)
		}
	}
	if len(recorder.records) != calls {
		t.Fatalf("expected %d audit records, got %d", calls, len(recorder.records))
	}
}

func TestAuditWriteFailureDoesNotAffectDecision(t *testing.T) {
	store := newMemStore()
	store.users[1] = User{ID: 1, LegacyRole: "viewer", Active: true}
	recorder := &memRecorder{fail: true}
	eng := New(Options{Store: store, Recorder: recorder})

	decision, err := eng.Evaluate(context.Background(), Request{UserID: 1, Action: "view", ResourceType: "datasource"})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !decision.Allowed {
		t.Fatalf("audit failure must not change the decision, got deny (%s)", decision.Reason)
	}
}

func TestABACConditionGating(t *testing.T) {
	store := newMemStore()
	store.users[1] = User{ID: 1, LegacyRole: "analyst", Active: true}
	store.addRole(Role{ID: 10, Name: "analyst"}, Grant{
		Permission: "report.view",
		Condition:  []byte(`{"user_id": ":current_user_id"}`),
		RoleName:   "analyst",
	})
	eng, _ := newTestEngine(store)

	decision, err := eng.Evaluate(context.Background(), Request{
		UserID: 1, Action: "view", ResourceType: "report",
		Context: map[string]any{"user_id": int64(1)},
	})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !decision.Allowed {
		t.Fatalf("expected allow, got deny (%s)", decision.Reason)
	}
	if decision.Reason != "abac + conditions met" {
		t.Fatalf("expected reason %q, got %q", "abac + conditions met", decision.Reason)
	}

	decision, err = eng.Evaluate(context.Background(), Request{
		UserID: 1, Action: "view", ResourceType: "report",
		Context: map[string]any{"user_id": int64(2)},
	})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if decision.Allowed {
		t.Fatal("mismatched context must gate the grant")
	}
	if decision.Reason != "condition failed: user_id" {
		t.Fatalf("expected reason %q, got %q", "condition failed: user_id", decision.Reason)
	}
	if decision.Source != SourceABAC {
		t.Fatalf("a failed condition is a definitive ABAC deny, got source %s", decision.Source)
	}
}

func TestMalformedGrantConditionIsSkipped(t *testing.T) {
	store := newMemStore()
	store.users[1] = User{ID: 1, LegacyRole: "analyst", Active: true}
	store.addRole(Role{ID: 10, Name: "analyst"}, Grant{
		Permission: "report.view",
		Condition:  []byte(`{"user_id":`),
		RoleName:   "analyst",
	})
	eng, _ := newTestEngine(store)

	decision, _ := eng.Evaluate(context.Background(), Request{UserID: 1, Action: "view", ResourceType: "report"})
	if decision.Allowed {
		t.Fatal("a grant with a malformed condition must not match")
	}
	if decision.Reason != "no matching permission" {
		t.Fatalf("expected fallthrough to default deny, got %q", decision.Reason)
	}
}

func TestResourceScopedGrant(t *testing.T) {
	store := newMemStore()
	store.users[1] = User{ID: 1, Active: true}
	store.resourceGrants[resourceKey(1, "datasource", "42")] = []Grant{
		{Permission: "datasource.edit", RoleName: "editor"},
	}
	eng, _ := newTestEngine(store)

	decision, _ := eng.Evaluate(context.Background(), Request{UserID: 1, Action: "edit", ResourceType: "datasource", ResourceID: "42"})
	if !decision.Allowed {
		t.Fatalf("expected resource-scoped allow, got deny (%s)", decision.Reason)
	}
	if decision.Source != SourceResourceScope {
		t.Fatalf("expected source %s, got %s", SourceResourceScope, decision.Source)
	}

	// The same grant must not leak to a different instance.
	decision, _ = eng.Evaluate(context.Background(), Request{UserID: 1, Action: "edit", ResourceType: "datasource", ResourceID: "43"})
	if decision.Allowed {
		t.Fatal("resource-scoped grant must be bound to its instance")
	}
}

func TestCheckPermission(t *testing.T) {
	store := newMemStore()
	store.users[1] = User{ID: 1, LegacyRole: "viewer", Active: true}
	eng, recorder := newTestEngine(store)

	if !eng.CheckPermission(context.Background(), 1, "view", "datasource") {
		t.Fatal("expected allow")
	}
	if eng.CheckPermission(context.Background(), 1, "delete", "datasource") {
		t.Fatal("expected deny")
	}
	if eng.CheckPermission(context.Background(), 1, "", "datasource") {
		t.Fatal("invalid input must read as deny through the boolean wrapper")
	}
	if len(recorder.records) != 2 {
		t.Fatalf("expected 2 audit records, got %d", len(recorder.records))
	}
}

func TestHierarchyUsesCacheUntilInvalidated(t *testing.T) {
	store := newMemStore()
	store.users[1] = User{ID: 1, Active: true}
	store.userGroups[1] = []int64{5}
	store.groupRoles[5] = []int64{10}
	store.addRole(Role{ID: 10, Name: "catalog_curator"}, Grant{Permission: "catalog.curate", RoleName: "catalog_curator"})

	cache := NewLRUCache(16, time.Minute)
	recorder := &memRecorder{}
	eng := New(Options{Store: store, Recorder: recorder, Cache: cache})

	req := Request{UserID: 1, Action: "curate", ResourceType: "catalog"}
	if d, _ := eng.Evaluate(context.Background(), req); !d.Allowed {
		t.Fatalf("expected allow, got deny (%s)", d.Reason)
	}
	if store.rolePermsCalls != 1 {
		t.Fatalf("expected one resolution pass, got %d", store.rolePermsCalls)
	}

	if d, _ := eng.Evaluate(context.Background(), req); !d.Allowed {
		t.Fatalf("expected cached allow, got deny (%s)", d.Reason)
	}
	if store.rolePermsCalls != 1 {
		t.Fatalf("second evaluation must hit the cache, got %d resolution passes", store.rolePermsCalls)
	}

	eng.InvalidateUser(1)
	if d, _ := eng.Evaluate(context.Background(), req); !d.Allowed {
		t.Fatalf("expected allow after invalidation, got deny (%s)", d.Reason)
	}
	if store.rolePermsCalls != 2 {
		t.Fatalf("invalidation must force a fresh resolution, got %d passes", store.rolePermsCalls)
	}
}
