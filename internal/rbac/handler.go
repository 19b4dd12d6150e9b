package rbac

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/veridian-data/veridian/internal/engine"
	"github.com/veridian-data/veridian/internal/platform/httpx"
	"github.com/veridian-data/veridian/internal/shared"
)

// Handler exposes the permission store administration API and the
// decision probe endpoint.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	engine   Authorizer
	validate *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, eng Authorizer) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:   logger,
		service:  service,
		engine:   eng,
		validate: validator.New(),
	}
}

// MountRoutes registers the admin routes. Permission gating is applied
// by the router when mounting.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/roles", h.listRoles)
	r.Post("/roles", h.createRole)
	r.Patch("/roles/{roleID}/parent", h.setRoleParent)
	r.Put("/roles/{roleID}/permissions", h.setRolePermissions)
	r.Delete("/roles/{roleID}", h.deleteRole)

	r.Get("/permissions", h.listPermissions)
	r.Get("/permissions/core", h.listCoreScopes)
	r.Post("/permissions", h.createPermission)

	r.Get("/groups", h.listGroups)
	r.Post("/groups", h.createGroup)
	r.Put("/groups/{groupID}/roles", h.setGroupRoles)
	r.Put("/users/{userID}/groups", h.setUserGroups)

	r.Post("/deny-assignments", h.createDeny)
	r.Delete("/deny-assignments/{denyID}", h.deleteDeny)

	r.Post("/resource-roles", h.grantResourceRole)
	r.Delete("/resource-roles", h.revokeResourceRole)

	r.Post("/check", h.check)
}

type roleDTO struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	ParentID *int64 `json:"parent_id,omitempty"`
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoles(r.Context())
	if err != nil {
		h.respondError(w, "list roles", err)
		return
	}
	dtos := make([]roleDTO, 0, len(roles))
	for _, role := range roles {
		dtos = append(dtos, roleDTO{ID: role.ID, Name: role.Name, ParentID: role.ParentID})
	}
	httpx.JSON(w, http.StatusOK, dtos)
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name" validate:"required,min=1,max=128"`
		ParentID *int64 `json:"parent_id"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	role, err := h.service.CreateRole(r.Context(), req.Name, req.ParentID)
	if err != nil {
		h.respondError(w, "create role", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, roleDTO{ID: role.ID, Name: role.Name, ParentID: role.ParentID})
}

func (h *Handler) setRoleParent(w http.ResponseWriter, r *http.Request) {
	roleID, ok := h.pathID(w, r, "roleID")
	if !ok {
		return
	}
	var req struct {
		ParentID *int64 `json:"parent_id"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.service.SetRoleParent(r.Context(), roleID, req.ParentID); err != nil {
		h.respondError(w, "set role parent", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) setRolePermissions(w http.ResponseWriter, r *http.Request) {
	roleID, ok := h.pathID(w, r, "roleID")
	if !ok {
		return
	}
	var req struct {
		PermissionIDs []int64 `json:"permission_ids"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.service.SetRolePermissions(r.Context(), roleID, req.PermissionIDs); err != nil {
		h.respondError(w, "set role permissions", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	roleID, ok := h.pathID(w, r, "roleID")
	if !ok {
		return
	}
	if err := h.service.DeleteRole(r.Context(), roleID); err != nil {
		h.respondError(w, "delete role", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.service.ListPermissions(r.Context())
	if err != nil {
		h.respondError(w, "list permissions", err)
		return
	}
	dtos := make([]map[string]any, 0, len(perms))
	for _, p := range perms {
		dto := map[string]any{
			"id":         p.ID,
			"action":     p.Action,
			"resource":   p.Resource,
			"identifier": p.Identifier(),
		}
		if len(p.Condition) > 0 {
			dto["condition"] = json.RawMessage(p.Condition)
		}
		dtos = append(dtos, dto)
	}
	httpx.JSON(w, http.StatusOK, dtos)
}

// listCoreScopes returns the permissions the platform itself checks,
// so operators can seed roles without consulting the source.
func (h *Handler) listCoreScopes(w http.ResponseWriter, _ *http.Request) {
	httpx.JSON(w, http.StatusOK, shared.CoreScopes())
}

func (h *Handler) createPermission(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Action    string          `json:"action" validate:"required,min=1,max=128"`
		Resource  string          `json:"resource" validate:"required,min=1,max=128"`
		Condition json.RawMessage `json:"condition"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	perm, err := h.service.CreatePermission(r.Context(), req.Action, req.Resource, req.Condition)
	if err != nil {
		h.respondError(w, "create permission", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"id":         perm.ID,
		"action":     perm.Action,
		"resource":   perm.Resource,
		"identifier": perm.Identifier(),
	})
}

func (h *Handler) listGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.service.ListGroups(r.Context())
	if err != nil {
		h.respondError(w, "list groups", err)
		return
	}
	dtos := make([]map[string]any, 0, len(groups))
	for _, g := range groups {
		dtos = append(dtos, map[string]any{"id": g.ID, "name": g.Name})
	}
	httpx.JSON(w, http.StatusOK, dtos)
}

func (h *Handler) createGroup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name" validate:"required,min=1,max=128"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	group, err := h.service.CreateGroup(r.Context(), req.Name)
	if err != nil {
		h.respondError(w, "create group", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"id": group.ID, "name": group.Name})
}

func (h *Handler) setGroupRoles(w http.ResponseWriter, r *http.Request) {
	groupID, ok := h.pathID(w, r, "groupID")
	if !ok {
		return
	}
	var req struct {
		RoleIDs []int64 `json:"role_ids"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.service.SetGroupRoles(r.Context(), groupID, req.RoleIDs); err != nil {
		h.respondError(w, "set group roles", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) setUserGroups(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.pathID(w, r, "userID")
	if !ok {
		return
	}
	var req struct {
		GroupIDs []int64 `json:"group_ids"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.service.SetUserGroups(r.Context(), userID, req.GroupIDs); err != nil {
		h.respondError(w, "set user groups", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) createDeny(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID    *int64          `json:"user_id"`
		GroupID   *int64          `json:"group_id"`
		Action    string          `json:"action" validate:"required"`
		Resource  string          `json:"resource" validate:"required"`
		Condition json.RawMessage `json:"condition"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	deny, err := h.service.CreateDeny(r.Context(), DenyAssignment{
		UserID:    req.UserID,
		GroupID:   req.GroupID,
		Action:    req.Action,
		Resource:  req.Resource,
		Condition: req.Condition,
	})
	if err != nil {
		h.respondError(w, "create deny", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"id": deny.ID})
}

func (h *Handler) deleteDeny(w http.ResponseWriter, r *http.Request) {
	denyID, ok := h.pathID(w, r, "denyID")
	if !ok {
		return
	}
	if err := h.service.DeleteDeny(r.Context(), denyID); err != nil {
		h.respondError(w, "delete deny", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type resourceRoleRequest struct {
	UserID       int64  `json:"user_id" validate:"required"`
	RoleID       int64  `json:"role_id" validate:"required"`
	ResourceType string `json:"resource_type" validate:"required"`
	ResourceID   string `json:"resource_id" validate:"required"`
}

func (h *Handler) grantResourceRole(w http.ResponseWriter, r *http.Request) {
	var req resourceRoleRequest
	if !h.decode(w, r, &req) {
		return
	}
	grant := ResourceRole{UserID: req.UserID, RoleID: req.RoleID, ResourceType: req.ResourceType, ResourceID: req.ResourceID}
	if err := h.service.GrantResourceRole(r.Context(), grant); err != nil {
		h.respondError(w, "grant resource role", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) revokeResourceRole(w http.ResponseWriter, r *http.Request) {
	var req resourceRoleRequest
	if !h.decode(w, r, &req) {
		return
	}
	grant := ResourceRole{UserID: req.UserID, RoleID: req.RoleID, ResourceType: req.ResourceType, ResourceID: req.ResourceID}
	if err := h.service.RevokeResourceRole(r.Context(), grant); err != nil {
		h.respondError(w, "revoke resource role", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// check is the decision probe: administrators can ask how the engine
// would decide a request. The probe is a real evaluation and lands in
// the audit ledger like any other.
func (h *Handler) check(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID       int64          `json:"user_id" validate:"required"`
		Action       string         `json:"action" validate:"required"`
		ResourceType string         `json:"resource_type" validate:"required"`
		ResourceID   string         `json:"resource_id"`
		Context      map[string]any `json:"context"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	decision, err := h.engine.Evaluate(r.Context(), engine.Request{
		UserID:       req.UserID,
		Action:       req.Action,
		ResourceType: req.ResourceType,
		ResourceID:   req.ResourceID,
		Context:      req.Context,
	})
	if err != nil {
		h.respondError(w, "evaluate", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"decision_id": decision.ID.String(),
		"allowed":     decision.Allowed,
		"reason":      decision.Reason,
		"source":      decision.Source,
	})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body must be valid JSON")
		return false
	}
	if err := h.validate.Struct(target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return false
	}
	return true
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id < 1 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Path", name+" must be a positive integer")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	if !httpx.IsDomainError(err) {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
