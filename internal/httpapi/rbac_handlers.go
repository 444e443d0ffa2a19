package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"guardia.org/internal/auth"
)

type nameRequest struct {
	Name string `json:"name"`
}

type assignRoleRequest struct {
	UserID string `json:"user_id"`
	RoleID string `json:"role_id"`
}

type assignPermissionRequest struct {
	RoleID       string `json:"role_id"`
	PermissionID string `json:"permission_id"`
}

type bulkAssignPermissionsRequest struct {
	Pairs []assignPermissionRequest `json:"pairs"`
}

// --- roles ---

func (a *API) handleRoles(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		if !a.ensurePermissions(w, r, auth.PermCreateRoles) {
			return
		}
		var req nameRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		role, err := a.rbac.CreateRole(r.Context(), req.Name)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		w.Header().Set("Location", fmt.Sprintf("/v1/roles/%s", role.ID))
		writeJSON(w, http.StatusCreated, role)
	case http.MethodGet:
		if !a.ensurePermissions(w, r, auth.PermViewRoles) {
			return
		}
		roles, err := a.rbac.ListRoles(r.Context())
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, roles)
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodGet)
	}
}

func (a *API) handleRoleResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/roles/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	id := parts[0]

	// /v1/roles/{id}/permissions/available — catalog complement
	if len(parts) == 3 && parts[1] == "permissions" && parts[2] == "available" {
		a.handlePermissionsNotAssigned(w, r, id)
		return
	}
	if len(parts) != 1 {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		if !a.ensurePermissions(w, r, auth.PermViewRoles) {
			return
		}
		role, err := a.rbac.GetRole(r.Context(), id)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, role)
	case http.MethodPut:
		if !a.ensurePermissions(w, r, auth.PermUpdateRole) {
			return
		}
		var req nameRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		role, err := a.rbac.UpdateRole(r.Context(), id, req.Name)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, role)
	case http.MethodDelete:
		if !a.ensurePermissions(w, r, auth.PermDeleteRole) {
			return
		}
		if err := a.rbac.DeleteRole(r.Context(), id); err != nil {
			handleAuthError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

func (a *API) handlePermissionsNotAssigned(w http.ResponseWriter, r *http.Request, roleID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if !a.ensurePermissions(w, r, auth.PermViewPermissions) {
		return
	}
	perms, err := a.rbac.PermissionsNotAssigned(r.Context(), roleID)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, perms)
}

// --- permissions ---

func (a *API) handlePermissions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		if !a.ensurePermissions(w, r, auth.PermCreatePermission) {
			return
		}
		var req nameRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		perm, err := a.rbac.CreatePermission(r.Context(), req.Name)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		w.Header().Set("Location", fmt.Sprintf("/v1/permissions/%s", perm.ID))
		writeJSON(w, http.StatusCreated, perm)
	case http.MethodGet:
		if !a.ensurePermissions(w, r, auth.PermViewPermissions) {
			return
		}
		perms, err := a.rbac.ListPermissions(r.Context())
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, perms)
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodGet)
	}
}

func (a *API) handlePermissionResource(w http.ResponseWriter, r *http.Request) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/permissions/"), "/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		if !a.ensurePermissions(w, r, auth.PermViewPermissions) {
			return
		}
		perm, err := a.rbac.GetPermission(r.Context(), id)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, perm)
	case http.MethodPut:
		if !a.ensurePermissions(w, r, auth.PermUpdatePermission) {
			return
		}
		var req nameRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		perm, err := a.rbac.UpdatePermission(r.Context(), id, req.Name)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, perm)
	case http.MethodDelete:
		if !a.ensurePermissions(w, r, auth.PermDeletePermission) {
			return
		}
		if err := a.rbac.DeletePermission(r.Context(), id); err != nil {
			handleAuthError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

// --- user-role assignments ---

func (a *API) handleUserRoles(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		if !a.ensurePermissions(w, r, auth.PermAssignRoles) {
			return
		}
		var req assignRoleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		assignment, err := a.rbac.AssignRole(r.Context(), req.UserID, req.RoleID)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, assignment)
	case http.MethodGet:
		if !a.ensurePermissions(w, r, auth.PermViewRoles, auth.PermViewUsers) {
			return
		}
		assignments, err := a.rbac.ListAssignments(r.Context())
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, assignments)
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodGet)
	}
}

func (a *API) handleUserRoleResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/user-roles/"), "/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	userID, roleID := parts[0], parts[1]

	switch r.Method {
	case http.MethodGet:
		if !a.ensurePermissions(w, r, auth.PermViewRoles, auth.PermViewUser) {
			return
		}
		assignment, err := a.rbac.GetAssignment(r.Context(), userID, roleID)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, assignment)
	case http.MethodDelete:
		if !a.ensurePermissions(w, r, auth.PermAssignRoles) {
			return
		}
		if err := a.rbac.UnassignRole(r.Context(), userID, roleID); err != nil {
			handleAuthError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodDelete)
	}
}

// --- role-permission assignments ---

func (a *API) handleRolePermissions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		if !a.ensurePermissions(w, r, auth.PermAssignPerms) {
			return
		}
		var req assignPermissionRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		rp, err := a.rbac.AssignPermission(r.Context(), req.RoleID, req.PermissionID)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, rp)
	case http.MethodGet:
		if !a.ensurePermissions(w, r, auth.PermViewPermissions, auth.PermViewRoles) {
			return
		}
		assignments, err := a.rbac.ListRolePermissions(r.Context())
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, assignments)
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodGet)
	}
}

// handleRolePermissionsBulk creates many pairs in one call. Duplicates in
// the request collapse, existing pairs are skipped, and only an all-dupe
// request is a conflict.
func (a *API) handleRolePermissionsBulk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.ensurePermissions(w, r, auth.PermAssignPerms) {
		return
	}
	var req bulkAssignPermissionsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	pairs := make([]auth.RolePermission, 0, len(req.Pairs))
	for _, p := range req.Pairs {
		pairs = append(pairs, auth.RolePermission{RoleID: p.RoleID, PermissionID: p.PermissionID})
	}
	created, err := a.rbac.AssignPermissions(r.Context(), pairs)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (a *API) handleRolePermissionResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/role-permissions/"), "/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	roleID, permissionID := parts[0], parts[1]

	switch r.Method {
	case http.MethodGet:
		if !a.ensurePermissions(w, r, auth.PermViewPermissions, auth.PermViewRoles) {
			return
		}
		rp, err := a.rbac.GetRolePermission(r.Context(), roleID, permissionID)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, rp)
	case http.MethodDelete:
		if !a.ensurePermissions(w, r, auth.PermAssignPerms) {
			return
		}
		if err := a.rbac.UnassignPermission(r.Context(), roleID, permissionID); err != nil {
			handleAuthError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodDelete)
	}
}
