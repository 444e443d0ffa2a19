package auth

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// RBAC resolves the role/permission graph and exposes the administrative
// operations over it. All traversal goes through the Store so permission
// revocations take effect immediately.
type RBAC struct {
	store Store
}

// NewRBAC constructs the graph service.
func NewRBAC(store Store) (*RBAC, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	return &RBAC{store: store}, nil
}

// EnsureBuiltins creates the builtin roles and permission catalog when
// absent and grants every builtin permission to the admin role. Idempotent.
func (r *RBAC) EnsureBuiltins(ctx context.Context) error {
	if err := r.store.Permissions(ctx).Ensure(ctx, BuiltinPermissions); err != nil {
		return err
	}
	for _, name := range []string{RoleClient, RoleAdmin} {
		if _, err := r.store.Roles(ctx).FindByName(ctx, name); err == nil {
			continue
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}
		role := &Role{Name: name}
		if err := r.store.Roles(ctx).Create(ctx, role); err != nil && !errors.Is(err, ErrDuplicate) {
			return err
		}
	}
	admin, err := r.store.Roles(ctx).FindByName(ctx, RoleAdmin)
	if err != nil {
		return err
	}
	perms, err := r.store.Permissions(ctx).List(ctx)
	if err != nil {
		return err
	}
	for _, p := range perms {
		if _, err := r.store.Permissions(ctx).AssignToRole(ctx, admin.ID, p.ID); err != nil && !errors.Is(err, ErrDuplicate) {
			return err
		}
	}
	return nil
}

// Roles ---------------------------------------------------------------

func (r *RBAC) CreateRole(ctx context.Context, name string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	if _, err := r.store.Roles(ctx).FindByName(ctx, name); err == nil {
		return Role{}, fmt.Errorf("%w: role %q", ErrDuplicate, name)
	} else if !errors.Is(err, ErrNotFound) {
		return Role{}, err
	}
	role := &Role{Name: name}
	if err := r.store.Roles(ctx).Create(ctx, role); err != nil {
		return Role{}, err
	}
	return *role, nil
}

func (r *RBAC) ListRoles(ctx context.Context) ([]Role, error) {
	return r.store.Roles(ctx).List(ctx)
}

func (r *RBAC) GetRole(ctx context.Context, id string) (Role, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Role{}, fmt.Errorf("%w: role id is required", ErrInvalidInput)
	}
	role, err := r.store.Roles(ctx).Find(ctx, id)
	if err != nil {
		return Role{}, err
	}
	return *role, nil
}

func (r *RBAC) UpdateRole(ctx context.Context, id, name string) (Role, error) {
	id = strings.TrimSpace(id)
	name = strings.TrimSpace(name)
	if id == "" || name == "" {
		return Role{}, fmt.Errorf("%w: role id and name are required", ErrInvalidInput)
	}
	role, err := r.store.Roles(ctx).Update(ctx, id, name)
	if err != nil {
		return Role{}, err
	}
	return *role, nil
}

// DeleteRole removes the role; join rows referencing it cascade away.
func (r *RBAC) DeleteRole(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: role id is required", ErrInvalidInput)
	}
	return r.store.Roles(ctx).Delete(ctx, id)
}

// Permissions ---------------------------------------------------------

func (r *RBAC) CreatePermission(ctx context.Context, name string) (Permission, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Permission{}, fmt.Errorf("%w: permission name is required", ErrInvalidInput)
	}
	if _, err := r.store.Permissions(ctx).FindByName(ctx, name); err == nil {
		return Permission{}, fmt.Errorf("%w: permission %q", ErrDuplicate, name)
	} else if !errors.Is(err, ErrNotFound) {
		return Permission{}, err
	}
	perm := &Permission{Name: name}
	if err := r.store.Permissions(ctx).Create(ctx, perm); err != nil {
		return Permission{}, err
	}
	return *perm, nil
}

func (r *RBAC) ListPermissions(ctx context.Context) ([]Permission, error) {
	return r.store.Permissions(ctx).List(ctx)
}

func (r *RBAC) GetPermission(ctx context.Context, id string) (Permission, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Permission{}, fmt.Errorf("%w: permission id is required", ErrInvalidInput)
	}
	perm, err := r.store.Permissions(ctx).Find(ctx, id)
	if err != nil {
		return Permission{}, err
	}
	return *perm, nil
}

func (r *RBAC) UpdatePermission(ctx context.Context, id, name string) (Permission, error) {
	id = strings.TrimSpace(id)
	name = strings.TrimSpace(name)
	if id == "" || name == "" {
		return Permission{}, fmt.Errorf("%w: permission id and name are required", ErrInvalidInput)
	}
	perm, err := r.store.Permissions(ctx).Update(ctx, id, name)
	if err != nil {
		return Permission{}, err
	}
	return *perm, nil
}

// DeletePermission removes the permission; join rows cascade away.
func (r *RBAC) DeletePermission(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: permission id is required", ErrInvalidInput)
	}
	return r.store.Permissions(ctx).Delete(ctx, id)
}

// Graph ---------------------------------------------------------------

// AssignRole creates a user-role pair. A second identical assignment is
// rejected with ErrDuplicate, never merged.
func (r *RBAC) AssignRole(ctx context.Context, userID, roleID string) (UserRole, error) {
	userID = strings.TrimSpace(userID)
	roleID = strings.TrimSpace(roleID)
	if userID == "" || roleID == "" {
		return UserRole{}, fmt.Errorf("%w: user id and role id are required", ErrInvalidInput)
	}
	if _, err := r.store.Users(ctx).Find(ctx, userID); err != nil {
		return UserRole{}, err
	}
	if _, err := r.store.Roles(ctx).Find(ctx, roleID); err != nil {
		return UserRole{}, err
	}
	return r.store.Roles(ctx).Assign(ctx, userID, roleID)
}

func (r *RBAC) UnassignRole(ctx context.Context, userID, roleID string) error {
	userID = strings.TrimSpace(userID)
	roleID = strings.TrimSpace(roleID)
	if userID == "" || roleID == "" {
		return fmt.Errorf("%w: user id and role id are required", ErrInvalidInput)
	}
	return r.store.Roles(ctx).Unassign(ctx, userID, roleID)
}

func (r *RBAC) GetAssignment(ctx context.Context, userID, roleID string) (UserRole, error) {
	userID = strings.TrimSpace(userID)
	roleID = strings.TrimSpace(roleID)
	if userID == "" || roleID == "" {
		return UserRole{}, fmt.Errorf("%w: user id and role id are required", ErrInvalidInput)
	}
	return r.store.Roles(ctx).FindAssignment(ctx, userID, roleID)
}

func (r *RBAC) ListAssignments(ctx context.Context) ([]UserRole, error) {
	return r.store.Roles(ctx).Assignments(ctx)
}

// AssignPermission creates a role-permission pair, ErrDuplicate on repeats.
func (r *RBAC) AssignPermission(ctx context.Context, roleID, permissionID string) (RolePermission, error) {
	roleID = strings.TrimSpace(roleID)
	permissionID = strings.TrimSpace(permissionID)
	if roleID == "" || permissionID == "" {
		return RolePermission{}, fmt.Errorf("%w: role id and permission id are required", ErrInvalidInput)
	}
	if _, err := r.store.Roles(ctx).Find(ctx, roleID); err != nil {
		return RolePermission{}, err
	}
	if _, err := r.store.Permissions(ctx).Find(ctx, permissionID); err != nil {
		return RolePermission{}, err
	}
	return r.store.Permissions(ctx).AssignToRole(ctx, roleID, permissionID)
}

// AssignPermissions bulk-creates role-permission pairs. The request is
// deduplicated, already existing pairs are skipped, and the call fails with
// ErrDuplicate only when nothing new remains.
func (r *RBAC) AssignPermissions(ctx context.Context, pairs []RolePermission) ([]RolePermission, error) {
	if len(pairs) == 0 {
		return nil, fmt.Errorf("%w: at least one role-permission pair is required", ErrInvalidInput)
	}
	seen := make(map[string]struct{}, len(pairs))
	var created []RolePermission
	for _, pair := range pairs {
		roleID := strings.TrimSpace(pair.RoleID)
		permID := strings.TrimSpace(pair.PermissionID)
		if roleID == "" || permID == "" {
			return nil, fmt.Errorf("%w: role id and permission id are required", ErrInvalidInput)
		}
		key := roleID + "\x00" + permID
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		rp, err := r.AssignPermission(ctx, roleID, permID)
		if errors.Is(err, ErrDuplicate) {
			continue
		}
		if err != nil {
			return nil, err
		}
		created = append(created, rp)
	}
	if len(created) == 0 {
		return nil, fmt.Errorf("%w: all role-permission pairs already exist", ErrDuplicate)
	}
	return created, nil
}

func (r *RBAC) UnassignPermission(ctx context.Context, roleID, permissionID string) error {
	roleID = strings.TrimSpace(roleID)
	permissionID = strings.TrimSpace(permissionID)
	if roleID == "" || permissionID == "" {
		return fmt.Errorf("%w: role id and permission id are required", ErrInvalidInput)
	}
	return r.store.Permissions(ctx).RemoveFromRole(ctx, roleID, permissionID)
}

func (r *RBAC) GetRolePermission(ctx context.Context, roleID, permissionID string) (RolePermission, error) {
	roleID = strings.TrimSpace(roleID)
	permissionID = strings.TrimSpace(permissionID)
	if roleID == "" || permissionID == "" {
		return RolePermission{}, fmt.Errorf("%w: role id and permission id are required", ErrInvalidInput)
	}
	return r.store.Permissions(ctx).FindRolePermission(ctx, roleID, permissionID)
}

func (r *RBAC) ListRolePermissions(ctx context.Context) ([]RolePermission, error) {
	return r.store.Permissions(ctx).Assignments(ctx)
}

// RolesOf returns the user's roles with nested permissions resolved.
func (r *RBAC) RolesOf(ctx context.Context, userID string) ([]Role, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	return r.store.Roles(ctx).RolesForUser(ctx, userID)
}

// EffectivePermissions is the deduplicated union of permission names across
// all the user's roles, sorted for stable output.
func (r *RBAC) EffectivePermissions(ctx context.Context, userID string) ([]string, error) {
	roles, err := r.RolesOf(ctx, userID)
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{})
	for _, role := range roles {
		for _, p := range role.Permissions {
			set[p.Name] = struct{}{}
		}
	}
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// PermissionsNotAssigned returns the catalog complement for a role: the
// full set when nothing is assigned, minus exactly the assigned subset
// otherwise.
func (r *RBAC) PermissionsNotAssigned(ctx context.Context, roleID string) ([]Permission, error) {
	roleID = strings.TrimSpace(roleID)
	if roleID == "" {
		return nil, fmt.Errorf("%w: role id is required", ErrInvalidInput)
	}
	if _, err := r.store.Roles(ctx).Find(ctx, roleID); err != nil {
		return nil, err
	}
	return r.store.Permissions(ctx).NotForRole(ctx, roleID)
}

// Resolve loads a principal with roles and effective permissions.
func (r *RBAC) Resolve(ctx context.Context, userID string) (Principal, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Principal{}, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	user, err := r.store.Users(ctx).Find(ctx, userID)
	if err != nil {
		return Principal{}, err
	}
	roles, err := r.store.Roles(ctx).RolesForUser(ctx, userID)
	if err != nil {
		return Principal{}, err
	}
	return NewPrincipal(user, roles), nil
}
