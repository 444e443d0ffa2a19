package auth

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

func newTestRBAC(t *testing.T) (*RBAC, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	rbac, err := NewRBAC(store)
	if err != nil {
		t.Fatalf("NewRBAC: %v", err)
	}
	return rbac, store
}

func TestEnsureBuiltinsIdempotent(t *testing.T) {
	rbac, store := newTestRBAC(t)
	ctx := context.Background()

	if err := rbac.EnsureBuiltins(ctx); err != nil {
		t.Fatalf("EnsureBuiltins: %v", err)
	}
	if err := rbac.EnsureBuiltins(ctx); err != nil {
		t.Fatalf("EnsureBuiltins rerun: %v", err)
	}

	roles, err := store.Roles(ctx).List(ctx)
	if err != nil {
		t.Fatalf("list roles: %v", err)
	}
	if len(roles) != 2 {
		t.Fatalf("expected 2 builtin roles, got %d", len(roles))
	}
	perms, err := store.Permissions(ctx).List(ctx)
	if err != nil {
		t.Fatalf("list permissions: %v", err)
	}
	if len(perms) != len(BuiltinPermissions) {
		t.Fatalf("expected %d permissions, got %d", len(BuiltinPermissions), len(perms))
	}

	admin, err := store.Roles(ctx).FindByName(ctx, RoleAdmin)
	if err != nil {
		t.Fatalf("find admin: %v", err)
	}
	granted, err := store.Permissions(ctx).ForRole(ctx, admin.ID)
	if err != nil {
		t.Fatalf("admin permissions: %v", err)
	}
	if len(granted) != len(BuiltinPermissions) {
		t.Fatalf("admin holds %d of %d permissions", len(granted), len(BuiltinPermissions))
	}
}

func TestEffectivePermissionsUnion(t *testing.T) {
	rbac, store := newTestRBAC(t)
	ctx := context.Background()

	user := seedUser(t, store)
	editors, err := rbac.CreateRole(ctx, "editors")
	if err != nil {
		t.Fatalf("create role: %v", err)
	}
	viewers, err := rbac.CreateRole(ctx, "viewers")
	if err != nil {
		t.Fatalf("create role: %v", err)
	}
	view, err := rbac.CreatePermission(ctx, PermViewUsers)
	if err != nil {
		t.Fatalf("create permission: %v", err)
	}
	update, err := rbac.CreatePermission(ctx, PermUpdateUser)
	if err != nil {
		t.Fatalf("create permission: %v", err)
	}

	// both roles share "ver_usuarios"; the union must deduplicate it
	for _, pair := range []struct{ role, perm string }{
		{editors.ID, view.ID},
		{editors.ID, update.ID},
		{viewers.ID, view.ID},
	} {
		if _, err := rbac.AssignPermission(ctx, pair.role, pair.perm); err != nil {
			t.Fatalf("assign permission: %v", err)
		}
	}
	for _, roleID := range []string{editors.ID, viewers.ID} {
		if _, err := rbac.AssignRole(ctx, user.ID, roleID); err != nil {
			t.Fatalf("assign role: %v", err)
		}
	}

	got, err := rbac.EffectivePermissions(ctx, user.ID)
	if err != nil {
		t.Fatalf("EffectivePermissions: %v", err)
	}
	want := []string{PermUpdateUser, PermViewUsers}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("effective permissions = %v, want %v", got, want)
	}
}

func TestAssignRoleDuplicatePair(t *testing.T) {
	rbac, store := newTestRBAC(t)
	ctx := context.Background()

	user := seedUser(t, store)
	role, err := rbac.CreateRole(ctx, "editors")
	if err != nil {
		t.Fatalf("create role: %v", err)
	}
	if _, err := rbac.AssignRole(ctx, user.ID, role.ID); err != nil {
		t.Fatalf("first assignment: %v", err)
	}
	if _, err := rbac.AssignRole(ctx, user.ID, role.ID); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("duplicate assignment error = %v, want ErrDuplicate", err)
	}
	if _, err := rbac.AssignRole(ctx, user.ID, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("assignment to missing role error = %v, want ErrNotFound", err)
	}
}

func TestAssignPermissionsBulk(t *testing.T) {
	rbac, _ := newTestRBAC(t)
	ctx := context.Background()

	role, err := rbac.CreateRole(ctx, "editors")
	if err != nil {
		t.Fatalf("create role: %v", err)
	}
	view, err := rbac.CreatePermission(ctx, PermViewUsers)
	if err != nil {
		t.Fatalf("create permission: %v", err)
	}
	update, err := rbac.CreatePermission(ctx, PermUpdateUser)
	if err != nil {
		t.Fatalf("create permission: %v", err)
	}

	// request duplicates collapse to one created pair
	created, err := rbac.AssignPermissions(ctx, []RolePermission{
		{RoleID: role.ID, PermissionID: view.ID},
		{RoleID: role.ID, PermissionID: view.ID},
	})
	if err != nil {
		t.Fatalf("bulk assign: %v", err)
	}
	if len(created) != 1 {
		t.Fatalf("created %d pairs, want 1", len(created))
	}

	// existing pairs are skipped, new ones created
	created, err = rbac.AssignPermissions(ctx, []RolePermission{
		{RoleID: role.ID, PermissionID: view.ID},
		{RoleID: role.ID, PermissionID: update.ID},
	})
	if err != nil {
		t.Fatalf("bulk assign with overlap: %v", err)
	}
	if len(created) != 1 || created[0].PermissionID != update.ID {
		t.Fatalf("unexpected created pairs: %+v", created)
	}

	// an all-duplicate request is a conflict
	if _, err := rbac.AssignPermissions(ctx, []RolePermission{
		{RoleID: role.ID, PermissionID: view.ID},
		{RoleID: role.ID, PermissionID: update.ID},
	}); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("all-duplicate bulk error = %v, want ErrDuplicate", err)
	}
}

func TestPermissionsNotAssignedComplement(t *testing.T) {
	rbac, _ := newTestRBAC(t)
	ctx := context.Background()

	role, err := rbac.CreateRole(ctx, "editors")
	if err != nil {
		t.Fatalf("create role: %v", err)
	}
	view, err := rbac.CreatePermission(ctx, PermViewUsers)
	if err != nil {
		t.Fatalf("create permission: %v", err)
	}
	if _, err := rbac.CreatePermission(ctx, PermUpdateUser); err != nil {
		t.Fatalf("create permission: %v", err)
	}

	// nothing assigned: the full catalog comes back
	missing, err := rbac.PermissionsNotAssigned(ctx, role.ID)
	if err != nil {
		t.Fatalf("PermissionsNotAssigned: %v", err)
	}
	if len(missing) != 2 {
		t.Fatalf("complement size = %d, want 2", len(missing))
	}

	if _, err := rbac.AssignPermission(ctx, role.ID, view.ID); err != nil {
		t.Fatalf("assign permission: %v", err)
	}
	missing, err = rbac.PermissionsNotAssigned(ctx, role.ID)
	if err != nil {
		t.Fatalf("PermissionsNotAssigned: %v", err)
	}
	if len(missing) != 1 || missing[0].Name != PermUpdateUser {
		t.Fatalf("unexpected complement: %+v", missing)
	}

	if _, err := rbac.PermissionsNotAssigned(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing role error = %v, want ErrNotFound", err)
	}
}

func TestRoleDeleteCascadesAssignments(t *testing.T) {
	rbac, store := newTestRBAC(t)
	ctx := context.Background()

	user := seedUser(t, store)
	role, err := rbac.CreateRole(ctx, "editors")
	if err != nil {
		t.Fatalf("create role: %v", err)
	}
	perm, err := rbac.CreatePermission(ctx, PermViewUsers)
	if err != nil {
		t.Fatalf("create permission: %v", err)
	}
	if _, err := rbac.AssignRole(ctx, user.ID, role.ID); err != nil {
		t.Fatalf("assign role: %v", err)
	}
	if _, err := rbac.AssignPermission(ctx, role.ID, perm.ID); err != nil {
		t.Fatalf("assign permission: %v", err)
	}

	if err := rbac.DeleteRole(ctx, role.ID); err != nil {
		t.Fatalf("DeleteRole: %v", err)
	}
	assignments, err := rbac.ListAssignments(ctx)
	if err != nil {
		t.Fatalf("ListAssignments: %v", err)
	}
	if len(assignments) != 0 {
		t.Fatalf("user-role rows survived role delete: %+v", assignments)
	}
	rolePerms, err := rbac.ListRolePermissions(ctx)
	if err != nil {
		t.Fatalf("ListRolePermissions: %v", err)
	}
	if len(rolePerms) != 0 {
		t.Fatalf("role-permission rows survived role delete: %+v", rolePerms)
	}
	// the permission itself survives
	if _, err := rbac.GetPermission(ctx, perm.ID); err != nil {
		t.Fatalf("permission removed by role delete: %v", err)
	}
}

func TestResolvePrincipal(t *testing.T) {
	rbac, store := newTestRBAC(t)
	ctx := context.Background()

	user := seedUser(t, store)
	role, err := rbac.CreateRole(ctx, "editors")
	if err != nil {
		t.Fatalf("create role: %v", err)
	}
	perm, err := rbac.CreatePermission(ctx, PermViewUsers)
	if err != nil {
		t.Fatalf("create permission: %v", err)
	}
	if _, err := rbac.AssignPermission(ctx, role.ID, perm.ID); err != nil {
		t.Fatalf("assign permission: %v", err)
	}
	if _, err := rbac.AssignRole(ctx, user.ID, role.ID); err != nil {
		t.Fatalf("assign role: %v", err)
	}

	principal, err := rbac.Resolve(ctx, user.ID)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !principal.HasPermission(PermViewUsers) {
		t.Fatal("resolved principal lacks granted permission")
	}
	if missing := principal.Missing([]string{PermViewUsers, PermDeleteUser}); len(missing) != 1 || missing[0] != PermDeleteUser {
		t.Fatalf("Missing = %v", missing)
	}
}
