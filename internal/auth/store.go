package auth

import "context"

// Store describes persistence required by the auth subsystem. Uniqueness of
// emails, role names, permission names and join pairs is enforced by each
// implementation as the authoritative guard; service-level pre-checks exist
// only to produce friendly errors on the fast path.
type Store interface {
	Users(ctx context.Context) UserStore
	Roles(ctx context.Context) RoleStore
	Permissions(ctx context.Context) PermissionStore
}

// UserStore manages principal records.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByName(ctx context.Context, firstName, lastName string) (*User, error)
	FindByRefreshToken(ctx context.Context, token string) (*User, error)
	List(ctx context.Context, filter ListUsersFilter) (Page[User], error)
	Update(ctx context.Context, id string, upd UserUpdate) (*User, error)
	Delete(ctx context.Context, id string) error

	// SetRefreshToken overwrites the stored session pointer; an empty
	// token clears it. Same contract for SetResetToken.
	SetRefreshToken(ctx context.Context, id, token string) error
	SetResetToken(ctx context.Context, id, token string) error
}

// RoleStore manages roles and user-role assignments.
type RoleStore interface {
	Create(ctx context.Context, role *Role) error
	Find(ctx context.Context, id string) (*Role, error)
	FindByName(ctx context.Context, name string) (*Role, error)
	List(ctx context.Context) ([]Role, error)
	Update(ctx context.Context, id, name string) (*Role, error)
	Delete(ctx context.Context, id string) error

	Assign(ctx context.Context, userID, roleID string) (UserRole, error)
	Unassign(ctx context.Context, userID, roleID string) error
	FindAssignment(ctx context.Context, userID, roleID string) (UserRole, error)
	Assignments(ctx context.Context) ([]UserRole, error)

	// RolesForUser returns the user's roles with permissions eagerly
	// resolved, in assignment order.
	RolesForUser(ctx context.Context, userID string) ([]Role, error)
}

// PermissionStore manages the permission catalog and role-permission links.
type PermissionStore interface {
	Create(ctx context.Context, perm *Permission) error
	Ensure(ctx context.Context, perms []Permission) error
	Find(ctx context.Context, id string) (*Permission, error)
	FindByName(ctx context.Context, name string) (*Permission, error)
	List(ctx context.Context) ([]Permission, error)
	Update(ctx context.Context, id, name string) (*Permission, error)
	Delete(ctx context.Context, id string) error

	AssignToRole(ctx context.Context, roleID, permissionID string) (RolePermission, error)
	RemoveFromRole(ctx context.Context, roleID, permissionID string) error
	FindRolePermission(ctx context.Context, roleID, permissionID string) (RolePermission, error)
	Assignments(ctx context.Context) ([]RolePermission, error)

	ForRole(ctx context.Context, roleID string) ([]Permission, error)
	// NotForRole returns the complement: the full catalog minus the
	// permissions assigned to the role.
	NotForRole(ctx context.Context, roleID string) ([]Permission, error)
}
