package auth

// Principal is a user with resolved roles and effective permissions.
type Principal struct {
	User        *User
	Roles       []Role
	Permissions map[string]struct{}
}

// NewPrincipal constructs a principal from a user, its roles and the
// deduplicated union of the roles' permissions.
func NewPrincipal(user *User, roles []Role) Principal {
	set := make(map[string]struct{})
	for _, role := range roles {
		for _, p := range role.Permissions {
			set[p.Name] = struct{}{}
		}
	}
	return Principal{User: user, Roles: roles, Permissions: set}
}

// RoleNames returns the assigned role names in load order.
func (p Principal) RoleNames() []string {
	names := make([]string, 0, len(p.Roles))
	for _, r := range p.Roles {
		names = append(names, r.Name)
	}
	return names
}

// PermissionNames returns the effective permission set as a slice.
func (p Principal) PermissionNames() []string {
	names := make([]string, 0, len(p.Permissions))
	for name := range p.Permissions {
		names = append(names, name)
	}
	return names
}

// HasPermission reports whether the principal holds the named capability.
func (p Principal) HasPermission(name string) bool {
	_, ok := p.Permissions[name]
	return ok
}

// Missing returns the subset of required not held by the principal.
func (p Principal) Missing(required []string) []string {
	var missing []string
	for _, name := range required {
		if !p.HasPermission(name) {
			missing = append(missing, name)
		}
	}
	return missing
}
