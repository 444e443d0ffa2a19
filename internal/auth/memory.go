package auth

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"guardia.org/internal/ids"
)

const defaultPageLimit = 10

// MemoryStore is an in-process Store used by tests and by the dev server
// when no database DSN is configured. It enforces the same uniqueness and
// cascade rules as the Postgres schema.
type MemoryStore struct {
	mu        sync.RWMutex
	users     map[string]*User
	roles     map[string]*Role
	perms     map[string]*Permission
	userRoles []UserRole
	rolePerms []RolePermission
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users: make(map[string]*User),
		roles: make(map[string]*Role),
		perms: make(map[string]*Permission),
	}
}

func (m *MemoryStore) Users(context.Context) UserStore       { return (*memUserStore)(m) }
func (m *MemoryStore) Roles(context.Context) RoleStore       { return (*memRoleStore)(m) }
func (m *MemoryStore) Permissions(context.Context) PermissionStore { return (*memPermStore)(m) }

// User store ---------------------------------------------------------------

type memUserStore MemoryStore

func (s *memUserStore) Create(_ context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return ErrDuplicate
		}
		if strings.EqualFold(existing.FirstName, u.FirstName) && strings.EqualFold(existing.LastName, u.LastName) {
			return ErrDuplicate
		}
	}
	if u.ID == "" {
		u.ID = ids.New()
	}
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *memUserStore) Find(_ context.Context, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *memUserStore) FindByEmail(_ context.Context, email string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memUserStore) FindByName(_ context.Context, firstName, lastName string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if strings.EqualFold(u.FirstName, firstName) && strings.EqualFold(u.LastName, lastName) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memUserStore) FindByRefreshToken(_ context.Context, token string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.RefreshToken != "" && u.RefreshToken == token {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memUserStore) List(_ context.Context, filter ListUsersFilter) (Page[User], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []User
	for _, u := range s.users {
		if filter.ActiveOnly && !u.Active {
			continue
		}
		if filter.Name != "" && !strings.Contains(strings.ToLower(u.FullName()), strings.ToLower(filter.Name)) {
			continue
		}
		matched = append(matched, *u)
	}
	// ULIDs sort by creation time, so id order is creation order.
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })

	return paginate(matched, filter.Page, filter.Limit), nil
}

func (s *memUserStore) Update(_ context.Context, id string, upd UserUpdate) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	if upd.Email != nil {
		for otherID, other := range s.users {
			if otherID != id && strings.EqualFold(other.Email, *upd.Email) {
				return nil, ErrDuplicate
			}
		}
		u.Email = *upd.Email
	}
	if upd.FirstName != nil {
		u.FirstName = *upd.FirstName
	}
	if upd.LastName != nil {
		u.LastName = *upd.LastName
	}
	if upd.PasswordHash != nil {
		u.PasswordHash = *upd.PasswordHash
	}
	if upd.Active != nil {
		u.Active = *upd.Active
	}
	u.UpdatedAt = time.Now().UTC()
	cp := *u
	return &cp, nil
}

func (s *memUserStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return ErrNotFound
	}
	delete(s.users, id)
	s.userRoles = filterUserRoles(s.userRoles, func(ur UserRole) bool { return ur.UserID != id })
	return nil
}

func (s *memUserStore) SetRefreshToken(_ context.Context, id, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return ErrNotFound
	}
	u.RefreshToken = token
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *memUserStore) SetResetToken(_ context.Context, id, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return ErrNotFound
	}
	u.ResetToken = token
	u.UpdatedAt = time.Now().UTC()
	return nil
}

// Role store ---------------------------------------------------------------

type memRoleStore MemoryStore

func (s *memRoleStore) Create(_ context.Context, role *Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.roles {
		if strings.EqualFold(existing.Name, role.Name) {
			return ErrDuplicate
		}
	}
	if role.ID == "" {
		role.ID = ids.New()
	}
	now := time.Now().UTC()
	role.CreatedAt = now
	role.UpdatedAt = now
	cp := *role
	cp.Permissions = nil
	s.roles[role.ID] = &cp
	return nil
}

func (s *memRoleStore) Find(_ context.Context, id string) (*Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	role, ok := s.roles[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *role
	return &cp, nil
}

func (s *memRoleStore) FindByName(_ context.Context, name string) (*Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, role := range s.roles {
		if strings.EqualFold(role.Name, name) {
			cp := *role
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memRoleStore) List(_ context.Context) ([]Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Role, 0, len(s.roles))
	for _, role := range s.roles {
		out = append(out, *role)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memRoleStore) Update(_ context.Context, id, name string) (*Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	role, ok := s.roles[id]
	if !ok {
		return nil, ErrNotFound
	}
	for otherID, other := range s.roles {
		if otherID != id && strings.EqualFold(other.Name, name) {
			return nil, ErrDuplicate
		}
	}
	role.Name = name
	role.UpdatedAt = time.Now().UTC()
	cp := *role
	return &cp, nil
}

func (s *memRoleStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[id]; !ok {
		return ErrNotFound
	}
	delete(s.roles, id)
	s.userRoles = filterUserRoles(s.userRoles, func(ur UserRole) bool { return ur.RoleID != id })
	s.rolePerms = filterRolePerms(s.rolePerms, func(rp RolePermission) bool { return rp.RoleID != id })
	return nil
}

func (s *memRoleStore) Assign(_ context.Context, userID, roleID string) (UserRole, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ur := range s.userRoles {
		if ur.UserID == userID && ur.RoleID == roleID {
			return UserRole{}, ErrDuplicate
		}
	}
	ur := UserRole{UserID: userID, RoleID: roleID, CreatedAt: time.Now().UTC()}
	s.userRoles = append(s.userRoles, ur)
	return ur, nil
}

func (s *memRoleStore) Unassign(_ context.Context, userID, roleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	before := len(s.userRoles)
	s.userRoles = filterUserRoles(s.userRoles, func(ur UserRole) bool {
		return !(ur.UserID == userID && ur.RoleID == roleID)
	})
	if len(s.userRoles) == before {
		return ErrNotFound
	}
	return nil
}

func (s *memRoleStore) FindAssignment(_ context.Context, userID, roleID string) (UserRole, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ur := range s.userRoles {
		if ur.UserID == userID && ur.RoleID == roleID {
			return ur, nil
		}
	}
	return UserRole{}, ErrNotFound
}

func (s *memRoleStore) Assignments(_ context.Context) ([]UserRole, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]UserRole, len(s.userRoles))
	copy(out, s.userRoles)
	return out, nil
}

func (s *memRoleStore) RolesForUser(_ context.Context, userID string) ([]Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Role
	for _, ur := range s.userRoles {
		if ur.UserID != userID {
			continue
		}
		role, ok := s.roles[ur.RoleID]
		if !ok {
			continue
		}
		cp := *role
		cp.Permissions = (*memPermStore)(s).permsForRoleLocked(ur.RoleID)
		out = append(out, cp)
	}
	return out, nil
}

// Permission store ----------------------------------------------------------

type memPermStore MemoryStore

func (s *memPermStore) Create(_ context.Context, perm *Permission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLocked(perm)
}

func (s *memPermStore) createLocked(perm *Permission) error {
	for _, existing := range s.perms {
		if strings.EqualFold(existing.Name, perm.Name) {
			return ErrDuplicate
		}
	}
	if perm.ID == "" {
		perm.ID = ids.New()
	}
	perm.CreatedAt = time.Now().UTC()
	cp := *perm
	s.perms[perm.ID] = &cp
	return nil
}

func (s *memPermStore) Ensure(_ context.Context, perms []Permission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, perm := range perms {
		p := perm
		if err := s.createLocked(&p); err != nil && err != ErrDuplicate {
			return err
		}
	}
	return nil
}

func (s *memPermStore) Find(_ context.Context, id string) (*Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	perm, ok := s.perms[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *perm
	return &cp, nil
}

func (s *memPermStore) FindByName(_ context.Context, name string) (*Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, perm := range s.perms {
		if strings.EqualFold(perm.Name, name) {
			cp := *perm
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memPermStore) List(_ context.Context) ([]Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Permission, 0, len(s.perms))
	for _, perm := range s.perms {
		out = append(out, *perm)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *memPermStore) Update(_ context.Context, id, name string) (*Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	perm, ok := s.perms[id]
	if !ok {
		return nil, ErrNotFound
	}
	for otherID, other := range s.perms {
		if otherID != id && strings.EqualFold(other.Name, name) {
			return nil, ErrDuplicate
		}
	}
	perm.Name = name
	cp := *perm
	return &cp, nil
}

func (s *memPermStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.perms[id]; !ok {
		return ErrNotFound
	}
	delete(s.perms, id)
	s.rolePerms = filterRolePerms(s.rolePerms, func(rp RolePermission) bool { return rp.PermissionID != id })
	return nil
}

func (s *memPermStore) AssignToRole(_ context.Context, roleID, permissionID string) (RolePermission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rp := range s.rolePerms {
		if rp.RoleID == roleID && rp.PermissionID == permissionID {
			return RolePermission{}, ErrDuplicate
		}
	}
	rp := RolePermission{RoleID: roleID, PermissionID: permissionID, CreatedAt: time.Now().UTC()}
	s.rolePerms = append(s.rolePerms, rp)
	return rp, nil
}

func (s *memPermStore) RemoveFromRole(_ context.Context, roleID, permissionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	before := len(s.rolePerms)
	s.rolePerms = filterRolePerms(s.rolePerms, func(rp RolePermission) bool {
		return !(rp.RoleID == roleID && rp.PermissionID == permissionID)
	})
	if len(s.rolePerms) == before {
		return ErrNotFound
	}
	return nil
}

func (s *memPermStore) FindRolePermission(_ context.Context, roleID, permissionID string) (RolePermission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rp := range s.rolePerms {
		if rp.RoleID == roleID && rp.PermissionID == permissionID {
			return rp, nil
		}
	}
	return RolePermission{}, ErrNotFound
}

func (s *memPermStore) Assignments(_ context.Context) ([]RolePermission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]RolePermission, len(s.rolePerms))
	copy(out, s.rolePerms)
	return out, nil
}

func (s *memPermStore) ForRole(_ context.Context, roleID string) ([]Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.permsForRoleLocked(roleID), nil
}

func (s *memPermStore) NotForRole(_ context.Context, roleID string) ([]Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	assigned := make(map[string]struct{})
	for _, rp := range s.rolePerms {
		if rp.RoleID == roleID {
			assigned[rp.PermissionID] = struct{}{}
		}
	}
	var out []Permission
	for _, perm := range s.perms {
		if _, ok := assigned[perm.ID]; !ok {
			out = append(out, *perm)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *memPermStore) permsForRoleLocked(roleID string) []Permission {
	var out []Permission
	for _, rp := range s.rolePerms {
		if rp.RoleID != roleID {
			continue
		}
		if perm, ok := s.perms[rp.PermissionID]; ok {
			out = append(out, *perm)
		}
	}
	return out
}

// helpers -------------------------------------------------------------------

func paginate[T any](all []T, page, limit int) Page[T] {
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if page <= 0 {
		page = 1
	}
	total := len(all)
	totalPages := (total + limit - 1) / limit
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	data := make([]T, end-start)
	copy(data, all[start:end])
	return Page[T]{Data: data, Total: total, Page: page, TotalPages: totalPages}
}

func filterUserRoles(in []UserRole, keep func(UserRole) bool) []UserRole {
	out := in[:0]
	for _, ur := range in {
		if keep(ur) {
			out = append(out, ur)
		}
	}
	return out
}

func filterRolePerms(in []RolePermission, keep func(RolePermission) bool) []RolePermission {
	out := in[:0]
	for _, rp := range in {
		if keep(rp) {
			out = append(out, rp)
		}
	}
	return out
}
