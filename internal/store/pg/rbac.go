package pg

import (
	"context"
	"database/sql"
	"errors"

	"guardia.org/internal/auth"
	"guardia.org/internal/ids"
)

type roleStore struct {
	db *sql.DB
}

func (s *roleStore) Create(ctx context.Context, role *auth.Role) error {
	if role.ID == "" {
		role.ID = ids.New()
	}
	row := s.db.QueryRowContext(ctx, `
		insert into roles (id, name)
		values ($1, $2)
		returning created_at, updated_at
	`, role.ID, role.Name)
	if err := row.Scan(&role.CreatedAt, &role.UpdatedAt); err != nil {
		return mapConstraintErr(err)
	}
	return nil
}

func (s *roleStore) Find(ctx context.Context, id string) (*auth.Role, error) {
	return s.findWhere(ctx, `id = $1`, id)
}

func (s *roleStore) FindByName(ctx context.Context, name string) (*auth.Role, error) {
	return s.findWhere(ctx, `lower(name) = lower($1)`, name)
}

func (s *roleStore) findWhere(ctx context.Context, where string, arg any) (*auth.Role, error) {
	var role auth.Role
	err := s.db.QueryRowContext(ctx, `
		select id, name, created_at, updated_at
		from roles
		where `+where, arg).Scan(&role.ID, &role.Name, &role.CreatedAt, &role.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &role, nil
}

func (s *roleStore) List(ctx context.Context) ([]auth.Role, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, name, created_at, updated_at
		from roles
		order by id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []auth.Role
	for rows.Next() {
		var role auth.Role
		if err := rows.Scan(&role.ID, &role.Name, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *roleStore) Update(ctx context.Context, id, name string) (*auth.Role, error) {
	var role auth.Role
	err := s.db.QueryRowContext(ctx, `
		update roles
		set name = $1, updated_at = now()
		where id = $2
		returning id, name, created_at, updated_at
	`, name, id).Scan(&role.ID, &role.Name, &role.CreatedAt, &role.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, mapConstraintErr(err)
	}
	return &role, nil
}

func (s *roleStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from roles where id = $1`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *roleStore) Assign(ctx context.Context, userID, roleID string) (auth.UserRole, error) {
	var ur auth.UserRole
	err := s.db.QueryRowContext(ctx, `
		insert into user_roles (user_id, role_id)
		values ($1, $2)
		returning user_id, role_id, created_at
	`, userID, roleID).Scan(&ur.UserID, &ur.RoleID, &ur.CreatedAt)
	if err != nil {
		return auth.UserRole{}, mapConstraintErr(err)
	}
	return ur, nil
}

func (s *roleStore) Unassign(ctx context.Context, userID, roleID string) error {
	res, err := s.db.ExecContext(ctx, `
		delete from user_roles where user_id = $1 and role_id = $2
	`, userID, roleID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *roleStore) FindAssignment(ctx context.Context, userID, roleID string) (auth.UserRole, error) {
	var ur auth.UserRole
	err := s.db.QueryRowContext(ctx, `
		select user_id, role_id, created_at
		from user_roles
		where user_id = $1 and role_id = $2
	`, userID, roleID).Scan(&ur.UserID, &ur.RoleID, &ur.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.UserRole{}, auth.ErrNotFound
	}
	if err != nil {
		return auth.UserRole{}, err
	}
	return ur, nil
}

func (s *roleStore) Assignments(ctx context.Context) ([]auth.UserRole, error) {
	rows, err := s.db.QueryContext(ctx, `
		select user_id, role_id, created_at
		from user_roles
		order by created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []auth.UserRole
	for rows.Next() {
		var ur auth.UserRole
		if err := rows.Scan(&ur.UserID, &ur.RoleID, &ur.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, ur)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// RolesForUser eagerly loads each role's permissions in a second pass.
// Two queries keep the scan logic simple; user role counts are tiny.
func (s *roleStore) RolesForUser(ctx context.Context, userID string) ([]auth.Role, error) {
	rows, err := s.db.QueryContext(ctx, `
		select r.id, r.name, r.created_at, r.updated_at
		from user_roles ur
		join roles r on r.id = ur.role_id
		where ur.user_id = $1
		order by ur.created_at
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []auth.Role
	for rows.Next() {
		var role auth.Role
		if err := rows.Scan(&role.ID, &role.Name, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	perms := &permissionStore{db: s.db}
	for idx := range roles {
		assigned, err := perms.ForRole(ctx, roles[idx].ID)
		if err != nil {
			return nil, err
		}
		roles[idx].Permissions = assigned
	}
	return roles, nil
}

type permissionStore struct {
	db *sql.DB
}

func (s *permissionStore) Create(ctx context.Context, perm *auth.Permission) error {
	if perm.ID == "" {
		perm.ID = ids.New()
	}
	row := s.db.QueryRowContext(ctx, `
		insert into permissions (id, name)
		values ($1, $2)
		returning created_at
	`, perm.ID, perm.Name)
	if err := row.Scan(&perm.CreatedAt); err != nil {
		return mapConstraintErr(err)
	}
	return nil
}

func (s *permissionStore) Ensure(ctx context.Context, perms []auth.Permission) error {
	for _, perm := range perms {
		id := perm.ID
		if id == "" {
			id = ids.New()
		}
		if _, err := s.db.ExecContext(ctx, `
			insert into permissions (id, name)
			values ($1, $2)
			on conflict (name) do nothing
		`, id, perm.Name); err != nil {
			return err
		}
	}
	return nil
}

func (s *permissionStore) Find(ctx context.Context, id string) (*auth.Permission, error) {
	return s.findWhere(ctx, `id = $1`, id)
}

func (s *permissionStore) FindByName(ctx context.Context, name string) (*auth.Permission, error) {
	return s.findWhere(ctx, `lower(name) = lower($1)`, name)
}

func (s *permissionStore) findWhere(ctx context.Context, where string, arg any) (*auth.Permission, error) {
	var perm auth.Permission
	err := s.db.QueryRowContext(ctx, `
		select id, name, created_at
		from permissions
		where `+where, arg).Scan(&perm.ID, &perm.Name, &perm.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &perm, nil
}

func (s *permissionStore) List(ctx context.Context) ([]auth.Permission, error) {
	return s.query(ctx, `
		select id, name, created_at
		from permissions
		order by name
	`)
}

func (s *permissionStore) Update(ctx context.Context, id, name string) (*auth.Permission, error) {
	var perm auth.Permission
	err := s.db.QueryRowContext(ctx, `
		update permissions
		set name = $1
		where id = $2
		returning id, name, created_at
	`, name, id).Scan(&perm.ID, &perm.Name, &perm.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, mapConstraintErr(err)
	}
	return &perm, nil
}

func (s *permissionStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from permissions where id = $1`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *permissionStore) AssignToRole(ctx context.Context, roleID, permissionID string) (auth.RolePermission, error) {
	var rp auth.RolePermission
	err := s.db.QueryRowContext(ctx, `
		insert into role_permissions (role_id, permission_id)
		values ($1, $2)
		returning role_id, permission_id, created_at
	`, roleID, permissionID).Scan(&rp.RoleID, &rp.PermissionID, &rp.CreatedAt)
	if err != nil {
		return auth.RolePermission{}, mapConstraintErr(err)
	}
	return rp, nil
}

func (s *permissionStore) RemoveFromRole(ctx context.Context, roleID, permissionID string) error {
	res, err := s.db.ExecContext(ctx, `
		delete from role_permissions where role_id = $1 and permission_id = $2
	`, roleID, permissionID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *permissionStore) FindRolePermission(ctx context.Context, roleID, permissionID string) (auth.RolePermission, error) {
	var rp auth.RolePermission
	err := s.db.QueryRowContext(ctx, `
		select role_id, permission_id, created_at
		from role_permissions
		where role_id = $1 and permission_id = $2
	`, roleID, permissionID).Scan(&rp.RoleID, &rp.PermissionID, &rp.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.RolePermission{}, auth.ErrNotFound
	}
	if err != nil {
		return auth.RolePermission{}, err
	}
	return rp, nil
}

func (s *permissionStore) Assignments(ctx context.Context) ([]auth.RolePermission, error) {
	rows, err := s.db.QueryContext(ctx, `
		select role_id, permission_id, created_at
		from role_permissions
		order by created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []auth.RolePermission
	for rows.Next() {
		var rp auth.RolePermission
		if err := rows.Scan(&rp.RoleID, &rp.PermissionID, &rp.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, rp)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *permissionStore) ForRole(ctx context.Context, roleID string) ([]auth.Permission, error) {
	return s.query(ctx, `
		select p.id, p.name, p.created_at
		from role_permissions rp
		join permissions p on p.id = rp.permission_id
		where rp.role_id = $1
		order by rp.created_at
	`, roleID)
}

func (s *permissionStore) NotForRole(ctx context.Context, roleID string) ([]auth.Permission, error) {
	return s.query(ctx, `
		select p.id, p.name, p.created_at
		from permissions p
		where not exists (
			select 1 from role_permissions rp
			where rp.role_id = $1 and rp.permission_id = p.id
		)
		order by p.name
	`, roleID)
}

func (s *permissionStore) query(ctx context.Context, q string, args ...any) ([]auth.Permission, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []auth.Permission
	for rows.Next() {
		var perm auth.Permission
		if err := rows.Scan(&perm.ID, &perm.Name, &perm.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, perm)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
