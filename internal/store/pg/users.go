package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"guardia.org/internal/auth"
	"guardia.org/internal/ids"
)

type userStore struct {
	db *sql.DB
}

const userColumns = `id, first_name, last_name, email, password_hash, active, refresh_token, reset_token, created_at, updated_at`

func scanUser(row interface{ Scan(dest ...any) error }) (*auth.User, error) {
	var (
		u       auth.User
		refresh sql.NullString
		reset   sql.NullString
	)
	if err := row.Scan(&u.ID, &u.FirstName, &u.LastName, &u.Email, &u.PasswordHash,
		&u.Active, &refresh, &reset, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.RefreshToken = refresh.String
	u.ResetToken = reset.String
	return &u, nil
}

func (s *userStore) Create(ctx context.Context, u *auth.User) error {
	if u.ID == "" {
		u.ID = ids.New()
	}
	row := s.db.QueryRowContext(ctx, `
		insert into users (id, first_name, last_name, email, password_hash, active)
		values ($1, $2, $3, $4, $5, $6)
		returning created_at, updated_at
	`, u.ID, u.FirstName, u.LastName, u.Email, u.PasswordHash, u.Active)
	if err := row.Scan(&u.CreatedAt, &u.UpdatedAt); err != nil {
		return mapConstraintErr(err)
	}
	return nil
}

func (s *userStore) Find(ctx context.Context, id string) (*auth.User, error) {
	return s.findWhere(ctx, `id = $1`, id)
}

func (s *userStore) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	return s.findWhere(ctx, `lower(email) = lower($1)`, email)
}

func (s *userStore) FindByName(ctx context.Context, firstName, lastName string) (*auth.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `
		select `+userColumns+`
		from users
		where lower(first_name) = lower($1) and lower(last_name) = lower($2)
	`, firstName, lastName))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	return u, err
}

func (s *userStore) FindByRefreshToken(ctx context.Context, token string) (*auth.User, error) {
	return s.findWhere(ctx, `refresh_token = $1`, token)
}

func (s *userStore) findWhere(ctx context.Context, where string, arg any) (*auth.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `
		select `+userColumns+`
		from users
		where `+where, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	return u, err
}

func (s *userStore) List(ctx context.Context, filter auth.ListUsersFilter) (auth.Page[auth.User], error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 10
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}

	where := []string{"true"}
	args := []any{}
	if filter.ActiveOnly {
		where = append(where, "active")
	}
	if filter.Name != "" {
		args = append(args, "%"+filter.Name+"%")
		where = append(where, fmt.Sprintf("(first_name || ' ' || last_name) ilike $%d", len(args)))
	}
	cond := strings.Join(where, " and ")

	var total int
	if err := s.db.QueryRowContext(ctx, `select count(*) from users where `+cond, args...).Scan(&total); err != nil {
		return auth.Page[auth.User]{}, err
	}

	args = append(args, limit, (page-1)*limit)
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		select %s
		from users
		where %s
		order by id
		limit $%d offset $%d
	`, userColumns, cond, len(args)-1, len(args)), args...)
	if err != nil {
		return auth.Page[auth.User]{}, err
	}
	defer rows.Close()

	result := auth.Page[auth.User]{
		Data:       []auth.User{},
		Total:      total,
		Page:       page,
		TotalPages: (total + limit - 1) / limit,
	}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return auth.Page[auth.User]{}, err
		}
		result.Data = append(result.Data, *u)
	}
	if err := rows.Err(); err != nil {
		return auth.Page[auth.User]{}, err
	}
	return result, nil
}

func (s *userStore) Update(ctx context.Context, id string, upd auth.UserUpdate) (*auth.User, error) {
	set := []string{"updated_at = now()"}
	args := []any{}
	add := func(col string, val any) {
		args = append(args, val)
		set = append(set, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if upd.FirstName != nil {
		add("first_name", *upd.FirstName)
	}
	if upd.LastName != nil {
		add("last_name", *upd.LastName)
	}
	if upd.Email != nil {
		add("email", *upd.Email)
	}
	if upd.PasswordHash != nil {
		add("password_hash", *upd.PasswordHash)
	}
	if upd.Active != nil {
		add("active", *upd.Active)
	}

	args = append(args, id)
	u, err := scanUser(s.db.QueryRowContext(ctx, fmt.Sprintf(`
		update users
		set %s
		where id = $%d
		returning %s
	`, strings.Join(set, ", "), len(args), userColumns), args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, mapConstraintErr(err)
	}
	return u, nil
}

func (s *userStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from users where id = $1`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *userStore) SetRefreshToken(ctx context.Context, id, token string) error {
	return s.setToken(ctx, "refresh_token", id, token)
}

func (s *userStore) SetResetToken(ctx context.Context, id, token string) error {
	return s.setToken(ctx, "reset_token", id, token)
}

func (s *userStore) setToken(ctx context.Context, column, id, token string) error {
	value := sql.NullString{String: token, Valid: token != ""}
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		update users set %s = $1, updated_at = now() where id = $2
	`, column), value, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return auth.ErrNotFound
	}
	return nil
}
