package pg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"guardia.org/internal/auth"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewWithDB(db), mock
}

func userRows(u auth.User) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "first_name", "last_name", "email", "password_hash",
		"active", "refresh_token", "reset_token", "created_at", "updated_at",
	}).AddRow(u.ID, u.FirstName, u.LastName, u.Email, u.PasswordHash,
		u.Active, u.RefreshToken, u.ResetToken, u.CreatedAt, u.UpdatedAt)
}

func TestUserFindByEmail(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	mock.ExpectQuery("select .* from users").
		WithArgs("a@x.com").
		WillReturnRows(userRows(auth.User{
			ID: "u1", FirstName: "Ada", LastName: "L", Email: "a@x.com",
			PasswordHash: "hash", Active: true, CreatedAt: now, UpdatedAt: now,
		}))

	user, err := store.Users(ctx).FindByEmail(ctx, "a@x.com")
	if err != nil {
		t.Fatalf("FindByEmail: %v", err)
	}
	if user.ID != "u1" || user.Email != "a@x.com" {
		t.Fatalf("unexpected user: %+v", user)
	}

	mock.ExpectQuery("select .* from users").
		WithArgs("missing@x.com").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	if _, err := store.Users(ctx).FindByEmail(ctx, "missing@x.com"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("missing email error = %v, want ErrNotFound", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserCreateUniqueViolation(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectQuery("insert into users").
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})

	err := store.Users(ctx).Create(ctx, &auth.User{
		FirstName: "Ada", LastName: "L", Email: "a@x.com", PasswordHash: "hash", Active: true,
	})
	if !errors.Is(err, auth.ErrDuplicate) {
		t.Fatalf("unique violation error = %v, want ErrDuplicate", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSetRefreshToken(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	// a non-empty token is stored as a value, an empty one as NULL
	mock.ExpectExec("update users set refresh_token").
		WithArgs(sqlmock.AnyArg(), "u1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := store.Users(ctx).SetRefreshToken(ctx, "u1", "tok"); err != nil {
		t.Fatalf("SetRefreshToken: %v", err)
	}

	mock.ExpectExec("update users set refresh_token").
		WithArgs(sqlmock.AnyArg(), "missing").
		WillReturnResult(sqlmock.NewResult(0, 0))
	if err := store.Users(ctx).SetRefreshToken(ctx, "missing", "tok"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("missing user error = %v, want ErrNotFound", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRoleAssignConstraintMapping(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectQuery("insert into user_roles").
		WithArgs("u1", "r1").
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})
	if _, err := store.Roles(ctx).Assign(ctx, "u1", "r1"); !errors.Is(err, auth.ErrDuplicate) {
		t.Fatalf("duplicate pair error = %v, want ErrDuplicate", err)
	}

	mock.ExpectQuery("insert into user_roles").
		WithArgs("u1", "missing").
		WillReturnError(&pgconn.PgError{Code: pgErrForeignKeyViolation})
	if _, err := store.Roles(ctx).Assign(ctx, "u1", "missing"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("fk violation error = %v, want ErrNotFound", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestListUsersEnvelope(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectQuery("select count.* from users").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(23))
	now := time.Now().UTC()
	rows := userRows(auth.User{ID: "u1", FirstName: "Ada", LastName: "L", Email: "a@x.com", PasswordHash: "h", Active: true, CreatedAt: now, UpdatedAt: now})
	mock.ExpectQuery("select .* from users").
		WillReturnRows(rows)

	page, err := store.Users(ctx).List(ctx, auth.ListUsersFilter{Page: 2, Limit: 10})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if page.Total != 23 || page.TotalPages != 3 || page.Page != 2 {
		t.Fatalf("envelope = %+v", page)
	}
	if len(page.Data) != 1 {
		t.Fatalf("rows = %d", len(page.Data))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
