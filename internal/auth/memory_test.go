package auth

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestMemoryUserUniqueness(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	base := &User{FirstName: "Ada", LastName: "Lovelace", Email: "a@x.com", PasswordHash: "x", Active: true}
	if err := store.Users(ctx).Create(ctx, base); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Users(ctx).Create(ctx, &User{FirstName: "Other", LastName: "Name", Email: "A@X.COM", PasswordHash: "x"}); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("case-folded email duplicate error = %v", err)
	}
	if err := store.Users(ctx).Create(ctx, &User{FirstName: "ada", LastName: "LOVELACE", Email: "b@x.com", PasswordHash: "x"}); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("case-folded display name duplicate error = %v", err)
	}

	second := &User{FirstName: "Grace", LastName: "Hopper", Email: "g@x.com", PasswordHash: "x", Active: true}
	if err := store.Users(ctx).Create(ctx, second); err != nil {
		t.Fatalf("create second: %v", err)
	}
	email := "a@x.com"
	if _, err := store.Users(ctx).Update(ctx, second.ID, UserUpdate{Email: &email}); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("update onto taken email error = %v", err)
	}
}

func TestMemoryListPagination(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		u := &User{
			FirstName:    fmt.Sprintf("User%02d", i),
			LastName:     fmt.Sprintf("Last%02d", i),
			Email:        fmt.Sprintf("u%02d@x.com", i),
			PasswordHash: "x",
			Active:       i%2 == 0,
		}
		if err := store.Users(ctx).Create(ctx, u); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}

	page, err := store.Users(ctx).List(ctx, ListUsersFilter{Page: 2, Limit: 10})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if page.Total != 25 || page.TotalPages != 3 || page.Page != 2 {
		t.Fatalf("envelope = total %d pages %d page %d", page.Total, page.TotalPages, page.Page)
	}
	if len(page.Data) != 10 {
		t.Fatalf("page size = %d, want 10", len(page.Data))
	}

	last, err := store.Users(ctx).List(ctx, ListUsersFilter{Page: 3, Limit: 10})
	if err != nil {
		t.Fatalf("List last page: %v", err)
	}
	if len(last.Data) != 5 {
		t.Fatalf("last page size = %d, want 5", len(last.Data))
	}

	beyond, err := store.Users(ctx).List(ctx, ListUsersFilter{Page: 9, Limit: 10})
	if err != nil {
		t.Fatalf("List beyond range: %v", err)
	}
	if len(beyond.Data) != 0 || beyond.Total != 25 {
		t.Fatalf("out-of-range page: %+v", beyond)
	}

	active, err := store.Users(ctx).List(ctx, ListUsersFilter{ActiveOnly: true, Limit: 100})
	if err != nil {
		t.Fatalf("List active: %v", err)
	}
	if active.Total != 13 {
		t.Fatalf("active total = %d, want 13", active.Total)
	}

	named, err := store.Users(ctx).List(ctx, ListUsersFilter{Name: "user07", Limit: 100})
	if err != nil {
		t.Fatalf("List by name: %v", err)
	}
	if named.Total != 1 || named.Data[0].Email != "u07@x.com" {
		t.Fatalf("name filter result: %+v", named)
	}
}

func TestMemoryUserDeleteCascades(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	user := &User{FirstName: "Ada", LastName: "L", Email: "a@x.com", PasswordHash: "x", Active: true}
	if err := store.Users(ctx).Create(ctx, user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	role := &Role{Name: "editors"}
	if err := store.Roles(ctx).Create(ctx, role); err != nil {
		t.Fatalf("create role: %v", err)
	}
	if _, err := store.Roles(ctx).Assign(ctx, user.ID, role.ID); err != nil {
		t.Fatalf("assign: %v", err)
	}

	if err := store.Users(ctx).Delete(ctx, user.ID); err != nil {
		t.Fatalf("delete user: %v", err)
	}
	assignments, err := store.Roles(ctx).Assignments(ctx)
	if err != nil {
		t.Fatalf("assignments: %v", err)
	}
	if len(assignments) != 0 {
		t.Fatalf("assignments survived user delete: %+v", assignments)
	}
	if err := store.Users(ctx).Delete(ctx, user.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete error = %v, want ErrNotFound", err)
	}
}

func TestMemoryFindByRefreshToken(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	user := &User{FirstName: "Ada", LastName: "L", Email: "a@x.com", PasswordHash: "x", Active: true}
	if err := store.Users(ctx).Create(ctx, user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if _, err := store.Users(ctx).FindByRefreshToken(ctx, ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("empty token lookup error = %v, want ErrNotFound", err)
	}
	if err := store.Users(ctx).SetRefreshToken(ctx, user.ID, "tok-1"); err != nil {
		t.Fatalf("set refresh token: %v", err)
	}
	found, err := store.Users(ctx).FindByRefreshToken(ctx, "tok-1")
	if err != nil {
		t.Fatalf("find by refresh token: %v", err)
	}
	if found.ID != user.ID {
		t.Fatalf("found wrong user: %s", found.ID)
	}
}
