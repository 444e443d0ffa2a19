package auth

import (
	"strings"
	"time"
)

// User is an authenticable subject. RefreshToken holds the single
// outstanding session pointer; ResetToken the single outstanding
// password-reset token. Empty string means none.
type User struct {
	ID           string    `json:"id"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Active       bool      `json:"active"`
	RefreshToken string    `json:"-"`
	ResetToken   string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// FullName joins the display name fields.
func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// Role groups permissions. Permissions is populated on eager loads.
type Role struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Permissions []Permission `json:"permissions,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// Permission is a fine-grained capability named by a token such as
// "ver_usuarios".
type Permission struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// UserRole links a user to a role. The pair is unique.
type UserRole struct {
	UserID    string    `json:"user_id"`
	RoleID    string    `json:"role_id"`
	CreatedAt time.Time `json:"created_at"`
}

// RolePermission links a role to a permission. The pair is unique.
type RolePermission struct {
	RoleID       string    `json:"role_id"`
	PermissionID string    `json:"permission_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// TokenPair carries freshly signed session tokens.
type TokenPair struct {
	AccessToken      string    `json:"-"`
	RefreshToken     string    `json:"-"`
	AccessExpiresAt  time.Time `json:"-"`
	RefreshExpiresAt time.Time `json:"-"`
}

// Page is one page of a bulk listing.
type Page[T any] struct {
	Data       []T `json:"data"`
	Total      int `json:"total"`
	Page       int `json:"page"`
	TotalPages int `json:"totalPages"`
}

// UserUpdate describes a partial user mutation. Nil fields are untouched.
// PasswordHash must already be hashed by the caller.
type UserUpdate struct {
	FirstName    *string
	LastName     *string
	Email        *string
	PasswordHash *string
	Active       *bool
}

// ListUsersFilter narrows and paginates user listings. Page is 1-based;
// Limit <= 0 falls back to the store default.
type ListUsersFilter struct {
	Name       string
	ActiveOnly bool
	Page       int
	Limit      int
}
