package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// UpdateUserInput is the administrative partial update. Password, when
// present, is the plaintext to re-hash.
type UpdateUserInput struct {
	FirstName *string
	LastName  *string
	Email     *string
	Password  *string
	Active    *bool
}

// GetUser loads one principal by id.
func (s *Service) GetUser(ctx context.Context, id string) (*User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	return s.store.Users(ctx).Find(ctx, id)
}

// ListUsers returns one page of principals.
func (s *Service) ListUsers(ctx context.Context, filter ListUsersFilter) (Page[User], error) {
	return s.store.Users(ctx).List(ctx, filter)
}

// UpdateUser applies a partial mutation with the same validation rules as
// registration. A password change is re-hashed before it is stored.
func (s *Service) UpdateUser(ctx context.Context, id string, in UpdateUserInput) (*User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}

	var upd UserUpdate
	if in.FirstName != nil {
		name := strings.TrimSpace(*in.FirstName)
		if len(name) < minNameLength {
			return nil, fmt.Errorf("%w: name must have at least %d characters", ErrInvalidInput, minNameLength)
		}
		upd.FirstName = &name
	}
	if in.LastName != nil {
		name := strings.TrimSpace(*in.LastName)
		upd.LastName = &name
	}
	if in.Email != nil {
		email := normalizeEmail(*in.Email)
		if !emailPattern.MatchString(email) {
			return nil, fmt.Errorf("%w: malformed email", ErrInvalidInput)
		}
		if other, err := s.store.Users(ctx).FindByEmail(ctx, email); err == nil && other.ID != id {
			return nil, fmt.Errorf("%w: email already registered", ErrDuplicate)
		} else if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		upd.Email = &email
	}
	if in.Password != nil {
		if err := validatePassword(*in.Password); err != nil {
			return nil, err
		}
		hash, err := HashPassword(*in.Password)
		if err != nil {
			return nil, err
		}
		upd.PasswordHash = &hash
	}
	if in.Active != nil {
		upd.Active = in.Active
	}

	return s.store.Users(ctx).Update(ctx, id, upd)
}

// DeleteUser removes the principal; role assignments cascade away.
func (s *Service) DeleteUser(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	return s.store.Users(ctx).Delete(ctx, id)
}

// DeactivateUser soft-disables the account and revokes its session, so the
// outstanding refresh token stops verifying immediately.
func (s *Service) DeactivateUser(ctx context.Context, id string) (*User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	inactive := false
	user, err := s.store.Users(ctx).Update(ctx, id, UserUpdate{Active: &inactive})
	if err != nil {
		return nil, err
	}
	if err := s.store.Users(ctx).SetRefreshToken(ctx, id, ""); err != nil {
		return nil, err
	}
	user.RefreshToken = ""
	return user, nil
}
