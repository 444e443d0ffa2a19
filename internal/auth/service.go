package auth

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	minNameLength     = 3
	minPasswordLength = 6
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ResetMailer dispatches password-reset links. Implementations are
// fire-and-forget; a send failure never rolls back stored state.
type ResetMailer interface {
	SendPasswordReset(ctx context.Context, recipient, link string) error
}

// RegisterInput carries the fields of a registration request.
type RegisterInput struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
}

// Service implements the authentication flows on top of the store, the
// token issuer and the RBAC graph.
type Service struct {
	store  Store
	issuer *Issuer
	rbac   *RBAC

	mailer       ResetMailer
	resetLinkURL string
	now          func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service) error

// WithResetMailer wires the notification sink and the base URL embedded in
// reset links.
func WithResetMailer(m ResetMailer, linkURL string) ServiceOption {
	return func(s *Service) error {
		s.mailer = m
		s.resetLinkURL = strings.TrimSpace(linkURL)
		return nil
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// NewService constructs the flow service.
func NewService(store Store, issuer *Issuer, rbac *RBAC, opts ...ServiceOption) (*Service, error) {
	if store == nil || issuer == nil || rbac == nil {
		return nil, errors.New("auth: store, issuer and rbac are required")
	}
	svc := &Service{store: store, issuer: issuer, rbac: rbac, now: time.Now}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	return svc, nil
}

// Register validates the input, creates the principal with the default
// client role assigned, and issues a session token pair.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*User, TokenPair, error) {
	user, err := s.createUser(ctx, in)
	if err != nil {
		return nil, TokenPair{}, err
	}
	if err := s.assignRoleByName(ctx, user.ID, RoleClient); err != nil {
		return nil, TokenPair{}, err
	}
	principal, err := s.rbac.Resolve(ctx, user.ID)
	if err != nil {
		return nil, TokenPair{}, err
	}
	pair, err := s.issuer.Issue(ctx, user, principal.RoleNames(), sortedNames(principal.Permissions))
	if err != nil {
		return nil, TokenPair{}, err
	}
	return user, pair, nil
}

// RegisterByAdmin creates a non-self account on behalf of an administrative
// caller. Only the single elevated role name "admin" is accepted; no tokens
// are issued for this path.
func (s *Service) RegisterByAdmin(ctx context.Context, in RegisterInput, roleName string) (*User, error) {
	if strings.TrimSpace(roleName) != RoleAdmin {
		return nil, fmt.Errorf("%w: unsupported role %q", ErrInvalidInput, roleName)
	}
	user, err := s.createUser(ctx, in)
	if err != nil {
		return nil, err
	}
	if err := s.assignRoleByName(ctx, user.ID, RoleAdmin); err != nil {
		return nil, err
	}
	return user, nil
}

// Login authenticates by identity and secret and issues a fresh pair,
// overwriting any previous session. Absent, inactive and wrong-secret all
// collapse into ErrUnauthenticated.
func (s *Service) Login(ctx context.Context, email, password string) (*User, TokenPair, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, TokenPair{}, ErrUnauthenticated
	}
	user, err := s.store.Users(ctx).FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, TokenPair{}, ErrUnauthenticated
		}
		return nil, TokenPair{}, err
	}
	if !user.Active {
		return nil, TokenPair{}, ErrUnauthenticated
	}
	if !VerifyPassword(user.PasswordHash, password) {
		return nil, TokenPair{}, ErrUnauthenticated
	}
	principal, err := s.rbac.Resolve(ctx, user.ID)
	if err != nil {
		return nil, TokenPair{}, err
	}
	pair, err := s.issuer.Issue(ctx, user, principal.RoleNames(), sortedNames(principal.Permissions))
	if err != nil {
		return nil, TokenPair{}, err
	}
	return user, pair, nil
}

// Refresh mints a new access token from the session's refresh token.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, time.Time, error) {
	return s.issuer.Rotate(ctx, refreshToken)
}

// Logout clears the stored refresh token when the presented one resolves to
// a principal. A token that resolves to nothing is not an error: the caller
// clears its cookies either way.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return nil
	}
	user, err := s.store.Users(ctx).FindByRefreshToken(ctx, refreshToken)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return s.store.Users(ctx).SetRefreshToken(ctx, user.ID, "")
}

// RequestPasswordReset persists a short-lived reset token on the active
// principal and dispatches the reset link. The token stays persisted even
// when the dispatch fails; the failure is reported as ErrDownstream.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if email == "" {
		return fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	user, err := s.store.Users(ctx).FindByEmail(ctx, email)
	if err != nil {
		return err
	}
	if !user.Active {
		return ErrNotFound
	}
	token, _, err := s.issuer.IssueReset(ctx, user)
	if err != nil {
		return err
	}
	if s.mailer == nil {
		return nil
	}
	link := s.resetLinkURL + "?token=" + token
	if err := s.mailer.SendPasswordReset(ctx, user.Email, link); err != nil {
		return fmt.Errorf("%w: reset mail dispatch: %v", ErrDownstream, err)
	}
	return nil
}

// ResetPassword completes a reset: the token must verify and match the
// stored single-use value, the new secret is rehashed and stored, and the
// stored token is cleared so a replay fails.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if err := validatePassword(newPassword); err != nil {
		return err
	}
	user, err := s.issuer.VerifyReset(ctx, token)
	if err != nil {
		return err
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	if _, err := s.store.Users(ctx).Update(ctx, user.ID, UserUpdate{PasswordHash: &hash}); err != nil {
		return err
	}
	return s.store.Users(ctx).SetResetToken(ctx, user.ID, "")
}

// ExternalLogin signs in a principal whose identity was already verified by
// a third-party provider. Missing principals are created with a random
// unusable placeholder secret; the default role assignment is idempotent.
func (s *Service) ExternalLogin(ctx context.Context, email, firstName, lastName string) (*User, TokenPair, error) {
	email = normalizeEmail(email)
	if !emailPattern.MatchString(email) {
		return nil, TokenPair{}, fmt.Errorf("%w: malformed email", ErrInvalidInput)
	}
	user, err := s.store.Users(ctx).FindByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		hash, hashErr := HashPassword(uuid.NewString())
		if hashErr != nil {
			return nil, TokenPair{}, hashErr
		}
		user = &User{
			FirstName:    strings.TrimSpace(firstName),
			LastName:     strings.TrimSpace(lastName),
			Email:        email,
			PasswordHash: hash,
			Active:       true,
		}
		if createErr := s.store.Users(ctx).Create(ctx, user); createErr != nil {
			return nil, TokenPair{}, createErr
		}
	} else if err != nil {
		return nil, TokenPair{}, err
	}
	if !user.Active {
		return nil, TokenPair{}, ErrUnauthenticated
	}
	if err := s.assignRoleByName(ctx, user.ID, RoleClient); err != nil && !errors.Is(err, ErrDuplicate) {
		return nil, TokenPair{}, err
	}
	principal, err := s.rbac.Resolve(ctx, user.ID)
	if err != nil {
		return nil, TokenPair{}, err
	}
	pair, err := s.issuer.Issue(ctx, user, principal.RoleNames(), sortedNames(principal.Permissions))
	if err != nil {
		return nil, TokenPair{}, err
	}
	return user, pair, nil
}

// createUser runs the shared validation and persistence of a registration.
// The pre-checks produce friendly duplicate errors; the store's unique
// constraints remain the authoritative guard.
func (s *Service) createUser(ctx context.Context, in RegisterInput) (*User, error) {
	firstName := strings.TrimSpace(in.FirstName)
	lastName := strings.TrimSpace(in.LastName)
	email := normalizeEmail(in.Email)

	if len(firstName) < minNameLength {
		return nil, fmt.Errorf("%w: name must have at least %d characters", ErrInvalidInput, minNameLength)
	}
	if !emailPattern.MatchString(email) {
		return nil, fmt.Errorf("%w: malformed email", ErrInvalidInput)
	}
	if err := validatePassword(in.Password); err != nil {
		return nil, err
	}

	if _, err := s.store.Users(ctx).FindByName(ctx, firstName, lastName); err == nil {
		return nil, fmt.Errorf("%w: display name already in use", ErrDuplicate)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if _, err := s.store.Users(ctx).FindByEmail(ctx, email); err == nil {
		return nil, fmt.Errorf("%w: email already registered", ErrDuplicate)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	user := &User{
		FirstName:    firstName,
		LastName:     lastName,
		Email:        email,
		PasswordHash: hash,
		Active:       true,
	}
	if err := s.store.Users(ctx).Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *Service) assignRoleByName(ctx context.Context, userID, roleName string) error {
	role, err := s.store.Roles(ctx).FindByName(ctx, roleName)
	if errors.Is(err, ErrNotFound) {
		role = &Role{Name: roleName}
		if createErr := s.store.Roles(ctx).Create(ctx, role); createErr != nil && !errors.Is(createErr, ErrDuplicate) {
			return createErr
		}
		if role.ID == "" {
			if role, err = s.store.Roles(ctx).FindByName(ctx, roleName); err != nil {
				return err
			}
		}
	} else if err != nil {
		return err
	}
	_, err = s.store.Roles(ctx).Assign(ctx, userID, role.ID)
	return err
}

func validatePassword(password string) error {
	if strings.TrimSpace(password) == "" || len(password) < minPasswordLength {
		return fmt.Errorf("%w: password must have at least %d characters", ErrInvalidInput, minPasswordLength)
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func sortedNames(set map[string]struct{}) []string {
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	// deterministic claim order keeps signed payloads reproducible
	sort.Strings(names)
	return names
}
