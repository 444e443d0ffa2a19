package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Session token lifetimes. Access tokens are short-lived and verified
// offline; refresh tokens live long and are cross-checked against the
// stored per-user value; reset tokens are single-use and short.
const (
	DefaultAccessTTL  = time.Hour
	DefaultRefreshTTL = 7 * 24 * time.Hour
	DefaultResetTTL   = 15 * time.Minute

	defaultIssuerName = "guardia"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
	tokenTypeReset   = "reset"
)

// Claims is the fixed-shape token payload: principal id, identity, role
// names and resolved permission names, plus the registered claims.
type Claims struct {
	UserID      string   `json:"id"`
	Email       string   `json:"email"`
	Roles       []string `json:"rol,omitempty"`
	Permissions []string `json:"permisos,omitempty"`
	TokenType   string   `json:"token_type"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies session tokens. The signing secret is
// immutable after construction.
type Issuer struct {
	store      Store
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	resetTTL   time.Duration
	now        func() time.Time
}

// IssuerOption configures an Issuer.
type IssuerOption func(*Issuer) error

// WithIssuerName overrides the iss claim.
func WithIssuerName(name string) IssuerOption {
	return func(i *Issuer) error {
		if strings.TrimSpace(name) != "" {
			i.issuer = strings.TrimSpace(name)
		}
		return nil
	}
}

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) IssuerOption {
	return func(i *Issuer) error {
		if ttl > 0 {
			i.accessTTL = ttl
		}
		return nil
	}
}

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) IssuerOption {
	return func(i *Issuer) error {
		if ttl > 0 {
			i.refreshTTL = ttl
		}
		return nil
	}
}

// WithResetTTL configures password-reset token lifetime.
func WithResetTTL(ttl time.Duration) IssuerOption {
	return func(i *Issuer) error {
		if ttl > 0 {
			i.resetTTL = ttl
		}
		return nil
	}
}

// WithTokenClock overrides the time source (useful for tests).
func WithTokenClock(fn func() time.Time) IssuerOption {
	return func(i *Issuer) error {
		if fn != nil {
			i.now = fn
		}
		return nil
	}
}

// NewIssuer constructs an Issuer signing with the given secret.
func NewIssuer(store Store, secret string, opts ...IssuerOption) (*Issuer, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: signing secret is required")
	}
	iss := &Issuer{
		store:      store,
		secret:     []byte(secret),
		issuer:     defaultIssuerName,
		accessTTL:  DefaultAccessTTL,
		refreshTTL: DefaultRefreshTTL,
		resetTTL:   DefaultResetTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		if err := opt(iss); err != nil {
			return nil, err
		}
	}
	return iss, nil
}

// Issue signs a fresh access/refresh pair for the user and overwrites the
// stored refresh token. The stored value is the sole session pointer, so
// any previously issued refresh token stops verifying.
func (i *Issuer) Issue(ctx context.Context, user *User, roles, permissions []string) (TokenPair, error) {
	now := i.now().UTC()

	accessExp := now.Add(i.accessTTL)
	access, err := i.sign(user, roles, permissions, tokenTypeAccess, now, accessExp)
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign access token: %w", err)
	}

	refreshExp := now.Add(i.refreshTTL)
	refresh, err := i.sign(user, roles, permissions, tokenTypeRefresh, now, refreshExp)
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign refresh token: %w", err)
	}

	if err := i.store.Users(ctx).SetRefreshToken(ctx, user.ID, refresh); err != nil {
		return TokenPair{}, fmt.Errorf("persist refresh token: %w", err)
	}

	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// VerifyAccess checks signature and expiry only; it never consults the
// store, so revoked sessions keep a valid access token until it expires.
func (i *Issuer) VerifyAccess(token string) (*Claims, error) {
	return i.parse(token, tokenTypeAccess)
}

// VerifyRefresh checks signature and expiry, then requires byte equality
// with the user's stored refresh token. A superseded token fails here even
// though its signature still verifies.
func (i *Issuer) VerifyRefresh(ctx context.Context, token string) (*Claims, *User, error) {
	claims, err := i.parse(token, tokenTypeRefresh)
	if err != nil {
		return nil, nil, ErrInvalidToken
	}
	user, err := i.store.Users(ctx).Find(ctx, claims.UserID)
	if err != nil {
		return nil, nil, ErrInvalidToken
	}
	if !user.Active {
		return nil, nil, ErrInvalidToken
	}
	if user.RefreshToken == "" || subtle.ConstantTimeCompare([]byte(user.RefreshToken), []byte(token)) != 1 {
		return nil, nil, ErrInvalidToken
	}
	if user.Email != claims.Email {
		return nil, nil, ErrInvalidToken
	}
	return claims, user, nil
}

// Rotate mints a new access token from a valid refresh token. The refresh
// token itself is left in place; role and permission claims are carried
// over from it.
func (i *Issuer) Rotate(ctx context.Context, refreshToken string) (string, time.Time, error) {
	claims, user, err := i.VerifyRefresh(ctx, refreshToken)
	if err != nil {
		return "", time.Time{}, err
	}
	now := i.now().UTC()
	exp := now.Add(i.accessTTL)
	access, err := i.sign(user, claims.Roles, claims.Permissions, tokenTypeAccess, now, exp)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return access, exp, nil
}

// IssueReset signs a short-lived reset token and persists it on the user.
func (i *Issuer) IssueReset(ctx context.Context, user *User) (string, time.Time, error) {
	now := i.now().UTC()
	exp := now.Add(i.resetTTL)
	token, err := i.sign(user, nil, nil, tokenTypeReset, now, exp)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign reset token: %w", err)
	}
	if err := i.store.Users(ctx).SetResetToken(ctx, user.ID, token); err != nil {
		return "", time.Time{}, fmt.Errorf("persist reset token: %w", err)
	}
	return token, exp, nil
}

// VerifyReset validates a reset token against its signature, expiry and the
// stored per-user value, and returns the matching user.
func (i *Issuer) VerifyReset(ctx context.Context, token string) (*User, error) {
	claims, err := i.parse(token, tokenTypeReset)
	if err != nil {
		return nil, ErrInvalidToken
	}
	user, err := i.store.Users(ctx).Find(ctx, claims.UserID)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if user.ResetToken == "" || subtle.ConstantTimeCompare([]byte(user.ResetToken), []byte(token)) != 1 {
		return nil, ErrInvalidToken
	}
	return user, nil
}

func (i *Issuer) sign(user *User, roles, permissions []string, tokenType string, now, exp time.Time) (string, error) {
	claims := Claims{
		UserID:      user.ID,
		Email:       user.Email,
		Roles:       roles,
		Permissions: permissions,
		TokenType:   tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}

func (i *Issuer) parse(token, wantType string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return i.secret, nil
	}, jwt.WithTimeFunc(i.now), jwt.WithIssuer(i.issuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.TokenType != wantType || strings.TrimSpace(claims.UserID) == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
