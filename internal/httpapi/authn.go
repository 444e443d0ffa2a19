package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"guardia.org/internal/auth"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "

	accessCookie  = "access_token"
	refreshCookie = "refresh_token"
)

var publicPaths = []string{
	"/v1/auth/register",
	"/v1/auth/login",
	"/v1/auth/refresh",
	"/v1/auth/logout",
	"/v1/auth/forgot-password",
	"/v1/auth/reset-password",
	"/v1/auth/google",
	"/v1/auth/google/callback",
	"/metrics",
	"/healthz",
	"/readyz",
	"/v1/info",
	"/",
}

// withAuth resolves the session token into a principal for every
// non-public route. The stored RBAC graph is consulted per request, so a
// permission revoked after the token was signed takes effect immediately.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractToken(r)
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}

		claims, err := a.issuer.VerifyAccess(token)
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, "invalid token")
			return
		}

		principal, err := a.rbac.Resolve(r.Context(), claims.UserID)
		if err != nil {
			if errors.Is(err, auth.ErrNotFound) {
				writeError(w, r, http.StatusUnauthorized, "invalid token")
				return
			}
			writeError(w, r, http.StatusInternalServerError, "authentication error")
			return
		}
		if !principal.User.Active {
			writeError(w, r, http.StatusUnauthorized, "invalid token")
			return
		}

		ctx := auth.ContextWithPrincipal(r.Context(), principal)
		ctx = auth.ContextWithToken(ctx, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ensurePermissions gates a handler on capabilities. The 403 body names
// the missing permissions so admin tooling can explain the denial.
func (a *API) ensurePermissions(w http.ResponseWriter, r *http.Request, required ...string) bool {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return false
	}
	if missing := principal.Missing(required); len(missing) > 0 {
		writeError(w, r, http.StatusForbidden, "missing permissions: "+strings.Join(missing, ", "))
		return false
	}
	return true
}

// extractToken prefers the session cookie and falls back to a bearer
// header for non-browser clients.
func extractToken(r *http.Request) (string, error) {
	if c, err := r.Cookie(accessCookie); err == nil && strings.TrimSpace(c.Value) != "" {
		return strings.TrimSpace(c.Value), nil
	}
	header := strings.TrimSpace(r.Header.Get(authHeader))
	if header == "" {
		return "", errors.New("missing session token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing session token")
	}
	return token, nil
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}
