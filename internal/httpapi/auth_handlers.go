package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"guardia.org/internal/auth"
	"guardia.org/internal/obs"
)

type registerRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

type registerAdminRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	Role      string `json:"role"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	user, pair, err := a.svc.Register(r.Context(), auth.RegisterInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Password:  req.Password,
	})
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	obs.ObserveTokenIssued("access")
	obs.ObserveTokenIssued("refresh")
	a.setSessionCookies(w, pair)
	writeJSON(w, http.StatusCreated, user)
}

func (a *API) handleRegisterAdmin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.ensurePermissions(w, r, auth.PermCreateUsers) {
		return
	}
	var req registerAdminRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	user, err := a.svc.RegisterByAdmin(r.Context(), auth.RegisterInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Password:  req.Password,
	}, req.Role)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	user, pair, err := a.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		obs.ObserveLogin("failure")
		handleAuthError(w, r, err)
		return
	}
	obs.ObserveLogin("success")
	obs.ObserveTokenIssued("access")
	obs.ObserveTokenIssued("refresh")
	a.setSessionCookies(w, pair)
	writeJSON(w, http.StatusOK, user)
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	refresh := cookieValue(r, refreshCookie)
	if refresh == "" {
		writeError(w, r, http.StatusUnauthorized, "missing refresh token")
		return
	}
	access, expiresAt, err := a.svc.Refresh(r.Context(), refresh)
	if err != nil {
		a.clearSessionCookies(w)
		handleAuthError(w, r, err)
		return
	}
	obs.ObserveTokenIssued("access")
	a.setCookie(w, accessCookie, access, time.Until(expiresAt))
	writeJSON(w, http.StatusOK, map[string]any{
		"expires_at": expiresAt.UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if err := a.svc.Logout(r.Context(), cookieValue(r, refreshCookie)); err != nil {
		handleAuthError(w, r, err)
		return
	}
	a.clearSessionCookies(w)
	writeJSON(w, http.StatusOK, map[string]any{"status": "logged_out"})
}

func (a *API) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req forgotPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.svc.RequestPasswordReset(r.Context(), req.Email); err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "reset_link_sent"})
}

func (a *API) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req resetPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.svc.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "password_reset"})
}

// handleMe returns the caller's resolved identity, roles and effective
// permissions, always fresh from the store.
func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	perms := principal.PermissionNames()
	writeJSON(w, http.StatusOK, map[string]any{
		"user":        principal.User,
		"roles":       principal.RoleNames(),
		"permissions": perms,
	})
}

// --- SSO ---

const ssoStateCookie = "oauth_state"

func (a *API) handleSSORedirect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	state := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     ssoStateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   300,
		HttpOnly: true,
		Secure:   a.isProduction(),
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, a.provider.AuthCodeURL(state), http.StatusFound)
}

func (a *API) handleSSOCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	stateCookie, err := r.Cookie(ssoStateCookie)
	if err != nil || stateCookie.Value == "" || stateCookie.Value != r.URL.Query().Get("state") {
		writeError(w, r, http.StatusUnauthorized, "state mismatch")
		return
	}
	identity, err := a.provider.Exchange(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		obs.ObserveLogin("failure")
		writeError(w, r, http.StatusUnauthorized, "external login failed")
		return
	}
	_, pair, err := a.svc.ExternalLogin(r.Context(), identity.Email, identity.FirstName, identity.LastName)
	if err != nil {
		obs.ObserveLogin("failure")
		handleAuthError(w, r, err)
		return
	}
	obs.ObserveLogin("success")
	obs.ObserveTokenIssued("access")
	obs.ObserveTokenIssued("refresh")
	a.setSessionCookies(w, pair)
	if a.frontendURL != "" {
		http.Redirect(w, r, a.frontendURL, http.StatusFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "logged_in"})
}

// --- cookies ---

func (a *API) isProduction() bool {
	return strings.EqualFold(a.env, "production")
}

// setCookie applies the environment policy: production gets Secure +
// SameSite=None (cross-site frontend), development Lax over plain HTTP.
func (a *API) setCookie(w http.ResponseWriter, name, value string, ttl time.Duration) {
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	if ttl > 0 {
		c.MaxAge = int(ttl / time.Second)
	} else {
		c.MaxAge = -1
	}
	if a.isProduction() {
		c.Secure = true
		c.SameSite = http.SameSiteNoneMode
	}
	http.SetCookie(w, c)
}

func (a *API) setSessionCookies(w http.ResponseWriter, pair auth.TokenPair) {
	a.setCookie(w, accessCookie, pair.AccessToken, time.Until(pair.AccessExpiresAt))
	a.setCookie(w, refreshCookie, pair.RefreshToken, time.Until(pair.RefreshExpiresAt))
}

func (a *API) clearSessionCookies(w http.ResponseWriter) {
	a.setCookie(w, accessCookie, "", 0)
	a.setCookie(w, refreshCookie, "", 0)
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(c.Value)
}
