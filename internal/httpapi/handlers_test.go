package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"

	"guardia.org/internal/auth"
)

type apiClient struct {
	baseURL string
	client  *http.Client
	t       *testing.T

	store *auth.MemoryStore
	rbac  *auth.RBAC
}

func newTestAPI(t *testing.T) *apiClient {
	t.Helper()

	store := auth.NewMemoryStore()
	issuer, err := auth.NewIssuer(store, "test-secret")
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	rbac, err := auth.NewRBAC(store)
	if err != nil {
		t.Fatalf("NewRBAC: %v", err)
	}
	if err := rbac.EnsureBuiltins(context.Background()); err != nil {
		t.Fatalf("EnsureBuiltins: %v", err)
	}
	svc, err := auth.NewService(store, issuer, rbac)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	api := New(svc, rbac, issuer, ReadyProbe{}, "test")
	api.rateBurst = 1000
	api.ratePerSec = 1000

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar: %v", err)
	}
	client := srv.Client()
	client.Jar = jar
	client.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	return &apiClient{baseURL: srv.URL, client: client, t: t, store: store, rbac: rbac}
}

func (c *apiClient) do(method, path string, body any) *http.Response {
	c.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	return resp
}

func decode[T any](t *testing.T, r *http.Response) T {
	t.Helper()
	defer r.Body.Close()
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

// register opens a session; the jar keeps the cookies for later calls.
func (c *apiClient) register(first, last, email, password string) {
	c.t.Helper()
	resp := c.do(http.MethodPost, "/v1/auth/register", map[string]any{
		"first_name": first,
		"last_name":  last,
		"email":      email,
		"password":   password,
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		c.t.Fatalf("register status = %d", resp.StatusCode)
	}
}

// promoteToAdmin grants the builtin admin role directly through the store.
func (c *apiClient) promoteToAdmin(email string) {
	c.t.Helper()
	ctx := context.Background()
	user, err := c.store.Users(ctx).FindByEmail(ctx, email)
	if err != nil {
		c.t.Fatalf("find user: %v", err)
	}
	admin, err := c.store.Roles(ctx).FindByName(ctx, auth.RoleAdmin)
	if err != nil {
		c.t.Fatalf("find admin role: %v", err)
	}
	if _, err := c.rbac.AssignRole(ctx, user.ID, admin.ID); err != nil {
		c.t.Fatalf("assign admin: %v", err)
	}
}

func TestRegisterLoginMeFlow(t *testing.T) {
	c := newTestAPI(t)

	c.register("Ada", "Lovelace", "a@x.com", "secret1")

	resp := c.do(http.MethodGet, "/v1/auth/me", nil)
	me := decode[struct {
		Roles       []string `json:"roles"`
		Permissions []string `json:"permissions"`
	}](t, resp)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("me status = %d", resp.StatusCode)
	}
	if len(me.Roles) != 1 || me.Roles[0] != auth.RoleClient {
		t.Fatalf("roles = %v, want [client]", me.Roles)
	}

	// fresh login replaces the session
	resp = c.do(http.MethodPost, "/v1/auth/login", map[string]any{
		"email":    "a@x.com",
		"password": "secret1",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d", resp.StatusCode)
	}

	resp = c.do(http.MethodPost, "/v1/auth/login", map[string]any{
		"email":    "a@x.com",
		"password": "wrong-pass",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad login status = %d, want 401", resp.StatusCode)
	}
}

func TestProtectedRouteRequiresSession(t *testing.T) {
	c := newTestAPI(t)

	resp := c.do(http.MethodGet, "/v1/users", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestPermissionGateNamesMissing(t *testing.T) {
	c := newTestAPI(t)

	c.register("Ada", "Lovelace", "a@x.com", "secret1")

	resp := c.do(http.MethodGet, "/v1/users", nil)
	body := decode[map[string]any](t, resp)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", resp.StatusCode)
	}
	msg, _ := body["error"].(string)
	if msg != "missing permissions: "+auth.PermViewUsers {
		t.Fatalf("error = %q", msg)
	}
}

func TestPermissionGrantTakesEffectWithoutRelogin(t *testing.T) {
	c := newTestAPI(t)

	c.register("Ada", "Lovelace", "a@x.com", "secret1")

	resp := c.do(http.MethodGet, "/v1/users", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("pre-grant status = %d, want 403", resp.StatusCode)
	}

	// the gate reads the store, not the token claims
	c.promoteToAdmin("a@x.com")

	resp = c.do(http.MethodGet, "/v1/users", nil)
	page := decode[auth.Page[auth.User]](t, resp)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("post-grant status = %d, want 200", resp.StatusCode)
	}
	if page.Total != 1 {
		t.Fatalf("total = %d, want 1", page.Total)
	}
}

func TestRefreshAndLogout(t *testing.T) {
	c := newTestAPI(t)

	c.register("Ada", "Lovelace", "a@x.com", "secret1")

	resp := c.do(http.MethodPost, "/v1/auth/refresh", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("refresh status = %d", resp.StatusCode)
	}

	resp = c.do(http.MethodPost, "/v1/auth/logout", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("logout status = %d", resp.StatusCode)
	}

	// the stored session pointer is gone, the old refresh token is dead
	resp = c.do(http.MethodPost, "/v1/auth/refresh", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("refresh after logout status = %d, want 401", resp.StatusCode)
	}
}

func TestRoleAndPermissionAdministration(t *testing.T) {
	c := newTestAPI(t)

	c.register("Ada", "Lovelace", "a@x.com", "secret1")
	c.promoteToAdmin("a@x.com")

	resp := c.do(http.MethodPost, "/v1/roles", map[string]any{"name": "editors"})
	role := decode[auth.Role](t, resp)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create role status = %d", resp.StatusCode)
	}

	resp = c.do(http.MethodPost, "/v1/roles", map[string]any{"name": "editors"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate role status = %d, want 409", resp.StatusCode)
	}

	resp = c.do(http.MethodPost, "/v1/permissions", map[string]any{"name": "publicar_articulos"})
	perm := decode[auth.Permission](t, resp)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create permission status = %d", resp.StatusCode)
	}

	resp = c.do(http.MethodPost, "/v1/role-permissions/bulk", map[string]any{
		"pairs": []map[string]string{
			{"role_id": role.ID, "permission_id": perm.ID},
			{"role_id": role.ID, "permission_id": perm.ID},
		},
	})
	created := decode[[]auth.RolePermission](t, resp)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("bulk status = %d", resp.StatusCode)
	}
	if len(created) != 1 {
		t.Fatalf("bulk created %d pairs, want 1", len(created))
	}

	// everything already assigned: conflict
	resp = c.do(http.MethodPost, "/v1/role-permissions/bulk", map[string]any{
		"pairs": []map[string]string{
			{"role_id": role.ID, "permission_id": perm.ID},
		},
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("all-duplicate bulk status = %d, want 409", resp.StatusCode)
	}

	resp = c.do(http.MethodGet, "/v1/roles/"+role.ID+"/permissions/available", nil)
	available := decode[[]auth.Permission](t, resp)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("available status = %d", resp.StatusCode)
	}
	for _, p := range available {
		if p.ID == perm.ID {
			t.Fatal("assigned permission listed as available")
		}
	}

	resp = c.do(http.MethodDelete, "/v1/role-permissions/"+role.ID+"/"+perm.ID, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("unassign status = %d", resp.StatusCode)
	}
}

func TestUserAdministration(t *testing.T) {
	c := newTestAPI(t)

	c.register("Ada", "Lovelace", "a@x.com", "secret1")
	c.promoteToAdmin("a@x.com")

	resp := c.do(http.MethodPost, "/v1/auth/register-admin", map[string]any{
		"first_name": "Eve",
		"last_name":  "Moneypenny",
		"email":      "e@x.com",
		"password":   "secret1",
		"role":       "admin",
	})
	created := decode[auth.User](t, resp)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register-admin status = %d", resp.StatusCode)
	}

	resp = c.do(http.MethodPost, "/v1/auth/register-admin", map[string]any{
		"first_name": "Mal",
		"last_name":  "Ory",
		"email":      "m@x.com",
		"password":   "secret1",
		"role":       "superuser",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unsupported role status = %d, want 400", resp.StatusCode)
	}

	resp = c.do(http.MethodPost, "/v1/users/"+created.ID+"/deactivate", nil)
	deactivated := decode[auth.User](t, resp)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("deactivate status = %d", resp.StatusCode)
	}
	if deactivated.Active {
		t.Fatal("user still active after deactivation")
	}

	resp = c.do(http.MethodDelete, "/v1/users/"+created.ID, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}

	resp = c.do(http.MethodGet, "/v1/users/"+created.ID, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("get deleted status = %d, want 404", resp.StatusCode)
	}
}

func TestHealthz(t *testing.T) {
	c := newTestAPI(t)

	resp := c.do(http.MethodGet, "/healthz", nil)
	body := decode[map[string]any](t, resp)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status = %d", resp.StatusCode)
	}
	if body["status"] != "ok" {
		t.Fatalf("healthz body = %v", body)
	}
}
