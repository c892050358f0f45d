package auth

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
)

// setupHandlerEnv mounts the auth routes behind the auth middleware.
func setupHandlerEnv(t *testing.T) (*testAuthority, http.Handler) {
	t.Helper()
	a := newAuthority(t)
	h := NewHandler(a.svc, LoginRateConfig{}, zap.NewNop())
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return a, h.Middleware()(mux)
}

func doRequest(h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func problemDetail(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	if ct := w.Header().Get("Content-Type"); ct != "application/problem+json" {
		t.Errorf("Content-Type = %q, want application/problem+json", ct)
	}
	var p struct {
		Detail string `json:"detail"`
	}
	_ = json.NewDecoder(w.Body).Decode(&p)
	return p.Detail
}

func TestHandleRegisterAndLogin(t *testing.T) {
	_, h := setupHandlerEnv(t)

	w := doRequest(h, "POST", "/api/v1/auth/register", "", map[string]string{
		"email": "Ada@Example.com", "password": "password123", "first_name": "Ada",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("register status = %d, body = %s", w.Code, w.Body.String())
	}
	var user map[string]any
	_ = json.NewDecoder(w.Body).Decode(&user)
	if user["email"] != "ada@example.com" || user["role"] != "client" {
		t.Errorf("user = %v", user)
	}
	if _, leaked := user["password_hash"]; leaked {
		t.Error("password hash serialized")
	}

	w = doRequest(h, "POST", "/api/v1/auth/register", "", map[string]string{
		"email": "ada@example.com", "password": "password456",
	})
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate register status = %d, want 409", w.Code)
	}

	w = doRequest(h, "POST", "/api/v1/auth/login", "", map[string]string{
		"email": "ada@example.com", "password": "password123",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("login status = %d, body = %s", w.Code, w.Body.String())
	}
	var session Session
	_ = json.NewDecoder(w.Body).Decode(&session)
	if session.AccessToken == "" || session.TokenType != "Bearer" {
		t.Errorf("session = %+v", session)
	}

	w = doRequest(h, "GET", "/api/v1/auth/me", session.AccessToken, nil)
	if w.Code != http.StatusOK {
		t.Errorf("me status = %d", w.Code)
	}
}

func TestHandleRegister_privilegedRoleNeedsAdmin(t *testing.T) {
	a, h := setupHandlerEnv(t)
	a.register(t, "admin@example.com", "password123", RoleAdmin)
	a.register(t, "client@example.com", "password123", RoleClient)
	adminToken := a.login(t, "admin@example.com", "password123")
	clientToken := a.login(t, "client@example.com", "password123")

	body := map[string]string{"email": "staff@example.com", "password": "password123", "role": "staff"}

	if w := doRequest(h, "POST", "/api/v1/auth/register", "", body); w.Code != http.StatusForbidden {
		t.Errorf("anonymous staff register = %d, want 403", w.Code)
	}
	if w := doRequest(h, "POST", "/api/v1/auth/register", clientToken, body); w.Code != http.StatusForbidden {
		t.Errorf("client staff register = %d, want 403", w.Code)
	}
	if w := doRequest(h, "POST", "/api/v1/auth/register", adminToken, body); w.Code != http.StatusCreated {
		t.Errorf("admin staff register = %d, want 201", w.Code)
	}
	body["role"] = "wizard"
	if w := doRequest(h, "POST", "/api/v1/auth/register", adminToken, body); w.Code != http.StatusBadRequest {
		t.Errorf("unknown role register = %d, want 400", w.Code)
	}
}

func TestHandleLogin_uniformMessage(t *testing.T) {
	a, h := setupHandlerEnv(t)
	a.register(t, "ada@example.com", "password123", RoleClient)

	w1 := doRequest(h, "POST", "/api/v1/auth/login", "", map[string]string{"email": "nobody@example.com", "password": "password123"})
	w2 := doRequest(h, "POST", "/api/v1/auth/login", "", map[string]string{"email": "ada@example.com", "password": "nope-nope"})
	if w1.Code != http.StatusUnauthorized || w2.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d / %d, want 401", w1.Code, w2.Code)
	}
	if d1, d2 := problemDetail(t, w1), problemDetail(t, w2); d1 != d2 || d1 != "invalid credentials" {
		t.Errorf("details = %q / %q", d1, d2)
	}
}

func TestHandleLogin_rateLimited(t *testing.T) {
	a := newMemoryAuthority(t)
	h := NewHandler(a.svc, LoginRateConfig{Attempts: 2, Window: time.Hour}, zap.NewNop())
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	body := map[string]string{"email": "x@example.com", "password": "whatever1"}
	for i := 0; i < 2; i++ {
		if w := doRequest(mux, "POST", "/api/v1/auth/login", "", body); w.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d status = %d, want 401", i+1, w.Code)
		}
	}
	if w := doRequest(mux, "POST", "/api/v1/auth/login", "", body); w.Code != http.StatusTooManyRequests {
		t.Errorf("third attempt status = %d, want 429", w.Code)
	}
}

func TestHandleLogout_thenTokenRejected(t *testing.T) {
	a, h := setupHandlerEnv(t)
	a.register(t, "ada@example.com", "password123", RoleClient)
	token := a.login(t, "ada@example.com", "password123")

	for i := 0; i < 2; i++ {
		if w := doRequest(h, "POST", "/api/v1/auth/logout", token, nil); w.Code != http.StatusNoContent {
			t.Fatalf("logout #%d status = %d, want 204", i+1, w.Code)
		}
	}
	w := doRequest(h, "GET", "/api/v1/auth/me", token, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("me after logout = %d, want 401", w.Code)
	}
	if d := problemDetail(t, w); d != "invalid or expired token" {
		t.Errorf("detail = %q", d)
	}

	if w := doRequest(h, "POST", "/api/v1/auth/logout", "", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("logout without token = %d, want 401", w.Code)
	}
}

func TestHandleUsers_adminOnly(t *testing.T) {
	a, h := setupHandlerEnv(t)
	admin := a.register(t, "admin@example.com", "password123", RoleAdmin)
	client := a.register(t, "client@example.com", "password123", RoleClient)
	adminToken := a.login(t, "admin@example.com", "password123")
	clientToken := a.login(t, "client@example.com", "password123")

	if w := doRequest(h, "GET", "/api/v1/users", "", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("anonymous list = %d, want 401", w.Code)
	}
	if w := doRequest(h, "GET", "/api/v1/users", clientToken, nil); w.Code != http.StatusForbidden {
		t.Errorf("client list = %d, want 403", w.Code)
	}
	w := doRequest(h, "GET", "/api/v1/users", adminToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("admin list = %d", w.Code)
	}
	var users []User
	_ = json.NewDecoder(w.Body).Decode(&users)
	if len(users) != 2 {
		t.Errorf("users = %d, want 2", len(users))
	}

	if w := doRequest(h, "GET", "/api/v1/users/"+admin.ID, adminToken, nil); w.Code != http.StatusOK {
		t.Errorf("get user = %d", w.Code)
	}
	if w := doRequest(h, "GET", "/api/v1/users/nope", adminToken, nil); w.Code != http.StatusNotFound {
		t.Errorf("get missing user = %d, want 404", w.Code)
	}

	w = doRequest(h, "PATCH", "/api/v1/users/"+client.ID, adminToken, map[string]any{"is_active": false})
	if w.Code != http.StatusOK {
		t.Fatalf("deactivate = %d, body = %s", w.Code, w.Body.String())
	}
	if w := doRequest(h, "GET", "/api/v1/auth/me", clientToken, nil); w.Code != http.StatusUnauthorized {
		t.Errorf("deactivated client me = %d, want 401", w.Code)
	}
	w = doRequest(h, "POST", "/api/v1/auth/login", "", map[string]string{"email": "client@example.com", "password": "password123"})
	if w.Code != http.StatusForbidden {
		t.Errorf("deactivated login = %d, want 403", w.Code)
	}
}

func TestHandleSetup(t *testing.T) {
	_, h := setupHandlerEnv(t)

	w := doRequest(h, "GET", "/api/v1/auth/setup/status", "", nil)
	var status SetupStatusResponse
	_ = json.NewDecoder(w.Body).Decode(&status)
	if !status.SetupRequired {
		t.Error("setup_required = false on empty store")
	}

	body := map[string]string{"email": "root@example.com", "password": "password123"}
	if w := doRequest(h, "POST", "/api/v1/auth/setup", "", body); w.Code != http.StatusCreated {
		t.Fatalf("setup = %d", w.Code)
	}
	if w := doRequest(h, "POST", "/api/v1/auth/setup", "", body); w.Code != http.StatusConflict {
		t.Errorf("second setup = %d, want 409", w.Code)
	}
}

func TestHandleHealth(t *testing.T) {
	a, h := setupHandlerEnv(t)
	a.register(t, "ada@example.com", "password123", RoleClient)

	w := doRequest(h, "GET", "/api/v1/auth/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp HealthResponse
	_ = json.NewDecoder(w.Body).Decode(&resp)
	if resp.RegisteredUsers != 1 || resp.RevocationBackend != "sqlite" || resp.TokenTTLHours != 24 || resp.Algorithm != "HS256" {
		t.Errorf("health = %+v", resp)
	}
}
