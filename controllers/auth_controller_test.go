package controllers_test

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cppla/blogapi/models"
)

func TestRegisterStoresHashedPassword(t *testing.T) {
	s := newTestServer(t)
	id := s.register("alice", "  Alice@X.com ", "s3cret")

	var user models.User
	if err := s.db.First(&user, id).Error; err != nil {
		t.Fatalf("load user: %v", err)
	}
	if user.Email != "alice@x.com" {
		t.Errorf("email not normalized: %q", user.Email)
	}
	if user.PasswordHash == "" || user.PasswordHash == "s3cret" {
		t.Errorf("password stored in clear: %q", user.PasswordHash)
	}
	if user.IsAdmin {
		t.Errorf("regular user flagged admin")
	}
}

func TestRegisterValidation(t *testing.T) {
	s := newTestServer(t)
	s.register("alice", "alice@x.com", "pw")
	long := strings.Repeat("p", 73)

	cases := []struct {
		name string
		body gin.H
		want int
	}{
		{"missing fields", gin.H{"email": "bob@x.com"}, http.StatusBadRequest},
		{"mismatch", gin.H{"username": "bob", "email": "bob@x.com", "password": "a", "verifiedPassword": "b"}, http.StatusBadRequest},
		{"duplicate email", gin.H{"username": "alice2", "email": "ALICE@x.com ", "password": "a", "verifiedPassword": "a"}, http.StatusConflict},
		{"password over 72 bytes", gin.H{"username": "carol", "email": "carol@x.com", "password": long, "verifiedPassword": long}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w, _ := s.do(http.MethodPost, "/register", tc.body, "")
			if w.Code != tc.want {
				t.Fatalf("got %d want %d: %s", w.Code, tc.want, w.Body.String())
			}
		})
	}

	var count int64
	s.db.Model(&models.User{}).Count(&count)
	if count != 1 {
		t.Fatalf("expected 1 user, got %d", count)
	}
}

func TestRegisterAdminEmail(t *testing.T) {
	s := newTestServer(t)
	id := s.register("root", "Admin@X.com", "pw")

	var user models.User
	s.db.First(&user, id)
	if !user.IsAdmin {
		t.Fatalf("configured admin email not flagged")
	}
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	s := newTestServer(t)
	s.register("alice", "alice@x.com", "right")

	wrong, _ := s.do(http.MethodPost, "/login", gin.H{"email": "alice@x.com", "password": "wrong"}, "")
	unknown, _ := s.do(http.MethodPost, "/login", gin.H{"email": "nobody@x.com", "password": "wrong"}, "")

	if wrong.Code != http.StatusUnauthorized || unknown.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401s, got %d and %d", wrong.Code, unknown.Code)
	}
	if wrong.Body.String() != unknown.Body.String() {
		t.Fatalf("bodies differ: %q vs %q", wrong.Body.String(), unknown.Body.String())
	}
	if sessionCookie(wrong) != nil || sessionCookie(unknown) != nil {
		t.Fatalf("failed login set a cookie")
	}

	if w, _ := s.do(http.MethodPost, "/login", gin.H{"email": "alice@x.com"}, ""); w.Code != http.StatusBadRequest {
		t.Fatalf("missing password: got %d", w.Code)
	}
}

func TestLoginSetsSessionCookie(t *testing.T) {
	s := newTestServer(t)
	s.register("alice", "alice@x.com", "pw")

	w, _ := s.do(http.MethodPost, "/login", gin.H{"email": "ALICE@x.com", "password": "pw"}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("login: got %d", w.Code)
	}
	c := sessionCookie(w)
	if c == nil {
		t.Fatalf("no cookie")
	}
	if !c.HttpOnly || c.Path != "/" || c.MaxAge != 3600 {
		t.Errorf("unexpected cookie attributes: %+v", c)
	}
	if c.SameSite != http.SameSiteLaxMode || c.Secure {
		t.Errorf("development cookie should be Lax and not Secure: %+v", c)
	}
	if body := w.Body.String(); containsAny(body, "passwordHash", "pw\"") {
		t.Errorf("login response leaks credentials: %s", body)
	}
}

func TestProductionCookiePolicy(t *testing.T) {
	s := newTestServer(t, withProduction())
	_, token := s.signup("alice")

	w, _ := s.do(http.MethodPost, "/login", gin.H{"email": "alice@x.com", "password": "pw-alice"}, "")
	c := sessionCookie(w)
	if c == nil || !c.Secure || c.SameSite != http.SameSiteStrictMode || !c.HttpOnly {
		t.Fatalf("production login cookie: %+v", c)
	}

	w, _ = s.do(http.MethodGet, "/logout", nil, token)
	c = sessionCookie(w)
	if c == nil || !c.Secure || c.SameSite != http.SameSiteStrictMode || c.MaxAge >= 0 {
		t.Fatalf("production logout cookie: %+v", c)
	}
}

func TestSessionExpiry(t *testing.T) {
	s := newTestServer(t)
	_, token := s.signup("alice")

	s.now = s.now.Add(59 * time.Minute)
	if w, _ := s.do(http.MethodGet, "/me", nil, token); w.Code != http.StatusOK {
		t.Fatalf("token rejected before expiry: %d", w.Code)
	}
	s.now = s.now.Add(2 * time.Minute)
	if w, _ := s.do(http.MethodGet, "/me", nil, token); w.Code != http.StatusUnauthorized {
		t.Fatalf("token accepted after expiry: %d", w.Code)
	}
}

func TestLogoutClearsCookie(t *testing.T) {
	s := newTestServer(t)
	_, token := s.signup("alice")

	w, _ := s.do(http.MethodGet, "/logout", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("logout: got %d", w.Code)
	}
	c := sessionCookie(w)
	if c == nil || c.Value != "" || c.MaxAge >= 0 {
		t.Fatalf("cookie not cleared: %+v", c)
	}

	// stateless sessions keep the token usable until it expires
	if w, _ := s.do(http.MethodGet, "/me", nil, token); w.Code != http.StatusOK {
		t.Fatalf("token rejected without revocation: %d", w.Code)
	}

	if w, _ := s.do(http.MethodGet, "/logout", nil, ""); w.Code != http.StatusOK {
		t.Fatalf("anonymous logout: got %d", w.Code)
	}
}

func TestLogoutRevokesToken(t *testing.T) {
	s := newTestServer(t, withRevocation())
	_, token := s.signup("alice")

	if w, _ := s.do(http.MethodGet, "/logout", nil, token); w.Code != http.StatusOK {
		t.Fatalf("logout: got %d", w.Code)
	}
	w, env := s.do(http.MethodGet, "/me", nil, token)
	if w.Code != http.StatusUnauthorized || env.Message != "invalid or expired token" {
		t.Fatalf("revoked token accepted: %d %q", w.Code, env.Message)
	}
}

func TestProtectedRouteMessages(t *testing.T) {
	s := newTestServer(t)
	if _, env := s.do(http.MethodGet, "/me", nil, ""); env.Message != "no token" {
		t.Errorf("missing cookie message: %q", env.Message)
	}
	if _, env := s.do(http.MethodGet, "/me", nil, "not-a-jwt"); env.Message != "invalid or expired token" {
		t.Errorf("bad token message: %q", env.Message)
	}

	id, token := s.signup("ghost")
	s.db.Delete(&models.User{}, id)
	if w, env := s.do(http.MethodGet, "/me", nil, token); w.Code != http.StatusUnauthorized || env.Message != "user no longer exists" {
		t.Errorf("deleted user: %d %q", w.Code, env.Message)
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
