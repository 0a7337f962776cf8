package controllers_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/cppla/blogapi/config"
	"github.com/cppla/blogapi/controllers"
	"github.com/cppla/blogapi/models"
	"github.com/cppla/blogapi/routes"
	"github.com/cppla/blogapi/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	t      *testing.T
	db     *gorm.DB
	router *gin.Engine
	now    time.Time
}

type serverOption func(*config.AppConfig, *routes.Deps)

func withRevocation() serverOption {
	return func(cfg *config.AppConfig, _ *routes.Deps) { cfg.RevokeOnLogout = true }
}

func withProduction() serverOption {
	return func(cfg *config.AppConfig, _ *routes.Deps) {
		cfg.AppEnv = "production"
		cfg.AllowedOrigins = []string{"https://blog.example.com"}
	}
}

func withProviders(p map[string]controllers.OAuthProvider) serverOption {
	return func(_ *config.AppConfig, deps *routes.Deps) { deps.OAuthProviders = p }
}

func newTestServer(t *testing.T, opts ...serverOption) *testServer {
	t.Helper()
	cfg := config.AppConfig{
		AppEnv:             "development",
		JWTSecret:          "test-secret",
		SessionTTLMinutes:  60,
		BcryptCost:         bcrypt.MinCost,
		RateLimitPerMinute: 10000,
		AllowedOrigins:     []string{"*"},
		AdminEmails:        []string{"admin@x.com"},
		GinMode:            "test",
		DBDriver:           "sqlite",
		SQLitePath:         filepath.Join(t.TempDir(), "blog.db"),
		LogLevel:           "silent",
	}
	s := &testServer{t: t, now: time.Now().Truncate(time.Second)}
	deps := routes.Deps{Clock: func() time.Time { return s.now }}
	for _, opt := range opts {
		opt(&cfg, &deps)
	}

	db, err := config.InitDatabase(cfg, nil, &models.User{}, &models.Post{}, &models.Comment{})
	if err != nil {
		t.Fatalf("db open: %v", err)
	}
	deps.Config = cfg
	deps.DB = db

	r, err := routes.SetupRouter(deps)
	if err != nil {
		t.Fatalf("setup router: %v", err)
	}
	s.db = db
	s.router = r
	return s
}

func (s *testServer) do(method, path string, body interface{}, token string) (*httptest.ResponseRecorder, envelope) {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			s.t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.AddCookie(&http.Cookie{Name: utils.SessionCookieName, Value: token})
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
			s.t.Fatalf("%s %s: decode response %q: %v", method, path, w.Body.String(), err)
		}
	}
	return w, env
}

func decode(t *testing.T, raw json.RawMessage, out interface{}) {
	t.Helper()
	if err := json.Unmarshal(raw, out); err != nil {
		t.Fatalf("decode data %s: %v", raw, err)
	}
}

func sessionCookie(w *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == utils.SessionCookieName {
			return c
		}
	}
	return nil
}

// register creates an account and returns its id.
func (s *testServer) register(name, email, password string) uint {
	s.t.Helper()
	w, env := s.do(http.MethodPost, "/register", gin.H{
		"username":         name,
		"email":            email,
		"password":         password,
		"verifiedPassword": password,
	}, "")
	if w.Code != http.StatusCreated {
		s.t.Fatalf("register %s: got %d %s", email, w.Code, w.Body.String())
	}
	var data struct {
		UserID uint `json:"userId"`
	}
	decode(s.t, env.Data, &data)
	return data.UserID
}

// login returns the session token of a successful login.
func (s *testServer) login(email, password string) string {
	s.t.Helper()
	w, _ := s.do(http.MethodPost, "/login", gin.H{"email": email, "password": password}, "")
	if w.Code != http.StatusOK {
		s.t.Fatalf("login %s: got %d %s", email, w.Code, w.Body.String())
	}
	c := sessionCookie(w)
	if c == nil || c.Value == "" {
		s.t.Fatalf("login %s: no session cookie", email)
	}
	return c.Value
}

// signup registers and logs in, returning the id and token.
func (s *testServer) signup(name string) (uint, string) {
	s.t.Helper()
	email := name + "@x.com"
	id := s.register(name, email, "pw-"+name)
	return id, s.login(email, "pw-"+name)
}

type postView struct {
	ID          uint   `json:"id"`
	OwnerUserID uint   `json:"ownerUserId"`
	Title       string `json:"title"`
	Content     string `json:"content"`
	Comments    []struct {
		ID     uint `json:"id"`
		PostID uint `json:"postId"`
	} `json:"comments"`
}

func (s *testServer) createPost(token, title, content string) postView {
	s.t.Helper()
	w, env := s.do(http.MethodPost, "/post", gin.H{"title": title, "content": content}, token)
	if w.Code != http.StatusOK {
		s.t.Fatalf("create post: got %d %s", w.Code, w.Body.String())
	}
	var data struct {
		Post postView `json:"post"`
	}
	decode(s.t, env.Data, &data)
	return data.Post
}

func (s *testServer) comment(token string, postID uint, body gin.H) (*httptest.ResponseRecorder, envelope) {
	s.t.Helper()
	return s.do(http.MethodPost, fmt.Sprintf("/posts/%d/commentaire", postID), body, token)
}
