package controllers_test

import (
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

type profile struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	IsAdmin  bool   `json:"isAdmin"`
}

func TestGetUserHidesEmailFromOthers(t *testing.T) {
	s := newTestServer(t)
	aliceID, alice := s.signup("alice")
	_, bob := s.signup("bob")
	s.register("admin", "admin@x.com", "root")
	admin := s.login("admin@x.com", "root")

	read := func(token string) profile {
		t.Helper()
		w, env := s.do(http.MethodGet, fmt.Sprintf("/user/%d", aliceID), nil, token)
		if w.Code != http.StatusOK {
			t.Fatalf("get user: got %d", w.Code)
		}
		var data struct {
			User profile `json:"user"`
		}
		decode(t, env.Data, &data)
		return data.User
	}

	if p := read(alice); p.Email != "alice@x.com" || p.Username != "alice" {
		t.Errorf("self view: %+v", p)
	}
	if p := read(bob); p.Email != "" || p.ID != aliceID {
		t.Errorf("other view leaks email: %+v", p)
	}
	if p := read(admin); p.Email != "alice@x.com" {
		t.Errorf("admin view: %+v", p)
	}

	if w, _ := s.do(http.MethodGet, "/user/9999", nil, alice); w.Code != http.StatusNotFound {
		t.Fatalf("missing user: got %d", w.Code)
	}
}

func TestListUsersAdminOnly(t *testing.T) {
	s := newTestServer(t)
	_, alice := s.signup("alice")
	s.register("admin", "admin@x.com", "root")
	admin := s.login("admin@x.com", "root")

	if w, _ := s.do(http.MethodGet, "/users", nil, alice); w.Code != http.StatusForbidden {
		t.Fatalf("non-admin list: got %d", w.Code)
	}

	w, env := s.do(http.MethodGet, "/users", nil, admin)
	if w.Code != http.StatusOK {
		t.Fatalf("admin list: got %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "$2a$") {
		t.Fatalf("password hash exposed: %s", w.Body.String())
	}
	var data struct {
		Items []profile `json:"items"`
	}
	decode(t, env.Data, &data)
	if len(data.Items) != 2 {
		t.Fatalf("expected 2 users, got %d", len(data.Items))
	}
}

func TestStatsAdminOnly(t *testing.T) {
	s := newTestServer(t)
	_, alice := s.signup("alice")
	s.register("admin", "admin@x.com", "root")
	admin := s.login("admin@x.com", "root")

	post := s.createPost(alice, "t", "c")
	s.comment(alice, post.ID, gin.H{"title": "c", "content": "c"})

	if w, _ := s.do(http.MethodGet, "/stats", nil, alice); w.Code != http.StatusForbidden {
		t.Fatalf("non-admin stats: got %d", w.Code)
	}

	w, env := s.do(http.MethodGet, "/stats", nil, admin)
	if w.Code != http.StatusOK {
		t.Fatalf("admin stats: got %d", w.Code)
	}
	var stats struct {
		Users    int64 `json:"user_count"`
		Posts    int64 `json:"post_count"`
		Comments int64 `json:"comment_count"`
	}
	decode(t, env.Data, &stats)
	if stats.Users != 2 || stats.Posts != 1 || stats.Comments != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}
