package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alphabot-ai/flapper/internal/auth"
	"github.com/alphabot-ai/flapper/internal/config"
	httpapp "github.com/alphabot-ai/flapper/internal/http"
	"github.com/alphabot-ai/flapper/internal/logging"
	"github.com/alphabot-ai/flapper/internal/model"
	"github.com/alphabot-ai/flapper/internal/store/sqlite"
)

func newTestAPI(t *testing.T) *httptest.Server {
	t.Helper()
	st, err := sqlite.Open("file:client_" + t.Name() + "?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	cfg := config.Config{Secret: "client-secret", TokenTTL: config.DefaultTokenTTL}
	authSvc := auth.NewService(st, cfg.Secret, cfg.TokenTTL)
	srv := httptest.NewServer(httpapp.NewServer(st, authSvc, logging.Discard(), cfg))
	t.Cleanup(srv.Close)
	return srv
}

func TestRegisterKeepsToken(t *testing.T) {
	srv := newTestAPI(t)
	c := New(srv.URL)
	ctx := context.Background()

	if c.IsLoggedIn() {
		t.Fatalf("fresh client should not be logged in")
	}
	if err := c.Register(ctx, "Alice", "pw123"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if !c.IsLoggedIn() {
		t.Fatalf("expected logged in after register")
	}
	if got := c.CurrentUser(); got != "alice" {
		t.Fatalf("expected current user alice, got %q", got)
	}

	c.Logout()
	if c.IsLoggedIn() || c.CurrentUser() != "" {
		t.Fatalf("expected logged out")
	}

	if err := c.Login(ctx, "alice", "pw123"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if c.CurrentUser() != "alice" {
		t.Fatalf("expected alice after login")
	}
}

func TestLoginFailureIsAPIError(t *testing.T) {
	srv := newTestAPI(t)
	c := New(srv.URL)
	ctx := context.Background()

	if err := c.Register(ctx, "alice", "pw123"); err != nil {
		t.Fatalf("register: %v", err)
	}
	c.Logout()

	err := c.Login(ctx, "alice", "wrong")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", apiErr.StatusCode)
	}
	if apiErr.Message != auth.ErrInvalidCredentials.Error() {
		t.Fatalf("unexpected message %q", apiErr.Message)
	}
	if c.Token() != "" {
		t.Fatalf("failed login must not store a token")
	}
}

func TestPostAndCommentFlow(t *testing.T) {
	srv := newTestAPI(t)
	c := New(srv.URL)
	ctx := context.Background()

	if err := c.Register(ctx, "alice", "pw123"); err != nil {
		t.Fatalf("register: %v", err)
	}
	post, err := c.CreatePost(ctx, "Hello", "http://x")
	if err != nil {
		t.Fatalf("create post: %v", err)
	}
	if post.Author != "alice" || post.Upvotes != 0 {
		t.Fatalf("unexpected post %+v", post)
	}

	post, err = c.UpvotePost(ctx, post.ID)
	if err != nil {
		t.Fatalf("upvote: %v", err)
	}
	if post.Upvotes != 1 {
		t.Fatalf("expected 1 upvote, got %d", post.Upvotes)
	}

	comment, err := c.CreateComment(ctx, post.ID, "nice")
	if err != nil {
		t.Fatalf("comment: %v", err)
	}
	if comment.PostID != post.ID || comment.Author != "alice" {
		t.Fatalf("unexpected comment %+v", comment)
	}
	comment, err = c.UpvoteComment(ctx, post.ID, comment.ID)
	if err != nil {
		t.Fatalf("upvote comment: %v", err)
	}
	if comment.Upvotes != 1 {
		t.Fatalf("expected comment upvote, got %d", comment.Upvotes)
	}

	detail, err := c.GetPost(ctx, post.ID)
	if err != nil {
		t.Fatalf("get post: %v", err)
	}
	if len(detail.Comments) != 1 || detail.Comments[0].Body != "nice" {
		t.Fatalf("unexpected comments %+v", detail.Comments)
	}

	posts, err := c.ListPosts(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(posts) != 1 || len(posts[0].Comments) != 1 || posts[0].Comments[0] != comment.ID {
		t.Fatalf("unexpected list %+v", posts)
	}
}

func TestWritesWithoutTokenSendNothing(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	c := New(srv.URL)
	ctx := context.Background()
	if _, err := c.CreatePost(ctx, "t", "l"); !errors.Is(err, ErrNotLoggedIn) {
		t.Fatalf("expected ErrNotLoggedIn, got %v", err)
	}
	if _, err := c.UpvoteComment(ctx, "p", "c"); !errors.Is(err, ErrNotLoggedIn) {
		t.Fatalf("expected ErrNotLoggedIn, got %v", err)
	}
	if hits.Load() != 0 {
		t.Fatalf("expected no requests, got %d", hits.Load())
	}
}

func TestMissingPostStatus(t *testing.T) {
	srv := newTestAPI(t)
	c := New(srv.URL)

	_, err := c.GetPost(context.Background(), "missing")
	if StatusCode(err) != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}
}

func TestNonJSONErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := New(srv.URL).ListPosts(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusBadGateway || !strings.Contains(apiErr.Message, "upstream down") {
		t.Fatalf("unexpected error %+v", apiErr)
	}
}

func TestIsLoggedInHonoursExpiry(t *testing.T) {
	issued := time.Now()
	svc := auth.NewService(nil, "whatever", time.Hour)
	token, err := svc.GenerateToken(model.User{ID: "u1", Username: "alice"})
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	c := New("http://unused")
	c.SetToken(token)
	c.now = func() time.Time { return issued.Add(30 * time.Minute) }
	if !c.IsLoggedIn() {
		t.Fatalf("expected logged in before expiry")
	}
	c.now = func() time.Time { return issued.Add(2 * time.Hour) }
	if c.IsLoggedIn() || c.CurrentUser() != "" {
		t.Fatalf("expected logged out after expiry")
	}

	c.SetToken("garbage")
	if c.IsLoggedIn() {
		t.Fatalf("garbage token is not a login")
	}
}
