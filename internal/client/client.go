// Package client provides a Go client for the Flapper API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/alphabot-ai/flapper/internal/model"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNotLoggedIn is returned by authenticated calls made without a token.
var ErrNotLoggedIn = errors.New("not logged in")

// APIError is a non-2xx answer from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("flapper: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("flapper: %d %s", e.StatusCode, e.Message)
}

// StatusCode extracts the HTTP status from an *APIError, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// Client is a Flapper API client. It remembers the token issued by
// Register or Login and sends it on every write.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	mu    sync.RWMutex
	token string
	now   func() time.Time
}

// New creates a new Flapper client.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		now:        time.Now,
	}
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Logout forgets the token.
func (c *Client) Logout() {
	c.SetToken("")
}

// IsLoggedIn reports whether a token is held and its exp claim is still in
// the future. The signature is not checked; only the server can do that.
func (c *Client) IsLoggedIn() bool {
	claims, ok := c.claims()
	if !ok || claims.ExpiresAt == nil {
		return false
	}
	return claims.ExpiresAt.After(c.now())
}

// CurrentUser returns the username of a logged-in client, or "".
func (c *Client) CurrentUser() string {
	if !c.IsLoggedIn() {
		return ""
	}
	claims, _ := c.claims()
	return claims.Username
}

type tokenClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

func (c *Client) claims() (*tokenClaims, bool) {
	token := c.Token()
	if token == "" {
		return nil, false
	}
	claims := &tokenClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, false
	}
	return claims, true
}

// Register creates an account and keeps the returned token.
func (c *Client) Register(ctx context.Context, username, password string) error {
	return c.authenticate(ctx, "/register", username, password)
}

// Login exchanges credentials for a token and keeps it.
func (c *Client) Login(ctx context.Context, username, password string) error {
	return c.authenticate(ctx, "/login", username, password)
}

func (c *Client) authenticate(ctx context.Context, path, username, password string) error {
	var result struct {
		Token string `json:"token"`
	}
	body := map[string]string{"username": username, "password": password}
	if err := c.call(ctx, http.MethodPost, path, false, body, &result); err != nil {
		return err
	}
	if result.Token == "" {
		return errors.New("flapper: empty token in response")
	}
	c.SetToken(result.Token)
	return nil
}

func (c *Client) ListPosts(ctx context.Context) ([]model.Post, error) {
	var posts []model.Post
	if err := c.call(ctx, http.MethodGet, "/posts", false, nil, &posts); err != nil {
		return nil, err
	}
	return posts, nil
}

// GetPost fetches a post with its comments populated.
func (c *Client) GetPost(ctx context.Context, id string) (model.PostWithComments, error) {
	var post model.PostWithComments
	if err := c.call(ctx, http.MethodGet, postPath(id), false, nil, &post); err != nil {
		return model.PostWithComments{}, err
	}
	return post, nil
}

func (c *Client) CreatePost(ctx context.Context, title, link string) (model.Post, error) {
	var post model.Post
	body := map[string]string{"title": title, "link": link}
	if err := c.call(ctx, http.MethodPost, "/posts", true, body, &post); err != nil {
		return model.Post{}, err
	}
	return post, nil
}

func (c *Client) UpvotePost(ctx context.Context, id string) (model.Post, error) {
	var post model.Post
	if err := c.call(ctx, http.MethodPut, postPath(id)+"/upvote", true, nil, &post); err != nil {
		return model.Post{}, err
	}
	return post, nil
}

func (c *Client) CreateComment(ctx context.Context, postID, body string) (model.Comment, error) {
	var comment model.Comment
	req := map[string]string{"body": body}
	if err := c.call(ctx, http.MethodPost, postPath(postID)+"/comments", true, req, &comment); err != nil {
		return model.Comment{}, err
	}
	return comment, nil
}

func (c *Client) UpvoteComment(ctx context.Context, postID, commentID string) (model.Comment, error) {
	var comment model.Comment
	path := postPath(postID) + "/comments/" + url.PathEscape(commentID) + "/upvote"
	if err := c.call(ctx, http.MethodPut, path, true, nil, &comment); err != nil {
		return model.Comment{}, err
	}
	return comment, nil
}

func postPath(id string) string {
	return "/posts/" + url.PathEscape(id)
}

// call performs the request and decodes a 2xx body into out.
func (c *Client) call(ctx context.Context, method, path string, authed bool, body, out any) error {
	if authed && c.Token() == "" {
		return ErrNotLoggedIn
	}
	resp, err := c.doRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return readAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// doRequest performs an HTTP request, authenticated when a token is held.
func (c *Client) doRequest(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return c.HTTPClient.Do(req)
}

func readAPIError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var payload struct {
		Error string `json:"error"`
	}
	msg := strings.TrimSpace(string(raw))
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Error != "" {
		msg = payload.Error
	}
	return &APIError{StatusCode: resp.StatusCode, Message: msg}
}
