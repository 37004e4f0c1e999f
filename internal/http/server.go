package httpapp

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/alphabot-ai/flapper/internal/auth"
	"github.com/alphabot-ai/flapper/internal/config"
	"github.com/alphabot-ai/flapper/internal/logging"
	"github.com/alphabot-ai/flapper/internal/model"
	"github.com/alphabot-ai/flapper/internal/store"

	_ "github.com/alphabot-ai/flapper/docs" // swagger docs

	httpSwagger "github.com/swaggo/http-swagger"
	"github.com/swaggo/swag"
)

const maxBodyBytes = 1 << 20

var errBadRequest = errors.New("invalid request body")

type Server struct {
	store   store.Store
	auth    *auth.Service
	log     logging.Logger
	cfg     config.Config
	handler http.Handler
}

func NewServer(store store.Store, authSvc *auth.Service, log logging.Logger, cfg config.Config) *Server {
	s := &Server{store: store, auth: authSvc, log: log, cfg: cfg}
	s.handler = s.withRequestLog(s.routes())
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /posts", s.handleListPosts)
	mux.HandleFunc("POST /posts", s.requireAuth(s.handleCreatePost))
	mux.HandleFunc("GET /posts/{postId}", s.handleGetPost)
	mux.HandleFunc("PUT /posts/{postId}/upvote", s.requireAuth(s.handleUpvotePost))
	mux.HandleFunc("POST /posts/{postId}/comments", s.requireAuth(s.handleCreateComment))
	mux.HandleFunc("PUT /posts/{postId}/comments/{commentId}/upvote", s.requireAuth(s.handleUpvoteComment))

	mux.HandleFunc("POST /register", s.handleRegister)
	mux.HandleFunc("POST /login", s.handleLogin)

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /openapi.json", s.serveOpenAPIJSON)
	mux.Handle("GET /swagger/", httpSwagger.Handler(httpSwagger.URL("/openapi.json")))

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		notFound(w)
	})
	return mux
}

// handleListPosts godoc
//
//	@Summary		List posts
//	@Description	All posts in submission order. Comments are listed by id.
//	@Tags			Posts
//	@Produce		json
//	@Success		200	{array}		model.Post
//	@Failure		500	{object}	map[string]string
//	@Router			/posts [get]
func (s *Server) handleListPosts(w http.ResponseWriter, r *http.Request) {
	posts, err := s.store.ListPosts(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, posts)
}

// handleCreatePost godoc
//
//	@Summary		Submit a post
//	@Description	The caller becomes the author. Upvotes start at zero.
//	@Tags			Posts
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			post	body		object{title=string,link=string}	true	"Post"
//	@Success		200		{object}	model.Post
//	@Failure		400		{object}	map[string]string	"Malformed body"
//	@Failure		401		{object}	map[string]string	"Missing or invalid token"
//	@Router			/posts [post]
func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request, id auth.Identity) {
	var req struct {
		Title string `json:"title"`
		Link  string `json:"link"`
	}
	if err := readJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	post := model.Post{
		Title:  req.Title,
		Link:   req.Link,
		Author: id.Username,
	}
	if err := s.store.CreatePost(r.Context(), &post); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, post)
}

// handleGetPost godoc
//
//	@Summary		Get a post
//	@Description	A single post with its comments populated, oldest first.
//	@Tags			Posts
//	@Produce		json
//	@Param			postId	path		string	true	"Post ID"
//	@Success		200		{object}	model.PostWithComments
//	@Failure		404		{object}	map[string]string	"Post not found"
//	@Router			/posts/{postId} [get]
func (s *Server) handleGetPost(w http.ResponseWriter, r *http.Request) {
	post, ok := s.resolvePost(w, r)
	if !ok {
		return
	}
	comments, err := s.store.ListCommentsByPost(r.Context(), post.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, model.PostWithComments{Post: post, Comments: comments})
}

// handleUpvotePost godoc
//
//	@Summary	Upvote a post
//	@Tags		Posts
//	@Produce	json
//	@Security	BearerAuth
//	@Param		postId	path		string	true	"Post ID"
//	@Success	200		{object}	model.Post
//	@Failure	401		{object}	map[string]string
//	@Failure	404		{object}	map[string]string
//	@Router		/posts/{postId}/upvote [put]
func (s *Server) handleUpvotePost(w http.ResponseWriter, r *http.Request, _ auth.Identity) {
	post, ok := s.resolvePost(w, r)
	if !ok {
		return
	}
	updated, err := s.store.UpvotePost(r.Context(), post.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// handleCreateComment godoc
//
//	@Summary		Comment on a post
//	@Description	The comment is stored and appended to the post's comment list in one step.
//	@Tags			Comments
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			postId	path		string				true	"Post ID"
//	@Param			comment	body		object{body=string}	true	"Comment"
//	@Success		200		{object}	model.Comment
//	@Failure		400		{object}	map[string]string
//	@Failure		401		{object}	map[string]string
//	@Failure		404		{object}	map[string]string
//	@Router			/posts/{postId}/comments [post]
func (s *Server) handleCreateComment(w http.ResponseWriter, r *http.Request, id auth.Identity) {
	post, ok := s.resolvePost(w, r)
	if !ok {
		return
	}
	var req struct {
		Body string `json:"body"`
	}
	if err := readJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	comment := model.Comment{
		PostID: post.ID,
		Body:   req.Body,
		Author: id.Username,
	}
	if err := s.store.CreateComment(r.Context(), &comment); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, comment)
}

// handleUpvoteComment godoc
//
//	@Summary	Upvote a comment
//	@Tags		Comments
//	@Produce	json
//	@Security	BearerAuth
//	@Param		postId		path		string	true	"Post ID"
//	@Param		commentId	path		string	true	"Comment ID"
//	@Success	200			{object}	model.Comment
//	@Failure	401			{object}	map[string]string
//	@Failure	404			{object}	map[string]string
//	@Router		/posts/{postId}/comments/{commentId}/upvote [put]
func (s *Server) handleUpvoteComment(w http.ResponseWriter, r *http.Request, _ auth.Identity) {
	post, ok := s.resolvePost(w, r)
	if !ok {
		return
	}
	comment, ok := s.resolveComment(w, r, post)
	if !ok {
		return
	}
	updated, err := s.store.UpvoteComment(r.Context(), comment.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// handleRegister godoc
//
//	@Summary	Create an account
//	@Tags		Auth
//	@Accept		json
//	@Produce	json
//	@Param		credentials	body		object{username=string,password=string}	true	"Credentials"
//	@Success	200			{object}	map[string]string						"token"
//	@Failure	400			{object}	map[string]string						"Missing fields"
//	@Failure	409			{object}	map[string]string						"Username taken"
//	@Router		/register [post]
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := readJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	token, err := s.auth.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// handleLogin godoc
//
//	@Summary	Log in
//	@Tags		Auth
//	@Accept		json
//	@Produce	json
//	@Param		credentials	body		object{username=string,password=string}	true	"Credentials"
//	@Success	200			{object}	map[string]string						"token"
//	@Failure	400			{object}	map[string]string						"Missing fields"
//	@Failure	401			{object}	map[string]string						"Wrong username or password"
//	@Router		/login [post]
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := readJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	token, err := s.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) serveOpenAPIJSON(w http.ResponseWriter, r *http.Request) {
	doc, err := swag.ReadDoc()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_, _ = io.WriteString(w, doc)
}

// resolvePost loads the post named by {postId} or answers 404.
func (s *Server) resolvePost(w http.ResponseWriter, r *http.Request) (model.Post, bool) {
	post, err := s.store.GetPost(r.Context(), r.PathValue("postId"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			err = fmt.Errorf("post %w", store.ErrNotFound)
		}
		s.fail(w, r, err)
		return model.Post{}, false
	}
	return post, true
}

// resolveComment loads {commentId} and checks it belongs to post.
func (s *Server) resolveComment(w http.ResponseWriter, r *http.Request, post model.Post) (model.Comment, bool) {
	comment, err := s.store.GetComment(r.Context(), r.PathValue("commentId"))
	if err == nil && comment.PostID != post.ID {
		err = store.ErrNotFound
	}
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			err = fmt.Errorf("comment %w", store.ErrNotFound)
		}
		s.fail(w, r, err)
		return model.Comment{}, false
	}
	return comment, true
}

func readJSON(w http.ResponseWriter, r *http.Request, dest any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dest); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}

func notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "not found")
}

func bearerToken(r *http.Request) (string, bool) {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	token = strings.TrimSpace(token)
	return token, ok && token != ""
}
