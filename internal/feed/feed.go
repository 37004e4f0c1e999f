// Package feed keeps a client-side view of the posts on a Flapper server.
//
// A Service holds one ordered mirror of all posts plus an LRU cache of
// posts with their comments populated. Writes are applied to the local
// state before the server confirms them and are undone if the call fails.
// The mirror is not kept in sync with writes made by other clients; call
// Load or Reconnect to refresh it.
package feed

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/alphabot-ai/flapper/internal/logging"
	"github.com/alphabot-ai/flapper/internal/model"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
)

const DefaultCacheSize = 128

// getAttempts bounds how often Get refetches a post that was written to
// while the fetch was in flight.
const getAttempts = 3

// API is the subset of the server API the service drives.
// *client.Client satisfies it.
type API interface {
	ListPosts(ctx context.Context) ([]model.Post, error)
	GetPost(ctx context.Context, id string) (model.PostWithComments, error)
	CreatePost(ctx context.Context, title, link string) (model.Post, error)
	UpvotePost(ctx context.Context, id string) (model.Post, error)
	CreateComment(ctx context.Context, postID, body string) (model.Comment, error)
	UpvoteComment(ctx context.Context, postID, commentID string) (model.Comment, error)
}

type Service struct {
	api API
	log logging.Logger

	mu      sync.Mutex
	posts   []model.Post
	details *lru.Cache[string, model.PostWithComments]

	// gen counts local changes per post id and epoch counts reloads.
	// A fetch is only cached if neither moved while it was in flight.
	gen   map[string]uint64
	epoch uint64
}

func New(api API, cacheSize int, log logging.Logger) (*Service, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	details, err := lru.New[string, model.PostWithComments](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("detail cache: %w", err)
	}
	if log == nil {
		log = logging.Discard()
	}
	return &Service{api: api, log: log, details: details, gen: map[string]uint64{}}, nil
}

// Load replaces the mirror with the server's post list.
func (s *Service) Load(ctx context.Context) error {
	posts, err := s.api.ListPosts(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.posts = posts
	s.epoch++
	s.mu.Unlock()
	return nil
}

// Reconnect drops every cached detail and reloads the mirror.
func (s *Service) Reconnect(ctx context.Context) error {
	s.mu.Lock()
	s.details.Purge()
	s.epoch++
	s.mu.Unlock()
	return s.Load(ctx)
}

// Posts returns a copy of the mirror in server order.
func (s *Service) Posts() []model.Post {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Post, len(s.posts))
	for i, p := range s.posts {
		out[i] = clonePost(p)
	}
	return out
}

// Create appends a pending post, then swaps in the server's copy.
// On failure the pending post is removed again.
func (s *Service) Create(ctx context.Context, title, link string) (model.Post, error) {
	pendingID := "pending-" + uuid.NewString()
	s.mu.Lock()
	s.posts = append(s.posts, model.Post{ID: pendingID, Title: title, Link: link, Comments: []string{}})
	s.mu.Unlock()

	created, err := s.api.CreatePost(ctx, title, link)

	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(pendingID)
	if err != nil {
		if i >= 0 {
			s.posts = slices.Delete(s.posts, i, i+1)
		}
		s.log.Warn(ctx, "create post rolled back", "title", title, "error", err)
		return model.Post{}, err
	}
	if i >= 0 {
		s.posts[i] = created
	} else {
		s.posts = append(s.posts, created)
	}
	return clonePost(created), nil
}

// Upvote bumps the post locally before asking the server, and takes the
// server's count back on success.
func (s *Service) Upvote(ctx context.Context, id string) (model.Post, error) {
	s.mu.Lock()
	epoch := s.epoch
	inDetail := s.adjustPostLocked(id, 1)
	gen := s.touchLocked(id)
	s.mu.Unlock()

	updated, err := s.api.UpvotePost(ctx, id)
	if err != nil {
		s.mu.Lock()
		// A reloaded mirror already holds the server's count.
		if s.epoch == epoch {
			if i := s.indexLocked(id); i >= 0 {
				s.posts[i].Upvotes--
			}
		}
		if inDetail {
			s.undoDetailLocked(id, gen, func(d *model.PostWithComments) { d.Upvotes-- })
		}
		s.touchLocked(id)
		s.mu.Unlock()
		s.log.Warn(ctx, "upvote rolled back", "post", id, "error", err)
		return model.Post{}, err
	}

	s.mu.Lock()
	if i := s.indexLocked(id); i >= 0 {
		s.posts[i].Upvotes = updated.Upvotes
	}
	if d, ok := s.details.Peek(id); ok {
		d = cloneDetail(d)
		d.Upvotes = updated.Upvotes
		s.details.Add(id, d)
	}
	s.touchLocked(id)
	s.mu.Unlock()
	return updated, nil
}

// adjustPostLocked reports whether a cached detail was adjusted too.
func (s *Service) adjustPostLocked(id string, delta int) bool {
	if i := s.indexLocked(id); i >= 0 {
		s.posts[i].Upvotes += delta
	}
	d, ok := s.details.Peek(id)
	if !ok {
		return false
	}
	d = cloneDetail(d)
	d.Upvotes += delta
	s.details.Add(id, d)
	return true
}

// Get returns the post with its comments, from cache when possible.
// A fetch that overlaps a local write to the same post is retried, since
// its answer may predate the write.
func (s *Service) Get(ctx context.Context, id string) (model.PostWithComments, error) {
	for attempt := 1; ; attempt++ {
		s.mu.Lock()
		if d, ok := s.details.Get(id); ok {
			s.mu.Unlock()
			return cloneDetail(d), nil
		}
		gen, epoch := s.gen[id], s.epoch
		s.mu.Unlock()

		d, err := s.api.GetPost(ctx, id)
		if err != nil {
			return model.PostWithComments{}, err
		}

		s.mu.Lock()
		if s.gen[id] == gen && s.epoch == epoch {
			s.details.Add(id, d)
			s.touchLocked(id)
			s.mu.Unlock()
			return cloneDetail(d), nil
		}
		s.mu.Unlock()
		if attempt == getAttempts {
			return cloneDetail(d), nil
		}
	}
}

// AddComment posts a comment and appends it to the cached detail and the
// mirrored post.
func (s *Service) AddComment(ctx context.Context, postID, body string) (model.Comment, error) {
	comment, err := s.api.CreateComment(ctx, postID, body)
	if err != nil {
		return model.Comment{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.details.Peek(postID); ok {
		d = cloneDetail(d)
		d.Comments = append(d.Comments, comment)
		d.Post.Comments = append(d.Post.Comments, comment.ID)
		s.details.Add(postID, d)
	}
	if i := s.indexLocked(postID); i >= 0 {
		s.posts[i].Comments = append(slices.Clone(s.posts[i].Comments), comment.ID)
	}
	s.touchLocked(postID)
	return comment, nil
}

// UpvoteComment bumps the cached comment before asking the server and
// undoes it on failure.
func (s *Service) UpvoteComment(ctx context.Context, postID, commentID string) (model.Comment, error) {
	s.mu.Lock()
	inDetail := s.adjustCommentLocked(postID, commentID, 1)
	gen := s.touchLocked(postID)
	s.mu.Unlock()

	updated, err := s.api.UpvoteComment(ctx, postID, commentID)
	if err != nil {
		s.mu.Lock()
		if inDetail {
			s.undoDetailLocked(postID, gen, func(d *model.PostWithComments) {
				if j := commentIndex(d.Comments, commentID); j >= 0 {
					d.Comments[j].Upvotes--
				}
			})
		}
		s.touchLocked(postID)
		s.mu.Unlock()
		s.log.Warn(ctx, "comment upvote rolled back", "post", postID, "comment", commentID, "error", err)
		return model.Comment{}, err
	}

	s.mu.Lock()
	if d, ok := s.details.Peek(postID); ok {
		d = cloneDetail(d)
		if j := commentIndex(d.Comments, commentID); j >= 0 {
			d.Comments[j].Upvotes = updated.Upvotes
			s.details.Add(postID, d)
		}
	}
	s.touchLocked(postID)
	s.mu.Unlock()
	return updated, nil
}

func (s *Service) adjustCommentLocked(postID, commentID string, delta int) bool {
	d, ok := s.details.Peek(postID)
	if !ok {
		return false
	}
	d = cloneDetail(d)
	j := commentIndex(d.Comments, commentID)
	if j < 0 {
		return false
	}
	d.Comments[j].Upvotes += delta
	s.details.Add(postID, d)
	return true
}

// undoDetailLocked reverts an optimistic change to the cached detail of
// id. If the entry changed since gen it is no longer the one that was
// adjusted, so it is dropped and the next Get refetches it.
func (s *Service) undoDetailLocked(id string, gen uint64, undo func(*model.PostWithComments)) {
	d, ok := s.details.Peek(id)
	if !ok {
		return
	}
	if s.gen[id] != gen {
		s.details.Remove(id)
		return
	}
	d = cloneDetail(d)
	undo(&d)
	s.details.Add(id, d)
}

func (s *Service) touchLocked(id string) uint64 {
	s.gen[id]++
	return s.gen[id]
}

func (s *Service) indexLocked(id string) int {
	return slices.IndexFunc(s.posts, func(p model.Post) bool { return p.ID == id })
}

func commentIndex(comments []model.Comment, id string) int {
	return slices.IndexFunc(comments, func(c model.Comment) bool { return c.ID == id })
}

func clonePost(p model.Post) model.Post {
	p.Comments = slices.Clone(p.Comments)
	return p
}

func cloneDetail(d model.PostWithComments) model.PostWithComments {
	d.Post = clonePost(d.Post)
	d.Comments = slices.Clone(d.Comments)
	return d
}
