// Package view holds the controllers behind the post list and post detail
// screens. They validate input, delegate to the feed service and render
// plain text.
package view

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/alphabot-ai/flapper/internal/model"
)

var (
	ErrEmptyTitle = errors.New("title is required")
	ErrEmptyBody  = errors.New("comment body is required")
)

// ListFeed is what the list screen needs from the feed service.
type ListFeed interface {
	Posts() []model.Post
	Create(ctx context.Context, title, link string) (model.Post, error)
	Upvote(ctx context.Context, id string) (model.Post, error)
}

// DetailFeed is what the detail screen needs from the feed service.
type DetailFeed interface {
	Get(ctx context.Context, id string) (model.PostWithComments, error)
	AddComment(ctx context.Context, postID, body string) (model.Comment, error)
	UpvoteComment(ctx context.Context, postID, commentID string) (model.Comment, error)
}

type ListController struct {
	feed ListFeed
}

func NewListController(feed ListFeed) *ListController {
	return &ListController{feed: feed}
}

// AddPost submits a post. A blank title is refused before any request is made.
func (c *ListController) AddPost(ctx context.Context, title, link string) (model.Post, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return model.Post{}, ErrEmptyTitle
	}
	return c.feed.Create(ctx, title, strings.TrimSpace(link))
}

func (c *ListController) IncrementUpvotes(ctx context.Context, post model.Post) (model.Post, error) {
	return c.feed.Upvote(ctx, post.ID)
}

func (c *ListController) Render(w io.Writer) error {
	return templates.ExecuteTemplate(w, "list", c.feed.Posts())
}

type DetailController struct {
	feed   DetailFeed
	postID string
}

func NewDetailController(feed DetailFeed, postID string) *DetailController {
	return &DetailController{feed: feed, postID: postID}
}

func (c *DetailController) Post(ctx context.Context) (model.PostWithComments, error) {
	return c.feed.Get(ctx, c.postID)
}

// AddComment submits a comment on the controller's post. A blank body is
// refused before any request is made.
func (c *DetailController) AddComment(ctx context.Context, body string) (model.Comment, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return model.Comment{}, ErrEmptyBody
	}
	return c.feed.AddComment(ctx, c.postID, body)
}

func (c *DetailController) IncrementUpvotes(ctx context.Context, comment model.Comment) (model.Comment, error) {
	return c.feed.UpvoteComment(ctx, c.postID, comment.ID)
}

func (c *DetailController) Render(ctx context.Context, w io.Writer) error {
	post, err := c.Post(ctx)
	if err != nil {
		return err
	}
	return templates.ExecuteTemplate(w, "detail", post)
}
