package store

import (
	"context"
	"errors"

	"github.com/alphabot-ai/flapper/internal/model"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrDuplicateName = errors.New("duplicate name")
)

type Store interface {
	PostStore
	CommentStore
	UserStore
	Ping(ctx context.Context) error
	Close() error
}

// PostStore persists posts. Returned posts always carry their comment ids in insertion order.
type PostStore interface {
	CreatePost(ctx context.Context, post *model.Post) error
	GetPost(ctx context.Context, id string) (model.Post, error)
	ListPosts(ctx context.Context) ([]model.Post, error)
	UpvotePost(ctx context.Context, id string) (model.Post, error)
}

type CommentStore interface {
	// CreateComment stores the comment and appends it to its post's comment list
	// as one unit. It returns ErrNotFound when the post does not exist.
	CreateComment(ctx context.Context, comment *model.Comment) error
	GetComment(ctx context.Context, id string) (model.Comment, error)
	ListCommentsByPost(ctx context.Context, postID string) ([]model.Comment, error)
	UpvoteComment(ctx context.Context, id string) (model.Comment, error)
}

type UserStore interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByUsername(ctx context.Context, username string) (model.User, error)
}
