package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alphabot-ai/flapper/internal/dbx"
	"github.com/alphabot-ai/flapper/internal/model"
	"github.com/alphabot-ai/flapper/internal/store"
	"github.com/alphabot-ai/flapper/internal/store/migrations"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const (
	commentIDsQuery    = `SELECT comment_id FROM post_comments WHERE post_id = ? ORDER BY seq ASC`
	allCommentIDsQuery = `SELECT post_id, comment_id FROM post_comments ORDER BY seq ASC`
)

type Store struct {
	db *sql.DB
}

// Open connects to the database at path (a file name or a sqlite URI such as
// "file:x?mode=memory&cache=shared") and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", withPragma(path, "foreign_keys(1)"))
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := migrations.Up(context.Background(), db, migrations.SQLite); err != nil {
		_ = db.Close()
		return nil, err
	}
	// sqlite allows a single writer anyway
	db.SetMaxOpenConns(1)
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) CreatePost(ctx context.Context, post *model.Post) error {
	if post.ID == "" {
		post.ID = uuid.NewString()
	}
	post.Upvotes = 0
	post.Comments = []string{}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO posts (id, title, link, upvotes, author, created_at)
VALUES (?, ?, ?, 0, ?, ?)
`, post.ID, post.Title, post.Link, post.Author, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("insert post: %w", err)
	}
	return nil
}

func (s *Store) GetPost(ctx context.Context, id string) (model.Post, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, title, link, upvotes, author
FROM posts
WHERE id = ?
`, id)
	post, err := store.ScanPost(row)
	if err != nil {
		return model.Post{}, err
	}
	if post.Comments, err = store.CommentIDs(ctx, s.db, commentIDsQuery, id); err != nil {
		return model.Post{}, err
	}
	return post, nil
}

func (s *Store) ListPosts(ctx context.Context) ([]model.Post, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, title, link, upvotes, author
FROM posts
ORDER BY created_at ASC, rowid ASC
`)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	posts := []model.Post{}
	for rows.Next() {
		post, err := store.ScanPost(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		posts = append(posts, post)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	byPost, err := store.CommentIDsByPost(ctx, s.db, allCommentIDsQuery)
	if err != nil {
		return nil, err
	}
	for i := range posts {
		if ids, ok := byPost[posts[i].ID]; ok {
			posts[i].Comments = ids
		}
	}
	return posts, nil
}

func (s *Store) UpvotePost(ctx context.Context, id string) (model.Post, error) {
	row := s.db.QueryRowContext(ctx, `
UPDATE posts SET upvotes = upvotes + 1
WHERE id = ?
RETURNING id, title, link, upvotes, author
`, id)
	post, err := store.ScanPost(row)
	if err != nil {
		return model.Post{}, err
	}
	if post.Comments, err = store.CommentIDs(ctx, s.db, commentIDsQuery, id); err != nil {
		return model.Post{}, err
	}
	return post, nil
}

func (s *Store) CreateComment(ctx context.Context, comment *model.Comment) error {
	if comment.ID == "" {
		comment.ID = uuid.NewString()
	}
	comment.Upvotes = 0
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var one int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM posts WHERE id = ?`, comment.PostID).Scan(&one)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return store.ErrNotFound
			}
			return fmt.Errorf("lookup post: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO comments (id, post_id, body, author, upvotes)
VALUES (?, ?, ?, ?, 0)
`, comment.ID, comment.PostID, comment.Body, comment.Author); err != nil {
			return fmt.Errorf("insert comment: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO post_comments (post_id, comment_id) VALUES (?, ?)
`, comment.PostID, comment.ID); err != nil {
			return fmt.Errorf("append comment: %w", err)
		}
		return nil
	})
}

func (s *Store) GetComment(ctx context.Context, id string) (model.Comment, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, post_id, body, author, upvotes
FROM comments
WHERE id = ?
`, id)
	return store.ScanComment(row)
}

func (s *Store) ListCommentsByPost(ctx context.Context, postID string) ([]model.Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT c.id, c.post_id, c.body, c.author, c.upvotes
FROM post_comments pc
JOIN comments c ON c.id = pc.comment_id
WHERE pc.post_id = ?
ORDER BY pc.seq ASC
`, postID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	comments := []model.Comment{}
	for rows.Next() {
		c, err := store.ScanComment(rows)
		if err != nil {
			return nil, err
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

func (s *Store) UpvoteComment(ctx context.Context, id string) (model.Comment, error) {
	row := s.db.QueryRowContext(ctx, `
UPDATE comments SET upvotes = upvotes + 1
WHERE id = ?
RETURNING id, post_id, body, author, upvotes
`, id)
	return store.ScanComment(row)
}

func (s *Store) CreateUser(ctx context.Context, user *model.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO users (id, username, salt, hash) VALUES (?, ?, ?, ?)
`, user.ID, user.Username, user.Salt, user.Hash)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicateName
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (model.User, error) {
	var u model.User
	err := s.db.QueryRowContext(ctx, `
SELECT id, username, salt, hash FROM users WHERE username = ?
`, username).Scan(&u.ID, &u.Username, &u.Salt, &u.Hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, store.ErrNotFound
		}
		return model.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}


// withPragma adds a per-connection pragma to the DSN.
func withPragma(dsn, pragma string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=" + pragma
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "PRIMARY KEY")
}
