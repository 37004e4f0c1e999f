// Package postgres implements the flapper store on PostgreSQL through the pgx
// database/sql driver.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/alphabot-ai/flapper/internal/dbx"
	"github.com/alphabot-ai/flapper/internal/model"
	"github.com/alphabot-ai/flapper/internal/store"
	"github.com/alphabot-ai/flapper/internal/store/migrations"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const uniqueViolation = "23505"

const (
	commentIDsQuery    = `SELECT comment_id FROM post_comments WHERE post_id = $1 ORDER BY seq ASC`
	allCommentIDsQuery = `SELECT post_id, comment_id FROM post_comments ORDER BY seq ASC`
)

type Store struct {
	db *sql.DB
}

// Open connects with a pgx DSN and applies the schema.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	if err := migrations.Up(ctx, db, migrations.Postgres); err != nil {
		_ = db.Close()
		return nil, err
	}
	return New(db), nil
}

// New wraps an already migrated connection pool.
func New(db *sql.DB) *Store {
	return &Store{db: db}
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
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO posts (id, title, link, upvotes, author)
		 VALUES ($1, $2, $3, 0, $4)`,
		post.ID, post.Title, post.Link, post.Author)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (s *Store) GetPost(ctx context.Context, id string) (model.Post, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, link, upvotes, author FROM posts
		 WHERE id = $1`, id)
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
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, link, upvotes, author FROM posts
		 ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	posts := []model.Post{}
	for rows.Next() {
		post, err := store.ScanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
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
	row := s.db.QueryRowContext(ctx,
		`UPDATE posts SET upvotes = upvotes + 1
		 WHERE id = $1
		 RETURNING id, title, link, upvotes, author`, id)
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
		// row lock keeps concurrent appends to one post in commit order
		var postID string
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM posts WHERE id = $1 FOR UPDATE`, comment.PostID).Scan(&postID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return store.ErrNotFound
			}
			return fmt.Errorf("db error: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO comments (id, post_id, body, author, upvotes)
			 VALUES ($1, $2, $3, $4, 0)`,
			comment.ID, comment.PostID, comment.Body, comment.Author); err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO post_comments (post_id, comment_id) VALUES ($1, $2)`,
			comment.PostID, comment.ID); err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		return nil
	})
}

func (s *Store) GetComment(ctx context.Context, id string) (model.Comment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, post_id, body, author, upvotes FROM comments
		 WHERE id = $1`, id)
	return store.ScanComment(row)
}

func (s *Store) ListCommentsByPost(ctx context.Context, postID string) ([]model.Comment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.id, c.post_id, c.body, c.author, c.upvotes
		 FROM post_comments pc
		 JOIN comments c ON c.id = pc.comment_id
		 WHERE pc.post_id = $1
		 ORDER BY pc.seq ASC`, postID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
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
	row := s.db.QueryRowContext(ctx,
		`UPDATE comments SET upvotes = upvotes + 1
		 WHERE id = $1
		 RETURNING id, post_id, body, author, upvotes`, id)
	return store.ScanComment(row)
}

func (s *Store) CreateUser(ctx context.Context, user *model.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, username, salt, hash)
		 VALUES ($1, $2, $3, $4)`,
		user.ID, user.Username, user.Salt, user.Hash)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return store.ErrDuplicateName
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (model.User, error) {
	var u model.User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, salt, hash FROM users
		 WHERE username = $1`, username).Scan(&u.ID, &u.Username, &u.Salt, &u.Hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, store.ErrNotFound
		}
		return model.User{}, fmt.Errorf("db error: %w", err)
	}
	return u, nil
}

