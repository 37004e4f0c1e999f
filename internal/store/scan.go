package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/alphabot-ai/flapper/internal/dbx"
	"github.com/alphabot-ai/flapper/internal/model"
)

// Scanner is a *sql.Row or *sql.Rows.
type Scanner interface {
	Scan(dest ...any) error
}

// ScanPost reads id, title, link, upvotes, author. Comments start empty.
func ScanPost(s Scanner) (model.Post, error) {
	p := model.Post{Comments: []string{}}
	if err := s.Scan(&p.ID, &p.Title, &p.Link, &p.Upvotes, &p.Author); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Post{}, ErrNotFound
		}
		return model.Post{}, fmt.Errorf("scan post: %w", err)
	}
	return p, nil
}

// ScanComment reads id, post_id, body, author, upvotes.
func ScanComment(s Scanner) (model.Comment, error) {
	var c model.Comment
	if err := s.Scan(&c.ID, &c.PostID, &c.Body, &c.Author, &c.Upvotes); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Comment{}, ErrNotFound
		}
		return model.Comment{}, fmt.Errorf("scan comment: %w", err)
	}
	return c, nil
}

// CommentIDs runs a query selecting one comment_id column and collects the
// ids in row order. The result is never nil.
func CommentIDs(ctx context.Context, db dbx.DBTX, query string, args ...any) ([]string, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("comment ids: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CommentIDsByPost runs a query selecting post_id, comment_id and groups the
// comment ids per post in row order.
func CommentIDsByPost(ctx context.Context, db dbx.DBTX, query string) (map[string][]string, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("comment ids: %w", err)
	}
	defer rows.Close()

	byPost := make(map[string][]string)
	for rows.Next() {
		var postID, commentID string
		if err := rows.Scan(&postID, &commentID); err != nil {
			return nil, err
		}
		byPost[postID] = append(byPost[postID], commentID)
	}
	return byPost, rows.Err()
}
