package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alphabot-ai/flapper/internal/model"
	"github.com/alphabot-ai/flapper/internal/store"
)

var (
	postCols    = []string{"id", "title", "link", "upvotes", "author"}
	commentCols = []string{"id", "post_id", "body", "author", "upvotes"}
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return New(db), mock
}

func TestCreatePost(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO posts \(id, title, link, upvotes, author\)`).
		WithArgs(sqlmock.AnyArg(), "Hello", "http://x", "alice").
		WillReturnResult(sqlmock.NewResult(0, 1))

	post := model.Post{Title: "Hello", Link: "http://x", Author: "alice", Upvotes: 3}
	require.NoError(t, st.CreatePost(context.Background(), &post))
	assert.NotEmpty(t, post.ID)
	assert.Equal(t, 0, post.Upvotes)
	assert.Equal(t, []string{}, post.Comments)
}

func TestCreatePostDBError(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO posts`).WillReturnError(errors.New("db down"))

	err := st.CreatePost(context.Background(), &model.Post{Title: "x"})
	require.Error(t, err)
	assert.Regexp(t, `db error: .*db down`, err.Error())
}

func TestGetPostWithCommentIDs(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT id, title, link, upvotes, author FROM posts\s+WHERE id = \$1`).
		WithArgs("p1").
		WillReturnRows(sqlmock.NewRows(postCols).AddRow("p1", "Hello", "http://x", 2, "alice"))
	mock.ExpectQuery(`SELECT comment_id FROM post_comments\s+WHERE post_id = \$1\s+ORDER BY seq ASC`).
		WithArgs("p1").
		WillReturnRows(sqlmock.NewRows([]string{"comment_id"}).AddRow("c1").AddRow("c2"))

	post, err := st.GetPost(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "Hello", post.Title)
	assert.Equal(t, 2, post.Upvotes)
	assert.Equal(t, []string{"c1", "c2"}, post.Comments)
}

func TestGetPostNotFound(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery(`FROM posts`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(postCols))

	_, err := st.GetPost(context.Background(), "missing")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestListPostsGroupsComments(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT id, title, link, upvotes, author FROM posts\s+ORDER BY seq ASC`).
		WillReturnRows(sqlmock.NewRows(postCols).
			AddRow("p1", "First", "", 0, "alice").
			AddRow("p2", "Second", "", 4, "bob"))
	mock.ExpectQuery(`SELECT post_id, comment_id FROM post_comments`).
		WillReturnRows(sqlmock.NewRows([]string{"post_id", "comment_id"}).
			AddRow("p2", "c1").
			AddRow("p2", "c2"))

	posts, err := st.ListPosts(context.Background())
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, []string{}, posts[0].Comments)
	assert.Equal(t, []string{"c1", "c2"}, posts[1].Comments)
}

func TestUpvotePost(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery(`UPDATE posts SET upvotes = upvotes \+ 1\s+WHERE id = \$1\s+RETURNING`).
		WithArgs("p1").
		WillReturnRows(sqlmock.NewRows(postCols).AddRow("p1", "Hello", "", 1, "alice"))
	mock.ExpectQuery(`SELECT comment_id FROM post_comments`).
		WithArgs("p1").
		WillReturnRows(sqlmock.NewRows([]string{"comment_id"}))

	post, err := st.UpvotePost(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 1, post.Upvotes)
}

func TestCreateCommentCommits(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id FROM posts WHERE id = \$1 FOR UPDATE`).
		WithArgs("p1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("p1"))
	mock.ExpectExec(`INSERT INTO comments`).
		WithArgs(sqlmock.AnyArg(), "p1", "nice", "alice").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO post_comments \(post_id, comment_id\)`).
		WithArgs("p1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	c := model.Comment{PostID: "p1", Body: "nice", Author: "alice"}
	require.NoError(t, st.CreateComment(context.Background(), &c))
	assert.NotEmpty(t, c.ID)
}

func TestCreateCommentMissingPostRollsBack(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id FROM posts WHERE id = \$1 FOR UPDATE`).
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	err := st.CreateComment(context.Background(), &model.Comment{PostID: "nope", Body: "x"})
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestCreateCommentAppendFailureRollsBack(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).
		WithArgs("p1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("p1"))
	mock.ExpectExec(`INSERT INTO comments`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO post_comments`).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err := st.CreateComment(context.Background(), &model.Comment{PostID: "p1", Body: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestListCommentsByPost(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery(`JOIN comments c ON c.id = pc.comment_id`).
		WithArgs("p1").
		WillReturnRows(sqlmock.NewRows(commentCols).
			AddRow("c1", "p1", "first", "alice", 0).
			AddRow("c2", "p1", "second", "bob", 3))

	comments, err := st.ListCommentsByPost(context.Background(), "p1")
	require.NoError(t, err)
	require.Len(t, comments, 2)
	assert.Equal(t, "second", comments[1].Body)
	assert.Equal(t, 3, comments[1].Upvotes)
}

func TestUpvoteCommentNotFound(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery(`UPDATE comments SET upvotes = upvotes \+ 1`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(commentCols))

	_, err := st.UpvoteComment(context.Background(), "missing")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestCreateUserDuplicate(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO users`).
		WithArgs(sqlmock.AnyArg(), "alice", "salt", "hash").
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value"})

	err := st.CreateUser(context.Background(), &model.User{Username: "alice", Salt: "salt", Hash: "hash"})
	require.ErrorIs(t, err, store.ErrDuplicateName)
}

func TestGetUserByUsername(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT id, username, salt, hash FROM users\s+WHERE username = \$1`).
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "salt", "hash"}).
			AddRow("u1", "alice", "s", "h"))
	mock.ExpectQuery(`FROM users`).
		WithArgs("bob").
		WillReturnError(sql.ErrNoRows)

	u, err := st.GetUserByUsername(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)

	_, err = st.GetUserByUsername(context.Background(), "bob")
	require.ErrorIs(t, err, store.ErrNotFound)
}
