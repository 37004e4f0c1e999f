package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alphabot-ai/flapper/internal/auth"
	"github.com/alphabot-ai/flapper/internal/client"
	"github.com/alphabot-ai/flapper/internal/config"
	httpapp "github.com/alphabot-ai/flapper/internal/http"
	"github.com/alphabot-ai/flapper/internal/logging"
	"github.com/alphabot-ai/flapper/internal/store/sqlite"
)

func TestSeedIsRepeatable(t *testing.T) {
	st, err := sqlite.Open("file:seed_test?mode=memory&cache=shared")
	require.NoError(t, err)
	defer st.Close()

	cfg := config.Config{Secret: "seed-secret", TokenTTL: config.DefaultTokenTTL}
	srv := httptest.NewServer(httpapp.NewServer(st, auth.NewService(st, cfg.Secret, cfg.TokenTTL), logging.Discard(), cfg))
	defer srv.Close()

	ctx := context.Background()
	require.NoError(t, seed(ctx, logging.Discard(), srv.URL, "pw"))
	// second run logs the existing users in instead of failing
	require.NoError(t, seed(ctx, logging.Discard(), srv.URL, "pw"))

	got, err := client.New(srv.URL).ListPosts(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 2*len(posts))
	for _, p := range got {
		assert.NotEmpty(t, p.Comments, "every seeded post gets at least one comment")
		assert.Contains(t, users, p.Author)
	}
	for i, p := range posts {
		assert.Equal(t, p.title, got[i].Title, "posts list in submission order")
	}
}

func TestSeedLogsFailedCommentUpvotes(t *testing.T) {
	st, err := sqlite.Open("file:seed_upvote_failures?mode=memory&cache=shared")
	require.NoError(t, err)
	defer st.Close()

	cfg := config.Config{Secret: "seed-secret", TokenTTL: config.DefaultTokenTTL}
	api := httpapp.NewServer(st, auth.NewService(st, cfg.Secret, cfg.TokenTTL), logging.Discard(), cfg)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut && strings.Contains(r.URL.Path, "/comments/") {
			http.Error(w, `{"error":"unavailable"}`, http.StatusServiceUnavailable)
			return
		}
		api.ServeHTTP(w, r)
	}))
	defer srv.Close()

	old := commentUpvoteRate
	commentUpvoteRate = 1
	t.Cleanup(func() { commentUpvoteRate = old })

	var buf bytes.Buffer
	require.NoError(t, seed(context.Background(), logging.New(&buf, "production", "info"), srv.URL, "pw"))
	assert.Contains(t, buf.String(), "comment upvote failed")
	assert.Contains(t, buf.String(), "unavailable")
}
