package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/http"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/alphabot-ai/flapper/internal/client"
	"github.com/alphabot-ai/flapper/internal/logging"
	"github.com/alphabot-ai/flapper/internal/model"
)

// commentUpvoteRate is the share of seeded comments that get an upvote.
var commentUpvoteRate float32 = 0.5

var users = []string{"alice", "bob", "carol", "dave", "erin"}

var posts = []struct {
	title string
	link  string
}{
	{"Show Flapper: a link aggregator in one binary", "https://example.com/flapper"},
	{"SQLite is enough for most side projects", "https://example.com/sqlite-enough"},
	{"Ask Flapper: what are you reading this week?", ""},
	{"Optimistic UI updates and how to undo them", "https://example.com/optimistic-ui"},
	{"A field guide to JSON web tokens", "https://example.com/jwt-guide"},
	{"Why we stopped storing passwords in 2009", "https://example.com/password-storage"},
	{"The LRU cache, explained with index cards", "https://example.com/lru-cards"},
	{"Postgres transactions for people in a hurry", "https://example.com/pg-tx"},
}

var comments = []string{
	"Great write-up, thanks for sharing.",
	"I disagree with the premise, but the examples are good.",
	"Has anyone benchmarked this?",
	"This reminds me of the early days of the web.",
	"Bookmarked for the weekend.",
	"Can you share more details about the implementation?",
	"The code looks clean. Nice work!",
	"Would love a follow-up on this.",
}

func main() {
	app := &cli.App{
		Name:  "seed",
		Usage: "fill a flapper server with demo users, posts, comments and upvotes",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "url", Value: "http://localhost:8080", Usage: "flapper server URL", EnvVars: []string{"FLAPPER_URL"}},
			&cli.StringFlag{Name: "password", Value: "flapper", Usage: "password for every demo user"},
		},
		Action: func(c *cli.Context) error {
			log := logging.New(os.Stderr, "development", "info")
			return seed(c.Context, log, c.String("url"), c.String("password"))
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "seed:", err)
		os.Exit(1)
	}
}

func seed(ctx context.Context, log logging.Logger, baseURL, password string) error {
	log.Info(ctx, "seeding", "url", baseURL)

	var clients []*client.Client
	for _, name := range users {
		c := client.New(baseURL)
		err := c.Register(ctx, name, password)
		if client.StatusCode(err) == http.StatusConflict {
			err = c.Login(ctx, name, password)
		}
		if err != nil {
			return fmt.Errorf("sign in %s: %w", name, err)
		}
		log.Info(ctx, "user ready", "username", name)
		clients = append(clients, c)
	}

	var created []model.Post
	for _, p := range posts {
		c := clients[rand.IntN(len(clients))]
		post, err := c.CreatePost(ctx, p.title, p.link)
		if err != nil {
			log.Warn(ctx, "post failed", "title", p.title, "error", err)
			continue
		}
		created = append(created, post)
		log.Info(ctx, "posted", "id", post.ID, "title", post.Title, "author", post.Author)
	}

	var commentCount, upvoteCount int
	for _, post := range created {
		for i := rand.IntN(4) + 1; i > 0; i-- {
			c := clients[rand.IntN(len(clients))]
			comment, err := c.CreateComment(ctx, post.ID, comments[rand.IntN(len(comments))])
			if err != nil {
				log.Warn(ctx, "comment failed", "post", post.ID, "error", err)
				continue
			}
			commentCount++
			if rand.Float32() < commentUpvoteRate {
				if _, err := clients[rand.IntN(len(clients))].UpvoteComment(ctx, post.ID, comment.ID); err != nil {
					log.Warn(ctx, "comment upvote failed", "post", post.ID, "comment", comment.ID, "error", err)
					continue
				}
				upvoteCount++
			}
		}
	}

	for _, c := range clients {
		for _, post := range created {
			if rand.Float32() < 0.4 {
				continue
			}
			if _, err := c.UpvotePost(ctx, post.ID); err != nil {
				log.Warn(ctx, "upvote failed", "post", post.ID, "error", err)
				continue
			}
			upvoteCount++
		}
	}

	log.Info(ctx, "seed complete",
		"users", len(clients),
		"posts", len(created),
		"comments", commentCount,
		"upvotes", upvoteCount,
	)
	return nil
}
