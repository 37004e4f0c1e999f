package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v2"
	"golang.org/x/term"

	"github.com/alphabot-ai/flapper/internal/client"
	"github.com/alphabot-ai/flapper/internal/feed"
	"github.com/alphabot-ai/flapper/internal/model"
	"github.com/alphabot-ai/flapper/internal/view"
)

// env bundles what every client command needs.
type env struct {
	sess   session
	client *client.Client
	feed   *feed.Service
	out    io.Writer
}

func newEnv(c *cli.Context) (*env, error) {
	sess, err := loadSession()
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if url := c.String("server"); url != "" {
		sess.BaseURL = url
	}
	if sess.BaseURL == "" {
		sess.BaseURL = defaultServerURL
	}

	api := client.New(sess.BaseURL)
	api.SetToken(sess.Token)
	svc, err := feed.New(api, feed.DefaultCacheSize, nil)
	if err != nil {
		return nil, err
	}
	return &env{sess: sess, client: api, feed: svc, out: c.App.Writer}, nil
}

func (e *env) requireLogin() error {
	if !e.client.IsLoggedIn() {
		return errors.New("not logged in (run `flapper login <username>`)")
	}
	return nil
}

func runAuth(register bool) cli.ActionFunc {
	return func(c *cli.Context) error {
		username := strings.TrimSpace(c.Args().First())
		if username == "" {
			return errors.New("username is required")
		}
		password := c.String("password")
		if password == "" {
			var err error
			if password, err = promptPassword(c.App.Writer); err != nil {
				return err
			}
		}

		e, err := newEnv(c)
		if err != nil {
			return err
		}
		if register {
			err = e.client.Register(c.Context, username, password)
		} else {
			err = e.client.Login(c.Context, username, password)
		}
		if err != nil {
			return err
		}

		e.sess.Token = e.client.Token()
		if err := saveSession(e.sess); err != nil {
			return fmt.Errorf("save session: %w", err)
		}
		fmt.Fprintf(e.out, "Logged in as %s\n", e.client.CurrentUser())
		return nil
	}
}

func promptPassword(w io.Writer) (string, error) {
	fmt.Fprint(w, "Password: ")
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}
		return strings.TrimRight(line, "\r\n"), nil
	}
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(w)
	if err != nil {
		return "", err
	}
	return string(pw), nil
}

func runLogout(c *cli.Context) error {
	e, err := newEnv(c)
	if err != nil {
		return err
	}
	e.client.Logout()
	e.sess.Token = ""
	if err := saveSession(e.sess); err != nil {
		return err
	}
	fmt.Fprintln(e.out, "Logged out")
	return nil
}

func runWhoami(c *cli.Context) error {
	e, err := newEnv(c)
	if err != nil {
		return err
	}
	if user := e.client.CurrentUser(); user != "" {
		fmt.Fprintf(e.out, "%s @ %s\n", user, e.sess.BaseURL)
		return nil
	}
	fmt.Fprintf(e.out, "not logged in @ %s\n", e.sess.BaseURL)
	return nil
}

func runList(c *cli.Context) error {
	e, err := newEnv(c)
	if err != nil {
		return err
	}
	if err := e.feed.Load(c.Context); err != nil {
		return err
	}
	return view.NewListController(e.feed).Render(e.out)
}

func runShow(c *cli.Context) error {
	postID, err := argAt(c, 0, "post id")
	if err != nil {
		return err
	}
	e, err := newEnv(c)
	if err != nil {
		return err
	}
	return view.NewDetailController(e.feed, postID).Render(c.Context, e.out)
}

func runPost(c *cli.Context) error {
	e, err := newEnv(c)
	if err != nil {
		return err
	}
	if err := e.requireLogin(); err != nil {
		return err
	}
	post, err := view.NewListController(e.feed).AddPost(c.Context, c.String("title"), c.String("link"))
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "Posted %s\n", post.ID)
	return nil
}

func runUpvote(c *cli.Context) error {
	postID, err := argAt(c, 0, "post id")
	if err != nil {
		return err
	}
	e, err := newEnv(c)
	if err != nil {
		return err
	}
	if err := e.requireLogin(); err != nil {
		return err
	}
	post, err := view.NewListController(e.feed).IncrementUpvotes(c.Context, model.Post{ID: postID})
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "%s now has %d upvotes\n", post.ID, post.Upvotes)
	return nil
}

func runComment(c *cli.Context) error {
	postID, err := argAt(c, 0, "post id")
	if err != nil {
		return err
	}
	body := strings.Join(c.Args().Tail(), " ")
	e, err := newEnv(c)
	if err != nil {
		return err
	}
	if err := e.requireLogin(); err != nil {
		return err
	}
	comment, err := view.NewDetailController(e.feed, postID).AddComment(c.Context, body)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "Commented %s\n", comment.ID)
	return nil
}

func runUpvoteComment(c *cli.Context) error {
	postID, err := argAt(c, 0, "post id")
	if err != nil {
		return err
	}
	commentID, err := argAt(c, 1, "comment id")
	if err != nil {
		return err
	}
	e, err := newEnv(c)
	if err != nil {
		return err
	}
	if err := e.requireLogin(); err != nil {
		return err
	}
	comment, err := view.NewDetailController(e.feed, postID).IncrementUpvotes(c.Context, model.Comment{ID: commentID})
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "%s now has %d upvotes\n", comment.ID, comment.Upvotes)
	return nil
}

func argAt(c *cli.Context, i int, name string) (string, error) {
	v := strings.TrimSpace(c.Args().Get(i))
	if v == "" {
		return "", fmt.Errorf("%s is required", name)
	}
	return v, nil
}
