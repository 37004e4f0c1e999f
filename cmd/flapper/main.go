package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

const version = "0.1.0"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "flapper",
		Usage:   "a small link aggregator: server and terminal client",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server",
				Aliases: []string{"s"},
				Usage:   "base URL of the flapper API",
				EnvVars: []string{"FLAPPER_URL"},
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			{
				Name:      "register",
				Usage:     "create an account and log in",
				ArgsUsage: "<username>",
				Flags:     []cli.Flag{passwordFlag()},
				Action:    runAuth(true),
			},
			{
				Name:      "login",
				Usage:     "log in and remember the token",
				ArgsUsage: "<username>",
				Flags:     []cli.Flag{passwordFlag()},
				Action:    runAuth(false),
			},
			{
				Name:   "logout",
				Usage:  "forget the stored token",
				Action: runLogout,
			},
			{
				Name:   "whoami",
				Usage:  "show the logged in user",
				Action: runWhoami,
			},
			{
				Name:    "list",
				Aliases: []string{"ls"},
				Usage:   "list all posts",
				Action:  runList,
			},
			{
				Name:      "show",
				Usage:     "show a post and its comments",
				ArgsUsage: "<post-id>",
				Action:    runShow,
			},
			{
				Name:  "post",
				Usage: "submit a post",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "title", Aliases: []string{"t"}, Required: true},
					&cli.StringFlag{Name: "link", Aliases: []string{"l"}},
				},
				Action: runPost,
			},
			{
				Name:      "upvote",
				Usage:     "upvote a post",
				ArgsUsage: "<post-id>",
				Action:    runUpvote,
			},
			{
				Name:      "comment",
				Usage:     "comment on a post",
				ArgsUsage: "<post-id> <text>",
				Action:    runComment,
			},
			{
				Name:      "upvote-comment",
				Usage:     "upvote a comment",
				ArgsUsage: "<post-id> <comment-id>",
				Action:    runUpvoteComment,
			},
		},
	}
}

func passwordFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "password",
		Aliases: []string{"p"},
		Usage:   "password (prompted when omitted)",
		EnvVars: []string{"FLAPPER_PASSWORD"},
	}
}
