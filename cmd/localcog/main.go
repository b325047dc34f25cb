package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.Command{
		Name:  "localcog",
		Usage: "multi-model answer fusion and document retrieval over a local Ollama runtime",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "path to YAML config file (default ./config.yaml, then ~/.config/localcog/config.yaml)",
			},
			&cli.StringFlag{
				Name:  "env",
				Usage: "environment file path",
				Value: ".env",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP API",
				Action: serveAction,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "addr",
						Usage: "listen address, overrides http.addr",
					},
				},
			},
			{
				Name:      "ingest",
				Usage:     "add documents to the retrieval corpus",
				ArgsUsage: "<file> [file...]",
				Action:    ingestAction,
			},
			{
				Name:   "chat",
				Usage:  "open the terminal chat client",
				Action: chatAction,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "rag",
						Usage: "augment prompts with retrieved documents",
					},
					&cli.StringSliceFlag{
						Name:  "model",
						Usage: "model to ask, repeatable (default chat.default_models)",
					},
					&cli.StringSliceFlag{
						Name:  "tool",
						Usage: "tool to run for each message: web_search, github",
					},
					&cli.StringFlag{
						Name:  "session",
						Usage: "session id to resume (default: a new session)",
					},
				},
			},
			{
				Name:   "models",
				Usage:  "list models installed in the runtime",
				Action: modelsAction,
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
