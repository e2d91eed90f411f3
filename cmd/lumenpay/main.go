package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/brojonat/lumenpay/client"
	"github.com/urfave/cli/v2"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "lumenpay",
		Usage: "Stellar testnet wallet and payment CLI",
		Description: `A command-line tool for the lumenpay server.

Use it to connect the wallet, check the balance, send XLM and follow payment attempts.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Commands: []*cli.Command{
			{
				Name:  "session",
				Usage: "Wallet connection and balance",
				Subcommands: []*cli.Command{
					connectCommand(),
					showSessionCommand(),
					refreshCommand(),
				},
			},
			{
				Name:  "pay",
				Usage: "Send payments and follow attempts",
				Subcommands: []*cli.Command{
					sendCommand(),
					currentCommand(),
					watchCommand(),
				},
			},
			{
				Name:  "events",
				Usage: "Attempt events in NATS JetStream",
				Subcommands: []*cli.Command{
					subscribeCommand(),
					inspectStreamCommand(),
				},
			},
			{
				Name:  "db",
				Usage: "Attempt audit log inspection",
				Subcommands: []*cli.Command{
					listAttemptsCommand(),
				},
			},
			{
				Name:  "server",
				Usage: "Server utility commands",
				Subcommands: []*cli.Command{
					healthCommand(),
					versionCommand(),
				},
			},
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server-url",
				Usage:   "lumenpay server URL",
				EnvVars: []string{"SERVER_URL"},
				Value:   "http://localhost:8080",
			},
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Database connection URL",
				EnvVars: []string{"DATABASE_URL"},
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output in JSON format",
			},
		},
	}
}

// newClient builds an API client for the server named by --server-url.
func newClient(c *cli.Context) (*client.Client, error) {
	serverURL := c.String("server-url")
	if serverURL == "" {
		return nil, fmt.Errorf("server-url is required (set SERVER_URL env var or use --server-url)")
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
	return client.NewClient(serverURL, nil, logger), nil
}
