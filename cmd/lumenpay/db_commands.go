package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/brojonat/lumenpay/service/db"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/urfave/cli/v2"
)

func listAttemptsCommand() *cli.Command {
	return &cli.Command{
		Name:      "attempts",
		Usage:     "List recorded payment attempts sent from an address",
		ArgsUsage: "<address>",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"l"},
				Value:   20,
				Usage:   "Maximum number of attempts to show (1-1000)",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: wallet address")
			}
			limit := c.Int("limit")
			if limit < 1 || limit > 1000 {
				return fmt.Errorf("limit must be between 1 and 1000")
			}

			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			attempts, err := store.ListAttemptsByAddress(c.Context, c.Args().First(), int32(limit))
			if err != nil {
				return fmt.Errorf("failed to list attempts: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(c.App.Writer, attempts)
			}

			w := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "STARTED\tATTEMPT\tSTATUS\tCAUSE\tAMOUNT\tRECIPIENT\tHASH")
			for _, a := range attempts {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					a.StartedAt.Format(time.RFC3339),
					a.AttemptID,
					statusLabel(a),
					orDash(a.Cause),
					a.Amount,
					a.Recipient,
					orDash(a.Hash),
				)
			}
			w.Flush()

			fmt.Fprintf(os.Stderr, "\nTotal: %d attempts\n", len(attempts))
			return nil
		},
	}
}

func statusLabel(a *db.AttemptRecord) string {
	if a.Superseded {
		return a.Status + " (superseded)"
	}
	return a.Status
}

func orDash(s *string) string {
	if s != nil && *s != "" {
		return *s
	}
	return "-"
}

// getStore opens the audit store named by --database-url.
func getStore(c *cli.Context) (*db.Store, func(), error) {
	dbURL := c.String("database-url")
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		return nil, nil, fmt.Errorf("database-url is required (set DATABASE_URL env var or use --database-url)")
	}

	pool, err := pgxpool.New(context.Background(), dbURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db.NewStore(pool, nil), pool.Close, nil
}
