package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/brojonat/lumenpay/client"
	"github.com/itchyny/gojq"
	"github.com/urfave/cli/v2"
)

func sendCommand() *cli.Command {
	return &cli.Command{
		Name:      "send",
		Usage:     "Send XLM from the connected wallet",
		ArgsUsage: "RECIPIENT AMOUNT",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "wait",
				Aliases: []string{"w"},
				Usage:   "Wait until the attempt succeeds or fails",
			},
			&cli.DurationFlag{
				Name:    "timeout",
				Aliases: []string{"t"},
				Value:   5 * time.Minute,
				Usage:   "How long --wait waits",
			},
			&cli.DurationFlag{
				Name:  "poll-interval",
				Value: time.Second,
				Usage: "How often --wait checks the attempt",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 2 {
				return fmt.Errorf("requires exactly two arguments: recipient and amount")
			}

			cl, err := newClient(c)
			if err != nil {
				return err
			}

			attempt, err := cl.Send(c.Context, c.Args().Get(0), c.Args().Get(1))
			var apiErr *client.APIError
			if errors.As(err, &apiErr) {
				return errors.New(apiErr.Message)
			}
			if err != nil {
				return fmt.Errorf("failed to send payment: %w", err)
			}

			if c.Bool("wait") {
				ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
				defer cancel()

				attempt, err = waitForAttempt(ctx, cl, attempt.ID, c.Duration("poll-interval"))
				if err != nil {
					return fmt.Errorf("failed to wait for attempt: %w", err)
				}
			}

			if c.Bool("json") {
				return outputJSON(c.App.Writer, attempt)
			}
			printAttempt(c.App.Writer, attempt)
			if attempt.Status == "failed" {
				return errors.New(attempt.Message)
			}
			return nil
		},
	}
}

// waitForAttempt polls the live attempt until attempt id finishes. It gives up
// if a newer attempt replaces it.
func waitForAttempt(ctx context.Context, cl *client.Client, id string, interval time.Duration) (*client.Attempt, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		current, err := cl.Current(ctx)
		if err != nil {
			return nil, err
		}
		if current.ID != id {
			return nil, fmt.Errorf("attempt %s was superseded by %s", id, current.ID)
		}
		if current.Terminal() {
			return current, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func currentCommand() *cli.Command {
	return &cli.Command{
		Name:  "current",
		Usage: "Show the live payment attempt",
		Action: func(c *cli.Context) error {
			cl, err := newClient(c)
			if err != nil {
				return err
			}

			attempt, err := cl.Current(c.Context)
			if err != nil {
				return fmt.Errorf("failed to get attempt: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(c.App.Writer, attempt)
			}
			printAttempt(c.App.Writer, attempt)
			return nil
		},
	}
}

func watchCommand() *cli.Command {
	return &cli.Command{
		Name:      "watch",
		Usage:     "Stream attempt status changes",
		ArgsUsage: "[ADDRESS]",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:    "must-jq",
				Usage:   "jq filter expression that must evaluate to true (can be specified multiple times, all must match)",
				Aliases: []string{"jq"},
			},
			&cli.BoolFlag{
				Name:  "until-terminal",
				Usage: "Exit after the first matching success or failure event",
			},
		},
		Action: func(c *cli.Context) error {
			filters, err := compileJQFilters(c.StringSlice("must-jq"))
			if err != nil {
				return err
			}

			cl, err := newClient(c)
			if err != nil {
				return err
			}

			ctx, cancel := signalContext(c.Context)
			defer cancel()

			jsonOutput := c.Bool("json")
			untilTerminal := c.Bool("until-terminal")
			if !jsonOutput {
				fmt.Fprintf(os.Stderr, "Streaming attempts... (Ctrl+C to stop)\n\n")
			}

			errDone := errors.New("done")
			err = cl.Stream(ctx, c.Args().First(), func(e *client.AttemptEvent) error {
				if !matchesAll(filters, e) {
					return nil
				}
				if jsonOutput {
					data, err := json.Marshal(e)
					if err != nil {
						return err
					}
					fmt.Fprintln(c.App.Writer, string(data))
				} else {
					printEvent(c.App.Writer, e)
				}
				if untilTerminal && (e.Status == "success" || e.Status == "failed") {
					return errDone
				}
				return nil
			})
			if errors.Is(err, errDone) || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}

// compileJQFilters parses and compiles every --must-jq expression.
func compileJQFilters(filters []string) ([]*gojq.Code, error) {
	compiled := make([]*gojq.Code, len(filters))
	for i, filter := range filters {
		query, err := gojq.Parse(filter)
		if err != nil {
			return nil, fmt.Errorf("failed to parse jq filter %q: %w", filter, err)
		}
		compiled[i], err = gojq.Compile(query)
		if err != nil {
			return nil, fmt.Errorf("failed to compile jq filter %q: %w", filter, err)
		}
	}
	return compiled, nil
}

// matchesAll reports whether every filter yields a truthy first result for e.
func matchesAll(filters []*gojq.Code, e *client.AttemptEvent) bool {
	if len(filters) == 0 {
		return true
	}

	// gojq only understands plain JSON values.
	data, err := json.Marshal(e)
	if err != nil {
		return false
	}
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return false
	}

	for _, code := range filters {
		iter := code.Run(v)
		result, ok := iter.Next()
		if !ok {
			return false
		}
		if _, isErr := result.(error); isErr {
			return false
		}
		if !isTruthy(result) {
			return false
		}
	}
	return true
}

// isTruthy checks if a jq result value is truthy.
// In jq, false and null are falsy, everything else is truthy.
func isTruthy(v interface{}) bool {
	if v == nil {
		return false
	}
	if b, ok := v.(bool); ok {
		return b
	}
	return true
}

func printAttempt(w io.Writer, a *client.Attempt) {
	if a.ID == "" {
		fmt.Fprintf(w, "Status:    %s\n", a.Status)
		if a.Message != "" {
			fmt.Fprintf(w, "Message:   %s\n", a.Message)
		}
		return
	}
	fmt.Fprintf(w, "Attempt:   %s\n", a.ID)
	fmt.Fprintf(w, "Status:    %s\n", a.Status)
	if a.Message != "" {
		fmt.Fprintf(w, "Message:   %s\n", a.Message)
	}
	fmt.Fprintf(w, "Recipient: %s\n", a.Recipient)
	fmt.Fprintf(w, "Amount:    %s XLM\n", a.Amount)
	if a.Hash != "" {
		fmt.Fprintf(w, "Hash:      %s\n", a.Hash)
	}
}

func printEvent(w io.Writer, e *client.AttemptEvent) {
	line := fmt.Sprintf("%s  %-8.8s  %-18s  %s",
		e.Timestamp.Format(time.RFC3339),
		e.AttemptID,
		e.Status,
		e.Message,
	)
	if e.Hash != "" {
		line += "  hash=" + e.Hash
	}
	fmt.Fprintln(w, line)
}
