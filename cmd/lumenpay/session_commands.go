package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/brojonat/lumenpay/client"
	"github.com/urfave/cli/v2"
)

func connectCommand() *cli.Command {
	return &cli.Command{
		Name:  "connect",
		Usage: "Ask the wallet for access and load the balance",
		Action: func(c *cli.Context) error {
			cl, err := newClient(c)
			if err != nil {
				return err
			}

			sess, err := cl.Connect(c.Context)
			var apiErr *client.APIError
			if err != nil && !errors.As(err, &apiErr) {
				return fmt.Errorf("failed to connect: %w", err)
			}

			if c.Bool("json") {
				if encErr := outputJSON(c.App.Writer, sess); encErr != nil {
					return encErr
				}
			} else {
				printSession(c.App.Writer, sess)
			}
			if apiErr != nil {
				return errors.New(apiErr.Message)
			}
			return nil
		},
	}
}

func showSessionCommand() *cli.Command {
	return &cli.Command{
		Name:  "show",
		Usage: "Show the connected address and balance",
		Action: func(c *cli.Context) error {
			cl, err := newClient(c)
			if err != nil {
				return err
			}

			sess, err := cl.Session(c.Context)
			if err != nil {
				return fmt.Errorf("failed to get session: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(c.App.Writer, sess)
			}
			printSession(c.App.Writer, sess)
			return nil
		},
	}
}

func refreshCommand() *cli.Command {
	return &cli.Command{
		Name:  "refresh",
		Usage: "Reload the balance from Horizon",
		Action: func(c *cli.Context) error {
			cl, err := newClient(c)
			if err != nil {
				return err
			}

			sess, err := cl.Refresh(c.Context)
			if err != nil {
				return fmt.Errorf("failed to refresh balance: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(c.App.Writer, sess)
			}
			printSession(c.App.Writer, sess)
			return nil
		},
	}
}

func printSession(w io.Writer, sess *client.Session) {
	if sess == nil || sess.Address == "" {
		fmt.Fprintln(w, "Not connected")
	} else {
		fmt.Fprintf(w, "Address: %s\n", sess.Address)
	}

	switch {
	case sess == nil:
	case sess.IsLoading:
		fmt.Fprintln(w, "Balance: loading...")
	case sess.Balance != nil:
		fmt.Fprintf(w, "Balance: %s XLM\n", *sess.Balance)
	}

	if sess != nil && sess.Error != "" {
		fmt.Fprintf(w, "Error:   %s\n", sess.Error)
	}
}
