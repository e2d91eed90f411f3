package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/brojonat/lumenpay/service/events"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/urfave/cli/v2"
)

var natsURLFlag = &cli.StringFlag{
	Name:    "nats-url",
	Usage:   "NATS server URL",
	EnvVars: []string{"NATS_URL"},
	Value:   "nats://localhost:4222",
}

// subscribeCommand reads attempt events straight from JetStream. Unlike the
// SSE stream it shows the internal failure cause.
func subscribeCommand() *cli.Command {
	return &cli.Command{
		Name:      "subscribe",
		Usage:     "Subscribe to attempt events in JetStream",
		ArgsUsage: "[address]",
		Description: `Events are published to the subject: attempts.{address}

Example:
  lumenpay events subscribe GDRXE2BQUC3AZNPVFSCEZ76NJ3WWL25FYFK6RGZGIEKWE4SOOHSUJUJ6 --replay`,
		Flags: []cli.Flag{
			natsURLFlag,
			&cli.BoolFlag{
				Name:  "replay",
				Usage: "Deliver retained events from the start of the stream",
			},
			&cli.BoolFlag{
				Name:    "durable",
				Aliases: []string{"d"},
				Usage:   "Create a durable consumer (survives restarts)",
			},
			&cli.StringFlag{
				Name:  "consumer-name",
				Usage: "Consumer name (required for durable)",
				Value: "lumenpay-cli",
			},
		},
		Action: func(c *cli.Context) error {
			subject := events.StreamSubjects
			if c.NArg() > 0 {
				subject = events.Subject(c.Args().First())
			}

			nc, err := nats.Connect(c.String("nats-url"))
			if err != nil {
				return fmt.Errorf("failed to connect to NATS: %w", err)
			}
			defer nc.Close()

			js, err := jetstream.New(nc)
			if err != nil {
				return fmt.Errorf("failed to create JetStream context: %w", err)
			}

			cfg := consumerConfig(subject, c.Bool("replay"), c.Bool("durable"), c.String("consumer-name"))

			ctx, cancel := signalContext(c.Context)
			defer cancel()

			cons, err := js.CreateOrUpdateConsumer(ctx, events.StreamName, cfg)
			if err != nil {
				return fmt.Errorf("failed to create consumer: %w", err)
			}

			jsonOutput := c.Bool("json")
			if !jsonOutput {
				fmt.Fprintf(c.App.ErrWriter, "Subscribing to: %s (Ctrl-C to exit)\n\n", subject)
			}

			count := 0
			cc, err := cons.Consume(func(msg jetstream.Msg) {
				var event events.AttemptEvent
				if err := json.Unmarshal(msg.Data(), &event); err != nil {
					fmt.Fprintf(c.App.ErrWriter, "Error parsing event: %v\n", err)
					msg.Ack()
					return
				}
				count++
				if jsonOutput {
					fmt.Fprintln(c.App.Writer, string(msg.Data()))
				} else {
					printStreamEvent(c, &event)
				}
				msg.Ack()
			})
			if err != nil {
				return fmt.Errorf("failed to start consuming: %w", err)
			}
			defer cc.Stop()

			<-ctx.Done()
			if !jsonOutput {
				fmt.Fprintf(c.App.ErrWriter, "\nReceived %d events\n", count)
			}
			return nil
		},
	}
}

func consumerConfig(subject string, replay, durable bool, name string) jetstream.ConsumerConfig {
	cfg := jetstream.ConsumerConfig{
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverNewPolicy,
	}
	if replay {
		cfg.DeliverPolicy = jetstream.DeliverAllPolicy
	}
	if durable {
		cfg.Durable = name
		cfg.Name = name
	}
	return cfg
}

func printStreamEvent(c *cli.Context, e *events.AttemptEvent) {
	w := c.App.Writer
	fmt.Fprintf(w, "%s  %s  %s", e.Timestamp.Format(time.RFC3339), e.AttemptID, e.Status)
	if e.Cause != "" {
		fmt.Fprintf(w, "  cause=%s", e.Cause)
	}
	if e.Hash != "" {
		fmt.Fprintf(w, "  hash=%s", e.Hash)
	}
	fmt.Fprintf(w, "  %s -> %s  %s\n", e.Address, e.Recipient, e.Amount)
}

func inspectStreamCommand() *cli.Command {
	return &cli.Command{
		Name:  "inspect",
		Usage: "Show the attempts stream configuration and state",
		Flags: []cli.Flag{natsURLFlag},
		Action: func(c *cli.Context) error {
			nc, err := nats.Connect(c.String("nats-url"))
			if err != nil {
				return fmt.Errorf("failed to connect to NATS: %w", err)
			}
			defer nc.Close()

			js, err := jetstream.New(nc)
			if err != nil {
				return fmt.Errorf("failed to create JetStream context: %w", err)
			}

			stream, err := js.Stream(c.Context, events.StreamName)
			if errors.Is(err, jetstream.ErrStreamNotFound) {
				return fmt.Errorf("stream %s does not exist yet; start the server with EVENTS_ENABLED=true", events.StreamName)
			}
			if err != nil {
				return fmt.Errorf("failed to get stream: %w", err)
			}

			info, err := stream.Info(c.Context)
			if err != nil {
				return fmt.Errorf("failed to get stream info: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(c.App.Writer, info)
			}

			w := c.App.Writer
			fmt.Fprintf(w, "Stream:    %s\n", info.Config.Name)
			fmt.Fprintf(w, "Subjects:  %v\n", info.Config.Subjects)
			fmt.Fprintf(w, "Retention: %s\n", info.Config.MaxAge)
			fmt.Fprintf(w, "Messages:  %d\n", info.State.Msgs)
			fmt.Fprintf(w, "Bytes:     %d\n", info.State.Bytes)
			fmt.Fprintf(w, "Consumers: %d\n", info.State.Consumers)
			if info.State.Msgs > 0 {
				fmt.Fprintf(w, "First:     #%d at %s\n", info.State.FirstSeq, info.State.FirstTime.Format(time.RFC3339))
				fmt.Fprintf(w, "Last:      #%d at %s\n", info.State.LastSeq, info.State.LastTime.Format(time.RFC3339))
			}
			return nil
		},
	}
}
