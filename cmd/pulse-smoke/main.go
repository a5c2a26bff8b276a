// Command pulse-smoke sends a burst of test events to an ingestion endpoint
// and reports the resulting pipeline state. Useful for verifying a write key
// and endpoint before wiring the SDK into an application.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pulsekit/pulse-go/internal/smoke"
)

func main() {
	app := &cli.App{
		Name:  "pulse-smoke",
		Usage: "send test events to a pulse ingestion endpoint",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "write-key",
				Usage:    "tenant write key",
				EnvVars:  []string{"PULSE_WRITE_KEY"},
				Required: true,
			},
			&cli.StringFlag{
				Name:     "host",
				Usage:    "ingestion host, e.g. https://ingest.example.com",
				EnvVars:  []string{"PULSE_INGESTION_HOST"},
				Required: true,
			},
			&cli.IntFlag{
				Name:  "count",
				Usage: "number of events to send",
				Value: 25,
			},
			&cli.BoolFlag{
				Name:  "tracing",
				Usage: "send the Trace header on every request",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "enable debug logging",
			},
		},
		Action: func(c *cli.Context) error {
			return smoke.Run(os.Stdout, smoke.Options{
				WriteKey: c.String("write-key"),
				Host:     c.String("host"),
				Count:    c.Int("count"),
				Tracing:  c.Bool("tracing"),
				Debug:    c.Bool("debug"),
			})
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
