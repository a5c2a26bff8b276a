// Package smoke drives a live client against an ingestion endpoint for
// manual verification. It backs the pulse-smoke CLI.
package smoke

import (
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	pulse "github.com/pulsekit/pulse-go"
)

// Options configures one smoke run.
type Options struct {
	WriteKey string
	Host     string
	Count    int
	Tracing  bool
	Debug    bool
}

// Run emits Count track events against the endpoint, flushes, and prints the
// resulting pipeline state to out. It returns an error only for construction
// failures; delivery problems show up in the debug output and logs.
func Run(out io.Writer, opts Options) error {
	logger := logrus.New()
	logger.SetOutput(out)
	if opts.Debug {
		logger.SetLevel(logrus.DebugLevel)
	}

	client, err := pulse.New(opts.WriteKey, opts.Host,
		pulse.WithFlushInterval(2*time.Second),
		pulse.WithTracing(opts.Tracing),
		pulse.WithStructuredLogger(pulse.NewLogrusAdapter(logger)),
		pulse.WithOnFatalConfigError(func(status int) {
			fmt.Fprintf(out, "fatal configuration error: endpoint returned %d\n", status)
		}),
	)
	if err != nil {
		return err
	}

	for i := 0; i < opts.Count; i++ {
		client.Track("Smoke Test", pulse.Properties{
			"sequence": i,
			"total":    opts.Count,
		})
	}

	if err := client.Close(); err != nil {
		fmt.Fprintf(out, "shutdown: %v\n", err)
	}

	info := client.DebugInfo()
	fmt.Fprintf(out, "emitted %d events\n", opts.Count)
	fmt.Fprintf(out, "queue size:     %d\n", info.QueueSize)
	fmt.Fprintf(out, "max batch size: %d\n", info.MaxBatchSize)
	fmt.Fprintf(out, "circuit state:  %s\n", info.CircuitState)
	if info.RemainingCooldown > 0 {
		fmt.Fprintf(out, "cooldown left:  %s\n", info.RemainingCooldown)
	}
	return nil
}
