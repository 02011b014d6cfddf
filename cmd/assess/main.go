// Command assess runs the self-assessment in a terminal against the
// assessment backend.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/talent-manual/internal/backend"
	"github.com/ashureev/talent-manual/internal/config"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// cliClientID owns every report archived from the terminal.
const cliClientID = "cli"

type options struct {
	backendURL string
	timeout    time.Duration
	dbPath     string
	verbose    bool
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := newRootCmd(cfg).Execute(); err != nil {
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. Flag defaults come from cfg, so
// BACKEND_URL and BACKEND_TIMEOUT apply unless overridden.
func newRootCmd(cfg *config.Config) *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "assess",
		Short:         "Take the talent self-assessment in the terminal",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&opts.backendURL, "backend", cfg.Backend.URL, "assessment backend URL (env BACKEND_URL)")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", cfg.Backend.Timeout, "timeout per backend call (env BACKEND_TIMEOUT)")
	root.PersistentFlags().StringVar(&opts.dbPath, "db", "", "archive reports to this SQLite file")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging on stderr")

	root.AddCommand(newStartCmd(opts), newDebugCmd(opts), newReportsCmd(opts))
	return root
}

func (o *options) logger() *slog.Logger {
	level := slog.LevelWarn
	if o.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func (o *options) client(logger *slog.Logger) (*backend.Client, error) {
	client, err := backend.NewClient(backend.Config{BaseURL: o.backendURL, Timeout: o.timeout}, logger)
	if err != nil {
		return nil, fmt.Errorf("create backend client: %w", err)
	}
	return client, nil
}

// closeLogged closes c and logs a failure instead of dropping it.
func closeLogged(logger *slog.Logger, name string, c io.Closer) {
	if err := c.Close(); err != nil {
		logger.Error("Failed to close "+name, "error", err)
	}
}

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}
