package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/ashureev/talent-manual/internal/debugprobe"
	"github.com/spf13/cobra"
)

func newDebugCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "debug",
		Short: "Talk to the backend's debug endpoints (/start, /health, text, /quit)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := opts.logger()
			client, err := opts.client(logger)
			if err != nil {
				return err
			}

			ctx, stop := signalContext(cmd)
			defer stop()

			probe := debugprobe.New(client, opts.timeout, logger)
			out := cmd.OutOrStdout()
			printEntries(out, probe.Entries())
			seen := len(probe.Entries())

			scanner := bufio.NewScanner(cmd.InOrStdin())
			for {
				fmt.Fprint(out, "debug> ")
				if !scanner.Scan() {
					return scanner.Err()
				}
				line := strings.TrimSpace(scanner.Text())
				var entries []debugprobe.Entry
				switch line {
				case "/quit":
					return nil
				case "/start":
					entries = probe.Open(ctx)
				case "/health":
					entries = probe.Ping(ctx)
				default:
					entries = probe.Send(ctx, line)
				}
				printEntries(out, entries[seen:])
				seen = len(entries)
			}
		},
	}
}

func printEntries(out io.Writer, entries []debugprobe.Entry) {
	for _, e := range entries {
		fmt.Fprintf(out, "%-9s %s\n", e.Role, e.Content)
	}
}
