package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/flashgrep/flashgrep/internal/registry"
)

func newWatchersCmd() *cobra.Command {
	var outputFormat string

	cmd := &cobra.Command{
		Use:   "watchers",
		Short: "List active watcher processes (§4.J)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatchers(cmd, outputFormat)
		},
	}

	cmd.Flags().StringVar(&outputFormat, "output", "text", "Output format: text or json")
	return cmd
}

func runWatchers(cmd *cobra.Command, outputFormat string) error {
	reg, err := registry.LoadDefault()
	if err != nil {
		return err
	}
	if _, err := reg.CleanupStale(); err != nil {
		return err
	}

	entries := reg.List()
	return renderOutput(cmd.OutOrStdout(), outputFormat, entries, func(w io.Writer, v any) {
		list := v.([]registry.Entry)
		if len(list) == 0 {
			fmt.Fprintln(w, "no active watchers")
			return
		}
		for _, e := range list {
			fmt.Fprintf(w, "%-8d %-30s started %s\n", e.PID, e.RepoRoot, time.Unix(e.StartedAt, 0).Format(time.RFC3339))
		}
	})
}
