package cmd

import (
	"github.com/spf13/cobra"

	"github.com/flashgrep/flashgrep/internal/registry"
	"github.com/flashgrep/flashgrep/internal/ui"
)

func newStatsCmd() *cobra.Command {
	var (
		path         string
		outputFormat string
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show index statistics (§4.B stats)",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := openRepo(path)
			if err != nil {
				return err
			}
			defer r.Close()

			stats, err := r.Meta.GetStats(cmd.Context())
			if err != nil {
				return err
			}

			info := ui.StatusInfo{
				ProjectName:  r.Root,
				TotalFiles:   stats.FileCount,
				TotalChunks:  stats.ChunkCount,
				TotalSymbols: stats.SymbolCount,
				TotalSize:    stats.TotalSizeBytes,
			}
			info.WatcherStatus, info.WatcherPID = watcherStatus(r.Root)

			renderer := ui.NewStatusRenderer(cmd.OutOrStdout(), false)
			if outputFormat == "json" {
				return renderer.RenderJSON(info)
			}
			return renderer.Render(info)
		},
	}

	cmd.Flags().StringVar(&path, "path", ".", "Repository root (defaults to CWD)")
	cmd.Flags().StringVar(&outputFormat, "output", "text", "Output format: text or json")
	return cmd
}

// watcherStatus reports whether repoRoot has a live watcher recorded in the
// registry, clearing any stale entry it finds along the way.
func watcherStatus(repoRoot string) (status string, pid int) {
	reg, err := registry.LoadDefault()
	if err != nil {
		return "n/a", 0
	}
	if _, err := reg.CleanupStale(); err != nil {
		return "n/a", 0
	}
	entry, ok, err := reg.Get(repoRoot)
	if err != nil || !ok {
		return "stopped", 0
	}
	return "running", entry.PID
}
