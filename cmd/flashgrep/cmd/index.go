package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/flashgrep/flashgrep/internal/async"
	"github.com/flashgrep/flashgrep/internal/ui"
)

func newIndexCmd() *cobra.Command {
	var force bool
	var noTUI bool

	cmd := &cobra.Command{
		Use:   "index [path]",
		Short: "Index a repository for searching (§4.G)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "."
			if len(args) > 0 {
				path = args[0]
			}
			return runIndex(cmd.Context(), path, force, noTUI)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Clear the existing index before reindexing")
	cmd.Flags().BoolVar(&noTUI, "no-tui", false, "Disable the live progress renderer")
	return cmd
}

func runIndex(ctx context.Context, path string, force, noTUI bool) error {
	r, err := openRepo(path)
	if err != nil {
		return err
	}
	defer r.Close()

	eng, err := r.engine()
	if err != nil {
		return err
	}

	if force {
		if err := eng.ClearIndex(ctx); err != nil {
			return err
		}
	}

	uiCfg := ui.NewConfig(os.Stdout, ui.WithForcePlain(noTUI), ui.WithProjectDir(r.Root))
	renderer := ui.NewRenderer(uiCfg)
	if err := renderer.Start(ctx); err != nil {
		renderer = ui.NewPlainRenderer(uiCfg)
		_ = renderer.Start(ctx)
	}

	indexer := async.NewBackgroundIndexer(async.IndexerConfig{DataDir: r.Paths.Dir()})
	indexer.IndexFunc = eng.IndexAll

	start := time.Now()
	indexer.Start(ctx)
	pumpProgress(ctx, indexer.Progress(), renderer)
	err = indexer.Wait()
	_ = renderer.Stop()
	if err != nil {
		return err
	}

	stats, statErr := r.Meta.GetStats(ctx)
	if statErr != nil {
		return statErr
	}
	renderer.Complete(ui.CompletionStats{
		Files:    stats.FileCount,
		Chunks:   stats.ChunkCount,
		Duration: time.Since(start),
	})
	return nil
}

// pumpProgress bridges internal/async's three-stage indexing progress into
// the ui.Renderer's event stream until progress reports it is no longer
// indexing.
func pumpProgress(ctx context.Context, progress *async.IndexProgress, renderer ui.Renderer) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		snap := progress.Snapshot()
		renderer.UpdateProgress(ui.ProgressEvent{
			Stage:   uiStage(snap.Stage),
			Current: snap.FilesProcessed,
			Total:   snap.FilesTotal,
			Message: fmt.Sprintf("%s: %d/%d files", snap.Stage, snap.FilesProcessed, snap.FilesTotal),
		})
		if !progress.IsIndexing() {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func uiStage(stage string) ui.Stage {
	switch async.IndexingStage(stage) {
	case async.StageScanning:
		return ui.StageScanning
	case async.StageChunking:
		return ui.StageChunking
	case async.StageIndexing:
		return ui.StageIndexing
	default:
		return ui.StageScanning
	}
}
