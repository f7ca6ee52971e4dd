package cmd

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/flashgrep/flashgrep/internal/indexstate"
	"github.com/flashgrep/flashgrep/internal/registry"
	"github.com/flashgrep/flashgrep/internal/watcher"
)

func newStartCmd() *cobra.Command {
	var background bool

	cmd := &cobra.Command{
		Use:   "start [path]",
		Short: "Start the file watcher for a repository (§4.I)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "."
			if len(args) > 0 {
				path = args[0]
			}
			if background {
				return runStartBackground(path)
			}
			return runStartForeground(cmd.Context(), path)
		},
	}

	cmd.Flags().BoolVar(&background, "background", false, "Detach and run the watcher in the background")
	return cmd
}

// runStartBackground re-executes the current binary's `start` command
// without --background, detached via Setsid so it survives the parent
// shell exiting.
func runStartBackground(path string) error {
	execPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve executable path: %w", err)
	}

	bg := exec.Command(execPath, "start", path)
	bg.Stdout = nil
	bg.Stderr = nil
	bg.Stdin = nil
	bg.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := bg.Start(); err != nil {
		return fmt.Errorf("start background watcher: %w", err)
	}
	go func() { _ = bg.Wait() }()

	writer().Success(fmt.Sprintf("watcher started in background (pid: %d)", bg.Process.Pid))
	return nil
}

func runStartForeground(parent context.Context, path string) error {
	r, err := openRepo(path)
	if err != nil {
		return err
	}
	defer r.Close()

	eng, err := r.engine()
	if err != nil {
		return err
	}

	state, err := indexstate.Load(r.Paths.IndexStateFile(), time.Now().Unix)
	if err != nil {
		return err
	}

	w := watcher.New(r.Root, r.Cfg, eng, state, nil)

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	scanResult, err := w.InitialScan(ctx)
	if err != nil {
		return err
	}
	writer().Statusf("", "initial scan: %d scanned, %d added, %d modified, %d deleted",
		scanResult.Scanned, scanResult.Added, scanResult.Modified, scanResult.Deleted)

	reg, err := registry.LoadDefault()
	if err != nil {
		return err
	}
	if err := reg.Upsert(r.Root, os.Getpid()); err != nil {
		return err
	}
	defer func() { _, _, _ = reg.Remove(r.Root) }()

	writer().Success(fmt.Sprintf("watching %s (pid: %d)", r.Root, os.Getpid()))
	return w.Run(ctx)
}
