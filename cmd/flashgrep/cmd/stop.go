package cmd

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/flashgrep/flashgrep/internal/registry"
)

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop [path]",
		Short: "Stop the running watcher for a repository (§4.J)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "."
			if len(args) > 0 {
				path = args[0]
			}
			return runStop(path)
		},
	}
}

func runStop(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	reg, err := registry.LoadDefault()
	if err != nil {
		return err
	}

	entry, ok, err := reg.Get(abs)
	if err != nil {
		return err
	}
	if !ok {
		writer().Status("", "no watcher is registered for this repository")
		return nil
	}

	if err := registry.Terminate(entry.PID); err != nil {
		return err
	}

	for i := 0; i < 50; i++ {
		time.Sleep(100 * time.Millisecond)
		if _, stillThere, _ := reg.Get(abs); !stillThere {
			writer().Success(fmt.Sprintf("watcher stopped (was pid: %d)", entry.PID))
			return nil
		}
	}

	// The watcher's own defer should have removed its registry entry on
	// exit; clean it up here if that never happened (process killed hard).
	_, _, _ = reg.Remove(abs)
	writer().Success(fmt.Sprintf("watcher stopped (was pid: %d)", entry.PID))
	return nil
}
