// Command flashgrep is a local, incremental code-search service: it
// indexes a repository into a full-text index and a relational metadata
// store, keeps both coherent through a file watcher, and exposes a bounded
// JSON-RPC tool surface for autonomous coding agents.
package main

import (
	"fmt"
	"os"

	"github.com/flashgrep/flashgrep/cmd/flashgrep/cmd"
	"github.com/flashgrep/flashgrep/internal/ferrors"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "flashgrep:", err)
		os.Exit(ferrors.ExitCode(err))
	}
}
