package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/flashgrep/flashgrep/internal/config"
	"github.com/flashgrep/flashgrep/internal/ferrors"
	"github.com/flashgrep/flashgrep/internal/flashpaths"
	"github.com/flashgrep/flashgrep/internal/fulltext"
	"github.com/flashgrep/flashgrep/internal/gitignore"
	"github.com/flashgrep/flashgrep/internal/indexer"
	"github.com/flashgrep/flashgrep/internal/output"
	"github.com/flashgrep/flashgrep/internal/query"
	"github.com/flashgrep/flashgrep/internal/rpc"
	"github.com/flashgrep/flashgrep/internal/store"
)

// repo bundles every open handle a CLI command needs against one
// repository, mirroring the set of dependencies internal/rpc.Handler and
// internal/indexer.Engine already require.
type repo struct {
	Root  string
	Paths *flashpaths.Paths
	Cfg   *config.Config
	Meta  *store.MetadataStore
	FT    *fulltext.Index
}

// openRepo resolves path to an absolute repository root and opens its
// metadata store and full-text index, creating the <repo>/.flashgrep
// layout on first use.
func openRepo(path string) (*repo, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.Io, "resolve repository path", err)
	}

	paths := flashpaths.New(abs)
	if err := paths.Create(); err != nil {
		return nil, ferrors.Wrap(ferrors.Io, "create .flashgrep directory", err)
	}

	cfg, err := config.Load(paths.ConfigFile())
	if err != nil {
		return nil, ferrors.Wrap(ferrors.Config, "load config", err)
	}

	meta, err := store.Open(paths.MetadataDB())
	if err != nil {
		return nil, err
	}

	ft, err := fulltext.Open(paths.TextIndexDir())
	if err != nil {
		_ = meta.Close()
		return nil, err
	}

	return &repo{Root: abs, Paths: paths, Cfg: cfg, Meta: meta, FT: ft}, nil
}

// Close releases the metadata store and full-text index.
func (r *repo) Close() {
	_ = r.FT.Close()
	_ = r.Meta.Close()
}

// engine builds an Index Engine over r's already-open stores, loading
// .flashgrepignore if present.
func (r *repo) engine() (*indexer.Engine, error) {
	ignore, err := gitignore.LoadDefaultIgnoreFile(r.Paths.IgnoreFile())
	if err != nil {
		return nil, ferrors.Wrap(ferrors.Io, "load .flashgrepignore", err)
	}
	return indexer.New(r.Root, r.Cfg, r.Meta, r.FT, ignore), nil
}

// planner builds a Query Planner over r's full-text index.
func (r *repo) planner() *query.Planner {
	return query.NewPlanner(r.FT, r.Root)
}

// handler builds an RPC Handler serving r, for the mcp/mcp-stdio servers
// and the files/symbol/slice commands.
func (r *repo) handler() *rpc.Handler {
	return rpc.NewHandler(r.Root, r.Meta, r.FT, r.planner(), r.Cfg.MaxChunkLines)
}

// renderOutput writes v to out as either a lipgloss-styled text table
// (rendered by renderText) or raw JSON, per the shared `--output` flag.
func renderOutput(out io.Writer, format string, v any, renderText func(io.Writer, any)) error {
	switch format {
	case "", "text":
		renderText(out, v)
		return nil
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	default:
		return fmt.Errorf("unknown --output format %q (want text or json)", format)
	}
}

// writer returns an output.Writer over stdout, for status lines shared
// across commands (index progress, start/stop confirmations).
func writer() *output.Writer {
	return output.New(os.Stdout)
}
