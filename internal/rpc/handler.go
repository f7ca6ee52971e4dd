package rpc

import (
	"context"
	"encoding/json"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/flashgrep/flashgrep/internal/ferrors"
	"github.com/flashgrep/flashgrep/internal/fulltext"
	"github.com/flashgrep/flashgrep/internal/query"
	"github.com/flashgrep/flashgrep/internal/store"
)

// Handler dispatches RPC methods against the metadata store, full-text
// index, and query planner for a single repository.
type Handler struct {
	repoRoot      string
	meta          *store.MetadataStore
	fulltext      *fulltext.Index
	planner       *query.Planner
	maxChunkLines int

	bootstrap  bootstrapState
	queryGroup singleflight.Group

	writeMu       sync.Mutex
	writeSessions map[string]*writeSession
}

// NewHandler builds a Handler serving repoRoot, backed by meta/fulltext
// and the already-constructed planner.
func NewHandler(repoRoot string, meta *store.MetadataStore, ft *fulltext.Index, planner *query.Planner, maxChunkLines int) *Handler {
	return &Handler{
		repoRoot:      repoRoot,
		meta:          meta,
		fulltext:      ft,
		planner:       planner,
		maxChunkLines: maxChunkLines,
		writeSessions: make(map[string]*writeSession),
	}
}

// Dispatch routes method against rawParams, returning either a result
// value to place in the response's `result` field, or a methodResult
// describing a dispatch failure (also placed in `result`, per §7's
// RPC-level discipline — only truly unknown methods get a JSON-RPC
// error, signaled here by the sentinel "method_not_found" code).
func (h *Handler) Dispatch(ctx context.Context, method string, rawParams any) (any, *methodResult) {
	switch method {
	case MethodQuery:
		return h.handleQuery(ctx, rawParams)
	case MethodGetSlice, MethodReadCode:
		return h.handleReadCode(rawParams)
	case MethodWriteCode:
		return h.handleWriteCode(rawParams)
	case MethodGlob:
		return h.handleGlob(rawParams)
	case MethodGetSymbol:
		return h.handleGetSymbol(ctx, rawParams)
	case MethodListFiles:
		return h.handleListFiles(ctx, rawParams)
	case MethodStats:
		return h.handleStats(ctx)
	case MethodSearch, MethodSearchInDirectory, MethodSearchWithContext, MethodSearchByRegex:
		return h.handleGrep(method, rawParams)
	default:
		if isBootstrapTool(method) {
			return h.handleBootstrap(method, rawParams)
		}
		m := errorResult("method_not_found", "method not found: "+method)
		return nil, &m
	}
}

// decodeParams marshals rawParams (as decoded generically by
// encoding/json from the request line) back into dst.
func decodeParams(rawParams any, dst any) error {
	if rawParams == nil {
		return nil
	}
	data, err := json.Marshal(rawParams)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}

func invalidParams(err error) *methodResult {
	m := errorResult("invalid_params", err.Error())
	return &m
}

func configError(err error) *methodResult {
	if fe, ok := err.(*ferrors.Error); ok {
		m := errorResult("invalid_params", fe.Message)
		return &m
	}
	m := errorResult("invalid_params", err.Error())
	return &m
}
