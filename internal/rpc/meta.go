package rpc

import (
	"context"
	"strings"
)

type getSymbolParams struct {
	Name string `json:"name"`
}

func (h *Handler) handleGetSymbol(ctx context.Context, rawParams any) (any, *methodResult) {
	var p getSymbolParams
	if err := decodeParams(rawParams, &p); err != nil {
		return nil, invalidParams(err)
	}
	if strings.TrimSpace(p.Name) == "" {
		m := errorResult("invalid_params", "missing required field: name")
		return nil, &m
	}

	symbols, err := h.meta.FindSymbolsByName(ctx, p.Name)
	if err != nil {
		return nil, configError(err)
	}

	results := make([]map[string]any, 0, len(symbols))
	for _, sym := range symbols {
		results = append(results, map[string]any{
			"file_path":   sym.FilePath,
			"name":        sym.Name,
			"line_number": sym.LineNumber,
			"symbol_type": sym.SymbolType,
		})
	}

	return map[string]any{
		"name":    p.Name,
		"results": results,
		"total":   len(results),
	}, nil
}

type listFilesParams struct {
	Filter string `json:"filter"`
	Limit  int    `json:"limit"`
}

func (h *Handler) handleListFiles(ctx context.Context, rawParams any) (any, *methodResult) {
	var p listFilesParams
	if err := decodeParams(rawParams, &p); err != nil {
		return nil, invalidParams(err)
	}

	files, err := h.meta.GetAllFiles(ctx)
	if err != nil {
		return nil, configError(err)
	}

	filtered := make([]map[string]any, 0, len(files))
	for _, f := range files {
		if p.Filter != "" && !strings.Contains(f.Path, p.Filter) {
			continue
		}
		filtered = append(filtered, map[string]any{
			"path":          f.Path,
			"size":          f.Size,
			"last_modified": f.LastModified,
			"language":      f.Language,
		})
		if p.Limit > 0 && len(filtered) >= p.Limit {
			break
		}
	}

	return map[string]any{
		"results": filtered,
		"total":   len(filtered),
	}, nil
}

func (h *Handler) handleStats(ctx context.Context) (any, *methodResult) {
	stats, err := h.meta.GetStats(ctx)
	if err != nil {
		return nil, configError(err)
	}
	return map[string]any{
		"file_count":       stats.FileCount,
		"chunk_count":      stats.ChunkCount,
		"symbol_count":     stats.SymbolCount,
		"total_size_bytes": stats.TotalSizeBytes,
	}, nil
}
