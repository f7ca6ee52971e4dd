package rpc

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// globParams is the wire shape of a `glob` request, per original_source's
// glob_tool.rs glob_input_schema.
type globParams struct {
	Pattern        string   `json:"pattern"`
	Path           string   `json:"path"`
	Include        []string `json:"include"`
	Exclude        []string `json:"exclude"`
	Extensions     []string `json:"extensions"`
	MaxDepth       *int     `json:"max_depth"`
	Recursive      *bool    `json:"recursive"`
	IncludeHidden  bool     `json:"include_hidden"`
	FollowSymlinks bool     `json:"follow_symlinks"`
	CaseSensitive  *bool    `json:"case_sensitive"`
	SortBy         string   `json:"sort_by"`
	SortOrder      string   `json:"sort_order"`
	Limit          *int     `json:"limit"`
}

type globMatch struct {
	filePath string
	relPath  string
	name     string
	size     int64
	modified int64
}

func (h *Handler) handleGlob(rawParams any) (any, *methodResult) {
	var p globParams
	if err := decodeParams(rawParams, &p); err != nil {
		return nil, invalidParams(err)
	}

	root := p.Path
	if root == "" {
		root = h.repoRoot
	}
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		m := errorResult("invalid_params", "invalid path: '"+root+"' is not a directory")
		return nil, &m
	}

	includes := make([]string, 0, len(p.Include))
	for _, s := range p.Include {
		if s = strings.TrimSpace(s); s != "" {
			includes = append(includes, s)
		}
	}
	if len(includes) == 0 {
		pattern := strings.TrimSpace(p.Pattern)
		if pattern == "" {
			pattern = "**/*"
		}
		includes = append(includes, pattern)
	}

	excludes := make([]string, 0, len(p.Exclude))
	for _, s := range p.Exclude {
		if s = strings.TrimSpace(s); s != "" {
			excludes = append(excludes, s)
		}
	}

	extensions := normalizeExtensions(p.Extensions)

	recursive := true
	if p.Recursive != nil {
		recursive = *p.Recursive
	}
	var maxDepth *int
	if recursive {
		maxDepth = p.MaxDepth
	} else {
		zero := 0
		if p.MaxDepth != nil {
			zero = *p.MaxDepth
		}
		maxDepth = &zero
	}

	caseSensitive := true
	if p.CaseSensitive != nil {
		caseSensitive = *p.CaseSensitive
	}

	sortBy := p.SortBy
	if sortBy == "" {
		sortBy = "path"
	}
	switch sortBy {
	case "path", "name", "modified", "size":
	default:
		m := errorResult("invalid_params", "invalid sort_by '"+sortBy+"'. Expected one of: path, name, modified, size")
		return nil, &m
	}

	sortOrder := p.SortOrder
	if sortOrder == "" {
		sortOrder = "asc"
	}
	switch sortOrder {
	case "asc", "desc":
	default:
		m := errorResult("invalid_params", "invalid sort_order '"+sortOrder+"'. Expected one of: asc, desc")
		return nil, &m
	}

	if p.Limit != nil && *p.Limit == 0 {
		m := errorResult("invalid_params", "invalid limit: must be greater than 0")
		return nil, &m
	}

	matches := walkGlob(root, includes, excludes, extensions, maxDepth, p.IncludeHidden, p.FollowSymlinks, caseSensitive)
	sortGlobMatches(matches, sortBy, sortOrder)

	total := len(matches)
	if p.Limit != nil && *p.Limit < total {
		matches = matches[:*p.Limit]
	}

	results := make([]map[string]any, 0, len(matches))
	for _, m := range matches {
		results = append(results, map[string]any{
			"file_path":     m.filePath,
			"name":          m.name,
			"relative_path": m.relPath,
			"size":          m.size,
			"modified_unix": m.modified,
		})
	}

	return map[string]any{
		"results": results,
		"total":   total,
		"options": map[string]any{
			"root":            root,
			"includes":        includes,
			"excludes":        excludes,
			"extensions":      extensions,
			"max_depth":       maxDepth,
			"recursive":       recursive,
			"include_hidden":  p.IncludeHidden,
			"follow_symlinks": p.FollowSymlinks,
			"case_sensitive":  caseSensitive,
			"sort_by":         sortBy,
			"sort_order":      sortOrder,
			"limit":           p.Limit,
		},
	}, nil
}

func walkGlob(root string, includes, excludes, extensions []string, maxDepth *int, includeHidden, followSymlinks, caseSensitive bool) []globMatch {
	var matches []globMatch

	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if path == root {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		relSlash := filepath.ToSlash(rel)

		if !includeHidden && hasHiddenComponent(relSlash) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if maxDepth != nil && hopsOf(relSlash) >= *maxDepth {
				return filepath.SkipDir
			}
			return nil
		}

		if d.Type()&fs.ModeSymlink != 0 && !followSymlinks {
			return nil
		}

		if relSlash == "" {
			return nil
		}
		if !matchesAny(relSlash, includes, caseSensitive) {
			return nil
		}
		if matchesAny(relSlash, excludes, caseSensitive) {
			return nil
		}
		if !extensionAllowed(relSlash, extensions) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}

		matches = append(matches, globMatch{
			filePath: path,
			relPath:  relSlash,
			name:     d.Name(),
			size:     info.Size(),
			modified: info.ModTime().Unix(),
		})
		return nil
	})

	return matches
}

func hasHiddenComponent(relSlash string) bool {
	for _, part := range strings.Split(relSlash, "/") {
		if strings.HasPrefix(part, ".") {
			return true
		}
	}
	return false
}

// hopsOf counts the directory separators in relSlash: the number of
// directories that must be descended through to reach it from root. A
// top-level entry ("src") has zero hops; "src/nested" has one.
func hopsOf(relSlash string) int {
	return strings.Count(relSlash, "/")
}

func normalizeExtensions(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(e), "."))
		if e != "" {
			out = append(out, e)
		}
	}
	return out
}

func extensionAllowed(relSlash string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(relSlash), "."))
	if ext == "" {
		return false
	}
	for _, e := range extensions {
		if e == ext {
			return true
		}
	}
	return false
}

func matchesAny(relSlash string, patterns []string, caseSensitive bool) bool {
	candidate := relSlash
	if !caseSensitive {
		candidate = strings.ToLower(candidate)
	}
	for _, p := range patterns {
		pat := p
		if !caseSensitive {
			pat = strings.ToLower(pat)
		}
		if ok, _ := doublestar.Match(pat, candidate); ok {
			return true
		}
	}
	return false
}

func sortGlobMatches(matches []globMatch, by, order string) {
	less := func(i, j int) bool {
		a, b := matches[i], matches[j]
		var cmp int
		switch by {
		case "name":
			cmp = strings.Compare(a.name, b.name)
		case "modified":
			cmp = int(a.modified - b.modified)
		case "size":
			cmp = int(a.size - b.size)
		default:
			cmp = strings.Compare(a.relPath, b.relPath)
		}
		if cmp == 0 {
			cmp = strings.Compare(a.relPath, b.relPath)
		}
		if order == "desc" {
			return cmp > 0
		}
		return cmp < 0
	}
	sort.SliceStable(matches, less)
}
