package rpc

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/flashgrep/flashgrep/internal/config"
	"github.com/flashgrep/flashgrep/internal/gitignore"
	"github.com/flashgrep/flashgrep/internal/scanner"
)

// grepParams is the wire shape shared by the four unindexed grep fallback
// methods. Unused fields are ignored per method (e.g. `directory` only
// applies to search-in-directory).
type grepParams struct {
	Text      string `json:"text"`
	Pattern   string `json:"pattern"`
	Directory string `json:"directory"`
	Context   int    `json:"context"`
	Limit     int    `json:"limit"`
}

type grepHit struct {
	filePath string
	line     int
	text     string
	before   []string
	after    []string
}

// handleGrep dispatches the four unindexed grep fallback methods (§4.L):
// plain recursive content search that works even before `.flashgrep/`
// exists, respecting `.flashgrepignore`. Results are ranked by file path
// then line order, not by relevance score.
func (h *Handler) handleGrep(method string, rawParams any) (any, *methodResult) {
	var p grepParams
	if err := decodeParams(rawParams, &p); err != nil {
		return nil, invalidParams(err)
	}

	root := h.repoRoot
	if method == MethodSearchInDirectory && p.Directory != "" {
		root = filepath.Join(h.repoRoot, p.Directory)
	}

	limit := p.Limit
	if limit <= 0 {
		limit = 50
	}

	contextLines := p.Context
	if method != MethodSearchWithContext {
		contextLines = 0
	}

	var matcher func(line string) bool
	var query string
	switch method {
	case MethodSearchByRegex:
		query = p.Pattern
		if query == "" {
			query = p.Text
		}
		re, err := regexp.Compile(query)
		if err != nil {
			m := errorResult("invalid_params", "invalid regex pattern: "+err.Error())
			return nil, &m
		}
		matcher = re.MatchString
	default:
		query = p.Text
		matcher = func(line string) bool { return strings.Contains(line, query) }
	}
	if query == "" {
		m := errorResult("invalid_params", "missing required field: text")
		return nil, &m
	}

	hits, err := grepWalk(root, matcher, contextLines, limit)
	if err != nil {
		m := errorResult("invalid_params", err.Error())
		return nil, &m
	}

	results := make([]map[string]any, 0, len(hits))
	for _, hit := range hits {
		entry := map[string]any{
			"file_path": hit.filePath,
			"line":      hit.line,
			"text":      hit.text,
		}
		if contextLines > 0 {
			entry["before"] = hit.before
			entry["after"] = hit.after
		}
		results = append(results, entry)
	}

	return map[string]any{
		"results": results,
		"total":   len(results),
	}, nil
}

// grepWalk scans files under root using the same ignore/extension
// predicates as the indexer, stopping once limit matching lines have been
// collected.
func grepWalk(root string, matcher func(string) bool, contextLines, limit int) ([]grepHit, error) {
	cfg := config.Default()
	ignore, err := gitignore.LoadDefaultIgnoreFile(filepath.Join(root, ".flashgrepignore"))
	if err != nil {
		ignore = gitignore.New()
	}
	sc := scanner.New(root, cfg, ignore)

	results, err := sc.Scan(context.Background())
	if err != nil {
		return nil, err
	}

	var hits []grepHit
	for res := range results {
		if res.Error != nil || res.File == nil {
			continue
		}
		if len(hits) >= limit {
			continue
		}

		fileHits := grepFile(res.File.AbsPath, res.File.Path, matcher, contextLines, limit-len(hits))
		hits = append(hits, fileHits...)
	}

	return hits, nil
}

func grepFile(absPath, relPath string, matcher func(string) bool, contextLines, remaining int) []grepHit {
	f, err := os.Open(absPath)
	if err != nil {
		return nil
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}

	var hits []grepHit
	for i, line := range lines {
		if len(hits) >= remaining {
			break
		}
		if !matcher(line) {
			continue
		}
		hit := grepHit{filePath: relPath, line: i + 1, text: line}
		if contextLines > 0 {
			hit.before = contextSlice(lines, i-contextLines, i)
			hit.after = contextSlice(lines, i+1, i+1+contextLines)
		}
		hits = append(hits, hit)
	}
	return hits
}

func contextSlice(lines []string, from, to int) []string {
	if from < 0 {
		from = 0
	}
	if to > len(lines) {
		to = len(lines)
	}
	if from >= to {
		return nil
	}
	return append([]string(nil), lines[from:to]...)
}
