package rpc

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
)

const defaultSymbolContextLines = 20

// readParams is the wire shape of `get_slice`/`read_code`, per
// original_source's code_io.rs read_code_input_schema.
type readParams struct {
	FilePath              string `json:"file_path"`
	SymbolName            string `json:"symbol_name"`
	StartLine             int    `json:"start_line"`
	EndLine               int    `json:"end_line"`
	ContinuationStartLine int    `json:"continuation_start_line"`
	SymbolContextLines    int    `json:"symbol_context_lines"`
	MaxLines              int    `json:"max_lines"`
	MaxBytes              int    `json:"max_bytes"`
	MaxTokens             int    `json:"max_tokens"`
}

// readTarget is the resolved, unbudgeted content a read targets: lines
// is the slice to serve, startLine is the absolute (1-indexed) line
// number lines[0] corresponds to in the source file.
type readTarget struct {
	filePath    string
	lines       []string
	startLine   int
	totalInFile int
	modeName    string
	symbolName  string
}

func (h *Handler) handleReadCode(rawParams any) (any, *methodResult) {
	var p readParams
	if err := decodeParams(rawParams, &p); err != nil {
		return nil, invalidParams(err)
	}

	if p.FilePath != "" && p.SymbolName != "" {
		m := errorResult("invalid_params", "provide either file_path or symbol_name, not both")
		return nil, &m
	}
	if p.FilePath == "" && p.SymbolName == "" {
		m := errorResult("invalid_params", "missing read target: provide file_path or symbol_name")
		return nil, &m
	}
	if p.MaxLines < 0 || p.MaxBytes < 0 || p.MaxTokens < 0 {
		m := errorResult("invalid_params", "budget limits must be positive integers")
		return nil, &m
	}

	var target readTarget
	var err error
	if p.SymbolName != "" {
		contextLines := p.SymbolContextLines
		if contextLines == 0 {
			contextLines = defaultSymbolContextLines
		}
		target, err = h.resolveSymbolTarget(p.SymbolName, contextLines)
	} else {
		start := p.StartLine
		if p.ContinuationStartLine > 0 {
			start = p.ContinuationStartLine
		}
		if start == 0 {
			start = 1
		}
		target, err = h.resolveSliceTarget(p.FilePath, start, p.EndLine, "")
	}
	if err != nil {
		m := errorResult("invalid_params", err.Error())
		return nil, &m
	}

	maxBytes := MaxReadBytes
	if p.MaxBytes > 0 && p.MaxBytes < MaxReadBytes {
		maxBytes = p.MaxBytes
	}
	bounded, ok := applyBudgets(target.lines, target.startLine, p.MaxLines, maxBytes, p.MaxTokens)
	if !ok {
		m := errorResult("invalid_params", "provided budgets are too strict to return any complete line; increase limits")
		return nil, &m
	}

	result := map[string]any{
		"file_path":               target.filePath,
		"content":                 strings.Join(bounded.included, "\n"),
		"start_line":              bounded.firstLine,
		"end_line":                bounded.lastLine,
		"truncated":               bounded.truncated,
		"continuation_start_line": bounded.nextStartLine,
		"mode":                    target.modeName,
		"total_lines_available":   target.totalInFile,
	}
	if target.symbolName != "" {
		result["symbol_name"] = target.symbolName
	}
	return result, nil
}

// resolveSliceTarget reads [startLine, endLine] (1-indexed, inclusive)
// from relPath. endLine <= 0 means "to end of file".
func (h *Handler) resolveSliceTarget(relPath string, startLine, endLine int, symbolName string) (readTarget, error) {
	if startLine == 0 {
		return readTarget{}, errors.New("start_line must be greater than 0")
	}

	lines, err := h.readLines(relPath)
	if err != nil {
		return readTarget{}, err
	}

	mode := "slice"
	if symbolName != "" {
		mode = "symbol"
	}

	if len(lines) == 0 {
		return readTarget{filePath: relPath, modeName: mode, symbolName: symbolName}, nil
	}
	if startLine > len(lines) {
		return readTarget{}, errors.New("start_line exceeds file line count")
	}

	end := endLine
	if end <= 0 || end > len(lines) {
		end = len(lines)
	}
	if end < startLine {
		return readTarget{}, errors.New("end_line is less than start_line")
	}

	return readTarget{
		filePath:    relPath,
		lines:       lines[startLine-1 : end],
		startLine:   startLine,
		totalInFile: len(lines),
		modeName:    mode,
		symbolName:  symbolName,
	}, nil
}

func (h *Handler) resolveSymbolTarget(name string, contextLines int) (readTarget, error) {
	symbols, err := h.meta.FindSymbolsByName(context.Background(), name)
	if err != nil {
		return readTarget{}, err
	}
	if len(symbols) == 0 {
		return readTarget{}, errors.New("symbol not found: " + name)
	}
	sym := symbols[0]

	start := sym.LineNumber - contextLines
	if start < 1 {
		start = 1
	}
	end := sym.LineNumber + contextLines

	return h.resolveSliceTarget(sym.FilePath, start, end, name)
}

func (h *Handler) readLines(relPath string) ([]string, error) {
	data, err := os.ReadFile(h.absPath(relPath))
	if err != nil {
		return nil, err
	}
	content := string(data)
	if content == "" {
		return nil, nil
	}
	content = strings.TrimSuffix(content, "\n")
	return strings.Split(content, "\n"), nil
}

func (h *Handler) absPath(relPath string) string {
	if filepath.IsAbs(relPath) {
		return relPath
	}
	return filepath.Join(h.repoRoot, relPath)
}

type boundedContent struct {
	included      []string
	firstLine     int
	lastLine      int
	truncated     bool
	nextStartLine any // int or nil
}

// applyBudgets implements code_io.rs's apply_budgets: greedily includes
// lines while every supplied budget (lines/bytes/tokens) still holds,
// stopping at the first line that would exceed any of them. baseLine is
// the absolute line number of lines[0].
func applyBudgets(lines []string, baseLine, maxLines, maxBytes, maxTokens int) (boundedContent, bool) {
	if len(lines) == 0 {
		return boundedContent{firstLine: 1, lastLine: 0}, true
	}

	var included []string
	consumedBytes := 0
	consumedTokens := 0

	for _, line := range lines {
		lineBytes := len(line)
		lineTokens := len(strings.Fields(line))
		sepBytes := 0
		if len(included) > 0 {
			sepBytes = 1
		}
		nextLines := len(included) + 1
		nextBytes := consumedBytes + lineBytes + sepBytes
		nextTokens := consumedTokens + lineTokens

		if maxLines > 0 && nextLines > maxLines {
			break
		}
		if maxBytes > 0 && nextBytes > maxBytes {
			break
		}
		if maxTokens > 0 && nextTokens > maxTokens {
			break
		}

		included = append(included, line)
		consumedBytes = nextBytes
		consumedTokens = nextTokens
	}

	if len(included) == 0 {
		return boundedContent{}, false
	}

	truncated := len(included) < len(lines)
	var nextStart any
	if truncated {
		nextStart = baseLine + len(included)
	}

	return boundedContent{
		included:      included,
		firstLine:     baseLine,
		lastLine:      baseLine + len(included) - 1,
		truncated:     truncated,
		nextStartLine: nextStart,
	}, true
}
