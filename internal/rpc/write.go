package rpc

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
)

// writeParams is the wire shape of a `write_code` request, per
// original_source's code_io.rs write_code_input_schema.
type writeParams struct {
	FilePath     string             `json:"file_path"`
	StartLine    int                `json:"start_line"`
	EndLine      int                `json:"end_line"`
	Replacement  string             `json:"replacement"`
	Precondition *writePrecondition `json:"precondition"`

	// Chunked-write fields (§4.L): present only when replacement must be
	// accumulated across multiple requests because it exceeds
	// MaxWriteReplacementBytes in one shot.
	ContinuationID string `json:"continuation_id"`
	ChunkIndex     int    `json:"chunk_index"`
	IsFinalChunk   bool   `json:"is_final_chunk"`
}

type writePrecondition struct {
	ExpectedFileHash      *string `json:"expected_file_hash"`
	ExpectedStartLineText *string `json:"expected_start_line_text"`
	ExpectedEndLineText   *string `json:"expected_end_line_text"`
}

// writeSession tracks one in-progress chunked write: original_source's
// code_io.rs accumulates each chunk's replacement text to a staging file
// outside the repository, applying the assembled write only once the
// final chunk arrives. State machine: Idle -> Opened(chunk_index=0) ->
// Accumulating(chunk_index=k) -> Finalized | Discarded.
type writeSession struct {
	filePath       string
	startLine      int
	endLine        int
	precondition   *writePrecondition
	nextChunkIndex int
	stagingPath    string
}

// handleWriteCode replaces the 1-indexed inclusive line range
// [start_line, end_line] in file_path with replacement, preserving the
// file's original trailing-newline discipline. Optional preconditions are
// checked against the pre-write content before any mutation; a mismatch
// aborts the write and reports every failed check. A replacement larger
// than MaxWriteReplacementBytes is rejected outright, before the target
// file is ever opened, unless the caller is resuming a chunked-write
// session via continuation_id.
func (h *Handler) handleWriteCode(rawParams any) (any, *methodResult) {
	var p writeParams
	if err := decodeParams(rawParams, &p); err != nil {
		return nil, invalidParams(err)
	}

	if p.ContinuationID == "" && len(p.Replacement) > MaxWriteReplacementBytes {
		res := payloadTooLargeResult(len(p.Replacement), MaxWriteReplacementBytes,
			"split the write into chunks via continuation_id/chunk_index/is_final_chunk, or reduce the replacement size")
		res["ok"] = false
		return res, nil
	}

	if p.ContinuationID != "" {
		return h.handleChunkedWrite(p)
	}

	if p.FilePath == "" {
		m := errorResult("invalid_params", "missing required parameter: file_path")
		return nil, &m
	}
	if p.StartLine == 0 || p.EndLine == 0 || p.StartLine > p.EndLine {
		m := errorResult("invalid_params", "invalid range: start_line and end_line must be >= 1 and start_line <= end_line")
		return nil, &m
	}

	return h.applyWrite(p.FilePath, p.StartLine, p.EndLine, p.Replacement, p.Precondition)
}

// handleChunkedWrite advances or opens a chunked-write session keyed by
// continuation_id. chunk_index==0 opens (or re-opens) a session and
// stages the first chunk; chunk_index>0 must match the stored session's
// (file_path, start_line, end_line, next_chunk_index) exactly, or the
// request is rejected with invalid_continuation_state rather than
// silently accepted against the wrong session.
func (h *Handler) handleChunkedWrite(p writeParams) (any, *methodResult) {
	h.writeMu.Lock()
	session, exists := h.writeSessions[p.ContinuationID]
	h.writeMu.Unlock()

	if p.ChunkIndex == 0 {
		if exists {
			h.discardSession(p.ContinuationID, session)
		}
		if p.FilePath == "" {
			m := errorResult("invalid_params", "missing required parameter: file_path")
			return nil, &m
		}
		if p.StartLine == 0 || p.EndLine == 0 || p.StartLine > p.EndLine {
			m := errorResult("invalid_params", "invalid range: start_line and end_line must be >= 1 and start_line <= end_line")
			return nil, &m
		}

		session = &writeSession{
			filePath:     p.FilePath,
			startLine:    p.StartLine,
			endLine:      p.EndLine,
			precondition: p.Precondition,
			stagingPath:  writeSessionStagingPath(p.ContinuationID),
		}
		if err := os.WriteFile(session.stagingPath, []byte(p.Replacement), 0o600); err != nil {
			m := errorResult("invalid_params", err.Error())
			return nil, &m
		}
		session.nextChunkIndex = 1

		if p.IsFinalChunk {
			return h.finalizeChunkedWrite(p.ContinuationID, session)
		}

		h.writeMu.Lock()
		h.writeSessions[p.ContinuationID] = session
		h.writeMu.Unlock()
		return chunkAcceptedResult(p.ContinuationID, session.nextChunkIndex), nil
	}

	expected := map[string]any{
		"continuation_id": p.ContinuationID,
	}
	received := map[string]any{
		"continuation_id": p.ContinuationID,
		"file_path":       p.FilePath,
		"start_line":      p.StartLine,
		"end_line":        p.EndLine,
		"chunk_index":     p.ChunkIndex,
	}
	if !exists {
		expected["state"] = "discarded"
		return invalidContinuationStateResult(expected, received), nil
	}

	expected["file_path"] = session.filePath
	expected["start_line"] = session.startLine
	expected["end_line"] = session.endLine
	expected["chunk_index"] = session.nextChunkIndex

	if p.FilePath != session.filePath || p.StartLine != session.startLine ||
		p.EndLine != session.endLine || p.ChunkIndex != session.nextChunkIndex {
		return invalidContinuationStateResult(expected, received), nil
	}

	f, err := os.OpenFile(session.stagingPath, os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		h.discardSession(p.ContinuationID, session)
		expected["state"] = "discarded"
		return invalidContinuationStateResult(expected, received), nil
	}
	_, writeErr := f.WriteString(p.Replacement)
	closeErr := f.Close()
	if writeErr != nil || closeErr != nil {
		m := errorResult("invalid_params", "failed to accumulate write chunk")
		return nil, &m
	}

	session.nextChunkIndex++

	if p.IsFinalChunk {
		return h.finalizeChunkedWrite(p.ContinuationID, session)
	}

	h.writeMu.Lock()
	h.writeSessions[p.ContinuationID] = session
	h.writeMu.Unlock()
	return chunkAcceptedResult(p.ContinuationID, session.nextChunkIndex), nil
}

// finalizeChunkedWrite applies the fully-accumulated replacement staged
// across every chunk of continuation_id, then discards the session
// (Finalized) regardless of whether the write itself succeeds.
func (h *Handler) finalizeChunkedWrite(continuationID string, session *writeSession) (any, *methodResult) {
	staged, err := os.ReadFile(session.stagingPath)
	nextChunkIndex := session.nextChunkIndex
	h.discardSession(continuationID, session)
	if err != nil {
		m := errorResult("invalid_params", err.Error())
		return nil, &m
	}

	result, merr := h.applyWrite(session.filePath, session.startLine, session.endLine, string(staged), session.precondition)
	if merr != nil {
		return result, merr
	}
	if m, ok := result.(map[string]any); ok {
		m["continuation"] = map[string]any{
			"cursor":      continuationID,
			"chunk_index": nextChunkIndex,
			"completed":   true,
		}
	}
	return result, nil
}

// discardSession removes continuation_id's staging file and session
// entry. Safe to call even if the staging file is already gone.
func (h *Handler) discardSession(continuationID string, session *writeSession) {
	_ = os.Remove(session.stagingPath)
	h.writeMu.Lock()
	delete(h.writeSessions, continuationID)
	h.writeMu.Unlock()
}

// writeSessionStagingPath derives a chunked-write session's staging file
// path outside the repository, in the OS temp directory. The
// continuation_id is caller-supplied and untrusted, so it is hashed
// rather than used directly as a path component.
func writeSessionStagingPath(continuationID string) string {
	sum := sha256.Sum256([]byte(continuationID))
	return filepath.Join(os.TempDir(), "flashgrep-write-"+hex.EncodeToString(sum[:])+".chunk")
}

// chunkAcceptedResult acknowledges a non-final chunk: Accumulating,
// awaiting the next chunk_index or a final chunk.
func chunkAcceptedResult(continuationID string, nextChunkIndex int) map[string]any {
	return map[string]any{
		"ok": true,
		"continuation": map[string]any{
			"cursor":      continuationID,
			"chunk_index": nextChunkIndex,
			"completed":   false,
		},
	}
}

// invalidContinuationStateResult reports a chunked-write resumption that
// does not match the session's recorded state (or finds no session at
// all, i.e. Discarded).
func invalidContinuationStateResult(expected, received map[string]any) map[string]any {
	return map[string]any{
		"ok":       false,
		"error":    "invalid_continuation_state",
		"expected": expected,
		"received": received,
	}
}

// applyWrite performs the actual line-range replacement against
// file_path: precondition check, line-count validation, and the
// trailing-newline-preserving rewrite. Shared by both the single-request
// write path and a chunked write's finalization.
func (h *Handler) applyWrite(filePath string, startLine, endLine int, replacement string, precondition *writePrecondition) (any, *methodResult) {
	absPath := h.absPath(filePath)
	data, err := os.ReadFile(absPath)
	if err != nil {
		m := errorResult("invalid_params", err.Error())
		return nil, &m
	}

	originalContent := string(data)
	originalHash := sha256Hex(originalContent)
	hadTrailingNewline := strings.HasSuffix(originalContent, "\n")

	originalLines := splitLines(originalContent)
	if len(originalLines) == 0 {
		m := errorResult("invalid_params", "cannot apply line-range write to empty file")
		return nil, &m
	}
	if endLine > len(originalLines) {
		m := errorResult("invalid_params", "invalid range: end_line exceeds file line count")
		return nil, &m
	}

	if conflict := checkWritePreconditions(precondition, originalLines, originalHash, startLine, endLine); conflict != nil {
		return map[string]any{
			"ok":        false,
			"error":     "precondition_failed",
			"file_path": filePath,
			"conflict":  conflict,
		}, nil
	}

	var replacementLines []string
	if replacement != "" {
		replacementLines = strings.Split(replacement, "\n")
	}

	newLines := make([]string, 0, len(originalLines)-(endLine-startLine+1)+len(replacementLines))
	newLines = append(newLines, originalLines[:startLine-1]...)
	newLines = append(newLines, replacementLines...)
	newLines = append(newLines, originalLines[endLine:]...)

	newContent := strings.Join(newLines, "\n")
	if hadTrailingNewline && len(newLines) > 0 {
		newContent += "\n"
	}

	if err := os.WriteFile(absPath, []byte(newContent), 0o644); err != nil {
		m := errorResult("invalid_params", err.Error())
		return nil, &m
	}
	newHash := sha256Hex(newContent)

	return map[string]any{
		"ok":                  true,
		"file_path":           filePath,
		"start_line":          startLine,
		"end_line":            endLine,
		"replaced_line_count": endLine - startLine + 1,
		"new_line_count":      len(replacementLines),
		"file_hash_before":    originalHash,
		"file_hash_after":     newHash,
	}, nil
}

func checkWritePreconditions(pc *writePrecondition, lines []string, currentHash string, startLine, endLine int) map[string]any {
	if pc == nil {
		return nil
	}

	var mismatches []map[string]any

	if pc.ExpectedFileHash != nil && *pc.ExpectedFileHash != currentHash {
		mismatches = append(mismatches, map[string]any{
			"field":    "expected_file_hash",
			"expected": *pc.ExpectedFileHash,
			"actual":   currentHash,
		})
	}

	if pc.ExpectedStartLineText != nil {
		actual := lineAt(lines, startLine)
		if *pc.ExpectedStartLineText != actual {
			mismatches = append(mismatches, map[string]any{
				"field":    "expected_start_line_text",
				"line":     startLine,
				"expected": *pc.ExpectedStartLineText,
				"actual":   actual,
			})
		}
	}

	if pc.ExpectedEndLineText != nil {
		actual := lineAt(lines, endLine)
		if *pc.ExpectedEndLineText != actual {
			mismatches = append(mismatches, map[string]any{
				"field":    "expected_end_line_text",
				"line":     endLine,
				"expected": *pc.ExpectedEndLineText,
				"actual":   actual,
			})
		}
	}

	if len(mismatches) == 0 {
		return nil
	}
	return map[string]any{"mismatches": mismatches}
}

func lineAt(lines []string, oneIndexed int) string {
	i := oneIndexed - 1
	if i < 0 || i >= len(lines) {
		return ""
	}
	return lines[i]
}

func splitLines(content string) []string {
	if content == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(content, "\n"), "\n")
}

func sha256Hex(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
