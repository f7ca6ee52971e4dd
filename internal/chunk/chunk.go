// Package chunk splits file content into line-range chunks (§4.E).
package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// MaxChunkLines bounds every chunk's size; it is the ceiling the boundary
// search cuts at when no balanced-bracket blank line is found first.
const MaxChunkLines = 300

// Chunk is a 1-indexed, inclusive line range of a file plus its content
// hash.
type Chunk struct {
	StartLine   int // 1-indexed
	EndLine     int // 1-indexed, inclusive
	Content     string
	ContentHash string // hex SHA-256 of Content
}

// Split breaks content into non-overlapping chunks. Within the
// MaxChunkLines window it prefers to cut where every bracket pair {} [] ()
// seen so far is balanced and the current line is blank; otherwise it cuts
// at the ceiling.
func Split(content string) []Chunk {
	lines := splitLines(content)
	if len(lines) == 0 {
		return nil
	}

	var chunks []Chunk
	start := 0
	for start < len(lines) {
		end := findBoundary(lines, start)
		chunkLines := lines[start:end]
		text := strings.Join(chunkLines, "\n")

		chunks = append(chunks, Chunk{
			StartLine:   start + 1,
			EndLine:     end,
			Content:     text,
			ContentHash: ContentHash(text),
		})
		start = end
	}
	return chunks
}

// findBoundary returns the exclusive end index (0-indexed into lines) of
// the next chunk starting at start.
func findBoundary(lines []string, start int) int {
	maxEnd := start + MaxChunkLines
	if maxEnd > len(lines) {
		maxEnd = len(lines)
	}

	depth := 0
	end := start

	for i := start; i < maxEnd; i++ {
		line := strings.TrimSpace(lines[i])
		for _, c := range line {
			switch c {
			case '{', '[', '(':
				depth++
			case '}', ']', ')':
				depth--
			}
		}
		end = i + 1
		if depth == 0 && line == "" {
			break
		}
	}

	if end == start {
		end = maxEnd
	}
	return end
}

// splitLines splits content on "\n", matching Rust's str::lines in that a
// trailing newline does not produce a final empty line.
func splitLines(content string) []string {
	if content == "" {
		return nil
	}
	content = strings.TrimSuffix(content, "\n")
	if content == "" {
		return []string{""}
	}
	return strings.Split(content, "\n")
}

// ContentHash returns the hex-encoded SHA-256 digest of content, used to
// detect identical chunks across reindexing passes.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// IsBracketBalanced reports whether every {} [] () pair across lines is
// balanced. Exposed for the chunker tests that check the boundary
// heuristic directly.
func IsBracketBalanced(lines []string) bool {
	depth := 0
	for _, line := range lines {
		for _, c := range line {
			switch c {
			case '{', '[', '(':
				depth++
			case '}', ']', ')':
				depth--
			}
		}
	}
	return depth == 0
}
