// Package fulltext wraps a Bleve index over chunk content: the
// (file_path, content, start_line, end_line, content_hash, last_modified)
// schema, a buffered batch writer, and a score-ordered search call used by
// the query planner.
package fulltext

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	bleveSearch "github.com/blevesearch/bleve/v2/search"

	"github.com/flashgrep/flashgrep/internal/ferrors"
)

// minBatchBytes is the buffered-writer threshold required by §4.C: a writer
// must accumulate at least this many bytes of content before an implicit
// commit, so that a repository-wide pass issues one large batch rather than
// thousands of tiny ones.
const minBatchBytes = 50 * 1024 * 1024

// Document is a single chunk as stored in the full-text index.
type Document struct {
	FilePath     string
	Content      string
	StartLine    uint64
	EndLine      uint64
	ContentHash  string
	LastModified uint64
}

// docID identifies a chunk uniquely within the index: a file can have many
// chunks, so the path alone is not a valid key.
func docID(filePath string, startLine uint64) string {
	return filePath + "#" + strconv.FormatUint(startLine, 10)
}

// Index is the full-text search index over chunk content.
type Index struct {
	mu     sync.RWMutex
	idx    bleve.Index
	path   string
	closed bool
}

// Open creates or opens the full-text index at path.
func Open(path string) (*Index, error) {
	m := buildMapping()

	var b bleve.Index
	var err error
	if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, ferrors.Wrap(ferrors.Search, "create full-text index dir", err)
		}
		b, err = bleve.New(path, m)
	} else {
		b, err = bleve.Open(path)
	}
	if err != nil {
		return nil, ferrors.Wrap(ferrors.Search, "open full-text index", err)
	}

	return &Index{idx: b, path: path}, nil
}

// buildMapping constructs the five-field document mapping §4.C specifies.
func buildMapping() *mapping.IndexMappingImpl {
	im := bleve.NewIndexMapping()

	text := bleve.NewTextFieldMapping()
	text.Store = true
	text.Index = true

	numeric := bleve.NewNumericFieldMapping()
	numeric.Store = true
	numeric.Index = true

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt("file_path", text)
	docMapping.AddFieldMappingsAt("content", text)
	docMapping.AddFieldMappingsAt("start_line", numeric)
	docMapping.AddFieldMappingsAt("end_line", numeric)
	docMapping.AddFieldMappingsAt("last_modified", numeric)
	docMapping.AddFieldMappingsAt("content_hash", text)

	im.DefaultMapping = docMapping
	return im
}

// Close closes the underlying Bleve index.
func (x *Index) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed {
		return nil
	}
	x.closed = true
	if err := x.idx.Close(); err != nil {
		return ferrors.Wrap(ferrors.Search, "close full-text index", err)
	}
	return nil
}

// DeletePath removes every indexed chunk belonging to filePath. Per §4.C
// this must run, and its effects must be committed, before chunks for the
// same path are reinserted.
func (x *Index) DeletePath(ctx context.Context, filePath string) error {
	ids, err := x.idsForPath(ctx, filePath)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	batch := x.idx.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	if err := x.idx.Batch(batch); err != nil {
		return ferrors.Wrap(ferrors.Search, "delete path "+filePath, err)
	}
	return nil
}

func (x *Index) idsForPath(ctx context.Context, filePath string) ([]string, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	// file_path is analyzed (split on '/', lowercased), so a phrase query
	// finds the candidates and the stored path is then compared exactly.
	q := bleve.NewMatchPhraseQuery(filePath)
	q.SetField("file_path")
	req := bleve.NewSearchRequest(q)
	req.Size = 100000
	req.Fields = []string{"file_path"}

	res, err := x.idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.Search, "find docs for path "+filePath, err)
	}

	ids := make([]string, 0, len(res.Hits))
	for _, hit := range res.Hits {
		if p, _ := hit.Fields["file_path"].(string); p == filePath {
			ids = append(ids, hit.ID)
		}
	}
	return ids, nil
}

// Writer buffers chunk insertions across a repository-wide pass and
// commits them in batches of at least minBatchBytes, plus a final flush.
// Add/Commit are safe to call from multiple goroutines: a repository-wide
// pass indexes files concurrently but shares one Writer per §4.C.
type Writer struct {
	mu            sync.Mutex
	idx           *Index
	batch         *bleve.Batch
	bufferedBytes int
}

// NewWriter starts a buffered writer bound to this index.
func (x *Index) NewWriter() *Writer {
	return &Writer{idx: x, batch: x.idx.NewBatch()}
}

// Add queues a chunk document for indexing, flushing the batch first if it
// has already crossed the buffering threshold.
func (w *Writer) Add(doc Document) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	bleveDoc := map[string]any{
		"file_path":     doc.FilePath,
		"content":       doc.Content,
		"start_line":    doc.StartLine,
		"end_line":      doc.EndLine,
		"content_hash":  doc.ContentHash,
		"last_modified": doc.LastModified,
	}
	if err := w.batch.Index(docID(doc.FilePath, doc.StartLine), bleveDoc); err != nil {
		return ferrors.Wrap(ferrors.Search, "queue document "+doc.FilePath, err)
	}
	w.bufferedBytes += len(doc.Content) + len(doc.FilePath)

	if w.bufferedBytes >= minBatchBytes {
		return w.flush()
	}
	return nil
}

func (w *Writer) flush() error {
	if w.batch.Size() == 0 {
		return nil
	}
	w.idx.mu.Lock()
	defer w.idx.mu.Unlock()

	if err := w.idx.idx.Batch(w.batch); err != nil {
		return ferrors.Wrap(ferrors.Search, "commit full-text batch", err)
	}
	w.batch = w.idx.idx.NewBatch()
	w.bufferedBytes = 0
	return nil
}

// Commit flushes any remaining buffered documents. The moment this returns
// successfully, the full-text index is consistent with the preceding
// DeletePath calls for the same pass.
func (w *Writer) Commit() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flush()
}

// SearchHit is a single scored match from the full-text index.
type SearchHit struct {
	FilePath     string
	Content      string
	StartLine    uint64
	EndLine      uint64
	ContentHash  string
	LastModified uint64
	Score        float64
}

// Search runs queryStr against the content field, returning up to limit
// hits ordered by descending score. A double-quoted string (as built by the
// query planner's literal mode) runs as a phrase query on its unquoted text;
// any other text is analyzed into terms, and a chunk matching any of them is
// a hit. No other query-string syntax is parsed.
func (x *Index) Search(ctx context.Context, queryStr string, limit int) ([]SearchHit, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if queryStr == "" {
		return nil, nil
	}

	var req *bleve.SearchRequest
	if len(queryStr) >= 2 && strings.HasPrefix(queryStr, `"`) && strings.HasSuffix(queryStr, `"`) {
		q := bleve.NewMatchPhraseQuery(strings.ReplaceAll(queryStr[1:len(queryStr)-1], `\"`, `"`))
		q.SetField("content")
		req = bleve.NewSearchRequest(q)
	} else {
		q := bleve.NewMatchQuery(queryStr)
		q.SetField("content")
		req = bleve.NewSearchRequest(q)
	}
	req.Size = limit
	req.Fields = []string{"file_path", "content", "start_line", "end_line", "content_hash", "last_modified"}

	res, err := x.idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.Search, "search \""+queryStr+"\"", err)
	}

	hits := make([]SearchHit, 0, len(res.Hits))
	for _, hit := range res.Hits {
		hits = append(hits, hitFromFields(hit))
	}
	return hits, nil
}

func hitFromFields(hit *bleveSearch.DocumentMatch) SearchHit {
	h := SearchHit{Score: hit.Score}
	if v, ok := hit.Fields["file_path"].(string); ok {
		h.FilePath = v
	}
	if v, ok := hit.Fields["content"].(string); ok {
		h.Content = v
	}
	if v, ok := hit.Fields["content_hash"].(string); ok {
		h.ContentHash = v
	}
	h.StartLine = numericField(hit.Fields["start_line"])
	h.EndLine = numericField(hit.Fields["end_line"])
	h.LastModified = numericField(hit.Fields["last_modified"])
	return h
}

func numericField(v any) uint64 {
	f, ok := v.(float64)
	if !ok {
		return 0
	}
	return uint64(f)
}

// DocCount reports the number of indexed documents, used by `stats`.
func (x *Index) DocCount() (uint64, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	n, err := x.idx.DocCount()
	if err != nil {
		return 0, ferrors.Wrap(ferrors.Search, "doc count", err)
	}
	return n, nil
}
