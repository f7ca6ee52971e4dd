// Package query implements the Query Planner (§4.K): it turns a
// structured query request into an index query, post-filters and paginates
// the candidates, and computes result previews.
package query

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/flashgrep/flashgrep/internal/ferrors"
	"github.com/flashgrep/flashgrep/internal/fulltext"
)

// Mode selects how Text is interpreted.
type Mode string

const (
	ModeSmart   Mode = "smart"
	ModeLiteral Mode = "literal"
	ModeRegex   Mode = "regex"
)

// maxCandidates bounds how many chunks the planner will ever pull from the
// full-text index for one query, regardless of limit/offset.
const maxCandidates = 10000

// candidateMultiplier is how many candidates to over-fetch per requested
// result, to leave room for post-filter rejections.
const candidateMultiplier = 30

// regexCacheSize bounds the compiled-regex LRU so that a long-running RPC
// process serving many distinct mode=regex queries doesn't grow unbounded.
const regexCacheSize = 256

// Options is the query request, as described by §4.K's Input section.
type Options struct {
	Text          string
	Limit         int
	Mode          Mode
	CaseSensitive bool
	Include       []string
	Exclude       []string
	Context       int
	Offset        int
	RegexFlags    string
}

// Validate enforces the Input preconditions, returning a Config-kind error
// on the first violation.
func (o *Options) Validate() error {
	if strings.TrimSpace(o.Text) == "" {
		return ferrors.New(ferrors.Config, "text must be non-empty", nil)
	}
	if o.Limit < 1 {
		return ferrors.New(ferrors.Config, "limit must be >= 1", nil)
	}
	if o.Offset < 0 {
		return ferrors.New(ferrors.Config, "offset must be >= 0", nil)
	}
	switch o.Mode {
	case "", ModeSmart, ModeLiteral, ModeRegex:
	default:
		return ferrors.New(ferrors.Config, fmt.Sprintf("unknown mode %q", o.Mode), nil)
	}
	if o.Mode != ModeRegex && o.RegexFlags != "" {
		return ferrors.New(ferrors.Config, "regex_flags is only valid when mode=regex", nil)
	}
	for _, f := range o.RegexFlags {
		if f != 'i' && f != 'm' && f != 's' {
			return ferrors.New(ferrors.Config, fmt.Sprintf("unsupported regex flag %q", f), nil)
		}
	}
	return nil
}

func (o *Options) mode() Mode {
	if o.Mode == "" {
		return ModeSmart
	}
	return o.Mode
}

// Result is a single matched chunk, per §4.K's Output section.
type Result struct {
	FilePath       string  `json:"file_path"`
	StartLine      int     `json:"start_line"`
	EndLine        int     `json:"end_line"`
	SymbolName     string  `json:"symbol_name,omitempty"`
	RelevanceScore float64 `json:"relevance_score"`
	Preview        string  `json:"preview"`
	Content        string  `json:"content,omitempty"`
}

// Response is the full output envelope.
type Response struct {
	Results      []Result `json:"results"`
	Truncated    bool     `json:"truncated"`
	ScannedFiles int      `json:"scanned_files"`
	NextOffset   int      `json:"next_offset"`
}

// Planner executes queries against a full-text index, reading file content
// from repoRoot for preview expansion.
type Planner struct {
	index    *fulltext.Index
	repoRoot string
	regexes  *lru.Cache[string, *regexp.Regexp]
}

// NewPlanner builds a Planner over index, reading preview content relative
// to repoRoot.
func NewPlanner(index *fulltext.Index, repoRoot string) *Planner {
	cache, _ := lru.New[string, *regexp.Regexp](regexCacheSize)
	return &Planner{index: index, repoRoot: repoRoot, regexes: cache}
}

// Run plans and executes opts against the index.
func (p *Planner) Run(ctx context.Context, opts Options) (*Response, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	queryStr, err := planQuery(opts)
	if err != nil {
		return nil, err
	}

	var matcher contentMatcher
	if opts.mode() == ModeRegex {
		re, err := p.compileRegex(opts)
		if err != nil {
			return nil, err
		}
		matcher = regexMatcher{re: re}
	} else {
		matcher = substringMatcher{text: opts.Text, caseSensitive: opts.CaseSensitive}
	}

	fetchSize := candidateFetchSize(opts.Limit, opts.Offset)
	hits, err := p.index.Search(ctx, queryStr, fetchSize)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.Search, "query planner search", err)
	}

	resp := &Response{}
	scanned := 0
	survivors := 0 // count of candidates that passed every filter, across the whole fetch

	for _, hit := range hits {
		scanned++
		if !pathMatches(hit.FilePath, opts.Include, opts.Exclude) {
			continue
		}
		if !matcher.matches(hit.Content) {
			continue
		}

		survivors++
		if survivors <= opts.Offset {
			continue
		}
		if len(resp.Results) >= opts.Limit {
			resp.Truncated = true
			break
		}

		resp.Results = append(resp.Results, Result{
			FilePath:       hit.FilePath,
			StartLine:      int(hit.StartLine),
			EndLine:        int(hit.EndLine),
			RelevanceScore: hit.Score,
			Preview:        p.preview(hit, opts.Context),
		})
	}

	resp.ScannedFiles = scanned
	resp.NextOffset = opts.Offset + len(resp.Results)
	return resp, nil
}

// candidateFetchSize implements §4.K's Execution sizing formula.
func candidateFetchSize(limit, offset int) int {
	n := limit * candidateMultiplier
	if alt := offset + limit; alt > n {
		n = alt
	}
	if n > maxCandidates {
		n = maxCandidates
	}
	return n
}

// planQuery builds the index query string per mode.
func planQuery(opts Options) (string, error) {
	switch opts.mode() {
	case ModeSmart:
		return opts.Text, nil
	case ModeLiteral:
		return quotePhrase(opts.Text), nil
	case ModeRegex:
		seed := firstAlnumRun(opts.Text)
		if seed == "" {
			return opts.Text, nil
		}
		return seed, nil
	default:
		return "", ferrors.New(ferrors.Config, "unknown mode", nil)
	}
}

// quotePhrase wraps text in quotes, escaping any quotes it already
// contains, so the index parser treats it as a literal phrase.
func quotePhrase(text string) string {
	escaped := strings.ReplaceAll(text, `"`, `\"`)
	return `"` + escaped + `"`
}

// firstAlnumRun extracts the first run of letters/digits/underscore in
// text, used as a narrowing seed query for regex mode.
func firstAlnumRun(text string) string {
	start := -1
	for i, r := range text {
		if isAlnum(r) {
			if start == -1 {
				start = i
			}
			continue
		}
		if start != -1 {
			return text[start:i]
		}
	}
	if start != -1 {
		return text[start:]
	}
	return ""
}

func isAlnum(r rune) bool {
	return r == '_' || (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func (p *Planner) compileRegex(opts Options) (*regexp.Regexp, error) {
	key := opts.RegexFlags + "\x00" + opts.Text
	if re, ok := p.regexes.Get(key); ok {
		return re, nil
	}

	pattern := opts.Text
	var prefix string
	if strings.ContainsRune(opts.RegexFlags, 'i') {
		prefix += "i"
	}
	if strings.ContainsRune(opts.RegexFlags, 'm') {
		prefix += "m"
	}
	if strings.ContainsRune(opts.RegexFlags, 's') {
		prefix += "s"
	}
	if prefix != "" {
		pattern = "(?" + prefix + ")" + pattern
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.Config, "compile regex", err)
	}
	p.regexes.Add(key, re)
	return re, nil
}

// contentMatcher decides whether a candidate chunk's content survives the
// post-filter.
type contentMatcher interface {
	matches(content string) bool
}

type substringMatcher struct {
	text          string
	caseSensitive bool
}

func (m substringMatcher) matches(content string) bool {
	if m.caseSensitive {
		return strings.Contains(content, m.text)
	}
	return strings.Contains(strings.ToLower(content), strings.ToLower(m.text))
}

type regexMatcher struct {
	re *regexp.Regexp
}

func (m regexMatcher) matches(content string) bool {
	return m.re.MatchString(content)
}

// pathMatches applies include/exclude globs to a candidate's path. An
// empty include list matches everything; exclude always wins over include.
func pathMatches(path string, include, exclude []string) bool {
	for _, pattern := range exclude {
		if ok, _ := doublestar.Match(pattern, path); ok {
			return false
		}
	}
	if len(include) == 0 {
		return true
	}
	for _, pattern := range include {
		if ok, _ := doublestar.Match(pattern, path); ok {
			return true
		}
	}
	return false
}

// preview computes the result preview per §4.K: context-padded lines read
// from disk when context > 0, else the chunk's own first three lines.
func (p *Planner) preview(hit fulltext.SearchHit, context int) string {
	if context <= 0 {
		return firstNLines(hit.Content, 3)
	}

	lines, err := readFileLines(p.repoRoot, hit.FilePath)
	if err != nil {
		return firstNLines(hit.Content, 3)
	}

	start := int(hit.StartLine) - context
	if start < 1 {
		start = 1
	}
	end := int(hit.EndLine) + context
	if end > len(lines) {
		end = len(lines)
	}
	if start > end || start > len(lines) {
		return firstNLines(hit.Content, 3)
	}
	return strings.Join(lines[start-1:end], "\n")
}

func firstNLines(content string, n int) string {
	lines := strings.Split(content, "\n")
	if len(lines) > n {
		lines = lines[:n]
	}
	return strings.Join(lines, "\n")
}

func readFileLines(repoRoot, relPath string) ([]string, error) {
	data, err := os.ReadFile(joinRepoPath(repoRoot, relPath))
	if err != nil {
		return nil, err
	}
	return strings.Split(string(data), "\n"), nil
}

func joinRepoPath(root, relPath string) string {
	if root == "" {
		return relPath
	}
	return strings.TrimSuffix(root, "/") + "/" + relPath
}
