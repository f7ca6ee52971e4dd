// Package symbols applies a fixed, case-insensitive regex set to source
// lines to detect functions, types, imports, exports, routes, SQL
// statements, and visibility markers (§4.F).
package symbols

import (
	"regexp"
	"strings"

	"github.com/flashgrep/flashgrep/internal/store"
)

var (
	functionPattern   = regexp.MustCompile(`(?i)(?:^|\s)(?:fn|def|func|function)\s+([a-zA-Z_][a-zA-Z0-9_]*)`)
	classPattern      = regexp.MustCompile(`(?i)(?:^|\s)(?:class|struct|interface|type)\s+([a-zA-Z_][a-zA-Z0-9_]*)`)
	importPattern     = regexp.MustCompile(`(?i)(?:^|\s)(?:import|require|include|use|from\s+.*import)`)
	exportPattern     = regexp.MustCompile(`(?i)(?:^|\s)(?:export|module\.exports|pub\s+(?:fn|struct|enum|const|let|type)|public)`)
	routePattern      = regexp.MustCompile(`(?i)(?:^|\s)(?:\.get\s*\(|\.post\s*\(|\.put\s*\(|\.delete\s*\(|@(?:Get|Post|Put|Delete)|router\.)`)
	sqlPattern        = regexp.MustCompile(`(?i)(?:^|\s)(?:SELECT|INSERT|UPDATE|DELETE|CREATE|DROP|ALTER)\s+`)
	visibilityPattern = regexp.MustCompile(`(?i)(?:^|\s)(?:public|private|protected|internal|pub)`)

	importNamePattern     = regexp.MustCompile(`(?i)(?:import|require|include|use)\s+['"]?([a-zA-Z_][a-zA-Z0-9_/.]*)`)
	exportNamePattern     = regexp.MustCompile(`export\s+(?:const|let|var|function|class|interface|type|default\s+)?\s*([a-zA-Z_][a-zA-Z0-9_]*)`)
	routeNamePattern      = regexp.MustCompile(`['"]([^'"]+)['"]`)
	visibilityNamePattern = regexp.MustCompile(`(?i)(?:public|private|protected|pub)\s+(?:fn|function|def|class|struct|interface|const|let|var|static)?\s*([a-zA-Z_][a-zA-Z0-9_]*)`)
)

// Symbol kinds, stored verbatim in store.Symbol.SymbolType.
const (
	KindFunction  = "function"
	KindClass     = "class"
	KindStruct    = "struct"
	KindInterface = "interface"
	KindType      = "type"
	KindImport    = "import"
	KindExport    = "export"
	KindRoute     = "route"
	KindSQL       = "sql"
	KindPublic    = "public"
	KindPrivate   = "private"
)

// Detect scans content (a chunk's text, or a whole file) and returns every
// symbol found, with LineNumber offset by startLine so callers can pass a
// chunk's own first line. Multiple symbols may be emitted per line.
func Detect(filePath, content string, startLine int) []*store.Symbol {
	var out []*store.Symbol
	for i, line := range strings.Split(content, "\n") {
		lineNumber := startLine + i
		out = append(out, detectLine(filePath, line, lineNumber)...)
	}
	return out
}

func detectLine(filePath, line string, lineNumber int) []*store.Symbol {
	var out []*store.Symbol
	lower := strings.ToLower(line)

	for _, m := range functionPattern.FindAllStringSubmatch(line, -1) {
		out = append(out, sym(filePath, m[1], lineNumber, KindFunction))
	}

	for _, m := range classPattern.FindAllStringSubmatch(line, -1) {
		out = append(out, sym(filePath, m[1], lineNumber, classSubkind(lower)))
	}

	if importPattern.MatchString(line) {
		out = append(out, sym(filePath, extractName(importNamePattern, line, KindImport), lineNumber, KindImport))
	}

	if exportPattern.MatchString(line) {
		out = append(out, sym(filePath, extractName(exportNamePattern, line, KindExport), lineNumber, KindExport))
	}

	if routePattern.MatchString(line) {
		out = append(out, sym(filePath, extractRouteName(line), lineNumber, KindRoute))
	}

	if sqlPattern.MatchString(line) {
		out = append(out, sym(filePath, sqlVerb(strings.ToUpper(line)), lineNumber, KindSQL))
	}

	if visibilityPattern.MatchString(line) &&
		!strings.Contains(lower, "function") &&
		!strings.Contains(lower, "fn") &&
		!strings.Contains(lower, "def") {
		kind := KindPublic
		if strings.Contains(lower, "private") {
			kind = KindPrivate
		}
		out = append(out, sym(filePath, extractName(visibilityNamePattern, line, "visibility"), lineNumber, kind))
	}

	return out
}

func sym(filePath, name string, lineNumber int, kind string) *store.Symbol {
	return &store.Symbol{FilePath: filePath, Name: name, LineNumber: lineNumber, SymbolType: kind}
}

// classSubkind picks the subkind the triggering keyword implies.
func classSubkind(lowerLine string) string {
	switch {
	case strings.Contains(lowerLine, "class"):
		return KindClass
	case strings.Contains(lowerLine, "struct"):
		return KindStruct
	case strings.Contains(lowerLine, "interface"):
		return KindInterface
	default:
		return KindType
	}
}

func extractName(re *regexp.Regexp, line, fallback string) string {
	m := re.FindStringSubmatch(line)
	if m == nil || m[1] == "" {
		return fallback
	}
	return m[1]
}

func extractRouteName(line string) string {
	m := routeNamePattern.FindStringSubmatch(line)
	if m == nil {
		return "route"
	}
	return m[1]
}

func sqlVerb(upperLine string) string {
	for _, verb := range []string{"SELECT", "INSERT", "UPDATE", "DELETE", "CREATE", "DROP", "ALTER"} {
		if strings.Contains(upperLine, verb) {
			return verb
		}
	}
	return "SQL"
}
