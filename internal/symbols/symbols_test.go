package symbols

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/flashgrep/flashgrep/internal/store"
)

func hasSymbol(syms []*store.Symbol, name, kind string) bool {
	for _, s := range syms {
		if s.Name == name && s.SymbolType == kind {
			return true
		}
	}
	return false
}

func TestDetect_Function(t *testing.T) {
	code := "fn main() {\n    println!(\"Hello\");\n}"
	syms := Detect("test.rs", code, 1)
	assert.True(t, hasSymbol(syms, "main", KindFunction))
}

func TestDetect_Class(t *testing.T) {
	code := "class MyClass:\n    pass"
	syms := Detect("test.py", code, 1)
	assert.True(t, hasSymbol(syms, "MyClass", KindClass))
}

func TestDetect_StructSubkind(t *testing.T) {
	code := "type Server struct {\n}"
	syms := Detect("test.go", code, 1)
	assert.True(t, hasSymbol(syms, "Server", KindStruct))
}

func TestDetect_Import(t *testing.T) {
	code := "import os\nfrom typing import List"
	syms := Detect("test.py", code, 1)
	found := false
	for _, s := range syms {
		if s.SymbolType == KindImport {
			found = true
		}
	}
	assert.True(t, found)
}

func TestDetect_SQL(t *testing.T) {
	code := "SELECT * FROM users WHERE id = 1"
	syms := Detect("test.sql", code, 1)
	assert.True(t, hasSymbol(syms, "SELECT", KindSQL))
}

func TestDetect_Route(t *testing.T) {
	code := "\n.get(\"/users\", handler)\n.post(\"/items\", handler)\n"
	syms := Detect("test.js", code, 1)
	count := 0
	for _, s := range syms {
		if s.SymbolType == KindRoute {
			count++
		}
	}
	assert.Equal(t, 2, count)
}

func TestDetect_LineNumberOffsetByStartLine(t *testing.T) {
	code := "x\nfunc Foo() {}\n"
	syms := Detect("a.go", code, 100)
	assert.True(t, hasSymbol(syms, "Foo", KindFunction))
	for _, s := range syms {
		if s.Name == "Foo" {
			assert.Equal(t, 101, s.LineNumber)
		}
	}
}

func TestDetect_MultipleSymbolsPerLine(t *testing.T) {
	code := "export function handler() {}"
	syms := Detect("a.js", code, 1)
	assert.True(t, hasSymbol(syms, "handler", KindFunction))
	found := false
	for _, s := range syms {
		if s.SymbolType == KindExport {
			found = true
		}
	}
	assert.True(t, found, "export keyword must also be detected on the same line")
}

func TestDetect_VisibilityKeywordDetected(t *testing.T) {
	code := "public static void main() {}"
	syms := Detect("a.java", code, 1)
	found := false
	for _, s := range syms {
		if s.SymbolType == KindPublic {
			found = true
		}
	}
	assert.True(t, found)
}

func TestDetect_VisibilitySuppressedWhenLineIsAFunctionDef(t *testing.T) {
	code := "public function handler() {}"
	syms := Detect("a.php", code, 1)
	for _, s := range syms {
		assert.NotEqual(t, KindPublic, s.SymbolType, "a line already matched as a function definition should not also emit a visibility symbol")
	}
}
