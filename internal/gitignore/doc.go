// Package gitignore provides gitignore-style pattern matching, used for
// flashgrep's .flashgrepignore rule set (§4.D).
//
// It implements the subset of gitignore syntax the specification calls for:
//
//   - Comments (#) and blank lines
//   - Wildcard patterns (*, ?, **/)
//   - Rooted patterns (/build)
//   - Negation patterns (!important.log)
//   - Directory-only patterns (build/)
//   - Cumulative evaluation: the last matching rule wins
//
// Usage:
//
//	m := gitignore.New()
//	m.AddPattern("*.log")
//	m.AddPattern("!important.log")
//	m.AddPattern("/build/")
//
//	if m.Match("error.log", false) {
//	    // path is ignored
//	}
package gitignore
