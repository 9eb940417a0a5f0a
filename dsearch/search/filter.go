package search

import (
	"strings"

	ignore "github.com/sabhiram/go-gitignore"
)

// nameFilter prunes containers and drops leaves by gitignore-style patterns
// matched against item names
type nameFilter struct {
	matcher *ignore.GitIgnore
}

func newNameFilter(patterns []string) *nameFilter {
	var lines []string
	for _, p := range patterns {
		if p = strings.TrimSpace(p); p != "" {
			lines = append(lines, p)
		}
	}
	if len(lines) == 0 {
		return nil
	}
	return &nameFilter{matcher: ignore.CompileIgnoreLines(lines...)}
}

// excluded reports whether item should be ignored. A nil filter excludes
// nothing.
func (f *nameFilter) excluded(item Item) bool {
	if f == nil {
		return false
	}
	name := item.Name
	if item.IsContainer() {
		// directory-only patterns ("build/") need the trailing slash
		name += "/"
	}
	return f.matcher.MatchesPath(name)
}
