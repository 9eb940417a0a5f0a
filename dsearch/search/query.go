package search

import (
	"fmt"
	"strings"
)

// FolderMimeType marks containers in Drive-style stores
const FolderMimeType = "application/vnd.google-apps.folder"

// Predicate is the server-side filter for one "list children" request.
// It selects direct children of Parent that are containers, or leaves whose
// name contains NameContains (case-sensitive), skipping trashed entries.
type Predicate struct {
	Parent            ContainerRef
	NameContains      string
	IncludeContainers bool
	ExcludeTrashed    bool
}

// BuildPredicate constructs the filter for one container visit
func BuildPredicate(container ContainerRef, fragment string) Predicate {
	return Predicate{
		Parent:            container,
		NameContains:      fragment,
		IncludeContainers: true,
		ExcludeTrashed:    true,
	}
}

// String renders the predicate in Drive query syntax
func (p Predicate) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "'%s' in parents", escapeQueryLiteral(string(p.Parent)))

	var or []string
	if p.NameContains != "" {
		or = append(or, fmt.Sprintf("name contains '%s'", escapeQueryLiteral(p.NameContains)))
	}
	if p.IncludeContainers {
		or = append(or, fmt.Sprintf("mimeType = '%s'", FolderMimeType))
	}
	switch len(or) {
	case 0:
	case 1:
		b.WriteString(" and ")
		b.WriteString(or[0])
	default:
		b.WriteString(" and (")
		b.WriteString(strings.Join(or, " or "))
		b.WriteString(")")
	}

	if p.ExcludeTrashed {
		b.WriteString(" and trashed = false")
	}
	return b.String()
}

// Match evaluates the predicate locally for stores without server-side
// filtering. The name test stays case-sensitive like Drive's contains.
func (p Predicate) Match(name string, isContainer, trashed bool) bool {
	if p.ExcludeTrashed && trashed {
		return false
	}
	if isContainer && p.IncludeContainers {
		return true
	}
	return strings.Contains(name, p.NameContains)
}

func escapeQueryLiteral(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}
