package search

import (
	"fmt"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ContainerRef is the opaque id of a folder-like node in the remote store
type ContainerRef string

// Kind classifies a store entry
type Kind int

const (
	KindLeaf Kind = iota
	KindContainer
)

func (k Kind) String() string {
	if k == KindContainer {
		return "container"
	}
	return "leaf"
}

// MarshalText renders the kind by name in json and yaml output
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "leaf":
		*k = KindLeaf
	case "container":
		*k = KindContainer
	default:
		return fmt.Errorf("unknown item kind %q", text)
	}
	return nil
}

// URL keys forwarded from the store. The engine never dereferences them.
const (
	URLContent = "content"
	URLPreview = "preview"
	URLView    = "view"
)

// Item is one remote entry as produced by a store. Treat it as immutable.
type Item struct {
	ID        string            `json:"id" yaml:"id"`
	Name      string            `json:"name" yaml:"name"`
	Kind      Kind              `json:"kind" yaml:"kind"`
	MediaType string            `json:"mediaType,omitempty" yaml:"mediaType,omitempty"`
	URLs      map[string]string `json:"urls,omitempty" yaml:"urls,omitempty"`
}

// IsContainer reports whether the item should be queued for traversal
func (it Item) IsContainer() bool {
	return it.Kind == KindContainer
}

// Page is one slice of a paginated listing. An empty NextCursor means the
// listing is exhausted.
type Page struct {
	Items      []Item
	NextCursor string
}

// LeafPredicate decides whether a leaf belongs in the result set
type LeafPredicate func(Item) bool

// SearchQuery is immutable for the lifetime of one traversal
type SearchQuery struct {
	Root     ContainerRef
	Fragment string
	Leaf     LeafPredicate
}

func (q SearchQuery) validate() error {
	if strings.TrimSpace(string(q.Root)) == "" {
		return ErrEmptyRoot
	}
	if strings.TrimSpace(q.Fragment) == "" {
		return ErrEmptyFragment
	}
	return nil
}

// SkippedContainer records a container whose children were never enumerated
type SkippedContainer struct {
	Container ContainerRef
	Cause     error
}

// Stats tracks traversal counters
type Stats struct {
	ContainersVisited int64
	PagesFetched      int64
	ItemsSeen         int64
	Matches           int64
	Errors            int64
	Duration          time.Duration
}

// Progress is an incremental snapshot sent while a traversal runs
type Progress struct {
	Matches           int
	ContainersVisited int64
	Skipped           int
}

// Result is the envelope returned by Engine.Search. Complete is false
// whenever any container was skipped, the traversal was aborted, or it was
// cancelled before the work queue drained.
type Result struct {
	Generation uuid.UUID
	Query      SearchQuery
	Items      []Item
	Skipped    []SkippedContainer
	Complete   bool
	Pending    int
	Err        error
	Stats      Stats
}

// Warning returns an *IncompleteTraversalWarning when containers were skipped
func (r *Result) Warning() error {
	if len(r.Skipped) == 0 {
		return nil
	}
	return &IncompleteTraversalWarning{Skipped: r.Skipped}
}

var imageExtensions = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
	".webp": "image/webp",
	".tiff": "image/tiff",
	".tif":  "image/tiff",
	".heic": "image/heic",
	".heif": "image/heic",
}

// MediaTypeForName guesses a media type from a file name. Stores that do not
// report content types (S3 listings) rely on it.
func MediaTypeForName(name string) string {
	ext := strings.ToLower(path.Ext(name))
	if ext == "" {
		return ""
	}
	if mt, ok := imageExtensions[ext]; ok {
		return mt
	}
	if mt := mime.TypeByExtension(ext); mt != "" {
		if i := strings.IndexByte(mt, ';'); i >= 0 {
			mt = mt[:i]
		}
		return mt
	}
	return "application/octet-stream"
}

// IsImage is the default leaf predicate
func IsImage(it Item) bool {
	if it.Kind != KindLeaf {
		return false
	}
	mt := strings.ToLower(strings.TrimSpace(it.MediaType))
	if mt == "" || mt == "application/octet-stream" {
		mt = MediaTypeForName(it.Name)
	}
	return strings.HasPrefix(mt, "image/")
}

// matchesFragment is the case-insensitive client-side re-check
func matchesFragment(name, fragment string) bool {
	return strings.Contains(strings.ToLower(name), strings.ToLower(fragment))
}
