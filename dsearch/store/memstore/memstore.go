// Package memstore is an in-memory container tree that answers search.Lister
// requests the way a remote store would: predicate filtering, ordered
// children and cursor pagination.
package memstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ZanzyTHEbar/drive-search/dsearch/search"

	"github.com/armon/go-radix"
)

var (
	ErrNotFound      = errors.New("container not found")
	ErrNotContainer  = errors.New("node is not a container")
	ErrDuplicateNode = errors.New("node already exists")
	ErrInvalidCursor = errors.New("invalid cursor")
)

const sep = "\x00"

// Node is one stored entry
type Node struct {
	ID        string
	Name      string
	Container bool
	MediaType string
	Trashed   bool
	URLs      map[string]string
}

func (n *Node) item() search.Item {
	it := search.Item{
		ID:        n.ID,
		Name:      n.Name,
		Kind:      search.KindLeaf,
		MediaType: n.MediaType,
	}
	if n.Container {
		it.Kind = search.KindContainer
		it.MediaType = search.FolderMimeType
	}
	if len(n.URLs) > 0 {
		it.URLs = make(map[string]string, len(n.URLs))
		for k, v := range n.URLs {
			it.URLs[k] = v
		}
	}
	return it
}

// Store keeps parent/child links in a patricia tree keyed by
// parent, name and id, so a prefix walk yields the children of one parent
// in name order
type Store struct {
	mu       sync.RWMutex
	nodes    map[string]*Node
	children *radix.Tree
}

// New creates an empty store
func New() *Store {
	return &Store{
		nodes:    make(map[string]*Node),
		children: radix.New(),
	}
}

// AddRoot registers a parentless container
func (s *Store) AddRoot(id, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.nodes[id]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateNode, id)
	}
	s.nodes[id] = &Node{ID: id, Name: name, Container: true}
	return nil
}

// Add stores n as a child of parent
func (s *Store) Add(parent string, n Node) error {
	if n.ID == "" {
		return fmt.Errorf("node id cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkParent(parent); err != nil {
		return err
	}
	if _, exists := s.nodes[n.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateNode, n.ID)
	}

	node := n
	s.nodes[n.ID] = &node
	s.children.Insert(childKey(parent, node.Name, node.ID), node.ID)
	return nil
}

// AddContainer is a shorthand for Add with a container node
func (s *Store) AddContainer(parent, id, name string) error {
	return s.Add(parent, Node{ID: id, Name: name, Container: true})
}

// AddLeaf is a shorthand for Add with a leaf node
func (s *Store) AddLeaf(parent, id, name, mediaType string) error {
	return s.Add(parent, Node{ID: id, Name: name, MediaType: mediaType})
}

// Link gives an existing node an additional parent
func (s *Store) Link(parent, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkParent(parent); err != nil {
		return err
	}
	node, ok := s.nodes[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.children.Insert(childKey(parent, node.Name, node.ID), node.ID)
	return nil
}

// Trash soft-deletes a node
func (s *Store) Trash(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	node, ok := s.nodes[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	node.Trashed = true
	return nil
}

// Len returns the number of stored nodes, roots included
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

// List implements search.Lister
func (s *Store) List(ctx context.Context, pred search.Predicate, pageSize int, cursor string) (search.Page, error) {
	if err := ctx.Err(); err != nil {
		return search.Page{}, err
	}
	if pageSize <= 0 || pageSize > search.MaxPageSize {
		pageSize = search.MaxPageSize
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	parent := string(pred.Parent)
	if err := s.checkParent(parent); err != nil {
		return search.Page{}, search.Fatal(pred.Parent, err)
	}

	prefix := parent + sep
	if cursor != "" && !strings.HasPrefix(cursor, prefix) {
		return search.Page{}, search.Fatal(pred.Parent, fmt.Errorf("%w: %q", ErrInvalidCursor, cursor))
	}

	var (
		items   []search.Item
		keys    []string
		hasMore bool
	)
	s.children.WalkPrefix(prefix, func(key string, v interface{}) bool {
		if cursor != "" && key <= cursor {
			return false
		}
		node := s.nodes[v.(string)]
		if !pred.Match(node.Name, node.Container, node.Trashed) {
			return false
		}
		if len(items) == pageSize {
			hasMore = true
			return true
		}
		items = append(items, node.item())
		keys = append(keys, key)
		return false
	})

	page := search.Page{Items: items}
	if hasMore {
		page.NextCursor = keys[len(keys)-1]
	}
	return page, nil
}

func (s *Store) checkParent(parent string) error {
	node, ok := s.nodes[parent]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, parent)
	}
	if !node.Container {
		return fmt.Errorf("%w: %s", ErrNotContainer, parent)
	}
	return nil
}

func childKey(parent, name, id string) string {
	return parent + sep + name + sep + id
}
