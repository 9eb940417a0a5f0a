package memstore

import (
	"fmt"
	"io"
	"os"

	"github.com/ZanzyTHEbar/drive-search/dsearch/search"

	"gopkg.in/yaml.v3"
)

// FixtureNode is the YAML shape of a tree. A node with children (or with
// container: true) is a container. Links lists extra parents by id.
type FixtureNode struct {
	ID        string            `yaml:"id"`
	Name      string            `yaml:"name"`
	Container bool              `yaml:"container,omitempty"`
	MediaType string            `yaml:"mediaType,omitempty"`
	Trashed   bool              `yaml:"trashed,omitempty"`
	URLs      map[string]string `yaml:"urls,omitempty"`
	Links     []string          `yaml:"links,omitempty"`
	Children  []FixtureNode     `yaml:"children,omitempty"`
}

func (f FixtureNode) isContainer() bool {
	return f.Container || len(f.Children) > 0
}

// Load builds a store from a YAML tree and returns it with the root ref
func Load(r io.Reader) (*Store, search.ContainerRef, error) {
	var root FixtureNode
	if err := yaml.NewDecoder(r).Decode(&root); err != nil {
		return nil, "", fmt.Errorf("failed to decode fixture: %w", err)
	}
	if root.ID == "" {
		return nil, "", fmt.Errorf("fixture root needs an id")
	}

	s := New()
	if err := s.AddRoot(root.ID, root.Name); err != nil {
		return nil, "", err
	}

	var links [][2]string
	var add func(parent string, nodes []FixtureNode) error
	add = func(parent string, nodes []FixtureNode) error {
		for _, n := range nodes {
			err := s.Add(parent, Node{
				ID:        n.ID,
				Name:      n.Name,
				Container: n.isContainer(),
				MediaType: n.MediaType,
				Trashed:   n.Trashed,
				URLs:      n.URLs,
			})
			if err != nil {
				return fmt.Errorf("failed to add %q under %q: %w", n.ID, parent, err)
			}
			for _, l := range n.Links {
				links = append(links, [2]string{l, n.ID})
			}
			if err := add(n.ID, n.Children); err != nil {
				return err
			}
		}
		return nil
	}
	if err := add(root.ID, root.Children); err != nil {
		return nil, "", err
	}

	// links may point at containers declared later in the document
	for _, l := range links {
		if err := s.Link(l[0], l[1]); err != nil {
			return nil, "", fmt.Errorf("failed to link %q under %q: %w", l[1], l[0], err)
		}
	}

	return s, search.ContainerRef(root.ID), nil
}

// LoadFile reads a YAML fixture from disk
func LoadFile(path string) (*Store, search.ContainerRef, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open fixture %s: %w", path, err)
	}
	defer f.Close()

	return Load(f)
}
