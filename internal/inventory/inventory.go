// Package inventory derives item identifiers from the files in a source directory.
package inventory

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Set is an unordered collection of item identifiers.
type Set map[string]struct{}

// Has reports whether id is present.
func (s Set) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Difference returns the identifiers in s that are absent from other.
func (s Set) Difference(other map[string]struct{}) Set {
	out := make(Set, len(s))
	for id := range s {
		if _, ok := other[id]; ok {
			continue
		}
		out[id] = struct{}{}
	}
	return out
}

// Sorted returns the identifiers in lexical order.
func (s Set) Sorted() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Scanner lists identifiers for a directory.
type Scanner struct{}

// List implements the engine scanner contract.
func (Scanner) List(dir string) (Set, error) {
	return List(dir)
}

// List returns the identifiers of every regular, non-hidden file in dir. The
// identifier is the basename with its final extension removed, so an image
// and its sidecar collapse into one entry.
func List(dir string) (Set, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, fmt.Errorf("list inventory: directory not set")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list inventory %q: %w", dir, err)
	}

	ids := make(Set, len(entries)/2)
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		if !entry.Type().IsRegular() {
			continue
		}
		id := IdentifierFor(name)
		if id == "" {
			continue
		}
		ids[id] = struct{}{}
	}
	return ids, nil
}

// IdentifierFor strips the final extension from a file name.
func IdentifierFor(name string) string {
	base := filepath.Base(name)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
