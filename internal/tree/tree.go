// Package tree provides the project file tree the patcher reads and rewrites.
package tree

import (
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/Cipahi/ng-toolkit/internal/model"
)

// Tree is a project-relative set of named text files. Paths use forward
// slashes and are cleaned before lookup.
type Tree interface {
	Read(p string) (string, error)
	Exists(p string) bool
	// Overwrite replaces the whole content of p, creating it when missing.
	Overwrite(p, content string) error
}

// Mem is an in-memory Tree that records which files were written.
type Mem struct {
	files   map[string]string
	loaded  map[string]struct{}
	changed map[string]struct{}
}

// NewMem returns an empty tree.
func NewMem() *Mem {
	return &Mem{
		files:   make(map[string]string),
		loaded:  make(map[string]struct{}),
		changed: make(map[string]struct{}),
	}
}

// Add seeds the tree with an existing file without recording a change.
func (m *Mem) Add(p, content string) {
	p = Clean(p)
	m.files[p] = content
	m.loaded[p] = struct{}{}
}

func (m *Mem) Read(p string) (string, error) {
	c, ok := m.files[Clean(p)]
	if !ok {
		return "", fmt.Errorf("%s: %w", p, fs.ErrNotExist)
	}
	return c, nil
}

func (m *Mem) Exists(p string) bool {
	_, ok := m.files[Clean(p)]
	return ok
}

func (m *Mem) Overwrite(p, content string) error {
	p = Clean(p)
	if old, ok := m.files[p]; ok && old == content {
		return nil
	}
	m.files[p] = content
	m.changed[p] = struct{}{}
	return nil
}

// Paths returns every file path in sorted order.
func (m *Mem) Paths() []string {
	paths := make([]string, 0, len(m.files))
	for p := range m.files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Changes lists the files written since the tree was loaded.
func (m *Mem) Changes() []model.Change {
	changes := make([]model.Change, 0, len(m.changed))
	for p := range m.changed {
		op := model.Modify
		if _, ok := m.loaded[p]; !ok {
			op = model.Create
		}
		changes = append(changes, model.Change{Path: p, Op: op})
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].Path < changes[j].Path })
	return changes
}

// Clean normalizes a tree path: forward slashes, no leading "./" or "/".
func Clean(p string) string {
	p = path.Clean(strings.ReplaceAll(p, "\\", "/"))
	return strings.TrimPrefix(p, "/")
}
