// Package changeset holds the per-file result of one turn's accepted edits.
package changeset

// FileChange is the before and after content of one touched file.
type FileChange struct {
	Path     string
	Original string
	Updated  string
	// Created is true when the file did not exist before the turn.
	Created bool
}

// ChangeSet maps each touched path to its final content. Paths keep the
// order in which they were first touched. A ChangeSet is never modified
// after Build; the zero value is empty.
type ChangeSet struct {
	order []string
	files map[string]FileChange
}

// Empty returns the canonical changeset with no edits.
func Empty() *ChangeSet {
	return &ChangeSet{}
}

// IsEmpty reports whether no file is changed.
func (c *ChangeSet) IsEmpty() bool {
	return c == nil || len(c.order) == 0
}

// Len returns the number of touched files.
func (c *ChangeSet) Len() int {
	if c == nil {
		return 0
	}
	return len(c.order)
}

// Paths returns the touched paths in first-touch order.
func (c *ChangeSet) Paths() []string {
	if c.IsEmpty() {
		return nil
	}
	paths := make([]string, len(c.order))
	copy(paths, c.order)
	return paths
}

// Get returns the change recorded for path.
func (c *ChangeSet) Get(path string) (FileChange, bool) {
	if c == nil {
		return FileChange{}, false
	}
	fc, ok := c.files[path]
	return fc, ok
}

// Files returns the changes in first-touch order.
func (c *ChangeSet) Files() []FileChange {
	if c.IsEmpty() {
		return nil
	}
	files := make([]FileChange, 0, len(c.order))
	for _, p := range c.order {
		files = append(files, c.files[p])
	}
	return files
}

// Equal reports whether both changesets carry the same edits in the same order.
func (c *ChangeSet) Equal(other *ChangeSet) bool {
	if c.Len() != other.Len() {
		return false
	}
	for i, p := range c.Paths() {
		if other.order[i] != p || other.files[p] != c.files[p] {
			return false
		}
	}
	return true
}

// Builder accumulates file contents for a ChangeSet.
type Builder struct {
	order []string
	files map[string]FileChange
}

// NewBuilder creates an empty Builder.
func NewBuilder() *Builder {
	return &Builder{files: make(map[string]FileChange)}
}

// Current returns the in-memory content of path if it was touched already.
func (b *Builder) Current(path string) (string, bool) {
	fc, ok := b.files[path]
	return fc.Updated, ok
}

// Touch records the original content of path the first time it is seen.
// Later calls for the same path are ignored.
func (b *Builder) Touch(path, original string, created bool) {
	if _, ok := b.files[path]; ok {
		return
	}
	b.order = append(b.order, path)
	b.files[path] = FileChange{
		Path:     path,
		Original: original,
		Updated:  original,
		Created:  created,
	}
}

// Set stores the new content of a touched path.
func (b *Builder) Set(path, updated string) {
	fc, ok := b.files[path]
	if !ok {
		panic("changeset: Set called before Touch for " + path)
	}
	fc.Updated = updated
	b.files[path] = fc
}

// Build returns an immutable snapshot of the builder.
func (b *Builder) Build() *ChangeSet {
	if len(b.order) == 0 {
		return Empty()
	}
	cs := &ChangeSet{
		order: make([]string, len(b.order)),
		files: make(map[string]FileChange, len(b.files)),
	}
	copy(cs.order, b.order)
	for k, v := range b.files {
		cs.files[k] = v
	}
	return cs
}
