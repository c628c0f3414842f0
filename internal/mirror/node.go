// Package mirror maintains an in-memory node tree that shadows an on-disk
// directory. Reconcile walks the directory, updates the tree in place and
// fires change notifications for everything that differs from the previous
// pass. The tree is written by exactly one reconciling goroutine and may be
// read concurrently from anywhere; every node guards its mutable state with
// its own RWMutex.
package mirror

import (
	"sync"
	"time"
)

// Kind tells whether a node shadows a file or a directory. It is fixed at
// construction and never changes for a given node identity.
type Kind int

const (
	KindFile Kind = iota
	KindDirectory
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDirectory:
		return "directory"
	default:
		return "unknown"
	}
}

// Node is a single tracked entry of the mirrored tree. Its identity is its
// relative path; a re-created entry of the same name gets a brand-new Node.
type Node struct {
	mu      sync.RWMutex
	name    string
	relPath string
	kind    Kind

	// file state. digest is the md5 hex of content, empty until the first
	// successful read. size/modTime are read-skip hints, not model state.
	content []byte
	digest  string
	size    int64
	modTime time.Time

	// directory state. a name lives in at most one of the two sets.
	files *childSet
	dirs  *childSet

	// monotonic. once removed the node is frozen history.
	removed bool

	subs subscribers
}

func newFileNode(name, relPath string) *Node {
	return &Node{
		name:    name,
		relPath: relPath,
		kind:    KindFile,
	}
}

func newDirNode(name, relPath string) *Node {
	return &Node{
		name:    name,
		relPath: relPath,
		kind:    KindDirectory,
		files:   newChildSet(),
		dirs:    newChildSet(),
	}
}

// Name returns the entry's base name.
func (n *Node) Name() string { return n.name }

// RelPath returns the slash-separated path from the mirror root. The root
// itself has RelPath ".".
func (n *Node) RelPath() string { return n.relPath }

// Kind returns KindFile or KindDirectory.
func (n *Node) Kind() Kind { return n.kind }

// IsDir reports whether the node shadows a directory.
func (n *Node) IsDir() bool { return n.kind == KindDirectory }

// IsRemoved reports whether the entry has been observed absent from disk.
// The flag is monotonic.
func (n *Node) IsRemoved() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.removed
}

// Data returns the file's content as of the last completed pass. The slice
// is replaced wholesale on change, never mutated, so callers may hold it but
// must not modify it. Fails with ErrInvalidOperation on directories.
func (n *Node) Data() ([]byte, error) {
	if n.kind != KindFile {
		return nil, ErrInvalidOperation
	}
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.content, nil
}

// StringData returns the file's content as a string.
func (n *Node) StringData() (string, error) {
	data, err := n.Data()
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Digest returns the md5 hex of the file's content, or "" before the first
// successful read. The digest is an equality check, not a security measure.
func (n *Node) Digest() (string, error) {
	if n.kind != KindFile {
		return "", ErrInvalidOperation
	}
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.digest, nil
}

// Size returns the file's byte size as of the last completed pass.
func (n *Node) Size() (int64, error) {
	if n.kind != KindFile {
		return 0, ErrInvalidOperation
	}
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.size, nil
}

// Children returns all children, files first then directories, each in the
// order they were first observed. Fails with ErrInvalidOperation on files.
func (n *Node) Children() ([]*Node, error) {
	if n.kind != KindDirectory {
		return nil, ErrInvalidOperation
	}
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := n.files.ordered()
	return append(out, n.dirs.ordered()...), nil
}

// Files returns the file children in first-observed order.
func (n *Node) Files() ([]*Node, error) {
	if n.kind != KindDirectory {
		return nil, ErrInvalidOperation
	}
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.files.ordered(), nil
}

// Directories returns the directory children in first-observed order.
func (n *Node) Directories() ([]*Node, error) {
	if n.kind != KindDirectory {
		return nil, ErrInvalidOperation
	}
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.dirs.ordered(), nil
}

// Child looks a name up in the file set, then the directory set. Fails with
// ErrNotFound when the name matches neither, and with ErrInvalidOperation
// when called on a file.
func (n *Node) Child(name string) (*Node, error) {
	if n.kind != KindDirectory {
		return nil, ErrInvalidOperation
	}
	n.mu.RLock()
	defer n.mu.RUnlock()
	if c, ok := n.files.get(name); ok {
		return c, nil
	}
	if c, ok := n.dirs.get(name); ok {
		return c, nil
	}
	return nil, ErrNotFound
}

// childSet is a name-keyed set of child nodes that remembers insertion
// order, so enumeration is deterministic across passes.
type childSet struct {
	names []string
	nodes map[string]*Node
}

func newChildSet() *childSet {
	return &childSet{nodes: make(map[string]*Node)}
}

func (c *childSet) get(name string) (*Node, bool) {
	n, ok := c.nodes[name]
	return n, ok
}

func (c *childSet) put(name string, n *Node) {
	if _, ok := c.nodes[name]; !ok {
		c.names = append(c.names, name)
	}
	c.nodes[name] = n
}

func (c *childSet) delete(name string) {
	if _, ok := c.nodes[name]; !ok {
		return
	}
	delete(c.nodes, name)
	for i, existing := range c.names {
		if existing == name {
			c.names = append(c.names[:i], c.names[i+1:]...)
			return
		}
	}
}

func (c *childSet) len() int { return len(c.nodes) }

func (c *childSet) ordered() []*Node {
	out := make([]*Node, 0, len(c.names))
	for _, name := range c.names {
		out = append(out, c.nodes[name])
	}
	return out
}

// orderedNames returns a copy of the names in insertion order.
func (c *childSet) orderedNames() []string {
	return append([]string(nil), c.names...)
}
