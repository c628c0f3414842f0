package mirror

import "strings"

// Resolve walks a slash-separated relative path from this node. Empty
// segments and "." resolve to the current node, so "" returns n itself.
// Fails with ErrNotFound when a segment matches no child and with
// ErrInvalidOperation when resolution would descend through a file.
//
// Resolution reflects the state as of the last completed pass; it never
// triggers one.
func (n *Node) Resolve(relPath string) (*Node, error) {
	return n.ResolveSegments(strings.Split(relPath, "/")...)
}

// ResolveSegments resolves an ordered sequence of path segments. For each
// segment the file set is checked before the directory set; a name can only
// legally exist in one of the two.
func (n *Node) ResolveSegments(segments ...string) (*Node, error) {
	current := n
	for _, segment := range segments {
		if segment == "" || segment == "." {
			continue
		}
		if current.kind != KindDirectory {
			return nil, ErrInvalidOperation
		}
		next, err := current.Child(segment)
		if err != nil {
			return nil, err
		}
		current = next
	}
	return current, nil
}
