package mirror

import (
	"path"
	"path/filepath"

	mapset "github.com/deckarep/golang-set/v2"
)

// Mirror owns the root of a node tree shadowing rootDir. The root handle is
// valid for the lifetime of the mirror.
type Mirror struct {
	rootDir string
	root    *Node
	ignore  map[string]struct{}
}

// Option configures a Mirror.
type Option func(*Mirror)

// WithIgnoredNames excludes entries with any of the given base names, at any
// depth, from reconciliation. Typically ".git" for a checkout.
func WithIgnoredNames(names ...string) Option {
	return func(m *Mirror) {
		for _, name := range names {
			m.ignore[name] = struct{}{}
		}
	}
}

// New creates a mirror rooted at rootDir. The tree is empty until the first
// Reconcile.
func New(rootDir string, opts ...Option) (*Mirror, error) {
	abs, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, err
	}
	m := &Mirror{
		rootDir: abs,
		root:    newDirNode(filepath.Base(abs), "."),
		ignore:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Root returns the root directory node.
func (m *Mirror) Root() *Node { return m.root }

// RootDir returns the absolute on-disk path the mirror shadows.
func (m *Mirror) RootDir() string { return m.rootDir }

// Reconcile runs one full pass: it scans the on-disk tree, then updates the
// node tree in place and fires notifications for everything that differs
// from the previous pass. Passes must not run concurrently with each other;
// reads may happen at any time.
//
// The returned bool reports whether anything changed. On error the tree is
// untouched and no notifications have fired; the error wraps ErrIOFailure
// and the next pass retries from scratch.
//
// Reconciling twice with no disk change in between fires nothing the second
// time. An entry that swaps kind between passes (file replaced by a
// directory of the same name, or vice versa) is treated as a removal of the
// old node plus discovery of a brand-new one.
func (m *Mirror) Reconcile() (bool, error) {
	scan, err := m.scanDir(m.rootDir, m.root)
	if err != nil {
		return false, err
	}
	return applyDir(m.root, scan, false), nil
}

// applyDir reconciles a directory node against its snapshot. baseline forces
// the changed verdict for newly discovered directories, whose creation
// counts as a change even when they are empty. Returns the aggregate verdict
// after firing the node's own notification when true.
func applyDir(n *Node, scan *dirScan, baseline bool) bool {
	if scan == nil {
		return n.removeCascade()
	}
	if n.IsRemoved() {
		// a removed node is frozen history and is never reused
		return false
	}

	changed := baseline

	// files
	n.mu.RLock()
	knownFiles := n.files.orderedNames()
	n.mu.RUnlock()
	removedF, addedF := diffNames(knownFiles, scan.fileNames)

	for _, name := range knownFiles {
		if removedF.Contains(name) {
			n.mu.Lock()
			child, _ := n.files.get(name)
			n.files.delete(name)
			n.mu.Unlock()
			child.removeCascade()
			changed = true
			continue
		}
		n.mu.RLock()
		child, _ := n.files.get(name)
		n.mu.RUnlock()
		if applyFile(child, scan.files[name]) {
			changed = true
		}
	}
	for _, name := range scan.fileNames {
		if !addedF.Contains(name) {
			continue
		}
		child := newFileNode(name, path.Join(n.relPath, name))
		applyFile(child, scan.files[name])
		n.mu.Lock()
		n.files.put(name, child)
		n.mu.Unlock()
		changed = true
	}

	// directories
	n.mu.RLock()
	knownDirs := n.dirs.orderedNames()
	n.mu.RUnlock()
	removedD, addedD := diffNames(knownDirs, scan.dirNames)

	for _, name := range knownDirs {
		if removedD.Contains(name) {
			n.mu.Lock()
			child, _ := n.dirs.get(name)
			n.dirs.delete(name)
			n.mu.Unlock()
			child.removeCascade()
			changed = true
			continue
		}
		n.mu.RLock()
		child, _ := n.dirs.get(name)
		n.mu.RUnlock()
		if applyDir(child, scan.dirs[name], false) {
			changed = true
		}
	}
	for _, name := range scan.dirNames {
		if !addedD.Contains(name) {
			continue
		}
		child := newDirNode(name, path.Join(n.relPath, name))
		applyDir(child, scan.dirs[name], true)
		n.mu.Lock()
		n.dirs.put(name, child)
		n.mu.Unlock()
		changed = true
	}

	// children have all fired by now; bottom-up ordering holds
	if changed {
		n.emitNodeChanged()
	}
	return changed
}

// applyFile updates a file node from its snapshot. The digest gates the
// changed verdict, so a rewrite with identical bytes is a no-op. The first
// read establishes the baseline and fires NodeChanged but never
// ContentChanged.
func applyFile(n *Node, scan *fileScan) bool {
	if n.IsRemoved() {
		return false
	}
	if scan.content == nil {
		// read was skipped: size+modTime matched the last observation
		return false
	}

	n.mu.Lock()
	if n.digest == scan.digest {
		// identical bytes; refresh the read-skip hints only
		n.size = scan.size
		n.modTime = scan.modTime
		n.mu.Unlock()
		return false
	}
	old := n.content
	first := n.digest == ""
	n.content = scan.content
	n.digest = scan.digest
	n.size = scan.size
	n.modTime = scan.modTime
	n.mu.Unlock()

	if !first {
		n.emitContentChanged(old, scan.content)
	}
	n.emitNodeChanged()
	return true
}

// removeCascade marks the node and every live descendant removed, firing
// NodeRemoved and NodeChanged pre-order (parent before children). The
// removed flag makes it idempotent: a second call is a no-op and reports
// false. Descendants stay attached to their (frozen) parents so holders of
// a reference still see the last known state.
func (n *Node) removeCascade() bool {
	n.mu.Lock()
	if n.removed {
		n.mu.Unlock()
		return false
	}
	n.removed = true
	var files, dirs []*Node
	if n.kind == KindDirectory {
		files = n.files.ordered()
		dirs = n.dirs.ordered()
	}
	n.mu.Unlock()

	n.emitNodeRemoved()
	n.emitNodeChanged()
	for _, c := range files {
		c.removeCascade()
	}
	for _, c := range dirs {
		c.removeCascade()
	}
	return true
}

// diffNames splits known vs on-disk name sets into removed and added.
// Retained names are those in known but not in removed.
func diffNames(known, disk []string) (removed, added mapset.Set[string]) {
	knownSet := mapset.NewThreadUnsafeSet(known...)
	diskSet := mapset.NewThreadUnsafeSet(disk...)
	return knownSet.Difference(diskSet), diskSet.Difference(knownSet)
}
