package mirror

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// ContentChangedFunc receives the previous and the new content of a file
// whose bytes were observed to differ between two passes.
type ContentChangedFunc func(old, new []byte)

// NodeFunc is the callback shape for NodeChanged and NodeRemoved signals.
type NodeFunc func()

type subKind int

const (
	subContentChanged subKind = iota
	subNodeChanged
	subNodeRemoved
)

type subscription struct {
	id        uuid.UUID
	kind      subKind
	contentFn ContentChangedFunc
	nodeFn    NodeFunc
}

// subscribers holds a node's callbacks in registration order. Callbacks run
// synchronously on the reconciling goroutine; a slow subscriber delays the
// pass. There is no replay: a callback registered after an event fired will
// not observe it.
type subscribers struct {
	mu   sync.Mutex
	subs []subscription
}

// OnContentChanged registers fn to run when the file's content differs from
// the previous pass. It never fires on the pass that first reads the file.
// Only meaningful on file nodes; registering on a directory fails.
func (n *Node) OnContentChanged(fn ContentChangedFunc) (uuid.UUID, error) {
	if n.kind != KindFile {
		return uuid.Nil, ErrInvalidOperation
	}
	return n.subs.add(subscription{id: uuid.New(), kind: subContentChanged, contentFn: fn}), nil
}

// OnNodeChanged registers fn to run once per pass in which this node, or any
// descendant for directories, changed. Creation counts as a change.
func (n *Node) OnNodeChanged(fn NodeFunc) uuid.UUID {
	return n.subs.add(subscription{id: uuid.New(), kind: subNodeChanged, nodeFn: fn})
}

// OnNodeRemoved registers fn to run the one time this node is observed
// absent from disk.
func (n *Node) OnNodeRemoved(fn NodeFunc) uuid.UUID {
	return n.subs.add(subscription{id: uuid.New(), kind: subNodeRemoved, nodeFn: fn})
}

// Unsubscribe drops the callback registered under id. Unknown ids are a
// no-op.
func (n *Node) Unsubscribe(id uuid.UUID) {
	n.subs.remove(id)
}

func (s *subscribers) add(sub subscription) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, sub)
	return sub.id
}

func (s *subscribers) remove(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, sub := range s.subs {
		if sub.id == id {
			s.subs = append(s.subs[:i], s.subs[i+1:]...)
			return
		}
	}
}

func (s *subscribers) snapshot(kind subKind) []subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []subscription
	for _, sub := range s.subs {
		if sub.kind == kind {
			out = append(out, sub)
		}
	}
	return out
}

func (n *Node) emitContentChanged(old, new []byte) {
	for _, sub := range n.subs.snapshot(subContentChanged) {
		invoke(n, "content-changed", func() { sub.contentFn(old, new) })
	}
}

func (n *Node) emitNodeChanged() {
	for _, sub := range n.subs.snapshot(subNodeChanged) {
		invoke(n, "node-changed", sub.nodeFn)
	}
}

func (n *Node) emitNodeRemoved() {
	for _, sub := range n.subs.snapshot(subNodeRemoved) {
		invoke(n, "node-removed", sub.nodeFn)
	}
}

// invoke shields the reconciliation pass from a panicking subscriber.
func invoke(n *Node, signal string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("mirror subscriber panic", "signal", signal, "path", n.relPath, "panic", r)
		}
	}()
	fn()
}
