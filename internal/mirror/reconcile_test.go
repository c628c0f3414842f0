package mirror

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMirror(t *testing.T, opts ...Option) (*Mirror, string) {
	t.Helper()
	dir := t.TempDir()
	m, err := New(dir, opts...)
	require.NoError(t, err)
	return m, dir
}

func writeFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	p := filepath.Join(dir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

// rewriteFile replaces content and bumps mtime so the change is never hidden
// by the size+modTime read-skip on filesystems with coarse timestamps.
func rewriteFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	p := filepath.Join(dir, rel)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(p, future, future))
}

func mustResolve(t *testing.T, n *Node, path string) *Node {
	t.Helper()
	c, err := n.Resolve(path)
	require.NoError(t, err)
	return c
}

func TestReconcileBaseline(t *testing.T) {
	m, dir := newTestMirror(t)
	writeFile(t, dir, "a.txt", "hello")

	changed, err := m.Reconcile()
	require.NoError(t, err)
	assert.True(t, changed)

	file := mustResolve(t, m.Root(), "a.txt")
	data, err := file.StringData()
	require.NoError(t, err)
	assert.Equal(t, "hello", data)

	digest, err := file.Digest()
	require.NoError(t, err)
	assert.NotEmpty(t, digest)
}

func TestReconcileIdempotent(t *testing.T) {
	m, dir := newTestMirror(t)
	writeFile(t, dir, "a.txt", "hello")
	writeFile(t, dir, "sub/b.txt", "world")

	changed, err := m.Reconcile()
	require.NoError(t, err)
	require.True(t, changed)

	// second pass with no disk change fires nothing anywhere
	fired := 0
	m.Root().OnNodeChanged(func() { fired++ })
	file := mustResolve(t, m.Root(), "a.txt")
	file.OnNodeChanged(func() { fired++ })
	_, err = file.OnContentChanged(func(old, new []byte) { fired++ })
	require.NoError(t, err)
	mustResolve(t, m.Root(), "sub").OnNodeChanged(func() { fired++ })

	changed, err = m.Reconcile()
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Zero(t, fired)
}

func TestContentChangeCarriesOldAndNew(t *testing.T) {
	m, dir := newTestMirror(t)
	writeFile(t, dir, "a.txt", "hello")
	_, err := m.Reconcile()
	require.NoError(t, err)

	file := mustResolve(t, m.Root(), "a.txt")
	var gotOld, gotNew string
	contentFires := 0
	_, err = file.OnContentChanged(func(old, new []byte) {
		contentFires++
		gotOld, gotNew = string(old), string(new)
	})
	require.NoError(t, err)
	var order []string
	file.OnNodeChanged(func() { order = append(order, "a.txt") })
	m.Root().OnNodeChanged(func() { order = append(order, ".") })

	rewriteFile(t, dir, "a.txt", "world")
	changed, err := m.Reconcile()
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 1, contentFires)
	assert.Equal(t, "hello", gotOld)
	assert.Equal(t, "world", gotNew)
	assert.Equal(t, []string{"a.txt", "."}, order)

	data, err := file.StringData()
	require.NoError(t, err)
	assert.Equal(t, "world", data)
}

func TestIdenticalRewriteFiresNothing(t *testing.T) {
	m, dir := newTestMirror(t)
	writeFile(t, dir, "a.txt", "hello")
	_, err := m.Reconcile()
	require.NoError(t, err)

	file := mustResolve(t, m.Root(), "a.txt")
	fired := 0
	_, err = file.OnContentChanged(func(old, new []byte) { fired++ })
	require.NoError(t, err)
	file.OnNodeChanged(func() { fired++ })

	// delete and recreate with byte-identical content; bump mtime so the
	// content is actually re-read and the digest gate does the work
	require.NoError(t, os.Remove(filepath.Join(dir, "a.txt")))
	rewriteFile(t, dir, "a.txt", "hello")

	changed, err := m.Reconcile()
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Zero(t, fired)
}

func TestBottomUpPropagation(t *testing.T) {
	m, dir := newTestMirror(t)
	writeFile(t, dir, "sub/inner/b.txt", "x")
	writeFile(t, dir, "other/c.txt", "y")
	_, err := m.Reconcile()
	require.NoError(t, err)

	var order []string
	watch := func(path string) {
		node := mustResolve(t, m.Root(), path)
		node.OnNodeChanged(func() { order = append(order, path) })
	}
	watch("sub/inner/b.txt")
	watch("sub/inner")
	watch("sub")
	watch("other")
	watch("")
	m.Root().OnNodeChanged(func() {}) // late second subscriber still fires once each

	rewriteFile(t, dir, "sub/inner/b.txt", "xx")
	changed, err := m.Reconcile()
	require.NoError(t, err)
	assert.True(t, changed)
	// leaf to root, and the untouched sibling stays silent
	assert.Equal(t, []string{"sub/inner/b.txt", "sub/inner", "sub", ""}, order)
}

func TestAddedSubtreeFiresOnce(t *testing.T) {
	m, dir := newTestMirror(t)
	writeFile(t, dir, "a.txt", "hello")
	_, err := m.Reconcile()
	require.NoError(t, err)

	rootFires := 0
	m.Root().OnNodeChanged(func() { rootFires++ })

	writeFile(t, dir, "sub/b.txt", "x")
	changed, err := m.Reconcile()
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 1, rootFires)

	b := mustResolve(t, m.Root(), "sub/b.txt")
	data, err := b.StringData()
	require.NoError(t, err)
	assert.Equal(t, "x", data)
	assert.Equal(t, KindDirectory, mustResolve(t, m.Root(), "sub").Kind())
}

func TestEmptyDirectoryIsStillAChange(t *testing.T) {
	m, dir := newTestMirror(t)
	_, err := m.Reconcile()
	require.NoError(t, err)

	rootFires := 0
	m.Root().OnNodeChanged(func() { rootFires++ })

	require.NoError(t, os.Mkdir(filepath.Join(dir, "empty"), 0o755))
	changed, err := m.Reconcile()
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 1, rootFires)
	assert.False(t, mustResolve(t, m.Root(), "empty").IsRemoved())
}

func TestRemovalCascadePreOrder(t *testing.T) {
	m, dir := newTestMirror(t)
	writeFile(t, dir, "sub/b.txt", "b")
	writeFile(t, dir, "sub/inner/c.txt", "c")
	_, err := m.Reconcile()
	require.NoError(t, err)

	sub := mustResolve(t, m.Root(), "sub")
	b := mustResolve(t, m.Root(), "sub/b.txt")
	inner := mustResolve(t, m.Root(), "sub/inner")
	c := mustResolve(t, m.Root(), "sub/inner/c.txt")

	var removals []string
	watchRemoved := func(n *Node, label string) {
		n.OnNodeRemoved(func() { removals = append(removals, label) })
	}
	watchRemoved(sub, "sub")
	watchRemoved(b, "b")
	watchRemoved(inner, "inner")
	watchRemoved(c, "c")

	require.NoError(t, os.RemoveAll(filepath.Join(dir, "sub")))
	changed, err := m.Reconcile()
	require.NoError(t, err)
	assert.True(t, changed)

	// parent strictly before its children
	assert.Equal(t, []string{"sub", "b", "inner", "c"}, removals)
	assert.True(t, sub.IsRemoved())
	assert.True(t, c.IsRemoved())

	_, err = m.Root().Resolve("sub")
	assert.ErrorIs(t, err, ErrNotFound)

	// removal fires exactly once; a further pass is silent
	changed, err = m.Reconcile()
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Len(t, removals, 4)
}

func TestRemovedFileFiresChangedAndRemoved(t *testing.T) {
	m, dir := newTestMirror(t)
	writeFile(t, dir, "a.txt", "hello")
	_, err := m.Reconcile()
	require.NoError(t, err)

	file := mustResolve(t, m.Root(), "a.txt")
	var signals []string
	file.OnNodeRemoved(func() { signals = append(signals, "removed") })
	file.OnNodeChanged(func() { signals = append(signals, "changed") })

	require.NoError(t, os.Remove(filepath.Join(dir, "a.txt")))
	_, err = m.Reconcile()
	require.NoError(t, err)

	assert.Equal(t, []string{"removed", "changed"}, signals)

	// the frozen node still serves its last known content
	data, err := file.StringData()
	require.NoError(t, err)
	assert.Equal(t, "hello", data)
}

func TestKindFlipIsRemoveThenAdd(t *testing.T) {
	m, dir := newTestMirror(t)
	writeFile(t, dir, "x", "file content")
	_, err := m.Reconcile()
	require.NoError(t, err)

	old := mustResolve(t, m.Root(), "x")
	require.Equal(t, KindFile, old.Kind())
	removed := false
	old.OnNodeRemoved(func() { removed = true })

	require.NoError(t, os.Remove(filepath.Join(dir, "x")))
	writeFile(t, dir, "x/y.txt", "y")

	changed, err := m.Reconcile()
	require.NoError(t, err)
	assert.True(t, changed)
	assert.True(t, removed)
	assert.True(t, old.IsRemoved())

	fresh := mustResolve(t, m.Root(), "x")
	assert.Equal(t, KindDirectory, fresh.Kind())
	assert.NotSame(t, old, fresh)
	data, err := mustResolve(t, m.Root(), "x/y.txt").StringData()
	require.NoError(t, err)
	assert.Equal(t, "y", data)
}

func TestRecreatedEntryGetsFreshNode(t *testing.T) {
	m, dir := newTestMirror(t)
	writeFile(t, dir, "a.txt", "hello")
	_, err := m.Reconcile()
	require.NoError(t, err)
	old := mustResolve(t, m.Root(), "a.txt")

	require.NoError(t, os.Remove(filepath.Join(dir, "a.txt")))
	_, err = m.Reconcile()
	require.NoError(t, err)
	require.True(t, old.IsRemoved())

	writeFile(t, dir, "a.txt", "hello again")
	_, err = m.Reconcile()
	require.NoError(t, err)

	fresh := mustResolve(t, m.Root(), "a.txt")
	assert.NotSame(t, old, fresh)
	assert.False(t, fresh.IsRemoved())
	assert.True(t, old.IsRemoved())
}

func TestScanFailureLeavesTreeUntouched(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission checks do not apply to root")
	}

	m, dir := newTestMirror(t)
	writeFile(t, dir, "a.txt", "hello")
	writeFile(t, dir, "sub/b.txt", "b")
	_, err := m.Reconcile()
	require.NoError(t, err)

	fired := 0
	m.Root().OnNodeChanged(func() { fired++ })

	// break the listing of sub and change a.txt; the whole pass must abort
	// with no partial application
	subPath := filepath.Join(dir, "sub")
	require.NoError(t, os.Chmod(subPath, 0o000))
	t.Cleanup(func() { _ = os.Chmod(subPath, 0o755) })
	rewriteFile(t, dir, "a.txt", "world")

	_, err = m.Reconcile()
	assert.ErrorIs(t, err, ErrIOFailure)
	assert.Zero(t, fired)

	data, err := mustResolve(t, m.Root(), "a.txt").StringData()
	require.NoError(t, err)
	assert.Equal(t, "hello", data)

	// next pass picks the change up
	require.NoError(t, os.Chmod(subPath, 0o755))
	changed, err := m.Reconcile()
	require.NoError(t, err)
	assert.True(t, changed)
	data, _ = mustResolve(t, m.Root(), "a.txt").StringData()
	assert.Equal(t, "world", data)
}

func TestIgnoredNames(t *testing.T) {
	m, dir := newTestMirror(t, WithIgnoredNames(".git"))
	writeFile(t, dir, ".git/HEAD", "ref: refs/heads/main")
	writeFile(t, dir, "a.txt", "hello")

	_, err := m.Reconcile()
	require.NoError(t, err)

	_, err = m.Root().Resolve(".git")
	assert.ErrorIs(t, err, ErrNotFound)
	mustResolve(t, m.Root(), "a.txt")
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	m, dir := newTestMirror(t)
	writeFile(t, dir, "a.txt", "hello")
	_, err := m.Reconcile()
	require.NoError(t, err)

	fired := 0
	id := m.Root().OnNodeChanged(func() { fired++ })
	m.Root().Unsubscribe(id)

	rewriteFile(t, dir, "a.txt", "world")
	_, err = m.Reconcile()
	require.NoError(t, err)
	assert.Zero(t, fired)
}

func TestPanickingSubscriberDoesNotKillPass(t *testing.T) {
	m, dir := newTestMirror(t)
	writeFile(t, dir, "a.txt", "hello")
	_, err := m.Reconcile()
	require.NoError(t, err)

	file := mustResolve(t, m.Root(), "a.txt")
	file.OnNodeChanged(func() { panic("subscriber bug") })
	rootFired := false
	m.Root().OnNodeChanged(func() { rootFired = true })

	rewriteFile(t, dir, "a.txt", "world")
	changed, err := m.Reconcile()
	require.NoError(t, err)
	assert.True(t, changed)
	assert.True(t, rootFired)
}
