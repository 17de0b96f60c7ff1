package fstree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archfs/tarfs/internal/unixstat"
)

func newTestTree() (*Tree, *Node) {
	tr := NewTree()
	root := tr.NewRoot(Stat{Mode: unixstat.S_IFDIR | 0755})
	return tr, root
}

func TestMakeNodeAndFind(t *testing.T) {
	tr, root := newTestTree()
	root.Lock()
	child, err := tr.MakeNode(root, "a.txt", Stat{Mode: unixstat.S_IFREG | 0644})
	root.Unlock()
	require.NoError(t, err)
	assert.Equal(t, uint32(1), child.Stat().Nlink)

	root.Lock()
	found, err := tr.Find(root, "a.txt")
	root.Unlock()
	require.NoError(t, err)
	assert.Same(t, child, found)
}

func TestDirectoryNlinkTracksSubdirs(t *testing.T) {
	tr, root := newTestTree()
	assert.Equal(t, uint32(2), root.Stat().Nlink)

	root.Lock()
	_, err := tr.MakeNode(root, "sub", Stat{Mode: unixstat.S_IFDIR | 0755})
	root.Unlock()
	require.NoError(t, err)
	assert.Equal(t, uint32(3), root.Stat().Nlink)
}

func TestHardLinkAliasesTargetStat(t *testing.T) {
	tr, root := newTestTree()
	root.Lock()
	target, err := tr.MakeNode(root, "a", Stat{Mode: unixstat.S_IFREG | 0644, Size: 10})
	require.NoError(t, err)

	alias, err := tr.HardLink(root, "b", target)
	root.Unlock()
	require.NoError(t, err)

	assert.Equal(t, int64(10), alias.Stat().Size)
	assert.Equal(t, uint32(2), target.Stat().Nlink)
	assert.Same(t, target, alias.Target())
}

func TestUnlinkRejectsNonEmptyDir(t *testing.T) {
	tr, root := newTestTree()
	root.Lock()
	dir, err := tr.MakeNode(root, "d", Stat{Mode: unixstat.S_IFDIR | 0755})
	require.NoError(t, err)
	_, err = tr.MakeNode(dir, "f", Stat{Mode: unixstat.S_IFREG | 0644})
	require.NoError(t, err)

	dir.Lock()
	err = tr.Unlink(dir)
	dir.Unlock()
	root.Unlock()
	assert.ErrorIs(t, err, ErrNotEmpty)
}

func TestUnlinkRejectsBusyHardlinkTarget(t *testing.T) {
	tr, root := newTestTree()
	root.Lock()
	target, err := tr.MakeNode(root, "a", Stat{Mode: unixstat.S_IFREG | 0644})
	require.NoError(t, err)
	_, err = tr.HardLink(root, "b", target)
	require.NoError(t, err)

	target.Lock()
	err = tr.Unlink(target)
	target.Unlock()
	root.Unlock()
	assert.ErrorIs(t, err, ErrBusy)
}

func TestFindPathReturnsUnresolvedSuffix(t *testing.T) {
	tr, root := newTestTree()
	root.Lock()
	dir, err := tr.MakeNode(root, "a", Stat{Mode: unixstat.S_IFDIR | 0755})
	require.NoError(t, err)
	root.Unlock()

	found, notFound, rest := tr.FindPath(root, "a/b/c")
	assert.Same(t, dir, found)
	assert.Equal(t, "b", notFound)
	assert.Equal(t, "c", rest)
}

func TestFilterNameIdempotent(t *testing.T) {
	in := "weird/name\x01here"
	once := FilterName(in, DefaultSentinel, true)
	twice := FilterName(once, DefaultSentinel, true)
	assert.Equal(t, once, twice)
	assert.NotContains(t, once, "/")
}

func TestFilterNameUnchangedReturnsOriginal(t *testing.T) {
	in := "plainname.txt"
	assert.Equal(t, in, FilterName(in, DefaultSentinel, true))
}
