package tarfs

import (
	"github.com/archfs/tarfs/internal/filecache"
	"github.com/archfs/tarfs/internal/fstree"
	"github.com/archfs/tarfs/internal/itemlist"
)

// nodeInfo is the tarfs-specific state every fstree.Node carries in its
// Payload field — §3's "tarfs-info". Directories, symlinks and hardlink
// aliases carry item but no cache (no archive payload of their own to
// cache); regular files, char/block devices and fifos carry both.
// Anonymous nodes created via CreateNode with no name carry a cache (if
// their mode calls for one) but no item.
type nodeInfo struct {
	item  *itemlist.Item
	cache *filecache.FileCache
	dirty bool
}

func info(n *fstree.Node) *nodeInfo {
	ni, _ := n.Payload.(*nodeInfo)
	return ni
}

func setInfo(n *fstree.Node, ni *nodeInfo) {
	n.Payload = ni
}

// archiveSource adapts the filesystem's single archive-wide zstore.Store
// into the filecache.Source a node's cache fetches through, fixed at a
// byte offset: item.Offset, which already points at the payload start
// (one record past the header).
type archiveSource struct {
	fs   *Filesystem
	base int64
}

func (a archiveSource) ReadAt(off int64, length int) ([]byte, error) {
	buf, err := a.fs.archive.Read(a.base+off, length)
	if err != nil {
		return nil, wrapErr(ErrIO, err)
	}
	if len(buf) < length {
		// Short read past the archive's current length: zero-fill, the
		// same convention filecache itself uses for out-of-payload reads.
		full := make([]byte, length)
		copy(full, buf)
		return full, nil
	}
	return buf, nil
}

// sourceFor returns the filecache.Source a node's cache should fetch
// through, or nil if the node has no archive backing yet (synthetic,
// anonymous, or a hardlink/directory with nothing to fetch).
func (fs *Filesystem) sourceFor(ni *nodeInfo) filecache.Source {
	if ni == nil || ni.item == nil || ni.item.Offset < 0 {
		return nil
	}
	return archiveSource{fs: fs, base: ni.item.Offset}
}
