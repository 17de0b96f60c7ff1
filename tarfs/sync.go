package tarfs

import (
	"strings"

	"github.com/archfs/tarfs/internal/fstree"
	"github.com/archfs/tarfs/internal/idlookup"
	"github.com/archfs/tarfs/internal/itemlist"
	"github.com/archfs/tarfs/internal/tarcodec"
	"github.com/archfs/tarfs/internal/unixstat"
)

// SyncFS implements §4.6.4's serialisation pass. §5 forbids concurrent
// sync: fs.fileLock is held for the whole pass, so other operations may
// still progress on individual nodes but a second sync call blocks until
// this one finishes. A read-only or volatile mount has nothing to write
// back.
func (fs *Filesystem) SyncFS() error {
	if fs.opts.ReadOnly || fs.opts.Volatile {
		return nil
	}
	fs.fileLock.Lock()
	defer fs.fileLock.Unlock()
	return fs.syncLocked()
}

// GoAway implements §4.6.5: sync (if writable and non-volatile) then
// close the backing file.
func (fs *Filesystem) GoAway() error {
	if err := fs.SyncFS(); err != nil {
		return err
	}
	if err := fs.file.Close(); err != nil {
		return wrapErr(ErrIO, err)
	}
	return nil
}

func (fs *Filesystem) syncLocked() error {
	fs.items.Lock()
	defer fs.items.Unlock()

	// Pre-materialise every live node's entire content into its own
	// per-node cache before any bytes move. §4.6.4's pseudocode calls
	// cache-ahead per record as file_offs marches forward, to stop an
	// earlier item's growth from overwriting a later, not-yet-visited
	// item's still-unread original bytes; doing the equivalent protection
	// as one upfront pass over the whole list is simpler to reason about
	// and costs the same I/O in the end, since every live node's content
	// must be read at least once during this sync regardless.
	for cur := fs.items.Head(); cur != nil; cur = cur.Next() {
		node, ok := cur.Node.(*fstree.Node)
		if !ok || node == nil {
			continue
		}
		node.Lock()
		if ni := info(node); ni != nil && ni.cache != nil {
			err := ni.cache.CacheAhead(ni.cache.Size(), fs.sourceFor(ni))
			if err != nil {
				node.Unlock()
				return wrapErr(ErrIO, err)
			}
		}
		node.Unlock()
	}

	var fileOffs int64
	cur := fs.items.Head()
	for cur != nil {
		next := cur.Next()

		node, ok := cur.Node.(*fstree.Node)
		if !ok || node == nil {
			// Freed since it was placed; reclaim the slot now (§5).
			fs.items.Unlink(cur)
			cur = next
			continue
		}

		node.Lock()
		err := fs.syncItemLocked(cur, node, &fileOffs)
		node.Unlock()
		if err != nil {
			return err
		}
		cur = next
	}

	if _, err := fs.archive.Write(fileOffs, tarcodec.EOFRecord()); err != nil {
		return wrapErr(ErrIO, err)
	}
	fileOffs += tarcodec.RecordSize
	if err := fs.archive.SetSize(fileOffs); err != nil {
		return wrapErr(ErrIO, err)
	}

	return fs.archive.Sync()
}

// syncItemLocked emits cur's header (only when dirty, resized or moved)
// and payload (only when the cache isn't already a clean mirror of the
// archive or the item moved), advancing *fileOffs past whatever it wrote,
// per §4.6.4. Caller holds node and fs.items locked.
func (fs *Filesystem) syncItemLocked(cur *itemlist.Item, node *fstree.Node, fileOffs *int64) error {
	ni := info(node)
	if ni == nil {
		return nil
	}

	stat := node.Stat()
	size := itemPayloadSize(node, ni)

	payloadStart := *fileOffs + tarcodec.RecordSize
	needsMove := cur.Offset != payloadStart
	sizeChanged := size != cur.OrigSize
	dirty := ni.dirty || sizeChanged || needsMove

	if dirty {
		h := fs.buildHeader(node, stat, size)
		if _, err := fs.archive.Write(*fileOffs, tarcodec.EmitHeader(h)); err != nil {
			return wrapErr(ErrIO, err)
		}
	}
	*fileOffs += tarcodec.RecordSize

	numRecords := tarcodec.PayloadRecords(size)
	rewritePayload := dirty || (ni.cache != nil && !ni.cache.IsSynced())

	if rewritePayload && ni.cache != nil {
		src := fs.sourceFor(ni)
		for i := int64(0); i < numRecords; i++ {
			recOff := i * tarcodec.RecordSize
			n := tarcodec.RecordSize
			if remaining := size - recOff; int64(n) > remaining {
				n = int(remaining)
			}
			chunk, err := ni.cache.Read(recOff, n, src)
			if err != nil {
				return wrapErr(ErrIO, err)
			}
			if _, err := fs.archive.Write(*fileOffs, tarcodec.PadPayload(chunk)); err != nil {
				return wrapErr(ErrIO, err)
			}
			*fileOffs += tarcodec.RecordSize
		}
		ni.cache.Reset()
	} else {
		*fileOffs += numRecords * tarcodec.RecordSize
	}

	cur.Offset = payloadStart
	cur.OrigSize = size
	ni.dirty = false
	return nil
}

// itemPayloadSize is the number of payload bytes this node's tar record
// carries: a hardlink, symlink or directory always carries zero, matching
// GNU tar's own convention (their content lives in the link target or the
// linkname field, not a payload).
func itemPayloadSize(node *fstree.Node, ni *nodeInfo) int64 {
	if node.Hardlink() != nil || node.SymlinkTarget() != "" {
		return 0
	}
	stat := node.Stat()
	if unixstat.S_ISDIR(stat.Mode) {
		return 0
	}
	if ni.cache == nil {
		return 0
	}
	return ni.cache.Size()
}

// buildHeader renders node's current state as a tarcodec.Header, the
// Stat→header direction of §4.1's conversion.
func (fs *Filesystem) buildHeader(node *fstree.Node, stat fstree.Stat, size int64) *tarcodec.Header {
	name := strings.TrimPrefix(fstree.PathFromRoot(fs.Tree.Root(), node), "/")

	h := &tarcodec.Header{
		Name:          name,
		Mode:          stat.Mode & 07777,
		Uid:           stat.Uid,
		Gid:           stat.Gid,
		Uname:         idlookup.UserName(stat.Uid),
		Gname:         idlookup.GroupName(stat.Gid),
		Mtime:         stat.Mtime,
		Devmajor:      unixstat.Major(stat.Rdev),
		Devminor:      unixstat.Minor(stat.Rdev),
		HasUstarMagic: true,
	}

	switch {
	case node.Hardlink() != nil:
		h.Typeflag = tarcodec.TypeLink
		h.Linkname = strings.TrimPrefix(fstree.PathFromRoot(fs.Tree.Root(), node.Hardlink()), "/")
	case node.SymlinkTarget() != "":
		h.Typeflag = tarcodec.TypeSymlink
		h.Linkname = node.SymlinkTarget()
	default:
		h.Typeflag = tarcodec.TypeflagFromMode(stat.Mode)
		h.Size = size
	}
	if unixstat.S_ISDIR(stat.Mode) && !strings.HasSuffix(h.Name, "/") {
		h.Name += "/"
	}
	return h
}
