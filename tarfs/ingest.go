package tarfs

import (
	"io"
	"strings"

	"github.com/archfs/tarfs/internal/filecache"
	"github.com/archfs/tarfs/internal/fstree"
	"github.com/archfs/tarfs/internal/idlookup"
	"github.com/archfs/tarfs/internal/itemlist"
	"github.com/archfs/tarfs/internal/tarcodec"
	"github.com/archfs/tarfs/internal/unixstat"
)

// archiveReader presents fs.archive as a sequential io.Reader from offset
// zero, the shape tarcodec.NewReader wants. Ingest is the one place the
// archive-wide store is consumed strictly forward, front to back.
type archiveReader struct {
	fs  *Filesystem
	pos int64
}

func (r *archiveReader) Read(p []byte) (int, error) {
	if r.pos >= r.fs.archive.Size() {
		return 0, io.EOF
	}
	buf, err := r.fs.archive.Read(r.pos, len(p))
	if err != nil {
		return 0, err
	}
	if len(buf) == 0 {
		return 0, io.EOF
	}
	n := copy(p, buf)
	r.pos += int64(n)
	return n, nil
}

// ingest drives §4.6.1: stream every record, dispatching each resolved
// header through addHeader, in strict append order.
func (fs *Filesystem) ingest() error {
	tr := tarcodec.NewReader(&archiveReader{fs: fs})
	tr.Logf = func(format string, args ...any) { fs.log.Warn("ingest: "+format, args...) }

	var lastItem *itemlist.Item
	for {
		entry, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return wrapErr(ErrBadFormat, err)
		}
		item, err := fs.addHeader(entry, lastItem)
		if err != nil {
			return err
		}
		if item != nil {
			lastItem = item
		}
	}
	return nil
}

// addHeader implements §4.6.2.
func (fs *Filesystem) addHeader(entry *tarcodec.Entry, lastItem *itemlist.Item) (*itemlist.Item, error) {
	h := entry.Header
	name := strings.Trim(h.Name, "/")
	if name == "" || name == "." {
		// The root representation some archives carry ("tar cf x .").
		return nil, nil
	}

	comps := strings.Split(name, "/")
	for i, c := range comps {
		comps[i] = fstree.FilterName(c, fstree.DefaultSentinel, true)
	}

	parent := fs.Tree.Root()
	parent.Lock()
	for _, c := range comps[:len(comps)-1] {
		child, err := fs.Tree.Find(parent, c)
		if err != nil {
			fs.log.Warn("inconsistent archive: missing intermediate directory, synthesizing", "name", c)
			child, err = fs.Tree.MakeNode(parent, c, fstree.Stat{
				Mode:  unixstat.S_IFDIR | 0755,
				Mtime: h.Mtime,
				Ctime: h.Mtime,
				Atime: h.Mtime,
			})
			if err != nil {
				parent.Unlock()
				return nil, wrapErr(ErrIO, err)
			}
			// A synthesized directory needs a list position just like any
			// other new node (§4.2), or the next sync pass never emits a
			// record for it and it vanishes from the archive.
			fs.items.Lock()
			anchor := fs.placeNewItemLocked(parent)
			synthItem := &itemlist.Item{Offset: -1, Node: child}
			fs.items.InsertAfter(anchor, synthItem)
			fs.items.Unlock()
			setInfo(child, &nodeInfo{item: synthItem})
		}
		parent.Unlock()
		parent = child
		parent.Lock()
	}
	leaf := comps[len(comps)-1]

	if _, err := fs.Tree.Find(parent, leaf); err == nil {
		parent.Unlock()
		fs.log.Warn("duplicate archive entry ignored", "name", name)
		return nil, nil
	}

	stat := fstree.Stat{
		Uid:   h.Uid,
		Gid:   h.Gid,
		Mtime: h.Mtime,
		Ctime: h.Mtime,
		Atime: h.Mtime,
	}
	if h.HasUstarMagic {
		if uid, ok := idlookup.User(h.Uname); ok {
			stat.Uid = uid
		}
		if gid, ok := idlookup.Group(h.Gname); ok {
			stat.Gid = gid
		}
	}

	switch h.Typeflag {
	case tarcodec.TypeLink:
		target, err := fs.resolvePath(h.Linkname)
		if err != nil || target == nil {
			parent.Unlock()
			fs.log.Warn("hardlink target not found, ignoring", "name", name, "target", h.Linkname)
			return nil, nil
		}
		target.Lock()
		alias, err := fs.Tree.HardLink(parent, leaf, target)
		target.Unlock()
		parent.Unlock()
		if err != nil {
			return nil, wrapErr(ErrIO, err)
		}
		item := &itemlist.Item{Offset: entry.Offset, OrigSize: 0, Node: alias}
		fs.items.Lock()
		fs.items.InsertAfter(lastItem, item)
		fs.items.Unlock()
		setInfo(alias, &nodeInfo{item: item})
		return item, nil

	case tarcodec.TypeSymlink:
		stat.Mode = unixstat.S_IFLNK | (h.Mode & 07777)
		node, err := fs.Tree.MakeNode(parent, leaf, stat)
		parent.Unlock()
		if err != nil {
			return nil, wrapErr(ErrIO, err)
		}
		fs.Tree.Symlink(node, h.Linkname)
		item := &itemlist.Item{Offset: entry.Offset, OrigSize: 0, Node: node}
		fs.items.Lock()
		fs.items.InsertAfter(lastItem, item)
		fs.items.Unlock()
		setInfo(node, &nodeInfo{item: item})
		return item, nil

	case tarcodec.TypeDir, tarcodec.TypeRegular, tarcodec.TypeRegularA,
		tarcodec.TypeChar, tarcodec.TypeBlock, tarcodec.TypeFifo, tarcodec.TypeContig:
		stat.Mode = tarcodec.ModeFromTypeflag(h.Mode&07777, h.Typeflag)
		stat.Size = h.Size
		if h.Typeflag == tarcodec.TypeChar || h.Typeflag == tarcodec.TypeBlock {
			rdev, err := unixstat.Makedev(h.Devmajor, h.Devminor)
			if err == nil {
				stat.Rdev = rdev
			}
		}
		node, err := fs.Tree.MakeNode(parent, leaf, stat)
		parent.Unlock()
		if err != nil {
			return nil, wrapErr(ErrIO, err)
		}
		item := &itemlist.Item{Offset: entry.Offset, OrigSize: h.Size, Node: node}
		fs.items.Lock()
		fs.items.InsertAfter(lastItem, item)
		fs.items.Unlock()
		ni := &nodeInfo{item: item}
		if h.Typeflag != tarcodec.TypeDir {
			ni.cache = filecache.New(h.Size)
		}
		setInfo(node, ni)
		return item, nil

	default:
		parent.Unlock()
		fs.log.Warn("unsupported typeflag ignored", "name", name, "typeflag", string(h.Typeflag))
		return nil, nil
	}
}

// resolvePath walks an absolute-or-relative archive path from the root,
// used to resolve a hardlink record's target. Returns nil if any
// component is missing.
func (fs *Filesystem) resolvePath(path string) (*fstree.Node, error) {
	name := strings.Trim(path, "/")
	if name == "" {
		return fs.Tree.Root(), nil
	}
	comps := strings.Split(name, "/")
	cur := fs.Tree.Root()
	for _, c := range comps {
		c = fstree.FilterName(c, fstree.DefaultSentinel, true)
		cur.Lock()
		next, err := fs.Tree.Find(cur, c)
		cur.Unlock()
		if err != nil {
			return nil, nil
		}
		cur = next
	}
	return cur, nil
}
