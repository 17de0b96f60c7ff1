package tarfs

import (
	"time"

	"github.com/archfs/tarfs/internal/filecache"
	"github.com/archfs/tarfs/internal/fstree"
	"github.com/archfs/tarfs/internal/itemlist"
	"github.com/archfs/tarfs/internal/unixstat"
)

// Backend is §6's twelve-operation filesystem backend vtable. *Filesystem
// implements it directly; package fusefs binds these methods to
// bazil.org/fuse's request types.
type Backend interface {
	Init() *fstree.Node
	Lookup(dir *fstree.Node, name string) (*fstree.Node, error)
	ReadNode(node *fstree.Node, off int64, amount int) ([]byte, error)
	WriteNode(node *fstree.Node, off int64, data []byte) (int, error)
	ChangeStat(node *fstree.Node, stat fstree.Stat) error
	CreateNode(parent *fstree.Node, name string, stat fstree.Stat) (*fstree.Node, error)
	UnlinkNode(node *fstree.Node) error
	LinkNode(dir, target *fstree.Node, name string, excl bool) (*fstree.Node, error)
	SymlinkNode(node *fstree.Node, target string) error
	MkdevNode(node *fstree.Node, typeflag byte, rdev uint32) error
	FreeNode(node *fstree.Node)
	SyncFS() error
	GoAway() error
}

var _ Backend = (*Filesystem)(nil)

func (fs *Filesystem) Init() *fstree.Node { return fs.Root() }

// Lookup implements §6's contract: case-sensitive match among dir's
// children, with "." and ".." handled by fstree.Tree.Find itself. A
// successful lookup adds a reference the host must later release via
// FreeNode (§5's refcount protocol: "each parent->child link holds one
// reference" — a lookup handle is modeled the same way here).
func (fs *Filesystem) Lookup(dir *fstree.Node, name string) (*fstree.Node, error) {
	dir.Lock()
	defer dir.Unlock()

	n, err := fs.Tree.Find(dir, name)
	if err != nil {
		return nil, newErr(ErrNoSuchEntry, "no such entry: "+name)
	}
	if n == dir {
		fs.Tree.IncRef(n)
		return n, nil
	}
	n.Lock()
	fs.Tree.IncRef(n)
	n.Unlock()
	return n, nil
}

// ReadNode dispatches to the target node's cache, per §4.6.3. Reading a
// directory fails is-a-directory, matching §6.
func (fs *Filesystem) ReadNode(node *fstree.Node, off int64, amount int) ([]byte, error) {
	target := node.Target()
	target.Lock()
	defer target.Unlock()

	if unixstat.S_ISDIR(target.Stat().Mode) {
		return nil, newErr(ErrIsDir, "cannot read a directory")
	}
	ni := info(target)
	if ni == nil || ni.cache == nil {
		return nil, nil
	}
	data, err := ni.cache.Read(off, amount, fs.sourceFor(ni))
	if err != nil {
		return nil, wrapErr(ErrIO, err)
	}
	return data, nil
}

// WriteNode dispatches to cache-write. Writing through a hardlink alias
// re-routes to the target (§5), and since fstree.Node.Stat mirrors a
// hardlink alias's size from its target live, no separate mirroring step
// is needed the way the original's eagerly-copied stat struct required.
func (fs *Filesystem) WriteNode(node *fstree.Node, off int64, data []byte) (int, error) {
	if err := fs.errIfReadOnly(); err != nil {
		return 0, err
	}
	target := node.Target()
	target.Lock()
	defer target.Unlock()

	ni := info(target)
	if ni == nil || ni.cache == nil {
		return 0, newErr(ErrInvalidArgument, "node has no writable payload")
	}
	n, err := ni.cache.Write(off, data, fs.sourceFor(ni))
	if err != nil {
		return n, wrapErr(ErrIO, err)
	}
	ni.dirty = true

	stat := target.Stat()
	stat.Size = ni.cache.Size()
	stat.Mtime = time.Now()
	target.SetStat(stat)
	return n, nil
}

// ChangeStat resizes the cache when size changes, copies every other
// field, and marks the node dirty for the next sync pass.
func (fs *Filesystem) ChangeStat(node *fstree.Node, stat fstree.Stat) error {
	if err := fs.errIfReadOnly(); err != nil {
		return err
	}
	target := node.Target()
	target.Lock()
	defer target.Unlock()

	cur := target.Stat()
	ni := info(target)
	if stat.Size != cur.Size && ni != nil && ni.cache != nil {
		if err := ni.cache.SetSize(stat.Size); err != nil {
			return wrapErr(ErrIO, err)
		}
	}
	stat.Ino = cur.Ino
	stat.Nlink = cur.Nlink
	target.SetStat(stat)
	if ni != nil {
		ni.dirty = true
	}
	return nil
}

// CreateNode creates a node under parent. name == "" creates an anonymous
// node (the "mkfile" pattern §6 describes): it is not added to parent's
// children and gets no tar item. No Backend method later attaches it or
// gives it an item, so the sync pass never writes it.
func (fs *Filesystem) CreateNode(parent *fstree.Node, name string, stat fstree.Stat) (*fstree.Node, error) {
	if err := fs.errIfReadOnly(); err != nil {
		return nil, err
	}
	if name != "" {
		full := fstree.PathFromRoot(fs.Tree.Root(), parent) + "/" + name
		if len(full) > 100 {
			return nil, newErr(ErrNameTooLong, full)
		}
	}

	now := time.Now()
	stat.Mtime, stat.Ctime, stat.Atime = now, now, now

	parent.Lock()
	node, err := fs.Tree.MakeNode(parent, name, stat)
	if err != nil {
		parent.Unlock()
		return nil, mapTreeErr(err)
	}

	ni := &nodeInfo{}
	if unixstat.S_ISREG(stat.Mode) || unixstat.S_ISCHR(stat.Mode) ||
		unixstat.S_ISBLK(stat.Mode) || unixstat.S_ISFIFO(stat.Mode) {
		ni.cache = filecache.New(0)
	}
	setInfo(node, ni)

	if name != "" {
		fs.items.Lock()
		anchor := fs.placeNewItemLocked(parent)
		item := &itemlist.Item{Offset: -1, Node: node}
		fs.items.InsertAfter(anchor, item)
		fs.items.Unlock()
		ni.item = item
	}
	parent.Unlock()
	return node, nil
}

// UnlinkNode detaches node from its parent. §6: not-empty for a
// non-empty directory, busy for a hardlink target with extant aliases.
func (fs *Filesystem) UnlinkNode(node *fstree.Node) error {
	if err := fs.errIfReadOnly(); err != nil {
		return err
	}
	parent := node.Parent()
	if parent == nil {
		return newErr(ErrInvalidArgument, "cannot unlink the root")
	}
	parent.Lock()
	node.Lock()
	err := fs.Tree.Unlink(node)
	node.Unlock()
	parent.Unlock()
	return mapTreeErr(err)
}

// LinkNode creates a hardlink alias of target named name under dir.
func (fs *Filesystem) LinkNode(dir, target *fstree.Node, name string, excl bool) (*fstree.Node, error) {
	if err := fs.errIfReadOnly(); err != nil {
		return nil, err
	}
	dir.Lock()
	if excl {
		if _, err := fs.Tree.Find(dir, name); err == nil {
			dir.Unlock()
			return nil, newErr(ErrExists, name)
		}
	}
	target.Lock()
	alias, err := fs.Tree.HardLink(dir, name, target)
	target.Unlock()
	if err != nil {
		dir.Unlock()
		return nil, mapTreeErr(err)
	}

	ni := &nodeInfo{}
	fs.items.Lock()
	anchor := fs.placeNewItemLocked(dir)
	item := &itemlist.Item{Offset: -1, Node: alias}
	fs.items.InsertAfter(anchor, item)
	fs.items.Unlock()
	ni.item = item
	setInfo(alias, ni)
	dir.Unlock()
	return alias, nil
}

// SymlinkNode stores target as node's symlink target string.
func (fs *Filesystem) SymlinkNode(node *fstree.Node, target string) error {
	if err := fs.errIfReadOnly(); err != nil {
		return err
	}
	node.Lock()
	defer node.Unlock()
	fs.Tree.Symlink(node, target)
	if ni := info(node); ni != nil {
		ni.dirty = true
	}
	return nil
}

// MkdevNode turns node into a character or block device with the given
// rdev. Other typeflags are rejected not-supported, per §6's "may return
// not-supported" allowance.
func (fs *Filesystem) MkdevNode(node *fstree.Node, typeflag byte, rdev uint32) error {
	if err := fs.errIfReadOnly(); err != nil {
		return err
	}
	node.Lock()
	defer node.Unlock()

	stat := node.Stat()
	switch typeflag {
	case 'c':
		stat.Mode = (stat.Mode &^ unixstat.S_IFMT) | unixstat.S_IFCHR
	case 'b':
		stat.Mode = (stat.Mode &^ unixstat.S_IFMT) | unixstat.S_IFBLK
	default:
		return newErr(ErrNotSupported, "device type not supported")
	}
	stat.Rdev = rdev
	node.SetStat(stat)
	if ni := info(node); ni != nil {
		ni.dirty = true
	}
	return nil
}

// FreeNode releases the host's reference on node, per §5's reference
// counting: the final release triggers the fstree.Tree.OnFree callback
// installed in Open, which tears down the node's cache and tar-info.
func (fs *Filesystem) FreeNode(node *fstree.Node) {
	node.Lock()
	fs.Tree.DecRef(node)
	node.Unlock()
}

func mapTreeErr(err error) error {
	switch err {
	case nil:
		return nil
	case fstree.ErrNotEmpty:
		return newErr(ErrNotEmpty, err.Error())
	case fstree.ErrBusy:
		return newErr(ErrBusy, err.Error())
	case fstree.ErrExists:
		return newErr(ErrExists, err.Error())
	case fstree.ErrNoEntry:
		return newErr(ErrNoSuchEntry, err.Error())
	case fstree.ErrNotDir:
		return newErr(ErrNotDir, err.Error())
	case fstree.ErrIsDir:
		return newErr(ErrIsDir, err.Error())
	default:
		return wrapErr(ErrIO, err)
	}
}
