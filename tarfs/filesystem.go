// Package tarfs implements §4.6's tar filesystem engine: ingest, the
// twelve-operation backend vtable of §6, and the sync (serialisation)
// pass. It binds together internal/tarcodec (record codec),
// internal/itemlist (archive order), internal/fstree (node graph),
// internal/filecache (per-node cache) and internal/zstore (compressed or
// plain archive-wide byte store) into the single Filesystem value
// spec.md §9 calls for in place of process-wide globals.
package tarfs

import (
	"log/slog"
	"os"
	"sync"

	"github.com/archfs/tarfs/internal/fstree"
	"github.com/archfs/tarfs/internal/itemlist"
	"github.com/archfs/tarfs/internal/unixstat"
	"github.com/archfs/tarfs/internal/zstore"
)

// Options configures how a Filesystem opens and treats its backing file,
// mirroring §6's CLI surface one level down from flag parsing.
type Options struct {
	Kind     zstore.Kind
	ReadOnly bool
	Volatile bool // writable in memory, never synced (§6 "--volatile")
	Create   bool // create the backing file if it does not exist
}

// Filesystem is the process-wide state spec.md §9 asks to be an explicit
// value rather than hidden globals: the node graph, the item list, the
// archive-wide byte store, and the options governing how operations and
// sync behave.
type Filesystem struct {
	Tree    *fstree.Tree
	items   *itemlist.List
	archive *zstore.Store

	file     *os.File
	fileLock sync.Mutex // serialises sync passes (§5 "tar_file_lock")

	opts Options
	log  *slog.Logger
}

// Open parses path as a tar archive (optionally gzip/bzip2 compressed per
// opts.Kind) and ingests it into an in-memory filesystem tree, per §4.6.1.
func Open(path string, opts Options, log *slog.Logger) (*Filesystem, error) {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "tarfs")

	flags := os.O_RDWR
	if opts.ReadOnly {
		flags = os.O_RDONLY
	}
	if opts.Create {
		flags |= os.O_CREATE
	}
	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, wrapErr(ErrIO, err)
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, wrapErr(ErrIO, err)
	}

	archive, err := zstore.Open(f, opts.Kind, fi.Size())
	if err != nil {
		f.Close()
		return nil, wrapErr(ErrBadFormat, err)
	}

	fs := &Filesystem{
		Tree:    fstree.NewTree(),
		items:   itemlist.New(),
		archive: archive,
		file:    f,
		opts:    opts,
		log:     log,
	}
	fs.Tree.OnFree = fs.onNodeFree

	root := fs.Tree.NewRoot(fstree.Stat{
		Mode:  unixstat.S_IFDIR | 0755,
		Atime: fi.ModTime(),
		Mtime: fi.ModTime(),
		Ctime: fi.ModTime(),
	})
	setInfo(root, &nodeInfo{})

	if archive.Size() > 0 {
		if err := fs.ingest(); err != nil {
			f.Close()
			return nil, err
		}
	}
	return fs, nil
}

// Root returns the filesystem's root directory node, the return value
// Init hands the host (§6: "init(user) -> root").
func (fs *Filesystem) Root() *fstree.Node { return fs.Tree.Root() }

// onNodeFree implements §5's "final release triggers free_node which
// frees name, symlink string, cache, and tar-info (item is left in the
// list with node := null)". fstree.Tree calls this once a node's
// reference count reaches zero; tarfs's own FreeNode (the vtable entry)
// reaches it only that way, through Tree.DecRef.
func (fs *Filesystem) onNodeFree(n *fstree.Node) {
	ni := info(n)
	if ni == nil {
		return
	}
	if ni.item != nil {
		ni.item.Node = nil
	}
	setInfo(n, nil)
}

func (fs *Filesystem) errIfReadOnly() error {
	if fs.opts.ReadOnly {
		return newErr(ErrReadOnlyFS, "filesystem is mounted read-only")
	}
	return nil
}
