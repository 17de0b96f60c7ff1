package fusefs

import (
	"time"

	"bazil.org/fuse"
	"github.com/go-errors/errors"

	"github.com/archfs/tarfs/internal/fstree"
	"github.com/archfs/tarfs/internal/unixstat"
)

var (
	errAccessDenied   = errors.New("permission denied")
	errNotADirHandle  = errors.New("not a directory handle")
	errBadHandle      = errors.New("invalid file handle")
)

// attrValidDuration is how long the kernel may cache an inode's attributes
// or a lookup's validity before re-querying, matching the teacher's own
// one-hour default for an archive that never changes out from under the
// mount except through this same process.
const attrValidDuration = time.Hour

func nodeAttr(n *fstree.Node) fuse.Attr {
	stat := n.Stat()
	size := uint64(stat.Size)
	return fuse.Attr{
		Valid:     attrValidDuration,
		Inode:     stat.Ino,
		Size:      size,
		Blocks:    (size + 511) / 512,
		Atime:     stat.Atime,
		Mtime:     stat.Mtime,
		Ctime:     stat.Ctime,
		Mode:      unixstat.UnixToFileStatMode(stat.Mode),
		Nlink:     stat.Nlink,
		Uid:       stat.Uid,
		Gid:       stat.Gid,
		Rdev:      stat.Rdev,
		BlockSize: 512,
	}
}

func (m *Mount) handleStatfsRequest(req *fuse.StatfsRequest) error {
	var stfs unixstat.Statfs_t
	if err := unixstat.Statfs(m.mountPoint, &stfs); err != nil {
		return err
	}
	req.Respond(&fuse.StatfsResponse{
		Blocks:  stfs.Blocks,
		Bfree:   stfs.Bfree,
		Bavail:  stfs.Bavail,
		Files:   stfs.Files,
		Ffree:   stfs.Ffree,
		Bsize:   uint32(stfs.Bsize),
		Namelen: uint32(stfs.Namelen),
		Frsize:  uint32(stfs.Frsize),
	})
	return nil
}

func (m *Mount) handleLookupRequest(req *fuse.LookupRequest) error {
	dir, err := m.getNode(req.Node)
	if err != nil {
		return err
	}
	child, err := m.backend.Lookup(dir, req.Name)
	if err != nil {
		return err
	}
	id := m.trackNode(child)
	req.Respond(&fuse.LookupResponse{
		Node:       id,
		Generation: 1,
		EntryValid: attrValidDuration,
		Attr:       nodeAttr(child),
	})
	return nil
}

func (m *Mount) handleGetattrRequest(req *fuse.GetattrRequest) error {
	n, err := m.getNode(req.Node)
	if err != nil {
		return err
	}
	req.Respond(&fuse.GetattrResponse{Attr: nodeAttr(n.Target())})
	return nil
}

func (m *Mount) handleSetattrRequest(req *fuse.SetattrRequest) error {
	n, err := m.getNode(req.Node)
	if err != nil {
		return err
	}
	target := n.Target()
	target.Lock()
	stat := target.Stat()
	target.Unlock()

	if req.Valid.Size() {
		stat.Size = int64(req.Size)
	}
	if req.Valid.Mode() {
		stat.Mode = (stat.Mode &^ 07777) | unixstat.FileStatToUnixMode(req.Mode)&07777
	}
	if req.Valid.Uid() {
		stat.Uid = req.Uid
	}
	if req.Valid.Gid() {
		stat.Gid = req.Gid
	}
	if req.Valid.Atime() {
		stat.Atime = req.Atime
	}
	if req.Valid.Mtime() {
		stat.Mtime = req.Mtime
	}
	stat.Ctime = time.Now()

	if err := m.backend.ChangeStat(n, stat); err != nil {
		return err
	}
	req.Respond(&fuse.SetattrResponse{Attr: nodeAttr(target)})
	return nil
}

func (m *Mount) handleAccessRequest(req *fuse.AccessRequest) error {
	n, err := m.getNode(req.Node)
	if err != nil {
		return err
	}
	stat := n.Target().Stat()
	if !unixstat.TestAccess(req.Uid == stat.Uid, req.Gid == stat.Gid, stat.Mode, req.Mask) {
		return FuseError{source: errAccessDenied, errno: unixstat.EACCES}
	}
	req.Respond()
	return nil
}

func (m *Mount) handleForgetRequest(req *fuse.ForgetRequest) error {
	n, err := m.getNode(req.Node)
	if err == nil {
		m.forgetN(req.Node, n, req.N)
	}
	req.Respond()
	return nil
}

func (m *Mount) handleBatchForgetRequest(req *fuse.BatchForgetRequest) error {
	for _, f := range req.Forget {
		if n, err := m.getNode(f.NodeID); err == nil {
			m.forgetN(f.NodeID, n, f.N)
		}
	}
	req.Respond()
	return nil
}

// forgetN releases n references and, if the host's table is the last
// place holding onto this node id, drops the id mapping too. The tree's
// own refcounting (via Backend.FreeNode) is what actually tears the node
// down at zero; this just keeps the id table from growing unboundedly.
func (m *Mount) forgetN(id fuse.NodeID, n *fstree.Node, count uint64) {
	for i := uint64(0); i < count; i++ {
		m.backend.FreeNode(n)
	}
	n.Lock()
	refCount := n.RefCount()
	n.Unlock()
	if refCount <= 0 {
		m.nodeLock.Lock()
		delete(m.nodeMap, id)
		m.nodeLock.Unlock()
	}
}

func (m *Mount) handleReadlinkRequest(req *fuse.ReadlinkRequest) error {
	n, err := m.getNode(req.Node)
	if err != nil {
		return err
	}
	n.Lock()
	target := n.SymlinkTarget()
	n.Unlock()
	req.Respond(target)
	return nil
}
