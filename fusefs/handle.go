package fusefs

import (
	"bazil.org/fuse"

	"github.com/archfs/tarfs/internal/fstree"
	"github.com/archfs/tarfs/internal/unixstat"
)

// FileHandle is one open()'d handle: a directory listing cursor or a
// regular-file read/write adapter over the Backend.
type FileHandle interface {
	Read(req *fuse.ReadRequest) error
	Write(req *fuse.WriteRequest) (*fuse.WriteResponse, error)
	Release(req *fuse.ReleaseRequest) error
}

// dirHandle snapshots a directory's children at open time, the same
// approach the teacher's own directory handle took (§6 doesn't require
// read_dir to observe concurrent mutations mid-listing).
type dirHandle struct {
	entries []*fstree.Node
}

func (h *dirHandle) Read(req *fuse.ReadRequest) error {
	if !req.Dir {
		return FuseError{source: errNotADirHandle, errno: unixstat.EISDIR}
	}
	buf := make([]byte, req.Size)
	bufOffset := 0
	i := int(req.Offset)
	for i < len(h.entries) {
		child := h.entries[i]
		stat := child.Stat()
		size := addDirEntry(buf[bufOffset:], child.Name(), stat.Ino, uint64(i+1), stat.Mode)
		if size == 0 {
			break
		}
		bufOffset += size
		i++
	}
	req.Respond(&fuse.ReadResponse{Data: buf[:bufOffset]})
	return nil
}

func (h *dirHandle) Write(req *fuse.WriteRequest) (*fuse.WriteResponse, error) {
	return nil, FuseError{source: errNotADirHandle, errno: unixstat.EISDIR}
}

func (h *dirHandle) Release(req *fuse.ReleaseRequest) error {
	req.Respond()
	return nil
}

// regHandle reads and writes through the Backend's cache-backed node
// operations; it carries no state of its own beyond which node it was
// opened against, since filecache (not this handle) is where bytes live.
type regHandle struct {
	m    *Mount
	node *fstree.Node
}

func (h *regHandle) Read(req *fuse.ReadRequest) error {
	data, err := h.m.backend.ReadNode(h.node, req.Offset, req.Size)
	if err != nil {
		return err
	}
	req.Respond(&fuse.ReadResponse{Data: data})
	return nil
}

func (h *regHandle) Write(req *fuse.WriteRequest) (*fuse.WriteResponse, error) {
	n, err := h.m.backend.WriteNode(h.node, req.Offset, req.Data)
	if err != nil {
		return nil, err
	}
	return &fuse.WriteResponse{Size: n}, nil
}

func (h *regHandle) Release(req *fuse.ReleaseRequest) error {
	req.Respond()
	return nil
}

func (m *Mount) handleOpenRequest(req *fuse.OpenRequest) error {
	n, err := m.getNode(req.Node)
	if err != nil {
		return err
	}
	target := n.Target()

	var handle FileHandle
	if req.Dir {
		target.Lock()
		entries := append([]*fstree.Node(nil), target.Children()...)
		target.Unlock()
		handle = &dirHandle{entries: entries}
	} else {
		handle = &regHandle{m: m, node: target}
	}

	id := m.openHandle(handle)
	req.Respond(&fuse.OpenResponse{Handle: id, Flags: fuse.OpenKeepCache})
	return nil
}

func (m *Mount) handleReadRequest(req *fuse.ReadRequest) error {
	h, ok := m.lookupHandle(req.Handle)
	if !ok {
		return FuseError{source: errBadHandle, errno: unixstat.EBADF}
	}
	return h.Read(req)
}

func (m *Mount) handleWriteRequest(req *fuse.WriteRequest) error {
	h, ok := m.lookupHandle(req.Handle)
	if !ok {
		return FuseError{source: errBadHandle, errno: unixstat.EBADF}
	}
	resp, err := h.Write(req)
	if err != nil {
		return err
	}
	req.Respond(resp)
	return nil
}

func (m *Mount) handleReleaseRequest(req *fuse.ReleaseRequest) error {
	h, ok := m.dropHandle(req.Handle)
	if !ok {
		return FuseError{source: errBadHandle, errno: unixstat.EBADF}
	}
	return h.Release(req)
}

func (m *Mount) handleFlushRequest(req *fuse.FlushRequest) error {
	req.Respond()
	return nil
}

func (m *Mount) handleFsyncRequest(req *fuse.FsyncRequest) error {
	if err := m.backend.SyncFS(); err != nil {
		return err
	}
	req.Respond()
	return nil
}
