// Package fusefs binds a tarfs.Backend to bazil.org/fuse's low-level
// request protocol: a connection-wide dispatch loop that resolves each
// request's fuse.NodeID to an *fstree.Node (keyed by the node's own
// inode number, which is stable for the node's lifetime) and translates
// it into the matching Backend call.
package fusefs

import (
	"fmt"
	"log/slog"
	"sync"

	"bazil.org/fuse"

	"github.com/archfs/tarfs/internal/fstree"
	"github.com/archfs/tarfs/tarfs"
)

const rootNodeID = fuse.NodeID(1)

// Mount is one active FUSE connection over a tarfs.Backend.
type Mount struct {
	conn       *fuse.Conn
	mountPoint string
	backend    tarfs.Backend
	log        *slog.Logger

	nodeLock sync.RWMutex
	nodeMap  map[fuse.NodeID]*fstree.Node

	handleLock   sync.RWMutex
	handleMap    map[fuse.HandleID]FileHandle
	lastHandleID fuse.HandleID
}

// Mount opens the FUSE connection and starts serving requests in a new
// goroutine, returning immediately. Call Close (or have the backend's
// GoAway triggered via unmount) to tear it down.
func Mount(mountPoint string, backend tarfs.Backend, log *slog.Logger, options ...fuse.MountOption) (*Mount, error) {
	if log == nil {
		log = slog.Default()
	}
	options = append(options, fuse.Subtype("tarfs"))

	conn, err := fuse.Mount(mountPoint, options...)
	if err != nil {
		return nil, err
	}

	m := &Mount{
		conn:       conn,
		mountPoint: mountPoint,
		backend:    backend,
		log:        log.With("component", "fusefs"),
		nodeMap:    make(map[fuse.NodeID]*fstree.Node),
		handleMap:  make(map[fuse.HandleID]FileHandle),
	}

	root := backend.Init()
	m.nodeMap[rootNodeID] = root

	go m.serve()
	return m, nil
}

// Close unmounts the filesystem; the serve loop exits once the kernel
// finishes tearing down the connection.
func (m *Mount) Close() error {
	return fuse.Unmount(m.mountPoint)
}

func (m *Mount) serve() {
	for {
		req, err := m.conn.ReadRequest()
		if err != nil {
			m.log.Info("connection closed", "mount", m.mountPoint, "reason", err)
			return
		}
		go m.handleRequest(req)
	}
}

func (m *Mount) nodeID(n *fstree.Node) fuse.NodeID {
	return fuse.NodeID(n.Stat().Ino)
}

func (m *Mount) trackNode(n *fstree.Node) fuse.NodeID {
	id := m.nodeID(n)
	m.nodeLock.Lock()
	m.nodeMap[id] = n
	m.nodeLock.Unlock()
	return id
}

func (m *Mount) getNode(id fuse.NodeID) (*fstree.Node, error) {
	m.nodeLock.RLock()
	n, ok := m.nodeMap[id]
	m.nodeLock.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown node id %d", id)
	}
	return n, nil
}

func (m *Mount) openHandle(h FileHandle) fuse.HandleID {
	m.handleLock.Lock()
	m.lastHandleID++
	id := m.lastHandleID
	m.handleMap[id] = h
	m.handleLock.Unlock()
	return id
}

func (m *Mount) lookupHandle(id fuse.HandleID) (FileHandle, bool) {
	m.handleLock.RLock()
	defer m.handleLock.RUnlock()
	h, ok := m.handleMap[id]
	return h, ok
}

func (m *Mount) dropHandle(id fuse.HandleID) (FileHandle, bool) {
	m.handleLock.Lock()
	defer m.handleLock.Unlock()
	h, ok := m.handleMap[id]
	delete(m.handleMap, id)
	return h, ok
}

// handleRequest dispatches one request to its handler, mirroring the
// shape of bazil.org/fuse's own example servers: a big type switch rather
// than the higher-level fs.FS interface, so every request's error path
// goes through the same WrapIOError translation from tarfs's error kinds.
func (m *Mount) handleRequest(req fuse.Request) {
	var err error

	switch r := req.(type) {
	case *fuse.StatfsRequest:
		err = m.handleStatfsRequest(r)
	case *fuse.LookupRequest:
		err = m.handleLookupRequest(r)
	case *fuse.GetattrRequest:
		err = m.handleGetattrRequest(r)
	case *fuse.SetattrRequest:
		err = m.handleSetattrRequest(r)
	case *fuse.AccessRequest:
		err = m.handleAccessRequest(r)
	case *fuse.ForgetRequest:
		err = m.handleForgetRequest(r)
	case *fuse.BatchForgetRequest:
		err = m.handleBatchForgetRequest(r)
	case *fuse.ReadlinkRequest:
		err = m.handleReadlinkRequest(r)
	case *fuse.OpenRequest:
		err = m.handleOpenRequest(r)
	case *fuse.ReadRequest:
		err = m.handleReadRequest(r)
	case *fuse.WriteRequest:
		err = m.handleWriteRequest(r)
	case *fuse.FlushRequest:
		err = m.handleFlushRequest(r)
	case *fuse.ReleaseRequest:
		err = m.handleReleaseRequest(r)
	case *fuse.FsyncRequest:
		err = m.handleFsyncRequest(r)
	case *fuse.CreateRequest:
		err = m.handleCreateRequest(r)
	case *fuse.MkdirRequest:
		err = m.handleMkdirRequest(r)
	case *fuse.MknodRequest:
		err = m.handleMknodRequest(r)
	case *fuse.SymlinkRequest:
		err = m.handleSymlinkRequest(r)
	case *fuse.LinkRequest:
		err = m.handleLinkRequest(r)
	case *fuse.RemoveRequest:
		err = m.handleRemoveRequest(r)
	case *fuse.GetxattrRequest:
		r.Respond(&fuse.GetxattrResponse{})
	case *fuse.ListxattrRequest:
		r.Respond(&fuse.ListxattrResponse{})
	case *fuse.InterruptRequest:
		// Nothing to cancel: every Backend call here runs to completion
		// synchronously, so there is no in-flight operation to abort.
	case *fuse.DestroyRequest:
		if cerr := m.backend.GoAway(); cerr != nil {
			m.log.Warn("GoAway failed", "err", cerr)
		}
		r.Respond()
	default:
		m.log.Warn("unhandled fuse request", "request", fmt.Sprintf("%T", req))
		err = fmt.Errorf("not implemented: %T", req)
	}

	if err != nil {
		req.RespondError(WrapIOError(err))
	}
}
