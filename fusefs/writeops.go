package fusefs

import (
	"time"

	"bazil.org/fuse"

	"github.com/archfs/tarfs/internal/fstree"
	"github.com/archfs/tarfs/internal/unixstat"
)

func newStat(uid, gid uint32, mode uint32) fstree.Stat {
	now := time.Now()
	return fstree.Stat{
		Mode:  mode,
		Uid:   uid,
		Gid:   gid,
		Atime: now,
		Mtime: now,
		Ctime: now,
	}
}

func (m *Mount) handleCreateRequest(req *fuse.CreateRequest) error {
	dir, err := m.getNode(req.Node)
	if err != nil {
		return err
	}
	mode := unixstat.S_IFREG | (uint32(req.Mode)&07777 &^ uint32(req.Umask)&07777)
	node, err := m.backend.CreateNode(dir, req.Name, newStat(req.Uid, req.Gid, mode))
	if err != nil {
		return err
	}
	id := m.trackNode(node)
	handle := m.openHandle(&regHandle{m: m, node: node})

	resp := &fuse.CreateResponse{
		LookupResponse: fuse.LookupResponse{
			Node:       id,
			Generation: 1,
			EntryValid: attrValidDuration,
			Attr:       nodeAttr(node),
		},
		OpenResponse: fuse.OpenResponse{
			Handle: handle,
			Flags:  fuse.OpenKeepCache,
		},
	}
	req.Respond(resp)
	return nil
}

func (m *Mount) handleMkdirRequest(req *fuse.MkdirRequest) error {
	dir, err := m.getNode(req.Node)
	if err != nil {
		return err
	}
	mode := unixstat.S_IFDIR | (uint32(req.Mode)&07777 &^ uint32(req.Umask)&07777)
	node, err := m.backend.CreateNode(dir, req.Name, newStat(req.Uid, req.Gid, mode))
	if err != nil {
		return err
	}
	id := m.trackNode(node)
	req.Respond(&fuse.MkdirResponse{LookupResponse: fuse.LookupResponse{
		Node:       id,
		Generation: 1,
		EntryValid: attrValidDuration,
		Attr:       nodeAttr(node),
	}})
	return nil
}

func (m *Mount) handleMknodRequest(req *fuse.MknodRequest) error {
	dir, err := m.getNode(req.Node)
	if err != nil {
		return err
	}
	mode := unixstat.FileStatToUnixMode(req.Mode)
	mode = (mode &^ 07777) | (uint32(req.Mode)&07777 &^ uint32(req.Umask)&07777)
	stat := newStat(req.Uid, req.Gid, mode)
	stat.Rdev = req.Rdev
	node, err := m.backend.CreateNode(dir, req.Name, stat)
	if err != nil {
		return err
	}
	id := m.trackNode(node)
	req.Respond(&fuse.LookupResponse{
		Node:       id,
		Generation: 1,
		EntryValid: attrValidDuration,
		Attr:       nodeAttr(node),
	})
	return nil
}

func (m *Mount) handleSymlinkRequest(req *fuse.SymlinkRequest) error {
	dir, err := m.getNode(req.Node)
	if err != nil {
		return err
	}
	node, err := m.backend.CreateNode(dir, req.NewName, newStat(req.Uid, req.Gid, 0777))
	if err != nil {
		return err
	}
	if err := m.backend.SymlinkNode(node, req.Target); err != nil {
		return err
	}
	id := m.trackNode(node)
	req.Respond(&fuse.SymlinkResponse{LookupResponse: fuse.LookupResponse{
		Node:       id,
		Generation: 1,
		EntryValid: attrValidDuration,
		Attr:       nodeAttr(node),
	}})
	return nil
}

func (m *Mount) handleLinkRequest(req *fuse.LinkRequest) error {
	dir, err := m.getNode(req.Node)
	if err != nil {
		return err
	}
	target, err := m.getNode(req.OldNode)
	if err != nil {
		return err
	}
	alias, err := m.backend.LinkNode(dir, target, req.NewName, false)
	if err != nil {
		return err
	}
	id := m.trackNode(alias)
	req.Respond(&fuse.LookupResponse{
		Node:       id,
		Generation: 1,
		EntryValid: attrValidDuration,
		Attr:       nodeAttr(alias),
	})
	return nil
}

// handleRemoveRequest resolves name through Lookup (the only way fusefs
// can turn a bare name back into a node) and then releases that lookup's
// own reference once Unlink has detached it, leaving whatever reference
// count the kernel's other outstanding handles on it actually hold.
func (m *Mount) handleRemoveRequest(req *fuse.RemoveRequest) error {
	dir, err := m.getNode(req.Node)
	if err != nil {
		return err
	}
	node, err := m.backend.Lookup(dir, req.Name)
	if err != nil {
		return err
	}
	if err := m.backend.UnlinkNode(node); err != nil {
		m.backend.FreeNode(node)
		return err
	}
	m.backend.FreeNode(node)
	req.Respond()
	return nil
}
