// Package fstree implements §3's node model and §4.4's filesystem tree
// operations: the in-memory graph of names, stat, parent/children,
// hardlink aliasing and symlink targets that both the FUSE host binding
// and the tar sync pass walk.
package fstree

import (
	"sync"
	"time"
)

// Stat is the POSIX-like attribute block every node carries. Nlink is
// maintained by Tree as nodes are linked/unlinked, per §3's invariants:
// directories carry 2+len(subdirectories), non-directories carry
// 1+len(hardlink aliases).
type Stat struct {
	Mode  uint32
	Uid   uint32
	Gid   uint32
	Size  int64
	Atime time.Time
	Mtime time.Time
	Ctime time.Time
	Rdev  uint32
	Ino   uint64
	Nlink uint32
}

// Node is one filesystem object: a directory, regular file, symlink,
// device node, fifo, or a hardlink alias of another node.
//
// Concurrency: each Node owns a lock (item 2 in spec.md §5's acquisition
// order). Every exported method on Tree that mutates a Node or its
// parent's children documents which node(s) the caller must already hold
// locked — fstree does not lock for you, the same way blockcache.Cache
// doesn't; the host binding (fusefs) and the sync pass (tarfs) are what
// actually sequence locks in the order spec.md §5 requires.
type Node struct {
	mu sync.Mutex

	name   string
	stat   Stat
	parent *Node // weak back-reference; never counted as an owning reference
	children []*Node

	symlinkTarget string // non-empty only if S_ISLNK(stat.Mode)
	hardlink      *Node  // non-nil only if this node aliases another

	refcount int32

	// Payload is filesystem-specific opaque state (the tarfs engine's
	// per-node cache + item pointer + dirty flag, corresponding to §3's
	// "tarfs-info"). fstree never looks inside it.
	Payload any
}

func (n *Node) Lock()   { n.mu.Lock() }
func (n *Node) Unlock() { n.mu.Unlock() }

func (n *Node) Name() string   { return n.name }
func (n *Node) Parent() *Node  { return n.parent }
func (n *Node) Hardlink() *Node { return n.hardlink }
func (n *Node) SymlinkTarget() string { return n.symlinkTarget }

// Children returns the node's ordered child list. Caller must hold n
// locked for a consistent read.
func (n *Node) Children() []*Node { return n.children }

// Target returns the node whose stat and data this node actually reads
// and writes through: itself, unless it is a hardlink alias, in which
// case it is the alias's target. §5: "read and write through an alias
// re-route to the target before acquiring cache locks."
func (n *Node) Target() *Node {
	if n.hardlink != nil {
		return n.hardlink
	}
	return n
}

// Stat returns a copy of the node's stat block. If this node is a
// hardlink alias, the mode is this node's own (mode may differ per §3)
// but every other field mirrors the target, since a hardlink's stat
// mirrors its target except for mode.
func (n *Node) Stat() Stat {
	if n.hardlink == nil {
		return n.stat
	}
	mirrored := n.hardlink.stat
	mirrored.Mode = n.stat.Mode
	return mirrored
}

// SetStat overwrites the node's own stat fields directly (no hardlink
// mirroring). Caller must hold n locked.
func (n *Node) SetStat(s Stat) { n.stat = s }

// RefCount reports the node's current reference count. Caller must hold
// n locked, or treat the result as advisory.
func (n *Node) RefCount() int32 { return n.refcount }
